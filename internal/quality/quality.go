package quality

import (
	"math"

	"github.com/andresmejia3/facegate/internal/types"
)

// Landmark indices of the outer eye corners in the 68-point model.
const (
	LeftEyeOuter  = 36
	RightEyeOuter = 45
)

// Reason explains why a detection was rejected. The string is shown to the
// user as-is.
type Reason string

const (
	ReasonNone          Reason = ""
	ReasonTooSmall      Reason = "face too small, move closer"
	ReasonLowConfidence Reason = "low confidence, improve lighting"
	ReasonPose          Reason = "look straight at the camera"
	ReasonNoLandmarks   Reason = "facial landmarks unavailable"
)

// Thresholds configures the gate.
type Thresholds struct {
	MinFaceSize    float64 `yaml:"min_face_size"`   // pixels, max(width, height)
	MinConfidence  float64 `yaml:"min_confidence"`  // detector score in [0,1]
	PoseAngleLimit float64 `yaml:"pose_angle_limit"` // radians
}

// DefaultThresholds returns the recommended gate settings.
func DefaultThresholds() Thresholds {
	return Thresholds{
		MinFaceSize:    100,
		MinConfidence:  0.7,
		PoseAngleLimit: 0.2,
	}
}

// Verdict is the outcome of evaluating one detection.
type Verdict struct {
	Accepted bool
	Reason   Reason
	Score    float64
	Angle    float64
}

// Gate accepts or rejects single detections.
type Gate struct {
	t Thresholds
}

func NewGate(t Thresholds) *Gate {
	return &Gate{t: t}
}

// Evaluate runs the size, confidence and head pose checks in that order and
// stops at the first failure. Each check states what must hold, so a NaN
// from the detector fails it.
func (g *Gate) Evaluate(det types.Detection) Verdict {
	if !(det.Box.MaxSide() >= g.t.MinFaceSize) {
		return Verdict{Reason: ReasonTooSmall, Score: det.Score}
	}
	if !(det.Score >= g.t.MinConfidence) {
		return Verdict{Reason: ReasonLowConfidence, Score: det.Score}
	}

	angle, ok := EyeLineAngle(det.Landmarks)
	if !ok {
		return Verdict{Reason: ReasonNoLandmarks, Score: det.Score}
	}
	if !(angle <= g.t.PoseAngleLimit) {
		return Verdict{Reason: ReasonPose, Score: det.Score, Angle: angle}
	}

	return Verdict{Accepted: true, Score: det.Score, Angle: angle}
}

// EyeLineAngle returns the angle in radians between the outer eye corners and
// the horizontal, folded into [0, pi/2] so a mirrored frame reads the same.
func EyeLineAngle(landmarks []types.Point) (float64, bool) {
	if len(landmarks) <= RightEyeOuter {
		return 0, false
	}
	l, r := landmarks[LeftEyeOuter], landmarks[RightEyeOuter]
	dx, dy := math.Abs(r.X-l.X), math.Abs(r.Y-l.Y)
	if dx == 0 && dy == 0 {
		return 0, false
	}
	return math.Atan2(dy, dx), true
}
