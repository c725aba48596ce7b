package quality

import (
	"math"
	"testing"

	"github.com/andresmejia3/facegate/internal/types"
)

// landmarksAt builds a 68-point set whose eye corners lie on a line at the
// given angle (radians) with the horizontal.
func landmarksAt(angle float64) []types.Point {
	pts := make([]types.Point, 68)
	pts[LeftEyeOuter] = types.Point{X: 100, Y: 100}
	pts[RightEyeOuter] = types.Point{X: 100 + 60*math.Cos(angle), Y: 100 + 60*math.Sin(angle)}
	return pts
}

func TestEvaluate(t *testing.T) {
	gate := NewGate(DefaultThresholds())
	bigBox := types.Box{X: 10, Y: 10, Width: 150, Height: 160}

	tests := []struct {
		name       string
		det        types.Detection
		wantAccept bool
		wantReason Reason
	}{
		{
			name:       "Passes all checks",
			det:        types.Detection{Box: bigBox, Score: 0.9, Landmarks: landmarksAt(0.05)},
			wantAccept: true,
			wantReason: ReasonNone,
		},
		{
			name: "Too small wins over bad confidence and pose",
			det: types.Detection{
				Box:       types.Box{Width: 80, Height: 99},
				Score:     0.1,
				Landmarks: landmarksAt(1.0),
			},
			wantReason: ReasonTooSmall,
		},
		{
			name:       "Only height is large enough",
			det:        types.Detection{Box: types.Box{Width: 40, Height: 100}, Score: 0.9, Landmarks: landmarksAt(0)},
			wantAccept: true,
		},
		{
			name:       "Low confidence with adequate size",
			det:        types.Detection{Box: bigBox, Score: 0.69, Landmarks: landmarksAt(0)},
			wantReason: ReasonLowConfidence,
		},
		{
			name:       "Tilted head",
			det:        types.Detection{Box: bigBox, Score: 0.95, Landmarks: landmarksAt(0.35)},
			wantReason: ReasonPose,
		},
		{
			name:       "Tilted the other way",
			det:        types.Detection{Box: bigBox, Score: 0.95, Landmarks: landmarksAt(-0.35)},
			wantReason: ReasonPose,
		},
		{
			name:       "Missing landmarks",
			det:        types.Detection{Box: bigBox, Score: 0.95, Landmarks: make([]types.Point, 10)},
			wantReason: ReasonNoLandmarks,
		},
		{
			name:       "NaN score",
			det:        types.Detection{Box: bigBox, Score: math.NaN(), Landmarks: landmarksAt(0)},
			wantReason: ReasonLowConfidence,
		},
		{
			name:       "NaN box",
			det:        types.Detection{Box: types.Box{Width: math.NaN(), Height: math.NaN()}, Score: 0.9, Landmarks: landmarksAt(0)},
			wantReason: ReasonTooSmall,
		},
		{
			name:       "One NaN side",
			det:        types.Detection{Box: types.Box{Width: math.NaN(), Height: 150}, Score: 0.9, Landmarks: landmarksAt(0)},
			wantReason: ReasonTooSmall,
		},
		{
			name: "NaN eye corner",
			det: types.Detection{Box: bigBox, Score: 0.9, Landmarks: func() []types.Point {
				pts := landmarksAt(0)
				pts[RightEyeOuter] = types.Point{X: math.NaN(), Y: 100}
				return pts
			}()},
			wantReason: ReasonPose,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := gate.Evaluate(tt.det)
			if v.Accepted != tt.wantAccept {
				t.Errorf("Accepted = %v, want %v (reason %q)", v.Accepted, tt.wantAccept, v.Reason)
			}
			if v.Reason != tt.wantReason {
				t.Errorf("Reason = %q, want %q", v.Reason, tt.wantReason)
			}
			if v.Score != tt.det.Score && !(math.IsNaN(v.Score) && math.IsNaN(tt.det.Score)) {
				t.Errorf("Score = %v, want %v", v.Score, tt.det.Score)
			}
		})
	}
}

func TestEyeLineAngle(t *testing.T) {
	for _, want := range []float64{0, 0.1, 0.2, 0.5, 1.2} {
		got, ok := EyeLineAngle(landmarksAt(want))
		if !ok {
			t.Fatalf("EyeLineAngle(%v) not ok", want)
		}
		if math.Abs(got-want) > 1e-9 {
			t.Errorf("EyeLineAngle() = %v, want %v", got, want)
		}
	}

	// Mirrored frame: right corner left of the left corner
	pts := make([]types.Point, 68)
	pts[LeftEyeOuter] = types.Point{X: 200, Y: 100}
	pts[RightEyeOuter] = types.Point{X: 140, Y: 100}
	if got, _ := EyeLineAngle(pts); got != 0 {
		t.Errorf("mirrored level eyes angle = %v, want 0", got)
	}

	// Degenerate: both corners on the same pixel
	if _, ok := EyeLineAngle(make([]types.Point, 68)); ok {
		t.Error("expected not ok for coincident eye corners")
	}
}
