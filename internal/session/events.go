package session

import (
	"time"

	"github.com/andresmejia3/facegate/internal/descriptor"
	"github.com/andresmejia3/facegate/internal/types"
)

// EventType names an outbound message for the host.
type EventType string

const (
	EventError               EventType = "error"
	EventInfo                EventType = "info"
	EventDetection           EventType = "detection"
	EventRegisterFace        EventType = "register_face"
	EventVerificationSuccess EventType = "verification_success"
	EventVerificationFailed  EventType = "verification_failed"
	EventEnrollmentProgress  EventType = "enrollment_progress"
)

// Messages carried by info and error events.
const (
	MsgMultipleFaces    = "multiple faces detected"
	MsgFaceLost         = "face lost"
	MsgCenterFace       = "center your face in the frame"
	MsgLeftTarget       = "face left the target area, enrollment restarted"
	MsgNotLive          = "liveness not yet satisfied, move your head slightly"
	MsgNoStoredTemplate = "no stored template"
	MsgDetectorReady    = "detector ready"
	MsgDetectionError   = "face detection error"
)

// Progress describes an in-flight enrollment.
type Progress struct {
	Fraction  float64 `json:"fraction"`
	Samples   int     `json:"samples"`
	Live      bool    `json:"live"`
	Movements int     `json:"movements"`
}

// Match describes a verification decision. The decision is
// Distance < Threshold.
type Match struct {
	Distance            float64 `json:"distance"`
	Similarity          float64 `json:"similarity"`
	Threshold           float64 `json:"threshold"`
	SimilarityThreshold float64 `json:"similarityThreshold"`
}

// Event is the single outbound message type. Type selects which optional
// fields are populated.
type Event struct {
	Type       EventType             `json:"type"`
	Message    string                `json:"message,omitempty"`
	Descriptor descriptor.Descriptor `json:"descriptor,omitempty"`
	Box        *types.Box            `json:"box,omitempty"`
	Progress   *Progress             `json:"progress,omitempty"`
	Match      *Match                `json:"match,omitempty"`
	Timestamp  int64                 `json:"timestamp"` // unix milliseconds
}

// Sink receives events in frame order.
type Sink interface {
	Emit(Event)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(Event)

func (f SinkFunc) Emit(e Event) { f(e) }

func errorEvent(at time.Time, msg string) Event {
	return Event{Type: EventError, Message: msg, Timestamp: at.UnixMilli()}
}

func infoEvent(at time.Time, msg string) Event {
	return Event{Type: EventInfo, Message: msg, Timestamp: at.UnixMilli()}
}
