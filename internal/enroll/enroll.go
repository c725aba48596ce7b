// Package enroll accumulates descriptor samples over a timed window and
// averages them into a single enrollment template.
package enroll

import (
	"fmt"
	"time"

	"github.com/andresmejia3/facegate/internal/descriptor"
)

const (
	DefaultDuration = 3 * time.Second
	DefaultCapacity = 5
)

type State int

const (
	NotStarted State = iota
	Collecting
	Completed
)

func (s State) String() string {
	switch s {
	case Collecting:
		return "collecting"
	case Completed:
		return "completed"
	default:
		return "not_started"
	}
}

// Outcome reports the effect of one Add call. Template is non-nil only on
// the call that completes the session.
type Outcome struct {
	Progress float64
	Samples  int
	Template descriptor.Descriptor
}

// Session is a single enrollment attempt. It is not safe for concurrent use.
type Session struct {
	duration time.Duration
	capacity int

	start     *time.Time
	samples   []descriptor.Descriptor
	completed bool
}

func NewSession(duration time.Duration, capacity int) *Session {
	if duration <= 0 {
		duration = DefaultDuration
	}
	if capacity < 1 {
		capacity = DefaultCapacity
	}
	return &Session{
		duration: duration,
		capacity: capacity,
		samples:  make([]descriptor.Descriptor, 0, capacity),
	}
}

func (s *Session) State() State {
	switch {
	case s.completed:
		return Completed
	case s.start != nil:
		return Collecting
	default:
		return NotStarted
	}
}

// Begin starts collection at now. It is a no-op once started.
func (s *Session) Begin(now time.Time) {
	if s.start != nil || s.completed {
		return
	}
	s.start = &now
}

// Add appends a sample and completes the session once the window has
// elapsed. A session that has not been started is started by its first
// sample. After completion Add never returns another template.
func (s *Session) Add(d descriptor.Descriptor, now time.Time) (Outcome, error) {
	if s.completed {
		return Outcome{Progress: 1, Samples: len(s.samples)}, nil
	}
	s.Begin(now)

	if len(s.samples) == s.capacity {
		// FIFO eviction, keep the newest capacity-1 samples
		copy(s.samples, s.samples[1:])
		s.samples = s.samples[:s.capacity-1]
	}
	s.samples = append(s.samples, d.Clone())

	out := Outcome{Progress: s.Progress(now), Samples: len(s.samples)}
	if now.Sub(*s.start) < s.duration {
		return out, nil
	}

	template, err := s.average(d)
	if err != nil {
		return out, fmt.Errorf("averaging enrollment samples: %w", err)
	}
	s.completed = true
	out.Template = template
	return out, nil
}

func (s *Session) average(current descriptor.Descriptor) (descriptor.Descriptor, error) {
	if len(s.samples) == 0 {
		return current.Clone(), nil
	}
	return descriptor.Mean(s.samples)
}

// Progress returns elapsed/duration clamped to [0,1].
func (s *Session) Progress(now time.Time) float64 {
	if s.completed {
		return 1
	}
	if s.start == nil {
		return 0
	}
	p := float64(now.Sub(*s.start)) / float64(s.duration)
	return min(max(p, 0), 1)
}

// Samples returns the number of collected samples.
func (s *Session) Samples() int {
	return len(s.samples)
}

// StartedAt returns the collection start time, if any.
func (s *Session) StartedAt() (time.Time, bool) {
	if s.start == nil {
		return time.Time{}, false
	}
	return *s.start, true
}

// Reset returns the session to NotStarted.
func (s *Session) Reset() {
	s.start = nil
	s.samples = s.samples[:0]
	s.completed = false
}
