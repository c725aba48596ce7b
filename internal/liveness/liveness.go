// Package liveness implements a movement heuristic that separates a live
// subject from a photo held still in front of the camera.
package liveness

import "github.com/andresmejia3/facegate/internal/types"

const (
	DefaultMovementThreshold = 30.0 // pixels
	DefaultMinMovements      = 2
)

// Tracker counts distinguishable face movements across frames.
// It is not safe for concurrent use.
type Tracker struct {
	threshold    float64
	minMovements int

	last      *types.Point
	movements int
}

func NewTracker(threshold float64, minMovements int) *Tracker {
	if threshold <= 0 {
		threshold = DefaultMovementThreshold
	}
	if minMovements < 1 {
		minMovements = DefaultMinMovements
	}
	return &Tracker{threshold: threshold, minMovements: minMovements}
}

// Observe records the face position for one accepted detection and reports
// whether it counted as a movement. The position is kept even when the
// delta is below the threshold.
func (t *Tracker) Observe(pos types.Point) bool {
	moved := false
	if t.last != nil && pos.Dist(*t.last) > t.threshold {
		t.movements++
		moved = true
	}
	t.last = &pos
	return moved
}

// IsLive reports whether enough movement has been seen.
func (t *Tracker) IsLive() bool {
	return t.movements >= t.minMovements
}

func (t *Tracker) Movements() int {
	return t.movements
}

// Reset forgets the last position and the movement count.
func (t *Tracker) Reset() {
	t.last = nil
	t.movements = 0
}
