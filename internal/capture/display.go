package capture

import (
	"sync"

	"github.com/andresmejia3/facegate/internal/types"
)

// FrameSizer reports the size of the frames being captured.
type FrameSizer interface {
	FrameSize() types.Size
}

// Display is the output region detections are mapped into. A fixed size
// wins; otherwise the display follows the frame size.
type Display struct {
	fixed  types.Size
	frames FrameSizer

	mu   sync.Mutex
	size types.Size
}

func NewDisplay(fixed types.Size, frames FrameSizer) *Display {
	return &Display{fixed: fixed, frames: frames, size: fixed}
}

func (d *Display) Size() types.Size {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.size
}

// Recompute refreshes the size. It stays zero until a frame has arrived.
func (d *Display) Recompute() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.fixed.IsZero() {
		d.size = d.fixed
		return
	}
	if d.frames != nil {
		d.size = d.frames.FrameSize()
	}
}
