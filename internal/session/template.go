package session

import (
	"sync"

	"github.com/andresmejia3/facegate/internal/descriptor"
)

// Template holds the enrolled descriptor verification runs against.
// Writers are the host's set/clear commands; the frame loop only reads.
type Template struct {
	mu sync.RWMutex
	d  descriptor.Descriptor
}

// Set validates d and stores a private copy.
func (t *Template) Set(d descriptor.Descriptor) error {
	if err := descriptor.Validate(d); err != nil {
		return err
	}
	t.mu.Lock()
	t.d = d.Clone()
	t.mu.Unlock()
	return nil
}

func (t *Template) Clear() {
	t.mu.Lock()
	t.d = nil
	t.mu.Unlock()
}

// Get returns the stored descriptor or nil. Callers must not modify it.
func (t *Template) Get() descriptor.Descriptor {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.d
}
