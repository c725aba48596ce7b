package session

import (
	"errors"
	"fmt"
	"strings"
)

// Mode is the controller's operation mode. Exactly one is active.
type Mode int

const (
	ModeIdle Mode = iota
	ModeRegistering
	ModeVerifying
)

var ErrInvalidMode = errors.New("invalid mode")

// String returns the host command vocabulary for the mode.
func (m Mode) String() string {
	switch m {
	case ModeRegistering:
		return "register"
	case ModeVerifying:
		return "verify"
	default:
		return "idle"
	}
}

// ParseMode accepts the host command vocabulary (register, verify, idle).
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "register", "registering":
		return ModeRegistering, nil
	case "verify", "verifying":
		return ModeVerifying, nil
	case "idle":
		return ModeIdle, nil
	}
	return ModeIdle, fmt.Errorf("%w: %q", ErrInvalidMode, s)
}
