package coordinator

import (
	"errors"
	"fmt"
)

// ErrInvalidConfig is wrapped by every configuration rejection. Nothing is
// mutated when it is returned.
var ErrInvalidConfig = errors.New("invalid configuration")

var (
	ErrInvalidModel     = errors.New("model id out of range")
	ErrInvalidBackend   = errors.New("unknown backend")
	ErrInvalidMode      = errors.New("unknown detect mode")
	ErrInvalidThreshold = errors.New("threshold must be within [0, 1]")
	ErrInvalidInterval  = errors.New("throttle interval must not be negative")
)

func invalid(err error) error {
	return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
}
