package detector

import (
	"errors"
	"fmt"
)

var (
	// ErrGPUUnavailable is returned by a load when the GPU backend was requested
	// but no usable accelerator is present.
	ErrGPUUnavailable = errors.New("gpu backend unavailable")

	// ErrUnknownModel is returned when a model id is outside the model table.
	ErrUnknownModel = errors.New("unknown model id")

	// ErrModelNotFound is returned when the model file does not exist.
	ErrModelNotFound = errors.New("model file not found")

	// ErrEmptyFrame is returned when Detect is given a nil or empty frame.
	ErrEmptyFrame = errors.New("empty frame")
)

// LoadError reports a failure to construct a detector for a model.
type LoadError struct {
	ModelID int
	Backend Backend
	Err     error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load model %d on %s: %v", e.ModelID, e.Backend, e.Err)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

// InferError reports a failed detector invocation on a single frame.
type InferError struct {
	Err error
}

func (e *InferError) Error() string {
	return fmt.Sprintf("inference failed: %v", e.Err)
}

func (e *InferError) Unwrap() error {
	return e.Err
}
