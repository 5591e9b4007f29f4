// Package detector defines the object detector contract used by the inference
// coordinator, plus the backends and test doubles that implement it.
package detector

import (
	"fmt"

	"gocv.io/x/gocv"
)

// Detector defines the interface for object detection backends.
type Detector interface {
	// Detect runs one forward pass on the frame and returns the objects that
	// survive the confidence and NMS thresholds. The frame is borrowed and must
	// not be retained after Detect returns.
	Detect(frame *gocv.Mat, confidence, nms float32) (Batch, error)

	// Close releases the model and any scratch memory. It is called exactly once.
	Close() error
}

// Backend selects the compute target used to run inference.
type Backend int

const (
	// BackendCPU runs inference on the general purpose processor.
	BackendCPU Backend = 0
	// BackendGPU runs inference on the graphics accelerator.
	BackendGPU Backend = 1
)

// Valid reports whether b is a known backend.
func (b Backend) Valid() bool {
	return b == BackendCPU || b == BackendGPU
}

func (b Backend) String() string {
	switch b {
	case BackendCPU:
		return "cpu"
	case BackendGPU:
		return "gpu"
	default:
		return fmt.Sprintf("backend(%d)", int(b))
	}
}

// ParseBackend converts "cpu"/"gpu", or "0"/"1", to a Backend.
func ParseBackend(s string) (Backend, error) {
	switch s {
	case "cpu", "CPU", "0":
		return BackendCPU, nil
	case "gpu", "GPU", "1":
		return BackendGPU, nil
	default:
		return 0, fmt.Errorf("unknown backend %q", s)
	}
}
