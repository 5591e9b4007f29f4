package detector

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
)

// Kind names the backend implementation that serves a model.
type Kind string

const (
	// KindONNX runs the model in-process through ONNX Runtime.
	KindONNX Kind = "onnx"
	// KindWorker runs the model in an external worker process.
	KindWorker Kind = "worker"
)

// ModelSpec describes one entry of the model table.
type ModelSpec struct {
	Name       string `yaml:"name"`
	Kind       Kind   `yaml:"kind"`
	Path       string `yaml:"path"`
	TargetSize int    `yaml:"target_size"`
}

// Config holds configuration options for the Loader.
type Config struct {
	// Models is the model table, indexed by model id.
	Models []ModelSpec

	// ONNXLibrary is the path of the ONNX Runtime shared library.
	ONNXLibrary string

	// WorkerPython is the interpreter used to run WorkerScript.
	WorkerPython string

	// WorkerScript is the detection worker entry point.
	WorkerScript string
}

// DefaultConfig returns a Config with the two stock YOLOv8 models.
func DefaultConfig() Config {
	return Config{
		Models: []ModelSpec{
			{Name: "yolov8n", Kind: KindONNX, Path: "models/yolov8n.onnx", TargetSize: 320},
			{Name: "yolov8s", Kind: KindONNX, Path: "models/yolov8s.onnx", TargetSize: 320},
		},
		WorkerPython: "python3",
		WorkerScript: "scripts/detect_worker.py",
	}
}

// Loader builds detectors from the model table.
type Loader struct {
	config Config

	// gpuCheck probes the accelerator for a model kind. It runs before the
	// model file is looked at.
	gpuCheck func(kind Kind) error
}

// NewLoader creates a Loader for the given configuration.
func NewLoader(config Config) *Loader {
	l := &Loader{config: config}
	l.gpuCheck = l.checkGPU
	return l
}

// checkGPU probes CUDA for in-process models. Worker models report a missing
// accelerator during their load handshake.
func (l *Loader) checkGPU(kind Kind) error {
	switch kind {
	case KindONNX, "":
		return probeCUDA(l.config.ONNXLibrary)
	default:
		return nil
	}
}

// NumModels returns the number of entries in the model table.
func (l *Loader) NumModels() int {
	return len(l.config.Models)
}

// Model returns the spec for a model id.
func (l *Loader) Model(modelID int) (ModelSpec, error) {
	if modelID < 0 || modelID >= len(l.config.Models) {
		return ModelSpec{}, ErrUnknownModel
	}
	return l.config.Models[modelID], nil
}

// Load constructs a ready-to-use detector. GPU unavailability is reported as a
// LoadError wrapping ErrGPUUnavailable so callers can tell it apart from a
// broken model; it takes precedence over a missing model file.
func (l *Loader) Load(modelID int, backend Backend) (Detector, error) {
	spec, err := l.Model(modelID)
	if err != nil {
		return nil, &LoadError{ModelID: modelID, Backend: backend, Err: err}
	}

	if backend == BackendGPU {
		if err := l.gpuCheck(spec.Kind); err != nil {
			return nil, &LoadError{ModelID: modelID, Backend: backend, Err: err}
		}
	}

	if _, err := os.Stat(spec.Path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			err = fmt.Errorf("%w: %s", ErrModelNotFound, spec.Path)
		}
		return nil, &LoadError{ModelID: modelID, Backend: backend, Err: err}
	}

	var d Detector
	switch spec.Kind {
	case KindONNX, "":
		d, err = NewONNXDetector(spec, backend, l.config.ONNXLibrary)
	case KindWorker:
		d, err = NewWorkerDetector(l.config.WorkerPython, l.config.WorkerScript, spec, backend)
	default:
		err = fmt.Errorf("unsupported model kind %q", spec.Kind)
	}
	if err != nil {
		return nil, &LoadError{ModelID: modelID, Backend: backend, Err: err}
	}

	slog.Info("model loaded", "model", spec.Name, "kind", spec.Kind, "backend", backend, "target_size", spec.TargetSize)
	return d, nil
}
