// Package coordinator decides, for every frame, whether to run the detector or
// reuse the previous result, and serializes that decision with configuration
// changes and model reloads.
package coordinator

import (
	"errors"
	"log/slog"
	"math"
	"sync"
	"time"

	"gocv.io/x/gocv"

	"github.com/ayusman/drishti/internal/detector"
	"github.com/ayusman/drishti/internal/throttle"
)

// Loader constructs detectors. *detector.Loader implements it.
type Loader interface {
	Load(modelID int, backend detector.Backend) (detector.Detector, error)
	NumModels() int
}

// Config holds the initial coordinator settings.
type Config struct {
	// Confidence is the minimum object probability reported by the detector.
	Confidence float32

	// NMS is the IoU threshold used for non-max suppression.
	NMS float32

	// ThrottleInterval is the minimum time between two detector invocations.
	// Zero runs the detector on every frame.
	ThrottleInterval time.Duration

	// Mode selects which classes are reported.
	Mode detector.Mode

	// Now returns the current time. Defaults to time.Now.
	Now func() time.Time
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Confidence:       0.40,
		NMS:              0.45,
		ThrottleInterval: 0,
		Mode:             detector.ModeHumanOnly,
		Now:              time.Now,
	}
}

// Stats counts how frames were served.
type Stats struct {
	Inferences  uint64 `json:"inferences"`
	Reused      uint64 `json:"reused"`
	Empty       uint64 `json:"empty"`
	Unsupported uint64 `json:"unsupported"`
	Failures    uint64 `json:"failures"`
}

// Status is a consistent snapshot of the coordinator state.
type Status struct {
	Loaded           bool          `json:"loaded"`
	ModelID          int           `json:"model_id"`
	Backend          string        `json:"backend"`
	Confidence       float32       `json:"confidence"`
	NMS              float32       `json:"nms"`
	ThrottleInterval time.Duration `json:"-"`
	IntervalMillis   int64         `json:"throttle_interval_ms"`
	Mode             string        `json:"mode"`
	Cached           int           `json:"cached"`
	Stats            Stats         `json:"stats"`
}

// Coordinator owns the loaded detector, the throttle gate and the result cache.
// All of them are guarded by one mutex, held for the whole of every call,
// inference included.
type Coordinator struct {
	mu sync.Mutex

	loader  Loader
	det     detector.Detector
	modelID int
	backend detector.Backend

	gate  *throttle.Gate
	cache Cache

	confidence float32
	nms        float32
	mode       detector.Mode
	now        func() time.Time

	stats Stats
}

// New creates a Coordinator with no detector loaded.
func New(loader Loader, config Config) *Coordinator {
	if config.Now == nil {
		config.Now = time.Now
	}
	if !config.Mode.Valid() {
		config.Mode = detector.ModeHumanOnly
	}
	return &Coordinator{
		loader:     loader,
		gate:       throttle.NewGate(config.ThrottleInterval),
		confidence: config.Confidence,
		nms:        config.NMS,
		mode:       config.Mode,
		now:        config.Now,
	}
}

// DetectOrReuse runs the detector on frame unless the throttle gate rejects
// it, in which case the cached batch is returned. A detector failure is
// returned as *detector.InferError and leaves the gate and cache untouched.
func (c *Coordinator) DetectOrReuse(frame *gocv.Mat, confidence, nms float32) (Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.detectLocked(frame, confidence, nms)
}

// Detect is DetectOrReuse with the configured thresholds.
func (c *Coordinator) Detect(frame *gocv.Mat) (Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.detectLocked(frame, c.confidence, c.nms)
}

func (c *Coordinator) detectLocked(frame *gocv.Mat, confidence, nms float32) (Result, error) {
	if c.det == nil {
		c.stats.Unsupported++
		return Result{Decision: Unsupported}, nil
	}

	mark := c.gate.Mark()
	if c.gate.ShouldSkip(c.now()) {
		if c.cache.Len() == 0 {
			c.stats.Empty++
			return Result{Decision: SkippedEmpty}, nil
		}
		c.stats.Reused++
		return Result{Decision: SkippedReusedCache, Objects: c.cache.Load()}, nil
	}

	batch, err := c.det.Detect(frame, confidence, nms)
	if err != nil {
		c.gate.Restore(mark)
		c.stats.Failures++

		var inferErr *detector.InferError
		if !errors.As(err, &inferErr) {
			err = &detector.InferError{Err: err}
		}
		return Result{}, err
	}

	batch = c.mode.Filter(batch)
	c.cache.Store(batch)
	c.stats.Inferences++

	return Result{Decision: RanInference, Objects: batch.Clone()}, nil
}

// LoadModel replaces the detector with a freshly loaded one. The previous
// detector is closed only once the new one is installed. If the load fails the
// previous detector stays in place, except when the GPU backend is unavailable:
// then the current detector is unloaded and LoadModel reports success.
func (c *Coordinator) LoadModel(modelID int, backend detector.Backend) error {
	if !backend.Valid() {
		return invalid(ErrInvalidBackend)
	}
	if modelID < 0 || modelID >= c.loader.NumModels() {
		return invalid(ErrInvalidModel)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	d, err := c.loader.Load(modelID, backend)
	if errors.Is(err, detector.ErrGPUUnavailable) {
		slog.Warn("gpu backend unavailable, unloading model", "model", modelID)
		c.unloadLocked()
		return nil
	}
	if err != nil {
		return err
	}

	old := c.det
	c.det = d
	c.modelID = modelID
	c.backend = backend

	if old != nil {
		if err := old.Close(); err != nil {
			slog.Warn("failed to close previous detector", "error", err)
		}
	}

	slog.Info("detector ready", "model", modelID, "backend", backend)
	return nil
}

// Unload closes the current detector, if any.
func (c *Coordinator) Unload() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.unloadLocked()
}

func (c *Coordinator) unloadLocked() {
	if c.det == nil {
		return
	}
	if err := c.det.Close(); err != nil {
		slog.Warn("failed to close detector", "error", err)
	}
	c.det = nil
	slog.Info("detector unloaded", "model", c.modelID)
}

// Loaded reports whether a detector is installed.
func (c *Coordinator) Loaded() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.det != nil
}

// SetConfidenceThreshold sets the confidence used by Detect.
func (c *Coordinator) SetConfidenceThreshold(v float32) error {
	if !validThreshold(v) {
		return invalid(ErrInvalidThreshold)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.confidence = v
	return nil
}

// ConfidenceThreshold returns the configured confidence threshold.
func (c *Coordinator) ConfidenceThreshold() float32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.confidence
}

// SetNMSThreshold sets the NMS threshold used by Detect.
func (c *Coordinator) SetNMSThreshold(v float32) error {
	if !validThreshold(v) {
		return invalid(ErrInvalidThreshold)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nms = v
	return nil
}

// NMSThreshold returns the configured NMS threshold.
func (c *Coordinator) NMSThreshold() float32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.nms
}

// SetThrottleInterval sets the minimum time between detector invocations.
// The new value applies from the next frame.
func (c *Coordinator) SetThrottleInterval(d time.Duration) error {
	if d < 0 {
		return invalid(ErrInvalidInterval)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gate.SetInterval(d)
	return nil
}

// ThrottleInterval returns the configured interval, or 0 when no detector is
// loaded.
func (c *Coordinator) ThrottleInterval() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.det == nil {
		return 0
	}
	return c.gate.Interval()
}

// SetDetectMode changes which classes are reported. Cached results are not
// re-filtered.
func (c *Coordinator) SetDetectMode(m detector.Mode) error {
	if !m.Valid() {
		return invalid(ErrInvalidMode)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.mode = m
	return nil
}

// DetectMode returns the configured mode, or ModeHumanOnly (0) when no
// detector is loaded.
func (c *Coordinator) DetectMode() detector.Mode {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.det == nil {
		return detector.ModeHumanOnly
	}
	return c.mode
}

// Status returns a snapshot of the coordinator.
func (c *Coordinator) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Status{
		Loaded:           c.det != nil,
		ModelID:          -1,
		Confidence:       c.confidence,
		NMS:              c.nms,
		ThrottleInterval: c.gate.Interval(),
		IntervalMillis:   c.gate.Interval().Milliseconds(),
		Mode:             c.mode.String(),
		Cached:           c.cache.Len(),
		Stats:            c.stats,
	}
	if s.Loaded {
		s.ModelID = c.modelID
		s.Backend = c.backend.String()
	}
	return s
}

// Close unloads the detector and drops the cache.
func (c *Coordinator) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.unloadLocked()
	c.cache.Clear()
	return nil
}

func validThreshold(v float32) bool {
	return !math.IsNaN(float64(v)) && v >= 0 && v <= 1
}
