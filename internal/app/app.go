// Package app wires the inference coordinator, the capture session and the
// output surfaces together and exposes the host control surface.
package app

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/ayusman/drishti/internal/capture"
	"github.com/ayusman/drishti/internal/coordinator"
	"github.com/ayusman/drishti/internal/detector"
	"github.com/ayusman/drishti/internal/display"
	"github.com/ayusman/drishti/internal/render"
	"github.com/ayusman/drishti/internal/store"
)

// maxThrottleMillis is the largest interval representable as a time.Duration.
const maxThrottleMillis = math.MaxInt64 / int64(time.Millisecond)

// Config holds configuration options for the application.
type Config struct {
	// Store persists runtime settings. Optional.
	Store *store.Store

	// Loader builds detectors for the model table.
	Loader coordinator.Loader

	// Coordinator holds the initial thresholds, interval and mode.
	Coordinator coordinator.Config

	// Session configures the capture session.
	Session capture.SessionConfig

	// Surfaces holds the output surfaces. Defaults to an empty registry.
	Surfaces *display.Registry

	// DefaultOutput is the surface selected when none was persisted.
	DefaultOutput string

	// DefaultModel and DefaultBackend are loaded by RestoreSettings when
	// nothing was persisted. AutoLoad disables that load when false.
	DefaultModel   int
	DefaultBackend detector.Backend
	AutoLoad       bool
}

// App is the host application: it owns the coordinator, the render pipeline
// and the capture session.
type App struct {
	config   Config
	coord    *coordinator.Coordinator
	pipeline *render.Pipeline
	session  *capture.Session
	surfaces *display.Registry
	events   *eventHub

	mu     sync.Mutex
	output string
	start  time.Time
}

// New creates a new App instance with the given configuration.
func New(config Config) *App {
	if config.Surfaces == nil {
		config.Surfaces = display.NewRegistry(nil)
	}

	coord := coordinator.New(config.Loader, config.Coordinator)
	pipeline := render.NewPipeline(coord, config.Coordinator.Now)
	events := newEventHub()
	pipeline.AddObserver(events.publish)

	return &App{
		config:   config,
		coord:    coord,
		pipeline: pipeline,
		session:  capture.NewSession(config.Session, pipeline.OnFrame),
		surfaces: config.Surfaces,
		events:   events,
		start:    time.Now(),
	}
}

// Coordinator returns the inference coordinator.
func (a *App) Coordinator() *coordinator.Coordinator {
	return a.coord
}

// Surfaces returns the output surface registry.
func (a *App) Surfaces() *display.Registry {
	return a.surfaces
}

// Subscribe returns a queue of up to buffer events, one per annotated frame.
func (a *App) Subscribe(buffer int) *Subscription {
	return a.events.add(buffer)
}

// NumModels returns the size of the model table.
func (a *App) NumModels() int {
	return a.config.Loader.NumModels()
}

// LoadModel loads a model on the given backend. It returns false for invalid
// arguments or a failed load; in both cases the current detector is kept. When
// the GPU is unavailable the current detector is unloaded and true is returned.
func (a *App) LoadModel(modelID int, backend detector.Backend) bool {
	err := a.coord.LoadModel(modelID, backend)
	a.recordLoad(modelID, backend, err)

	if err != nil {
		slog.Warn("model load failed", "model", modelID, "backend", backend, "error", err)
		return false
	}

	a.persist(store.KeyModel, modelID)
	a.persist(store.KeyBackend, backend.String())

	if a.coord.Loaded() {
		a.reapplySettings()
	}
	return true
}

func (a *App) recordLoad(modelID int, backend detector.Backend, err error) {
	if a.config.Store == nil {
		return
	}

	e := &store.LoadEvent{ModelID: modelID, Backend: backend.String()}
	switch {
	case errors.Is(err, coordinator.ErrInvalidConfig):
		e.Outcome = store.LoadOutcomeRejected
	case err != nil:
		e.Outcome = store.LoadOutcomeFailed
	case !a.coord.Loaded():
		e.Outcome = store.LoadOutcomeUnloaded
	default:
		e.Outcome = store.LoadOutcomeLoaded
	}
	if err != nil {
		e.Error = err.Error()
	}

	if err := a.config.Store.Loads().Record(e); err != nil {
		slog.Warn("failed to record model load", "error", err)
	}
}

// reapplySettings pushes the persisted interval and mode into the coordinator.
func (a *App) reapplySettings() {
	if a.config.Store == nil {
		return
	}
	settings := a.config.Store.Settings()

	if ms, err := settings.GetInt(store.KeyThrottle, -1); err == nil && ms >= 0 {
		a.coord.SetThrottleInterval(time.Duration(ms) * time.Millisecond)
	}
	if mode, err := settings.GetInt(store.KeyMode, -1); err == nil && detector.Mode(mode).Valid() {
		a.coord.SetDetectMode(detector.Mode(mode))
	}
}

// OpenCamera starts capturing from the camera with the given facing.
func (a *App) OpenCamera(facing capture.Facing) bool {
	if err := a.session.Open(facing); err != nil {
		slog.Warn("failed to open camera", "facing", facing, "error", err)
		return false
	}
	a.pipeline.Reset()
	a.persist(store.KeyFacing, int(facing))
	return true
}

// CloseCamera stops capturing. Closing an already closed camera succeeds.
func (a *App) CloseCamera() bool {
	if err := a.session.Close(); err != nil {
		slog.Warn("error closing camera", "error", err)
		return false
	}
	return true
}

// SetOutputWindow presents processed frames on the named surface.
func (a *App) SetOutputWindow(name string) bool {
	surface, ok := a.surfaces.Get(name)
	if !ok {
		slog.Warn("unknown output surface", "surface", name)
		return false
	}

	a.session.SetOutputSurface(surface)

	a.mu.Lock()
	a.output = name
	a.mu.Unlock()

	a.persist(store.KeyOutput, name)
	return true
}

// SetConfidenceThreshold sets the minimum probability of reported objects.
func (a *App) SetConfidenceThreshold(v float32) error {
	if err := a.coord.SetConfidenceThreshold(v); err != nil {
		return err
	}
	a.persist(store.KeyConfidence, v)
	return nil
}

// SetThrottleInterval sets the minimum number of milliseconds between two
// detector runs. Zero runs the detector on every frame.
func (a *App) SetThrottleInterval(ms int) error {
	if int64(ms) > maxThrottleMillis {
		return fmt.Errorf("%w: %w", coordinator.ErrInvalidConfig, coordinator.ErrInvalidInterval)
	}
	if err := a.coord.SetThrottleInterval(time.Duration(ms) * time.Millisecond); err != nil {
		return err
	}
	a.persist(store.KeyThrottle, ms)
	return nil
}

// GetThrottleInterval returns the interval in milliseconds, 0 when no detector
// is loaded.
func (a *App) GetThrottleInterval() int {
	return int(a.coord.ThrottleInterval().Milliseconds())
}

// SetDetectMode selects the reported classes: 0 human only, 1 human and vehicle.
func (a *App) SetDetectMode(mode int) error {
	if err := a.coord.SetDetectMode(detector.Mode(mode)); err != nil {
		return err
	}
	a.persist(store.KeyMode, mode)
	return nil
}

// GetDetectMode returns the current mode, 0 when no detector is loaded.
func (a *App) GetDetectMode() int {
	return int(a.coord.DetectMode())
}

// RestoreSettings applies the persisted settings, falling back to the
// configured defaults, loads the persisted model and selects the output
// surface. It returns the facing to open the camera with.
func (a *App) RestoreSettings() capture.Facing {
	cc := a.config.Coordinator
	confidence := cc.Confidence
	throttleMs := int(cc.ThrottleInterval.Milliseconds())
	mode := int(cc.Mode)
	model := a.config.DefaultModel
	backend := a.config.DefaultBackend.String()
	output := a.config.DefaultOutput
	facing := int(capture.FacingFront)

	if a.config.Store != nil {
		settings := a.config.Store.Settings()
		confidence = readSetting(settings.GetFloat32, store.KeyConfidence, confidence)
		throttleMs = readSetting(settings.GetInt, store.KeyThrottle, throttleMs)
		mode = readSetting(settings.GetInt, store.KeyMode, mode)
		model = readSetting(settings.GetInt, store.KeyModel, model)
		backend = readSetting(settings.GetString, store.KeyBackend, backend)
		output = readSetting(settings.GetString, store.KeyOutput, output)
		facing = readSetting(settings.GetInt, store.KeyFacing, facing)
	}

	if err := a.coord.SetConfidenceThreshold(confidence); err != nil {
		slog.Warn("ignoring persisted confidence", "value", confidence, "error", err)
	}
	if err := a.coord.SetThrottleInterval(time.Duration(throttleMs) * time.Millisecond); err != nil {
		slog.Warn("ignoring persisted throttle interval", "value", throttleMs, "error", err)
	}
	if err := a.coord.SetDetectMode(detector.Mode(mode)); err != nil {
		slog.Warn("ignoring persisted detect mode", "value", mode, "error", err)
	}

	if a.config.AutoLoad {
		b, err := detector.ParseBackend(backend)
		if err != nil {
			slog.Warn("ignoring persisted backend", "value", backend, "error", err)
			b = a.config.DefaultBackend
		}
		a.LoadModel(model, b)
	}

	if output != "" {
		a.SetOutputWindow(output)
	}

	f := capture.Facing(facing)
	if f != capture.FacingFront && f != capture.FacingBack {
		f = capture.FacingFront
	}

	slog.Info("settings restored",
		"confidence", confidence,
		"throttle_ms", throttleMs,
		"mode", detector.Mode(mode),
		"model", model,
		"backend", backend,
		"output", output,
		"facing", f)

	return f
}

func readSetting[T any](get func(string, T) (T, error), key string, def T) T {
	v, err := get(key, def)
	if err != nil {
		slog.Warn("ignoring unreadable setting", "key", key, "error", err)
		return def
	}
	return v
}

func (a *App) persist(key string, value any) {
	if a.config.Store == nil {
		return
	}
	if err := a.config.Store.Settings().Set(key, value); err != nil {
		slog.Warn("failed to persist setting", "key", key, "error", err)
	}
}

// LoadHistory returns the most recent model load requests.
func (a *App) LoadHistory(limit int) ([]store.LoadEvent, error) {
	if a.config.Store == nil {
		return nil, nil
	}
	return a.config.Store.Loads().Recent(limit)
}

// Close stops the camera, unloads the detector and closes every subscription.
func (a *App) Close() error {
	err := a.session.Close()
	if cerr := a.coord.Close(); err == nil {
		err = cerr
	}
	a.events.closeAll()
	slog.Info("app stopped")
	return err
}
