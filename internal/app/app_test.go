package app

import (
	"errors"
	"math"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"gocv.io/x/gocv"

	"github.com/ayusman/drishti/internal/capture"
	"github.com/ayusman/drishti/internal/coordinator"
	"github.com/ayusman/drishti/internal/detector"
	"github.com/ayusman/drishti/internal/display"
	"github.com/ayusman/drishti/internal/render"
	"github.com/ayusman/drishti/internal/store"
)

type testEnv struct {
	app    *App
	store  *store.Store
	loader *detector.MockLoader

	mu   sync.Mutex
	cams map[string]*capture.MockCamera
}

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("store.New() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func newTestApp(t *testing.T, s *store.Store) *testEnv {
	t.Helper()

	frame := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(0, 0, 0, 0), 120, 160, gocv.MatTypeCV8UC3)
	t.Cleanup(func() { frame.Close() })

	env := &testEnv{
		store:  s,
		loader: detector.NewMockLoader(3),
		cams:   make(map[string]*capture.MockCamera),
	}
	env.loader.SetBatch(detector.PersonBatch())

	env.app = New(Config{
		Store:       s,
		Loader:      env.loader,
		Coordinator: coordinator.DefaultConfig(),
		Session: capture.SessionConfig{
			Sources: map[capture.Facing]string{capture.FacingFront: "0", capture.FacingBack: "1"},
			FPS:     200,
			NewCamera: func(config capture.CameraConfig) capture.Camera {
				env.mu.Lock()
				defer env.mu.Unlock()
				cam := capture.NewMockCamera([]*gocv.Mat{&frame}, true)
				env.cams[config.Source] = cam
				return cam
			},
		},
		Surfaces: display.NewRegistry([]display.SurfaceConfig{
			{Name: "main"},
			{Name: "aux", Quality: 50},
		}),
		DefaultOutput:  "main",
		DefaultBackend: detector.BackendCPU,
		AutoLoad:       true,
	})
	t.Cleanup(func() { env.app.Close() })

	return env
}

func (e *testEnv) camera(source string) *capture.MockCamera {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cams[source]
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestApp_LoadModel(t *testing.T) {
	env := newTestApp(t, newTestStore(t))
	a := env.app

	if !a.LoadModel(1, detector.BackendCPU) {
		t.Fatal("LoadModel(1, cpu) = false")
	}
	if !a.Coordinator().Loaded() {
		t.Fatal("detector should be loaded")
	}

	// Out of range ids and failed loads keep the current detector.
	if a.LoadModel(99, detector.BackendCPU) {
		t.Error("LoadModel(99) = true")
	}
	env.loader.FailModel(2, errors.New("corrupt weights"))
	if a.LoadModel(2, detector.BackendCPU) {
		t.Error("LoadModel(2) with a failing model = true")
	}
	if st := a.Coordinator().Status(); !st.Loaded || st.ModelID != 1 {
		t.Errorf("Status() = %+v, want model 1 still loaded", st)
	}

	// GPU unavailable unloads and still reports success.
	env.loader.SetGPUAvailable(false)
	if !a.LoadModel(0, detector.BackendGPU) {
		t.Error("LoadModel(0, gpu) without a GPU = false")
	}
	if a.Coordinator().Loaded() {
		t.Error("detector should be unloaded after GPU fallback")
	}

	history, err := a.LoadHistory(10)
	if err != nil {
		t.Fatalf("LoadHistory() error = %v", err)
	}
	want := []store.LoadOutcome{
		store.LoadOutcomeUnloaded,
		store.LoadOutcomeFailed,
		store.LoadOutcomeRejected,
		store.LoadOutcomeLoaded,
	}
	if len(history) != len(want) {
		t.Fatalf("len(LoadHistory()) = %d, want %d", len(history), len(want))
	}
	for i, e := range history {
		if e.Outcome != want[i] {
			t.Errorf("history[%d].Outcome = %q, want %q", i, e.Outcome, want[i])
		}
	}
	if history[1].Error == "" {
		t.Error("failed load should record its error")
	}

	backend, _ := env.store.Settings().GetString(store.KeyBackend, "")
	if backend != "gpu" {
		t.Errorf("persisted backend = %q, want gpu", backend)
	}
}

func TestApp_LoadModelReappliesPersistedSettings(t *testing.T) {
	s := newTestStore(t)
	env := newTestApp(t, s)
	a := env.app

	if err := a.SetThrottleInterval(250); err != nil {
		t.Fatalf("SetThrottleInterval() error = %v", err)
	}
	if err := a.SetDetectMode(int(detector.ModeHumanAndVehicle)); err != nil {
		t.Fatalf("SetDetectMode() error = %v", err)
	}

	// Nothing loaded yet: getters report zero.
	if got := a.GetThrottleInterval(); got != 0 {
		t.Errorf("GetThrottleInterval() before load = %d, want 0", got)
	}
	if got := a.GetDetectMode(); got != 0 {
		t.Errorf("GetDetectMode() before load = %d, want 0", got)
	}

	// A different process changed the stored values in between.
	s.Settings().Set(store.KeyThrottle, 500)

	if !a.LoadModel(0, detector.BackendCPU) {
		t.Fatal("LoadModel() = false")
	}
	if got := a.GetThrottleInterval(); got != 500 {
		t.Errorf("GetThrottleInterval() = %d, want 500", got)
	}
	if got := a.GetDetectMode(); got != int(detector.ModeHumanAndVehicle) {
		t.Errorf("GetDetectMode() = %d, want 1", got)
	}
}

func TestApp_Setters(t *testing.T) {
	env := newTestApp(t, newTestStore(t))
	a := env.app

	tests := []struct {
		name    string
		set     func() error
		wantErr bool
	}{
		{"confidence", func() error { return a.SetConfidenceThreshold(0.6) }, false},
		{"confidence out of range", func() error { return a.SetConfidenceThreshold(1.5) }, true},
		{"throttle", func() error { return a.SetThrottleInterval(100) }, false},
		{"negative throttle", func() error { return a.SetThrottleInterval(-1) }, true},
		{"throttle beyond duration range", func() error { return a.SetThrottleInterval(math.MaxInt) }, true},
		{"mode", func() error { return a.SetDetectMode(1) }, false},
		{"unknown mode", func() error { return a.SetDetectMode(7) }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.set()
			if (err != nil) != tt.wantErr {
				t.Fatalf("error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr && !errors.Is(err, coordinator.ErrInvalidConfig) {
				t.Errorf("error = %v, want ErrInvalidConfig", err)
			}
		})
	}

	settings := env.store.Settings()
	if v, _ := settings.GetFloat32(store.KeyConfidence, 0); v != 0.6 {
		t.Errorf("persisted confidence = %v, want 0.6", v)
	}
	if v, _ := settings.GetInt(store.KeyThrottle, 0); v != 100 {
		t.Errorf("persisted throttle = %d, want 100", v)
	}
	if v, _ := settings.GetInt(store.KeyMode, 0); v != 1 {
		t.Errorf("persisted mode = %d, want 1", v)
	}
}

func TestApp_CameraAndOutput(t *testing.T) {
	env := newTestApp(t, newTestStore(t))
	a := env.app

	if a.SetOutputWindow("missing") {
		t.Error("SetOutputWindow(missing) = true")
	}
	if !a.SetOutputWindow("aux") {
		t.Fatal("SetOutputWindow(aux) = false")
	}
	if !a.LoadModel(0, detector.BackendCPU) {
		t.Fatal("LoadModel() = false")
	}

	sub := a.Subscribe(4)
	defer sub.Close()

	if !a.OpenCamera(capture.FacingBack) {
		t.Fatal("OpenCamera(back) = false")
	}

	select {
	case e := <-sub.C:
		if e.Decision != coordinator.RanInference && e.Decision != coordinator.SkippedReusedCache {
			t.Errorf("Decision = %v", e.Decision)
		}
		// Human only mode drops the car.
		if len(e.Objects) != 1 || e.Objects[0].Name != "person" {
			t.Errorf("Objects = %+v, want one person", e.Objects)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no event received")
	}

	aux, _ := a.Surfaces().Get("aux")
	waitFor(t, func() bool { return aux.Frames() > 0 })

	st := a.Status()
	if !st.Camera.Open || st.Camera.Facing != "back" || st.Output != "aux" {
		t.Errorf("Status() = %+v", st)
	}
	if st.Models != 3 || len(st.Surfaces) != 2 {
		t.Errorf("Status() = %+v", st)
	}

	if facing, _ := env.store.Settings().GetInt(store.KeyFacing, -1); facing != int(capture.FacingBack) {
		t.Errorf("persisted facing = %d, want back", facing)
	}

	if !a.CloseCamera() {
		t.Error("CloseCamera() = false")
	}
	if !a.CloseCamera() {
		t.Error("second CloseCamera() = false")
	}
	if opens, closes := env.camera("1").Counts(); opens != 1 || closes != 1 {
		t.Errorf("camera opens/closes = %d/%d, want 1/1", opens, closes)
	}
}

func TestApp_OpenCameraErrors(t *testing.T) {
	a := newTestApp(t, nil).app

	if a.OpenCamera(capture.Facing(5)) {
		t.Error("OpenCamera(5) = true")
	}
	if a.Status().Camera.Open {
		t.Error("camera should stay closed")
	}
}

func TestApp_RestoreSettings(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		env := newTestApp(t, newTestStore(t))

		facing := env.app.RestoreSettings()
		if facing != capture.FacingFront {
			t.Errorf("facing = %v, want front", facing)
		}
		st := env.app.Status()
		if !st.Detector.Loaded || st.Detector.ModelID != 0 || st.Output != "main" {
			t.Errorf("Status() = %+v", st)
		}
	})

	t.Run("persisted", func(t *testing.T) {
		s := newTestStore(t)
		settings := s.Settings()
		settings.Set(store.KeyModel, 2)
		settings.Set(store.KeyBackend, "gpu")
		settings.Set(store.KeyThrottle, 300)
		settings.Set(store.KeyMode, 1)
		settings.Set(store.KeyConfidence, 0.7)
		settings.Set(store.KeyOutput, "aux")
		settings.Set(store.KeyFacing, 1)

		env := newTestApp(t, s)
		facing := env.app.RestoreSettings()
		if facing != capture.FacingBack {
			t.Errorf("facing = %v, want back", facing)
		}

		st := env.app.Status()
		if st.Detector.ModelID != 2 || st.Detector.Backend != "gpu" {
			t.Errorf("detector = %+v, want model 2 on gpu", st.Detector)
		}
		if st.Detector.IntervalMillis != 300 || st.Detector.Mode != detector.ModeHumanAndVehicle.String() {
			t.Errorf("detector = %+v, want 300ms human and vehicle", st.Detector)
		}
		if got := env.app.Coordinator().ConfidenceThreshold(); got < 0.69 || got > 0.71 {
			t.Errorf("confidence = %v, want 0.7", got)
		}
		if st.Output != "aux" {
			t.Errorf("Output = %q, want aux", st.Output)
		}
	})

	t.Run("without store", func(t *testing.T) {
		env := newTestApp(t, nil)
		if facing := env.app.RestoreSettings(); facing != capture.FacingFront {
			t.Errorf("facing = %v, want front", facing)
		}
		if history, err := env.app.LoadHistory(5); err != nil || history != nil {
			t.Errorf("LoadHistory() = %v, %v", history, err)
		}
	})
}

func TestSubscription(t *testing.T) {
	h := newEventHub()
	sub := h.add(1)

	h.publish(renderEvent(1))
	h.publish(renderEvent(2))

	if got := sub.Dropped(); got != 1 {
		t.Errorf("Dropped() = %d, want 1", got)
	}
	if e := <-sub.C; e.FPS != 1 {
		t.Errorf("first event FPS = %v, want 1", e.FPS)
	}

	sub.Close()
	sub.Close()
	if _, ok := <-sub.C; ok {
		t.Error("C should be closed")
	}

	// Publishing after close must not panic.
	h.publish(renderEvent(3))
}

func renderEvent(fps float64) render.Event {
	return render.Event{Decision: coordinator.RanInference, FPS: fps}
}
