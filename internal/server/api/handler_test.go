package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/mux"

	"github.com/ayusman/drishti/internal/app"
	"github.com/ayusman/drishti/internal/capture"
	"github.com/ayusman/drishti/internal/coordinator"
	"github.com/ayusman/drishti/internal/detector"
	"github.com/ayusman/drishti/internal/store"
)

// fakeHost records the calls made by the handlers.
type fakeHost struct {
	loadOK     bool
	openOK     bool
	surfaces   map[string]bool
	loadedID   int
	loadedOn   detector.Backend
	confidence float32
	throttle   int
	mode       int
	facing     capture.Facing
	output     string
	history    []store.LoadEvent
}

func newFakeHost() *fakeHost {
	return &fakeHost{
		loadOK:   true,
		openOK:   true,
		surfaces: map[string]bool{"main": true},
		loadedID: -1,
	}
}

func (f *fakeHost) Status() app.Status {
	return app.Status{
		Detector: coordinator.Status{Loaded: f.loadedID >= 0, ModelID: f.loadedID},
		Output:   f.output,
		Models:   f.NumModels(),
	}
}

func (f *fakeHost) NumModels() int { return 7 }

func (f *fakeHost) LoadModel(modelID int, backend detector.Backend) bool {
	if !f.loadOK {
		return false
	}
	f.loadedID, f.loadedOn = modelID, backend
	return true
}

func (f *fakeHost) LoadHistory(limit int) ([]store.LoadEvent, error) {
	if limit < len(f.history) {
		return f.history[:limit], nil
	}
	return f.history, nil
}

func (f *fakeHost) SetConfidenceThreshold(v float32) error {
	if v < 0 || v > 1 {
		return fmt.Errorf("%w: %w", coordinator.ErrInvalidConfig, coordinator.ErrInvalidThreshold)
	}
	f.confidence = v
	return nil
}

func (f *fakeHost) SetThrottleInterval(ms int) error {
	if ms < 0 {
		return fmt.Errorf("%w: %w", coordinator.ErrInvalidConfig, coordinator.ErrInvalidInterval)
	}
	f.throttle = ms
	return nil
}

func (f *fakeHost) GetThrottleInterval() int { return f.throttle }

func (f *fakeHost) SetDetectMode(mode int) error {
	if mode != 0 && mode != 1 {
		return fmt.Errorf("%w: %w", coordinator.ErrInvalidConfig, coordinator.ErrInvalidMode)
	}
	f.mode = mode
	return nil
}

func (f *fakeHost) GetDetectMode() int { return f.mode }

func (f *fakeHost) OpenCamera(facing capture.Facing) bool {
	f.facing = facing
	return f.openOK
}

func (f *fakeHost) CloseCamera() bool { return true }

func (f *fakeHost) SetOutputWindow(name string) bool {
	if !f.surfaces[name] {
		return false
	}
	f.output = name
	return true
}

func newTestRouter(host Host) *mux.Router {
	r := mux.NewRouter()
	NewHandler(host).Register(r)
	return r
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHandler_LoadModel(t *testing.T) {
	tests := []struct {
		name        string
		body        string
		loadFails   bool
		wantStatus  int
		wantID      int
		wantBackend detector.Backend
	}{
		{"numeric backend", `{"model_id": 2, "backend": 1}`, false, http.StatusOK, 2, detector.BackendGPU},
		{"named backend", `{"model_id": "3", "backend": "cpu"}`, false, http.StatusOK, 3, detector.BackendCPU},
		{"default backend", `{"model_id": 0}`, false, http.StatusOK, 0, detector.BackendCPU},
		{"missing model", `{"backend": "gpu"}`, false, http.StatusBadRequest, -1, 0},
		{"model out of range", `{"model_id": 7}`, false, http.StatusBadRequest, -1, 0},
		{"negative model", `{"model_id": -1}`, false, http.StatusBadRequest, -1, 0},
		{"unknown backend", `{"model_id": 1, "backend": 2}`, false, http.StatusBadRequest, -1, 0},
		{"malformed body", `{"model_id":`, false, http.StatusBadRequest, -1, 0},
		{"load fails", `{"model_id": 1}`, true, http.StatusUnprocessableEntity, -1, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			host := newFakeHost()
			host.loadOK = !tt.loadFails

			rec := do(t, newTestRouter(host), http.MethodPost, "/api/model", tt.body)
			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d (body %s)", rec.Code, tt.wantStatus, rec.Body)
			}
			if host.loadedID != tt.wantID {
				t.Errorf("loaded model = %d, want %d", host.loadedID, tt.wantID)
			}
			if tt.wantID >= 0 && host.loadedOn != tt.wantBackend {
				t.Errorf("backend = %v, want %v", host.loadedOn, tt.wantBackend)
			}

			if rec.Code != http.StatusOK {
				var resp errorResponse
				if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil || resp.Error == "" {
					t.Errorf("expected JSON error body, got %q", rec.Body.String())
				}
			}
		})
	}
}

func TestHandler_LoadHistory(t *testing.T) {
	host := newFakeHost()
	host.history = []store.LoadEvent{
		{ModelID: 1, Outcome: store.LoadOutcomeLoaded},
		{ModelID: 9, Outcome: store.LoadOutcomeRejected},
	}
	r := newTestRouter(host)

	rec := do(t, r, http.MethodGet, "/api/model/history?limit=1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp struct {
		Loads []store.LoadEvent `json:"loads"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Loads) != 1 || resp.Loads[0].ModelID != 1 {
		t.Errorf("loads = %+v", resp.Loads)
	}

	if rec := do(t, r, http.MethodGet, "/api/model/history?limit=zero", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("bad limit status = %d, want 400", rec.Code)
	}
}

func TestHandler_Settings(t *testing.T) {
	tests := []struct {
		name       string
		method     string
		path       string
		body       string
		wantStatus int
	}{
		{"threshold", http.MethodPut, "/api/threshold", `{"value": 0.55}`, http.StatusOK},
		{"threshold as string", http.MethodPut, "/api/threshold", `{"value": "0.3"}`, http.StatusOK},
		{"threshold out of range", http.MethodPut, "/api/threshold", `{"value": 1.5}`, http.StatusBadRequest},
		{"threshold missing", http.MethodPut, "/api/threshold", `{}`, http.StatusBadRequest},
		{"throttle", http.MethodPut, "/api/throttle", `{"interval_ms": 500}`, http.StatusOK},
		{"negative throttle", http.MethodPut, "/api/throttle", `{"interval_ms": -5}`, http.StatusBadRequest},
		{"throttle not a number", http.MethodPut, "/api/throttle", `{"interval_ms": "soon"}`, http.StatusBadRequest},
		{"mode", http.MethodPut, "/api/mode", `{"mode": 1}`, http.StatusOK},
		{"unknown mode", http.MethodPut, "/api/mode", `{"mode": 4}`, http.StatusBadRequest},
		{"output", http.MethodPut, "/api/output", `{"surface": "main"}`, http.StatusOK},
		{"unknown output", http.MethodPut, "/api/output", `{"surface": "hall"}`, http.StatusBadRequest},
		{"wrong method", http.MethodPost, "/api/threshold", `{"value": 0.5}`, http.StatusMethodNotAllowed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, newTestRouter(newFakeHost()), tt.method, tt.path, tt.body)
			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d (body %s)", rec.Code, tt.wantStatus, rec.Body)
			}
		})
	}
}

func TestHandler_GetThrottleAndMode(t *testing.T) {
	host := newFakeHost()
	r := newTestRouter(host)

	do(t, r, http.MethodPut, "/api/throttle", `{"interval_ms": 250}`)
	do(t, r, http.MethodPut, "/api/mode", `{"mode": 1}`)

	var throttle throttleResponse
	rec := do(t, r, http.MethodGet, "/api/throttle", "")
	if err := json.NewDecoder(rec.Body).Decode(&throttle); err != nil || throttle.IntervalMs != 250 {
		t.Errorf("GET /api/throttle = %+v, %v", throttle, err)
	}

	var mode modeResponse
	rec = do(t, r, http.MethodGet, "/api/mode", "")
	if err := json.NewDecoder(rec.Body).Decode(&mode); err != nil || mode.Mode != 1 {
		t.Errorf("GET /api/mode = %+v, %v", mode, err)
	}
}

func TestHandler_Camera(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		openFails  bool
		wantStatus int
		wantFacing capture.Facing
	}{
		{"default facing", "", false, http.StatusOK, capture.FacingFront},
		{"back by name", `{"facing": "back"}`, false, http.StatusOK, capture.FacingBack},
		{"back by number", `{"facing": 1}`, false, http.StatusOK, capture.FacingBack},
		{"unknown facing", `{"facing": "side"}`, false, http.StatusBadRequest, capture.FacingFront},
		{"device failure", `{"facing": 0}`, true, http.StatusUnprocessableEntity, capture.FacingFront},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			host := newFakeHost()
			host.openOK = !tt.openFails

			rec := do(t, newTestRouter(host), http.MethodPost, "/api/camera/open", tt.body)
			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d (body %s)", rec.Code, tt.wantStatus, rec.Body)
			}
			if host.facing != tt.wantFacing {
				t.Errorf("facing = %v, want %v", host.facing, tt.wantFacing)
			}
		})
	}

	rec := do(t, newTestRouter(newFakeHost()), http.MethodPost, "/api/camera/close", "")
	if rec.Code != http.StatusOK {
		t.Errorf("close status = %d, want 200", rec.Code)
	}
}

func TestHandler_Status(t *testing.T) {
	host := newFakeHost()
	host.LoadModel(4, detector.BackendCPU)

	rec := do(t, newTestRouter(host), http.MethodGet, "/api/status", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}

	var st app.Status
	if err := json.NewDecoder(rec.Body).Decode(&st); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !st.Detector.Loaded || st.Detector.ModelID != 4 || st.Models != 7 {
		t.Errorf("status = %+v", st)
	}
}

func TestWriteSetterError(t *testing.T) {
	rec := httptest.NewRecorder()
	writeSetterError(rec, errors.New("disk full"))
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
}
