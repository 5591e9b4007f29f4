package control

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/ayusman/drishti/internal/app"
	"github.com/ayusman/drishti/internal/capture"
	"github.com/ayusman/drishti/internal/coordinator"
	"github.com/ayusman/drishti/internal/detector"
	"github.com/ayusman/drishti/internal/render"
)

type fakeHost struct {
	loadOK   bool
	loadedID int
	backend  detector.Backend
	value    float32
	throttle int
	mode     int
	facing   capture.Facing
	open     bool
	output   string
}

func (f *fakeHost) Status() app.Status {
	return app.Status{
		Detector: coordinator.Status{Loaded: f.loadedID >= 0, ModelID: f.loadedID},
		Camera:   app.CameraStatus{Open: f.open},
		Output:   f.output,
	}
}

func (f *fakeHost) NumModels() int { return 7 }

func (f *fakeHost) LoadModel(modelID int, backend detector.Backend) bool {
	if !f.loadOK {
		return false
	}
	f.loadedID, f.backend = modelID, backend
	return true
}

func (f *fakeHost) SetConfidenceThreshold(v float32) error {
	if v < 0 || v > 1 {
		return fmt.Errorf("%w: %w", coordinator.ErrInvalidConfig, coordinator.ErrInvalidThreshold)
	}
	f.value = v
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
	if !detector.Mode(mode).Valid() {
		return fmt.Errorf("%w: %w", coordinator.ErrInvalidConfig, coordinator.ErrInvalidMode)
	}
	f.mode = mode
	return nil
}

func (f *fakeHost) GetDetectMode() int { return f.mode }

func (f *fakeHost) OpenCamera(facing capture.Facing) bool {
	f.facing, f.open = facing, true
	return true
}

func (f *fakeHost) CloseCamera() bool {
	f.open = false
	return true
}

func (f *fakeHost) SetOutputWindow(name string) bool {
	if name != "main" {
		return false
	}
	f.output = name
	return true
}

func TestHandler_Execute(t *testing.T) {
	tests := []struct {
		name    string
		cmd     Command
		loadOK  bool
		wantErr string
		check   func(t *testing.T, h *fakeHost)
	}{
		{
			name:   "load model",
			cmd:    Command{Command: "load_model", Params: map[string]any{"model_id": 3.0, "backend": "gpu"}},
			loadOK: true,
			check: func(t *testing.T, h *fakeHost) {
				if h.loadedID != 3 || h.backend != detector.BackendGPU {
					t.Errorf("loaded %d on %v, want 3 on gpu", h.loadedID, h.backend)
				}
			},
		},
		{
			name:    "load model out of range",
			cmd:     Command{Command: "load_model", Params: map[string]any{"model_id": 7}},
			loadOK:  true,
			wantErr: "not in [0, 7)",
		},
		{
			name:    "load model missing id",
			cmd:     Command{Command: "load_model"},
			loadOK:  true,
			wantErr: "model_id",
		},
		{
			name:    "load model failure",
			cmd:     Command{Command: "load_model", Params: map[string]any{"model_id": "1"}},
			wantErr: "failed to load",
		},
		{
			name: "threshold",
			cmd:  Command{Command: "set_threshold", Params: map[string]any{"value": "0.25"}},
			check: func(t *testing.T, h *fakeHost) {
				if h.value != 0.25 {
					t.Errorf("value = %v, want 0.25", h.value)
				}
			},
		},
		{
			name:    "threshold rejected",
			cmd:     Command{Command: "set_threshold", Params: map[string]any{"value": 2}},
			wantErr: "invalid",
		},
		{
			name: "throttle",
			cmd:  Command{Command: "set_throttle", Params: map[string]any{"interval_ms": 500.0}},
			check: func(t *testing.T, h *fakeHost) {
				if h.throttle != 500 {
					t.Errorf("throttle = %d, want 500", h.throttle)
				}
			},
		},
		{
			name:    "throttle missing",
			cmd:     Command{Command: "set_throttle", Params: map[string]any{}},
			wantErr: "interval_ms",
		},
		{
			name:    "mode rejected",
			cmd:     Command{Command: "set_mode", Params: map[string]any{"mode": 2}},
			wantErr: "invalid",
		},
		{
			name: "open back camera",
			cmd:  Command{Command: "open_camera", Params: map[string]any{"facing": "back"}},
			check: func(t *testing.T, h *fakeHost) {
				if !h.open || h.facing != capture.FacingBack {
					t.Errorf("open = %v facing = %v, want back", h.open, h.facing)
				}
			},
		},
		{
			name:    "open unknown camera",
			cmd:     Command{Command: "open_camera", Params: map[string]any{"facing": "up"}},
			wantErr: "facing",
		},
		{
			name: "close camera",
			cmd:  Command{Command: "close_camera"},
		},
		{
			name:    "unknown output",
			cmd:     Command{Command: "set_output", Params: map[string]any{"surface": "lobby"}},
			wantErr: "unknown surface",
		},
		{
			name: "status",
			cmd:  Command{Command: "get_status"},
		},
		{
			name:    "unknown command",
			cmd:     Command{Command: "reboot"},
			wantErr: "unknown command: reboot",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			host := &fakeHost{loadOK: tt.loadOK, loadedID: -1}
			h := NewHandler(HandlerConfig{Topic: "drishti/control"}, NewMockClient(), host)

			resp := h.Execute(tt.cmd)
			if resp.CommandAck != tt.cmd.Command {
				t.Errorf("CommandAck = %q, want %q", resp.CommandAck, tt.cmd.Command)
			}

			if tt.wantErr != "" {
				if resp.Status != StatusError {
					t.Fatalf("Status = %q, want error", resp.Status)
				}
				if !strings.Contains(resp.Error, tt.wantErr) {
					t.Errorf("Error = %q, want it to mention %q", resp.Error, tt.wantErr)
				}
				return
			}

			if resp.Status != StatusSuccess {
				t.Fatalf("Status = %q (%s), want success", resp.Status, resp.Error)
			}
			if tt.check != nil {
				tt.check(t, host)
			}
		})
	}
}

func waitForMessages(t *testing.T, c *MockClient, n int) []Message {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if msgs := c.Published(); len(msgs) >= n {
			return msgs
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("expected %d published messages, got %d", n, len(c.Published()))
	return nil
}

func TestHandler_StartRoundTrip(t *testing.T) {
	client := NewMockClient()
	host := &fakeHost{loadedID: -1}
	h := NewHandler(HandlerConfig{Topic: "drishti/control", QoS: 1}, client, host)
	h.now = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := h.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	if !client.Deliver("drishti/control", []byte(`{"command":"set_mode","params":{"mode":1}}`)) {
		t.Fatal("no handler subscribed to the control topic")
	}
	client.Deliver("drishti/control", []byte(`not json`))

	msgs := waitForMessages(t, client, 2)

	for _, m := range msgs {
		if m.Topic != "drishti/control/response" || m.QoS != 1 {
			t.Errorf("published to %q qos %d", m.Topic, m.QoS)
		}
	}

	// The parse error is answered from the subscription callback while the
	// command goes through the queue, so the order is not fixed.
	byAck := make(map[string]Response)
	for _, m := range msgs {
		var r Response
		if err := json.Unmarshal(m.Payload, &r); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		byAck[r.CommandAck] = r
	}
	invalid, modeResp := byAck["unknown"], byAck["set_mode"]
	if invalid.CommandAck != "unknown" || invalid.Error != "invalid JSON" {
		t.Errorf("invalid response = %+v", invalid)
	}
	if modeResp.Status != StatusSuccess || modeResp.Timestamp != "2026-01-02T03:04:05Z" {
		t.Errorf("set_mode response = %+v", modeResp)
	}
	if host.GetDetectMode() != 1 {
		t.Errorf("mode = %d, want 1", host.GetDetectMode())
	}

	if err := h.Stop(); err != nil {
		t.Errorf("Stop() error = %v", err)
	}
	if client.Deliver("drishti/control", []byte(`{}`)) {
		t.Error("handler still subscribed after Stop")
	}
}

func TestEmitter_Publish(t *testing.T) {
	client := NewMockClient()
	e := NewEmitter(EmitterConfig{Topic: "drishti/detections"}, client)

	events := []render.Event{
		{Decision: coordinator.RanInference, Objects: []render.Detection{{Label: 0, Name: "person", Prob: 0.9}}},
		{Decision: coordinator.SkippedReusedCache},
		{Decision: coordinator.SkippedEmpty},
		{Decision: coordinator.Unsupported},
		{Decision: coordinator.RanInference},
	}
	for _, ev := range events {
		if err := e.Publish(ev); err != nil {
			t.Fatalf("Publish() error = %v", err)
		}
	}

	msgs := client.Published()
	if len(msgs) != 2 {
		t.Fatalf("published %d messages, want 2", len(msgs))
	}

	var got render.Event
	if err := json.Unmarshal(msgs[0].Payload, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.Decision != coordinator.RanInference || len(got.Objects) != 1 || got.Objects[0].Name != "person" {
		t.Errorf("payload = %+v", got)
	}

	client.FailPublish(errors.New("broker gone"))
	if err := e.Publish(events[0]); err == nil {
		t.Error("expected publish error")
	}

	if st := e.Stats(); st.Published != 2 || st.Skipped != 3 || st.Errors != 1 {
		t.Errorf("Stats() = %+v", st)
	}
}

func TestEmitter_RunStopsWhenEventsClose(t *testing.T) {
	client := NewMockClient()
	e := NewEmitter(EmitterConfig{Topic: "drishti/detections"}, client)

	events := make(chan render.Event, 2)
	events <- render.Event{Decision: coordinator.RanInference}
	events <- render.Event{Decision: coordinator.SkippedEmpty}
	close(events)

	done := make(chan struct{})
	go func() {
		e.Run(context.Background(), events)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after the channel closed")
	}
	if n := len(client.Published()); n != 1 {
		t.Errorf("published %d messages, want 1", n)
	}
}
