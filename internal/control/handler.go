package control

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/spf13/cast"

	"github.com/ayusman/drishti/internal/app"
	"github.com/ayusman/drishti/internal/capture"
	"github.com/ayusman/drishti/internal/detector"
)

// Command represents a control plane command.
type Command struct {
	Command string         `json:"command"`
	Params  map[string]any `json:"params,omitempty"`
}

// Response represents a command response.
type Response struct {
	CommandAck string `json:"command_ack"`
	Status     string `json:"status"`
	Data       any    `json:"data,omitempty"`
	Error      string `json:"error,omitempty"`
	Timestamp  string `json:"timestamp"`
}

const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Host is the control surface driven by commands. *app.App implements it.
type Host interface {
	Status() app.Status
	NumModels() int
	LoadModel(modelID int, backend detector.Backend) bool
	SetConfidenceThreshold(v float32) error
	SetThrottleInterval(ms int) error
	GetThrottleInterval() int
	SetDetectMode(mode int) error
	GetDetectMode() int
	OpenCamera(facing capture.Facing) bool
	CloseCamera() bool
	SetOutputWindow(name string) bool
}

// HandlerConfig contains the control topic settings.
type HandlerConfig struct {
	Topic string
	QoS   byte
}

// Handler handles control plane commands.
type Handler struct {
	cfg      HandlerConfig
	client   Client
	host     Host
	commands chan Command
	now      func() time.Time
}

// NewHandler creates a new control plane handler.
func NewHandler(cfg HandlerConfig, client Client, host Host) *Handler {
	return &Handler{
		cfg:      cfg,
		client:   client,
		host:     host,
		commands: make(chan Command, 10),
		now:      time.Now,
	}
}

// ResponseTopic returns the topic responses are published on.
func (h *Handler) ResponseTopic() string {
	return h.cfg.Topic + "/response"
}

// Start subscribes to the control topic and processes commands until ctx is
// done or Stop is called.
func (h *Handler) Start(ctx context.Context) error {
	slog.Info("subscribing to control plane", "topic", h.cfg.Topic, "qos", h.cfg.QoS)

	token := h.client.Subscribe(h.cfg.Topic, h.cfg.QoS, h.messageHandler)
	if !token.WaitTimeout(connectTimeout) {
		return fmt.Errorf("control plane subscription timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("control plane subscription failed: %w", err)
	}

	go h.processCommands(ctx)

	slog.Info("control plane handler started")
	return nil
}

// Stop unsubscribes from the control topic.
func (h *Handler) Stop() error {
	if h.client.IsConnected() {
		token := h.client.Unsubscribe(h.cfg.Topic)
		token.WaitTimeout(connectTimeout)
	}
	close(h.commands)

	slog.Info("control plane handler stopped")
	return nil
}

// messageHandler is called by the MQTT client for every control message.
func (h *Handler) messageHandler(client mqtt.Client, msg mqtt.Message) {
	cmd, ok := h.parse(msg.Payload())
	if !ok {
		return
	}

	select {
	case h.commands <- cmd:
	default:
		slog.Warn("command queue full, dropping command", "command", cmd.Command)
	}
}

func (h *Handler) parse(payload []byte) (Command, bool) {
	var cmd Command
	if err := json.Unmarshal(payload, &cmd); err != nil {
		slog.Error("failed to parse control command", "error", err)
		h.sendResponse(Response{CommandAck: "unknown", Status: StatusError, Error: "invalid JSON"})
		return Command{}, false
	}
	slog.Info("control command received", "command", cmd.Command)
	return cmd, true
}

func (h *Handler) processCommands(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case cmd, ok := <-h.commands:
			if !ok {
				return
			}
			h.sendResponse(h.Execute(cmd))
		}
	}
}

// Execute runs cmd against the host and returns the response to publish.
func (h *Handler) Execute(cmd Command) Response {
	resp := Response{CommandAck: cmd.Command, Status: StatusSuccess}

	fail := func(format string, args ...any) Response {
		resp.Status = StatusError
		resp.Error = fmt.Sprintf(format, args...)
		return resp
	}

	switch cmd.Command {
	case "get_status":
		resp.Data = h.host.Status()

	case "load_model":
		raw, ok := cmd.Params["model_id"]
		if !ok {
			return fail("missing 'model_id' parameter")
		}
		modelID, err := cast.ToIntE(raw)
		if err != nil {
			return fail("invalid 'model_id' parameter (expected integer)")
		}
		if modelID < 0 || modelID >= h.host.NumModels() {
			return fail("model_id %d is not in [0, %d)", modelID, h.host.NumModels())
		}
		backend := detector.BackendCPU
		if raw, ok := cmd.Params["backend"]; ok {
			if backend, err = detector.ParseBackend(cast.ToString(raw)); err != nil {
				return fail("%v", err)
			}
		}
		if !h.host.LoadModel(modelID, backend) {
			return fail("failed to load model %d on %s", modelID, backend)
		}
		resp.Data = map[string]any{
			"model_id": modelID,
			"backend":  backend.String(),
			"loaded":   h.host.Status().Detector.Loaded,
		}

	case "set_threshold":
		v, err := cast.ToFloat32E(cmd.Params["value"])
		if err != nil || cmd.Params["value"] == nil {
			return fail("missing or invalid 'value' parameter (expected float)")
		}
		if err := h.host.SetConfidenceThreshold(v); err != nil {
			return fail("%v", err)
		}
		resp.Data = map[string]any{"value": v}

	case "set_throttle":
		ms, err := cast.ToIntE(cmd.Params["interval_ms"])
		if err != nil || cmd.Params["interval_ms"] == nil {
			return fail("missing or invalid 'interval_ms' parameter (expected integer)")
		}
		if err := h.host.SetThrottleInterval(ms); err != nil {
			return fail("%v", err)
		}
		resp.Data = map[string]any{"interval_ms": ms, "effective_ms": h.host.GetThrottleInterval()}

	case "set_mode":
		mode, err := cast.ToIntE(cmd.Params["mode"])
		if err != nil || cmd.Params["mode"] == nil {
			return fail("missing or invalid 'mode' parameter (expected 0 or 1)")
		}
		if err := h.host.SetDetectMode(mode); err != nil {
			return fail("%v", err)
		}
		resp.Data = map[string]any{"mode": mode, "effective": h.host.GetDetectMode()}

	case "open_camera":
		facing := capture.FacingFront
		if raw, ok := cmd.Params["facing"]; ok {
			f, err := capture.ParseFacing(cast.ToString(raw))
			if err != nil {
				return fail("%v", err)
			}
			facing = f
		}
		if !h.host.OpenCamera(facing) {
			return fail("failed to open %s camera", facing)
		}
		resp.Data = map[string]any{"open": true, "facing": facing.String()}

	case "close_camera":
		if !h.host.CloseCamera() {
			return fail("failed to close camera")
		}
		resp.Data = map[string]any{"open": false}

	case "set_output":
		name := cast.ToString(cmd.Params["surface"])
		if name == "" {
			return fail("missing 'surface' parameter")
		}
		if !h.host.SetOutputWindow(name) {
			return fail("unknown surface: %s", name)
		}
		resp.Data = map[string]any{"surface": name}

	default:
		return fail("unknown command: %s", cmd.Command)
	}

	return resp
}

// sendResponse publishes resp on the response topic.
func (h *Handler) sendResponse(resp Response) {
	resp.Timestamp = h.now().UTC().Format(time.RFC3339Nano)

	payload, err := json.Marshal(resp)
	if err != nil {
		slog.Error("failed to marshal response", "error", err)
		return
	}

	if err := publish(h.client, h.ResponseTopic(), h.cfg.QoS, payload); err != nil {
		slog.Error("failed to publish response", "error", err)
		return
	}

	slog.Debug("response sent", "command_ack", resp.CommandAck, "status", resp.Status)
}
