package config

import (
	"fmt"

	"github.com/ayusman/drishti/internal/detector"
)

// Validate checks if the configuration is valid and fills derived defaults.
func Validate(cfg *Config) error {
	if cfg.Server.Addr == "" {
		return fmt.Errorf("server.addr is required")
	}
	if cfg.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}

	// Camera
	if cfg.Camera.Front == "" && cfg.Camera.Back == "" {
		return fmt.Errorf("camera: at least one of front or back is required")
	}
	if cfg.Camera.FPS <= 0 {
		return fmt.Errorf("camera.fps must be > 0")
	}

	// Detector
	d := cfg.Detector
	if d.Confidence < 0 || d.Confidence > 1 {
		return fmt.Errorf("detector.confidence must be within [0, 1]")
	}
	if d.NMS < 0 || d.NMS > 1 {
		return fmt.Errorf("detector.nms must be within [0, 1]")
	}
	if d.ThrottleMs < 0 {
		return fmt.Errorf("detector.throttle_ms must be >= 0")
	}
	if !detector.Mode(d.Mode).Valid() {
		return fmt.Errorf("detector.mode must be 0 (human only) or 1 (human and vehicle)")
	}
	if _, err := detector.ParseBackend(d.Backend); err != nil {
		return fmt.Errorf("detector.backend: %w", err)
	}

	if err := ValidateModels(cfg.Models); err != nil {
		return fmt.Errorf("models: %w", err)
	}
	if d.Model < 0 || d.Model >= len(cfg.Models) {
		return fmt.Errorf("detector.model %d is not in the model table", d.Model)
	}

	// Outputs
	if len(cfg.Outputs) == 0 {
		return fmt.Errorf("outputs: at least one surface is required")
	}
	seen := make(map[string]bool)
	for i, o := range cfg.Outputs {
		if o.Name == "" {
			return fmt.Errorf("outputs[%d]: name is required", i)
		}
		if seen[o.Name] {
			return fmt.Errorf("outputs: duplicate surface %q", o.Name)
		}
		seen[o.Name] = true
		if o.Quality < 0 || o.Quality > 100 {
			return fmt.Errorf("outputs[%d]: quality must be within [0, 100]", i)
		}
	}

	// MQTT is optional; fill topics only when enabled
	if cfg.MQTT.Broker != "" {
		if cfg.MQTT.ClientID == "" {
			cfg.MQTT.ClientID = defaultClientID()
		}
		if cfg.MQTT.Topics.Control == "" {
			cfg.MQTT.Topics.Control = "drishti/control"
		}
		if cfg.MQTT.Topics.Detections == "" {
			cfg.MQTT.Topics.Detections = "drishti/detections"
		}
		if cfg.MQTT.QoS > 2 {
			return fmt.Errorf("mqtt.qos must be 0, 1 or 2")
		}
	}

	return nil
}

// ValidateModels checks every entry of the model table.
func ValidateModels(models []detector.ModelSpec) error {
	if len(models) == 0 {
		return fmt.Errorf("at least one model is required")
	}

	for i, m := range models {
		if m.Name == "" {
			return fmt.Errorf("model %d: name is required", i)
		}
		if m.Path == "" {
			return fmt.Errorf("model %d (%s): path is required", i, m.Name)
		}
		switch m.Kind {
		case detector.KindONNX, detector.KindWorker:
		case "":
			models[i].Kind = detector.KindONNX
		default:
			return fmt.Errorf("model %d (%s): unknown kind %q", i, m.Name, m.Kind)
		}
		if m.TargetSize <= 0 || m.TargetSize%32 != 0 {
			return fmt.Errorf("model %d (%s): target_size must be a positive multiple of 32", i, m.Name)
		}
	}

	return nil
}
