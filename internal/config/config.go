// Package config loads the drishti YAML configuration.
package config

import (
	"fmt"
	"os"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/ayusman/drishti/internal/capture"
	"github.com/ayusman/drishti/internal/detector"
	"github.com/ayusman/drishti/internal/display"
)

// Config represents the complete application configuration.
type Config struct {
	Server   ServerConfig            `yaml:"server"`
	Database DatabaseConfig          `yaml:"database"`
	Camera   CameraConfig            `yaml:"camera"`
	Detector DetectorConfig          `yaml:"detector"`
	Models   []detector.ModelSpec    `yaml:"models"`
	Outputs  []display.SurfaceConfig `yaml:"outputs"`
	MQTT     MQTTConfig              `yaml:"mqtt"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Addr      string `yaml:"addr"`
	StaticDir string `yaml:"static_dir"`
}

// DatabaseConfig contains settings storage.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// CameraConfig maps facings to capture sources.
type CameraConfig struct {
	Front  string `yaml:"front"` // device index or stream URL
	Back   string `yaml:"back"`
	Width  int    `yaml:"width"`
	Height int    `yaml:"height"`
	FPS    int    `yaml:"fps"`
}

// DetectorConfig contains the initial detection settings. Values persisted at
// runtime take precedence once they exist.
type DetectorConfig struct {
	Model        int     `yaml:"model"`
	Backend      string  `yaml:"backend"` // cpu, gpu
	AutoLoad     bool    `yaml:"auto_load"`
	Confidence   float32 `yaml:"confidence"`
	NMS          float32 `yaml:"nms"`
	ThrottleMs   int     `yaml:"throttle_ms"`
	Mode         int     `yaml:"mode"` // 0 human only, 1 human and vehicle
	ONNXLibrary  string  `yaml:"onnx_library"`
	WorkerPython string  `yaml:"worker_python"`
	WorkerScript string  `yaml:"worker_script"`
}

// MQTTConfig contains MQTT broker settings. An empty broker disables MQTT.
type MQTTConfig struct {
	Broker   string     `yaml:"broker"`
	ClientID string     `yaml:"client_id"`
	QoS      byte       `yaml:"qos"`
	Topics   MQTTTopics `yaml:"topics"`
}

// MQTTTopics contains topic names.
type MQTTTopics struct {
	Control    string `yaml:"control"`
	Detections string `yaml:"detections"`
}

// Default returns the built-in configuration.
func Default() *Config {
	loader := detector.DefaultConfig()
	return &Config{
		Server: ServerConfig{
			Addr:      "127.0.0.1:8080",
			StaticDir: "web",
		},
		Database: DatabaseConfig{
			Path: "drishti.db",
		},
		Camera: CameraConfig{
			Front:  "0",
			Back:   "1",
			Width:  capture.DefaultWidth,
			Height: capture.DefaultHeight,
			FPS:    capture.DefaultFPS,
		},
		Detector: DetectorConfig{
			Model:        0,
			Backend:      "cpu",
			AutoLoad:     true,
			Confidence:   0.40,
			NMS:          0.45,
			ThrottleMs:   0,
			Mode:         int(detector.ModeHumanOnly),
			WorkerPython: loader.WorkerPython,
			WorkerScript: loader.WorkerScript,
		},
		Models: loader.Models,
		Outputs: []display.SurfaceConfig{
			{Name: "main", Quality: display.DefaultQuality},
		},
	}
}

// Load reads and parses a YAML configuration file. Fields missing from the
// file keep their default values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// LoaderConfig returns the model loader configuration.
func (c *Config) LoaderConfig() detector.Config {
	return detector.Config{
		Models:       c.Models,
		ONNXLibrary:  c.Detector.ONNXLibrary,
		WorkerPython: c.Detector.WorkerPython,
		WorkerScript: c.Detector.WorkerScript,
	}
}

// SessionConfig returns the capture session configuration. Facings without a
// source are left out.
func (c *Config) SessionConfig() capture.SessionConfig {
	sources := make(map[capture.Facing]string)
	if c.Camera.Front != "" {
		sources[capture.FacingFront] = c.Camera.Front
	}
	if c.Camera.Back != "" {
		sources[capture.FacingBack] = c.Camera.Back
	}
	return capture.SessionConfig{
		Sources: sources,
		Width:   c.Camera.Width,
		Height:  c.Camera.Height,
		FPS:     c.Camera.FPS,
	}
}

func defaultClientID() string {
	return "drishti-" + uuid.New().String()[:8]
}
