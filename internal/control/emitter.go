package control

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/ayusman/drishti/internal/coordinator"
	"github.com/ayusman/drishti/internal/render"
)

// EmitterConfig contains the detections topic settings.
type EmitterConfig struct {
	Topic string
	QoS   byte
}

// Emitter publishes the objects of every frame the detector ran on. Frames
// served from the cache repeat the previous result and are not published.
type Emitter struct {
	cfg    EmitterConfig
	client Publisher

	mu        sync.RWMutex
	published uint64
	skipped   uint64
	errors    uint64
}

// NewEmitter creates an Emitter publishing through client, usually an
// mqtt.Client.
func NewEmitter(cfg EmitterConfig, client Publisher) *Emitter {
	return &Emitter{cfg: cfg, client: client}
}

// Run publishes events until events is closed or ctx is done.
func (e *Emitter) Run(ctx context.Context, events <-chan render.Event) {
	slog.Info("detection emitter started", "topic", e.cfg.Topic)
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if err := e.Publish(ev); err != nil {
				slog.Warn("failed to publish detections", "error", err)
			}
		}
	}
}

// Publish sends ev if the detector ran on its frame.
func (e *Emitter) Publish(ev render.Event) error {
	if ev.Decision != coordinator.RanInference {
		e.mu.Lock()
		e.skipped++
		e.mu.Unlock()
		return nil
	}

	payload, err := json.Marshal(ev)
	if err != nil {
		e.countError()
		return err
	}

	if err := publish(e.client, e.cfg.Topic, e.cfg.QoS, payload); err != nil {
		e.countError()
		return err
	}

	e.mu.Lock()
	e.published++
	e.mu.Unlock()

	slog.Debug("detections published", "topic", e.cfg.Topic, "objects", len(ev.Objects), "size", len(payload))
	return nil
}

func (e *Emitter) countError() {
	e.mu.Lock()
	e.errors++
	e.mu.Unlock()
}

// EmitterStats contains emitter statistics.
type EmitterStats struct {
	Published uint64 `json:"published"`
	Skipped   uint64 `json:"skipped"`
	Errors    uint64 `json:"errors"`
}

// Stats returns emitter statistics.
func (e *Emitter) Stats() EmitterStats {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return EmitterStats{Published: e.published, Skipped: e.skipped, Errors: e.errors}
}
