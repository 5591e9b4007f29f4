package app

import (
	"time"

	"github.com/ayusman/drishti/internal/coordinator"
)

// CameraStatus describes the capture session.
type CameraStatus struct {
	Open   bool   `json:"open"`
	Facing string `json:"facing,omitempty"`
}

// Status is a snapshot of the whole application.
type Status struct {
	Detector coordinator.Status `json:"detector"`
	Camera   CameraStatus       `json:"camera"`
	Output   string             `json:"output"`
	Surfaces []string           `json:"surfaces"`
	Models   int                `json:"models"`
	FPS      float64            `json:"fps"`
	Frames   uint64             `json:"frames"`
	Failed   uint64             `json:"failed_frames"`
	Uptime   string             `json:"uptime"`
}

// Status returns the current application status.
func (a *App) Status() Status {
	facing, open := a.session.IsOpen()
	frames, failed := a.pipeline.Frames()

	a.mu.Lock()
	output := a.output
	a.mu.Unlock()

	s := Status{
		Detector: a.coord.Status(),
		Camera:   CameraStatus{Open: open},
		Output:   output,
		Surfaces: a.surfaces.Names(),
		Models:   a.NumModels(),
		FPS:      a.pipeline.FPS(),
		Frames:   frames,
		Failed:   failed,
		Uptime:   time.Since(a.start).Round(time.Second).String(),
	}
	if open {
		s.Camera.Facing = facing.String()
	}
	return s
}
