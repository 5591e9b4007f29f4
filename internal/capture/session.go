package capture

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"gocv.io/x/gocv"
)

// Facing selects which camera of the device is used.
type Facing int

const (
	FacingFront Facing = 0
	FacingBack  Facing = 1
)

func (f Facing) String() string {
	switch f {
	case FacingFront:
		return "front"
	case FacingBack:
		return "back"
	default:
		return fmt.Sprintf("facing(%d)", int(f))
	}
}

// ParseFacing converts "front"/"back", or "0"/"1", to a Facing.
func ParseFacing(s string) (Facing, error) {
	switch strings.ToLower(s) {
	case "front", "0":
		return FacingFront, nil
	case "back", "1":
		return FacingBack, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownFacing, s)
	}
}

// ErrUnknownFacing is returned when no source is configured for a facing.
var ErrUnknownFacing = errors.New("no camera configured for facing")

// FrameHandler processes a frame in place before it is presented. The frame is
// only valid for the duration of the call.
type FrameHandler func(frame *gocv.Mat)

// Surface displays processed frames.
type Surface interface {
	Name() string
	Present(frame *gocv.Mat) error
}

// SessionConfig holds configuration options for a capture Session.
type SessionConfig struct {
	// Sources maps each facing to a capture source.
	Sources map[Facing]string

	Width  int
	Height int
	FPS    int

	// NewCamera builds the camera for a source. Defaults to NewCamera.
	NewCamera func(config CameraConfig) Camera
}

// Session owns the open camera and the frame loop: each captured frame is
// handed to the frame handler, then presented on the output surface.
type Session struct {
	config  SessionConfig
	handler FrameHandler

	// opMu serializes Open and Close.
	opMu sync.Mutex

	mu     sync.Mutex
	camera Camera
	facing Facing
	stopCh chan struct{}
	doneCh chan struct{}

	surfaceMu sync.RWMutex
	surface   Surface
}

// NewSession creates a Session that runs handler on every frame.
func NewSession(config SessionConfig, handler FrameHandler) *Session {
	if config.NewCamera == nil {
		config.NewCamera = NewCamera
	}
	if config.FPS <= 0 {
		config.FPS = DefaultFPS
	}
	return &Session{
		config:  config,
		handler: handler,
	}
}

// Open starts capturing from the camera with the given facing. An already
// open camera is closed first.
func (s *Session) Open(facing Facing) error {
	source, ok := s.config.Sources[facing]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownFacing, facing)
	}

	s.opMu.Lock()
	defer s.opMu.Unlock()

	s.stop()

	cam := s.config.NewCamera(CameraConfig{
		Source: source,
		Width:  s.config.Width,
		Height: s.config.Height,
		FPS:    s.config.FPS,
	})
	if err := cam.Open(); err != nil {
		return fmt.Errorf("open %s camera %q: %w", facing, source, err)
	}

	stopCh := make(chan struct{})
	doneCh := make(chan struct{})

	s.mu.Lock()
	s.camera = cam
	s.facing = facing
	s.stopCh = stopCh
	s.doneCh = doneCh
	s.mu.Unlock()

	go s.run(cam, stopCh, doneCh)

	slog.Info("camera opened", "facing", facing, "source", source)
	return nil
}

// Close stops the frame loop and releases the camera. Closing a session that
// is not open is a no-op.
func (s *Session) Close() error {
	s.opMu.Lock()
	defer s.opMu.Unlock()
	return s.stop()
}

// stop must be called with opMu held.
func (s *Session) stop() error {
	s.mu.Lock()
	cam, stopCh, doneCh := s.camera, s.stopCh, s.doneCh
	s.camera, s.stopCh, s.doneCh = nil, nil, nil
	s.mu.Unlock()

	if cam == nil {
		return nil
	}

	close(stopCh)
	<-doneCh

	err := cam.Close()
	slog.Info("camera closed")
	return err
}

// IsOpen reports whether a camera is open, and which one.
func (s *Session) IsOpen() (Facing, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.facing, s.camera != nil
}

// SetOutputSurface selects where processed frames are presented. A nil
// surface stops presenting.
func (s *Session) SetOutputSurface(surface Surface) {
	s.surfaceMu.Lock()
	defer s.surfaceMu.Unlock()
	s.surface = surface

	if surface != nil {
		slog.Info("output surface set", "surface", surface.Name())
	}
}

// OutputSurface returns the current surface, or nil.
func (s *Session) OutputSurface() Surface {
	s.surfaceMu.RLock()
	defer s.surfaceMu.RUnlock()
	return s.surface
}

func (s *Session) run(cam Camera, stopCh, doneCh chan struct{}) {
	defer close(doneCh)

	ticker := time.NewTicker(time.Second / time.Duration(s.config.FPS))
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			s.processFrame(cam)
		}
	}
}

func (s *Session) processFrame(cam Camera) {
	frame, err := cam.ReadFrame()
	if err != nil {
		slog.Debug("failed to read frame", "error", err)
		return
	}
	defer frame.Close()

	if s.handler != nil {
		s.handler(frame)
	}

	if surface := s.OutputSurface(); surface != nil {
		if err := surface.Present(frame); err != nil {
			slog.Warn("failed to present frame", "surface", surface.Name(), "error", err)
		}
	}
}
