// Package display provides named output surfaces that publish processed
// frames as MJPEG streams.
package display

import (
	"errors"
	"fmt"
	"net/http"
	"sort"
	"sync"

	"github.com/hybridgroup/mjpeg"
	"gocv.io/x/gocv"
)

// DefaultQuality is the JPEG quality used when none is configured.
const DefaultQuality = 80

// ErrEmptyFrame is returned when an empty frame is presented.
var ErrEmptyFrame = errors.New("empty frame")

// SurfaceConfig describes one output surface.
type SurfaceConfig struct {
	Name    string `yaml:"name"`
	Quality int    `yaml:"quality"`
}

// MJPEGSurface encodes presented frames as JPEG and pushes them to every
// connected MJPEG client.
type MJPEGSurface struct {
	name    string
	quality int
	stream  *mjpeg.Stream

	mu     sync.Mutex
	last   []byte
	frames uint64
}

// NewMJPEGSurface creates a surface with the given name and JPEG quality.
func NewMJPEGSurface(name string, quality int) *MJPEGSurface {
	if quality <= 0 || quality > 100 {
		quality = DefaultQuality
	}
	return &MJPEGSurface{
		name:    name,
		quality: quality,
		stream:  mjpeg.NewStream(),
	}
}

// Name returns the surface name.
func (s *MJPEGSurface) Name() string {
	return s.name
}

// Present encodes frame and publishes it.
func (s *MJPEGSurface) Present(frame *gocv.Mat) error {
	if frame == nil || frame.Empty() {
		return ErrEmptyFrame
	}

	buf, err := gocv.IMEncodeWithParams(gocv.JPEGFileExt, *frame, []int{gocv.IMWriteJpegQuality, s.quality})
	if err != nil {
		return fmt.Errorf("encode frame: %w", err)
	}
	defer buf.Close()

	jpeg := append([]byte(nil), buf.GetBytes()...)
	s.stream.UpdateJPEG(jpeg)

	s.mu.Lock()
	s.last = jpeg
	s.frames++
	s.mu.Unlock()

	return nil
}

// Snapshot returns the last published JPEG, or nil before the first frame.
func (s *MJPEGSurface) Snapshot() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

// Frames returns how many frames were published.
func (s *MJPEGSurface) Frames() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frames
}

// ServeHTTP streams published frames as multipart MJPEG.
func (s *MJPEGSurface) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.stream.ServeHTTP(w, r)
}

// Registry holds the configured surfaces by name.
type Registry struct {
	mu       sync.RWMutex
	surfaces map[string]*MJPEGSurface
}

// NewRegistry creates a surface for every config entry.
func NewRegistry(configs []SurfaceConfig) *Registry {
	r := &Registry{surfaces: make(map[string]*MJPEGSurface)}
	for _, c := range configs {
		r.Add(NewMJPEGSurface(c.Name, c.Quality))
	}
	return r
}

// Add registers s, replacing any surface with the same name.
func (r *Registry) Add(s *MJPEGSurface) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.surfaces[s.Name()] = s
}

// Get returns the surface called name.
func (r *Registry) Get(name string) (*MJPEGSurface, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.surfaces[name]
	return s, ok
}

// Names returns the registered names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.surfaces))
	for name := range r.surfaces {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
