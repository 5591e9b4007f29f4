package render

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"gocv.io/x/gocv"

	"github.com/ayusman/drishti/internal/coordinator"
	"github.com/ayusman/drishti/internal/detector"
)

// Annotator produces the detections for a frame. *coordinator.Coordinator
// implements it.
type Annotator interface {
	Detect(frame *gocv.Mat) (coordinator.Result, error)
}

// Detection is an object as reported to observers.
type Detection struct {
	Label int           `json:"label"`
	Name  string        `json:"name"`
	Prob  float32       `json:"prob"`
	Rect  detector.Rect `json:"rect"`
}

// Event describes one rendered frame.
type Event struct {
	ID        uuid.UUID            `json:"id"`
	Timestamp time.Time            `json:"timestamp"`
	Decision  coordinator.Decision `json:"decision"`
	Objects   []Detection          `json:"objects"`
	FPS       float64              `json:"fps"`
}

// Observer receives an Event for every frame that was annotated without
// error. Observers run on the render goroutine and must not block.
type Observer func(Event)

// Pipeline annotates frames in place. OnFrame must only be called from one
// goroutine at a time.
type Pipeline struct {
	annotator Annotator
	now       func() time.Time

	mu        sync.Mutex
	fps       FPSMeter
	observers []Observer
	lastFPS   float64
	frames    uint64
	failures  uint64
}

// NewPipeline creates a Pipeline. A nil clock defaults to time.Now.
func NewPipeline(annotator Annotator, now func() time.Time) *Pipeline {
	if now == nil {
		now = time.Now
	}
	return &Pipeline{
		annotator: annotator,
		now:       now,
	}
}

// AddObserver registers o for every subsequent frame.
func (p *Pipeline) AddObserver(o Observer) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.observers = append(p.observers, o)
}

// OnFrame runs detection, draws the result and the frame rate onto frame.
// A failed inference draws nothing new; the frame rate is drawn regardless.
func (p *Pipeline) OnFrame(frame *gocv.Mat) {
	res, err := p.annotator.Detect(frame)
	switch {
	case err != nil:
		slog.Debug("inference failed, frame left unannotated", "error", err)
	case res.Decision == coordinator.Unsupported:
		DrawUnsupported(frame)
	default:
		DrawObjects(frame, res.Objects)
	}

	now := p.now()

	p.mu.Lock()
	fps, ok := p.fps.Tick(now)
	p.frames++
	if ok {
		p.lastFPS = fps
	}
	if err != nil {
		p.failures++
	}
	observers := p.observers
	p.mu.Unlock()

	if ok {
		DrawFPS(frame, fps)
	}
	if err != nil {
		return
	}

	if len(observers) == 0 {
		return
	}

	event := Event{
		ID:        uuid.New(),
		Timestamp: now,
		Decision:  res.Decision,
		Objects:   toDetections(res.Objects),
		FPS:       fps,
	}
	for _, o := range observers {
		o(event)
	}
}

// Reset clears the frame rate history, e.g. after the camera was reopened.
func (p *Pipeline) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.fps.Reset()
	p.lastFPS = 0
}

// FPS returns the most recent averaged frame rate, 0 until the window filled.
func (p *Pipeline) FPS() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastFPS
}

// Frames returns the number of frames processed and how many failed inference.
func (p *Pipeline) Frames() (total, failed uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.frames, p.failures
}

func toDetections(b detector.Batch) []Detection {
	out := make([]Detection, len(b))
	for i, obj := range b {
		out[i] = Detection{
			Label: obj.Label,
			Name:  detector.LabelName(obj.Label),
			Prob:  obj.Prob,
			Rect:  obj.Rect,
		}
	}
	return out
}
