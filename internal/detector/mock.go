package detector

import (
	"sync"

	"gocv.io/x/gocv"
)

// MockDetector is a test implementation of the Detector interface.
// It allows tests to control the detection results and observe calls.
type MockDetector struct {
	mu     sync.Mutex
	batch  Batch
	err    error
	calls  int
	closed int
	next   func(call int) (Batch, error)
}

// NewMockDetector creates a new MockDetector instance.
func NewMockDetector() *MockDetector {
	return &MockDetector{}
}

// SetBatch sets the batch that will be returned by Detect.
func (m *MockDetector) SetBatch(b Batch) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.batch = b.Clone()
}

// SetError sets the error that will be returned by Detect.
func (m *MockDetector) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// SetFunc makes Detect return whatever fn returns for the 1-based call number.
func (m *MockDetector) SetFunc(fn func(call int) (Batch, error)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.next = fn
}

// Detect returns the pre-configured batch or error.
func (m *MockDetector) Detect(frame *gocv.Mat, confidence, nms float32) (Batch, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls++
	if m.next != nil {
		return m.next(m.calls)
	}
	if m.err != nil {
		return nil, &InferError{Err: m.err}
	}
	return m.batch.Clone(), nil
}

// Close records the close.
func (m *MockDetector) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed++
	return nil
}

// Calls returns how many times Detect was invoked.
func (m *MockDetector) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Closed returns how many times Close was invoked.
func (m *MockDetector) Closed() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// MockLoader is a test implementation of the model loader.
type MockLoader struct {
	mu           sync.Mutex
	models       int
	gpuAvailable bool
	failures     map[int]error
	loaded       []*MockDetector
	batch        Batch
}

// NewMockLoader creates a loader with the given number of models and a working GPU.
func NewMockLoader(models int) *MockLoader {
	return &MockLoader{
		models:       models,
		gpuAvailable: true,
		failures:     make(map[int]error),
	}
}

// SetGPUAvailable controls whether GPU loads succeed.
func (l *MockLoader) SetGPUAvailable(ok bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.gpuAvailable = ok
}

// FailModel makes every load of modelID fail with err.
func (l *MockLoader) FailModel(modelID int, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.failures[modelID] = err
}

// SetBatch sets the batch returned by detectors created after this call.
func (l *MockLoader) SetBatch(b Batch) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.batch = b.Clone()
}

// NumModels returns the configured model count.
func (l *MockLoader) NumModels() int {
	return l.models
}

// Load returns a new MockDetector or the configured failure.
func (l *MockLoader) Load(modelID int, backend Backend) (Detector, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if modelID < 0 || modelID >= l.models {
		return nil, &LoadError{ModelID: modelID, Backend: backend, Err: ErrUnknownModel}
	}
	if err, ok := l.failures[modelID]; ok {
		return nil, &LoadError{ModelID: modelID, Backend: backend, Err: err}
	}
	if backend == BackendGPU && !l.gpuAvailable {
		return nil, &LoadError{ModelID: modelID, Backend: backend, Err: ErrGPUUnavailable}
	}

	d := NewMockDetector()
	d.SetBatch(l.batch)
	l.loaded = append(l.loaded, d)
	return d, nil
}

// Loaded returns every detector handed out so far, oldest first.
func (l *MockLoader) Loaded() []*MockDetector {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]*MockDetector, len(l.loaded))
	copy(out, l.loaded)
	return out
}

// Last returns the most recently created detector, or nil.
func (l *MockLoader) Last() *MockDetector {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.loaded) == 0 {
		return nil
	}
	return l.loaded[len(l.loaded)-1]
}

// PersonBatch returns a batch with one person and one car.
func PersonBatch() Batch {
	return Batch{
		{Rect: Rect{X: 40, Y: 30, Width: 120, Height: 260}, Label: ClassPerson, Prob: 0.91},
		{Rect: Rect{X: 300, Y: 200, Width: 180, Height: 90}, Label: ClassCar, Prob: 0.77},
	}
}
