package detector

import (
	"fmt"
	"image"
	"image/color"
	"runtime"
	"sync"

	"github.com/disintegration/imaging"
	ort "github.com/yalue/onnxruntime_go"
	"gocv.io/x/gocv"
)

var (
	ortOnce sync.Once
	ortErr  error
)

// initRuntime initializes the ONNX Runtime environment once per process.
func initRuntime(libPath string) error {
	ortOnce.Do(func() {
		if libPath != "" {
			ort.SetSharedLibraryPath(libPath)
		}
		ortErr = ort.InitializeEnvironment()
	})
	return ortErr
}

// probeCUDA returns ErrGPUUnavailable when the CUDA execution provider cannot
// be attached to a session.
func probeCUDA(libPath string) error {
	if err := initRuntime(libPath); err != nil {
		return fmt.Errorf("%w: %v", ErrGPUUnavailable, err)
	}

	options, err := ort.NewSessionOptions()
	if err != nil {
		return fmt.Errorf("create session options: %w", err)
	}
	defer options.Destroy()

	cuda, err := ort.NewCUDAProviderOptions()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrGPUUnavailable, err)
	}
	defer cuda.Destroy()

	if err := options.AppendExecutionProviderCUDA(cuda); err != nil {
		return fmt.Errorf("%w: %v", ErrGPUUnavailable, err)
	}
	return nil
}

// ONNXDetector implements Detector for YOLOv8 models exported to ONNX.
type ONNXDetector struct {
	spec    ModelSpec
	session *ort.AdvancedSession
	input   *ort.Tensor[float32]
	output  *ort.Tensor[float32]
	size    int
	classes int
	anchors int
	mu      sync.Mutex
}

// NewONNXDetector creates a session for spec on the requested backend.
// Requesting the GPU backend on a machine without CUDA returns ErrGPUUnavailable.
func NewONNXDetector(spec ModelSpec, backend Backend, libPath string) (*ONNXDetector, error) {
	if err := initRuntime(libPath); err != nil {
		return nil, fmt.Errorf("initialize onnx runtime: %w", err)
	}

	options, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("create session options: %w", err)
	}
	defer options.Destroy()

	if backend == BackendGPU {
		cuda, err := ort.NewCUDAProviderOptions()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrGPUUnavailable, err)
		}
		defer cuda.Destroy()
		if err := options.AppendExecutionProviderCUDA(cuda); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrGPUUnavailable, err)
		}
	} else {
		options.SetIntraOpNumThreads(runtime.NumCPU())
	}

	size := spec.TargetSize
	if size <= 0 {
		size = 640
	}
	classes := len(COCOLabels)
	anchors := anchorCount(size)

	input, err := ort.NewEmptyTensor[float32](ort.NewShape(1, 3, int64(size), int64(size)))
	if err != nil {
		return nil, fmt.Errorf("create input tensor: %w", err)
	}

	output, err := ort.NewEmptyTensor[float32](ort.NewShape(1, int64(4+classes), int64(anchors)))
	if err != nil {
		input.Destroy()
		return nil, fmt.Errorf("create output tensor: %w", err)
	}

	session, err := ort.NewAdvancedSession(
		spec.Path,
		[]string{"images"},
		[]string{"output0"},
		[]ort.ArbitraryTensor{input},
		[]ort.ArbitraryTensor{output},
		options,
	)
	if err != nil {
		input.Destroy()
		output.Destroy()
		return nil, fmt.Errorf("create session: %w", err)
	}

	return &ONNXDetector{
		spec:    spec,
		session: session,
		input:   input,
		output:  output,
		size:    size,
		classes: classes,
		anchors: anchors,
	}, nil
}

// Detect runs the model on frame.
func (d *ONNXDetector) Detect(frame *gocv.Mat, confidence, nms float32) (Batch, error) {
	if frame == nil || frame.Empty() {
		return nil, &InferError{Err: ErrEmptyFrame}
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	img, err := frame.ToImage()
	if err != nil {
		return nil, &InferError{Err: fmt.Errorf("convert frame: %w", err)}
	}

	lb := letterbox(img, d.size)
	fillTensor(lb.canvas, d.input.GetData(), d.size)

	if err := d.session.Run(); err != nil {
		return nil, &InferError{Err: fmt.Errorf("model inference: %w", err)}
	}

	candidates := decodeYOLOv8(d.output.GetData(), d.classes, d.anchors, confidence)
	kept := nonMaxSuppression(candidates, nms)
	return lb.unmap(kept, frame.Cols(), frame.Rows()), nil
}

// Close destroys the session and its tensors.
func (d *ONNXDetector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	var firstErr error
	for _, destroy := range []func() error{d.session.Destroy, d.input.Destroy, d.output.Destroy} {
		if err := destroy(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// letterboxed is an image scaled into a square canvas with gray padding.
type letterboxed struct {
	canvas *image.NRGBA
	scale  float32
	padX   int
	padY   int
}

func letterbox(img image.Image, size int) letterboxed {
	w, h := img.Bounds().Dx(), img.Bounds().Dy()
	scale := min(float32(size)/float32(w), float32(size)/float32(h))
	nw := max(1, int(float32(w)*scale))
	nh := max(1, int(float32(h)*scale))

	resized := imaging.Resize(img, nw, nh, imaging.Linear)
	padX, padY := (size-nw)/2, (size-nh)/2
	canvas := imaging.New(size, size, color.NRGBA{R: 114, G: 114, B: 114, A: 255})
	canvas = imaging.Paste(canvas, resized, image.Pt(padX, padY))

	return letterboxed{canvas: canvas, scale: scale, padX: padX, padY: padY}
}

// unmap converts boxes from canvas coordinates back to a width x height frame.
func (l letterboxed) unmap(b Batch, width, height int) Batch {
	out := make(Batch, 0, len(b))
	for _, obj := range b {
		x0 := clamp((obj.Rect.X-float32(l.padX))/l.scale, 0, float32(width))
		y0 := clamp((obj.Rect.Y-float32(l.padY))/l.scale, 0, float32(height))
		x1 := clamp((obj.Rect.X+obj.Rect.Width-float32(l.padX))/l.scale, 0, float32(width))
		y1 := clamp((obj.Rect.Y+obj.Rect.Height-float32(l.padY))/l.scale, 0, float32(height))
		obj.Rect = Rect{X: x0, Y: y0, Width: x1 - x0, Height: y1 - y0}
		out = append(out, obj)
	}
	return out
}

// fillTensor writes the canvas into dst as planar RGB scaled to [0,1].
func fillTensor(canvas *image.NRGBA, dst []float32, size int) {
	plane := size * size
	for y := 0; y < size; y++ {
		row := canvas.Pix[y*canvas.Stride:]
		for x := 0; x < size; x++ {
			i := y*size + x
			p := row[x*4:]
			dst[i] = float32(p[0]) / 255.0
			dst[plane+i] = float32(p[1]) / 255.0
			dst[2*plane+i] = float32(p[2]) / 255.0
		}
	}
}

func clamp(v, lo, hi float32) float32 {
	return max(lo, min(v, hi))
}
