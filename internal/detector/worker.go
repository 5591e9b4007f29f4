package detector

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"

	"gocv.io/x/gocv"
)

// WorkerDetector implements Detector by delegating to an external worker process.
// A transport failure stops the worker; the next Detect call starts it again.
type WorkerDetector struct {
	spec    ModelSpec
	backend Backend
	python  string
	script  string

	mu     sync.Mutex
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout *bufio.Reader
}

// NewWorkerDetector starts the worker and asks it to load spec. The detector is
// returned only after the worker confirmed the model is ready.
func NewWorkerDetector(python, script string, spec ModelSpec, backend Backend) (*WorkerDetector, error) {
	if script == "" {
		return nil, errors.New("worker script not configured")
	}
	if _, err := os.Stat(script); err != nil {
		return nil, fmt.Errorf("worker script: %w", err)
	}
	if python == "" {
		python = "python3"
	}

	d := &WorkerDetector{spec: spec, backend: backend, python: python, script: script}

	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.launchLocked(); err != nil {
		return nil, err
	}
	return d, nil
}

// Detect encodes the frame as JPEG and asks the worker for detections.
func (d *WorkerDetector) Detect(frame *gocv.Mat, confidence, nms float32) (Batch, error) {
	if frame == nil || frame.Empty() {
		return nil, &InferError{Err: ErrEmptyFrame}
	}

	buf, err := gocv.IMEncode(gocv.JPEGFileExt, *frame)
	if err != nil {
		return nil, &InferError{Err: fmt.Errorf("encode frame: %w", err)}
	}
	defer buf.Close()

	// Copy out of the native buffer before it is released.
	image := append([]byte(nil), buf.GetBytes()...)

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.cmd == nil {
		if err := d.launchLocked(); err != nil {
			return nil, &InferError{Err: fmt.Errorf("worker not running: %w", err)}
		}
		slog.Info("detection worker restarted", "model", d.spec.Name)
	}

	var resp workerResponse
	if err := d.roundTripLocked(&workerRequest{
		Op:         opDetect,
		Image:      image,
		Confidence: confidence,
		NMS:        nms,
	}, &resp); err != nil {
		return nil, &InferError{Err: err}
	}
	if !resp.OK {
		return nil, &InferError{Err: fmt.Errorf("worker: %s", resp.Error)}
	}

	return Batch(resp.Objects).Clone(), nil
}

// Close stops the worker process.
func (d *WorkerDetector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.shutdownLocked()
}

// launchLocked starts the process and performs the load handshake.
func (d *WorkerDetector) launchLocked() error {
	if err := d.startLocked(); err != nil {
		return err
	}

	var resp workerResponse
	err := d.roundTripLocked(&workerRequest{
		Op:         opLoad,
		Model:      d.spec.Path,
		TargetSize: d.spec.TargetSize,
		GPU:        d.backend == BackendGPU,
	}, &resp)
	if err != nil {
		return err
	}
	if !resp.OK {
		d.shutdownLocked()
		if resp.Code == codeGPUUnavailable {
			return ErrGPUUnavailable
		}
		return fmt.Errorf("worker load: %s", resp.Error)
	}
	return nil
}

func (d *WorkerDetector) startLocked() error {
	cmd := exec.Command(d.python, d.script)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("create stdin pipe: %w", err)
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("create stdout pipe: %w", err)
	}

	cmd.Stderr = os.Stderr

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start worker: %w", err)
	}

	d.cmd = cmd
	d.stdin = stdin
	d.stdout = bufio.NewReader(stdout)
	return nil
}

// roundTripLocked sends req and reads the reply. Any failure leaves the stream
// out of step, so the worker is killed.
func (d *WorkerDetector) roundTripLocked(req *workerRequest, resp *workerResponse) error {
	err := writeMessage(d.stdin, req)
	if err == nil {
		err = readMessage(d.stdout, resp)
	}
	if err != nil {
		slog.Warn("detection worker stream broken, stopping worker", "model", d.spec.Name, "error", err)
		d.killLocked()
	}
	return err
}

func (d *WorkerDetector) killLocked() {
	if d.cmd != nil && d.cmd.Process != nil {
		d.cmd.Process.Kill()
	}
	d.shutdownLocked()
}

func (d *WorkerDetector) shutdownLocked() error {
	if d.cmd == nil {
		return nil
	}

	if d.stdin != nil {
		d.stdin.Close()
	}

	var err error
	if d.cmd.Process != nil {
		err = d.cmd.Wait()
	}
	d.cmd = nil
	d.stdin = nil
	d.stdout = nil

	return err
}
