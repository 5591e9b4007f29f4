package detector

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/vmihailenco/msgpack/v5"
)

// maxMessageSize bounds a single worker message.
const maxMessageSize = 32 << 20

// Worker operations.
const (
	opLoad   = "load"
	opDetect = "detect"
)

// codeGPUUnavailable is the worker error code for a missing accelerator.
const codeGPUUnavailable = "gpu_unavailable"

// workerRequest is sent to the worker process.
type workerRequest struct {
	Op         string  `msgpack:"op"`
	Model      string  `msgpack:"model,omitempty"`
	TargetSize int     `msgpack:"target_size,omitempty"`
	GPU        bool    `msgpack:"gpu,omitempty"`
	Image      []byte  `msgpack:"image,omitempty"`
	Confidence float32 `msgpack:"confidence"`
	NMS        float32 `msgpack:"nms"`
}

// workerResponse is read back from the worker process.
type workerResponse struct {
	OK      bool     `msgpack:"ok"`
	Code    string   `msgpack:"code,omitempty"`
	Error   string   `msgpack:"error,omitempty"`
	Objects []Object `msgpack:"objects,omitempty"`
}

// writeMessage writes v as a 4-byte big-endian length followed by msgpack data.
func writeMessage(w io.Writer, v any) error {
	data, err := msgpack.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	length := make([]byte, 4)
	binary.BigEndian.PutUint32(length, uint32(len(data)))

	if _, err := w.Write(length); err != nil {
		return fmt.Errorf("write length: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("write data: %w", err)
	}
	return nil
}

// readMessage reads one length-prefixed msgpack message into v.
func readMessage(r io.Reader, v any) error {
	length := make([]byte, 4)
	if _, err := io.ReadFull(r, length); err != nil {
		return fmt.Errorf("read length: %w", err)
	}

	n := binary.BigEndian.Uint32(length)
	if n > maxMessageSize {
		return fmt.Errorf("message too large: %d bytes", n)
	}

	data := make([]byte, n)
	if _, err := io.ReadFull(r, data); err != nil {
		return fmt.Errorf("read data: %w", err)
	}

	if err := msgpack.Unmarshal(data, v); err != nil {
		return fmt.Errorf("parse message: %w", err)
	}
	return nil
}
