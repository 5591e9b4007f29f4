package display

import (
	"bytes"
	"errors"
	"testing"

	"gocv.io/x/gocv"
)

func TestMJPEGSurface_Present(t *testing.T) {
	s := NewMJPEGSurface("preview", 0)

	if s.Snapshot() != nil {
		t.Fatal("Snapshot() should be nil before the first frame")
	}

	frame := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(40, 80, 120, 0), 120, 160, gocv.MatTypeCV8UC3)
	defer frame.Close()

	if err := s.Present(&frame); err != nil {
		t.Fatalf("Present() error = %v", err)
	}

	jpeg := s.Snapshot()
	if !bytes.HasPrefix(jpeg, []byte{0xFF, 0xD8}) {
		t.Errorf("snapshot does not start with a JPEG marker: % x", jpeg[:min(4, len(jpeg))])
	}
	if s.Frames() != 1 {
		t.Errorf("Frames() = %d, want 1", s.Frames())
	}
}

func TestMJPEGSurface_PresentEmpty(t *testing.T) {
	s := NewMJPEGSurface("preview", 90)
	empty := gocv.NewMat()
	defer empty.Close()

	if err := s.Present(&empty); !errors.Is(err, ErrEmptyFrame) {
		t.Errorf("Present() error = %v, want ErrEmptyFrame", err)
	}
	if err := s.Present(nil); !errors.Is(err, ErrEmptyFrame) {
		t.Errorf("Present(nil) error = %v, want ErrEmptyFrame", err)
	}
}

func TestRegistry(t *testing.T) {
	r := NewRegistry([]SurfaceConfig{
		{Name: "main", Quality: 70},
		{Name: "aux"},
	})

	if got := r.Names(); len(got) != 2 || got[0] != "aux" || got[1] != "main" {
		t.Errorf("Names() = %v, want [aux main]", got)
	}

	s, ok := r.Get("main")
	if !ok || s.Name() != "main" {
		t.Fatalf("Get(main) = %v, %v", s, ok)
	}
	if s.quality != 70 {
		t.Errorf("quality = %d, want 70", s.quality)
	}

	if _, ok := r.Get("missing"); ok {
		t.Error("Get(missing) should fail")
	}
}
