package testutil

import (
	"testing"

	"gocv.io/x/gocv"
)

func TestFrames(t *testing.T) {
	frames := Frames(t, 3, 160, 120)
	if len(frames) != 3 {
		t.Fatalf("len(Frames()) = %d, want 3", len(frames))
	}

	for i, f := range frames {
		if f.Cols() != 160 || f.Rows() != 120 || f.Type() != gocv.MatTypeCV8UC3 {
			t.Errorf("frame %d is %dx%d type %v", i, f.Cols(), f.Rows(), f.Type())
		}
	}

	diff := gocv.NewMat()
	defer diff.Close()
	gocv.AbsDiff(*frames[0], *frames[2], &diff)
	if s := diff.Sum(); s.Val1+s.Val2+s.Val3 == 0 {
		t.Error("first and last frame should differ")
	}
}

func TestNewStore(t *testing.T) {
	s := NewStore(t)
	if err := s.Settings().Set("k", 1); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
}
