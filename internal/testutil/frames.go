// Package testutil provides synthetic frames and fixtures for tests.
package testutil

import (
	"image"
	"image/color"
	"path/filepath"
	"testing"

	"gocv.io/x/gocv"

	"github.com/ayusman/drishti/internal/store"
)

// Frames returns n BGR frames of the given size. Each frame has a uniform
// background and a filled rectangle that moves from left to right, so that
// consecutive frames differ. The frames are closed when the test ends.
func Frames(t testing.TB, n, width, height int) []*gocv.Mat {
	t.Helper()

	frames := make([]*gocv.Mat, 0, n)
	for i := 0; i < n; i++ {
		m := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(40, 40, 40, 0), height, width, gocv.MatTypeCV8UC3)

		w, h := width/4, height/2
		x := 0
		if n > 1 {
			x = i * (width - w) / (n - 1)
		}
		rect := image.Rect(x, height/4, x+w, height/4+h)
		gocv.Rectangle(&m, rect, color.RGBA{R: 200, G: 160, B: 80, A: 255}, -1)

		frames = append(frames, &m)
	}

	t.Cleanup(func() {
		for _, f := range frames {
			f.Close()
		}
	})
	return frames
}

// NewStore opens a store in a temporary directory. It is closed when the test
// ends.
func NewStore(t testing.TB) *store.Store {
	t.Helper()

	s, err := store.New(filepath.Join(t.TempDir(), "drishti.db"))
	if err != nil {
		t.Fatalf("store.New() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}
