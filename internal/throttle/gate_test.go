package throttle

import (
	"testing"
	"time"
)

func at(ms int) time.Time {
	return time.Unix(1700000000, 0).Add(time.Duration(ms) * time.Millisecond)
}

func TestGate_ShouldSkip(t *testing.T) {
	tests := []struct {
		name     string
		interval time.Duration
		frames   []int
		want     []bool
	}{
		{
			name:     "500ms window",
			interval: 500 * time.Millisecond,
			frames:   []int{0, 100, 600, 700},
			want:     []bool{false, true, false, true},
		},
		{
			name:     "zero interval never skips",
			interval: 0,
			frames:   []int{0, 0, 1, 2, 3},
			want:     []bool{false, false, false, false, false},
		},
		{
			name:     "exact boundary is accepted",
			interval: 100 * time.Millisecond,
			frames:   []int{0, 99, 100, 199, 200},
			want:     []bool{false, true, false, true, false},
		},
		{
			name:     "skips do not extend the window",
			interval: 300 * time.Millisecond,
			frames:   []int{0, 100, 200, 299, 300},
			want:     []bool{false, true, true, true, false},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := NewGate(tt.interval)
			for i, ms := range tt.frames {
				if got := g.ShouldSkip(at(ms)); got != tt.want[i] {
					t.Errorf("frame at %dms: ShouldSkip() = %v, want %v", ms, got, tt.want[i])
				}
			}
		})
	}
}

func TestGate_AcceptCountCoversElapsed(t *testing.T) {
	const interval = 50 * time.Millisecond
	g := NewGate(interval)

	accepted, last := 0, 0
	for ms := 0; ms < 1000; ms += 10 {
		if !g.ShouldSkip(at(ms)) {
			accepted++
		}
		last = ms
	}

	elapsed := time.Duration(last) * time.Millisecond
	minimum := int((elapsed + interval - 1) / interval)
	maximum := int(elapsed/interval) + 1

	if accepted < minimum {
		t.Errorf("accepted = %d, want at least %d", accepted, minimum)
	}
	if accepted > maximum {
		t.Errorf("accepted = %d, gate let through more than one frame per window", accepted)
	}
}

func TestGate_SetInterval(t *testing.T) {
	t.Run("takes effect on next check", func(t *testing.T) {
		g := NewGate(time.Second)
		g.ShouldSkip(at(0))

		if !g.ShouldSkip(at(200)) {
			t.Fatal("frame inside 1s window should be skipped")
		}

		g.SetInterval(100 * time.Millisecond)
		if g.ShouldSkip(at(200)) {
			t.Error("frame past the shortened window should be accepted")
		}
	})

	t.Run("negative clamps to zero", func(t *testing.T) {
		g := NewGate(-5 * time.Millisecond)
		if got := g.Interval(); got != 0 {
			t.Errorf("Interval() = %v, want 0", got)
		}
	})

	t.Run("getter is independent of state", func(t *testing.T) {
		g := NewGate(250 * time.Millisecond)
		g.ShouldSkip(at(0))
		g.ShouldSkip(at(10))
		if got := g.Interval(); got != 250*time.Millisecond {
			t.Errorf("Interval() = %v, want 250ms", got)
		}
	})
}

func TestGate_Restore(t *testing.T) {
	g := NewGate(500 * time.Millisecond)

	m := g.Mark()
	if g.ShouldSkip(at(0)) {
		t.Fatal("first frame should be accepted")
	}
	g.Restore(m)

	if g.ShouldSkip(at(10)) {
		t.Error("gate should be open again after restoring a never-accepted mark")
	}
	if !g.ShouldSkip(at(20)) {
		t.Error("frame inside the window of the 10ms acceptance should be skipped")
	}
}
