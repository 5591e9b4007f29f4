package render

import "time"

// FPSWindow is the number of frame rate samples averaged by FPSMeter.
const FPSWindow = 10

// FPSMeter keeps a moving average of the frame rate over the last FPSWindow
// frames. It is not safe for concurrent use; the render loop owns it.
type FPSMeter struct {
	last    time.Time
	history [FPSWindow]float64
	filled  int
}

// Tick records a frame presented at now. It returns the averaged rate once
// the window is full; before that ok is false.
func (m *FPSMeter) Tick(now time.Time) (fps float64, ok bool) {
	if m.last.IsZero() {
		m.last = now
		return 0, false
	}

	elapsed := now.Sub(m.last)
	m.last = now
	if elapsed <= 0 {
		return m.average()
	}

	copy(m.history[1:], m.history[:FPSWindow-1])
	m.history[0] = float64(time.Second) / float64(elapsed)
	if m.filled < FPSWindow {
		m.filled++
	}

	return m.average()
}

func (m *FPSMeter) average() (float64, bool) {
	if m.filled < FPSWindow {
		return 0, false
	}
	sum := 0.0
	for _, v := range m.history {
		sum += v
	}
	return sum / FPSWindow, true
}

// Reset forgets every sample.
func (m *FPSMeter) Reset() {
	*m = FPSMeter{}
}
