// Package tray provides a system tray menu for the drishti detection pipeline.
package tray

import (
	"fmt"
	"sync"

	"github.com/getlantern/systray"

	"github.com/ayusman/drishti/internal/capture"
	"github.com/ayusman/drishti/internal/detector"
)

// Tray represents the system tray application.
type Tray struct {
	onMode      func(mode detector.Mode) bool
	onCamera    func(facing capture.Facing) bool
	onDashboard func()
	onQuit      func()

	mu     sync.RWMutex
	mode   detector.Mode
	facing capture.Facing

	// Menu items stored for later updates
	menuMode    *systray.MenuItem
	menuCamera  *systray.MenuItem
	menuObjects *systray.MenuItem
}

// New creates a new Tray showing the given initial mode and facing.
func New(mode detector.Mode, facing capture.Facing) *Tray {
	return &Tray{
		mode:   mode,
		facing: facing,
	}
}

// OnToggleMode sets the callback invoked with the new mode when the mode item
// is clicked. The menu only changes if the callback returns true.
func (t *Tray) OnToggleMode(fn func(mode detector.Mode) bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onMode = fn
}

// OnSwitchCamera sets the callback invoked with the other facing when the
// camera item is clicked. The menu only changes if the callback returns true.
func (t *Tray) OnSwitchCamera(fn func(facing capture.Facing) bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onCamera = fn
}

// OnDashboard sets the callback function to be called when the dashboard menu item is clicked.
func (t *Tray) OnDashboard(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onDashboard = fn
}

// OnQuit sets the callback function to be called when the quit menu item is clicked.
func (t *Tray) OnQuit(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onQuit = fn
}

// Run starts the system tray application.
// This function blocks until systray.Quit() is called.
func (t *Tray) Run() {
	systray.Run(t.onReady, t.onExit)
}

// Quit stops a running tray; Run then returns.
func Quit() {
	systray.Quit()
}

// onReady is called when the system tray is ready.
// It sets up the menu structure.
func (t *Tray) onReady() {
	systray.SetTitle("Drishti")
	systray.SetTooltip("Drishti object detection")

	t.mu.Lock()
	t.menuMode = systray.AddMenuItem(modeTitle(t.mode), "Toggle detected classes")
	t.menuCamera = systray.AddMenuItem(cameraTitle(t.facing), "Switch camera")
	systray.AddSeparator()

	t.menuObjects = systray.AddMenuItem("Objects: none", "Objects in the last frame")
	t.menuObjects.Disable()
	t.mu.Unlock()
	systray.AddSeparator()

	menuDashboard := systray.AddMenuItem("Open Dashboard...", "Open the dashboard in a browser")
	systray.AddSeparator()

	menuQuit := systray.AddMenuItem("Quit", "Quit Drishti")

	// Handle menu item clicks in a separate goroutine
	go func() {
		for {
			select {
			case <-t.menuMode.ClickedCh:
				t.handleToggleMode()
			case <-t.menuCamera.ClickedCh:
				t.handleSwitchCamera()
			case <-menuDashboard.ClickedCh:
				t.handleDashboard()
			case <-menuQuit.ClickedCh:
				t.handleQuit()
				return
			}
		}
	}()
}

// onExit is called when the system tray is about to exit.
func (t *Tray) onExit() {}

func modeTitle(m detector.Mode) string {
	if m == detector.ModeHumanAndVehicle {
		return "Detect: people + vehicles"
	}
	return "Detect: people"
}

func cameraTitle(f capture.Facing) string {
	return "Camera: " + f.String()
}

// handleToggleMode switches between the two detect modes.
func (t *Tray) handleToggleMode() {
	t.mu.RLock()
	next := detector.ModeHumanAndVehicle
	if t.mode == detector.ModeHumanAndVehicle {
		next = detector.ModeHumanOnly
	}
	callback := t.onMode
	t.mu.RUnlock()

	// Call the callback outside the lock to prevent deadlocks
	if callback != nil && !callback(next) {
		return
	}

	t.mu.Lock()
	t.mode = next
	if t.menuMode != nil {
		t.menuMode.SetTitle(modeTitle(next))
	}
	t.mu.Unlock()
}

// handleSwitchCamera switches between the front and back camera.
func (t *Tray) handleSwitchCamera() {
	t.mu.RLock()
	next := capture.FacingBack
	if t.facing == capture.FacingBack {
		next = capture.FacingFront
	}
	callback := t.onCamera
	t.mu.RUnlock()

	if callback != nil && !callback(next) {
		return
	}

	t.mu.Lock()
	t.facing = next
	if t.menuCamera != nil {
		t.menuCamera.SetTitle(cameraTitle(next))
	}
	t.mu.Unlock()
}

// handleDashboard handles the dashboard menu item click.
func (t *Tray) handleDashboard() {
	t.mu.RLock()
	callback := t.onDashboard
	t.mu.RUnlock()

	if callback != nil {
		callback()
	}
}

// handleQuit handles the quit menu item click.
func (t *Tray) handleQuit() {
	t.mu.RLock()
	callback := t.onQuit
	t.mu.RUnlock()

	if callback != nil {
		callback()
	}

	systray.Quit()
}

// SetObjects updates the object summary shown in the menu.
func (t *Tray) SetObjects(count int, fps float64) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if t.menuObjects == nil {
		return
	}
	if count == 0 {
		t.menuObjects.SetTitle(fmt.Sprintf("Objects: none (%.1f fps)", fps))
	} else {
		t.menuObjects.SetTitle(fmt.Sprintf("Objects: %d (%.1f fps)", count, fps))
	}
}

// Mode returns the detect mode shown in the menu.
func (t *Tray) Mode() detector.Mode {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.mode
}

// Facing returns the camera shown in the menu.
func (t *Tray) Facing() capture.Facing {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.facing
}
