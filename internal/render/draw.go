// Package render draws detections and the frame rate readout onto frames.
package render

import (
	"fmt"
	"image"
	"image/color"

	"gocv.io/x/gocv"

	"github.com/ayusman/drishti/internal/detector"
)

const (
	fontFace  = gocv.FontHersheySimplex
	fontScale = 0.5
	thickness = 1
)

var (
	white = color.RGBA{R: 255, G: 255, B: 255, A: 255}
	black = color.RGBA{R: 0, G: 0, B: 0, A: 255}
)

// palette gives each class a stable colour.
var palette = []color.RGBA{
	{R: 54, G: 67, B: 244},
	{R: 99, G: 30, B: 233},
	{R: 176, G: 39, B: 156},
	{R: 183, G: 58, B: 103},
	{R: 181, G: 81, B: 63},
	{R: 243, G: 150, B: 33},
	{R: 244, G: 169, B: 3},
	{R: 212, G: 188, B: 0},
	{R: 136, G: 150, B: 0},
	{R: 80, G: 175, B: 76},
	{R: 74, G: 195, B: 139},
	{R: 57, G: 220, B: 205},
	{R: 59, G: 235, B: 255},
	{R: 7, G: 193, B: 255},
	{R: 0, G: 152, B: 255},
	{R: 34, G: 87, B: 255},
	{R: 72, G: 85, B: 121},
	{R: 158, G: 158, B: 158},
	{R: 139, G: 125, B: 96},
}

func colorFor(label int) color.RGBA {
	if label < 0 {
		label = -label
	}
	return palette[label%len(palette)]
}

// DrawObjects draws a box and a "name prob%" tag for every object.
func DrawObjects(frame *gocv.Mat, objects detector.Batch) {
	if frame == nil || frame.Empty() {
		return
	}
	cols, rows := frame.Cols(), frame.Rows()

	for _, obj := range objects {
		c := colorFor(obj.Label)
		box := image.Rect(
			int(obj.Rect.X),
			int(obj.Rect.Y),
			int(obj.Rect.X+obj.Rect.Width),
			int(obj.Rect.Y+obj.Rect.Height),
		)
		gocv.Rectangle(frame, box, c, 2)

		text := fmt.Sprintf("%s %.1f%%", detector.LabelName(obj.Label), obj.Prob*100)
		size := gocv.GetTextSize(text, fontFace, fontScale, thickness)

		x := box.Min.X
		y := box.Min.Y - size.Y - 4
		if y < 0 {
			y = 0
		}
		if x+size.X > cols {
			x = cols - size.X
		}
		if x < 0 {
			x = 0
		}
		if y+size.Y+4 > rows {
			y = rows - size.Y - 4
		}

		gocv.Rectangle(frame, image.Rect(x, y, x+size.X, y+size.Y+4), c, -1)
		gocv.PutText(frame, text, image.Pt(x, y+size.Y), fontFace, fontScale, textColorFor(c), thickness)
	}
}

// textColorFor picks black or white for readable text on background c.
func textColorFor(c color.RGBA) color.RGBA {
	if int(c.R)+int(c.G)+int(c.B) >= 381 {
		return black
	}
	return white
}

// DrawUnsupported draws a centered "unsupported" label.
func DrawUnsupported(frame *gocv.Mat) {
	drawCentered(frame, "unsupported")
}

func drawCentered(frame *gocv.Mat, text string) {
	if frame == nil || frame.Empty() {
		return
	}
	size := gocv.GetTextSize(text, fontFace, 1.0, thickness)
	x := (frame.Cols() - size.X) / 2
	y := (frame.Rows() - size.Y) / 2

	gocv.Rectangle(frame, image.Rect(x, y, x+size.X, y+size.Y+4), white, -1)
	gocv.PutText(frame, text, image.Pt(x, y+size.Y), fontFace, 1.0, black, thickness)
}

// DrawFPS draws "FPS=<fps>" in the top right corner.
func DrawFPS(frame *gocv.Mat, fps float64) {
	if frame == nil || frame.Empty() {
		return
	}
	text := fmt.Sprintf("FPS=%.2f", fps)
	size := gocv.GetTextSize(text, fontFace, fontScale, thickness)

	x := frame.Cols() - size.X
	y := 0
	if x < 0 {
		x = 0
	}

	gocv.Rectangle(frame, image.Rect(x, y, x+size.X, y+size.Y+4), white, -1)
	gocv.PutText(frame, text, image.Pt(x, y+size.Y), fontFace, fontScale, black, thickness)
}
