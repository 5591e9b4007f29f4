package detector

// Rect is an axis-aligned bounding box in frame pixel coordinates.
type Rect struct {
	X      float32 `json:"x" msgpack:"x"`
	Y      float32 `json:"y" msgpack:"y"`
	Width  float32 `json:"width" msgpack:"w"`
	Height float32 `json:"height" msgpack:"h"`
}

// Area returns the rectangle area, zero for degenerate boxes.
func (r Rect) Area() float32 {
	if r.Width <= 0 || r.Height <= 0 {
		return 0
	}
	return r.Width * r.Height
}

// Intersect returns the overlapping region of r and o.
func (r Rect) Intersect(o Rect) Rect {
	x0 := max(r.X, o.X)
	y0 := max(r.Y, o.Y)
	x1 := min(r.X+r.Width, o.X+o.Width)
	y1 := min(r.Y+r.Height, o.Y+o.Height)
	if x1 <= x0 || y1 <= y0 {
		return Rect{}
	}
	return Rect{X: x0, Y: y0, Width: x1 - x0, Height: y1 - y0}
}

// IoU returns the intersection over union of r and o.
func (r Rect) IoU(o Rect) float32 {
	inter := r.Intersect(o).Area()
	union := r.Area() + o.Area() - inter
	if union <= 0 {
		return 0
	}
	return inter / union
}

// Object is a single detection. Objects are values and are copied, never shared.
type Object struct {
	Rect  Rect    `json:"rect" msgpack:"rect"`
	Label int     `json:"label" msgpack:"label"`
	Prob  float32 `json:"prob" msgpack:"prob"`
}

// Batch is the ordered output of one detector invocation.
type Batch []Object

// Clone returns an independent copy of the batch. A nil or empty batch clones to nil.
func (b Batch) Clone() Batch {
	if len(b) == 0 {
		return nil
	}
	out := make(Batch, len(b))
	copy(out, b)
	return out
}
