package detector

import "sort"

// anchorCount returns the number of YOLOv8 anchor points for a square input of
// the given size (strides 8, 16 and 32).
func anchorCount(size int) int {
	n := 0
	for _, stride := range []int{8, 16, 32} {
		g := size / stride
		n += g * g
	}
	return n
}

// decodeYOLOv8 reads a [4+classes, anchors] row-major output tensor and returns
// every anchor whose best class score reaches threshold. Boxes are in input
// tensor coordinates.
func decodeYOLOv8(data []float32, classes, anchors int, threshold float32) Batch {
	if len(data) < (4+classes)*anchors {
		return nil
	}

	var out Batch
	for i := 0; i < anchors; i++ {
		best, bestScore := -1, float32(0)
		for c := 0; c < classes; c++ {
			score := data[(4+c)*anchors+i]
			if score > bestScore {
				best, bestScore = c, score
			}
		}
		if best < 0 || bestScore < threshold {
			continue
		}

		cx := data[i]
		cy := data[anchors+i]
		w := data[2*anchors+i]
		h := data[3*anchors+i]
		out = append(out, Object{
			Rect:  Rect{X: cx - w/2, Y: cy - h/2, Width: w, Height: h},
			Label: best,
			Prob:  bestScore,
		})
	}
	return out
}

// nonMaxSuppression keeps the highest scoring box of every overlapping group of
// the same class. The result is ordered by descending probability.
func nonMaxSuppression(candidates Batch, threshold float32) Batch {
	if len(candidates) == 0 {
		return nil
	}

	sorted := candidates.Clone()
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Prob > sorted[j].Prob
	})

	var kept Batch
	for _, obj := range sorted {
		keep := true
		for _, k := range kept {
			if k.Label == obj.Label && k.Rect.IoU(obj.Rect) > threshold {
				keep = false
				break
			}
		}
		if keep {
			kept = append(kept, obj)
		}
	}
	return kept
}
