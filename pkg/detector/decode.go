package detector

import (
	"sort"
)

const IoUThreshold = 0.45

// decodePredictions reads a YOLO output laid out as [4+numClasses][numPredictions]:
// rows 0-3 hold cx, cy, w, h in input pixels, the rest hold per-class scores.
// A prediction becomes a box when its best class score reaches floor.
func decodePredictions(output []float32, numClasses, numPredictions int, floor float32) []Box {
	if numClasses <= 0 || numPredictions <= 0 || len(output) < (4+numClasses)*numPredictions {
		return nil
	}

	boxes := make([]Box, 0, 16)
	for i := 0; i < numPredictions; i++ {
		bestClass := -1
		var bestScore float32
		for c := 0; c < numClasses; c++ {
			score := output[(4+c)*numPredictions+i]
			if score > bestScore {
				bestScore = score
				bestClass = c
			}
		}

		if bestClass < 0 || bestScore < floor {
			continue
		}

		cx := output[i]
		cy := output[numPredictions+i]
		w := output[2*numPredictions+i]
		h := output[3*numPredictions+i]

		boxes = append(boxes, Box{
			X1:         cx - w/2,
			Y1:         cy - h/2,
			X2:         cx + w/2,
			Y2:         cy + h/2,
			Confidence: bestScore,
			Class:      bestClass,
		})
	}

	return boxes
}

// scaleBoxes maps boxes from the model input square back onto the original image.
func scaleBoxes(boxes []Box, inputSize int, origWidth, origHeight int) {
	scaleX := float32(origWidth) / float32(inputSize)
	scaleY := float32(origHeight) / float32(inputSize)

	for i := range boxes {
		boxes[i].X1 = clamp(boxes[i].X1*scaleX, 0, float32(origWidth))
		boxes[i].Y1 = clamp(boxes[i].Y1*scaleY, 0, float32(origHeight))
		boxes[i].X2 = clamp(boxes[i].X2*scaleX, 0, float32(origWidth))
		boxes[i].Y2 = clamp(boxes[i].Y2*scaleY, 0, float32(origHeight))
	}
}

// suppress keeps the highest-confidence box of every overlapping group,
// regardless of class.
func suppress(boxes []Box, threshold float32) []Box {
	if len(boxes) == 0 {
		return boxes
	}

	sort.Slice(boxes, func(i, j int) bool {
		return boxes[i].Confidence > boxes[j].Confidence
	})

	kept := make([]Box, 0, len(boxes))
	for _, candidate := range boxes {
		overlaps := false
		for _, k := range kept {
			if iou(candidate, k) > threshold {
				overlaps = true
				break
			}
		}
		if !overlaps {
			kept = append(kept, candidate)
		}
	}

	return kept
}

func iou(a, b Box) float32 {
	x1 := max(a.X1, b.X1)
	y1 := max(a.Y1, b.Y1)
	x2 := min(a.X2, b.X2)
	y2 := min(a.Y2, b.Y2)

	if x2 <= x1 || y2 <= y1 {
		return 0
	}

	intersection := (x2 - x1) * (y2 - y1)
	union := area(a) + area(b) - intersection
	if union <= 0 {
		return 0
	}

	return intersection / union
}

func area(b Box) float32 {
	return (b.X2 - b.X1) * (b.Y2 - b.Y1)
}

func clamp(v, lo, hi float32) float32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
