// MODUL: postprocess
// ZWECK: Dekodiert die YOLOv8-Ausgabe zu Boxen und filtert mit NMS
// INPUT: Ausgabe [1, 4+nc, A] (oder transponiert [1, A, 4+nc]), Letterbox-Info
// OUTPUT: Boxen in Originalbild-Koordinaten, nach Konfidenz absteigend
// NEBENEFFEKTE: keine
// ABHAENGIGKEITEN: vision (LetterboxInfo)
// HINWEISE: NMS pro Klasse, eine Klasse pro Anker (die mit maximalem Score)

package detect

import (
	"cmp"
	"fmt"
	"math"
	"slices"

	"github.com/MichaelCStrahl/vision-voice-project/vision"
)

// maxNMS begrenzt die Kandidaten vor der NMS
const maxNMS = 30000

// Box ist eine Detektion in Pixel-Koordinaten (x1, y1, x2, y2)
type Box struct {
	X1, Y1, X2, Y2 float64
	Score          float64
	ClassID        int
}

// Area gibt die Flaeche der Box zurueck
func (b Box) Area() float64 {
	return max(0, b.X2-b.X1) * max(0, b.Y2-b.Y1)
}

// IoU berechnet Intersection over Union zweier Boxen
func IoU(a, b Box) float64 {
	w := min(a.X2, b.X2) - max(a.X1, b.X1)
	h := min(a.Y2, b.Y2) - max(a.Y1, b.Y1)
	if w <= 0 || h <= 0 {
		return 0
	}

	inter := w * h
	union := a.Area() + b.Area() - inter
	if union <= 0 {
		return 0
	}
	return inter / union
}

// Decode liest die Rohausgabe des Modells. shape ist [1, 4+nc, A] oder
// [1, A, 4+nc]. Nur Anker mit Score > conf werden behalten.
func Decode(out []float32, shape []int64, numClasses int, conf float64) ([]Box, error) {
	if len(shape) != 3 || shape[0] != 1 {
		return nil, fmt.Errorf("detect: unexpected output shape %v", shape)
	}

	channels := 4 + numClasses
	var anchors int
	var at func(a, c int) float32

	switch {
	case int(shape[1]) == channels:
		anchors = int(shape[2])
		at = func(a, c int) float32 { return out[c*anchors+a] }
	case int(shape[2]) == channels:
		anchors = int(shape[1])
		at = func(a, c int) float32 { return out[a*channels+c] }
	default:
		return nil, fmt.Errorf("detect: output shape %v does not match %d classes", shape, numClasses)
	}

	if len(out) != anchors*channels {
		return nil, fmt.Errorf("detect: output has %d values, expected %d", len(out), anchors*channels)
	}

	var boxes []Box
	for a := range anchors {
		best, score := 0, float32(math.Inf(-1))
		for c := range numClasses {
			if s := at(a, 4+c); s > score {
				best, score = c, s
			}
		}

		if float64(score) <= conf {
			continue
		}

		cx, cy := float64(at(a, 0)), float64(at(a, 1))
		w, h := float64(at(a, 2)), float64(at(a, 3))
		boxes = append(boxes, Box{
			X1: cx - w/2, Y1: cy - h/2,
			X2: cx + w/2, Y2: cy + h/2,
			Score:   float64(score),
			ClassID: best,
		})
	}

	return boxes, nil
}

// NMS sortiert nach Score und entfernt Boxen derselben Klasse, deren IoU mit
// einer besseren Box iou uebersteigt. Hoechstens maxDet Boxen bleiben.
func NMS(boxes []Box, iou float64, maxDet int) []Box {
	slices.SortStableFunc(boxes, func(a, b Box) int {
		return cmp.Compare(b.Score, a.Score)
	})
	if len(boxes) > maxNMS {
		boxes = boxes[:maxNMS]
	}

	suppressed := make([]bool, len(boxes))
	keep := make([]Box, 0, min(len(boxes), maxDet))
	for i, b := range boxes {
		if suppressed[i] {
			continue
		}

		keep = append(keep, b)
		if len(keep) == maxDet {
			break
		}

		for j := i + 1; j < len(boxes); j++ {
			if !suppressed[j] && boxes[j].ClassID == b.ClassID && IoU(b, boxes[j]) > iou {
				suppressed[j] = true
			}
		}
	}

	return keep
}

// Scale bildet Boxen aus dem Letterbox-Bild auf das Originalbild ab und
// schneidet sie an dessen Raendern ab
func Scale(boxes []Box, info vision.LetterboxInfo, width, height int) {
	for i := range boxes {
		b := &boxes[i]
		b.X1, b.Y1 = info.Unscale(b.X1, b.Y1)
		b.X2, b.Y2 = info.Unscale(b.X2, b.Y2)

		b.X1 = clamp(b.X1, 0, float64(width))
		b.X2 = clamp(b.X2, 0, float64(width))
		b.Y1 = clamp(b.Y1, 0, float64(height))
		b.Y2 = clamp(b.Y2, 0, float64(height))
	}
}

func clamp(v, lo, hi float64) float64 {
	return min(max(v, lo), hi)
}
