// MODUL: resize
// ZWECK: Bilineare Skalierung mit Half-Pixel-Zentren als float32-Tensor
// INPUT: ImageInput, Zielgroesse (H, W)
// OUTPUT: ml.Tensor [H, W, 3], Werte in [0,1]
// NEBENEFFEKTE: keine
// ABHAENGIGKEITEN: ml (Tensor), chewxy/math32
// HINWEISE: Gleiche Gewichte wie tf.image.resize (bilinear, ohne Antialiasing);
//           die Samples werden nicht auf 8 Bit gerundet

package vision

import (
	"fmt"

	"github.com/chewxy/math32"

	"github.com/MichaelCStrahl/vision-voice-project/ml"
)

// lerpWeights enthaelt die Interpolationsgewichte einer Achse
type lerpWeights struct {
	lower, upper []int
	lerp         []float32
}

func computeWeights(outSize, inSize int) lerpWeights {
	scale := float32(inSize) / float32(outSize)
	w := lerpWeights{
		lower: make([]int, outSize),
		upper: make([]int, outSize),
		lerp:  make([]float32, outSize),
	}

	for i := range outSize {
		in := (float32(i)+0.5)*scale - 0.5
		inF := math32.Floor(in)
		w.lower[i] = max(int(inF), 0)
		w.upper[i] = min(int(math32.Ceil(in)), inSize-1)
		w.lerp[i] = in - inF
	}

	return w
}

// ResizeBilinear skaliert img auf height x width und gibt einen Tensor
// [height, width, 3] mit Werten in [0,1] zurueck.
func ResizeBilinear(img *ImageInput, height, width int) (*ml.Tensor, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid size: %dx%d", width, height)
	}

	ys := computeWeights(height, img.Height)
	xs := computeWeights(width, img.Width)

	out := ml.Zeros(height, width, 3)
	pix := func(x, y, c int) float32 {
		return float32(img.Image.Pix[img.Image.PixOffset(x, y)+c])
	}

	for y := range height {
		top, bottom, yl := ys.lower[y], ys.upper[y], ys.lerp[y]
		for x := range width {
			left, right, xl := xs.lower[x], xs.upper[x], xs.lerp[x]
			dst := out.Data[(y*width+x)*3 : (y*width+x)*3+3]
			for c := range 3 {
				tl, tr := pix(left, top, c), pix(right, top, c)
				bl, br := pix(left, bottom, c), pix(right, bottom, c)
				t := tl + (tr-tl)*xl
				b := bl + (br-bl)*xl
				dst[c] = (t + (b-t)*yl) * pixelScale
			}
		}
	}

	return out, nil
}

// Preprocess dekodiert Bild-Bytes und liefert den Eingabetensor
// [height, width, 3] in [0,1] fuer das Captioning-Backbone.
func Preprocess(data []byte, height, width int) (*ml.Tensor, error) {
	img, err := LoadImageFromBytes(data)
	if err != nil {
		return nil, err
	}

	// gleiche Groesse: die Interpolation ist die Identitaet
	if img.Height == height && img.Width == width {
		return ToTensor(img), nil
	}

	return ResizeBilinear(img, height, width)
}
