// MODUL: normalize
// ZWECK: Tensor-Konvertierung fuer Captioning-Backbone und Detektor
// INPUT: ImageInput
// OUTPUT: float32-Tensoren im HWC- oder CHW-Layout
// NEBENEFFEKTE: keine
// ABHAENGIGKEITEN: ml (Tensor)
// HINWEISE: Werte werden mit 1/255 skaliert (wie eine Keras Rescaling-Schicht)

package vision

import (
	"github.com/MichaelCStrahl/vision-voice-project/ml"
)

// pixelScale entspricht Rescaling(1/255)
const pixelScale = float32(1.0 / 255.0)

// rgbAt liest die 8-bit RGB-Werte bei (x, y), Alpha wird ignoriert
func rgbAt(img *ImageInput, x, y int) (uint8, uint8, uint8) {
	i := img.Image.PixOffset(x, y)
	pix := img.Image.Pix[i : i+3 : i+3]
	return pix[0], pix[1], pix[2]
}

// ToFloat32Tensor konvertiert ein Bild zu einem float32-Slice im HWC Format
// Werte werden auf [0,1] skaliert ohne Normalisierung
func ToFloat32Tensor(img *ImageInput) []float32 {
	result := make([]float32, img.Height*img.Width*3)
	idx := 0

	for y := range img.Height {
		for x := range img.Width {
			r, g, b := rgbAt(img, x, y)
			result[idx] = float32(r) * pixelScale
			result[idx+1] = float32(g) * pixelScale
			result[idx+2] = float32(b) * pixelScale
			idx += 3
		}
	}

	return result
}

// CHWTensorLayout konvertiert HWC zu CHW Layout
// Input: hwc Tensor mit Dimensionen [h, w, c]
// Output: chw Tensor mit Dimensionen [c, h, w]
func CHWTensorLayout(hwc []float32, h, w, c int) []float32 {
	if len(hwc) != h*w*c {
		return nil
	}

	chw := make([]float32, len(hwc))
	planeSize := h * w

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			srcIdx := (y*w + x) * c
			dstBase := y*w + x

			for ch := 0; ch < c; ch++ {
				chw[ch*planeSize+dstBase] = hwc[srcIdx+ch]
			}
		}
	}

	return chw
}

// TensorShape gibt die Tensor-Form fuer ein gegebenes Layout zurueck
func (img *ImageInput) TensorShape(channelFirst bool) []int {
	if channelFirst {
		return []int{3, img.Height, img.Width}
	}
	return []int{img.Height, img.Width, 3}
}

// ToTensor gibt das Bild als ml.Tensor [H, W, 3] mit Werten in [0,1] zurueck
func ToTensor(img *ImageInput) *ml.Tensor {
	return &ml.Tensor{Shape: img.TensorShape(false), Data: ToFloat32Tensor(img)}
}
