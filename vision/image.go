// MODUL: image
// ZWECK: Bild-Lade- und Verarbeitungsfunktionen fuer Captioning und Detektion
// INPUT: Bild-Bytes
// OUTPUT: ImageInput Struktur mit dekodiertem Bild
// NEBENEFFEKTE: keine
// ABHAENGIGKEITEN: golang.org/x/image/draw (extern), image/jpeg, image/png, image/gif
// HINWEISE: Alle Bilder werden als NRGBA gehalten, der Alpha-Kanal wird
//           ignoriert (kein Compositing), nur RGB wird weiterverwendet

package vision

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"math"

	// Standard-Decoder registrieren
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// ErrDecode wird zurueckgegeben wenn die Bytes nicht dekodiert werden koennen
var ErrDecode = errors.New("cannot decode image")

// MaxPixels begrenzt Breite x Hoehe eines Bildes (32 Megapixel)
const MaxPixels = 1 << 25

// ImageInput enthaelt ein dekodiertes Bild mit Metadaten
type ImageInput struct {
	Image  *image.NRGBA
	Width  int
	Height int
	Format ImageFormat
}

// LoadImageFromBytes dekodiert ein Bild aus Byte-Daten
func LoadImageFromBytes(data []byte) (*ImageInput, error) {
	format := DetectFormat(data)
	if err := ValidateFormat(format); err != nil {
		return nil, err
	}

	return decodeWithFormat(data, format)
}

// decodeWithFormat dekodiert und konvertiert zu NRGBA. Die Groesse aus dem
// Header wird vor dem Dekodieren gegen MaxPixels geprueft.
func decodeWithFormat(data []byte, format ImageFormat) (*ImageInput, error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w (%s): %v", ErrDecode, format, err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 || int64(cfg.Width)*int64(cfg.Height) > MaxPixels {
		return nil, fmt.Errorf("%w (%s): %dx%d exceeds %d pixels", ErrDecode, format, cfg.Width, cfg.Height, MaxPixels)
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w (%s): %v", ErrDecode, format, err)
	}

	nrgba := toNRGBA(img)
	bounds := nrgba.Bounds()
	if bounds.Empty() {
		return nil, fmt.Errorf("%w (%s): empty image", ErrDecode, format)
	}

	return &ImageInput{
		Image:  nrgba,
		Width:  bounds.Dx(),
		Height: bounds.Dy(),
		Format: format,
	}, nil
}

// toNRGBA konvertiert ein beliebiges image.Image zu *image.NRGBA mit
// Ursprung (0, 0). Nicht-praemultiplizierte Farben bleiben erhalten.
func toNRGBA(img image.Image) *image.NRGBA {
	if nrgba, ok := img.(*image.NRGBA); ok && nrgba.Rect.Min == (image.Point{}) {
		return nrgba
	}

	bounds := img.Bounds()
	nrgba := image.NewNRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	draw.Draw(nrgba, nrgba.Bounds(), img, bounds.Min, draw.Src)
	return nrgba
}

// ResizeImage skaliert ein Bild auf die angegebene Groesse (8-bit Ergebnis)
func ResizeImage(img *ImageInput, width, height int) (*ImageInput, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid size: %dx%d", width, height)
	}

	dst := image.NewNRGBA(image.Rect(0, 0, width, height))
	draw.BiLinear.Scale(dst, dst.Bounds(), img.Image, img.Image.Bounds(), draw.Src, nil)

	return &ImageInput{
		Image:  dst,
		Width:  width,
		Height: height,
		Format: img.Format,
	}, nil
}

// ResizeWithAspect skaliert unter Beibehaltung des Seitenverhaeltnisses
func ResizeWithAspect(img *ImageInput, maxWidth, maxHeight int) (*ImageInput, error) {
	if maxWidth <= 0 || maxHeight <= 0 {
		return nil, fmt.Errorf("invalid size: %dx%d", maxWidth, maxHeight)
	}

	newW, newH, _ := calculateAspectSize(img.Width, img.Height, maxWidth, maxHeight)
	return ResizeImage(img, newW, newH)
}

// calculateAspectSize berechnet Zielgroesse mit Seitenverhaeltnis (gerundet)
func calculateAspectSize(srcW, srcH, maxW, maxH int) (int, int, float64) {
	ratio := math.Min(float64(maxW)/float64(srcW), float64(maxH)/float64(srcH))

	w := max(int(math.Round(float64(srcW)*ratio)), 1)
	h := max(int(math.Round(float64(srcH)*ratio)), 1)
	return w, h, ratio
}

// LetterboxInfo beschreibt die Abbildung zwischen Original und Letterbox-Bild
type LetterboxInfo struct {
	Scale float64
	PadX  int
	PadY  int
}

// Unscale bildet Letterbox-Koordinaten auf das Originalbild ab
func (l LetterboxInfo) Unscale(x, y float64) (float64, float64) {
	return (x - float64(l.PadX)) / l.Scale, (y - float64(l.PadY)) / l.Scale
}

// LetterboxColor ist die Randfarbe fuer YOLO-Eingaben
var LetterboxColor = color.NRGBA{R: 114, G: 114, B: 114, A: 255}

// Letterbox skaliert das Bild in ein size x size Quadrat und fuellt den Rest
// mit bg auf. Das Bild wird zentriert.
func Letterbox(img *ImageInput, size int, bg color.Color) (*ImageInput, LetterboxInfo, error) {
	resized, err := ResizeWithAspect(img, size, size)
	if err != nil {
		return nil, LetterboxInfo{}, err
	}

	_, _, ratio := calculateAspectSize(img.Width, img.Height, size, size)
	dw := float64(size-resized.Width) / 2
	dh := float64(size-resized.Height) / 2
	left := int(math.Round(dw - 0.1))
	top := int(math.Round(dh - 0.1))

	dst := image.NewNRGBA(image.Rect(0, 0, size, size))
	draw.Draw(dst, dst.Bounds(), &image.Uniform{bg}, image.Point{}, draw.Src)
	draw.Draw(dst, image.Rect(left, top, left+resized.Width, top+resized.Height), resized.Image, image.Point{}, draw.Src)

	return &ImageInput{
		Image:  dst,
		Width:  size,
		Height: size,
		Format: img.Format,
	}, LetterboxInfo{Scale: ratio, PadX: left, PadY: top}, nil
}
