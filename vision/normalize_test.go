// MODUL: normalize_test
// ZWECK: Tests fuer Tensor-Konvertierung, Resize und Statistik
// INPUT: Synthetische Bilder
// OUTPUT: Testresultate
// NEBENEFFEKTE: keine
// ABHAENGIGKEITEN: testing, image
// HINWEISE: Resize-Erwartungswerte sind von Hand nachgerechnet

package vision

import (
	"image"
	"image/color"
	"math"
	"slices"
	"testing"
)

// newImage erzeugt ein ImageInput mit den angegebenen Grauwerten (zeilenweise)
func newImage(w, h int, values ...uint8) *ImageInput {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for i, v := range values {
		img.Set(i%w, i/w, color.NRGBA{v, v, v, 255})
	}
	return &ImageInput{Image: img, Width: w, Height: h, Format: FormatPNG}
}

func TestToFloat32Tensor(t *testing.T) {
	img := newImage(2, 1, 0, 255)
	got := ToFloat32Tensor(img)

	want := []float32{0, 0, 0, 1, 1, 1}
	for i := range want {
		if math.Abs(float64(got[i]-want[i])) > 1e-6 {
			t.Errorf("[%d] = %v, erwartet %v", i, got[i], want[i])
		}
	}
}

func TestCHWTensorLayout(t *testing.T) {
	hwc := []float32{1, 2, 3, 4, 5, 6} // 1x2x3
	chw := CHWTensorLayout(hwc, 1, 2, 3)
	want := []float32{1, 4, 2, 5, 3, 6}
	for i := range want {
		if chw[i] != want[i] {
			t.Fatalf("CHW = %v, erwartet %v", chw, want)
		}
	}

	if CHWTensorLayout(hwc, 2, 2, 3) != nil {
		t.Error("erwartet nil bei falscher Groesse")
	}
}

func TestResizeBilinearIdentity(t *testing.T) {
	img := newImage(3, 2, 0, 51, 102, 153, 204, 255)
	out, err := ResizeBilinear(img, 2, 3)
	if err != nil {
		t.Fatal(err)
	}

	for i, v := range []uint8{0, 51, 102, 153, 204, 255} {
		if got := out.Data[i*3]; math.Abs(float64(got)-float64(v)/255) > 1e-6 {
			t.Errorf("Pixel %d = %v, erwartet %v", i, got, float64(v)/255)
		}
	}
}

func TestResizeBilinearHalfPixel(t *testing.T) {
	// 2x1 -> 4x1: Half-Pixel-Zentren ergeben 0, 0.25, 0.75, 1 der Strecke
	img := newImage(2, 1, 0, 200)
	out, err := ResizeBilinear(img, 1, 4)
	if err != nil {
		t.Fatal(err)
	}

	want := []float64{0, 50, 150, 200}
	for i, w := range want {
		if got := float64(out.Data[i*3]) * 255; math.Abs(got-w) > 1e-3 {
			t.Errorf("x=%d: %v, erwartet %v", i, got, w)
		}
	}

	if len(out.Shape) != 3 || out.Shape[0] != 1 || out.Shape[1] != 4 || out.Shape[2] != 3 {
		t.Errorf("Shape = %v, erwartet [1 4 3]", out.Shape)
	}
}

func TestResizeBilinearDownscaleUnrounded(t *testing.T) {
	// 3x1 -> 2x1: in = (x+0.5)*1.5-0.5 = 0.25, 1.75
	img := newImage(3, 1, 0, 1, 3)
	out, err := ResizeBilinear(img, 1, 2)
	if err != nil {
		t.Fatal(err)
	}

	want := []float64{0.25, 2.5}
	for i, w := range want {
		if got := float64(out.Data[i*3]) * 255; math.Abs(got-w) > 1e-4 {
			t.Errorf("x=%d: %v, erwartet %v", i, got, w)
		}
	}
}

func TestPreprocessSinglePixel(t *testing.T) {
	data := createPNGBytes(1, 1, color.NRGBA{255, 128, 0, 255})
	out, err := Preprocess(data, 4, 5)
	if err != nil {
		t.Fatal(err)
	}

	if len(out.Data) != 4*5*3 {
		t.Fatalf("Laenge = %d, erwartet %d", len(out.Data), 4*5*3)
	}
	for i := 0; i < len(out.Data); i += 3 {
		if out.Data[i] != 1 || math.Abs(float64(out.Data[i+1])-128.0/255) > 1e-6 || out.Data[i+2] != 0 {
			t.Fatalf("Pixel %d = %v, erwartet (1, 0.502, 0)", i/3, out.Data[i:i+3])
		}
	}
}

func TestPreprocessSameSize(t *testing.T) {
	data := createPNGBytes(3, 2, color.NRGBA{10, 20, 30, 255})
	img, err := LoadImageFromBytes(data)
	if err != nil {
		t.Fatal(err)
	}

	want, err := ResizeBilinear(img, 2, 3)
	if err != nil {
		t.Fatal(err)
	}

	got, err := Preprocess(data, 2, 3)
	if err != nil {
		t.Fatal(err)
	}

	if !slices.Equal(got.Shape, want.Shape) || !slices.Equal(got.Data, want.Data) {
		t.Errorf("Preprocess = %v %v, erwartet %v %v", got.Shape, got.Data, want.Shape, want.Data)
	}
}

func TestPreprocessRejectsGarbage(t *testing.T) {
	if _, err := Preprocess([]byte("not an image at all"), 4, 4); err == nil {
		t.Error("Erwartet Fehler bei ungueltigen Bytes")
	}
}

func TestSummarize(t *testing.T) {
	img := newImage(2, 2, 0, 0, 255, 255)
	s := Summarize(ToTensor(img))

	if math.Abs(s.Mean-0.5) > 1e-6 {
		t.Errorf("Mean = %v, erwartet 0.5", s.Mean)
	}
	// Populations-Standardabweichung von {0, 1} in gleicher Anzahl
	if math.Abs(s.Std-0.5) > 1e-6 {
		t.Errorf("Std = %v, erwartet 0.5", s.Std)
	}
	if s.Min != 0 || s.Max != 1 {
		t.Errorf("Min/Max = %v/%v, erwartet 0/1", s.Min, s.Max)
	}

	if got := Summarize(nil); got != (Summary{}) {
		t.Errorf("Summarize(nil) = %+v, erwartet leer", got)
	}
}
