package detect

import (
	"bytes"
	"context"
	"encoding/base64"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MichaelCStrahl/vision-voice-project/vision"
)

type fakeBackend struct {
	out    []float32
	shape  []int64
	fixed  int
	size   int
	inputs int
	closed bool
}

func (f *fakeBackend) Run(_ context.Context, input []float32, size int) ([]float32, []int64, error) {
	f.size, f.inputs = size, len(input)
	return f.out, f.shape, nil
}

func (f *fakeBackend) InputSize() int { return f.fixed }

func (f *fakeBackend) Close() error {
	f.closed = true
	return nil
}

// channelMajor baut eine Ausgabe [1, 4+nc, A] aus Zeilen pro Anker
func channelMajor(anchors [][]float32) ([]float32, []int64) {
	channels := len(anchors[0])
	out := make([]float32, channels*len(anchors))
	for a, row := range anchors {
		for c, v := range row {
			out[c*len(anchors)+a] = v
		}
	}
	return out, []int64{1, int64(channels), int64(len(anchors))}
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()

	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := range h {
		for x := range w {
			img.Set(x, y, color.NRGBA{200, 100, 50, 255})
		}
	}

	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

var approx = cmpopts.EquateApprox(0, 1e-4)

func TestDecodeLayouts(t *testing.T) {
	anchors := [][]float32{
		{10, 10, 4, 4, 0.1, 0.9},
		{20, 20, 2, 2, 0.2, 0.1},
	}
	want := []Box{{X1: 8, Y1: 8, X2: 12, Y2: 12, Score: 0.9, ClassID: 1}}

	out, shape := channelMajor(anchors)
	got, err := Decode(out, shape, 2, 0.25)
	require.NoError(t, err)
	if diff := cmp.Diff(want, got, approx); diff != "" {
		t.Errorf("channel-major (-want +got):\n%s", diff)
	}

	var transposed []float32
	for _, row := range anchors {
		transposed = append(transposed, row...)
	}
	got, err = Decode(transposed, []int64{1, 2, 6}, 2, 0.25)
	require.NoError(t, err)
	if diff := cmp.Diff(want, got, approx); diff != "" {
		t.Errorf("anchor-major (-want +got):\n%s", diff)
	}

	_, err = Decode(out, []int64{1, 7, 2}, 2, 0.25)
	assert.Error(t, err)
	_, err = Decode(out[:5], shape, 2, 0.25)
	assert.Error(t, err)
}

func TestIoU(t *testing.T) {
	a := Box{X1: 0, Y1: 0, X2: 2, Y2: 2}
	b := Box{X1: 1, Y1: 0, X2: 3, Y2: 2}

	assert.InDelta(t, 2.0/6.0, IoU(a, b), 1e-9)
	assert.InDelta(t, 1.0, IoU(a, a), 1e-9)
	assert.Zero(t, IoU(a, Box{X1: 5, Y1: 5, X2: 6, Y2: 6}))
}

func TestNMS(t *testing.T) {
	boxes := []Box{
		{X1: 0, Y1: 0, X2: 10, Y2: 10, Score: 0.6, ClassID: 0},
		{X1: 1, Y1: 1, X2: 10, Y2: 10, Score: 0.9, ClassID: 0},
		{X1: 0, Y1: 0, X2: 10, Y2: 10, Score: 0.7, ClassID: 1},
		{X1: 50, Y1: 50, X2: 60, Y2: 60, Score: 0.3, ClassID: 0},
	}

	got := NMS(boxes, 0.5, 100)
	scores := make([]float64, len(got))
	for i, b := range got {
		scores[i] = b.Score
	}
	assert.Equal(t, []float64{0.9, 0.7, 0.3}, scores)

	assert.Len(t, NMS(got, 0.5, 2), 2)
}

func TestScale(t *testing.T) {
	info := vision.LetterboxInfo{Scale: 0.5, PadX: 0, PadY: 10}
	boxes := []Box{{X1: -4, Y1: 10, X2: 20, Y2: 200}}

	Scale(boxes, info, 30, 100)
	if diff := cmp.Diff([]Box{{X1: 0, Y1: 0, X2: 30, Y2: 100}}, boxes, approx); diff != "" {
		t.Errorf("Scale (-want +got):\n%s", diff)
	}
}

func TestDecodeBase64Image(t *testing.T) {
	raw := []byte{0x89, 'P', 'N', 'G', 1, 2, 3}
	enc := base64.StdEncoding.EncodeToString(raw)

	cases := []struct {
		name string
		in   string
		want []byte
		err  error
	}{
		{"rein", enc, raw, nil},
		{"mit Leerzeichen", "  " + enc + "\n", raw, nil},
		{"data url", "data:image/png;base64," + enc, raw, nil},
		{"data url ohne base64", "data:image/png," + enc, nil, ErrInvalidDataURL},
		{"ungueltig", "###", nil, ErrInvalidBase64},
	}

	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeBase64Image(tt.in)
			if tt.err != nil {
				require.ErrorIs(t, err, tt.err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParamsNormalize(t *testing.T) {
	p, err := Params{Conf: 0.25, IoU: 0.5, ImgSz: 100, MaxDet: 10}.Normalize()
	require.NoError(t, err)
	assert.Equal(t, 128, p.ImgSz)

	for _, bad := range []Params{
		{Conf: 1.5, IoU: 0.5, ImgSz: 640, MaxDet: 1},
		{Conf: 0.2, IoU: -1, ImgSz: 640, MaxDet: 1},
		{Conf: 0.2, IoU: 0.5, ImgSz: 0, MaxDet: 1},
		{Conf: 0.2, IoU: 0.5, ImgSz: 640, MaxDet: 0},
	} {
		_, err := bad.Normalize()
		assert.ErrorIs(t, err, ErrInvalidParams, "%+v", bad)
	}
}

func writeModelDir(t *testing.T, config, labels string) string {
	t.Helper()

	dir := t.TempDir()
	if config != "" {
		require.NoError(t, os.WriteFile(filepath.Join(dir, ConfigFile), []byte(config), 0o644))
	}
	if labels != "" {
		require.NoError(t, os.WriteFile(filepath.Join(dir, LabelsFile), []byte(labels), 0o644))
	}
	return dir
}

func TestLoadConfigAndLabels(t *testing.T) {
	dir := writeModelDir(t, `{"conf": 0.4, "return_bboxes": true}`, `{"classes": ["cat", "dog", 7]}`)

	cfg, err := LoadConfig(dir)
	require.NoError(t, err)

	want := DefaultConfig()
	want.Conf = 0.4
	want.ReturnBBoxes = true
	assert.Equal(t, want, cfg)
	assert.Equal(t, filepath.Join(dir, "best.onnx"), cfg.ONNXPath(dir))

	labels, err := LoadLabels(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{"cat", "dog", "7"}, labels)

	for _, bad := range []string{`{"classes": []}`, `{"names": ["a"]}`, `[1, 2]`} {
		_, err := LoadLabels(writeModelDir(t, "", bad))
		assert.ErrorIs(t, err, ErrInvalidLabels, bad)
	}
}

func TestDetect(t *testing.T) {
	out, shape := channelMajor([][]float32{
		{32, 32, 16, 8, 0.05, 0.9},
		{33, 32, 16, 8, 0.05, 0.8},
		{10, 10, 4, 4, 0.1, 0.1},
	})
	backend := &fakeBackend{out: out, shape: shape}

	cfg := DefaultConfig()
	cfg.ReturnBBoxes = true
	d := New(cfg, []string{"cat", "dog"}, backend)

	det, err := d.Detect(context.Background(), pngBytes(t, 200, 100), Params{Conf: 0.25, IoU: 0.5, ImgSz: 64, MaxDet: 10})
	require.NoError(t, err)

	assert.Equal(t, 64, backend.size)
	assert.Equal(t, 3*64*64, backend.inputs)

	// Letterbox 200x100 -> 64: Skala 0.32, oben 16 Pixel Rand
	want := []Object{{Class: "dog", Confidence: 0.9, ClassID: 1, BBox: []float64{75, 37.5, 125, 62.5}}}
	if diff := cmp.Diff(want, det.Objects, approx); diff != "" {
		t.Errorf("objects (-want +got):\n%s", diff)
	}

	// ohne Bounding-Boxen und mit fester Eingabegroesse
	backend.fixed = 96
	d.Config.ReturnBBoxes = false
	det, err = d.Detect(context.Background(), pngBytes(t, 200, 100), Params{Conf: 0.25, IoU: 0.5, ImgSz: 64, MaxDet: 10})
	require.NoError(t, err)
	assert.Equal(t, 96, det.Params.ImgSz)
	require.Len(t, det.Objects, 1)
	assert.Nil(t, det.Objects[0].BBox)

	_, err = d.Detect(context.Background(), []byte("no image"), cfg.Params())
	assert.ErrorIs(t, err, vision.ErrUnknownFormat)
}

func TestLoader(t *testing.T) {
	l := NewLoader(filepath.Join(t.TempDir(), "missing"))

	_, err := l.Get()
	require.ErrorIs(t, err, ErrNotLoaded)
	require.ErrorIs(t, err, ErrModelDirNotFound)

	st := l.Status()
	assert.False(t, st.Loaded)
	assert.Error(t, st.Err)

	backend := &fakeBackend{}
	l.Set(New(DefaultConfig(), []string{"a", "b"}, backend))
	st = l.Status()
	assert.True(t, st.Loaded)
	assert.Equal(t, 2, st.LabelsCount)

	require.NoError(t, l.Close())
	assert.True(t, backend.closed)
}

func TestLoadMissingWeights(t *testing.T) {
	dir := writeModelDir(t, `{}`, `{"classes": ["a"]}`)

	_, err := Load(dir)
	require.ErrorIs(t, err, ErrWeightsNotFound)
}
