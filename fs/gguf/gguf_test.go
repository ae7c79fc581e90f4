package gguf

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/MichaelCStrahl/vision-voice-project/ml"
)

func writeTestFile(t *testing.T, kv map[string]any, ts []*Tensor) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "weights.gguf")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	if err := Write(f, kv, ts); err != nil {
		t.Fatal(err)
	}
	return path
}

func mustTensor(t *testing.T, data []float32, shape ...int) *ml.Tensor {
	t.Helper()
	tt, err := ml.FromSlice(data, shape...)
	if err != nil {
		t.Fatal(err)
	}
	return tt
}

func TestWriteOpenRoundTrip(t *testing.T) {
	kv := map[string]any{
		"general.architecture": "caption",
		"caption.embed_dim":    uint32(8),
		"caption.vocab":        []string{"", "[UNK]", "a"},
		"caption.image_size":   []int32{4, 5},
		"caption.scale":        float32(0.5),
		"caption.flag":         true,
	}

	path := writeTestFile(t, kv, []*Tensor{
		{Name: "b", DType: ml.DTypeF32, Tensor: mustTensor(t, []float32{1, 2, 3, 4, 5, 6}, 2, 3)},
		{Name: "a", DType: ml.DTypeF32, Tensor: mustTensor(t, []float32{7}, 1)},
	})

	f, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	if f.Version != 3 {
		t.Errorf("Version = %d, erwartet 3", f.Version)
	}

	if f.NumKeyValues() != len(kv) || f.NumTensors() != 2 {
		t.Fatalf("kv=%d tensors=%d", f.NumKeyValues(), f.NumTensors())
	}

	if got := f.KeyValue("general.architecture").String(); got != "caption" {
		t.Errorf("architecture = %q", got)
	}
	if got := f.KeyValue("caption.embed_dim").Int(); got != 8 {
		t.Errorf("embed_dim = %d", got)
	}
	if diff := cmp.Diff([]string{"", "[UNK]", "a"}, f.KeyValue("caption.vocab").Strings()); diff != "" {
		t.Errorf("vocab (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]int64{4, 5}, f.KeyValue("caption.image_size").Ints()); diff != "" {
		t.Errorf("image_size (-want +got):\n%s", diff)
	}
	if got := f.KeyValue("caption.scale").Float(); got != 0.5 {
		t.Errorf("scale = %v", got)
	}
	if !f.KeyValue("caption.flag").Bool() {
		t.Error("flag = false")
	}
	if f.KeyValue("missing").Valid() {
		t.Error("fehlender Key ist gueltig")
	}

	ti := f.TensorInfo("b")
	if diff := cmp.Diff([]uint64{3, 2}, ti.Shape); diff != "" {
		t.Errorf("ggml shape (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]int{2, 3}, ti.Dims()); diff != "" {
		t.Errorf("dims (-want +got):\n%s", diff)
	}
	if ti.Offset%DefaultAlignment != 0 {
		t.Errorf("offset %d nicht ausgerichtet", ti.Offset)
	}

	if _, _, err := f.TensorReader("nope"); err == nil {
		t.Error("erwartet Fehler fuer unbekannten Tensor")
	}
}

func TestLoadWeights(t *testing.T) {
	values := []float32{0.5, -1.25, 3, 1e-3, 65504, -2}

	path := writeTestFile(t, map[string]any{"general.alignment": uint32(64)}, []*Tensor{
		{Name: "f32", DType: ml.DTypeF32, Tensor: mustTensor(t, values, 3, 2)},
		{Name: "f16", DType: ml.DTypeF16, Tensor: mustTensor(t, values, 6)},
		{Name: "bf16", DType: ml.DTypeBF16, Tensor: mustTensor(t, values, 1, 2, 3)},
	})

	w, err := LoadWeights(context.Background(), path)
	if err != nil {
		t.Fatal(err)
	}

	if diff := cmp.Diff([]string{"bf16", "f16", "f32"}, w.Names()); diff != "" {
		t.Errorf("names (-want +got):\n%s", diff)
	}

	cases := []struct {
		name  string
		shape []int
		dtype ml.DType
		tol   float64
	}{
		{"f32", []int{3, 2}, ml.DTypeF32, 0},
		{"f16", []int{6}, ml.DTypeF16, 1e-3},
		{"bf16", []int{1, 2, 3}, ml.DTypeBF16, 1e-2},
	}

	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := w.Tensor(tt.name)
			if !ok {
				t.Fatal("tensor fehlt")
			}
			if diff := cmp.Diff(tt.shape, got.Shape); diff != "" {
				t.Errorf("shape (-want +got):\n%s", diff)
			}
			if diff := cmp.Diff(values, got.Data, cmpopts.EquateApprox(tt.tol, 1e-6)); diff != "" {
				t.Errorf("data (-want +got):\n%s", diff)
			}
			if w.DType(tt.name) != tt.dtype {
				t.Errorf("dtype = %s, erwartet %s", w.DType(tt.name), tt.dtype)
			}
		})
	}

	if w.NumBytes() != 6*4+6*2+6*2 {
		t.Errorf("NumBytes = %d", w.NumBytes())
	}
}

func TestOpenRejectsForeignFiles(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model.h5")
	if err := os.WriteFile(path, []byte("\x89HDF\r\n\x1a\n0000000000"), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := Open(path); !errors.Is(err, ErrUnsupported) {
		t.Errorf("err = %v, erwartet ErrUnsupported", err)
	}

	if _, err := Open(filepath.Join(t.TempDir(), "missing.gguf")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("err = %v, erwartet os.ErrNotExist", err)
	}
}

func TestOpenTruncated(t *testing.T) {
	path := writeTestFile(t, map[string]any{"general.name": "x"}, []*Tensor{
		{Name: "w", DType: ml.DTypeF32, Tensor: mustTensor(t, []float32{1, 2}, 2)},
	})

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, data[:30], 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := LoadWeights(context.Background(), path); err == nil {
		t.Error("erwartet Fehler bei abgeschnittener Datei")
	}
}

func TestWriteRejectsUnknownType(t *testing.T) {
	f, err := os.Create(filepath.Join(t.TempDir(), "x.gguf"))
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	err = Write(f, nil, []*Tensor{{Name: "w", DType: ml.DTypeOther, Tensor: ml.Zeros(1)}})
	if !errors.Is(err, ErrUnsupported) {
		t.Errorf("err = %v, erwartet ErrUnsupported", err)
	}
}

// header baut einen GGUF-Kopf aus Little-Endian Feldern
func header(fields ...any) []byte {
	var buf bytes.Buffer
	for _, v := range fields {
		if s, ok := v.(string); ok {
			binary.Write(&buf, binary.LittleEndian, uint64(len(s)))
			buf.WriteString(s)
			continue
		}
		binary.Write(&buf, binary.LittleEndian, v)
	}
	return buf.Bytes()
}

func TestOpenCorrupt(t *testing.T) {
	cases := []struct {
		name string
		data []byte
		want error
	}{
		{"old version", []byte("GGUF\x01\x00\x00\x00"), ErrUnsupported},
		{"short header", []byte("GGUF\x03\x00"), io.ErrUnexpectedEOF},
		{"key value count", header(magic, uint32(3), uint64(0), uint64(1<<40)), ErrCorrupt},
		{"tensor count", header(magic, uint32(3), uint64(1<<40), uint64(0)), ErrCorrupt},
		{"string length", header(magic, uint32(3), uint64(0), uint64(1), uint64(1<<50)), ErrCorrupt},
		{"array length", header(magic, uint32(3), uint64(0), uint64(1), "k", typeArray, typeFloat32, uint64(1<<40)), ErrCorrupt},
		{"unknown value type", header(magic, uint32(3), uint64(0), uint64(1), "k", uint32(99)), ErrUnsupported},
		{"too many dims", header(magic, uint32(3), uint64(1), uint64(0), "w", uint32(5), uint64(0), uint64(0)), ErrUnsupported},
		{"huge shape", header(magic, uint32(3), uint64(1), uint64(0), "w", uint32(2), uint64(1<<40), uint64(1<<40), uint32(TensorTypeF32), uint64(0)), ErrCorrupt},
		{"data beyond end", header(magic, uint32(3), uint64(1), uint64(0), "w", uint32(1), uint64(64), uint32(TensorTypeF32), uint64(0)), ErrCorrupt},
	}

	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "weights.gguf")
			if err := os.WriteFile(path, tt.data, 0o644); err != nil {
				t.Fatal(err)
			}

			f, err := Open(path)
			if !errors.Is(err, tt.want) {
				t.Errorf("err = %v, erwartet %v", err, tt.want)
			}
			if f != nil {
				t.Error("erwartet keine Datei bei Fehler")
			}

			if _, err := LoadWeights(context.Background(), path); err == nil {
				t.Error("LoadWeights: erwartet Fehler")
			}
		})
	}
}

func TestTensorReader(t *testing.T) {
	path := writeTestFile(t, nil, []*Tensor{
		{Name: "w", DType: ml.DTypeF32, Tensor: mustTensor(t, []float32{1, 2, 3}, 3)},
	})

	f, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	ti, r, err := f.TensorReader("w")
	if err != nil {
		t.Fatal(err)
	}

	raw, err := io.ReadAll(r)
	if err != nil {
		t.Fatal(err)
	}
	if int64(len(raw)) != ti.NumBytes() {
		t.Fatalf("len = %d, erwartet %d", len(raw), ti.NumBytes())
	}

	values, err := ml.DecodeFloats(ti.Type.DType(), raw)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]float32{1, 2, 3}, values); diff != "" {
		t.Errorf("data (-want +got):\n%s", diff)
	}
}
