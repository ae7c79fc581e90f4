package safetensors

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/MichaelCStrahl/vision-voice-project/ml"
)

func writeFile(t *testing.T, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "model.safetensors")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestWriteLoad(t *testing.T) {
	values := []float32{1, -0.5, 0.25, 4}
	kernel, err := ml.FromSlice(values, 2, 2)
	if err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	err = Write(&buf, map[string]string{"format": "keras"}, []*Tensor{
		{Name: "dense/kernel", DType: ml.DTypeF32, Tensor: kernel},
		{Name: "dense/bias", DType: ml.DTypeF16, Tensor: ml.Zeros(2)},
		{Name: "embedding", DType: ml.DTypeBF16, Tensor: kernel},
	})
	if err != nil {
		t.Fatal(err)
	}

	if n := binary.LittleEndian.Uint64(buf.Bytes()); n%8 != 0 {
		t.Errorf("Header-Laenge %d nicht ausgerichtet", n)
	}

	w, err := Load(context.Background(), writeFile(t, buf.Bytes()))
	if err != nil {
		t.Fatal(err)
	}

	if diff := cmp.Diff([]string{"dense/bias", "dense/kernel", "embedding"}, w.Names()); diff != "" {
		t.Errorf("names (-want +got):\n%s", diff)
	}
	if w.Metadata["format"] != "keras" {
		t.Errorf("metadata = %v", w.Metadata)
	}

	got, ok := w.Tensor("dense/kernel")
	if !ok {
		t.Fatal("dense/kernel fehlt")
	}
	if diff := cmp.Diff(&ml.Tensor{Shape: []int{2, 2}, Data: values}, got); diff != "" {
		t.Errorf("kernel (-want +got):\n%s", diff)
	}

	emb, _ := w.Tensor("embedding")
	if diff := cmp.Diff(values, emb.Data, cmpopts.EquateApprox(1e-2, 0)); diff != "" {
		t.Errorf("bf16 (-want +got):\n%s", diff)
	}

	if w.DType("dense/bias") != ml.DTypeF16 || w.NumBytes() != 16+4+8 {
		t.Errorf("dtype=%s bytes=%d", w.DType("dense/bias"), w.NumBytes())
	}
}

func TestLoadInvalid(t *testing.T) {
	header := func(s string) []byte {
		var b bytes.Buffer
		binary.Write(&b, binary.LittleEndian, uint64(len(s)))
		b.WriteString(s)
		return b.Bytes()
	}

	cases := map[string][]byte{
		"leer":               nil,
		"riesiger header":    binary.LittleEndian.AppendUint64(nil, 1<<40),
		"kein json":          header("not json"),
		"offset hinter ende": header(`{"w":{"dtype":"F32","shape":[2],"data_offsets":[0,8]}}`),
		"falsche laenge":     append(header(`{"w":{"dtype":"F32","shape":[3],"data_offsets":[0,8]}}`), make([]byte, 8)...),
	}

	for name, data := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(context.Background(), writeFile(t, data))
			if !errors.Is(err, ErrInvalidHeader) {
				t.Errorf("err = %v, erwartet ErrInvalidHeader", err)
			}
		})
	}
}

func TestLoadUnsupportedDType(t *testing.T) {
	var b bytes.Buffer
	h := `{"w":{"dtype":"I64","shape":[1],"data_offsets":[0,8]}}`
	binary.Write(&b, binary.LittleEndian, uint64(len(h)))
	b.WriteString(h)
	b.Write(make([]byte, 8))

	if _, err := Load(context.Background(), writeFile(t, b.Bytes())); err == nil {
		t.Error("erwartet Fehler fuer I64")
	}
}
