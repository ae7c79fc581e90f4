// Package gguf - Tensor-Infos und Tensor-Typen
//
// Dieses Modul enthaelt die Beschreibung der gespeicherten Tensoren:
// - TensorType: ggml-Typ-ID (nur F32, F16 und BF16 werden unterstuetzt)
// - TensorInfo: Name, Offset, Shape (ggml-Reihenfolge) und Typ
package gguf

import (
	"fmt"
	"slices"

	"github.com/MichaelCStrahl/vision-voice-project/ml"
)

// TensorType ist die ggml-Typ-ID eines Tensors
type TensorType uint32

const (
	TensorTypeF32  TensorType = 0
	TensorTypeF16  TensorType = 1
	TensorTypeBF16 TensorType = 30
)

// DType bildet den ggml-Typ auf den Speichertyp ab
func (t TensorType) DType() ml.DType {
	switch t {
	case TensorTypeF32:
		return ml.DTypeF32
	case TensorTypeF16:
		return ml.DTypeF16
	case TensorTypeBF16:
		return ml.DTypeBF16
	default:
		return ml.DTypeOther
	}
}

func (t TensorType) String() string {
	if d := t.DType(); d != ml.DTypeOther {
		return d.String()
	}
	return fmt.Sprintf("type(%d)", uint32(t))
}

// tensorTypeOf ist die Umkehrung von DType
func tensorTypeOf(d ml.DType) (TensorType, error) {
	switch d {
	case ml.DTypeF32:
		return TensorTypeF32, nil
	case ml.DTypeF16:
		return TensorTypeF16, nil
	case ml.DTypeBF16:
		return TensorTypeBF16, nil
	default:
		return 0, fmt.Errorf("%w tensor type %s", ErrUnsupported, d)
	}
}

// TensorInfo beschreibt einen Tensor in der Datei. Shape steht in
// ggml-Reihenfolge, die schnellste Dimension zuerst.
type TensorInfo struct {
	Name   string
	Offset uint64
	Shape  []uint64
	Type   TensorType
}

// Valid meldet, ob die Info aus der Datei stammt
func (ti TensorInfo) Valid() bool {
	return ti.Name != "" && ti.NumBytes() > 0
}

// NumValues gibt die Anzahl der Elemente zurueck
func (ti TensorInfo) NumValues() int64 {
	var numItems int64 = 1
	for _, dim := range ti.Shape {
		numItems *= int64(dim)
	}
	return numItems
}

// NumBytes gibt die Datengroesse in Bytes zurueck, 0 bei unbekanntem Typ
func (ti TensorInfo) NumBytes() int64 {
	return ti.NumValues() * int64(ti.Type.DType().Size())
}

// Dims gibt die Shape in row-major Reihenfolge zurueck (langsamste Dimension zuerst)
func (ti TensorInfo) Dims() []int {
	dims := make([]int, len(ti.Shape))
	for i, d := range ti.Shape {
		dims[len(dims)-1-i] = int(d)
	}
	return dims
}

// ggmlShape kehrt eine row-major Shape in ggml-Reihenfolge um
func ggmlShape(shape []int) []uint64 {
	out := make([]uint64, len(shape))
	for i, d := range slices.Backward(shape) {
		out[len(shape)-1-i] = uint64(d)
	}
	return out
}
