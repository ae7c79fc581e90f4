// tensor.go - Dichter float32-Tensor fuer die Inferenz
// Dieses Modul definiert Tensor (row-major) und die Konstruktoren.
package ml

import (
	"fmt"
	"slices"
)

// Tensor is a dense, row-major float32 tensor. The last dimension is the
// fastest varying one, matching the layout of the exported Keras weights.
type Tensor struct {
	Shape []int
	Data  []float32
}

// Zeros erstellt einen mit Nullen gefuellten Tensor
func Zeros(shape ...int) *Tensor {
	return &Tensor{
		Shape: slices.Clone(shape),
		Data:  make([]float32, NumElements(shape)),
	}
}

// FromSlice wraps data without copying. The element count must match shape.
func FromSlice(data []float32, shape ...int) (*Tensor, error) {
	if n := NumElements(shape); n != len(data) {
		return nil, fmt.Errorf("ml: %d elements do not fit shape %v (%d)", len(data), shape, n)
	}

	return &Tensor{Shape: slices.Clone(shape), Data: data}, nil
}

// NumElements gibt das Produkt aller Dimensionen zurueck
func NumElements(shape []int) int {
	n := 1
	for _, d := range shape {
		n *= d
	}
	return n
}

// Dim returns the size of dimension i. Negative indices count from the end.
func (t *Tensor) Dim(i int) int {
	if i < 0 {
		i += len(t.Shape)
	}
	return t.Shape[i]
}

// Len gibt die Anzahl der Elemente zurueck
func (t *Tensor) Len() int {
	return len(t.Data)
}

// Clone erstellt eine tiefe Kopie
func (t *Tensor) Clone() *Tensor {
	return &Tensor{Shape: slices.Clone(t.Shape), Data: slices.Clone(t.Data)}
}

// Reshape returns a view with a new shape sharing the same storage.
func (t *Tensor) Reshape(shape ...int) (*Tensor, error) {
	if NumElements(shape) != len(t.Data) {
		return nil, fmt.Errorf("ml: cannot reshape %v to %v", t.Shape, shape)
	}
	return &Tensor{Shape: slices.Clone(shape), Data: t.Data}, nil
}

// Rows views t as a matrix: every dimension except the last is folded into rows.
func (t *Tensor) Rows() (rows, cols int) {
	if len(t.Shape) == 0 {
		return 1, 1
	}
	cols = t.Shape[len(t.Shape)-1]
	if cols == 0 {
		return 0, 0
	}
	return len(t.Data) / cols, cols
}

// Row gibt die i-te Zeile der Matrix-Sicht zurueck
func (t *Tensor) Row(i int) []float32 {
	_, cols := t.Rows()
	return t.Data[i*cols : (i+1)*cols]
}

// SameShape reports whether two shapes are identical.
func SameShape(a, b []int) bool {
	return slices.Equal(a, b)
}

func (t *Tensor) String() string {
	return fmt.Sprintf("Tensor%v", t.Shape)
}
