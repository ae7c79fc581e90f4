// ops.go - Lineare Algebra und elementweise Operationen
// Dieses Modul kapselt die GEMM-Aufrufe (gonum blas32) fuer Dense-Layer.
package ml

import (
	"fmt"

	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/blas/blas32"
)

func general(rows, cols int, data []float32) blas32.General {
	return blas32.General{Rows: rows, Cols: cols, Stride: cols, Data: data}
}

// MatMul computes a[m,k] x b[k,n]. Leading dimensions of a are folded into
// rows and b is read as a matrix over its first dimension, so Keras
// EinsumDense kernels like [E, H, Kd] can be passed directly.
func MatMul(a, b *Tensor) *Tensor {
	m, k := a.Rows()
	if len(b.Shape) == 0 || b.Shape[0] != k {
		panic(fmt.Sprintf("ml: matmul shape mismatch %v x %v", a.Shape, b.Shape))
	}
	n := len(b.Data) / k

	outShape := append(append([]int{}, a.Shape[:len(a.Shape)-1]...), b.Shape[1:]...)
	out := Zeros(outShape...)
	if m == 0 || n == 0 {
		return out
	}

	blas32.Gemm(blas.NoTrans, blas.NoTrans, 1,
		general(m, k, a.Data),
		general(k, n, b.Data),
		0,
		general(m, n, out.Data))
	return out
}

// MatMulTransB computes a[m,k] x b[n,k]^T.
func MatMulTransB(a, b *Tensor) *Tensor {
	m, k := a.Rows()
	n, kb := b.Rows()
	if k != kb {
		panic(fmt.Sprintf("ml: matmul shape mismatch %v x %v^T", a.Shape, b.Shape))
	}

	out := Zeros(m, n)
	if m == 0 || n == 0 {
		return out
	}

	blas32.Gemm(blas.NoTrans, blas.Trans, 1,
		general(m, k, a.Data),
		general(n, k, b.Data),
		0,
		general(m, n, out.Data))
	return out
}

// Linear applies a dense layer: x[..., in] x kernel[in, ...] + bias.
// A nil bias is skipped.
func Linear(x, kernel, bias *Tensor) *Tensor {
	out := MatMul(x, kernel)
	if bias != nil {
		AddBiasInPlace(out, bias)
	}
	return out
}

// AddBiasInPlace adds bias to every row of t. The bias covers the full
// trailing block (for example [H, Kd] on a [T, H, Kd] tensor).
func AddBiasInPlace(t, bias *Tensor) {
	n := len(bias.Data)
	if n == 0 || len(t.Data)%n != 0 {
		panic(fmt.Sprintf("ml: bias %v does not broadcast over %v", bias.Shape, t.Shape))
	}

	for off := 0; off < len(t.Data); off += n {
		row := t.Data[off : off+n]
		for i, b := range bias.Data {
			row[i] += b
		}
	}
}

// Add gibt a + b als neuen Tensor zurueck
func Add(a, b *Tensor) *Tensor {
	out := a.Clone()
	AddInPlace(out, b)
	return out
}

// AddInPlace adds b to a element-wise. Shapes must have the same element count.
func AddInPlace(a, b *Tensor) {
	if len(a.Data) != len(b.Data) {
		panic(fmt.Sprintf("ml: add shape mismatch %v + %v", a.Shape, b.Shape))
	}
	for i, v := range b.Data {
		a.Data[i] += v
	}
}

// ScaleInPlace multipliziert alle Elemente mit s
func ScaleInPlace(t *Tensor, s float32) {
	for i := range t.Data {
		t.Data[i] *= s
	}
}

// Argmax returns the index of the largest value. Ties resolve to the first
// occurrence.
func Argmax(v []float32) int {
	best := 0
	for i := 1; i < len(v); i++ {
		if v[i] > v[best] {
			best = i
		}
	}
	return best
}

// Gather baut einen Tensor aus Zeilen einer Tabelle (Embedding-Lookup)
func Gather(table *Tensor, ids []int32) *Tensor {
	rows, cols := table.Rows()
	out := Zeros(len(ids), cols)
	for i, id := range ids {
		if id < 0 || int(id) >= rows {
			panic(fmt.Sprintf("ml: index %d out of range [0, %d)", id, rows))
		}
		copy(out.Row(i), table.Row(int(id)))
	}
	return out
}
