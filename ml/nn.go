// nn.go - Aktivierungen, Normalisierung und Softmax
// Dieses Modul implementiert die Inferenz-Pfade der Keras-Layer
// (LayerNormalization, BatchNormalization, Normalization, Softmax).
package ml

import (
	"fmt"

	"github.com/chewxy/math32"
)

// Keras Defaults
const (
	LayerNormEpsilon = 1e-3
	BatchNormEpsilon = 1e-3

	// maskedLogit is added to masked attention logits before softmax
	maskedLogit = -1e9
)

// ReLU wendet max(x, 0) elementweise an
func ReLU(t *Tensor) {
	for i, v := range t.Data {
		if v < 0 {
			t.Data[i] = 0
		}
	}
}

func sigmoid(x float32) float32 {
	return 1 / (1 + math32.Exp(-x))
}

// Sigmoid wendet 1/(1+e^-x) elementweise an
func Sigmoid(t *Tensor) {
	for i, v := range t.Data {
		t.Data[i] = sigmoid(v)
	}
}

// Swish wendet x*sigmoid(x) elementweise an
func Swish(t *Tensor) {
	for i, v := range t.Data {
		t.Data[i] = v * sigmoid(v)
	}
}

// Softmax normalizes every row of t in place.
func Softmax(t *Tensor) {
	rows, _ := t.Rows()
	for r := range rows {
		softmaxRow(t.Row(r))
	}
}

func softmaxRow(row []float32) {
	if len(row) == 0 {
		return
	}

	maxVal := row[0]
	for _, v := range row[1:] {
		maxVal = math32.Max(maxVal, v)
	}

	var sum float32
	for i, v := range row {
		e := math32.Exp(v - maxVal)
		row[i] = e
		sum += e
	}

	for i := range row {
		row[i] /= sum
	}
}

// MaskedSoftmax normalizes every row of scores[rows, cols] in place under a
// 0/1 mask of the same shape. Masked logits receive a large negative offset
// and the normalized weights are multiplied by the mask afterwards, so masked
// positions end up exactly zero and fully masked rows become all zeros.
// A nil mask is plain softmax.
func MaskedSoftmax(scores, mask *Tensor) {
	if mask == nil {
		Softmax(scores)
		return
	}

	if len(mask.Data) != len(scores.Data) {
		panic(fmt.Sprintf("ml: mask %v does not match scores %v", mask.Shape, scores.Shape))
	}

	rows, _ := scores.Rows()
	for r := range rows {
		row := scores.Row(r)
		m := mask.Row(r)
		for i := range row {
			row[i] += (1 - m[i]) * maskedLogit
		}

		softmaxRow(row)

		for i := range row {
			row[i] *= m[i]
		}
	}
}

// LayerNorm normalizes every row of x over its last dimension:
// (x - mean) / sqrt(var + eps) * gamma + beta.
func LayerNorm(x, gamma, beta *Tensor, eps float32) *Tensor {
	out := x.Clone()
	rows, cols := out.Rows()
	if len(gamma.Data) != cols || len(beta.Data) != cols {
		panic(fmt.Sprintf("ml: layernorm params %v/%v do not match %v", gamma.Shape, beta.Shape, x.Shape))
	}

	n := float32(cols)
	for r := range rows {
		row := out.Row(r)

		var mean float32
		for _, v := range row {
			mean += v
		}
		mean /= n

		var variance float32
		for _, v := range row {
			d := v - mean
			variance += d * d
		}
		variance /= n

		inv := 1 / math32.Sqrt(variance+eps)
		for i, v := range row {
			scale := inv * gamma.Data[i]
			row[i] = v*scale + (beta.Data[i] - mean*scale)
		}
	}

	return out
}

// BatchNorm applies inference-mode batch normalization with moving
// statistics over the last (channel) dimension of x, in place.
func BatchNorm(x, gamma, beta, mean, variance *Tensor, eps float32) {
	_, c := x.Rows()
	for _, p := range []*Tensor{gamma, beta, mean, variance} {
		if len(p.Data) != c {
			panic(fmt.Sprintf("ml: batchnorm param %v does not match %v", p.Shape, x.Shape))
		}
	}

	scale := make([]float32, c)
	shift := make([]float32, c)
	for i := range c {
		scale[i] = gamma.Data[i] / math32.Sqrt(variance.Data[i]+eps)
		shift[i] = beta.Data[i] - mean.Data[i]*scale[i]
	}

	for off := 0; off < len(x.Data); off += c {
		row := x.Data[off : off+c]
		for i, v := range row {
			row[i] = v*scale[i] + shift[i]
		}
	}
}

// Standardize applies a Keras Normalization layer in place:
// (x - mean) / max(sqrt(var), 1e-7) over the last dimension.
func Standardize(x, mean, variance *Tensor) {
	_, c := x.Rows()
	if len(mean.Data) != c || len(variance.Data) != c {
		panic(fmt.Sprintf("ml: normalization params %v/%v do not match %v", mean.Shape, variance.Shape, x.Shape))
	}

	std := make([]float32, c)
	for i := range c {
		std[i] = math32.Max(math32.Sqrt(variance.Data[i]), 1e-7)
	}

	for off := 0; off < len(x.Data); off += c {
		row := x.Data[off : off+c]
		for i, v := range row {
			row[i] = (v - mean.Data[i]) / std[i]
		}
	}
}
