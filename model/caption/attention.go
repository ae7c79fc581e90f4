// MODUL: attention
// ZWECK: Multi-Head-Attention im Keras-Layout (EinsumDense-Kernel)
// INPUT: query [Tq, E], value [Tk, E], optionale 0/1-Maske [Tq, Tk]
// OUTPUT: [Tq, E]
// NEBENEFFEKTE: keine
// ABHAENGIGKEITEN: ml (MatMul, MaskedSoftmax)
// HINWEISE: key_dim = embed_dim; query wird mit 1/sqrt(key_dim) skaliert;
//           key und value sind bei allen Aufrufern identisch

package caption

import (
	"fmt"

	"github.com/chewxy/math32"

	"github.com/MichaelCStrahl/vision-voice-project/ml"
)

// Dense ist eine voll verbundene Schicht: kernel [in, out], bias [out]
type Dense struct {
	Kernel *ml.Tensor `gguf:"kernel"`
	Bias   *ml.Tensor `gguf:"bias"`
}

func newDense(in, out int) *Dense {
	return &Dense{Kernel: ml.Zeros(in, out), Bias: ml.Zeros(out)}
}

// Forward berechnet x*kernel + bias
func (d *Dense) Forward(x *ml.Tensor) *ml.Tensor {
	return ml.Linear(x, d.Kernel, d.Bias)
}

// LayerNorm haelt gamma und beta einer LayerNormalization
type LayerNorm struct {
	Gamma *ml.Tensor `gguf:"gamma"`
	Beta  *ml.Tensor `gguf:"beta"`
}

func newLayerNorm(dim int) *LayerNorm {
	return &LayerNorm{Gamma: ml.Zeros(dim), Beta: ml.Zeros(dim)}
}

// Forward normalisiert jede Zeile von x (Keras epsilon 1e-3)
func (ln *LayerNorm) Forward(x *ml.Tensor) *ml.Tensor {
	return ml.LayerNorm(x, ln.Gamma, ln.Beta, ml.LayerNormEpsilon)
}

// MultiHeadAttention haelt die Projektionen einer Keras MultiHeadAttention.
// Query/Key/Value: kernel [E, H, Kd], bias [H, Kd]. Output: kernel [H, Kd, E], bias [E].
type MultiHeadAttention struct {
	Query  *Dense `gguf:"query"`
	Key    *Dense `gguf:"key"`
	Value  *Dense `gguf:"value"`
	Output *Dense `gguf:"attention_output"`

	numHeads, keyDim int
}

// NewMultiHeadAttention alloziert die Gewichte fuer embedDim und numHeads
func NewMultiHeadAttention(embedDim, numHeads int) *MultiHeadAttention {
	proj := func() *Dense {
		return &Dense{Kernel: ml.Zeros(embedDim, numHeads, embedDim), Bias: ml.Zeros(numHeads, embedDim)}
	}

	return &MultiHeadAttention{
		Query:    proj(),
		Key:      proj(),
		Value:    proj(),
		Output:   &Dense{Kernel: ml.Zeros(numHeads, embedDim, embedDim), Bias: ml.Zeros(embedDim)},
		numHeads: numHeads,
		keyDim:   embedDim,
	}
}

// Forward berechnet die Attention von query auf value. mask ist nil oder
// hat die Form [Tq, Tk]; maskierte Gewichte sind exakt 0.
func (a *MultiHeadAttention) Forward(query, value, mask *ml.Tensor) *ml.Tensor {
	tq, tk := query.Dim(0), value.Dim(0)
	if mask != nil && (mask.Dim(0) != tq || mask.Dim(1) != tk) {
		panic(fmt.Sprintf("caption: attention mask %v does not match [%d, %d]", mask.Shape, tq, tk))
	}

	q := a.Query.Forward(query) // [Tq, H, Kd]
	k := a.Key.Forward(value)   // [Tk, H, Kd]
	v := a.Value.Forward(value) // [Tk, H, Kd]
	ml.ScaleInPlace(q, 1/math32.Sqrt(float32(a.keyDim)))

	h, kd := a.numHeads, a.keyDim
	context := ml.Zeros(tq, h, kd)
	for head := range h {
		qh := headSlice(q, head, h, kd)
		kh := headSlice(k, head, h, kd)
		vh := headSlice(v, head, h, kd)

		scores := ml.MatMulTransB(qh, kh) // [Tq, Tk]
		ml.MaskedSoftmax(scores, mask)
		ctx := ml.MatMul(scores, vh) // [Tq, Kd]

		for t := range tq {
			copy(context.Data[(t*h+head)*kd:(t*h+head+1)*kd], ctx.Row(t))
		}
	}

	flat, err := context.Reshape(tq, h*kd)
	if err != nil {
		panic(err)
	}
	kernel, err := a.Output.Kernel.Reshape(h*kd, a.Output.Kernel.Dim(-1))
	if err != nil {
		panic(err)
	}

	return ml.Linear(flat, kernel, a.Output.Bias)
}

// headSlice kopiert Kopf head aus x[T, H, Kd] nach [T, Kd]
func headSlice(x *ml.Tensor, head, numHeads, keyDim int) *ml.Tensor {
	t := x.Dim(0)
	out := ml.Zeros(t, keyDim)
	for i := range t {
		copy(out.Row(i), x.Data[(i*numHeads+head)*keyDim:(i*numHeads+head+1)*keyDim])
	}
	return out
}

// CausalMask gibt die untere Dreiecksmaske [n, n] zurueck (1 fuer k <= q)
func CausalMask(n int) *ml.Tensor {
	m := ml.Zeros(n, n)
	for q := range n {
		for k := 0; k <= q; k++ {
			m.Data[q*n+k] = 1
		}
	}
	return m
}

// CombineMasks verknuepft gleich geformte 0/1-Masken elementweise (Minimum).
// nil-Masken werden ignoriert; sind alle nil, ist das Ergebnis nil.
func CombineMasks(masks ...*ml.Tensor) *ml.Tensor {
	var out *ml.Tensor
	for _, m := range masks {
		if m == nil {
			continue
		}
		if out == nil {
			out = m.Clone()
			continue
		}
		if !ml.SameShape(out.Shape, m.Shape) {
			panic(fmt.Sprintf("caption: cannot combine masks %v and %v", out.Shape, m.Shape))
		}
		for i, v := range m.Data {
			out.Data[i] = min(out.Data[i], v)
		}
	}
	return out
}

// QueryMask breitet eine Padding-Maske [Tq] ueber tk Schluessel aus: [Tq, tk]
func QueryMask(padding []float32, tk int) *ml.Tensor {
	m := ml.Zeros(len(padding), tk)
	for q, p := range padding {
		for k := range tk {
			m.Data[q*tk+k] = p
		}
	}
	return m
}

// KeyMask breitet eine Padding-Maske [Tk] ueber tq Anfragen aus: [tq, Tk]
func KeyMask(padding []float32, tq int) *ml.Tensor {
	tk := len(padding)
	m := ml.Zeros(tq, tk)
	for q := range tq {
		copy(m.Data[q*tk:(q+1)*tk], padding)
	}
	return m
}
