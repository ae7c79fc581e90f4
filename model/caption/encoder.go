// MODUL: encoder
// ZWECK: Transformer-Encoder-Block ueber den Bild-Features
// INPUT: Features [N, C] aus dem Backbone
// OUTPUT: [N, E]
// NEBENEFFEKTE: keine
// ABHAENGIGKEITEN: ml, attention
// HINWEISE: LayerNorm vor der Projektion; Attention ohne Maske;
//           Residual um die Attention nach der Projektion

package caption

import (
	"github.com/MichaelCStrahl/vision-voice-project/ml"
)

// Encoder ist der Encoder-Block: ln1 -> dense relu -> MHA -> ln2(x + attn)
type Encoder struct {
	LayerNorm1 *LayerNorm          `gguf:"layernorm_1"`
	Dense1     *Dense              `gguf:"dense_1"`
	Attention  *MultiHeadAttention `gguf:"attention_1"`
	LayerNorm2 *LayerNorm          `gguf:"layernorm_2"`
}

// NewEncoder alloziert einen Encoder fuer Features der Breite features
func NewEncoder(features, embedDim, numHeads int) *Encoder {
	return &Encoder{
		LayerNorm1: newLayerNorm(features),
		Dense1:     newDense(features, embedDim),
		Attention:  NewMultiHeadAttention(embedDim, numHeads),
		LayerNorm2: newLayerNorm(embedDim),
	}
}

// Forward kodiert die Feature-Sequenz x[N, C]
func (e *Encoder) Forward(x *ml.Tensor) *ml.Tensor {
	h := e.LayerNorm1.Forward(x)
	h = e.Dense1.Forward(h)
	ml.ReLU(h)

	attn := e.Attention.Forward(h, h, nil)
	ml.AddInPlace(attn, h)
	return e.LayerNorm2.Forward(attn)
}
