// MODUL: decoder
// ZWECK: Transformer-Decoder-Block mit Positions-Embedding und Vokabular-Kopf
// INPUT: Token-IDs [T], Encoder-Ausgabe [N, E], Padding-Maske [T] (optional)
// OUTPUT: Wahrscheinlichkeiten [T, V]
// NEBENEFFEKTE: keine
// ABHAENGIGKEITEN: ml, attention
// HINWEISE: Self-Attention: kausal UND Key-Padding UND Query-Padding;
//           Cross-Attention: nur Query-Padding (Zeilen gepaddeter Positionen sind 0)

package caption

import (
	"fmt"

	"github.com/chewxy/math32"

	"github.com/MichaelCStrahl/vision-voice-project/ml"
)

// PositionalEmbedding summiert skalierte Token-Embeddings und Positions-Embeddings
type PositionalEmbedding struct {
	Tokens    *ml.Tensor `gguf:"token_embeddings.embeddings"`
	Positions *ml.Tensor `gguf:"position_embeddings.embeddings"`
}

// NewPositionalEmbedding alloziert Tabellen [vocab, E] und [seqLen, E]
func NewPositionalEmbedding(vocabSize, seqLen, embedDim int) *PositionalEmbedding {
	return &PositionalEmbedding{
		Tokens:    ml.Zeros(vocabSize, embedDim),
		Positions: ml.Zeros(seqLen, embedDim),
	}
}

// Forward gibt token_embedding(ids)*sqrt(E) + position_embedding(0..T-1) zurueck
func (p *PositionalEmbedding) Forward(ids []int32) *ml.Tensor {
	if len(ids) > p.Positions.Dim(0) {
		panic(fmt.Sprintf("caption: %d tokens exceed %d positions", len(ids), p.Positions.Dim(0)))
	}

	out := ml.Gather(p.Tokens, ids)
	ml.ScaleInPlace(out, math32.Sqrt(float32(p.Tokens.Dim(1))))

	_, e := out.Rows()
	positions := &ml.Tensor{Shape: []int{len(ids), e}, Data: p.Positions.Data[:len(ids)*e]}
	ml.AddInPlace(out, positions)
	return out
}

// Decoder ist der Decoder-Block inklusive Embedding und Ausgabeschicht
type Decoder struct {
	Embedding      *PositionalEmbedding `gguf:"embedding"`
	Attention1     *MultiHeadAttention  `gguf:"attention_1"`
	CrossAttention *MultiHeadAttention  `gguf:"cross_attention_2"`
	FFN1           *Dense               `gguf:"ffn_layer_1"`
	FFN2           *Dense               `gguf:"ffn_layer_2"`
	LayerNorm1     *LayerNorm           `gguf:"layernorm_1"`
	LayerNorm2     *LayerNorm           `gguf:"layernorm_2"`
	LayerNorm3     *LayerNorm           `gguf:"layernorm_3"`
	Out            *Dense               `gguf:"out"`
}

// NewDecoder alloziert einen Decoder
func NewDecoder(vocabSize, seqLen, embedDim, ffDim, numHeads int) *Decoder {
	return &Decoder{
		Embedding:      NewPositionalEmbedding(vocabSize, seqLen, embedDim),
		Attention1:     NewMultiHeadAttention(embedDim, numHeads),
		CrossAttention: NewMultiHeadAttention(embedDim, numHeads),
		FFN1:           newDense(embedDim, ffDim),
		FFN2:           newDense(ffDim, embedDim),
		LayerNorm1:     newLayerNorm(embedDim),
		LayerNorm2:     newLayerNorm(embedDim),
		LayerNorm3:     newLayerNorm(embedDim),
		Out:            newDense(embedDim, vocabSize),
	}
}

// PaddingMask gibt 1 fuer ids != 0 und 0 fuer Padding zurueck
func PaddingMask(ids []int32) []float32 {
	m := make([]float32, len(ids))
	for i, id := range ids {
		if id != 0 {
			m[i] = 1
		}
	}
	return m
}

// Forward berechnet die Wahrscheinlichkeitsverteilung ueber das Vokabular
// fuer jede Position. padding ist nil (keine Maske) oder hat Laenge len(ids).
func (d *Decoder) Forward(ids []int32, encoded *ml.Tensor, padding []float32) *ml.Tensor {
	t := len(ids)
	if padding != nil && len(padding) != t {
		panic(fmt.Sprintf("caption: padding mask length %d does not match %d tokens", len(padding), t))
	}

	x := d.Embedding.Forward(ids)

	selfMask := CausalMask(t)
	var crossMask *ml.Tensor
	if padding != nil {
		selfMask = CombineMasks(selfMask, KeyMask(padding, t), QueryMask(padding, t))
		crossMask = QueryMask(padding, encoded.Dim(0))
	}

	attn := d.Attention1.Forward(x, x, selfMask)
	ml.AddInPlace(attn, x)
	out1 := d.LayerNorm1.Forward(attn)

	cross := d.CrossAttention.Forward(out1, encoded, crossMask)
	ml.AddInPlace(cross, out1)
	out2 := d.LayerNorm2.Forward(cross)

	ffn := d.FFN1.Forward(out2)
	ml.ReLU(ffn)
	ffn = d.FFN2.Forward(ffn)
	ml.AddInPlace(ffn, out2)
	out3 := d.LayerNorm3.Forward(ffn)

	probs := d.Out.Forward(out3)
	ml.Softmax(probs)
	return probs
}
