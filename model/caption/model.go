// MODUL: model
// ZWECK: Captioning-Modell = Backbone + Encoder + Decoder
// INPUT: model.Config
// OUTPUT: Model mit allozierten (Null-)Gewichten, Encode/Decode/Warmup
// NEBENEFFEKTE: keine
// ABHAENGIGKEITEN: model (Config), model/efficientnet, ml
// HINWEISE: Nach dem Binden der Gewichte nur noch lesend genutzt und damit
//           fuer parallele Aufrufe sicher

package caption

import (
	"fmt"

	"github.com/MichaelCStrahl/vision-voice-project/ml"
	"github.com/MichaelCStrahl/vision-voice-project/model"
	"github.com/MichaelCStrahl/vision-voice-project/model/efficientnet"
)

// Model ist das komplette Captioning-Netz
type Model struct {
	Backbone *efficientnet.Backbone `gguf:"backbone"`
	Encoder  *Encoder               `gguf:"encoder"`
	Decoder  *Decoder               `gguf:"decoder"`

	Config model.Config
}

// New alloziert alle Gewichte fuer cfg mit Nullen
func New(cfg model.Config) (*Model, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	backbone, err := efficientnet.New(cfg.Backbone)
	if err != nil {
		return nil, err
	}

	return &Model{
		Backbone: backbone,
		Encoder:  NewEncoder(backbone.Channels(), cfg.EmbedDim, cfg.EncoderNumHeads),
		Decoder:  NewDecoder(cfg.VocabSize, cfg.SeqLength, cfg.EmbedDim, cfg.FFDim, cfg.DecoderNumHeads),
		Config:   cfg,
	}, nil
}

// Encode berechnet die Encoder-Ausgabe [N, E] fuer img[H, W, 3]
func (m *Model) Encode(img *ml.Tensor) (*ml.Tensor, error) {
	if want := []int{m.Config.ImageSize[0], m.Config.ImageSize[1], 3}; !ml.SameShape(img.Shape, want) {
		return nil, fmt.Errorf("caption: image shape %v, model expects %v", img.Shape, want)
	}

	features, err := m.Backbone.Forward(img)
	if err != nil {
		return nil, err
	}

	return m.Encoder.Forward(features), nil
}

// Decode gibt die Wahrscheinlichkeiten [T, V] fuer ids zurueck
func (m *Model) Decode(ids []int32, encoded *ml.Tensor, padding []float32) *ml.Tensor {
	return m.Decoder.Forward(ids, encoded, padding)
}

// Warmup fuehrt einen Vorwaertslauf mit Null-Eingaben durch (Bild [H, W, 3],
// L-1 Tokens mit leerer Maske) und meldet inkonsistente Shapes als Fehler.
func (m *Model) Warmup() (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("caption: warmup failed: %v", r)
		}
	}()

	encoded, err := m.Encode(ml.Zeros(m.Config.ImageSize[0], m.Config.ImageSize[1], 3))
	if err != nil {
		return err
	}

	ids := make([]int32, m.Config.SeqLength-1)
	probs := m.Decode(ids, encoded, PaddingMask(ids))
	if want := []int{len(ids), m.Config.VocabSize}; !ml.SameShape(probs.Shape, want) {
		return fmt.Errorf("caption: warmup output %v, expected %v", probs.Shape, want)
	}

	return nil
}

// Tensors listet alle Gewichte mit ihren Namen
func (m *Model) Tensors() []model.NamedTensor {
	return model.Tensors(m)
}
