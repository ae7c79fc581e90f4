// Package captiontest - Hilfsfunktionen fuer Tests mit kleinen Caption-Modellen
//
// Dieses Modul enthaelt:
// - Config/Vocabulary: winzige, zueinander passende Konfiguration
// - RandomModel: Modell mit deterministischen Zufallsgewichten
// - WriteArtifacts: schreibt metadata.json, vocab.json und Gewichte
// - Artifacts: komplett geladene Artefakte fuer Server- und CLI-Tests
// - PNG: synthetisches Testbild
package captiontest

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"math"
	"math/rand/v2"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/MichaelCStrahl/vision-voice-project/caption"
	"github.com/MichaelCStrahl/vision-voice-project/fs/gguf"
	"github.com/MichaelCStrahl/vision-voice-project/fs/safetensors"
	"github.com/MichaelCStrahl/vision-voice-project/ml"
	"github.com/MichaelCStrahl/vision-voice-project/model"
	captionmodel "github.com/MichaelCStrahl/vision-voice-project/model/caption"
	"github.com/MichaelCStrahl/vision-voice-project/model/efficientnet"
	"github.com/MichaelCStrahl/vision-voice-project/tokenizer"
)

// Config gibt eine winzige Modell-Konfiguration zurueck (8x8 Bild, L=5, V=7)
func Config() model.Config {
	return model.Config{
		ImageSize:       [2]int{8, 8},
		SeqLength:       5,
		VocabSize:       7,
		EmbedDim:        4,
		FFDim:           6,
		EncoderNumHeads: 2,
		DecoderNumHeads: 3,
		StripChars:      tokenizer.DefaultStripChars,
		PadToken:        tokenizer.DefaultPadToken,
		OOVToken:        tokenizer.DefaultOOVToken,
		Backbone: efficientnet.Config{
			StemFilters: 8,
			TopFilters:  8,
			Blocks: []efficientnet.BlockSpec{
				{KernelSize: 3, Repeats: 1, FiltersIn: 8, FiltersOut: 8, ExpandRatio: 1, Strides: 1, SERatio: 0.25},
			},
		},
	}
}

// Vocabulary passt zu Config (VocabSize 7)
func Vocabulary() []string {
	return []string{"", "[UNK]", tokenizer.StartToken, tokenizer.EndToken, "a", "dog", "runs"}
}

// RandomModel alloziert ein Modell und fuellt es deterministisch aus seed
func RandomModel(tb testing.TB, cfg model.Config, seed uint64) *captionmodel.Model {
	tb.Helper()

	m, err := captionmodel.New(cfg)
	if err != nil {
		tb.Fatal(err)
	}

	r := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	for _, nt := range m.Tensors() {
		for i := range nt.Tensor.Data {
			v := float32(r.NormFloat64() * 0.5)
			// Varianzen muessen positiv sein
			if strings.HasSuffix(nt.Name, "variance") {
				v = float32(math.Abs(float64(v))) + 0.1
			}
			nt.Tensor.Data[i] = v
		}
	}

	return m
}

type options struct {
	safetensors bool
	skip        []string
}

// Option veraendert WriteArtifacts
type Option func(*options)

// WithSafetensors schreibt die Gewichte als model.safetensors statt GGUF
func WithSafetensors() Option {
	return func(o *options) { o.safetensors = true }
}

// WithoutTensor laesst den Tensor name in der Gewichtsdatei weg
func WithoutTensor(name string) Option {
	return func(o *options) { o.skip = append(o.skip, name) }
}

// WriteArtifacts schreibt alle drei Artefakte von m nach dir
func WriteArtifacts(tb testing.TB, dir string, cfg model.Config, vocab []string, m *captionmodel.Model, opts ...Option) caption.Paths {
	tb.Helper()

	var o options
	for _, fn := range opts {
		fn(&o)
	}

	p := caption.PathsInDir(dir)
	writeJSON(tb, p.Metadata, cfg)
	writeJSON(tb, p.Vocab, vocab)

	var named []model.NamedTensor
	for _, nt := range m.Tensors() {
		if !slices.Contains(o.skip, nt.Name) {
			named = append(named, nt)
		}
	}

	if o.safetensors {
		p.Weights = filepath.Join(dir, "model.safetensors")
		ts := make([]*safetensors.Tensor, len(named))
		for i, nt := range named {
			ts[i] = &safetensors.Tensor{Name: nt.Name, DType: ml.DTypeF32, Tensor: nt.Tensor}
		}

		var buf bytes.Buffer
		if err := safetensors.Write(&buf, map[string]string{"format": "keras"}, ts); err != nil {
			tb.Fatal(err)
		}
		if err := os.WriteFile(p.Weights, buf.Bytes(), 0o644); err != nil {
			tb.Fatal(err)
		}
		return p
	}

	ts := make([]*gguf.Tensor, len(named))
	for i, nt := range named {
		ts[i] = &gguf.Tensor{Name: nt.Name, DType: ml.DTypeF32, Tensor: nt.Tensor}
	}

	f, err := os.Create(p.Weights)
	if err != nil {
		tb.Fatal(err)
	}
	defer f.Close()

	kv := map[string]any{
		"general.architecture": "caption",
		"general.alignment":    uint32(gguf.DefaultAlignment),
	}
	if err := gguf.Write(f, kv, ts); err != nil {
		tb.Fatal(err)
	}

	return p
}

func writeJSON(tb testing.TB, path string, v any) {
	tb.Helper()

	data, err := json.Marshal(v)
	if err != nil {
		tb.Fatal(err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		tb.Fatal(err)
	}
}

// Artifacts schreibt ein Zufallsmodell in ein temporaeres Verzeichnis und
// laedt es ueber caption.Load
func Artifacts(tb testing.TB, seed uint64) *caption.Artifacts {
	tb.Helper()

	cfg := Config()
	p := WriteArtifacts(tb, tb.TempDir(), cfg, Vocabulary(), RandomModel(tb, cfg, seed))

	a, err := caption.Load(context.Background(), p)
	if err != nil {
		tb.Fatal(err)
	}
	return a
}

// PNG erzeugt ein w x h Bild mit einem Farbverlauf
func PNG(tb testing.TB, w, h int) []byte {
	tb.Helper()

	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := range h {
		for x := range w {
			img.Set(x, y, color.NRGBA{uint8(x * 255 / max(w, 1)), uint8(y * 255 / max(h, 1)), 128, 255})
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		tb.Fatal(err)
	}
	return buf.Bytes()
}
