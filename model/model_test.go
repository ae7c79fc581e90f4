package model

import (
	"errors"
	"maps"
	"slices"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/MichaelCStrahl/vision-voice-project/ml"
	"github.com/MichaelCStrahl/vision-voice-project/model/efficientnet"
	"github.com/MichaelCStrahl/vision-voice-project/tokenizer"
)

func TestParseTag(t *testing.T) {
	cases := []struct {
		tag  string
		want Tag
	}{
		{"kernel", Tag{name: "kernel"}},
		{"out,alt:output", Tag{name: "out", alternatives: []string{"output"}}},
		{",pre:block_,suf:_x", Tag{prefix: "block_", suffix: "_x"}},
		{",alt:fallback", Tag{name: "fallback"}},
	}

	for _, tt := range cases {
		t.Run(tt.tag, func(t *testing.T) {
			if diff := cmp.Diff(tt.want, parseTag(tt.tag), cmp.AllowUnexported(Tag{})); diff != "" {
				t.Errorf("(-want +got):\n%s", diff)
			}
		})
	}
}

func TestParseConfigDefaults(t *testing.T) {
	c, err := ParseConfig([]byte(`{"image_size":[299,299],"seq_length":25,"vocab_size":10000,"embed_dim":512,"ff_dim":512}`))
	if err != nil {
		t.Fatal(err)
	}

	want := Config{
		ImageSize:       [2]int{299, 299},
		SeqLength:       25,
		VocabSize:       10000,
		EmbedDim:        512,
		FFDim:           512,
		EncoderNumHeads: 2,
		DecoderNumHeads: 3,
		StripChars:      tokenizer.DefaultStripChars,
		PadToken:        "",
		OOVToken:        "[UNK]",
		Backbone:        efficientnet.B0(),
	}
	if diff := cmp.Diff(want, c); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}

	opts := c.TokenizerOptions()
	if opts.MaxTokens != 10000 || opts.SequenceLength != 25 || opts.OOVToken != "[UNK]" {
		t.Errorf("TokenizerOptions = %+v", opts)
	}
}

func TestParseConfigOverrides(t *testing.T) {
	c, err := ParseConfig([]byte(`{
		"image_size": [32, 48], "seq_length": 5, "vocab_size": 8, "embed_dim": 4, "ff_dim": 6,
		"encoder_num_heads": 1, "decoder_num_heads": 2,
		"strip_chars": "", "pad_token": "<pad>", "oov_token": "",
		"backbone": {"stem_filters": 8, "top_filters": 16, "blocks": [
			{"kernel_size": 3, "repeats": 1, "filters_in": 8, "filters_out": 8, "expand_ratio": 1, "strides": 1, "se_ratio": 0.25}
		]}
	}`))
	if err != nil {
		t.Fatal(err)
	}

	if c.StripChars != "" || c.PadToken != "<pad>" || c.OOVToken != "" {
		t.Errorf("explizite Leerwerte ueberschrieben: %+v", c)
	}
	if c.EncoderNumHeads != 1 || c.DecoderNumHeads != 2 || c.Backbone.TopFilters != 16 {
		t.Errorf("Overrides ignoriert: %+v", c)
	}
}

func TestParseConfigInvalid(t *testing.T) {
	cases := map[string]string{
		"kein json":       `{`,
		"ohne seq_length": `{"image_size":[8,8],"vocab_size":4,"embed_dim":4,"ff_dim":4}`,
		"image_size 3":    `{"image_size":[8,8,3],"seq_length":4,"vocab_size":4,"embed_dim":4,"ff_dim":4}`,
		"seq_length 1":    `{"image_size":[8,8],"seq_length":1,"vocab_size":4,"embed_dim":4,"ff_dim":4}`,
		"null heads":      `{"image_size":[8,8],"seq_length":4,"vocab_size":4,"embed_dim":4,"ff_dim":4,"decoder_num_heads":0}`,
		"leeres backbone": `{"image_size":[8,8],"seq_length":4,"vocab_size":4,"embed_dim":4,"ff_dim":4,"backbone":{}}`,
	}

	for name, data := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := ParseConfig([]byte(data)); !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("err = %v, erwartet ErrInvalidConfig", err)
			}
		})
	}
}

// ============================================================================
// Bind
// ============================================================================

type mapSource map[string]*ml.Tensor

func (m mapSource) Tensor(name string) (*ml.Tensor, bool) {
	t, ok := m[name]
	return t, ok
}

func (m mapSource) Names() []string {
	return slices.Sorted(maps.Keys(m))
}

type dense struct {
	Kernel *ml.Tensor `gguf:"kernel"`
	Bias   *ml.Tensor `gguf:"bias"`
}

type layer struct {
	name  string
	Dense *dense `gguf:"dense"`
}

func (l *layer) TensorPrefix() string { return l.name }

type toy struct {
	Embedding *ml.Tensor `gguf:"embedding,alt:token_embedding"`
	Out       *dense     `gguf:"out"`
	Layers    []*layer   `gguf:"layers"`
	Heads     []*dense   `gguf:"head"`
	Untagged  *ml.Tensor
	Optional  *ml.Tensor `gguf:"optional"`
}

func newToy() *toy {
	return &toy{
		Embedding: ml.Zeros(2, 2),
		Out:       &dense{Kernel: ml.Zeros(2, 3), Bias: ml.Zeros(3)},
		Layers:    []*layer{{name: "first", Dense: &dense{Kernel: ml.Zeros(1)}}},
		Heads:     []*dense{{Kernel: ml.Zeros(1)}},
		Untagged:  ml.Zeros(1),
	}
}

func tensorOf(shape []int, v float32) *ml.Tensor {
	t := ml.Zeros(shape...)
	for i := range t.Data {
		t.Data[i] = v
	}
	return t
}

func TestTensorsNames(t *testing.T) {
	var names []string
	for _, nt := range Tensors(newToy()) {
		names = append(names, nt.Name)
	}

	want := []string{"embedding", "out.kernel", "out.bias", "layers.first.dense.kernel", "head.0.kernel"}
	if diff := cmp.Diff(want, names); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}
}

func TestBind(t *testing.T) {
	m := newToy()
	src := mapSource{
		"token_embedding":           tensorOf([]int{2, 2}, 1),
		"out.kernel":                tensorOf([]int{2, 3}, 2),
		"out.bias":                  tensorOf([]int{3}, 3),
		"layers.first.dense.kernel": tensorOf([]int{1}, 4),
		"head.0.kernel":             tensorOf([]int{1}, 5),
		"unused":                    tensorOf([]int{1}, 6),
	}

	if err := Bind(m, src); err != nil {
		t.Fatal(err)
	}

	if m.Embedding.Data[3] != 1 || m.Out.Bias.Data[2] != 3 || m.Layers[0].Dense.Kernel.Data[0] != 4 || m.Heads[0].Kernel.Data[0] != 5 {
		t.Errorf("Werte nicht kopiert: %v %v %v %v", m.Embedding.Data, m.Out.Bias.Data, m.Layers[0].Dense.Kernel.Data, m.Heads[0].Kernel.Data)
	}

	// Kopie statt Aliasing
	src["out.bias"].Data[0] = 99
	if m.Out.Bias.Data[0] != 3 {
		t.Error("Bind teilt Speicher mit der Quelle")
	}
}

func TestBindErrors(t *testing.T) {
	full := func() mapSource {
		return mapSource{
			"embedding":                 ml.Zeros(2, 2),
			"out.kernel":                ml.Zeros(2, 3),
			"out.bias":                  ml.Zeros(3),
			"layers.first.dense.kernel": ml.Zeros(1),
			"head.0.kernel":             ml.Zeros(1),
		}
	}

	t.Run("missing", func(t *testing.T) {
		src := full()
		delete(src, "out.bias")
		err := Bind(newToy(), src)
		if !errors.Is(err, ErrMissingTensor) {
			t.Fatalf("err = %v, erwartet ErrMissingTensor", err)
		}
	})

	t.Run("shape", func(t *testing.T) {
		src := full()
		src["out.kernel"] = ml.Zeros(3, 2)
		err := Bind(newToy(), src)
		if !errors.Is(err, ErrShapeMismatch) {
			t.Fatalf("err = %v, erwartet ErrShapeMismatch", err)
		}
	})

	t.Run("both", func(t *testing.T) {
		src := full()
		delete(src, "embedding")
		src["head.0.kernel"] = ml.Zeros(2)
		err := Bind(newToy(), src)
		if !errors.Is(err, ErrMissingTensor) || !errors.Is(err, ErrShapeMismatch) {
			t.Fatalf("err = %v, erwartet beide Fehler", err)
		}
	})
}
