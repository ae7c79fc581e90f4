package efficientnet

import (
	"errors"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/MichaelCStrahl/vision-voice-project/ml"
)

func tinyConfig() Config {
	return Config{
		StemFilters: 8,
		TopFilters:  16,
		Blocks: []BlockSpec{
			{KernelSize: 3, Repeats: 1, FiltersIn: 8, FiltersOut: 8, ExpandRatio: 1, Strides: 1, SERatio: 0.25},
			{KernelSize: 3, Repeats: 2, FiltersIn: 8, FiltersOut: 16, ExpandRatio: 6, Strides: 2, SERatio: 0.25},
		},
	}
}

func TestB0Valid(t *testing.T) {
	cfg := B0()
	if err := cfg.Validate(); err != nil {
		t.Fatal(err)
	}

	args := cfg.expand()
	if len(args) != 16 {
		t.Fatalf("B0 hat %d Bloecke, erwartet 16", len(args))
	}

	if args[0].name != "block1a" || args[0].seFilters != 8 {
		t.Errorf("erster Block = %+v", args[0])
	}

	// block2b: Stride 1, Eingang = Ausgang der Gruppe, SE aus filters_in
	b := args[2]
	if b.name != "block2b" || b.strides != 1 || b.filtersIn != 24 || b.seFilters != 6 {
		t.Errorf("block2b = %+v", b)
	}

	if last := args[len(args)-1]; last.name != "block7a" || last.filtersOut != 320 {
		t.Errorf("letzter Block = %+v", last)
	}
}

func TestValidate(t *testing.T) {
	cases := map[string]func(*Config){
		"kanal bruch":    func(c *Config) { c.Blocks[1].FiltersIn = 9 },
		"gerader kernel": func(c *Config) { c.Blocks[0].KernelSize = 2 },
		"stride 3":       func(c *Config) { c.Blocks[0].Strides = 3 },
		"keine bloecke":  func(c *Config) { c.Blocks = nil },
		"ohne top":       func(c *Config) { c.TopFilters = 0 },
		"se ratio":       func(c *Config) { c.Blocks[0].SERatio = 2 },
	}

	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := tinyConfig()
			mutate(&cfg)
			if err := cfg.Validate(); !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("err = %v, erwartet ErrInvalidConfig", err)
			}
		})
	}
}

func TestBackboneOutputShape(t *testing.T) {
	m, err := New(tinyConfig())
	if err != nil {
		t.Fatal(err)
	}

	// 9x10 -> stem (correct_pad, s2) 5x5 -> block2a (s2) 3x3
	out, err := m.Forward(ml.Zeros(9, 10, 3))
	if err != nil {
		t.Fatal(err)
	}

	if diff := cmp.Diff([]int{9, 16}, out.Shape); diff != "" {
		t.Errorf("shape (-want +got):\n%s", diff)
	}
	if m.Channels() != 16 {
		t.Errorf("Channels = %d", m.Channels())
	}
}

func TestBackboneTopBias(t *testing.T) {
	m, err := New(tinyConfig())
	if err != nil {
		t.Fatal(err)
	}

	// Null-Gewichte: nur top_bn.beta bestimmt die Ausgabe, swish(1)
	for i := range m.TopBN.Beta.Data {
		m.TopBN.Beta.Data[i] = 1
	}

	img := ml.Zeros(8, 8, 3)
	for i := range img.Data {
		img.Data[i] = float32(i%7) / 7
	}

	out, err := m.Forward(img)
	if err != nil {
		t.Fatal(err)
	}

	want := float32(1 / (1 + math.Exp(-1)))
	for i, v := range out.Data {
		if math.Abs(float64(v-want)) > 1e-6 {
			t.Fatalf("[%d] = %v, erwartet %v", i, v, want)
		}
	}

	// Eingabe bleibt unveraendert
	if img.Data[1] != float32(1)/7 {
		t.Error("Forward hat die Eingabe veraendert")
	}
}

func TestBackboneRejectsBadInput(t *testing.T) {
	m, err := New(tinyConfig())
	if err != nil {
		t.Fatal(err)
	}

	if _, err := m.Forward(ml.Zeros(4, 4, 1)); err == nil {
		t.Error("erwartet Fehler fuer 1 Kanal")
	}
}

func swish(x float64) float64   { return x / (1 + math.Exp(-x)) }
func sigmoid(x float64) float64 { return 1 / (1 + math.Exp(-x)) }

// identityBN setzt Parameter so, dass BatchNorm die Identitaet ist
func identityBN(bn *BatchNorm) {
	for i := range bn.Gamma.Data {
		bn.Gamma.Data[i] = 1
		bn.MovingVariance.Data[i] = 1 - ml.BatchNormEpsilon
	}
}

func TestBlockSqueezeExciteAndSkip(t *testing.T) {
	b := newBlock(blockArgs{name: "block1a", kernelSize: 1, strides: 1, filtersIn: 1, filtersOut: 1, expandRatio: 1, seFilters: 1})
	if b.ExpandConv != nil {
		t.Fatal("expand_ratio 1 darf keine Expansion haben")
	}

	b.DWConv.Kernel.Data[0] = 2
	identityBN(b.BN)
	b.SEReduce.Kernel.Data[0], b.SEReduce.Bias.Data[0] = 0.5, 0.1
	b.SEExpand.Kernel.Data[0], b.SEExpand.Bias.Data[0] = -1, 0.2
	b.ProjectConv.Kernel.Data[0] = 3
	identityBN(b.ProjectBN)

	in := []float64{1, -1, 0.5, 2}
	x := ml.Zeros(2, 2, 1)
	for i, v := range in {
		x.Data[i] = float32(v)
	}

	got := b.Forward(x)

	h := make([]float64, len(in))
	var mean float64
	for i, v := range in {
		h[i] = swish(2 * v)
		mean += h[i] / float64(len(in))
	}
	gate := sigmoid(-swish(0.5*mean+0.1) + 0.2)

	want := make([]float32, len(in))
	for i := range in {
		want[i] = float32(3*h[i]*gate + in[i])
	}

	if diff := cmp.Diff(want, got.Data, cmpopts.EquateApprox(0, 1e-5)); diff != "" {
		t.Errorf("block (-want +got):\n%s", diff)
	}
}

func TestBlockStrideTwoNoSkip(t *testing.T) {
	b := newBlock(blockArgs{name: "block2a", kernelSize: 3, strides: 2, filtersIn: 2, filtersOut: 2, expandRatio: 1})
	if b.SEReduce != nil {
		t.Fatal("se_ratio 0 darf kein Squeeze-Excite haben")
	}

	out := b.Forward(ml.Zeros(4, 4, 2))
	if diff := cmp.Diff([]int{2, 2, 2}, out.Shape); diff != "" {
		t.Errorf("shape (-want +got):\n%s", diff)
	}
}
