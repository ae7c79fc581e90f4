// MODUL: efficientnet
// ZWECK: EfficientNet-Backbone (Inferenz) als visueller Feature-Extraktor
// INPUT: Bildtensor [H, W, 3] mit Werten in [0,1]
// OUTPUT: Feature-Sequenz [N, C] in Raster-Reihenfolge (N = h*w der letzten Feature-Map)
// NEBENEFFEKTE: keine (Gewichte werden nur gelesen)
// ABHAENGIGKEITEN: ml (Conv2D, DepthwiseConv2D, BatchNorm, Swish)
// HINWEISE: Die Rescaling-Schicht (1/255) ist Teil des Preprocessings;
//           stride-2-Faltungen nutzen das asymmetrische Keras correct_pad

package efficientnet

import (
	"fmt"

	"github.com/MichaelCStrahl/vision-voice-project/ml"
)

// ============================================================================
// Layer-Strukturen
// ============================================================================

// Conv ist eine 2D-Faltung mit HWIO-Kernel. Bias ist nil bei use_bias=False.
type Conv struct {
	Kernel *ml.Tensor `gguf:"kernel"`
	Bias   *ml.Tensor `gguf:"bias"`
}

func newConv(k, in, out int, bias bool) *Conv {
	c := &Conv{Kernel: ml.Zeros(k, k, in, out)}
	if bias {
		c.Bias = ml.Zeros(out)
	}
	return c
}

// DepthwiseConv ist eine kanalweise Faltung mit Kernel [k, k, C, 1]
type DepthwiseConv struct {
	Kernel *ml.Tensor `gguf:"depthwise_kernel"`
}

// BatchNorm haelt die Inferenz-Parameter einer BatchNormalization
type BatchNorm struct {
	Gamma          *ml.Tensor `gguf:"gamma"`
	Beta           *ml.Tensor `gguf:"beta"`
	MovingMean     *ml.Tensor `gguf:"moving_mean"`
	MovingVariance *ml.Tensor `gguf:"moving_variance"`
}

func newBatchNorm(c int) *BatchNorm {
	return &BatchNorm{
		Gamma:          ml.Zeros(c),
		Beta:           ml.Zeros(c),
		MovingMean:     ml.Zeros(c),
		MovingVariance: ml.Zeros(c),
	}
}

// Forward normalisiert x in place
func (bn *BatchNorm) Forward(x *ml.Tensor) {
	ml.BatchNorm(x, bn.Gamma, bn.Beta, bn.MovingMean, bn.MovingVariance, ml.BatchNormEpsilon)
}

// Normalization ist die Keras Normalization-Schicht am Eingang
type Normalization struct {
	Mean     *ml.Tensor `gguf:"mean"`
	Variance *ml.Tensor `gguf:"variance"`
}

// ============================================================================
// MBConv-Block
// ============================================================================

// Block ist ein MBConv-Block (Expansion, Depthwise, Squeeze-Excite, Projektion)
type Block struct {
	args blockArgs

	ExpandConv  *Conv          `gguf:"expand_conv"`
	ExpandBN    *BatchNorm     `gguf:"expand_bn"`
	DWConv      *DepthwiseConv `gguf:"dwconv"`
	BN          *BatchNorm     `gguf:"bn"`
	SEReduce    *Conv          `gguf:"se_reduce"`
	SEExpand    *Conv          `gguf:"se_expand"`
	ProjectConv *Conv          `gguf:"project_conv"`
	ProjectBN   *BatchNorm     `gguf:"project_bn"`
}

// TensorPrefix liefert den Keras-Blocknamen (z.B. "block2b")
func (b *Block) TensorPrefix() string {
	return b.args.name
}

func newBlock(args blockArgs) *Block {
	filters := args.filtersIn * args.expandRatio
	b := &Block{
		args:        args,
		DWConv:      &DepthwiseConv{Kernel: ml.Zeros(args.kernelSize, args.kernelSize, filters, 1)},
		BN:          newBatchNorm(filters),
		ProjectConv: newConv(1, filters, args.filtersOut, false),
		ProjectBN:   newBatchNorm(args.filtersOut),
	}

	if args.expandRatio != 1 {
		b.ExpandConv = newConv(1, args.filtersIn, filters, false)
		b.ExpandBN = newBatchNorm(filters)
	}

	if args.seFilters > 0 {
		b.SEReduce = newConv(1, filters, args.seFilters, true)
		b.SEExpand = newConv(1, args.seFilters, filters, true)
	}

	return b
}

// Forward wendet den Block auf x[H, W, Cin] an
func (b *Block) Forward(x *ml.Tensor) *ml.Tensor {
	h := x
	if b.ExpandConv != nil {
		h = ml.Conv2D(h, b.ExpandConv.Kernel, nil, 1, ml.Padding{})
		b.ExpandBN.Forward(h)
		ml.Swish(h)
	}

	pad := ml.SamePadding(b.args.kernelSize)
	if b.args.strides == 2 {
		pad = ml.CorrectPad(h.Dim(0), h.Dim(1), b.args.kernelSize)
	}
	h = ml.DepthwiseConv2D(h, b.DWConv.Kernel, b.args.strides, pad)
	b.BN.Forward(h)
	ml.Swish(h)

	if b.SEReduce != nil {
		se := ml.GlobalAveragePool(h)
		se.Shape = []int{1, 1, se.Len()}
		se = ml.Conv2D(se, b.SEReduce.Kernel, b.SEReduce.Bias, 1, ml.Padding{})
		ml.Swish(se)
		se = ml.Conv2D(se, b.SEExpand.Kernel, b.SEExpand.Bias, 1, ml.Padding{})
		ml.Sigmoid(se)
		ml.ScaleChannelsInPlace(h, se)
	}

	h = ml.Conv2D(h, b.ProjectConv.Kernel, nil, 1, ml.Padding{})
	b.ProjectBN.Forward(h)

	// Identity-Skip (Dropout ist bei Inferenz wirkungslos)
	if b.args.strides == 1 && b.args.filtersIn == b.args.filtersOut {
		ml.AddInPlace(h, x)
	}

	return h
}

// ============================================================================
// Backbone
// ============================================================================

// Backbone ist EfficientNet ohne Klassifikationskopf
type Backbone struct {
	Normalization *Normalization `gguf:"normalization"`
	StemConv      *Conv          `gguf:"stem_conv"`
	StemBN        *BatchNorm     `gguf:"stem_bn"`
	Blocks        []*Block
	TopConv       *Conv      `gguf:"top_conv"`
	TopBN         *BatchNorm `gguf:"top_bn"`

	cfg Config
}

// New alloziert ein Backbone mit Null-Gewichten fuer cfg
func New(cfg Config) (*Backbone, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	last := cfg.Blocks[len(cfg.Blocks)-1].FiltersOut
	m := &Backbone{
		Normalization: &Normalization{Mean: ml.Zeros(3), Variance: ml.Zeros(3)},
		StemConv:      newConv(3, 3, cfg.StemFilters, false),
		StemBN:        newBatchNorm(cfg.StemFilters),
		TopConv:       newConv(1, last, cfg.TopFilters, false),
		TopBN:         newBatchNorm(cfg.TopFilters),
		cfg:           cfg,
	}

	for _, args := range cfg.expand() {
		m.Blocks = append(m.Blocks, newBlock(args))
	}

	return m, nil
}

// Channels gibt die Feature-Dimension C der Ausgabe zurueck
func (m *Backbone) Channels() int {
	return m.cfg.TopFilters
}

// Forward berechnet die Feature-Sequenz [N, C] fuer img[H, W, 3]
func (m *Backbone) Forward(img *ml.Tensor) (*ml.Tensor, error) {
	if len(img.Shape) != 3 || img.Shape[2] != 3 {
		return nil, fmt.Errorf("efficientnet: expected [H, W, 3] input, got %v", img.Shape)
	}

	x := img.Clone()
	ml.Standardize(x, m.Normalization.Mean, m.Normalization.Variance)

	x = ml.Conv2D(x, m.StemConv.Kernel, nil, 2, ml.CorrectPad(x.Dim(0), x.Dim(1), 3))
	m.StemBN.Forward(x)
	ml.Swish(x)

	for _, b := range m.Blocks {
		x = b.Forward(x)
	}

	x = ml.Conv2D(x, m.TopConv.Kernel, nil, 1, ml.Padding{})
	m.TopBN.Forward(x)
	ml.Swish(x)

	return x.Reshape(x.Dim(0)*x.Dim(1), x.Dim(2))
}
