// MODUL: config
// ZWECK: Block-Tabelle und Validierung des EfficientNet-Backbones
// INPUT: Backbone-Abschnitt aus metadata.json (optional)
// OUTPUT: Config mit Stem-, Top- und MBConv-Block-Definitionen
// NEBENEFFEKTE: keine
// ABHAENGIGKEITEN: keine
// HINWEISE: Filterzahlen sind bereits gerundet (width/depth coefficient 1.0 fuer B0)

package efficientnet

import (
	"errors"
	"fmt"
)

// ErrInvalidConfig wird bei ungueltiger Block-Tabelle zurueckgegeben
var ErrInvalidConfig = errors.New("invalid backbone config")

// BlockSpec beschreibt eine Gruppe von MBConv-Bloecken
type BlockSpec struct {
	KernelSize  int     `json:"kernel_size"`
	Repeats     int     `json:"repeats"`
	FiltersIn   int     `json:"filters_in"`
	FiltersOut  int     `json:"filters_out"`
	ExpandRatio int     `json:"expand_ratio"`
	Strides     int     `json:"strides"`
	SERatio     float64 `json:"se_ratio"`
}

// Config beschreibt das komplette Backbone
type Config struct {
	StemFilters int         `json:"stem_filters"`
	TopFilters  int         `json:"top_filters"`
	Blocks      []BlockSpec `json:"blocks"`
}

// B0 gibt die Standard-Konfiguration von EfficientNetB0 zurueck
func B0() Config {
	return Config{
		StemFilters: 32,
		TopFilters:  1280,
		Blocks: []BlockSpec{
			{KernelSize: 3, Repeats: 1, FiltersIn: 32, FiltersOut: 16, ExpandRatio: 1, Strides: 1, SERatio: 0.25},
			{KernelSize: 3, Repeats: 2, FiltersIn: 16, FiltersOut: 24, ExpandRatio: 6, Strides: 2, SERatio: 0.25},
			{KernelSize: 5, Repeats: 2, FiltersIn: 24, FiltersOut: 40, ExpandRatio: 6, Strides: 2, SERatio: 0.25},
			{KernelSize: 3, Repeats: 3, FiltersIn: 40, FiltersOut: 80, ExpandRatio: 6, Strides: 2, SERatio: 0.25},
			{KernelSize: 5, Repeats: 3, FiltersIn: 80, FiltersOut: 112, ExpandRatio: 6, Strides: 1, SERatio: 0.25},
			{KernelSize: 5, Repeats: 4, FiltersIn: 112, FiltersOut: 192, ExpandRatio: 6, Strides: 2, SERatio: 0.25},
			{KernelSize: 3, Repeats: 1, FiltersIn: 192, FiltersOut: 320, ExpandRatio: 6, Strides: 1, SERatio: 0.25},
		},
	}
}

// Validate prueft die Tabelle auf konsistente Kanalzahlen
func (c Config) Validate() error {
	if c.StemFilters <= 0 || c.TopFilters <= 0 {
		return fmt.Errorf("%w: stem %d, top %d filters", ErrInvalidConfig, c.StemFilters, c.TopFilters)
	}

	if len(c.Blocks) == 0 {
		return fmt.Errorf("%w: no blocks", ErrInvalidConfig)
	}

	channels := c.StemFilters
	for i, b := range c.Blocks {
		switch {
		case b.FiltersIn != channels:
			return fmt.Errorf("%w: block %d expects %d input filters, previous stage has %d", ErrInvalidConfig, i+1, b.FiltersIn, channels)
		case b.KernelSize <= 0 || b.KernelSize%2 == 0:
			return fmt.Errorf("%w: block %d kernel size %d", ErrInvalidConfig, i+1, b.KernelSize)
		case b.Repeats <= 0 || b.FiltersOut <= 0 || b.ExpandRatio <= 0:
			return fmt.Errorf("%w: block %d %+v", ErrInvalidConfig, i+1, b)
		case b.Strides != 1 && b.Strides != 2:
			return fmt.Errorf("%w: block %d stride %d", ErrInvalidConfig, i+1, b.Strides)
		case b.SERatio < 0 || b.SERatio > 1:
			return fmt.Errorf("%w: block %d se ratio %v", ErrInvalidConfig, i+1, b.SERatio)
		}
		channels = b.FiltersOut
	}

	return nil
}

// blockArgs sind die aufgeloesten Parameter eines einzelnen MBConv-Blocks
type blockArgs struct {
	name        string
	kernelSize  int
	strides     int
	filtersIn   int
	filtersOut  int
	expandRatio int
	seFilters   int
}

// expand loest die Wiederholungen auf: nur der erste Block einer Gruppe
// hat den konfigurierten Stride und die Eingangsfilter der Gruppe.
func (c Config) expand() []blockArgs {
	var out []blockArgs
	for i, b := range c.Blocks {
		for j := range b.Repeats {
			args := blockArgs{
				name:        fmt.Sprintf("block%d%c", i+1, 'a'+j),
				kernelSize:  b.KernelSize,
				strides:     b.Strides,
				filtersIn:   b.FiltersIn,
				filtersOut:  b.FiltersOut,
				expandRatio: b.ExpandRatio,
			}
			if j > 0 {
				args.strides = 1
				args.filtersIn = b.FiltersOut
			}
			if b.SERatio > 0 {
				args.seFilters = max(1, int(float64(args.filtersIn)*b.SERatio))
			}
			out = append(out, args)
		}
	}
	return out
}
