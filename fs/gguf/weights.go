// Package gguf - Gewichte laden
//
// Dieses Modul liest alle Tensoren einer GGUF-Datei in den Speicher:
// - Weights: Name -> ml.Tensor (float32, row-major) plus Metadaten
// - LoadWeights: Paralleles Lesen und Dekodieren der Tensor-Daten
package gguf

import (
	"context"
	"fmt"
	"io"
	"maps"
	"runtime"
	"slices"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/MichaelCStrahl/vision-voice-project/ml"
)

// Weights haelt die dekodierten Tensoren einer Datei. Nach LoadWeights
// wird nichts mehr veraendert, parallele Lesezugriffe sind sicher.
type Weights struct {
	KeyValues map[string]Value
	tensors   map[string]*ml.Tensor
	types     map[string]ml.DType
	numBytes  int64
}

// Tensor gibt den Tensor mit dem Namen name zurueck
func (w *Weights) Tensor(name string) (*ml.Tensor, bool) {
	t, ok := w.tensors[name]
	return t, ok
}

// Names gibt alle Tensor-Namen sortiert zurueck
func (w *Weights) Names() []string {
	return slices.Sorted(maps.Keys(w.tensors))
}

// DType gibt den gespeicherten Elementtyp eines Tensors zurueck
func (w *Weights) DType(name string) ml.DType {
	return w.types[name]
}

// NumBytes gibt die Summe der gespeicherten Tensor-Bytes zurueck
func (w *Weights) NumBytes() int64 {
	return w.numBytes
}

// LoadWeights oeffnet path und dekodiert alle Tensoren nach float32
func LoadWeights(ctx context.Context, path string) (*Weights, error) {
	f, err := Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	w := &Weights{
		KeyValues: make(map[string]Value, f.NumKeyValues()),
		tensors:   make(map[string]*ml.Tensor, f.NumTensors()),
		types:     make(map[string]ml.DType, f.NumTensors()),
	}

	for _, kv := range f.KeyValues() {
		w.KeyValues[kv.Key] = kv.Value
	}

	for _, ti := range f.TensorInfos() {
		if ti.Type.DType() == ml.DTypeOther {
			return nil, fmt.Errorf("%w tensor type %s for %s", ErrUnsupported, ti.Type, ti.Name)
		}

		if _, ok := w.types[ti.Name]; ok {
			return nil, fmt.Errorf("duplicate tensor %s", ti.Name)
		}
		w.types[ti.Name] = ti.Type.DType()
		w.numBytes += ti.NumBytes()
	}

	var mu sync.Mutex
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for _, ti := range f.TensorInfos() {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}

			t, err := f.readTensorData(ti.Name)
			if err != nil {
				return fmt.Errorf("%s: %w", ti.Name, err)
			}

			mu.Lock()
			defer mu.Unlock()
			w.tensors[ti.Name] = t
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return w, nil
}

// readTensorData liest und dekodiert die Daten eines Tensors
func (f *File) readTensorData(name string) (*ml.Tensor, error) {
	ti, r, err := f.TensorReader(name)
	if err != nil {
		return nil, err
	}

	raw := make([]byte, ti.NumBytes())
	if _, err := io.ReadFull(r, raw); err != nil {
		return nil, err
	}

	values, err := ml.DecodeFloats(ti.Type.DType(), raw)
	if err != nil {
		return nil, err
	}

	return ml.FromSlice(values, ti.Dims()...)
}
