// Package safetensors - Gewichte aus .safetensors-Dateien laden
//
// Dieses Modul liest Keras/TF-Exporte im safetensors-Format:
// - Header: u64 Laenge + JSON {name: {dtype, shape, data_offsets}, __metadata__}
// - Load: Liest Header und dekodiert alle Tensoren parallel nach float32
// - Write: Schreibt eine Datei (fuer Tests und den Export)
package safetensors

import (
	"bytes"
	"cmp"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"maps"
	"os"
	"runtime"
	"slices"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/MichaelCStrahl/vision-voice-project/ml"
)

// maxHeaderSize begrenzt den JSON-Header (Grenze der Rust-Bibliothek)
const maxHeaderSize = 100 << 20

const metadataKey = "__metadata__"

// ErrInvalidHeader wird bei fehlerhaftem Header oder Offsets zurueckgegeben
var ErrInvalidHeader = errors.New("safetensors: invalid header")

// TensorInfo beschreibt einen Tensor im Header
type TensorInfo struct {
	DType       string   `json:"dtype"`
	Shape       []int    `json:"shape"`
	DataOffsets [2]int64 `json:"data_offsets"`
}

// Weights haelt die dekodierten Tensoren einer Datei
type Weights struct {
	Metadata map[string]string
	tensors  map[string]*ml.Tensor
	types    map[string]ml.DType
	numBytes int64
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

// readHeader liest Header-Laenge und JSON-Header
func readHeader(r io.Reader) (map[string]TensorInfo, map[string]string, int64, error) {
	var n uint64
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return nil, nil, 0, fmt.Errorf("%w: %w", ErrInvalidHeader, err)
	}

	if n == 0 || n > maxHeaderSize {
		return nil, nil, 0, fmt.Errorf("%w: header size %d", ErrInvalidHeader, n)
	}

	bts := make([]byte, n)
	if _, err := io.ReadFull(r, bts); err != nil {
		return nil, nil, 0, fmt.Errorf("%w: %w", ErrInvalidHeader, err)
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(bts, &raw); err != nil {
		return nil, nil, 0, fmt.Errorf("%w: %w", ErrInvalidHeader, err)
	}

	var metadata map[string]string
	if m, ok := raw[metadataKey]; ok {
		if err := json.Unmarshal(m, &metadata); err != nil {
			return nil, nil, 0, fmt.Errorf("%w: metadata: %w", ErrInvalidHeader, err)
		}
		delete(raw, metadataKey)
	}

	infos := make(map[string]TensorInfo, len(raw))
	for name, m := range raw {
		var ti TensorInfo
		if err := json.Unmarshal(m, &ti); err != nil {
			return nil, nil, 0, fmt.Errorf("%w: %s: %w", ErrInvalidHeader, name, err)
		}
		infos[name] = ti
	}

	return infos, metadata, 8 + int64(n), nil
}

// Load liest alle Tensoren aus path
func Load(ctx context.Context, path string) (*Weights, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		return nil, err
	}

	infos, metadata, base, err := readHeader(f)
	if err != nil {
		return nil, err
	}

	w := &Weights{
		Metadata: metadata,
		tensors:  make(map[string]*ml.Tensor, len(infos)),
		types:    make(map[string]ml.DType, len(infos)),
	}

	for name, ti := range infos {
		dtype, err := ml.ParseDType(ti.DType)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}

		begin, end := ti.DataOffsets[0], ti.DataOffsets[1]
		if begin < 0 || end < begin || base+end > stat.Size() {
			return nil, fmt.Errorf("%w: %s offsets [%d, %d]", ErrInvalidHeader, name, begin, end)
		}

		if want := int64(ml.NumElements(ti.Shape) * dtype.Size()); end-begin != want {
			return nil, fmt.Errorf("%w: %s has %d bytes, shape %v needs %d", ErrInvalidHeader, name, end-begin, ti.Shape, want)
		}

		w.types[name] = dtype
		w.numBytes += end - begin
	}

	var mu sync.Mutex
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for name, ti := range infos {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}

			begin, end := ti.DataOffsets[0], ti.DataOffsets[1]
			raw := make([]byte, end-begin)
			if _, err := f.ReadAt(raw, base+begin); err != nil {
				return fmt.Errorf("%s: %w", name, err)
			}

			values, err := ml.DecodeFloats(w.types[name], raw)
			if err != nil {
				return fmt.Errorf("%s: %w", name, err)
			}

			t, err := ml.FromSlice(values, ti.Shape...)
			if err != nil {
				return fmt.Errorf("%s: %w", name, err)
			}

			mu.Lock()
			defer mu.Unlock()
			w.tensors[name] = t
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return w, nil
}

// Tensor ist ein zu schreibender Tensor mit Zieltyp
type Tensor struct {
	Name   string
	DType  ml.DType
	Tensor *ml.Tensor
}

// Write serialisiert ts nach w. Tensors werden nach Name sortiert abgelegt.
func Write(w io.Writer, metadata map[string]string, ts []*Tensor) error {
	ts = slices.Clone(ts)
	slices.SortStableFunc(ts, func(a, b *Tensor) int {
		return cmp.Compare(a.Name, b.Name)
	})

	header := make(map[string]any, len(ts)+1)
	if len(metadata) > 0 {
		header[metadataKey] = metadata
	}

	var data bytes.Buffer
	for _, t := range ts {
		bts, err := ml.EncodeFloats(t.DType, t.Tensor.Data)
		if err != nil {
			return fmt.Errorf("%s: %w", t.Name, err)
		}

		begin := int64(data.Len())
		data.Write(bts)
		header[t.Name] = TensorInfo{
			DType:       t.DType.String(),
			Shape:       t.Tensor.Shape,
			DataOffsets: [2]int64{begin, int64(data.Len())},
		}
	}

	bts, err := json.Marshal(header)
	if err != nil {
		return err
	}

	// Header auf 8 Bytes ausrichten
	if pad := (8 - len(bts)%8) % 8; pad > 0 {
		bts = append(bts, bytes.Repeat([]byte(" "), pad)...)
	}

	if err := binary.Write(w, binary.LittleEndian, uint64(len(bts))); err != nil {
		return err
	}
	if _, err := w.Write(bts); err != nil {
		return err
	}
	_, err = data.WriteTo(w)
	return err
}
