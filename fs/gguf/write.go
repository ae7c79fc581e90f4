// Package gguf - GGUF Write Operations
//
// Dieses Modul enthaelt Funktionen zum Schreiben von GGUF-Dateien:
// - Write: Schreibt komplettes GGUF-File mit KV und Tensors (V3 Format)
// - writeGGUF: Generische Write-Funktion fuer Basistypen
// - writeGGUFString: String-Serialisierung
// - writeGGUFArray: Array-Serialisierung
// - writeKeyValue: Key-Value Paar Serialisierung
// - writeTensorInfo: Tensor-Metadaten Serialisierung
package gguf

import (
	"cmp"
	"encoding/binary"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"os"
	"runtime"
	"slices"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/MichaelCStrahl/vision-voice-project/ml"
)

// Tensor ist ein zu schreibender Tensor mit Zieltyp
type Tensor struct {
	Name   string
	DType  ml.DType
	Tensor *ml.Tensor

	offset uint64
}

func (t *Tensor) numBytes() uint64 {
	return uint64(t.Tensor.Len() * t.DType.Size())
}

// Write schreibt ein GGUF-File mit KV-Paaren und Tensors (V3 Format).
// Tensors werden nach Name sortiert, die Daten parallel geschrieben.
func Write(f *os.File, kv map[string]any, ts []*Tensor) error {
	for _, t := range ts {
		if _, err := tensorTypeOf(t.DType); err != nil {
			return fmt.Errorf("%s: %w", t.Name, err)
		}
	}

	if err := binary.Write(f, binary.LittleEndian, magic); err != nil {
		return err
	}

	// Version: 3
	if err := binary.Write(f, binary.LittleEndian, uint32(3)); err != nil {
		return err
	}

	if err := binary.Write(f, binary.LittleEndian, uint64(len(ts))); err != nil {
		return err
	}

	if err := binary.Write(f, binary.LittleEndian, uint64(len(kv))); err != nil {
		return err
	}

	for _, key := range slices.Sorted(maps.Keys(kv)) {
		if err := writeKeyValue(f, key, kv[key]); err != nil {
			return err
		}
	}

	ts = slices.Clone(ts)
	slices.SortStableFunc(ts, func(a, b *Tensor) int {
		return cmp.Compare(a.Name, b.Name)
	})

	alignment := int64(DefaultAlignment)
	if v, ok := kv["general.alignment"].(uint32); ok && v > 0 {
		alignment = int64(v)
	}

	// Offsets berechnen und Tensor-Infos schreiben
	var s uint64
	for _, t := range ts {
		t.offset = s
		if err := writeTensorInfo(f, t); err != nil {
			return err
		}
		s += t.numBytes()
		s += uint64(padding(int64(s), alignment))
	}

	offset, err := f.Seek(0, io.SeekCurrent)
	if err != nil {
		return err
	}
	offset += padding(offset, alignment)

	var g errgroup.Group
	g.SetLimit(runtime.GOMAXPROCS(0))
	for _, t := range ts {
		w := io.NewOffsetWriter(f, offset+int64(t.offset))
		g.Go(func() error {
			bts, err := ml.EncodeFloats(t.DType, t.Tensor.Data)
			if err != nil {
				return err
			}
			_, err = w.Write(bts)
			return err
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}

	// Datei bis zum Ende des letzten Tensors auffuellen
	return f.Truncate(offset + int64(s))
}

// writeGGUF schreibt einen typisierten Wert mit Typ-Prefix
func writeGGUF[V any](w io.Writer, t uint32, v V) error {
	if err := binary.Write(w, binary.LittleEndian, t); err != nil {
		return err
	}
	return binary.Write(w, binary.LittleEndian, v)
}

// writeGGUFString schreibt einen String mit Typ-Prefix und Laenge
func writeGGUFString(w io.Writer, s string) error {
	if err := binary.Write(w, binary.LittleEndian, typeString); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, uint64(len(s))); err != nil {
		return err
	}
	_, err := io.Copy(w, strings.NewReader(s))
	return err
}

// writeGGUFArray schreibt ein Array mit Typ-Prefix
func writeGGUFArray[S ~[]E, E any](w io.Writer, t uint32, s S) error {
	if err := binary.Write(w, binary.LittleEndian, typeArray); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, t); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, uint64(len(s))); err != nil {
		return err
	}

	// Strings muessen einzeln geschrieben werden
	if t == typeString {
		for _, e := range any(s).([]string) {
			if err := binary.Write(w, binary.LittleEndian, uint64(len(e))); err != nil {
				return err
			}
			if err := binary.Write(w, binary.LittleEndian, []byte(e)); err != nil {
				return err
			}
		}
		return nil
	}

	return binary.Write(w, binary.LittleEndian, s)
}

// writeKeyValue schreibt ein Key-Value Paar
func writeKeyValue(w io.Writer, k string, v any) error {
	slog.Debug(k, "type", fmt.Sprintf("%T", v))

	if err := binary.Write(w, binary.LittleEndian, uint64(len(k))); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, []byte(k)); err != nil {
		return err
	}

	var err error
	switch v := v.(type) {
	case int32:
		err = writeGGUF(w, typeInt32, v)
	case int64:
		err = writeGGUF(w, typeInt64, v)
	case uint32:
		err = writeGGUF(w, typeUint32, v)
	case uint64:
		err = writeGGUF(w, typeUint64, v)
	case float32:
		err = writeGGUF(w, typeFloat32, v)
	case float64:
		err = writeGGUF(w, typeFloat64, v)
	case bool:
		err = writeGGUF(w, typeBool, v)
	case string:
		err = writeGGUFString(w, v)
	case []int32:
		err = writeGGUFArray(w, typeInt32, v)
	case []int64:
		err = writeGGUFArray(w, typeInt64, v)
	case []uint32:
		err = writeGGUFArray(w, typeUint32, v)
	case []float32:
		err = writeGGUFArray(w, typeFloat32, v)
	case []string:
		err = writeGGUFArray(w, typeString, v)
	case []bool:
		err = writeGGUFArray(w, typeBool, v)
	default:
		return fmt.Errorf("improper type %T for '%s'", v, k)
	}
	return err
}

// writeTensorInfo schreibt die Tensor-Metadaten
func writeTensorInfo(w io.Writer, t *Tensor) error {
	slog.Debug(t.Name, "dtype", t.DType, "shape", t.Tensor.Shape, "offset", t.offset)

	if err := binary.Write(w, binary.LittleEndian, uint64(len(t.Name))); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, []byte(t.Name)); err != nil {
		return err
	}

	// Dimensions in ggml-Reihenfolge
	shape := ggmlShape(t.Tensor.Shape)
	if err := binary.Write(w, binary.LittleEndian, uint32(len(shape))); err != nil {
		return err
	}
	for _, n := range shape {
		if err := binary.Write(w, binary.LittleEndian, n); err != nil {
			return err
		}
	}

	kind, err := tensorTypeOf(t.DType)
	if err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, uint32(kind)); err != nil {
		return err
	}
	return binary.Write(w, binary.LittleEndian, t.offset)
}

// padding berechnet das Padding fuer Alignment
func padding(offset, align int64) int64 {
	return (align - offset%align) % align
}
