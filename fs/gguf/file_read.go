// Package gguf - GGUF Dekodierung
//
// Dieses Modul enthaelt den Decoder fuer den Kopf einer GGUF-Datei:
// - decoder: Little-Endian Leser mit Bytezaehler und erstem Fehler
// - keyValue: Metadaten-Eintrag als Value
// - tensorInfo: Tensor-Metadaten
// - count: Begrenzt Laengenangaben auf den Rest der Datei
//
// Jede Laengenangabe wird gegen die verbleibenden Bytes geprueft, bevor
// Speicher angelegt wird. Eine beschaedigte Datei endet mit ErrCorrupt.
package gguf

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
)

// maxDims begrenzt die Rang-Angabe einer Tensor-Info (ggml kennt maximal 4)
const maxDims = 4

// scalarSize ist die Groesse der skalaren Metadaten-Typen in Bytes
var scalarSize = map[uint32]int64{
	typeUint8:   1,
	typeInt8:    1,
	typeBool:    1,
	typeUint16:  2,
	typeInt16:   2,
	typeUint32:  4,
	typeInt32:   4,
	typeFloat32: 4,
	typeUint64:  8,
	typeInt64:   8,
	typeFloat64: 8,
}

// decoder liest Little-Endian Werte. Nach dem ersten Fehler sind alle
// weiteren Aufrufe wirkungslos, geprueft wird einmal pro Eintrag.
type decoder struct {
	r    *bufio.Reader
	n    int64
	size int64
	err  error
}

func newDecoder(r io.Reader, size int64) *decoder {
	return &decoder{r: bufio.NewReaderSize(r, 32<<10), size: size}
}

func (d *decoder) fail(err error) {
	if d.err == nil {
		d.err = err
	}
}

func (d *decoder) read(p []byte) {
	if d.err != nil {
		return
	}
	n, err := io.ReadFull(d.r, p)
	d.n += int64(n)
	d.fail(err)
}

func (d *decoder) u32() uint32 {
	var b [4]byte
	d.read(b[:])
	return binary.LittleEndian.Uint32(b[:])
}

func (d *decoder) u64() uint64 {
	var b [8]byte
	d.read(b[:])
	return binary.LittleEndian.Uint64(b[:])
}

// count prueft, dass n Elemente zu je mindestens elem Bytes noch in die
// Datei passen
func (d *decoder) count(n uint64, elem int64) int {
	if d.err != nil {
		return 0
	}
	if rest := d.size - d.n; n > uint64(max(rest, 0)/elem) {
		d.fail(fmt.Errorf("%w: %d entries of %d bytes exceed the remaining %d bytes", ErrCorrupt, n, elem, rest))
		return 0
	}
	return int(n)
}

func (d *decoder) str() string {
	b := make([]byte, d.count(d.u64(), 1))
	d.read(b)
	return string(b)
}

// keyValue liest einen Metadaten-Eintrag
func (d *decoder) keyValue() KeyValue {
	key := d.str()
	t := d.u32()
	if d.err != nil {
		return KeyValue{}
	}

	var v any
	switch t {
	case typeString:
		v = d.str()
	case typeArray:
		v = d.array()
	default:
		if _, ok := scalarSize[t]; !ok {
			d.fail(fmt.Errorf("%w type %d for %s", ErrUnsupported, t, key))
			return KeyValue{}
		}
		v = d.numbers(t, 1, true)
	}

	return KeyValue{Key: key, Value: Value{v}}
}

// array liest ein Array mit Elementtyp und Laenge. Verschachtelte Arrays
// kommen in Gewichtsdateien nicht vor.
func (d *decoder) array() any {
	t := d.u32()
	n := d.u64()
	if d.err != nil {
		return nil
	}

	if t == typeString {
		s := make([]string, 0, d.count(n, 8))
		for range n {
			if d.err != nil {
				return nil
			}
			s = append(s, d.str())
		}
		return s
	}

	size, ok := scalarSize[t]
	if !ok {
		d.fail(fmt.Errorf("%w array type %d", ErrUnsupported, t))
		return nil
	}
	return d.numbers(t, d.count(n, size), false)
}

// numbers liest n Werte des Typs t in einem Block. Mit scalar wird der
// erste Wert statt des Slices zurueckgegeben.
func (d *decoder) numbers(t uint32, n int, scalar bool) any {
	switch t {
	case typeUint8:
		return decodeBlock[uint8](d, n, scalar)
	case typeInt8:
		return decodeBlock[int8](d, n, scalar)
	case typeUint16:
		return decodeBlock[uint16](d, n, scalar)
	case typeInt16:
		return decodeBlock[int16](d, n, scalar)
	case typeUint32:
		return decodeBlock[uint32](d, n, scalar)
	case typeInt32:
		return decodeBlock[int32](d, n, scalar)
	case typeUint64:
		return decodeBlock[uint64](d, n, scalar)
	case typeInt64:
		return decodeBlock[int64](d, n, scalar)
	case typeFloat32:
		return decodeBlock[float32](d, n, scalar)
	case typeFloat64:
		return decodeBlock[float64](d, n, scalar)
	case typeBool:
		return decodeBlock[bool](d, n, scalar)
	}
	return nil
}

func decodeBlock[T any](d *decoder, n int, scalar bool) any {
	s := make([]T, n)
	buf := make([]byte, binary.Size(s))
	d.read(buf)
	if d.err != nil {
		return nil
	}

	if _, err := binary.Decode(buf, binary.LittleEndian, s); err != nil {
		d.fail(err)
		return nil
	}

	if scalar {
		return s[0]
	}
	return s
}

// tensorInfo liest Name, Shape (ggml-Reihenfolge), Typ und Offset eines
// Tensors. Die Elementzahl darf die Dateigroesse nicht uebersteigen.
func (d *decoder) tensorInfo() TensorInfo {
	name := d.str()
	dims := d.u32()
	if d.err != nil {
		return TensorInfo{}
	}
	if dims > maxDims {
		d.fail(fmt.Errorf("%w: tensor %s has %d dims", ErrUnsupported, name, dims))
		return TensorInfo{}
	}

	shape := make([]uint64, dims)
	total := uint64(1)
	for i := range shape {
		dim := d.u64()
		if dim != 0 && total > uint64(d.size)/dim {
			d.fail(fmt.Errorf("%w: tensor %s shape exceeds file size", ErrCorrupt, name))
			return TensorInfo{}
		}
		shape[i] = dim
		total *= dim
	}

	ti := TensorInfo{Name: name, Shape: shape}
	ti.Type = TensorType(d.u32())
	ti.Offset = d.u64()
	return ti
}
