// Package gguf - GGUF File Struktur und Open/Close
//
// Dieses Modul enthaelt die File-Hauptstruktur fuer GGUF-Gewichtsdateien:
// - File: Repraesentiert eine geoeffnete GGUF-Datei
// - Open: Oeffnet die Datei und liest Header, Key-Values und Tensor-Infos
// - Close: Schliesst die Datei
// - Type-Konstanten fuer die Metadaten-Datentypen
package gguf

import (
	"bytes"
	"errors"
	"fmt"
	"os"
)

// Type-Konstanten fuer GGUF-Datentypen
const (
	typeUint8 uint32 = iota
	typeInt8
	typeUint16
	typeInt16
	typeUint32
	typeInt32
	typeFloat32
	typeBool
	typeString
	typeArray
	typeUint64
	typeInt64
	typeFloat64
)

// DefaultAlignment gilt, wenn general.alignment fehlt
const DefaultAlignment = 32

var magic = []byte("GGUF")

var (
	// ErrUnsupported wird bei nicht unterstuetzten Formaten oder Versionen zurueckgegeben
	ErrUnsupported = errors.New("unsupported")

	// ErrCorrupt meldet Laengen oder Offsets, die nicht in die Datei passen
	ErrCorrupt = errors.New("corrupt gguf file")
)

// File repraesentiert eine geoeffnete GGUF-Datei
type File struct {
	Magic   [4]byte
	Version uint32

	keyValues []KeyValue
	tensors   []TensorInfo

	// offset ist der Beginn des Datenbereichs, size die Dateigroesse
	offset int64
	size   int64

	file *os.File
}

// Open oeffnet eine GGUF-Datei und parst Header, Key-Values und Tensor-Infos.
// Tensor-Daten werden erst ueber TensorReader gelesen.
func Open(path string) (*File, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	f, err := readHeader(file)
	if err != nil {
		file.Close()
		return nil, err
	}
	return f, nil
}

// readHeader liest alles vor dem Datenbereich und prueft, dass jeder
// Tensor vollstaendig in der Datei liegt
func readHeader(file *os.File) (*File, error) {
	st, err := file.Stat()
	if err != nil {
		return nil, err
	}

	f := &File{file: file, size: st.Size()}
	d := newDecoder(file, f.size)

	d.read(f.Magic[:])
	if d.err != nil {
		return nil, fmt.Errorf("read magic: %w", d.err)
	}
	if !bytes.Equal(f.Magic[:], magic) {
		return nil, fmt.Errorf("%w file type %q", ErrUnsupported, f.Magic[:])
	}

	f.Version = d.u32()
	if d.err == nil && f.Version < 2 {
		return nil, fmt.Errorf("%w version %v", ErrUnsupported, f.Version)
	}

	numTensors := d.u64()
	numKeyValues := d.u64()
	if d.err != nil {
		return nil, fmt.Errorf("read header: %w", d.err)
	}

	// jeder Eintrag belegt mindestens Namenslaenge und Typ
	f.keyValues = make([]KeyValue, 0, d.count(numKeyValues, 12))
	for range numKeyValues {
		kv := d.keyValue()
		if d.err != nil {
			return nil, fmt.Errorf("read key value: %w", d.err)
		}
		f.keyValues = append(f.keyValues, kv)
	}

	f.tensors = make([]TensorInfo, 0, d.count(numTensors, 24))
	for range numTensors {
		ti := d.tensorInfo()
		if d.err != nil {
			return nil, fmt.Errorf("read tensor info: %w", d.err)
		}
		f.tensors = append(f.tensors, ti)
	}

	alignment := f.KeyValue("general.alignment").Int()
	if alignment <= 0 {
		alignment = DefaultAlignment
	}
	f.offset = d.n + padding(d.n, alignment)

	for _, ti := range f.tensors {
		if ti.Offset > uint64(f.size) || f.offset+int64(ti.Offset)+ti.NumBytes() > f.size {
			return nil, fmt.Errorf("%w: tensor %s at offset %d exceeds file size %d", ErrCorrupt, ti.Name, ti.Offset, f.size)
		}
	}

	return f, nil
}

// Close schliesst die Datei
func (f *File) Close() error {
	return f.file.Close()
}
