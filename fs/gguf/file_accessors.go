// Package gguf - GGUF File Accessor Methoden
//
// Dieses Modul enthaelt die Zugriffs-Methoden fuer GGUF-Dateien:
// - KeyValue: Sucht ein Key-Value Paar nach Name
// - KeyValues: Iterator ueber alle KV-Paare
// - TensorInfo: Sucht Tensor-Info nach Name
// - TensorInfos: Iterator ueber alle Tensor-Infos
// - TensorReader: Liefert einen Reader fuer Tensor-Daten
package gguf

import (
	"fmt"
	"io"
	"iter"
	"slices"
)

// KeyValue sucht ein Key-Value Paar nach vollem Namen
func (f *File) KeyValue(key string) KeyValue {
	if index := slices.IndexFunc(f.keyValues, func(kv KeyValue) bool {
		return kv.Key == key
	}); index >= 0 {
		return f.keyValues[index]
	}

	return KeyValue{}
}

// NumKeyValues gibt die Anzahl der Key-Value Paare zurueck
func (f *File) NumKeyValues() int {
	return len(f.keyValues)
}

// KeyValues gibt einen Iterator ueber alle Key-Value Paare zurueck
func (f *File) KeyValues() iter.Seq2[int, KeyValue] {
	return slices.All(f.keyValues)
}

// TensorInfo sucht Tensor-Info nach Name
func (f *File) TensorInfo(name string) TensorInfo {
	if index := slices.IndexFunc(f.tensors, func(t TensorInfo) bool {
		return t.Name == name
	}); index >= 0 {
		return f.tensors[index]
	}

	return TensorInfo{}
}

// NumTensors gibt die Anzahl der Tensors zurueck
func (f *File) NumTensors() int {
	return len(f.tensors)
}

// TensorInfos gibt einen Iterator ueber alle Tensor-Infos zurueck
func (f *File) TensorInfos() iter.Seq2[int, TensorInfo] {
	return slices.All(f.tensors)
}

// TensorReader liefert Tensor-Info und einen Reader fuer die Tensor-Daten.
// Die Reader sind unabhaengig voneinander und duerfen parallel genutzt werden.
func (f *File) TensorReader(name string) (TensorInfo, io.Reader, error) {
	t := f.TensorInfo(name)
	if !t.Valid() {
		return TensorInfo{}, nil, fmt.Errorf("tensor %s not found", name)
	}

	return t, io.NewSectionReader(f.file, f.offset+int64(t.Offset), t.NumBytes()), nil
}
