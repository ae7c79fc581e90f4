// Package gguf - Key-Value Metadaten
//
// Dieses Modul enthaelt die typisierten Zugriffe auf GGUF-Metadaten:
// - KeyValue: Key mit zugehoerigem Value
// - Value: Wrapper mit Konvertierung nach int, uint, float, bool, string und Slices
package gguf

import (
	"reflect"
	"slices"
)

// KeyValue ist ein Metadaten-Eintrag der Datei
type KeyValue struct {
	Key string
	Value
}

// Valid meldet, ob der Eintrag in der Datei vorhanden war
func (kv KeyValue) Valid() bool {
	return kv.Key != "" && kv.Value.value != nil
}

// Value haelt einen dekodierten Metadaten-Wert
type Value struct {
	value any
}

// Any gibt den rohen Wert zurueck
func (v Value) Any() any {
	return v.value
}

// Int gibt ganzzahlige Werte als int64 zurueck, sonst 0
func (v Value) Int() int64 {
	switch rv := reflect.ValueOf(v.value); rv.Kind() {
	case reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int()
	case reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return int64(rv.Uint())
	}
	return 0
}

// Uint gibt ganzzahlige Werte als uint64 zurueck, sonst 0
func (v Value) Uint() uint64 {
	switch rv := reflect.ValueOf(v.value); rv.Kind() {
	case reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return uint64(max(rv.Int(), 0))
	case reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return rv.Uint()
	}
	return 0
}

// Float gibt Gleitkomma-Werte als float64 zurueck, sonst 0
func (v Value) Float() float64 {
	switch rv := reflect.ValueOf(v.value); rv.Kind() {
	case reflect.Float32, reflect.Float64:
		return rv.Float()
	}
	return 0
}

// Bool gibt bool-Werte zurueck, sonst false
func (v Value) Bool() bool {
	b, _ := v.value.(bool)
	return b
}

// String gibt string-Werte zurueck, sonst ""
func (v Value) String() string {
	s, _ := v.value.(string)
	return s
}

// Strings gibt String-Arrays zurueck
func (v Value) Strings() []string {
	s, _ := v.value.([]string)
	return slices.Clone(s)
}

// Ints gibt ganzzahlige Arrays als []int64 zurueck
func (v Value) Ints() []int64 {
	rv := reflect.ValueOf(v.value)
	if rv.Kind() != reflect.Slice {
		return nil
	}

	out := make([]int64, 0, rv.Len())
	for i := range rv.Len() {
		e := rv.Index(i)
		switch e.Kind() {
		case reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			out = append(out, e.Int())
		case reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
			out = append(out, int64(e.Uint()))
		default:
			return nil
		}
	}
	return out
}

// Floats gibt Gleitkomma-Arrays als []float64 zurueck
func (v Value) Floats() []float64 {
	rv := reflect.ValueOf(v.value)
	if rv.Kind() != reflect.Slice {
		return nil
	}

	out := make([]float64, 0, rv.Len())
	for i := range rv.Len() {
		e := rv.Index(i)
		switch e.Kind() {
		case reflect.Float32, reflect.Float64:
			out = append(out, e.Float())
		default:
			return nil
		}
	}
	return out
}
