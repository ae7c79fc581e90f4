// Package model - Reflection-basierte Gewichtsbindung
//
// Dieses Modul enthaelt die Reflection-Logik zum Befuellen von
// Modell-Strukturen mit Tensoren aus einer WeightSource.
//
// Hauptkomponenten:
// - walkFields: Besucht alle getaggten *ml.Tensor-Felder rekursiv
// - Bind: Kopiert passende Tensoren in den vorab allozierten Speicher
// - Tag: GGUF-Tag-Struktur fuer Tensor-Namen
// - parseTag: Parst GGUF-Tags aus Struct-Tags

package model

import (
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"strconv"
	"strings"

	"github.com/MichaelCStrahl/vision-voice-project/logutil"
	"github.com/MichaelCStrahl/vision-voice-project/ml"
)

// Prefixer kann von Slice-Elementen implementiert werden, um statt des
// Index einen eigenen Namensbestandteil zu liefern (z.B. "block2b").
type Prefixer interface {
	TensorPrefix() string
}

// Tag repraesentiert einen geparsten GGUF-Tag
type Tag struct {
	name,
	// prefix und suffix werden auf Kind-Tags angewendet
	prefix,
	suffix string
	alternatives []string
}

// parseTag parst einen GGUF-Tag-String in eine Tag-Struktur
func parseTag(s string) (tag Tag) {
	parts := strings.Split(s, ",")
	if len(parts) > 0 {
		tag.name = parts[0]

		for _, part := range parts[1:] {
			if value, ok := strings.CutPrefix(part, "alt:"); ok && tag.name == "" {
				// Alternative zum Primaernamen erheben wenn kein Primaername
				tag.name = value
				slog.Warn("gguf tag has alt: but no primary name", "tag", s)
			} else if ok {
				tag.alternatives = append(tag.alternatives, value)
			}
			if value, ok := strings.CutPrefix(part, "pre:"); ok {
				tag.prefix = value
			}
			if value, ok := strings.CutPrefix(part, "suf:"); ok {
				tag.suffix = value
			}
		}
	}

	return
}

var tensorType = reflect.TypeOf((*ml.Tensor)(nil))

// walkFields besucht alle getaggten *ml.Tensor-Felder von v. fn erhaelt die
// Kandidaten-Namen in Prioritaetsreihenfolge und das Feld selbst.
func walkFields(v reflect.Value, tags []Tag, fn func(names []string, t *ml.Tensor) error) error {
	switch v.Kind() {
	case reflect.Pointer, reflect.Interface:
		if v.IsNil() {
			return nil
		}
		return walkFields(v.Elem(), tags, fn)
	case reflect.Struct:
	default:
		return nil
	}

	t := v.Type()
	for i := range t.NumField() {
		field := t.Field(i)
		if !field.IsExported() {
			continue
		}

		// Kopie erstellen
		tagsCopy := tags
		if tag := field.Tag.Get("gguf"); tag != "" {
			tagsCopy = append(tagsCopy[:len(tagsCopy):len(tagsCopy)], parseTag(tag))
		}

		vv := v.Field(i)
		switch {
		case field.Type == tensorType:
			tensor := vv.Interface().(*ml.Tensor)
			if tensor == nil {
				continue
			}

			names := buildTensorNames(tagsCopy, "", "")
			if len(names) == 0 {
				continue
			}

			joined := make([]string, len(names))
			for j, name := range names {
				joined[j] = strings.Join(name, ".")
			}

			if err := fn(joined, tensor); err != nil {
				return err
			}
		case field.Type.Kind() == reflect.Slice || field.Type.Kind() == reflect.Array:
			for j := range vv.Len() {
				elem := vv.Index(j)
				if err := walkFields(elem, append(tagsCopy[:len(tagsCopy):len(tagsCopy)], Tag{name: elementName(elem, j)}), fn); err != nil {
					return err
				}
			}
		case field.Type.Kind() == reflect.Pointer || field.Type.Kind() == reflect.Interface || field.Type.Kind() == reflect.Struct:
			if err := walkFields(vv, tagsCopy, fn); err != nil {
				return err
			}
		}
	}

	return nil
}

// elementName liefert den Namensbestandteil eines Slice-Elements
func elementName(v reflect.Value, i int) string {
	if v.Kind() == reflect.Pointer && v.IsNil() {
		return strconv.Itoa(i)
	}

	if p, ok := v.Interface().(Prefixer); ok {
		return p.TensorPrefix()
	}

	if v.CanAddr() {
		if p, ok := v.Addr().Interface().(Prefixer); ok {
			return p.TensorPrefix()
		}
	}

	return strconv.Itoa(i)
}

// buildTensorNames baut die vollstaendigen Tensor-Namen aus Tags
func buildTensorNames(tags []Tag, prefix, suffix string) (fullNames [][]string) {
	if len(tags) > 0 {
		var names []string
		if tags[0].name != "" {
			for _, n := range append([]string{tags[0].name}, tags[0].alternatives...) {
				names = append(names, prefix+n+suffix)
			}
		}
		childNames := buildTensorNames(tags[1:], tags[0].prefix, tags[0].suffix)
		if len(names) == 0 {
			// Aktueller Tag hat keinen Namen, nur Kind-Namen verwenden
			fullNames = append(fullNames, childNames...)
		} else if len(childNames) == 0 {
			// Aktueller Tag hat Namen aber keine Kinder, Branches fuer jeden Namen erstellen
			for _, name := range names {
				fullNames = append(fullNames, []string{name})
			}
		} else {
			// Jeden Namen mit jedem Kind zusammenfuehren
			for _, name := range names {
				for _, childName := range childNames {
					fullNames = append(fullNames, append([]string{name}, childName...))
				}
			}
		}
	}

	return fullNames
}

// Bind kopiert fuer jedes getaggte Tensor-Feld von m den gleichnamigen
// Tensor aus src in den allozierten Speicher. Jeder Tensor muss vorhanden
// sein und exakt die allozierte Shape haben. Ueberzaehlige Tensoren in src
// werden nur protokolliert.
func Bind(m any, src WeightSource) error {
	used := make(map[string]struct{})
	var errs []error

	err := walkFields(reflect.ValueOf(m), nil, func(names []string, dst *ml.Tensor) error {
		for _, name := range names {
			t, ok := src.Tensor(name)
			if !ok {
				continue
			}

			used[name] = struct{}{}
			if !ml.SameShape(t.Shape, dst.Shape) {
				errs = append(errs, fmt.Errorf("%w: %s has shape %v, model expects %v", ErrShapeMismatch, name, t.Shape, dst.Shape))
				return nil
			}

			copy(dst.Data, t.Data)
			logutil.Trace("bound tensor", "name", name, "shape", dst.Shape)
			return nil
		}

		errs = append(errs, fmt.Errorf("%w: %s", ErrMissingTensor, names[0]))
		return nil
	})
	if err != nil {
		return err
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	var extra []string
	for _, name := range src.Names() {
		if _, ok := used[name]; !ok {
			extra = append(extra, name)
		}
	}
	if len(extra) > 0 {
		slog.Warn("weights contain unused tensors", "count", len(extra), "first", extra[0])
	}

	return nil
}

// Tensors listet alle getaggten Tensor-Felder von m mit ihrem Primaernamen
func Tensors(m any) []NamedTensor {
	var out []NamedTensor
	_ = walkFields(reflect.ValueOf(m), nil, func(names []string, t *ml.Tensor) error {
		out = append(out, NamedTensor{Name: names[0], Tensor: t})
		return nil
	})
	return out
}
