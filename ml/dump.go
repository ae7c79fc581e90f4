// dump.go - Lesbare Ausgabe von Tensoren
// Enthaelt: Dump und die Optionen Precision, Threshold, EdgeItems.
// Genutzt fuer Trace-Logs der Encoder-Ausgabe und "inspect --dump".
package ml

import (
	"strconv"
	"strings"
)

// DumpOptions veraendert die Ausgabe von Dump
type DumpOptions func(*dumpOptions)

// DumpWithPrecision setzt die Anzahl der Nachkommastellen
func DumpWithPrecision(n int) DumpOptions {
	return func(opts *dumpOptions) {
		opts.precision = n
	}
}

// DumpWithThreshold setzt die Elementzahl, bis zu der ein Tensor
// vollstaendig ausgegeben wird
func DumpWithThreshold(n int) DumpOptions {
	return func(opts *dumpOptions) {
		opts.threshold = n
	}
}

// DumpWithEdgeItems setzt die Anzahl der Eintraege am Anfang und Ende
// jeder gekuerzten Achse
func DumpWithEdgeItems(n int) DumpOptions {
	return func(opts *dumpOptions) {
		opts.edgeItems = n
	}
}

type dumpOptions struct {
	precision, threshold, edgeItems int
}

// Dump gibt t zeilenweise aus, eine Klammerebene pro Achse:
//
//	[[1.0 2.0]
//	 [3.0 4.0]]
//
// Ueber dem Threshold wird jede Achse auf ihre Randelemente gekuerzt.
func Dump(t *Tensor, optsFuncs ...DumpOptions) string {
	if t == nil {
		return "<nil>"
	}

	opts := dumpOptions{precision: 4, threshold: 1000, edgeItems: 3}
	for _, fn := range optsFuncs {
		fn(&opts)
	}

	d := dumper{
		shape: t.Shape,
		edge:  opts.edgeItems,
		cells: make([]string, len(t.Data)),
	}
	if len(d.shape) == 0 {
		d.shape = []int{len(t.Data)}
	}
	if len(t.Data) <= opts.threshold {
		d.edge = -1
	}

	for i, v := range t.Data {
		d.cells[i] = strconv.FormatFloat(float64(v), 'f', opts.precision, 32)
		d.width = max(d.width, len(d.cells[i]))
	}

	d.axis(0, 0)
	return d.sb.String()
}

type dumper struct {
	shape []int
	cells []string
	width int

	// edge < 0 gibt alle Eintraege aus
	edge int

	sb strings.Builder
}

// indices gibt die auszugebenden Indizes einer Achse zurueck, -1 steht
// fuer die ausgelassenen Eintraege
func (d *dumper) indices(n int) []int {
	if d.edge < 0 || n <= 2*d.edge {
		idx := make([]int, n)
		for i := range idx {
			idx[i] = i
		}
		return idx
	}

	idx := make([]int, 0, 2*d.edge+1)
	for i := range d.edge {
		idx = append(idx, i)
	}
	idx = append(idx, -1)
	for i := n - d.edge; i < n; i++ {
		idx = append(idx, i)
	}
	return idx
}

func (d *dumper) axis(level, offset int) {
	last := level == len(d.shape)-1
	stride := NumElements(d.shape[level+1:])

	sep := " "
	if !last {
		sep = strings.Repeat("\n", len(d.shape)-1-level) + strings.Repeat(" ", level+1)
	}

	d.sb.WriteByte('[')
	for n, i := range d.indices(d.shape[level]) {
		if n > 0 {
			d.sb.WriteString(sep)
		}

		switch {
		case i < 0:
			d.sb.WriteString("...")
		case last:
			cell := d.cells[offset+i]
			d.sb.WriteString(strings.Repeat(" ", d.width-len(cell)))
			d.sb.WriteString(cell)
		default:
			d.axis(level+1, offset+i*stride)
		}
	}
	d.sb.WriteByte(']')
}
