//go:build !cgo

package detect

import "errors"

// ErrCGORequired wird ohne cgo zurueckgegeben, da die ONNX Runtime eine
// C-Bibliothek ist
var ErrCGORequired = errors.New("detect: onnx runtime requires cgo")

func openONNX(string) (Backend, error) {
	return nil, ErrCGORequired
}
