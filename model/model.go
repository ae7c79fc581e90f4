// Package model - Modell-Konfiguration und Gewichtsbindung
//
// Dieses Paket verbindet die Artefakte (metadata.json, Gewichtsdatei) mit
// den Architektur-Strukturen in model/efficientnet und model/caption.
//
// Hauptkomponenten:
// - WeightSource: Interface fuer geladene Gewichtsdateien (GGUF, safetensors)
// - Config: Hyperparameter aus metadata.json
// - Bind: Befuellt alle getaggten Tensor-Felder einer Struktur aus einer WeightSource
// - Tensors: Listet alle getaggten Tensoren mit ihren Namen (Export, Inspektion)

package model

import (
	"errors"

	"github.com/MichaelCStrahl/vision-voice-project/ml"
)

// Fehler-Definitionen
var (
	ErrMissingTensor = errors.New("missing tensor")
	ErrShapeMismatch = errors.New("tensor shape mismatch")
	ErrInvalidConfig = errors.New("invalid model config")
)

// WeightSource liefert dekodierte float32-Tensoren nach Name.
// Implementiert von gguf.Weights und safetensors.Weights.
type WeightSource interface {
	Tensor(name string) (*ml.Tensor, bool)
	Names() []string
}

// NamedTensor ist ein Tensor-Feld mit seinem vollen Namen
type NamedTensor struct {
	Name   string
	Tensor *ml.Tensor
}
