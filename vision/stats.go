// MODUL: stats
// ZWECK: Zusammenfassende Statistik eines vorverarbeiteten Bildes (Debug)
// INPUT: ml.Tensor
// OUTPUT: Summary{Mean, Std, Min, Max}
// NEBENEFFEKTE: keine
// ABHAENGIGKEITEN: gonum.org/v1/gonum/stat, gonum.org/v1/gonum/floats
// HINWEISE: Std ist die Populations-Standardabweichung (wie numpy std)

package vision

import (
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/MichaelCStrahl/vision-voice-project/ml"
)

// Summary enthaelt Statistiken ueber alle Tensor-Elemente
type Summary struct {
	Mean float64 `json:"image_mean"`
	Std  float64 `json:"image_std"`
	Min  float64 `json:"image_min"`
	Max  float64 `json:"image_max"`
}

// Summarize berechnet Mittelwert, Standardabweichung, Minimum und Maximum
func Summarize(t *ml.Tensor) Summary {
	if t == nil || len(t.Data) == 0 {
		return Summary{}
	}

	values := make([]float64, len(t.Data))
	for i, v := range t.Data {
		values[i] = float64(v)
	}

	mean, std := stat.PopMeanStdDev(values, nil)
	return Summary{
		Mean: mean,
		Std:  std,
		Min:  floats.Min(values),
		Max:  floats.Max(values),
	}
}
