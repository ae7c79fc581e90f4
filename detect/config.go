// MODUL: config
// ZWECK: Detektor-Konfiguration (config.json), Klassen (labels.json) und
//        Parameter pro Anfrage
// INPUT: Modell-Verzeichnis
// OUTPUT: Config, Labels, Params
// NEBENEFFEKTE: Liest Dateien
// ABHAENGIGKEITEN: encoding/json
// HINWEISE: Fehlende Felder in config.json behalten ihre Defaults

package detect

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Dateinamen im Modell-Verzeichnis
const (
	ConfigFile = "config.json"
	LabelsFile = "labels.json"
)

// stride ist der groesste Stride von YOLOv8, imgsz muss ein Vielfaches sein
const stride = 32

var (
	ErrModelDirNotFound = errors.New("detection model directory not found")
	ErrInvalidLabels    = errors.New("invalid labels.json: expected {\"classes\": [...]}")
	ErrInvalidParams    = errors.New("invalid detection parameters")
)

// Config entspricht config.json
type Config struct {
	Model        string  `json:"model"`
	WeightsPT    string  `json:"weights_pt"`
	WeightsONNX  string  `json:"weights_onnx,omitempty"`
	ImgSz        int     `json:"imgsz"`
	Conf         float64 `json:"conf"`
	IoU          float64 `json:"iou"`
	MaxDet       int     `json:"max_det"`
	ReturnBBoxes bool    `json:"return_bboxes"`
}

// DefaultConfig gibt die Standardwerte fuer YOLOv8n zurueck
func DefaultConfig() Config {
	return Config{
		Model:     "yolov8n",
		WeightsPT: "best.pt",
		ImgSz:     640,
		Conf:      0.25,
		IoU:       0.5,
		MaxDet:    100,
	}
}

// LoadConfig liest config.json aus dir
func LoadConfig(dir string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(filepath.Join(dir, ConfigFile))
	if err != nil {
		return Config{}, err
	}

	if err := json.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("detect: %s: %w", ConfigFile, err)
	}

	return cfg, nil
}

// ONNXPath gibt den Pfad des exportierten ONNX-Modells zurueck. Ohne
// weights_onnx wird die Endung von weights_pt ersetzt (best.pt -> best.onnx).
func (c Config) ONNXPath(dir string) string {
	name := c.WeightsONNX
	if name == "" {
		name = strings.TrimSuffix(c.WeightsPT, filepath.Ext(c.WeightsPT)) + ".onnx"
	}
	return filepath.Join(dir, name)
}

// Params gibt die Standard-Parameter aus der Konfiguration zurueck
func (c Config) Params() Params {
	return Params{Conf: c.Conf, IoU: c.IoU, ImgSz: c.ImgSz, MaxDet: c.MaxDet}
}

// LoadLabels liest labels.json aus dir
func LoadLabels(dir string) ([]string, error) {
	data, err := os.ReadFile(filepath.Join(dir, LabelsFile))
	if err != nil {
		return nil, err
	}

	var raw struct {
		Classes []any `json:"classes"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidLabels, err)
	}
	if len(raw.Classes) == 0 {
		return nil, ErrInvalidLabels
	}

	labels := make([]string, len(raw.Classes))
	for i, c := range raw.Classes {
		labels[i] = fmt.Sprint(c)
	}
	return labels, nil
}

// Params sind die Parameter einer einzelnen Detektion
type Params struct {
	Conf   float64 `json:"conf"`
	IoU    float64 `json:"iou"`
	ImgSz  int     `json:"imgsz"`
	MaxDet int     `json:"max_det"`
}

// Normalize prueft die Wertebereiche und rundet ImgSz auf ein Vielfaches
// des Strides auf
func (p Params) Normalize() (Params, error) {
	switch {
	case p.Conf < 0 || p.Conf > 1:
		return p, fmt.Errorf("%w: conf %v", ErrInvalidParams, p.Conf)
	case p.IoU < 0 || p.IoU > 1:
		return p, fmt.Errorf("%w: iou %v", ErrInvalidParams, p.IoU)
	case p.ImgSz <= 0:
		return p, fmt.Errorf("%w: imgsz %d", ErrInvalidParams, p.ImgSz)
	case p.MaxDet <= 0:
		return p, fmt.Errorf("%w: max_det %d", ErrInvalidParams, p.MaxDet)
	}

	p.ImgSz = (p.ImgSz + stride - 1) / stride * stride
	return p, nil
}
