// Package api - Request- und Response-Typen der HTTP-API.
//
// Dieses Modul enthaelt:
// - StatusError: Fehlerantwort des Servers
// - Caption*: Antworten von POST /caption (inkl. Debug und Streaming)
// - Detect*: Antworten von POST /detect und /detect/base64
// - HealthResponse, VersionResponse, RootResponse

package api

//go:generate go run ./tsgen -o types.gen.ts

import (
	"fmt"
)

// StatusError is an error with an HTTP status code and message.
type StatusError struct {
	StatusCode   int
	Status       string
	ErrorMessage string `json:"error"`
}

func (e StatusError) Error() string {
	switch {
	case e.Status != "" && e.ErrorMessage != "":
		return fmt.Sprintf("%s: %s", e.Status, e.ErrorMessage)
	case e.Status != "":
		return e.Status
	case e.ErrorMessage != "":
		return e.ErrorMessage
	default:
		// this should not happen
		return "something went wrong, please see the server logs for details"
	}
}

// ============================================================================
// Captioning
// ============================================================================

// CaptionResponse ist die Antwort von POST /caption
type CaptionResponse struct {
	Success bool          `json:"success"`
	Caption string        `json:"caption"`
	Debug   *CaptionDebug `json:"debug,omitempty"`
}

// CaptionDebug enthaelt Diagnosewerte bei ?debug=true
type CaptionDebug struct {
	SHA256    string  `json:"sha256"`
	Bytes     int     `json:"bytes"`
	ImageMean float64 `json:"image_mean"`
	ImageStd  float64 `json:"image_std"`
	ImageMin  float64 `json:"image_min"`
	ImageMax  float64 `json:"image_max"`
}

// CaptionStreamResponse ist eine NDJSON-Zeile bei ?stream=true. Die letzte
// Zeile hat Done gesetzt und enthaelt die fertige Caption.
type CaptionStreamResponse struct {
	Index      int    `json:"index"`
	Token      string `json:"token"`
	Done       bool   `json:"done"`
	DoneReason string `json:"done_reason,omitempty"`
	Caption    string `json:"caption,omitempty"`
	Steps      int    `json:"steps,omitempty"`
}

// CaptionStreamFunc wird fuer jede Zeile des Streams aufgerufen
type CaptionStreamFunc func(CaptionStreamResponse) error

// ============================================================================
// Objekt-Detektion
// ============================================================================

// DetectOptions ueberschreibt die Parameter aus config.json. Nil-Felder
// behalten den Standardwert.
type DetectOptions struct {
	Conf   *float64
	IoU    *float64
	ImgSz  *int
	MaxDet *int
}

// DetectBase64Request ist der Body von POST /detect/base64
type DetectBase64Request struct {
	ImageBase64 string `json:"image_base64"`
}

// DetectedObject ist ein erkanntes Objekt
type DetectedObject struct {
	Class      string    `json:"class"`
	Confidence float64   `json:"confidence"`
	ClassID    int       `json:"class_id"`
	BBox       []float64 `json:"bbox_xyxy,omitempty"`
}

// DetectConfig sind die verwendeten Parameter einer Detektion
type DetectConfig struct {
	Model        string  `json:"model"`
	ImgSz        int     `json:"imgsz"`
	Conf         float64 `json:"conf"`
	IoU          float64 `json:"iou"`
	MaxDet       int     `json:"max_det"`
	ReturnBBoxes bool    `json:"return_bboxes"`
}

// DetectResponse ist die Antwort von POST /detect und /detect/base64
type DetectResponse struct {
	Success         bool               `json:"success"`
	Message         string             `json:"message"`
	DetectedObjects []DetectedObject   `json:"detected_objects"`
	AllPredictions  []any              `json:"all_predictions"`
	Categories      []string           `json:"categories"`
	Threshold       float64            `json:"threshold"`
	Count           int                `json:"count"`
	Config          DetectConfig       `json:"config"`
	TimingMS        map[string]float64 `json:"timing_ms"`
}

// CategoriesResponse ist die Antwort von GET /categories
type CategoriesResponse struct {
	Categories []string `json:"categories"`
	Count      int      `json:"count"`
}

// ============================================================================
// Status
// ============================================================================

// RootResponse ist die Antwort von GET /
type RootResponse struct {
	Message  string `json:"message"`
	Status   string `json:"status"`
	ModelDir string `json:"model_dir,omitempty"`
}

// ArtifactHashes sind die SHA256-Summen der geladenen Artefakte
type ArtifactHashes struct {
	Weights  string `json:"weights"`
	Vocab    string `json:"vocab"`
	Metadata string `json:"metadata"`
}

// RuntimeInfo beschreibt die Laufzeitumgebung
type RuntimeInfo struct {
	Version   string `json:"version"`
	GoVersion string `json:"go"`
	OS        string `json:"os"`
	Arch      string `json:"arch"`
	NumCPU    int    `json:"num_cpu"`
	Format    string `json:"weights_format,omitempty"`
	Tensors   int    `json:"tensors,omitempty"`
}

// MemoryInfo enthaelt Speicherwerte in MiB
type MemoryInfo struct {
	SysMB       float64 `json:"sys_mb"`
	HeapAllocMB float64 `json:"heap_alloc_mb"`
}

// DetectorHealth beschreibt den Zustand des Objekt-Detektors
type DetectorHealth struct {
	Status       string     `json:"status"`
	ModelLoaded  bool       `json:"model_loaded"`
	ConfigLoaded bool       `json:"config_loaded"`
	LabelsLoaded bool       `json:"labels_loaded"`
	LabelsCount  int        `json:"labels_count"`
	Memory       MemoryInfo `json:"memory"`
	Error        *string    `json:"error"`
}

// HealthResponse ist die Antwort von GET /health
type HealthResponse struct {
	Status       string          `json:"status"`
	ArtifactsDir string          `json:"artifacts_dir"`
	WeightsPath  string          `json:"weights_path"`
	VocabPath    string          `json:"vocab_path"`
	MetadataPath string          `json:"metadata_path"`
	SHA256       *ArtifactHashes `json:"sha256"`
	Runtime      RuntimeInfo     `json:"runtime"`
	Error        string          `json:"error,omitempty"`
	Detector     *DetectorHealth `json:"detector,omitempty"`
}

// VersionResponse ist die Antwort von GET /api/version
type VersionResponse struct {
	Version string `json:"version"`
}
