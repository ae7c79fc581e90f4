// Package detect - Objekt-Detektor (YOLOv8) neben dem Captioning-Modell
//
// Dieses Modul enthaelt:
// - Backend: Ausfuehrung des exportierten Modells (ONNX Runtime mit cgo)
// - Detector: Letterbox-Vorverarbeitung, Inferenz, Dekodierung und NMS
// - Loader: laedt den Detektor bei Bedarf und merkt sich den letzten Fehler
package detect

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/MichaelCStrahl/vision-voice-project/vision"
)

var (
	ErrNotLoaded       = errors.New("detection model not loaded")
	ErrWeightsNotFound = errors.New("detection weights not found")
)

// Backend fuehrt das Detektionsmodell aus
type Backend interface {
	// Run erhaelt einen NCHW-Tensor [1, 3, size, size] mit Werten in [0,1]
	// und gibt die Rohausgabe samt Shape zurueck
	Run(ctx context.Context, input []float32, size int) ([]float32, []int64, error)

	// InputSize ist die feste Eingabegroesse oder 0 bei dynamischer Groesse
	InputSize() int

	Close() error
}

// Object ist ein erkanntes Objekt im Antwortformat
type Object struct {
	Class      string    `json:"class"`
	Confidence float64   `json:"confidence"`
	ClassID    int       `json:"class_id"`
	BBox       []float64 `json:"bbox_xyxy,omitempty"`
}

// Detection ist das Ergebnis einer Detektion
type Detection struct {
	Objects []Object
	Params  Params
	Elapsed time.Duration
}

// Detector ist nach dem Laden unveraenderlich
type Detector struct {
	Dir    string
	Config Config
	Labels []string

	backend Backend
}

// New erzeugt einen Detektor mit einem bereits geoeffneten Backend
func New(cfg Config, labels []string, backend Backend) *Detector {
	return &Detector{Config: cfg, Labels: labels, backend: backend}
}

// Load liest config.json und labels.json aus dir und oeffnet das ONNX-Modell
func Load(dir string) (*Detector, error) {
	if _, err := os.Stat(dir); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrModelDirNotFound, dir)
	}

	cfg, err := LoadConfig(dir)
	if err != nil {
		return nil, err
	}

	labels, err := LoadLabels(dir)
	if err != nil {
		return nil, err
	}

	path := cfg.ONNXPath(dir)
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrWeightsNotFound, path)
	}

	slog.Info("loading detection model", "path", path)
	backend, err := openONNX(path)
	if err != nil {
		return nil, err
	}

	d := New(cfg, labels, backend)
	d.Dir = dir
	slog.Info("detection model loaded", "classes", len(labels))
	return d, nil
}

// Close gibt das Backend frei
func (d *Detector) Close() error {
	if d.backend == nil {
		return nil
	}
	return d.backend.Close()
}

// Detect erkennt Objekte in den Bild-Bytes data
func (d *Detector) Detect(ctx context.Context, data []byte, p Params) (*Detection, error) {
	p, err := p.Normalize()
	if err != nil {
		return nil, err
	}

	if fixed := d.backend.InputSize(); fixed > 0 && fixed != p.ImgSz {
		slog.Debug("model has a fixed input size", "requested", p.ImgSz, "used", fixed)
		p.ImgSz = fixed
	}

	img, err := vision.LoadImageFromBytes(data)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	boxed, info, err := vision.Letterbox(img, p.ImgSz, vision.LetterboxColor)
	if err != nil {
		return nil, err
	}

	input := vision.CHWTensorLayout(vision.ToFloat32Tensor(boxed), p.ImgSz, p.ImgSz, 3)
	out, shape, err := d.backend.Run(ctx, input, p.ImgSz)
	if err != nil {
		return nil, err
	}

	boxes, err := Decode(out, shape, len(d.Labels), p.Conf)
	if err != nil {
		return nil, err
	}

	boxes = NMS(boxes, p.IoU, p.MaxDet)
	Scale(boxes, info, img.Width, img.Height)

	objects := make([]Object, len(boxes))
	for i, b := range boxes {
		objects[i] = Object{
			Class:      d.className(b.ClassID),
			Confidence: b.Score,
			ClassID:    b.ClassID,
		}
		if d.Config.ReturnBBoxes {
			objects[i].BBox = []float64{b.X1, b.Y1, b.X2, b.Y2}
		}
	}

	return &Detection{Objects: objects, Params: p, Elapsed: time.Since(start)}, nil
}

func (d *Detector) className(id int) string {
	if id >= 0 && id < len(d.Labels) {
		return d.Labels[id]
	}
	return strconv.Itoa(id)
}

// =============================================================================
// Loader
// =============================================================================

// Loader laedt den Detektor beim ersten Zugriff. Nach einem Fehler wird beim
// naechsten Zugriff erneut geladen.
type Loader struct {
	dir  string
	open func(string) (*Detector, error)

	mu  sync.Mutex
	d   *Detector
	err error
}

// NewLoader gibt einen Loader fuer das Modell-Verzeichnis dir zurueck
func NewLoader(dir string) *Loader {
	return &Loader{dir: dir, open: Load}
}

// Dir gibt das Modell-Verzeichnis zurueck
func (l *Loader) Dir() string {
	return l.dir
}

// Set setzt einen bereits geladenen Detektor
func (l *Loader) Set(d *Detector) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.d, l.err = d, nil
}

// Get gibt den Detektor zurueck und laedt ihn bei Bedarf
func (l *Loader) Get() (*Detector, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.d != nil {
		return l.d, nil
	}

	l.d, l.err = l.open(l.dir)
	if l.err != nil {
		slog.Error("detection model unavailable", "dir", l.dir, "error", l.err)
		return nil, fmt.Errorf("%w: %w", ErrNotLoaded, l.err)
	}
	return l.d, nil
}

// Status beschreibt den Lade-Zustand fuer /health
type Status struct {
	Loaded      bool
	LabelsCount int
	Err         error
}

// Status versucht zu laden und meldet den Zustand
func (l *Loader) Status() Status {
	d, err := l.Get()
	if err != nil {
		return Status{Err: err}
	}
	return Status{Loaded: true, LabelsCount: len(d.Labels)}
}

// Close gibt einen geladenen Detektor frei
func (l *Loader) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.d == nil {
		return nil
	}
	err := l.d.Close()
	l.d = nil
	return err
}
