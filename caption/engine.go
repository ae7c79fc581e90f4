// MODUL: engine
// ZWECK: Einstiegspunkt fuer Captioning-Anfragen mit Lade-Zustand
// INPUT: Bild-Bytes
// OUTPUT: Caption-Text, Result oder vision.Summary
// NEBENEFFEKTE: Load setzt den Zustand genau einmal atomar
// ABHAENGIGKEITEN: vision (Preprocess, Summarize), sync/atomic
// HINWEISE: Vor abgeschlossenem Laden liefert jede Anfrage ErrNotReady,
//           nach einem Ladefehler den Ladefehler.

package caption

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/MichaelCStrahl/vision-voice-project/vision"
)

var ErrNotReady = errors.New("caption model not ready")

// State ist der Lade-Zustand der Engine
type State string

const (
	StateStarting State = "starting"
	StateReady    State = "ok"
	StateError    State = "error"
)

// Status beschreibt den aktuellen Zustand fuer /health
type Status struct {
	State State
	Err   error
}

// Engine kapselt die geladenen Artefakte
type Engine struct {
	artifacts atomic.Pointer[Artifacts]

	mu      sync.Mutex
	loadErr error
}

// NewEngine gibt eine Engine im Zustand "starting" zurueck
func NewEngine() *Engine {
	return &Engine{}
}

// Load laedt die Artefakte und macht die Engine bereit. Ein Fehler bleibt
// gespeichert und wird von jeder folgenden Anfrage gemeldet.
func (e *Engine) Load(ctx context.Context, p Paths) error {
	a, err := Load(ctx, p)
	if err != nil {
		e.mu.Lock()
		e.loadErr = err
		e.mu.Unlock()
		return err
	}

	e.Set(a)
	return nil
}

// Set setzt bereits geladene Artefakte
func (e *Engine) Set(a *Artifacts) {
	e.mu.Lock()
	e.loadErr = nil
	e.mu.Unlock()
	e.artifacts.Store(a)
}

// Artifacts gibt die geladenen Artefakte zurueck
func (e *Engine) Artifacts() (*Artifacts, error) {
	if a := e.artifacts.Load(); a != nil {
		return a, nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.loadErr != nil {
		return nil, fmt.Errorf("%w: %w", ErrNotReady, e.loadErr)
	}
	return nil, ErrNotReady
}

// Ready meldet, ob Anfragen beantwortet werden koennen
func (e *Engine) Ready() bool {
	return e.artifacts.Load() != nil
}

// Status gibt den Lade-Zustand zurueck
func (e *Engine) Status() Status {
	if e.Ready() {
		return Status{State: StateReady}
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.loadErr != nil {
		return Status{State: StateError, Err: e.loadErr}
	}
	return Status{State: StateStarting}
}

// GenerateCaption erzeugt die Caption fuer ein kodiertes Bild
func (e *Engine) GenerateCaption(ctx context.Context, data []byte) (string, error) {
	res, err := e.Generate(ctx, data, nil)
	if err != nil {
		return "", err
	}
	return res.Caption, nil
}

// Generate erzeugt die Caption und ruft fn fuer jedes angehaengte Token auf
func (e *Engine) Generate(ctx context.Context, data []byte, fn StepFunc) (Result, error) {
	a, err := e.Artifacts()
	if err != nil {
		return Result{}, err
	}

	img, err := vision.Preprocess(data, a.Config.ImageSize[0], a.Config.ImageSize[1])
	if err != nil {
		return Result{}, err
	}

	return a.Caption(ctx, img, fn)
}

// Diagnose gibt die Statistik des vorverarbeiteten Bildes zurueck
func (e *Engine) Diagnose(data []byte) (vision.Summary, error) {
	a, err := e.Artifacts()
	if err != nil {
		return vision.Summary{}, err
	}

	img, err := vision.Preprocess(data, a.Config.ImageSize[0], a.Config.ImageSize[1])
	if err != nil {
		return vision.Summary{}, err
	}

	return vision.Summarize(img), nil
}
