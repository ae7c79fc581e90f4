// MODUL: artifacts
// ZWECK: Laedt Vokabular, Modell-Konfiguration und Gewichte zu einem
//        unveraenderlichen Artifacts-Handle
// INPUT: Paths (Gewichte, Vokabular, Metadaten)
// OUTPUT: *Artifacts (Vectorizer, gebundenes Modell, SHA256-Hashes)
// NEBENEFFEKTE: Liest Dateien, protokolliert den Sanity-Check
// ABHAENGIGKEITEN: fs/gguf, fs/safetensors, model, model/caption, tokenizer,
//                  logutil, golang.org/x/sync/errgroup
// HINWEISE: Jeder Fehler ist fatal. Ein fehlender oder falsch geformter Tensor
//           sowie ein abweichendes Vokabular brechen das Laden ab.

package caption

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"golang.org/x/sync/errgroup"

	"github.com/MichaelCStrahl/vision-voice-project/envconfig"
	"github.com/MichaelCStrahl/vision-voice-project/fs/gguf"
	"github.com/MichaelCStrahl/vision-voice-project/fs/safetensors"
	"github.com/MichaelCStrahl/vision-voice-project/logutil"
	"github.com/MichaelCStrahl/vision-voice-project/ml"
	"github.com/MichaelCStrahl/vision-voice-project/model"
	captionmodel "github.com/MichaelCStrahl/vision-voice-project/model/caption"
	"github.com/MichaelCStrahl/vision-voice-project/tokenizer"
)

var (
	ErrArtifactNotFound = errors.New("artifact not found")

	// ErrVocabularyMismatch ist derselbe Fehler wie im tokenizer-Paket
	ErrVocabularyMismatch = tokenizer.ErrVocabularyMismatch
)

// sanityHead ist die Anzahl Vokabular-Eintraege im Start-Log
const sanityHead = 8

// Paths sind die Dateipfade der drei Artefakte
type Paths struct {
	Weights  string `json:"weights_path"`
	Vocab    string `json:"vocab_path"`
	Metadata string `json:"metadata_path"`
}

// PathsFromEnv liest die Pfade aus der Umgebung
func PathsFromEnv() Paths {
	return Paths{
		Weights:  envconfig.WeightsPath(),
		Vocab:    envconfig.VocabPath(),
		Metadata: envconfig.MetadataPath(),
	}
}

// PathsInDir gibt die Standard-Dateinamen in dir zurueck
func PathsInDir(dir string) Paths {
	return Paths{
		Weights:  filepath.Join(dir, "caption_model.gguf"),
		Vocab:    filepath.Join(dir, "vocab.json"),
		Metadata: filepath.Join(dir, "metadata.json"),
	}
}

// Hashes enthaelt die SHA256-Pruefsummen der Artefakt-Dateien
type Hashes struct {
	Weights  string `json:"weights"`
	Vocab    string `json:"vocab"`
	Metadata string `json:"metadata"`
}

// Artifacts ist nach Load unveraenderlich und darf von beliebig vielen
// Goroutinen gleichzeitig gelesen werden.
type Artifacts struct {
	Paths      Paths
	Config     model.Config
	Vectorizer *tokenizer.Vectorizer
	Model      *captionmodel.Model
	SHA256     Hashes

	// Format ist "gguf" oder "safetensors"
	Format      string
	NumTensors  int
	WeightBytes int64

	StartID int32
	EndID   int32

	weights weightFile
}

// weightFile ist eine geladene Gewichtsdatei
type weightFile interface {
	model.WeightSource
	NumBytes() int64
}

// Load liest alle Artefakte und baut daraus das einsatzbereite Modell:
// Vectorizer bauen, Modell allozieren, synthetischen Vorwaertslauf
// ausfuehren, Gewichte binden.
func Load(ctx context.Context, p Paths) (*Artifacts, error) {
	for _, path := range []string{p.Weights, p.Vocab, p.Metadata} {
		if _, err := os.Stat(path); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("%w: %s", ErrArtifactNotFound, path)
			}
			return nil, err
		}
	}

	a := &Artifacts{Paths: p}

	var (
		vocab   []string
		weights weightFile
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		a.Config, err = model.LoadConfig(p.Metadata)
		return err
	})
	g.Go(func() (err error) {
		vocab, err = readVocabulary(p.Vocab)
		return err
	})
	g.Go(func() (err error) {
		weights, a.Format, err = loadWeights(gctx, p.Weights)
		return err
	})
	g.Go(func() (err error) {
		a.SHA256.Weights, err = hashFile(p.Weights)
		return err
	})
	g.Go(func() (err error) {
		a.SHA256.Vocab, err = hashFile(p.Vocab)
		return err
	})
	g.Go(func() (err error) {
		a.SHA256.Metadata, err = hashFile(p.Metadata)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	vec, err := tokenizer.Build(vocab, a.Config.TokenizerOptions())
	if err != nil {
		return nil, fmt.Errorf("caption: vocabulary %s: %w", p.Vocab, err)
	}
	a.Vectorizer = vec

	m, err := captionmodel.New(a.Config)
	if err != nil {
		return nil, err
	}

	if err := m.Warmup(); err != nil {
		return nil, err
	}

	if err := model.Bind(m, weights); err != nil {
		return nil, fmt.Errorf("caption: weights %s: %w", p.Weights, err)
	}
	a.Model = m
	a.weights = weights
	a.NumTensors = len(weights.Names())
	a.WeightBytes = weights.NumBytes()

	a.StartID = vec.Tokenize(tokenizer.StartToken)[0]
	a.EndID = vec.Tokenize(tokenizer.EndToken)[0]

	slog.Info("caption artifacts loaded",
		"weights", p.Weights, "format", a.Format, "tensors", a.NumTensors,
		"sha256_weights", a.SHA256.Weights, "sha256_vocab", a.SHA256.Vocab, "sha256_metadata", a.SHA256.Metadata)
	slog.Info("vocabulary sanity check",
		"size", vec.Size(), "head", vec.Vocabulary()[:min(sanityHead, vec.Size())],
		"start_id", a.StartID, "end_id", a.EndID)

	return a, nil
}

// Caption dekodiert eine Caption fuer ein vorverarbeitetes Bild [H, W, 3]
func (a *Artifacts) Caption(ctx context.Context, img *ml.Tensor, fn StepFunc) (Result, error) {
	encoded, err := a.Model.Encode(img)
	if err != nil {
		return Result{}, err
	}
	if slog.Default().Enabled(ctx, logutil.LevelTrace) {
		logutil.TraceContext(ctx, "encoded image", "shape", encoded.Shape, "values", ml.Dump(encoded, ml.DumpWithEdgeItems(2)))
	}

	return Greedy(ctx, a.Model, a.Vectorizer, encoded, fn)
}

// Tensor gibt einen geladenen Gewichtstensor unter seinem Namen zurueck
func (a *Artifacts) Tensor(name string) (*ml.Tensor, bool) {
	if a.weights == nil {
		return nil, false
	}
	return a.weights.Tensor(name)
}

// TensorNames listet die Namen aller geladenen Gewichtstensoren
func (a *Artifacts) TensorNames() []string {
	if a.weights == nil {
		return nil
	}
	return a.weights.Names()
}

// readVocabulary liest vocab.json (JSON-Array von Strings)
func readVocabulary(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var vocab []string
	if err := json.Unmarshal(data, &vocab); err != nil {
		return nil, fmt.Errorf("caption: vocabulary %s: %w", path, err)
	}

	return vocab, nil
}

// loadWeights waehlt das Containerformat anhand der Magic-Bytes
func loadWeights(ctx context.Context, path string) (weightFile, string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, "", err
	}

	magic := make([]byte, 4)
	_, err = io.ReadFull(f, magic)
	f.Close()
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) {
		return nil, "", fmt.Errorf("caption: weights %s: %w", path, err)
	}

	if bytes.Equal(magic, []byte("GGUF")) {
		w, err := gguf.LoadWeights(ctx, path)
		if err != nil {
			return nil, "", fmt.Errorf("caption: weights %s: %w", path, err)
		}
		return w, "gguf", nil
	}

	// safetensors hat keine Magic-Bytes, der Header wird beim Laden geprueft
	w, err := safetensors.Load(ctx, path)
	if err != nil {
		return nil, "", err
	}
	return w, "safetensors", nil
}

// hashFile berechnet den SHA256 einer Datei als Hex-String
func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}
