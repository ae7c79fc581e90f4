// Package model - Konfiguration aus metadata.json
//
// Dieses Modul enthaelt die Hyperparameter des Captioning-Modells:
// - Config: Bildgroesse, Sequenzlaenge, Vokabular, Dimensionen, Heads
// - ParseConfig/LoadConfig: JSON lesen, Defaults setzen, validieren
// - TokenizerOptions: Optionen fuer den Vectorizer

package model

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/MichaelCStrahl/vision-voice-project/model/efficientnet"
	"github.com/MichaelCStrahl/vision-voice-project/tokenizer"
)

// Defaults fuer fehlende Felder in metadata.json
const (
	DefaultEncoderHeads = 2
	DefaultDecoderHeads = 3
)

// Config enthaelt die Modell-Hyperparameter. Nach dem Laden unveraenderlich.
type Config struct {
	ImageSize       [2]int              `json:"image_size"`
	SeqLength       int                 `json:"seq_length"`
	VocabSize       int                 `json:"vocab_size"`
	EmbedDim        int                 `json:"embed_dim"`
	FFDim           int                 `json:"ff_dim"`
	EncoderNumHeads int                 `json:"encoder_num_heads"`
	DecoderNumHeads int                 `json:"decoder_num_heads"`
	StripChars      string              `json:"strip_chars"`
	PadToken        string              `json:"pad_token"`
	OOVToken        string              `json:"oov_token"`
	Backbone        efficientnet.Config `json:"backbone"`
}

// rawConfig unterscheidet fehlende Felder von Nullwerten
type rawConfig struct {
	ImageSize       []int                `json:"image_size"`
	SeqLength       *int                 `json:"seq_length"`
	VocabSize       *int                 `json:"vocab_size"`
	EmbedDim        *int                 `json:"embed_dim"`
	FFDim           *int                 `json:"ff_dim"`
	EncoderNumHeads *int                 `json:"encoder_num_heads"`
	DecoderNumHeads *int                 `json:"decoder_num_heads"`
	StripChars      *string              `json:"strip_chars"`
	PadToken        *string              `json:"pad_token"`
	OOVToken        *string              `json:"oov_token"`
	Backbone        *efficientnet.Config `json:"backbone"`
}

// ParseConfig liest metadata.json-Inhalt und setzt Defaults fuer optionale Felder
func ParseConfig(data []byte) (Config, error) {
	var raw rawConfig
	if err := json.Unmarshal(data, &raw); err != nil {
		return Config{}, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	required := map[string]*int{
		"seq_length": raw.SeqLength,
		"vocab_size": raw.VocabSize,
		"embed_dim":  raw.EmbedDim,
		"ff_dim":     raw.FFDim,
	}
	for _, key := range []string{"seq_length", "vocab_size", "embed_dim", "ff_dim"} {
		if required[key] == nil {
			return Config{}, fmt.Errorf("%w: missing %s", ErrInvalidConfig, key)
		}
	}

	if len(raw.ImageSize) != 2 {
		return Config{}, fmt.Errorf("%w: image_size must have 2 entries, got %v", ErrInvalidConfig, raw.ImageSize)
	}

	c := Config{
		ImageSize:       [2]int{raw.ImageSize[0], raw.ImageSize[1]},
		SeqLength:       *raw.SeqLength,
		VocabSize:       *raw.VocabSize,
		EmbedDim:        *raw.EmbedDim,
		FFDim:           *raw.FFDim,
		EncoderNumHeads: valueOr(raw.EncoderNumHeads, DefaultEncoderHeads),
		DecoderNumHeads: valueOr(raw.DecoderNumHeads, DefaultDecoderHeads),
		StripChars:      valueOr(raw.StripChars, tokenizer.DefaultStripChars),
		PadToken:        valueOr(raw.PadToken, tokenizer.DefaultPadToken),
		OOVToken:        valueOr(raw.OOVToken, tokenizer.DefaultOOVToken),
		Backbone:        valueOr(raw.Backbone, efficientnet.B0()),
	}

	if err := c.Validate(); err != nil {
		return Config{}, err
	}

	return c, nil
}

func valueOr[T any](p *T, def T) T {
	if p == nil {
		return def
	}
	return *p
}

// LoadConfig liest und validiert die Datei path
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	return ParseConfig(data)
}

// Validate prueft die Wertebereiche
func (c Config) Validate() error {
	switch {
	case c.ImageSize[0] <= 0 || c.ImageSize[1] <= 0:
		return fmt.Errorf("%w: image_size %v", ErrInvalidConfig, c.ImageSize)
	case c.SeqLength < 2:
		// mindestens ein Dekodierschritt
		return fmt.Errorf("%w: seq_length %d < 2", ErrInvalidConfig, c.SeqLength)
	case c.VocabSize <= 0:
		return fmt.Errorf("%w: vocab_size %d", ErrInvalidConfig, c.VocabSize)
	case c.EmbedDim <= 0 || c.FFDim <= 0:
		return fmt.Errorf("%w: embed_dim %d, ff_dim %d", ErrInvalidConfig, c.EmbedDim, c.FFDim)
	case c.EncoderNumHeads <= 0 || c.DecoderNumHeads <= 0:
		return fmt.Errorf("%w: heads %d/%d", ErrInvalidConfig, c.EncoderNumHeads, c.DecoderNumHeads)
	}

	if err := c.Backbone.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	return nil
}

// TokenizerOptions gibt die Vectorizer-Optionen fuer diese Konfiguration zurueck
func (c Config) TokenizerOptions() tokenizer.Options {
	return tokenizer.Options{
		MaxTokens:      c.VocabSize,
		SequenceLength: c.SeqLength,
		StripChars:     c.StripChars,
		PadToken:       c.PadToken,
		OOVToken:       c.OOVToken,
	}
}
