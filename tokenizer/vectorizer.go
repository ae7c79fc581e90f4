// vectorizer.go - Text <-> Token-ID Abbildung mit fester Sequenzlaenge
//
// Dieses Modul enthaelt:
// - Normalize: ASCII-Kleinschreibung und Entfernen der Strip-Zeichen
// - Build: Rekonstruiert das Vokabular (reservierte Tokens + Rest) und
//   vergleicht es Element fuer Element mit dem deklarierten Vokabular
// - Tokenize/Detokenize: feste Laenge L, Padding mit ID 0
//
// Das Vokabular ist nach Build unveraenderlich und fuer parallele
// Lesezugriffe sicher.
package tokenizer

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// DefaultStripChars sind die Zeichen, die vor der Tokenisierung entfernt werden.
// '<' und '>' fehlen absichtlich, damit <start> und <end> erhalten bleiben.
const DefaultStripChars = "!\"#$%&'()*+,-./:;=?@[\\]^_`{|}~1234567890"

// Reservierte Tokens
const (
	DefaultPadToken = ""
	DefaultOOVToken = "[UNK]"

	StartToken = "<start>"
	EndToken   = "<end>"
)

var (
	ErrVocabularyMismatch = errors.New("reconstructed vocabulary differs from the declared vocabulary")
	ErrDuplicateToken     = errors.New("vocabulary has a repeated token")
	ErrReservedToken      = errors.New("reserved token at unexpected location")
	ErrVocabularyTooLarge = errors.New("vocabulary exceeds the configured size")
)

// Options beschreibt, wie das Vokabular aufgebaut und Text zerlegt wird.
type Options struct {
	// MaxTokens begrenzt die Groesse des Vokabulars inklusive reservierter
	// Tokens. 0 bedeutet unbegrenzt.
	MaxTokens int

	// SequenceLength ist die feste Ausgabelaenge L von Tokenize.
	SequenceLength int

	StripChars string

	// PadToken belegt ID 0.
	PadToken string

	// OOVToken belegt ID 1. Leer bedeutet kein OOV-Slot: unbekannte Woerter
	// werden dann auf ID 0 abgebildet.
	OOVToken string
}

// DefaultOptions gibt die Standard-Optionen fuer Sequenzlaenge l zurueck
func DefaultOptions(l int) Options {
	return Options{
		SequenceLength: l,
		StripChars:     DefaultStripChars,
		PadToken:       DefaultPadToken,
		OOVToken:       DefaultOOVToken,
	}
}

// Vectorizer bildet Text auf Token-IDs fester Laenge ab und umgekehrt.
type Vectorizer struct {
	vocab  []string
	ids    *orderedmap.OrderedMap[string, int32]
	strip  string
	seqLen int
	oovID  int32
}

// Build reconstructs the vocabulary from declared the same way it was fitted
// (reserved padding and OOV tokens first, then the remaining tokens in
// order) and fails with ErrVocabularyMismatch unless the reconstruction
// equals declared element by element.
func Build(declared []string, opts Options) (*Vectorizer, error) {
	if opts.SequenceLength < 1 {
		return nil, fmt.Errorf("tokenizer: invalid sequence length %d", opts.SequenceLength)
	}

	reserved := []string{opts.PadToken}
	if opts.OOVToken != "" {
		reserved = append(reserved, opts.OOVToken)
	}

	tokens := declared
	if hasPrefix(tokens, reserved) {
		tokens = tokens[len(reserved):]
	}

	ids := orderedmap.New[string, int32](orderedmap.WithCapacity[string, int32](len(reserved) + len(tokens)))
	for i, tok := range reserved {
		ids.Set(tok, int32(i))
	}

	for _, tok := range tokens {
		for _, r := range reserved {
			if tok == r {
				return nil, fmt.Errorf("%w: %q", ErrReservedToken, tok)
			}
		}

		if _, present := ids.Set(tok, int32(ids.Len())); present {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateToken, tok)
		}
	}

	if opts.MaxTokens > 0 && ids.Len() > opts.MaxTokens {
		return nil, fmt.Errorf("%w: %d > %d", ErrVocabularyTooLarge, ids.Len(), opts.MaxTokens)
	}

	v := &Vectorizer{
		vocab:  make([]string, 0, ids.Len()),
		ids:    ids,
		strip:  opts.StripChars,
		seqLen: opts.SequenceLength,
	}

	for pair := ids.Oldest(); pair != nil; pair = pair.Next() {
		v.vocab = append(v.vocab, pair.Key)
	}

	if opts.OOVToken != "" {
		v.oovID = 1
	}

	if err := compare(declared, v.vocab); err != nil {
		return nil, err
	}

	if opts.OOVToken != "" {
		if id, ok := ids.Get(v.Normalize(opts.OOVToken)); ok && id != v.oovID {
			slog.Warn("oov token normalizes to a vocabulary word, detokenized captions will not round-trip",
				"oov_token", opts.OOVToken, "word", v.vocab[id], "id", id)
		}
	}

	return v, nil
}

func hasPrefix(s, prefix []string) bool {
	if len(s) < len(prefix) {
		return false
	}
	for i := range prefix {
		if s[i] != prefix[i] {
			return false
		}
	}
	return true
}

func compare(declared, rebuilt []string) error {
	n := min(len(declared), len(rebuilt))
	for i := range n {
		if declared[i] != rebuilt[i] {
			return fmt.Errorf("%w: index %d: declared %q, reconstructed %q", ErrVocabularyMismatch, i, declared[i], rebuilt[i])
		}
	}

	if len(declared) != len(rebuilt) {
		return fmt.Errorf("%w: declared %d tokens, reconstructed %d", ErrVocabularyMismatch, len(declared), len(rebuilt))
	}

	return nil
}

// Normalize lower-cases ASCII letters and removes every strip character.
func (v *Vectorizer) Normalize(text string) string {
	return Normalize(text, v.strip)
}

// Normalize lower-cases ASCII letters only and removes every rune contained
// in strip. Other Unicode letters are left untouched.
func Normalize(text, strip string) string {
	return strings.Map(func(r rune) rune {
		if strings.ContainsRune(strip, r) {
			return -1
		}
		if 'A' <= r && r <= 'Z' {
			return r + ('a' - 'A')
		}
		return r
	}, text)
}

func isSpace(r rune) bool {
	switch r {
	case ' ', '\t', '\n', '\v', '\f', '\r':
		return true
	}
	return false
}

// Tokenize normalizes text, splits it on whitespace and maps every word to
// its id. The result always has length SequenceLength: right-padded with 0
// or truncated.
func (v *Vectorizer) Tokenize(text string) []int32 {
	ids := make([]int32, v.seqLen)
	words := strings.FieldsFunc(v.Normalize(text), isSpace)
	for i, w := range words {
		if i >= v.seqLen {
			break
		}

		id, ok := v.ids.Get(w)
		if !ok {
			id = v.oovID
		}
		ids[i] = id
	}
	return ids
}

// Detokenize maps ids back to tokens joined by single spaces. Padding ids
// and ids outside the vocabulary are skipped. The OOV id is written as the
// OOV token, which Tokenize maps back to the OOV id unless its normalized
// form is itself a vocabulary word (Build warns about that).
func (v *Vectorizer) Detokenize(ids []int32) string {
	words := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == 0 {
			continue
		}
		if tok, ok := v.Token(id); ok {
			words = append(words, tok)
		}
	}
	return strings.Join(words, " ")
}

// Token gibt das Token fuer id zurueck
func (v *Vectorizer) Token(id int32) (string, bool) {
	if id < 0 || int(id) >= len(v.vocab) {
		return "", false
	}
	return v.vocab[id], true
}

// ID gibt die ID eines bereits normalisierten Tokens zurueck
func (v *Vectorizer) ID(token string) (int32, bool) {
	return v.ids.Get(token)
}

// Vocabulary gibt eine Kopie des rekonstruierten Vokabulars zurueck
func (v *Vectorizer) Vocabulary() []string {
	return append([]string(nil), v.vocab...)
}

// Size gibt die Anzahl der Tokens zurueck
func (v *Vectorizer) Size() int {
	return len(v.vocab)
}

// SequenceLength gibt L zurueck
func (v *Vectorizer) SequenceLength() int {
	return v.seqLen
}
