package tokenizer

import (
	"bytes"
	"errors"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testVocab = []string{"", "[UNK]", "<start>", "<end>", "a", "dog", "runs", "on", "the", "grass"}

func newTestVectorizer(t *testing.T, l int) *Vectorizer {
	t.Helper()
	opts := DefaultOptions(l)
	opts.MaxTokens = 16
	v, err := Build(testVocab, opts)
	require.NoError(t, err)
	return v
}

func TestNormalize(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"A Dog, running!", "a dog running"},
		{"<start> It's 3 o'clock", "<start> its  oclock"},
		{"ÄRGER über Straße", "Ärger über straße"},
		{"tabs\tand\nlines", "tabs\tand\nlines"},
		{"[brackets] {braces} |pipe|", "brackets braces pipe"},
	}

	for _, tt := range cases {
		assert.Equal(t, tt.want, Normalize(tt.in, DefaultStripChars), "Normalize(%q)", tt.in)
	}
}

func TestBuildReconstructsVocabulary(t *testing.T) {
	v := newTestVectorizer(t, 6)
	assert.Equal(t, testVocab, v.Vocabulary())
	assert.Equal(t, len(testVocab), v.Size())

	id, ok := v.ID("<start>")
	require.True(t, ok)
	assert.EqualValues(t, 2, id)

	tok, ok := v.Token(3)
	require.True(t, ok)
	assert.Equal(t, "<end>", tok)

	_, ok = v.Token(int32(len(testVocab)))
	assert.False(t, ok)
}

func TestBuildMismatch(t *testing.T) {
	cases := map[string]struct {
		vocab     []string
		maxTokens int
		err       error
	}{
		"missing reserved prefix": {
			vocab: []string{"<start>", "<end>", "a"},
			err:   ErrVocabularyMismatch,
		},
		"only padding reserved": {
			vocab: []string{"", "<start>", "<end>"},
			err:   ErrReservedToken,
		},
		"swapped reserved": {
			vocab: []string{"[UNK]", "", "a"},
			err:   ErrReservedToken,
		},
		"repeated token": {
			vocab: []string{"", "[UNK]", "a", "b", "a"},
			err:   ErrDuplicateToken,
		},
		"reserved later": {
			vocab: []string{"", "[UNK]", "a", "[UNK]"},
			err:   ErrReservedToken,
		},
		"too large": {
			vocab:     []string{"", "[UNK]", "a", "b", "c"},
			maxTokens: 4,
			err:       ErrVocabularyTooLarge,
		},
	}

	for name, tt := range cases {
		t.Run(name, func(t *testing.T) {
			opts := DefaultOptions(4)
			opts.MaxTokens = tt.maxTokens
			_, err := Build(tt.vocab, opts)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.err), "Fehler %v, erwartet %v", err, tt.err)
		})
	}
}

func TestBuildMismatchNamesIndex(t *testing.T) {
	_, err := Build([]string{"<start>", "<end>"}, DefaultOptions(4))
	require.ErrorIs(t, err, ErrVocabularyMismatch)
	assert.Contains(t, err.Error(), "index 0")
}

func TestTokenize(t *testing.T) {
	v := newTestVectorizer(t, 6)

	assert.Equal(t, []int32{2, 4, 5, 0, 0, 0}, v.Tokenize("<start> A dog"))
	assert.Equal(t, []int32{4, 1, 6, 0, 0, 0}, v.Tokenize("a cat runs"))
	assert.Equal(t, []int32{2, 4, 5, 6, 7, 8}, v.Tokenize("<start> a dog runs on the grass <end>"))
	assert.Equal(t, []int32{0, 0, 0, 0, 0, 0}, v.Tokenize("   "))
	assert.Equal(t, []int32{5, 0, 0, 0, 0, 0}, v.Tokenize("dog!!!"))
}

func TestDetokenize(t *testing.T) {
	v := newTestVectorizer(t, 6)
	assert.Equal(t, "<start> a dog", v.Detokenize([]int32{2, 4, 5, 0, 0, 0}))
	assert.Equal(t, "a [UNK]", v.Detokenize([]int32{4, 1, 0, 99}))
}

func TestRoundTrip(t *testing.T) {
	v := newTestVectorizer(t, 5)

	texts := []string{
		"<start> a dog runs on the grass <end>",
		"A DOG, on the grass!",
		"a cat sits on the mat",
		"a zebra runs",
		"",
		"<start>",
		"grass grass grass grass grass grass grass",
	}

	for _, text := range texts {
		first := v.Tokenize(text)
		again := v.Tokenize(v.Detokenize(first))
		assert.Equal(t, first, again, "Round-Trip fuer %q", text)
		assert.Len(t, again, 5)
	}
}

func TestRoundTripOOVWord(t *testing.T) {
	v := newTestVectorizer(t, 4)

	ids := v.Tokenize("a zebra runs")
	assert.Equal(t, []int32{4, 1, 6, 0}, ids)
	assert.Equal(t, "a [UNK] runs", v.Detokenize(ids))
	assert.Equal(t, ids, v.Tokenize(v.Detokenize(ids)))
}

func TestOOVTokenCollision(t *testing.T) {
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, nil)))
	t.Cleanup(func() { slog.SetDefault(prev) })

	v, err := Build([]string{"", "[UNK]", "a", "unk"}, DefaultOptions(3))
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "will not round-trip")
	assert.Contains(t, buf.String(), "word=unk")

	// "[UNK]" normalisiert zu "unk" und trifft das Vokabular-Wort
	ids := []int32{2, 1, 0}
	assert.Equal(t, []int32{2, 3, 0}, v.Tokenize(v.Detokenize(ids)))

	buf.Reset()
	_, err = Build(testVocab, DefaultOptions(3))
	require.NoError(t, err)
	assert.Empty(t, buf.String())
}

func TestNoOOVToken(t *testing.T) {
	opts := DefaultOptions(3)
	opts.PadToken = "<pad>"
	opts.OOVToken = ""

	v, err := Build([]string{"<pad>", "<start>", "<end>", "cat"}, opts)
	require.NoError(t, err)

	assert.Equal(t, []int32{1, 3, 0}, v.Tokenize("<start> cat"))
	assert.Equal(t, []int32{1, 0, 3}, v.Tokenize("<start> dog cat"))
}

func TestConcurrentReads(t *testing.T) {
	v := newTestVectorizer(t, 6)
	want := v.Tokenize("<start> a dog runs")

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 100 {
				if got := v.Tokenize("<start> a dog runs"); !assert.Equal(t, want, got) {
					return
				}
			}
		}()
	}
	wg.Wait()
}
