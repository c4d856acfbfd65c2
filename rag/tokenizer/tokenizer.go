// Package tokenizer defines the token-counting contract used by token-aware
// chunking, with a dependency-free fallback implementation. Production
// deployments plug in the tiktoken-backed tokenizer from contrib.
package tokenizer

import (
	"strings"
	"unicode"
)

// Tokenizer encodes text into token IDs and back.
type Tokenizer interface {
	Encode(text string) []int
	Decode(ids []int) string
	CountTokens(text string) int
}

var _ Tokenizer = (*WordTokenizer)(nil)

// WordTokenizer approximates token counts by splitting on word and
// punctuation boundaries. It builds its vocabulary lazily, so instances are
// not safe for concurrent use.
type WordTokenizer struct {
	vocab    map[string]int
	invVocab map[int]string
	nextID   int
}

// NewWordTokenizer creates a tokenizer with an empty vocabulary.
func NewWordTokenizer() *WordTokenizer {
	return &WordTokenizer{
		vocab:    make(map[string]int),
		invVocab: make(map[int]string),
		nextID:   1,
	}
}

func (t *WordTokenizer) addToken(tok string) int {
	if id, ok := t.vocab[tok]; ok {
		return id
	}
	id := t.nextID
	t.vocab[tok] = id
	t.invVocab[id] = tok
	t.nextID++
	return id
}

// split breaks text into word, number, and punctuation tokens.
func (t *WordTokenizer) split(s string) []string {
	var toks []string
	var buf strings.Builder

	flush := func() {
		if buf.Len() > 0 {
			toks = append(toks, buf.String())
			buf.Reset()
		}
	}

	for _, r := range s {
		switch {
		case unicode.IsSpace(r):
			flush()
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			buf.WriteRune(r)
		default:
			flush()
			toks = append(toks, string(r))
		}
	}
	flush()
	return toks
}

// Encode converts text into token IDs, growing the vocabulary as needed.
func (t *WordTokenizer) Encode(text string) []int {
	toks := t.split(text)
	ids := make([]int, 0, len(toks))
	for _, tok := range toks {
		ids = append(ids, t.addToken(tok))
	}
	return ids
}

// Decode reconstructs text from token IDs. Word boundaries are joined with
// single spaces, so round-tripping is lossy for whitespace.
func (t *WordTokenizer) Decode(ids []int) string {
	parts := make([]string, 0, len(ids))
	for _, id := range ids {
		if tok, ok := t.invVocab[id]; ok {
			parts = append(parts, tok)
		}
	}
	return strings.Join(parts, " ")
}

// CountTokens reports how many tokens the text splits into.
func (t *WordTokenizer) CountTokens(text string) int {
	return len(t.split(text))
}
