// Package tiktoken implements tokenizer.Tokenizer with OpenAI's BPE
// encodings, giving token-window chunking exact counts for the models
// that will embed and read the passages.
package tiktoken

import (
	"fmt"

	"github.com/pkoukk/tiktoken-go"

	"github.com/harborlight/navqa/rag/tokenizer"
)

// Tokenizer wraps a tiktoken encoding.
type Tokenizer struct {
	enc *tiktoken.Tiktoken
}

var _ tokenizer.Tokenizer = (*Tokenizer)(nil)

// New resolves name first as a model ("gpt-4o-mini"), then as an
// encoding ("cl100k_base").
func New(name string) (*Tokenizer, error) {
	enc, err := tiktoken.EncodingForModel(name)
	if err != nil {
		enc, err = tiktoken.GetEncoding(name)
		if err != nil {
			return nil, fmt.Errorf("resolve encoding %q: %w", name, err)
		}
	}
	return &Tokenizer{enc: enc}, nil
}

// Encode converts text to token IDs.
func (t *Tokenizer) Encode(text string) []int {
	return t.enc.Encode(text, nil, nil)
}

// Decode converts token IDs back to text.
func (t *Tokenizer) Decode(ids []int) string {
	return t.enc.Decode(ids)
}

// CountTokens returns the number of tokens in text.
func (t *Tokenizer) CountTokens(text string) int {
	return len(t.Encode(text))
}
