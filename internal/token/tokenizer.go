package token

import (
	"fmt"

	"github.com/pkoukk/tiktoken-go"
)

// fallbackEncoding is used when the configured model is unknown to
// tiktoken. cl100k_base covers the text-embedding-3-* family.
const fallbackEncoding = "cl100k_base"

// Tokenizer counts and slices text by subword tokens. Encode/Decode
// are deterministic and reversible for a fixed model version.
type Tokenizer struct {
	model    string
	encoding *tiktoken.Tiktoken
}

func NewTokenizer(model string) (*Tokenizer, error) {
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		enc, err = tiktoken.GetEncoding(fallbackEncoding)
		if err != nil {
			return nil, fmt.Errorf("load fallback encoding: %w", err)
		}
	}
	return &Tokenizer{model: model, encoding: enc}, nil
}

func (t *Tokenizer) Model() string {
	return t.model
}

func (t *Tokenizer) Count(text string) int {
	if text == "" {
		return 0
	}
	return len(t.encoding.Encode(text, nil, nil))
}

func (t *Tokenizer) Encode(text string) []int {
	if text == "" {
		return nil
	}
	return t.encoding.Encode(text, nil, nil)
}

func (t *Tokenizer) Decode(ids []int) string {
	if len(ids) == 0 {
		return ""
	}
	return t.encoding.Decode(ids)
}
