package tokenizer

import (
	"fmt"

	"github.com/pkoukk/tiktoken-go"
)

// encodingCL100kBase is the encoding used by GPT-4 and GPT-3.5-turbo.
const encodingCL100kBase = "cl100k_base"

// TikToken wraps the pkoukk/tiktoken-go library for OpenAI-style BPE
// tokenization. Loading an encoding may fetch its vocabulary; offline
// callers should use ByteTokenizer instead.
type TikToken struct {
	encoding *tiktoken.Tiktoken
	name     string
	vocab    int
}

// NewTikToken creates a TikToken tokenizer for the given encoding name,
// e.g. "cl100k_base".
func NewTikToken(encodingName string) (*TikToken, error) {
	encoding, err := tiktoken.GetEncoding(encodingName)
	if err != nil {
		return nil, fmt.Errorf("failed to load tiktoken encoding %q: %w", encodingName, err)
	}

	return &TikToken{
		encoding: encoding,
		name:     encodingName,
		vocab:    encodingMaxToken(encodingName),
	}, nil
}

// NewCL100k creates the cl100k_base tokenizer.
func NewCL100k() (*TikToken, error) {
	return NewTikToken(encodingCL100kBase)
}

// encodingMaxToken returns the vocabulary size for known encodings.
func encodingMaxToken(name string) int {
	switch name {
	case encodingCL100kBase:
		return 100277
	default:
		return 51200
	}
}

// Encode converts text to token IDs.
func (t *TikToken) Encode(text string) ([]int32, error) {
	ids := t.encoding.Encode(text, nil, nil)
	tokens := make([]int32, len(ids))
	for i, id := range ids {
		tokens[i] = int32(id)
	}
	return tokens, nil
}

// Decode converts token IDs back to text.
func (t *TikToken) Decode(tokens []int32) (string, error) {
	ids := make([]int, len(tokens))
	for i, tok := range tokens {
		ids[i] = int(tok)
	}
	return t.encoding.Decode(ids), nil
}

// VocabSize returns the vocabulary size of the encoding.
func (t *TikToken) VocabSize() int {
	return t.vocab
}

// Name returns the encoding name.
func (t *TikToken) Name() string {
	return t.name
}
