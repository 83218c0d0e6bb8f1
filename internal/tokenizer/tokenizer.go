// Package tokenizer provides the prompt tokenizers used by the decoding
// demo: a tiktoken-backed tokenizer for real prompts and a dependency-free
// byte-level tokenizer for offline runs and tests.
package tokenizer

// Tokenizer converts between text and token IDs.
type Tokenizer interface {
	Encode(text string) ([]int32, error)
	Decode(tokens []int32) (string, error)
	VocabSize() int
	Name() string
}

// ByteTokenizer maps each byte of the input to its own token ID. Vocabulary
// size is fixed at 256, it needs no external data, and round-trips exactly.
type ByteTokenizer struct{}

// NewByte returns a byte-level tokenizer.
func NewByte() *ByteTokenizer {
	return &ByteTokenizer{}
}

// Encode maps each byte to its token ID.
func (b *ByteTokenizer) Encode(text string) ([]int32, error) {
	tokens := make([]int32, len(text))
	for i := 0; i < len(text); i++ {
		tokens[i] = int32(text[i])
	}
	return tokens, nil
}

// Decode maps token IDs back to bytes. IDs outside [0, 255] decode to '?'.
func (b *ByteTokenizer) Decode(tokens []int32) (string, error) {
	out := make([]byte, len(tokens))
	for i, t := range tokens {
		if t < 0 || t > 255 {
			out[i] = '?'
			continue
		}
		out[i] = byte(t)
	}
	return string(out), nil
}

// VocabSize returns 256.
func (b *ByteTokenizer) VocabSize() int {
	return 256
}

// Name returns the tokenizer name.
func (b *ByteTokenizer) Name() string {
	return "byte"
}
