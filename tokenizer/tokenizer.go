// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package tokenizer provides the prompt tokenizers used by the decoding demo.
//
// Supported tokenizers:
//   - TikToken: OpenAI BPE encodings (loading one may fetch its vocabulary)
//   - Byte: one token per input byte, dependency-free, exact round-trip
//
// Example usage:
//
//	import "github.com/born-ml/invariant/tokenizer"
//
//	tok, err := tokenizer.NewTikToken("cl100k_base")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	tokens, err := tok.Encode("Hello, world!")
package tokenizer

import (
	"github.com/born-ml/invariant/internal/tokenizer"
)

// Tokenizer is the core interface for text tokenization.
type Tokenizer = tokenizer.Tokenizer

// ByteTokenizer maps each input byte to its own token ID.
type ByteTokenizer = tokenizer.ByteTokenizer

// TikToken wraps an OpenAI BPE encoding.
type TikToken = tokenizer.TikToken

// NewTikToken creates a TikToken tokenizer for the given encoding name.
//
// Supported encodings: "cl100k_base" (GPT-4), "p50k_base" (GPT-3).
func NewTikToken(encodingName string) (Tokenizer, error) {
	return tokenizer.NewTikToken(encodingName)
}

// NewCL100k creates the cl100k_base tokenizer.
func NewCL100k() (Tokenizer, error) {
	return tokenizer.NewCL100k()
}

// NewByte creates a byte-level tokenizer.
func NewByte() Tokenizer {
	return tokenizer.NewByte()
}
