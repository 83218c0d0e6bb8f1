// Package decode implements greedy (temperature-zero) autoregressive decoding
// over a small bag-of-context language model. The model is deliberately tiny;
// what matters is that every forward pass runs through the tensor backend's
// reduction kernels, so co-batching prompts changes the batch shape those
// kernels see, exactly as a dynamically batched inference server would.
package decode

import (
	"fmt"
	"math/rand"

	"github.com/born-ml/invariant/internal/tensor"
)

// Model is a bag-of-context next-token predictor: the embeddings of the last
// Window tokens are mean-pooled and projected to vocabulary logits.
type Model struct {
	Vocab  int
	Dim    int
	Window int

	embed []float32         // Vocab x Dim lookup table
	proj  *tensor.RawTensor // Dim x Vocab
	bias  *tensor.RawTensor // Vocab
}

// NewModel creates a model with reproducible random weights.
func NewModel(vocab, dim, window int, seed int64) (*Model, error) {
	if vocab <= 0 || dim <= 0 || window <= 0 {
		return nil, fmt.Errorf("decode: invalid model dimensions vocab=%d dim=%d window=%d", vocab, dim, window)
	}

	rng := rand.New(rand.NewSource(seed))

	embed := make([]float32, vocab*dim)
	for i := range embed {
		embed[i] = float32(rng.NormFloat64())
	}

	proj, err := tensor.NewRaw(tensor.Shape{dim, vocab}, tensor.Float32, tensor.CPU)
	if err != nil {
		return nil, err
	}
	projData := proj.AsFloat32()
	for i := range projData {
		projData[i] = float32(rng.NormFloat64())
	}

	bias, err := tensor.NewRaw(tensor.Shape{vocab}, tensor.Float32, tensor.CPU)
	if err != nil {
		return nil, err
	}
	biasData := bias.AsFloat32()
	for i := range biasData {
		biasData[i] = float32(rng.NormFloat64())
	}

	return &Model{
		Vocab:  vocab,
		Dim:    dim,
		Window: window,
		embed:  embed,
		proj:   proj,
		bias:   bias,
	}, nil
}

// Logits computes next-token logits for a batch of contexts on the given
// backend. Each context is truncated (or zero-padded on the left) to Window
// tokens, embedded, mean-pooled over positions and projected:
//
//	x      [B, Window, Dim]
//	pooled [B, Dim]        = MeanDim(x, 1)
//	logits [B, Vocab]      = bias + pooled @ proj
func (m *Model) Logits(b tensor.Backend, contexts [][]int32) (*tensor.RawTensor, error) {
	batch := len(contexts)
	if batch == 0 {
		return nil, fmt.Errorf("decode: empty batch")
	}

	x, err := tensor.NewRaw(tensor.Shape{batch, m.Window, m.Dim}, tensor.Float32, tensor.CPU)
	if err != nil {
		return nil, err
	}

	data := x.AsFloat32()
	for row, ctx := range contexts {
		window := lastWindow(ctx, m.Window)
		for pos, tok := range window {
			if tok < 0 || int(tok) >= m.Vocab {
				return nil, fmt.Errorf("decode: token %d out of vocabulary range [0, %d)", tok, m.Vocab)
			}
			src := m.embed[int(tok)*m.Dim : (int(tok)+1)*m.Dim]
			dst := data[(row*m.Window+pos)*m.Dim : (row*m.Window+pos+1)*m.Dim]
			copy(dst, src)
		}
	}

	pooled := b.MeanDim(x, 1, false)
	return b.AddMM(m.bias, pooled, m.proj), nil
}

// lastWindow returns the final window tokens of ctx, left-padded with token 0
// when ctx is shorter than the window.
func lastWindow(ctx []int32, window int) []int32 {
	out := make([]int32, window)
	n := len(ctx)
	if n > window {
		copy(out, ctx[n-window:])
		return out
	}
	copy(out[window-n:], ctx)
	return out
}
