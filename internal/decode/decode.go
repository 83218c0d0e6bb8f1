package decode

import (
	"fmt"

	"github.com/born-ml/invariant/internal/tensor"
)

// Decoder runs greedy autoregressive decoding on a backend. Which backend it
// holds decides whether batching other prompts alongside one can perturb that
// prompt's continuation.
type Decoder struct {
	model   *Model
	backend tensor.Backend
}

// NewDecoder creates a decoder for the given model and backend.
func NewDecoder(model *Model, backend tensor.Backend) *Decoder {
	return &Decoder{model: model, backend: backend}
}

// Generate decodes maxTokens greedy continuation tokens for a single prompt.
func (d *Decoder) Generate(prompt []int32, maxTokens int) ([]int32, error) {
	outs, err := d.GenerateBatch([][]int32{prompt}, maxTokens)
	if err != nil {
		return nil, err
	}
	return outs[0], nil
}

// GenerateBatch decodes all prompts together, the way a batching scheduler
// would co-schedule concurrent requests: every step runs one forward pass
// over the whole batch and takes the per-row argmax at temperature zero.
func (d *Decoder) GenerateBatch(prompts [][]int32, maxTokens int) ([][]int32, error) {
	if maxTokens < 0 {
		return nil, fmt.Errorf("decode: negative maxTokens %d", maxTokens)
	}

	contexts := make([][]int32, len(prompts))
	generated := make([][]int32, len(prompts))
	for i, p := range prompts {
		contexts[i] = append([]int32(nil), p...)
		generated[i] = make([]int32, 0, maxTokens)
	}

	for step := 0; step < maxTokens; step++ {
		logits, err := d.model.Logits(d.backend, contexts)
		if err != nil {
			return nil, err
		}

		// Softmax does not move the argmax, but real serving stacks compute
		// probabilities before selection, so the demo does too: it puts the
		// normalization reduction on the decode path.
		probs := d.backend.Softmax(logits, -1)
		next := d.backend.Argmax(probs, -1)

		ids := next.AsInt32()
		for i := range contexts {
			contexts[i] = append(contexts[i], ids[i])
			generated[i] = append(generated[i], ids[i])
		}
	}

	return generated, nil
}
