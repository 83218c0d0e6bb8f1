// Command invariant demonstrates batch-invariant execution: it reruns the
// matmul batch-invariance experiment and a co-batched greedy decode with the
// mode off and on, and reports the observed divergence.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/born-ml/invariant/internal/backend/cpu"
	"github.com/born-ml/invariant/internal/decode"
	"github.com/born-ml/invariant/internal/invariant"
	"github.com/born-ml/invariant/internal/tensor"
	"github.com/born-ml/invariant/internal/tokenizer"
)

func main() {
	var (
		iters     = flag.Int("iters", 20, "trials per experiment")
		rows      = flag.Int("rows", 256, "batch rows B of the a matrix (B, K)")
		contract  = flag.Int("k", 1024, "contraction dimension K")
		cols      = flag.Int("n", 256, "output columns N of the b matrix (K, N)")
		runDecode = flag.Bool("decode", true, "also run the co-batched decode round-trip")
		tokName   = flag.String("tokenizer", "byte", "tokenizer for the decode demo: byte or cl100k")
		prompt    = flag.String("prompt", "The quick brown fox jumps over the lazy dog", "prompt for the decode demo")
	)
	flag.Parse()

	backend, err := invariant.New(cpu.New())
	if err != nil {
		fmt.Fprintf(os.Stderr, "batch-invariant mode unavailable: %v\n", err)
		fmt.Fprintln(os.Stderr, "deterministic execution will NOT be enabled")
		os.Exit(1)
	}

	fmt.Printf("backend: %s\n\n", backend.Name())

	for _, active := range []bool{false, true} {
		label := "default kernels"
		if active {
			label = "batch-invariant mode"
		}
		fmt.Printf("== %s ==\n", label)

		maxDiff, minDiff, deterministic, err := matmulTrials(backend, active, *iters, *rows, *contract, *cols)
		if err != nil {
			fmt.Fprintf(os.Stderr, "matmul experiment: %v\n", err)
			os.Exit(1)
		}

		mark := "diverged"
		if deterministic {
			mark = "bit-identical"
		}
		fmt.Printf("matmul a[:1]@b vs (a@b)[:1]  %s  max diff %.3e  min diff %.3e  (%d trials)\n",
			mark, maxDiff, minDiff, *iters)

		if *runDecode {
			if err := decodeTrial(backend, active, *tokName, *prompt); err != nil {
				fmt.Fprintf(os.Stderr, "decode experiment: %v\n", err)
				os.Exit(1)
			}
		}
		fmt.Println()
	}
}

// matmulTrials compares one row computed alone against the same row computed
// inside the full batch, over repeated trials.
func matmulTrials(b tensor.Backend, active bool, iters, rows, k, n int) (maxDiff, minDiff float64, deterministic bool, err error) {
	release := invariant.Activate(active)
	defer release()

	a, err := tensor.Linspace(-1000, 1000, tensor.Shape{rows, k})
	if err != nil {
		return 0, 0, false, err
	}
	w, err := tensor.Linspace(-1000, 1000, tensor.Shape{k, n})
	if err != nil {
		return 0, 0, false, err
	}
	firstRow, err := a.Narrow(0, 1)
	if err != nil {
		return 0, 0, false, err
	}

	deterministic = true
	for i := 0; i < iters; i++ {
		alone := b.MatMul(firstRow, w)
		batched, err := b.MatMul(a, w).Narrow(0, 1)
		if err != nil {
			return 0, 0, false, err
		}

		diff, err := tensor.MaxAbsDiff(alone, batched)
		if err != nil {
			return 0, 0, false, err
		}
		if i == 0 || diff > maxDiff {
			maxDiff = diff
		}
		if i == 0 || diff < minDiff {
			minDiff = diff
		}
		if diff != 0 {
			deterministic = false
		}
	}
	return maxDiff, minDiff, deterministic, nil
}

// decodeTrial decodes the prompt alone and co-batched with filler prompts and
// reports whether the continuations match.
func decodeTrial(b tensor.Backend, active bool, tokName, prompt string) error {
	release := invariant.Activate(active)
	defer release()

	var tok tokenizer.Tokenizer
	switch tokName {
	case "byte":
		tok = tokenizer.NewByte()
	case "cl100k":
		t, err := tokenizer.NewCL100k()
		if err != nil {
			return err
		}
		tok = t
	default:
		return fmt.Errorf("unknown tokenizer %q", tokName)
	}

	model, err := decode.NewModel(tok.VocabSize(), 64, 8, 7)
	if err != nil {
		return err
	}
	dec := decode.NewDecoder(model, b)

	tokens, err := tok.Encode(prompt)
	if err != nil {
		return err
	}

	const steps = 16
	alone, err := dec.Generate(tokens, steps)
	if err != nil {
		return err
	}

	for _, extra := range []int{1, 5, 32} {
		prompts := [][]int32{tokens}
		for i := 0; i < extra; i++ {
			filler, err := tok.Encode(fmt.Sprintf("filler prompt number %d", i))
			if err != nil {
				return err
			}
			prompts = append(prompts, filler)
		}

		outs, err := dec.GenerateBatch(prompts, steps)
		if err != nil {
			return err
		}

		if equalTokens(alone, outs[0]) {
			fmt.Printf("decode with %2d co-batched prompts  identical continuation\n", extra)
		} else {
			fmt.Printf("decode with %2d co-batched prompts  DIVERGED\n", extra)
		}
	}
	return nil
}

func equalTokens(a, b []int32) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
