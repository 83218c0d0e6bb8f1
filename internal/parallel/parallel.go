// Package parallel provides the worker fan-out helpers used by the compute
// backends.
package parallel

import (
	"runtime"
	"sync"
)

// Config controls parallel execution behavior.
type Config struct {
	Enabled    bool // Whether parallel execution is enabled.
	NumWorkers int  // Number of worker goroutines to use.
	MinPerTask int  // Minimum items per goroutine to avoid overhead.
}

// DefaultConfig returns sensible defaults based on CPU count.
func DefaultConfig() Config {
	n := runtime.NumCPU()
	return Config{
		Enabled:    n > 1,
		NumWorkers: n,
		MinPerTask: 16,
	}
}

// For executes f(i) for i in [0, n) with optional parallelism.
// Falls back to sequential execution if parallelism is disabled or n is
// too small to amortize goroutine overhead.
func For(n int, f func(i int), cfg Config) {
	if !cfg.Enabled || n < cfg.MinPerTask {
		for i := 0; i < n; i++ {
			f(i)
		}
		return
	}

	per := (n + cfg.NumWorkers - 1) / cfg.NumWorkers
	if per < cfg.MinPerTask {
		per = cfg.MinPerTask
	}

	var wg sync.WaitGroup
	for start := 0; start < n; start += per {
		end := min(start+per, n)
		wg.Add(1)
		go func(s, e int) {
			defer wg.Done()
			for i := s; i < e; i++ {
				f(i)
			}
		}(start, end)
	}
	wg.Wait()
}

// ForSpans partitions [0, n) into count contiguous spans and executes
// f(span, start, end) for each, in parallel when enabled. Used by kernels
// that fan reduction work out across spans and then combine span results.
func ForSpans(n, count int, f func(span, start, end int), cfg Config) {
	if count < 1 {
		count = 1
	}
	size := (n + count - 1) / count

	if !cfg.Enabled || count == 1 {
		for span := 0; span < count; span++ {
			start := span * size
			if start >= n {
				break
			}
			f(span, start, min(start+size, n))
		}
		return
	}

	var wg sync.WaitGroup
	for span := 0; span < count; span++ {
		start := span * size
		if start >= n {
			break
		}
		wg.Add(1)
		go func(span, s, e int) {
			defer wg.Done()
			f(span, s, e)
		}(span, start, min(start+size, n))
	}
	wg.Wait()
}
