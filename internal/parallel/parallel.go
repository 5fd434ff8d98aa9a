// Package parallel runs independent per-item computations on a bounded set of
// worker goroutines.
package parallel

import (
	"runtime"
	"sync"
	"sync/atomic"
)

// Config controls parallel execution behavior.
type Config struct {
	NumWorkers   int // Number of worker goroutines; 1 runs sequentially.
	MinChunkSize int // Items claimed by a worker at a time.
}

// NewConfig returns a Config with numWorkers workers, or one per CPU if
// numWorkers <= 0.
func NewConfig(numWorkers int) Config {
	if numWorkers <= 0 {
		numWorkers = runtime.NumCPU()
	}
	return Config{
		NumWorkers:   numWorkers,
		MinChunkSize: 8,
	}
}

// Sequential reports whether For runs on the calling goroutine for n items.
func (cfg Config) Sequential(n int) bool {
	return cfg.NumWorkers <= 1 || n <= cfg.MinChunkSize
}

// For executes f(i) for every i in [0, n). Workers claim chunks of
// MinChunkSize consecutive indices until none are left; f must be safe to
// call concurrently for distinct indices. For returns when all calls have
// returned.
func For(n int, f func(i int), cfg Config) {
	if cfg.Sequential(n) {
		for i := 0; i < n; i++ {
			f(i)
		}
		return
	}

	chunk := max(cfg.MinChunkSize, 1)
	workers := min(cfg.NumWorkers, (n+chunk-1)/chunk)
	var next atomic.Int64
	var wg sync.WaitGroup
	wg.Add(workers)
	for range workers {
		go func() {
			defer wg.Done()
			for {
				start := int(next.Add(int64(chunk))) - chunk
				if start >= n {
					return
				}
				for i := start; i < min(start+chunk, n); i++ {
					f(i)
				}
			}
		}()
	}
	wg.Wait()
}
