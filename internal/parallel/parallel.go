// Package parallel provides the worker pools that back data-parallel
// dispatch.
package parallel

import (
	"runtime"

	"golang.org/x/sync/errgroup"
)

// Config controls parallel execution behavior.
type Config struct {
	Enabled      bool // Whether parallel execution is enabled.
	NumWorkers   int  // Number of worker goroutines to use.
	MinChunkSize int  // Minimum items per goroutine to avoid overhead.
}

// DefaultConfig returns sensible defaults based on CPU count.
func DefaultConfig() Config {
	n := runtime.NumCPU()
	return Config{
		Enabled:      n > 1,
		NumWorkers:   n,
		MinChunkSize: 64,
	}
}

// For executes f(i) for i in [0, n) with optional parallelism. Falls back to
// sequential execution if parallelism is disabled or n is too small.
func For(n int, f func(i int), cfg Config) {
	ForUntil(n, f, nil, cfg)
}

// ForUntil executes f(i) for i in [0, n) but stops starting new items once
// stop returns true. Items already running finish normally; there is no
// cancellation of in-flight work. stop may be nil.
func ForUntil(n int, f func(i int), stop func() bool, cfg Config) {
	halted := func() bool { return stop != nil && stop() }

	if !cfg.Enabled || n < cfg.MinChunkSize {
		for i := 0; i < n; i++ {
			if halted() {
				return
			}
			f(i)
		}
		return
	}

	chunkSize := max((n+cfg.NumWorkers-1)/cfg.NumWorkers, cfg.MinChunkSize)

	var g errgroup.Group
	g.SetLimit(cfg.NumWorkers)
	for start := 0; start < n; start += chunkSize {
		if halted() {
			break
		}
		s, e := start, min(start+chunkSize, n)
		g.Go(func() error {
			for i := s; i < e; i++ {
				if halted() {
					return nil
				}
				f(i)
			}
			return nil
		})
	}
	// Workers never return errors; Wait is only a join point.
	_ = g.Wait()
}

// For3D executes f once per coordinate of an nx*ny*nz domain, x fastest.
// Iteration order between items is unspecified.
func For3D(nx, ny, nz int, f func(x, y, z int), cfg Config) {
	For(nx*ny*nz, func(k int) {
		f(k%nx, (k/nx)%ny, k/(nx*ny))
	}, cfg)
}
