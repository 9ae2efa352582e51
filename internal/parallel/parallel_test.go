package parallel

import (
	"sync/atomic"
	"testing"
)

func TestFor(t *testing.T) {
	cfg := DefaultConfig()

	var counter int64
	n := 1000

	For(n, func(_ int) {
		atomic.AddInt64(&counter, 1)
	}, cfg)

	if counter != int64(n) {
		t.Errorf("Expected %d, got %d", n, counter)
	}
}

func TestFor_Sequential(t *testing.T) {
	cfg := Config{Enabled: false}

	var counter int64
	For(100, func(_ int) {
		atomic.AddInt64(&counter, 1)
	}, cfg)

	if counter != 100 {
		t.Errorf("Expected 100, got %d", counter)
	}
}

func TestFor_EachIndexOnce(t *testing.T) {
	cfg := DefaultConfig()
	n := 500
	seen := make([]int32, n)

	For(n, func(i int) {
		atomic.AddInt32(&seen[i], 1)
	}, cfg)

	for i, c := range seen {
		if c != 1 {
			t.Errorf("index %d visited %d times", i, c)
		}
	}
}

func TestForUntil_StopsIssuing(t *testing.T) {
	// Sequential path so the stop point is deterministic.
	cfg := Config{Enabled: false}

	var ran int64
	var stopped atomic.Bool
	ForUntil(1000, func(i int) {
		atomic.AddInt64(&ran, 1)
		if i == 9 {
			stopped.Store(true)
		}
	}, stopped.Load, cfg)

	if ran != 10 {
		t.Errorf("Expected 10 items before stop, got %d", ran)
	}
}

func TestForUntil_ParallelStopsEventually(t *testing.T) {
	cfg := Config{Enabled: true, NumWorkers: 4, MinChunkSize: 8}

	var ran int64
	var stopped atomic.Bool
	ForUntil(100000, func(_ int) {
		if atomic.AddInt64(&ran, 1) > 50 {
			stopped.Store(true)
		}
	}, stopped.Load, cfg)

	if ran == 100000 {
		t.Errorf("stop flag did not cut the dispatch short")
	}
}

func TestFor3D_CoversDomain(t *testing.T) {
	cfg := DefaultConfig()
	nx, ny, nz := 7, 5, 3
	seen := make([]int32, nx*ny*nz)

	For3D(nx, ny, nz, func(x, y, z int) {
		atomic.AddInt32(&seen[x+nx*(y+ny*z)], 1)
	}, cfg)

	for i, c := range seen {
		if c != 1 {
			t.Errorf("coordinate %d visited %d times", i, c)
		}
	}
}
