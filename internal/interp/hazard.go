package interp

import (
	"fmt"
	"sync"
)

// HazardWarning reports a best-effort detection of two work items touching
// the same buffer element without synchronization. Non-fatal: the dispatch
// result is whatever the racing writes left behind, which is why it is worth
// reporting.
type HazardWarning struct {
	Loc    string
	Offset int64
	First  [3]int
	Second [3]int
}

// String renders the warning for logs.
func (w HazardWarning) String() string {
	return fmt.Sprintf("hazard at %s offset %d: items (%d,%d,%d) and (%d,%d,%d) write the same element",
		w.Loc, w.Offset,
		w.First[0], w.First[1], w.First[2],
		w.Second[0], w.Second[1], w.Second[2])
}

type hazardKey struct {
	buf    *Buffer
	offset int64
}

// hazardJournal samples unsynchronized writes per dispatch. Detection is
// best-effort on purpose: the journal is bounded, only write/write conflicts
// are tracked, and atomic opcodes bypass it entirely. Full detection is not
// possible on this execution model.
type hazardJournal struct {
	mu       sync.Mutex
	limit    int
	writes   map[hazardKey][3]int
	warnings []HazardWarning
}

func newHazardJournal(limit int) *hazardJournal {
	return &hazardJournal{limit: limit, writes: make(map[hazardKey][3]int, 256)}
}

// noteWrite records one write and emits a warning when a different item
// already wrote the same element.
func (j *hazardJournal) noteWrite(buf *Buffer, offset int64, coord [3]int, loc string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	key := hazardKey{buf: buf, offset: offset}
	if prev, ok := j.writes[key]; ok {
		if prev != coord {
			j.warnings = append(j.warnings, HazardWarning{
				Loc: loc, Offset: offset, First: prev, Second: coord,
			})
		}
		return
	}
	if len(j.writes) >= j.limit {
		return // journal full; stay silent rather than slow the dispatch
	}
	j.writes[key] = coord
}

func (j *hazardJournal) report() []HazardWarning {
	j.mu.Lock()
	defer j.mu.Unlock()
	out := make([]HazardWarning, len(j.warnings))
	copy(out, j.warnings)
	return out
}
