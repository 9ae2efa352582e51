package interp

import (
	"sync"

	"github.com/lumen-compute/lumen/internal/ir"
	"github.com/lumen-compute/lumen/internal/value"
)

// Resource is a host-side backing store bindable to a capture slot: a Buffer
// or a BindlessTable.
type Resource interface {
	resource()
}

// Buffer is the storage behind one buffer capture: a typed element array.
// All element access serializes on the buffer's lock, so racing work items
// never tear a value. Plain writes to the same element from different items
// are still a logical hazard the dispatch reports as a warning; their final
// ordering is unspecified.
type Buffer struct {
	elem ir.Type
	data []value.Value
	mu   sync.Mutex
}

// NewBuffer allocates a zero-filled buffer of n elements.
func NewBuffer(elem ir.Type, n int) *Buffer {
	data := make([]value.Value, n)
	for i := range data {
		data[i] = value.Zero(elem)
	}
	return &Buffer{elem: elem, data: data}
}

// NewBufferFrom allocates a buffer initialized with the given elements.
func NewBufferFrom(elem ir.Type, elems []value.Value) *Buffer {
	data := make([]value.Value, len(elems))
	copy(data, elems)
	return &Buffer{elem: elem, data: data}
}

func (b *Buffer) resource() {}

// Elem returns the buffer's element type.
func (b *Buffer) Elem() ir.Type { return b.elem }

// Len returns the element count.
func (b *Buffer) Len() int { return len(b.data) }

// At reads element i. The caller is responsible for bounds.
func (b *Buffer) At(i int) value.Value {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.data[i]
}

// Set writes element i. The caller is responsible for bounds.
func (b *Buffer) Set(i int, v value.Value) {
	b.mu.Lock()
	b.data[i] = v
	b.mu.Unlock()
}

// AtomicAdd adds delta to element i under the buffer lock and returns the
// previous value.
func (b *Buffer) AtomicAdd(i int, delta value.Value) value.Value {
	b.mu.Lock()
	defer b.mu.Unlock()
	old := b.data[i]
	b.data[i] = value.Add(old, delta)
	return old
}

// AtomicCAS installs desired at element i if the current value equals
// expected, under the buffer lock, and returns the previous value.
func (b *Buffer) AtomicCAS(i int, expected, desired value.Value) value.Value {
	b.mu.Lock()
	defer b.mu.Unlock()
	old := b.data[i]
	if old.Equal(expected) {
		b.data[i] = desired
	}
	return old
}

// BindlessTable is the storage behind a bindless capture: a slot array of
// typed buffers resolved by runtime index. Each dereference checks both the
// slot index and the slot's element type against the instruction.
type BindlessTable struct {
	slots []*Buffer
}

// NewBindlessTable builds a table over the given slots. Nil slots are legal
// and trap on access.
func NewBindlessTable(slots ...*Buffer) *BindlessTable {
	return &BindlessTable{slots: slots}
}

func (t *BindlessTable) resource() {}

// NumSlots returns the slot count.
func (t *BindlessTable) NumSlots() int { return len(t.slots) }

// Slot returns the buffer in slot i, or nil.
func (t *BindlessTable) Slot(i int) *Buffer {
	if i < 0 || i >= len(t.slots) {
		return nil
	}
	return t.slots[i]
}
