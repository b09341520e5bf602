// Package sources holds the fixed table of registration slots a viewer can
// display from.
package sources

import (
	"errors"
	"fmt"
	"sync"
)

// SlotCount is the number of registration slots.
const SlotCount = 10

var (
	ErrInvalidSlotIndex = errors.New("sources: slot index out of range")
	ErrNilSource        = errors.New("sources: nil source")
	ErrNegativeFrame    = errors.New("sources: negative frame number")
)

// ValidateIndex rejects indices outside [0, SlotCount).
func ValidateIndex(index int) error {
	if index < 0 || index >= SlotCount {
		return fmt.Errorf("%w: %d", ErrInvalidSlotIndex, index)
	}
	return nil
}

// Slot is a snapshot of one registration point.
type Slot struct {
	Index  int
	Source *Source
	Name   string
}

// Occupied reports whether a source is bound to the slot.
func (s Slot) Occupied() bool {
	return s.Source != nil
}

// Table owns the slots. Writers are expected to be serialised by the
// scheduler's structural lock; the table's own lock only keeps individual
// reads and writes consistent.
type Table struct {
	mu    sync.RWMutex
	slots [SlotCount]Slot
}

func NewTable() *Table {
	t := &Table{}
	for i := range t.slots {
		t.slots[i].Index = i
	}
	return t
}

// Set replaces the slot's source and name and returns the previous source.
func (t *Table) Set(index int, src *Source, name string) (*Source, error) {
	if err := ValidateIndex(index); err != nil {
		return nil, err
	}
	if src == nil {
		return nil, ErrNilSource
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	previous := t.slots[index].Source
	t.slots[index] = Slot{Index: index, Source: src, Name: name}
	return previous, nil
}

// Clear empties the slot and returns the source that was bound to it.
func (t *Table) Clear(index int) (*Source, error) {
	if err := ValidateIndex(index); err != nil {
		return nil, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	previous := t.slots[index].Source
	t.slots[index] = Slot{Index: index}
	return previous, nil
}

// Get returns the source bound to index, if any. Out-of-range indices are
// reported as empty.
func (t *Table) Get(index int) (*Source, bool) {
	if ValidateIndex(index) != nil {
		return nil, false
	}

	t.mu.RLock()
	defer t.mu.RUnlock()

	src := t.slots[index].Source
	return src, src != nil
}

// Slot returns a snapshot of the slot at index.
func (t *Table) Slot(index int) Slot {
	if ValidateIndex(index) != nil {
		return Slot{Index: index}
	}

	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.slots[index]
}

// Slots returns a snapshot of every slot.
func (t *Table) Slots() []Slot {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]Slot, SlotCount)
	copy(out, t.slots[:])
	return out
}

// Is reports whether src is still the source bound to index.
func (t *Table) Is(index int, src *Source) bool {
	current, ok := t.Get(index)
	return ok && current == src
}

// Occupied reports whether index has a source bound.
func (t *Table) Occupied(index int) bool {
	_, ok := t.Get(index)
	return ok
}

// ValidAt reports whether index has a source bound and frame lies inside it.
func (t *Table) ValidAt(index, frame int) bool {
	src, ok := t.Get(index)
	return ok && src.Contains(frame)
}

// NumFrames returns the frame count of the source at index.
func (t *Table) NumFrames(index int) (int, bool) {
	src, ok := t.Get(index)
	if !ok {
		return 0, false
	}
	return src.NumFrames(), true
}

// Name returns the registered display name for index.
func (t *Table) Name(index int) string {
	return t.Slot(index).Name
}

// Ring returns every slot index except from, walking the ring of slots away
// from it. Forward order is from+1 .. SlotCount-1, 0 .. from-1; backward order
// is from-1 .. 0, SlotCount-1 .. from+1.
func Ring(from int, forward bool) []int {
	out := make([]int, 0, SlotCount-1)
	for step := 1; step < SlotCount; step++ {
		var i int
		if forward {
			i = (from + step) % SlotCount
		} else {
			i = ((from-step)%SlotCount + SlotCount) % SlotCount
		}
		out = append(out, i)
	}
	return out
}

// NextOccupied returns the first occupied slot on the ring away from index.
func (t *Table) NextOccupied(index int, forward bool) (int, bool) {
	for _, i := range Ring(index, forward) {
		if t.Occupied(i) {
			return i, true
		}
	}
	return 0, false
}
