// Package navigation holds the current slot index, frame and preview group
// and works out how each user step moves them. It never talks to the
// scheduler itself: every method returns a Change describing what moved so
// the caller can decide whether the display needs refreshing.
package navigation

import (
	"fmt"
	"slices"
	"sort"
	"sync"

	"clip-quickview/internal/sources"
)

const twelve = 12

// Slots is the read side of the source table navigation needs.
type Slots interface {
	ValidAt(index, frame int) bool
	NumFrames(index int) (int, bool)
	Name(index int) string
}

type State struct {
	Index        int    `json:"index"`
	Frame        int    `json:"frame"`
	Name         string `json:"name"`
	PreviewGroup []int  `json:"preview_group"`
}

// Change is the effect of one navigation step.
type Change struct {
	State               State
	IndexChanged        bool
	FrameChanged        bool
	NameChanged         bool
	PreviewGroupChanged bool
}

// NeedsRefresh reports whether the displayed image has to be requested again.
func (c Change) NeedsRefresh() bool {
	return c.IndexChanged || c.FrameChanged
}

// Changed reports whether anything observable moved.
func (c Change) Changed() bool {
	return c.IndexChanged || c.FrameChanged || c.NameChanged || c.PreviewGroupChanged
}

type Navigator struct {
	mu    sync.Mutex
	slots Slots
	index int
	frame int
	name  string
	group []int
}

func New(slots Slots) *Navigator {
	return &Navigator{slots: slots}
}

func (n *Navigator) State() State {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.state()
}

func (n *Navigator) state() State {
	return State{
		Index:        n.index,
		Frame:        n.frame,
		Name:         n.name,
		PreviewGroup: slices.Clone(n.group),
	}
}

// move applies a new position and derives the name. Caller holds mu.
func (n *Navigator) move(index, frame int) Change {
	c := Change{
		IndexChanged: index != n.index,
		FrameChanged: frame != n.frame,
	}
	n.index, n.frame = index, frame
	c.NameChanged = n.updateName()
	c.State = n.state()
	return c
}

func (n *Navigator) updateName() bool {
	name := ""
	if n.slots.ValidAt(n.index, n.frame) {
		name = n.slots.Name(n.index)
	}
	changed := name != n.name
	n.name = name
	return changed
}

// SetIndex jumps straight to a slot, occupied or not.
func (n *Navigator) SetIndex(index int) (Change, error) {
	if err := sources.ValidateIndex(index); err != nil {
		return Change{}, err
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	return n.move(index, n.frame), nil
}

// SetFrame jumps straight to a frame. Any value is accepted; frames outside
// the current source show the placeholder.
func (n *Navigator) SetFrame(frame int) Change {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.move(n.index, frame)
}

// Refresh re-derives the name and reports the current position as changed,
// for use after the slot under it was registered.
func (n *Navigator) Refresh() Change {
	n.mu.Lock()
	defer n.mu.Unlock()

	c := n.move(n.index, n.frame)
	c.IndexChanged = true
	return c
}

// Apply performs one navigation action.
func (n *Navigator) Apply(action Action) (Change, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	switch action {
	case PrevIndex:
		return n.scanIndex(linear(n.index, false)), nil
	case NextIndex:
		return n.scanIndex(linear(n.index, true)), nil
	case CycleIndex:
		return n.scanIndex(sources.Ring(n.index, true)), nil
	case CycleIndexBackwards:
		return n.scanIndex(sources.Ring(n.index, false)), nil
	case PrevFrame:
		return n.step(-1), nil
	case NextFrame:
		return n.step(1), nil
	case PrevTwelveFrames:
		return n.step(-twelve), nil
	case NextTwelveFrames:
		return n.step(twelve), nil
	case PrevPreviewGroupFrame:
		return n.prevGroupFrame(), nil
	case NextPreviewGroupFrame:
		return n.nextGroupFrame(), nil
	case ToggleFrameInPreviewGroup:
		return n.toggle(), nil
	default:
		return Change{}, fmt.Errorf("%w: %s", ErrUnknownAction, action)
	}
}

// linear lists indices from index toward the end of the table without
// wrapping.
func linear(index int, forward bool) []int {
	var out []int
	if forward {
		for i := index + 1; i < sources.SlotCount; i++ {
			out = append(out, i)
		}
		return out
	}
	for i := index - 1; i >= 0; i-- {
		out = append(out, i)
	}
	return out
}

// scanIndex moves to the first candidate slot that has the current frame.
func (n *Navigator) scanIndex(candidates []int) Change {
	for _, i := range candidates {
		if n.slots.ValidAt(i, n.frame) {
			return n.move(i, n.frame)
		}
	}
	return n.move(n.index, n.frame)
}

// step moves the frame by delta. Inside a source the result is clamped to
// its frames; outside one the frame runs freely.
func (n *Navigator) step(delta int) Change {
	if !n.slots.ValidAt(n.index, n.frame) {
		return n.move(n.index, n.frame+delta)
	}

	total, _ := n.slots.NumFrames(n.index)
	frame := n.frame + delta
	frame = max(frame, 0)
	frame = min(frame, total-1)
	return n.move(n.index, frame)
}

func (n *Navigator) prevGroupFrame() Change {
	if len(n.group) == 0 {
		return n.step(-1)
	}
	if n.frame <= n.group[0] {
		return n.move(n.index, n.frame)
	}
	i := sort.SearchInts(n.group, n.frame)
	return n.move(n.index, n.group[i-1])
}

func (n *Navigator) nextGroupFrame() Change {
	if len(n.group) == 0 {
		return n.step(1)
	}
	if n.frame >= n.group[len(n.group)-1] {
		return n.move(n.index, n.frame)
	}
	i := sort.SearchInts(n.group, n.frame+1)
	return n.move(n.index, n.group[i])
}

func (n *Navigator) toggle() Change {
	i, found := slices.BinarySearch(n.group, n.frame)
	if found {
		n.group = slices.Delete(n.group, i, i+1)
	} else {
		n.group = slices.Insert(n.group, i, n.frame)
	}
	c := n.move(n.index, n.frame)
	c.PreviewGroupChanged = true
	return c
}

// FrameInPreviewGroup reports whether the current frame is marked.
func (n *Navigator) FrameInPreviewGroup() bool {
	n.mu.Lock()
	defer n.mu.Unlock()

	_, found := slices.BinarySearch(n.group, n.frame)
	return found
}

// SetPreviewGroup replaces the marked frames. Duplicates are dropped and
// negative frames rejected.
func (n *Navigator) SetPreviewGroup(frames []int) (Change, error) {
	group := slices.Clone(frames)
	for _, f := range group {
		if f < 0 {
			return Change{}, fmt.Errorf("%w: %d", sources.ErrNegativeFrame, f)
		}
	}
	slices.Sort(group)
	group = slices.Compact(group)

	n.mu.Lock()
	defer n.mu.Unlock()

	c := Change{PreviewGroupChanged: !slices.Equal(group, n.group)}
	n.group = group
	c.State = n.state()
	return c, nil
}

func (n *Navigator) ClearPreviewGroup() Change {
	n.mu.Lock()
	defer n.mu.Unlock()

	c := Change{PreviewGroupChanged: len(n.group) > 0}
	n.group = nil
	c.State = n.state()
	return c
}

// PreviewGroup returns the marked frames in ascending order.
func (n *Navigator) PreviewGroup() []int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return slices.Clone(n.group)
}
