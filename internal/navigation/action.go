package navigation

import (
	"errors"
	"fmt"
)

var ErrUnknownAction = errors.New("navigation: unknown action")

// Action is a user navigation step.
type Action int

const (
	PrevIndex Action = iota
	NextIndex
	CycleIndex
	CycleIndexBackwards
	PrevFrame
	NextFrame
	PrevTwelveFrames
	NextTwelveFrames
	PrevPreviewGroupFrame
	NextPreviewGroupFrame
	ToggleFrameInPreviewGroup
)

var actionNames = map[Action]string{
	PrevIndex:                 "prev-index",
	NextIndex:                 "next-index",
	CycleIndex:                "cycle-index",
	CycleIndexBackwards:       "cycle-index-backwards",
	PrevFrame:                 "prev-frame",
	NextFrame:                 "next-frame",
	PrevTwelveFrames:          "prev-twelve-frames",
	NextTwelveFrames:          "next-twelve-frames",
	PrevPreviewGroupFrame:     "prev-preview-group-frame",
	NextPreviewGroupFrame:     "next-preview-group-frame",
	ToggleFrameInPreviewGroup: "toggle-frame-in-preview-group",
}

func (a Action) String() string {
	if name, ok := actionNames[a]; ok {
		return name
	}
	return fmt.Sprintf("action(%d)", int(a))
}

// ParseAction maps a kebab-case name back to its Action.
func ParseAction(name string) (Action, error) {
	for action, n := range actionNames {
		if n == name {
			return action, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownAction, name)
}

// Actions lists every action in declaration order.
func Actions() []Action {
	out := make([]Action, 0, len(actionNames))
	for a := PrevIndex; a <= ToggleFrameInPreviewGroup; a++ {
		out = append(out, a)
	}
	return out
}
