package gui

import (
	"fyne.io/fyne/v2"

	"clip-quickview/internal/navigation"
)

// Binding ties a key, optionally with modifiers, to a navigation action.
type Binding struct {
	Key      fyne.KeyName
	Modifier fyne.KeyModifier
	Action   navigation.Action
}

// DefaultBindings is the viewer keyboard layout. Left and right step
// frames, up and down step slots, shift widens the frame step to twelve.
var DefaultBindings = []Binding{
	{Key: fyne.KeyLeft, Action: navigation.PrevFrame},
	{Key: fyne.KeyRight, Action: navigation.NextFrame},
	{Key: fyne.KeyLeft, Modifier: fyne.KeyModifierShift, Action: navigation.PrevTwelveFrames},
	{Key: fyne.KeyRight, Modifier: fyne.KeyModifierShift, Action: navigation.NextTwelveFrames},
	{Key: fyne.KeyUp, Action: navigation.PrevIndex},
	{Key: fyne.KeyDown, Action: navigation.NextIndex},
	{Key: fyne.KeyTab, Action: navigation.CycleIndex},
	{Key: fyne.KeyTab, Modifier: fyne.KeyModifierShift, Action: navigation.CycleIndexBackwards},
	{Key: fyne.KeyPageUp, Action: navigation.PrevPreviewGroupFrame},
	{Key: fyne.KeyPageDown, Action: navigation.NextPreviewGroupFrame},
	{Key: fyne.KeyLeftBracket, Action: navigation.PrevPreviewGroupFrame},
	{Key: fyne.KeyRightBracket, Action: navigation.NextPreviewGroupFrame},
	{Key: fyne.KeySpace, Action: navigation.ToggleFrameInPreviewGroup},
	{Key: fyne.KeyReturn, Action: navigation.ToggleFrameInPreviewGroup},
}

// Keymap resolves key presses against a binding list.
type Keymap struct {
	bindings map[keyChord]navigation.Action
}

type keyChord struct {
	key      fyne.KeyName
	modifier fyne.KeyModifier
}

// NewKeymap builds a keymap. Later bindings for the same chord win.
func NewKeymap(bindings []Binding) *Keymap {
	m := &Keymap{bindings: make(map[keyChord]navigation.Action, len(bindings))}
	for _, b := range bindings {
		m.bindings[keyChord{key: b.Key, modifier: b.Modifier}] = b.Action
	}
	return m
}

func (m *Keymap) Lookup(key fyne.KeyName, modifier fyne.KeyModifier) (navigation.Action, bool) {
	action, ok := m.bindings[keyChord{key: key, modifier: modifier}]
	return action, ok
}

// Shortcuts lists the bindings that carry modifiers. Those arrive through
// the canvas shortcut handler instead of the typed-key handler.
func (m *Keymap) Shortcuts() []Binding {
	var out []Binding
	for chord, action := range m.bindings {
		if chord.modifier != 0 {
			out = append(out, Binding{Key: chord.key, Modifier: chord.modifier, Action: action})
		}
	}
	return out
}
