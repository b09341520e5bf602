package components

import (
	"fmt"
	"slices"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/widget"

	"clip-quickview/internal/navigation"
)

// StatusBar shows the slot, frame and preview-group mark under the image.
type StatusBar struct {
	container   *fyne.Container
	sourceLabel *widget.Label
	frameLabel  *widget.Label
	groupLabel  *widget.Label
}

func NewStatusBar() *StatusBar {
	sourceLabel := widget.NewLabel(FormatSource(navigation.State{}))
	frameLabel := widget.NewLabel(FormatFrame(navigation.State{}))
	groupLabel := widget.NewLabel("")

	frameContainer := container.NewHBox(
		frameLabel,
		widget.NewSeparator(),
		groupLabel,
	)

	mainContainer := container.NewBorder(
		nil, nil,
		sourceLabel,
		frameContainer,
	)

	return &StatusBar{
		container:   mainContainer,
		sourceLabel: sourceLabel,
		frameLabel:  frameLabel,
		groupLabel:  groupLabel,
	}
}

func (sb *StatusBar) GetContainer() *fyne.Container {
	return sb.container
}

// Update must run on the fyne goroutine.
func (sb *StatusBar) Update(state navigation.State) {
	sb.sourceLabel.SetText(FormatSource(state))
	sb.frameLabel.SetText(FormatFrame(state))
	sb.groupLabel.SetText(FormatPreviewGroup(state))
}

func FormatSource(state navigation.State) string {
	if state.Name == "" {
		return fmt.Sprintf("Slot %d", state.Index)
	}
	return fmt.Sprintf("Slot %d: %s", state.Index, state.Name)
}

func FormatFrame(state navigation.State) string {
	return fmt.Sprintf("Frame %d", state.Frame)
}

// FormatPreviewGroup marks frames that belong to the preview group and
// shows the group size. Empty when there is no group.
func FormatPreviewGroup(state navigation.State) string {
	if len(state.PreviewGroup) == 0 {
		return ""
	}
	if _, found := slices.BinarySearch(state.PreviewGroup, state.Frame); found {
		return fmt.Sprintf("In preview group (%d)", len(state.PreviewGroup))
	}
	return fmt.Sprintf("Preview group (%d)", len(state.PreviewGroup))
}
