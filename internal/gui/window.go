// Package gui is the fyne front end: one image canvas fed by the display
// sink, a status bar fed by navigation changes and a keyboard map that
// drives the viewer.
package gui

import (
	"fmt"
	"image"
	"sync"

	"fyne.io/fyne/v2"
	fyneapp "fyne.io/fyne/v2/app"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/driver/desktop"

	"clip-quickview/internal/app"
	"clip-quickview/internal/display"
	"clip-quickview/internal/gui/components"
	"clip-quickview/internal/gui/widgets"
	"clip-quickview/internal/logger"
	"clip-quickview/internal/navigation"
)

const (
	AppName = "Clip Quickview"
	AppID   = "io.github.clip-quickview"

	component = "GUI"
)

type Options struct {
	Width, Height int
	Bindings      []Binding
	// OnClose runs on its own goroutine when the user closes the window.
	OnClose func()
	Logger  logger.Logger
}

// Window owns the fyne application. All widget access happens inside
// fyne.Do callbacks.
type Window struct {
	app    fyne.App
	window fyne.Window
	viewer *app.Viewer
	keys   *Keymap
	logger logger.Logger

	display *widgets.ImageDisplay
	status  *components.StatusBar

	unsubscribe func()
	stopOnce    sync.Once
}

func New(viewer *app.Viewer, placeholder image.Image, opts Options) *Window {
	if opts.Logger == nil {
		opts.Logger = logger.NewNop()
	}
	if opts.Bindings == nil {
		opts.Bindings = DefaultBindings
	}

	fyneapp.SetMetadata(fyne.AppMetadata{
		ID:   AppID,
		Name: AppName,
	})
	fyneApp := fyneapp.NewWithID(AppID)

	w := &Window{
		app:     fyneApp,
		window:  fyneApp.NewWindow(AppName),
		viewer:  viewer,
		keys:    NewKeymap(opts.Bindings),
		logger:  opts.Logger,
		display: widgets.NewImageDisplay(placeholder),
		status:  components.NewStatusBar(),
	}

	w.window.SetContent(container.NewBorder(
		nil,
		w.status.GetContainer(),
		nil, nil,
		w.display.GetContainer(),
	))
	if opts.Width > 0 && opts.Height > 0 {
		w.window.Resize(fyne.NewSize(float32(opts.Width), float32(opts.Height)))
	}
	w.window.CenterOnScreen()

	w.bindKeys()
	w.window.SetCloseIntercept(func() {
		w.logger.Info(component, "window close requested", nil)
		if opts.OnClose != nil {
			go opts.OnClose()
			return
		}
		w.window.Close()
	})

	w.unsubscribe = viewer.OnDisplay(w.onDisplay)
	viewer.OnStateChange(w.onStateChange)
	viewer.SetWindow(w)

	state := viewer.State()
	w.status.Update(state)
	w.window.SetTitle(title(state))
	if latest := viewer.LatestImage(); latest != nil {
		w.display.SetImage(latest)
	}

	return w
}

func (w *Window) bindKeys() {
	w.window.Canvas().SetOnTypedKey(func(ev *fyne.KeyEvent) {
		if action, ok := w.keys.Lookup(ev.Name, 0); ok {
			w.navigate(action)
		}
	})

	for _, b := range w.keys.Shortcuts() {
		action := b.Action
		w.window.Canvas().AddShortcut(&desktop.CustomShortcut{
			KeyName:  b.Key,
			Modifier: b.Modifier,
		}, func(fyne.Shortcut) {
			w.navigate(action)
		})
	}
}

func (w *Window) navigate(action navigation.Action) {
	if _, err := w.viewer.Navigate(action); err != nil {
		w.logger.Warning(component, "navigation failed", map[string]interface{}{
			"action": action.String(),
			"error":  err.Error(),
		})
	}
}

func (w *Window) onDisplay(f display.Frame) {
	fyne.Do(func() {
		w.display.SetImage(f.Image)
	})
}

func (w *Window) onStateChange(state navigation.State) {
	fyne.Do(func() {
		w.status.Update(state)
		w.window.SetTitle(title(state))
	})
}

func title(state navigation.State) string {
	return fmt.Sprintf("%s - %s", AppName, components.FormatSource(state))
}

// Show is safe from any goroutine.
func (w *Window) Show() {
	fyne.Do(w.window.Show)
}

// Hide is safe from any goroutine.
func (w *Window) Hide() {
	fyne.Do(w.window.Hide)
}

// Run shows the window and blocks in the fyne event loop until Shutdown.
func (w *Window) Run() {
	w.window.Show()
	w.app.Run()
}

// Shutdown detaches from the viewer and quits the event loop.
func (w *Window) Shutdown() {
	w.stopOnce.Do(func() {
		w.unsubscribe()
		w.viewer.SetWindow(nil)
		fyne.Do(w.app.Quit)
	})
}
