package app

import (
	"image"
	"sync"

	"clip-quickview/internal/display"
	"clip-quickview/internal/logger"
	"clip-quickview/internal/navigation"
	"clip-quickview/internal/scheduler"
	"clip-quickview/internal/sources"
)

const component = "Viewer"

// Window is whatever shows the viewer on screen.
type Window interface {
	Show()
	Hide()
}

// StateListener is told about every navigation change. It runs with the
// viewer's navigation lock held and must not call back into the viewer.
type StateListener func(navigation.State)

// Viewer is the registration and navigation surface. Every navigation step
// that moves the index or frame requests a new display from the scheduler.
type Viewer struct {
	// navMu orders navigation changes with the display requests they cause.
	navMu sync.Mutex
	sched *scheduler.Scheduler
	nav   *navigation.Navigator

	windowMu sync.Mutex
	window   Window

	listenersMu sync.RWMutex
	listeners   []StateListener

	logger logger.Logger
}

func NewViewer(sched *scheduler.Scheduler, log logger.Logger) *Viewer {
	if log == nil {
		log = logger.NewNop()
	}
	return &Viewer{
		sched:  sched,
		nav:    navigation.New(sched.Table()),
		logger: log,
	}
}

// SetWindow attaches the window Show and Hide act on.
func (v *Viewer) SetWindow(w Window) {
	v.windowMu.Lock()
	defer v.windowMu.Unlock()
	v.window = w
}

func (v *Viewer) OnStateChange(fn StateListener) {
	v.listenersMu.Lock()
	defer v.listenersMu.Unlock()
	v.listeners = append(v.listeners, fn)
}

// RegisterSource binds src to a slot and refreshes the display for the
// current position, since the slot under it may just have become valid.
func (v *Viewer) RegisterSource(index int, src *sources.Source, name string) (navigation.State, error) {
	v.navMu.Lock()
	defer v.navMu.Unlock()

	if err := v.sched.Register(index, src, name); err != nil {
		return v.nav.State(), err
	}
	return v.apply(v.nav.Refresh())
}

// RemoveSource empties a slot. The display is refreshed only when the
// removed slot is the current one.
func (v *Viewer) RemoveSource(index int) (navigation.State, error) {
	v.navMu.Lock()
	defer v.navMu.Unlock()

	if err := v.sched.Remove(index); err != nil {
		return v.nav.State(), err
	}
	if v.nav.State().Index != index {
		return v.nav.State(), nil
	}
	return v.apply(v.nav.Refresh())
}

func (v *Viewer) SetFrame(frame int) (navigation.State, error) {
	v.navMu.Lock()
	defer v.navMu.Unlock()
	return v.apply(v.nav.SetFrame(frame))
}

func (v *Viewer) SetIndex(index int) (navigation.State, error) {
	v.navMu.Lock()
	defer v.navMu.Unlock()

	c, err := v.nav.SetIndex(index)
	if err != nil {
		return v.nav.State(), err
	}
	return v.apply(c)
}

// Navigate performs one user navigation step.
func (v *Viewer) Navigate(action navigation.Action) (navigation.State, error) {
	v.navMu.Lock()
	defer v.navMu.Unlock()

	c, err := v.nav.Apply(action)
	if err != nil {
		return v.nav.State(), err
	}
	return v.apply(c)
}

func (v *Viewer) SetPreviewGroup(frames []int) (navigation.State, error) {
	v.navMu.Lock()
	defer v.navMu.Unlock()

	c, err := v.nav.SetPreviewGroup(frames)
	if err != nil {
		return v.nav.State(), err
	}
	return v.apply(c)
}

func (v *Viewer) ClearPreviewGroup() navigation.State {
	v.navMu.Lock()
	defer v.navMu.Unlock()

	state, _ := v.apply(v.nav.ClearPreviewGroup())
	return state
}

func (v *Viewer) PreviewGroup() []int {
	return v.nav.PreviewGroup()
}

func (v *Viewer) FrameInPreviewGroup() bool {
	return v.nav.FrameInPreviewGroup()
}

func (v *Viewer) State() navigation.State {
	return v.nav.State()
}

// apply turns a navigation change into its follow-up effects. Caller holds
// navMu.
func (v *Viewer) apply(c navigation.Change) (navigation.State, error) {
	if c.NeedsRefresh() {
		if err := v.sched.RequestDisplay(c.State.Index, c.State.Frame); err != nil {
			v.logger.Error(component, err, map[string]interface{}{
				"index": c.State.Index,
				"frame": c.State.Frame,
			})
			return c.State, err
		}
	}
	if c.Changed() {
		v.notify(c.State)
	}
	return c.State, nil
}

func (v *Viewer) notify(state navigation.State) {
	v.listenersMu.RLock()
	listeners := make([]StateListener, len(v.listeners))
	copy(listeners, v.listeners)
	v.listenersMu.RUnlock()

	for _, fn := range listeners {
		fn(state)
	}
}

func (v *Viewer) Show() {
	v.windowMu.Lock()
	defer v.windowMu.Unlock()

	if v.window == nil {
		v.logger.Debug(component, "show requested without a window", nil)
		return
	}
	v.window.Show()
}

func (v *Viewer) Hide() {
	v.windowMu.Lock()
	defer v.windowMu.Unlock()

	if v.window == nil {
		v.logger.Debug(component, "hide requested without a window", nil)
		return
	}
	v.window.Hide()
}

// LatestImage is the image currently on display, nil before the first one.
func (v *Viewer) LatestImage() image.Image {
	return v.sched.Sink().Latest()
}

// OnDisplay subscribes fn to every image the scheduler publishes. fn runs
// while the scheduler holds its publish lock and must not call back into
// the viewer.
func (v *Viewer) OnDisplay(fn display.Listener) (unsubscribe func()) {
	return v.sched.Sink().Subscribe(fn)
}

func (v *Viewer) Displayed() display.Frame {
	return v.sched.Sink().Snapshot()
}

func (v *Viewer) Slots() []sources.Slot {
	return v.sched.Table().Slots()
}

func (v *Viewer) Stats() scheduler.Stats {
	return v.sched.Stats()
}

// Shutdown stops the scheduler and closes every registered source.
func (v *Viewer) Shutdown() {
	v.sched.Shutdown()
	v.logger.Info(component, "viewer stopped", nil)
}
