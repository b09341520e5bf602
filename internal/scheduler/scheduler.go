// Package scheduler turns display requests into decodes on a bounded pool
// and makes sure only results that are still wanted reach the display.
//
// A display request pushes a pending marker and then tries to start right
// away. When every worker is busy the scheduler alternates, keyed on the
// number of markers pushed before the request, between dropping all queued
// work and starting the request urgently (even) and queueing it urgently
// behind what is already there (odd). A finished decode is published only if
// it can claim a live marker for its (index, frame).
//
// Registration and removal hold the structural lock exclusively and drain
// the display pool before touching a slot, so no decode of a replaced source
// can write into the new source's cache.
package scheduler

import (
	"fmt"
	"image"
	"sync"
	"sync/atomic"

	"clip-quickview/internal/display"
	"clip-quickview/internal/framecache"
	"clip-quickview/internal/logger"
	"clip-quickview/internal/pending"
	"clip-quickview/internal/placeholder"
	"clip-quickview/internal/sources"
	"clip-quickview/internal/workpool"
)

const component = "Scheduler"

// Decoder produces display pixels for one frame of a source. It must be safe
// to call concurrently for distinct (source, frame) pairs.
type Decoder interface {
	Decode(src *sources.Source, frame int) (image.Image, error)
}

// DecoderFunc adapts a function to Decoder.
type DecoderFunc func(src *sources.Source, frame int) (image.Image, error)

func (f DecoderFunc) Decode(src *sources.Source, frame int) (image.Image, error) {
	return f(src, frame)
}

type Options struct {
	DisplayWorkers int
	Cache          framecache.Options
	Placeholder    image.Image
	OnDecodeError  func(*DecodeError)
	Logger         logger.Logger
}

func DefaultOptions() Options {
	return Options{
		DisplayWorkers: 2,
		Cache:          framecache.DefaultOptions(),
	}
}

// State is the lifecycle of one request as it moves through the pool.
type State int

const (
	Queued State = iota
	Running
	Satisfied
	Superseded
)

func (s State) String() string {
	switch s {
	case Queued:
		return "queued"
	case Running:
		return "running"
	case Satisfied:
		return "satisfied"
	case Superseded:
		return "superseded"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

type request struct {
	index      int
	frame      int
	generation uint64
	display    bool
}

type counters struct {
	requests       atomic.Uint64
	decodes        atomic.Uint64
	cacheHits      atomic.Uint64
	decodeFailures atomic.Uint64
	placeholders   atomic.Uint64
	preemptions    atomic.Uint64
	enqueues       atomic.Uint64
	dropped        atomic.Uint64
	satisfied      atomic.Uint64
	superseded     atomic.Uint64
	prefetches     atomic.Uint64
}

type Scheduler struct {
	table   *sources.Table
	cache   *framecache.Cache
	pending *pending.Log
	sink    *display.Sink
	decoder Decoder

	// structural guards the pool reference against slot registration and
	// removal. Submissions share it, registration owns it.
	structural sync.RWMutex
	pool       *workpool.Pool
	prefetch   *workpool.Pool

	placeholder   image.Image
	onDecodeError func(*DecodeError)
	logger        logger.Logger

	stats  counters
	closed atomic.Bool
}

func New(table *sources.Table, decoder Decoder, sink *display.Sink, opts Options) *Scheduler {
	if opts.Logger == nil {
		opts.Logger = logger.NewNop()
	}
	if opts.DisplayWorkers <= 0 {
		opts.DisplayWorkers = 2
	}
	if opts.Placeholder == nil {
		opts.Placeholder = placeholder.Default()
	}

	return &Scheduler{
		table:         table,
		cache:         framecache.New(opts.Cache),
		pending:       pending.New(),
		sink:          sink,
		decoder:       decoder,
		pool:          workpool.New("display", opts.DisplayWorkers, opts.Logger),
		prefetch:      workpool.New("prefetch", 1, opts.Logger),
		placeholder:   opts.Placeholder,
		onDecodeError: opts.OnDecodeError,
		logger:        opts.Logger,
	}
}

func (s *Scheduler) Table() *sources.Table { return s.table }
func (s *Scheduler) Sink() *display.Sink   { return s.sink }

// CachedFrames returns the frames cached for the slot, oldest first.
func (s *Scheduler) CachedFrames(index int) []int {
	return s.cache.Frames(index)
}

// Register binds src to the slot. In-flight decodes finish first, the
// slot's cache is emptied and the replaced source is closed.
func (s *Scheduler) Register(index int, src *sources.Source, name string) error {
	if err := sources.ValidateIndex(index); err != nil {
		return err
	}
	if src == nil {
		return sources.ErrNilSource
	}

	previous, err := s.mutateSlot(index, func() (*sources.Source, error) {
		return s.table.Set(index, src, name)
	})
	if err != nil {
		return err
	}

	s.logger.Info(component, "source registered", map[string]interface{}{
		"index":    index,
		"name":     name,
		"frames":   src.NumFrames(),
		"released": previous != nil,
	})
	s.release(index, previous)
	return nil
}

// Remove empties the slot the same way Register replaces it.
func (s *Scheduler) Remove(index int) error {
	if err := sources.ValidateIndex(index); err != nil {
		return err
	}

	previous, err := s.mutateSlot(index, func() (*sources.Source, error) {
		return s.table.Clear(index)
	})
	if err != nil {
		return err
	}

	s.logger.Info(component, "source removed", map[string]interface{}{
		"index":    index,
		"released": previous != nil,
	})
	s.release(index, previous)
	return nil
}

func (s *Scheduler) mutateSlot(index int, mutate func() (*sources.Source, error)) (*sources.Source, error) {
	s.structural.Lock()
	defer s.structural.Unlock()

	s.pool.Wait()
	previous, err := mutate()
	if err != nil {
		return nil, err
	}
	s.cache.Clear(index)
	if previous != nil && s.bound(previous) {
		// Re-registered in place or still shared with another slot.
		return nil, nil
	}
	return previous, nil
}

// bound reports whether any slot holds src. Caller holds structural.
func (s *Scheduler) bound(src *sources.Source) bool {
	for _, slot := range s.table.Slots() {
		if slot.Source == src {
			return true
		}
	}
	return false
}

func (s *Scheduler) release(index int, src *sources.Source) {
	if src == nil {
		return
	}
	if err := src.Close(); err != nil {
		s.logger.Warning(component, "closing replaced source failed", map[string]interface{}{
			"index": index,
			"error": err.Error(),
		})
	}
}

// RequestDisplay asks for frame of slot index to be shown. It never blocks on
// decoding. Frames outside the source, and empty slots, show the placeholder.
func (s *Scheduler) RequestDisplay(index, frame int) error {
	if err := sources.ValidateIndex(index); err != nil {
		return err
	}
	if s.closed.Load() {
		return workpool.ErrPoolClosed
	}

	if err := s.submitDisplay(index, frame); err != nil {
		return err
	}

	s.prefetch.Clear()
	if err := s.prefetch.Start(func() { s.prefetchNeighbors(index, frame) }, workpool.Normal); err != nil {
		return fmt.Errorf("schedule prefetch: %w", err)
	}
	return nil
}

func (s *Scheduler) submitDisplay(index, frame int) error {
	s.structural.RLock()
	defer s.structural.RUnlock()

	generation, prior := s.pending.Push(index, frame)
	req := request{index: index, frame: frame, generation: generation, display: true}
	s.stats.requests.Add(1)
	task := func() { s.runDisplay(req) }

	if s.pool.TryStart(task) {
		return nil
	}

	if prior%2 == 0 {
		dropped := s.pool.Clear()
		s.stats.preemptions.Add(1)
		s.stats.dropped.Add(uint64(dropped))
		s.logger.Debug(component, "pool full, preempting queued work", map[string]interface{}{
			"index":      index,
			"frame":      frame,
			"generation": generation,
			"dropped":    dropped,
		})
	} else {
		s.stats.enqueues.Add(1)
	}
	s.trace(req, Queued)

	if err := s.pool.Start(task, workpool.Urgent); err != nil {
		return fmt.Errorf("schedule display: %w", err)
	}
	return nil
}

func (s *Scheduler) runDisplay(r request) {
	s.trace(r, Running)

	src, ok := s.table.Get(r.index)
	if !ok || !src.Contains(r.frame) {
		s.stats.placeholders.Add(1)
		s.present(r, s.placeholder, true)
		return
	}

	if img, ok := s.cache.Get(r.index, r.frame); ok {
		s.stats.cacheHits.Add(1)
		s.present(r, img, false)
		return
	}

	img, err := s.decode(src, r.index, r.frame)
	if err != nil {
		s.stats.placeholders.Add(1)
		s.present(r, s.placeholder, true)
		return
	}

	s.present(r, img, false)
	if s.table.Is(r.index, src) {
		s.cache.Put(r.index, r.frame, img)
	}
}

func (s *Scheduler) runWarm(index, frame int) {
	src, ok := s.table.Get(index)
	if !ok || !src.Contains(frame) || s.cache.Contains(index, frame) {
		return
	}

	img, err := s.decode(src, index, frame)
	if err != nil {
		return
	}
	if s.table.Is(index, src) {
		s.cache.Put(index, frame, img)
		s.stats.prefetches.Add(1)
	}
}

// present publishes img if the request still holds a live pending marker.
// The claim and the publish share the pending log's lock, so a newer result
// cannot be overwritten by an older one that claimed first. Sink listeners
// therefore run under that lock and must not request a display.
func (s *Scheduler) present(r request, img image.Image, isPlaceholder bool) {
	claimed := s.pending.ClaimFunc(r.index, r.frame, func() {
		s.sink.Publish(r.index, r.frame, img, isPlaceholder)
	})
	if !claimed {
		s.stats.superseded.Add(1)
		s.trace(r, Superseded)
		return
	}
	s.stats.satisfied.Add(1)
	s.trace(r, Satisfied)
}

func (s *Scheduler) decode(src *sources.Source, index, frame int) (img image.Image, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("decoder panicked: %v", r)
		}
		if err != nil {
			s.reportDecodeError(&DecodeError{Index: index, Frame: frame, Err: err})
		}
	}()

	s.stats.decodes.Add(1)
	img, err = s.decoder.Decode(src, frame)
	if err == nil && img == nil {
		err = ErrNoImage
	}
	return img, err
}

func (s *Scheduler) reportDecodeError(err *DecodeError) {
	s.stats.decodeFailures.Add(1)
	s.logger.Error(component, err, map[string]interface{}{
		"index": err.Index,
		"frame": err.Frame,
	})
	if s.onDecodeError != nil {
		s.onDecodeError(err)
	}
}

func (s *Scheduler) trace(r request, state State) {
	s.logger.Debug(component, "request "+state.String(), map[string]interface{}{
		"index":      r.index,
		"frame":      r.frame,
		"generation": r.generation,
		"display":    r.display,
	})
}

// Wait blocks until no prefetch and no decode is queued or running.
func (s *Scheduler) Wait() {
	s.prefetch.Wait()
	s.pool.Wait()
}

// Shutdown stops accepting requests, drops queued work, waits for running
// decodes and closes every registered source.
func (s *Scheduler) Shutdown() {
	if s.closed.Swap(true) {
		return
	}

	s.prefetch.Close()
	s.pool.Close()
	s.prefetch.Wait()
	s.pool.Wait()

	closed := make(map[*sources.Source]bool)
	for _, slot := range s.table.Slots() {
		if slot.Occupied() && !closed[slot.Source] {
			closed[slot.Source] = true
			s.release(slot.Index, slot.Source)
		}
	}
	s.logger.Info(component, "scheduler stopped", nil)
}
