// Package display holds the single image a viewer currently shows.
package display

import (
	"context"
	"fmt"
	"image"
	"sync"
	"time"

	"clip-quickview/internal/logger"
)

// Frame is one published image and where it came from.
type Frame struct {
	Seq         uint64
	Index       int
	FrameNumber int
	Image       image.Image
	Placeholder bool
	Published   time.Time
}

// Listener is called once for every publish, in publish order.
type Listener func(Frame)

type subscription struct {
	id uint64
	fn Listener
}

// Sink publishes images to the UI. Publishing is atomic with respect to
// Latest, and listeners see publishes one at a time.
type Sink struct {
	mu      sync.Mutex
	current Frame
	changed chan struct{}

	emitMu    sync.Mutex
	subMu     sync.RWMutex
	subs      []subscription
	nextSubID uint64

	logger logger.Logger
}

func NewSink(log logger.Logger) *Sink {
	if log == nil {
		log = logger.NewNop()
	}
	return &Sink{
		changed: make(chan struct{}),
		logger:  log,
	}
}

// Publish replaces the displayed image and notifies listeners.
func (s *Sink) Publish(index, frame int, img image.Image, placeholder bool) Frame {
	s.emitMu.Lock()
	defer s.emitMu.Unlock()

	s.mu.Lock()
	s.current = Frame{
		Seq:         s.current.Seq + 1,
		Index:       index,
		FrameNumber: frame,
		Image:       img,
		Placeholder: placeholder,
		Published:   time.Now(),
	}
	published := s.current
	close(s.changed)
	s.changed = make(chan struct{})
	s.mu.Unlock()

	s.subMu.RLock()
	subs := make([]subscription, len(s.subs))
	copy(subs, s.subs)
	s.subMu.RUnlock()

	for _, sub := range subs {
		s.notify(sub, published)
	}
	return published
}

func (s *Sink) notify(sub subscription, f Frame) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("DisplaySink", fmt.Errorf("listener panicked: %v", r), map[string]interface{}{
				"subscription": sub.id,
				"seq":          f.Seq,
			})
		}
	}()
	sub.fn(f)
}

// Subscribe registers fn and returns a function that removes it.
func (s *Sink) Subscribe(fn Listener) (unsubscribe func()) {
	s.subMu.Lock()
	defer s.subMu.Unlock()

	s.nextSubID++
	id := s.nextSubID
	s.subs = append(s.subs, subscription{id: id, fn: fn})

	return func() {
		s.subMu.Lock()
		defer s.subMu.Unlock()
		for i, sub := range s.subs {
			if sub.id == id {
				s.subs = append(s.subs[:i], s.subs[i+1:]...)
				return
			}
		}
	}
}

// Latest returns the most recently published image, or nil before the first
// publish.
func (s *Sink) Latest() image.Image {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current.Image
}

// Snapshot returns the most recent publish with its metadata.
func (s *Sink) Snapshot() Frame {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Changed returns a channel closed at the next publish.
func (s *Sink) Changed() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.changed
}

// WaitFor blocks until a publish with sequence number >= seq has happened.
func (s *Sink) WaitFor(ctx context.Context, seq uint64) (Frame, error) {
	for {
		s.mu.Lock()
		current, changed := s.current, s.changed
		s.mu.Unlock()

		if current.Seq >= seq {
			return current, nil
		}

		select {
		case <-changed:
		case <-ctx.Done():
			return current, ctx.Err()
		}
	}
}
