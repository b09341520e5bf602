// Package framecache keeps decoded frames per slot in insertion order.
//
// A slot's cache grows freely between cleaning passes. Every Put bumps the
// slot's insertion counter; whenever the counter reaches a multiple of
// CleaningFrequency the slot is trimmed to its newest MinimumSize entries.
// Reads never reorder entries; re-inserting an existing frame moves it to
// the newest position.
package framecache

import (
	"container/list"
	"image"
	"sync"

	"clip-quickview/internal/sources"
)

const (
	DefaultMinimumSize       = 10
	DefaultCleaningFrequency = 5
)

type Options struct {
	MinimumSize       int
	CleaningFrequency int
}

func DefaultOptions() Options {
	return Options{
		MinimumSize:       DefaultMinimumSize,
		CleaningFrequency: DefaultCleaningFrequency,
	}
}

type entry struct {
	frame int
	image image.Image
}

type slotCache struct {
	mu      sync.RWMutex
	entries map[int]*list.Element
	order   *list.List
	inserts uint64
}

func newSlotCache() *slotCache {
	return &slotCache{
		entries: make(map[int]*list.Element),
		order:   list.New(),
	}
}

// Cache is a set of per-slot caches, each behind its own reader/writer lock.
type Cache struct {
	opts  Options
	slots [sources.SlotCount]*slotCache
}

func New(opts Options) *Cache {
	if opts.MinimumSize <= 0 {
		opts.MinimumSize = DefaultMinimumSize
	}
	if opts.CleaningFrequency <= 0 {
		opts.CleaningFrequency = DefaultCleaningFrequency
	}

	c := &Cache{opts: opts}
	for i := range c.slots {
		c.slots[i] = newSlotCache()
	}
	return c
}

func (c *Cache) slot(index int) *slotCache {
	if sources.ValidateIndex(index) != nil {
		return nil
	}
	return c.slots[index]
}

// Get returns the cached image for (index, frame).
func (c *Cache) Get(index, frame int) (image.Image, bool) {
	s := c.slot(index)
	if s == nil {
		return nil, false
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	el, ok := s.entries[frame]
	if !ok {
		return nil, false
	}
	return el.Value.(*entry).image, true
}

// Contains reports whether (index, frame) is cached.
func (c *Cache) Contains(index, frame int) bool {
	_, ok := c.Get(index, frame)
	return ok
}

// Put stores img as the newest entry for (index, frame) and reports how many
// entries the cleaning pass evicted, if one ran.
func (c *Cache) Put(index, frame int, img image.Image) int {
	s := c.slot(index)
	if s == nil {
		return 0
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if el, ok := s.entries[frame]; ok {
		s.order.Remove(el)
	}
	s.entries[frame] = s.order.PushBack(&entry{frame: frame, image: img})
	s.inserts++

	if s.inserts%uint64(c.opts.CleaningFrequency) != 0 {
		return 0
	}

	evicted := 0
	for s.order.Len() > c.opts.MinimumSize {
		oldest := s.order.Front()
		s.order.Remove(oldest)
		delete(s.entries, oldest.Value.(*entry).frame)
		evicted++
	}
	return evicted
}

// Clear drops every entry of the slot and resets its insertion counter.
func (c *Cache) Clear(index int) {
	s := c.slot(index)
	if s == nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries = make(map[int]*list.Element)
	s.order.Init()
	s.inserts = 0
}

// Len returns the number of cached frames of the slot.
func (c *Cache) Len(index int) int {
	s := c.slot(index)
	if s == nil {
		return 0
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.order.Len()
}

// Frames returns the cached frame numbers of the slot, oldest first.
func (c *Cache) Frames(index int) []int {
	s := c.slot(index)
	if s == nil {
		return nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	frames := make([]int, 0, s.order.Len())
	for el := s.order.Front(); el != nil; el = el.Next() {
		frames = append(frames, el.Value.(*entry).frame)
	}
	return frames
}

// Insertions returns the slot's insertion counter.
func (c *Cache) Insertions(index int) uint64 {
	s := c.slot(index)
	if s == nil {
		return 0
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.inserts
}
