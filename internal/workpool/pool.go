// Package workpool is a small bounded worker pool with an explicit two-level
// queue. Tasks that cannot start right away wait in the urgent or the normal
// queue; urgent tasks always start first. Queued tasks can be dropped with
// Clear, running tasks always run to completion.
package workpool

import (
	"container/list"
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/semaphore"

	"clip-quickview/internal/logger"
)

var ErrPoolClosed = errors.New("workpool: pool is closed")

// Priority selects the queue a task waits in when no worker is free.
type Priority int

const (
	Normal Priority = iota
	Urgent
)

func (p Priority) String() string {
	switch p {
	case Normal:
		return "normal"
	case Urgent:
		return "urgent"
	default:
		return fmt.Sprintf("priority(%d)", int(p))
	}
}

type Task func()

type Stats struct {
	Workers   int    `json:"workers"`
	Running   int    `json:"running"`
	Queued    int    `json:"queued"`
	Started   uint64 `json:"started"`
	Completed uint64 `json:"completed"`
	Dropped   uint64 `json:"dropped"`
	Panics    uint64 `json:"panics"`
}

type Pool struct {
	name    string
	workers int
	sem     *semaphore.Weighted
	logger  logger.Logger

	mu     sync.Mutex
	idle   *sync.Cond
	queues [2]*list.List
	closed bool
	stats  Stats
}

// New creates a pool running at most workers tasks at once.
func New(name string, workers int, log logger.Logger) *Pool {
	if workers <= 0 {
		workers = 1
	}
	if log == nil {
		log = logger.NewNop()
	}

	p := &Pool{
		name:    name,
		workers: workers,
		sem:     semaphore.NewWeighted(int64(workers)),
		logger:  log,
		queues:  [2]*list.List{list.New(), list.New()},
	}
	p.idle = sync.NewCond(&p.mu)
	p.stats.Workers = workers
	return p
}

// TryStart runs task immediately if a worker is free and reports whether it
// did. It never queues.
func (p *Pool) TryStart(task Task) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed || !p.sem.TryAcquire(1) {
		return false
	}
	p.launch(task)
	return true
}

// Start runs task as soon as a worker is free, waiting in the queue for
// priority if needed.
func (p *Pool) Start(task Task, priority Priority) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrPoolClosed
	}

	q := p.queues[Normal]
	if priority >= Urgent {
		q = p.queues[Urgent]
	}
	q.PushBack(task)
	p.dispatch()
	return nil
}

// Clear drops every task that has not started yet and returns how many
// were dropped.
func (p *Pool) Clear() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	dropped := 0
	for _, q := range p.queues {
		dropped += q.Len()
		q.Init()
	}
	p.stats.Dropped += uint64(dropped)
	if dropped > 0 {
		p.idle.Broadcast()
	}
	return dropped
}

// Wait blocks until nothing is running or queued.
func (p *Pool) Wait() {
	p.mu.Lock()
	defer p.mu.Unlock()

	for p.busy() {
		p.idle.Wait()
	}
}

// WaitContext is Wait with cancellation.
func (p *Pool) WaitContext(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		p.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close drops queued work and rejects new work. Running tasks finish.
func (p *Pool) Close() {
	p.Clear()

	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
}

func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()

	s := p.stats
	s.Queued = p.queues[Urgent].Len() + p.queues[Normal].Len()
	return s
}

func (p *Pool) busy() bool {
	return p.stats.Running > 0 || p.queues[Urgent].Len() > 0 || p.queues[Normal].Len() > 0
}

// dispatch starts queued tasks while workers are free. Caller holds mu.
func (p *Pool) dispatch() {
	for {
		q := p.queues[Urgent]
		if q.Len() == 0 {
			q = p.queues[Normal]
		}
		if q.Len() == 0 {
			return
		}
		if !p.sem.TryAcquire(1) {
			return
		}
		task := q.Remove(q.Front()).(Task)
		p.launch(task)
	}
}

// launch runs task on a new goroutine holding one semaphore unit. Caller
// holds mu.
func (p *Pool) launch(task Task) {
	p.stats.Running++
	p.stats.Started++

	go func() {
		defer p.finish()
		defer func() {
			if r := recover(); r != nil {
				p.mu.Lock()
				p.stats.Panics++
				p.mu.Unlock()
				p.logger.Error("WorkPool", fmt.Errorf("task panicked: %v", r), map[string]interface{}{
					"pool": p.name,
				})
			}
		}()
		task()
	}()
}

func (p *Pool) finish() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.stats.Running--
	p.stats.Completed++
	p.sem.Release(1)
	if !p.closed {
		p.dispatch()
	}
	if !p.busy() {
		p.idle.Broadcast()
	}
}
