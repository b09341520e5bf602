package clip

import (
	"fmt"
	"sync"

	"gocv.io/x/gocv"
)

// capturePool keeps opened captures of one video file so concurrent decodes
// each get their own seek position. A VideoCapture is not safe for
// concurrent use.
type capturePool struct {
	path     string
	captures []*gocv.VideoCapture
	maxSize  int
	opened   int
	closed   bool
	mu       sync.Mutex
}

func newCapturePool(path string, maxSize int) *capturePool {
	if maxSize <= 0 {
		maxSize = 1
	}
	return &capturePool{
		path:     path,
		captures: make([]*gocv.VideoCapture, 0, maxSize),
		maxSize:  maxSize,
	}
}

// get returns an idle capture or opens a new one.
func (p *capturePool) get() (*gocv.VideoCapture, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, ErrClipClosed
	}
	if n := len(p.captures); n > 0 {
		capture := p.captures[n-1]
		p.captures = p.captures[:n-1]
		p.mu.Unlock()
		return capture, nil
	}
	p.opened++
	p.mu.Unlock()

	capture, err := openCapture(p.path)
	if err != nil {
		p.mu.Lock()
		p.opened--
		p.mu.Unlock()
		return nil, err
	}
	return capture, nil
}

// put hands a capture back, closing it when the pool is full or closed.
func (p *capturePool) put(capture *gocv.VideoCapture) bool {
	if capture == nil {
		return false
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed || len(p.captures) >= p.maxSize {
		p.opened--
		capture.Close()
		return false
	}
	p.captures = append(p.captures, capture)
	return true
}

func (p *capturePool) size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.captures)
}

// cleanup closes every idle capture and refuses further gets. Captures in
// use are closed when they are put back.
func (p *capturePool) cleanup() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	count := len(p.captures)
	for _, capture := range p.captures {
		capture.Close()
	}
	p.opened -= count
	p.captures = p.captures[:0]
	p.closed = true
	return count
}

func openCapture(path string) (*gocv.VideoCapture, error) {
	capture, err := gocv.VideoCaptureFile(path)
	if err != nil {
		return nil, fmt.Errorf("open video %s: %w", path, err)
	}
	if !capture.IsOpened() {
		capture.Close()
		return nil, fmt.Errorf("open video %s: %w", path, ErrUnsupportedClip)
	}
	return capture, nil
}
