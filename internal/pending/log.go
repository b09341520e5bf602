// Package pending records which (index, frame) pairs still want a display
// result. Markers are appended on every display request and invalidated,
// never removed, when a worker claims them.
package pending

import "sync"

// Marker is one recorded display request.
type Marker struct {
	Generation  uint64
	Index       int
	Frame       int
	Invalidated bool
}

// Log is an append-only log of markers scanned newest first. Invalidated
// markers that are older than every live marker are compacted away.
type Log struct {
	mu      sync.Mutex
	markers []Marker
	count   uint64
}

func New() *Log {
	return &Log{}
}

// Push appends a live marker and returns its generation along with the
// number of markers pushed before it.
func (l *Log) Push(index, frame int) (generation, prior uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	prior = l.count
	l.count++
	l.markers = append(l.markers, Marker{
		Generation: l.count,
		Index:      index,
		Frame:      frame,
	})
	return l.count, prior
}

// Claim looks for the newest live marker for (index, frame). When one is
// found it is invalidated together with every older marker, so a result for
// a request the user already moved past can no longer be published, and
// Claim returns true.
func (l *Log) Claim(index, frame int) bool {
	return l.ClaimFunc(index, frame, nil)
}

// ClaimFunc is Claim followed by fn, both under the log lock, so no other
// claim can land between them. fn runs only on a successful claim and must
// not call back into the log.
func (l *Log) ClaimFunc(index, frame int, fn func()) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	for i := len(l.markers) - 1; i >= 0; i-- {
		m := l.markers[i]
		if m.Invalidated || m.Index != index || m.Frame != frame {
			continue
		}
		for j := 0; j <= i; j++ {
			l.markers[j].Invalidated = true
		}
		l.compact()
		if fn != nil {
			fn()
		}
		return true
	}
	return false
}

// Latest returns the newest marker, live or not.
func (l *Log) Latest() (Marker, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.markers) == 0 {
		return Marker{}, false
	}
	return l.markers[len(l.markers)-1], true
}

// Live returns the markers still awaiting a result, newest first.
func (l *Log) Live() []Marker {
	l.mu.Lock()
	defer l.mu.Unlock()

	var out []Marker
	for i := len(l.markers) - 1; i >= 0; i-- {
		if !l.markers[i].Invalidated {
			out = append(out, l.markers[i])
		}
	}
	return out
}

// Count returns how many markers have ever been pushed.
func (l *Log) Count() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.count
}

// Len returns the number of retained markers.
func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.markers)
}

// compact drops the invalidated prefix but keeps the newest marker so Latest
// keeps reporting the last request. Caller holds mu.
func (l *Log) compact() {
	cut := 0
	for cut < len(l.markers)-1 && l.markers[cut].Invalidated {
		cut++
	}
	if cut == 0 {
		return
	}
	l.markers = append(l.markers[:0], l.markers[cut:]...)
}
