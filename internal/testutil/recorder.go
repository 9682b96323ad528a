package testutil

import (
	"fmt"
	"sync"

	"github.com/roach88/microsim/internal/engine"
)

// DispatchRecorder collects scheduler dispatches as compact lines, for
// comparing the dispatch order of two runs.
//
// Thread-safety: all methods are safe for concurrent use via internal mutex.
type DispatchRecorder struct {
	mu    sync.Mutex
	lines []string
}

// NewDispatchRecorder creates an empty recorder.
func NewDispatchRecorder() *DispatchRecorder {
	return &DispatchRecorder{}
}

// Observe is an engine.DispatchObserver.
func (r *DispatchRecorder) Observe(d engine.Dispatch) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lines = append(r.lines, fmt.Sprintf("%d %d %s %s", d.Seq, d.Year, d.Event, d.State))
}

// Lines returns a copy of the recorded lines in dispatch order.
func (r *DispatchRecorder) Lines() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.lines))
	copy(out, r.lines)
	return out
}

// Reset forgets everything recorded so far.
func (r *DispatchRecorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lines = nil
}
