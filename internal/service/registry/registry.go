package registry

import (
	"sync"
	"sync/atomic"
)

// Handle is the control surface of one running job. Flags are set by request
// handlers and read by the run goroutine at every progress tick.
type Handle struct {
	selector  string
	paused    atomic.Bool
	cancelled atomic.Bool
}

func (h *Handle) Pause() {
	h.paused.Store(true)
}

func (h *Handle) Cancel() {
	h.cancelled.Store(true)
}

func (h *Handle) Paused() bool {
	return h.paused.Load()
}

func (h *Handle) Cancelled() bool {
	return h.cancelled.Load()
}

func (h *Handle) Selector() string {
	return h.selector
}

type registry struct {
	mu      sync.Mutex
	handles map[int64]*Handle
}

func NewRegistry() *registry {
	return &registry{
		handles: make(map[int64]*Handle),
	}
}

// Claim installs a fresh handle for id unless one is already present. The caller
// that gets false must not start a run for id.
func (r *registry) Claim(id int64, selector string) (*Handle, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.handles[id]; ok {
		return nil, false
	}

	h := &Handle{selector: selector}
	r.handles[id] = h

	return h, true
}

func (r *registry) Lookup(id int64) (*Handle, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	h, ok := r.handles[id]

	return h, ok
}

// Remove deletes the entry for id only while it still points at h.
func (r *registry) Remove(id int64, h *Handle) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cur, ok := r.handles[id]; ok && cur == h {
		delete(r.handles, id)

		return true
	}

	return false
}

func (r *registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.handles)
}
