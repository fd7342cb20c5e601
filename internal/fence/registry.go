package fence

import (
	"sort"
	"sync"
)

// Registry creates fences and tracks them until released. Flush uses it to
// force every outstanding fence to Cancelled.
type Registry struct {
	mu       sync.Mutex
	next     Handle
	fences   map[Handle]*Fence
	observer func(*Fence, Result)
}

// NewRegistry creates an empty registry. observer, if non-nil, is called for
// every signal of every fence the registry creates.
func NewRegistry(observer func(*Fence, Result)) *Registry {
	return &Registry{
		fences:   make(map[Handle]*Fence),
		observer: observer,
	}
}

// Create allocates a new unsignaled fence.
func (r *Registry) Create(name string) *Fence {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.next++
	f := &Fence{handle: r.next, name: name, observer: r.observer}
	r.fences[f.handle] = f
	return f
}

// Get looks a fence up by handle.
func (r *Registry) Get(h Handle) (*Fence, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	f, ok := r.fences[h]
	if !ok {
		return nil, ErrUnknownFence
	}
	return f, nil
}

// Release forgets the given fences. Holders of the *Fence keep a valid
// object; only the registry entry goes away.
func (r *Registry) Release(hs ...Handle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, h := range hs {
		delete(r.fences, h)
	}
}

// Outstanding returns the number of tracked fences that are not signaled.
func (r *Registry) Outstanding() int {
	n := 0
	for _, f := range r.snapshot() {
		if !f.IsSignaled() {
			n++
		}
	}
	return n
}

// Len returns the number of tracked fences.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.fences)
}

// CancelAll signals every unsignaled fence with Cancelled, oldest first, and
// returns how many it signaled. Fences signaled concurrently by someone else
// are skipped.
func (r *Registry) CancelAll() int {
	n := 0
	for _, f := range r.snapshot() {
		if f.Signal(Cancelled) == nil {
			n++
		}
	}
	return n
}

func (r *Registry) snapshot() []*Fence {
	r.mu.Lock()
	out := make([]*Fence, 0, len(r.fences))
	for _, f := range r.fences {
		out = append(out, f)
	}
	r.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].handle < out[j].handle })
	return out
}
