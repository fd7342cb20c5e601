package node

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

var (
	// ErrUnknownKind is returned for kinds nobody registered.
	ErrUnknownKind = errors.New("unknown node kind")
	// ErrDuplicateKind is returned when a kind is registered twice.
	ErrDuplicateKind = errors.New("node kind already registered")
	// ErrUnknownSequence is returned for unrecognized continuation ids.
	ErrUnknownSequence = errors.New("unknown process sequence id")
)

// Factory creates a node named name.
type Factory func(name string) Node

// Registry maps kind tags to factories. Kinds are registered once at
// startup; node packages expose a Register function for that.
type Registry struct {
	mu        sync.RWMutex
	factories map[Kind]Factory
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[Kind]Factory)}
}

// Register adds a factory for kind.
func (r *Registry) Register(kind Kind, f Factory) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.factories[kind]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateKind, kind)
	}
	r.factories[kind] = f
	return nil
}

// New creates a node of kind.
func (r *Registry) New(kind Kind, name string) (Node, error) {
	r.mu.RLock()
	f, ok := r.factories[kind]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownKind, kind)
	}
	return f(name), nil
}

// Kinds returns the registered kinds, sorted.
func (r *Registry) Kinds() []Kind {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Kind, 0, len(r.factories))
	for k := range r.factories {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
