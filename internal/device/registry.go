// Package device is the registry of backend devices hardware nodes claim at
// initialization and acquire exclusively at activation. A Registry is passed
// into pipeline construction; there is no process-wide instance.
package device

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/smazurov/camgraph/internal/backend"
	"github.com/smazurov/camgraph/internal/negotiation"
)

var (
	// ErrNoDevice means no unclaimed device of the requested type exists.
	ErrNoDevice = errors.New("no device available")
	// ErrDeviceBusy means the device is already acquired.
	ErrDeviceBusy = errors.New("device busy")
	// ErrUnknownDevice means the index does not name a device.
	ErrUnknownDevice = errors.New("unknown device")
	// ErrNotClaimed means the caller did not claim the device it acquires.
	ErrNotClaimed = errors.New("device not claimed by owner")
	// ErrReleased is returned when submitting through a released handle.
	ErrReleased = errors.New("device handle released")
)

// Type is the kind of executor a device provides.
type Type string

// Known device types.
const (
	TypeLRME Type = "lrme"
	TypeFD   Type = "fdhw"
)

// Device is one executor instance.
type Device struct {
	Index   int
	Type    Type
	Name    string
	Backend backend.Backend
}

// AcquireParams are the node-specific acquisition parameters.
type AcquireParams struct {
	Resolution negotiation.Dimension
	Priority   int
	Mode       uint32
}

// Handle is exclusive ownership of an acquired device.
type Handle struct {
	Device *Device
	Owner  string
	Params AcquireParams

	mu       sync.RWMutex
	released bool
}

// Submit forwards cmd to the device backend.
func (h *Handle) Submit(ctx context.Context, cmd *backend.Command, done backend.Completion) error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.released {
		return fmt.Errorf("%s: %w", h.Device.Name, ErrReleased)
	}
	return h.Device.Backend.Submit(ctx, cmd, done)
}

// Status describes a device for listings.
type Status struct {
	Index    int    `json:"index"`
	Type     Type   `json:"type"`
	Name     string `json:"name"`
	Claimant string `json:"claimant,omitempty"`
	Acquired bool   `json:"acquired"`
}

// Registry tracks devices in registration order, which is also the order
// Claim prefers them in.
type Registry struct {
	mu       sync.Mutex
	devices  []*Device
	claims   map[int]string
	acquired map[int]*Handle
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		claims:   make(map[int]string),
		acquired: make(map[int]*Handle),
	}
}

// Add registers a device and returns it with its index assigned.
func (r *Registry) Add(typ Type, name string, b backend.Backend) *Device {
	r.mu.Lock()
	defer r.mu.Unlock()
	d := &Device{Index: len(r.devices), Type: typ, Name: name, Backend: b}
	r.devices = append(r.devices, d)
	return d
}

// Claim reserves the first unclaimed device of typ for owner and returns its
// index. It fails fast with ErrNoDevice; callers with a software fallback
// treat that as non-fatal.
func (r *Registry) Claim(typ Type, owner string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, d := range r.devices {
		if d.Type != typ {
			continue
		}
		if _, taken := r.claims[d.Index]; taken {
			continue
		}
		r.claims[d.Index] = owner
		return d.Index, nil
	}
	return -1, fmt.Errorf("%w: type %s", ErrNoDevice, typ)
}

// Unclaim drops owner's claim on index, releasing any handle first.
func (r *Registry) Unclaim(index int, owner string) {
	r.mu.Lock()
	h := r.acquired[index]
	if r.claims[index] == owner {
		delete(r.claims, index)
	}
	r.mu.Unlock()
	if h != nil && h.Owner == owner {
		r.Release(h)
	}
}

// Acquire opens the device at index for exclusive use by owner, which must
// hold the claim.
func (r *Registry) Acquire(index int, owner string, p AcquireParams) (*Handle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if index < 0 || index >= len(r.devices) {
		return nil, fmt.Errorf("%w: index %d", ErrUnknownDevice, index)
	}
	if r.claims[index] != owner {
		return nil, fmt.Errorf("%w: %s index %d", ErrNotClaimed, owner, index)
	}
	if h, ok := r.acquired[index]; ok {
		return nil, fmt.Errorf("%w: %s held by %s", ErrDeviceBusy, r.devices[index].Name, h.Owner)
	}
	h := &Handle{Device: r.devices[index], Owner: owner, Params: p}
	r.acquired[index] = h
	return h, nil
}

// Release gives the device back. Submissions through h fail afterwards.
func (r *Registry) Release(h *Handle) {
	if h == nil {
		return
	}
	h.mu.Lock()
	h.released = true
	h.mu.Unlock()

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.acquired[h.Device.Index] == h {
		delete(r.acquired, h.Device.Index)
	}
}

// Lookup returns the device at index.
func (r *Registry) Lookup(index int) (*Device, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if index < 0 || index >= len(r.devices) {
		return nil, fmt.Errorf("%w: index %d", ErrUnknownDevice, index)
	}
	return r.devices[index], nil
}

// List returns the status of every device.
func (r *Registry) List() []Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Status, len(r.devices))
	for i, d := range r.devices {
		_, acquired := r.acquired[i]
		out[i] = Status{Index: i, Type: d.Type, Name: d.Name, Claimant: r.claims[i], Acquired: acquired}
	}
	return out
}

// Flush cancels outstanding work on every device and returns the total.
func (r *Registry) Flush() int {
	r.mu.Lock()
	devices := append([]*Device(nil), r.devices...)
	r.mu.Unlock()
	n := 0
	for _, d := range devices {
		n += d.Backend.Flush()
	}
	return n
}
