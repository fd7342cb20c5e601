// Package fence implements one-shot completion signals shared between the
// node producing a buffer and the nodes consuming it.
package fence

import (
	"errors"
	"fmt"
	"sync"
)

var (
	// ErrAlreadySignaled is returned by a second Signal call.
	ErrAlreadySignaled = errors.New("fence already signaled")
	// ErrInvalidResult is returned when signaling with Unsignaled.
	ErrInvalidResult = errors.New("invalid fence result")
	// ErrUnknownFence is returned for handles the registry does not know.
	ErrUnknownFence = errors.New("unknown fence")
)

// Result is the state of a fence. Every state but Unsignaled is terminal.
type Result int

// Fence results.
const (
	Unsignaled Result = iota
	Success
	Failed
	Cancelled
)

func (r Result) String() string {
	switch r {
	case Unsignaled:
		return "unsignaled"
	case Success:
		return "success"
	case Failed:
		return "failed"
	case Cancelled:
		return "cancelled"
	}
	return fmt.Sprintf("result(%d)", int(r))
}

// Terminal reports whether r is a signaled state.
func (r Result) Terminal() bool {
	return r == Success || r == Failed || r == Cancelled
}

// Handle identifies a fence within its registry.
type Handle uint64

// Fence is a one-shot signal. The zero value is not usable; fences are
// created by a Registry.
type Fence struct {
	handle Handle
	name   string

	mu        sync.Mutex
	result    Result
	callbacks []func(Result)
	observer  func(*Fence, Result)
}

// Handle returns the fence's registry handle.
func (f *Fence) Handle() Handle { return f.handle }

// Name returns the diagnostic name given at creation.
func (f *Fence) Name() string { return f.name }

// Signal moves the fence to r. Only the first call succeeds; callbacks run
// on the caller's goroutine after the state is visible.
func (f *Fence) Signal(r Result) error {
	if !r.Terminal() {
		return fmt.Errorf("%w: %v", ErrInvalidResult, r)
	}

	f.mu.Lock()
	if f.result != Unsignaled {
		prev := f.result
		f.mu.Unlock()
		return fmt.Errorf("%w: %s is %v", ErrAlreadySignaled, f.name, prev)
	}
	f.result = r
	cbs := f.callbacks
	f.callbacks = nil
	observer := f.observer
	f.mu.Unlock()

	if observer != nil {
		observer(f, r)
	}
	for _, cb := range cbs {
		cb(r)
	}
	return nil
}

// IsSignaled reports whether the fence reached a terminal state.
func (f *Fence) IsSignaled() bool {
	return f.Result() != Unsignaled
}

// Result returns the current state.
func (f *Fence) Result() Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.result
}

// OnSignal runs cb once the fence is signaled. If it already is, cb runs
// immediately on the caller's goroutine.
func (f *Fence) OnSignal(cb func(Result)) {
	f.mu.Lock()
	if f.result == Unsignaled {
		f.callbacks = append(f.callbacks, cb)
		f.mu.Unlock()
		return
	}
	r := f.result
	f.mu.Unlock()
	cb(r)
}

func (f *Fence) String() string {
	return fmt.Sprintf("%s(%d)=%v", f.name, f.handle, f.Result())
}
