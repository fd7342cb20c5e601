// Package backend is the boundary between hardware nodes and the executors
// they submit work to.
package backend

import (
	"context"
	"errors"
	"fmt"

	"github.com/smazurov/camgraph/internal/fence"
)

var (
	// ErrSubmitFailed is returned when the executor rejects a command.
	ErrSubmitFailed = errors.New("submit failed")
	// ErrCancelled is returned when a command is refused because of a flush.
	ErrCancelled = errors.New("submit cancelled")
	// ErrPoolExhausted is returned when every slot of a pool is in flight.
	ErrPoolExhausted = errors.New("resource pool exhausted")
)

// Outcome is how an executor finished a command.
type Outcome int

// Submission outcomes.
const (
	Success Outcome = iota
	Cancelled
	Failed
)

func (o Outcome) String() string {
	switch o {
	case Success:
		return "success"
	case Cancelled:
		return "cancelled"
	case Failed:
		return "failed"
	}
	return fmt.Sprintf("outcome(%d)", int(o))
}

// FenceResult maps an outcome to the result a node signals its outputs with.
func (o Outcome) FenceResult() fence.Result {
	switch o {
	case Success:
		return fence.Success
	case Cancelled:
		return fence.Cancelled
	}
	return fence.Failed
}

// OutcomeOf classifies a synchronous Submit error.
func OutcomeOf(err error) Outcome {
	switch {
	case err == nil:
		return Success
	case errors.Is(err, ErrCancelled), errors.Is(err, context.Canceled):
		return Cancelled
	}
	return Failed
}

// Command is the opaque work description a node composes per request.
type Command struct {
	Node      string
	RequestID uint64
	Slot      int
	// Inputs are the buffer-ready fences the executor waits on before it
	// starts. With late binding they are already signaled.
	Inputs  []*fence.Fence
	Params  map[string]any
	Payload []byte
}

// Completion is called exactly once per accepted command.
type Completion func(o Outcome, result any)

// Backend executes commands asynchronously. Submit never blocks on
// execution: it either rejects the command or accepts it and later calls done.
type Backend interface {
	Submit(ctx context.Context, cmd *Command, done Completion) error
	// Flush completes every accepted, unfinished command with Cancelled and
	// returns how many it cancelled.
	Flush() int
}
