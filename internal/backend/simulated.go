package backend

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/smazurov/camgraph/internal/fence"
)

// Simulated is an in-process executor. It waits for a command's input
// fences, then completes it with a scripted outcome. Used for software-only
// runs of the pipeline and in tests.
type Simulated struct {
	name    string
	latency time.Duration
	outcome func(*Command) Outcome
	reject  func(*Command) error
	result  func(*Command) any

	mu      sync.Mutex
	next    uint64
	pending map[uint64]*job

	submitted atomic.Int64
	completed atomic.Int64
}

type job struct {
	cmd  *Command
	done Completion
}

// Option configures a Simulated backend.
type Option func(*Simulated)

// WithLatency delays completion after the inputs are ready.
func WithLatency(d time.Duration) Option {
	return func(s *Simulated) { s.latency = d }
}

// WithOutcome scripts the outcome of each command.
func WithOutcome(fn func(*Command) Outcome) Option {
	return func(s *Simulated) { s.outcome = fn }
}

// WithReject makes Submit fail synchronously when fn returns an error.
func WithReject(fn func(*Command) error) Option {
	return func(s *Simulated) { s.reject = fn }
}

// WithResult computes the result passed to the completion.
func WithResult(fn func(*Command) any) Option {
	return func(s *Simulated) { s.result = fn }
}

// NewSimulated creates a backend that succeeds every command by default.
func NewSimulated(name string, opts ...Option) *Simulated {
	s := &Simulated{
		name:    name,
		pending: make(map[uint64]*job),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Name returns the backend name.
func (s *Simulated) Name() string { return s.name }

// Submit implements Backend.
func (s *Simulated) Submit(ctx context.Context, cmd *Command, done Completion) error {
	if err := ctx.Err(); err != nil {
		return ErrCancelled
	}
	if s.reject != nil {
		if err := s.reject(cmd); err != nil {
			return err
		}
	}

	s.mu.Lock()
	s.next++
	id := s.next
	s.pending[id] = &job{cmd: cmd, done: done}
	s.mu.Unlock()
	s.submitted.Add(1)

	s.awaitInputs(id, cmd.Inputs)
	return nil
}

// awaitInputs completes job id once every input fence is signaled.
func (s *Simulated) awaitInputs(id uint64, inputs []*fence.Fence) {
	if len(inputs) == 0 {
		s.ready(id, fence.Success)
		return
	}
	var (
		mu        sync.Mutex
		remaining = len(inputs)
		worst     = fence.Success
	)
	for _, f := range inputs {
		f.OnSignal(func(r fence.Result) {
			mu.Lock()
			if r == fence.Cancelled || (r == fence.Failed && worst != fence.Cancelled) {
				worst = r
			}
			remaining--
			last := remaining == 0
			mu.Unlock()
			if last {
				s.ready(id, worst)
			}
		})
	}
}

func (s *Simulated) ready(id uint64, inputs fence.Result) {
	if s.latency > 0 {
		time.AfterFunc(s.latency, func() { s.finish(id, inputs) })
		return
	}
	s.finish(id, inputs)
}

func (s *Simulated) finish(id uint64, inputs fence.Result) {
	s.mu.Lock()
	j, ok := s.pending[id]
	delete(s.pending, id)
	s.mu.Unlock()
	if !ok {
		return
	}

	outcome := Success
	switch inputs {
	case fence.Cancelled:
		outcome = Cancelled
	case fence.Failed:
		outcome = Failed
	default:
		if s.outcome != nil {
			outcome = s.outcome(j.cmd)
		}
	}
	var result any
	if outcome == Success && s.result != nil {
		result = s.result(j.cmd)
	}
	s.completed.Add(1)
	j.done(outcome, result)
}

// Flush implements Backend.
func (s *Simulated) Flush() int {
	s.mu.Lock()
	jobs := make([]*job, 0, len(s.pending))
	for id, j := range s.pending {
		jobs = append(jobs, j)
		delete(s.pending, id)
	}
	s.mu.Unlock()

	for _, j := range jobs {
		s.completed.Add(1)
		j.done(Cancelled, nil)
	}
	return len(jobs)
}

// Submitted returns the number of accepted commands.
func (s *Simulated) Submitted() int64 { return s.submitted.Load() }

// Completed returns the number of completed commands.
func (s *Simulated) Completed() int64 { return s.completed.Load() }

// Pending returns the number of accepted, unfinished commands.
func (s *Simulated) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}
