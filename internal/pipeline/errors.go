package pipeline

import "errors"

var (
	// ErrNotActive is returned when requests are submitted to a pipeline
	// that is not running.
	ErrNotActive = errors.New("pipeline not active")
	// ErrQueueFull is returned when depth requests are already in flight.
	ErrQueueFull = errors.New("request queue full")
	// ErrBusy is returned by operations that need an idle pipeline.
	ErrBusy = errors.New("requests in flight")
	// ErrCycle is returned when links with zero delta form a cycle.
	ErrCycle = errors.New("topology has a cycle")
	// ErrUnknownPort is returned for links naming ports a node did not declare.
	ErrUnknownPort = errors.New("unknown port")
	// ErrUnitOutstanding is returned when a node registers a second unit for
	// a request that already has one pending.
	ErrUnitOutstanding = errors.New("dependency unit already pending")
	// ErrInvalidUnit is returned for a unit with sequence id zero.
	ErrInvalidUnit = errors.New("invalid dependency unit")
	// ErrFormatsChanged is returned when renegotiation picks different
	// formats than the active ones; the pipeline must be rebuilt.
	ErrFormatsChanged = errors.New("negotiated formats changed")
)
