// Package hwnode holds the device plumbing shared by hardware-backed nodes:
// claiming a device index at initialization, acquiring the device and the
// per-request packet pool at activation, and turning backend outcomes into
// output fence signals.
package hwnode

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/smazurov/camgraph/internal/backend"
	"github.com/smazurov/camgraph/internal/device"
	"github.com/smazurov/camgraph/internal/metrics"
	"github.com/smazurov/camgraph/internal/node"
)

// Packet is the command memory of one in-flight request.
type Packet struct {
	Slot    int
	Payload []byte
	Result  []byte
}

// Device is a hardware node's view of its backend device.
type Device struct {
	node     string
	typ      device.Type
	registry *device.Registry
	logger   *slog.Logger

	index    int
	disabled bool
	handle   *device.Handle
	pool     *backend.SlotPool[Packet]
}

// Claim reserves a device of typ for the node being initialized. When no
// device is left and fallback is set, the node continues without hardware.
func Claim(ctx *node.InitContext, typ device.Type, fallback bool) (*Device, error) {
	d := &Device{node: ctx.Name, typ: typ, registry: ctx.Devices, logger: ctx.Logger, index: -1}

	err := fmt.Errorf("%w: no registry", device.ErrNoDevice)
	if ctx.Devices != nil {
		d.index, err = ctx.Devices.Claim(typ, ctx.Name)
	}
	switch {
	case err == nil:
		d.logger.Debug("Claimed device", "type", typ, "index", d.index)
		return d, nil
	case errors.Is(err, device.ErrNoDevice) && fallback:
		d.disabled = true
		return d, nil
	}
	return nil, fmt.Errorf("%s: %w", ctx.Name, err)
}

// Disabled reports whether the node runs without hardware.
func (d *Device) Disabled() bool { return d.disabled }

// Index returns the claimed device index, -1 when disabled.
func (d *Device) Index() int { return d.index }

// Activate acquires the device and allocates one packet per in-flight
// request. It is a no-op without hardware.
func (d *Device) Activate(depth int, p device.AcquireParams, payloadSize, resultSize int) error {
	if d.disabled {
		return nil
	}
	h, err := d.registry.Acquire(d.index, d.node, p)
	if err != nil {
		return err
	}
	d.handle = h
	d.pool = backend.NewSlotPool(depth, func(i int) Packet {
		return Packet{Slot: i, Payload: make([]byte, payloadSize), Result: make([]byte, resultSize)}
	})
	d.logger.Info("Device acquired", "device", h.Device.Name, "depth", depth, "resolution", p.Resolution)
	return nil
}

// Submit sends cmd for the request in ec. done is called exactly once with
// the outcome, before the request's output fences are signaled with the
// matching result. A rejected submission is reported the same way.
func (d *Device) Submit(ec *node.ExecuteContext, cmd *backend.Command, done backend.Completion) {
	id := ec.Request.ID
	// The slot is free before outputs signal, so a consumer woken by the
	// fence can submit into it.
	complete := func(o backend.Outcome, result any, release bool) {
		if done != nil {
			done(o, result)
		}
		if release {
			d.pool.Release(id)
		}
		ec.SignalOutputs(o.FenceResult())
	}
	reject := func(o backend.Outcome, err error, release bool) {
		ec.Logger.Warn("Submit failed", "outcome", o, "error", err)
		metrics.RecordSubmission(d.node, "rejected")
		complete(o, nil, release)
	}

	if d.disabled || d.handle == nil {
		reject(backend.Failed, fmt.Errorf("%s: %w", d.node, device.ErrReleased), false)
		return
	}
	pkt, err := d.pool.Acquire(id)
	if err != nil {
		reject(backend.Failed, err, false)
		return
	}
	cmd.Node = d.node
	cmd.RequestID = id
	cmd.Slot = pkt.Slot
	cmd.Payload = pkt.Payload

	err = d.handle.Submit(context.Background(), cmd, func(o backend.Outcome, result any) {
		metrics.RecordSubmission(d.node, o.String())
		if o != backend.Success {
			d.logger.Warn("Request did not complete", "request", id, "outcome", o)
		}
		complete(o, result, true)
	})
	if err != nil {
		reject(backend.OutcomeOf(err), err, true)
	}
}

// Skip records a bypassed request. When zero is set and the hardware is
// enabled, the request's result buffer is cleared.
func (d *Device) Skip(requestID uint64, zero bool) {
	metrics.RecordSubmission(d.node, "skipped")
	if !zero || d.disabled || d.pool == nil {
		return
	}
	pkt, err := d.pool.Acquire(requestID)
	if err != nil {
		return
	}
	clear(pkt.Result)
	d.pool.Release(requestID)
}

// Result returns a copy of the result buffer of requestID's slot.
func (d *Device) Result(requestID uint64) []byte {
	if d.pool == nil {
		return nil
	}
	pkt, err := d.pool.Acquire(requestID)
	if err != nil {
		return nil
	}
	defer d.pool.Release(requestID)
	return append([]byte(nil), pkt.Result...)
}

// InFlight returns the number of requests holding a packet.
func (d *Device) InFlight() int {
	if d.pool == nil {
		return 0
	}
	return d.pool.InFlight()
}

// Flush frees every packet.
func (d *Device) Flush() {
	if d.pool != nil {
		d.pool.Reset()
	}
}

// Release gives the device and the claim back.
func (d *Device) Release() {
	if d.handle != nil {
		d.registry.Release(d.handle)
		d.handle = nil
	}
	if d.index >= 0 && d.registry != nil {
		d.registry.Unclaim(d.index, d.node)
		d.index = -1
	}
}
