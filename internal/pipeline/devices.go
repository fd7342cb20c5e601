package pipeline

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/smazurov/camgraph/internal/backend"
	"github.com/smazurov/camgraph/internal/config"
	"github.com/smazurov/camgraph/internal/device"
	"github.com/smazurov/camgraph/internal/property"
)

// NewDevices builds a device registry from the topology, one simulated
// backend per [[devices]] entry.
func NewDevices(cfg *config.Topology) *device.Registry {
	reg := device.NewRegistry()
	counts := make(map[string]int)
	for _, dc := range cfg.Devices {
		name := dc.Name
		if name == "" {
			name = fmt.Sprintf("%s%d", dc.Type, counts[dc.Type])
		}
		counts[dc.Type]++
		reg.Add(device.Type(dc.Type), name, SimulatedBackend(name, dc))
	}
	return reg
}

// SimulatedBackend creates the backend for one device entry. FailEvery > 0
// fails every n-th command.
func SimulatedBackend(name string, dc config.DeviceConfig) *backend.Simulated {
	var opts []backend.Option
	if dc.LatencyMS > 0 {
		opts = append(opts, backend.WithLatency(time.Duration(dc.LatencyMS)*time.Millisecond))
	}
	if dc.FailEvery > 0 {
		var n atomic.Int64
		every := int64(dc.FailEvery)
		opts = append(opts, backend.WithOutcome(func(*backend.Command) backend.Outcome {
			if n.Add(1)%every == 0 {
				return backend.Failed
			}
			return backend.Success
		}))
	}
	if fn := simulatedResult(device.Type(dc.Type)); fn != nil {
		opts = append(opts, backend.WithResult(fn))
	}
	return backend.NewSimulated(name, opts...)
}

// simulatedResult fabricates plausible results for the device types the
// builtin nodes drive.
func simulatedResult(typ device.Type) func(*backend.Command) any {
	switch typ {
	case device.TypeFD:
		return func(cmd *backend.Command) any {
			n := int(cmd.RequestID % 3)
			faces := make([]property.Face, n)
			for i := range faces {
				faces[i] = property.Face{
					X: uint32(40 + 120*i), Y: 60, Width: 96, Height: 96,
					Confidence: 900 - uint32(100*i),
				}
			}
			return faces
		}
	case device.TypeLRME:
		return func(cmd *backend.Command) any {
			shift := float64(cmd.RequestID%5) - 2
			return property.MotionResults{
				RequestID:  cmd.RequestID,
				Transform:  [9]float64{1, 0, shift, 0, 1, -shift, 0, 0, 1},
				Confidence: 200,
				Valid:      true,
			}
		}
	}
	return nil
}
