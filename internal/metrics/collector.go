package metrics

import (
	"context"
	"time"

	"github.com/smazurov/camgraph/internal/logging"
)

// Gauges is a point-in-time reading of pipeline occupancy.
type Gauges struct {
	PendingUnits      int
	InFlightRequests  int
	OutstandingFences int
}

// Sampler produces gauge readings. The pipeline implements it.
type Sampler interface {
	Gauges() Gauges
}

// Collector polls a Sampler and exports its readings.
type Collector struct {
	logger   logging.Logger
	sampler  func() Sampler
	interval time.Duration
	cancel   context.CancelFunc
	done     chan struct{}
}

// NewCollector creates a collector. sampler is called on every tick so a
// rebuilt pipeline is picked up; it may return nil.
func NewCollector(sampler func() Sampler, interval time.Duration) *Collector {
	if interval <= 0 {
		interval = time.Second
	}
	return &Collector{
		logger:   logging.GetLogger("metrics"),
		sampler:  sampler,
		interval: interval,
	}
}

// Start begins polling until ctx is done or Stop is called.
func (c *Collector) Start(ctx context.Context) {
	ctx, c.cancel = context.WithCancel(ctx)
	c.done = make(chan struct{})
	go c.run(ctx)
}

// Stop stops polling and waits for the loop to exit.
func (c *Collector) Stop() {
	if c.cancel == nil {
		return
	}
	c.cancel()
	<-c.done
}

func (c *Collector) run(ctx context.Context) {
	defer close(c.done)
	c.logger.Debug("Starting pipeline gauge collection", "interval", c.interval)
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	c.collect()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.collect()
		}
	}
}

func (c *Collector) collect() {
	s := c.sampler()
	if s == nil {
		return
	}
	g := s.Gauges()
	SetPendingUnits(g.PendingUnits)
	SetInFlightRequests(g.InFlightRequests)
	SetOutstandingFences(g.OutstandingFences)
}
