package pipeline

import (
	"log/slog"
	"sync"

	"github.com/smazurov/camgraph/internal/config"
	"github.com/smazurov/camgraph/internal/events"
	"github.com/smazurov/camgraph/internal/logging"
	"github.com/smazurov/camgraph/internal/metrics"
	"github.com/smazurov/camgraph/internal/node"
)

// Service owns the running pipeline and replaces it when the topology
// changes. A failed rebuild keeps the previous pipeline running.
type Service struct {
	kinds  *node.Registry
	bus    *events.Bus
	logger *slog.Logger

	mu      sync.RWMutex
	current *Pipeline
	closed  bool
}

// NewService creates a service without a pipeline; call Load to build one.
func NewService(kinds *node.Registry, bus *events.Bus) *Service {
	return &Service{
		kinds:  kinds,
		bus:    bus,
		logger: logging.GetLogger("pipeline"),
	}
}

// Load builds a pipeline from top and swaps it in. The previous pipeline is
// flushed and closed only after the new one is active.
func (s *Service) Load(top *config.Topology) error {
	next, err := Build(top, Options{Kinds: s.kinds, Bus: s.bus, Logger: s.logger})

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		if next != nil {
			_ = next.Close()
		}
		return ErrNotActive
	}
	prev := s.current
	if err == nil {
		s.current = next
	}
	s.mu.Unlock()

	ev := events.PipelineRebuiltEvent{Timestamp: timestamp()}
	if prev != nil {
		ev.Previous = prev.Session()
	}
	if err != nil {
		s.logger.Error("Pipeline build failed", "error", err)
		ev.Session = ev.Previous
		ev.Error = err.Error()
		s.bus.Publish(ev)
		return err
	}

	if prev != nil {
		if cerr := prev.Close(); cerr != nil {
			s.logger.Warn("Failed to close replaced pipeline", "session", prev.Session(), "error", cerr)
		}
		s.logger.Info("Pipeline rebuilt", "session", next.Session(), "previous", prev.Session())
	}
	ev.Session = next.Session()
	s.bus.Publish(ev)
	return nil
}

// Current returns the running pipeline.
func (s *Service) Current() (*Pipeline, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == nil {
		return nil, ErrNotActive
	}
	return s.current, nil
}

// Sampler returns the running pipeline for metrics collection, nil when
// there is none.
func (s *Service) Sampler() metrics.Sampler {
	p, err := s.Current()
	if err != nil {
		return nil
	}
	return p
}

// Close closes the running pipeline. Later Loads fail with ErrNotActive.
func (s *Service) Close() error {
	s.mu.Lock()
	p := s.current
	s.current = nil
	s.closed = true
	s.mu.Unlock()
	if p == nil {
		return nil
	}
	return p.Close()
}
