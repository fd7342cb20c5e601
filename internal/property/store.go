// Package property is the request-scoped property pool nodes publish into and
// the scheduler resolves property dependencies against.
package property

import (
	"sync"
)

// ID names a property.
type ID string

// NodeComplete is the property the pipeline publishes when node has finished
// its invocation for a request (submitted or skipped). Depending on it at
// offset 1 serializes a node against its own previous request.
func NodeComplete(node string) ID {
	return ID("node.complete/" + node)
}

// Well-known properties.
const (
	SensorTimestamp ID = "sensor.timestamp"
	AECFrameControl ID = "aec.frame_control"
	AWBFrameControl ID = "awb.frame_control"
	FDFrameSettings ID = "fd.frame_settings"
	FDResults       ID = "fd.results"
	LRMEResults     ID = "lrme.results"
	AFInput         ID = "af.input"
	AFState         ID = "af.state"
)

// Store keeps published values for a sliding window of requests plus the
// most recent value of every property. Values older than the window are
// evicted on publish.
type Store struct {
	mu         sync.RWMutex
	window     uint64
	newest     uint64
	advertised map[ID]string
	values     map[uint64]map[ID]any
	latest     map[ID]any
	hook       func(requestID uint64, id ID)
}

// NewStore creates a store retaining values for window requests.
func NewStore(window int) *Store {
	if window < 1 {
		window = 1
	}
	return &Store{
		window:     uint64(window),
		advertised: make(map[ID]string),
		values:     make(map[uint64]map[ID]any),
		latest:     make(map[ID]any),
	}
}

// OnPublish installs a hook called after every Publish, outside the store
// lock. The scheduler uses it to re-check pending dependency units.
func (s *Store) OnPublish(fn func(requestID uint64, id ID)) {
	s.mu.Lock()
	s.hook = fn
	s.mu.Unlock()
}

// Advertise records that publisher will publish ids for every request.
func (s *Store) Advertise(publisher string, ids ...ID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		s.advertised[id] = publisher
	}
}

// IsAdvertised reports whether some publisher advertised id. Nodes must
// check it before declaring a dependency on id.
func (s *Store) IsAdvertised(id ID) bool {
	_, ok := s.Publisher(id)
	return ok
}

// Publisher returns the node that advertised id.
func (s *Store) Publisher(id ID) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.advertised[id]
	return p, ok
}

// Publish stores v as the value of id for requestID.
func (s *Store) Publish(requestID uint64, id ID, v any) {
	s.mu.Lock()
	s.storeLocked(requestID, id, v)
	s.latest[id] = v
	hook := s.hook
	s.mu.Unlock()

	if hook != nil {
		hook(requestID, id)
	}
}

// PublishUnavailable stores an Unavailable marker for id unless a value was
// already published for requestID. Latest keeps the last real value. It
// reports whether the marker was stored.
func (s *Store) PublishUnavailable(requestID uint64, id ID, publisher string) bool {
	s.mu.Lock()
	if _, ok := s.values[requestID][id]; ok {
		s.mu.Unlock()
		return false
	}
	s.storeLocked(requestID, id, Unavailable{Publisher: publisher})
	hook := s.hook
	s.mu.Unlock()

	if hook != nil {
		hook(requestID, id)
	}
	return true
}

func (s *Store) storeLocked(requestID uint64, id ID, v any) {
	vals, ok := s.values[requestID]
	if !ok {
		vals = make(map[ID]any)
		s.values[requestID] = vals
	}
	vals[id] = v
	if requestID > s.newest {
		s.newest = requestID
		s.evictLocked()
	}
}

func (s *Store) evictLocked() {
	if s.newest <= s.window {
		return
	}
	floor := s.newest - s.window
	for req := range s.values {
		if req <= floor {
			delete(s.values, req)
		}
	}
}

// Query returns the value of id published for request requestID-offset.
func (s *Store) Query(id ID, requestID, offset uint64) (any, bool) {
	if offset > requestID {
		return nil, false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[requestID-offset][id]
	return v, ok
}

// IsPublished reports whether id has a value for requestID.
func (s *Store) IsPublished(id ID, requestID uint64) bool {
	_, ok := s.Query(id, requestID, 0)
	return ok
}

// Latest returns the most recently published value of id across requests.
// It survives Flush so nodes can carry a value forward.
func (s *Store) Latest(id ID) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.latest[id]
	return v, ok
}

// Flush drops every per-request value. Advertisements and latest values are
// kept.
func (s *Store) Flush() {
	s.mu.Lock()
	s.values = make(map[uint64]map[ID]any)
	s.newest = 0
	s.mu.Unlock()
}
