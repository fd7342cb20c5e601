package node

import (
	"sort"

	"github.com/smazurov/camgraph/internal/fence"
	"github.com/smazurov/camgraph/internal/property"
)

// PropertyRef is a property needed for the request Offset requests before
// the one being processed.
type PropertyRef struct {
	ID     property.ID
	Offset uint64
}

// Dependency is one member of a Unit's tagged set.
type Dependency interface {
	satisfied(props PropertySource, requestID uint64) bool
}

// PropertySource answers whether a property was published for a request.
type PropertySource interface {
	Query(id property.ID, requestID, offset uint64) (any, bool)
}

// PropertyDep waits until every referenced property is published.
type PropertyDep struct {
	Refs []PropertyRef
}

func (d *PropertyDep) satisfied(props PropertySource, requestID uint64) bool {
	for _, ref := range d.Refs {
		if ref.Offset >= requestID {
			// Nothing is ever published before request 1.
			continue
		}
		if _, ok := props.Query(ref.ID, requestID, ref.Offset); !ok {
			return false
		}
	}
	return true
}

// FenceDep waits until every fence is signaled, whatever the result.
type FenceDep struct {
	Fences []*fence.Fence
}

func (d *FenceDep) satisfied(PropertySource, uint64) bool {
	for _, f := range d.Fences {
		if !f.IsSignaled() {
			return false
		}
	}
	return true
}

// Unit is a node's declaration of what must become true before it is
// re-invoked for a request with SequenceID.
type Unit struct {
	SequenceID uint32
	Deps       []Dependency
}

// NewUnit creates an empty unit resuming at seq.
func NewUnit(seq uint32) *Unit {
	return &Unit{SequenceID: seq}
}

// AddProperty adds a property dependency.
func (u *Unit) AddProperty(id property.ID, offset uint64) {
	for _, d := range u.Deps {
		if pd, ok := d.(*PropertyDep); ok {
			pd.Refs = append(pd.Refs, PropertyRef{ID: id, Offset: offset})
			return
		}
	}
	u.Deps = append(u.Deps, &PropertyDep{Refs: []PropertyRef{{ID: id, Offset: offset}}})
}

// AddFence adds fence dependencies. Nil fences are skipped.
func (u *Unit) AddFence(fs ...*fence.Fence) {
	var fd *FenceDep
	for _, d := range u.Deps {
		if f, ok := d.(*FenceDep); ok {
			fd = f
			break
		}
	}
	for _, f := range fs {
		if f == nil {
			continue
		}
		if fd == nil {
			fd = &FenceDep{}
			u.Deps = append(u.Deps, fd)
		}
		fd.Fences = append(fd.Fences, f)
	}
}

// Properties returns every property reference in the unit.
func (u *Unit) Properties() []PropertyRef {
	var out []PropertyRef
	for _, d := range u.Deps {
		if pd, ok := d.(*PropertyDep); ok {
			out = append(out, pd.Refs...)
		}
	}
	return out
}

// Fences returns every fence in the unit.
func (u *Unit) Fences() []*fence.Fence {
	var out []*fence.Fence
	for _, d := range u.Deps {
		if fd, ok := d.(*FenceDep); ok {
			out = append(out, fd.Fences...)
		}
	}
	return out
}

// HasProperties reports whether the unit waits on properties.
func (u *Unit) HasProperties() bool { return len(u.Properties()) > 0 }

// HasFences reports whether the unit waits on fences.
func (u *Unit) HasFences() bool { return len(u.Fences()) > 0 }

// Empty reports whether the unit has no dependencies. An empty unit is
// satisfied immediately.
func (u *Unit) Empty() bool { return !u.HasProperties() && !u.HasFences() }

// Satisfied reports whether every dependency holds for requestID.
func (u *Unit) Satisfied(props PropertySource, requestID uint64) bool {
	for _, d := range u.Deps {
		if !d.satisfied(props, requestID) {
			return false
		}
	}
	return true
}

func sortedPorts(m map[PortID]*fence.Fence) []PortID {
	ids := make([]PortID, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
