package lrme

import (
	"github.com/smazurov/camgraph/internal/negotiation"
	"github.com/smazurov/camgraph/internal/node"
)

// Capability is the hardware envelope the tie-break works within. Every
// field is a node param so a different block revision only needs a
// different topology file.
type Capability struct {
	Min     negotiation.Dimension
	Max     negotiation.Dimension
	Optimal negotiation.Dimension
	// Step is the block size one motion vector covers.
	Step negotiation.Dimension
	// Search is the search range around each block.
	Search negotiation.Dimension
	// VectorFormat selects the vector record layout: 0 packs 6 bytes per
	// block, each increment adds 8.
	VectorFormat uint32
	// DS2 allows processing half of a downscaled tap that is too large.
	DS2 bool
}

// DefaultCapability matches the first hardware revision.
var DefaultCapability = Capability{
	Min:     negotiation.Dimension{Width: 36, Height: 24},
	Max:     negotiation.Dimension{Width: 360, Height: 540},
	Optimal: negotiation.Dimension{Width: 240, Height: 136},
	Step:    negotiation.Dimension{Width: 12, Height: 8},
	Search:  negotiation.Dimension{Width: 12, Height: 8},
	DS2:     true,
}

func parseCapability(p node.Params) (Capability, error) {
	c := DefaultCapability
	var err error
	dims := []struct {
		key string
		dst *negotiation.Dimension
	}{
		{"min", &c.Min},
		{"max", &c.Max},
		{"optimal", &c.Optimal},
		{"step", &c.Step},
		{"search", &c.Search},
	}
	for _, d := range dims {
		if *d.dst, err = p.Dimension(d.key, *d.dst); err != nil {
			return c, err
		}
	}
	c.VectorFormat = p.Uint32("vector_format", c.VectorFormat)
	c.DS2 = p.Bool("ds2", c.DS2)

	r := negotiation.Requirement{Min: c.Min, Optimal: c.Optimal, Max: c.Max}
	if err := r.Validate(); err != nil {
		return c, err
	}
	if c.Step.Width == 0 || c.Step.Height == 0 {
		return c, errZeroStep
	}
	return c, nil
}

// Range returns the capability as a requirement.
func (c Capability) Range() negotiation.Requirement {
	return negotiation.Requirement{Min: c.Min, Optimal: c.Optimal, Max: c.Max}
}

// VectorSize is the vector buffer for processing a res frame: one record
// per step-sized block, in a single row.
func (c Capability) VectorSize(res negotiation.Dimension) negotiation.Dimension {
	blocks := negotiation.CeilDiv(res.Width, c.Step.Width) * negotiation.CeilDiv(res.Height, c.Step.Height)
	return negotiation.Dimension{Width: blocks * (6 + 8*c.VectorFormat), Height: 1}
}
