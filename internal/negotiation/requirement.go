// Package negotiation holds the buffer requirement types exchanged between
// connected ports while a pipeline is being built.
package negotiation

import (
	"fmt"
)

// Dimension is a width and height in pixels.
type Dimension struct {
	Width  uint32 `json:"width"`
	Height uint32 `json:"height"`
}

func (d Dimension) String() string {
	return fmt.Sprintf("%dx%d", d.Width, d.Height)
}

// Area returns Width*Height.
func (d Dimension) Area() uint64 {
	return uint64(d.Width) * uint64(d.Height)
}

// Fits reports whether d is no larger than max in both directions.
func (d Dimension) Fits(max Dimension) bool {
	return d.Width <= max.Width && d.Height <= max.Height
}

// AtLeast reports whether d is no smaller than min in both directions.
func (d Dimension) AtLeast(min Dimension) bool {
	return d.Width >= min.Width && d.Height >= min.Height
}

// Scale divides both sides by factor, rounding up.
func (d Dimension) Scale(factor uint32) Dimension {
	return Dimension{Width: CeilDiv(d.Width, factor), Height: CeilDiv(d.Height, factor)}
}

// CeilDiv returns ceil(a/b). b must be non-zero.
func CeilDiv(a, b uint32) uint32 {
	return (a + b - 1) / b
}

// Alignment is the per-plane memory layout constraint.
type Alignment struct {
	Stride   uint32 `json:"stride"`
	Scanline uint32 `json:"scanline"`
}

// Requirement is the range of resolutions a port accepts or produces.
type Requirement struct {
	Min     Dimension   `json:"min"`
	Optimal Dimension   `json:"optimal"`
	Max     Dimension   `json:"max"`
	Planes  []Alignment `json:"planes,omitempty"`
}

// Validate checks min <= optimal <= max in both directions.
func (r Requirement) Validate() error {
	if !r.Optimal.AtLeast(r.Min) || !r.Optimal.Fits(r.Max) {
		return fmt.Errorf("%w: min %v optimal %v max %v", ErrInvalidRange, r.Min, r.Optimal, r.Max)
	}
	return nil
}

// Contains reports whether d lies within [Min, Max].
func (r Requirement) Contains(d Dimension) bool {
	return d.AtLeast(r.Min) && d.Fits(r.Max)
}

// Clamp returns d moved into [Min, Max].
func (r Requirement) Clamp(d Dimension) Dimension {
	return Dimension{
		Width:  clamp(d.Width, r.Min.Width, r.Max.Width),
		Height: clamp(d.Height, r.Min.Height, r.Max.Height),
	}
}

func (r Requirement) String() string {
	return fmt.Sprintf("{min %v optimal %v max %v}", r.Min, r.Optimal, r.Max)
}

// Intersect narrows a and b to the range both accept. The optimal point is
// the larger of the two optimals, clamped into the result. Disjoint ranges
// are an error; neither side is ever picked over the other.
func Intersect(a, b Requirement) (Requirement, error) {
	out := Requirement{
		Min: Dimension{
			Width:  max(a.Min.Width, b.Min.Width),
			Height: max(a.Min.Height, b.Min.Height),
		},
		Max: Dimension{
			Width:  min(a.Max.Width, b.Max.Width),
			Height: min(a.Max.Height, b.Max.Height),
		},
	}
	if out.Min.Width > out.Max.Width || out.Min.Height > out.Max.Height {
		return Requirement{}, fmt.Errorf("%w: %v and %v", ErrDisjoint, a, b)
	}
	out.Optimal = out.Clamp(Dimension{
		Width:  max(a.Optimal.Width, b.Optimal.Width),
		Height: max(a.Optimal.Height, b.Optimal.Height),
	})
	out.Planes = mergePlanes(a.Planes, b.Planes)
	return out, nil
}

// IntersectAll folds Intersect over rs. ok is false when rs is empty.
func IntersectAll(rs ...Requirement) (req Requirement, ok bool, err error) {
	if len(rs) == 0 {
		return Requirement{}, false, nil
	}
	req = rs[0]
	for _, r := range rs[1:] {
		if req, err = Intersect(req, r); err != nil {
			return Requirement{}, true, err
		}
	}
	return req, true, nil
}

func mergePlanes(a, b []Alignment) []Alignment {
	n := max(len(a), len(b))
	if n == 0 {
		return nil
	}
	out := make([]Alignment, n)
	for i := range out {
		var pa, pb Alignment
		if i < len(a) {
			pa = a[i]
		}
		if i < len(b) {
			pb = b[i]
		}
		out[i] = Alignment{Stride: lcm(pa.Stride, pb.Stride), Scanline: lcm(pa.Scanline, pb.Scanline)}
	}
	return out
}

func lcm(a, b uint32) uint32 {
	if a == 0 {
		return b
	}
	if b == 0 {
		return a
	}
	x, y := a, b
	for y != 0 {
		x, y = y, x%y
	}
	return a / x * b
}

func clamp(v, lo, hi uint32) uint32 {
	return min(max(v, lo), hi)
}
