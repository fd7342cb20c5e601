package negotiation

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func dim(w, h uint32) Dimension { return Dimension{Width: w, Height: h} }

func TestIntersectOverlappingRanges(t *testing.T) {
	a := Requirement{Min: dim(4, 4), Optimal: dim(12, 8), Max: dim(1000, 1000)}
	b := Requirement{Min: dim(36, 24), Optimal: dim(240, 136), Max: dim(360, 540)}

	got, err := Intersect(a, b)
	if err != nil {
		t.Fatalf("Intersect: %v", err)
	}
	want := Requirement{Min: dim(36, 24), Optimal: dim(240, 136), Max: dim(360, 540)}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Intersect mismatch (-want +got):\n%s", diff)
	}
	if err := got.Validate(); err != nil {
		t.Errorf("intersection invalid: %v", err)
	}

	// order does not matter
	rev, err := Intersect(b, a)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(got, rev); diff != "" {
		t.Errorf("Intersect not symmetric:\n%s", diff)
	}
}

func TestIntersectDisjointRanges(t *testing.T) {
	a := Requirement{Min: dim(1, 1), Optimal: dim(50, 50), Max: dim(100, 100)}
	b := Requirement{Min: dim(200, 200), Optimal: dim(300, 300), Max: dim(400, 400)}

	if _, err := Intersect(a, b); !errors.Is(err, ErrDisjoint) {
		t.Fatalf("err = %v, want ErrDisjoint", err)
	}
}

func TestIntersectClampsOptimal(t *testing.T) {
	a := Requirement{Min: dim(0, 0), Optimal: dim(4000, 3000), Max: dim(8000, 6000)}
	b := Requirement{Min: dim(100, 100), Optimal: dim(200, 200), Max: dim(1920, 1080)}

	got, err := Intersect(a, b)
	if err != nil {
		t.Fatal(err)
	}
	if got.Optimal != dim(1920, 1080) {
		t.Errorf("Optimal = %v, want 1920x1080", got.Optimal)
	}
}

func TestIntersectPlanesUseLCM(t *testing.T) {
	a := Requirement{Max: dim(10, 10), Planes: []Alignment{{Stride: 64, Scanline: 16}}}
	b := Requirement{Max: dim(10, 10), Planes: []Alignment{{Stride: 48, Scanline: 0}, {Stride: 32, Scanline: 32}}}

	got, err := Intersect(a, b)
	if err != nil {
		t.Fatal(err)
	}
	want := []Alignment{{Stride: 192, Scanline: 16}, {Stride: 32, Scanline: 32}}
	if diff := cmp.Diff(want, got.Planes); diff != "" {
		t.Errorf("planes mismatch (-want +got):\n%s", diff)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		r    Requirement
		ok   bool
	}{
		{"ordered", Requirement{Min: dim(1, 1), Optimal: dim(2, 2), Max: dim(3, 3)}, true},
		{"degenerate", Requirement{Min: dim(5, 5), Optimal: dim(5, 5), Max: dim(5, 5)}, true},
		{"optimal below min width", Requirement{Min: dim(10, 1), Optimal: dim(5, 2), Max: dim(20, 3)}, false},
		{"optimal above max height", Requirement{Min: dim(1, 1), Optimal: dim(2, 9), Max: dim(3, 3)}, false},
		{"min above max", Requirement{Min: dim(9, 9), Optimal: dim(9, 9), Max: dim(3, 3)}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.r.Validate()
			if (err == nil) != tt.ok {
				t.Fatalf("Validate() = %v, want ok=%v", err, tt.ok)
			}
			if err != nil && !errors.Is(err, ErrInvalidRange) {
				t.Errorf("err = %v, want ErrInvalidRange", err)
			}
		})
	}
}

func TestIntersectAll(t *testing.T) {
	if _, ok, err := IntersectAll(); ok || err != nil {
		t.Fatalf("empty IntersectAll = %v, %v", ok, err)
	}
	got, ok, err := IntersectAll(
		Requirement{Min: dim(10, 10), Optimal: dim(20, 20), Max: dim(100, 100)},
		Requirement{Min: dim(0, 0), Optimal: dim(30, 10), Max: dim(50, 200)},
		Requirement{Min: dim(15, 0), Optimal: dim(15, 15), Max: dim(60, 60)},
	)
	if !ok || err != nil {
		t.Fatalf("IntersectAll = %v, %v", ok, err)
	}
	want := Requirement{Min: dim(15, 10), Optimal: dim(30, 20), Max: dim(50, 60)}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
}

func TestErrorMatchesNegotiation(t *testing.T) {
	d := NewData("lrme")
	d.Inputs[3] = &Input{Name: "tar_ds4"}

	err := d.SetInputRequirement(3, Requirement{Min: dim(10, 10), Max: dim(1, 1)})
	if !errors.Is(err, ErrNegotiation) || !errors.Is(err, ErrInvalidRange) {
		t.Fatalf("err = %v, want ErrNegotiation and ErrInvalidRange", err)
	}
	var nerr *Error
	if !errors.As(err, &nerr) || nerr.Port != "tar_ds4" || nerr.Node != "lrme" {
		t.Errorf("error attribution = %+v", nerr)
	}
}

func TestConsumerRequirementDisjoint(t *testing.T) {
	d := NewData("frontend")
	d.Outputs[0] = &Output{Name: "full", Consumers: []Requirement{
		{Min: dim(0, 0), Max: dim(100, 100)},
		{Min: dim(200, 200), Optimal: dim(200, 200), Max: dim(400, 400)},
	}}
	_, ok, err := d.ConsumerRequirement(0)
	if !ok || !errors.Is(err, ErrNegotiation) || !errors.Is(err, ErrDisjoint) {
		t.Fatalf("ConsumerRequirement = %v, %v", ok, err)
	}
}
