package nodes

import (
	"errors"
	"testing"

	"github.com/smazurov/camgraph/internal/node"
)

func TestRegister(t *testing.T) {
	reg := Registry()
	want := []node.Kind{"af", "fdhw", "frontend", "lrme", "sink"}
	got := reg.Kinds()
	if len(got) != len(want) {
		t.Fatalf("kinds = %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("kinds = %v, want %v", got, want)
			break
		}
	}
	if err := Register(reg); !errors.Is(err, node.ErrDuplicateKind) {
		t.Errorf("second Register = %v", err)
	}
}
