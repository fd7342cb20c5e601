// Package nodes registers the builtin node kinds.
package nodes

import (
	"errors"

	"github.com/smazurov/camgraph/internal/node"
	"github.com/smazurov/camgraph/internal/nodes/af"
	"github.com/smazurov/camgraph/internal/nodes/fdhw"
	"github.com/smazurov/camgraph/internal/nodes/frontend"
	"github.com/smazurov/camgraph/internal/nodes/lrme"
	"github.com/smazurov/camgraph/internal/nodes/sink"
)

// Register adds every builtin kind to reg.
func Register(reg *node.Registry) error {
	return errors.Join(
		reg.Register(frontend.Kind, frontend.New),
		reg.Register(lrme.Kind, lrme.New),
		reg.Register(fdhw.Kind, fdhw.New),
		reg.Register(af.Kind, af.New),
		reg.Register(sink.Kind, sink.New),
	)
}

// Registry returns a registry holding the builtin kinds.
func Registry() *node.Registry {
	reg := node.NewRegistry()
	if err := Register(reg); err != nil {
		panic(err)
	}
	return reg
}
