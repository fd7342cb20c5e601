package cmd

import (
	"fmt"

	"github.com/smazurov/camgraph/internal/config"
	"github.com/smazurov/camgraph/internal/events"
	"github.com/smazurov/camgraph/internal/logging"
	"github.com/smazurov/camgraph/internal/nodes"
	"github.com/smazurov/camgraph/internal/pipeline"
	"github.com/spf13/cobra"
)

// pipelineFlags are shared by the commands that build a pipeline.
type pipelineFlags struct {
	path     string
	logLevel string
	logJSON  bool
}

func (f *pipelineFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.path, "pipeline", "p", "pipeline.toml", "Pipeline topology file")
	cmd.Flags().StringVar(&f.logLevel, "log-level", "warn", "Logging level (debug, info, warn, error)")
	cmd.Flags().BoolVar(&f.logJSON, "log-json", false, "Log as JSON")
}

func (f *pipelineFlags) initLogging() {
	c := logging.Config{Level: f.logLevel, Format: "text"}
	if f.logJSON {
		c.Format = "json"
	}
	logging.Initialize(c)
}

// build loads the topology, lets adjust modify it and builds the pipeline.
func (f *pipelineFlags) build(bus *events.Bus, adjust func(*config.Topology)) (*pipeline.Pipeline, error) {
	top, err := config.LoadTopology(f.path)
	if err != nil {
		return nil, err
	}
	if adjust != nil {
		adjust(top)
	}
	p, err := pipeline.Build(top, pipeline.Options{Kinds: nodes.Registry(), Bus: bus})
	if err != nil {
		return nil, fmt.Errorf("build %s: %w", f.path, err)
	}
	return p, nil
}
