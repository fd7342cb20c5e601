package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/smazurov/camgraph/internal/pipeline"
	"github.com/spf13/cobra"
)

// CreateNegotiateCmd creates the negotiate command.
func CreateNegotiateCmd() *cobra.Command {
	var (
		flags  pipelineFlags
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "negotiate",
		Short: "Build a pipeline and print the negotiated formats",
		Long: `Builds the pipeline described by the topology file, runs format negotiation and prints ` +
			`every port's agreed range and format together with the links negotiation disabled.`,
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			flags.initLogging()
			p, err := flags.build(nil, nil)
			if err != nil {
				return err
			}
			defer p.Close()

			snap := p.Snapshot()
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(snap)
			}
			return printSnapshot(cmd.OutOrStdout(), snap)
		},
	}
	flags.register(cmd)
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the snapshot as JSON")
	return cmd
}

func printSnapshot(out io.Writer, s pipeline.Snapshot) error {
	fmt.Fprintf(out, "session %s  depth %d  workers %d\n\n", s.Session, s.Depth, s.Workers)

	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NODE\tKIND\tSTATE\tPORT\tDIR\tFORMAT\tRANGE")
	for _, n := range s.Nodes {
		state := string(n.State)
		if n.HardwareDisabled {
			state += " (no hw)"
		}
		row := func(dir string, ps pipeline.PortSnapshot) {
			format, rng := "-", "-"
			switch {
			case ps.Disabled:
				format = "disabled"
			case ps.Format != nil:
				format = ps.Format.Dimension().String()
			}
			if ps.Requirement != nil {
				rng = ps.Requirement.String()
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n", n.Name, n.Kind, state, ps.Name, dir, format, rng)
		}
		for _, ps := range n.Inputs {
			row("in", ps)
		}
		for _, ps := range n.Outputs {
			row("out", ps)
		}
	}
	if err := w.Flush(); err != nil {
		return err
	}

	fmt.Fprintln(out)
	w = tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "FROM\tTO\tDELTA\tSTATE")
	for _, l := range s.Links {
		state := "enabled"
		if l.Disabled {
			state = "disabled"
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", l.From, l.To, l.Delta, state)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	if len(s.Advertised) > 0 {
		fmt.Fprintf(out, "\nadvertised: %v\n", s.Advertised)
	}
	return nil
}
