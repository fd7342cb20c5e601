package cmd

import (
	"fmt"
	"slices"

	"github.com/smazurov/camgraph/internal/config"
	"github.com/smazurov/camgraph/internal/node"
	"github.com/smazurov/camgraph/internal/nodes"
	"github.com/spf13/cobra"
)

// CreateValidateCmd creates the validate command. It checks the topology
// file without instantiating any node.
func CreateValidateCmd() *cobra.Command {
	var path string

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate a pipeline topology file",
		Long: `Parses the topology file and checks node names, node kinds, link endpoints and deltas. ` +
			`Negotiation is not run; use "negotiate" for that.`,
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			top, err := config.LoadTopology(path)
			if err != nil {
				return err
			}
			kinds := nodes.Registry().Kinds()
			for _, nc := range top.Nodes {
				if !slices.Contains(kinds, node.Kind(nc.Kind)) {
					return fmt.Errorf("node %s: %w: %q", nc.Name, node.ErrUnknownKind, nc.Kind)
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %d nodes, %d links, %d devices, depth %d\n",
				path, len(top.Nodes), len(top.Links), len(top.Devices), top.Depth)
			return nil
		},
	}
	cmd.Flags().StringVarP(&path, "pipeline", "p", "pipeline.toml", "Pipeline topology file")
	return cmd
}
