package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rcliao/agent-mind/internal/store"
)

func init() {
	cmd := &cobra.Command{
		Use:   "traverse [start-id]",
		Short: "Breadth-first walk over outgoing edges",
		Args:  cobra.ExactArgs(1),
		Run:   runTraverse,
	}

	cmd.Flags().Int("depth", 2, "Max depth")
	cmd.Flags().Int("max-nodes", 20, "Max nodes returned")
	cmd.Flags().Float64("min-weight", store.DefaultTraverseMinWeight, "Minimum weight of followed edges")

	RootCmd.AddCommand(cmd)
}

func runTraverse(cmd *cobra.Command, args []string) {
	depth, _ := cmd.Flags().GetInt("depth")
	maxNodes, _ := cmd.Flags().GetInt("max-nodes")
	minWeight, _ := cmd.Flags().GetFloat64("min-weight")

	s, err := openStore()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	nodes, err := s.Traverse(cmd.Context(), args[0], store.TraverseParams{
		MaxDepth:  depth,
		MaxNodes:  maxNodes,
		MinWeight: store.Weight(minWeight),
	})
	if err != nil {
		exitErr("traverse", err)
	}

	if textFormat() {
		for _, n := range nodes {
			indent := strings.Repeat("  ", n.Depth)
			fmt.Printf("%s[d%d] %s (%s)\n%s  %s\n", indent, n.Depth, n.ID, n.Source, indent, preview(n.Content, 100))
		}
		return
	}

	printJSON(nodes)
}
