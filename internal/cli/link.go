package cli

import (
	"github.com/spf13/cobra"

	"github.com/rcliao/agent-mind/internal/store"
)

func init() {
	cmd := &cobra.Command{
		Use:   "link",
		Short: "Create or strengthen an edge between nodes",
		Long:  "Create a directed edge. If it already exists its weight is strengthened instead (capped at 1.0).",
		Run:   runLink,
	}

	cmd.Flags().String("from", "", "Source node id")
	cmd.Flags().String("to", "", "Target node id")
	cmd.Flags().StringP("type", "r", "related", "Relation: related, caused_by, supports, contradicts")
	cmd.Flags().Float64P("weight", "w", store.DefaultEdgeWeight, "Initial weight")

	cmd.MarkFlagRequired("from")
	cmd.MarkFlagRequired("to")

	RootCmd.AddCommand(cmd)
}

func runLink(cmd *cobra.Command, args []string) {
	from, _ := cmd.Flags().GetString("from")
	to, _ := cmd.Flags().GetString("to")
	edgeType, _ := cmd.Flags().GetString("type")
	weight, _ := cmd.Flags().GetFloat64("weight")

	s, err := openStore()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	edge, err := s.CreateEdge(cmd.Context(), store.EdgeParams{
		Source:    from,
		Target:    to,
		Type:      edgeType,
		Weight:    store.Weight(weight),
		Reinforce: cfg.Graph.EdgeStrengthenAmount,
	})
	if err != nil {
		exitErr("link", err)
	}

	printJSON(edge)
}
