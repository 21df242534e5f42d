package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rcliao/agent-mind/internal/model"
	"github.com/rcliao/agent-mind/internal/store"
)

func init() {
	connectedCmd := &cobra.Command{
		Use:   "connected [id]",
		Short: "List a node's neighbors by edge weight",
		Args:  cobra.ExactArgs(1),
		Run:   runConnected,
	}
	connectedCmd.Flags().String("direction", model.DirectionBoth, "incoming, outgoing or both")
	connectedCmd.Flags().Float64("min-weight", store.DefaultConnectedMinWeight, "Minimum edge weight")
	connectedCmd.Flags().IntP("limit", "l", 10, "Max results")

	connectivityCmd := &cobra.Command{
		Use:   "connectivity [id]",
		Short: "Show incoming and outgoing edge statistics for a node",
		Args:  cobra.ExactArgs(1),
		Run:   runConnectivity,
	}

	RootCmd.AddCommand(connectedCmd, connectivityCmd)
}

func runConnected(cmd *cobra.Command, args []string) {
	direction, _ := cmd.Flags().GetString("direction")
	minWeight, _ := cmd.Flags().GetFloat64("min-weight")
	limit, _ := cmd.Flags().GetInt("limit")

	s, err := openStore()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	nodes, err := s.Connected(cmd.Context(), args[0], store.ConnectedParams{
		Direction: direction,
		MinWeight: store.Weight(minWeight),
		Limit:     limit,
	})
	if err != nil {
		exitErr("connected", err)
	}

	if textFormat() {
		for _, n := range nodes {
			arrow := "→"
			if n.Direction == model.DirectionIncoming {
				arrow = "←"
			}
			fmt.Printf("%s %s (wt: %.2f, %s)\n  %s\n", arrow, n.ID, n.Weight, n.EdgeType, preview(n.Content, 80))
		}
		return
	}

	printJSON(nodes)
}

func runConnectivity(cmd *cobra.Command, args []string) {
	s, err := openStore()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	c, err := s.Connectivity(cmd.Context(), args[0])
	if err != nil {
		exitErr("connectivity", err)
	}

	if textFormat() {
		fmt.Printf("Incoming edges: %d (total %.3f, avg %.3f)\nOutgoing edges: %d (total %.3f, avg %.3f)\nGraph score: %.3f\n",
			c.Incoming.Count, c.Incoming.TotalWeight, c.Incoming.AvgWeight,
			c.Outgoing.Count, c.Outgoing.TotalWeight, c.Outgoing.AvgWeight,
			c.GraphScore)
		return
	}

	printJSON(c)
}
