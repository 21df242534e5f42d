package cli

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show database and graph statistics",
		Run:   runStats,
	}

	RootCmd.AddCommand(cmd)
}

func runStats(cmd *cobra.Command, args []string) {
	s, err := openStore()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	stats, err := s.Stats(cmd.Context(), getDBPath())
	if err != nil {
		exitErr("stats", err)
	}

	if textFormat() {
		fmt.Printf("Database: %s (%s)\n", stats.DBPath, humanize.Bytes(uint64(stats.DBSizeBytes)))
		fmt.Printf("Messages: %s  Blocks: %d  Summaries: %d\n",
			humanize.Comma(int64(stats.Messages)), stats.Blocks, stats.Summaries)
		fmt.Printf("Nodes: %s  Edges: %s\n", humanize.Comma(int64(stats.Nodes)), humanize.Comma(int64(stats.Edges)))
		fmt.Printf("Avg connections/node: %.2f  Avg edge weight: %.3f\n", stats.AvgConnections, stats.AvgEdgeWeight)
		if len(stats.NodesBySource) > 0 {
			fmt.Println("Nodes by source:")
			for _, src := range stats.NodesBySource {
				fmt.Printf("  %s: %s\n", src.Source, humanize.Comma(int64(src.Count)))
			}
		}
		return
	}

	printJSON(stats)
}
