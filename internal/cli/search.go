package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rcliao/agent-mind/internal/store"
)

func init() {
	cmd := &cobra.Command{
		Use:   "search [query]",
		Short: "Search memory nodes with weight-aware ranking",
		Long: "Search node content and summaries. Results blend recency with graph connectivity, " +
			"and edges between co-retrieved nodes are strengthened unless --no-strengthen is set.",
		Args: cobra.MinimumNArgs(1),
		Run:  runSearch,
	}

	cmd.Flags().StringP("source", "s", "", "Filter by source")
	cmd.Flags().IntP("limit", "l", 10, "Max results")
	cmd.Flags().Float64P("boost", "b", -1, "Weight boost 0..1 (default: graph.weight_boost)")
	cmd.Flags().Bool("no-strengthen", false, "Do not co-activate edges between results")

	RootCmd.AddCommand(cmd)
}

func runSearch(cmd *cobra.Command, args []string) {
	source, _ := cmd.Flags().GetString("source")
	limit, _ := cmd.Flags().GetInt("limit")
	boost, _ := cmd.Flags().GetFloat64("boost")
	noStrengthen, _ := cmd.Flags().GetBool("no-strengthen")
	if !cmd.Flags().Changed("boost") {
		boost = cfg.Graph.WeightBoost
	}
	query := strings.Join(args, " ")

	s, err := openStore()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	results, err := s.SearchWeighted(cmd.Context(), store.WeightedSearchParams{
		Query:           query,
		Limit:           limit,
		Source:          source,
		WeightBoost:     boost,
		FetchMultiplier: cfg.Graph.FetchMultiplier,
		Strengthen:      !noStrengthen,
		CoActivation:    cfg.Graph.CoActivationAmount,
	})
	if err != nil {
		exitErr("search", err)
	}

	if textFormat() {
		for _, n := range results {
			fmt.Printf("%s (%s) score: %.2f (graph: %.2f, recency: %.2f)\n  %s\n",
				n.ID, n.Source, n.FinalScore, n.GraphScore, n.RecencyRank, preview(n.Content, 120))
		}
		return
	}

	if len(results) == 0 {
		fmt.Println("[]")
		return
	}

	printJSON(results)
}

func preview(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
