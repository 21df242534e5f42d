package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rcliao/agent-mind/internal/store"
	"github.com/rcliao/agent-mind/internal/tokens"
)

func init() {
	cmd := &cobra.Command{
		Use:   "context",
		Short: "Show the context window the next turn would see",
		Long:  "Assemble memory blocks, summaries and recent messages, with the token estimate compaction uses.",
		Run:   runContext,
	}

	cmd.Flags().IntP("limit", "l", 0, "Messages to include (default: memory.context_message_limit)")

	RootCmd.AddCommand(cmd)
}

func runContext(cmd *cobra.Command, args []string) {
	limit, _ := cmd.Flags().GetInt("limit")
	if limit <= 0 {
		limit = cfg.Memory.ContextMessageLimit
	}

	s, err := openStore()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	result, err := s.LoadContext(cmd.Context(), store.ContextParams{
		BaseInstructions: cfg.Agent.BaseInstructions,
		MessageLimit:     limit,
		Estimator:        tokens.NewEstimator(cfg.Memory.CharsPerToken),
	})
	if err != nil {
		exitErr("context", err)
	}

	if textFormat() {
		threshold := int(float64(cfg.Memory.ContextLimit) * cfg.Memory.CompactThreshold)
		fmt.Printf("blocks: %d\nsummaries: %d\nmessages: %d\nestimated tokens: %d / %d (compacts at %d)\n",
			len(result.Blocks), len(result.Summaries), len(result.Messages),
			result.EstimatedTokens, cfg.Memory.ContextLimit, threshold)
		return
	}

	printJSON(result)
}
