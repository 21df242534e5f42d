package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/rcliao/agent-mind/internal/model"
)

func init() {
	cmd := &cobra.Command{
		Use:   "decay",
		Short: "Weaken every edge toward a floor",
		Long:  "Apply weight = max(floor, weight × (1 − rate)) to every edge. Edges are never deleted.",
		Run:   runDecay,
	}

	cmd.Flags().Float64("rate", -1, "Decay rate (default: graph.decay_rate)")
	cmd.Flags().Float64("floor", -1, "Weight floor (default: graph.decay_floor)")

	RootCmd.AddCommand(cmd)
}

func runDecay(cmd *cobra.Command, args []string) {
	rate, _ := cmd.Flags().GetFloat64("rate")
	floor, _ := cmd.Flags().GetFloat64("floor")
	if !cmd.Flags().Changed("rate") {
		rate = cfg.Graph.DecayRate
	}
	if !cmd.Flags().Changed("floor") {
		floor = cfg.Graph.DecayFloor
	}

	s, err := openStore()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	st, err := s.DecayEdges(cmd.Context(), rate, floor)
	if err != nil {
		exitErr("decay", err)
	}

	if textFormat() {
		fmt.Printf("Edges: %d\nDecay rate: %.1f%%\nFloor: %g\nBefore avg weight: %.3f\nAfter avg weight: %.3f\nChange: %+.3f\n",
			st.EdgeCount, st.DecayRate*100, st.Floor, st.BeforeAvgWeight, st.AfterAvgWeight,
			st.AfterAvgWeight-st.BeforeAvgWeight)
		return
	}
	printJSON(st)
}

type edgeDecayer interface {
	DecayEdges(ctx context.Context, rate, floor float64) (*model.DecayStats, error)
}

// decayLoop decays edges every interval until ctx is done.
func decayLoop(ctx context.Context, s edgeDecayer, interval time.Duration, rate, floor float64) error {
	t := time.NewTicker(interval)
	defer t.Stop()
	logger.Info("decay_worker_started", zap.Duration("interval", interval))

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			st, err := s.DecayEdges(ctx, rate, floor)
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				logger.Error("edge_decay_failed", zap.Error(err))
				continue
			}
			logger.Info("edges_decayed",
				zap.Int("edge_count", st.EdgeCount),
				zap.Float64("before_avg_weight", st.BeforeAvgWeight),
				zap.Float64("after_avg_weight", st.AfterAvgWeight))
		}
	}
}
