package cli

import (
	"context"

	"go.uber.org/zap"

	"github.com/rcliao/agent-mind/internal/agent"
	"github.com/rcliao/agent-mind/internal/compaction"
	"github.com/rcliao/agent-mind/internal/config"
	"github.com/rcliao/agent-mind/internal/llm"
	"github.com/rcliao/agent-mind/internal/store"
	"github.com/rcliao/agent-mind/internal/tokens"
	"github.com/rcliao/agent-mind/internal/tools"
)

func newProvider(ctx context.Context) (llm.Provider, error) {
	return llm.New(ctx, cfg.LLM, cfg.GetLLMTimeout(), logger)
}

func newCompactor(s *store.SQLiteStore, p llm.Provider) *compaction.Engine {
	return compaction.New(s, p, tokens.NewEstimator(cfg.Memory.CharsPerToken), compactionConfig(cfg), logger.Named("compaction"))
}

func compactionConfig(c *config.Config) compaction.Config {
	cc := compaction.DefaultConfig()
	cc.ContextLimit = c.Memory.ContextLimit
	cc.CompactThreshold = c.Memory.CompactThreshold
	cc.TargetRatio = c.Memory.TargetAfterCompact
	cc.MessageLimit = c.Memory.ContextMessageLimit
	cc.BaseInstructions = c.Agent.BaseInstructions
	return cc
}

func memoryToolsConfig(c *config.Config, dbPath string) tools.MemoryConfig {
	return tools.MemoryConfig{
		DBPath:          dbPath,
		WeightBoost:     c.Graph.WeightBoost,
		FetchMultiplier: c.Graph.FetchMultiplier,
		CoActivation:    c.Graph.CoActivationAmount,
		Reinforcement:   c.Graph.EdgeStrengthenAmount,
		DecayRate:       c.Graph.DecayRate,
		DecayFloor:      c.Graph.DecayFloor,
	}
}

// newToolBackend registers the built-in memory tools and, when configured,
// forwards everything else to the approval server. An unreachable server
// leaves only the local tools advertised.
func newToolBackend(ctx context.Context, s *store.SQLiteStore) (*tools.Registry, error) {
	reg := tools.NewRegistry(logger.Named("tools"))
	if err := tools.RegisterMemoryTools(reg, s, memoryToolsConfig(cfg, getDBPath())); err != nil {
		return nil, err
	}
	if cfg.Tools.ApprovalURL != "" {
		remote := tools.NewApprovalClient(cfg.Tools.ApprovalURL, cfg.GetToolTimeout(), nil, logger.Named("approval"))
		if _, err := remote.LoadDefinitions(ctx, cfg.Tools.LoadRetries, cfg.GetToolRetryDelay()); err != nil && ctx.Err() != nil {
			return nil, err
		}
		reg.SetFallback(remote)
		logger.Info("approval_backend_enabled",
			zap.String("url", cfg.Tools.ApprovalURL), zap.Int("remote_tools", len(remote.Definitions())))
	}
	return reg, nil
}

// newOrchestrator wires provider, store, tools and compaction for a turn.
func newOrchestrator(ctx context.Context, s *store.SQLiteStore) (*agent.Orchestrator, error) {
	p, err := newProvider(ctx)
	if err != nil {
		return nil, err
	}
	backend, err := newToolBackend(ctx, s)
	if err != nil {
		return nil, err
	}
	est := tokens.NewEstimator(cfg.Memory.CharsPerToken)
	return agent.New(p, s, backend, agent.Config{
		MaxToolIterations:   cfg.Agent.MaxToolIterations,
		MaxTokens:           cfg.LLM.MaxTokens,
		SessionBufferLimit:  cfg.Agent.SessionBufferLimit,
		ContextMessageLimit: cfg.Memory.ContextMessageLimit,
		BaseInstructions:    cfg.Agent.BaseInstructions,
	},
		agent.WithCompactor(newCompactor(s, p)),
		agent.WithEstimator(est),
		agent.WithLogger(logger.Named("agent")),
	), nil
}
