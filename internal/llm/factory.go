package llm

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/rcliao/agent-mind/internal/config"
)

// New builds the provider named by cfg.Provider.
func New(ctx context.Context, cfg config.LLMConfig, timeout time.Duration, logger *zap.Logger) (Provider, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	httpClient := &http.Client{Timeout: timeout}
	provider := strings.ToLower(cfg.Provider)

	var (
		p   Provider
		err error
	)
	switch provider {
	case "anthropic", "":
		p, err = NewAnthropic(cfg.APIKey, cfg.Model, cfg.BaseURL, httpClient, logger)
	case "openai":
		p, err = NewOpenAI(cfg.APIKey, cfg.Model, cfg.BaseURL, httpClient, logger)
	case "ollama":
		p = NewOllama(cfg.Model, cfg.BaseURL, httpClient, logger)
	case "gemini":
		p, err = NewGemini(ctx, cfg.APIKey, cfg.Model, cfg.BaseURL, httpClient, logger)
	default:
		return nil, fmt.Errorf("unknown LLM provider: %s (supported: anthropic, openai, ollama, gemini)", cfg.Provider)
	}
	if err != nil {
		return nil, err
	}

	logger.Info("creating_llm_provider", zap.String("provider", p.Name()), zap.String("model", modelOrDefault(p.Name(), cfg.Model)))
	return p, nil
}

func modelOrDefault(provider, configured string) string {
	if configured != "" {
		return configured
	}
	switch provider {
	case "anthropic":
		return DefaultAnthropicModel
	case "openai":
		return DefaultOpenAIModel
	case "ollama":
		return DefaultOllamaModel
	case "gemini":
		return DefaultGeminiModel
	}
	return ""
}
