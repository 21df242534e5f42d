package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, name := range []string{
		"LLM_PROVIDER", "SQLITE_DB_PATH", "AGENT_MIND_DB",
		"AGENT_MIND_CONTEXT_WINDOW_LIMIT", "AGENT_MIND_COMPACT_THRESHOLD",
		"AGENT_MIND_TARGET_AFTER_COMPACT", "AGENT_MIND_CHARS_PER_TOKEN",
		"AGENT_MIND_MAX_TOOL_ITERATIONS",
	} {
		t.Setenv(name, "")
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "anthropic", cfg.LLM.Provider)
	assert.Equal(t, 50000, cfg.Memory.ContextLimit)
	assert.Equal(t, 0.70, cfg.Memory.CompactThreshold)
	assert.Equal(t, 0.25, cfg.Memory.TargetAfterCompact)
	assert.Equal(t, 4, cfg.Memory.CharsPerToken)
	assert.Equal(t, 10, cfg.Agent.MaxToolIterations)
	assert.Equal(t, 0.05, cfg.Graph.DecayRate)
	assert.Equal(t, 0.1, cfg.Graph.DecayFloor)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_MissingFileReturnsDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().Memory, cfg.Memory)
}

func TestLoad_YAMLOverridesDefaults(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := `
llm:
  provider: ollama
  model: llama3.2
memory:
  context_limit: 8000
graph:
  decay_interval: 1h
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "ollama", cfg.LLM.Provider)
	assert.Equal(t, "llama3.2", cfg.LLM.Model)
	assert.Equal(t, 8000, cfg.Memory.ContextLimit)
	assert.Equal(t, 0.70, cfg.Memory.CompactThreshold, "unset keys keep defaults")
	assert.Equal(t, time.Hour, cfg.GetDecayInterval())
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("llm: [unclosed"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	cfg := DefaultConfig()
	cfg.Graph.WeightBoost = 0.6
	require.NoError(t, cfg.Save(path))

	clearEnv(t)
	got, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 0.6, got.Graph.WeightBoost)
}

func TestEnvOverrides(t *testing.T) {
	t.Run("provider and matching model", func(t *testing.T) {
		t.Setenv("LLM_PROVIDER", "OpenAI")
		t.Setenv("OPENAI_MODEL", "gpt-4o-mini")
		t.Setenv("ANTHROPIC_MODEL", "ignored")

		cfg := DefaultConfig()
		require.NoError(t, cfg.applyEnvOverrides())
		assert.Equal(t, "openai", cfg.LLM.Provider)
		assert.Equal(t, "gpt-4o-mini", cfg.LLM.Model)
	})

	t.Run("ollama base url", func(t *testing.T) {
		t.Setenv("LLM_PROVIDER", "ollama")
		t.Setenv("OLLAMA_BASE_URL", "http://gpu-box:11434")

		cfg := DefaultConfig()
		require.NoError(t, cfg.applyEnvOverrides())
		assert.Equal(t, "http://gpu-box:11434", cfg.LLM.BaseURL)
	})

	t.Run("AGENT_MIND_DB wins over SQLITE_DB_PATH", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("SQLITE_DB_PATH", "/tmp/a.db")
		t.Setenv("AGENT_MIND_DB", "/tmp/b.db")

		cfg := DefaultConfig()
		require.NoError(t, cfg.applyEnvOverrides())
		assert.Equal(t, "/tmp/b.db", cfg.Memory.DatabasePath)
	})

	t.Run("memory tuning", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("AGENT_MIND_CONTEXT_WINDOW_LIMIT", "1000")
		t.Setenv("AGENT_MIND_COMPACT_THRESHOLD", "0.8")
		t.Setenv("AGENT_MIND_TARGET_AFTER_COMPACT", "0.2")
		t.Setenv("AGENT_MIND_CHARS_PER_TOKEN", "3")
		t.Setenv("AGENT_MIND_MAX_TOOL_ITERATIONS", "5")

		cfg := DefaultConfig()
		require.NoError(t, cfg.applyEnvOverrides())
		assert.Equal(t, 1000, cfg.Memory.ContextLimit)
		assert.Equal(t, 0.8, cfg.Memory.CompactThreshold)
		assert.Equal(t, 0.2, cfg.Memory.TargetAfterCompact)
		assert.Equal(t, 3, cfg.Memory.CharsPerToken)
		assert.Equal(t, 5, cfg.Agent.MaxToolIterations)
	})

	t.Run("malformed number", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("AGENT_MIND_CONTEXT_WINDOW_LIMIT", "lots")

		cfg := DefaultConfig()
		assert.Error(t, cfg.applyEnvOverrides())
	})
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown provider", func(c *Config) { c.LLM.Provider = "carrier-pigeon" }},
		{"zero context limit", func(c *Config) { c.Memory.ContextLimit = 0 }},
		{"threshold above one", func(c *Config) { c.Memory.CompactThreshold = 1.5 }},
		{"target above threshold", func(c *Config) { c.Memory.TargetAfterCompact = 0.9 }},
		{"negative decay", func(c *Config) { c.Graph.DecayRate = -0.1 }},
		{"boost above one", func(c *Config) { c.Graph.WeightBoost = 2 }},
		{"no iterations", func(c *Config) { c.Agent.MaxToolIterations = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestDurationGetters(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 120*time.Second, cfg.GetLLMTimeout())
	assert.Equal(t, 30*time.Second, cfg.GetToolTimeout())
	assert.Equal(t, 2*time.Second, cfg.GetToolRetryDelay())
	assert.Equal(t, 5, cfg.Tools.LoadRetries)
	assert.Equal(t, 24*time.Hour, cfg.GetDecayInterval())

	cfg.LLM.Timeout = "garbage"
	assert.Equal(t, 120*time.Second, cfg.GetLLMTimeout())
}
