// Package config loads agent-mind settings from YAML with environment
// overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all agent-mind configuration.
type Config struct {
	LLM     LLMConfig     `yaml:"llm"`
	Memory  MemoryConfig  `yaml:"memory"`
	Graph   GraphConfig   `yaml:"graph"`
	Agent   AgentConfig   `yaml:"agent"`
	Tools   ToolsConfig   `yaml:"tools"`
	Logging LoggingConfig `yaml:"logging"`
}

// LLMConfig selects and configures the model backend.
type LLMConfig struct {
	Provider  string `yaml:"provider"` // anthropic, openai, ollama, gemini
	Model     string `yaml:"model"`    // empty means the provider default
	APIKey    string `yaml:"api_key"`
	BaseURL   string `yaml:"base_url"`
	MaxTokens int    `yaml:"max_tokens"`
	Timeout   string `yaml:"timeout"`
}

// MemoryConfig configures persistence and compaction.
type MemoryConfig struct {
	DatabasePath        string  `yaml:"database_path"`
	ContextLimit        int     `yaml:"context_limit"`
	CompactThreshold    float64 `yaml:"compact_threshold"`
	TargetAfterCompact  float64 `yaml:"target_after_compact"`
	CharsPerToken       int     `yaml:"chars_per_token"`
	ContextMessageLimit int     `yaml:"context_message_limit"`
}

// GraphConfig tunes Hebbian reinforcement and decay.
type GraphConfig struct {
	DecayRate            float64 `yaml:"decay_rate"`
	DecayFloor           float64 `yaml:"decay_floor"`
	DecayInterval        string  `yaml:"decay_interval"`
	WeightBoost          float64 `yaml:"weight_boost"`
	CoActivationAmount   float64 `yaml:"co_activation_amount"`
	EdgeStrengthenAmount float64 `yaml:"edge_strengthen_amount"`
	FetchMultiplier      int     `yaml:"fetch_multiplier"`
}

// AgentConfig configures the orchestrator loop.
type AgentConfig struct {
	MaxToolIterations  int    `yaml:"max_tool_iterations"`
	SessionBufferLimit int    `yaml:"session_buffer_limit"`
	BaseInstructions   string `yaml:"base_instructions"`
}

// ToolsConfig configures the remote approval tool backend.
type ToolsConfig struct {
	ApprovalURL string `yaml:"approval_url"`
	Timeout     string `yaml:"timeout"`
	// LoadRetries and RetryDelay govern fetching the remote tool list at startup.
	LoadRetries int    `yaml:"load_retries"`
	RetryDelay  string `yaml:"retry_delay"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
}

// DefaultDatabasePath is ~/.agent-mind/mind.db.
func DefaultDatabasePath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".agent-mind", "mind.db")
}

// DefaultPath is where the CLI looks for a config file.
func DefaultPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".agent-mind", "config.yaml")
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		LLM: LLMConfig{
			Provider:  "anthropic",
			MaxTokens: 4096,
			Timeout:   "120s",
		},
		Memory: MemoryConfig{
			DatabasePath:        DefaultDatabasePath(),
			ContextLimit:        50000,
			CompactThreshold:    0.70,
			TargetAfterCompact:  0.25,
			CharsPerToken:       4,
			ContextMessageLimit: 50,
		},
		Graph: GraphConfig{
			DecayRate:            0.05,
			DecayFloor:           0.1,
			DecayInterval:        "24h",
			WeightBoost:          0.3,
			CoActivationAmount:   0.02,
			EdgeStrengthenAmount: 0.1,
			FetchMultiplier:      3,
		},
		Agent: AgentConfig{
			MaxToolIterations:  10,
			SessionBufferLimit: 40,
		},
		Tools: ToolsConfig{
			Timeout:     "30s",
			LoadRetries: 5,
			RetryDelay:  "2s",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load loads configuration from a YAML file. A missing file yields the
// defaults. Environment overrides apply in both cases.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
	case err != nil:
		return nil, fmt.Errorf("read config: %w", err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the configuration as YAML.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// applyEnvOverrides applies environment variable overrides. A provider
// specific model variable only applies when that provider is selected.
func (c *Config) applyEnvOverrides() error {
	if p := os.Getenv("LLM_PROVIDER"); p != "" {
		c.LLM.Provider = strings.ToLower(p)
	}

	modelVars := map[string]string{
		"anthropic": "ANTHROPIC_MODEL",
		"openai":    "OPENAI_MODEL",
		"ollama":    "OLLAMA_MODEL",
		"gemini":    "GEMINI_MODEL",
	}
	if v, ok := modelVars[c.LLM.Provider]; ok {
		if m := os.Getenv(v); m != "" {
			c.LLM.Model = m
		}
	}
	keyVars := map[string]string{
		"anthropic": "ANTHROPIC_API_KEY",
		"openai":    "OPENAI_API_KEY",
		"gemini":    "GEMINI_API_KEY",
	}
	if v, ok := keyVars[c.LLM.Provider]; ok {
		if k := os.Getenv(v); k != "" {
			c.LLM.APIKey = k
		}
	}
	if c.LLM.Provider == "ollama" {
		if u := os.Getenv("OLLAMA_BASE_URL"); u != "" {
			c.LLM.BaseURL = u
		}
	}

	if p := os.Getenv("SQLITE_DB_PATH"); p != "" {
		c.Memory.DatabasePath = p
	}
	if p := os.Getenv("AGENT_MIND_DB"); p != "" {
		c.Memory.DatabasePath = p
	}

	ints := []struct {
		name string
		dst  *int
	}{
		{"AGENT_MIND_CONTEXT_WINDOW_LIMIT", &c.Memory.ContextLimit},
		{"AGENT_MIND_CHARS_PER_TOKEN", &c.Memory.CharsPerToken},
		{"AGENT_MIND_MAX_TOOL_ITERATIONS", &c.Agent.MaxToolIterations},
	}
	for _, e := range ints {
		if v := os.Getenv(e.name); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("%s: %w", e.name, err)
			}
			*e.dst = n
		}
	}

	floats := []struct {
		name string
		dst  *float64
	}{
		{"AGENT_MIND_COMPACT_THRESHOLD", &c.Memory.CompactThreshold},
		{"AGENT_MIND_TARGET_AFTER_COMPACT", &c.Memory.TargetAfterCompact},
	}
	for _, e := range floats {
		if v := os.Getenv(e.name); v != "" {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return fmt.Errorf("%s: %w", e.name, err)
			}
			*e.dst = f
		}
	}
	return nil
}

// GetLLMTimeout returns the LLM timeout as a duration.
func (c *Config) GetLLMTimeout() time.Duration {
	return parseDuration(c.LLM.Timeout, 120*time.Second)
}

// GetToolTimeout returns the approval backend timeout as a duration.
func (c *Config) GetToolTimeout() time.Duration {
	return parseDuration(c.Tools.Timeout, 30*time.Second)
}

// GetToolRetryDelay returns the pause between remote tool list attempts.
func (c *Config) GetToolRetryDelay() time.Duration {
	return parseDuration(c.Tools.RetryDelay, 2*time.Second)
}

// GetDecayInterval returns how often the chat loop decays edges.
func (c *Config) GetDecayInterval() time.Duration {
	return parseDuration(c.Graph.DecayInterval, 24*time.Hour)
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

// ValidProviders lists the supported model backends.
var ValidProviders = []string{"anthropic", "openai", "ollama", "gemini"}

// Validate checks ranges and provider selection. API keys are checked by
// the provider constructors, since ollama needs none.
func (c *Config) Validate() error {
	valid := false
	for _, p := range ValidProviders {
		if c.LLM.Provider == p {
			valid = true
			break
		}
	}
	if !valid {
		return fmt.Errorf("invalid LLM provider: %s (valid: %v)", c.LLM.Provider, ValidProviders)
	}

	m := c.Memory
	if m.ContextLimit <= 0 {
		return fmt.Errorf("memory.context_limit must be positive, got %d", m.ContextLimit)
	}
	if m.CompactThreshold <= 0 || m.CompactThreshold > 1 {
		return fmt.Errorf("memory.compact_threshold must be in (0, 1], got %v", m.CompactThreshold)
	}
	if m.TargetAfterCompact <= 0 || m.TargetAfterCompact >= m.CompactThreshold {
		return fmt.Errorf("memory.target_after_compact must be in (0, compact_threshold), got %v", m.TargetAfterCompact)
	}
	if m.CharsPerToken <= 0 {
		return fmt.Errorf("memory.chars_per_token must be positive, got %d", m.CharsPerToken)
	}

	g := c.Graph
	if g.DecayRate < 0 || g.DecayRate > 1 {
		return fmt.Errorf("graph.decay_rate must be in [0, 1], got %v", g.DecayRate)
	}
	if g.DecayFloor < 0 || g.DecayFloor > 1 {
		return fmt.Errorf("graph.decay_floor must be in [0, 1], got %v", g.DecayFloor)
	}
	if g.WeightBoost < 0 || g.WeightBoost > 1 {
		return fmt.Errorf("graph.weight_boost must be in [0, 1], got %v", g.WeightBoost)
	}

	if c.Agent.MaxToolIterations <= 0 {
		return fmt.Errorf("agent.max_tool_iterations must be positive, got %d", c.Agent.MaxToolIterations)
	}
	return nil
}
