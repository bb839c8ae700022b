// Package config loads and manages threadkeep configuration.
// Configuration source priority (highest to lowest):
// 1. Environment variables (LLM_API_KEY, LLM_BASE_URL, LLM_MODEL, ANTHROPIC_API_KEY, etc.)
// 2. Config file path specified via --config flag
// 3. ~/.config/threadkeep/config.yaml
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// ProviderConfig holds configuration for a single LLM provider.
type ProviderConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
	Model   string `yaml:"model"`
}

// MemoryConfig holds settings for the cross-session memory archive.
type MemoryConfig struct {
	// Disabled turns the SQLite archive off entirely.
	Disabled bool `yaml:"disabled"`

	// Path overrides the database location. Empty = {data_dir}/memory.db.
	Path string `yaml:"path"`

	// ArchiveSummaries records every successful compaction summary.
	ArchiveSummaries bool `yaml:"archive_summaries"`
}

// Config is the complete configuration structure for threadkeep.
type Config struct {
	// DataDir is the root directory for all persisted state
	// (sessions, context logs, the index, the event log).
	DataDir string `yaml:"data_dir"`

	// Provider is the active provider name ("openai", "anthropic", "deepseek", ...).
	Provider string `yaml:"provider"`

	// Model overrides the provider's default model.
	Model string `yaml:"model"`

	// Providers holds per-provider configuration.
	Providers map[string]*ProviderConfig `yaml:"providers"`

	// ContextBudget caps the estimated tokens returned by recent-context
	// extraction. Default 50000.
	ContextBudget int `yaml:"context_budget"`

	// CompactThreshold is the estimated-token level at which history is
	// eligible for compaction. Default 100000.
	CompactThreshold int `yaml:"compact_threshold"`

	// ContextWindow is the model context window size used for the
	// auto-compact safety trigger. Default 200000.
	ContextWindow int `yaml:"context_window"`

	// ContextCap bounds the per-user rolling context log. Values outside
	// 100–200 are clamped. Default 200.
	ContextCap int `yaml:"context_cap"`

	// CacheTTLSeconds is the lifetime of a cached context read. Default 300.
	CacheTTLSeconds int `yaml:"cache_ttl_seconds"`

	// DedupWindowMillis is the span within which an identical repeated
	// message is dropped. Default 2000.
	DedupWindowMillis int `yaml:"dedup_window_ms"`

	// ConfirmTimeoutSeconds is how long a pending confirmation stays
	// resolvable. Default 60.
	ConfirmTimeoutSeconds int `yaml:"confirm_timeout_seconds"`

	// Memory holds settings for the cross-session memory archive.
	Memory MemoryConfig `yaml:"memory"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Provider:              "openai",
		Providers:             make(map[string]*ProviderConfig),
		ContextBudget:         50_000,
		CompactThreshold:      100_000,
		ContextWindow:         200_000,
		ContextCap:            200,
		CacheTTLSeconds:       300,
		DedupWindowMillis:     2000,
		ConfirmTimeoutSeconds: 60,
		Memory:                MemoryConfig{ArchiveSummaries: true},
	}
}

// Load reads the config file and merges environment variable overrides.
func Load(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	if configPath == "" {
		home, err := os.UserHomeDir()
		if err == nil {
			configPath = filepath.Join(home, ".config", "threadkeep", "config.yaml")
		}
	}

	// Read config file (use defaults if not found).
	if data, err := os.ReadFile(configPath); err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("invalid config file %s: %w", configPath, err)
		}
	}

	applyEnvOverrides(cfg)
	normalize(cfg)

	if cfg.Providers == nil {
		cfg.Providers = make(map[string]*ProviderConfig)
	}

	return cfg, nil
}

// GetProviderConfig returns the config for the named provider, or an empty
// config if not found.
func (c *Config) GetProviderConfig(name string) *ProviderConfig {
	if pc, ok := c.Providers[name]; ok {
		return pc
	}
	return &ProviderConfig{}
}

// ResolveDataDir returns the configured data dir, falling back to
// ~/.local/share/threadkeep and finally $TMPDIR/threadkeep.
func (c *Config) ResolveDataDir() string {
	if c.DataDir != "" {
		return c.DataDir
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".local", "share", "threadkeep")
	}
	return filepath.Join(os.TempDir(), "threadkeep")
}

// MemoryPath returns the memory archive database path.
func (c *Config) MemoryPath() string {
	if c.Memory.Path != "" {
		return c.Memory.Path
	}
	return filepath.Join(c.ResolveDataDir(), "memory.db")
}

func (c *Config) CacheTTL() time.Duration { return time.Duration(c.CacheTTLSeconds) * time.Second }

func (c *Config) DedupWindow() time.Duration {
	return time.Duration(c.DedupWindowMillis) * time.Millisecond
}

func (c *Config) ConfirmTimeout() time.Duration {
	return time.Duration(c.ConfirmTimeoutSeconds) * time.Second
}

// normalize clamps values that have a specified operating range.
func normalize(cfg *Config) {
	if cfg.ContextCap < 100 {
		cfg.ContextCap = 100
	}
	if cfg.ContextCap > 200 {
		cfg.ContextCap = 200
	}
	if cfg.ContextBudget <= 0 {
		cfg.ContextBudget = 50_000
	}
	if cfg.CompactThreshold <= 0 {
		cfg.CompactThreshold = 100_000
	}
	if cfg.ContextWindow <= 0 {
		cfg.ContextWindow = 200_000
	}
	if cfg.CacheTTLSeconds <= 0 {
		cfg.CacheTTLSeconds = 300
	}
	if cfg.DedupWindowMillis <= 0 {
		cfg.DedupWindowMillis = 2000
	}
	if cfg.ConfirmTimeoutSeconds <= 0 {
		cfg.ConfirmTimeoutSeconds = 60
	}
}

// applyEnvOverrides applies environment variable overrides to the config.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("THREADKEEP_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv("THREADKEEP_PROVIDER"); v != "" {
		cfg.Provider = v
	}
	if v := os.Getenv("THREADKEEP_MODEL"); v != "" {
		cfg.Model = v
	}

	// Generic overrides apply to the active provider.
	if v := os.Getenv("LLM_API_KEY"); v != "" {
		ensureProvider(cfg, cfg.Provider).APIKey = v
	}
	if v := os.Getenv("LLM_BASE_URL"); v != "" {
		ensureProvider(cfg, cfg.Provider).BaseURL = v
	}
	if v := os.Getenv("LLM_MODEL"); v != "" {
		cfg.Model = v
	}

	// Vendor-specific.
	if v := os.Getenv("ANTHROPIC_API_KEY"); v != "" {
		ensureProvider(cfg, "anthropic").APIKey = v
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		ensureProvider(cfg, "openai").APIKey = v
	}
}

func ensureProvider(cfg *Config, name string) *ProviderConfig {
	if cfg.Providers == nil {
		cfg.Providers = make(map[string]*ProviderConfig)
	}
	if cfg.Providers[name] == nil {
		cfg.Providers[name] = &ProviderConfig{}
	}
	return cfg.Providers[name]
}
