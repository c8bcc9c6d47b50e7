// Package config loads conduit's runtime configuration from defaults, a
// TOML file, and CONDUIT_* environment variables, in that order.
package config

import (
	"os"

	"github.com/BurntSushi/toml"
)

type Config struct {
	Server   ServerConfig   `toml:"server"`
	Provider ProviderConfig `toml:"provider"`
	Agent    AgentConfig    `toml:"agent"`
	Cache    CacheConfig    `toml:"cache"`
	Observer ObserverConfig `toml:"observer"`
}

type ServerConfig struct {
	Name    string `toml:"name"`
	Version string `toml:"version"`
}

type ProviderConfig struct {
	Name       string `toml:"name"`
	Model      string `toml:"model"`
	APIKey     string `toml:"api_key"`
	BaseURL    string `toml:"base_url"`
	APIVersion string `toml:"api_version"`
}

type AgentConfig struct {
	MaxToolCalls       int    `toml:"max_tool_calls"`
	AutoExecute        bool   `toml:"auto_execute"`
	IncludeToolResults bool   `toml:"include_tool_results"`
	SystemPrompt       string `toml:"system_prompt"`
}

type CacheConfig struct {
	TTLSeconds int `toml:"ttl_seconds"`
	MaxEntries int `toml:"max_entries"`
}

type ObserverConfig struct {
	Enabled bool                       `toml:"enabled"`
	Pricing map[string]ObserverPricing `toml:"pricing"`
}

type ObserverPricing struct {
	Input  float64 `toml:"input"`
	Output float64 `toml:"output"`
}

// Default returns a Config with all defaults applied.
func Default() Config {
	return Config{
		Server:   ServerConfig{Name: "conduit", Version: "0.1.0"},
		Provider: ProviderConfig{Name: "openai", Model: "gpt-4o-mini"},
		Agent:    AgentConfig{MaxToolCalls: 10, AutoExecute: true},
		Cache:    CacheConfig{TTLSeconds: 300, MaxEntries: 128},
	}
}

// Load reads config: defaults -> TOML file -> env vars (env wins).
func Load(path string) Config {
	cfg := Default()

	if path == "" {
		path = "conduit.toml"
	}

	if data, err := os.ReadFile(path); err == nil {
		_ = toml.Unmarshal(data, &cfg)
	}

	// Env overrides
	if v := os.Getenv("CONDUIT_PROVIDER"); v != "" {
		cfg.Provider.Name = v
	}
	if v := os.Getenv("CONDUIT_MODEL"); v != "" {
		cfg.Provider.Model = v
	}
	if v := os.Getenv("CONDUIT_API_KEY"); v != "" {
		cfg.Provider.APIKey = v
	}
	if v := os.Getenv("CONDUIT_BASE_URL"); v != "" {
		cfg.Provider.BaseURL = v
	}
	if v := os.Getenv("CONDUIT_API_VERSION"); v != "" {
		cfg.Provider.APIVersion = v
	}
	if v := os.Getenv("CONDUIT_OBSERVER_ENABLED"); v == "true" || v == "1" {
		cfg.Observer.Enabled = true
	}

	return cfg
}
