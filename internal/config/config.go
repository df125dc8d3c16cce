package config

import (
	"fmt"
	"os"
	"time"

	"github.com/pelletier/go-toml/v2"
)

type LLMConfig struct {
	Provider           string `toml:"provider"`
	Model              string `toml:"model"`
	APIKey             string `toml:"api_key"`
	BaseURL            string `toml:"base_url"`
	TranscriptionModel string `toml:"transcription_model"`
}

type MemgraphConfig struct {
	URI      string `toml:"uri"`
	User     string `toml:"user"`
	Password string `toml:"password"`
}

// BatchingConfig controls the transcript coalescing policy: a new analysis pass
// fires once either threshold is crossed, never while one is in flight.
type BatchingConfig struct {
	MinMeaningfulContent int `toml:"min_meaningful_content"`
	MaxWaitMS            int `toml:"max_wait_ms"`
}

type AudioConfig struct {
	SampleRate     int `toml:"sample_rate"`
	MaxSamples     int `toml:"max_samples"`
	FlushTimeoutMS int `toml:"flush_timeout_ms"`
}

type OrchestratorConfig struct {
	DebounceMS   int `toml:"debounce_ms"`
	RetryDelayMS int `toml:"retry_delay_ms"`
}

// ProviderProfile describes one AI backend for selection scoring.
type ProviderProfile struct {
	Reliability    float64  `toml:"reliability"`
	CostPer1K      float64  `toml:"cost_per_1k"`
	MaxTokens      int      `toml:"max_tokens"`
	SupportsImages bool     `toml:"supports_images"`
	Strengths      []string `toml:"strengths"`
	Languages      []string `toml:"languages"`
}

type Config struct {
	LLM          LLMConfig                  `toml:"llm"`
	Memgraph     MemgraphConfig             `toml:"memgraph"`
	Batching     BatchingConfig             `toml:"batching"`
	Audio        AudioConfig                `toml:"audio"`
	Orchestrator OrchestratorConfig         `toml:"orchestrator"`
	Providers    map[string]ProviderProfile `toml:"providers"`
	// PreferredProviders maps a document type to provider names in preference order.
	PreferredProviders map[string][]string `toml:"preferred_providers"`
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file '%s': %w", path, err)
	}

	var cfg Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse TOML: %w", err)
	}
	cfg.applyDefaults()

	return &cfg, nil
}

// Default returns a config with every threshold at its reference value,
// used when no config file is present.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.Batching.MinMeaningfulContent == 0 {
		c.Batching.MinMeaningfulContent = 100
	}
	if c.Batching.MaxWaitMS == 0 {
		c.Batching.MaxWaitMS = 15000
	}
	if c.Audio.SampleRate == 0 {
		c.Audio.SampleRate = 16000
	}
	if c.Audio.MaxSamples == 0 {
		c.Audio.MaxSamples = 160000 // 10s at 16kHz
	}
	if c.Audio.FlushTimeoutMS == 0 {
		c.Audio.FlushTimeoutMS = 10000
	}
	if c.Orchestrator.DebounceMS == 0 {
		c.Orchestrator.DebounceMS = 100
	}
	if c.Orchestrator.RetryDelayMS == 0 {
		c.Orchestrator.RetryDelayMS = 2000
	}
}

func (c *Config) MaxWait() time.Duration {
	return time.Duration(c.Batching.MaxWaitMS) * time.Millisecond
}

func (c *Config) AudioFlushTimeout() time.Duration {
	return time.Duration(c.Audio.FlushTimeoutMS) * time.Millisecond
}

func (c *Config) Debounce() time.Duration {
	return time.Duration(c.Orchestrator.DebounceMS) * time.Millisecond
}

func (c *Config) RetryDelay() time.Duration {
	return time.Duration(c.Orchestrator.RetryDelayMS) * time.Millisecond
}
