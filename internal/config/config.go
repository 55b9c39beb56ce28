package config

import (
	"os"
	"strconv"

	"github.com/BurntSushi/toml"
)

type Config struct {
	Adapters   AdaptersConfig   `toml:"adapters"`
	Discussion DiscussionConfig `toml:"discussion"`
	Database   DatabaseConfig   `toml:"database"`
	Observer   ObserverConfig   `toml:"observer"`
}

type AdaptersConfig struct {
	Claude AdapterConfig `toml:"claude"`
	Codex  AdapterConfig `toml:"codex"`
	Gemini AdapterConfig `toml:"gemini"`
	GLM    AdapterConfig `toml:"glm"`
	Ollama AdapterConfig `toml:"ollama"`
}

type AdapterConfig struct {
	Enabled    bool   `toml:"enabled"`
	Command    string `toml:"command"`
	Endpoint   string `toml:"endpoint"`
	Model      string `toml:"model"`
	APIKey     string `toml:"api_key"`
	TimeoutSec int    `toml:"timeout_sec"`
	MaxTokens  int    `toml:"max_tokens"`
	MaxRetries int    `toml:"max_retries"`
}

type DiscussionConfig struct {
	MaxRounds          int     `toml:"max_rounds"`
	ConsensusThreshold float64 `toml:"consensus_threshold"`
	TurnTimeoutSec     int     `toml:"turn_timeout_sec"`
	ConsensusCheck     bool    `toml:"consensus_check"`
}

type DatabaseConfig struct {
	Driver      string `toml:"driver"` // "sqlite" or "postgres"
	Path        string `toml:"path"`
	PostgresURL string `toml:"postgres_url"`
}

type ObserverConfig struct {
	Enabled     bool   `toml:"enabled"`
	OTLPURL     string `toml:"otlp_url"`
	ServiceName string `toml:"service_name"`
}

// Default returns a Config with all defaults applied.
func Default() Config {
	return Config{
		Adapters: AdaptersConfig{
			Claude: AdapterConfig{Enabled: true, TimeoutSec: 60, MaxTokens: 4096, MaxRetries: 3},
			Codex:  AdapterConfig{Enabled: true, TimeoutSec: 60, MaxTokens: 4096, MaxRetries: 3},
			Gemini: AdapterConfig{Enabled: true, TimeoutSec: 60, MaxTokens: 4096, MaxRetries: 3},
			GLM:    AdapterConfig{Enabled: false, TimeoutSec: 60, MaxTokens: 4096, MaxRetries: 3},
			Ollama: AdapterConfig{Enabled: false, Endpoint: "http://localhost:11434", Model: "llama3.1:70b", TimeoutSec: 120, MaxTokens: 4096, MaxRetries: 3},
		},
		Discussion: DiscussionConfig{
			MaxRounds:          5,
			ConsensusThreshold: 0.7,
			TurnTimeoutSec:     60,
			ConsensusCheck:     true,
		},
		Database: DatabaseConfig{Driver: "sqlite", Path: "roundtable.db"},
		Observer: ObserverConfig{ServiceName: "roundtable"},
	}
}

// Load reads config: defaults -> TOML file -> env vars (env wins).
func Load(path string) Config {
	cfg := Default()

	if path == "" {
		path = "roundtable.toml"
	}

	if data, err := os.ReadFile(path); err == nil {
		_ = toml.Unmarshal(data, &cfg)
	}

	// Env overrides
	if v := os.Getenv("ROUNDTABLE_GLM_API_KEY"); v != "" {
		cfg.Adapters.GLM.APIKey = v
		cfg.Adapters.GLM.Enabled = true
	}
	if v := os.Getenv("ROUNDTABLE_OLLAMA_ENDPOINT"); v != "" {
		cfg.Adapters.Ollama.Endpoint = v
		cfg.Adapters.Ollama.Enabled = true
	}
	if v := os.Getenv("ROUNDTABLE_DB_PATH"); v != "" {
		cfg.Database.Path = v
	}
	if v := os.Getenv("ROUNDTABLE_POSTGRES_URL"); v != "" {
		cfg.Database.Driver = "postgres"
		cfg.Database.PostgresURL = v
	}
	if v := os.Getenv("ROUNDTABLE_MAX_ROUNDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Discussion.MaxRounds = n
		}
	}
	if v := os.Getenv("ROUNDTABLE_OBSERVER_ENABLED"); v == "true" || v == "1" {
		cfg.Observer.Enabled = true
	}
	if v := os.Getenv("ROUNDTABLE_OTLP_URL"); v != "" {
		cfg.Observer.OTLPURL = v
	}

	return cfg
}
