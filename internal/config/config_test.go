package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if !cfg.Adapters.Claude.Enabled || !cfg.Adapters.Codex.Enabled || !cfg.Adapters.Gemini.Enabled {
		t.Error("CLI adapters should be enabled by default")
	}
	if cfg.Adapters.GLM.Enabled || cfg.Adapters.Ollama.Enabled {
		t.Error("network adapters should be opt-in")
	}
	if cfg.Adapters.Ollama.Endpoint != "http://localhost:11434" {
		t.Errorf("ollama endpoint = %q", cfg.Adapters.Ollama.Endpoint)
	}
	if cfg.Discussion.MaxRounds != 5 || cfg.Discussion.ConsensusThreshold != 0.7 {
		t.Errorf("discussion defaults = %+v", cfg.Discussion)
	}
	if cfg.Database.Driver != "sqlite" || cfg.Database.Path != "roundtable.db" {
		t.Errorf("database defaults = %+v", cfg.Database)
	}
	if cfg.Observer.Enabled {
		t.Error("observer should be disabled by default")
	}
}

func TestLoad_MissingFileFallsBackToDefaults(t *testing.T) {
	cfg := Load(filepath.Join(t.TempDir(), "nope.toml"))
	if cfg.Discussion.MaxRounds != 5 {
		t.Errorf("max rounds = %d, want default", cfg.Discussion.MaxRounds)
	}
}

func TestLoad_TOMLOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "roundtable.toml")
	body := `
[adapters.glm]
enabled = true
api_key = "file-key"

[adapters.claude]
enabled = false

[discussion]
max_rounds = 3
consensus_threshold = 0.8

[database]
driver = "postgres"
postgres_url = "postgres://localhost/roundtable"
`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg := Load(path)
	if !cfg.Adapters.GLM.Enabled || cfg.Adapters.GLM.APIKey != "file-key" {
		t.Errorf("glm config = %+v", cfg.Adapters.GLM)
	}
	if cfg.Adapters.Claude.Enabled {
		t.Error("file should disable claude")
	}
	if cfg.Discussion.MaxRounds != 3 || cfg.Discussion.ConsensusThreshold != 0.8 {
		t.Errorf("discussion = %+v", cfg.Discussion)
	}
	if cfg.Database.Driver != "postgres" {
		t.Errorf("driver = %q", cfg.Database.Driver)
	}
	// Sections the file omits keep their defaults.
	if !cfg.Adapters.Codex.Enabled {
		t.Error("codex default lost")
	}
}

func TestLoad_EnvWinsOverFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "roundtable.toml")
	if err := os.WriteFile(path, []byte("[discussion]\nmax_rounds = 3\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("ROUNDTABLE_MAX_ROUNDS", "7")
	t.Setenv("ROUNDTABLE_GLM_API_KEY", "env-key")
	t.Setenv("ROUNDTABLE_OLLAMA_ENDPOINT", "http://gpu-box:11434")
	t.Setenv("ROUNDTABLE_POSTGRES_URL", "postgres://env/roundtable")
	t.Setenv("ROUNDTABLE_OBSERVER_ENABLED", "1")

	cfg := Load(path)
	if cfg.Discussion.MaxRounds != 7 {
		t.Errorf("max rounds = %d, want env value", cfg.Discussion.MaxRounds)
	}
	if !cfg.Adapters.GLM.Enabled || cfg.Adapters.GLM.APIKey != "env-key" {
		t.Errorf("glm = %+v, want enabled via env", cfg.Adapters.GLM)
	}
	if !cfg.Adapters.Ollama.Enabled || cfg.Adapters.Ollama.Endpoint != "http://gpu-box:11434" {
		t.Errorf("ollama = %+v", cfg.Adapters.Ollama)
	}
	if cfg.Database.Driver != "postgres" || cfg.Database.PostgresURL != "postgres://env/roundtable" {
		t.Errorf("database = %+v", cfg.Database)
	}
	if !cfg.Observer.Enabled {
		t.Error("observer should be enabled via env")
	}
}

func TestLoad_InvalidMaxRoundsIgnored(t *testing.T) {
	t.Setenv("ROUNDTABLE_MAX_ROUNDS", "zero")
	cfg := Load(filepath.Join(t.TempDir(), "nope.toml"))
	if cfg.Discussion.MaxRounds != 5 {
		t.Errorf("max rounds = %d, want default", cfg.Discussion.MaxRounds)
	}
}
