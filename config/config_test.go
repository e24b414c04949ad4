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
	for _, k := range []string{
		"OPENAI_API_KEY", "DEEPSEEK_API_KEY", "GEMINI_API_KEY", "GHOSTWRITER_LLM_PROVIDER",
		"GHOSTWRITER_DB", "GHOSTWRITER_ADDR", "GHOSTWRITER_PROMPTS", "GHOSTWRITER_CHAIN_SUCCESSOR",
		"GHOSTWRITER_LOG_LEVEL",
	} {
		t.Setenv(k, "")
	}
}

func TestLoadMissingFileGivesDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoadOverlaysFile(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server_addr: ":9090"
chain_successor: true
checkpoint:
  backend: FILE
  dir: /tmp/cp
llm:
  provider: deepseek
  base_url: https://api.deepseek.com/v1
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.ServerAddr)
	assert.True(t, cfg.ChainSuccessor)
	assert.Equal(t, BackendFile, cfg.Checkpoint.Backend)
	assert.Equal(t, "deepseek", cfg.LLM.Provider)
	assert.Equal(t, "gpt-4o-mini", cfg.LLM.Model, "unset keys keep defaults")
	assert.Equal(t, 2, cfg.Publisher.Workers)
}

func TestEnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("GEMINI_API_KEY", "g-key")
	t.Setenv("GHOSTWRITER_LLM_PROVIDER", "gemini")
	t.Setenv("GHOSTWRITER_DB", "/var/lib/gw.db")
	t.Setenv("GHOSTWRITER_CHAIN_SUCCESSOR", "true")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "gemini", cfg.LLM.Provider)
	assert.Equal(t, "/var/lib/gw.db", cfg.DatabasePath)
	assert.True(t, cfg.ChainSuccessor)
	assert.Equal(t, "g-key", cfg.LLM.APIKey)
}

func TestEnvKeyMatchesProvider(t *testing.T) {
	clearEnv(t)
	t.Setenv("OPENAI_API_KEY", "o-key")
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "o-key", cfg.LLM.APIKey)

	t.Setenv("GHOSTWRITER_LLM_PROVIDER", "deepseek")
	cfg, err = Load("")
	require.NoError(t, err)
	assert.Empty(t, cfg.LLM.APIKey, "keys of other providers are ignored")
}

func TestValidate(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Checkpoint.Backend = "redis"
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.TurnTimeout = "soon"
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.Checkpoint = CheckpointConfig{Backend: BackendFile}
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	d, err := cfg.TurnTimeoutDuration()
	require.NoError(t, err)
	assert.Equal(t, 120*time.Second, d)
}

func TestSaveRoundTrip(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	cfg := DefaultConfig()
	cfg.PromptsFile = "prompts.yaml"
	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}
