// Package config loads the ghostwriter configuration from YAML with
// environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Checkpoint backends.
const (
	BackendSQLite = "sqlite"
	BackendFile   = "file"
	BackendMemory = "memory"
)

type Config struct {
	ServerAddr   string `yaml:"server_addr"`
	DatabasePath string `yaml:"database_path"`
	// PromptsFile is an optional YAML file of specialist prompts that is
	// watched for changes and takes precedence over the database.
	PromptsFile string `yaml:"prompts_file,omitempty"`
	TurnTimeout string `yaml:"turn_timeout"`
	// ChainSuccessor lets the next specialist answer in the same turn as
	// the hand-off.
	ChainSuccessor bool `yaml:"chain_successor"`

	Checkpoint CheckpointConfig `yaml:"checkpoint"`
	Publisher  PublisherConfig  `yaml:"publisher"`
	LLM        LLMConfig        `yaml:"llm"`
	Log        LogConfig        `yaml:"log"`
}

type CheckpointConfig struct {
	Backend string `yaml:"backend"` // sqlite, file, memory
	Dir     string `yaml:"dir,omitempty"`
}

type PublisherConfig struct {
	Workers int `yaml:"workers"`
	Buffer  int `yaml:"buffer"`
}

// LLMConfig selects the model provider. api_key may come from the environment.
type LLMConfig struct {
	Provider  string `yaml:"provider"` // openai, deepseek, gemini, mock
	Model     string `yaml:"model"`
	APIKey    string `yaml:"api_key,omitempty"`
	BaseURL   string `yaml:"base_url,omitempty"`
	MaxTokens int    `yaml:"max_tokens,omitempty"`
}

type LogConfig struct {
	Level       string `yaml:"level"` // debug, info, warn, error
	Development bool   `yaml:"development"`
}

func DefaultConfig() *Config {
	return &Config{
		ServerAddr:   ":8080",
		DatabasePath: "data/ghostwriter.db",
		TurnTimeout:  "120s",
		Checkpoint:   CheckpointConfig{Backend: BackendSQLite, Dir: "data/checkpoints"},
		Publisher:    PublisherConfig{Workers: 2, Buffer: 64},
		LLM: LLMConfig{
			Provider:  "openai",
			Model:     "gpt-4o-mini",
			MaxTokens: 2048,
		},
		Log: LogConfig{Level: "info"},
	}
}

// Load reads path over the defaults. A missing file yields the defaults.
// Environment variables override both.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("config: parse %s: %w", path, err)
			}
		case errors.Is(err, os.ErrNotExist):
		default:
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
	}
	cfg.applyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes c to path as YAML.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("config: create dir: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("config: marshal: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("config: write %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnvOverrides() {
	if p := os.Getenv("GHOSTWRITER_LLM_PROVIDER"); p != "" {
		c.LLM.Provider = p
	}
	if key := os.Getenv("OPENAI_API_KEY"); key != "" && c.LLM.Provider == "openai" {
		c.LLM.APIKey = key
	}
	if key := os.Getenv("DEEPSEEK_API_KEY"); key != "" && c.LLM.Provider == "deepseek" {
		c.LLM.APIKey = key
	}
	if key := os.Getenv("GEMINI_API_KEY"); key != "" && c.LLM.Provider == "gemini" {
		c.LLM.APIKey = key
	}
	if path := os.Getenv("GHOSTWRITER_DB"); path != "" {
		c.DatabasePath = path
	}
	if addr := os.Getenv("GHOSTWRITER_ADDR"); addr != "" {
		c.ServerAddr = addr
	}
	if path := os.Getenv("GHOSTWRITER_PROMPTS"); path != "" {
		c.PromptsFile = path
	}
	if v := os.Getenv("GHOSTWRITER_CHAIN_SUCCESSOR"); v != "" {
		if on, err := strconv.ParseBool(v); err == nil {
			c.ChainSuccessor = on
		}
	}
	if level := os.Getenv("GHOSTWRITER_LOG_LEVEL"); level != "" {
		c.Log.Level = level
	}
}

// Validate checks values that would otherwise fail late.
func (c *Config) Validate() error {
	c.Checkpoint.Backend = strings.ToLower(strings.TrimSpace(c.Checkpoint.Backend))
	switch c.Checkpoint.Backend {
	case BackendSQLite:
		if c.DatabasePath == "" {
			return errors.New("config: database_path is required for the sqlite backend")
		}
	case BackendFile:
		if c.Checkpoint.Dir == "" {
			return errors.New("config: checkpoint.dir is required for the file backend")
		}
	case BackendMemory:
	default:
		return fmt.Errorf("config: unknown checkpoint backend %q", c.Checkpoint.Backend)
	}
	if _, err := c.TurnTimeoutDuration(); err != nil {
		return err
	}
	if c.LLM.Provider == "" {
		return errors.New("config: llm.provider is required")
	}
	return nil
}

// TurnTimeoutDuration parses TurnTimeout. Zero means no timeout.
func (c *Config) TurnTimeoutDuration() (time.Duration, error) {
	if strings.TrimSpace(c.TurnTimeout) == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(c.TurnTimeout)
	if err != nil {
		return 0, fmt.Errorf("config: turn_timeout: %w", err)
	}
	if d < 0 {
		return 0, fmt.Errorf("config: turn_timeout must not be negative")
	}
	return d, nil
}
