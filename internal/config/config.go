package config

import (
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

var (
	exeDirCache string
)

// getExecutableDir returns the directory where the executable is located
func getExecutableDir() string {
	if exeDirCache != "" {
		return exeDirCache
	}
	execPath, err := os.Executable()
	if err != nil {
		exeDirCache = "."
		return exeDirCache
	}
	execPath, err = filepath.EvalSymlinks(execPath)
	if err != nil {
		exeDirCache = "."
		return exeDirCache
	}
	exeDirCache = filepath.Dir(execPath)
	return exeDirCache
}

type Config struct {
	Port     int           `yaml:"port"`
	Database string        `yaml:"database,omitempty"`
	AI       AIConfig      `yaml:"ai,omitempty"`
	Session  SessionConfig `yaml:"session,omitempty"`
	Logging  LoggingConfig `yaml:"logging"`
}

type AIConfig struct {
	// Provider selects the gateway backend: "openai", "anthropic",
	// or "rules" (deterministic offline policy, no API key needed).
	Provider string `yaml:"provider,omitempty"`
	APIKey   string `yaml:"api_key,omitempty"`
	BaseURL  string `yaml:"base_url,omitempty"`
	Model    string `yaml:"model,omitempty"`
}

type SessionConfig struct {
	// TTL is the idle lifetime of a conversation session, e.g. "30m".
	TTL string `yaml:"ttl,omitempty"`
	// SweepEvery is the cron spec for the expiry sweeper.
	SweepEvery string `yaml:"sweep_every,omitempty"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file,omitempty"`
}

func DefaultConfig() *Config {
	return &Config{
		Port:     8787,
		Database: filepath.Join(ConfigDir(), "onboard.db"),
		AI: AIConfig{
			Provider: "rules",
			Model:    "meta-llama/Meta-Llama-3.1-8B-Instruct-Turbo",
		},
		Session: SessionConfig{
			TTL:        "30m",
			SweepEvery: "@every 1m",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

func ConfigDir() string {
	exeDir := getExecutableDir()
	return filepath.Join(exeDir, ".onboard")
}

func ConfigPath() string {
	exeDir := getExecutableDir()
	return filepath.Join(exeDir, ".onboard.yaml")
}

func Load() (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(ConfigPath())
	if err != nil {
		if os.IsNotExist(err) {
			cfg.ApplyEnv()
			return cfg, nil
		}
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	cfg.ApplyEnv()
	return cfg, nil
}

// ApplyEnv lets API keys come from the environment so they never
// have to live in the config file. Called again after flag overrides
// since the provider choice decides which variable applies.
func (c *Config) ApplyEnv() {
	if c.AI.APIKey == "" {
		switch c.AI.Provider {
		case "anthropic":
			c.AI.APIKey = os.Getenv("ANTHROPIC_API_KEY")
		default:
			c.AI.APIKey = os.Getenv("OPENAI_API_KEY")
		}
	}
}

func (c *Config) Save() error {
	dir := ConfigDir()
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}

	return os.WriteFile(ConfigPath(), data, 0600)
}
