package app

import (
	"errors"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

type Config struct {
	BaseURL     string `yaml:"base_url"`
	APIToken    string `yaml:"api_token"`
	DefaultMode string `yaml:"mode"`
	Streaming   bool   `yaml:"streaming"`
	DataDir     string `yaml:"data_dir"`
	LogFile     string `yaml:"log_file"`
}

func DefaultConfig() Config {
	return Config{
		BaseURL:     "http://localhost:8090",
		DefaultMode: string(ModeAssist),
		Streaming:   true,
	}
}

func DefaultConfigPath() string {
	if base := strings.TrimSpace(os.Getenv("XDG_CONFIG_HOME")); base != "" {
		return filepath.Join(base, "maxctl", "config.yaml")
	}
	if home, err := os.UserHomeDir(); err == nil && home != "" {
		return filepath.Join(home, ".config", "maxctl", "config.yaml")
	}
	return filepath.Join(os.TempDir(), "maxctl", "config.yaml")
}

// DefaultDataDir returns the root for persisted state (session cache blob,
// transcript archive, TUI log file).
func DefaultDataDir() string {
	if base := strings.TrimSpace(os.Getenv("XDG_DATA_HOME")); base != "" {
		return filepath.Join(base, "maxctl")
	}
	if home, err := os.UserHomeDir(); err == nil && home != "" {
		return filepath.Join(home, ".local", "share", "maxctl")
	}
	return filepath.Join(os.TempDir(), "maxctl")
}

// LoadConfig reads the YAML config at path, falling back to defaults when the
// file does not exist. Environment variables override file values.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	if path == "" {
		path = DefaultConfigPath()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return cfg, err
		}
	} else if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}

	if v := strings.TrimSpace(os.Getenv("MAX_BASE_URL")); v != "" {
		cfg.BaseURL = v
	}
	if v := strings.TrimSpace(os.Getenv("MAX_API_TOKEN")); v != "" {
		cfg.APIToken = v
	}
	if v := strings.TrimSpace(os.Getenv("MAX_MODE")); v != "" {
		cfg.DefaultMode = v
	}

	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultConfig().BaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if _, ok := ParseMode(cfg.DefaultMode); !ok {
		cfg.DefaultMode = string(ModeAssist)
	}
	if cfg.DataDir == "" {
		cfg.DataDir = DefaultDataDir()
	}
	return cfg, nil
}

func SaveConfig(cfg Config, path string) error {
	if path == "" {
		path = DefaultConfigPath()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
