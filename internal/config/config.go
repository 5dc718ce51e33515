// Package config loads and saves the clawdeck configuration.
// Config lives at ~/.clawdeck/clawdeck.yaml; state (auth database, cached
// history, device identity) lives under the same directory.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/goccy/go-yaml"
)

// Config is the top-level clawdeck configuration.
type Config struct {
	Gateway GatewayConfig `yaml:"gateway"`
	Chat    ChatConfig    `yaml:"chat"`
}

// GatewayConfig describes the gateway endpoint and credential.
type GatewayConfig struct {
	URL   string `yaml:"url"`
	Token string `yaml:"token,omitempty"`
}

// ChatConfig describes the conversation defaults.
type ChatConfig struct {
	SessionKey string `yaml:"sessionKey"`
	Thinking   string `yaml:"thinking"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Gateway: GatewayConfig{
			URL: "ws://127.0.0.1:18789",
		},
		Chat: ChatConfig{
			SessionKey: "main",
			Thinking:   "low",
		},
	}
}

// Dir returns the clawdeck config directory (~/.clawdeck).
func Dir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".clawdeck"
	}
	return filepath.Join(home, ".clawdeck")
}

// StateDir returns the directory for mutable state (auth database, caches).
func StateDir() string {
	return filepath.Join(Dir(), "state")
}

// Path returns the path to the config file, honoring the CLAWDECK_CONFIG
// override.
func Path() string {
	if envPath := os.Getenv("CLAWDECK_CONFIG"); envPath != "" {
		return envPath
	}
	return filepath.Join(Dir(), "clawdeck.yaml")
}

// Load reads and parses the config. A missing file yields defaults.
func Load() (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(Path())
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			applyEnvOverrides(cfg)
			return cfg, nil
		}
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", Path(), err)
	}

	applyEnvOverrides(cfg)
	return cfg, nil
}

// Save writes the config to disk. The file holds the gateway token, so it is
// not group/world readable.
func Save(cfg *Config) error {
	path := Path()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	if v := strings.TrimSpace(os.Getenv("CLAWDECK_GATEWAY_URL")); v != "" {
		cfg.Gateway.URL = v
	}
	if v := strings.TrimSpace(os.Getenv("CLAWDECK_GATEWAY_TOKEN")); v != "" {
		cfg.Gateway.Token = v
	}
	if v := strings.TrimSpace(os.Getenv("CLAWDECK_SESSION")); v != "" {
		cfg.Chat.SessionKey = v
	}
}
