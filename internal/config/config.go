package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Model          string      `mapstructure:"model" yaml:"model"`
	Temperature    float32     `mapstructure:"temperature" yaml:"temperature"`
	MaxTokens      int         `mapstructure:"max_tokens" yaml:"max_tokens"`
	RequestTimeout string      `mapstructure:"request_timeout" yaml:"request_timeout"` // Go duration string, bounds one chat request
	BaseURL        string      `mapstructure:"base_url" yaml:"base_url"`               // Override the Copilot API endpoint
	Chat           ChatConfig  `mapstructure:"chat" yaml:"chat"`
	Theme          ThemeConfig `mapstructure:"theme" yaml:"theme"`
}

// ChatConfig configures the interactive chat command.
type ChatConfig struct {
	SystemMessage string `mapstructure:"system_message" yaml:"system_message"` // Custom system prompt for chat
}

// ThemeConfig allows customization of UI colors.
// Colors can be ANSI color numbers (0-255) or hex codes (#RRGGBB).
type ThemeConfig struct {
	Primary string `mapstructure:"primary" yaml:"primary"` // main accent (commands, highlights)
	Error   string `mapstructure:"error" yaml:"error"`     // error states
	Warning string `mapstructure:"warning" yaml:"warning"` // warnings
	Muted   string `mapstructure:"muted" yaml:"muted"`     // dimmed text
}

// Dir returns the directory holding config.yaml and auth.json.
func Dir() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to locate config directory: %w", err)
	}
	return filepath.Join(base, "th"), nil
}

// Load reads configuration from $XDG_CONFIG_HOME/th/config.yaml, applying
// defaults for anything unset. A missing config file is not an error.
func Load() (*Config, error) {
	dir, err := Dir()
	if err != nil {
		return nil, err
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(dir)

	v.SetDefault("model", "gpt-4o")
	v.SetDefault("temperature", 0.2)
	v.SetDefault("max_tokens", 4096)
	v.SetDefault("request_timeout", "10m")
	v.SetDefault("base_url", "")
	v.SetDefault("chat.system_message", "")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.Model = expandEnv(cfg.Model)
	cfg.BaseURL = expandEnv(cfg.BaseURL)

	return &cfg, nil
}

// RequestTimeoutDuration parses the configured request timeout, falling back
// to ten minutes when unset or malformed.
func (c *Config) RequestTimeoutDuration() time.Duration {
	if c.RequestTimeout == "" {
		return 10 * time.Minute
	}
	d, err := time.ParseDuration(c.RequestTimeout)
	if err != nil || d <= 0 {
		return 10 * time.Minute
	}
	return d
}

// expandEnv expands ${VAR} and $VAR references in config values.
func expandEnv(s string) string {
	if !strings.Contains(s, "$") {
		return s
	}
	return os.ExpandEnv(s)
}
