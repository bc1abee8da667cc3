// Package config provides application configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Config holds all application configuration.
type Config struct {
	Port        string
	FrontendURL string
	DBPath      string

	// Agent CLI settings.
	CLIPath           string
	Model             string
	WorkDir           string
	SystemPrompt      string
	PermissionMode    string
	AllowedTools      []string
	MaxThinkingTokens int
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		Port:              getEnv("PORT", "8080"),
		FrontendURL:       getEnv("FRONTEND_URL", ""),
		DBPath:            getEnv("DB_PATH", "./data/runner.db"),
		CLIPath:           getEnv("AGENT_CLI_PATH", "claude"),
		Model:             getEnv("AGENT_MODEL", ""),
		WorkDir:           getEnv("AGENT_WORKDIR", ""),
		SystemPrompt:      getEnv("AGENT_SYSTEM_PROMPT", ""),
		PermissionMode:    getEnv("AGENT_PERMISSION_MODE", ""),
		AllowedTools:      getEnvList("AGENT_ALLOWED_TOOLS"),
		MaxThinkingTokens: getEnvInt("AGENT_MAX_THINKING_TOKENS", 0),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	if c.DBPath == "" {
		return fmt.Errorf("DB_PATH cannot be empty")
	}
	if c.CLIPath == "" {
		return fmt.Errorf("AGENT_CLI_PATH cannot be empty")
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.FrontendURL == "" ||
		strings.Contains(c.FrontendURL, "localhost") ||
		strings.Contains(c.FrontendURL, "127.0.0.1")
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func getEnvList(key string) []string {
	value, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(value) == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
