// Package config defines and loads the Minerva configuration.
package config

import (
	"fmt"

	"github.com/otarik/minerva/pkg/agent"
)

// Config represents the main Minerva configuration.
type Config struct {
	// Telegram
	Telegram TelegramConfig `json:"telegram" mapstructure:"telegram"`

	// Model provider
	Provider ProviderConfig `json:"provider" mapstructure:"provider"`

	// Model call parameters
	Model agent.ModelConfig `json:"model" mapstructure:"model"`

	// External tool credentials
	Tools ToolsConfig `json:"tools" mapstructure:"tools"`

	// Logging
	Logging LoggingConfig `json:"logging" mapstructure:"logging"`

	// Data directory
	DataDir string `json:"data_dir" mapstructure:"data_dir"`
}

// TelegramConfig holds Telegram bot configuration.
type TelegramConfig struct {
	BotToken  string  `json:"bot_token" mapstructure:"bot_token"`
	Allowlist []int64 `json:"allowlist" mapstructure:"allowlist"`
}

// ProviderConfig selects and authenticates the model provider.
type ProviderConfig struct {
	Name         string `json:"name" mapstructure:"name"` // openai, anthropic
	OpenAIKey    string `json:"openai_key" mapstructure:"openai_key"`
	AnthropicKey string `json:"anthropic_key" mapstructure:"anthropic_key"`
}

// ToolsConfig holds credentials for the external search tools.
type ToolsConfig struct {
	GoogleAPIKey string `json:"google_api_key" mapstructure:"google_api_key"`
	GoogleCSEID  string `json:"google_cse_id" mapstructure:"google_cse_id"`
	WolframAppID string `json:"wolfram_app_id" mapstructure:"wolfram_app_id"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level   string `json:"level" mapstructure:"level"`
	File    string `json:"file" mapstructure:"file"`
	Console bool   `json:"console" mapstructure:"console"`
	Pretty  bool   `json:"pretty" mapstructure:"pretty"`
}

// DefaultConfig returns a config with sensible defaults. Credentials are
// left empty and must come from the file or environment.
func DefaultConfig() *Config {
	return &Config{
		Provider: ProviderConfig{Name: "openai"},
		Model:    agent.DefaultModelConfig(),
		Logging: LoggingConfig{
			Level:   "info",
			Console: true,
			Pretty:  true,
		},
	}
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if c.Telegram.BotToken == "" {
		return fmt.Errorf("telegram bot token is required")
	}
	switch c.Provider.Name {
	case "openai":
		if c.Provider.OpenAIKey == "" {
			return fmt.Errorf("openai api key is required")
		}
	case "anthropic":
		if c.Provider.AnthropicKey == "" {
			return fmt.Errorf("anthropic api key is required")
		}
		if c.Provider.OpenAIKey == "" {
			// Embeddings, speech and image generation always go through
			// OpenAI regardless of the chat provider.
			return fmt.Errorf("openai api key is required for embeddings and media")
		}
	default:
		return fmt.Errorf("unsupported provider: %s", c.Provider.Name)
	}
	return nil
}
