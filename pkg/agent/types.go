// Package agent runs the bounded tool-selection loop that turns one user
// message into one final answer.
package agent

import (
	"github.com/otarik/minerva/pkg/session"
	"github.com/otarik/minerva/pkg/tools"
)

// Message is one entry in the model conversation.
type Message struct {
	Role       string     `json:"role"` // system, user, assistant, tool
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
}

// ToolCall is a structured tool invocation chosen by the model.
type ToolCall struct {
	ID         string                 `json:"id"`
	Name       string                 `json:"name"`
	Parameters map[string]interface{} `json:"parameters"`
}

// RunParams contains input for one loop execution.
type RunParams struct {
	ConversationID string
	Prompt         string
	History        []session.Turn
	SystemPrompt   string
	Tools          *tools.Set
}

// Result is the final answer of one loop execution. Failed carries the
// underlying cause when Text is an apology; the user-facing fields are
// always safe to deliver.
type Result struct {
	Text     string
	ImageURL string
	Failed   error
}

// ModelConfig configures the model calls the loop makes.
type ModelConfig struct {
	Model       string  `json:"model" mapstructure:"model"`
	Temperature float64 `json:"temperature" mapstructure:"temperature"`
	MaxTokens   int     `json:"max_tokens" mapstructure:"max_tokens"`
}

// DefaultModelConfig returns the default model configuration.
func DefaultModelConfig() ModelConfig {
	return ModelConfig{
		Model:       "gpt-4o-mini",
		Temperature: 0,
		MaxTokens:   1024,
	}
}
