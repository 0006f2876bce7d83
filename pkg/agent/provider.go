package agent

import (
	"context"
	"fmt"

	"github.com/otarik/minerva/pkg/tools"
)

// LLMProvider is an interface for conversational model APIs. Rate-limit
// responses are returned as *retry.RateLimitError so the loop's executor
// can retry them.
type LLMProvider interface {
	// Call makes one model API call.
	Call(ctx context.Context, request Request) (*Response, error)

	// Provider returns the provider name.
	Provider() string
}

// Request contains the parameters for one model call.
type Request struct {
	Model        string
	Messages     []Message
	Tools        []tools.Tool
	Temperature  float64
	MaxTokens    int
	SystemPrompt string
}

// Response contains the model's reply: either text, a tool invocation,
// or both.
type Response struct {
	Content   string
	ToolCalls []ToolCall
}

// NewProvider creates a provider by name.
func NewProvider(name, apiKey string) (LLMProvider, error) {
	switch name {
	case "openai":
		return NewOpenAIProvider(apiKey), nil
	case "anthropic":
		return NewAnthropicProvider(apiKey), nil
	default:
		return nil, fmt.Errorf("unsupported provider: %s", name)
	}
}
