package agent

import (
	"context"
	"fmt"

	"github.com/otarik/minerva/pkg/retry"
	"github.com/otarik/minerva/pkg/session"
	"github.com/otarik/minerva/pkg/tools"
	"github.com/rs/zerolog"
	"github.com/xeipuuv/gojsonschema"
)

const (
	// maxIterations bounds the select-execute-observe cycles per message.
	maxIterations = 3

	// apologyText is the user-visible answer for unrecoverable failures.
	apologyText = "Sorry, I couldn't process your message. Please try again."

	// correctionText is the re-prompt issued after a malformed tool call.
	correctionText = "Check your output and make sure it conforms!"

	defaultSystemPrompt = "You are a helpful assistant. Use the available tools when they help answer the question."
)

// Loop executes the bounded tool-selection state machine: the model picks
// a tool, the tool runs, the observation feeds the next thought, at most
// maxIterations times. A terminal tool's observation short-circuits the
// loop; hitting the cap forces a best-effort final answer.
type Loop struct {
	provider LLMProvider
	retry    *retry.Executor
	model    ModelConfig
	logger   zerolog.Logger
}

// Config holds loop configuration.
type Config struct {
	Provider LLMProvider
	Retry    *retry.Executor
	Model    ModelConfig
	Logger   zerolog.Logger
}

// NewLoop creates a loop.
func NewLoop(cfg Config) (*Loop, error) {
	if cfg.Provider == nil {
		return nil, fmt.Errorf("provider is required")
	}
	if cfg.Retry == nil {
		return nil, fmt.Errorf("retry executor is required")
	}
	if cfg.Model.Model == "" {
		cfg.Model = DefaultModelConfig()
	}
	return &Loop{
		provider: cfg.Provider,
		retry:    cfg.Retry,
		model:    cfg.Model,
		logger:   cfg.Logger.With().Str("component", "agent").Logger(),
	}, nil
}

// Run answers one user message. It never returns an error to deliver:
// unrecoverable failures become an apology Result with Failed set.
func (l *Loop) Run(ctx context.Context, params RunParams) Result {
	logger := l.logger.With().Str("conversation_id", params.ConversationID).Logger()

	systemPrompt := params.SystemPrompt
	if systemPrompt == "" {
		systemPrompt = defaultSystemPrompt
	}

	messages := buildMessages(params.History, params.Prompt)
	parseFailed := false

	for cycle := 0; cycle < maxIterations; cycle++ {
		resp, err := l.call(ctx, messages, params.Tools.All(), systemPrompt)
		if err != nil {
			logger.Error().Err(err).Int("cycle", cycle).Msg("Model call failed")
			return Result{Text: apologyText, Failed: err}
		}

		if len(resp.ToolCalls) == 0 {
			return Result{Text: resp.Content}
		}

		call := resp.ToolCalls[0]
		tool, query, perr := l.parseCall(params.Tools, call)
		if perr != nil {
			if parseFailed {
				logger.Warn().Err(perr).Msg("Second consecutive malformed tool call")
				return Result{Text: apologyText, Failed: perr}
			}
			parseFailed = true
			logger.Debug().Err(perr).Str("tool", call.Name).Msg("Malformed tool call, re-prompting")
			messages = append(messages, Message{Role: "user", Content: correctionText})
			continue
		}
		parseFailed = false

		observation := tool.Invoke(ctx, query)

		// Terminal tool output is the deliverable, returned verbatim.
		if tool.Terminal {
			return Result{
				Text:     observation.Text,
				ImageURL: observation.ImageURL,
				Failed:   observation.Err,
			}
		}

		logger.Debug().
			Str("tool", tool.Name).
			Bool("failed", observation.Failed()).
			Msg("Tool executed")

		messages = append(messages, Message{
			Role:      "assistant",
			Content:   resp.Content,
			ToolCalls: []ToolCall{call},
		})
		messages = append(messages, Message{
			Role:       "tool",
			Content:    observationText(observation),
			ToolCallID: call.ID,
		})
	}

	// Cycle cap reached: force a best-effort answer from what we have.
	messages = append(messages, Message{
		Role:    "user",
		Content: "Give your best final answer now using the information gathered above.",
	})
	resp, err := l.call(ctx, messages, nil, systemPrompt)
	if err != nil {
		logger.Error().Err(err).Msg("Forced finalization failed")
		return Result{Text: apologyText, Failed: err}
	}
	return Result{Text: resp.Content}
}

// call runs one provider call through the retry executor.
func (l *Loop) call(ctx context.Context, messages []Message, toolset []tools.Tool, systemPrompt string) (*Response, error) {
	return retry.Do1(ctx, l.retry, func(ctx context.Context) (*Response, error) {
		return l.provider.Call(ctx, Request{
			Model:        l.model.Model,
			Messages:     messages,
			Tools:        toolset,
			Temperature:  l.model.Temperature,
			MaxTokens:    l.model.MaxTokens,
			SystemPrompt: systemPrompt,
		})
	})
}

// parseCall resolves a tool call and validates its arguments against the
// tool's schema.
func (l *Loop) parseCall(set *tools.Set, call ToolCall) (tools.Tool, string, error) {
	tool, ok := set.Get(call.Name)
	if !ok {
		return tools.Tool{}, "", fmt.Errorf("unknown tool %q", call.Name)
	}

	if call.Parameters == nil {
		return tools.Tool{}, "", fmt.Errorf("tool %q called without arguments", call.Name)
	}

	result, err := gojsonschema.Validate(
		gojsonschema.NewGoLoader(tool.Schema()),
		gojsonschema.NewGoLoader(call.Parameters),
	)
	if err != nil {
		return tools.Tool{}, "", fmt.Errorf("failed to validate tool arguments: %w", err)
	}
	if !result.Valid() {
		return tools.Tool{}, "", fmt.Errorf("tool %q arguments do not conform: %v", call.Name, result.Errors())
	}

	query, ok := call.Parameters[tool.Param].(string)
	if !ok {
		return tools.Tool{}, "", fmt.Errorf("tool %q missing %s argument", call.Name, tool.Param)
	}

	return tool, query, nil
}

// buildMessages converts the session transcript plus the new prompt into
// model messages.
func buildMessages(history []session.Turn, prompt string) []Message {
	messages := make([]Message, 0, len(history)+1)
	for _, turn := range history {
		role := "user"
		if turn.Speaker == session.SpeakerAgent {
			role = "assistant"
		}
		messages = append(messages, Message{Role: role, Content: turn.Text})
	}
	return append(messages, Message{Role: "user", Content: prompt})
}

func observationText(o tools.Observation) string {
	if o.ImageURL != "" {
		return o.ImageURL
	}
	if o.Text != "" {
		return o.Text
	}
	if o.Err != nil {
		return fmt.Sprintf("tool failed: %v", o.Err)
	}
	return "(no output)"
}
