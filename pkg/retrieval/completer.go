package retrieval

import (
	"context"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/otarik/minerva/pkg/retry"
)

// OpenAICompleter implements Completer on the chat completions API with
// temperature 0, matching the deterministic summarize/answer calls.
type OpenAICompleter struct {
	client openai.Client
	model  openai.ChatModel
	retry  *retry.Executor
}

// NewOpenAICompleter creates a completer for the given model.
func NewOpenAICompleter(client openai.Client, model string, exec *retry.Executor) *OpenAICompleter {
	return &OpenAICompleter{
		client: client,
		model:  openai.ChatModel(model),
		retry:  exec,
	}
}

// Complete runs one prompt through the model.
func (c *OpenAICompleter) Complete(ctx context.Context, prompt string) (string, error) {
	return retry.Do1(ctx, c.retry, func(ctx context.Context) (string, error) {
		resp, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
			Model: c.model,
			Messages: []openai.ChatCompletionMessageParamUnion{
				openai.UserMessage(prompt),
			},
		})
		if err != nil {
			return "", retry.FromOpenAI(err)
		}
		if len(resp.Choices) == 0 {
			return "", fmt.Errorf("no response choices returned")
		}
		return resp.Choices[0].Message.Content, nil
	})
}
