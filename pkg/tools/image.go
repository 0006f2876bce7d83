package tools

import (
	"context"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/otarik/minerva/pkg/retry"
	"github.com/rs/zerolog"
)

// NewImageGenerator returns the image generation tool. It is terminal:
// the returned image reference is the deliverable and is sent to the user
// without further model interpretation.
func NewImageGenerator(client openai.Client, exec *retry.Executor, logger zerolog.Logger) Tool {
	log := logger.With().Str("tool", "generate_image").Logger()

	return Tool{
		Name:        "generate_image",
		Description: "Generate images from text",
		Param:       "prompt",
		Terminal:    true,
		Invoke: func(ctx context.Context, prompt string) Observation {
			imageURL, err := retry.Do1(ctx, exec, func(ctx context.Context) (string, error) {
				resp, err := client.Images.Generate(ctx, openai.ImageGenerateParams{
					Prompt: prompt,
					Model:  openai.ImageModelDallE2,
					N:      openai.Int(1),
					Size:   openai.ImageGenerateParamsSize256x256,
				})
				if err != nil {
					return "", retry.FromOpenAI(err)
				}
				if len(resp.Data) == 0 {
					return "", fmt.Errorf("no image returned")
				}
				return resp.Data[0].URL, nil
			})
			if err != nil {
				log.Error().Err(err).Msg("Image generation failed")
				return ErrorObservation("Sorry, I couldn't generate that image.", err)
			}

			return Observation{ImageURL: imageURL}
		},
	}
}
