// Package speech converts between voice audio and text using the OpenAI
// audio endpoints.
package speech

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/otarik/minerva/pkg/retry"
	"github.com/rs/zerolog"
)

const (
	transcribeModel = openai.AudioModelWhisper1
	speakModel      = openai.SpeechModelTTS1
	speakVoice      = openai.AudioSpeechNewParamsVoiceAlloy
)

// Config holds speech configuration.
type Config struct {
	APIKey string
	Retry  *retry.Executor
	Logger zerolog.Logger
}

// Converter transcribes incoming voice messages and synthesizes spoken
// replies.
type Converter struct {
	client openai.Client
	retry  *retry.Executor
	logger zerolog.Logger
}

// New creates a converter.
func New(cfg Config) (*Converter, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("api key is required")
	}
	if cfg.Retry == nil {
		return nil, fmt.Errorf("retry executor is required")
	}
	return &Converter{
		client: openai.NewClient(option.WithAPIKey(cfg.APIKey)),
		retry:  cfg.Retry,
		logger: cfg.Logger.With().Str("component", "speech").Logger(),
	}, nil
}

// Transcribe converts voice audio into text. The filename hints the
// container format to the API; Telegram voice notes arrive as .oga.
func (c *Converter) Transcribe(ctx context.Context, audio io.Reader, filename string) (string, error) {
	// The caller's reader is one-shot; buffer it so a retried attempt
	// uploads the full payload again.
	data, err := io.ReadAll(audio)
	if err != nil {
		return "", fmt.Errorf("failed to read audio: %w", err)
	}

	transcription, err := retry.Do1(ctx, c.retry, func(ctx context.Context) (*openai.Transcription, error) {
		t, err := c.client.Audio.Transcriptions.New(ctx, openai.AudioTranscriptionNewParams{
			Model: transcribeModel,
			File:  openai.File(bytes.NewReader(data), filename, "audio/ogg"),
		})
		if err != nil {
			return nil, retry.FromOpenAI(err)
		}
		return t, nil
	})
	if err != nil {
		return "", fmt.Errorf("failed to transcribe audio: %w", err)
	}

	c.logger.Debug().Int("chars", len(transcription.Text)).Msg("Voice message transcribed")
	return transcription.Text, nil
}

// Speak synthesizes text into Opus audio suitable for a Telegram voice
// reply.
func (c *Converter) Speak(ctx context.Context, text string) ([]byte, error) {
	audio, err := retry.Do1(ctx, c.retry, func(ctx context.Context) ([]byte, error) {
		resp, err := c.client.Audio.Speech.New(ctx, openai.AudioSpeechNewParams{
			Model:          speakModel,
			Voice:          speakVoice,
			Input:          text,
			ResponseFormat: openai.AudioSpeechNewParamsResponseFormatOpus,
		})
		if err != nil {
			return nil, retry.FromOpenAI(err)
		}
		defer resp.Body.Close()

		var buf bytes.Buffer
		if _, err := io.Copy(&buf, resp.Body); err != nil {
			return nil, fmt.Errorf("failed to read audio response: %w", err)
		}
		return buf.Bytes(), nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to synthesize speech: %w", err)
	}

	c.logger.Debug().Int("bytes", len(audio)).Msg("Reply synthesized")
	return audio, nil
}
