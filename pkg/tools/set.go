package tools

import (
	"github.com/openai/openai-go"
	"github.com/otarik/minerva/pkg/retry"
	"github.com/rs/zerolog"
)

// Config holds everything needed to build the capability set for one
// conversation.
type Config struct {
	OpenAI  openai.Client
	Google  GoogleConfig
	Wolfram string // WolframAlpha app id
	Store   DocumentSearcher
	OwnerID string
	Retry   *retry.Executor
	Logger  zerolog.Logger
}

// NewSet builds the fixed tool set bound to one conversation's document
// collection: arithmetic, image generation, three external search tools,
// and personal-document search.
func NewSet(cfg Config) *Set {
	return NewSetFromTools(
		NewCalculator(),
		NewImageGenerator(cfg.OpenAI, cfg.Retry, cfg.Logger),
		NewWikipedia(cfg.Retry, cfg.Logger),
		NewWebSearch(cfg.Google, cfg.Retry, cfg.Logger),
		NewWolframAlpha(cfg.Wolfram, cfg.Retry, cfg.Logger),
		NewDocumentSearch(cfg.Store, cfg.OwnerID, cfg.Logger),
	)
}
