package tools

import (
	"context"
	"errors"

	"github.com/otarik/minerva/pkg/retrieval"
	"github.com/rs/zerolog"
)

// DocumentSearcher answers questions against one owner's document
// collection. Implemented by *retrieval.Store.
type DocumentSearcher interface {
	Query(ctx context.Context, ownerID, question string) (retrieval.Answer, error)
}

// NewDocumentSearch returns the personal-document retrieval tool bound to
// one owner's collection.
func NewDocumentSearch(store DocumentSearcher, ownerID string, logger zerolog.Logger) Tool {
	log := logger.With().Str("tool", "search_documents").Str("owner_id", ownerID).Logger()

	return Tool{
		Name:        "search_documents",
		Description: "Search the user's personal documents database",
		Param:       "query",
		Invoke: func(ctx context.Context, query string) Observation {
			answer, err := store.Query(ctx, ownerID, query)
			if err != nil {
				if errors.Is(err, retrieval.ErrNoResults) {
					return ErrorObservation("No matching documents found.", err)
				}
				log.Error().Err(err).Msg("Document search failed")
				return ErrorObservation("Error searching user documents.", err)
			}

			text := answer.Text
			if answer.Sources != "" {
				text += "\nSources: " + answer.Sources
			}
			return TextObservation(text)
		},
	}
}
