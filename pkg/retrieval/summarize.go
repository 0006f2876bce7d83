package retrieval

import (
	"context"
	"fmt"
	"strings"
)

// summaryPrompt is the fixed template used for both the map and reduce
// passes.
const summaryPrompt = "Write a concise summary of the following text, use simple language and bullet points:\n\n%s\n\nSUMMARY:"

// groupSize is the maximum combined character length of chunks summarized
// together in one map call.
const groupSize = 2000

// Summarize produces a map-reduce summary: chunk groups are summarized
// independently with the fixed prompt, then the partial summaries are
// combined with the same prompt. Returns ErrNoContent for an empty chunk
// list.
func (s *Store) Summarize(ctx context.Context, chunks []Chunk) (string, error) {
	if len(chunks) == 0 {
		return "", ErrNoContent
	}

	groups := groupChunks(chunks)

	partials := make([]string, 0, len(groups))
	for _, group := range groups {
		partial, err := s.completer.Complete(ctx, fmt.Sprintf(summaryPrompt, group))
		if err != nil {
			return "", fmt.Errorf("failed to summarize chunk group: %w", err)
		}
		partials = append(partials, partial)
	}

	if len(partials) == 1 {
		return strings.TrimSpace(partials[0]), nil
	}

	combined, err := s.completer.Complete(ctx, fmt.Sprintf(summaryPrompt, strings.Join(partials, "\n\n")))
	if err != nil {
		return "", fmt.Errorf("failed to combine summaries: %w", err)
	}

	return strings.TrimSpace(combined), nil
}

// groupChunks concatenates adjacent chunks up to groupSize characters per
// group to bound the number of map calls.
func groupChunks(chunks []Chunk) []string {
	var groups []string
	var current strings.Builder

	for _, chunk := range chunks {
		if current.Len() > 0 && current.Len()+len(chunk.Content) > groupSize {
			groups = append(groups, current.String())
			current.Reset()
		}
		if current.Len() > 0 {
			current.WriteString("\n")
		}
		current.WriteString(chunk.Content)
	}
	if current.Len() > 0 {
		groups = append(groups, current.String())
	}

	return groups
}
