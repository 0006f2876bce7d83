package retrieval

import "strings"

// ChunkSize is the fixed chunk length in characters. Chunks do not
// overlap.
const ChunkSize = 500

// splitText cuts text into non-overlapping spans of at most ChunkSize
// runes. Surrounding whitespace is trimmed from the input and from each
// chunk; empty input yields nil.
func splitText(text string) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	runes := []rune(text)
	var chunks []string

	for len(runes) > 0 {
		n := ChunkSize
		if n > len(runes) {
			n = len(runes)
		}
		chunk := strings.TrimSpace(string(runes[:n]))
		if chunk != "" {
			chunks = append(chunks, chunk)
		}
		runes = runes[n:]
	}

	return chunks
}
