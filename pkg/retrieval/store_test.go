package retrieval

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockEmbedder maps words into hash buckets so related texts land near
// each other without calling any API.
type mockEmbedder struct {
	dim int
}

func (m *mockEmbedder) Dimension() int { return m.dim }

func (m *mockEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		vec := make([]float32, m.dim)
		for _, word := range strings.Fields(strings.ToLower(text)) {
			h := fnv.New32a()
			h.Write([]byte(strings.Trim(word, ".,?!")))
			vec[h.Sum32()%uint32(m.dim)]++
		}
		var norm float64
		for _, v := range vec {
			norm += float64(v * v)
		}
		if norm > 0 {
			norm = math.Sqrt(norm)
			for j := range vec {
				vec[j] = float32(float64(vec[j]) / norm)
			}
		}
		out[i] = vec
	}
	return out, nil
}

// mockCompleter records prompts and returns a canned completion.
type mockCompleter struct {
	prompts []string
	reply   string
	err     error
}

func (m *mockCompleter) Complete(_ context.Context, prompt string) (string, error) {
	m.prompts = append(m.prompts, prompt)
	if m.err != nil {
		return "", m.err
	}
	if m.reply != "" {
		return m.reply, nil
	}
	return "summary text", nil
}

func createTestStore(t *testing.T) (*Store, *mockCompleter) {
	dir := t.TempDir()
	completer := &mockCompleter{}

	s, err := NewStore(Config{
		DBPath:    filepath.Join(dir, "index.db"),
		Embedder:  &mockEmbedder{dim: 64},
		Completer: completer,
		Logger:    zerolog.New(nil).Level(zerolog.Disabled),
	})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	return s, completer
}

func writeTestDocument(t *testing.T, name, content string) string {
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestStore_IngestAndQuery(t *testing.T) {
	s, completer := createTestStore(t)
	ctx := context.Background()

	path := writeTestDocument(t, "facts.txt",
		"The capital of France is Paris. It is known for the Eiffel Tower and fine cuisine.")

	completer.reply = "The capital of France is Paris."
	summary, err := s.IngestDocument(ctx, "user-1", path)
	require.NoError(t, err)
	assert.NotEmpty(t, summary)

	answer, err := s.Query(ctx, "user-1", "What is the capital of France?")
	require.NoError(t, err)
	assert.Contains(t, answer.Text, "Paris")
	assert.Contains(t, answer.Sources, "facts.txt")

	// The answering prompt carries the retrieved extract
	last := completer.prompts[len(completer.prompts)-1]
	assert.Contains(t, last, "capital of France")
}

func TestStore_QueryEmptyCollection(t *testing.T) {
	s, _ := createTestStore(t)

	_, err := s.Query(context.Background(), "nobody", "anything?")
	assert.ErrorIs(t, err, ErrNoResults)
}

func TestStore_ClearIsIdempotent(t *testing.T) {
	s, _ := createTestStore(t)
	ctx := context.Background()

	path := writeTestDocument(t, "facts.txt", "The capital of France is Paris.")
	_, err := s.IngestDocument(ctx, "user-1", path)
	require.NoError(t, err)

	require.NoError(t, s.Clear(ctx, "user-1"))

	_, err = s.Query(ctx, "user-1", "What is the capital of France?")
	assert.ErrorIs(t, err, ErrNoResults)

	// Clearing again is not an error
	require.NoError(t, s.Clear(ctx, "user-1"))
}

func TestStore_OwnersAreIsolated(t *testing.T) {
	s, _ := createTestStore(t)
	ctx := context.Background()

	path := writeTestDocument(t, "facts.txt", "The capital of France is Paris.")
	_, err := s.IngestDocument(ctx, "user-1", path)
	require.NoError(t, err)

	_, err = s.Query(ctx, "user-2", "What is the capital of France?")
	assert.ErrorIs(t, err, ErrNoResults)
}

func TestStore_IngestEmptyDocument(t *testing.T) {
	s, _ := createTestStore(t)

	path := writeTestDocument(t, "empty.txt", "   \n  ")
	_, err := s.IngestDocument(context.Background(), "user-1", path)
	assert.ErrorIs(t, err, ErrNoContent)
}

func TestStore_IngestMissingFile(t *testing.T) {
	s, _ := createTestStore(t)

	_, err := s.IngestDocument(context.Background(), "user-1", "/nonexistent/file.txt")
	assert.Error(t, err)
}

func TestSummarize_EmptyChunkList(t *testing.T) {
	s, _ := createTestStore(t)

	_, err := s.Summarize(context.Background(), nil)
	assert.ErrorIs(t, err, ErrNoContent)
}

func TestSummarize_MapReduce(t *testing.T) {
	s, completer := createTestStore(t)

	// Three chunks that cannot fit one group force a map + reduce shape
	var chunks []Chunk
	for i := 0; i < 3; i++ {
		chunks = append(chunks, Chunk{
			ID:      fmt.Sprintf("c%d", i),
			Content: strings.Repeat("word ", 300),
		})
	}

	_, err := s.Summarize(context.Background(), chunks)
	require.NoError(t, err)

	// Two map calls plus one combine call, all using the fixed template
	require.GreaterOrEqual(t, len(completer.prompts), 2)
	for _, p := range completer.prompts {
		assert.Contains(t, p, "concise summary")
	}
}
