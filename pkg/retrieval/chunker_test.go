package retrieval

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitText_FixedSizeNoOverlap(t *testing.T) {
	text := strings.Repeat("a", 1200)
	chunks := splitText(text)

	require.Len(t, chunks, 3)
	assert.Len(t, chunks[0], ChunkSize)
	assert.Len(t, chunks[1], ChunkSize)
	assert.Len(t, chunks[2], 200)

	// No overlap: concatenation reproduces the input
	assert.Equal(t, text, strings.Join(chunks, ""))
}

func TestSplitText_ShortInput(t *testing.T) {
	chunks := splitText("hello world")
	require.Len(t, chunks, 1)
	assert.Equal(t, "hello world", chunks[0])
}

func TestSplitText_Empty(t *testing.T) {
	assert.Nil(t, splitText(""))
	assert.Nil(t, splitText("   \n\t  "))
}

func TestSplitText_CountsRunesNotBytes(t *testing.T) {
	text := strings.Repeat("é", 600)
	chunks := splitText(text)

	require.Len(t, chunks, 2)
	assert.Equal(t, ChunkSize, len([]rune(chunks[0])))
}
