package speech

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/otarik/minerva/pkg/retry"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// transcriptionServer fails the first rateLimited requests with 429, then
// answers with a fixed transcript. It records the uploaded file size per
// attempt.
type transcriptionServer struct {
	rateLimited int
	requests    int
	fileSizes   []int64
}

func (s *transcriptionServer) handle(w http.ResponseWriter, r *http.Request) {
	s.requests++

	if err := r.ParseMultipartForm(1 << 20); err == nil {
		if files := r.MultipartForm.File["file"]; len(files) > 0 {
			s.fileSizes = append(s.fileSizes, files[0].Size)
		}
	}

	if s.requests <= s.rateLimited {
		w.Header().Set("Retry-After", "1")
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error": {"message": "rate limited", "type": "rate_limit_error"}}`))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"text": "hello"}`))
}

func createTestConverter(t *testing.T, baseURL string) *Converter {
	t.Helper()
	return &Converter{
		client: openai.NewClient(
			option.WithAPIKey("test-key"),
			option.WithBaseURL(baseURL),
			option.WithMaxRetries(0),
		),
		retry: retry.New(retry.Config{
			Sleeper: func(context.Context, time.Duration) error { return nil },
			Logger:  zerolog.New(nil).Level(zerolog.Disabled),
		}),
		logger: zerolog.New(nil).Level(zerolog.Disabled),
	}
}

func TestTranscribe(t *testing.T) {
	backend := &transcriptionServer{}
	server := httptest.NewServer(http.HandlerFunc(backend.handle))
	defer server.Close()

	converter := createTestConverter(t, server.URL)

	text, err := converter.Transcribe(context.Background(), strings.NewReader("opus audio bytes"), "voice.oga")

	require.NoError(t, err)
	assert.Equal(t, "hello", text)
	assert.Equal(t, 1, backend.requests)
}

func TestTranscribe_RetriedAttemptResendsFullAudio(t *testing.T) {
	backend := &transcriptionServer{rateLimited: 2}
	server := httptest.NewServer(http.HandlerFunc(backend.handle))
	defer server.Close()

	converter := createTestConverter(t, server.URL)
	audio := "opus audio bytes, thirty-two b"

	text, err := converter.Transcribe(context.Background(), strings.NewReader(audio), "voice.oga")

	require.NoError(t, err)
	assert.Equal(t, "hello", text)
	require.Equal(t, 3, backend.requests)

	require.Len(t, backend.fileSizes, 3)
	for i, size := range backend.fileSizes {
		assert.Equal(t, int64(len(audio)), size, "attempt %d uploaded a truncated file", i+1)
	}
}

func TestTranscribe_UnreadableAudio(t *testing.T) {
	backend := &transcriptionServer{}
	server := httptest.NewServer(http.HandlerFunc(backend.handle))
	defer server.Close()

	converter := createTestConverter(t, server.URL)

	_, err := converter.Transcribe(context.Background(), &failingReader{}, "voice.oga")

	assert.Error(t, err)
	assert.Equal(t, 0, backend.requests, "nothing should be uploaded when the audio cannot be read")
}

type failingReader struct{}

func (*failingReader) Read([]byte) (int, error) { return 0, io.ErrUnexpectedEOF }
