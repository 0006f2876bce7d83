package orchestrator

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/otarik/minerva/pkg/agent"
	"github.com/otarik/minerva/pkg/session"
	"github.com/otarik/minerva/pkg/tools"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAgent struct {
	result agent.Result
	params []agent.RunParams
}

func (f *fakeAgent) Run(_ context.Context, p agent.RunParams) agent.Result {
	f.params = append(f.params, p)
	return f.result
}

type fakeStore struct {
	urls      []string
	docs      []string
	clears    []string
	summary   string
	ingestErr error
}

func (f *fakeStore) IngestURL(_ context.Context, ownerID, pageURL string) (string, error) {
	f.urls = append(f.urls, ownerID+"|"+pageURL)
	return f.summary, f.ingestErr
}

func (f *fakeStore) IngestDocument(_ context.Context, ownerID, path string) (string, error) {
	f.docs = append(f.docs, ownerID+"|"+path)
	return f.summary, f.ingestErr
}

func (f *fakeStore) Clear(_ context.Context, ownerID string) error {
	f.clears = append(f.clears, ownerID)
	return nil
}

type fakeSpeech struct {
	transcript string
	audio      []byte
	speakErr   error
	spoken     []string
}

func (f *fakeSpeech) Transcribe(_ context.Context, _ io.Reader, _ string) (string, error) {
	return f.transcript, nil
}

func (f *fakeSpeech) Speak(_ context.Context, text string) ([]byte, error) {
	f.spoken = append(f.spoken, text)
	return f.audio, f.speakErr
}

type countingTyping struct {
	calls atomic.Int64
}

func (c *countingTyping) Typing(context.Context, string) error {
	c.calls.Add(1)
	return nil
}

func createTestOrchestrator(t *testing.T, ag Agent, store DocumentStore, speech SpeechConverter, typing TypingNotifier) (*Orchestrator, *session.Cache) {
	t.Helper()
	sessions := session.New(session.Config{})
	o, err := New(Config{
		Sessions: sessions,
		Agent:    ag,
		Store:    store,
		Speech:   speech,
		Typing:   typing,
		NewTools: func(string) *tools.Set { return tools.NewSetFromTools() },
		Logger:   zerolog.New(nil).Level(zerolog.Disabled),
	})
	require.NoError(t, err)
	return o, sessions
}

func TestAnswer_TextTurn(t *testing.T) {
	ag := &fakeAgent{result: agent.Result{Text: "Paris"}}
	o, sessions := createTestOrchestrator(t, ag, &fakeStore{}, nil, nil)

	reply, err := o.Answer(context.Background(), "42", Incoming{Text: "capital of France?"})

	require.NoError(t, err)
	assert.Equal(t, "Paris", reply.Text)
	assert.Nil(t, reply.Audio)

	history := sessions.History("42")
	require.Len(t, history, 2)
	assert.Equal(t, session.SpeakerHuman, history[0].Speaker)
	assert.Equal(t, "capital of France?", history[0].Text)
	assert.Equal(t, session.SpeakerAgent, history[1].Speaker)
	assert.Equal(t, "Paris", history[1].Text)
}

func TestAnswer_HistoryFlowsToAgent(t *testing.T) {
	ag := &fakeAgent{result: agent.Result{Text: "ok"}}
	o, sessions := createTestOrchestrator(t, ag, &fakeStore{}, nil, nil)

	sessions.Append("42",
		session.Turn{Speaker: session.SpeakerHuman, Text: "earlier question"},
		session.Turn{Speaker: session.SpeakerAgent, Text: "earlier answer"},
	)

	_, err := o.Answer(context.Background(), "42", Incoming{Text: "follow up"})

	require.NoError(t, err)
	require.Len(t, ag.params, 1)
	require.Len(t, ag.params[0].History, 2)
	assert.Equal(t, "earlier question", ag.params[0].History[0].Text)
}

func TestAnswer_BareURLSkipsAgent(t *testing.T) {
	ag := &fakeAgent{result: agent.Result{Text: "should not run"}}
	store := &fakeStore{summary: "* point one\n* point two"}
	o, sessions := createTestOrchestrator(t, ag, store, nil, nil)

	reply, err := o.Answer(context.Background(), "42", Incoming{Text: " https://example.com/article "})

	require.NoError(t, err)
	assert.Empty(t, ag.params, "agent must not run for a bare link")
	assert.Equal(t, []string{"42|https://example.com/article"}, store.urls)
	assert.Equal(t, "Summary of the web page:\n\n* point one\n* point two", reply.Text)

	history := sessions.History("42")
	require.Len(t, history, 2)
	assert.Equal(t, "https://example.com/article saved to my documents database.", history[1].Text)
}

func TestAnswer_URLInsideSentenceGoesToAgent(t *testing.T) {
	ag := &fakeAgent{result: agent.Result{Text: "summarized"}}
	store := &fakeStore{}
	o, _ := createTestOrchestrator(t, ag, store, nil, nil)

	_, err := o.Answer(context.Background(), "42", Incoming{Text: "what is https://example.com about?"})

	require.NoError(t, err)
	assert.Len(t, ag.params, 1)
	assert.Empty(t, store.urls)
}

func TestAnswer_URLIngestionFailure(t *testing.T) {
	store := &fakeStore{ingestErr: errors.New("unreachable")}
	o, sessions := createTestOrchestrator(t, &fakeAgent{}, store, nil, nil)

	_, err := o.Answer(context.Background(), "42", Incoming{Text: "https://example.com"})

	assert.Error(t, err)
	assert.Empty(t, sessions.History("42"), "failed ingestion must not record a turn")
}

func TestAnswer_VoiceRoundTrip(t *testing.T) {
	ag := &fakeAgent{result: agent.Result{Text: "spoken answer"}}
	speech := &fakeSpeech{transcript: "what time is it", audio: []byte{0x4f, 0x67}}
	o, sessions := createTestOrchestrator(t, ag, &fakeStore{}, speech, nil)

	reply, err := o.Answer(context.Background(), "42", Incoming{
		Voice:     strings.NewReader("opus bytes"),
		VoiceName: "voice.oga",
	})

	require.NoError(t, err)
	assert.Equal(t, "spoken answer", reply.Text)
	assert.Equal(t, []byte{0x4f, 0x67}, reply.Audio)
	assert.Equal(t, []string{"spoken answer"}, speech.spoken)

	require.Len(t, ag.params, 1)
	assert.Equal(t, "what time is it", ag.params[0].Prompt)

	history := sessions.History("42")
	require.Len(t, history, 2)
	assert.Equal(t, "what time is it", history[0].Text, "history records the transcript, not the audio")
}

func TestAnswer_SynthesisFailureFallsBackToText(t *testing.T) {
	ag := &fakeAgent{result: agent.Result{Text: "answer"}}
	speech := &fakeSpeech{transcript: "hi", speakErr: errors.New("tts down")}
	o, _ := createTestOrchestrator(t, ag, &fakeStore{}, speech, nil)

	reply, err := o.Answer(context.Background(), "42", Incoming{Voice: strings.NewReader("x")})

	require.NoError(t, err)
	assert.Equal(t, "answer", reply.Text)
	assert.Nil(t, reply.Audio)
}

func TestAnswer_TextTurnStaysSilent(t *testing.T) {
	ag := &fakeAgent{result: agent.Result{Text: "answer"}}
	speech := &fakeSpeech{audio: []byte{1}}
	o, _ := createTestOrchestrator(t, ag, &fakeStore{}, speech, nil)

	reply, err := o.Answer(context.Background(), "42", Incoming{Text: "hi"})

	require.NoError(t, err)
	assert.Nil(t, reply.Audio, "text in means text out")
	assert.Empty(t, speech.spoken)
}

func TestAnswer_EmptyMessage(t *testing.T) {
	o, _ := createTestOrchestrator(t, &fakeAgent{}, &fakeStore{}, nil, nil)

	_, err := o.Answer(context.Background(), "42", Incoming{Text: "   "})

	assert.Error(t, err)
}

func TestAnswer_TypingIndicatorFiresAndStops(t *testing.T) {
	typing := &countingTyping{}
	ag := &fakeAgent{result: agent.Result{Text: "ok"}}
	o, _ := createTestOrchestrator(t, ag, &fakeStore{}, nil, typing)

	_, err := o.Answer(context.Background(), "42", Incoming{Text: "hi"})
	require.NoError(t, err)

	after := typing.calls.Load()
	assert.GreaterOrEqual(t, after, int64(1))

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, after, typing.calls.Load(), "indicator must stop with the turn")
}

func TestSetRole_FlowsToAgent(t *testing.T) {
	ag := &fakeAgent{result: agent.Result{Text: "arr"}}
	o, _ := createTestOrchestrator(t, ag, &fakeStore{}, nil, nil)

	o.SetRole("42", "You are a pirate.")
	_, err := o.Answer(context.Background(), "42", Incoming{Text: "hi"})
	require.NoError(t, err)
	require.Len(t, ag.params, 1)
	assert.Equal(t, "You are a pirate.", ag.params[0].SystemPrompt)

	o.SetRole("42", "")
	_, err = o.Answer(context.Background(), "42", Incoming{Text: "hi again"})
	require.NoError(t, err)
	assert.Empty(t, ag.params[1].SystemPrompt)
}

func TestIngestDocument(t *testing.T) {
	store := &fakeStore{summary: "* summary"}
	o, sessions := createTestOrchestrator(t, &fakeAgent{}, store, nil, nil)

	reply, err := o.IngestDocument(context.Background(), "42", "/tmp/notes.txt", "notes.txt")

	require.NoError(t, err)
	assert.Equal(t, "Summary of the document:\n\n* summary", reply.Text)
	assert.Equal(t, []string{"42|/tmp/notes.txt"}, store.docs)

	history := sessions.History("42")
	require.Len(t, history, 2)
	assert.Equal(t, "notes.txt saved to my documents database.", history[1].Text)
}

func TestClearDocuments(t *testing.T) {
	store := &fakeStore{}
	o, _ := createTestOrchestrator(t, &fakeAgent{}, store, nil, nil)

	require.NoError(t, o.ClearDocuments(context.Background(), "42"))
	require.NoError(t, o.ClearDocuments(context.Background(), "42"))
	assert.Equal(t, []string{"42", "42"}, store.clears)
}
