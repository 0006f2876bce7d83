// Package orchestrator coordinates one conversation turn end to end:
// transcription, shortcut handling, the agent loop, session history, and
// reply synthesis.
package orchestrator

import (
	"context"
	"fmt"
	"io"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/otarik/minerva/pkg/agent"
	"github.com/otarik/minerva/pkg/session"
	"github.com/otarik/minerva/pkg/tools"
	"github.com/rs/zerolog"
)

// typingInterval is how often the typing indicator is refreshed while a
// turn is in flight. Telegram expires the indicator after about five
// seconds.
const typingInterval = 5 * time.Second

// bareURLPattern matches a message that is nothing but a single link.
var bareURLPattern = regexp.MustCompile(`^https?://\S+$`)

// Agent runs the tool-selection loop for one message.
type Agent interface {
	Run(ctx context.Context, params agent.RunParams) agent.Result
}

// SpeechConverter handles the voice legs of a turn.
type SpeechConverter interface {
	Transcribe(ctx context.Context, audio io.Reader, filename string) (string, error)
	Speak(ctx context.Context, text string) ([]byte, error)
}

// DocumentStore is the per-conversation document collection.
type DocumentStore interface {
	IngestURL(ctx context.Context, ownerID, pageURL string) (string, error)
	IngestDocument(ctx context.Context, ownerID, path string) (string, error)
	Clear(ctx context.Context, ownerID string) error
}

// TypingNotifier shows the remote party that a reply is being prepared.
// Notifications are best effort.
type TypingNotifier interface {
	Typing(ctx context.Context, conversationID string) error
}

// Incoming is one user message in whatever form it arrived.
type Incoming struct {
	Text      string
	Voice     io.Reader // non-nil for voice messages
	VoiceName string
}

// Reply is the outgoing answer. Audio is set only when the incoming
// message was voice.
type Reply struct {
	Text     string
	ImageURL string
	Audio    []byte
}

// Config holds orchestrator configuration.
type Config struct {
	Sessions *session.Cache
	Agent    Agent
	Store    DocumentStore
	Speech   SpeechConverter // optional, voice turns fail without it
	Typing   TypingNotifier  // optional
	// NewTools builds the capability set bound to one conversation's
	// document collection.
	NewTools func(conversationID string) *tools.Set
	Logger   zerolog.Logger
}

// Orchestrator serializes turns per conversation and routes each message
// through the right path.
type Orchestrator struct {
	sessions *session.Cache
	agent    Agent
	store    DocumentStore
	speech   SpeechConverter
	typing   TypingNotifier
	newTools func(conversationID string) *tools.Set
	logger   zerolog.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
	roles map[string]string
}

// New creates an orchestrator.
func New(cfg Config) (*Orchestrator, error) {
	if cfg.Sessions == nil {
		return nil, fmt.Errorf("session cache is required")
	}
	if cfg.Agent == nil {
		return nil, fmt.Errorf("agent is required")
	}
	if cfg.Store == nil {
		return nil, fmt.Errorf("document store is required")
	}
	if cfg.NewTools == nil {
		return nil, fmt.Errorf("tool factory is required")
	}
	return &Orchestrator{
		sessions: cfg.Sessions,
		agent:    cfg.Agent,
		store:    cfg.Store,
		speech:   cfg.Speech,
		typing:   cfg.Typing,
		newTools: cfg.NewTools,
		logger:   cfg.Logger.With().Str("component", "orchestrator").Logger(),
		locks:    make(map[string]*sync.Mutex),
		roles:    make(map[string]string),
	}, nil
}

// Answer processes one incoming message and produces the reply. Turns in
// the same conversation run one at a time; different conversations run
// concurrently.
func (o *Orchestrator) Answer(ctx context.Context, conversationID string, in Incoming) (Reply, error) {
	lock := o.conversationLock(conversationID)
	lock.Lock()
	defer lock.Unlock()

	logger := o.logger.With().
		Str("conversation_id", conversationID).
		Str("request_id", uuid.NewString()).
		Logger()

	stopTyping := o.keepTyping(ctx, conversationID)
	defer stopTyping()

	text := strings.TrimSpace(in.Text)
	isVoice := in.Voice != nil
	if isVoice {
		transcribed, err := o.transcribe(ctx, in)
		if err != nil {
			logger.Error().Err(err).Msg("Transcription failed")
			return Reply{}, err
		}
		text = strings.TrimSpace(transcribed)
		logger.Debug().Msg("Voice message transcribed")
	}
	if text == "" {
		return Reply{}, fmt.Errorf("empty message")
	}

	// A message that is just a link skips the agent and goes straight
	// into the document collection.
	if bareURLPattern.MatchString(text) {
		return o.ingestURL(ctx, logger, conversationID, text)
	}

	result := o.agent.Run(ctx, agent.RunParams{
		ConversationID: conversationID,
		Prompt:         text,
		History:        o.sessions.History(conversationID),
		SystemPrompt:   o.role(conversationID),
		Tools:          o.newTools(conversationID),
	})
	if result.Failed != nil {
		logger.Error().Err(result.Failed).Msg("Turn failed, delivering apology")
	}

	o.sessions.Append(conversationID,
		session.Turn{Speaker: session.SpeakerHuman, Text: text},
		session.Turn{Speaker: session.SpeakerAgent, Text: result.Text},
	)

	reply := Reply{Text: result.Text, ImageURL: result.ImageURL}
	if isVoice && o.speech != nil && reply.Text != "" {
		audio, err := o.speech.Speak(ctx, reply.Text)
		if err != nil {
			// Fall back to a text reply rather than failing the turn.
			logger.Warn().Err(err).Msg("Speech synthesis failed")
		} else {
			reply.Audio = audio
		}
	}

	logger.Info().Bool("voice", isVoice).Msg("Turn completed")
	return reply, nil
}

// IngestDocument adds an attached file to the conversation's document
// collection and returns the confirmation reply.
func (o *Orchestrator) IngestDocument(ctx context.Context, conversationID, path, name string) (Reply, error) {
	lock := o.conversationLock(conversationID)
	lock.Lock()
	defer lock.Unlock()

	stopTyping := o.keepTyping(ctx, conversationID)
	defer stopTyping()

	summary, err := o.store.IngestDocument(ctx, conversationID, path)
	if err != nil {
		return Reply{}, fmt.Errorf("failed to ingest document: %w", err)
	}

	o.sessions.Append(conversationID,
		session.Turn{Speaker: session.SpeakerHuman, Text: name},
		session.Turn{Speaker: session.SpeakerAgent, Text: name + " saved to my documents database."},
	)

	return Reply{Text: "Summary of the document:\n\n" + summary}, nil
}

// ClearDocuments empties the conversation's document collection. Safe to
// call when the collection is already empty.
func (o *Orchestrator) ClearDocuments(ctx context.Context, conversationID string) error {
	lock := o.conversationLock(conversationID)
	lock.Lock()
	defer lock.Unlock()

	return o.store.Clear(ctx, conversationID)
}

// SetRole overrides the system prompt for one conversation.
func (o *Orchestrator) SetRole(conversationID, systemPrompt string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if systemPrompt == "" {
		delete(o.roles, conversationID)
		return
	}
	o.roles[conversationID] = systemPrompt
}

func (o *Orchestrator) role(conversationID string) string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.roles[conversationID]
}

func (o *Orchestrator) ingestURL(ctx context.Context, logger zerolog.Logger, conversationID, pageURL string) (Reply, error) {
	summary, err := o.store.IngestURL(ctx, conversationID, pageURL)
	if err != nil {
		logger.Error().Err(err).Str("url", pageURL).Msg("URL ingestion failed")
		return Reply{}, fmt.Errorf("failed to ingest url: %w", err)
	}

	o.sessions.Append(conversationID,
		session.Turn{Speaker: session.SpeakerHuman, Text: pageURL},
		session.Turn{Speaker: session.SpeakerAgent, Text: pageURL + " saved to my documents database."},
	)

	logger.Info().Str("url", pageURL).Msg("Web page ingested")
	return Reply{Text: "Summary of the web page:\n\n" + summary}, nil
}

func (o *Orchestrator) transcribe(ctx context.Context, in Incoming) (string, error) {
	if o.speech == nil {
		return "", fmt.Errorf("voice messages are not supported")
	}
	name := in.VoiceName
	if name == "" {
		name = "voice.oga"
	}
	return o.speech.Transcribe(ctx, in.Voice, name)
}

// keepTyping refreshes the typing indicator until the returned stop
// function is called. Cancellation of the background refresh is expected
// and never surfaces.
func (o *Orchestrator) keepTyping(ctx context.Context, conversationID string) func() {
	if o.typing == nil {
		return func() {}
	}

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	go func() {
		defer close(done)
		ticker := time.NewTicker(typingInterval)
		defer ticker.Stop()

		_ = o.typing.Typing(ctx, conversationID)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				_ = o.typing.Typing(ctx, conversationID)
			}
		}
	}()

	return func() {
		cancel()
		<-done
	}
}

func (o *Orchestrator) conversationLock(conversationID string) *sync.Mutex {
	o.mu.Lock()
	defer o.mu.Unlock()
	lock, ok := o.locks[conversationID]
	if !ok {
		lock = &sync.Mutex{}
		o.locks[conversationID] = lock
	}
	return lock
}
