package telegram

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/otarik/minerva/pkg/orchestrator"
	"github.com/rs/zerolog"
)

// Handler routes chat messages into the orchestrator and delivers the
// replies.
type Handler struct {
	bot          *Bot
	orchestrator *orchestrator.Orchestrator
	logger       zerolog.Logger
}

// NewHandler creates a message handler.
func NewHandler(bot *Bot, orch *orchestrator.Orchestrator) *Handler {
	return &Handler{
		bot:          bot,
		orchestrator: orch,
		logger:       bot.logger.With().Str("module", "handler").Logger(),
	}
}

// HandleMessage processes a text or voice message.
func (h *Handler) HandleMessage(update tgbotapi.Update) error {
	msg := update.Message
	if msg == nil {
		return nil
	}

	chatID := msg.Chat.ID
	conversationID := strconv.FormatInt(chatID, 10)
	ctx := context.Background()

	in := orchestrator.Incoming{Text: msg.Text}
	if msg.Voice != nil {
		body, err := h.openFile(msg.Voice.FileID)
		if err != nil {
			h.logger.Error().Err(err).Msg("Failed to fetch voice file")
			return h.bot.SendMessage(chatID, "Sorry, I couldn't process your message. Please try again.")
		}
		defer body.Close()
		in = orchestrator.Incoming{Voice: body, VoiceName: "voice.oga"}
	}

	reply, err := h.orchestrator.Answer(ctx, conversationID, in)
	if err != nil {
		h.logger.Error().Err(err).Int64("chat_id", chatID).Msg("Turn failed")
		return h.bot.SendMessage(chatID, "Sorry, I couldn't process your message. Please try again.")
	}

	return h.deliver(chatID, reply)
}

// deliver sends the reply in whatever shape it came back.
func (h *Handler) deliver(chatID int64, reply orchestrator.Reply) error {
	if reply.ImageURL != "" {
		return h.bot.SendPhotoURL(chatID, reply.ImageURL)
	}
	if reply.Audio != nil {
		return h.bot.SendVoice(chatID, reply.Audio)
	}
	if reply.Text != "" {
		return h.bot.SendMessage(chatID, reply.Text)
	}
	return nil
}

// openFile fetches a Telegram-hosted file for streaming. The caller
// closes the returned body.
func (h *Handler) openFile(fileID string) (io.ReadCloser, error) {
	file, err := h.bot.api.GetFile(tgbotapi.FileConfig{FileID: fileID})
	if err != nil {
		return nil, fmt.Errorf("failed to get file info: %w", err)
	}

	resp, err := http.Get(file.Link(h.bot.api.Token))
	if err != nil {
		return nil, fmt.Errorf("failed to download file: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("download failed with status: %d", resp.StatusCode)
	}

	return resp.Body, nil
}
