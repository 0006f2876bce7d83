// Package telegram connects the conversational engine to the Telegram
// Bot API.
package telegram

import (
	"context"
	"fmt"
	"strconv"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/otarik/minerva/internal/config"
	"github.com/rs/zerolog"
)

// Bot represents a Telegram bot instance
type Bot struct {
	api    *tgbotapi.BotAPI
	config *config.TelegramConfig
	logger zerolog.Logger

	// Handlers
	messageHandler  MessageHandler
	commandHandler  CommandHandler
	mediaHandler    MediaHandler
	callbackHandler CallbackHandler

	// State
	running bool
	updates tgbotapi.UpdatesChannel
}

// MessageHandler handles incoming text and voice messages
type MessageHandler interface {
	HandleMessage(update tgbotapi.Update) error
}

// CommandHandler handles bot commands
type CommandHandler interface {
	HandleCommand(update tgbotapi.Update) error
}

// MediaHandler handles media messages
type MediaHandler interface {
	HandleMedia(update tgbotapi.Update) error
}

// CallbackHandler handles inline keyboard callbacks
type CallbackHandler interface {
	HandleCallback(update tgbotapi.Update) error
}

// New creates a new Telegram bot instance
func New(cfg *config.TelegramConfig, logger zerolog.Logger) (*Bot, error) {
	if cfg == nil {
		return nil, fmt.Errorf("telegram config is required")
	}

	if cfg.BotToken == "" {
		return nil, fmt.Errorf("bot token is required")
	}

	api, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot API: %w", err)
	}

	bot := &Bot{
		api:    api,
		config: cfg,
		logger: logger.With().Str("component", "telegram").Logger(),
	}

	bot.logger.Info().
		Str("username", api.Self.UserName).
		Int64("id", api.Self.ID).
		Msg("Telegram bot authenticated")

	return bot, nil
}

// Start starts the bot and begins processing updates
func (b *Bot) Start() error {
	if b.running {
		return fmt.Errorf("bot is already running")
	}

	b.logger.Info().Msg("Starting Telegram bot")

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	b.updates = b.api.GetUpdatesChan(u)
	b.running = true

	go b.processUpdates()

	b.logger.Info().Msg("Telegram bot started")

	return nil
}

// Stop stops the bot
func (b *Bot) Stop() error {
	if !b.running {
		return fmt.Errorf("bot is not running")
	}

	b.logger.Info().Msg("Stopping Telegram bot")

	b.running = false
	b.api.StopReceivingUpdates()

	b.logger.Info().Msg("Telegram bot stopped")

	return nil
}

// processUpdates processes incoming updates
func (b *Bot) processUpdates() {
	for update := range b.updates {
		if !b.running {
			break
		}

		if !b.allowed(update) {
			continue
		}

		// Each update gets its own goroutine so a slow turn in one chat
		// never blocks the others.
		go func(update tgbotapi.Update) {
			if err := b.handleUpdate(update); err != nil {
				b.logger.Error().
					Err(err).
					Int("update_id", update.UpdateID).
					Msg("Failed to handle update")
			}
		}(update)
	}
}

// handleUpdate routes an update to the appropriate handler
func (b *Bot) handleUpdate(update tgbotapi.Update) error {
	if update.CallbackQuery != nil && b.callbackHandler != nil {
		return b.callbackHandler.HandleCallback(update)
	}

	if update.Message != nil {
		if update.Message.IsCommand() && b.commandHandler != nil {
			return b.commandHandler.HandleCommand(update)
		}

		if update.Message.Document != nil && b.mediaHandler != nil {
			return b.mediaHandler.HandleMedia(update)
		}

		if b.messageHandler != nil {
			return b.messageHandler.HandleMessage(update)
		}
	}

	return nil
}

// allowed checks the update's sender against the allowlist. An empty
// allowlist admits everyone.
func (b *Bot) allowed(update tgbotapi.Update) bool {
	if len(b.config.Allowlist) == 0 {
		return true
	}

	var userID int64
	switch {
	case update.Message != nil && update.Message.From != nil:
		userID = update.Message.From.ID
	case update.CallbackQuery != nil && update.CallbackQuery.From != nil:
		userID = update.CallbackQuery.From.ID
	default:
		return false
	}

	for _, id := range b.config.Allowlist {
		if id == userID {
			return true
		}
	}

	b.logger.Warn().Int64("user_id", userID).Msg("Update from user outside allowlist dropped")
	return false
}

// SendMessage sends a text message
func (b *Bot) SendMessage(chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)

	_, err := b.api.Send(msg)
	if err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}

	b.logger.Debug().
		Int64("chat_id", chatID).
		Msg("Message sent")

	return nil
}

// SendMessageWithReply sends a text message as a reply
func (b *Bot) SendMessageWithReply(chatID int64, text string, replyToMessageID int) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ReplyToMessageID = replyToMessageID

	_, err := b.api.Send(msg)
	if err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}

	return nil
}

// SendPhotoURL sends a photo by URL
func (b *Bot) SendPhotoURL(chatID int64, photoURL string) error {
	photo := tgbotapi.NewPhoto(chatID, tgbotapi.FileURL(photoURL))

	_, err := b.api.Send(photo)
	if err != nil {
		return fmt.Errorf("failed to send photo: %w", err)
	}

	return nil
}

// SendVoice sends synthesized audio as a voice message
func (b *Bot) SendVoice(chatID int64, audio []byte) error {
	voice := tgbotapi.NewVoice(chatID, tgbotapi.FileBytes{
		Name:  "reply.ogg",
		Bytes: audio,
	})

	_, err := b.api.Send(voice)
	if err != nil {
		return fmt.Errorf("failed to send voice message: %w", err)
	}

	return nil
}

// Typing shows the typing indicator in a chat. It satisfies the
// orchestrator's notifier interface; failures are reported but harmless.
func (b *Bot) Typing(_ context.Context, conversationID string) error {
	chatID, err := strconv.ParseInt(conversationID, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid conversation id: %w", err)
	}

	action := tgbotapi.NewChatAction(chatID, tgbotapi.ChatTyping)
	if _, err := b.api.Request(action); err != nil {
		return fmt.Errorf("failed to send chat action: %w", err)
	}
	return nil
}

// SetMessageHandler sets the message handler
func (b *Bot) SetMessageHandler(handler MessageHandler) {
	b.messageHandler = handler
}

// SetCommandHandler sets the command handler
func (b *Bot) SetCommandHandler(handler CommandHandler) {
	b.commandHandler = handler
}

// SetMediaHandler sets the media handler
func (b *Bot) SetMediaHandler(handler MediaHandler) {
	b.mediaHandler = handler
}

// SetCallbackHandler sets the inline keyboard callback handler
func (b *Bot) SetCallbackHandler(handler CallbackHandler) {
	b.callbackHandler = handler
}

// GetAPI returns the underlying bot API
func (b *Bot) GetAPI() *tgbotapi.BotAPI {
	return b.api
}

// IsRunning returns whether the bot is running
func (b *Bot) IsRunning() bool {
	return b.running
}
