package telegram

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/otarik/minerva/pkg/orchestrator"
	"github.com/rs/zerolog"
)

const welcomeText = "Hi! Send me a message and I'll answer. I can also " +
	"search the web, do math, generate images, and remember documents " +
	"and links you send me.\n\n" +
	"/role - pick a personality\n" +
	"/clear - forget your saved documents"

// roles are the selectable personalities for the /role keyboard. Order
// fixes the keyboard layout.
var roles = []struct {
	Name   string
	Prompt string
}{
	{"Assistant", ""},
	{"Pirate", "You are a pirate. Answer every question in pirate speak."},
	{"Poet", "You are a poet. Answer every question as a short poem."},
	{"Programmer", "You are a senior software engineer. Answer with precise technical detail and code examples where useful."},
}

const roleCallbackPrefix = "role:"

// Commands handles bot commands and keyboard callbacks.
type Commands struct {
	bot          *Bot
	orchestrator *orchestrator.Orchestrator
	logger       zerolog.Logger
	handlers     map[string]CommandFunc
}

// CommandFunc is a function that handles a command
type CommandFunc func(CommandContext) error

// CommandContext contains command metadata
type CommandContext struct {
	ChatID    int64
	MessageID int
	UserID    int64
	Command   string
	Args      []string
}

// NewCommands creates a command handler with the built-in commands
// registered.
func NewCommands(bot *Bot, orch *orchestrator.Orchestrator) *Commands {
	c := &Commands{
		bot:          bot,
		orchestrator: orch,
		logger:       bot.logger.With().Str("module", "commands").Logger(),
		handlers:     make(map[string]CommandFunc),
	}

	c.Register("start", c.handleStart)
	c.Register("clear", c.handleClear)
	c.Register("role", c.handleRole)

	return c
}

// HandleCommand processes incoming commands
func (c *Commands) HandleCommand(update tgbotapi.Update) error {
	if update.Message == nil || !update.Message.IsCommand() {
		return nil
	}

	msg := update.Message
	command := msg.Command()

	ctx := CommandContext{
		ChatID:    msg.Chat.ID,
		MessageID: msg.MessageID,
		UserID:    msg.From.ID,
		Command:   command,
		Args:      strings.Fields(msg.CommandArguments()),
	}

	c.logger.Debug().
		Int64("chat_id", ctx.ChatID).
		Str("command", command).
		Msg("Command received")

	handler, exists := c.handlers[command]
	if !exists {
		return c.bot.SendMessageWithReply(ctx.ChatID, fmt.Sprintf("Unknown command: /%s", command), ctx.MessageID)
	}

	return handler(ctx)
}

// HandleCallback processes inline keyboard selections.
func (c *Commands) HandleCallback(update tgbotapi.Update) error {
	query := update.CallbackQuery
	if query == nil || query.Message == nil {
		return nil
	}

	// Dismiss the loading spinner regardless of outcome.
	callback := tgbotapi.NewCallback(query.ID, "")
	if _, err := c.bot.api.Request(callback); err != nil {
		c.logger.Warn().Err(err).Msg("Failed to acknowledge callback")
	}

	data := query.Data
	if !strings.HasPrefix(data, roleCallbackPrefix) {
		return nil
	}
	name := strings.TrimPrefix(data, roleCallbackPrefix)

	chatID := query.Message.Chat.ID
	for _, role := range roles {
		if role.Name != name {
			continue
		}
		c.orchestrator.SetRole(strconv.FormatInt(chatID, 10), role.Prompt)
		c.logger.Info().Int64("chat_id", chatID).Str("role", name).Msg("Role changed")
		return c.bot.SendMessage(chatID, fmt.Sprintf("Role set to %s.", name))
	}

	return c.bot.SendMessage(chatID, fmt.Sprintf("Unknown role: %s", name))
}

// Register registers a command handler
func (c *Commands) Register(command string, handler CommandFunc) {
	c.handlers[command] = handler
}

// SetCommands publishes the command list to Telegram.
func (c *Commands) SetCommands() error {
	cfg := tgbotapi.NewSetMyCommands(
		tgbotapi.BotCommand{Command: "start", Description: "Show what I can do"},
		tgbotapi.BotCommand{Command: "role", Description: "Pick a personality"},
		tgbotapi.BotCommand{Command: "clear", Description: "Forget saved documents"},
	)
	if _, err := c.bot.api.Request(cfg); err != nil {
		return fmt.Errorf("failed to set commands: %w", err)
	}
	return nil
}

func (c *Commands) handleStart(ctx CommandContext) error {
	return c.bot.SendMessage(ctx.ChatID, welcomeText)
}

func (c *Commands) handleClear(ctx CommandContext) error {
	conversationID := strconv.FormatInt(ctx.ChatID, 10)
	if err := c.orchestrator.ClearDocuments(context.Background(), conversationID); err != nil {
		c.logger.Error().Err(err).Int64("chat_id", ctx.ChatID).Msg("Failed to clear documents")
		return c.bot.SendMessage(ctx.ChatID, "Sorry, I couldn't clear your documents. Please try again.")
	}
	return c.bot.SendMessage(ctx.ChatID, "Your saved documents have been cleared.")
}

func (c *Commands) handleRole(ctx CommandContext) error {
	buttons := make([]tgbotapi.InlineKeyboardButton, 0, len(roles))
	for _, role := range roles {
		buttons = append(buttons, tgbotapi.NewInlineKeyboardButtonData(role.Name, roleCallbackPrefix+role.Name))
	}

	msg := tgbotapi.NewMessage(ctx.ChatID, "Pick a role:")
	msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(buttons)

	if _, err := c.bot.api.Send(msg); err != nil {
		return fmt.Errorf("failed to send role keyboard: %w", err)
	}
	return nil
}
