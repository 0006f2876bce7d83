package telegram

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/otarik/minerva/pkg/orchestrator"
	"github.com/rs/zerolog"
)

const (
	// MaxDocumentSize caps attachments accepted for ingestion.
	MaxDocumentSize = 5 * 1024 * 1024
)

// Media ingests document attachments into the sender's collection.
type Media struct {
	bot          *Bot
	orchestrator *orchestrator.Orchestrator
	downloadDir  string
	logger       zerolog.Logger
}

// NewMedia creates a media handler. Downloads land under downloadDir and
// are removed after ingestion.
func NewMedia(bot *Bot, orch *orchestrator.Orchestrator, downloadDir string) *Media {
	return &Media{
		bot:          bot,
		orchestrator: orch,
		downloadDir:  downloadDir,
		logger:       bot.logger.With().Str("module", "media").Logger(),
	}
}

// HandleMedia processes a document attachment.
func (m *Media) HandleMedia(update tgbotapi.Update) error {
	msg := update.Message
	if msg == nil || msg.Document == nil {
		return nil
	}

	chatID := msg.Chat.ID
	doc := msg.Document

	if doc.FileSize > MaxDocumentSize {
		return m.bot.SendMessage(chatID, "That file is too large for me, sorry.")
	}

	destPath := filepath.Join(m.downloadDir, strconv.FormatInt(chatID, 10), doc.FileName)
	if err := m.downloadFile(doc.FileID, destPath); err != nil {
		m.logger.Error().Err(err).Str("file", doc.FileName).Msg("Document download failed")
		return m.bot.SendMessage(chatID, "Sorry, I couldn't read that document. Please try again.")
	}
	defer os.Remove(destPath)

	conversationID := strconv.FormatInt(chatID, 10)
	reply, err := m.orchestrator.IngestDocument(context.Background(), conversationID, destPath, doc.FileName)
	if err != nil {
		m.logger.Error().Err(err).Str("file", doc.FileName).Msg("Document ingestion failed")
		return m.bot.SendMessage(chatID, "Sorry, I couldn't read that document. Please try again.")
	}

	m.logger.Info().
		Int64("chat_id", chatID).
		Str("file", doc.FileName).
		Msg("Document ingested")

	return m.bot.SendMessage(chatID, reply.Text)
}

// downloadFile downloads a Telegram-hosted file to destPath.
func (m *Media) downloadFile(fileID, destPath string) error {
	file, err := m.bot.api.GetFile(tgbotapi.FileConfig{FileID: fileID})
	if err != nil {
		return fmt.Errorf("failed to get file info: %w", err)
	}

	if file.FileSize > MaxDocumentSize {
		return fmt.Errorf("file size %d exceeds maximum %d", file.FileSize, MaxDocumentSize)
	}

	resp, err := http.Get(file.Link(m.bot.api.Token))
	if err != nil {
		return fmt.Errorf("failed to download file: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download failed with status: %d", resp.StatusCode)
	}

	if err := os.MkdirAll(filepath.Dir(destPath), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	out, err := os.Create(destPath)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer out.Close()

	if _, err := io.Copy(out, resp.Body); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}

	return nil
}
