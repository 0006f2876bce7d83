package retrieval

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	gonanoid "github.com/matoous/go-nanoid/v2"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
)

func init() {
	// Auto-register sqlite-vec extension
	sqlite_vec.Auto()
}

const topK = 4 // chunks fed to answer generation

// Store is the durable per-owner document index. Each owner's documents
// form an isolated collection, created lazily on first ingestion and
// destroyed wholesale by Clear.
type Store struct {
	db        *sql.DB
	embedder  Embedder
	completer Completer
	logger    zerolog.Logger
}

// Config holds store configuration.
type Config struct {
	DBPath    string
	Embedder  Embedder
	Completer Completer
	Logger    zerolog.Logger
}

// NewStore opens (or creates) the index database.
func NewStore(cfg Config) (*Store, error) {
	if cfg.DBPath == "" {
		return nil, fmt.Errorf("database path is required")
	}
	if cfg.Embedder == nil {
		return nil, fmt.Errorf("embedder is required")
	}
	if cfg.Completer == nil {
		return nil, fmt.Errorf("completer is required")
	}

	if dir := filepath.Dir(cfg.DBPath); dir != "." {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	s := &Store{
		db:        db,
		embedder:  cfg.Embedder,
		completer: cfg.Completer,
		logger:    cfg.Logger.With().Str("component", "retrieval").Logger(),
	}

	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	s.logger.Info().Str("db", cfg.DBPath).Msg("Retrieval store opened")
	return s, nil
}

func (s *Store) initSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS documents (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			owner_id TEXT NOT NULL,
			source TEXT NOT NULL,
			ingested_at INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_documents_owner ON documents(owner_id);

		CREATE TABLE IF NOT EXISTS chunks (
			id TEXT PRIMARY KEY,
			document_id INTEGER NOT NULL,
			owner_id TEXT NOT NULL,
			content TEXT NOT NULL,
			position INTEGER NOT NULL,
			FOREIGN KEY (document_id) REFERENCES documents(id) ON DELETE CASCADE
		);
		CREATE INDEX IF NOT EXISTS idx_chunks_owner ON chunks(owner_id);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return err
	}

	vectorSchema := fmt.Sprintf(`
		CREATE VIRTUAL TABLE IF NOT EXISTS embeddings USING vec0(
			chunk_id TEXT PRIMARY KEY,
			embedding float[%d] distance_metric=cosine
		);
	`, s.embedder.Dimension())

	if _, err := s.db.Exec(vectorSchema); err != nil {
		return fmt.Errorf("failed to create vector table: %w", err)
	}

	return nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// IngestDocument loads a local file into the owner's collection and
// returns a summary of its content.
func (s *Store) IngestDocument(ctx context.Context, ownerID, path string) (string, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to load document: %w", err)
	}
	return s.ingest(ctx, ownerID, filepath.Base(path), string(content))
}

// IngestURL loads a web page into the owner's collection and returns a
// summary of its content.
func (s *Store) IngestURL(ctx context.Context, ownerID, pageURL string) (string, error) {
	content, err := fetchPage(ctx, pageURL)
	if err != nil {
		return "", fmt.Errorf("failed to load url: %w", err)
	}
	return s.ingest(ctx, ownerID, pageURL, content)
}

// ingest runs the shared pipeline: chunk, embed, index, persist,
// summarize. Chunks written before a mid-pipeline failure are not rolled
// back; the collection may hold a subset of the document.
func (s *Store) ingest(ctx context.Context, ownerID, source, content string) (string, error) {
	texts := splitText(content)
	if len(texts) == 0 {
		return "", ErrNoContent
	}

	vectors, err := s.embedder.Embed(ctx, texts)
	if err != nil {
		return "", fmt.Errorf("failed to embed chunks: %w", err)
	}
	if len(vectors) != len(texts) {
		return "", fmt.Errorf("embedding count mismatch: %d texts, %d vectors", len(texts), len(vectors))
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.Exec(
		"INSERT INTO documents (owner_id, source, ingested_at) VALUES (?, ?, ?)",
		ownerID, source, time.Now().Unix(),
	)
	if err != nil {
		return "", fmt.Errorf("failed to insert document: %w", err)
	}
	documentID, _ := result.LastInsertId()

	chunks := make([]Chunk, 0, len(texts))
	for i, text := range texts {
		chunkID, err := gonanoid.New()
		if err != nil {
			return "", fmt.Errorf("failed to generate chunk id: %w", err)
		}

		if _, err := tx.Exec(
			"INSERT INTO chunks (id, document_id, owner_id, content, position) VALUES (?, ?, ?, ?, ?)",
			chunkID, documentID, ownerID, text, i,
		); err != nil {
			return "", fmt.Errorf("failed to insert chunk: %w", err)
		}

		vectorJSON, err := json.Marshal(vectors[i])
		if err != nil {
			return "", fmt.Errorf("failed to marshal embedding: %w", err)
		}
		if _, err := tx.Exec(
			"INSERT OR REPLACE INTO embeddings (chunk_id, embedding) VALUES (?, ?)",
			chunkID, string(vectorJSON),
		); err != nil {
			return "", fmt.Errorf("failed to store embedding: %w", err)
		}

		chunks = append(chunks, Chunk{
			ID:       chunkID,
			OwnerID:  ownerID,
			Source:   source,
			Content:  text,
			Position: i,
		})
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("failed to commit ingestion: %w", err)
	}

	// Explicit persist after writes
	if _, err := s.db.Exec("PRAGMA wal_checkpoint(FULL)"); err != nil {
		s.logger.Warn().Err(err).Msg("WAL checkpoint failed")
	}

	s.logger.Info().
		Str("owner_id", ownerID).
		Str("source", source).
		Int("chunks", len(chunks)).
		Msg("Document ingested")

	return s.Summarize(ctx, chunks)
}

// Query retrieves the most similar chunks from the owner's collection and
// generates an answer with source attribution. Returns ErrNoResults when
// the collection is empty or nothing matches.
func (s *Store) Query(ctx context.Context, ownerID, question string) (Answer, error) {
	vectors, err := s.embedder.Embed(ctx, []string{question})
	if err != nil {
		return Answer{}, fmt.Errorf("failed to embed question: %w", err)
	}

	vectorJSON, err := json.Marshal(vectors[0])
	if err != nil {
		return Answer{}, fmt.Errorf("failed to marshal embedding: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT c.content, c.source_name, vec_distance_cosine(e.embedding, ?) AS distance
		FROM embeddings e
		JOIN (
			SELECT ch.id, ch.content, d.source AS source_name
			FROM chunks ch JOIN documents d ON d.id = ch.document_id
			WHERE ch.owner_id = ?
		) c ON c.id = e.chunk_id
		ORDER BY distance ASC
		LIMIT ?
	`, string(vectorJSON), ownerID, topK)
	if err != nil {
		return Answer{}, fmt.Errorf("failed to query index: %w", err)
	}
	defer rows.Close()

	var contexts []string
	sources := make(map[string]bool)
	for rows.Next() {
		var content, source string
		var distance float64
		if err := rows.Scan(&content, &source, &distance); err != nil {
			return Answer{}, fmt.Errorf("failed to scan result: %w", err)
		}
		contexts = append(contexts, fmt.Sprintf("[source: %s]\n%s", source, content))
		sources[source] = true
	}
	if err := rows.Err(); err != nil {
		return Answer{}, err
	}

	if len(contexts) == 0 {
		return Answer{}, ErrNoResults
	}

	prompt := fmt.Sprintf(
		"Answer the question using only the extracts below. Cite the sources you used.\n\nExtracts:\n%s\n\nQuestion: %s\nAnswer:",
		strings.Join(contexts, "\n\n"), question,
	)

	text, err := s.completer.Complete(ctx, prompt)
	if err != nil {
		return Answer{}, fmt.Errorf("failed to generate answer: %w", err)
	}

	names := make([]string, 0, len(sources))
	for name := range sources {
		names = append(names, name)
	}

	return Answer{Text: text, Sources: strings.Join(names, ", ")}, nil
}

// Clear deletes the owner's entire collection. Idempotent: clearing a
// missing collection succeeds, and queries afterwards report no results.
func (s *Store) Clear(ctx context.Context, ownerID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(
		"DELETE FROM embeddings WHERE chunk_id IN (SELECT id FROM chunks WHERE owner_id = ?)",
		ownerID,
	); err != nil {
		return fmt.Errorf("failed to delete embeddings: %w", err)
	}
	if _, err := tx.Exec("DELETE FROM chunks WHERE owner_id = ?", ownerID); err != nil {
		return fmt.Errorf("failed to delete chunks: %w", err)
	}
	if _, err := tx.Exec("DELETE FROM documents WHERE owner_id = ?", ownerID); err != nil {
		return fmt.Errorf("failed to delete documents: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit clear: %w", err)
	}

	s.logger.Info().Str("owner_id", ownerID).Msg("Collection cleared")
	return nil
}

// Vacuum reclaims space left by cleared collections. Wired to the
// periodic maintenance scheduler.
func (s *Store) Vacuum(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "VACUUM"); err != nil {
		return fmt.Errorf("vacuum failed: %w", err)
	}
	return nil
}
