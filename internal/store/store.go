package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/koscakluka/ema-companion/core/conversations"
	"github.com/koscakluka/ema-companion/core/llms"
	"github.com/koscakluka/ema-companion/internal/config"
	_ "modernc.org/sqlite"
)

// Store persists conversations and memories in SQLite.
type Store struct {
	db    *sql.DB
	log   *slog.Logger
	clock func() time.Time
}

var (
	_ conversations.Store        = (*Store)(nil)
	_ conversations.MemoryKeeper = (*Store)(nil)
)

// Open creates the database file and schema when missing.
func Open(ctx context.Context, cfg config.StoreConfig, log *slog.Logger) (*Store, error) {
	dir := filepath.Dir(cfg.Path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)", cfg.Path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	s := &Store{db: db, log: log, clock: time.Now}
	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return s, nil
}

func (s *Store) initSchema(ctx context.Context) error {
	ddl := `
CREATE TABLE IF NOT EXISTS conversations (
    id TEXT PRIMARY KEY,
    title TEXT NOT NULL,
    updated_at INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS messages (
    conversation_id TEXT NOT NULL,
    position INTEGER NOT NULL,
    id TEXT NOT NULL,
    role TEXT NOT NULL,
    text TEXT NOT NULL,
    image_mime TEXT,
    image_data BLOB,
    sources TEXT,
    is_streaming INTEGER NOT NULL DEFAULT 0,
    abandoned INTEGER NOT NULL DEFAULT 0,
    rating TEXT,
    created_at INTEGER NOT NULL,
    PRIMARY KEY(conversation_id, position),
    FOREIGN KEY(conversation_id) REFERENCES conversations(id) ON DELETE CASCADE
);
CREATE TABLE IF NOT EXISTS memories (
    id TEXT PRIMARY KEY,
    text TEXT NOT NULL,
    category TEXT NOT NULL,
    created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_conversations_updated ON conversations(updated_at);
`
	_, err := s.db.ExecContext(ctx, ddl)
	return err
}

// Close releases underlying resources.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) LoadConversation(ctx context.Context, id string) (conversations.Conversation, error) {
	conversation := conversations.Conversation{ID: id}

	var updatedAt int64
	err := s.db.QueryRowContext(ctx, `SELECT title, updated_at FROM conversations WHERE id = ?`, id).
		Scan(&conversation.Title, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return conversation, conversations.ErrConversationNotFound
	}
	if err != nil {
		return conversation, fmt.Errorf("query conversation: %w", err)
	}
	conversation.UpdatedAt = time.UnixMilli(updatedAt)

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, role, text, image_mime, image_data, sources, is_streaming, abandoned, rating, created_at
		 FROM messages WHERE conversation_id = ? ORDER BY position`, id)
	if err != nil {
		return conversation, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			message   conversations.Message
			role      string
			imageMIME sql.NullString
			imageData []byte
			sources   sql.NullString
			rating    sql.NullString
			createdAt int64
		)
		if err := rows.Scan(&message.ID, &role, &message.Text, &imageMIME, &imageData, &sources,
			&message.IsStreaming, &message.Abandoned, &rating, &createdAt); err != nil {
			return conversation, fmt.Errorf("scan message: %w", err)
		}
		message.Role = conversations.Role(role)
		message.Rating = conversations.Rating(rating.String)
		message.Timestamp = time.UnixMilli(createdAt)
		if imageMIME.Valid && len(imageData) > 0 {
			message.Image = &llms.Image{MIMEType: imageMIME.String, Data: imageData}
		}
		if sources.Valid && sources.String != "" {
			if err := json.Unmarshal([]byte(sources.String), &message.Sources); err != nil {
				s.log.Warn("dropping unreadable message sources",
					slog.String("message_id", message.ID),
					slog.String("error", err.Error()))
			}
		}
		conversation.Messages = append(conversation.Messages, message)
	}
	if err := rows.Err(); err != nil {
		return conversation, fmt.Errorf("iterate messages: %w", err)
	}

	return conversation, nil
}

// SaveSnapshot replaces the stored conversation with the given snapshot.
func (s *Store) SaveSnapshot(ctx context.Context, conversation conversations.Conversation) error {
	updatedAt := conversation.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = s.clock()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO conversations(id, title, updated_at) VALUES(?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET title=excluded.title, updated_at=excluded.updated_at`,
		conversation.ID, conversation.Title, updatedAt.UnixMilli()); err != nil {
		return fmt.Errorf("upsert conversation: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM messages WHERE conversation_id = ?`, conversation.ID); err != nil {
		return fmt.Errorf("clear messages: %w", err)
	}

	for position, message := range conversation.Messages {
		var (
			imageMIME any
			imageData any
			sources   any
		)
		if message.Image != nil {
			imageMIME = message.Image.MIMEType
			imageData = message.Image.Data
		}
		if len(message.Sources) > 0 {
			encoded, err := json.Marshal(message.Sources)
			if err != nil {
				return fmt.Errorf("encode sources: %w", err)
			}
			sources = string(encoded)
		}

		if _, err := tx.ExecContext(ctx,
			`INSERT INTO messages(conversation_id, position, id, role, text, image_mime, image_data, sources, is_streaming, abandoned, rating, created_at)
			 VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			conversation.ID, position, message.ID, string(message.Role), message.Text,
			imageMIME, imageData, sources, message.IsStreaming, message.Abandoned,
			string(message.Rating), message.Timestamp.UnixMilli()); err != nil {
			return fmt.Errorf("insert message: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// ConversationSummary is a row of the conversation history list.
type ConversationSummary struct {
	ID        string
	Title     string
	UpdatedAt time.Time
}

// ListConversations returns conversations, most recently updated first.
func (s *Store) ListConversations(ctx context.Context, limit int) ([]ConversationSummary, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, title, updated_at FROM conversations ORDER BY updated_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query conversations: %w", err)
	}
	defer rows.Close()

	var summaries []ConversationSummary
	for rows.Next() {
		var (
			summary   ConversationSummary
			updatedAt int64
		)
		if err := rows.Scan(&summary.ID, &summary.Title, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan conversation: %w", err)
		}
		summary.UpdatedAt = time.UnixMilli(updatedAt)
		summaries = append(summaries, summary)
	}
	return summaries, rows.Err()
}

func (s *Store) DeleteConversation(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM conversations WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete conversation: %w", err)
	}
	return nil
}

func (s *Store) ListMemories(ctx context.Context) ([]conversations.Memory, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, text, category, created_at FROM memories ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("query memories: %w", err)
	}
	defer rows.Close()

	var memories []conversations.Memory
	for rows.Next() {
		var (
			memory    conversations.Memory
			category  string
			createdAt int64
		)
		if err := rows.Scan(&memory.ID, &memory.Text, &category, &createdAt); err != nil {
			return nil, fmt.Errorf("scan memory: %w", err)
		}
		memory.Category = conversations.MemoryCategory(category)
		memory.CreatedAt = time.UnixMilli(createdAt)
		memories = append(memories, memory)
	}
	return memories, rows.Err()
}

// AddMemory stores a new memory and returns it with its ID and timestamp.
func (s *Store) AddMemory(ctx context.Context, text string, category conversations.MemoryCategory) (conversations.Memory, error) {
	if !category.Valid() {
		category = conversations.MemoryCategoryGeneral
	}
	memory := conversations.Memory{
		ID:        uuid.NewString(),
		Text:      text,
		Category:  category,
		CreatedAt: s.clock(),
	}
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO memories(id, text, category, created_at) VALUES(?, ?, ?, ?)`,
		memory.ID, memory.Text, string(memory.Category), memory.CreatedAt.UnixMilli()); err != nil {
		return memory, fmt.Errorf("insert memory: %w", err)
	}
	return memory, nil
}

func (s *Store) DeleteMemory(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM memories WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete memory: %w", err)
	}
	return nil
}
