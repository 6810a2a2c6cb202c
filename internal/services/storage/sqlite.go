package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/ai-compare-chat-go/internal/config"
	"github.com/ai-compare-chat-go/internal/models"
	_ "github.com/mattn/go-sqlite3"
	"github.com/sirupsen/logrus"
)

// SQLiteStore persists conversation state in a local SQLite file, as a small
// key-value table holding the serialized documents.
type SQLiteStore struct {
	db     *sql.DB
	mu     sync.Mutex
	logger *logrus.Logger
}

func NewSQLiteStore(cfg *config.Config, logger *logrus.Logger) (*SQLiteStore, error) {
	// Enable WAL mode via connection string
	dsn := cfg.Storage.SQLite.Path + "?_journal_mode=WAL"

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping sqlite database: %w", err)
	}

	// Single connection keeps writes serialized
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS chat_store (
		key   TEXT PRIMARY KEY,
		value TEXT NOT NULL
	)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create chat_store table: %w", err)
	}

	return &SQLiteStore{db: db, logger: logger}, nil
}

func (s *SQLiteStore) put(ctx context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO chat_store (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		key, string(value),
	)
	return err
}

func (s *SQLiteStore) get(ctx context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var value string
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM chat_store WHERE key = ?`, key,
	).Scan(&value)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return []byte(value), nil
}

func (s *SQLiteStore) SaveMessages(ctx context.Context, messages []models.Message) error {
	data, err := json.Marshal(messages)
	if err != nil {
		return err
	}
	return s.put(ctx, MessagesKey, data)
}

func (s *SQLiteStore) LoadMessages(ctx context.Context) ([]models.Message, error) {
	data, err := s.get(ctx, MessagesKey)
	if err != nil || data == nil {
		return nil, err
	}

	var messages []models.Message
	if err := json.Unmarshal(data, &messages); err != nil {
		return nil, err
	}
	return messages, nil
}

func (s *SQLiteStore) SaveRatings(ctx context.Context, ratings models.RatingMap) error {
	data, err := json.Marshal(ratings)
	if err != nil {
		return err
	}
	return s.put(ctx, RatingsKey, data)
}

func (s *SQLiteStore) LoadRatings(ctx context.Context) (models.RatingMap, error) {
	data, err := s.get(ctx, RatingsKey)
	if err != nil || data == nil {
		return nil, err
	}

	var ratings models.RatingMap
	if err := json.Unmarshal(data, &ratings); err != nil {
		return nil, err
	}
	return ratings, nil
}

func (s *SQLiteStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		`DELETE FROM chat_store WHERE key IN (?, ?)`, MessagesKey, RatingsKey)
	return err
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
