package storage

import (
	"context"
	"fmt"

	"github.com/ai-compare-chat-go/internal/config"
	"github.com/ai-compare-chat-go/internal/models"
	"github.com/sirupsen/logrus"
)

// Fixed keys for the persisted conversation state.
const (
	MessagesKey = "ai-chat-history"
	RatingsKey  = "ai-chat-ratings"
)

// Store defines raw storage operations. Backends return errors; the Manager
// applies the recovery policy (load tolerates absent or malformed as empty,
// write failures are logged and swallowed).
type Store interface {
	SaveMessages(ctx context.Context, messages []models.Message) error
	LoadMessages(ctx context.Context) ([]models.Message, error)
	SaveRatings(ctx context.Context, ratings models.RatingMap) error
	LoadRatings(ctx context.Context) (models.RatingMap, error)
	Clear(ctx context.Context) error
	Close() error
}

// Manager fronts the configured backend. Its load methods never fail and its
// write methods never surface errors, so a broken store degrades the app to
// in-memory behavior instead of interrupting conversation flow.
type Manager struct {
	store  Store
	logger *logrus.Logger
}

// NewManager creates a storage manager for the configured backend
func NewManager(cfg *config.Config, logger *logrus.Logger) (*Manager, error) {
	var store Store
	var err error

	switch cfg.Storage.Type {
	case "redis":
		store, err = NewRedisStore(cfg, logger)
	case "sqlite":
		store, err = NewSQLiteStore(cfg, logger)
	case "memory":
		store = NewMemoryStore(cfg, logger)
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", cfg.Storage.Type)
	}
	if err != nil {
		return nil, err
	}

	logger.WithField("type", cfg.Storage.Type).Info("Storage initialized")

	return &Manager{store: store, logger: logger}, nil
}

// SaveMessages persists the full message sequence, overwriting the prior
// value. Failures are logged, never returned.
func (m *Manager) SaveMessages(ctx context.Context, messages []models.Message) {
	if err := m.store.SaveMessages(ctx, messages); err != nil {
		m.logger.WithError(err).Error("Failed to save messages")
	}
}

// LoadMessages returns the persisted sequence, or empty when absent or
// malformed.
func (m *Manager) LoadMessages(ctx context.Context) []models.Message {
	messages, err := m.store.LoadMessages(ctx)
	if err != nil {
		m.logger.WithError(err).Error("Failed to load messages, treating as empty")
		return nil
	}
	return messages
}

// SaveRatings persists the rating map. Failures are logged, never returned.
func (m *Manager) SaveRatings(ctx context.Context, ratings models.RatingMap) {
	if err := m.store.SaveRatings(ctx, ratings); err != nil {
		m.logger.WithError(err).Error("Failed to save ratings")
	}
}

// LoadRatings returns the persisted rating map, or empty when absent or
// malformed.
func (m *Manager) LoadRatings(ctx context.Context) models.RatingMap {
	ratings, err := m.store.LoadRatings(ctx)
	if err != nil {
		m.logger.WithError(err).Error("Failed to load ratings, treating as empty")
		return models.RatingMap{}
	}
	if ratings == nil {
		ratings = models.RatingMap{}
	}
	return ratings
}

// Clear removes all persisted conversation state. Failures are logged.
func (m *Manager) Clear(ctx context.Context) {
	if err := m.store.Clear(ctx); err != nil {
		m.logger.WithError(err).Error("Failed to clear storage")
	}
}

// Close releases backend resources.
func (m *Manager) Close() error {
	return m.store.Close()
}
