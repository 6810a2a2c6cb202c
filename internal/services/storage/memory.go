package storage

import (
	"context"
	"encoding/json"

	"github.com/ai-compare-chat-go/internal/config"
	"github.com/ai-compare-chat-go/internal/models"
	"github.com/patrickmn/go-cache"
	"github.com/sirupsen/logrus"
)

// MemoryStore keeps conversation state in process memory. Values are stored
// serialized so the round-trip behavior matches the durable backends.
type MemoryStore struct {
	store  *cache.Cache
	logger *logrus.Logger
}

func NewMemoryStore(cfg *config.Config, logger *logrus.Logger) *MemoryStore {
	return &MemoryStore{
		store:  cache.New(cache.NoExpiration, cfg.Storage.Memory.CleanupInterval),
		logger: logger,
	}
}

func (m *MemoryStore) SaveMessages(ctx context.Context, messages []models.Message) error {
	data, err := json.Marshal(messages)
	if err != nil {
		return err
	}
	m.store.Set(MessagesKey, data, cache.NoExpiration)
	return nil
}

func (m *MemoryStore) LoadMessages(ctx context.Context) ([]models.Message, error) {
	val, found := m.store.Get(MessagesKey)
	if !found {
		return nil, nil
	}

	var messages []models.Message
	if err := json.Unmarshal(val.([]byte), &messages); err != nil {
		return nil, err
	}
	return messages, nil
}

func (m *MemoryStore) SaveRatings(ctx context.Context, ratings models.RatingMap) error {
	data, err := json.Marshal(ratings)
	if err != nil {
		return err
	}
	m.store.Set(RatingsKey, data, cache.NoExpiration)
	return nil
}

func (m *MemoryStore) LoadRatings(ctx context.Context) (models.RatingMap, error) {
	val, found := m.store.Get(RatingsKey)
	if !found {
		return nil, nil
	}

	var ratings models.RatingMap
	if err := json.Unmarshal(val.([]byte), &ratings); err != nil {
		return nil, err
	}
	return ratings, nil
}

func (m *MemoryStore) Clear(ctx context.Context) error {
	m.store.Delete(MessagesKey)
	m.store.Delete(RatingsKey)
	return nil
}

func (m *MemoryStore) Close() error {
	return nil
}
