package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ai-compare-chat-go/internal/config"
	"github.com/ai-compare-chat-go/internal/models"
	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
)

// RedisStore persists conversation state in Redis
type RedisStore struct {
	client *redis.Client
	logger *logrus.Logger
}

func NewRedisStore(cfg *config.Config, logger *logrus.Logger) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Storage.Redis.Addr,
		Password: cfg.Storage.Redis.Password,
		DB:       cfg.Storage.Redis.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisStore{
		client: client,
		logger: logger,
	}, nil
}

func (r *RedisStore) SaveMessages(ctx context.Context, messages []models.Message) error {
	data, err := json.Marshal(messages)
	if err != nil {
		return err
	}

	return r.client.Set(ctx, MessagesKey, data, 0).Err()
}

func (r *RedisStore) LoadMessages(ctx context.Context) ([]models.Message, error) {
	data, err := r.client.Get(ctx, MessagesKey).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var messages []models.Message
	if err := json.Unmarshal([]byte(data), &messages); err != nil {
		return nil, err
	}

	return messages, nil
}

func (r *RedisStore) SaveRatings(ctx context.Context, ratings models.RatingMap) error {
	data, err := json.Marshal(ratings)
	if err != nil {
		return err
	}

	return r.client.Set(ctx, RatingsKey, data, 0).Err()
}

func (r *RedisStore) LoadRatings(ctx context.Context) (models.RatingMap, error) {
	data, err := r.client.Get(ctx, RatingsKey).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var ratings models.RatingMap
	if err := json.Unmarshal([]byte(data), &ratings); err != nil {
		return nil, err
	}

	return ratings, nil
}

func (r *RedisStore) Clear(ctx context.Context) error {
	return r.client.Del(ctx, MessagesKey, RatingsKey).Err()
}

func (r *RedisStore) Close() error {
	return r.client.Close()
}
