package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/ai-compare-chat-go/internal/config"
	"github.com/patrickmn/go-cache"
	"github.com/sirupsen/logrus"
)

// Service defines cache operations for generated replies
type Service interface {
	Get(ctx context.Context, question, provider string) (string, bool)
	Set(ctx context.Context, question, provider, reply string) error
	Clear(ctx context.Context) error
}

// entry is a cached provider reply
type entry struct {
	Question  string
	Reply     string
	Provider  string
	CreatedAt time.Time
}

// Cache implements caching service
type Cache struct {
	enabled bool
	cache   *cache.Cache
	logger  *logrus.Logger
	maxSize int
}

// NewCache creates a new cache service
func NewCache(cfg *config.Config, logger *logrus.Logger) Service {
	if !cfg.Cache.Enabled {
		return &Cache{enabled: false}
	}

	return &Cache{
		enabled: true,
		cache:   cache.New(cfg.Cache.TTL, cfg.Cache.TTL*2),
		logger:  logger,
		maxSize: cfg.Cache.MaxSize,
	}
}

// Get retrieves a cached reply
func (c *Cache) Get(ctx context.Context, question, provider string) (string, bool) {
	if !c.enabled {
		return "", false
	}

	key := c.generateKey(question, provider)
	if val, found := c.cache.Get(key); found {
		e := val.(*entry)
		c.logger.WithFields(logrus.Fields{
			"provider": provider,
			"age":      time.Since(e.CreatedAt),
		}).Debug("Cache hit")
		return e.Reply, true
	}

	return "", false
}

// Set stores a reply in cache
func (c *Cache) Set(ctx context.Context, question, provider, reply string) error {
	if !c.enabled {
		return nil
	}

	// Check cache size
	if c.cache.ItemCount() >= c.maxSize {
		c.logger.Warn("Cache size limit reached, clearing old entries")
		c.cache.DeleteExpired()
	}

	key := c.generateKey(question, provider)
	c.cache.SetDefault(key, &entry{
		Question:  question,
		Reply:     reply,
		Provider:  provider,
		CreatedAt: time.Now(),
	})

	return nil
}

// Clear removes all cached entries
func (c *Cache) Clear(ctx context.Context) error {
	if !c.enabled {
		return nil
	}

	c.cache.Flush()
	c.logger.Info("Cache cleared")
	return nil
}

// generateKey creates a unique cache key
func (c *Cache) generateKey(question, provider string) string {
	data := fmt.Sprintf("%s:%s", provider, question)
	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}
