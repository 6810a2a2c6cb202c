package provider

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/ai-compare-chat-go/internal/config"
	"github.com/ai-compare-chat-go/internal/models"
	"github.com/ai-compare-chat-go/internal/services/cache"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Service generates one mock response per configured provider.
type Service interface {
	Generate(ctx context.Context, text, providerID string) (string, error)
	GenerateAll(ctx context.Context, text string) ([]models.ProviderResponse, error)
	Providers() []Descriptor
}

// Descriptor is the public view of a configured provider.
type Descriptor struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
}

// MockGenerator produces canned replies per provider, with simulated network
// latency. The reply language follows the input: CJK input gets a Chinese
// reply, anything else English.
type MockGenerator struct {
	cfg       *config.ProvidersConfig
	endpoints map[string]*config.ProviderEndpoint
	order     []string
	cache     cache.Service
	logger    *logrus.Logger

	mu  sync.Mutex
	rng *rand.Rand
}

// NewMockGenerator creates a generator from configured provider descriptors.
func NewMockGenerator(cfg *config.ProvidersConfig, cacheService cache.Service, logger *logrus.Logger) *MockGenerator {
	endpoints := make(map[string]*config.ProviderEndpoint)
	order := make([]string, 0, len(cfg.Endpoints))

	for i := range cfg.Endpoints {
		ep := &cfg.Endpoints[i]
		endpoints[ep.ID] = ep
		order = append(order, ep.ID)

		logger.WithFields(logrus.Fields{
			"provider":    ep.ID,
			"displayName": ep.DisplayName,
		}).Info("Loaded provider")
	}

	logger.WithField("providerCount", len(order)).Info("Provider service initialized")

	return &MockGenerator{
		cfg:       cfg,
		endpoints: endpoints,
		order:     order,
		cache:     cacheService,
		logger:    logger,
		rng:       rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Providers returns the configured providers in configuration order.
func (g *MockGenerator) Providers() []Descriptor {
	out := make([]Descriptor, 0, len(g.order))
	for _, id := range g.order {
		ep := g.endpoints[id]
		out = append(out, Descriptor{ID: ep.ID, DisplayName: ep.DisplayName})
	}
	return out
}

// Generate produces a single provider's reply, after a randomized delay that
// emulates network variance.
func (g *MockGenerator) Generate(ctx context.Context, text, providerID string) (string, error) {
	ep, exists := g.endpoints[providerID]
	if !exists {
		return "", fmt.Errorf("provider not found: %s", providerID)
	}

	if cached, found := g.cache.Get(ctx, text, providerID); found {
		return cached, nil
	}

	delay := g.randomDelay()
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case <-time.After(delay):
	}

	lang := "en"
	if containsCJK(text) {
		lang = "zh"
	}

	reply := g.pickReply(ep, lang, text)

	if err := g.cache.Set(ctx, text, providerID, reply); err != nil {
		g.logger.WithError(err).Debug("Failed to cache reply")
	}

	g.logger.WithFields(logrus.Fields{
		"provider": providerID,
		"lang":     lang,
		"delay":    delay,
	}).Debug("Generated mock response")

	return reply, nil
}

// GenerateAll fans out to every configured provider concurrently and joins
// with an all-or-nothing barrier: one failure fails the whole batch.
func (g *MockGenerator) GenerateAll(ctx context.Context, text string) ([]models.ProviderResponse, error) {
	responses := make([]models.ProviderResponse, len(g.order))

	eg, egCtx := errgroup.WithContext(ctx)
	for i, id := range g.order {
		i, id := i, id
		eg.Go(func() error {
			reply, err := g.Generate(egCtx, text, id)
			if err != nil {
				return fmt.Errorf("provider %s: %w", id, err)
			}
			responses[i] = models.ProviderResponse{Provider: id, Message: reply}
			return nil
		})
	}

	if err := eg.Wait(); err != nil {
		return nil, err
	}

	return responses, nil
}

func (g *MockGenerator) randomDelay() time.Duration {
	g.mu.Lock()
	defer g.mu.Unlock()

	span := g.cfg.MaxLatency - g.cfg.MinLatency
	if span <= 0 {
		return g.cfg.MinLatency
	}
	return g.cfg.MinLatency + time.Duration(g.rng.Int63n(int64(span)))
}

// pickReply chooses a canned reply for the detected language. Falls back to
// built-in templates when the provider has none configured.
func (g *MockGenerator) pickReply(ep *config.ProviderEndpoint, lang, text string) string {
	replies := ep.Replies[lang]
	if len(replies) == 0 {
		replies = defaultReplies[lang]
	}
	if len(replies) == 0 {
		replies = defaultReplies["en"]
	}

	g.mu.Lock()
	reply := replies[g.rng.Intn(len(replies))]
	g.mu.Unlock()

	if strings.Contains(reply, "%s") {
		return fmt.Sprintf(reply, ep.DisplayName)
	}
	return reply
}

// containsCJK reports whether the text contains any CJK character.
func containsCJK(text string) bool {
	for _, r := range text {
		if unicode.Is(unicode.Han, r) || unicode.Is(unicode.Hiragana, r) ||
			unicode.Is(unicode.Katakana, r) || unicode.Is(unicode.Hangul, r) {
			return true
		}
	}
	return false
}

// Built-in reply templates, used when a provider has no configured ones.
// %s is the provider display name.
var defaultReplies = map[string][]string{
	"zh": {
		"你好！我是%s。很高兴为您服务，有什么我能帮助您的吗？",
		"感谢您的提问。我是%s，目前我是一个模拟回复，将来会连接到真实的AI接口为您提供更准确的回答。",
		"这是一个很好的问题！%s建议您从多个角度思考这个问题，我可以为您详细分析。",
		"%s收到您的问题了。根据我的理解，这个问题可以从以下几个方面来看待。",
	},
	"en": {
		"Hello! I'm %s. How can I help you today?",
		"Thanks for your question. %s is currently a simulated assistant; a real AI backend will be connected later.",
		"That's a great question! %s suggests looking at it from several angles, and I'm happy to go deeper.",
		"%s received your question. Here's how I would think about it.",
	},
}
