package sync

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/ai-compare-chat-go/internal/config"
	"github.com/ai-compare-chat-go/internal/models"
	"github.com/sirupsen/logrus"
)

// Service mirrors local conversation state to a remote store. Every method is
// best-effort: failures are logged and swallowed, nothing ever blocks or
// interrupts conversation flow.
type Service interface {
	MirrorRating(ctx context.Context, userID, messageID string, rating models.Rating)
	MirrorConversation(ctx context.Context, userID string, messages []models.Message)
}

// RemoteSync pushes idempotent upserts to a remote HTTP store.
type RemoteSync struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *logrus.Logger
}

// NewRemoteSync creates a sync service for the configured remote store. When
// sync is disabled a no-op service is returned.
func NewRemoteSync(cfg *config.SyncConfig, logger *logrus.Logger) Service {
	if !cfg.Enabled {
		return &NoopSync{}
	}

	return &RemoteSync{
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		logger: logger,
	}
}

type ratingRecord struct {
	UserID    string `json:"user_id"`
	MessageID string `json:"message_id"`
	Rating    string `json:"rating"`
}

type questionRecord struct {
	ID        string `json:"id"`
	UserID    string `json:"user_id"`
	Content   string `json:"content"`
	Timestamp int64  `json:"timestamp"`
}

type responseRecord struct {
	ID         string `json:"id"`
	UserID     string `json:"user_id"`
	QuestionID string `json:"question_id"`
	Provider   string `json:"provider"`
	Content    string `json:"content"`
	Rating     string `json:"rating,omitempty"`
}

// MirrorRating upserts a single rating keyed by (user, message).
func (s *RemoteSync) MirrorRating(ctx context.Context, userID, messageID string, rating models.Rating) {
	record := ratingRecord{
		UserID:    userID,
		MessageID: messageID,
		Rating:    string(rating),
	}

	path := fmt.Sprintf("/ratings/%s/%s", userID, messageID)
	if err := s.upsert(ctx, path, record); err != nil {
		s.logger.WithError(err).WithFields(logrus.Fields{
			"user_id":    userID,
			"message_id": messageID,
		}).Warn("Failed to mirror rating")
	}
}

// MirrorConversation upserts the user's questions and AI responses. Each AI
// response is linked to the nearest preceding user message in the sequence,
// which matches the aggregator's question-window attribution.
func (s *RemoteSync) MirrorConversation(ctx context.Context, userID string, messages []models.Message) {
	questionID := ""
	for _, msg := range messages {
		if !msg.IsAI {
			questionID = msg.ID

			ts, err := strconv.ParseInt(msg.ID, 10, 64)
			if err != nil {
				ts = 0
			}
			record := questionRecord{
				ID:        msg.ID,
				UserID:    userID,
				Content:   msg.Content,
				Timestamp: ts,
			}
			if err := s.upsert(ctx, "/questions/"+msg.ID, record); err != nil {
				s.logger.WithError(err).WithField("question_id", msg.ID).Warn("Failed to mirror question")
			}
			continue
		}

		// AI messages before the first question have no owner (welcome
		// message); those are not mirrored.
		if questionID == "" {
			continue
		}

		record := responseRecord{
			ID:         msg.ID,
			UserID:     userID,
			QuestionID: questionID,
			Provider:   msg.Provider,
			Content:    msg.Content,
			Rating:     string(msg.Rating),
		}
		if err := s.upsert(ctx, "/responses/"+msg.ID, record); err != nil {
			s.logger.WithError(err).WithField("message_id", msg.ID).Warn("Failed to mirror response")
		}
	}
}

// upsert PUTs a record; the remote store overwrites on key collision.
func (s *RemoteSync) upsert(ctx context.Context, path string, record interface{}) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, s.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.apiKey)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("remote store returned status %d: %s", resp.StatusCode, string(body))
	}

	return nil
}

// NoopSync is used when remote sync is disabled.
type NoopSync struct{}

func (n *NoopSync) MirrorRating(ctx context.Context, userID, messageID string, rating models.Rating) {
}

func (n *NoopSync) MirrorConversation(ctx context.Context, userID string, messages []models.Message) {
}
