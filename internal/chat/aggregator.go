package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/ai-compare-chat-go/internal/models"
	"github.com/ai-compare-chat-go/internal/services/provider"
	"github.com/ai-compare-chat-go/internal/services/storage"
	remotesync "github.com/ai-compare-chat-go/internal/services/sync"
	"github.com/sirupsen/logrus"
)

var (
	// ErrBusy is returned while a provider batch is still in flight. The
	// web UI disables input during a batch, which serializes submissions;
	// this is the API-level equivalent.
	ErrBusy = errors.New("a question is already being processed")

	// ErrEmptyQuestion is returned for empty or whitespace-only input that
	// slipped past the presentation boundary.
	ErrEmptyQuestion = errors.New("question must not be empty")

	// ErrMessageNotFound is returned when rating an unknown or non-AI message.
	ErrMessageNotFound = errors.New("message not found")
)

// welcomeID is the fixed id of the seeded welcome message.
const welcomeID = "1"

// welcomeProvider tags the seeded welcome message.
const welcomeProvider = "mock"

// Aggregator owns the canonical conversation state: the ordered message
// sequence and the derived list of user questions. It is the only writer;
// the store and the sync service only see snapshots.
type Aggregator struct {
	generator provider.Service
	store     *storage.Manager
	sync      remotesync.Service
	welcome   string
	logger    *logrus.Logger

	mu        sync.Mutex
	messages  []models.Message
	questions []models.UserQuestion
	loading   bool
	lastID    int64
}

// NewAggregator creates an aggregator. welcome is the localized text seeded
// into an empty conversation.
func NewAggregator(
	generator provider.Service,
	store *storage.Manager,
	syncService remotesync.Service,
	welcome string,
	logger *logrus.Logger,
) *Aggregator {
	return &Aggregator{
		generator: generator,
		store:     store,
		sync:      syncService,
		welcome:   welcome,
		logger:    logger,
	}
}

// ReloadFromStore adopts the persisted message sequence as current state and
// reconstructs the question list from the user messages in order,
// deduplicating by content (first occurrence wins). An empty store seeds a
// single welcome message.
func (a *Aggregator) ReloadFromStore(ctx context.Context) {
	saved := a.store.LoadMessages(ctx)

	a.mu.Lock()
	defer a.mu.Unlock()

	if len(saved) == 0 {
		a.seedWelcomeLocked(ctx)
		return
	}

	a.messages = saved
	a.questions = reconstructQuestions(saved)

	a.logger.WithFields(logrus.Fields{
		"messages":  len(a.messages),
		"questions": len(a.questions),
	}).Info("Conversation reloaded from store")
}

// reconstructQuestions extracts the question list from a flat message
// sequence. Two user turns with identical text collapse into one entry;
// dedup is by content, first occurrence wins.
func reconstructQuestions(messages []models.Message) []models.UserQuestion {
	var questions []models.UserQuestion
	seen := make(map[string]bool)

	for _, msg := range messages {
		if msg.IsAI || seen[msg.Content] {
			continue
		}
		ts, err := strconv.ParseInt(msg.ID, 10, 64)
		if err != nil {
			ts = 0
		}
		questions = append(questions, models.UserQuestion{
			ID:        msg.ID,
			Content:   msg.Content,
			Timestamp: ts,
		})
		seen[msg.Content] = true
	}

	return questions
}

func (a *Aggregator) seedWelcomeLocked(ctx context.Context) {
	a.messages = []models.Message{{
		ID:       welcomeID,
		Content:  a.welcome,
		IsAI:     true,
		Provider: welcomeProvider,
	}}
	a.questions = nil
	a.store.SaveMessages(ctx, a.snapshotLocked())
}

// SubmitQuestion appends a user message and a question record, then requests
// one response per configured provider concurrently. The batch is
// all-or-nothing: if any provider fails, no AI messages are appended for this
// turn and the error is surfaced as a retryable failure. While a batch is in
// flight further submissions are rejected with ErrBusy.
func (a *Aggregator) SubmitQuestion(ctx context.Context, text, userID string) ([]models.Message, error) {
	if text == "" {
		return nil, ErrEmptyQuestion
	}

	a.mu.Lock()
	if a.loading {
		a.mu.Unlock()
		return nil, ErrBusy
	}
	a.loading = true

	now := time.Now()
	questionID := a.nextIDLocked(now.UnixMilli())

	a.messages = append(a.messages, models.Message{
		ID:      questionID,
		Content: text,
		IsAI:    false,
	})
	a.questions = append(a.questions, models.UserQuestion{
		ID:        questionID,
		Content:   text,
		Timestamp: now.UnixMilli(),
	})
	snapshot := a.snapshotLocked()
	a.mu.Unlock()

	a.store.SaveMessages(ctx, snapshot)

	responses, err := a.generator.GenerateAll(ctx, text)

	a.mu.Lock()
	a.loading = false
	if err != nil {
		snapshot = a.snapshotLocked()
		a.mu.Unlock()

		a.logger.WithError(err).WithField("question_id", questionID).Error("Provider batch failed")
		a.store.SaveMessages(ctx, snapshot)
		return nil, fmt.Errorf("provider batch failed: %w", err)
	}

	// Response ids share a fresh base offset by position, so resolving
	// within the same millisecond cannot collide with the question id or
	// with siblings.
	base := a.reserveIDsLocked(time.Now().UnixMilli(), len(responses))
	appended := make([]models.Message, 0, len(responses))
	for i, resp := range responses {
		msg := models.Message{
			ID:       strconv.FormatInt(base+int64(i), 10),
			Content:  resp.Message,
			IsAI:     true,
			Provider: resp.Provider,
		}
		a.messages = append(a.messages, msg)
		appended = append(appended, msg)
	}
	snapshot = a.snapshotLocked()
	a.mu.Unlock()

	a.store.SaveMessages(ctx, snapshot)
	a.mirrorConversation(userID, snapshot)

	a.logger.WithFields(logrus.Fields{
		"question_id": questionID,
		"responses":   len(appended),
	}).Info("Question answered")

	return appended, nil
}

// nextIDLocked derives a millisecond-epoch id, bumped past the last issued
// one so ids stay unique even within a single tick.
func (a *Aggregator) nextIDLocked(nowMilli int64) string {
	if nowMilli <= a.lastID {
		nowMilli = a.lastID + 1
	}
	a.lastID = nowMilli
	return strconv.FormatInt(nowMilli, 10)
}

// reserveIDsLocked reserves n consecutive ids and returns the first.
func (a *Aggregator) reserveIDsLocked(nowMilli int64, n int) int64 {
	base := nowMilli + 1
	if base <= a.lastID {
		base = a.lastID + 1
	}
	if n > 0 {
		a.lastID = base + int64(n-1)
	}
	return base
}

// ResponsesForQuestion returns the AI messages owned by a question: every AI
// message after the question's position up to the next user message. Windows
// of distinct questions are disjoint and contiguous because attribution is by
// sequence position, not timestamp. An unknown id yields an empty result.
func (a *Aggregator) ResponsesForQuestion(questionID string) []models.Message {
	a.mu.Lock()
	defer a.mu.Unlock()

	start := -1
	for i, msg := range a.messages {
		if msg.ID == questionID && !msg.IsAI {
			start = i
			break
		}
	}
	if start < 0 {
		return nil
	}

	var responses []models.Message
	for _, msg := range a.messages[start+1:] {
		if !msg.IsAI {
			break
		}
		responses = append(responses, msg)
	}
	return responses
}

// RateMessage toggles a rating on an AI message: requesting the current
// rating clears it, anything else sets it. The new state is persisted and,
// when a user identity is present and a rating remains set, mirrored to the
// remote store.
func (a *Aggregator) RateMessage(ctx context.Context, messageID string, rating models.Rating, userID string) (models.Rating, error) {
	if !rating.Valid() {
		return "", fmt.Errorf("invalid rating: %s", rating)
	}

	a.mu.Lock()
	idx := -1
	for i, msg := range a.messages {
		if msg.ID == messageID && msg.IsAI {
			idx = i
			break
		}
	}
	if idx < 0 {
		a.mu.Unlock()
		return "", ErrMessageNotFound
	}

	if a.messages[idx].Rating == rating {
		a.messages[idx].Rating = ""
	} else {
		a.messages[idx].Rating = rating
	}
	result := a.messages[idx].Rating
	snapshot := a.snapshotLocked()
	a.mu.Unlock()

	a.store.SaveMessages(ctx, snapshot)

	if userID != "" && result != "" {
		go func() {
			syncCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			a.sync.MirrorRating(syncCtx, userID, messageID, result)
		}()
	}

	return result, nil
}

// SetRating is the simpler rating-map API: it overwrites the stored rating
// for a message id with no unset, independent of Message.Rating.
func (a *Aggregator) SetRating(ctx context.Context, messageID string, rating models.Rating) error {
	if !rating.Valid() {
		return fmt.Errorf("invalid rating: %s", rating)
	}

	ratings := a.store.LoadRatings(ctx)
	ratings[messageID] = rating
	a.store.SaveRatings(ctx, ratings)
	return nil
}

// ClearHistory resets the conversation to the single welcome message and
// clears the question list. Confirmation is a presentation-layer concern.
func (a *Aggregator) ClearHistory(ctx context.Context) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.store.Clear(ctx)
	a.seedWelcomeLocked(ctx)

	a.logger.Info("Chat history cleared")
}

// ExportData serializes the full message sequence to a transportable JSON
// document. No state is mutated.
func (a *Aggregator) ExportData() ([]byte, string, error) {
	a.mu.Lock()
	snapshot := a.snapshotLocked()
	a.mu.Unlock()

	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return nil, "", fmt.Errorf("failed to marshal conversation: %w", err)
	}

	filename := fmt.Sprintf("ai-chat-data-%s.json", time.Now().Format("2006-01-02"))
	return data, filename, nil
}

// Messages returns a snapshot of the conversation sequence.
func (a *Aggregator) Messages() []models.Message {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.snapshotLocked()
}

// Questions returns a snapshot of the derived question list.
func (a *Aggregator) Questions() []models.UserQuestion {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]models.UserQuestion, len(a.questions))
	copy(out, a.questions)
	return out
}

// Loading reports whether a provider batch is in flight.
func (a *Aggregator) Loading() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.loading
}

func (a *Aggregator) snapshotLocked() []models.Message {
	out := make([]models.Message, len(a.messages))
	copy(out, a.messages)
	return out
}

// mirrorConversation pushes the snapshot to the remote store when an
// identity is present. Fire-and-forget.
func (a *Aggregator) mirrorConversation(userID string, snapshot []models.Message) {
	if userID == "" {
		return
	}
	go func() {
		syncCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		a.sync.MirrorConversation(syncCtx, userID, snapshot)
	}()
}
