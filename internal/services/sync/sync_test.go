package sync

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/ai-compare-chat-go/internal/config"
	"github.com/ai-compare-chat-go/internal/models"
	"github.com/sirupsen/logrus"
)

func testLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

type recordedRequest struct {
	Method string
	Path   string
	Body   map[string]interface{}
}

type recordingServer struct {
	mu       sync.Mutex
	requests []recordedRequest
	server   *httptest.Server
}

func newRecordingServer(t *testing.T) *recordingServer {
	t.Helper()
	rs := &recordingServer{}
	rs.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]interface{}
		json.NewDecoder(r.Body).Decode(&body)

		rs.mu.Lock()
		rs.requests = append(rs.requests, recordedRequest{
			Method: r.Method,
			Path:   r.URL.Path,
			Body:   body,
		})
		rs.mu.Unlock()

		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(rs.server.Close)
	return rs
}

func (rs *recordingServer) recorded() []recordedRequest {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	out := make([]recordedRequest, len(rs.requests))
	copy(out, rs.requests)
	return out
}

func newTestSync(t *testing.T, baseURL string) Service {
	t.Helper()
	return NewRemoteSync(&config.SyncConfig{
		Enabled: true,
		BaseURL: baseURL,
		Timeout: 2 * time.Second,
	}, testLogger())
}

func TestMirrorRating_UpsertsByUserAndMessage(t *testing.T) {
	rs := newRecordingServer(t)
	svc := newTestSync(t, rs.server.URL)

	svc.MirrorRating(context.Background(), "user-1", "1001", models.RatingLike)

	requests := rs.recorded()
	if len(requests) != 1 {
		t.Fatalf("expected 1 request, got %d", len(requests))
	}
	req := requests[0]
	if req.Method != http.MethodPut {
		t.Errorf("expected PUT, got %s", req.Method)
	}
	if req.Path != "/ratings/user-1/1001" {
		t.Errorf("unexpected path %s", req.Path)
	}
	if req.Body["rating"] != "like" || req.Body["user_id"] != "user-1" || req.Body["message_id"] != "1001" {
		t.Errorf("unexpected payload %+v", req.Body)
	}
}

func TestMirrorRating_Idempotent(t *testing.T) {
	rs := newRecordingServer(t)
	svc := newTestSync(t, rs.server.URL)

	// Re-sending the same rating results in identical upserts
	svc.MirrorRating(context.Background(), "user-1", "1001", models.RatingLike)
	svc.MirrorRating(context.Background(), "user-1", "1001", models.RatingLike)

	requests := rs.recorded()
	if len(requests) != 2 {
		t.Fatalf("expected 2 requests, got %d", len(requests))
	}
	if requests[0].Path != requests[1].Path {
		t.Errorf("idempotent upserts should hit the same key: %s vs %s", requests[0].Path, requests[1].Path)
	}
}

func TestMirrorConversation_LinksResponsesToPrecedingQuestion(t *testing.T) {
	rs := newRecordingServer(t)
	svc := newTestSync(t, rs.server.URL)

	messages := []models.Message{
		{ID: "1", Content: "welcome", IsAI: true, Provider: "mock"},
		{ID: "1000", Content: "q1", IsAI: false},
		{ID: "1001", Content: "a1", IsAI: true, Provider: "doubao"},
		{ID: "1002", Content: "a2", IsAI: true, Provider: "openai"},
		{ID: "2000", Content: "q2", IsAI: false},
		{ID: "2001", Content: "a3", IsAI: true, Provider: "doubao"},
	}

	svc.MirrorConversation(context.Background(), "user-1", messages)

	requests := rs.recorded()
	// 2 questions + 3 responses; the unowned welcome message is skipped
	if len(requests) != 5 {
		t.Fatalf("expected 5 upserts, got %d", len(requests))
	}

	questionFor := make(map[string]string)
	for _, req := range requests {
		if id, ok := req.Body["question_id"].(string); ok {
			questionFor[req.Body["id"].(string)] = id
		}
	}

	want := map[string]string{"1001": "1000", "1002": "1000", "2001": "2000"}
	for id, qid := range want {
		if questionFor[id] != qid {
			t.Errorf("response %s linked to question %q, want %q", id, questionFor[id], qid)
		}
	}
}

func TestMirrorConversation_ServerErrorSwallowed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer server.Close()

	svc := newTestSync(t, server.URL)

	// Must not panic or surface the failure
	svc.MirrorConversation(context.Background(), "user-1", []models.Message{
		{ID: "1000", Content: "q", IsAI: false},
		{ID: "1001", Content: "a", IsAI: true, Provider: "doubao"},
	})
	svc.MirrorRating(context.Background(), "user-1", "1001", models.RatingDislike)
}

func TestMirrorConversation_UnreachableHostSwallowed(t *testing.T) {
	svc := newTestSync(t, "http://127.0.0.1:1")

	svc.MirrorRating(context.Background(), "user-1", "1001", models.RatingLike)
}

func TestNoopSync_WhenDisabled(t *testing.T) {
	svc := NewRemoteSync(&config.SyncConfig{Enabled: false}, testLogger())

	if _, ok := svc.(*NoopSync); !ok {
		t.Errorf("expected NoopSync when sync disabled, got %T", svc)
	}
}
