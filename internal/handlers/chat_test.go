package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ai-compare-chat-go/internal/chat"
	"github.com/ai-compare-chat-go/internal/config"
	"github.com/ai-compare-chat-go/internal/i18n"
	"github.com/ai-compare-chat-go/internal/middleware"
	"github.com/ai-compare-chat-go/internal/models"
	"github.com/ai-compare-chat-go/internal/services/provider"
	"github.com/ai-compare-chat-go/internal/services/storage"
	remotesync "github.com/ai-compare-chat-go/internal/services/sync"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

func testLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

type fakeGenerator struct {
	providers []string
	fail      bool
}

func (f *fakeGenerator) Generate(ctx context.Context, text, providerID string) (string, error) {
	return "reply from " + providerID, nil
}

func (f *fakeGenerator) GenerateAll(ctx context.Context, text string) ([]models.ProviderResponse, error) {
	if f.fail {
		return nil, errors.New("provider unavailable")
	}
	responses := make([]models.ProviderResponse, 0, len(f.providers))
	for _, id := range f.providers {
		responses = append(responses, models.ProviderResponse{Provider: id, Message: "**bold** reply from " + id})
	}
	return responses, nil
}

func (f *fakeGenerator) Providers() []provider.Descriptor {
	out := make([]provider.Descriptor, 0, len(f.providers))
	for _, id := range f.providers {
		out = append(out, provider.Descriptor{ID: id, DisplayName: id})
	}
	return out
}

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Storage.Type = "memory"
	cfg.Storage.Memory.CleanupInterval = time.Minute
	cfg.Chat.MaxQuestionBytes = 256
	cfg.I18n.DefaultLanguage = "zh"
	cfg.I18n.Directory = "../../configs/i18n"
	cfg.I18n.Languages = []string{"zh", "en"}
	return cfg
}

func newTestServer(t *testing.T, gen provider.Service) (*httptest.Server, *chat.Aggregator) {
	t.Helper()
	cfg := testConfig()

	store, err := storage.NewManager(cfg, testLogger())
	if err != nil {
		t.Fatalf("failed to create storage: %v", err)
	}

	localizer, err := i18n.NewLocalizer(&cfg.I18n)
	if err != nil {
		t.Fatalf("failed to create localizer: %v", err)
	}

	welcome := localizer.Get("zh", i18n.MsgWelcome, nil)
	aggregator := chat.NewAggregator(gen, store, &remotesync.NoopSync{}, welcome, testLogger())
	aggregator.ReloadFromStore(context.Background())

	handler := NewChatHandler(
		cfg,
		aggregator,
		gen,
		middleware.NewRateLimiter(cfg, testLogger()),
		middleware.NewMetrics(),
		localizer,
		testLogger(),
	)

	router := mux.NewRouter()
	identity := middleware.NewIdentity(&cfg.Auth, testLogger())
	router.Use(identity.Middleware)
	handler.RegisterRoutes(router)

	server := httptest.NewServer(router)
	t.Cleanup(server.Close)
	return server, aggregator
}

func postJSON(t *testing.T, url, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	return resp
}

func decodeBody(t *testing.T, resp *http.Response) map[string]interface{} {
	t.Helper()
	defer resp.Body.Close()
	var body map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response body: %v", err)
	}
	return body
}

func TestSubmitQuestion_ReturnsResponses(t *testing.T) {
	server, _ := newTestServer(t, &fakeGenerator{providers: []string{"doubao", "openai"}})

	resp := postJSON(t, server.URL+"/api/chat", `{"content":"什么是Go？"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	body := decodeBody(t, resp)
	responses := body["responses"].([]interface{})
	if len(responses) != 2 {
		t.Errorf("expected 2 responses, got %d", len(responses))
	}
	question := body["question"].(map[string]interface{})
	if question["content"] != "什么是Go？" {
		t.Errorf("unexpected question payload: %+v", question)
	}
}

func TestSubmitQuestion_EmptyContentRejected(t *testing.T) {
	server, agg := newTestServer(t, &fakeGenerator{providers: []string{"doubao"}})

	for _, body := range []string{`{"content":""}`, `{"content":"   "}`, `{}`} {
		resp := postJSON(t, server.URL+"/api/chat", body)
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("body %s: expected 400, got %d", body, resp.StatusCode)
		}
		resp.Body.Close()
	}

	// Nothing was appended past the welcome message
	if got := len(agg.Messages()); got != 1 {
		t.Errorf("expected conversation untouched, got %d messages", got)
	}
}

func TestSubmitQuestion_ProviderFailureReturnsBadGateway(t *testing.T) {
	server, agg := newTestServer(t, &fakeGenerator{providers: []string{"doubao"}, fail: true})

	resp := postJSON(t, server.URL+"/api/chat", `{"content":"doomed"}`)
	if resp.StatusCode != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", resp.StatusCode)
	}

	// The user question stays, no AI responses were appended
	messages := agg.Messages()
	if len(messages) != 2 {
		t.Fatalf("expected welcome + user message, got %d messages", len(messages))
	}
	if messages[1].IsAI {
		t.Error("expected trailing message to be the user question")
	}
}

func TestRateMessage_ToggleOverHTTP(t *testing.T) {
	server, agg := newTestServer(t, &fakeGenerator{providers: []string{"doubao"}})

	postJSON(t, server.URL+"/api/chat", `{"content":"rate me"}`).Body.Close()

	var target string
	for _, m := range agg.Messages() {
		if m.IsAI && m.Provider == "doubao" {
			target = m.ID
		}
	}
	if target == "" {
		t.Fatal("no AI message found to rate")
	}

	resp := postJSON(t, server.URL+"/api/messages/"+target+"/rating", `{"rating":"like"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if body := decodeBody(t, resp); body["rating"] != "like" {
		t.Errorf("expected rating like, got %v", body["rating"])
	}

	// Second identical rating clears it
	resp = postJSON(t, server.URL+"/api/messages/"+target+"/rating", `{"rating":"like"}`)
	if body := decodeBody(t, resp); body["rating"] != "" {
		t.Errorf("expected rating cleared, got %v", body["rating"])
	}
}

func TestRateMessage_UnknownMessage(t *testing.T) {
	server, _ := newTestServer(t, &fakeGenerator{providers: []string{"doubao"}})

	resp := postJSON(t, server.URL+"/api/messages/424242/rating", `{"rating":"like"}`)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404, got %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestRateMessage_InvalidRating(t *testing.T) {
	server, _ := newTestServer(t, &fakeGenerator{providers: []string{"doubao"}})

	resp := postJSON(t, server.URL+"/api/messages/1/rating", `{"rating":"meh"}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestClearHistory_RequiresConfirmation(t *testing.T) {
	server, agg := newTestServer(t, &fakeGenerator{providers: []string{"doubao"}})

	postJSON(t, server.URL+"/api/chat", `{"content":"to be cleared"}`).Body.Close()

	resp := postJSON(t, server.URL+"/api/history/clear", `{"confirm":false}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400 without confirmation, got %d", resp.StatusCode)
	}
	resp.Body.Close()
	if len(agg.Messages()) < 2 {
		t.Error("history cleared without confirmation")
	}

	resp = postJSON(t, server.URL+"/api/history/clear", `{"confirm":true}`)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200 with confirmation, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	messages := agg.Messages()
	if len(messages) != 1 || !messages[0].IsAI {
		t.Errorf("expected single welcome message after clear, got %d messages", len(messages))
	}
}

func TestGetHistory_HTMLFormatRendersMarkdown(t *testing.T) {
	server, _ := newTestServer(t, &fakeGenerator{providers: []string{"doubao"}})

	postJSON(t, server.URL+"/api/chat", `{"content":"markdown please"}`).Body.Close()

	resp, err := http.Get(server.URL + "/api/history?format=html")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	body := decodeBody(t, resp)

	found := false
	for _, raw := range body["messages"].([]interface{}) {
		m := raw.(map[string]interface{})
		if m["isAi"] == true && strings.Contains(m["content"].(string), "<b>bold</b>") {
			found = true
		}
	}
	if !found {
		t.Error("expected markdown rendered to <b> in html format")
	}
}

func TestGetResponses_ForQuestion(t *testing.T) {
	server, agg := newTestServer(t, &fakeGenerator{providers: []string{"doubao", "openai"}})

	postJSON(t, server.URL+"/api/chat", `{"content":"windowed"}`).Body.Close()
	questionID := agg.Questions()[0].ID

	resp, err := http.Get(server.URL + "/api/questions/" + questionID + "/responses")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	body := decodeBody(t, resp)
	if got := len(body["responses"].([]interface{})); got != 2 {
		t.Errorf("expected 2 responses in window, got %d", got)
	}
}

func TestExport_SetsDownloadHeaders(t *testing.T) {
	server, _ := newTestServer(t, &fakeGenerator{providers: []string{"doubao"}})

	resp, err := http.Get(server.URL + "/api/export")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	disposition := resp.Header.Get("Content-Disposition")
	if !strings.Contains(disposition, "ai-chat-data-") || !strings.Contains(disposition, ".json") {
		t.Errorf("unexpected Content-Disposition %q", disposition)
	}

	data, _ := io.ReadAll(resp.Body)
	var exported []models.Message
	if err := json.Unmarshal(data, &exported); err != nil {
		t.Fatalf("export body is not a message array: %v", err)
	}
}

func TestGetProviders(t *testing.T) {
	server, _ := newTestServer(t, &fakeGenerator{providers: []string{"doubao", "openai", "deepseek"}})

	resp, err := http.Get(server.URL + "/api/providers")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	body := decodeBody(t, resp)
	if got := len(body["providers"].([]interface{})); got != 3 {
		t.Errorf("expected 3 providers, got %d", got)
	}
}
