package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/ai-compare-chat-go/internal/chat"
	"github.com/ai-compare-chat-go/internal/config"
	"github.com/ai-compare-chat-go/internal/i18n"
	"github.com/ai-compare-chat-go/internal/middleware"
	"github.com/ai-compare-chat-go/internal/models"
	"github.com/ai-compare-chat-go/internal/services/provider"
	"github.com/ai-compare-chat-go/pkg/markdown"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

// ChatHandler exposes the aggregator operations over HTTP
type ChatHandler struct {
	config      *config.Config
	aggregator  *chat.Aggregator
	providers   provider.Service
	rateLimiter middleware.RateLimiter
	metrics     *middleware.Metrics
	localizer   *i18n.Localizer
	logger      *logrus.Logger
}

// NewChatHandler creates a new chat handler
func NewChatHandler(
	cfg *config.Config,
	aggregator *chat.Aggregator,
	providers provider.Service,
	rateLimiter middleware.RateLimiter,
	metrics *middleware.Metrics,
	localizer *i18n.Localizer,
	logger *logrus.Logger,
) *ChatHandler {
	return &ChatHandler{
		config:      cfg,
		aggregator:  aggregator,
		providers:   providers,
		rateLimiter: rateLimiter,
		metrics:     metrics,
		localizer:   localizer,
		logger:      logger,
	}
}

// RegisterRoutes registers all API routes on the router
func (h *ChatHandler) RegisterRoutes(router *mux.Router) {
	api := router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/chat", h.SubmitQuestion).Methods(http.MethodPost)
	api.HandleFunc("/history", h.GetHistory).Methods(http.MethodGet)
	api.HandleFunc("/history/clear", h.ClearHistory).Methods(http.MethodPost)
	api.HandleFunc("/questions", h.GetQuestions).Methods(http.MethodGet)
	api.HandleFunc("/questions/{id}/responses", h.GetResponses).Methods(http.MethodGet)
	api.HandleFunc("/messages/{id}/rating", h.RateMessage).Methods(http.MethodPost)
	api.HandleFunc("/messages/{id}/rating", h.OverwriteRating).Methods(http.MethodPut)
	api.HandleFunc("/providers", h.GetProviders).Methods(http.MethodGet)
	api.HandleFunc("/export", h.Export).Methods(http.MethodGet)
}

type submitRequest struct {
	Content string `json:"content"`
}

type submitResponse struct {
	Question  models.UserQuestion `json:"question"`
	Responses []models.Message    `json:"responses"`
}

// SubmitQuestion handles POST /api/chat
func (h *ChatHandler) SubmitQuestion(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	lang := h.language(r)

	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	// Input validation happens here, at the presentation boundary
	content := strings.TrimSpace(req.Content)
	if content == "" {
		h.respondError(w, http.StatusBadRequest, h.localizer.Get(lang, i18n.MsgEmptyQuestion, nil))
		return
	}
	if len(content) > h.config.Chat.MaxQuestionBytes {
		h.respondError(w, http.StatusBadRequest, h.localizer.Get(lang, i18n.MsgQuestionTooLong, nil))
		return
	}

	clientID := middleware.ClientID(r.Context())
	if !h.rateLimiter.Allow(clientID) {
		h.metrics.RecordRateLimitExceeded(clientID)
		h.respondError(w, http.StatusTooManyRequests, h.localizer.Get(lang, i18n.MsgRateLimitExceeded, nil))
		return
	}

	userID := middleware.UserID(r.Context())
	responses, err := h.aggregator.SubmitQuestion(r.Context(), content, userID)
	if err != nil {
		switch {
		case errors.Is(err, chat.ErrBusy):
			h.metrics.RecordQuestionSubmitted("busy")
			h.respondError(w, http.StatusConflict, h.localizer.Get(lang, i18n.MsgBatchInFlight, nil))
		case errors.Is(err, chat.ErrEmptyQuestion):
			h.metrics.RecordQuestionSubmitted("invalid")
			h.respondError(w, http.StatusBadRequest, h.localizer.Get(lang, i18n.MsgEmptyQuestion, nil))
		default:
			h.logger.WithError(err).Error("Provider batch failed")
			h.metrics.RecordQuestionSubmitted("error")
			h.metrics.RecordProviderBatch("error", time.Since(start))
			h.respondError(w, http.StatusBadGateway, h.localizer.Get(lang, i18n.MsgBatchFailed, nil))
		}
		return
	}

	h.metrics.RecordQuestionSubmitted("success")
	h.metrics.RecordProviderBatch("success", time.Since(start))
	for _, resp := range responses {
		h.metrics.RecordProviderResponse(resp.Provider)
	}

	questions := h.aggregator.Questions()
	h.respondJSON(w, http.StatusOK, submitResponse{
		Question:  questions[len(questions)-1],
		Responses: responses,
	})
}

// GetHistory handles GET /api/history. With format=html the message contents
// are rendered from markdown to sanitized HTML.
func (h *ChatHandler) GetHistory(w http.ResponseWriter, r *http.Request) {
	messages := h.aggregator.Messages()

	if r.URL.Query().Get("format") == "html" {
		for i := range messages {
			if messages[i].IsAI {
				messages[i].Content = markdown.ToSafeHTML(messages[i].Content)
			}
		}
	}

	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"messages": messages,
		"loading":  h.aggregator.Loading(),
	})
}

// GetQuestions handles GET /api/questions
func (h *ChatHandler) GetQuestions(w http.ResponseWriter, r *http.Request) {
	questions := h.aggregator.Questions()
	if questions == nil {
		questions = []models.UserQuestion{}
	}
	h.respondJSON(w, http.StatusOK, map[string]interface{}{"questions": questions})
}

// GetResponses handles GET /api/questions/{id}/responses
func (h *ChatHandler) GetResponses(w http.ResponseWriter, r *http.Request) {
	questionID := mux.Vars(r)["id"]

	responses := h.aggregator.ResponsesForQuestion(questionID)
	if responses == nil {
		responses = []models.Message{}
	}
	h.respondJSON(w, http.StatusOK, map[string]interface{}{"responses": responses})
}

type ratingRequest struct {
	Rating models.Rating `json:"rating"`
}

// RateMessage handles POST /api/messages/{id}/rating with toggle semantics.
func (h *ChatHandler) RateMessage(w http.ResponseWriter, r *http.Request) {
	lang := h.language(r)
	messageID := mux.Vars(r)["id"]

	var req ratingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if !req.Rating.Valid() {
		h.respondError(w, http.StatusBadRequest, "rating must be like or dislike")
		return
	}

	userID := middleware.UserID(r.Context())
	result, err := h.aggregator.RateMessage(r.Context(), messageID, req.Rating, userID)
	if err != nil {
		if errors.Is(err, chat.ErrMessageNotFound) {
			h.respondError(w, http.StatusNotFound, "message not found")
			return
		}
		h.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	var ack string
	switch result {
	case models.RatingLike:
		ack = h.localizer.Get(lang, i18n.MsgLikeRecorded, nil)
	case models.RatingDislike:
		ack = h.localizer.Get(lang, i18n.MsgDislikeRecorded, nil)
	default:
		ack = h.localizer.Get(lang, i18n.MsgRatingCleared, nil)
	}

	h.metrics.RecordRating(string(req.Rating))
	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"rating":  result,
		"message": ack,
	})
}

// OverwriteRating handles PUT /api/messages/{id}/rating, the rating-map
// variant: a new rating always overwrites, there is no unset.
func (h *ChatHandler) OverwriteRating(w http.ResponseWriter, r *http.Request) {
	messageID := mux.Vars(r)["id"]

	var req ratingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if !req.Rating.Valid() {
		h.respondError(w, http.StatusBadRequest, "rating must be like or dislike")
		return
	}

	if err := h.aggregator.SetRating(r.Context(), messageID, req.Rating); err != nil {
		h.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	h.metrics.RecordRating(string(req.Rating))
	h.respondJSON(w, http.StatusOK, map[string]interface{}{"rating": req.Rating})
}

type clearRequest struct {
	Confirm bool `json:"confirm"`
}

// ClearHistory handles POST /api/history/clear. The confirm flag carries the
// presentation layer's user confirmation.
func (h *ChatHandler) ClearHistory(w http.ResponseWriter, r *http.Request) {
	lang := h.language(r)

	var req clearRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if !req.Confirm {
		h.respondError(w, http.StatusBadRequest, "confirmation required")
		return
	}

	h.aggregator.ClearHistory(r.Context())
	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"message": h.localizer.Get(lang, i18n.MsgHistoryCleared, nil),
	})
}

// GetProviders handles GET /api/providers
func (h *ChatHandler) GetProviders(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"providers": h.providers.Providers(),
	})
}

// Export handles GET /api/export, delivering the full conversation as a
// downloadable JSON document.
func (h *ChatHandler) Export(w http.ResponseWriter, r *http.Request) {
	data, filename, err := h.aggregator.ExportData()
	if err != nil {
		h.logger.WithError(err).Error("Failed to export conversation")
		h.respondError(w, http.StatusInternalServerError, "export failed")
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

// language picks the response language from the Accept-Language header.
func (h *ChatHandler) language(r *http.Request) string {
	header := r.Header.Get("Accept-Language")
	if strings.HasPrefix(header, "zh") {
		return "zh"
	}
	if strings.HasPrefix(header, "en") {
		return "en"
	}
	return h.config.I18n.DefaultLanguage
}

func (h *ChatHandler) respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.logger.WithError(err).Error("Failed to encode response")
	}
}

func (h *ChatHandler) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, map[string]string{"error": message})
}
