// Package api provides HTTP handlers for the zapbridge relay.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/pbarbosa/zapbridge/internal/domain"
	"github.com/pbarbosa/zapbridge/internal/flow"
	"github.com/pbarbosa/zapbridge/internal/pipeline"
)

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}

// WebhookHandler accepts inbound messages from webhook-style channel
// integrations and feeds them through the pipeline.
type WebhookHandler struct {
	pipe *pipeline.Pipeline
}

// NewWebhookHandler creates a webhook handler.
func NewWebhookHandler(pipe *pipeline.Pipeline) *WebhookHandler {
	return &WebhookHandler{pipe: pipe}
}

// RegisterRoutes registers webhook routes on the router.
func (h *WebhookHandler) RegisterRoutes(r chi.Router) {
	r.Post("/webhook/message", h.handleMessage)
}

type webhookRequest struct {
	WaID     string `json:"waId"`
	Text     string `json:"text"`
	AudioURL string `json:"audioUrl,omitempty"`
}

type webhookResponse struct {
	SessionID string         `json:"sessionId,omitempty"`
	Messages  []flow.Message `json:"messages"`
}

func (h *WebhookHandler) handleMessage(w http.ResponseWriter, r *http.Request) {
	var req webhookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		Error(w, http.StatusBadRequest, "malformed request body")
		return
	}

	msg := domain.InboundMessage{
		EventID:  uuid.NewString(),
		WaID:     req.WaID,
		Text:     req.Text,
		AudioURL: req.AudioURL,
	}

	resp, err := h.pipe.Handle(r.Context(), msg)
	if err != nil {
		switch {
		case errors.Is(err, pipeline.ErrInvalidUserID):
			Error(w, http.StatusBadRequest, "invalid waId")
		default:
			slog.Error("message processing failed", "event_id", msg.EventID, "wa_id", req.WaID, "error", err)
			Error(w, http.StatusBadGateway, "message processing failed")
		}
		return
	}

	messages := resp.Messages
	if messages == nil {
		messages = []flow.Message{}
	}
	JSON(w, http.StatusOK, webhookResponse{
		SessionID: resp.SessionID,
		Messages:  messages,
	})
}
