package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/sakif/mediahub/internal/apperror"
	"github.com/sakif/mediahub/internal/metrics"
	"github.com/sakif/mediahub/internal/service"
)

const maxChatRequest = 2*service.MaxPromptBytes + 1<<10

// ChatHandler serves the chatbot page and proxies prompts to the
// chat-completion provider.
type ChatHandler struct {
	chat   *service.ChatService
	pages  *Pages
	rec    metrics.Recorder
	logger *slog.Logger
}

func NewChatHandler(chat *service.ChatService, pages *Pages, rec metrics.Recorder, logger *slog.Logger) *ChatHandler {
	return &ChatHandler{chat: chat, pages: pages, rec: rec, logger: logger}
}

// HandlePage shows the chat window. When no provider is configured the page
// says so instead of offering a prompt box that can only fail.
//
// HTTP: GET /chatbot
func (h *ChatHandler) HandlePage(w http.ResponseWriter, r *http.Request) {
	h.pages.render(w, r, http.StatusOK, PageChatbot, View{
		Title:       "Chatbot",
		ChatEnabled: h.chat.Enabled(),
	})
}

type chatRequest struct {
	Prompt string `json:"prompt"`
}

// HandleAsk sends one prompt and returns the reply.
//
// HTTP: POST /api/chat
// REQUEST BODY: {"prompt": "..."}
// RESPONSE: {"reply": "..."}
//
// ERRORS: 400 empty prompt, 503 chat not configured, 502 provider failed.
func (h *ChatHandler) HandleAsk(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxChatRequest)

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.rec.Chat(metrics.ChatInvalid)
		badRequest(w, "Invalid JSON body")
		return
	}

	reply, err := h.chat.Ask(r.Context(), req.Prompt)
	if err != nil {
		h.rec.Chat(chatOutcome(err))
		if status, _ := statusFor(err); status == http.StatusInternalServerError {
			h.logger.Error("chat failed", slog.String("error", err.Error()))
		}
		writeError(w, err)
		return
	}

	h.rec.Chat(metrics.ChatOK)
	writeJSON(w, http.StatusOK, replyResponse{Reply: reply})
}

func chatOutcome(err error) string {
	switch {
	case errors.Is(err, apperror.ErrValidation):
		return metrics.ChatInvalid
	case errors.Is(err, apperror.ErrUnavailable):
		return metrics.ChatUnavailable
	}
	return metrics.ChatError
}
