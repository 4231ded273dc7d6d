package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strings"

	"physics-chat/internal/middleware"
	"physics-chat/internal/models"
	"physics-chat/internal/session"
)

const maxMessageBytes = 64 << 10

type chatService interface {
	History(sessionID string) []models.Turn
	Submit(ctx context.Context, sessionID, text string) ([]models.Turn, error)
}

type pageRenderer interface {
	Page(w io.Writer, turns []models.Turn) error
}

type ChatHandler struct {
	chat     chatService
	renderer pageRenderer
}

func NewChatHandler(chat chatService, renderer pageRenderer) *ChatHandler {
	return &ChatHandler{
		chat:     chat,
		renderer: renderer,
	}
}

// Page renders the chat page with the full history of the caller's session.
func (h *ChatHandler) Page(w http.ResponseWriter, r *http.Request) {
	sessionID := middleware.GetSessionID(r.Context())

	var buf bytes.Buffer
	if err := h.renderer.Page(&buf, h.chat.History(sessionID)); err != nil {
		log.Printf("failed to render chat page for session %s: %v", sessionID, err)
		http.Error(w, "Failed to render page", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write(buf.Bytes())
}

// SubmitForm handles the page's input box. Blank input is ignored and the
// browser is always sent back to the page.
func (h *ChatHandler) SubmitForm(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxMessageBytes)
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Invalid form", http.StatusBadRequest)
		return
	}

	sessionID := middleware.GetSessionID(r.Context())
	_, err := h.chat.Submit(r.Context(), sessionID, r.PostFormValue("message"))
	switch {
	case err == nil, errors.Is(err, session.ErrEmptyMessage), errors.Is(err, session.ErrReplyPending):
	default:
		log.Printf("chat submission failed for session %s: %v", sessionID, err)
		http.Error(w, "Failed to process message", http.StatusInternalServerError)
		return
	}

	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (h *ChatHandler) GetHistory(w http.ResponseWriter, r *http.Request) {
	sessionID := middleware.GetSessionID(r.Context())
	writeJSON(w, http.StatusOK, models.HistoryResponse{
		SessionID: sessionID,
		Turns:     h.chat.History(sessionID),
	})
}

func (h *ChatHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxMessageBytes)

	var req models.ChatRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid request body", r))
		return
	}

	if strings.TrimSpace(req.Message) == "" {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Message is required", r))
		return
	}

	sessionID := middleware.GetSessionID(r.Context())
	turns, err := h.chat.Submit(r.Context(), sessionID, req.Message)
	if err != nil {
		switch {
		case errors.Is(err, session.ErrEmptyMessage):
			writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Message is required", r))
		case errors.Is(err, session.ErrReplyPending):
			writeJSON(w, http.StatusConflict, errorResp("REPLY_PENDING", "A reply is still being generated", r))
		default:
			log.Printf("chat submission failed for session %s: %v", sessionID, err)
			writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to process message", r))
		}
		return
	}

	writeJSON(w, http.StatusOK, models.ChatResponse{Turns: turns})
}
