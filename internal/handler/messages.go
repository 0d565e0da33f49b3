package handler

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/marketloop/chat-service/internal/apperr"
	"github.com/marketloop/chat-service/internal/middleware"
	"github.com/marketloop/chat-service/internal/model"
	"github.com/marketloop/chat-service/internal/service"
	"github.com/marketloop/chat-service/internal/store"
	"github.com/marketloop/chat-service/pkg/logger"
)

// MessageHandler handles message endpoints.
type MessageHandler struct {
	messages *service.MessageService
	receipts *service.ReceiptService
	logger   *logger.Logger
}

// NewMessageHandler creates a new message handler.
func NewMessageHandler(messages *service.MessageService, receipts *service.ReceiptService, log *logger.Logger) *MessageHandler {
	return &MessageHandler{
		messages: messages,
		receipts: receipts,
		logger:   log,
	}
}

// Send handles POST /api/v1/conversations/:id/messages
func (h *MessageHandler) Send(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)
	userName := middleware.GetUserName(ctx)
	conversationID := chi.URLParam(r, "id")

	if err := middleware.ValidateID("conversation_id", conversationID); err != nil {
		writeError(w, err)
		return
	}

	var req model.SendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid request body")
		return
	}
	if err := middleware.ValidateStruct(&req); err != nil {
		writeError(w, err)
		return
	}

	view, err := h.messages.Send(ctx, conversationID, userID, userName, &req)
	if err != nil {
		h.logger.Warn("failed to send message",
			zap.String("conversation_id", conversationID),
			zap.Error(err))
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, view)
}

// List handles GET /api/v1/conversations/:id/messages
//
// Query params: before / after (RFC 3339, mutually exclusive) with
// optional before_id / after_id tie-breakers, and limit.
func (h *MessageHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)
	conversationID := chi.URLParam(r, "id")

	if err := middleware.ValidateID("conversation_id", conversationID); err != nil {
		writeError(w, err)
		return
	}

	var q store.MessageQuery
	if v := r.URL.Query().Get("before"); v != "" {
		t, err := time.Parse(time.RFC3339Nano, v)
		if err != nil {
			writeError(w, apperr.Validationf("before", "must be an RFC 3339 timestamp"))
			return
		}
		q.Before = &t
	}
	if v := r.URL.Query().Get("after"); v != "" {
		t, err := time.Parse(time.RFC3339Nano, v)
		if err != nil {
			writeError(w, apperr.Validationf("after", "must be an RFC 3339 timestamp"))
			return
		}
		q.After = &t
	}
	if v := r.URL.Query().Get("before_id"); v != "" {
		if err := middleware.ValidateID("before_id", v); err != nil {
			writeError(w, err)
			return
		}
		q.BeforeID = v
	}
	if v := r.URL.Query().Get("after_id"); v != "" {
		if err := middleware.ValidateID("after_id", v); err != nil {
			writeError(w, err)
			return
		}
		q.AfterID = v
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			q.Limit = parsed
		}
	}

	page, err := h.messages.List(ctx, conversationID, userID, q)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, page)
}

// Edit handles PUT /api/v1/messages/:id
func (h *MessageHandler) Edit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)
	messageID := chi.URLParam(r, "id")

	if err := middleware.ValidateID("message_id", messageID); err != nil {
		writeError(w, err)
		return
	}

	var req model.EditMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid request body")
		return
	}
	if err := middleware.ValidateStruct(&req); err != nil {
		writeError(w, err)
		return
	}

	view, err := h.messages.Edit(ctx, messageID, userID, &req)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, view)
}

// Delete handles DELETE /api/v1/messages/:id
func (h *MessageHandler) Delete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)
	messageID := chi.URLParam(r, "id")

	if err := middleware.ValidateID("message_id", messageID); err != nil {
		writeError(w, err)
		return
	}

	if err := h.messages.Delete(ctx, messageID, userID); err != nil {
		writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// MarkRead handles POST /api/v1/conversations/:id/read
func (h *MessageHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)
	userName := middleware.GetUserName(ctx)
	conversationID := chi.URLParam(r, "id")

	if err := middleware.ValidateID("conversation_id", conversationID); err != nil {
		writeError(w, err)
		return
	}

	var req model.MarkReadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid request body")
		return
	}
	if err := middleware.ValidateStruct(&req); err != nil {
		writeError(w, err)
		return
	}

	if err := h.receipts.RecordRead(ctx, conversationID, userID, userName, req.MessageID); err != nil {
		writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// UnreadCount handles GET /api/v1/conversations/:id/unread-count
func (h *MessageHandler) UnreadCount(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)
	conversationID := chi.URLParam(r, "id")

	if err := middleware.ValidateID("conversation_id", conversationID); err != nil {
		writeError(w, err)
		return
	}

	count, err := h.receipts.CountUnread(ctx, conversationID, userID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]int{"unread": count})
}
