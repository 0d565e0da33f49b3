package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/marketloop/chat-service/internal/middleware"
	"github.com/marketloop/chat-service/internal/model"
	"github.com/marketloop/chat-service/internal/service"
	"github.com/marketloop/chat-service/pkg/logger"
)

// ConversationHandler handles conversation endpoints.
type ConversationHandler struct {
	conversations *service.ConversationService
	receipts      *service.ReceiptService
	logger        *logger.Logger
}

// NewConversationHandler creates a new conversation handler.
func NewConversationHandler(convSvc *service.ConversationService, receipts *service.ReceiptService, log *logger.Logger) *ConversationHandler {
	return &ConversationHandler{
		conversations: convSvc,
		receipts:      receipts,
		logger:        log,
	}
}

// Create handles POST /api/v1/conversations
func (h *ConversationHandler) Create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)

	var req model.CreateConversationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid request body")
		return
	}
	if err := middleware.ValidateStruct(&req); err != nil {
		writeError(w, err)
		return
	}

	summary, err := h.conversations.Create(ctx, userID, &req)
	if err != nil {
		h.logger.Warn("failed to create conversation", zap.Error(err))
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, summary)
}

// List handles GET /api/v1/conversations
func (h *ConversationHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)

	page := 0
	size := 20
	if p := r.URL.Query().Get("page"); p != "" {
		if parsed, err := strconv.Atoi(p); err == nil && parsed >= 0 {
			page = parsed
		}
	}
	if s := r.URL.Query().Get("size"); s != "" {
		if parsed, err := strconv.Atoi(s); err == nil && parsed > 0 && parsed <= 100 {
			size = parsed
		}
	}

	resp, err := h.conversations.List(ctx, userID, page, size)
	if err != nil {
		h.logger.Error("failed to list conversations", zap.Error(err))
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// Get handles GET /api/v1/conversations/:id
func (h *ConversationHandler) Get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)
	conversationID := chi.URLParam(r, "id")

	if err := middleware.ValidateID("conversation_id", conversationID); err != nil {
		writeError(w, err)
		return
	}

	summary, err := h.conversations.Get(ctx, conversationID, userID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, summary)
}

// Archive handles POST /api/v1/conversations/:id/archive
func (h *ConversationHandler) Archive(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)
	conversationID := chi.URLParam(r, "id")

	if err := middleware.ValidateID("conversation_id", conversationID); err != nil {
		writeError(w, err)
		return
	}

	if err := h.conversations.Archive(ctx, conversationID, userID); err != nil {
		writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// UnreadCount handles GET /api/v1/conversations/unread-count
func (h *ConversationHandler) UnreadCount(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)

	count, err := h.receipts.CountUnreadConversations(ctx, userID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]int{"unread_conversations": count})
}
