package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/marketloop/chat-service/internal/broadcast"
	"github.com/marketloop/chat-service/internal/middleware"
	"github.com/marketloop/chat-service/internal/model"
	"github.com/marketloop/chat-service/internal/service"
	"github.com/marketloop/chat-service/pkg/logger"
)

// MemberHandler handles membership endpoints.
type MemberHandler struct {
	memberships *service.MembershipService
	broadcaster *broadcast.Broadcaster
	logger      *logger.Logger
}

// NewMemberHandler creates a new membership handler.
func NewMemberHandler(memberships *service.MembershipService, broadcaster *broadcast.Broadcaster, log *logger.Logger) *MemberHandler {
	return &MemberHandler{
		memberships: memberships,
		broadcaster: broadcaster,
		logger:      log,
	}
}

// List handles GET /api/v1/conversations/:id/members
func (h *MemberHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)
	conversationID := chi.URLParam(r, "id")

	if err := middleware.ValidateID("conversation_id", conversationID); err != nil {
		writeError(w, err)
		return
	}

	members, err := h.memberships.GetMembers(ctx, conversationID)
	if err != nil {
		writeError(w, err)
		return
	}

	// Non-members see the same 404 as for a missing conversation.
	visible := false
	for _, m := range members {
		if m.UserID == userID {
			visible = true
			break
		}
	}
	if !visible {
		writeJSON(w, http.StatusNotFound, errorBody{Error: "conversation not found", Kind: "not_found"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"members": members})
}

// Add handles POST /api/v1/conversations/:id/members
func (h *MemberHandler) Add(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)
	conversationID := chi.URLParam(r, "id")

	if err := middleware.ValidateID("conversation_id", conversationID); err != nil {
		writeError(w, err)
		return
	}

	var req model.AddMembersRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid request body")
		return
	}
	if err := middleware.ValidateStruct(&req); err != nil {
		writeError(w, err)
		return
	}

	if err := h.memberships.AddMembers(ctx, conversationID, userID, req.UserIDs); err != nil {
		h.logger.Warn("failed to add members",
			zap.String("conversation_id", conversationID),
			zap.Error(err))
		writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Remove handles DELETE /api/v1/conversations/:id/members/:userId
func (h *MemberHandler) Remove(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)
	conversationID := chi.URLParam(r, "id")
	targetID := chi.URLParam(r, "userId")

	if err := middleware.ValidateID("conversation_id", conversationID); err != nil {
		writeError(w, err)
		return
	}
	if err := middleware.ValidateUserID(targetID); err != nil {
		writeError(w, err)
		return
	}

	if err := h.memberships.RemoveMember(ctx, conversationID, userID, targetID); err != nil {
		writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// ChangeRole handles PUT /api/v1/conversations/:id/members/:userId/role
func (h *MemberHandler) ChangeRole(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)
	conversationID := chi.URLParam(r, "id")
	targetID := chi.URLParam(r, "userId")

	if err := middleware.ValidateID("conversation_id", conversationID); err != nil {
		writeError(w, err)
		return
	}
	if err := middleware.ValidateUserID(targetID); err != nil {
		writeError(w, err)
		return
	}

	var req model.ChangeRoleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid request body")
		return
	}
	if err := middleware.ValidateStruct(&req); err != nil {
		writeError(w, err)
		return
	}

	if err := h.memberships.ChangeRole(ctx, conversationID, userID, targetID, req.Role); err != nil {
		writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Mute handles PUT /api/v1/conversations/:id/mute
func (h *MemberHandler) Mute(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)
	conversationID := chi.URLParam(r, "id")

	if err := middleware.ValidateID("conversation_id", conversationID); err != nil {
		writeError(w, err)
		return
	}

	var req model.MuteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid request body")
		return
	}

	if err := h.memberships.SetMuted(ctx, conversationID, userID, req.Muted); err != nil {
		writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Typing handles POST /api/v1/conversations/:id/typing
//
// The indicator is broadcast-only. It is never persisted and leaves no
// trace once delivered.
func (h *MemberHandler) Typing(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)
	userName := middleware.GetUserName(ctx)
	conversationID := chi.URLParam(r, "id")

	if err := middleware.ValidateID("conversation_id", conversationID); err != nil {
		writeError(w, err)
		return
	}

	var req model.TypingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid request body")
		return
	}

	member, err := h.memberships.IsMember(ctx, conversationID, userID)
	if err != nil {
		writeError(w, err)
		return
	}
	if !member {
		writeJSON(w, http.StatusNotFound, errorBody{Error: "conversation not found", Kind: "not_found"})
		return
	}

	eventType := model.EventUserStoppedTyping
	if req.IsTyping {
		eventType = model.EventUserTyping
	}
	h.broadcaster.Publish(ctx, broadcast.NewEvent(eventType, conversationID, userID, userName, nil))

	w.WriteHeader(http.StatusAccepted)
}
