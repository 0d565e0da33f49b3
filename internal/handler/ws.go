package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/marketloop/chat-service/internal/broadcast"
	"github.com/marketloop/chat-service/internal/middleware"
	"github.com/marketloop/chat-service/internal/model"
	"github.com/marketloop/chat-service/internal/presence"
	"github.com/marketloop/chat-service/internal/realtime"
	"github.com/marketloop/chat-service/internal/service"
	"github.com/marketloop/chat-service/pkg/logger"
	"github.com/marketloop/chat-service/pkg/metrics"
)

const (
	readWait       = 60 * time.Second
	readLimitBytes = 4096
)

// clientFrame is an inbound websocket message. Clients use the socket
// for the two latency-sensitive signals; everything else goes over REST.
type clientFrame struct {
	Type           string `json:"type"` // TYPING or MARK_READ
	ConversationID string `json:"conversation_id"`
	MessageID      string `json:"message_id,omitempty"`
	IsTyping       bool   `json:"is_typing,omitempty"`
}

// WSHandler upgrades authenticated requests to websocket sessions and
// runs their read loops.
type WSHandler struct {
	registry    *realtime.Registry
	broadcaster *broadcast.Broadcaster
	presence    presence.Tracker
	memberships *service.MembershipService
	receipts    *service.ReceiptService
	logger      *logger.Logger

	// storeTimeout bounds the store and presence calls made outside a
	// request context.
	storeTimeout time.Duration

	upgrader websocket.Upgrader
}

// NewWSHandler creates a new websocket handler.
func NewWSHandler(
	registry *realtime.Registry,
	broadcaster *broadcast.Broadcaster,
	tracker presence.Tracker,
	memberships *service.MembershipService,
	receipts *service.ReceiptService,
	storeTimeout time.Duration,
	log *logger.Logger,
) *WSHandler {
	if storeTimeout <= 0 {
		storeTimeout = 5 * time.Second
	}
	return &WSHandler{
		registry:     registry,
		broadcaster:  broadcaster,
		presence:     tracker,
		memberships:  memberships,
		receipts:     receipts,
		storeTimeout: storeTimeout,
		logger:       log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Auth happens via JWT before the upgrade; cross-origin
			// browser clients are expected.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// opCtx returns a deadline-bound context for store and presence calls
// that run detached from any request.
func (h *WSHandler) opCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), h.storeTimeout)
}

// Serve handles GET /api/v1/ws
func (h *WSHandler) Serve(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)
	userName := middleware.GetUserName(ctx)

	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err), zap.String("user_id", userID))
		return
	}

	conn := realtime.NewConnection(userID, userName, ws)
	h.registry.Attach(conn)
	conn.Start()
	metrics.IncrementWSConnections()

	h.logger.Info("websocket session opened",
		zap.String("session_id", conn.ID),
		zap.String("user_id", userID),
	)

	opCtx, cancel := h.opCtx()
	defer cancel()
	first := !h.wasOnline(opCtx, userID)
	if err := h.presence.SetOnline(opCtx, userID); err != nil {
		h.logger.Warn("failed to record presence", zap.Error(err), zap.String("user_id", userID))
	}
	if first {
		h.broadcaster.PublishPresence(opCtx, userID, userName, true)
	}

	go h.readLoop(conn)
}

func (h *WSHandler) wasOnline(ctx context.Context, userID string) bool {
	online, err := h.presence.IsOnline(ctx, userID)
	if err != nil {
		return false
	}
	return online
}

// readLoop consumes inbound frames until the client disconnects, then
// detaches the session and emits the offline transition if it was the
// user's last session.
func (h *WSHandler) readLoop(conn *realtime.Connection) {
	defer h.teardown(conn)

	ws := conn.WS()
	ws.SetReadLimit(readLimitBytes)
	_ = ws.SetReadDeadline(time.Now().Add(readWait))
	ws.SetPongHandler(func(string) error {
		_ = ws.SetReadDeadline(time.Now().Add(readWait))
		ctx, cancel := h.opCtx()
		defer cancel()
		_ = h.presence.Heartbeat(ctx, conn.UserID)
		return nil
	})

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.logger.Debug("websocket read error",
					zap.String("session_id", conn.ID),
					zap.Error(err),
				)
			}
			return
		}
		_ = ws.SetReadDeadline(time.Now().Add(readWait))
		h.handleFrame(conn, data)
	}
}

func (h *WSHandler) handleFrame(conn *realtime.Connection, data []byte) {
	var frame clientFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		h.logger.Debug("dropping malformed client frame", zap.String("session_id", conn.ID), zap.Error(err))
		return
	}
	if frame.ConversationID == "" {
		return
	}

	ctx, cancel := h.opCtx()
	defer cancel()

	switch frame.Type {
	case "TYPING":
		member, err := h.memberships.IsMember(ctx, frame.ConversationID, conn.UserID)
		if err != nil || !member {
			return
		}
		eventType := model.EventUserStoppedTyping
		if frame.IsTyping {
			eventType = model.EventUserTyping
		}
		h.broadcaster.Publish(ctx, broadcast.NewEvent(eventType, frame.ConversationID, conn.UserID, conn.UserName, nil))

	case "MARK_READ":
		if frame.MessageID == "" {
			return
		}
		if err := h.receipts.RecordRead(ctx, frame.ConversationID, conn.UserID, conn.UserName, frame.MessageID); err != nil {
			h.logger.Debug("read ack rejected",
				zap.String("session_id", conn.ID),
				zap.String("message_id", frame.MessageID),
				zap.Error(err),
			)
		}

	default:
		h.logger.Debug("ignoring unknown frame type",
			zap.String("session_id", conn.ID),
			zap.String("frame_type", frame.Type),
		)
	}
}

func (h *WSHandler) teardown(conn *realtime.Connection) {
	conn.Close(websocket.CloseNormalClosure, "")
	last := h.registry.Detach(conn.ID)
	metrics.DecrementWSConnections()

	if last {
		ctx, cancel := h.opCtx()
		defer cancel()
		if err := h.presence.SetOffline(ctx, conn.UserID); err != nil {
			h.logger.Warn("failed to clear presence", zap.Error(err), zap.String("user_id", conn.UserID))
		}
		h.broadcaster.PublishPresence(ctx, conn.UserID, conn.UserName, false)
	}

	h.logger.Info("websocket session closed",
		zap.String("session_id", conn.ID),
		zap.String("user_id", conn.UserID),
		zap.Bool("last_session", last),
	)
}
