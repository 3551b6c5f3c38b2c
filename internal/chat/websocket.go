package chat

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/coder/websocket"

	"github.com/ashureev/orientador/internal/dialogue"
	"github.com/ashureev/orientador/internal/domain"
	"github.com/ashureev/orientador/internal/identity"
	"github.com/ashureev/orientador/internal/prompts"
)

const wsWriteTimeout = 10 * time.Second

// wsMessage is a WebSocket frame in either direction.
type wsMessage struct {
	Type       string             `json:"type"`
	Content    string             `json:"content,omitempty"`
	ID         string             `json:"id,omitempty"`
	Sender     domain.Sender      `json:"sender,omitempty"`
	State      domain.State       `json:"state,omitempty"`
	Terminated bool               `json:"terminated,omitempty"`
	UserID     string             `json:"user_id,omitempty"`
	Progress   *dialogue.Progress `json:"progress,omitempty"`
}

// HandleWebSocket handles GET /api/chat/ws. The connection replays the current
// history, then exchanges message frames. Closing it suspends the session.
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	key := identity.ClientKey(r.Context())
	userID := identity.UserIDFromContext(r.Context())
	slog.Info("WebSocket connection request", "session_key", key, "ip", identity.IPFromRequest(r))

	if !h.checkOrigin(r) {
		http.Error(w, "origin not allowed", http.StatusForbidden)
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		slog.Error("Failed to accept WebSocket", "error", err, "user_id", userID)
		return
	}
	ws.SetReadLimit(h.cfg.MaxBodySize)
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "session ended"); closeErr != nil {
			slog.Debug("Failed to close websocket", "error", closeErr, "user_id", userID)
		}
	}()

	ctx := r.Context()
	reply, err := h.conv.Start(ctx, key)
	if err != nil {
		_ = h.writeWSError(ctx, ws, err)
		return
	}
	if err := h.writeReply(ctx, ws, reply); err != nil {
		slog.Debug("Failed to send history", "error", err, "session_key", key)
		return
	}

	defer func() {
		suspendCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := h.conv.Suspend(suspendCtx, key); err != nil {
			slog.Warn("Suspend on disconnect failed", "error", err, "session_key", key)
		}
	}()

	h.readLoop(ctx, ws, key)
	slog.Info("Chat WebSocket ended", "session_key", key)
}

func (h *Handler) readLoop(ctx context.Context, ws *websocket.Conn, key string) {
	for {
		_, data, err := ws.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != -1 || errors.Is(err, context.Canceled) {
				slog.Debug("WebSocket closed by client", "session_key", key)
			} else {
				slog.Warn("WebSocket read error", "error", err, "session_key", key)
			}
			return
		}

		var msg wsMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			// Plain text frames are treated as messages.
			msg = wsMessage{Type: "message", Content: string(data)}
		}

		var (
			reply dialogue.Reply
			opErr error
		)
		switch msg.Type {
		case "ping":
			if err := h.writeWS(ctx, ws, wsMessage{Type: "pong"}); err != nil {
				return
			}
			continue
		case "message":
			text := strings.TrimSpace(msg.Content)
			if text == "" {
				continue
			}
			if !h.rateLimiter.Allow(identity.UserIDFromContext(ctx)) {
				if err := h.writeWS(ctx, ws, wsMessage{Type: "error", Content: "rate limit exceeded"}); err != nil {
					return
				}
				continue
			}
			h.logUserMessage(ctx, "chat_ws", text, "")
			reply, opErr = h.conv.Send(ctx, key, text)
		case "retry":
			reply, opErr = h.conv.Retry(ctx, key)
		case "reset":
			reply, opErr = h.conv.Reset(ctx, key)
		default:
			continue
		}

		if opErr != nil {
			if err := h.writeWSError(ctx, ws, opErr); err != nil {
				return
			}
			continue
		}
		h.logBotMessages(ctx, "chat_ws", reply, "")
		if err := h.writeReply(ctx, ws, reply); err != nil {
			slog.Debug("WebSocket write failed", "error", err, "session_key", key)
			return
		}
	}
}

func (h *Handler) checkOrigin(r *http.Request) bool {
	if h.cfg.IsDev {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, o := range h.cfg.AllowedOrigins {
		if o == "*" || o == origin {
			return true
		}
	}
	slog.Warn("WebSocket origin rejected", "origin", origin)
	return false
}

func (h *Handler) writeReply(ctx context.Context, ws *websocket.Conn, reply dialogue.Reply) error {
	for _, m := range reply.Messages {
		if err := h.writeWS(ctx, ws, wsMessage{Type: "message", ID: m.ID, Sender: m.Sender, Content: m.Text}); err != nil {
			return err
		}
	}
	progress := reply.Progress
	return h.writeWS(ctx, ws, wsMessage{
		Type:       "state",
		State:      reply.State,
		Terminated: reply.Terminated,
		UserID:     reply.UserID,
		Progress:   &progress,
	})
}

func (h *Handler) writeWSError(ctx context.Context, ws *websocket.Conn, err error) error {
	if errors.Is(err, domain.ErrSessionBusy) {
		return h.writeWS(ctx, ws, wsMessage{Type: "busy", Content: prompts.Busy})
	}
	slog.Error("chat websocket operation failed", "error", err, "session_key", identity.ClientKey(ctx))
	return h.writeWS(ctx, ws, wsMessage{Type: "error", Content: "internal error"})
}

func (h *Handler) writeWS(ctx context.Context, ws *websocket.Conn, v wsMessage) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	writeCtx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
	defer cancel()
	return ws.Write(writeCtx, websocket.MessageText, data)
}
