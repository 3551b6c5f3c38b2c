// Package chat exposes the interview over HTTP and WebSocket.
package chat

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/ashureev/orientador/internal/api"
	"github.com/ashureev/orientador/internal/dialogue"
	"github.com/ashureev/orientador/internal/domain"
	"github.com/ashureev/orientador/internal/identity"
	"github.com/ashureev/orientador/internal/prompts"
)

// defaultMaxRequestBodySize is the default maximum allowed request body size (64KB).
const defaultMaxRequestBodySize = 64 << 10

// Conversations is the session registry the handlers drive.
type Conversations interface {
	Start(ctx context.Context, key string) (dialogue.Reply, error)
	Send(ctx context.Context, key, text string) (dialogue.Reply, error)
	Retry(ctx context.Context, key string) (dialogue.Reply, error)
	Reset(ctx context.Context, key string) (dialogue.Reply, error)
	Suspend(ctx context.Context, key string) error
	Resume(ctx context.Context, key, userID string) (dialogue.Reply, error)
	View(ctx context.Context, key string) (dialogue.Reply, error)
}

// HandlerConfig tunes request limits.
type HandlerConfig struct {
	RateLimitRequests int
	RateLimitWindow   time.Duration
	MaxBodySize       int64
	AllowedOrigins    []string
	IsDev             bool
}

// Handler handles chat HTTP and WebSocket requests.
type Handler struct {
	conv        Conversations
	rateLimiter *RateLimiter
	log         ConversationLogger
	cfg         HandlerConfig
}

// MessageRequest is the body of POST /api/chat/message.
type MessageRequest struct {
	Message string `json:"message"`
}

// ResumeRequest is the body of POST /api/chat/resume.
type ResumeRequest struct {
	UserID string `json:"user_id"`
}

// NewHandler creates a chat handler. A nil conversation logger disables
// transcript logging.
func NewHandler(conv Conversations, conversationLogger ConversationLogger, cfg HandlerConfig) *Handler {
	if conversationLogger == nil {
		conversationLogger = noopConversationLogger{}
	}
	if cfg.RateLimitRequests <= 0 {
		cfg.RateLimitRequests = 20
	}
	if cfg.RateLimitWindow <= 0 {
		cfg.RateLimitWindow = time.Minute
	}
	if cfg.MaxBodySize <= 0 {
		cfg.MaxBodySize = defaultMaxRequestBodySize
	}
	return &Handler{
		conv:        conv,
		rateLimiter: NewRateLimiter(cfg.RateLimitRequests, cfg.RateLimitWindow),
		log:         conversationLogger,
		cfg:         cfg,
	}
}

// RegisterRoutes registers chat routes. The identity middleware must run first.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/api/chat", func(r chi.Router) {
		r.Post("/start", h.HandleStart)
		r.Post("/message", h.HandleMessage)
		r.Post("/retry", h.HandleRetry)
		r.Post("/reset", h.HandleReset)
		r.Post("/suspend", h.HandleSuspend)
		r.Post("/resume", h.HandleResume)
		r.Get("/session", h.HandleSession)
		r.Get("/ws", h.HandleWebSocket)
	})
}

// Close releases handler resources.
func (h *Handler) Close() {
	h.rateLimiter.Close()
	if err := h.log.Close(); err != nil {
		slog.Warn("failed to close conversation logger", "error", err)
	}
}

// HandleStart handles POST /api/chat/start.
func (h *Handler) HandleStart(w http.ResponseWriter, r *http.Request) {
	reply, err := h.conv.Start(r.Context(), identity.ClientKey(r.Context()))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	api.JSON(w, http.StatusOK, reply)
}

// HandleMessage handles POST /api/chat/message.
func (h *Handler) HandleMessage(w http.ResponseWriter, r *http.Request) {
	if !h.allow(w, r) {
		return
	}

	var req MessageRequest
	if !h.decode(w, r, &req) {
		return
	}
	req.Message = strings.TrimSpace(req.Message)
	if req.Message == "" {
		api.Error(w, http.StatusBadRequest, "message is required")
		return
	}

	h.logUserMessage(r.Context(), "chat_http", req.Message, chiMiddleware.GetReqID(r.Context()))
	reply, err := h.conv.Send(r.Context(), identity.ClientKey(r.Context()), req.Message)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.logBotMessages(r.Context(), "chat_http", reply, chiMiddleware.GetReqID(r.Context()))
	api.JSON(w, http.StatusOK, reply)
}

// HandleRetry handles POST /api/chat/retry.
func (h *Handler) HandleRetry(w http.ResponseWriter, r *http.Request) {
	if !h.allow(w, r) {
		return
	}
	reply, err := h.conv.Retry(r.Context(), identity.ClientKey(r.Context()))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.logBotMessages(r.Context(), "chat_http", reply, chiMiddleware.GetReqID(r.Context()))
	api.JSON(w, http.StatusOK, reply)
}

// HandleReset handles POST /api/chat/reset.
func (h *Handler) HandleReset(w http.ResponseWriter, r *http.Request) {
	if !h.allow(w, r) {
		return
	}
	reply, err := h.conv.Reset(r.Context(), identity.ClientKey(r.Context()))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.logBotMessages(r.Context(), "chat_http", reply, chiMiddleware.GetReqID(r.Context()))
	api.JSON(w, http.StatusOK, reply)
}

// HandleSuspend handles POST /api/chat/suspend. Browsers call it through
// navigator.sendBeacon when the page unloads.
func (h *Handler) HandleSuspend(w http.ResponseWriter, r *http.Request) {
	if err := h.conv.Suspend(r.Context(), identity.ClientKey(r.Context())); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleResume handles POST /api/chat/resume.
func (h *Handler) HandleResume(w http.ResponseWriter, r *http.Request) {
	if !h.allow(w, r) {
		return
	}
	var req ResumeRequest
	if !h.decode(w, r, &req) {
		return
	}
	req.UserID = strings.TrimSpace(req.UserID)
	if req.UserID == "" {
		api.Error(w, http.StatusBadRequest, "user_id is required")
		return
	}

	reply, err := h.conv.Resume(r.Context(), identity.ClientKey(r.Context()), req.UserID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	api.JSON(w, http.StatusOK, reply)
}

// HandleSession handles GET /api/chat/session.
func (h *Handler) HandleSession(w http.ResponseWriter, r *http.Request) {
	reply, err := h.conv.View(r.Context(), identity.ClientKey(r.Context()))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	api.JSON(w, http.StatusOK, reply)
}

func (h *Handler) allow(w http.ResponseWriter, r *http.Request) bool {
	// Rate-limit by browser only so rotating tab session IDs does not help.
	if !h.rateLimiter.Allow(identity.UserIDFromContext(r.Context())) {
		api.Error(w, http.StatusTooManyRequests, "rate limit exceeded")
		return false
	}
	return true
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, h.cfg.MaxBodySize)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			api.Error(w, http.StatusRequestEntityTooLarge, "request body too large")
			return false
		}
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, domain.ErrSessionBusy):
		api.JSON(w, http.StatusConflict, map[string]string{"error": "session busy", "message": prompts.Busy})
	case errors.Is(err, domain.ErrSessionNotFound):
		api.Error(w, http.StatusNotFound, "session not found")
	default:
		slog.Error("chat request failed", "error", err, "path", r.URL.Path,
			"session_key", identity.ClientKey(r.Context()))
		api.Error(w, http.StatusInternalServerError, "internal error")
	}
}

func (h *Handler) logUserMessage(ctx context.Context, channel, text, requestID string) {
	h.log.Log(ConversationLogEvent{
		Timestamp:  time.Now().UTC().Format(time.RFC3339Nano),
		UserID:     identity.UserIDFromContext(ctx),
		SessionID:  identity.SessionIDFromContext(ctx),
		Channel:    channel,
		Direction:  "outbound",
		EventType:  "chat_user_message",
		ContentRaw: text,
		Content:    cleanForReadability(text),
		Meta: map[string]any{
			"request_id": requestID,
		},
	})
}

func (h *Handler) logBotMessages(ctx context.Context, channel string, reply dialogue.Reply, requestID string) {
	for _, msg := range reply.Messages {
		h.log.Log(ConversationLogEvent{
			Timestamp:  msg.CreatedAt.UTC().Format(time.RFC3339Nano),
			UserID:     identity.UserIDFromContext(ctx),
			SessionID:  identity.SessionIDFromContext(ctx),
			Channel:    channel,
			Direction:  "inbound",
			EventType:  "chat_bot_message",
			ContentRaw: msg.Text,
			Content:    cleanForReadability(msg.Text),
			Meta: map[string]any{
				"request_id": requestID,
				"message_id": msg.ID,
				"state":      reply.State,
				"student":    reply.UserID,
			},
		})
	}
}
