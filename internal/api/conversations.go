package api

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/ashureev/orientador/internal/domain"
	"github.com/ashureev/orientador/internal/store"
)

// ConversationHandler serves stored conversations for staff review.
type ConversationHandler struct {
	repo  store.Repository
	token string
}

// ConversationView is the full stored form of one conversation.
type ConversationView struct {
	UserID         string            `json:"user_id"`
	State          domain.State      `json:"state"`
	Terminated     bool              `json:"terminated"`
	Interests      string            `json:"interests,omitempty"`
	Questions      []domain.Question `json:"questions"`
	Answers        []domain.Answer   `json:"answers"`
	Recommendation string            `json:"recommendation,omitempty"`
	History        []domain.Message  `json:"history"`
}

// NewConversationHandler creates the admin handler. Every request must carry
// token as a bearer token; with an empty token the routes answer 403.
func NewConversationHandler(repo store.Repository, token string) *ConversationHandler {
	return &ConversationHandler{repo: repo, token: token}
}

// RegisterRoutes registers the conversation administration routes.
func (h *ConversationHandler) RegisterRoutes(r chi.Router) {
	r.Route("/api/conversations", func(r chi.Router) {
		r.Use(h.requireToken)
		r.Get("/", h.List)
		r.Get("/{user}", h.Get)
		r.Delete("/{user}", h.Delete)
		r.Get("/{user}/transcript", h.Transcript)
	})
}

func (h *ConversationHandler) requireToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.token == "" {
			Error(w, http.StatusForbidden, "conversation admin disabled: ADMIN_TOKEN not set")
			return
		}
		got := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		if subtle.ConstantTimeCompare([]byte(got), []byte(h.token)) != 1 {
			Error(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// List handles GET /api/conversations.
func (h *ConversationHandler) List(w http.ResponseWriter, r *http.Request) {
	summaries, err := h.repo.ListSessions(r.Context())
	if err != nil {
		slog.Error("List conversations failed", "error", err)
		Error(w, http.StatusInternalServerError, "failed to list conversations")
		return
	}
	if summaries == nil {
		summaries = []domain.SessionSummary{}
	}
	JSON(w, http.StatusOK, summaries)
}

// Get handles GET /api/conversations/{user}.
func (h *ConversationHandler) Get(w http.ResponseWriter, r *http.Request) {
	s, ok := h.load(w, r)
	if !ok {
		return
	}
	JSON(w, http.StatusOK, ConversationView{
		UserID:         s.UserID,
		State:          s.State,
		Terminated:     s.Terminated,
		Interests:      s.Interests,
		Questions:      nonNil(s.Questions),
		Answers:        nonNil(s.Answers),
		Recommendation: s.Recommendation,
		History:        nonNil(s.History),
	})
}

// Transcript handles GET /api/conversations/{user}/transcript.
func (h *ConversationHandler) Transcript(w http.ResponseWriter, r *http.Request) {
	s, ok := h.load(w, r)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte(domain.Transcript(s.History))); err != nil {
		slog.Debug("Failed to write transcript", "error", err)
	}
}

// Delete handles DELETE /api/conversations/{user}.
func (h *ConversationHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "user")
	if err := h.repo.DeleteSession(r.Context(), userID); err != nil {
		slog.Error("Delete conversation failed", "error", err, "user_id", userID)
		Error(w, http.StatusInternalServerError, "failed to delete conversation")
		return
	}
	slog.Info("Conversation deleted", "user_id", userID)
	w.WriteHeader(http.StatusNoContent)
}

func (h *ConversationHandler) load(w http.ResponseWriter, r *http.Request) (*domain.Session, bool) {
	userID := chi.URLParam(r, "user")
	s, err := h.repo.LoadSession(r.Context(), userID)
	if err != nil {
		slog.Error("Load conversation failed", "error", err, "user_id", userID)
		Error(w, http.StatusInternalServerError, "failed to load conversation")
		return nil, false
	}
	if s == nil {
		Error(w, http.StatusNotFound, "conversation not found")
		return nil, false
	}
	return s, true
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
