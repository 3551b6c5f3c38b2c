package dialogue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/ashureev/orientador/internal/domain"
	"github.com/ashureev/orientador/internal/identity"
	"github.com/ashureev/orientador/internal/metrics"
	"github.com/ashureev/orientador/internal/store"
)

// Progress reports how far an interview has gone.
type Progress struct {
	Answered int `json:"answered"`
	Total    int `json:"total"`
}

// Reply is what a client receives after an operation.
type Reply struct {
	UserID     string           `json:"user_id,omitempty"`
	Messages   []domain.Message `json:"messages"`
	State      domain.State     `json:"state"`
	Terminated bool             `json:"terminated"`
	Progress   Progress         `json:"progress"`
}

// ManagerConfig sizes the live session cache.
type ManagerConfig struct {
	MaxLiveSessions int
	IdleTimeout     time.Duration
}

type entry struct {
	mu        sync.Mutex
	sess      *domain.Session
	suspended bool // already saved by Suspend; guarded by mu
	gone      atomic.Bool
}

// Manager owns the live sessions, keyed by client key. At most one operation
// runs per session; concurrent ones fail with domain.ErrSessionBusy.
type Manager struct {
	engine  *Engine
	repo    store.Repository
	metrics *metrics.Metrics
	logger  *slog.Logger

	mu      sync.Mutex // guards get-or-create against the cache
	live    *expirable.LRU[string, *entry]
	aliases *lru.Cache[string, string] // client key -> user id, survives idle eviction
	saves   sync.WaitGroup

	pendingMu sync.Mutex
	pending   map[string]chan struct{} // evicted sessions still being saved
}

// NewManager creates a session manager.
func NewManager(cfg ManagerConfig, engine *Engine, repo store.Repository, m *metrics.Metrics, logger *slog.Logger) (*Manager, error) {
	if cfg.MaxLiveSessions <= 0 {
		return nil, errors.New("max live sessions must be positive")
	}
	if logger == nil {
		logger = slog.Default()
	}
	aliases, err := lru.New[string, string](cfg.MaxLiveSessions * 10)
	if err != nil {
		return nil, fmt.Errorf("create alias cache: %w", err)
	}
	mgr := &Manager{
		engine:  engine,
		repo:    repo,
		metrics: m,
		logger:  logger,
		aliases: aliases,
		pending: make(map[string]chan struct{}),
	}
	mgr.live = expirable.NewLRU[string, *entry](cfg.MaxLiveSessions, mgr.onEvict, cfg.IdleTimeout)
	return mgr, nil
}

// onEvict runs under the cache lock, so the save happens on its own goroutine.
func (m *Manager) onEvict(key string, e *entry) {
	e.gone.Store(true)

	done := make(chan struct{})
	m.pendingMu.Lock()
	m.pending[key] = done
	m.pendingMu.Unlock()

	m.saves.Add(1)
	go func() {
		defer m.saves.Done()
		defer func() {
			m.pendingMu.Lock()
			if m.pending[key] == done {
				delete(m.pending, key)
			}
			m.pendingMu.Unlock()
			close(done)
			m.metrics.SetLiveSessions(m.live.Len())
		}()

		e.mu.Lock()
		defer e.mu.Unlock()
		if e.suspended || !e.sess.HasName {
			return
		}
		m.aliases.Add(key, e.sess.UserID)
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := m.repo.SaveSession(ctx, e.sess); err != nil {
			m.metrics.IncPersistenceFailure("suspend")
			m.logger.Error("suspend on eviction failed", "session_key", key, "user_id", e.sess.UserID, "error", err)
			return
		}
		m.logger.Debug("session evicted", "session_key", key, "user_id", e.sess.UserID)
	}()
}

// waitPending blocks until an in-flight eviction save for key has finished.
func (m *Manager) waitPending(ctx context.Context, key string) {
	m.pendingMu.Lock()
	done, ok := m.pending[key]
	m.pendingMu.Unlock()
	if !ok {
		return
	}
	select {
	case <-done:
	case <-ctx.Done():
	}
}

// lock returns the live entry for key locked, creating a session when none
// exists. created reports whether the session is new and needs a greeting.
func (m *Manager) lock(ctx context.Context, key string) (e *entry, created bool, err error) {
	for attempt := 0; attempt < 3; attempt++ {
		e, created, err = m.getOrCreate(ctx, key)
		if err != nil {
			return nil, false, err
		}
		if !e.mu.TryLock() {
			return nil, false, domain.ErrSessionBusy
		}
		if !e.gone.Load() {
			return e, created, nil
		}
		// Evicted between lookup and lock; take a fresh entry.
		e.mu.Unlock()
	}
	return nil, false, domain.ErrSessionBusy
}

func (m *Manager) getOrCreate(ctx context.Context, key string) (*entry, bool, error) {
	m.mu.Lock()
	if e, ok := m.live.Get(key); ok {
		m.mu.Unlock()
		return e, false, nil
	}
	m.mu.Unlock()

	m.waitPending(ctx, key)

	owner := identity.OwnerOf(key)
	var restored *domain.Session
	if userID, known := m.aliases.Get(key); known {
		s, err := m.repo.LoadSession(ctx, userID)
		if err != nil {
			m.metrics.IncPersistenceFailure("load")
			return nil, false, fmt.Errorf("restore %s: %w", userID, err)
		}
		if s != nil && s.Owner != owner {
			// Another client saved under the same name since.
			m.logger.Warn("stored session changed owner", "session_key", key, "user_id", userID)
			m.aliases.Remove(key)
			s = nil
		}
		restored = s
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.live.Get(key); ok {
		return e, false, nil
	}
	created := restored == nil
	if created {
		restored = newOwnedSession(owner)
	}
	e := &entry{sess: restored}
	m.live.Add(key, e)
	m.metrics.SetLiveSessions(m.live.Len())
	return e, created, nil
}

func newOwnedSession(owner string) *domain.Session {
	s := domain.NewSession()
	s.Owner = owner
	return s
}

func (m *Manager) release(key string, e *entry) {
	if e.sess.HasName {
		m.aliases.Add(key, e.sess.UserID)
	}
	if !e.gone.Load() {
		// Refresh the idle deadline.
		m.mu.Lock()
		if cur, ok := m.live.Peek(key); ok && cur == e {
			m.live.Add(key, e)
		}
		m.mu.Unlock()
	}
	e.mu.Unlock()
}

// Start returns the whole conversation for key, greeting new sessions.
func (m *Manager) Start(ctx context.Context, key string) (Reply, error) {
	e, created, err := m.lock(ctx, key)
	if err != nil {
		return Reply{}, err
	}
	defer m.release(key, e)

	if created {
		m.engine.Greet(ctx, e.sess)
	}
	return replyFor(e.sess, e.sess.History), nil
}

// Send handles one user message and returns the bot replies.
func (m *Manager) Send(ctx context.Context, key, text string) (Reply, error) {
	e, created, err := m.lock(ctx, key)
	if err != nil {
		return Reply{}, err
	}
	defer m.release(key, e)

	var out []domain.Message
	if created {
		out = m.engine.Greet(ctx, e.sess)
	}
	out = append(out, m.engine.Handle(ctx, e.sess, text)...)
	return replyFor(e.sess, out), nil
}

// Retry repeats the last failed step of the session.
func (m *Manager) Retry(ctx context.Context, key string) (Reply, error) {
	e, created, err := m.lock(ctx, key)
	if err != nil {
		return Reply{}, err
	}
	defer m.release(key, e)

	if created {
		return replyFor(e.sess, m.engine.Greet(ctx, e.sess)), nil
	}
	return replyFor(e.sess, m.engine.Retry(ctx, e.sess)), nil
}

// Reset replaces the session for key with a new one. The stored snapshot of
// the previous conversation is kept.
func (m *Manager) Reset(ctx context.Context, key string) (Reply, error) {
	e, _, err := m.lock(ctx, key)
	if err != nil {
		return Reply{}, err
	}
	defer m.release(key, e)

	e.sess = newOwnedSession(identity.OwnerOf(key))
	m.aliases.Remove(key)
	return replyFor(e.sess, m.engine.Greet(ctx, e.sess)), nil
}

// Suspend checkpoints the session for key and drops it from memory.
func (m *Manager) Suspend(ctx context.Context, key string) error {
	m.mu.Lock()
	e, ok := m.live.Peek(key)
	m.mu.Unlock()
	if !ok {
		return nil
	}
	if !e.mu.TryLock() {
		return domain.ErrSessionBusy
	}
	defer e.mu.Unlock()
	if e.gone.Load() {
		return nil
	}

	var saveErr error
	if e.sess.HasName {
		m.aliases.Add(key, e.sess.UserID)
		if err := m.repo.SaveSession(ctx, e.sess); err != nil {
			m.metrics.IncPersistenceFailure("suspend")
			saveErr = fmt.Errorf("suspend %s: %w", key, err)
		}
	}
	e.suspended = saveErr == nil

	m.mu.Lock()
	m.live.Remove(key)
	m.mu.Unlock()
	m.metrics.SetLiveSessions(m.live.Len())
	return saveErr
}

// Resume attaches the stored conversation of userID to key. Only the client
// that created the conversation may resume it, and only while no other of its
// live sessions holds it.
func (m *Manager) Resume(ctx context.Context, key, userID string) (Reply, error) {
	stored, err := m.repo.LoadSession(ctx, userID)
	if err != nil {
		m.metrics.IncPersistenceFailure("load")
		return Reply{}, fmt.Errorf("load %s: %w", userID, err)
	}
	if stored == nil || stored.Owner == "" || stored.Owner != identity.OwnerOf(key) {
		return Reply{}, domain.ErrSessionNotFound
	}
	if m.heldElsewhere(key, userID) {
		return Reply{}, domain.ErrSessionBusy
	}

	e, _, err := m.lock(ctx, key)
	if err != nil {
		return Reply{}, err
	}
	defer m.release(key, e)

	e.sess = stored
	m.engine.Resumed(ctx, e.sess)
	return replyFor(e.sess, e.sess.History), nil
}

// heldElsewhere reports whether a live session other than key is driving userID.
func (m *Manager) heldElsewhere(key, userID string) bool {
	for _, k := range m.live.Keys() {
		if k == key {
			continue
		}
		if held, ok := m.aliases.Peek(k); ok && held == userID {
			return true
		}
	}
	return false
}

// View returns the current conversation for key without changing it.
func (m *Manager) View(_ context.Context, key string) (Reply, error) {
	m.mu.Lock()
	e, ok := m.live.Peek(key)
	m.mu.Unlock()
	if !ok {
		return Reply{}, domain.ErrSessionNotFound
	}
	if !e.mu.TryLock() {
		return Reply{}, domain.ErrSessionBusy
	}
	defer e.mu.Unlock()
	if e.gone.Load() {
		return Reply{}, domain.ErrSessionNotFound
	}
	return replyFor(e.sess, e.sess.History), nil
}

// Close suspends every live session and waits for pending saves.
func (m *Manager) Close(ctx context.Context) {
	for _, key := range m.live.Keys() {
		if err := m.Suspend(ctx, key); err != nil {
			m.logger.Warn("suspend on shutdown failed", "session_key", key, "error", err)
		}
	}
	m.saves.Wait()
}

// Live returns the number of sessions held in memory.
func (m *Manager) Live() int {
	return m.live.Len()
}

func replyFor(s *domain.Session, msgs []domain.Message) Reply {
	if msgs == nil {
		msgs = []domain.Message{}
	}
	out := make([]domain.Message, len(msgs))
	copy(out, msgs)
	return Reply{
		UserID:     userIDIfNamed(s),
		Messages:   out,
		State:      s.State,
		Terminated: s.Terminated,
		Progress:   Progress{Answered: s.AnswerIndex, Total: len(s.Questions)},
	}
}

func userIDIfNamed(s *domain.Session) string {
	if s.HasName {
		return s.UserID
	}
	return ""
}
