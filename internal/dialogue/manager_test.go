package dialogue

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ashureev/orientador/internal/domain"
	"github.com/ashureev/orientador/internal/prompts"
)

func newTestManager(t *testing.T, maxLive int) (*Manager, *harness) {
	t.Helper()
	h := newHarness(t, EngineConfig{}, &staticSource{needs: true}, nil)
	m, err := NewManager(ManagerConfig{MaxLiveSessions: maxLive, IdleTimeout: time.Hour}, h.engine, h.repo, nil, nil)
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}
	return m, h
}

func TestManagerStartGreetsOnce(t *testing.T) {
	m, _ := newTestManager(t, 10)
	ctx := context.Background()

	first, err := m.Start(ctx, "web:1")
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if len(first.Messages) != 1 || first.Messages[0].Text != prompts.Greeting {
		t.Fatalf("unexpected greeting %v", first.Messages)
	}
	second, err := m.Start(ctx, "web:1")
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if len(second.Messages) != 1 || second.Messages[0].ID != first.Messages[0].ID {
		t.Fatalf("second start must return the same history, got %v", second.Messages)
	}
	if m.Live() != 1 {
		t.Fatalf("expected one live session, got %d", m.Live())
	}
}

func TestManagerSendReportsProgress(t *testing.T) {
	m, _ := newTestManager(t, 10)
	ctx := context.Background()

	if _, err := m.Send(ctx, "web:1", "Soy Ana Torres"); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	r, err := m.Send(ctx, "web:1", "me gusta la música")
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if r.UserID != "Ana Torres" || r.State != domain.StateAnsweringQuestions {
		t.Fatalf("unexpected reply %+v", r)
	}
	if r.Progress.Total != 10 || r.Progress.Answered != 0 {
		t.Fatalf("unexpected progress %+v", r.Progress)
	}
}

func TestManagerRejectsConcurrentOperation(t *testing.T) {
	m, _ := newTestManager(t, 10)
	ctx := context.Background()
	if _, err := m.Start(ctx, "web:1"); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	e, ok := m.live.Peek("web:1")
	if !ok {
		t.Fatal("expected live entry")
	}
	e.mu.Lock()
	_, err := m.Send(ctx, "web:1", "Soy Ana")
	e.mu.Unlock()
	if !errors.Is(err, domain.ErrSessionBusy) {
		t.Fatalf("expected ErrSessionBusy, got %v", err)
	}

	if _, err := m.Send(ctx, "web:1", "Soy Ana"); err != nil {
		t.Fatalf("Send after release failed: %v", err)
	}
}

func TestManagerSuspendAndResume(t *testing.T) {
	m, h := newTestManager(t, 10)
	ctx := context.Background()
	if _, err := m.Send(ctx, "web:1", "Soy Ana Torres"); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	if err := m.Suspend(ctx, "web:1"); err != nil {
		t.Fatalf("Suspend failed: %v", err)
	}
	if m.Live() != 0 {
		t.Fatalf("expected no live sessions, got %d", m.Live())
	}
	if h.repo.get("Ana Torres") == nil {
		t.Fatal("expected stored snapshot")
	}

	r, err := m.Resume(ctx, "web:2", "Ana Torres")
	if err != nil {
		t.Fatalf("Resume failed: %v", err)
	}
	if r.State != domain.StateCollectingInterests || r.UserID != "Ana Torres" {
		t.Fatalf("unexpected resumed reply %+v", r)
	}
	var sawWelcomeBack bool
	for _, msg := range r.Messages {
		if msg.Text == prompts.Resumed("Ana") {
			sawWelcomeBack = true
		}
	}
	if !sawWelcomeBack {
		t.Fatal("expected welcome-back message in history")
	}

	if _, err := m.Resume(ctx, "web:3", "Nadie"); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestManagerResetKeepsStoredSnapshot(t *testing.T) {
	m, h := newTestManager(t, 10)
	ctx := context.Background()
	if _, err := m.Send(ctx, "web:1", "Soy Ana Torres"); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	r, err := m.Reset(ctx, "web:1")
	if err != nil {
		t.Fatalf("Reset failed: %v", err)
	}
	if r.State != domain.StateAwaitingName || r.UserID != "" {
		t.Fatalf("unexpected reset reply %+v", r)
	}
	if len(r.Messages) != 1 || r.Messages[0].Text != prompts.Greeting {
		t.Fatalf("expected fresh greeting, got %v", r.Messages)
	}
	if h.repo.get("Ana Torres") == nil {
		t.Fatal("reset must not delete the stored conversation")
	}
}

func TestManagerRestoresEvictedSession(t *testing.T) {
	m, _ := newTestManager(t, 1)
	ctx := context.Background()
	if _, err := m.Send(ctx, "web:a", "Soy Ana Torres"); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	// Capacity is one, so this evicts web:a.
	if _, err := m.Start(ctx, "web:b"); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	r, err := m.Send(ctx, "web:a", "me gusta la música")
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if r.UserID != "Ana Torres" || r.State != domain.StateAnsweringQuestions {
		t.Fatalf("expected restored conversation, got %+v", r)
	}
}

func TestManagerViewUnknownKey(t *testing.T) {
	m, _ := newTestManager(t, 10)
	if _, err := m.View(context.Background(), "web:none"); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestManagerCloseSuspendsLiveSessions(t *testing.T) {
	m, h := newTestManager(t, 10)
	ctx := context.Background()
	if _, err := m.Send(ctx, "web:1", "Soy Ana"); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if _, err := m.Start(ctx, "web:2"); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	m.Close(ctx)
	if m.Live() != 0 {
		t.Fatalf("expected empty cache, got %d", m.Live())
	}
	if h.repo.get("Ana") == nil {
		t.Fatal("expected named session to be saved")
	}
}

func TestManagerResumeRejectsForeignClient(t *testing.T) {
	m, h := newTestManager(t, 10)
	ctx := context.Background()
	if _, err := m.Send(ctx, "browserA:tab", "Soy Ana Torres"); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if _, err := m.Send(ctx, "browserA:tab", "secreto personal sobre mi familia"); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	before := h.repo.get("Ana Torres")
	if before == nil || before.Owner != "browserA" {
		t.Fatalf("expected snapshot owned by browserA, got %+v", before)
	}

	r, err := m.Resume(ctx, "stranger:tab", "Ana Torres")
	if !errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound for a foreign client, got %v", err)
	}
	if len(r.Messages) != 0 {
		t.Fatalf("foreign client must not see the conversation, got %v", r.Messages)
	}
	if _, ok := m.live.Peek("stranger:tab"); ok {
		t.Fatal("rejected resume must not create a live session")
	}

	after := h.repo.get("Ana Torres")
	if after == nil || after.Owner != "browserA" || len(after.History) != len(before.History) {
		t.Fatalf("stored conversation changed: %+v", after)
	}
}

func TestManagerResumeRejectsLegacySnapshotWithoutOwner(t *testing.T) {
	m, h := newTestManager(t, 10)
	s := domain.NewSession()
	s.UserID = "Luis"
	s.HasName = true
	s.State = domain.StateCollectingInterests
	if err := h.repo.SaveSession(context.Background(), s); err != nil {
		t.Fatal(err)
	}
	if _, err := m.Resume(context.Background(), "browserA:tab", "Luis"); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestManagerResumeRejectsWhileAnotherTabHoldsIt(t *testing.T) {
	m, _ := newTestManager(t, 10)
	ctx := context.Background()
	if _, err := m.Send(ctx, "browserA:1", "Soy Ana Torres"); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if _, err := m.Resume(ctx, "browserA:2", "Ana Torres"); !errors.Is(err, domain.ErrSessionBusy) {
		t.Fatalf("expected ErrSessionBusy while tab 1 is live, got %v", err)
	}

	if err := m.Suspend(ctx, "browserA:1"); err != nil {
		t.Fatalf("Suspend failed: %v", err)
	}
	if _, err := m.Resume(ctx, "browserA:2", "Ana Torres"); err != nil {
		t.Fatalf("Resume after suspend failed: %v", err)
	}
}

func TestManagerRestoreIgnoresSnapshotTakenOverByAnotherClient(t *testing.T) {
	m, _ := newTestManager(t, 1)
	ctx := context.Background()
	if _, err := m.Send(ctx, "browserA:tab", "Soy Ana Torres"); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	// Capacity is one: browserB evicts browserA and then saves under the same name.
	if _, err := m.Send(ctx, "browserB:tab", "Soy Ana Torres"); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	m.saves.Wait()
	if _, err := m.Send(ctx, "browserB:tab", "mi propio secreto"); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	r, err := m.Start(ctx, "browserA:tab")
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if r.State != domain.StateAwaitingName || len(r.Messages) != 1 {
		t.Fatalf("expected a fresh session instead of browserB's conversation, got %+v", r)
	}
}

func TestManagerRestoreFailureIsReported(t *testing.T) {
	m, h := newTestManager(t, 1)
	ctx := context.Background()
	if _, err := m.Send(ctx, "browserA:tab", "Soy Ana Torres"); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if _, err := m.Start(ctx, "browserB:tab"); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	h.repo.mu.Lock()
	h.repo.loadErr = errors.New("database is locked")
	h.repo.mu.Unlock()
	if _, err := m.Send(ctx, "browserA:tab", "me gusta la música"); err == nil {
		t.Fatal("expected restore error instead of a silent fresh session")
	}

	h.repo.mu.Lock()
	h.repo.loadErr = nil
	h.repo.mu.Unlock()
	r, err := m.Send(ctx, "browserA:tab", "me gusta la música")
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if r.UserID != "Ana Torres" || r.State != domain.StateAnsweringQuestions {
		t.Fatalf("expected restored conversation, got %+v", r)
	}
}
