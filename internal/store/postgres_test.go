package store

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/ashureev/orientador/internal/domain"
)

// newTestPostgres connects to DATABASE_URL and skips when it is unset.
func newTestPostgres(t *testing.T) *PostgresStore {
	t.Helper()
	url := os.Getenv("DATABASE_URL")
	if url == "" {
		t.Skip("DATABASE_URL not set; skipping PostgreSQL tests")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	s, err := NewPostgres(ctx, url)
	if err != nil {
		t.Fatalf("NewPostgres failed: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestPostgresRoundTrip(t *testing.T) {
	ctx := context.Background()
	st := newTestPostgres(t)

	userID := "pg-test-" + time.Now().Format("150405.000000")
	t.Cleanup(func() { _ = st.DeleteSession(context.Background(), userID) })

	in := sampleSession(userID)
	if err := st.SaveSession(ctx, in); err != nil {
		t.Fatalf("SaveSession failed: %v", err)
	}

	out, err := st.LoadSession(ctx, userID)
	if err != nil {
		t.Fatalf("LoadSession failed: %v", err)
	}
	if out == nil {
		t.Fatal("expected stored session")
	}
	if out.UserID != in.UserID || out.Owner != in.Owner || out.State != in.State || out.HasName != in.HasName {
		t.Fatalf("header mismatch: %+v", out)
	}
	if out.AnswerIndex != 1 || out.RetryCount != 1 || out.Interests != in.Interests {
		t.Fatalf("cursor mismatch: index=%d retry=%d interests=%q", out.AnswerIndex, out.RetryCount, out.Interests)
	}
	if len(out.Questions) != 2 || out.Questions[1].Dimension != "digital" {
		t.Fatalf("questions mismatch: %+v", out.Questions)
	}
	if len(out.Answers) != 1 || len(out.History) != 2 || out.History[1].ID != in.History[1].ID {
		t.Fatalf("collections mismatch: answers=%+v history=%+v", out.Answers, out.History)
	}

	if err := out.Terminate("Medicina", domain.StateTerminated); err != nil {
		t.Fatal(err)
	}
	if err := st.SaveSession(ctx, out); err != nil {
		t.Fatalf("second SaveSession failed: %v", err)
	}
	again, err := st.LoadSession(ctx, userID)
	if err != nil {
		t.Fatal(err)
	}
	if !again.Terminated || again.Recommendation != "Medicina" {
		t.Fatalf("overwrite not applied: %+v", again)
	}

	list, err := st.ListSessions(ctx)
	if err != nil {
		t.Fatalf("ListSessions failed: %v", err)
	}
	found := false
	for _, s := range list {
		if s.UserID == userID {
			found = true
		}
	}
	if !found {
		t.Fatalf("session %s missing from listing", userID)
	}

	if err := st.DeleteSession(ctx, userID); err != nil {
		t.Fatalf("DeleteSession failed: %v", err)
	}
	gone, err := st.LoadSession(ctx, userID)
	if err != nil || gone != nil {
		t.Fatalf("expected nil, nil after delete, got %v, %v", gone, err)
	}
}

func TestPostgresLoadMissing(t *testing.T) {
	st := newTestPostgres(t)
	s, err := st.LoadSession(context.Background(), "nadie-"+time.Now().Format("150405.000000"))
	if err != nil || s != nil {
		t.Fatalf("expected nil, nil for missing session, got %v, %v", s, err)
	}
}
