package shared

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestIsSQLiteConflictError(t *testing.T) {
	if IsSQLiteConflictError(nil) {
		t.Fatal("nil is not a conflict")
	}
	if !IsSQLiteConflictError(errors.New("exec: database is locked (5) (SQLITE_BUSY)")) {
		t.Fatal("expected busy error to be a conflict")
	}
	if IsSQLiteConflictError(errors.New("no such table")) {
		t.Fatal("schema errors are not conflicts")
	}
}

func TestRetryOnConflict(t *testing.T) {
	policy := RetryPolicy{Attempts: 3, BaseDelay: time.Millisecond}

	calls := 0
	err := RetryOnConflict(context.Background(), policy, "save", func() error {
		calls++
		if calls < 3 {
			return errors.New("database is locked")
		}
		return nil
	})
	if err != nil || calls != 3 {
		t.Fatalf("expected success on third attempt, got err=%v calls=%d", err, calls)
	}

	calls = 0
	permanent := errors.New("constraint failed")
	err = RetryOnConflict(context.Background(), policy, "save", func() error {
		calls++
		return permanent
	})
	if !errors.Is(err, permanent) || calls != 1 {
		t.Fatalf("non-conflict errors must not retry, got err=%v calls=%d", err, calls)
	}

	calls = 0
	err = RetryOnConflict(context.Background(), policy, "save", func() error {
		calls++
		return errors.New("SQLITE_BUSY")
	})
	if err == nil || calls != 3 {
		t.Fatalf("expected exhaustion after 3 attempts, got err=%v calls=%d", err, calls)
	}
}
