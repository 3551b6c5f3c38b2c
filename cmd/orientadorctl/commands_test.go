package main

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ashureev/orientador/internal/domain"
	"github.com/ashureev/orientador/internal/store"
)

func seededCLI(t *testing.T) (*cli, string) {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "ctl.db")

	repo, err := store.NewSQLite(dbPath)
	if err != nil {
		t.Fatalf("NewSQLite failed: %v", err)
	}
	s := domain.NewSession()
	s.UserID = "Ana Torres"
	s.HasName = true
	s.State = domain.StateCollectingInterests
	s.AppendMessage(domain.SenderBot, "¿Cuál es tu nombre?")
	s.AppendMessage(domain.SenderUser, "Me llamo Ana Torres")
	if err := repo.SaveSession(context.Background(), s); err != nil {
		t.Fatalf("SaveSession failed: %v", err)
	}
	if err := repo.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	return &cli{open: store.New}, dbPath
}

func execute(t *testing.T, c *cli, args ...string) (string, error) {
	t.Helper()
	root := c.rootCommand()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestListAndTranscript(t *testing.T) {
	c, dbPath := seededCLI(t)

	out, err := execute(t, c, "list", "--driver", "sqlite", "--db", dbPath)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if !strings.Contains(out, "Ana Torres") || !strings.Contains(out, string(domain.StateCollectingInterests)) {
		t.Fatalf("unexpected list output:\n%s", out)
	}

	out, err = execute(t, c, "transcript", "Ana Torres", "--driver", "sqlite", "--db", dbPath)
	if err != nil {
		t.Fatalf("transcript failed: %v", err)
	}
	want := "Bot: ¿Cuál es tu nombre?\nUsuario: Me llamo Ana Torres\n"
	if out != want {
		t.Fatalf("transcript = %q, want %q", out, want)
	}
}

func TestShowUnknownUser(t *testing.T) {
	c, dbPath := seededCLI(t)
	if _, err := execute(t, c, "show", "Nadie", "--driver", "sqlite", "--db", dbPath); err == nil {
		t.Fatal("expected error for unknown user")
	}
}

func TestDeleteRemovesSession(t *testing.T) {
	c, dbPath := seededCLI(t)

	if _, err := execute(t, c, "delete", "Ana Torres", "--driver", "sqlite", "--db", dbPath); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	out, err := execute(t, c, "list", "--driver", "sqlite", "--db", dbPath)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if strings.Contains(out, "Ana Torres") {
		t.Fatalf("session still listed after delete:\n%s", out)
	}
}

func TestCleanupRejectsNonPositiveTTL(t *testing.T) {
	c, dbPath := seededCLI(t)
	if _, err := execute(t, c, "cleanup", "--ttl", "0s", "--driver", "sqlite", "--db", dbPath); err == nil {
		t.Fatal("expected error for zero ttl")
	}

	out, err := execute(t, c, "cleanup", "--ttl", "1h", "--driver", "sqlite", "--db", dbPath)
	if err != nil {
		t.Fatalf("cleanup failed: %v", err)
	}
	if !strings.Contains(out, "removed 0 expired sessions") {
		t.Fatalf("unexpected cleanup output: %q", out)
	}
}
