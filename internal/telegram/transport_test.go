package telegram

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"unicode/utf8"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/ashureev/orientador/internal/dialogue"
	"github.com/ashureev/orientador/internal/domain"
	"github.com/ashureev/orientador/internal/prompts"
)

type fakeSender struct {
	mu      sync.Mutex
	texts   []string
	actions int
}

func (f *fakeSender) SendMessage(_ context.Context, params *bot.SendMessageParams) (*models.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.texts = append(f.texts, params.Text)
	return &models.Message{}, nil
}

func (f *fakeSender) SendChatAction(_ context.Context, _ *bot.SendChatActionParams) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.actions++
	return true, nil
}

type fakeConversations struct {
	key  string
	text string
	err  error
}

func (f *fakeConversations) Send(_ context.Context, key, text string) (dialogue.Reply, error) {
	f.key, f.text = key, text
	if f.err != nil {
		return dialogue.Reply{}, f.err
	}
	return dialogue.Reply{Messages: []domain.Message{{Text: "uno"}, {Text: "dos"}}}, nil
}

func (f *fakeConversations) Retry(context.Context, string) (dialogue.Reply, error) {
	return dialogue.Reply{}, nil
}

func (f *fakeConversations) Reset(context.Context, string) (dialogue.Reply, error) {
	return dialogue.Reply{}, nil
}

func TestHandleTextForwardsAndReplies(t *testing.T) {
	conv := &fakeConversations{}
	tr := &Transport{conv: conv, logger: slog.Default()}
	s := &fakeSender{}

	tr.handleText(context.Background(), s, 42, "Me llamo Ana")

	if conv.key != "tg_42:chat" || conv.text != "Me llamo Ana" {
		t.Fatalf("unexpected forward %q %q", conv.key, conv.text)
	}
	if len(s.texts) != 2 || s.texts[0] != "uno" || s.texts[1] != "dos" {
		t.Fatalf("unexpected replies %v", s.texts)
	}
	if s.actions != 1 {
		t.Fatalf("expected typing action, got %d", s.actions)
	}
}

func TestHandleTextBusy(t *testing.T) {
	tr := &Transport{conv: &fakeConversations{err: domain.ErrSessionBusy}, logger: slog.Default()}
	s := &fakeSender{}

	tr.handleText(context.Background(), s, 7, "hola")
	if len(s.texts) != 1 || s.texts[0] != prompts.Busy {
		t.Fatalf("expected busy message, got %v", s.texts)
	}
}

func TestHandleTextIgnoresUnknownCommands(t *testing.T) {
	conv := &fakeConversations{}
	tr := &Transport{conv: conv, logger: slog.Default()}
	s := &fakeSender{}

	tr.handleText(context.Background(), s, 7, "/ayuda")
	if conv.key != "" || len(s.texts) != 0 {
		t.Fatal("commands must not reach the conversation")
	}
}

func TestSplitMessage(t *testing.T) {
	if parts := SplitMessage("corto", 10); len(parts) != 1 || parts[0] != "corto" {
		t.Fatalf("unexpected parts %v", parts)
	}

	text := strings.Repeat("á", 8) + "\n" + strings.Repeat("é", 8)
	parts := SplitMessage(text, 10)
	if len(parts) != 2 || parts[0] != strings.Repeat("á", 8)+"\n" || parts[1] != strings.Repeat("é", 8) {
		t.Fatalf("expected newline split, got %q", parts)
	}

	long := strings.Repeat("x", 25)
	parts = SplitMessage(long, 10)
	if len(parts) != 3 || strings.Join(parts, "") != long {
		t.Fatalf("unexpected hard split %q", parts)
	}
	for _, p := range parts {
		if utf8.RuneCountInString(p) > 10 {
			t.Fatalf("part too long: %q", p)
		}
	}
}
