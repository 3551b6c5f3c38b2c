// Package telegram serves the interview through a Telegram bot. Each chat is
// one conversation.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/ashureev/orientador/internal/dialogue"
	"github.com/ashureev/orientador/internal/domain"
	"github.com/ashureev/orientador/internal/identity"
	"github.com/ashureev/orientador/internal/prompts"
)

// Conversations is the part of the session registry the bot drives.
type Conversations interface {
	Send(ctx context.Context, key, text string) (dialogue.Reply, error)
	Retry(ctx context.Context, key string) (dialogue.Reply, error)
	Reset(ctx context.Context, key string) (dialogue.Reply, error)
}

// Sender is the subset of *bot.Bot used to answer a chat.
type Sender interface {
	SendMessage(ctx context.Context, params *bot.SendMessageParams) (*models.Message, error)
	SendChatAction(ctx context.Context, params *bot.SendChatActionParams) (bool, error)
}

// Transport connects a Telegram bot to the conversations.
type Transport struct {
	bot    *bot.Bot
	conv   Conversations
	logger *slog.Logger
}

// New creates a Telegram transport. The token is checked against the
// Telegram API.
func New(token string, conv Conversations, logger *slog.Logger) (*Transport, error) {
	if logger == nil {
		logger = slog.Default()
	}
	t := &Transport{conv: conv, logger: logger}

	b, err := bot.New(token,
		bot.WithMiddlewares(Recover(), Logging()),
		bot.WithDefaultHandler(t.onUpdate),
	)
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}
	b.RegisterHandler(bot.HandlerTypeMessageText, "/start", bot.MatchTypePrefix, t.onStart)
	b.RegisterHandler(bot.HandlerTypeMessageText, "/reintentar", bot.MatchTypePrefix, t.onRetry)
	t.bot = b
	return t, nil
}

// Run polls for updates until ctx is done.
func (t *Transport) Run(ctx context.Context) error {
	t.logger.Info("telegram transport started")
	t.bot.Start(ctx)
	t.logger.Info("telegram transport stopped")
	return nil
}

func chatKey(ctx context.Context, chatID int64) string {
	return identity.ClientKey(identity.WithIdentity(ctx, "tg_"+strconv.FormatInt(chatID, 10), "chat"))
}

func (t *Transport) onStart(ctx context.Context, b *bot.Bot, update *models.Update) {
	if update.Message == nil {
		return
	}
	chatID := update.Message.Chat.ID
	reply, err := t.conv.Reset(ctx, chatKey(ctx, chatID))
	t.respond(ctx, b, chatID, reply, err)
}

func (t *Transport) onRetry(ctx context.Context, b *bot.Bot, update *models.Update) {
	if update.Message == nil {
		return
	}
	chatID := update.Message.Chat.ID
	reply, err := t.conv.Retry(ctx, chatKey(ctx, chatID))
	t.respond(ctx, b, chatID, reply, err)
}

func (t *Transport) onUpdate(ctx context.Context, b *bot.Bot, update *models.Update) {
	if update.Message == nil || update.Message.Text == "" {
		return
	}
	t.handleText(ctx, b, update.Message.Chat.ID, update.Message.Text)
}

func (t *Transport) handleText(ctx context.Context, s Sender, chatID int64, text string) {
	if strings.HasPrefix(text, "/") {
		return
	}
	if _, err := s.SendChatAction(ctx, &bot.SendChatActionParams{
		ChatID: chatID,
		Action: models.ChatActionTyping,
	}); err != nil {
		t.logger.Debug("send typing action failed", "chat_id", chatID, "error", err)
	}
	reply, err := t.conv.Send(ctx, chatKey(ctx, chatID), text)
	t.respond(ctx, s, chatID, reply, err)
}

func (t *Transport) respond(ctx context.Context, s Sender, chatID int64, reply dialogue.Reply, err error) {
	if err != nil {
		if errors.Is(err, domain.ErrSessionBusy) {
			t.send(ctx, s, chatID, prompts.Busy)
			return
		}
		t.logger.Error("telegram conversation failed", "chat_id", chatID, "error", err)
		t.send(ctx, s, chatID, prompts.Unavailable)
		return
	}
	for _, m := range reply.Messages {
		t.send(ctx, s, chatID, m.Text)
	}
}

func (t *Transport) send(ctx context.Context, s Sender, chatID int64, text string) {
	for _, part := range SplitMessage(text, MaxMessageLen) {
		if _, err := s.SendMessage(ctx, &bot.SendMessageParams{ChatID: chatID, Text: part}); err != nil {
			t.logger.Warn("telegram send failed", "chat_id", chatID, "error", err)
			return
		}
	}
}
