package handlers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"
	"unicode"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"golang.org/x/time/rate"

	"github.com/edgard/transcriptbot/internal/config"
	"github.com/edgard/transcriptbot/internal/history"
	"github.com/edgard/transcriptbot/internal/text"
)

const (
	sendMessageTimeout = 10 * time.Second
	chatActionTimeout  = 5 * time.Second
)

type outcomeKey struct{}

// outcome records whether the update has already been answered, so a later
// panic does not produce a second reply.
type outcome struct {
	replied atomic.Bool
}

func withOutcome(ctx context.Context) (context.Context, *outcome) {
	o := &outcome{}
	return context.WithValue(ctx, outcomeKey{}, o), o
}

func markReplied(ctx context.Context) {
	if o, ok := ctx.Value(outcomeKey{}).(*outcome); ok {
		o.replied.Store(true)
	}
}

// Sender delivers outgoing text in chunks that fit Telegram's message
// length limit, pacing messages with a shared rate limiter.
type Sender struct {
	maxLen  int
	limiter *rate.Limiter
}

// NewSender creates a Sender from the Telegram settings.
func NewSender(cfg config.TelegramConfig) *Sender {
	limit := rate.Inf
	if cfg.SendInterval > 0 {
		limit = rate.Every(cfg.SendInterval)
	}
	return &Sender{
		maxLen:  cfg.MaxMessageLength,
		limiter: rate.NewLimiter(limit, max(cfg.SendBurst, 1)),
	}
}

// Send delivers msg to chatID in order. The first chunk replies to replyTo
// when it is non-zero.
func (s *Sender) Send(ctx context.Context, b *bot.Bot, chatID int64, replyTo int, msg string) error {
	for i, chunk := range text.Chunk(msg, s.maxLen) {
		if err := s.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("waiting to send chunk %d: %w", i, err)
		}

		params := &bot.SendMessageParams{ChatID: chatID, Text: chunk}
		if i == 0 && replyTo != 0 {
			params.ReplyParameters = &models.ReplyParameters{MessageID: replyTo, AllowSendingWithoutReply: true}
		}

		sendCtx, cancel := context.WithTimeout(ctx, sendMessageTimeout)
		_, err := b.SendMessage(sendCtx, params)
		cancel()
		if err != nil {
			return fmt.Errorf("sending chunk %d: %w", i, err)
		}
		markReplied(ctx)
	}
	return nil
}

// interaction tracks the exchange started by one command message: it is
// acknowledged once with a typing action, then answered with follow-ups.
type interaction struct {
	deps HandlerDeps
	b    *bot.Bot
	msg  *models.Message
	log  *slog.Logger

	ackOnce sync.Once
}

func newInteraction(deps HandlerDeps, b *bot.Bot, msg *models.Message, log *slog.Logger) *interaction {
	return &interaction{deps: deps, b: b, msg: msg, log: log}
}

// Ack tells the chat the bot is working. Only the first call has effect.
func (it *interaction) Ack(ctx context.Context) {
	it.ackOnce.Do(func() {
		actionCtx, cancel := context.WithTimeout(ctx, chatActionTimeout)
		defer cancel()

		_, err := it.b.SendChatAction(actionCtx, &bot.SendChatActionParams{ChatID: it.msg.Chat.ID, Action: models.ChatActionTyping})
		if err != nil {
			it.log.WarnContext(ctx, "Failed to send typing action", "error", err, "chat_id", it.msg.Chat.ID)
		}
	})
}

// FollowUp sends msg as a reply to the command message.
func (it *interaction) FollowUp(ctx context.Context, msg string) error {
	it.Ack(ctx)
	return it.deps.Sender.Send(ctx, it.b, it.msg.Chat.ID, it.msg.ID, msg)
}

// Fail reports msg to the user. A delivery failure is logged and dropped.
func (it *interaction) Fail(ctx context.Context, msg string) {
	if err := it.FollowUp(ctx, msg); err != nil {
		it.log.ErrorContext(ctx, "Failed to send error message", "error", err, "chat_id", it.msg.Chat.ID)
	}
}

// FailUnexpected logs err and sends the general error message. A username
// that could not be resolved is logged with its identifier.
func (it *interaction) FailUnexpected(ctx context.Context, what string, err error) {
	var notFound *history.NotFoundError
	if errors.As(err, &notFound) {
		it.log.ErrorContext(ctx, what, "error", err, "missing_user_id", notFound.UserID)
	} else {
		it.log.ErrorContext(ctx, what, "error", err)
	}
	it.Fail(ctx, it.deps.Config.Messages.GeneralError)
}

// commandArgs returns the text after the command word, trimmed.
func commandArgs(msgText string) string {
	idx := strings.IndexFunc(msgText, unicode.IsSpace)
	if idx < 0 {
		return ""
	}
	return strings.TrimSpace(msgText[idx:])
}

// displayName builds the name shown in transcripts for a Telegram user.
func displayName(u *models.User) string {
	name := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if name == "" {
		name = u.Username
	}
	return name
}
