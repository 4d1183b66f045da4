package handlers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"unicode/utf8"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/edgard/transcriptbot/internal/chat"
	"github.com/edgard/transcriptbot/internal/completion"
)

// NewChatHandler returns a handler for the /chat command.
func NewChatHandler(deps HandlerDeps) bot.HandlerFunc {
	return chatHandler{deps}.Handle
}

type chatHandler struct {
	deps HandlerDeps
}

func (h chatHandler) Handle(ctx context.Context, b *bot.Bot, update *models.Update) {
	log := h.deps.Logger.With("handler", "chat")

	msg := update.Message
	if msg == nil || msg.From == nil {
		log.WarnContext(ctx, "Chat handler received update with nil message or sender", "update_id", update.ID)
		return
	}
	log = log.With("chat_id", msg.Chat.ID, "user_id", msg.From.ID)

	it := newInteraction(h.deps, b, msg, log)

	prompt := commandArgs(msg.Text)
	if prompt == "" {
		log.InfoContext(ctx, "Rejected empty prompt")
		it.Fail(ctx, h.deps.Config.Messages.PromptEmpty)
		return
	}

	// Checked before the conversation lock is requested.
	limit := h.deps.Chat.MaxPromptLength()
	if utf8.RuneCountInString(prompt) > limit {
		log.InfoContext(ctx, "Rejected prompt over length limit", "length", utf8.RuneCountInString(prompt), "limit", limit)
		it.Fail(ctx, fmt.Sprintf(h.deps.Config.Messages.PromptTooLong, limit))
		return
	}

	it.Ack(ctx)

	reply, err := h.deps.Chat.Chat(ctx, msg.From.ID, prompt)
	if err != nil {
		h.reportError(ctx, it, log, err)
		return
	}

	if err := it.FollowUp(ctx, reply.Text()); err != nil {
		log.ErrorContext(ctx, "Failed to send chat reply", "error", err)
		return
	}
	log.DebugContext(ctx, "Chat reply sent", "answer_length", len(reply.Answer))
}

func (h chatHandler) reportError(ctx context.Context, it *interaction, log *slog.Logger, err error) {
	messages := h.deps.Config.Messages

	switch {
	case errors.Is(err, completion.ErrNoAnswer):
		log.InfoContext(ctx, "Completion provider had no answer", "error", err)
		it.Fail(ctx, messages.NoAnswer)

	case errors.Is(err, chat.ErrEmptyPrompt):
		it.Fail(ctx, messages.PromptEmpty)

	case errors.Is(err, chat.ErrPromptTooLong):
		it.Fail(ctx, fmt.Sprintf(messages.PromptTooLong, h.deps.Chat.MaxPromptLength()))

	default:
		it.FailUnexpected(ctx, "Chat turn failed", err)
	}
}
