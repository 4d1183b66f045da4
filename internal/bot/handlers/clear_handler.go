package handlers

import (
	"context"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

// NewClearHandler returns a handler for the /clear command.
func NewClearHandler(deps HandlerDeps) bot.HandlerFunc {
	return clearHandler{deps}.Handle
}

type clearHandler struct {
	deps HandlerDeps
}

func (h clearHandler) Handle(ctx context.Context, b *bot.Bot, update *models.Update) {
	log := h.deps.Logger.With("handler", "clear")

	msg := update.Message
	if msg == nil || msg.From == nil {
		log.WarnContext(ctx, "Clear handler received update with nil message or sender", "update_id", update.ID)
		return
	}
	log = log.With("chat_id", msg.Chat.ID, "user_id", msg.From.ID)

	it := newInteraction(h.deps, b, msg, log)
	it.Ack(ctx)

	if err := h.deps.Chat.Clear(ctx, msg.From.ID); err != nil {
		it.FailUnexpected(ctx, "Failed to clear conversation", err)
		return
	}

	if err := it.FollowUp(ctx, h.deps.Config.Messages.HistoryCleared); err != nil {
		log.ErrorContext(ctx, "Failed to send clear confirmation", "error", err)
	}
}
