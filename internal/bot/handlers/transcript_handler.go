package handlers

import (
	"context"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

// NewTranscriptHandler returns a handler for the /transcript command.
func NewTranscriptHandler(deps HandlerDeps) bot.HandlerFunc {
	return transcriptHandler{deps}.Handle
}

type transcriptHandler struct {
	deps HandlerDeps
}

func (h transcriptHandler) Handle(ctx context.Context, b *bot.Bot, update *models.Update) {
	log := h.deps.Logger.With("handler", "transcript")

	msg := update.Message
	if msg == nil || msg.From == nil {
		log.WarnContext(ctx, "Transcript handler received update with nil message or sender", "update_id", update.ID)
		return
	}
	log = log.With("chat_id", msg.Chat.ID, "user_id", msg.From.ID)

	it := newInteraction(h.deps, b, msg, log)
	it.Ack(ctx)

	transcript, err := h.deps.Chat.Transcript(ctx, msg.From.ID)
	if err != nil {
		it.FailUnexpected(ctx, "Failed to render transcript", err)
		return
	}

	if err := it.FollowUp(ctx, transcript); err != nil {
		log.ErrorContext(ctx, "Failed to send transcript", "error", err)
		return
	}
	log.InfoContext(ctx, "Transcript sent", "length", len(transcript))
}
