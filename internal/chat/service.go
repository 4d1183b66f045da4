// Package chat sequences the chat, transcript and clear commands over the
// conversation store and the completion provider.
package chat

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/edgard/transcriptbot/internal/completion"
	"github.com/edgard/transcriptbot/internal/history"
	"github.com/edgard/transcriptbot/internal/text"
)

var (
	// ErrEmptyPrompt is returned when the prompt holds only whitespace.
	ErrEmptyPrompt = errors.New("prompt is empty")

	// ErrPromptTooLong is returned when the prompt exceeds MaxPromptLength.
	ErrPromptTooLong = errors.New("prompt too long")
)

// linePunctuation is the ": " after an author name plus the newline joining
// the line to the one before it.
const linePunctuation = 3

// Options configures a Service.
type Options struct {
	BotID              int64
	BotName            string
	MaxPromptLength    int
	ReservedCharacters int
	CompletionTimeout  time.Duration

	// TranscriptEmpty is reported by Transcript when nothing is stored.
	TranscriptEmpty string
}

// Service is the single long-lived orchestrator behind the chat commands.
type Service struct {
	store *history.Store
	ai    completion.Client
	log   *slog.Logger
	opts  Options
}

// Reply is the outcome of one chat turn.
type Reply struct {
	Asker  string
	Prompt string
	Answer string
}

// Text formats the reply as a quote of the prompt followed by the answer.
func (r *Reply) Text() string {
	return text.QuoteLines(r.Asker+": "+r.Prompt) + "\n\n" + r.Answer
}

// NewService creates a Service.
func NewService(store *history.Store, ai completion.Client, opts Options, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Service{
		store: store,
		ai:    ai,
		log:   logger.With("component", "chat"),
		opts:  opts,
	}
}

// MaxPromptLength is the longest prompt Chat accepts, in characters.
func (s *Service) MaxPromptLength() int {
	return s.opts.MaxPromptLength
}

// limit bounds the stored transcript and everything sent to the provider.
func (s *Service) limit() int {
	return max(s.opts.MaxPromptLength-s.opts.ReservedCharacters, 0)
}

// historyBudget is what is left of limit for earlier messages once the
// asker's line and the bot's empty reply line are set aside.
func (s *Service) historyBudget(asker, prompt string) int {
	newLines := utf8.RuneCountInString(asker) + utf8.RuneCountInString(prompt) + linePunctuation +
		utf8.RuneCountInString(s.opts.BotName) + linePunctuation
	return max(s.limit()-newLines, 0)
}

// Chat runs one turn of owner's conversation. Under the owner's lock the
// earlier messages are trimmed to leave room for the prompt, the prompt and
// a placeholder for the answer are appended, and the transcript is sent to
// the provider. The filled conversation is trimmed to the limit and saved.
// When the provider fails or has no answer nothing is saved. Once the lock
// is held the turn completes even if ctx is cancelled.
func (s *Service) Chat(ctx context.Context, owner int64, prompt string) (*Reply, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return nil, ErrEmptyPrompt
	}
	if utf8.RuneCountInString(prompt) > s.opts.MaxPromptLength {
		return nil, fmt.Errorf("%w: %d characters, limit %d", ErrPromptTooLong, utf8.RuneCountInString(prompt), s.opts.MaxPromptLength)
	}

	asker, err := s.store.Resolve(ctx, owner)
	if err != nil {
		return nil, fmt.Errorf("resolving asker: %w", err)
	}

	budget := s.historyBudget(asker, prompt)

	lock, err := s.store.Lock(ctx, owner)
	if err != nil {
		return nil, err
	}
	defer lock.Unlock(ctx)

	ctx = context.WithoutCancel(ctx)

	conv, err := s.store.Get(ctx, owner)
	if err != nil {
		return nil, err
	}

	if err := s.trimHistory(ctx, conv, budget); err != nil {
		return nil, err
	}

	conv.Append(owner, prompt)
	placeholder := conv.Append(s.opts.BotID, "")

	transcript, err := s.store.Render(ctx, conv)
	if err != nil {
		return nil, fmt.Errorf("rendering conversation: %w", err)
	}

	answer, err := s.complete(ctx, transcript)
	if err != nil {
		return nil, err
	}

	if err := conv.SetBody(placeholder, answer); err != nil {
		return nil, err
	}
	if _, err := s.store.Trim(ctx, conv, s.limit()); err != nil {
		return nil, fmt.Errorf("trimming conversation: %w", err)
	}
	if err := s.store.SaveHeld(ctx, lock, conv); err != nil {
		return nil, err
	}

	s.log.InfoContext(ctx, "Chat turn completed", "owner_id", owner, "messages", conv.Len(), "answer_length", len(answer))
	return &Reply{Asker: asker, Prompt: prompt, Answer: answer}, nil
}

// trimHistory fits the earlier messages of conv into budget. A single
// remaining message that still overflows is dropped too, so the new prompt
// always reaches the provider.
func (s *Service) trimHistory(ctx context.Context, conv *history.Conversation, budget int) error {
	if _, err := s.store.Trim(ctx, conv, budget); err != nil {
		return fmt.Errorf("trimming conversation: %w", err)
	}
	if conv.Len() != 1 {
		return nil
	}

	rendered, err := s.store.Render(ctx, conv)
	if err != nil {
		return fmt.Errorf("rendering conversation: %w", err)
	}
	if utf8.RuneCountInString(rendered) > budget {
		conv.Clear()
	}
	return nil
}

func (s *Service) complete(ctx context.Context, transcript string) (string, error) {
	if s.opts.CompletionTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.CompletionTimeout)
		defer cancel()
	}

	answer, err := s.ai.Complete(ctx, transcript)
	if err != nil {
		return "", err
	}

	answer = strings.TrimLeftFunc(answer, unicode.IsSpace)
	if answer == "" {
		return "", completion.ErrNoAnswer
	}
	return answer, nil
}

// Transcript renders owner's stored conversation, or Options.TranscriptEmpty
// when there is none. It reads without taking the lock.
func (s *Service) Transcript(ctx context.Context, owner int64) (string, error) {
	conv, err := s.store.Get(ctx, owner)
	if err != nil {
		return "", err
	}
	if conv.Len() == 0 {
		return s.opts.TranscriptEmpty, nil
	}
	return s.store.Render(ctx, conv)
}

// Clear forgets owner's conversation.
func (s *Service) Clear(ctx context.Context, owner int64) error {
	if err := s.store.Clear(ctx, owner); err != nil {
		return err
	}
	s.log.InfoContext(ctx, "Conversation cleared", "owner_id", owner)
	return nil
}
