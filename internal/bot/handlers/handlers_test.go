package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edgard/transcriptbot/internal/chat"
	"github.com/edgard/transcriptbot/internal/completion"
	"github.com/edgard/transcriptbot/internal/config"
	"github.com/edgard/transcriptbot/internal/database"
	"github.com/edgard/transcriptbot/internal/history"
)

const (
	testBotID  int64 = 99
	testUserID int64 = 1
	testChatID int64 = -100
)

type apiCall struct {
	Method string
	Text   string
}

// fakeTelegram records Bot API calls and answers them with canned results.
type fakeTelegram struct {
	mu    sync.Mutex
	calls []apiCall
}

func (f *fakeTelegram) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	_ = r.ParseMultipartForm(1 << 20)
	method := path.Base(r.URL.Path)

	f.mu.Lock()
	f.calls = append(f.calls, apiCall{Method: method, Text: r.FormValue("text")})
	f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	switch method {
	case "sendMessage":
		_, _ = fmt.Fprintf(w, `{"ok":true,"result":{"message_id":1,"date":0,"chat":{"id":%d,"type":"supergroup"}}}`, testChatID)
	default:
		_, _ = io.WriteString(w, `{"ok":true,"result":true}`)
	}
}

func (f *fakeTelegram) sent() []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	var texts []string
	for _, c := range f.calls {
		if c.Method == "sendMessage" {
			texts = append(texts, c.Text)
		}
	}
	return texts
}

func (f *fakeTelegram) methods() []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	var methods []string
	for _, c := range f.calls {
		methods = append(methods, c.Method)
	}
	return methods
}

type failingLookup struct{}

func (failingLookup) LookupDisplayName(context.Context, int64) (string, error) {
	return "", errors.New("chat not found")
}

type stubCompletion struct {
	answer string
	err    error
}

func (s *stubCompletion) Complete(context.Context, string) (string, error) {
	return s.answer, s.err
}

type testEnv struct {
	deps  HandlerDeps
	tg    *fakeTelegram
	b     *bot.Bot
	ai    *stubCompletion
	store *history.Store
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	tg := &fakeTelegram{}
	srv := httptest.NewServer(tg)
	t.Cleanup(srv.Close)

	b, err := bot.New("123456:TEST-token", bot.WithServerURL(srv.URL), bot.WithSkipGetMe())
	require.NoError(t, err)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	backend, err := database.NewBoltBackend(filepath.Join(t.TempDir(), "handlers.bolt"), logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = backend.Close() })

	resolver := history.NewCachingResolver(failingLookup{})
	resolver.Remember(testBotID, "bot")

	cfg := &config.Config{
		Telegram: config.TelegramConfig{
			MaxMessageLength: 4096,
			SendBurst:        1,
			BotInfo:          &models.User{ID: testBotID, Username: "transcript_bot"},
		},
		AI:       config.AIConfig{MaxPromptLength: 50},
		Messages: config.DefaultMessages,
	}

	store := history.NewStore(backend, resolver, config.DatabaseConfig{
		LockTTL:          time.Minute,
		LockPollInterval: 5 * time.Millisecond,
		OperationTimeout: time.Second,
	}, logger)
	ai := &stubCompletion{answer: "hi alice"}
	svc := chat.NewService(store, ai, chat.Options{
		BotID:           testBotID,
		BotName:         "bot",
		MaxPromptLength: cfg.AI.MaxPromptLength,
		TranscriptEmpty: cfg.Messages.TranscriptEmpty,
	}, logger)

	deps := HandlerDeps{
		Logger: logger,
		Config: cfg,
		Chat:   svc,
		Users:  resolver,
		Sender: NewSender(cfg.Telegram),
	}
	return &testEnv{deps: deps, tg: tg, b: b, ai: ai, store: store}
}

// handler returns the registered command wrapped in its middleware.
func (e *testEnv) handler(command string) bot.HandlerFunc {
	reg := RegisterAllCommands(e.deps)[command]
	h := reg.Handler
	for i := len(reg.Middleware) - 1; i >= 0; i-- {
		h = reg.Middleware[i](h)
	}
	return h
}

func commandUpdate(chatID int64, text string) *models.Update {
	return &models.Update{
		ID: 1,
		Message: &models.Message{
			ID:   10,
			Text: text,
			Chat: models.Chat{ID: chatID, Type: "supergroup"},
			From: &models.User{ID: testUserID, FirstName: "Alice"},
		},
	}
}

func TestChatHandler(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	env.handler("/chat")(t.Context(), env.b, commandUpdate(testChatID, "/chat hello"))

	assert.Equal(t, []string{"sendChatAction", "sendMessage"}, env.tg.methods())
	assert.Equal(t, []string{"> Alice: hello\n\nhi alice"}, env.tg.sent())
}

func TestChatHandlerFailures(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		text     string
		aiErr    error
		expected string
	}{
		{name: "empty prompt", text: "/chat   ", expected: config.DefaultMessages.PromptEmpty},
		{name: "prompt too long", text: "/chat " + strings.Repeat("x", 51), expected: fmt.Sprintf(config.DefaultMessages.PromptTooLong, 50)},
		{name: "no answer", text: "/chat hello", aiErr: completion.ErrNoAnswer, expected: config.DefaultMessages.NoAnswer},
		{name: "provider failure", text: "/chat hello", aiErr: errors.New("upstream down"), expected: config.DefaultMessages.GeneralError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			env := newTestEnv(t)
			env.ai.err = tt.aiErr
			env.handler("/chat")(t.Context(), env.b, commandUpdate(testChatID, tt.text))

			assert.Equal(t, []string{tt.expected}, env.tg.sent())
		})
	}
}

func TestChatOnlyRejectsBeforeAck(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	env.deps.Config.Telegram.AllowedChatID = testChatID

	env.handler("/chat")(t.Context(), env.b, commandUpdate(-200, "/chat hello"))

	assert.Equal(t, []string{"sendMessage"}, env.tg.methods(), "no typing action before rejection")
	assert.Equal(t, []string{config.DefaultMessages.WrongChat}, env.tg.sent())
}

func TestTranscriptHandler(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	ctx := t.Context()

	env.handler("/transcript")(ctx, env.b, commandUpdate(testChatID, "/transcript"))
	env.handler("/chat")(ctx, env.b, commandUpdate(testChatID, "/chat hello"))
	env.handler("/transcript")(ctx, env.b, commandUpdate(testChatID, "/transcript"))

	sent := env.tg.sent()
	require.Len(t, sent, 3)
	assert.Equal(t, config.DefaultMessages.TranscriptEmpty, sent[0])
	assert.Equal(t, "Alice: hello\nbot: hi alice", sent[2])
}

func TestTranscriptHandlerUnknownUser(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	ctx := t.Context()

	conv := history.NewConversation(testUserID)
	conv.Append(404, "ghost")
	require.NoError(t, env.store.Save(ctx, conv))

	env.handler("/transcript")(ctx, env.b, commandUpdate(testChatID, "/transcript"))

	assert.Equal(t, []string{config.DefaultMessages.GeneralError}, env.tg.sent())
}

func TestClearHandler(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	ctx := t.Context()

	env.handler("/chat")(ctx, env.b, commandUpdate(testChatID, "/chat hello"))
	env.handler("/clear")(ctx, env.b, commandUpdate(testChatID, "/clear"))

	sent := env.tg.sent()
	require.Len(t, sent, 2)
	assert.Equal(t, config.DefaultMessages.HistoryCleared, sent[1])

	conv, err := env.store.Get(ctx, testUserID)
	require.NoError(t, err)
	assert.Zero(t, conv.Len())
}

func TestStartAndHelpHandlers(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	env.handler("/start")(t.Context(), env.b, commandUpdate(testChatID, "/start"))
	env.handler("/help")(t.Context(), env.b, commandUpdate(testChatID, "/help"))

	sent := env.tg.sent()
	require.Len(t, sent, 2)
	assert.Contains(t, sent[0], "@transcript_bot")
	assert.Equal(t, config.DefaultMessages.Help, sent[1])
}

func TestRecoverSendsGeneralError(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	h := Recover(env.deps)(func(context.Context, *bot.Bot, *models.Update) {
		panic("boom")
	})

	assert.NotPanics(t, func() {
		h(t.Context(), env.b, commandUpdate(testChatID, "/chat x"))
	})
	assert.Equal(t, []string{config.DefaultMessages.GeneralError}, env.tg.sent())
}

func TestRecoverAfterReplySendsNothingMore(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	h := Recover(env.deps)(func(ctx context.Context, b *bot.Bot, u *models.Update) {
		require.NoError(t, env.deps.Sender.Send(ctx, b, u.Message.Chat.ID, u.Message.ID, "answer"))
		panic("boom")
	})

	assert.NotPanics(t, func() {
		h(t.Context(), env.b, commandUpdate(testChatID, "/chat x"))
	})
	assert.Equal(t, []string{"answer"}, env.tg.sent(), "exactly one outcome per update")
}

func TestSenderChunks(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	sender := NewSender(config.TelegramConfig{MaxMessageLength: 10, SendBurst: 1})

	err := sender.Send(t.Context(), env.b, testChatID, 0, "aaaa bbbb cccc dddd")
	require.NoError(t, err)
	assert.Equal(t, []string{"aaaa bbbb ", "cccc dddd"}, env.tg.sent())

	require.NoError(t, sender.Send(t.Context(), env.b, testChatID, 0, ""))
	assert.Len(t, env.tg.sent(), 2, "empty text sends nothing")
}

func TestCommandArgs(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input    string
		expected string
	}{
		{input: "/chat", expected: ""},
		{input: "/chat hello there", expected: "hello there"},
		{input: "/chat@transcript_bot  hi ", expected: "hi"},
		{input: "/chat\nline one\nline two", expected: "line one\nline two"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.expected, commandArgs(tt.input))
		})
	}
}

func TestDisplayName(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "Ada Lovelace", displayName(&models.User{FirstName: "Ada", LastName: "Lovelace"}))
	assert.Equal(t, "Ada", displayName(&models.User{FirstName: "Ada"}))
	assert.Equal(t, "ada_l", displayName(&models.User{Username: "ada_l"}))
}
