// Package main contains the entrypoint for the transcript bot.
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	tgbot "github.com/go-telegram/bot"

	"github.com/edgard/transcriptbot/internal/bot"
	"github.com/edgard/transcriptbot/internal/bot/handlers"
	"github.com/edgard/transcriptbot/internal/bot/tasks"
	"github.com/edgard/transcriptbot/internal/chat"
	"github.com/edgard/transcriptbot/internal/completion"
	"github.com/edgard/transcriptbot/internal/config"
	"github.com/edgard/transcriptbot/internal/database"
	"github.com/edgard/transcriptbot/internal/history"
	"github.com/edgard/transcriptbot/internal/logger"
	"github.com/edgard/transcriptbot/internal/telegram"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	exitCode := run(ctx)
	stop()
	os.Exit(exitCode)
}

// run wires every component, runs the bot until ctx is cancelled and
// returns the process exit code.
func run(ctx context.Context) int {
	configPath := flag.String("config", "./config.yaml", "Path to configuration file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		slog.Error("Failed to load configuration", "path", *configPath, "error", err)
		return 1
	}

	log := logger.NewLogger(cfg.Logger.Level, cfg.Logger.JSON)
	slog.SetDefault(log)
	log.Info("Logger initialized", "level", cfg.Logger.Level, "json", cfg.Logger.JSON)

	backend, err := database.Open(ctx, cfg.Database, log)
	if err != nil {
		log.Error("Failed to open conversation backend", "driver", cfg.Database.Driver, "error", err)
		return 1
	}
	defer database.CloseBackend(backend)

	ai, err := completion.New(ctx, cfg.AI, log)
	if err != nil {
		log.Error("Failed to initialize completion client", "provider", cfg.AI.Provider, "error", err)
		return 1
	}

	tg, err := telegram.NewTelegramBot(cfg.Telegram.Token, log, tgbot.WithMiddlewares(logger.Middleware(log)))
	if err != nil {
		log.Error("Failed to create Telegram bot", "error", err)
		return 1
	}

	cfg.Telegram.BotInfo, err = tg.GetMe(ctx)
	if err != nil {
		log.Error("Failed to get bot info", "error", err)
		return 1
	}
	botName := telegram.BotName(cfg.Telegram.BotInfo)
	log.Info("Retrieved bot info", "bot_id", cfg.Telegram.BotInfo.ID, "bot_username", cfg.Telegram.BotInfo.Username)

	resolver := history.NewCachingResolver(telegram.NewUserLookup(tg))
	resolver.Remember(cfg.Telegram.BotInfo.ID, botName)

	store := history.NewStore(backend, resolver, cfg.Database, log)
	svc := chat.NewService(store, ai, chat.Options{
		BotID:              cfg.Telegram.BotInfo.ID,
		BotName:            botName,
		MaxPromptLength:    cfg.AI.MaxPromptLength,
		ReservedCharacters: cfg.AI.ReservedCharacters,
		CompletionTimeout:  cfg.AI.Timeout,
		TranscriptEmpty:    cfg.Messages.TranscriptEmpty,
	}, log)

	hDeps := handlers.HandlerDeps{
		Logger: log,
		Config: cfg,
		Chat:   svc,
		Users:  resolver,
		Sender: handlers.NewSender(cfg.Telegram),
	}
	if err := telegram.RegisterHandlers(tg, log, handlers.RegisterAllCommands(hDeps)); err != nil {
		log.Error("Failed to register Telegram handlers", "error", err)
		return 1
	}
	if err := telegram.PublishCommands(ctx, tg, log); err != nil {
		log.Warn("Failed to publish bot commands", "error", err)
	}

	tDeps := tasks.TaskDeps{
		Logger:  log,
		Backend: backend,
		Config:  cfg,
	}
	sched, err := bot.NewScheduler(log, &cfg.Scheduler, tasks.RegisterAllTasks(tDeps))
	if err != nil {
		log.Error("Failed to create scheduler", "error", err)
		return 1
	}
	app := bot.NewBot(log, cfg, backend, tg, sched)

	log.Info("Starting bot...")
	runErr := app.Run(ctx)
	log.Info("Bot run loop finished. Initiating shutdown...")

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		log.Error("Bot stopped due to error", "error", runErr)
		time.Sleep(time.Second)
		return 1
	}

	log.Info("Bot stopped gracefully.")
	return 0
}
