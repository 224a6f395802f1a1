// Package main contains the entrypoint for the Mia Telegram bot.
package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	tgbot "github.com/go-telegram/bot"

	"github.com/miabot/mia/internal/ai"
	"github.com/miabot/mia/internal/bot"
	"github.com/miabot/mia/internal/bot/handlers"
	"github.com/miabot/mia/internal/bot/tasks"
	"github.com/miabot/mia/internal/chat"
	"github.com/miabot/mia/internal/config"
	"github.com/miabot/mia/internal/database"
	"github.com/miabot/mia/internal/health"
	"github.com/miabot/mia/internal/logger"
	"github.com/miabot/mia/internal/modes"
	"github.com/miabot/mia/internal/telegram"

	_ "modernc.org/sqlite"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	exitCode := run(ctx)
	stop()
	os.Exit(exitCode)
}

// run initializes all application components, starts the bot, and returns an
// exit code (0 for success, 1 for failure).
func run(ctx context.Context) int {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		return 1
	}

	log := logger.NewLogger(cfg.Log.Level, cfg.Log.Format)
	log.Info("Logger initialized", "level", cfg.Log.Level, "format", cfg.Log.Format)

	db, err := database.NewDB(cfg.Database.Path)
	if err != nil {
		log.Error("Failed to open database", "path", cfg.Database.Path, "error", err)
		return 1
	}
	defer database.CloseDB(db)
	store := database.NewStore(db, log)

	var registry *modes.Registry
	if cfg.Modes.Path != "" {
		registry, err = modes.LoadFile(cfg.Modes.Path)
		if err != nil {
			log.Error("Failed to load chat modes", "path", cfg.Modes.Path, "error", err)
			return 1
		}
		log.Info("Loaded chat modes from file", "path", cfg.Modes.Path)
	} else {
		registry = modes.NewRegistry(modes.Defaults())
	}

	aiClient, err := ai.NewClient(ctx, cfg.AI, log)
	if err != nil {
		log.Error("Failed to initialize AI client", "error", err)
		return 1
	}

	gate := chat.NewGate(cfg.Telegram.AllowedUserIDs)
	controller := chat.NewController(log, store, registry, aiClient, gate, cfg.Usage.PricePer1KTokens)

	hDeps := handlers.HandlerDeps{
		Logger:     log,
		Config:     cfg,
		Controller: controller,
		Registry:   registry,
	}
	tDeps := tasks.TaskDeps{
		Logger: log,
		Store:  store,
	}

	botOpts := []tgbot.Option{
		tgbot.WithMiddlewares(logger.Middleware(log)),
		tgbot.WithDefaultHandler(handlers.NewMessageHandler(hDeps)),
	}
	tg, err := telegram.NewTelegramBot(cfg.Telegram.Token, log, botOpts...)
	if err != nil {
		log.Error("Failed to create Telegram bot", "error", err)
		return 1
	}

	if err := telegram.RegisterHandlers(tg, log, handlers.RegisterAllCommands(hDeps)); err != nil {
		log.Error("Failed to register Telegram handlers", "error", err)
		return 1
	}
	if err := telegram.RegisterCommandMenu(ctx, tg, handlers.CommandMenu()); err != nil {
		log.Warn("Failed to publish command menu", "error", err)
	}

	sched, err := bot.NewScheduler(log, &cfg.Scheduler, tasks.RegisterAllTasks(tDeps))
	if err != nil {
		log.Error("Failed to create scheduler", "error", err)
		return 1
	}
	healthSrv := health.NewServer(log, store, cfg.Health.Addr)

	app := bot.NewBot(log, cfg, db, store, tg, sched, healthSrv)

	log.Info("Starting bot")
	runErr := app.Run(ctx)

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		log.Error("Bot stopped due to error", "error", runErr)
		time.Sleep(time.Second)
		return 1
	}

	log.Info("Bot stopped gracefully")
	time.Sleep(time.Second)
	return 0
}
