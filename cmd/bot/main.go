// Package main is the entry point for the lottery group bot.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"lottery-group-bot/internal/bet"
	"lottery-group-bot/internal/bot"
	"lottery-group-bot/internal/codec"
	"lottery-group-bot/internal/config"
	"lottery-group-bot/internal/game/bonus"
	"lottery-group-bot/internal/game/guess"
	"lottery-group-bot/internal/game/streak"
	"lottery-group-bot/internal/ledger"
	"lottery-group-bot/internal/period"
	"lottery-group-bot/internal/pkg/db"
	"lottery-group-bot/internal/repository"
	"lottery-group-bot/internal/settle"
	"lottery-group-bot/internal/template"
	"lottery-group-bot/internal/transport"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	cfg, err := config.Load("config")
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	log.Info().Msg("Configuration loaded successfully")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	dbPool, err := db.NewPool(ctx, &cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer dbPool.Close()

	if err := repository.Migrate(ctx, dbPool.Pool); err != nil {
		log.Fatal().Err(err).Msg("Failed to run database migrations")
	}

	repo := repository.NewJournalRepository(dbPool.Pool)
	writer := repository.NewWriter(repo, cfg.Database.FlushInterval, log.Logger)

	led := ledger.New(writer, decimal.NewFromInt(cfg.Score.MaxScore), log.Logger)
	balances, err := repo.LoadBalances(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load stored balances")
	}
	for _, b := range balances {
		led.Restore(b)
	}
	log.Info().Int("players", len(balances)).Msg("Ledger restored")

	book := bet.NewBook(bet.FromConfig(cfg.Odds))
	streaks := streak.New(cfg.Streak)
	engine := settle.New(led, book, streaks, writer, !cfg.Period.ProhibitCancel, log.Logger)

	calendar, err := period.NewCalendar(cfg.Period)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid period configuration")
	}

	var guessGame *guess.Game
	if cfg.Guess.Enabled {
		guessGame = guess.New(cfg.Guess)
	}
	var bonusSvc *bonus.Service
	if cfg.Bonus.Enabled {
		bonusSvc = bonus.New(cfg.Bonus, led, log.Logger)
	}

	tr, err := buildTransport(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create transport")
	}

	controller := bot.New(bot.Deps{
		Config:    cfg,
		Transport: tr,
		Ledger:    led,
		Engine:    engine,
		Calendar:  calendar,
		Renderer:  template.New(cfg.Templates),
		Guess:     guessGame,
		Bonus:     bonusSvc,
		Logger:    log.Logger,
	})

	writerDone := make(chan struct{})
	go func() {
		writer.Run(ctx)
		close(writerDone)
	}()

	runDone := make(chan error, 1)
	go func() {
		log.Info().Str("adapter", cfg.Bot.Adapter).Msg("Bot is starting...")
		runDone <- controller.Run(ctx)
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		log.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
		<-runDone
	case err := <-runDone:
		if err != nil && err != context.Canceled {
			log.Error().Err(err).Msg("Controller stopped")
		}
		cancel()
	}

	<-writerDone
	log.Info().Msg("Bot stopped gracefully")
}

// buildTransport selects the chat adapter: Telegram for direct operation,
// capture for the desktop sniffer agent.
func buildTransport(cfg *config.Config) (transport.Transport, error) {
	switch cfg.Bot.Adapter {
	case "capture":
		dec, err := codec.NewDecoder(cfg.Crypto, cfg.Bot.SelfID, log.Logger)
		if err != nil {
			return nil, err
		}
		return transport.NewCapture(cfg.Bot.CaptureAddr, dec, log.Logger), nil
	default:
		return transport.NewTelegram(cfg.Bot, log.Logger)
	}
}
