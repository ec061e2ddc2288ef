// Package main provides the bot entry point.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/joho/godotenv"
	zlog "github.com/rs/zerolog/log"

	"github.com/arca-org/arca-bot/internal/app/backup"
	"github.com/arca-org/arca-bot/internal/app/economy"
	"github.com/arca-org/arca-bot/internal/app/raffle"
	"github.com/arca-org/arca-bot/internal/app/voice"
	"github.com/arca-org/arca-bot/internal/infra/config"
	"github.com/arca-org/arca-bot/internal/infra/discord"
	"github.com/arca-org/arca-bot/internal/infra/health"
	"github.com/arca-org/arca-bot/internal/infra/jsonstore"
	"github.com/arca-org/arca-bot/internal/infra/logger"
)

const cleanupInterval = 1 * time.Hour

var (
	app        = kingpin.New("arca-bot", "Arca community Discord bot")
	configPath = app.Flag("config", "Path to config file").Default("config/bot.yaml").String()
	verbose    = app.Flag("verbose", "Enable verbose (DEBUG) logging").Short('v').Bool()
	logfile    = app.Flag("logfile", "Path to log file (default: stdout)").String()
)

func main() {
	// Load .env file if it exists (errors are ignored)
	_ = godotenv.Load()

	kingpin.MustParse(app.Parse(os.Args[1:]))

	loggerConfig := logger.Config{
		Output: "stdout",
		Level:  "info",
	}
	if *verbose {
		loggerConfig.Level = "debug"
	}
	if *logfile != "" {
		loggerConfig.Output = *logfile
		loggerConfig.File = *logfile
	}
	if err := logger.Init(loggerConfig); err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}

	zlog.Info().Msgf("Loading config from %s", *configPath)
	cfg, err := config.Load(*configPath)
	if err != nil {
		zlog.Fatal().Msgf("Failed to load config: %v", err)
	}

	if err := run(cfg); err != nil {
		zlog.Error().Msgf("Bot error: %v", err)
		os.Exit(1)
	}
}

// run executes the main bot logic. Using a separate function ensures defer
// statements are executed even when returning with an error.
func run(cfg *config.Config) error {
	js, err := jsonstore.New(cfg.Data.Dir)
	if err != nil {
		return fmt.Errorf("failed to open data directory: %w", err)
	}

	econ, err := economy.NewStore(js, cfg)
	if err != nil {
		return fmt.Errorf("failed to open economy store: %w", err)
	}
	raffles, err := raffle.NewStore(js, cfg)
	if err != nil {
		return fmt.Errorf("failed to open raffle store: %w", err)
	}
	store, err := voice.NewStore(js)
	if err != nil {
		return fmt.Errorf("failed to open voice store: %w", err)
	}
	backups, err := backup.NewManager(js)
	if err != nil {
		return fmt.Errorf("failed to open backup manager: %w", err)
	}

	bot, err := discord.New(cfg, econ, raffles, store, backups)
	if err != nil {
		return fmt.Errorf("failed to create bot: %w", err)
	}

	// The bot doubles as the engine's channel resolver and notifier, so the
	// engine is wired in after construction.
	engine := voice.NewEngine(cfg, store, econ, bot, bot)
	bot.SetEngine(engine)

	healthSrv := health.NewServer(cfg.Health.Addr, func() int {
		return len(store.AllActiveSessions())
	})
	healthErrCh := healthSrv.Start()

	if err := bot.Start(); err != nil {
		return fmt.Errorf("failed to connect to Discord: %w", err)
	}
	zlog.Info().Msg("Bot connected")

	// Periodic housekeeping: stale sessions, finished raffles, old backups.
	cleanupDone := make(chan struct{})
	go func() {
		ticker := time.NewTicker(cleanupInterval)
		defer ticker.Stop()
		for {
			select {
			case <-cleanupDone:
				return
			case <-ticker.C:
				if n := store.Cleanup(); n > 0 {
					zlog.Info().Msgf("Cleaned up stale voice data: entries=%d", n)
				}
				if n, err := raffles.CleanOld(); err != nil {
					zlog.Error().Msgf("Failed to clean up raffles: %v", err)
				} else if n > 0 {
					zlog.Info().Msgf("Cleaned up old raffles: removed=%d", n)
				}
				if n, err := backups.Cleanup(cfg.Data.BackupsKeep); err != nil {
					zlog.Error().Msgf("Failed to clean up backups: %v", err)
				} else if n > 0 {
					zlog.Info().Msgf("Cleaned up old backups: removed=%d", n)
				}
			}
		}
	}()

	// Wait for a shutdown signal, the shutdown command, or a health server error.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigCh:
		zlog.Info().Msg("Received shutdown signal...")
	case <-bot.ShutdownRequested():
		zlog.Info().Msg("Shutdown requested via command...")
	case err := <-healthErrCh:
		zlog.Error().Msgf("Health server error: %v", err)
	}
	close(cleanupDone)

	// Graceful shutdown: snapshot everything, settle open sessions, disconnect.
	if _, err := backups.Create(backup.TypeFull, "automatic backup on shutdown"); err != nil {
		zlog.Error().Msgf("Failed to create shutdown backup: %v", err)
	}

	engine.Shutdown()

	if err := econ.Save(); err != nil {
		zlog.Error().Msgf("Failed to save economy data: %v", err)
	}
	if err := bot.Stop(); err != nil {
		zlog.Error().Msgf("Failed to close Discord connection: %v", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := healthSrv.Shutdown(shutdownCtx); err != nil {
		zlog.Error().Msgf("Failed to shutdown health server: %v", err)
	}

	zlog.Info().Msg("Bot stopped")
	return nil
}
