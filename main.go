// Command staticord archives Discord guild activity into Postgres and hosts the
// "who said it?" guessing game. It:
//   - Loads configuration and initializes structured logging.
//   - Connects to Postgres and applies the idempotent schema.
//   - Opens a gateway session, reconciles every guild as it becomes available and
//     records live messages, member changes and presences.
//   - Re-reconciles all guilds periodically and exposes /healthz, /readyz, /status and /metrics.
//
// Shutdown is graceful on SIGINT/SIGTERM.
package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/bwmarrin/discordgo"

	"github.com/onnwee/staticord/archive"
	"github.com/onnwee/staticord/config"
	"github.com/onnwee/staticord/db"
	"github.com/onnwee/staticord/discordapi"
	"github.com/onnwee/staticord/game"
	"github.com/onnwee/staticord/server"
	"github.com/onnwee/staticord/telemetry"
)

const version = "1.0.0"

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", slog.Any("err", err))
		os.Exit(1)
	}
	setupLogging(cfg.LogLevel, cfg.LogFormat)
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", slog.Any("err", err))
		os.Exit(1)
	}

	telemetry.Init()
	shutdownTracing, err := telemetry.InitTracing(cfg.OTLPEndpoint, "staticord", version)
	if err != nil {
		slog.Error("tracing initialization failed", slog.Any("err", err))
		os.Exit(1)
	}
	defer shutdownTracing()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	database, err := db.Connect(ctx, cfg.DSN(), db.PoolOptions{
		MaxOpenConns:    cfg.DBMaxOpenConns,
		MaxIdleConns:    cfg.DBMaxIdleConns,
		ConnMaxLifetime: cfg.DBConnMaxLifetime,
		Attempts:        cfg.DBConnectAttempts,
		Delay:           cfg.DBConnectDelay,
	})
	if err != nil {
		if errors.Is(err, db.ErrStoreUnavailable) {
			slog.Error("database unreachable, giving up", slog.Any("err", err))
		} else {
			slog.Error("failed to open db", slog.Any("err", err))
		}
		os.Exit(1)
	}
	defer func() {
		if err := database.Close(); err != nil {
			slog.Error("failed to close database", slog.Any("err", err))
		}
	}()

	slog.Info("applying database schema", slog.String("component", "db_migrate"))
	if err := db.Migrate(ctx, database); err != nil {
		slog.Error("failed to migrate db", slog.Any("err", err))
		os.Exit(1)
	}
	store := db.NewStore(database)

	session, err := discordgo.New("Bot " + cfg.DiscordToken)
	if err != nil {
		slog.Error("discord session setup failed", slog.Any("err", err))
		os.Exit(1)
	}
	session.Identify.Intents = discordapi.Intents

	archiver := archive.New(store, discordapi.NewSource(session), archive.WithConcurrency(cfg.ReconcileConcurrency))
	ingestor := archive.NewIngestor(archiver)
	games := game.NewManager(store, discordapi.NewMessenger(session), game.Settings{
		Questions:    cfg.GameQuestions,
		MinLength:    cfg.GameMinLength,
		RoundTimeout: cfg.GameRoundTimeout,
		Cooldown:     cfg.GameCooldown,
	}, cfg.GameMaxSessions)

	removeHandlers := discordapi.NewHandlers(ctx, session, ingestor, games, cfg.CommandPrefix, cfg.GameCommand).Register(session)
	defer removeHandlers()

	if err := session.Open(); err != nil {
		slog.Error("discord gateway open failed", slog.Any("err", err))
		os.Exit(1)
	}

	go archive.StartResyncJob(ctx, archiver, cfg.ResyncInterval)

	gateway := func() error {
		if !session.DataReady {
			return errors.New("gateway session not ready")
		}
		return nil
	}
	go func() {
		if err := server.Start(ctx, server.NewHandlers(store, gateway, version), cfg.HTTPAddr); err != nil {
			slog.Error("http server exited with error", slog.Any("err", err))
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")
	if err := session.Close(); err != nil {
		slog.Warn("discord session close failed", slog.Any("err", err))
	}
	ingestor.Wait()
	games.Wait()
}

// setupLogging configures the default slog logger. Defaults: level=info, format=text.
func setupLogging(level, format string) {
	lvl := slog.LevelInfo
	unknown := false
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	case "info", "":
	default:
		unknown = true
	}
	var handler slog.Handler
	if strings.ToLower(format) == "json" {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
		format = "json"
	} else {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
		format = "text"
	}
	slog.SetDefault(slog.New(handler))
	if unknown {
		slog.Warn("unknown LOG_LEVEL, using info", slog.String("value", level))
	}
	slog.Info("logger initialized", slog.String("level", lvl.String()), slog.String("format", format))
}
