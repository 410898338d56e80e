// Command backend is the main entrypoint for the vod-moments API and
// background workers. It:
//   - Loads configuration and initializes structured logging.
//   - Connects to Postgres and runs idempotent migrations.
//   - Starts background jobs: live chat recorder (manual or auto), rechat
//     import, VOD catalog backfill, chat retention, and the analysis job.
//   - Exposes the HTTP server with health, status, VOD, preset, and
//     metrics endpoints.
//
// With -analyze <vod_id> it runs a single analysis and exits.
//
// Shutdown is graceful on SIGINT/SIGTERM.
package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	_ "net/http/pprof" //nolint:gosec // G108: pprof endpoints enabled only when ENABLE_PPROF=1
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/onnwee/vod-moments/backend/chat"
	"github.com/onnwee/vod-moments/backend/config"
	"github.com/onnwee/vod-moments/backend/db"
	"github.com/onnwee/vod-moments/backend/emotes"
	"github.com/onnwee/vod-moments/backend/server"
	"github.com/onnwee/vod-moments/backend/telemetry"
	"github.com/onnwee/vod-moments/backend/twitchapi"
	"github.com/onnwee/vod-moments/backend/vod"
)

func main() {
	analyzeID := flag.String("analyze", "", "analyze one VOD by id and exit")
	flag.Parse()

	// Load .env file if present (local dev convenience only; production relies on real env)
	_ = godotenv.Load("backend/.env")

	setupLogging()

	// Config
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", slog.Any("err", err))
		os.Exit(1)
	}

	// Metrics / telemetry init
	telemetry.Init()

	// Initialize OpenTelemetry tracing (optional; requires OTEL_EXPORTER_OTLP_ENDPOINT)
	shutdown, err := telemetry.InitTracing("vod-moments", "1.0.0")
	if err != nil {
		slog.Error("tracing initialization failed", slog.Any("err", err))
		os.Exit(1)
	}
	defer shutdown()

	// Best-effort: verify the Twitch app access token (client-credentials) if
	// client id/secret provided. Used for Helix API calls (catalog discovery,
	// live polling), NOT for IRC chat.
	if cfg.TwitchClientID != "" && cfg.TwitchClientSecret != "" {
		ctx2, cancel := context.WithTimeout(context.Background(), 8*time.Second)
		if tok, err := twitchapi.NewTokenSource(cfg.TwitchClientID, cfg.TwitchClientSecret, nil).Get(ctx2); err != nil {
			slog.Warn("twitch app token fetch failed", slog.Any("err", err))
		} else if len(tok) > 6 {
			masked := "***" + tok[len(tok)-6:]
			slog.Info("twitch app token acquired", slog.String("tail", masked))
		}
		cancel()
	}

	// DB
	database, err := db.Connect()
	if err != nil {
		slog.Error("failed to open db", slog.Any("err", err))
		os.Exit(1)
	}
	defer func() {
		if err := database.Close(); err != nil {
			slog.Error("failed to close database", slog.Any("err", err))
		}
	}()

	// Run database migrations: versioned migrations (golang-migrate) from
	// db/migrations/, falling back to the embedded SQL in db.Migrate for
	// deployments without a schema_migrations table.
	slog.Info("running database migrations", slog.String("component", "db_migrate"))
	if err := db.RunMigrations(database); err != nil {
		slog.Warn("versioned migrations failed, attempting fallback to embedded SQL",
			slog.Any("err", err),
			slog.String("component", "db_migrate"))
		if err := db.Migrate(context.Background(), database); err != nil {
			slog.Error("failed to migrate db (both versioned and embedded SQL failed)", slog.Any("err", err))
			os.Exit(1)
		}
		slog.Info("embedded SQL migration completed", slog.String("component", "db_migrate"))
	} else {
		slog.Info("versioned migrations completed", slog.String("component", "db_migrate"))
	}

	// Root context with graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// One-shot mode: analyze a single VOD and exit.
	if *analyzeID != "" {
		if err := vod.AnalyzeOne(ctx, database, cfg, *analyzeID); err != nil {
			os.Exit(1)
		}
		return
	}

	channel := cfg.TwitchChannel
	slog.Info("starting workers", slog.String("channel", channel))

	// Chat recorder: auto mode polls live status; otherwise the recorder
	// stays off and chat arrives via the rechat importer.
	if os.Getenv("CHAT_AUTO_START") == "1" {
		go chat.StartAutoChatRecorder(ctx, database, channel)
	} else if err := cfg.ValidateChatReady(); err != nil {
		slog.Info("live chat recorder disabled (missing twitch creds or auto not enabled)")
	}
	go vod.StartVODCatalogBackfillJob(ctx, database)
	go vod.StartChatImportJob(ctx, database)
	if channel != "" && cfg.ValidateHelixReady() == nil {
		helix := &twitchapi.HelixClient{
			AppTokenSource: twitchapi.NewTokenSource(cfg.TwitchClientID, cfg.TwitchClientSecret, nil),
			ClientID:       cfg.TwitchClientID,
		}
		go emotes.StartRefreshJob(ctx, database, channel, helix.GetUserID)
	}
	go vod.StartRetentionJob(ctx, database, channel)
	go vod.StartAnalysisJob(ctx, database, cfg, channel)

	if os.Getenv("ENABLE_PPROF") == "1" {
		go servePprof()
	}

	// HTTP server (health/status/metrics/API)
	addr := os.Getenv("HTTP_ADDR")
	if addr == "" {
		addr = ":8080"
	}
	go func() {
		if err := server.Start(ctx, database, cfg, addr); err != nil {
			slog.Error("http server exited with error", slog.Any("err", err))
		}
	}()

	// Block until shutdown signal
	<-ctx.Done()
	slog.Info("shutting down")
}

// setupLogging builds the default slog logger from LOG_LEVEL (debug, info,
// warn, error) and LOG_FORMAT (text or json).
func setupLogging() {
	level := slog.LevelInfo
	badLevel := false
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	case "info", "":
	default:
		badLevel = true
	}
	opts := &slog.HandlerOptions{Level: level}
	format := strings.ToLower(os.Getenv("LOG_FORMAT"))
	if format != "json" {
		format = "text"
	}
	var handler slog.Handler = slog.NewTextHandler(os.Stdout, opts)
	if format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
	if badLevel {
		slog.Warn("unknown LOG_LEVEL, using info", slog.String("value", os.Getenv("LOG_LEVEL")))
	}
	slog.Info("logger initialized", slog.String("level", level.String()), slog.String("format", format))
}

// servePprof exposes the default mux's /debug/pprof endpoints on a side
// listener (PPROF_ADDR, default localhost:6060).
func servePprof() {
	addr := os.Getenv("PPROF_ADDR")
	if addr == "" {
		addr = "localhost:6060"
	}
	slog.Info("pprof profiling enabled", slog.String("addr", addr))
	srv := &http.Server{
		Addr:              addr,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	if err := srv.ListenAndServe(); err != nil {
		slog.Error("pprof server error", slog.Any("err", err))
	}
}
