// Package server exposes the HTTP API: health and status probes, Prometheus
// metrics, VOD listing and pipeline triggers, custom preset management, and
// a small authenticated admin surface. Every request gets a correlation id
// and a trace span.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/onnwee/vod-moments/backend/config"
	"github.com/onnwee/vod-moments/backend/telemetry"
)

// Paths that kick background work and therefore get rate limited.
var sensitiveVodPath = sync.OnceValue(func() *regexp.Regexp {
	return regexp.MustCompile(`^/vods/[^/]+/(analyze|import-chat)$`)
})

// NewMux returns the HTTP handler with all routes. ctx bounds background
// work started by handlers and the rate limiter cleanup goroutine.
func NewMux(ctx context.Context, db *sql.DB, cfg *config.Config) http.Handler {
	authCfg := loadAuthConfig()
	corsCfg := loadCORSConfig()
	limiter := newIPRateLimiter(ctx, loadRateLimiterConfig())

	h := NewHandlers(ctx, db, cfg)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	mux.HandleFunc("/healthz", h.HandleHealthz)
	mux.HandleFunc("/readyz", h.HandleReadyz)
	mux.HandleFunc("/status", h.HandleStatus)

	mux.HandleFunc("/vods", h.HandleVodsList)
	mux.HandleFunc("/vods/", h.HandleVodsDispatcher)

	mux.HandleFunc("/presets", h.HandlePresets)
	mux.HandleFunc("/presets/", h.HandlePresetsDispatcher)

	mux.HandleFunc("/admin/vod/catalog", h.HandleAdminVodCatalog)
	mux.HandleFunc("/admin/emotes/refresh", h.HandleAdminEmotesRefresh)
	mux.HandleFunc("/admin/monitor", h.HandleAdminMonitor)

	// Admin routes need auth plus rate limiting; pipeline triggers need
	// rate limiting only; everything else passes straight through.
	routed := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasPrefix(r.URL.Path, "/admin/"):
			adminAuth(rateLimitMiddleware(mux, limiter), authCfg).ServeHTTP(w, r)
		case sensitiveVodPath().MatchString(r.URL.Path):
			rateLimitMiddleware(mux, limiter).ServeHTTP(w, r)
		default:
			mux.ServeHTTP(w, r)
		}
	})

	return withCORSConfig(traced(routed), corsCfg)
}

// traced assigns each request a correlation id (honoring an incoming
// X-Correlation-ID) and wraps it in a span carrying method, route, URL and
// final status.
func traced(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		corr := r.Header.Get("X-Correlation-ID")
		if corr == "" {
			corr = uuid.New().String()
		}
		ctx := telemetry.WithCorrelation(r.Context(), corr)
		w.Header().Set("X-Correlation-ID", corr)

		ctx, span := telemetry.StartSpan(ctx, "http-server", r.Method+" "+r.URL.Path,
			telemetry.HTTPMethodAttr(r.Method),
			telemetry.HTTPRouteAttr(r.URL.Path),
			telemetry.HTTPURLAttr(r.URL.String()),
		)
		defer span.End()

		telemetry.LoggerWithCorr(ctx).Debug("request start",
			slog.String("method", r.Method), slog.String("path", r.URL.Path), slog.String("component", "http"))

		rec := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rec, r.WithContext(ctx))

		telemetry.SetSpanHTTPStatus(span, rec.statusCode)
		if rec.statusCode >= 400 {
			span.SetStatus(telemetry.ErrorStatus(fmt.Sprintf("HTTP %d", rec.statusCode)))
		}
	})
}

// statusRecorder captures the final status code for the span.
type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (r *statusRecorder) WriteHeader(statusCode int) {
	r.statusCode = statusCode
	r.ResponseWriter.WriteHeader(statusCode)
}

func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Start serves the API on addr until ctx is cancelled, then shuts down
// gracefully with a 5s drain.
func Start(ctx context.Context, db *sql.DB, cfg *config.Config, addr string) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      NewMux(ctx, db, cfg),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("http server shutdown", slog.Any("err", err))
		}
	}()

	slog.Info("http server listening", slog.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}
