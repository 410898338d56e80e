package server

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/onnwee/vod-moments/backend/db"
)

// HandleHealthz responds to liveness probe requests by checking database connectivity.
func (h *Handlers) HandleHealthz(w http.ResponseWriter, r *http.Request) {
	if err := h.db.PingContext(r.Context()); err != nil {
		http.Error(w, "unhealthy", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// HandleReadyz responds to readiness probe requests with detailed system checks.
func (h *Handlers) HandleReadyz(w http.ResponseWriter, r *http.Request) {
	checks := []struct {
		name string
		fn   func() error
	}{
		{"database", func() error { return h.db.PingContext(r.Context()) }},
		{"schema", func() error {
			var n int
			return h.db.QueryRowContext(r.Context(), "SELECT COUNT(1) FROM kv").Scan(&n)
		}},
		{"credentials", func() error {
			if err := h.cfg.ValidateHelixReady(); err != nil {
				return fmt.Errorf("twitch api credentials: %w", err)
			}
			return nil
		}},
	}

	for _, check := range checks {
		if err := check.fn(); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status":       "not_ready",
				"failed_check": check.name,
				"error":        err.Error(),
			})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// HandleStatus reports pipeline state: backlog, job heartbeats, and timing
// averages maintained in kv.
func (h *Handlers) HandleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	out := map[string]any{"channel": h.cfg.TwitchChannel}

	var total, imported, analyzed, failed int
	_ = h.db.QueryRowContext(ctx, `SELECT COUNT(1),
		COUNT(1) FILTER (WHERE chat_imported),
		COUNT(1) FILTER (WHERE analyzed_at IS NOT NULL),
		COUNT(1) FILTER (WHERE analysis_error IS NOT NULL)
		FROM vods WHERE channel=$1`, h.cfg.TwitchChannel).Scan(&total, &imported, &analyzed, &failed)
	out["vods"] = map[string]int{
		"total":          total,
		"chat_imported":  imported,
		"analyzed":       analyzed,
		"analysis_error": failed,
		"backlog":        imported - analyzed - failed,
	}

	kv := map[string]string{}
	rows, err := h.db.QueryContext(ctx, `SELECT key, value FROM kv WHERE key IN
		('job_analysis_last','catalog_after','avg_analysis_ms')`)
	if err == nil {
		defer rows.Close()
		for rows.Next() {
			var k, v string
			if rows.Scan(&k, &v) == nil {
				kv[k] = v
			}
		}
	}
	out["jobs"] = kv

	if version, dirty, err := db.GetMigrationVersion(h.db); err == nil {
		out["schema"] = map[string]any{"version": version, "dirty": dirty}
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(out)
}
