package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/onnwee/vod-moments/backend/emotes"
	"github.com/onnwee/vod-moments/backend/twitchapi"
	"github.com/onnwee/vod-moments/backend/vod"
)

// HandleAdminVodCatalog kicks a historical catalog backfill in the
// background. Query params: max (VOD count cap), max_age_days.
func (h *Handlers) HandleAdminVodCatalog(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	maxCount := parseIntQuery(r, "max", 0)
	maxAge := time.Duration(parseIntQuery(r, "max_age_days", 0)) * 24 * time.Hour
	go func() {
		if err := vod.BackfillCatalog(h.ctx, h.db, maxCount, maxAge); err != nil {
			slog.Warn("admin catalog backfill failed", slog.Any("err", err))
		}
	}()
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "queued"})
}

// HandleAdminEmotesRefresh re-fetches the global and channel emote sets.
func (h *Handlers) HandleAdminEmotesRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if err := h.cfg.ValidateHelixReady(); err != nil {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}
	channel := h.cfg.TwitchChannel
	hc := &twitchapi.HelixClient{
		AppTokenSource: twitchapi.NewTokenSource(h.cfg.TwitchClientID, h.cfg.TwitchClientSecret, nil),
		ClientID:       h.cfg.TwitchClientID,
	}
	uid, err := hc.GetUserID(r.Context(), channel)
	if err != nil {
		slog.Error("resolve channel id", slog.String("channel", channel), slog.Any("err", err))
		http.Error(w, "failed to resolve channel", http.StatusBadGateway)
		return
	}
	if err := emotes.Refresh(r.Context(), h.db, &emotes.Fetcher{}, channel, uid); err != nil {
		slog.Error("emote refresh", slog.Any("err", err))
		http.Error(w, "emote refresh failed", http.StatusBadGateway)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "refreshed", "channel": channel})
}

// HandleAdminMonitor dumps job heartbeats and timing averages from kv.
func (h *Handlers) HandleAdminMonitor(w http.ResponseWriter, r *http.Request) {
	rows, err := h.db.QueryContext(r.Context(),
		`SELECT key, value, updated_at FROM kv WHERE key LIKE 'job_%' OR key LIKE 'avg_%' OR key='catalog_after' ORDER BY key`)
	if err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	defer rows.Close()
	type entry struct {
		Key       string    `json:"key"`
		Value     string    `json:"value"`
		UpdatedAt time.Time `json:"updated_at"`
	}
	var out []entry
	for rows.Next() {
		var e entry
		if err := rows.Scan(&e.Key, &e.Value, &e.UpdatedAt); err != nil {
			continue
		}
		out = append(out, e)
	}
	writeJSON(w, http.StatusOK, out)
}
