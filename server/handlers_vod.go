package server

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/onnwee/vod-moments/backend/chatlog"
	"github.com/onnwee/vod-moments/backend/vod"
)

type vodResponse struct {
	ID            string     `json:"id"`
	Channel       string     `json:"channel"`
	Title         string     `json:"title"`
	Date          time.Time  `json:"date"`
	Duration      int        `json:"duration_seconds"`
	ChatImported  bool       `json:"chat_imported"`
	AnalyzedAt    *time.Time `json:"analyzed_at,omitempty"`
	AnalysisError string     `json:"analysis_error,omitempty"`
}

func toVodResponse(v *vod.VOD) vodResponse {
	out := vodResponse{
		ID:            v.ID,
		Channel:       v.Channel,
		Title:         v.Title,
		Date:          v.Date,
		Duration:      v.Duration,
		ChatImported:  v.ChatImported,
		AnalysisError: v.AnalysisError,
	}
	if !v.AnalyzedAt.IsZero() {
		out.AnalyzedAt = &v.AnalyzedAt
	}
	return out
}

// HandleVodsList returns the newest VODs for the configured channel.
func (h *Handlers) HandleVodsList(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	limit := parseIntQuery(r, "limit", 50)
	if limit < 1 || limit > 500 {
		limit = 50
	}
	vods, err := vod.List(r.Context(), h.db, h.cfg.TwitchChannel, limit)
	if err != nil {
		slog.Error("list vods", slog.Any("err", err))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	out := make([]vodResponse, 0, len(vods))
	for i := range vods {
		out = append(out, toVodResponse(&vods[i]))
	}
	writeJSON(w, http.StatusOK, out)
}

// HandleVodsDispatcher routes /vods/{id} and its sub-resources.
func (h *Handlers) HandleVodsDispatcher(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/vods/")
	id, sub, _ := strings.Cut(rest, "/")
	if id == "" {
		http.Error(w, "vod id required", http.StatusBadRequest)
		return
	}
	switch {
	case sub == "" && r.Method == http.MethodGet:
		h.handleVodGet(w, r, id)
	case sub == "analyze" && r.Method == http.MethodPost:
		h.handleVodAnalyze(w, r, id)
	case sub == "import-chat" && r.Method == http.MethodPost:
		h.handleVodImportChat(w, r, id)
	case sub == "transcript" && r.Method == http.MethodGet:
		h.handleVodTranscript(w, r, id)
	default:
		http.Error(w, "not found", http.StatusNotFound)
	}
}

func (h *Handlers) handleVodGet(w http.ResponseWriter, r *http.Request, id string) {
	v, err := vod.Get(r.Context(), h.db, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			http.Error(w, "vod not found", http.StatusNotFound)
			return
		}
		slog.Error("get vod", slog.String("vod_id", id), slog.Any("err", err))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	lines, err := chatlog.CountLines(r.Context(), h.db, id)
	if err != nil {
		slog.Warn("count chat lines", slog.String("vod_id", id), slog.Any("err", err))
	}
	out := struct {
		vodResponse
		ChatLines int `json:"chat_lines"`
	}{toVodResponse(v), lines}
	writeJSON(w, http.StatusOK, out)
}

// handleVodAnalyze queues an analysis run for one VOD. The run happens in
// the background; poll /vods/{id} for the outcome.
func (h *Handlers) handleVodAnalyze(w http.ResponseWriter, r *http.Request, id string) {
	v, err := vod.Get(r.Context(), h.db, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			http.Error(w, "vod not found", http.StatusNotFound)
			return
		}
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if !v.ChatImported {
		http.Error(w, "chat not imported yet", http.StatusConflict)
		return
	}
	// Re-running clears any previous error so the job won't skip it.
	if v.AnalysisError != "" {
		_, _ = h.db.ExecContext(r.Context(), `UPDATE vods SET analysis_error=NULL, analyzed_at=NULL, updated_at=NOW() WHERE twitch_vod_id=$1`, id)
	}
	go func() {
		if err := vod.AnalyzeOne(h.ctx, h.db, h.cfg, id); err != nil {
			slog.Warn("manual analysis failed", slog.String("vod_id", id), slog.Any("err", err))
		}
	}()
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "queued", "vod_id": id})
}

// handleVodImportChat queues a rechat import for one VOD.
func (h *Handlers) handleVodImportChat(w http.ResponseWriter, r *http.Request, id string) {
	if _, err := vod.Get(r.Context(), h.db, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			http.Error(w, "vod not found", http.StatusNotFound)
			return
		}
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	go func() {
		if err := vod.ImportChat(h.ctx, h.db, id); err != nil {
			slog.Warn("manual chat import failed", slog.String("vod_id", id), slog.Any("err", err))
		}
	}()
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "queued", "vod_id": id})
}

// handleVodTranscript streams the stored chat as transcript lines.
func (h *Handlers) handleVodTranscript(w http.ResponseWriter, r *http.Request, id string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	n := 0
	for line, err := range chatlog.Lines(r.Context(), h.db, id) {
		if err != nil {
			if n == 0 {
				http.Error(w, "internal error", http.StatusInternalServerError)
			}
			slog.Warn("stream transcript", slog.String("vod_id", id), slog.Any("err", err))
			return
		}
		if _, err := fmt.Fprintln(w, line); err != nil {
			return
		}
		n++
	}
}
