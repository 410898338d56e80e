package server

import (
	"database/sql"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/onnwee/vod-moments/backend/presets"
)

type presetRequest struct {
	Name    string          `json:"name"`
	Channel string          `json:"channel"`
	Queries json.RawMessage `json:"queries"`
	Active  *bool           `json:"active"`
}

type presetResponse struct {
	Name    string `json:"name"`
	Channel string `json:"channel"`
	Queries string `json:"queries"`
	Active  bool   `json:"active"`
}

// HandlePresets lists custom presets (GET) or creates/updates one (POST).
// Queries use the stored encoding: a bare string is an emote code, a
// ["text","yn"] pair sets case-sensitive and exact-word flags.
func (h *Handlers) HandlePresets(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		channel := r.URL.Query().Get("channel")
		if channel == "" {
			channel = h.cfg.TwitchChannel
		}
		all, err := presets.List(r.Context(), h.db, channel)
		if err != nil {
			slog.Error("list presets", slog.Any("err", err))
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		out := make([]presetResponse, 0, len(all))
		for _, p := range all {
			raw, err := presets.EncodeQueries(p.Queries)
			if err != nil {
				continue
			}
			out = append(out, presetResponse{Name: p.Name, Channel: p.Channel, Queries: raw, Active: p.Active})
		}
		writeJSON(w, http.StatusOK, out)
	case http.MethodPost:
		var req presetRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}
		queries, err := presets.DecodeQueries(string(req.Queries))
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		active := true
		if req.Active != nil {
			active = *req.Active
		}
		p := presets.Preset{Name: req.Name, Channel: req.Channel, Queries: queries, Active: active}
		if err := presets.Save(r.Context(), h.db, p); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "saved", "name": req.Name})
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// HandlePresetsDispatcher routes /presets/{name} (DELETE) and
// /presets/{name}/toggle (POST). The channel query parameter scopes the
// preset; empty means global.
func (h *Handlers) HandlePresetsDispatcher(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/presets/")
	name, sub, _ := strings.Cut(rest, "/")
	if name == "" {
		http.Error(w, "preset name required", http.StatusBadRequest)
		return
	}
	channel := r.URL.Query().Get("channel")
	switch {
	case sub == "" && r.Method == http.MethodDelete:
		if err := presets.Delete(r.Context(), h.db, name, channel); err != nil {
			slog.Error("delete preset", slog.String("name", name), slog.Any("err", err))
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "deleted", "name": name})
	case sub == "toggle" && r.Method == http.MethodPost:
		active, err := presets.Toggle(r.Context(), h.db, name, channel)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				http.Error(w, "preset not found", http.StatusNotFound)
				return
			}
			slog.Error("toggle preset", slog.String("name", name), slog.Any("err", err))
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"name": name, "active": active})
	default:
		http.Error(w, "not found", http.StatusNotFound)
	}
}
