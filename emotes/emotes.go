// Package emotes maintains the known-emote database: global and per-channel
// emote codes fetched from the emote aggregator API and persisted in
// Postgres. The analyzer consumes them as a flat set of codes.
package emotes

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"
)

// DefaultBaseURL is the public emote aggregator covering Twitch, 7TV, BTTV
// and FFZ in one response.
const DefaultBaseURL = "https://emotes.adamcy.pl/v1"

// providers indexes the aggregator's numeric provider field.
var providers = [...]string{"twitch", "stv", "bttv", "ffz"}

// Fetcher pulls emote codes from the aggregator API.
type Fetcher struct {
	BaseURL    string
	HTTPClient *http.Client
}

func (f *Fetcher) base() string {
	if f.BaseURL != "" {
		return f.BaseURL
	}
	return DefaultBaseURL
}

func (f *Fetcher) http() *http.Client {
	if f.HTTPClient != nil {
		return f.HTTPClient
	}
	return &http.Client{Timeout: 10 * time.Second}
}

// Emote is one aggregator entry.
type Emote struct {
	Code     string
	Provider string
}

func (f *Fetcher) fetch(ctx context.Context, path string) ([]Emote, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.base()+path, nil)
	if err != nil {
		return nil, err
	}
	resp, err := f.http().Do(req)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			slog.Warn("failed to close response body", slog.Any("err", err))
		}
	}()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("emote api %s: %s", path, resp.Status)
	}
	var raw []struct {
		Provider int    `json:"provider"`
		Code     string `json:"code"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode emote response: %w", err)
	}
	out := make([]Emote, 0, len(raw))
	for _, e := range raw {
		if e.Code == "" {
			continue
		}
		provider := "unknown"
		if e.Provider >= 0 && e.Provider < len(providers) {
			provider = providers[e.Provider]
		}
		out = append(out, Emote{Code: e.Code, Provider: provider})
	}
	return out, nil
}

// FetchGlobal pulls the global emote set across all providers.
func (f *Fetcher) FetchGlobal(ctx context.Context) ([]Emote, error) {
	return f.fetch(ctx, "/global/emotes/all")
}

// FetchChannel pulls a channel's emote set by Twitch user id.
func (f *Fetcher) FetchChannel(ctx context.Context, twitchID string) ([]Emote, error) {
	if twitchID == "" {
		return nil, fmt.Errorf("twitch id empty")
	}
	return f.fetch(ctx, "/channel/"+twitchID+"/emotes/all")
}

// Refresh fetches global and channel emotes and replaces the stored sets.
// channel is the login used as the storage key; twitchID the numeric id the
// aggregator wants. Global emotes are stored under the empty channel key.
func Refresh(ctx context.Context, db *sql.DB, f *Fetcher, channel, twitchID string) error {
	global, err := f.FetchGlobal(ctx)
	if err != nil {
		return fmt.Errorf("fetch global emotes: %w", err)
	}
	local, err := f.FetchChannel(ctx, twitchID)
	if err != nil {
		return fmt.Errorf("fetch channel emotes: %w", err)
	}
	if err := replace(ctx, db, "", global); err != nil {
		return err
	}
	if err := replace(ctx, db, channel, local); err != nil {
		return err
	}
	slog.Info("emote database refreshed",
		slog.String("channel", channel),
		slog.Int("global", len(global)),
		slog.Int("local", len(local)))
	return nil
}

func replace(ctx context.Context, db *sql.DB, channel string, emotes []Emote) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit
	if _, err := tx.ExecContext(ctx, `DELETE FROM emotes WHERE channel=$1`, channel); err != nil {
		return fmt.Errorf("clear emotes for %q: %w", channel, err)
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO emotes (code, channel, source, updated_at) VALUES ($1,$2,$3,NOW()) ON CONFLICT (code, channel) DO NOTHING`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, e := range emotes {
		if _, err := stmt.ExecContext(ctx, e.Code, channel, e.Provider); err != nil {
			return fmt.Errorf("insert emote %q: %w", e.Code, err)
		}
	}
	return tx.Commit()
}

// StartRefreshJob refreshes the emote database on boot and then at an
// interval (EMOTE_REFRESH_INTERVAL, default 12h). resolveID maps the
// channel login to the numeric Twitch id the aggregator expects.
func StartRefreshJob(ctx context.Context, db *sql.DB, channel string, resolveID func(context.Context, string) (string, error)) {
	interval := 12 * time.Hour
	if v := os.Getenv("EMOTE_REFRESH_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			interval = d
		}
	}
	f := &Fetcher{}
	refresh := func() {
		twitchID, err := resolveID(ctx, channel)
		if err != nil {
			slog.Warn("emote refresh: resolve channel id", slog.String("channel", channel), slog.Any("err", err))
			return
		}
		if err := Refresh(ctx, db, f, channel, twitchID); err != nil {
			slog.Warn("emote refresh failed", slog.Any("err", err))
		}
	}
	slog.Info("emote refresh job starting", slog.Duration("interval", interval), slog.String("channel", channel))
	refresh()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			slog.Info("emote refresh job stopped")
			return
		case <-ticker.C:
			refresh()
		}
	}
}

// Load returns the known-emote set for a channel: global codes plus the
// channel's own. An empty set is not an error; emote-dependent presets
// refuse to run on it.
func Load(ctx context.Context, db *sql.DB, channel string) (map[string]struct{}, error) {
	rows, err := db.QueryContext(ctx, `SELECT code FROM emotes WHERE channel='' OR channel=$1`, channel)
	if err != nil {
		return nil, fmt.Errorf("load emotes: %w", err)
	}
	defer rows.Close()
	out := make(map[string]struct{})
	for rows.Next() {
		var code string
		if err := rows.Scan(&code); err != nil {
			return nil, err
		}
		out[code] = struct{}{}
	}
	return out, rows.Err()
}
