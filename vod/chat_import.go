package vod

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/onnwee/vod-moments/backend/db"
	"github.com/onnwee/vod-moments/backend/telemetry"
)

// rechatBaseURL is a var so tests can point the importer at a fake server.
var rechatBaseURL = "https://rechat.twitch.tv/rechat-messages"

// ImportChat fetches VOD chat replay messages from Twitch's rechat API and
// stores them into chat_messages. Best-effort and tolerant to missing fields:
// it walks the VOD duration in 30s windows and stops after several
// consecutive empty ones when the duration is unknown. On success the VOD is
// marked chat_imported, which makes it eligible for analysis.
func ImportChat(ctx context.Context, db *sql.DB, vodID string) error {
	var vodDate time.Time
	var durationSeconds int
	_ = db.QueryRowContext(ctx, `SELECT COALESCE(date, to_timestamp(0)), COALESCE(duration_seconds, 0) FROM vods WHERE twitch_vod_id=$1`, vodID).Scan(&vodDate, &durationSeconds)
	if vodDate.IsZero() {
		vodDate = time.Now().UTC()
	}

	stmt, err := db.PrepareContext(ctx, `INSERT INTO chat_messages (vod_id, username, message, abs_timestamp, rel_timestamp, badges, emotes, color) VALUES ($1,$2,$3,$4,$5,'','','')`)
	if err != nil {
		return fmt.Errorf("prepare insert chat: %w", err)
	}
	defer func() {
		if err := stmt.Close(); err != nil {
			slog.Warn("failed to close prepared statement", slog.Any("err", err))
		}
	}()

	step := 30 // seconds per page
	maxOffset := durationSeconds
	if maxOffset <= 0 {
		maxOffset = 24 * 60 * 60 // cap at 24h when unknown
	}
	emptyStreak := 0
	seenIDs := make(map[string]struct{})
	inserted := 0

	logger := slog.Default().With(slog.String("component", "vod_chat_import"), slog.String("vod_id", vodID))
	logger.Info("starting chat import")

	for offset := 0; offset <= maxOffset; offset += step {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		msgs, nextOffset, err := fetchRechatChunk(ctx, vodID, offset)
		if err != nil {
			logger.Warn("fetch rechat chunk failed", slog.Int("offset", offset), slog.Any("err", err))
			emptyStreak++
			if emptyStreak >= 3 {
				break
			}
			continue
		}
		if len(msgs) == 0 {
			emptyStreak++
			if emptyStreak >= 4 { // four empty windows in a row, likely done
				break
			}
			continue
		}
		emptyStreak = 0

		for _, m := range msgs {
			if m.ID != "" {
				if _, ok := seenIDs[m.ID]; ok {
					continue
				}
				seenIDs[m.ID] = struct{}{}
			}
			abs := m.Abs
			if abs.IsZero() {
				abs = vodDate.Add(time.Duration(m.Rel * float64(time.Second)))
			}
			if _, err := stmt.ExecContext(ctx, vodID, m.User, m.Text, abs, m.Rel); err != nil {
				logger.Debug("insert chat row failed", slog.Any("err", err))
				continue
			}
			inserted++
		}

		if nextOffset > offset {
			offset = nextOffset - step // loop will +step
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(300 * time.Millisecond):
		}
	}

	telemetry.AddCounter(telemetry.ChatRecorded, inserted)
	if inserted > 0 {
		if err := MarkChatImported(ctx, db, vodID); err != nil {
			logger.Warn("mark chat imported", slog.Any("err", err))
		}
	}
	logger.Info("chat import finished", slog.Int("messages", inserted))
	return nil
}

// StartChatImportJob periodically imports chat for VODs that don't have it
// yet, newest first. Attempts per VOD are capped via kv so dead replays
// don't get hammered forever.
func StartChatImportJob(ctx context.Context, dbc *sql.DB) {
	interval := 2 * time.Minute
	if v := os.Getenv("CHAT_IMPORT_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			interval = d
		}
	}
	maxAttempts := 5
	if s := os.Getenv("CHAT_IMPORT_MAX_ATTEMPTS"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			maxAttempts = n
		}
	}
	slog.Info("chat import job starting", slog.Duration("interval", interval))
	if err := importNext(ctx, dbc, maxAttempts); err != nil {
		slog.Warn("chat import cycle", slog.Any("err", err))
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			slog.Info("chat import job stopped")
			return
		case <-ticker.C:
			if err := importNext(ctx, dbc, maxAttempts); err != nil {
				slog.Warn("chat import cycle", slog.Any("err", err))
			}
		}
	}
}

// importNext imports chat for the newest VOD still under the attempt cap.
func importNext(ctx context.Context, dbc *sql.DB, maxAttempts int) error {
	rows, err := dbc.QueryContext(ctx, `SELECT twitch_vod_id FROM vods
		WHERE COALESCE(chat_imported,FALSE)=FALSE AND twitch_vod_id NOT LIKE 'live-%'
		ORDER BY date DESC LIMIT 10`)
	if err != nil {
		return fmt.Errorf("list unimported vods: %w", err)
	}
	var candidates []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err == nil {
			candidates = append(candidates, id)
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}
	for _, id := range candidates {
		key := "chat_import_attempts_" + id
		attempts := 0
		if v, err := db.GetKV(ctx, dbc, key); err == nil && v != "" {
			attempts, _ = strconv.Atoi(v)
		}
		if attempts >= maxAttempts {
			continue
		}
		_ = db.SetKV(ctx, dbc, key, strconv.Itoa(attempts+1))
		return ImportChat(ctx, dbc, id)
	}
	return nil
}

// rechatMessage is a minimal representation of a rechat message.
type rechatMessage struct {
	ID   string
	User string
	Text string
	Abs  time.Time
	Rel  float64
}

// fetchRechatChunk queries the rechat API for a given offset window. It tries
// both forms of video_id (raw "123" and "v123") for compatibility.
func fetchRechatChunk(ctx context.Context, vodID string, offset int) ([]rechatMessage, int, error) {
	u1 := fmt.Sprintf("%s?video_id=%s&offset=%d", rechatBaseURL, url.QueryEscape(vodID), offset)
	msgs, next, err := doFetchRechat(ctx, u1, offset)
	if err == nil && msgs != nil {
		return msgs, next, nil
	}
	vPref := vodID
	if !strings.HasPrefix(strings.ToLower(vodID), "v") {
		vPref = "v" + vodID
	}
	u2 := fmt.Sprintf("%s?video_id=%s&offset=%d", rechatBaseURL, url.QueryEscape(vPref), offset)
	return doFetchRechat(ctx, u2, offset)
}

func doFetchRechat(ctx context.Context, urlStr string, offset int) ([]rechatMessage, int, error) {
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, urlStr, nil)
	req.Header.Set("User-Agent", "vod-moments/1.0")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, offset, err
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			slog.Warn("failed to close response body", slog.Any("err", err))
		}
	}()
	if resp.StatusCode != 200 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, offset, fmt.Errorf("rechat status %d: %s", resp.StatusCode, string(b))
	}
	var raw struct {
		Data []struct {
			Attributes struct {
				ID        string    `json:"id"`
				Timestamp time.Time `json:"timestamp"`
				Offset    float64   `json:"offset"`
				Message   struct {
					Body string `json:"body"`
					User struct {
						UserLogin   string `json:"userLogin"`
						DisplayName string `json:"displayName"`
					} `json:"user"`
				} `json:"message"`
			} `json:"attributes"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, offset, err
	}
	out := make([]rechatMessage, 0, len(raw.Data))
	for _, d := range raw.Data {
		a := d.Attributes
		user := a.Message.User.UserLogin
		if user == "" {
			user = a.Message.User.DisplayName
		}
		out = append(out, rechatMessage{
			ID:   a.ID,
			User: user,
			Text: a.Message.Body,
			Abs:  a.Timestamp,
			Rel:  a.Offset,
		})
	}
	next := offset + 30
	if len(out) > 0 {
		last := out[len(out)-1]
		if last.Rel > 0 {
			next = int(last.Rel) + 1
		}
	}
	return out, next, nil
}
