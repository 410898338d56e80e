// Package vod tracks Twitch VODs and their chat replays: catalog discovery
// via Helix, rechat chat import, retention pruning, and the background
// analysis job that turns stored chat into ranked moments.
package vod

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"time"

	"github.com/onnwee/vod-moments/backend/twitchapi"
)

// VOD is the core model. The DB schema lives in db/migrations.
type VOD struct {
	ID            string
	Channel       string
	Title         string
	Date          time.Time
	Duration      int // seconds
	ChatImported  bool
	AnalyzedAt    time.Time
	AnalysisError string
}

// Upsert inserts a VOD row or refreshes its metadata.
func Upsert(ctx context.Context, db *sql.DB, v VOD) error {
	_, err := db.ExecContext(ctx, `INSERT INTO vods (twitch_vod_id, channel, title, date, duration_seconds, created_at)
		VALUES ($1,$2,$3,$4,$5,NOW())
		ON CONFLICT (twitch_vod_id) DO UPDATE SET
			title=COALESCE(NULLIF(EXCLUDED.title,''), vods.title),
			duration_seconds=CASE WHEN COALESCE(vods.duration_seconds,0)=0 THEN EXCLUDED.duration_seconds ELSE vods.duration_seconds END,
			updated_at=NOW()`,
		v.ID, v.Channel, v.Title, v.Date, v.Duration)
	if err != nil {
		return fmt.Errorf("upsert vod %s: %w", v.ID, err)
	}
	return nil
}

// Get loads one VOD by its Twitch id.
func Get(ctx context.Context, db *sql.DB, id string) (*VOD, error) {
	var v VOD
	var analyzedAt sql.NullTime
	var analysisErr sql.NullString
	var channel, title sql.NullString
	var date sql.NullTime
	var duration sql.NullInt64
	err := db.QueryRowContext(ctx, `SELECT twitch_vod_id, channel, title, date, duration_seconds, COALESCE(chat_imported,false), analyzed_at, analysis_error
		FROM vods WHERE twitch_vod_id=$1`, id).
		Scan(&v.ID, &channel, &title, &date, &duration, &v.ChatImported, &analyzedAt, &analysisErr)
	if err != nil {
		return nil, err
	}
	v.Channel = channel.String
	v.Title = title.String
	v.Date = date.Time
	v.Duration = int(duration.Int64)
	v.AnalyzedAt = analyzedAt.Time
	v.AnalysisError = analysisErr.String
	return &v, nil
}

// List returns the most recent VODs for a channel, newest first.
func List(ctx context.Context, db *sql.DB, channel string, limit int) ([]VOD, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.QueryContext(ctx, `SELECT twitch_vod_id, COALESCE(title,''), COALESCE(date, to_timestamp(0)), COALESCE(duration_seconds,0), COALESCE(chat_imported,false), analyzed_at
		FROM vods WHERE channel=$1 ORDER BY date DESC LIMIT $2`, channel, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []VOD
	for rows.Next() {
		var v VOD
		var analyzedAt sql.NullTime
		if err := rows.Scan(&v.ID, &v.Title, &v.Date, &v.Duration, &v.ChatImported, &analyzedAt); err != nil {
			return nil, err
		}
		v.Channel = channel
		v.AnalyzedAt = analyzedAt.Time
		out = append(out, v)
	}
	return out, rows.Err()
}

// MarkChatImported flags a VOD whose chat replay has been fully stored.
func MarkChatImported(ctx context.Context, db *sql.DB, id string) error {
	_, err := db.ExecContext(ctx, `UPDATE vods SET chat_imported=TRUE, updated_at=NOW() WHERE twitch_vod_id=$1`, id)
	return err
}

// MarkAnalyzed records a completed analysis; a non-empty errMsg records a
// failed one (the VOD stays eligible for retry once the error is cleared).
func MarkAnalyzed(ctx context.Context, db *sql.DB, id, errMsg string) error {
	if errMsg != "" {
		_, err := db.ExecContext(ctx, `UPDATE vods SET analysis_error=$2, updated_at=NOW() WHERE twitch_vod_id=$1`, id, errMsg)
		return err
	}
	_, err := db.ExecContext(ctx, `UPDATE vods SET analyzed_at=NOW(), analysis_error=NULL, updated_at=NOW() WHERE twitch_vod_id=$1`, id)
	return err
}

// NextUnanalyzed picks the oldest VOD with imported chat and no completed or
// failed analysis. Returns sql.ErrNoRows when the backlog is empty.
func NextUnanalyzed(ctx context.Context, db *sql.DB, channel string) (string, error) {
	var id string
	err := db.QueryRowContext(ctx, `SELECT twitch_vod_id FROM vods
		WHERE channel=$1 AND chat_imported=TRUE AND analyzed_at IS NULL AND analysis_error IS NULL
		ORDER BY date ASC LIMIT 1`, channel).Scan(&id)
	return id, err
}

// CountBacklog reports how many VODs await analysis.
func CountBacklog(ctx context.Context, db *sql.DB, channel string) (int, error) {
	var n int
	err := db.QueryRowContext(ctx, `SELECT COUNT(1) FROM vods
		WHERE channel=$1 AND chat_imported=TRUE AND analyzed_at IS NULL AND analysis_error IS NULL`, channel).Scan(&n)
	return n, err
}

// FetchChannelVODs lists recent archive VODs using Twitch Helix (simple unpaged variant).
// Historical / paged listing lives in catalog.go.
func FetchChannelVODs(ctx context.Context) ([]VOD, error) {
	channel := os.Getenv("TWITCH_CHANNEL")
	if channel == "" {
		return nil, nil
	}
	hc := helixClient()
	uid, err := hc.GetUserID(ctx, channel)
	if err != nil {
		return nil, err
	}
	videos, _, err := hc.ListVideos(ctx, uid, "", 20)
	if err != nil {
		return nil, err
	}
	out := make([]VOD, 0, len(videos))
	for _, v := range videos {
		created, _ := time.Parse(time.RFC3339, v.CreatedAt)
		out = append(out, VOD{ID: v.ID, Channel: channel, Title: v.Title, Date: created, Duration: parseTwitchDuration(v.Duration)})
	}
	return out, nil
}

// helixClient returns a HelixClient initialized from env.
func helixClient() *twitchapi.HelixClient {
	return &twitchapi.HelixClient{
		AppTokenSource: twitchapi.NewTokenSource(os.Getenv("TWITCH_CLIENT_ID"), os.Getenv("TWITCH_CLIENT_SECRET"), nil),
		ClientID:       os.Getenv("TWITCH_CLIENT_ID"),
	}
}
