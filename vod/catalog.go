package vod

import (
	"context"
	"database/sql"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/onnwee/vod-moments/backend/db"
)

// FetchAllChannelVODs walks the channel's archive listing page by page until
// maxCount VODs are collected or one older than maxAge shows up (zero means
// unbounded). Open-ended walks persist the Helix cursor under the kv key
// "catalog_after" so an interrupted backfill resumes instead of restarting.
func FetchAllChannelVODs(ctx context.Context, dbc *sql.DB, maxCount int, maxAge time.Duration) ([]VOD, error) {
	channel := os.Getenv("TWITCH_CHANNEL")
	if channel == "" {
		return nil, nil
	}
	client := helixClient()
	userID, err := client.GetUserID(ctx, channel)
	if err != nil {
		return nil, err
	}

	var cutoff time.Time
	if maxAge > 0 {
		cutoff = time.Now().Add(-maxAge)
	}
	pageSize := 100
	if maxCount > 0 && maxCount < pageSize {
		pageSize = maxCount
	}
	resumable := maxAge == 0
	cursor := ""
	if resumable {
		cursor, _ = db.GetKV(ctx, dbc, "catalog_after")
	}

	var found []VOD
	for {
		videos, next, err := client.ListVideos(ctx, userID, cursor, pageSize)
		if err != nil {
			return nil, err
		}
		if len(videos) == 0 {
			return found, nil
		}
		for _, v := range videos {
			created, _ := time.Parse(time.RFC3339, v.CreatedAt)
			if !cutoff.IsZero() && created.Before(cutoff) {
				return found, nil
			}
			found = append(found, VOD{
				ID:       v.ID,
				Channel:  channel,
				Title:    v.Title,
				Date:     created,
				Duration: parseTwitchDuration(v.Duration),
			})
			if maxCount > 0 && len(found) >= maxCount {
				return found, nil
			}
		}
		if next == "" {
			return found, nil
		}
		cursor = next
		if resumable {
			_ = db.SetKV(ctx, dbc, "catalog_after", cursor)
		}
		// Pace page requests under the Helix rate limit.
		select {
		case <-ctx.Done():
			return found, ctx.Err()
		case <-time.After(1200 * time.Millisecond):
		}
	}
}

// BackfillCatalog discovers historical VODs and upserts them. New rows start
// unimported and unanalyzed, so the import and analysis jobs pick them up.
func BackfillCatalog(ctx context.Context, dbc *sql.DB, maxCount int, maxAge time.Duration) error {
	vods, err := FetchAllChannelVODs(ctx, dbc, maxCount, maxAge)
	if err != nil {
		return err
	}
	for _, v := range vods {
		if err := Upsert(ctx, dbc, v); err != nil {
			slog.Warn("catalog upsert", slog.String("vod_id", v.ID), slog.Any("err", err))
		}
	}
	slog.Info("catalog backfill pass done", slog.Int("discovered", len(vods)))
	return nil
}

// StartVODCatalogBackfillJob discovers VODs on boot and then every
// VOD_CATALOG_BACKFILL_INTERVAL (default 6h). VOD_CATALOG_MAX and
// VOD_CATALOG_MAX_AGE_DAYS bound each pass.
func StartVODCatalogBackfillJob(ctx context.Context, dbc *sql.DB) {
	interval := 6 * time.Hour
	if v := os.Getenv("VOD_CATALOG_BACKFILL_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			interval = d
		}
	}
	maxCount := envPositiveInt("VOD_CATALOG_MAX")
	maxAge := time.Duration(envPositiveInt("VOD_CATALOG_MAX_AGE_DAYS")) * 24 * time.Hour

	slog.Info("catalog backfill job starting",
		slog.Duration("interval", interval), slog.Int("max", maxCount), slog.Duration("max_age", maxAge))
	if err := BackfillCatalog(ctx, dbc, maxCount, maxAge); err != nil {
		slog.Warn("catalog backfill", slog.Any("err", err))
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			slog.Info("catalog backfill job stopped")
			return
		case <-ticker.C:
			if err := BackfillCatalog(ctx, dbc, maxCount, maxAge); err != nil {
				slog.Warn("catalog backfill", slog.Any("err", err))
			}
		}
	}
}

func envPositiveInt(name string) int {
	n, err := strconv.Atoi(os.Getenv(name))
	if err != nil || n < 0 {
		return 0
	}
	return n
}

// parseTwitchDuration converts Helix's "3h15m42s" form to seconds. Unknown
// unit letters end the pending number without adding to the total.
func parseTwitchDuration(s string) int {
	total, num := 0, 0
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
			num = num*10 + int(r-'0')
		case r == 'h':
			total, num = total+num*3600, 0
		case r == 'm':
			total, num = total+num*60, 0
		case r == 's':
			total, num = total+num, 0
		default:
			num = 0
		}
	}
	return total
}
