package vod

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"
)

// RetentionPolicy defines which stored chat rows are eligible for pruning.
// Only VODs whose analysis completed are touched; unanalyzed chat is kept.
type RetentionPolicy struct {
	// KeepDays: chat rows for VODs older than this many days are pruned (0 = disabled)
	KeepDays int
	// DryRun: when true, log what would be pruned without deleting
	DryRun bool
	// Interval: how often to run the pruning job
	Interval time.Duration
}

// LoadRetentionPolicy loads retention configuration from environment variables.
func LoadRetentionPolicy() RetentionPolicy {
	policy := RetentionPolicy{
		Interval: 6 * time.Hour,
	}
	if s := os.Getenv("CHAT_RETENTION_DAYS"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n >= 0 {
			policy.KeepDays = n
		}
	}
	if os.Getenv("CHAT_RETENTION_DRY_RUN") == "1" {
		policy.DryRun = true
	}
	if s := os.Getenv("CHAT_RETENTION_INTERVAL"); s != "" {
		if d, err := time.ParseDuration(s); err == nil && d > 0 {
			policy.Interval = d
		}
	}
	return policy
}

// StartRetentionJob periodically prunes chat rows of old, already-analyzed VODs.
func StartRetentionJob(ctx context.Context, dbc *sql.DB, channel string) {
	policy := LoadRetentionPolicy()
	if policy.KeepDays == 0 {
		slog.Info("chat retention job disabled (no policy configured)", slog.String("channel", channel))
		return
	}

	slog.Info("chat retention job starting",
		slog.String("channel", channel),
		slog.Int("keep_days", policy.KeepDays),
		slog.Bool("dry_run", policy.DryRun),
		slog.Duration("interval", policy.Interval))

	if err := runRetentionCleanup(ctx, dbc, channel, policy); err != nil {
		slog.Warn("chat retention cleanup failed", slog.Any("err", err), slog.String("channel", channel))
	}

	ticker := time.NewTicker(policy.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			slog.Info("chat retention job stopped", slog.String("channel", channel))
			return
		case <-ticker.C:
			if err := runRetentionCleanup(ctx, dbc, channel, policy); err != nil {
				slog.Warn("chat retention cleanup failed", slog.Any("err", err), slog.String("channel", channel))
			}
		}
	}
}

// runRetentionCleanup performs a single pruning cycle.
func runRetentionCleanup(ctx context.Context, dbc *sql.DB, channel string, policy RetentionPolicy) error {
	logger := slog.Default().With(
		slog.String("component", "chat_retention"),
		slog.String("channel", channel),
		slog.Bool("dry_run", policy.DryRun),
	)
	cutoff := time.Now().Add(-time.Duration(policy.KeepDays) * 24 * time.Hour)

	if policy.DryRun {
		var n int
		err := dbc.QueryRowContext(ctx, `SELECT COUNT(1) FROM chat_messages cm
			JOIN vods v ON v.twitch_vod_id = cm.vod_id
			WHERE v.channel=$1 AND v.analyzed_at IS NOT NULL AND v.date < $2`, channel, cutoff).Scan(&n)
		if err != nil {
			return fmt.Errorf("count prunable chat rows: %w", err)
		}
		logger.Info("dry-run: would prune chat rows", slog.Int("rows", n), slog.Time("cutoff", cutoff))
		return nil
	}

	res, err := dbc.ExecContext(ctx, `DELETE FROM chat_messages WHERE vod_id IN (
		SELECT twitch_vod_id FROM vods
		WHERE channel=$1 AND analyzed_at IS NOT NULL AND date < $2)`, channel, cutoff)
	if err != nil {
		return fmt.Errorf("prune chat rows: %w", err)
	}
	rows, _ := res.RowsAffected()
	if rows > 0 {
		logger.Info("pruned chat rows", slog.Int64("rows", rows), slog.Time("cutoff", cutoff))
	}
	return nil
}
