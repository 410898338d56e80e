package chat

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"sync/atomic"
	"time"

	"github.com/onnwee/vod-moments/backend/twitchapi"
	vodpkg "github.com/onnwee/vod-moments/backend/vod"
)

// recorderState tracks one live session's lifecycle. The poll loop and the
// reconciliation goroutine share it, so the flags are atomic.
type recorderState struct {
	running    atomic.Bool
	reconciled atomic.Bool
}

// streamUp marks a new session: recording, not yet reconciled.
func (s *recorderState) streamUp() {
	s.reconciled.Store(false)
	s.running.Store(true)
}

// sessionResolved marks the session's chat moved onto the published VOD.
func (s *recorderState) sessionResolved() {
	s.reconciled.Store(true)
	s.running.Store(false)
}

func (s *recorderState) recording() bool { return s.running.Load() }

// pendingReconcile reports a finished-or-offline session whose placeholder
// rows still await the published VOD.
func (s *recorderState) pendingReconcile() bool {
	return s.running.Load() && !s.reconciled.Load()
}

// StartAutoChatRecorder polls Twitch stream status and automatically starts the chat recorder
// when the configured channel goes live. It uses a placeholder VOD id (live-<unixStart>) until
// the real VOD is published.
// Env knobs:
//
//	CHAT_AUTO_POLL_INTERVAL (default 30s)
//	TWITCH_BOT_USERNAME, TWITCH_OAUTH_TOKEN, TWITCH_CLIENT_ID, TWITCH_CLIENT_SECRET required
func StartAutoChatRecorder(ctx context.Context, db *sql.DB, channel string) {
	if channel == "" {
		slog.Info("auto chat: TWITCH_CHANNEL empty; abort")
		return
	}
	if os.Getenv("TWITCH_BOT_USERNAME") == "" {
		slog.Info("auto chat: TWITCH_BOT_USERNAME empty; abort")
		return
	}
	clientID := os.Getenv("TWITCH_CLIENT_ID")
	clientSecret := os.Getenv("TWITCH_CLIENT_SECRET")
	if clientID == "" || clientSecret == "" {
		slog.Info("auto chat: missing client id/secret; abort")
		return
	}

	pollEvery := 30 * time.Second
	if v := os.Getenv("CHAT_AUTO_POLL_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			pollEvery = d
		}
	}
	reconcileDelay := time.Minute
	if v := os.Getenv("VOD_RECONCILE_DELAY"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			reconcileDelay = d
		}
	}
	reconcileWindow := 15 * time.Minute // how long after offline we keep trying

	helix := &twitchapi.HelixClient{
		AppTokenSource: twitchapi.NewTokenSource(clientID, clientSecret, nil),
		ClientID:       clientID,
	}

	var state recorderState
	var startedAt time.Time
	var placeholder string
	var recCancel context.CancelFunc

	ticker := time.NewTicker(pollEvery)
	defer ticker.Stop()
	slog.Info("auto chat: started poller", slog.Duration("interval", pollEvery))
	for {
		if ctx.Err() != nil {
			return
		}
		streams, err := helix.GetStreams(ctx, channel)
		switch {
		case err != nil:
			slog.Debug("auto chat: streams req", slog.Any("err", err))
		case len(streams) == 0:
			if state.pendingReconcile() {
				if recCancel != nil {
					recCancel()
				}
				slog.Info("auto chat: stream ended; beginning reconciliation window", slog.String("placeholder_vod", placeholder))
				go func(ph string, st, offAt time.Time) {
					if reconcilePlaceholder(ctx, db, channel, ph, st, offAt, reconcileDelay, reconcileWindow) {
						state.sessionResolved()
					}
				}(placeholder, startedAt, time.Now())
			}
		case state.recording():
			// already recording
		default:
			st, err := time.Parse(time.RFC3339, streams[0].StartedAt)
			if err != nil {
				st = time.Now().UTC()
			}
			startedAt = st.UTC()
			placeholder = fmt.Sprintf("live-%d", startedAt.Unix())
			if err := vodpkg.Upsert(ctx, db, vodpkg.VOD{
				ID: placeholder, Channel: channel, Title: "LIVE: " + streams[0].Title, Date: startedAt,
			}); err != nil {
				slog.Warn("auto chat: placeholder vod insert", slog.Any("err", err))
				break
			}
			state.streamUp()
			slog.Info("auto chat: stream live; starting chat recorder",
				slog.String("vod_id", placeholder), slog.Time("started_at", startedAt), slog.String("channel", channel))
			recCtx, cancel := context.WithCancel(ctx)
			recCancel = cancel
			go func(pID string, st time.Time) {
				StartTwitchChatRecorder(recCtx, db, pID, st)
				slog.Info("auto chat: recorder goroutine exited", slog.String("vod_id", pID))
			}(placeholder, startedAt)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// reconcilePlaceholder waits for the published VOD matching a finished live
// session and moves the recorded chat rows onto it. Reports success.
func reconcilePlaceholder(ctx context.Context, db *sql.DB, channel, placeholder string, startedAt, offlineAt time.Time, delay, window time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(delay):
	}
	for {
		if ctx.Err() != nil {
			return false
		}
		if time.Since(offlineAt) > window {
			slog.Warn("auto chat: reconciliation window expired", slog.String("placeholder_vod", placeholder))
			return false
		}
		vods, err := vodpkg.FetchChannelVODs(ctx)
		if err != nil {
			slog.Debug("auto chat: reconcile fetch vods", slog.Any("err", err))
		} else if candidate := matchSession(vods, startedAt); candidate != nil {
			if err := adoptPlaceholder(ctx, db, channel, placeholder, startedAt, candidate); err != nil {
				slog.Warn("auto chat: reconcile", slog.Any("err", err))
				return false
			}
			slog.Info("auto chat: reconciliation complete",
				slog.String("placeholder", placeholder), slog.String("real_vod", candidate.ID), slog.String("channel", channel))
			return true
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(30 * time.Second):
		}
	}
}

// matchSession picks the published VOD whose creation time is within ten
// minutes of the observed stream start, preferring the latest.
func matchSession(vods []vodpkg.VOD, startedAt time.Time) *vodpkg.VOD {
	var candidate *vodpkg.VOD
	for i := range vods {
		v := vods[i]
		if v.Date.Before(startedAt.Add(-10*time.Minute)) || v.Date.After(startedAt.Add(10*time.Minute)) {
			continue
		}
		if candidate == nil || (v.Date.After(candidate.Date) && !v.Date.Before(startedAt)) {
			candidate = &v
		}
	}
	return candidate
}

// adoptPlaceholder rewrites chat rows from the placeholder id onto the real
// VOD, realigning relative timestamps when the actual start differs.
func adoptPlaceholder(ctx context.Context, db *sql.DB, channel, placeholder string, startedAt time.Time, candidate *vodpkg.VOD) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit
	// Ensure the real VOD row exists so the chat FK can move over, then
	// refresh its metadata.
	if _, err := tx.ExecContext(ctx, `INSERT INTO vods (channel, twitch_vod_id, title, date, duration_seconds, created_at)
		VALUES ($1,$2,$3,$4,$5,NOW()) ON CONFLICT (twitch_vod_id) DO UPDATE SET
		title=EXCLUDED.title, date=EXCLUDED.date, duration_seconds=EXCLUDED.duration_seconds, updated_at=NOW()`,
		channel, candidate.ID, candidate.Title, candidate.Date, candidate.Duration); err != nil {
		return fmt.Errorf("upsert real vod: %w", err)
	}
	if !candidate.Date.Equal(startedAt) {
		delta := candidate.Date.Sub(startedAt).Seconds()
		if _, err := tx.ExecContext(ctx, `UPDATE chat_messages SET rel_timestamp=rel_timestamp - $1 WHERE vod_id=$2`, delta, placeholder); err != nil {
			return fmt.Errorf("shift timestamps: %w", err)
		}
	}
	if _, err := tx.ExecContext(ctx, `UPDATE chat_messages SET vod_id=$1 WHERE vod_id=$2`, candidate.ID, placeholder); err != nil {
		return fmt.Errorf("move chat rows: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `UPDATE vods SET chat_imported=TRUE, updated_at=NOW() WHERE twitch_vod_id=$1`, candidate.ID); err != nil {
		return fmt.Errorf("mark chat imported: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM vods WHERE twitch_vod_id=$1`, placeholder); err != nil {
		return fmt.Errorf("delete placeholder: %w", err)
	}
	return tx.Commit()
}
