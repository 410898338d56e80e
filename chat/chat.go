package chat

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	twitch "github.com/gempir/go-twitch-irc/v4"

	"github.com/onnwee/vod-moments/backend/telemetry"
)

// StartTwitchChatRecorder records chat for a given VOD, with VOD ID and VOD start time for replay accuracy.
func StartTwitchChatRecorder(ctx context.Context, db *sql.DB, vodID string, vodStart time.Time) {
	channel := os.Getenv("TWITCH_CHANNEL")
	username := os.Getenv("TWITCH_BOT_USERNAME")
	oauth := os.Getenv("TWITCH_OAUTH_TOKEN")
	if channel == "" || username == "" || oauth == "" {
		slog.Info("twitch creds not set; skipping chat recorder")
		return
	}
	client := twitch.NewClient(username, oauth)

	client.OnPrivateMessage(func(msg twitch.PrivateMessage) {
		absTime := time.Now().UTC()
		relTime := absTime.Sub(vodStart).Seconds()
		var badges []string
		for k, v := range msg.User.Badges {
			badges = append(badges, fmt.Sprintf("%s:%d", k, v))
		}
		var emotes []string
		for _, e := range msg.Emotes {
			emotes = append(emotes, e.Name)
		}
		if _, err := db.ExecContext(ctx, `INSERT INTO chat_messages (vod_id, username, message, abs_timestamp, rel_timestamp, badges, emotes, color)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
			vodID, strings.ToLower(msg.User.Name), msg.Message, absTime, relTime,
			strings.Join(badges, ","), strings.Join(emotes, ","), msg.User.Color); err != nil {
			slog.Error("failed to insert chat message", slog.Any("err", err))
			return
		}
		telemetry.AddCounter(telemetry.ChatRecorded, 1)
	})

	telemetry.SetRecordingLive(true)
	defer telemetry.SetRecordingLive(false)

	done := make(chan struct{})
	go func() {
		<-ctx.Done()
		client.Disconnect()
		close(done)
	}()

	client.Join(channel)
	if err := client.Connect(); err != nil {
		slog.Error("twitch chat connect error", slog.Any("err", err))
	}
	<-done
}
