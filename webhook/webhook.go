// Package webhook posts analysis results to a Discord webhook: short
// ranked-moment messages per preset, plus transcript/result files as
// attachments. A nil or unconfigured client drops sends silently so the
// pipeline runs fine without Discord wired up.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/onnwee/vod-moments/backend/telemetry"
)

const maxAttempts = 3

// Client sends messages to one Discord webhook URL.
type Client struct {
	URL        string
	Username   string
	Avatar     string
	HTTPClient *http.Client
}

// New returns a client, or nil when no URL is configured.
func New(url, username, avatar string) *Client {
	if url == "" {
		return nil
	}
	return &Client{URL: url, Username: username, Avatar: avatar}
}

func (c *Client) http() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return &http.Client{Timeout: 30 * time.Second}
}

type payload struct {
	Content   string `json:"content,omitempty"`
	Username  string `json:"username,omitempty"`
	AvatarURL string `json:"avatar_url,omitempty"`
}

// Send posts a text message. label names the message in logs and errors
// only; it is not sent to Discord.
func (c *Client) Send(ctx context.Context, label, content string) error {
	if c == nil || content == "" {
		return nil
	}
	body, err := json.Marshal(payload{Content: content, Username: c.Username, AvatarURL: c.Avatar})
	if err != nil {
		return fmt.Errorf("encode webhook payload: %w", err)
	}
	return c.post(ctx, label, "application/json", func() (io.Reader, error) {
		return bytes.NewReader(body), nil
	})
}

// SendFile posts a message with a file attached, multipart-encoded the way
// Discord expects: a payload_json field plus the file part.
func (c *Client) SendFile(ctx context.Context, label, content, path string) error {
	if c == nil {
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read attachment %s: %w", path, err)
	}
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	meta, err := json.Marshal(payload{Content: content, Username: c.Username, AvatarURL: c.Avatar})
	if err != nil {
		return fmt.Errorf("encode webhook payload: %w", err)
	}
	if err := w.WriteField("payload_json", string(meta)); err != nil {
		return err
	}
	part, err := w.CreateFormFile("files[0]", filepath.Base(path))
	if err != nil {
		return err
	}
	if _, err := part.Write(data); err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	raw := buf.Bytes()
	return c.post(ctx, label, w.FormDataContentType(), func() (io.Reader, error) {
		return bytes.NewReader(raw), nil
	})
}

// post delivers one request, retrying rate limits and transient server
// errors. The body factory rebuilds the reader per attempt.
func (c *Client) post(ctx context.Context, label, contentType string, body func() (io.Reader, error)) error {
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		r, err := body()
		if err != nil {
			return err
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.URL, r)
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", contentType)
		resp, err := c.http().Do(req)
		if err != nil {
			lastErr = err
		} else {
			retryAfter, done := c.consume(resp, label, &lastErr)
			if done {
				telemetry.AddCounter(telemetry.WebhooksSent, 1)
				return nil
			}
			if retryAfter > 0 {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-time.After(retryAfter):
				}
				continue
			}
			if resp.StatusCode < 500 {
				break
			}
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt) * 500 * time.Millisecond):
		}
	}
	telemetry.AddCounter(telemetry.WebhooksFailed, 1)
	return fmt.Errorf("send %q: %w", label, lastErr)
}

// consume drains one response and classifies it. Returns a positive wait
// duration for rate limits, or done=true on success.
func (c *Client) consume(resp *http.Response, label string, lastErr *error) (time.Duration, bool) {
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		if err := resp.Body.Close(); err != nil {
			slog.Warn("failed to close response body", slog.Any("err", err))
		}
	}()
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		slog.Debug("webhook delivered", slog.String("label", label))
		return 0, true
	}
	*lastErr = fmt.Errorf("webhook status %s", resp.Status)
	if resp.StatusCode == http.StatusTooManyRequests {
		wait := time.Second
		if s := resp.Header.Get("Retry-After"); s != "" {
			if secs, err := strconv.ParseFloat(s, 64); err == nil && secs > 0 {
				wait = time.Duration(secs * float64(time.Second))
			}
		}
		return wait, false
	}
	return 0, false
}
