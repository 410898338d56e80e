package vod

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/onnwee/vod-moments/backend/analyze"
	"github.com/onnwee/vod-moments/backend/chatlog"
	"github.com/onnwee/vod-moments/backend/config"
	"github.com/onnwee/vod-moments/backend/emotes"
	"github.com/onnwee/vod-moments/backend/presets"
	"github.com/onnwee/vod-moments/backend/report"
	"github.com/onnwee/vod-moments/backend/telemetry"
	"github.com/onnwee/vod-moments/backend/webhook"
)

// AnalyzeOne runs the full analysis pipeline for one VOD: streams its
// stored chat through every enabled preset, shapes the surviving moments
// into text and Discord output, and records the outcome on the VOD row.
// A preset that cannot run (bad queries, missing emote data) is skipped;
// only failures of the pipeline itself fail the VOD.
func AnalyzeOne(ctx context.Context, dbc *sql.DB, cfg *config.Config, vodID string) error {
	logger := slog.Default().With(slog.String("vod_id", vodID), slog.String("component", "analysis"))
	if !acquireAnalysisSlot(ctx) {
		return ctx.Err()
	}
	defer releaseAnalysisSlot()
	telemetry.AddCounter(telemetry.AnalysesStarted, 1)
	start := time.Now()

	v, err := Get(ctx, dbc, vodID)
	if err != nil {
		return failAnalysis(ctx, dbc, logger, vodID, fmt.Errorf("load vod: %w", err))
	}
	bots, err := cfg.Bots()
	if err != nil {
		return failAnalysis(ctx, dbc, logger, vodID, fmt.Errorf("load bot list: %w", err))
	}
	emoteSet, err := emotes.Load(ctx, dbc, v.Channel)
	if err != nil {
		logger.Warn("emote set unavailable; emote presets will be skipped", slog.Any("err", err))
		emoteSet = nil
	}

	run := analyze.NewRun(vodID,
		analyze.Params{Interval: cfg.Interval, Minimum: cfg.Minimum, Spacing: cfg.Spacing},
		bots, emoteSet,
		analyze.ChannelFilter(v.Channel),
		func() iter.Seq2[string, error] { return chatlog.Lines(ctx, dbc, vodID) })

	opts := report.Options{
		VODID:    vodID,
		Title:    v.Title,
		Channel:  v.Channel,
		Interval: cfg.Interval,
		MsgLimit: cfg.MsgLimit,
		TxtLimit: cfg.TxtLimit,
		Condense: cfg.Condense,
		Extend:   cfg.Extend,
	}
	wh := webhook.New(cfg.WebhookURL, cfg.WebhookUsername, cfg.WebhookAvatar)

	var fileBlocks, defaultTexts []string
	digest := make(map[string]analyze.Series)

	for _, name := range analyze.BuiltinPresets() {
		res, err := evaluateTimed(run, name, nil)
		if err != nil {
			telemetry.AddCounter(telemetry.PresetsSkipped, 1)
			if errors.Is(err, analyze.ErrEmotesRequired) {
				logger.Info("preset skipped", slog.String("preset", name), slog.Any("reason", err))
			} else {
				logger.Warn("preset failed", slog.String("preset", name), slog.Any("err", err))
			}
			continue
		}
		block := report.Preset(opts, res)
		if block == nil {
			continue
		}
		digest[name] = res.Filtered
		defaultTexts = append(defaultTexts, block.Text)
		if err := wh.Send(ctx, "[default] "+name, block.Discord); err != nil {
			logger.Warn("webhook send failed", slog.String("preset", name), slog.Any("err", err))
		}
	}
	if cfg.Condense {
		if d := report.Digest(opts, digest, analyze.BuiltinPresets()); d != "" {
			fileBlocks = append(fileBlocks, d)
		}
	} else {
		fileBlocks = append(fileBlocks, defaultTexts...)
	}

	customs, err := presets.Active(ctx, dbc, v.Channel)
	if err != nil {
		logger.Warn("custom presets unavailable", slog.Any("err", err))
	}
	fileBlocks = append(fileBlocks, runCustomPresets(ctx, run, opts, customs, wh, logger)...)

	if cfg.Aggregate {
		if block := report.AggregateBlock(opts, run.AggregateDefaults()); block != nil {
			fileBlocks = append(fileBlocks, block.Text)
			if err := wh.Send(ctx, "[default] aggregate", block.Discord); err != nil {
				logger.Warn("webhook send failed", slog.String("preset", "aggregate"), slog.Any("err", err))
			}
		}
	}

	if len(fileBlocks) > 0 {
		if path, err := writeResults(cfg.DataDir, vodID, fileBlocks); err != nil {
			logger.Warn("write results file", slog.Any("err", err))
		} else if err := wh.SendFile(ctx, "txt upload", "", path); err != nil {
			logger.Warn("webhook file upload failed", slog.Any("err", err))
		}
	}

	if err := MarkAnalyzed(ctx, dbc, vodID, ""); err != nil {
		return failAnalysis(ctx, dbc, logger, vodID, fmt.Errorf("mark analyzed: %w", err))
	}
	dur := time.Since(start)
	if telemetry.AnalysisDuration != nil {
		telemetry.AnalysisDuration.Observe(dur.Seconds())
	}
	telemetry.AddCounter(telemetry.AnalysesSucceeded, 1)
	logger.Info("vod analyzed", slog.Int("result_blocks", len(fileBlocks)), slog.Duration("duration", dur))
	return nil
}

// runCustomPresets evaluates every active custom preset in name order and
// returns the text blocks for the results file. The extend flag is output
// shaping (it widens per-preset row limits in report); it never decides
// whether customs run.
func runCustomPresets(ctx context.Context, run *analyze.Run, opts report.Options, customs map[string][]analyze.Query, wh *webhook.Client, logger *slog.Logger) []string {
	names := make([]string, 0, len(customs))
	for name := range customs {
		names = append(names, name)
	}
	sort.Strings(names)
	var blocks []string
	for _, name := range names {
		res, err := evaluateTimed(run, name, customs[name])
		if err != nil {
			telemetry.AddCounter(telemetry.PresetsSkipped, 1)
			logger.Warn("custom preset failed", slog.String("preset", name), slog.Any("err", err))
			continue
		}
		block := report.Preset(opts, res)
		if block == nil {
			continue
		}
		blocks = append(blocks, block.Text)
		if err := wh.Send(ctx, "[custom] "+name, block.Discord); err != nil {
			logger.Warn("webhook send failed", slog.String("preset", name), slog.Any("err", err))
		}
	}
	return blocks
}

func evaluateTimed(run *analyze.Run, name string, queries []analyze.Query) (res *analyze.PresetResult, err error) {
	telemetry.TimeFunc(telemetry.PresetDuration, func() {
		res, err = run.EvaluatePreset(name, queries)
	})
	return res, err
}

func failAnalysis(ctx context.Context, dbc *sql.DB, logger *slog.Logger, vodID string, err error) error {
	telemetry.AddCounter(telemetry.AnalysesFailed, 1)
	logger.Error("vod analysis failed", slog.Any("err", err))
	if markErr := MarkAnalyzed(ctx, dbc, vodID, err.Error()); markErr != nil {
		logger.Error("record analysis error", slog.Any("err", markErr))
	}
	return err
}

// writeResults saves the text blocks of one analysis under the data dir.
func writeResults(dataDir, vodID string, blocks []string) (string, error) {
	if dataDir == "" {
		dataDir = "data"
	}
	dir := filepath.Join(dataDir, "results")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("mkdir results dir: %w", err)
	}
	stamp := time.Now().Format("2006-01-02-15-04-05")
	path := filepath.Join(dir, fmt.Sprintf("%s_%s.txt", vodID, stamp))
	content := ""
	for i, b := range blocks {
		if i > 0 {
			content += "\n\n"
		}
		content += b
	}
	if err := os.WriteFile(path, []byte(content+"\n"), 0o644); err != nil {
		return "", fmt.Errorf("write results: %w", err)
	}
	return path, nil
}

// StartAnalysisJob runs a loop analyzing pending VODs at an interval.
func StartAnalysisJob(ctx context.Context, dbc *sql.DB, cfg *config.Config, channel string) {
	interval := time.Minute
	if s := os.Getenv("ANALYSIS_JOB_INTERVAL"); s != "" {
		if d, err := time.ParseDuration(s); err == nil && d > 0 {
			interval = d
		}
	}
	slog.Info("analysis job starting", slog.Duration("interval", interval), slog.String("channel", channel))
	if err := analyzeNext(ctx, dbc, cfg, channel); err != nil {
		slog.Warn("analyze next", slog.Any("err", err))
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			slog.Info("analysis job stopped")
			return
		case <-ticker.C:
			if err := analyzeNext(ctx, dbc, cfg, channel); err != nil {
				slog.Warn("analyze next", slog.Any("err", err))
			}
		}
	}
}

// analyzeNext picks the oldest pending VOD and analyzes it.
func analyzeNext(ctx context.Context, dbc *sql.DB, cfg *config.Config, channel string) error {
	_, _ = dbc.ExecContext(ctx, `INSERT INTO kv (key,value,updated_at) VALUES ('job_analysis_last', to_char(NOW() AT TIME ZONE 'UTC','YYYY-MM-DD"T"HH24:MI:SS.MS"Z"'), NOW())
		ON CONFLICT(key) DO UPDATE SET value=EXCLUDED.value, updated_at=NOW()`)
	backlog, err := CountBacklog(ctx, dbc, channel)
	if err != nil {
		return fmt.Errorf("count backlog: %w", err)
	}
	telemetry.SetBacklog(backlog)
	id, err := NextUnanalyzed(ctx, dbc, channel)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			slog.Debug("no vods ready for analysis")
			return nil
		}
		return fmt.Errorf("next unanalyzed: %w", err)
	}
	start := time.Now()
	if err := AnalyzeOne(ctx, dbc, cfg, id); err != nil {
		return nil // recorded on the VOD row; job keeps moving
	}
	updateMovingAvg(ctx, dbc, "avg_analysis_ms", float64(time.Since(start).Milliseconds()))
	telemetry.SetBacklog(backlog - 1)
	return nil
}

// updateMovingAvg maintains a simple exponential moving average (EMA) stored in kv.
// alpha = 0.2 (new contributes 20%). Values stored as integer milliseconds.
func updateMovingAvg(ctx context.Context, db *sql.DB, key string, newVal float64) {
	const alpha = 0.2
	var existing string
	_ = db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key=$1`, key).Scan(&existing)
	if existing == "" {
		_, _ = db.ExecContext(ctx, `INSERT INTO kv (key,value,updated_at) VALUES ($1,$2,NOW())
			ON CONFLICT(key) DO UPDATE SET value=EXCLUDED.value, updated_at=NOW()`, key, fmt.Sprintf("%.0f", newVal))
		return
	}
	var old float64
	if v, err := strconv.ParseFloat(existing, 64); err == nil {
		old = v
	}
	ema := alpha*newVal + (1-alpha)*old
	_, _ = db.ExecContext(ctx, `INSERT INTO kv (key,value,updated_at) VALUES ($1,$2,NOW())
		ON CONFLICT(key) DO UPDATE SET value=EXCLUDED.value, updated_at=NOW()`, key, fmt.Sprintf("%.0f", ema))
}
