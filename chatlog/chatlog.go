// Package chatlog renders stored chat messages as transcript lines and
// streams them to the analyzer. One transcript record looks like
//
//	[HH:MM:SS.mmm] username: message text
//
// where the clock is the offset from VOD start. Sources are exposed as
// line iterators so the analyzer can take one full pass per preset.
package chatlog

import (
	"bufio"
	"context"
	"database/sql"
	"fmt"
	"io"
	"iter"
	"math"
	"os"
)

// Clock splits a second offset into hour/minute/second components.
func Clock(seconds int) (h, m, s int) {
	return seconds / 3600, (seconds % 3600) / 60, seconds % 60
}

// Timestamp formats a second offset as HH:MM:SS, optionally with a
// millisecond suffix.
func Timestamp(seconds float64, includeMS bool) string {
	whole := int(seconds)
	ms := int(math.Round((seconds - float64(whole)) * 1000))
	if ms >= 1000 {
		ms -= 1000
		whole++
	}
	h, m, s := Clock(whole)
	if includeMS {
		return fmt.Sprintf("%02d:%02d:%02d.%03d", h, m, s, ms)
	}
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

// FormatLine renders one transcript record.
func FormatLine(relSeconds float64, user, message string) string {
	return fmt.Sprintf("[%s] %s: %s", Timestamp(relSeconds, true), user, message)
}

// ScanLines yields the lines of r in order, then any read error.
func ScanLines(r io.Reader) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		sc := bufio.NewScanner(r)
		sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for sc.Scan() {
			if !yield(sc.Text(), nil) {
				return
			}
		}
		if err := sc.Err(); err != nil {
			yield("", err)
		}
	}
}

// FileLines yields the transcript lines of a saved log file.
func FileLines(path string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		f, err := os.Open(path)
		if err != nil {
			yield("", err)
			return
		}
		defer f.Close()
		for line, err := range ScanLines(f) {
			if !yield(line, err) {
				return
			}
		}
	}
}

// Lines streams a VOD's stored chat rows as transcript lines ordered by
// relative timestamp.
func Lines(ctx context.Context, db *sql.DB, vodID string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		rows, err := db.QueryContext(ctx,
			`SELECT username, message, rel_timestamp FROM chat_messages WHERE vod_id=$1 ORDER BY rel_timestamp, id`, vodID)
		if err != nil {
			yield("", fmt.Errorf("query chat messages: %w", err))
			return
		}
		defer rows.Close()
		for rows.Next() {
			var user, message string
			var rel float64
			if err := rows.Scan(&user, &message, &rel); err != nil {
				yield("", fmt.Errorf("scan chat message: %w", err))
				return
			}
			if !yield(FormatLine(rel, user, message), nil) {
				return
			}
		}
		if err := rows.Err(); err != nil {
			yield("", err)
		}
	}
}

// Export writes a VOD's transcript to path and returns the line count.
func Export(ctx context.Context, db *sql.DB, vodID, path string) (int, error) {
	f, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("create transcript: %w", err)
	}
	w := bufio.NewWriter(f)
	n := 0
	for line, err := range Lines(ctx, db, vodID) {
		if err != nil {
			f.Close()
			return n, err
		}
		if _, err := fmt.Fprintln(w, line); err != nil {
			f.Close()
			return n, err
		}
		n++
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return n, err
	}
	return n, f.Close()
}

// CountLines reports how many chat rows are stored for a VOD.
func CountLines(ctx context.Context, db *sql.DB, vodID string) (int, error) {
	var n int
	err := db.QueryRowContext(ctx, `SELECT COUNT(1) FROM chat_messages WHERE vod_id=$1`, vodID).Scan(&n)
	return n, err
}
