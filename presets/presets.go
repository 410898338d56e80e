// Package presets stores custom search presets: named query lists scoped
// globally or to one channel, toggleable without deletion. Built-in preset
// names live in the analyze package; this package only manages the custom
// ones layered on top.
package presets

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/onnwee/vod-moments/backend/analyze"
)

// Preset is one stored custom preset.
type Preset struct {
	Name    string
	Channel string // "" means global
	Queries []analyze.Query
	Active  bool
}

// DecodeQueries parses the stored query list. Two element forms are
// accepted: a bare string (an emote code, matched case-sensitively as a
// whole word against the known-emote set) and a ["text","yn"] pair where
// the two flag characters set case sensitivity and exact-word matching.
func DecodeQueries(raw string) ([]analyze.Query, error) {
	var elems []json.RawMessage
	if err := json.Unmarshal([]byte(raw), &elems); err != nil {
		return nil, fmt.Errorf("decode queries: %w", err)
	}
	out := make([]analyze.Query, 0, len(elems))
	for i, e := range elems {
		var s string
		if err := json.Unmarshal(e, &s); err == nil {
			out = append(out, analyze.Query{Text: s, Emote: true})
			continue
		}
		var pair []string
		if err := json.Unmarshal(e, &pair); err != nil || len(pair) != 2 || len(pair[1]) != 2 {
			return nil, fmt.Errorf("decode queries: element %d is neither emote nor [text, flags]", i)
		}
		out = append(out, analyze.Query{
			Text:          pair[0],
			CaseSensitive: pair[1][0] == 'y',
			ExactWord:     pair[1][1] == 'y',
		})
	}
	return out, nil
}

// EncodeQueries renders queries in the same storage form DecodeQueries reads.
func EncodeQueries(queries []analyze.Query) (string, error) {
	elems := make([]any, 0, len(queries))
	for _, q := range queries {
		if q.Emote {
			elems = append(elems, q.Text)
			continue
		}
		flags := []byte{'n', 'n'}
		if q.CaseSensitive {
			flags[0] = 'y'
		}
		if q.ExactWord {
			flags[1] = 'y'
		}
		elems = append(elems, []string{q.Text, string(flags)})
	}
	b, err := json.Marshal(elems)
	if err != nil {
		return "", fmt.Errorf("encode queries: %w", err)
	}
	return string(b), nil
}

// Save creates or overwrites a preset.
func Save(ctx context.Context, db *sql.DB, p Preset) error {
	if p.Name == "" {
		return fmt.Errorf("preset name empty")
	}
	if _, ok := analyze.PresetLabel(p.Name); ok {
		return fmt.Errorf("preset name %q shadows a built-in preset", p.Name)
	}
	if len(p.Queries) == 0 {
		return fmt.Errorf("preset %q has no queries", p.Name)
	}
	raw, err := EncodeQueries(p.Queries)
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx, `INSERT INTO presets (name, channel, queries, active, created_at)
		VALUES ($1,$2,$3,$4,NOW())
		ON CONFLICT (name, channel) DO UPDATE SET queries=EXCLUDED.queries, active=EXCLUDED.active, updated_at=NOW()`,
		p.Name, p.Channel, raw, p.Active)
	if err != nil {
		return fmt.Errorf("save preset %q: %w", p.Name, err)
	}
	return nil
}

// Delete removes a preset entirely.
func Delete(ctx context.Context, db *sql.DB, name, channel string) error {
	_, err := db.ExecContext(ctx, `DELETE FROM presets WHERE name=$1 AND channel=$2`, name, channel)
	return err
}

// Toggle flips a preset's active flag and returns the new state.
func Toggle(ctx context.Context, db *sql.DB, name, channel string) (bool, error) {
	var active bool
	err := db.QueryRowContext(ctx, `UPDATE presets SET active=NOT active, updated_at=NOW()
		WHERE name=$1 AND channel=$2 RETURNING active`, name, channel).Scan(&active)
	if err != nil {
		return false, fmt.Errorf("toggle preset %q: %w", name, err)
	}
	return active, nil
}

// List returns all presets visible to a channel: global ones plus its own.
func List(ctx context.Context, db *sql.DB, channel string) ([]Preset, error) {
	rows, err := db.QueryContext(ctx, `SELECT name, channel, queries, active FROM presets
		WHERE channel='' OR channel=$1 ORDER BY channel, name`, channel)
	if err != nil {
		return nil, fmt.Errorf("list presets: %w", err)
	}
	defer rows.Close()
	var out []Preset
	for rows.Next() {
		var p Preset
		var raw string
		if err := rows.Scan(&p.Name, &p.Channel, &raw, &p.Active); err != nil {
			return nil, err
		}
		if p.Queries, err = DecodeQueries(raw); err != nil {
			return nil, fmt.Errorf("preset %q: %w", p.Name, err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// Active returns the active presets for a channel keyed by name. A local
// preset shadows a global one with the same name.
func Active(ctx context.Context, db *sql.DB, channel string) (map[string][]analyze.Query, error) {
	all, err := List(ctx, db, channel)
	if err != nil {
		return nil, err
	}
	out := make(map[string][]analyze.Query)
	// Globals sort first, so a local preset with the same name overwrites.
	for _, p := range all {
		if !p.Active {
			continue
		}
		out[p.Name] = p.Queries
	}
	return out, nil
}
