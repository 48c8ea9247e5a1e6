package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

const entryColumns = `id, path, content_hash, size_bytes, codec, width, height, bit_rate_bps, duration_s, mod_time, category, state, attempts, last_error, workdir_path, pre_hash, updated_at`

func scanEntry(row interface{ Scan(...any) error }) (MediaEntry, error) {
	var e MediaEntry
	var category, state, modTime, updatedAt string
	if err := row.Scan(
		&e.ID, &e.Path, &e.ContentHash, &e.SizeBytes, &e.Codec, &e.Width, &e.Height,
		&e.BitRateBPS, &e.DurationS, &modTime, &category, &state, &e.Attempts, &e.LastError,
		&e.WorkdirPath, &e.PreHash, &updatedAt,
	); err != nil {
		return MediaEntry{}, err
	}
	e.Category = Category(category)
	parsed, ok := ParseState(state)
	if !ok {
		return MediaEntry{}, fmt.Errorf("catalog: unknown state %q for entry %s", state, e.ID)
	}
	e.State = parsed
	if modTime != "" {
		ts, err := time.Parse(time.RFC3339Nano, modTime)
		if err != nil {
			return MediaEntry{}, fmt.Errorf("catalog: parse mod_time for entry %s: %w", e.ID, err)
		}
		e.ModTime = ts
	}
	ts, err := time.Parse(time.RFC3339Nano, updatedAt)
	if err != nil {
		return MediaEntry{}, fmt.Errorf("catalog: parse updated_at for entry %s: %w", e.ID, err)
	}
	e.UpdatedAt = ts
	return e, nil
}

func scanEntries(rows *sql.Rows) ([]MediaEntry, error) {
	defer rows.Close()
	var entries []MediaEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Filter narrows a List query. A zero-value Filter returns every entry.
type Filter struct {
	State    State
	HasState bool
	Category Category
}

// Get returns the entry with the given id, or (MediaEntry{}, false, nil) if
// no such entry exists.
func (s *Store) Get(ctx context.Context, id string) (MediaEntry, bool, error) {
	row := s.queryRowWithRetry(ctx, `SELECT `+entryColumns+` FROM media_entries WHERE id = ?`, id)
	e, err := scanEntry(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return MediaEntry{}, false, nil
		}
		return MediaEntry{}, false, fmt.Errorf("catalog: get %s: %w", id, err)
	}
	return e, true, nil
}

// List returns every entry matching filter, ordered by path.
func (s *Store) List(ctx context.Context, filter Filter) ([]MediaEntry, error) {
	query := `SELECT ` + entryColumns + ` FROM media_entries WHERE 1=1`
	var args []any
	if filter.HasState {
		query += ` AND state = ?`
		args = append(args, string(filter.State))
	}
	if filter.Category != "" {
		query += ` AND category = ?`
		args = append(args, string(filter.Category))
	}
	query += ` ORDER BY path ASC`

	rows, err := s.queryWithRetry(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("catalog: list: %w", err)
	}
	entries, err := scanEntries(rows)
	if err != nil {
		return nil, fmt.Errorf("catalog: list: %w", err)
	}
	return entries, nil
}

// FindByPath returns the entry at path, if any.
func (s *Store) FindByPath(ctx context.Context, path string) (MediaEntry, bool, error) {
	row := s.queryRowWithRetry(ctx, `SELECT `+entryColumns+` FROM media_entries WHERE path = ?`, path)
	e, err := scanEntry(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return MediaEntry{}, false, nil
		}
		return MediaEntry{}, false, fmt.Errorf("catalog: find by path %s: %w", path, err)
	}
	return e, true, nil
}

// FindByContentHash returns the live (non-GONE) entry with the given
// content hash, if any.
func (s *Store) FindByContentHash(ctx context.Context, hash string) (MediaEntry, bool, error) {
	if hash == "" {
		return MediaEntry{}, false, nil
	}
	row := s.queryRowWithRetry(ctx, `SELECT `+entryColumns+` FROM media_entries WHERE content_hash = ? AND state != ?`, hash, string(StateGone))
	e, err := scanEntry(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return MediaEntry{}, false, nil
		}
		return MediaEntry{}, false, fmt.Errorf("catalog: find by content hash: %w", err)
	}
	return e, true, nil
}
