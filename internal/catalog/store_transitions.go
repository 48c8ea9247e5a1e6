package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

func nowString() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}

// UpsertByPath implements the catalog's upsert_by_path operation. If an
// entry already exists at path, its probed fields are refreshed in place.
// Otherwise, if a live entry exists elsewhere with the same content hash,
// that entry is treated as moved: its path is updated and no new entry is
// created. Failing both, a new entry is inserted in state NEW.
func (s *Store) UpsertByPath(ctx context.Context, path string, category Category, probe Probe) (id string, inserted bool, err error) {
	if existing, ok, ferr := s.FindByPath(ctx, path); ferr != nil {
		return "", false, fmt.Errorf("catalog: upsert %s: %w", path, ferr)
	} else if ok {
		if err := s.refreshProbe(ctx, existing.ID, probe); err != nil {
			return "", false, fmt.Errorf("catalog: upsert %s: %w", path, err)
		}
		return existing.ID, false, nil
	}

	if probe.ContentHash != "" {
		if moved, ok, ferr := s.FindByContentHash(ctx, probe.ContentHash); ferr != nil {
			return "", false, fmt.Errorf("catalog: upsert %s: %w", path, ferr)
		} else if ok {
			_, err := s.execWithRetry(ctx, `UPDATE media_entries SET path = ?, updated_at = ? WHERE id = ?`, path, nowString(), moved.ID)
			if err != nil {
				return "", false, fmt.Errorf("catalog: upsert %s (move): %w", path, err)
			}
			if err := s.refreshProbe(ctx, moved.ID, probe); err != nil {
				return "", false, fmt.Errorf("catalog: upsert %s (move): %w", path, err)
			}
			return moved.ID, false, nil
		}
	}

	newID := uuid.NewString()
	_, err = s.execWithRetry(ctx, `
		INSERT INTO media_entries (
			id, path, content_hash, size_bytes, codec, width, height,
			bit_rate_bps, duration_s, mod_time, category, state, attempts, last_error,
			workdir_path, pre_hash, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0, '', '', '', ?)
	`, newID, path, probe.ContentHash, probe.SizeBytes, probe.Codec, probe.Width, probe.Height,
		probe.BitRateBPS, probe.DurationS, modTimeString(probe.ModTime), string(category), string(StateNew), nowString())
	if err != nil {
		return "", false, fmt.Errorf("catalog: insert %s: %w", path, err)
	}
	return newID, true, nil
}

func modTimeString(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func (s *Store) refreshProbe(ctx context.Context, id string, probe Probe) error {
	_, err := s.execWithRetry(ctx, `
		UPDATE media_entries SET
			content_hash = ?, size_bytes = ?, codec = ?, width = ?, height = ?,
			bit_rate_bps = ?, duration_s = ?, mod_time = ?, updated_at = ?
		WHERE id = ?
	`, probe.ContentHash, probe.SizeBytes, probe.Codec, probe.Width, probe.Height,
		probe.BitRateBPS, probe.DurationS, modTimeString(probe.ModTime), nowString(), id)
	return err
}

// ClassifyParams carries the configuration classify needs to decide between
// SKIP and PENDING: the codec encodes are expected to converge to, and the
// minimum bitrate below which a file of the given category is left alone.
type ClassifyParams struct {
	TargetCodec string
	BitrateFloorBPS int64
}

// Classify implements the catalog's classify operation: given the entry's
// already-probed fields, it deterministically decides SKIP or PENDING and
// persists the decision. Only entries in state NEW are classified; calling
// it on any other state is a no-op that returns the entry's current state.
func (s *Store) Classify(ctx context.Context, id string, params ClassifyParams) (State, error) {
	entry, ok, err := s.Get(ctx, id)
	if err != nil {
		return "", fmt.Errorf("catalog: classify %s: %w", id, err)
	}
	if !ok {
		return "", fmt.Errorf("catalog: classify %s: %w", id, ErrNotFound)
	}
	if entry.State != StateNew {
		return entry.State, nil
	}

	next := StatePending
	if params.TargetCodec != "" && sameCodec(entry.Codec, params.TargetCodec) {
		next = StateSkip
	} else if params.BitrateFloorBPS > 0 && entry.BitRateBPS > 0 && entry.BitRateBPS < params.BitrateFloorBPS {
		next = StateSkip
	}

	_, err = s.execWithRetry(ctx, `UPDATE media_entries SET state = ?, updated_at = ? WHERE id = ? AND state = ?`,
		string(next), nowString(), id, string(StateNew))
	if err != nil {
		return "", fmt.Errorf("catalog: classify %s: %w", id, err)
	}
	return next, nil
}

func sameCodec(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	return normalizeCodec(a) == normalizeCodec(b)
}

func normalizeCodec(c string) string {
	switch c {
	case "h265", "hevc", "HEVC", "H265", "H.265":
		return "hevc"
	case "h264", "avc", "AVC", "H264", "H.264":
		return "avc"
	default:
		return c
	}
}

// ClaimNext implements the catalog's claim_next operation: atomically
// selects the best PENDING entry (tie-break: largest size_bytes, then
// oldest updated_at), transitions it to QUEUED, and pins pre_hash. Returns
// ok = false if nothing is ready or an entry is already IN_PROGRESS.
func (s *Store) ClaimNext(ctx context.Context) (entry MediaEntry, ok bool, err error) {
	err = s.withTx(ctx, func(tx *sql.Tx) error {
		var inProgress int
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM media_entries WHERE state = ?`, string(StateInProgress)).Scan(&inProgress); err != nil {
			return err
		}
		if inProgress > 0 {
			return nil
		}

		row := tx.QueryRowContext(ctx, `
			SELECT `+entryColumns+` FROM media_entries
			WHERE state = ?
			ORDER BY size_bytes DESC, updated_at ASC
			LIMIT 1
		`, string(StatePending))
		candidate, scanErr := scanEntry(row)
		if scanErr != nil {
			if scanErr == sql.ErrNoRows {
				return nil
			}
			return scanErr
		}

		if _, err := tx.ExecContext(ctx, `
			UPDATE media_entries SET state = ?, pre_hash = ?, updated_at = ?
			WHERE id = ? AND state = ?
		`, string(StateQueued), candidate.ContentHash, nowString(), candidate.ID, string(StatePending)); err != nil {
			return err
		}

		candidate.State = StateQueued
		candidate.PreHash = candidate.ContentHash
		entry = candidate
		ok = true
		return nil
	})
	if err != nil {
		return MediaEntry{}, false, fmt.Errorf("catalog: claim next: %w", err)
	}
	return entry, ok, nil
}

// Begin implements the catalog's begin operation: transitions
// QUEUED -> IN_PROGRESS, recording workdir_path and incrementing attempts.
// Returns ErrInvariantViolation if another entry is already IN_PROGRESS.
func (s *Store) Begin(ctx context.Context, id, workdirPath string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		var inProgress int
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM media_entries WHERE state = ? AND id != ?`, string(StateInProgress), id).Scan(&inProgress); err != nil {
			return err
		}
		if inProgress > 0 {
			return ErrInvariantViolation
		}

		res, err := tx.ExecContext(ctx, `
			UPDATE media_entries SET state = ?, workdir_path = ?, attempts = attempts + 1, updated_at = ?
			WHERE id = ? AND state = ?
		`, string(StateInProgress), workdirPath, nowString(), id, string(StateQueued))
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return fmt.Errorf("catalog: begin %s: %w (not in QUEUED state)", id, ErrNotFound)
		}
		return nil
	})
}

// Outcome describes the result the worker reports to finish.
type Outcome struct {
	// Kind is one of the terminal transitions finish may apply:
	// StateDone, StateFailed, or StatePending (source mutated mid-flight).
	Kind State

	// Result fields populated when Kind == StateDone: the replaced file's
	// new probed characteristics.
	Probe Probe

	// LastError is recorded when Kind == StateFailed.
	LastError string
}

// Finish implements the catalog's finish operation: transitions
// IN_PROGRESS -> {DONE, FAILED, PENDING} according to outcome, clearing
// workdir_path and pre_hash in every case. The PENDING outcome also resets
// a QUEUED entry, which Recovery relies on.
func (s *Store) Finish(ctx context.Context, id string, outcome Outcome) error {
	switch outcome.Kind {
	case StateDone:
		_, err := s.execWithRetry(ctx, `
			UPDATE media_entries SET
				state = ?, workdir_path = '', pre_hash = '', last_error = '',
				content_hash = ?, size_bytes = ?, codec = ?, width = ?, height = ?,
				bit_rate_bps = ?, duration_s = ?, mod_time = ?, updated_at = ?
			WHERE id = ? AND state = ?
		`, string(StateDone), outcome.Probe.ContentHash, outcome.Probe.SizeBytes, outcome.Probe.Codec,
			outcome.Probe.Width, outcome.Probe.Height, outcome.Probe.BitRateBPS, outcome.Probe.DurationS,
			modTimeString(outcome.Probe.ModTime), nowString(), id, string(StateInProgress))
		if err != nil {
			return fmt.Errorf("catalog: finish %s (done): %w", id, err)
		}
		return nil
	case StateFailed:
		_, err := s.execWithRetry(ctx, `
			UPDATE media_entries SET state = ?, workdir_path = '', pre_hash = '', last_error = ?, updated_at = ?
			WHERE id = ? AND state = ?
		`, string(StateFailed), outcome.LastError, nowString(), id, string(StateInProgress))
		if err != nil {
			return fmt.Errorf("catalog: finish %s (failed): %w", id, err)
		}
		return nil
	case StatePending:
		_, err := s.execWithRetry(ctx, `
			UPDATE media_entries SET state = ?, workdir_path = '', pre_hash = '', last_error = '', updated_at = ?
			WHERE id = ? AND state IN (?, ?)
		`, string(StatePending), nowString(), id, string(StateInProgress), string(StateQueued))
		if err != nil {
			return fmt.Errorf("catalog: finish %s (pending): %w", id, err)
		}
		return nil
	default:
		return fmt.Errorf("catalog: finish %s: unsupported outcome kind %q", id, outcome.Kind)
	}
}

// MarkGone implements the catalog's mark_gone operation: transitions any
// state to GONE when the file is no longer present on disk.
func (s *Store) MarkGone(ctx context.Context, id string) error {
	_, err := s.execWithRetry(ctx, `
		UPDATE media_entries SET state = ?, workdir_path = '', pre_hash = '', updated_at = ?
		WHERE id = ?
	`, string(StateGone), nowString(), id)
	if err != nil {
		return fmt.Errorf("catalog: mark gone %s: %w", id, err)
	}
	return nil
}

// Enqueue implements the catalog's enqueue operation: an explicit request
// to reprocess an entry currently in SKIP, FAILED, or DONE. Returns
// ErrGone if the entry is GONE, and ok = false for any other state that is
// not a valid source (for example IN_PROGRESS).
func (s *Store) Enqueue(ctx context.Context, id string) (ok bool, err error) {
	entry, found, err := s.Get(ctx, id)
	if err != nil {
		return false, fmt.Errorf("catalog: enqueue %s: %w", id, err)
	}
	if !found {
		return false, fmt.Errorf("catalog: enqueue %s: %w", id, ErrNotFound)
	}
	if entry.State == StateGone {
		return false, ErrGone
	}
	switch entry.State {
	case StateSkip, StateFailed, StateDone:
	default:
		return false, nil
	}

	res, err := s.execWithRetry(ctx, `UPDATE media_entries SET state = ?, updated_at = ? WHERE id = ? AND state = ?`,
		string(StatePending), nowString(), id, string(entry.State))
	if err != nil {
		return false, fmt.Errorf("catalog: enqueue %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// EnqueueBest implements the catalog's enqueue_best operation: promotes the
// best SKIP/FAILED candidate to PENDING using the same tie-break as
// claim_next, and returns the chosen id. ok = false if no candidate exists.
func (s *Store) EnqueueBest(ctx context.Context) (id string, ok bool, err error) {
	err = s.withTx(ctx, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx, `
			SELECT `+entryColumns+` FROM media_entries
			WHERE state IN (?, ?)
			ORDER BY size_bytes DESC, updated_at ASC
			LIMIT 1
		`, string(StateSkip), string(StateFailed))
		candidate, scanErr := scanEntry(row)
		if scanErr != nil {
			if scanErr == sql.ErrNoRows {
				return nil
			}
			return scanErr
		}
		if _, err := tx.ExecContext(ctx, `UPDATE media_entries SET state = ?, updated_at = ? WHERE id = ? AND state = ?`,
			string(StatePending), nowString(), candidate.ID, string(candidate.State)); err != nil {
			return err
		}
		id = candidate.ID
		ok = true
		return nil
	})
	if err != nil {
		return "", false, fmt.Errorf("catalog: enqueue best: %w", err)
	}
	return id, ok, nil
}

func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	return retryOnBusy(func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		if err := fn(tx); err != nil {
			_ = tx.Rollback()
			return err
		}
		return tx.Commit()
	})
}
