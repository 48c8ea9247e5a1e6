package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// Store is the durable, single-writer handle onto the catalog database. It
// wraps a *sql.DB configured for WAL journaling and serializes callers that
// race against SQLite's own busy-writer errors with bounded backoff, rather
// than surfacing SQLITE_BUSY to every caller.
type Store struct {
	db   *sql.DB
	path string

	cond *sync.Cond
	mu   sync.Mutex
}

const (
	sqliteBusyCode          = 5
	busyRetryAttempts       = 5
	busyRetryInitialBackoff = 10 * time.Millisecond
	busyRetryMaxBackoff     = 200 * time.Millisecond
)

// Open creates or opens the catalog database at path, applying pragmas for
// WAL journaling, foreign key enforcement, and a busy timeout, then
// validates the schema and runs an integrity check. If the existing file
// is corrupt or at an incompatible schema version, it is discarded and
// recreated empty (a warning is logged) rather than failing the process —
// the scanner will rebuild the catalog on its next pass. Open only
// returns an error when even a freshly recreated store cannot be opened.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("catalog: open: path is required")
	}

	db, err := openSQLite(path)
	if err != nil {
		return nil, err
	}

	if err := validate(db); err != nil {
		_ = db.Close()
		slog.Default().Warn("catalog: store invalid at startup, discarding and recreating empty",
			"path", path, "error", err)

		if rmErr := discardStoreFiles(path); rmErr != nil {
			return nil, fmt.Errorf("catalog: discard corrupt store %s: %w", path, rmErr)
		}

		db, err = openSQLite(path)
		if err != nil {
			return nil, err
		}
		if err := validate(db); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("catalog: recreate store %s: %w", path, err)
		}
	}

	s := &Store{db: db, path: path}
	s.cond = sync.NewCond(&s.mu)
	return s, nil
}

func openSQLite(path string) (*sql.DB, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("catalog: open %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)
	return db, nil
}

// validate seeds or checks the schema version, then runs a SQLite
// integrity check. Either failure is treated as a discard-and-recreate
// condition by Open.
func validate(db *sql.DB) error {
	if err := initSchema(db); err != nil {
		return err
	}
	var result string
	if err := db.QueryRow(`PRAGMA integrity_check`).Scan(&result); err != nil {
		return fmt.Errorf("catalog: integrity check: %w", err)
	}
	if result != "ok" {
		return fmt.Errorf("catalog: integrity check failed: %s", result)
	}
	return nil
}

// discardStoreFiles removes the database file and any WAL/journal
// siblings SQLite may have left alongside it, so the next open starts
// from nothing.
func discardStoreFiles(path string) error {
	for _, suffix := range []string{"", "-wal", "-shm", "-journal"} {
		if err := os.Remove(path + suffix); err != nil && !os.IsNotExist(err) {
			return err
		}
	}
	return nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the filesystem path the store was opened against.
func (s *Store) Path() string {
	return s.path
}

// Wake unblocks any goroutine parked in WaitForWork. Called after writes
// that might make new work available (upsert, enqueue, enqueue_best).
func (s *Store) Wake() {
	s.mu.Lock()
	s.cond.Broadcast()
	s.mu.Unlock()
}

// WaitForWork blocks until Wake is called, the floor duration elapses, or
// ctx is done. It returns promptly so the worker loop can re-poll on a
// floor even if every wake-up is missed.
func (s *Store) WaitForWork(ctx context.Context, floor time.Duration) {
	done := make(chan struct{})
	timer := time.AfterFunc(floor, func() {
		s.mu.Lock()
		s.cond.Broadcast()
		s.mu.Unlock()
	})
	defer timer.Stop()

	go func() {
		select {
		case <-ctx.Done():
			s.mu.Lock()
			s.cond.Broadcast()
			s.mu.Unlock()
		case <-done:
		}
	}()

	s.mu.Lock()
	s.cond.Wait()
	s.mu.Unlock()
	close(done)
}

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

func retryOnBusy(fn func() error) error {
	backoff := busyRetryInitialBackoff
	var lastErr error
	for attempt := 0; attempt < busyRetryAttempts; attempt++ {
		lastErr = fn()
		if lastErr == nil || !isSQLiteBusy(lastErr) {
			return lastErr
		}
		jitter := time.Duration(rand.Int63n(int64(backoff) + 1))
		time.Sleep(backoff + jitter)
		backoff *= 2
		if backoff > busyRetryMaxBackoff {
			backoff = busyRetryMaxBackoff
		}
	}
	return lastErr
}

func (s *Store) execWithRetry(ctx context.Context, query string, args ...any) (sql.Result, error) {
	var result sql.Result
	err := retryOnBusy(func() error {
		var innerErr error
		result, innerErr = s.db.ExecContext(ctx, query, args...)
		return innerErr
	})
	return result, err
}

func (s *Store) queryRowWithRetry(ctx context.Context, query string, args ...any) *sql.Row {
	var row *sql.Row
	_ = retryOnBusy(func() error {
		row = s.db.QueryRowContext(ctx, query, args...)
		return nil
	})
	return row
}

func (s *Store) queryWithRetry(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	var rows *sql.Rows
	err := retryOnBusy(func() error {
		var innerErr error
		rows, innerErr = s.db.QueryContext(ctx, query, args...)
		return innerErr
	})
	return rows, err
}

// HealthReport summarizes the catalog's self-diagnostic check.
type HealthReport struct {
	SchemaVersion   int
	TableExists     bool
	RowCount        int
	IntegrityResult string
	OK              bool
}

// CheckHealth runs the validity check named in the catalog design: schema
// version, table presence, row count, and a SQLite integrity check.
func (s *Store) CheckHealth(ctx context.Context) (HealthReport, error) {
	var report HealthReport

	if err := s.db.QueryRowContext(ctx, `SELECT version FROM schema_version LIMIT 1`).Scan(&report.SchemaVersion); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return report, nil
		}
		return report, fmt.Errorf("catalog: health: read schema version: %w", err)
	}
	report.TableExists = true

	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM media_entries`).Scan(&report.RowCount); err != nil {
		return report, fmt.Errorf("catalog: health: count rows: %w", err)
	}

	if err := s.db.QueryRowContext(ctx, `PRAGMA integrity_check`).Scan(&report.IntegrityResult); err != nil {
		return report, fmt.Errorf("catalog: health: integrity check: %w", err)
	}

	report.OK = report.TableExists && report.SchemaVersion == CurrentSchemaVersion && report.IntegrityResult == "ok"
	return report, nil
}
