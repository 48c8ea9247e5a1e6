// Package scanner walks the configured media roots, keeps the catalog in
// sync with what is actually on disk, and de-duplicates files that share
// content. It never touches the filesystem outside of reading: writes to
// the catalog are the only effect a scan produces.
package scanner

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"spacesaver/internal/catalog"
	"spacesaver/internal/probe"
)

// Root is one media directory to scan, paired with the category files
// under it are classified into.
type Root struct {
	Path     string
	Category catalog.Category
}

// Config carries the scanner's tunables.
type Config struct {
	Roots             []Root
	Extensions        []string
	TargetCodec       string
	BitrateFloorTVBPS int64
	BitrateFloorMovie int64
	RescanInterval    time.Duration
}

// Scanner keeps the catalog's view of the media roots current.
type Scanner struct {
	store     *catalog.Store
	inspector *probe.Inspector
	logger    *slog.Logger
	cfg       Config
	extSet    map[string]bool
}

// New constructs a Scanner.
func New(store *catalog.Store, inspector *probe.Inspector, logger *slog.Logger, cfg Config) *Scanner {
	if logger == nil {
		logger = slog.Default()
	}
	extSet := make(map[string]bool, len(cfg.Extensions))
	for _, ext := range cfg.Extensions {
		extSet[strings.ToLower(ext)] = true
	}
	return &Scanner{store: store, inspector: inspector, logger: logger, cfg: cfg, extSet: extSet}
}

// Run performs one scan pass: walk each root, reconcile catalog entries
// against what is found, classify newly discovered files, de-duplicate by
// content hash, and mark vanished files GONE. It is safe to call
// repeatedly; it is interruptible at file granularity via ctx.
func (s *Scanner) Run(ctx context.Context) error {
	seen := make(map[string]bool)

	for _, root := range s.cfg.Roots {
		if err := s.walkRoot(ctx, root, seen); err != nil {
			return err
		}
	}

	if err := s.markVanished(ctx, seen); err != nil {
		return err
	}
	return s.deduplicate(ctx)
}

// RunPeriodically calls Run once immediately, then on cfg.RescanInterval
// until ctx is canceled.
func (s *Scanner) RunPeriodically(ctx context.Context) error {
	if err := s.Run(ctx); err != nil {
		return err
	}
	interval := s.cfg.RescanInterval
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := s.Run(ctx); err != nil {
				s.logger.Error("scanner: rescan failed", "error", err)
			}
		}
	}
}

func (s *Scanner) walkRoot(ctx context.Context, root Root, seen map[string]bool) error {
	return filepath.WalkDir(root.Path, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if d.IsDir() {
			return nil
		}
		if !s.hasMediaExtension(path) {
			return nil
		}

		seen[path] = true
		return s.reconcileFile(ctx, path, root.Category)
	})
}

func (s *Scanner) hasMediaExtension(path string) bool {
	if len(s.extSet) == 0 {
		return true
	}
	return s.extSet[strings.ToLower(filepath.Ext(path))]
}

// reconcileFile applies the cheap-probe-first strategy: only when size or
// mtime disagree with the catalog's record does it pay for a full probe
// (hash plus ffprobe metadata).
func (s *Scanner) reconcileFile(ctx context.Context, path string, category catalog.Category) error {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	existing, found, err := s.store.FindByPath(ctx, path)
	if err != nil {
		return err
	}
	if found && !s.changed(existing, info) {
		return nil
	}

	fullProbe, err := s.inspector.Inspect(ctx, path)
	if err != nil {
		s.logger.Warn("scanner: probe failed, skipping", "path", path, "error", err)
		return nil
	}
	fullProbe.ModTime = info.ModTime()

	id, inserted, err := s.store.UpsertByPath(ctx, path, category, fullProbe)
	if err != nil {
		return err
	}
	if inserted {
		floor := s.cfg.BitrateFloorMovie
		if category == catalog.CategoryTV {
			floor = s.cfg.BitrateFloorTVBPS
		}
		if _, err := s.store.Classify(ctx, id, catalog.ClassifyParams{
			TargetCodec:     s.cfg.TargetCodec,
			BitrateFloorBPS: floor,
		}); err != nil {
			return err
		}
		s.store.Wake()
	}
	return nil
}

// changed applies the cheap (path, size, mtime) pre-filter: a full re-probe
// is only paid for when size or mtime disagree with the catalog's record.
// Path equality is the caller's responsibility (changed is only reached via
// FindByPath for this exact path).
func (s *Scanner) changed(existing catalog.MediaEntry, info os.FileInfo) bool {
	if existing.SizeBytes != info.Size() {
		return true
	}
	if !existing.ModTime.Equal(info.ModTime()) {
		return true
	}
	return false
}

// markVanished transitions every catalog entry whose path was not
// encountered during this pass to GONE, except entries already terminal
// as GONE.
func (s *Scanner) markVanished(ctx context.Context, seen map[string]bool) error {
	entries, err := s.store.List(ctx, catalog.Filter{})
	if err != nil {
		return err
	}
	for _, entry := range entries {
		if entry.State == catalog.StateGone {
			continue
		}
		if entry.State == catalog.StateQueued || entry.State == catalog.StateInProgress {
			// Recovery owns transient states; the scanner does not race it.
			continue
		}
		if seen[entry.Path] {
			continue
		}
		if _, err := os.Stat(entry.Path); err == nil {
			continue
		}
		if err := s.store.MarkGone(ctx, entry.ID); err != nil {
			return err
		}
	}
	return nil
}

// deduplicate finds live entries that share a content hash (a file copied
// or hard-linked into two roots) and keeps only the lexicographically
// earlier path, marking the later one GONE and removing it from disk.
func (s *Scanner) deduplicate(ctx context.Context) error {
	entries, err := s.store.List(ctx, catalog.Filter{})
	if err != nil {
		return err
	}

	byHash := make(map[string][]catalog.MediaEntry)
	for _, entry := range entries {
		if entry.ContentHash == "" || entry.State == catalog.StateGone {
			continue
		}
		if entry.State == catalog.StateQueued || entry.State == catalog.StateInProgress {
			continue
		}
		byHash[entry.ContentHash] = append(byHash[entry.ContentHash], entry)
	}

	for _, group := range byHash {
		if len(group) < 2 {
			continue
		}
		sort.Slice(group, func(i, j int) bool { return group[i].Path < group[j].Path })
		keep := group[0]
		for _, dup := range group[1:] {
			s.logger.Info("scanner: de-duplicating by content hash", "kept_path", keep.Path, "removed_path", dup.Path)
			if err := os.Remove(dup.Path); err != nil && !os.IsNotExist(err) {
				s.logger.Warn("scanner: failed to remove duplicate file", "path", dup.Path, "error", err)
				continue
			}
			if err := s.store.MarkGone(ctx, dup.ID); err != nil {
				return err
			}
		}
	}
	return nil
}
