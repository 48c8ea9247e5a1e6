// Package recovery reconciles the catalog with what is actually on disk
// at startup, before the scanner or worker are allowed to touch anything.
// It leaves no entry in a transient state: every QUEUED or IN_PROGRESS
// entry is either salvaged, reset, or marked GONE.
package recovery

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"spacesaver/internal/catalog"
	"spacesaver/internal/fileutil"
	"spacesaver/internal/probe"
)

// Runner performs the recovery pass.
type Runner struct {
	store     *catalog.Store
	inspector *probe.Inspector
	logger    *slog.Logger

	targetCodec  string
	durationTolS float64
}

// New constructs a Runner.
func New(store *catalog.Store, inspector *probe.Inspector, logger *slog.Logger, targetCodec string, durationToleranceS float64) *Runner {
	return &Runner{store: store, inspector: inspector, logger: logger, targetCodec: targetCodec, durationTolS: durationToleranceS}
}

// Run executes one recovery pass. It is idempotent: running it twice is a
// no-op after the first pass, because the first pass leaves no entry in
// QUEUED or IN_PROGRESS.
func (r *Runner) Run(ctx context.Context) error {
	for _, state := range []catalog.State{catalog.StateQueued, catalog.StateInProgress} {
		entries, err := r.store.List(ctx, catalog.Filter{State: state, HasState: true})
		if err != nil {
			return fmt.Errorf("recovery: list %s entries: %w", state, err)
		}
		for _, entry := range entries {
			if err := r.reconcile(ctx, entry); err != nil {
				return fmt.Errorf("recovery: reconcile %s: %w", entry.ID, err)
			}
		}
	}
	return nil
}

func (r *Runner) reconcile(ctx context.Context, entry catalog.MediaEntry) error {
	if _, err := os.Stat(entry.Path); err != nil {
		if os.IsNotExist(err) {
			r.logf(entry.ID, "recovery: source file gone, marking GONE")
			return r.store.MarkGone(ctx, entry.ID)
		}
		return fmt.Errorf("stat %s: %w", entry.Path, err)
	}

	currentHash, err := fileutil.Sha256File(entry.Path)
	if err != nil {
		return fmt.Errorf("hash %s: %w", entry.Path, err)
	}
	if entry.PreHash != "" && currentHash != entry.PreHash {
		r.logf(entry.ID, "recovery: source mutated mid-flight, resetting to PENDING")
		r.discardWorkdir(entry)
		return r.store.Finish(ctx, entry.ID, catalog.Outcome{Kind: catalog.StatePending})
	}

	if entry.WorkdirPath == "" {
		return r.store.Finish(ctx, entry.ID, catalog.Outcome{Kind: catalog.StatePending})
	}

	if _, err := os.Stat(entry.WorkdirPath); err != nil {
		if os.IsNotExist(err) {
			return r.store.Finish(ctx, entry.ID, catalog.Outcome{Kind: catalog.StatePending})
		}
		return fmt.Errorf("stat %s: %w", entry.WorkdirPath, err)
	}

	accepted, newProbe, reason := r.salvageAccept(ctx, entry)
	if !accepted {
		r.logf(entry.ID, "recovery: salvage rejected: "+reason)
		r.discardWorkdir(entry)
		return r.store.Finish(ctx, entry.ID, catalog.Outcome{Kind: catalog.StatePending})
	}

	if err := fileutil.ReplaceAtomically(entry.WorkdirPath, entry.Path); err != nil {
		return fmt.Errorf("salvage replace %s: %w", entry.Path, err)
	}
	r.logf(entry.ID, "recovery: salvage accepted, replacing original")
	return r.store.Finish(ctx, entry.ID, catalog.Outcome{Kind: catalog.StateDone, Probe: newProbe})
}

// salvageAccept applies the acceptance criteria shared with the worker's
// verify step: matching codec, strictly smaller, duration within
// tolerance, and readable end to end.
func (r *Runner) salvageAccept(ctx context.Context, entry catalog.MediaEntry) (bool, catalog.Probe, string) {
	if !r.inspector.Readable(ctx, entry.WorkdirPath) {
		return false, catalog.Probe{}, "unreadable"
	}
	p, err := r.inspector.Inspect(ctx, entry.WorkdirPath)
	if err != nil {
		return false, catalog.Probe{}, "probe failed: " + err.Error()
	}
	if !sameCodec(p.Codec, r.targetCodec) {
		return false, catalog.Probe{}, "codec mismatch"
	}
	if p.SizeBytes >= entry.SizeBytes {
		return false, catalog.Probe{}, "output-not-smaller"
	}
	tolerance := r.durationTolS
	if tolerance <= 0 {
		tolerance = 1.0
	}
	if entry.DurationS > 0 && absFloat(p.DurationS-entry.DurationS) > tolerance {
		return false, catalog.Probe{}, "duration mismatch"
	}
	return true, p, ""
}

func (r *Runner) discardWorkdir(entry catalog.MediaEntry) {
	if entry.WorkdirPath == "" {
		return
	}
	if err := os.Remove(entry.WorkdirPath); err != nil && !os.IsNotExist(err) {
		r.logf(entry.ID, "recovery: failed to remove workdir file: "+err.Error())
	}
}

func (r *Runner) logf(id, msg string) {
	if r.logger != nil {
		r.logger.Info(msg, "entry_id", id)
	}
}

func sameCodec(a, b string) bool {
	return a != "" && b != "" && normalize(a) == normalize(b)
}

func normalize(c string) string {
	switch c {
	case "h265", "hevc", "HEVC", "H265", "H.265":
		return "hevc"
	default:
		return c
	}
}

func absFloat(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}
