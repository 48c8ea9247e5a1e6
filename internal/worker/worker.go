// Package worker runs the claim/encode/verify/replace loop: it pulls the
// next ready entry from the catalog, invokes the external encoder, and
// either replaces the original file with a verified-smaller result or
// records why it could not.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"spacesaver/internal/catalog"
	"spacesaver/internal/faults"
	"spacesaver/internal/fileutil"
	"spacesaver/internal/probe"
	"spacesaver/internal/transcode"
)

// CategoryParams maps a catalog.Category to the encode parameters that
// category should run with.
type CategoryParams map[catalog.Category]transcode.Params

// Config carries the worker's tunables, lifted from the environment
// configuration table: per-category CRF/resolution caps, the target codec
// acceptance criteria are checked against, the duration tolerance, the
// workdir root new output is staged under, and the wake-up floor used
// when nothing is ready to claim.
type Config struct {
	WorkdirRoot        string
	TargetCodec        string
	DurationToleranceS float64
	WakeupFloor        time.Duration
	Params             CategoryParams
}

// Worker runs the claim/encode/verify loop against a single catalog.
type Worker struct {
	store     *catalog.Store
	inspector *probe.Inspector
	executor  transcode.Executor
	logger    *slog.Logger
	cfg       Config
	progress  Progress
}

// New constructs a Worker.
func New(store *catalog.Store, inspector *probe.Inspector, executor transcode.Executor, logger *slog.Logger, cfg Config) *Worker {
	if cfg.WakeupFloor <= 0 {
		cfg.WakeupFloor = time.Minute
	}
	if cfg.DurationToleranceS <= 0 {
		cfg.DurationToleranceS = 1.0
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{store: store, inspector: inspector, executor: executor, logger: logger, cfg: cfg}
}

// Progress returns the worker's current, non-durable progress snapshot.
func (w *Worker) Progress() Snapshot {
	return w.progress.Snapshot()
}

// Run claims and processes entries until ctx is canceled. It returns a
// non-nil error only when the catalog reports an invariant violation,
// which the design treats as fatal: the caller should abort the process
// rather than continue running against a catalog it can no longer trust.
func (w *Worker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		entry, ok, err := w.store.ClaimNext(ctx)
		if err != nil {
			w.logger.Error("worker: claim next failed", "error", err)
			w.store.WaitForWork(ctx, w.cfg.WakeupFloor)
			continue
		}
		if !ok {
			w.store.WaitForWork(ctx, w.cfg.WakeupFloor)
			continue
		}

		if err := w.process(ctx, entry); err != nil {
			if errors.Is(err, catalog.ErrInvariantViolation) {
				return err
			}
			w.logger.Error("worker: process entry failed", "entry_id", entry.ID, "error", err)
		}
	}
}

func (w *Worker) process(ctx context.Context, entry catalog.MediaEntry) error {
	if err := os.MkdirAll(w.cfg.WorkdirRoot, 0o755); err != nil {
		return w.finishFailed(ctx, entry, faults.Wrap(faults.ErrTransientIO, "worker", "mkdir", err.Error(), nil))
	}

	// workdir_path is deterministic from the entry id, per the design
	// notes: Recovery can always reconstruct where a crashed job's
	// scratch output would have landed. It must match the path the
	// executor actually writes to (see transcode.OutputPath).
	workdirPath := transcode.OutputPath(w.cfg.WorkdirRoot, entry.ID)
	if err := w.store.Begin(ctx, entry.ID, workdirPath); err != nil {
		if errors.Is(err, catalog.ErrInvariantViolation) {
			return err
		}
		return fmt.Errorf("worker: begin %s: %w", entry.ID, err)
	}
	keepOutput := false
	defer func() {
		if !keepOutput {
			_ = os.Remove(workdirPath)
		}
	}()

	w.progress.start(entry.ID)
	defer w.progress.finish()
	defer w.store.Wake()

	params := w.cfg.Params[entry.Category]
	outputPath, err := w.executor.Encode(ctx, entry.Path, workdirPath, params, func(p transcode.Progress) {
		w.progress.update(p.Percent, p.Stage, p.Message)
	})
	if err != nil {
		if ctx.Err() != nil {
			// Shutdown mid-encode: the entry stays IN_PROGRESS with its
			// workdir file in place for Recovery to reconcile.
			keepOutput = true
			return nil
		}
		detail := faults.Wrap(faults.ErrExternalTool, "worker", "encode", err.Error(), nil)
		return w.finishFailed(ctx, entry, detail)
	}

	return w.verifyAndReplace(ctx, entry, outputPath)
}

func (w *Worker) verifyAndReplace(ctx context.Context, entry catalog.MediaEntry, outputPath string) error {
	currentHash, err := fileutil.Sha256File(entry.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return w.store.MarkGone(ctx, entry.ID)
		}
		return w.finishFailed(ctx, entry, faults.Wrap(faults.ErrTransientIO, "worker", "verify", err.Error(), nil))
	}
	if currentHash != entry.PreHash {
		w.logger.Info("worker: source mutated mid-flight, discarding output", "entry_id", entry.ID)
		return w.store.Finish(ctx, entry.ID, catalog.Outcome{Kind: catalog.StatePending})
	}

	if !w.inspector.Readable(ctx, outputPath) {
		return w.finishFailed(ctx, entry, faults.Wrap(faults.ErrAcceptanceRejected, "worker", "verify", "output unreadable", nil))
	}
	newProbe, err := w.inspector.Inspect(ctx, outputPath)
	if err != nil {
		return w.finishFailed(ctx, entry, faults.Wrap(faults.ErrExternalTool, "worker", "probe-output", err.Error(), nil))
	}

	if reason := w.rejectReason(entry, newProbe); reason != "" {
		return w.finishFailed(ctx, entry, faults.Wrap(faults.ErrAcceptanceRejected, "worker", "verify", reason, nil))
	}

	if err := fileutil.ReplaceAtomically(outputPath, entry.Path); err != nil {
		return w.finishFailed(ctx, entry, faults.Wrap(faults.ErrTransientIO, "worker", "replace", err.Error(), nil))
	}

	w.logger.Info("worker: encode accepted", "entry_id", entry.ID,
		"old_size_bytes", entry.SizeBytes, "new_size_bytes", newProbe.SizeBytes)
	return w.store.Finish(ctx, entry.ID, catalog.Outcome{Kind: catalog.StateDone, Probe: newProbe})
}

// rejectReason applies the shared acceptance criteria: matching codec,
// strictly smaller output, and duration within tolerance.
func (w *Worker) rejectReason(entry catalog.MediaEntry, newProbe catalog.Probe) string {
	if w.cfg.TargetCodec != "" && !sameCodec(newProbe.Codec, w.cfg.TargetCodec) {
		return "codec mismatch"
	}
	if newProbe.SizeBytes >= entry.SizeBytes {
		return "output-not-smaller"
	}
	if entry.DurationS > 0 && absFloat(newProbe.DurationS-entry.DurationS) > w.cfg.DurationToleranceS {
		return "duration mismatch"
	}
	return ""
}

func (w *Worker) finishFailed(ctx context.Context, entry catalog.MediaEntry, cause error) error {
	w.logger.Warn("worker: job failed", "entry_id", entry.ID, "error", cause)
	return w.store.Finish(ctx, entry.ID, catalog.Outcome{Kind: catalog.StateFailed, LastError: cause.Error()})
}

func sameCodec(a, b string) bool {
	return a != "" && b != "" && normalizeCodec(a) == normalizeCodec(b)
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

func absFloat(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}
