package recovery

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"spacesaver/internal/catalog"
	"spacesaver/internal/fileutil"
	"spacesaver/internal/probe"
	"spacesaver/internal/testsupport"
)

const hevcProbeJSON = `{
  "streams": [
    {"index": 0, "codec_name": "hevc", "codec_type": "video", "width": 1920, "height": 1080}
  ],
  "format": {"duration": "100.0", "size": "500", "bit_rate": "500000"}
}`

func seedInProgress(t *testing.T, store *catalog.Store, sourcePath string, sourceBytes []byte, workdirPath string) catalog.MediaEntry {
	t.Helper()
	ctx := context.Background()
	if err := os.WriteFile(sourcePath, sourceBytes, 0o644); err != nil {
		t.Fatal(err)
	}
	hash, err := fileutil.Sha256File(sourcePath)
	if err != nil {
		t.Fatal(err)
	}
	id, _, err := store.UpsertByPath(ctx, sourcePath, catalog.CategoryMovie, catalog.Probe{
		ContentHash: hash, SizeBytes: int64(len(sourceBytes)), Codec: "h264", DurationS: 100.0,
	})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if _, err := store.Classify(ctx, id, catalog.ClassifyParams{TargetCodec: "hevc"}); err != nil {
		t.Fatalf("classify: %v", err)
	}
	entry, _, err := store.Get(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if entry.State == catalog.StateSkip {
		t.Fatal("test entry unexpectedly classified SKIP")
	}
	claimed, ok, err := store.ClaimNext(ctx)
	if err != nil || !ok {
		t.Fatalf("claim next: ok=%v err=%v", ok, err)
	}
	if err := store.Begin(ctx, claimed.ID, workdirPath); err != nil {
		t.Fatalf("begin: %v", err)
	}
	entry, _, err = store.Get(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	return entry
}

func TestRunMarksGoneWhenSourceMissing(t *testing.T) {
	store := testsupport.MustOpenStore(t)
	dir := t.TempDir()
	source := filepath.Join(dir, "movie.mkv")
	workdir := filepath.Join(dir, "movie.mkv.tmp")

	entry := seedInProgress(t, store, source, []byte("original content"), workdir)
	if err := os.Remove(source); err != nil {
		t.Fatal(err)
	}

	runner := New(store, probe.New(testsupport.StubBinary(t, hevcProbeJSON)), nil, "hevc", 1.0)
	if err := runner.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}

	got, found, err := store.Get(context.Background(), entry.ID)
	if err != nil || !found {
		t.Fatalf("get: found=%v err=%v", found, err)
	}
	if got.State != catalog.StateGone {
		t.Fatalf("expected GONE, got %s", got.State)
	}
}

func TestRunResetsToPendingOnSourceMutation(t *testing.T) {
	store := testsupport.MustOpenStore(t)
	dir := t.TempDir()
	source := filepath.Join(dir, "movie.mkv")
	workdir := filepath.Join(dir, "movie.mkv.tmp")

	entry := seedInProgress(t, store, source, []byte("original content"), workdir)
	if err := os.WriteFile(source, []byte("mutated content, different"), 0o644); err != nil {
		t.Fatal(err)
	}

	runner := New(store, probe.New(testsupport.StubBinary(t, hevcProbeJSON)), nil, "hevc", 1.0)
	if err := runner.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}

	got, found, err := store.Get(context.Background(), entry.ID)
	if err != nil || !found {
		t.Fatalf("get: found=%v err=%v", found, err)
	}
	if got.State != catalog.StatePending {
		t.Fatalf("expected PENDING, got %s", got.State)
	}
	if got.WorkdirPath != "" || got.PreHash != "" {
		t.Fatalf("expected workdir/pre_hash cleared, got %+v", got)
	}
}

func TestRunResetsToPendingWhenWorkdirMissing(t *testing.T) {
	store := testsupport.MustOpenStore(t)
	dir := t.TempDir()
	source := filepath.Join(dir, "movie.mkv")
	workdir := filepath.Join(dir, "movie.mkv.tmp")

	entry := seedInProgress(t, store, source, []byte("original content"), workdir)

	runner := New(store, probe.New(testsupport.StubBinary(t, hevcProbeJSON)), nil, "hevc", 1.0)
	if err := runner.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}

	got, found, err := store.Get(context.Background(), entry.ID)
	if err != nil || !found {
		t.Fatalf("get: found=%v err=%v", found, err)
	}
	if got.State != catalog.StatePending {
		t.Fatalf("expected PENDING, got %s", got.State)
	}
}

func TestRunSalvagesAcceptableWorkdirFile(t *testing.T) {
	store := testsupport.MustOpenStore(t)
	dir := t.TempDir()
	source := filepath.Join(dir, "movie.mkv")
	workdir := filepath.Join(dir, "movie.mkv.tmp")

	original := make([]byte, 600)
	entry := seedInProgress(t, store, source, original, workdir)
	if err := os.WriteFile(workdir, []byte("smaller salvaged output"), 0o644); err != nil {
		t.Fatal(err)
	}

	runner := New(store, probe.New(testsupport.StubBinary(t, hevcProbeJSON)), nil, "hevc", 1.0)
	if err := runner.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}

	got, found, err := store.Get(context.Background(), entry.ID)
	if err != nil || !found {
		t.Fatalf("get: found=%v err=%v", found, err)
	}
	if got.State != catalog.StateDone {
		t.Fatalf("expected DONE, got %s (last_error=%s)", got.State, got.LastError)
	}
	data, err := os.ReadFile(source)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "smaller salvaged output" {
		t.Fatalf("expected source replaced with salvaged content, got %q", data)
	}
}

func TestRunRejectsSalvageWhenCodecMismatched(t *testing.T) {
	store := testsupport.MustOpenStore(t)
	dir := t.TempDir()
	source := filepath.Join(dir, "movie.mkv")
	workdir := filepath.Join(dir, "movie.mkv.tmp")

	original := make([]byte, 600)
	entry := seedInProgress(t, store, source, original, workdir)
	if err := os.WriteFile(workdir, []byte("smaller but wrong codec"), 0o644); err != nil {
		t.Fatal(err)
	}

	// ffprobe stub reports h264, target codec is hevc: mismatch.
	mismatchJSON := `{
  "streams": [{"index": 0, "codec_name": "h264", "codec_type": "video", "width": 1920, "height": 1080}],
  "format": {"duration": "100.0", "size": "400", "bit_rate": "400000"}
}`
	runner := New(store, probe.New(testsupport.StubBinary(t, mismatchJSON)), nil, "hevc", 1.0)
	if err := runner.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}

	got, found, err := store.Get(context.Background(), entry.ID)
	if err != nil || !found {
		t.Fatalf("get: found=%v err=%v", found, err)
	}
	if got.State != catalog.StatePending {
		t.Fatalf("expected PENDING on salvage rejection, got %s", got.State)
	}
	if _, err := os.Stat(workdir); !os.IsNotExist(err) {
		t.Fatal("expected rejected workdir file to be removed")
	}
}

func TestRunIsIdempotent(t *testing.T) {
	store := testsupport.MustOpenStore(t)
	dir := t.TempDir()
	source := filepath.Join(dir, "movie.mkv")
	workdir := filepath.Join(dir, "movie.mkv.tmp")
	_ = seedInProgress(t, store, source, []byte("original"), workdir)

	runner := New(store, probe.New(testsupport.StubBinary(t, hevcProbeJSON)), nil, "hevc", 1.0)
	if err := runner.Run(context.Background()); err != nil {
		t.Fatalf("first run: %v", err)
	}
	if err := runner.Run(context.Background()); err != nil {
		t.Fatalf("second run: %v", err)
	}

	entries, err := store.List(context.Background(), catalog.Filter{})
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		if e.State == catalog.StateQueued || e.State == catalog.StateInProgress {
			t.Fatalf("expected no entry left QUEUED/IN_PROGRESS, found %s in %s", e.ID, e.State)
		}
	}
}
