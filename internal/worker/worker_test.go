package worker

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"spacesaver/internal/catalog"
	"spacesaver/internal/fileutil"
	"spacesaver/internal/probe"
	"spacesaver/internal/testsupport"
	"spacesaver/internal/transcode"
)

const hevcSmallOutputJSON = `{
  "streams": [{"index": 0, "codec_name": "hevc", "codec_type": "video", "width": 1920, "height": 1080}],
  "format": {"duration": "100.0", "size": "100", "bit_rate": "100000"}
}`

type fakeExecutor struct {
	outputBytes []byte
	err         error
}

func (f *fakeExecutor) Encode(ctx context.Context, inputPath, outputPath string, params transcode.Params, progress func(transcode.Progress)) (string, error) {
	if progress != nil {
		progress(transcode.Progress{Percent: 50, Stage: "encoding"})
	}
	if f.err != nil {
		return "", f.err
	}
	if err := os.WriteFile(outputPath, f.outputBytes, 0o644); err != nil {
		return "", err
	}
	return outputPath, nil
}

func seedPending(t *testing.T, store *catalog.Store, path string, content []byte) catalog.MediaEntry {
	t.Helper()
	ctx := context.Background()
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatal(err)
	}
	hash, err := fileutil.Sha256File(path)
	if err != nil {
		t.Fatal(err)
	}
	id, _, err := store.UpsertByPath(ctx, path, catalog.CategoryMovie, catalog.Probe{
		ContentHash: hash, SizeBytes: int64(len(content)), Codec: "h264", DurationS: 100.0,
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
	if entry.State != catalog.StatePending {
		t.Fatalf("expected PENDING after classify, got %s", entry.State)
	}
	return entry
}

func TestWorkerAcceptsSmallerMatchingOutput(t *testing.T) {
	store := testsupport.MustOpenStore(t)
	dir := t.TempDir()
	source := filepath.Join(dir, "movie.mkv")
	content := make([]byte, 1000)
	entry := seedPending(t, store, source, content)

	workdirRoot := t.TempDir()
	inspector := probe.New(testsupport.StubBinary(t, hevcSmallOutputJSON))
	w := New(store, inspector, &fakeExecutor{outputBytes: []byte("small output")}, nil, Config{
		WorkdirRoot: workdirRoot,
		TargetCodec: "hevc",
		Params:      CategoryParams{catalog.CategoryMovie: {CRF: 24}},
	})

	claimed, ok, err := store.ClaimNext(context.Background())
	if err != nil || !ok {
		t.Fatalf("claim: ok=%v err=%v", ok, err)
	}
	if claimed.ID != entry.ID {
		t.Fatalf("claimed wrong entry")
	}
	if err := w.process(context.Background(), claimed); err != nil {
		t.Fatalf("process: %v", err)
	}

	got, found, err := store.Get(context.Background(), entry.ID)
	if err != nil || !found {
		t.Fatalf("get: found=%v err=%v", found, err)
	}
	if got.State != catalog.StateDone {
		t.Fatalf("expected DONE, got %s (error=%s)", got.State, got.LastError)
	}
	data, err := os.ReadFile(source)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "small output" {
		t.Fatalf("expected source replaced, got %q", data)
	}
}

func TestWorkerFailsOnEncoderError(t *testing.T) {
	store := testsupport.MustOpenStore(t)
	dir := t.TempDir()
	source := filepath.Join(dir, "movie.mkv")
	entry := seedPending(t, store, source, make([]byte, 1000))

	inspector := probe.New(testsupport.StubBinary(t, hevcSmallOutputJSON))
	w := New(store, inspector, &fakeExecutor{err: errEncodeFailed}, nil, Config{
		WorkdirRoot: t.TempDir(),
		TargetCodec: "hevc",
	})

	claimed, ok, err := store.ClaimNext(context.Background())
	if err != nil || !ok {
		t.Fatalf("claim: ok=%v err=%v", ok, err)
	}
	if err := w.process(context.Background(), claimed); err != nil {
		t.Fatalf("process: %v", err)
	}

	got, found, err := store.Get(context.Background(), entry.ID)
	if err != nil || !found {
		t.Fatalf("get: found=%v err=%v", found, err)
	}
	if got.State != catalog.StateFailed {
		t.Fatalf("expected FAILED, got %s", got.State)
	}
	if got.LastError == "" {
		t.Fatal("expected last_error to be recorded")
	}
}

func TestWorkerRejectsLargerOutput(t *testing.T) {
	store := testsupport.MustOpenStore(t)
	dir := t.TempDir()
	source := filepath.Join(dir, "movie.mkv")
	small := []byte("tiny")
	entry := seedPending(t, store, source, small)

	// The executor's output file is larger than the tiny source; Inspect
	// takes the size from the file on disk, not from ffprobe's format size.
	largeJSON := `{
  "streams": [{"index": 0, "codec_name": "hevc", "codec_type": "video", "width": 1920, "height": 1080}],
  "format": {"duration": "100.0", "size": "999999", "bit_rate": "100000"}
}`
	inspector := probe.New(testsupport.StubBinary(t, largeJSON))
	w := New(store, inspector, &fakeExecutor{outputBytes: []byte("not actually smaller output content")}, nil, Config{
		WorkdirRoot: t.TempDir(),
		TargetCodec: "hevc",
	})

	claimed, ok, err := store.ClaimNext(context.Background())
	if err != nil || !ok {
		t.Fatalf("claim: ok=%v err=%v", ok, err)
	}
	if err := w.process(context.Background(), claimed); err != nil {
		t.Fatalf("process: %v", err)
	}

	got, found, err := store.Get(context.Background(), entry.ID)
	if err != nil || !found {
		t.Fatalf("get: found=%v err=%v", found, err)
	}
	if got.State != catalog.StateFailed {
		t.Fatalf("expected FAILED on size rejection, got %s", got.State)
	}
}

func TestWorkerResetsToPendingOnSourceMutation(t *testing.T) {
	store := testsupport.MustOpenStore(t)
	dir := t.TempDir()
	source := filepath.Join(dir, "movie.mkv")
	entry := seedPending(t, store, source, make([]byte, 1000))

	inspector := probe.New(testsupport.StubBinary(t, hevcSmallOutputJSON))
	slowExecutor := &mutatingExecutor{sourcePath: source}
	w := New(store, inspector, slowExecutor, nil, Config{
		WorkdirRoot: t.TempDir(),
		TargetCodec: "hevc",
	})

	claimed, ok, err := store.ClaimNext(context.Background())
	if err != nil || !ok {
		t.Fatalf("claim: ok=%v err=%v", ok, err)
	}
	if err := w.process(context.Background(), claimed); err != nil {
		t.Fatalf("process: %v", err)
	}

	got, found, err := store.Get(context.Background(), entry.ID)
	if err != nil || !found {
		t.Fatalf("get: found=%v err=%v", found, err)
	}
	if got.State != catalog.StatePending {
		t.Fatalf("expected PENDING after source mutation, got %s", got.State)
	}
	if got.LastError != "" {
		t.Fatalf("expected no error recorded for a mutation race, got %q", got.LastError)
	}
}

// mutatingExecutor simulates the source file changing underfoot between
// claim and verify: it rewrites the source before returning its output.
type mutatingExecutor struct {
	sourcePath string
}

func (m *mutatingExecutor) Encode(ctx context.Context, inputPath, outputPath string, params transcode.Params, progress func(transcode.Progress)) (string, error) {
	if err := os.WriteFile(m.sourcePath, []byte("mutated while encoding"), 0o644); err != nil {
		return "", err
	}
	if err := os.WriteFile(outputPath, []byte("small"), 0o644); err != nil {
		return "", err
	}
	return outputPath, nil
}

var errEncodeFailed = &testEncodeError{}

type testEncodeError struct{}

func (e *testEncodeError) Error() string { return "encoder exited non-zero" }

func TestWaitForWorkRespectsFloor(t *testing.T) {
	store := testsupport.MustOpenStore(t)
	start := time.Now()
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	store.WaitForWork(ctx, 50*time.Millisecond)
	if time.Since(start) > 200*time.Millisecond {
		t.Fatal("expected WaitForWork to return promptly on floor")
	}
}
