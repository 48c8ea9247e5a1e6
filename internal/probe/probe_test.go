package probe

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

func stubFFprobe(t *testing.T, stdout string) string {
	t.Helper()
	dir := t.TempDir()
	name := "ffprobe"
	if runtime.GOOS == "windows" {
		name += ".bat"
	}
	path := filepath.Join(dir, name)
	script := "#!/bin/sh\ncat <<'JSON'\n" + stdout + "\nJSON\n"
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatalf("write stub: %v", err)
	}
	return path
}

const sampleFFprobeJSON = `{
  "streams": [
    {"index": 0, "codec_name": "hevc", "codec_type": "video", "width": 1920, "height": 1080},
    {"index": 1, "codec_name": "aac", "codec_type": "audio"}
  ],
  "format": {"duration": "120.5", "size": "1048576", "bit_rate": "2000000"}
}`

func TestInspectExtractsProbeFields(t *testing.T) {
	stub := stubFFprobe(t, sampleFFprobeJSON)
	inspector := New(stub)

	dir := t.TempDir()
	file := filepath.Join(dir, "movie.mkv")
	if err := os.WriteFile(file, []byte("fake video bytes"), 0o644); err != nil {
		t.Fatal(err)
	}

	p, err := inspector.Inspect(context.Background(), file)
	if err != nil {
		t.Fatalf("inspect: %v", err)
	}
	if p.Codec != "hevc" {
		t.Fatalf("expected hevc, got %s", p.Codec)
	}
	if p.Width != 1920 || p.Height != 1080 {
		t.Fatalf("expected 1920x1080, got %dx%d", p.Width, p.Height)
	}
	if p.BitRateBPS != 2_000_000 {
		t.Fatalf("expected bitrate 2000000, got %d", p.BitRateBPS)
	}
	if p.ContentHash == "" {
		t.Fatal("expected content hash to be populated")
	}
}

func TestReadableFalseOnFFprobeFailure(t *testing.T) {
	dir := t.TempDir()
	badBinary := filepath.Join(dir, "ffprobe-missing")
	inspector := New(badBinary)
	if inspector.Readable(context.Background(), "/nonexistent") {
		t.Fatal("expected unreadable result when ffprobe binary is missing")
	}
}
