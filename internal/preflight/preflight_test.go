package preflight

import (
	"os"
	"path/filepath"
	"testing"

	"spacesaver/internal/config"
)

func TestCheckDirectoryAccessOK(t *testing.T) {
	result := CheckDirectoryAccess("test", t.TempDir(), true)
	if !result.Passed {
		t.Fatalf("expected pass, got: %s", result.Detail)
	}
}

func TestCheckDirectoryAccessNotExist(t *testing.T) {
	result := CheckDirectoryAccess("test", filepath.Join(t.TempDir(), "nope"), false)
	if result.Passed {
		t.Fatal("expected failure for missing dir")
	}
}

func TestCheckDirectoryAccessNotDir(t *testing.T) {
	f := filepath.Join(t.TempDir(), "file.txt")
	if err := os.WriteFile(f, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	result := CheckDirectoryAccess("test", f, false)
	if result.Passed {
		t.Fatal("expected failure for file path")
	}
}

func TestRunAllNilConfig(t *testing.T) {
	if results := RunAll(nil); results != nil {
		t.Fatal("expected nil results for nil config")
	}
}

func TestRunAllReportsMissingBinaries(t *testing.T) {
	cfg := config.Default()
	cfg.Paths.WorkDir = t.TempDir()
	cfg.Paths.MediaDirs = []string{t.TempDir()}
	cfg.Encode.EncoderBinary = "definitely-not-a-real-binary"
	cfg.Encode.FFprobeBinary = "definitely-not-a-real-binary-either"

	results := RunAll(&cfg)
	if !Failed(results) {
		t.Fatal("expected Failed to report true when binaries are missing")
	}
}
