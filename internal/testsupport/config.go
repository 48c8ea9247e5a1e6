// Package testsupport centralizes the test fixtures every package's
// _test.go files otherwise re-implemented on their own: a disposable
// config, a disposable catalog store, and a stub ffprobe/encoder binary.
package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"spacesaver/internal/config"
)

// NewConfig produces a config seeded with unique temp directories per test,
// with the encoder and ffprobe binaries stubbed to always succeed.
func NewConfig(t testing.TB) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.WorkDir = filepath.Join(base, "workdir")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.Paths.MediaDirs = nil
	cfg.HTTP.ListenAddr = "127.0.0.1:0"
	cfg.Encode.FFprobeBinary = StubBinary(t, `{"streams":[],"format":{}}`)
	cfg.Encode.EncoderBinary = StubBinary(t, "")
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("create config directories: %v", err)
	}
	return &cfg
}

// StubBinary writes an executable shell script that prints stdout and
// exits 0, returning its path.
func StubBinary(t testing.TB, stdout string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "stub-bin")
	script := "#!/bin/sh\ncat <<'JSON'\n" + stdout + "\nJSON\n"
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatalf("write stub binary: %v", err)
	}
	return path
}
