package fileutil

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Sha256File returns the lowercase hex-encoded SHA-256 digest of path's
// contents. Used as the catalog's content_hash: the primary
// de-duplication key and the pinned pre_hash checked at verify time.
func Sha256File(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("hash %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// ReplaceAtomically makes newPath the contents at finalPath. When both
// paths are on the same filesystem this is a single atomic rename followed
// by an fsync of the containing directory. When the rename fails (as it
// does across filesystem boundaries), it falls back to a verified copy
// into a temporary file beside finalPath, an fsync of that file, a rename
// over finalPath and an fsync of the directory, and only then removes the
// source, so the final directory entry is never observably missing or
// partially written.
func ReplaceAtomically(newPath, finalPath string) error {
	if err := os.Rename(newPath, finalPath); err == nil {
		return fsyncDir(finalPath)
	}

	tmpPath := finalPath + ".partial"
	if err := CopyFileVerified(newPath, tmpPath); err != nil {
		return fmt.Errorf("cross-filesystem replace: %w", err)
	}
	f, err := os.Open(tmpPath)
	if err == nil {
		err = f.Sync()
		_ = f.Close()
	}
	if err == nil {
		err = os.Rename(tmpPath, finalPath)
	}
	if err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("cross-filesystem replace: %w", err)
	}
	if err := fsyncDir(finalPath); err != nil {
		return err
	}
	return os.Remove(newPath)
}

func fsyncDir(path string) error {
	dir, err := os.Open(filepath.Dir(path))
	if err != nil {
		return err
	}
	defer dir.Close()
	return dir.Sync()
}
