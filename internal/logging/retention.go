package logging

import (
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

// CleanupOldLogs removes files under dir matching pattern whose modtime is
// older than retentionDays. Errors are logged and otherwise ignored: log
// cleanup must never prevent startup.
func CleanupOldLogs(logger *slog.Logger, retentionDays int, dir, pattern string) {
	if retentionDays <= 0 || dir == "" {
		return
	}
	matches, err := filepath.Glob(filepath.Join(dir, pattern))
	if err != nil {
		if logger != nil {
			logger.Warn("log retention glob failed", "dir", dir, "pattern", pattern, "error", err)
		}
		return
	}

	cutoff := time.Now().Add(-time.Duration(retentionDays) * 24 * time.Hour)
	for _, path := range matches {
		info, err := os.Stat(path)
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			if err := os.Remove(path); err != nil && logger != nil {
				logger.Warn("log retention remove failed", "path", path, "error", err)
			}
		}
	}
}
