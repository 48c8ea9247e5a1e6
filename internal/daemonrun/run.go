package daemonrun

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"spacesaver/internal/config"
	"spacesaver/internal/logging"
	"spacesaver/internal/preflight"
	"spacesaver/internal/service"
)

// Options configures daemon process runtime behavior.
type Options struct {
	LogLevel    string
	Development bool
}

// Run starts the spacesaver service and blocks until it is signaled to
// shut down.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := cfg.EnsureDirectories(); err != nil {
		return fmt.Errorf("ensure directories: %w", err)
	}

	runID := time.Now().UTC().Format("20060102T150405.000Z")
	logPath := filepath.Join(cfg.Paths.LogDir, fmt.Sprintf("spacesaver-%s.log", runID))
	level := opts.LogLevel
	if strings.TrimSpace(level) == "" {
		level = cfg.Logging.Level
	}
	logger, err := logging.New(logging.Options{
		Level:       level,
		Format:      cfg.Logging.Format,
		OutputPaths: []string{"stdout", logPath},
		Development: opts.Development,
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	logDependencySnapshot(logger, cfg)
	if err := ensureCurrentLogPointer(cfg.Paths.LogDir, logPath); err != nil {
		fmt.Fprintf(os.Stderr, "warn: unable to update spacesaver.log link: %v\n", err)
	}
	logging.CleanupOldLogs(logger, cfg.Logging.RetentionDays, cfg.Paths.LogDir, "spacesaver-*.log")

	pidPath := filepath.Join(cfg.Paths.LogDir, "spacesaver.pid")
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	results := preflight.RunAll(cfg)
	for _, r := range results {
		if r.Passed {
			logger.Debug("preflight check passed", "name", r.Name, "detail", r.Detail)
			continue
		}
		logger.Warn("preflight check failed", "name", r.Name, "detail", r.Detail)
	}
	if preflight.Failed(results) {
		return fmt.Errorf("preflight checks failed, see log for details")
	}

	svc, err := service.New(cfg, logger)
	if err != nil {
		logger.Error("create service", "error", err)
		return err
	}
	defer svc.Close()

	if err := svc.Start(signalCtx); err != nil {
		logger.Error("start service", "error", err)
		return err
	}

	<-signalCtx.Done()
	logger.Info("spacesaver shutting down")
	svc.Stop()
	return nil
}

func ensureCurrentLogPointer(logDir, target string) error {
	if logDir == "" || target == "" {
		return nil
	}
	current := filepath.Join(logDir, "spacesaver.log")
	if err := os.Remove(current); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove existing log pointer: %w", err)
	}
	if err := os.Symlink(target, current); err == nil {
		return nil
	}
	if err := os.Link(target, current); err != nil {
		return fmt.Errorf("link log pointer: %w", err)
	}
	return nil
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}

func logDependencySnapshot(logger *slog.Logger, cfg *config.Config) {
	if logger == nil || cfg == nil {
		return
	}
	logger.Info("dependency snapshot",
		"target_codec", cfg.Encode.TargetCodec,
		"encoder_available", binaryAvailable(cfg.Encode.EncoderBinary),
		"encoder_binary", cfg.Encode.EncoderBinary,
		"ffprobe_available", binaryAvailable(cfg.Encode.FFprobeBinary),
		"ffprobe_binary", cfg.Encode.FFprobeBinary,
		"media_dirs", strings.Join(cfg.Paths.MediaDirs, ":"),
		"workdir", cfg.Paths.WorkDir,
	)
}

func binaryAvailable(name string) bool {
	if strings.TrimSpace(name) == "" {
		return false
	}
	_, err := exec.LookPath(name)
	return err == nil
}
