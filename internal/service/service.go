// Package service wires the catalog, recovery, scanner, worker, and HTTP
// adapter into one process: single-instance lock, startup ordering
// (recovery completes before scanner and worker begin), and coordinated
// shutdown.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"spacesaver/internal/catalog"
	"spacesaver/internal/config"
	"spacesaver/internal/httpapi"
	"spacesaver/internal/probe"
	"spacesaver/internal/recovery"
	"spacesaver/internal/scanner"
	"spacesaver/internal/transcode"
	"spacesaver/internal/worker"
)

// Service coordinates every SpaceSaver component in a single process.
type Service struct {
	cfg    *config.Config
	logger *slog.Logger

	lockPath string
	lock     *flock.Flock

	store     *catalog.Store
	inspector *probe.Inspector
	scanner   *scanner.Scanner
	worker    *worker.Worker
	http      *httpapi.Server

	running atomic.Bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New constructs a Service from configuration. It opens the catalog
// database but does not yet start any background work.
func New(cfg *config.Config, logger *slog.Logger) (*Service, error) {
	if cfg == nil {
		return nil, errors.New("service: config is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	store, err := catalog.Open(filepath.Join(cfg.Paths.WorkDir, "catalog.db"))
	if err != nil {
		return nil, fmt.Errorf("service: open catalog: %w", err)
	}

	inspector := probe.New(cfg.Encode.FFprobeBinary)
	executor := transcode.NewCLI(cfg.Encode.EncoderBinary)

	roots := make([]scanner.Root, 0, len(cfg.MediaRoots()))
	for _, r := range cfg.MediaRoots() {
		roots = append(roots, scanner.Root{Path: r.Path, Category: catalog.Category(r.Category)})
	}

	sc := scanner.New(store, inspector, logger, scanner.Config{
		Roots:             roots,
		Extensions:        cfg.Workflow.MediaExtensions,
		TargetCodec:       cfg.Encode.TargetCodec,
		BitrateFloorTVBPS: cfg.Encode.BitrateFloorTVBPS,
		BitrateFloorMovie: cfg.Encode.BitrateFloorMovieBPS,
		RescanInterval:    secondsToDuration(cfg.Workflow.RescanIntervalS),
	})

	wk := worker.New(store, inspector, executor, logger, worker.Config{
		WorkdirRoot:        cfg.Paths.WorkDir,
		TargetCodec:        cfg.Encode.TargetCodec,
		DurationToleranceS: cfg.Encode.DurationToleranceS,
		WakeupFloor:        secondsToDuration(cfg.Workflow.WakeupFloorS),
		Params: worker.CategoryParams{
			catalog.CategoryTV:    {CRF: cfg.Encode.TVCRF, ResolutionCap: cfg.Encode.TVResolutionCap},
			catalog.CategoryMovie: {CRF: cfg.Encode.MovieCRF, ResolutionCap: cfg.Encode.MovieResolutionCap},
		},
	})

	lockPath := filepath.Join(cfg.Paths.WorkDir, "spacesaver.lock")

	return &Service{
		cfg:       cfg,
		logger:    logger,
		lockPath:  lockPath,
		lock:      flock.New(lockPath),
		store:     store,
		inspector: inspector,
		scanner:   sc,
		worker:    wk,
		http:      httpapi.New(cfg.HTTP.ListenAddr, store, logger),
	}, nil
}

// Start acquires the single-instance lock, runs recovery once, then
// starts the scanner, worker, and HTTP adapter as background goroutines.
func (s *Service) Start(ctx context.Context) error {
	if s.running.Load() {
		return errors.New("service: already running")
	}

	ok, err := s.lock.TryLock()
	if err != nil {
		return fmt.Errorf("service: acquire lock: %w", err)
	}
	if !ok {
		return errors.New("service: another spacesaver instance is already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	recoveryRunner := recovery.New(s.store, s.inspector, s.logger, s.cfg.Encode.TargetCodec, s.cfg.Encode.DurationToleranceS)
	if err := recoveryRunner.Run(runCtx); err != nil {
		_ = s.lock.Unlock()
		cancel()
		s.cancel = nil
		return fmt.Errorf("service: recovery: %w", err)
	}

	if err := s.http.Start(runCtx); err != nil {
		_ = s.lock.Unlock()
		cancel()
		s.cancel = nil
		return fmt.Errorf("service: start http: %w", err)
	}

	s.wg.Add(2)
	go func() {
		defer s.wg.Done()
		if err := s.scanner.RunPeriodically(runCtx); err != nil {
			s.logger.Error("service: scanner stopped", "error", err)
		}
	}()
	go func() {
		defer s.wg.Done()
		if err := s.worker.Run(runCtx); err != nil {
			s.logger.Error("service: worker stopped on invariant violation, aborting", "error", err)
			cancel()
		}
	}()

	if err := s.http.Start(runCtx); err != nil {
		cancel()
		s.wg.Wait()
		_ = s.lock.Unlock()
		s.cancel = nil
		return fmt.Errorf("service: start http: %w", err)
	}

	s.running.Store(true)
	s.logger.Info("service: started", "lock", s.lockPath)
	return nil
}

// Stop cancels background work, waits for it to exit, and releases the
// single-instance lock.
func (s *Service) Stop() {
	if !s.running.Load() {
		return
	}
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.wg.Wait()
	if err := s.lock.Unlock(); err != nil {
		s.logger.Warn("service: failed to release lock", "error", err)
	}
	s.running.Store(false)
	s.logger.Info("service: stopped")
}

// Close releases resources held by the service, including the catalog
// database handle. Call after Stop.
func (s *Service) Close() error {
	s.Stop()
	if s.store != nil {
		return s.store.Close()
	}
	return nil
}

// Store returns the catalog handle the service opened in New.
func (s *Service) Store() *catalog.Store {
	return s.store
}

func secondsToDuration(seconds int) time.Duration {
	return time.Duration(seconds) * time.Second
}
