// Package httpapi is the thin HTTP adapter over the catalog: every
// handler reads or writes through catalog.Store and nothing else. It
// implements exactly the six endpoints the external interfaces design
// names, no more.
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"spacesaver/internal/catalog"
)

const version = "spacesaver/0.1"

// Server is the HTTP adapter. It owns no state of its own beyond what it
// needs to listen and shut down cleanly.
type Server struct {
	addr     string
	store    *catalog.Store
	logger   *slog.Logger
	started  time.Time
	server   *http.Server
	listener net.Listener
}

// New constructs a Server bound to addr, serving requests against store.
func New(addr string, store *catalog.Store, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{addr: addr, store: store, logger: logger, started: time.Now()}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /version", s.handleVersion)
	mux.HandleFunc("GET /status", s.handleStatus)
	mux.HandleFunc("GET /list", s.handleList)
	mux.HandleFunc("GET /list/{id}", s.handleListOne)
	mux.HandleFunc("POST /request/enqueue/best", s.handleEnqueueBest)
	mux.HandleFunc("POST /request/enqueue/{id}", s.handleEnqueueOne)

	s.server = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

// Start begins listening. It returns once the listener is bound; serving
// and shutdown on context cancellation happen in a background goroutine.
func (s *Server) Start(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("httpapi: listen %s: %w", s.addr, err)
	}
	s.listener = listener

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("httpapi: server error", "error", err)
		}
	}()

	go func() {
		<-ctx.Done()
		s.Stop()
	}()

	s.logger.Info("httpapi: listening", "address", listener.Addr().String())
	return nil
}

// Stop gracefully shuts the server down.
func (s *Server) Stop() {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = s.server.Shutdown(shutdownCtx)
}
