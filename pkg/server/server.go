// Package server exposes the authentication coordinator over HTTP so that
// front ends written in other languages, reverse proxies and operators can
// verify credentials against the configured providers.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/marmos91/extauth/internal/logger"
	"github.com/marmos91/extauth/pkg/config"
)

// Server is the HTTP verification endpoint.
//
// The server supports graceful shutdown with configurable timeout.
type Server struct {
	server       *http.Server
	config       config.ServerConfig
	shutdownOnce sync.Once

	mu   sync.Mutex
	addr net.Addr
}

// NewServer creates a stopped server. Call Start to begin serving.
//
// Metrics must be initialized before NewServer for /metrics to serve them.
func NewServer(cfg config.ServerConfig, c Coordinator) *Server {
	return &Server{
		server: &http.Server{
			Addr:              cfg.Listen,
			Handler:           NewRouter(c, cfg.WriteTimeout),
			ReadTimeout:       cfg.ReadTimeout,
			ReadHeaderTimeout: cfg.ReadTimeout,
			WriteTimeout:      cfg.WriteTimeout,
		},
		config: cfg,
	}
}

// Start listens on the configured address and blocks until ctx is cancelled
// or the server fails. Cancellation triggers a graceful shutdown bounded by
// shutdownTimeout.
func (s *Server) Start(ctx context.Context, shutdownTimeout time.Duration) error {
	ln, err := net.Listen("tcp", s.config.Listen)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.config.Listen, err)
	}

	s.mu.Lock()
	s.addr = ln.Addr()
	s.mu.Unlock()

	errChan := make(chan error, 1)
	go func() {
		logger.Info("Verification endpoint listening", "address", ln.Addr().String())

		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("Verification endpoint shutdown signal received")
		// The cancelled ctx would abort the shutdown immediately.
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return s.Stop(shutdownCtx)
	case err := <-errChan:
		return fmt.Errorf("verification endpoint failed: %w", err)
	}
}

// Stop gracefully shuts the server down. It is safe to call more than once.
func (s *Server) Stop(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		if err := s.server.Shutdown(ctx); err != nil {
			shutdownErr = fmt.Errorf("verification endpoint shutdown error: %w", err)
			logger.Error("Verification endpoint shutdown error", logger.Err(err))
		} else {
			logger.Info("Verification endpoint stopped gracefully")
		}
	})
	return shutdownErr
}

// Addr returns the bound address once Start is listening, nil before.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}
