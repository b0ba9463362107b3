// Package server exposes the loaded backend over an OpenAI-compatible
// HTTP API.
package server

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/quenchml/quench/internal/config"
	"github.com/quenchml/quench/internal/models"
	"github.com/quenchml/quench/internal/runner"
)

// Server is the quench HTTP API server.
type Server struct {
	cfg     *config.Config
	http    *http.Server
	store   *models.Store
	logger  *logrus.Logger
	version string

	mu sync.RWMutex
	rn runner.Runner
}

// New creates a new Server.
func New(cfg *config.Config, store *models.Store, logger *logrus.Logger, version string) *Server {
	s := &Server{
		cfg:     cfg,
		store:   store,
		logger:  logger,
		version: version,
	}

	mux := http.NewServeMux()
	s.registerRoutes(mux)

	s.http = &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler: s.withLogging(withCORS(mux)),
	}

	return s
}

// Start starts the server and blocks until the context is cancelled.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.http.Addr)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}

	s.logger.Infof("quench server listening on %s", s.http.Addr)
	s.logger.Infof("models dir: %s", s.store.Dir())

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.http.Serve(ln)
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.http.Shutdown(shutdownCtx); err != nil {
			s.logger.Warnf("server shutdown error: %v", err)
		}
		if rn := s.Runner(); rn != nil {
			rn.Close()
		}
		return nil
	case err := <-errCh:
		return err
	}
}

// Runner returns the currently loaded runner, or nil.
func (s *Server) Runner() runner.Runner {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rn
}

// LoadModel resolves a model by name and loads it into a fresh runner,
// replacing any previously loaded one.
func (s *Server) LoadModel(ctx context.Context, modelName string) error {
	modelPath, err := s.store.Resolve(modelName)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.rn != nil {
		s.rn.Close()
		s.rn = nil
	}

	r := runner.NewProcessRunner(s.logger)
	opts := runner.DefaultOptions()
	opts.BinDir = config.BinDir()
	opts.GPULayers = s.cfg.GPULayers
	opts.CtxSize = s.cfg.CtxSize
	opts.Threads = s.cfg.Threads
	opts.FlashAttention = s.cfg.FlashAttention

	if err := r.Load(ctx, modelPath, opts); err != nil {
		return err
	}

	s.rn = r
	return nil
}
