// Package server runs the development store server: a dirstore exposed over
// the HTTP API behind JWT auth.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/openmined/syncmirror/internal/remote/dirstore"
	"github.com/openmined/syncmirror/internal/server/auth"
)

const shutdownTimeout = 5 * time.Second

type Server struct {
	config *Config
	server *http.Server
	store  *dirstore.Store
	auth   *auth.AuthService
}

func New(config *Config) (*Server, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	store, err := dirstore.Open(config.DataDir)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	authSvc := auth.NewAuthService(&config.Auth)

	return &Server{
		config: config,
		store:  store,
		auth:   authSvc,
		server: &http.Server{
			Addr:              config.Http.Addr,
			Handler:           SetupRoutes(store, authSvc),
			ReadHeaderTimeout: 10 * time.Second,
		},
	}, nil
}

// Start serves until ctx is canceled.
func (s *Server) Start(ctx context.Context) error {
	slog.Info("server start", "data", s.store.Root(), "auth", s.auth.IsEnabled())
	defer slog.Info("server stop")

	errCh := make(chan error, 1)
	go func() {
		if err := s.runHttpServer(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		s.store.Close()
		return err
	case <-ctx.Done():
	}

	slog.Info("server shutdown signal")
	return s.Stop(context.Background())
}

func (s *Server) Stop(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()

	err := s.server.Shutdown(shutdownCtx)
	return errors.Join(err, s.store.Close())
}

func (s *Server) runHttpServer() error {
	if s.config.Http.CertFile != "" && s.config.Http.KeyFile != "" {
		slog.Info("server start tls", "addr", s.config.Http.Addr, "cert", s.config.Http.CertFile, "key", s.config.Http.KeyFile)
		return s.server.ListenAndServeTLS(s.config.Http.CertFile, s.config.Http.KeyFile)
	}
	slog.Info("server start http", "addr", s.config.Http.Addr)
	return s.server.ListenAndServe()
}
