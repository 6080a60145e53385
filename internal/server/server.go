package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gofrs/flock"
	"github.com/jmoiron/sqlx"

	"github.com/openlocale/openlocale/internal/db"
)

type Server struct {
	config *Config
	db     *sqlx.DB
	lock   *flock.Flock
	server *http.Server

	services *Services
}

func New(config *Config) (*Server, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	lock := flock.New(config.DBPath + ".lock")
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire db lock: %w", err)
	}
	if !locked {
		return nil, fmt.Errorf("another instance is already running on %s", config.DBPath)
	}

	database, err := db.NewSqliteDb(db.WithPath(config.DBPath))
	if err != nil {
		lock.Unlock()
		return nil, fmt.Errorf("open database: %w", err)
	}

	services, err := NewServices(config, database)
	if err != nil {
		database.Close()
		lock.Unlock()
		return nil, err
	}

	return &Server{
		config:   config,
		db:       database,
		lock:     lock,
		services: services,
		server: &http.Server{
			Addr:    config.HTTP.Addr,
			Handler: SetupRoutes(config, services),
		},
	}, nil
}

func (s *Server) Start(ctx context.Context) error {
	slog.Info("openlocale server start")
	defer slog.Info("openlocale server stop")

	errCh := make(chan error, 1)
	go func() {
		if err := s.runHTTPServer(); err != nil && err != http.ErrServerClosed {
			errCh <- err
			return
		}
		slog.Info("http server stopped")
	}()

	select {
	case err := <-errCh:
		s.Stop(ctx)
		return err
	case <-ctx.Done():
	}

	slog.Info("openlocale shutdown signal")
	if err := s.Stop(ctx); err != nil {
		slog.Error("openlocale shutdown error", "error", err)
		return err
	}
	return nil
}

func (s *Server) Stop(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := s.server.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := s.db.Close(); err != nil {
		return err
	}
	return s.lock.Unlock()
}

func (s *Server) runHTTPServer() error {
	if s.config.HTTP.CertFile != "" && s.config.HTTP.KeyFile != "" {
		slog.Info("server start tls", "addr", s.config.HTTP.Addr, "cert", s.config.HTTP.CertFile, "key", s.config.HTTP.KeyFile)
		return s.server.ListenAndServeTLS(s.config.HTTP.CertFile, s.config.HTTP.KeyFile)
	}
	slog.Info("server start http", "addr", s.config.HTTP.Addr)
	return s.server.ListenAndServe()
}
