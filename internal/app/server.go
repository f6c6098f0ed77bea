package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"guardian-go/internal/config"
	"guardian-go/internal/database"
	"guardian-go/internal/encoding"
	"guardian-go/internal/remote"
	"guardian-go/internal/vault"
)

// serverDBName keeps the server's records apart from a local client
// journal sharing the same data directory.
const serverDBName = "guardian-server"

// shutdownTimeout bounds how long in-flight exchanges may finish.
const shutdownTimeout = 10 * time.Second

// ServerApp serves a backup repository and blob store to remote clients.
type ServerApp struct {
	cfg       *config.Config
	db        *database.SQLiteDatabase
	server    *remote.Server
	logger    *slog.Logger
	logCloser io.Closer
}

// NewServerApp wires the repository server from cfg: backup records live
// in a sqlite database and blobs in the configured vault.
func NewServerApp(cfg *config.Config, verbose bool) (*ServerApp, error) {
	if err := cfg.ValidateServer(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	logger, logCloser, err := newLogger(cfg.LogDir, "serve", level, cfg.Log)
	if err != nil {
		return nil, fmt.Errorf("creating logger: %w", err)
	}

	blobs, err := vault.NewVaultFromConfig(cfg.Vault)
	if err != nil {
		logCloser.Close()
		return nil, fmt.Errorf("creating vault: %w", err)
	}
	db, err := database.NewDatabaseFromConfig(cfg.Database, serverDBName)
	if err != nil {
		logCloser.Close()
		return nil, fmt.Errorf("creating database: %w", err)
	}

	srv := remote.NewServer(db, blobs, encoding.NewYAMLEncoder(), cfg.Server.Users, &slogAdapter{l: logger})
	return &ServerApp{cfg: cfg, db: db, server: srv, logger: logger, logCloser: logCloser}, nil
}

// Handler returns the HTTP handler serving the exchange endpoint.
func (a *ServerApp) Handler() http.Handler {
	return a.server.Handler()
}

// ListenAndServe serves on cfg.Server.Listen until ctx is cancelled.
func (a *ServerApp) ListenAndServe(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:              a.cfg.Server.Listen,
		Handler:           a.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("server listening", "addr", httpServer.Addr, "users", len(a.cfg.Server.Users))
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("serving: %w", err)
	case <-ctx.Done():
	}

	a.logger.Info("server shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down: %w", err)
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Close releases the database and log file.
func (a *ServerApp) Close() error {
	err := a.db.Close()
	a.logCloser.Close()
	return err
}
