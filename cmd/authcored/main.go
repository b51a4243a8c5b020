// Command authcored runs the authorization server as a standalone daemon.
// All configuration comes from AUTHCORE_* environment variables; see the
// internal/config package for the full list.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/driftsec/authcore"
	"github.com/driftsec/authcore/instrumentation"
	"github.com/driftsec/authcore/internal/config"
	"github.com/driftsec/authcore/security"
	"github.com/driftsec/authcore/server"
	"github.com/driftsec/authcore/storage"
	"github.com/driftsec/authcore/storage/memory"
	"github.com/driftsec/authcore/storage/postgres"
	"github.com/driftsec/authcore/storage/sqlite"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "authcored:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}))
	slog.SetDefault(logger)

	store, cleanup, err := openStore(cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	srv, err := server.New(store, store, store, store, &server.Config{
		Issuer:                cfg.Issuer,
		Clients:               cfg.Clients,
		SessionSigningKey:     cfg.SessionSigningKey,
		AccessTokenSigningKey: cfg.AccessTokenSigningKey,
		AuthorizationCodeTTL:  cfg.AuthorizationCodeTTL,
		AccessTokenTTL:        cfg.AccessTokenTTL,
		RefreshTokenTTL:       cfg.RefreshTokenTTL,
		SessionTTL:            cfg.SessionTTL,
	}, logger)
	if err != nil {
		return err
	}
	srv.SetAuditor(security.NewAuditor(logger, cfg.AuditEnabled))

	inst, err := instrumentation.New(instrumentation.Config{
		ServiceName:    "authcored",
		ServiceVersion: version,
	})
	if err != nil {
		return err
	}
	defer inst.Shutdown(context.Background())

	rateLimiter := security.NewRateLimiter(cfg.RateLimitPerSecond, cfg.RateLimitBurst, logger)
	defer rateLimiter.Stop()

	handler := authcore.NewHandler(srv, logger)
	handler.SetRateLimiter(rateLimiter)
	handler.SetInstrumentation(inst)
	handler.SetTrustProxy(cfg.TrustProxy)

	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Listening", "addr", cfg.Addr, "issuer", cfg.Issuer, "store", cfg.Store, "version", version)
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-stop:
		logger.Info("Shutting down", "signal", sig.String())
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}

	return nil
}

// openStore builds the configured storage backend and returns it with its
// cleanup function.
func openStore(cfg *config.Config, logger *slog.Logger) (storage.Store, func(), error) {
	switch cfg.Store {
	case config.StoreSQLite:
		s, err := sqlite.New(cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		return s, func() { s.Close() }, nil

	case config.StorePostgres:
		s, err := postgres.New(cfg.PostgresDSN)
		if err != nil {
			return nil, nil, err
		}
		return s, func() { s.Close() }, nil

	default:
		s := memory.New()
		s.SetLogger(logger)
		return s, s.Stop, nil
	}
}
