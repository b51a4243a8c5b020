// Package config loads the daemon configuration from the environment.
// Every knob has an AUTHCORE_ prefixed variable; nothing is hardcoded in
// the binary.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/driftsec/authcore/server"
)

// Store backend names accepted by AUTHCORE_STORE.
const (
	StoreMemory   = "memory"
	StoreSQLite   = "sqlite"
	StorePostgres = "postgres"
)

// Config is the daemon configuration.
type Config struct {
	// Addr is the listen address.
	Addr string

	// Issuer is the external base URL of the server.
	Issuer string

	// Store selects the persistence backend: memory, sqlite, or postgres.
	Store string

	// SQLitePath is the database file for the sqlite backend.
	SQLitePath string

	// PostgresDSN is the connection string for the postgres backend.
	PostgresDSN string

	// SessionSigningKey signs login session tokens.
	SessionSigningKey []byte

	// AccessTokenSigningKey signs access tokens.
	AccessTokenSigningKey []byte

	// Clients is the static client registry parsed from AUTHCORE_CLIENTS.
	Clients []server.Client

	// Token and session lifetimes. Zero means the engine default.
	AuthorizationCodeTTL time.Duration
	AccessTokenTTL       time.Duration
	RefreshTokenTTL      time.Duration
	SessionTTL           time.Duration

	// RateLimitPerSecond and RateLimitBurst configure the per-IP limiter.
	RateLimitPerSecond int
	RateLimitBurst     int

	// TrustProxy enables X-Forwarded-For handling. Only set behind a
	// trusted reverse proxy.
	TrustProxy bool

	// AuditEnabled turns security audit logging on.
	AuditEnabled bool

	// LogLevel is the slog level: debug, info, warn, or error.
	LogLevel slog.Level
}

// Load reads the configuration from the environment.
func Load() (*Config, error) {
	cfg := &Config{
		Addr:                  getenv("AUTHCORE_ADDR", ":8080"),
		Issuer:                getenv("AUTHCORE_ISSUER", "http://localhost:8080"),
		Store:                 getenv("AUTHCORE_STORE", StoreMemory),
		SQLitePath:            getenv("AUTHCORE_SQLITE_PATH", "authcore.db"),
		PostgresDSN:           os.Getenv("AUTHCORE_POSTGRES_DSN"),
		SessionSigningKey:     []byte(os.Getenv("AUTHCORE_SESSION_KEY")),
		AccessTokenSigningKey: []byte(os.Getenv("AUTHCORE_ACCESS_TOKEN_KEY")),
	}

	switch cfg.Store {
	case StoreMemory, StoreSQLite, StorePostgres:
	default:
		return nil, fmt.Errorf("AUTHCORE_STORE: unknown backend %q", cfg.Store)
	}
	if cfg.Store == StorePostgres && cfg.PostgresDSN == "" {
		return nil, fmt.Errorf("AUTHCORE_POSTGRES_DSN is required for the postgres backend")
	}

	if len(cfg.SessionSigningKey) == 0 {
		return nil, fmt.Errorf("AUTHCORE_SESSION_KEY is required")
	}
	if len(cfg.AccessTokenSigningKey) == 0 {
		return nil, fmt.Errorf("AUTHCORE_ACCESS_TOKEN_KEY is required")
	}

	clients, err := parseClients(os.Getenv("AUTHCORE_CLIENTS"))
	if err != nil {
		return nil, err
	}
	cfg.Clients = clients

	durations := []struct {
		name string
		dst  *time.Duration
	}{
		{"AUTHCORE_CODE_TTL", &cfg.AuthorizationCodeTTL},
		{"AUTHCORE_ACCESS_TOKEN_TTL", &cfg.AccessTokenTTL},
		{"AUTHCORE_REFRESH_TOKEN_TTL", &cfg.RefreshTokenTTL},
		{"AUTHCORE_SESSION_TTL", &cfg.SessionTTL},
	}
	for _, d := range durations {
		if v := os.Getenv(d.name); v != "" {
			parsed, err := time.ParseDuration(v)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", d.name, err)
			}
			*d.dst = parsed
		}
	}

	if cfg.RateLimitPerSecond, err = getenvInt("AUTHCORE_RATE_LIMIT_RPS", 10); err != nil {
		return nil, err
	}
	if cfg.RateLimitBurst, err = getenvInt("AUTHCORE_RATE_LIMIT_BURST", 20); err != nil {
		return nil, err
	}

	cfg.TrustProxy = getenvBool("AUTHCORE_TRUST_PROXY", false)
	cfg.AuditEnabled = getenvBool("AUTHCORE_AUDIT", true)

	switch level := getenv("AUTHCORE_LOG_LEVEL", "info"); level {
	case "debug":
		cfg.LogLevel = slog.LevelDebug
	case "info":
		cfg.LogLevel = slog.LevelInfo
	case "warn":
		cfg.LogLevel = slog.LevelWarn
	case "error":
		cfg.LogLevel = slog.LevelError
	default:
		return nil, fmt.Errorf("AUTHCORE_LOG_LEVEL: unknown level %q", level)
	}

	return cfg, nil
}

// parseClients parses the client registry. The format is one client per
// semicolon-separated entry, each entry "client_id|name|redirect_uri".
func parseClients(raw string) ([]server.Client, error) {
	if raw == "" {
		return nil, nil
	}

	var clients []server.Client
	for _, entry := range strings.Split(raw, ";") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		parts := strings.Split(entry, "|")
		if len(parts) != 3 {
			return nil, fmt.Errorf("AUTHCORE_CLIENTS: entry %q is not client_id|name|redirect_uri", entry)
		}
		clients = append(clients, server.Client{
			ID:          strings.TrimSpace(parts[0]),
			Name:        strings.TrimSpace(parts[1]),
			RedirectURI: strings.TrimSpace(parts[2]),
		})
	}
	return clients, nil
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getenvInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

func getenvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}
