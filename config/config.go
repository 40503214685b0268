package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"
)

// Config holds the runtime settings of the web application.
type Config struct {
	Addr          string
	DBPath        string
	SessionSecret string
	SessionTTL    time.Duration
	PageSize      int
	LogLevel      string

	SecureCookies        bool
	AllowLibrarianSignup bool
}

const (
	defaultAddr       = ":8080"
	defaultDBPath     = "library.db"
	defaultSessionTTL = 30 * time.Minute
	defaultPageSize   = 5
)

// Load reads the configuration from the environment, falling back to defaults.
func Load() (Config, error) {
	cfg := Config{
		Addr:          getenv("LIBRARY_ADDR", defaultAddr),
		DBPath:        getenv("LIBRARY_DB", defaultDBPath),
		SessionSecret: os.Getenv("LIBRARY_SECRET"),
		SessionTTL:    defaultSessionTTL,
		PageSize:      defaultPageSize,
		LogLevel:      getenv("LIBRARY_LOG_LEVEL", "info"),
	}

	if v := os.Getenv("LIBRARY_SESSION_TTL"); v != "" {
		ttl, err := time.ParseDuration(v)
		if err != nil {
			return Config{}, fmt.Errorf("LIBRARY_SESSION_TTL: %w", err)
		}
		cfg.SessionTTL = ttl
	}
	if v := os.Getenv("LIBRARY_PAGE_SIZE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("LIBRARY_PAGE_SIZE: %w", err)
		}
		cfg.PageSize = n
	}
	for key, dst := range map[string]*bool{
		"LIBRARY_SECURE_COOKIES":         &cfg.SecureCookies,
		"LIBRARY_ALLOW_LIBRARIAN_SIGNUP": &cfg.AllowLibrarianSignup,
	} {
		v := os.Getenv(key)
		if v == "" {
			continue
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			return Config{}, fmt.Errorf("%s: %w", key, err)
		}
		*dst = b
	}
	return cfg, nil
}

// Validate checks the settings the server cannot run without.
func (c Config) Validate() error {
	if c.Addr == "" {
		return fmt.Errorf("listen address is empty")
	}
	if c.DBPath == "" {
		return fmt.Errorf("database path is empty")
	}
	if len(c.SessionSecret) < 16 {
		return fmt.Errorf("session secret must be at least 16 characters (set LIBRARY_SECRET)")
	}
	if c.SessionTTL <= 0 {
		return fmt.Errorf("session ttl must be positive")
	}
	if c.PageSize <= 0 {
		return fmt.Errorf("page size must be positive")
	}
	return nil
}

// Level maps LogLevel onto a slog level. Unknown names fall back to info.
func (c Config) Level() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return level
}

func getenv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}
