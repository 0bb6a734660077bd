// Package config loads settings from .env files, an optional config file
// and CANTINA_* environment variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/mmynk/cantina/internal/auth"
)

// Store backends.
const (
	BackendPostgREST = "postgrest"
	BackendSQLite    = "sqlite"
)

// Config holds every setting of the server and the CLI.
type Config struct {
	Store  StoreConfig
	Cache  CacheConfig
	Engine EngineConfig
	Server ServerConfig
	Log    LogConfig
	Report ReportConfig
}

// StoreConfig selects and tunes the remote store.
type StoreConfig struct {
	// Backend is BackendPostgREST or BackendSQLite.
	Backend string
	URL     string
	Key     string
	Timeout time.Duration

	// PageSize is the row limit per request; 0 disables paging.
	PageSize int

	// ChunkSize caps the ids in one membership filter.
	ChunkSize int

	// MirrorPath is the SQLite file used by the sqlite backend and written
	// by the mirror command.
	MirrorPath string
}

// CacheConfig holds the TTLs of cached collections.
type CacheConfig struct {
	GuardianTTL time.Duration
	CatalogTTL  time.Duration
}

// EngineConfig tunes aggregation.
type EngineConfig struct {
	Level int

	// PurchaseOrder is "newest" or "oldest".
	PurchaseOrder string

	// AllowList is the CSV of authorized guardian names.
	AllowList string
}

// ServerConfig configures the RPC server.
type ServerConfig struct {
	Addr      string
	JWTSecret string
	TokenTTL  time.Duration
}

// LogConfig configures pkg/logging.
type LogConfig struct {
	Level  string
	Format string
}

// ReportConfig configures file exports.
type ReportConfig struct {
	OutputDir string
}

// Load reads envFile (".env" when empty; a missing file is fine), then the
// optional config file, then the environment. The result is not validated;
// call Validate or ValidateServer for what the command needs.
//
// Priority (highest to lowest):
// 1. Environment variables with CANTINA_ prefix (e.g., CANTINA_STORE_URL)
// 2. SUPABASE_URL, SUPABASE_KEY and LOG_LEVEL
// 3. configFile, or cantina.{toml,yaml,json} in the working directory
// 4. Built-in defaults
func Load(envFile, configFile string) (*Config, error) {
	if envFile == "" {
		envFile = ".env"
	}
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("error reading %s: %w", envFile, err)
	}

	v := viper.New()
	setDefaults(v)

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("cantina")
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	v.SetEnvPrefix("CANTINA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, names := range legacyEnv {
		if err := v.BindEnv(append([]string{key}, names...)...); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", key, err)
		}
	}

	cfg := &Config{
		Store: StoreConfig{
			Backend:    strings.ToLower(v.GetString("store.backend")),
			URL:        strings.TrimSpace(v.GetString("store.url")),
			Key:        strings.TrimSpace(v.GetString("store.key")),
			Timeout:    v.GetDuration("store.timeout"),
			PageSize:   v.GetInt("store.page_size"),
			ChunkSize:  v.GetInt("store.chunk_size"),
			MirrorPath: v.GetString("store.mirror_path"),
		},
		Cache: CacheConfig{
			GuardianTTL: v.GetDuration("cache.guardian_ttl"),
			CatalogTTL:  v.GetDuration("cache.catalog_ttl"),
		},
		Engine: EngineConfig{
			Level:         v.GetInt("engine.level"),
			PurchaseOrder: strings.ToLower(v.GetString("engine.purchase_order")),
			AllowList:     v.GetString("engine.allow_list"),
		},
		Server: ServerConfig{
			Addr:      v.GetString("server.addr"),
			JWTSecret: v.GetString("server.jwt_secret"),
			TokenTTL:  v.GetDuration("server.token_ttl"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
		},
		Report: ReportConfig{
			OutputDir: v.GetString("report.output_dir"),
		},
	}

	return cfg, nil
}

// legacyEnv lists the unprefixed variables still honoured, after the
// CANTINA_ one.
var legacyEnv = map[string][]string{
	"store.url": {"CANTINA_STORE_URL", "SUPABASE_URL"},
	"store.key": {"CANTINA_STORE_KEY", "SUPABASE_KEY"},
	"log.level": {"CANTINA_LOG_LEVEL", "LOG_LEVEL"},
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("store.backend", BackendPostgREST)
	v.SetDefault("store.timeout", 30*time.Second)
	v.SetDefault("store.page_size", 1000)
	v.SetDefault("store.chunk_size", 150)
	v.SetDefault("store.mirror_path", "./data/cantina.db")
	v.SetDefault("cache.guardian_ttl", 30*time.Second)
	v.SetDefault("cache.catalog_ttl", 5*time.Minute)
	v.SetDefault("engine.level", 1)
	v.SetDefault("engine.purchase_order", "newest")
	v.SetDefault("engine.allow_list", "")
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.jwt_secret", "")
	v.SetDefault("server.token_ttl", 30*24*time.Hour)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("report.output_dir", ".")
}

// Validate checks the settings every command needs.
func (c *Config) Validate() error {
	switch c.Store.Backend {
	case BackendPostgREST:
		if c.Store.URL == "" {
			return fmt.Errorf("store.url is required (CANTINA_STORE_URL or SUPABASE_URL)")
		}
		if c.Store.Key == "" {
			return fmt.Errorf("store.key is required (CANTINA_STORE_KEY or SUPABASE_KEY)")
		}
	case BackendSQLite:
		if c.Store.MirrorPath == "" {
			return fmt.Errorf("store.mirror_path is required for the sqlite backend")
		}
	default:
		return fmt.Errorf("store.backend must be %q or %q, got %q", BackendPostgREST, BackendSQLite, c.Store.Backend)
	}

	if c.Store.Timeout <= 0 {
		return fmt.Errorf("store.timeout must be positive")
	}
	if c.Store.PageSize < 0 {
		return fmt.Errorf("store.page_size cannot be negative")
	}
	if c.Store.ChunkSize <= 0 {
		return fmt.Errorf("store.chunk_size must be positive")
	}
	if c.Cache.GuardianTTL < 0 || c.Cache.CatalogTTL < 0 {
		return fmt.Errorf("cache TTLs cannot be negative")
	}
	if c.Engine.Level < 1 {
		return fmt.Errorf("engine.level must be at least 1, got %d", c.Engine.Level)
	}
	if c.Engine.PurchaseOrder != "newest" && c.Engine.PurchaseOrder != "oldest" {
		return fmt.Errorf("engine.purchase_order must be \"newest\" or \"oldest\", got %q", c.Engine.PurchaseOrder)
	}
	return nil
}

// ValidateServer additionally checks the settings of the RPC server and of
// token minting.
func (c *Config) ValidateServer() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if c.Server.JWTSecret == "" {
		return fmt.Errorf("server.jwt_secret is required")
	}
	if len(c.Server.JWTSecret) < auth.MinSecretLength {
		return fmt.Errorf("server.jwt_secret must be at least %d characters", auth.MinSecretLength)
	}
	if c.Server.TokenTTL < 0 {
		return fmt.Errorf("server.token_ttl cannot be negative")
	}
	return nil
}

// CheckAPIKey logs a warning when the store key is expired or cannot be
// read. It never fails; the store decides whether the key is accepted.
func (c *Config) CheckAPIKey(logger *slog.Logger, now time.Time) {
	if c.Store.Backend != BackendPostgREST || c.Store.Key == "" {
		return
	}
	info, err := auth.InspectAPIKey(c.Store.Key)
	if err != nil {
		logger.Warn("Store key could not be inspected", "error", err)
		return
	}
	if info.Expired(now) {
		logger.Warn("Store key has expired", "expired_at", info.ExpiresAt, "role", info.Role)
		return
	}
	if info.Privileged() {
		logger.Warn("Store key bypasses row-level security; a read-only key is enough", "role", info.Role)
	}
	logger.Debug("Store key inspected", "role", info.Role, "expires_at", info.ExpiresAt)
}
