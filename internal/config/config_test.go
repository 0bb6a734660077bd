package config

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// isolate clears every variable Load reads and points it at a missing .env.
func isolate(t *testing.T) string {
	t.Helper()
	for _, key := range []string{
		"SUPABASE_URL", "SUPABASE_KEY", "LOG_LEVEL",
		"CANTINA_STORE_BACKEND", "CANTINA_STORE_URL", "CANTINA_STORE_KEY",
		"CANTINA_STORE_TIMEOUT", "CANTINA_STORE_CHUNK_SIZE", "CANTINA_STORE_PAGE_SIZE",
		"CANTINA_STORE_MIRROR_PATH", "CANTINA_CACHE_GUARDIAN_TTL", "CANTINA_CACHE_CATALOG_TTL",
		"CANTINA_ENGINE_LEVEL", "CANTINA_ENGINE_PURCHASE_ORDER", "CANTINA_ENGINE_ALLOW_LIST",
		"CANTINA_SERVER_ADDR", "CANTINA_SERVER_JWT_SECRET", "CANTINA_SERVER_TOKEN_TTL",
		"CANTINA_LOG_LEVEL", "CANTINA_LOG_FORMAT", "CANTINA_REPORT_OUTPUT_DIR",
	} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
	return filepath.Join(t.TempDir(), "missing.env")
}

func TestLoadDefaults(t *testing.T) {
	missing := isolate(t)
	t.Setenv("SUPABASE_URL", "https://abc.supabase.co")
	t.Setenv("SUPABASE_KEY", "anon-key")

	cfg, err := Load(missing, "")
	require.NoError(t, err)

	assert.Equal(t, BackendPostgREST, cfg.Store.Backend)
	assert.Equal(t, "https://abc.supabase.co", cfg.Store.URL)
	assert.Equal(t, "anon-key", cfg.Store.Key)
	assert.Equal(t, 30*time.Second, cfg.Store.Timeout)
	assert.Equal(t, 1000, cfg.Store.PageSize)
	assert.Equal(t, 150, cfg.Store.ChunkSize)
	assert.Equal(t, 30*time.Second, cfg.Cache.GuardianTTL)
	assert.Equal(t, 5*time.Minute, cfg.Cache.CatalogTTL)
	assert.Equal(t, 1, cfg.Engine.Level)
	assert.Equal(t, "newest", cfg.Engine.PurchaseOrder)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, ":8080", cfg.Server.Addr)
}

func TestLoadPrefixedOverridesLegacy(t *testing.T) {
	missing := isolate(t)
	t.Setenv("SUPABASE_URL", "https://legacy.supabase.co")
	t.Setenv("CANTINA_STORE_URL", "https://new.supabase.co")
	t.Setenv("SUPABASE_KEY", "k")
	t.Setenv("CANTINA_STORE_CHUNK_SIZE", "40")
	t.Setenv("CANTINA_CACHE_GUARDIAN_TTL", "2m")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load(missing, "")
	require.NoError(t, err)
	assert.Equal(t, "https://new.supabase.co", cfg.Store.URL)
	assert.Equal(t, 40, cfg.Store.ChunkSize)
	assert.Equal(t, 2*time.Minute, cfg.Cache.GuardianTTL)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoadEnvFileAndConfigFile(t *testing.T) {
	isolate(t)
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("SUPABASE_URL=https://dotenv.supabase.co\nSUPABASE_KEY=dotenv-key\n"), 0o600))
	t.Cleanup(func() {
		os.Unsetenv("SUPABASE_URL")
		os.Unsetenv("SUPABASE_KEY")
	})

	configFile := filepath.Join(dir, "cantina.yaml")
	require.NoError(t, os.WriteFile(configFile, []byte("engine:\n  purchase_order: oldest\nstore:\n  page_size: 0\n"), 0o600))

	cfg, err := Load(envFile, configFile)
	require.NoError(t, err)
	assert.Equal(t, "https://dotenv.supabase.co", cfg.Store.URL)
	assert.Equal(t, "dotenv-key", cfg.Store.Key)
	assert.Equal(t, "oldest", cfg.Engine.PurchaseOrder)
	assert.Equal(t, 0, cfg.Store.PageSize)

	_, err = Load(envFile, filepath.Join(dir, "nope.yaml"))
	assert.Error(t, err)
}

func validConfig() *Config {
	return &Config{
		Store: StoreConfig{
			Backend:   BackendPostgREST,
			URL:       "https://abc.supabase.co",
			Key:       "k",
			Timeout:   time.Second,
			PageSize:  1000,
			ChunkSize: 150,
		},
		Engine: EngineConfig{Level: 1, PurchaseOrder: "newest"},
		Server: ServerConfig{JWTSecret: "0123456789abcdef0123456789abcdef"},
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{name: "valid", mutate: func(c *Config) {}},
		{name: "missing url", mutate: func(c *Config) { c.Store.URL = "" }, wantErr: true},
		{name: "missing key", mutate: func(c *Config) { c.Store.Key = "" }, wantErr: true},
		{name: "sqlite needs no url", mutate: func(c *Config) {
			c.Store.Backend, c.Store.URL, c.Store.MirrorPath = BackendSQLite, "", "m.db"
		}},
		{name: "unknown backend", mutate: func(c *Config) { c.Store.Backend = "mysql" }, wantErr: true},
		{name: "zero timeout", mutate: func(c *Config) { c.Store.Timeout = 0 }, wantErr: true},
		{name: "zero chunk", mutate: func(c *Config) { c.Store.ChunkSize = 0 }, wantErr: true},
		{name: "level zero", mutate: func(c *Config) { c.Engine.Level = 0 }, wantErr: true},
		{name: "bad order", mutate: func(c *Config) { c.Engine.PurchaseOrder = "random" }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := validConfig()
			tt.mutate(c)
			err := c.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateServer(t *testing.T) {
	c := validConfig()
	assert.NoError(t, c.ValidateServer())

	c.Server.JWTSecret = "short"
	assert.Error(t, c.ValidateServer())

	c.Server.JWTSecret = ""
	assert.Error(t, c.ValidateServer())
}

func TestCheckAPIKey(t *testing.T) {
	now := time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC)
	sign := func(claims jwt.MapClaims) string {
		s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("remote-secret"))
		require.NoError(t, err)
		return s
	}

	tests := []struct {
		name string
		key  string
		want string
	}{
		{"expired", sign(jwt.MapClaims{"role": "anon", "exp": now.Add(-time.Hour).Unix()}), "Store key has expired"},
		{"service role", sign(jwt.MapClaims{"role": "service_role", "exp": now.Add(time.Hour).Unix()}), "bypasses row-level security"},
		{"not a jwt", "plain-key", "could not be inspected"},
		{"valid anon", sign(jwt.MapClaims{"role": "anon"}), ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := slog.New(slog.NewTextHandler(&buf, nil))
			c := validConfig()
			c.Store.Key = tt.key
			c.CheckAPIKey(logger, now)
			if tt.want == "" {
				assert.Empty(t, buf.String())
			} else {
				assert.Contains(t, buf.String(), tt.want)
			}
		})
	}
}
