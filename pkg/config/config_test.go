package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"
)

func newViper(dir string) *viper.Viper {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(dir)
	return v
}

func TestLoadDefaultsWithoutFile(t *testing.T) {
	cfg, err := Load(newViper(t.TempDir()))
	require.NoError(t, err)

	require.Equal(t, "development", cfg.AppEnv)
	require.Equal(t, "Europe/Oslo", cfg.Kickback.Timezone)
	require.Equal(t, "redis", cfg.Lock.Driver)
	require.Equal(t, 30*time.Second, cfg.Lock.TTL)
	require.True(t, cfg.Kickback.AsyncIntake)
	require.Equal(t, int64(1), cfg.Snowflake.Node)
}

func TestLoadFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	yaml := []byte(`
APP_ENV: production
DATABASE:
  TYPE: sqlite
  DBNAME: kickback.db
LOCK:
  DRIVER: memory
KICKBACK:
  TIMEZONE: UTC
  MATCHER_CACHE_TTL: 5s
`)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), yaml, 0o600))
	t.Setenv("KICKBACK_STRICT_PRODUCT_MATCH", "true")

	cfg, err := Load(newViper(dir))
	require.NoError(t, err)

	require.Equal(t, "production", cfg.AppEnv)
	require.Equal(t, "sqlite", cfg.Database.Type)
	require.Equal(t, "memory", cfg.Lock.Driver)
	require.Equal(t, 5*time.Second, cfg.Kickback.MatcherCacheTTL)
	require.True(t, cfg.Kickback.StrictProductMatch)
}

func TestLoadRejectsUnknownTimezone(t *testing.T) {
	t.Setenv("KICKBACK_TIMEZONE", "Mars/Olympus")
	_, err := Load(newViper(t.TempDir()))
	require.Error(t, err)
}
