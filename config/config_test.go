package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0", cfg.Server.Address)
	assert.Equal(t, "8087", cfg.Server.HTTPPort)
	assert.Equal(t, "", cfg.Database.Driver)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, 10*time.Second, cfg.Relay.WriteTimeout)
	assert.Empty(t, cfg.Relay.AllowedOrigins)
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("CARDLINK_SERVER_HTTP_PORT", "9090")
	t.Setenv("CARDLINK_LOGGING_LEVEL", "debug")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "9090", cfg.Server.HTTPPort)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cardlink.yaml")
	body := `
server:
  address: 127.0.0.1
  http_port: "8099"
database:
  driver: postgres
  dsn: postgres://u:p@localhost:5432/cardlink?sslmode=disable
relay:
  write_timeout: 3s
  allowed_origins:
    - https://portal.example.edu
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1", cfg.Server.Address)
	assert.Equal(t, "8099", cfg.Server.HTTPPort)
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, 3*time.Second, cfg.Relay.WriteTimeout)
	assert.Equal(t, []string{"https://portal.example.edu"}, cfg.Relay.AllowedOrigins)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
