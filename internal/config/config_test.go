package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quietfield/a11yd/internal/config"
)

func TestDefault(t *testing.T) {
	cfg := config.Default()

	assert.Equal(t, ":3001", cfg.Server.Addr)
	assert.False(t, cfg.Server.DevMode)
	assert.True(t, cfg.Browser.Headless)
	assert.Equal(t, int64(4), cfg.Browser.MaxContexts)
	assert.Equal(t, 30*time.Second, cfg.Browser.NavigationTimeout)
	assert.Equal(t, 2*time.Second, cfg.Browser.NetworkQuiet)
	assert.Equal(t, "assets/axe.min.js", cfg.Auditor.ScriptPath)
	assert.Equal(t, []string{"wcag2a", "wcag2aa", "wcag21aa", "best-practice"}, cfg.Auditor.DefaultTags)
	assert.Equal(t, "a11yd.db", cfg.Store.Path)
	assert.Equal(t, time.Hour, cfg.Auth.TokenTTL)
	assert.Equal(t, 10, cfg.Auth.BcryptCost)
	assert.Equal(t, "info", cfg.Logger.Level)
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a11yd.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  addr: ":8080"
  dev_mode: true
browser:
  navigation_timeout: 10s
auth:
  jwt_secret: file-secret
`), 0o644))

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.True(t, cfg.Server.DevMode)
	assert.Equal(t, 10*time.Second, cfg.Browser.NavigationTimeout)
	assert.Equal(t, "file-secret", cfg.Auth.JWTSecret)
	// Untouched keys keep their defaults.
	assert.Equal(t, "a11yd.db", cfg.Store.Path)
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("A11YD_AUTH_JWT_SECRET", "env-secret")
	t.Setenv("A11YD_SERVER_ADDR", ":9999")

	cfg, err := config.Load("")
	require.NoError(t, err)

	assert.Equal(t, "env-secret", cfg.Auth.JWTSecret)
	assert.Equal(t, ":9999", cfg.Server.Addr)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}
