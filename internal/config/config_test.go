package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	require.NoError(t, Load(""))
	cfg := Get()

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 30*time.Second, cfg.Server.RequestTimeoutDuration())
	assert.Equal(t, "http://localhost:1337/api", cfg.Strapi.APIBase())
	assert.Equal(t, 15*time.Second, cfg.Strapi.TimeoutDuration())
	assert.Equal(t, 25, cfg.Pagination.DefaultPageSize)
	assert.Equal(t, 100, cfg.Pagination.MaxPageSize)
	assert.True(t, cfg.Upload.CleanupOrphans)
	assert.Empty(t, cfg.Session.CSRFKey)
}

func TestLoadFileAndEnvOverride(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9000
strapi:
  base_url: https://cms.example.com/
  prefix: api
pagination:
  default_page_size: 10
  max_page_size: 50
`)
	t.Setenv("APP_STRAPI_TOKEN", "secret")
	t.Setenv("APP_SERVER_PORT", "9100")

	require.NoError(t, Load(path))
	cfg := Get()

	assert.Equal(t, 9100, cfg.Server.Port, "env wins over file")
	assert.Equal(t, "secret", cfg.Strapi.Token)
	assert.Equal(t, "https://cms.example.com/api", cfg.Strapi.APIBase())
	assert.Equal(t, 10, cfg.Pagination.DefaultPageSize)
	assert.Equal(t, 50, cfg.Pagination.MaxPageSize)
}

func TestLoadRejectsInvalidConfig(t *testing.T) {
	cases := map[string]string{
		"bad url": `
strapi:
  base_url: cms:1337
`,
		"short key": `
session:
  hash_key: tooshort
`,
		"stale shorter than ttl": `
cache:
  ttl: 60
  stale_ttl: 10
`,
		"max page below default": `
pagination:
  default_page_size: 50
  max_page_size: 20
`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			err := Load(writeConfig(t, body))
			require.Error(t, err)
			assert.Contains(t, err.Error(), "config validation failed")
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read config file")
}

func TestReload(t *testing.T) {
	require.NoError(t, Load(""))
	require.NoError(t, Reload(writeConfig(t, "server:\n  port: 7000\n")))
	assert.Equal(t, 7000, Get().Server.Port)
}
