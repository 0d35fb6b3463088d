package reroute

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_FullFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reroute.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: 9090
  origin: http://localhost:3000/
store:
  path: ./data/redirects
  collection: site_redirects
  timeout: 2s
redirects:
  exclude: ["/api", "/assets"]
logging:
  level: debug
  logStatsEvery: 30s
`), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "http://localhost:3000", cfg.Server.Origin)
	assert.Equal(t, "./data/redirects", cfg.Store.Path)
	assert.Equal(t, "site_redirects", cfg.Store.Collection)
	assert.Equal(t, 2*time.Second, cfg.StoreTimeout())
	assert.Equal(t, []string{"/api", "/assets"}, cfg.Redirects.Exclude)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, 30*time.Second, cfg.LogStatsEvery())
}

func TestParseConfig_Defaults(t *testing.T) {
	cfg, err := ParseConfig([]byte("{}"))
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Empty(t, cfg.Server.Origin)
	assert.Equal(t, DefaultCollection, cfg.Store.Collection)
	assert.Equal(t, DefaultStoreTimeout, cfg.StoreTimeout())
	assert.Equal(t, DefaultExclude, cfg.Redirects.Exclude)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Zero(t, cfg.LogStatsEvery())
}

func TestParseConfig_EmptyExcludeListDisablesExclusions(t *testing.T) {
	cfg, err := ParseConfig([]byte("redirects:\n  exclude: []\n"))
	require.NoError(t, err)
	assert.Empty(t, cfg.Redirects.Exclude)
	assert.NotNil(t, cfg.Redirects.Exclude)
}

func TestParseConfig_Errors(t *testing.T) {
	cases := map[string]string{
		"bad timeout":     "store:\n  timeout: soon\n",
		"zero timeout":    "store:\n  timeout: 0s\n",
		"bad stats":       "logging:\n  logStatsEvery: often\n",
		"relative prefix": "redirects:\n  exclude: [\"api\"]\n",
		"bad origin":      "server:\n  origin: ftp://files\n",
		"not yaml":        "server: [",
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseConfig([]byte(in))
			assert.Error(t, err)
		})
	}
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestExcludeMatcher(t *testing.T) {
	m := newExcludeMatcher([]string{"/api", "/_next/static", " ", "/favicon.ico"})

	prefix, ok := m.Match("/_next/static/css/app.css")
	assert.True(t, ok)
	assert.Equal(t, "/_next/static", prefix)

	_, ok = m.Match("/_next/data/page.json")
	assert.False(t, ok)
	_, ok = m.Match("/blog")
	assert.False(t, ok)

	_, ok = newExcludeMatcher(nil).Match("/api")
	assert.False(t, ok)
}
