package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func noEnvFile(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "missing.env")
}

func TestLoad_Defaults(t *testing.T) {
	home := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", home)
	t.Setenv("NEPTUS_API_BASE_URL", "https://api.example.com/")

	c, err := Load(Options{EnvFile: noEnvFile(t)})
	require.NoError(t, err)

	require.Equal(t, "https://api.example.com", c.API.BaseURL, "trailing slash is trimmed")
	require.Equal(t, 30*time.Second, c.API.Timeout)
	require.Equal(t, 2, c.API.Retries)
	require.Equal(t, 50, c.API.PageSize)
	require.Equal(t, 4, c.API.MaxParallel)
	require.Equal(t, DriverSQLite, c.Store.Driver)
	require.Equal(t, 30*time.Second, c.Sync.Interval)
	require.Equal(t, "info", c.Log.Level)
	require.Equal(t, filepath.Join(home, "neptus-sync"), c.Session.Dir)
	require.Equal(t, filepath.Join(home, "neptus-sync", "neptus.db"), c.Store.Path)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("NEPTUS_API_BASE_URL", "http://localhost:8080")
	t.Setenv("NEPTUS_API_TIMEOUT", "5s")
	t.Setenv("NEPTUS_API_RETRIES", "0")
	t.Setenv("NEPTUS_API_MAX_PARALLEL", "0")
	t.Setenv("NEPTUS_SYNC_INTERVAL", "1m")
	t.Setenv("NEPTUS_STORE_DRIVER", "Postgres")
	t.Setenv("NEPTUS_STORE_DSN", "postgres://u:p@localhost/neptus")
	t.Setenv("NEPTUS_SESSION_DIR", "/tmp/neptus-session")

	c, err := Load(Options{EnvFile: noEnvFile(t)})
	require.NoError(t, err)
	require.Equal(t, 5*time.Second, c.API.Timeout)
	require.Zero(t, c.API.Retries)
	require.Zero(t, c.API.MaxParallel, "0 disables the cap")
	require.Equal(t, time.Minute, c.Sync.Interval)
	require.Equal(t, DriverPostgres, c.Store.Driver)
	require.Equal(t, "postgres://u:p@localhost/neptus", c.Store.DSN)
	require.Equal(t, "/tmp/neptus-session", c.Session.Dir)
}

func TestLoad_ConfigFile(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	path := filepath.Join(t.TempDir(), "neptus.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
api:
  base_url: https://file.example.com
  page_size: 20
sync:
  interval: 45s
log:
  level: debug
`), 0o600))
	t.Setenv("NEPTUS_API_PAGE_SIZE", "25")

	c, err := Load(Options{ConfigFile: path, EnvFile: noEnvFile(t)})
	require.NoError(t, err)
	require.Equal(t, "https://file.example.com", c.API.BaseURL)
	require.Equal(t, 25, c.API.PageSize, "environment wins over the file")
	require.Equal(t, 45*time.Second, c.Sync.Interval)
	require.Equal(t, "debug", c.Log.Level)
}

func TestLoad_MissingConfigFile(t *testing.T) {
	_, err := Load(Options{ConfigFile: filepath.Join(t.TempDir(), "nope.yaml"), EnvFile: noEnvFile(t)})
	require.Error(t, err)
}

func TestLoad_DotEnv(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	env := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(env, []byte("NEPTUS_API_BASE_URL=https://dotenv.example.com\n"), 0o600))
	t.Cleanup(func() { _ = os.Unsetenv("NEPTUS_API_BASE_URL") })

	c, err := Load(Options{EnvFile: env})
	require.NoError(t, err)
	require.Equal(t, "https://dotenv.example.com", c.API.BaseURL)
}

func TestValidate(t *testing.T) {
	valid := Config{
		API:   API{BaseURL: "https://api.example.com", Timeout: time.Second, PageSize: 50},
		Store: Store{Driver: DriverSQLite},
		Sync:  Sync{Interval: time.Second},
		Log:   Log{Level: "info"},
	}
	require.NoError(t, valid.Validate())

	cases := map[string]func(c *Config){
		"no base url":       func(c *Config) { c.API.BaseURL = "" },
		"not http":          func(c *Config) { c.API.BaseURL = "ftp://x" },
		"zero interval":     func(c *Config) { c.Sync.Interval = 0 },
		"zero timeout":      func(c *Config) { c.API.Timeout = 0 },
		"negative retries":  func(c *Config) { c.API.Retries = -1 },
		"zero page size":    func(c *Config) { c.API.PageSize = 0 },
		"negative parallel": func(c *Config) { c.API.MaxParallel = -1 },
		"unknown driver":    func(c *Config) { c.Store.Driver = "mysql" },
		"postgres no dsn":   func(c *Config) { c.Store.Driver = DriverPostgres },
		"bad log level":     func(c *Config) { c.Log.Level = "loud" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			c := valid
			mutate(&c)
			require.ErrorIs(t, c.Validate(), ErrInvalid)
		})
	}
}
