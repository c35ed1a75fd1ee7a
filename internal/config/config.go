// Package config loads client settings from defaults, an optional config file, .env and NEPTUS_* variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"go.uber.org/zap/zapcore"

	"github.com/and161185/neptus-sync/internal/auth"
)

// EnvPrefix is prepended to every environment key: api.base_url is NEPTUS_API_BASE_URL.
const EnvPrefix = "NEPTUS"

// Store drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("invalid config")

type API struct {
	BaseURL     string
	Timeout     time.Duration
	Retries     int
	PageSize    int
	// MaxParallel caps concurrent page and per-tank downloads; 0 means no cap.
	MaxParallel int
}

type Store struct {
	Driver string
	Path   string // sqlite file
	DSN    string // postgres
}

type Sync struct {
	Interval time.Duration
}

type Log struct {
	Level string
	File  string // empty: stderr
}

type Session struct {
	Dir string
}

// Config is the resolved client configuration.
type Config struct {
	API     API
	Store   Store
	Sync    Sync
	Log     Log
	Session Session
}

// Options selects optional sources. Empty fields are skipped, except EnvFile which defaults to ".env".
type Options struct {
	ConfigFile string
	EnvFile    string
}

// SetDefaults registers default values on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("api.base_url", "")
	v.SetDefault("api.timeout", 30*time.Second)
	v.SetDefault("api.retries", 2)
	v.SetDefault("api.page_size", 50)
	v.SetDefault("api.max_parallel", 4)
	v.SetDefault("store.driver", DriverSQLite)
	v.SetDefault("store.path", "")
	v.SetDefault("store.dsn", "")
	v.SetDefault("sync.interval", 30*time.Second)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "")
	v.SetDefault("session.dir", "")
}

// New returns a viper instance bound to defaults and the NEPTUS_ environment.
func New() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads .env (if present), the config file (if given) and the environment, then validates.
// Values already in the process environment win over .env.
func Load(opts Options) (Config, error) {
	v := New()
	if err := ReadSources(v, opts); err != nil {
		return Config{}, err
	}
	return FromViper(v)
}

// ReadSources loads the optional .env and config file into v without validating.
func ReadSources(v *viper.Viper, opts Options) error {
	envFile := opts.EnvFile
	if envFile == "" {
		envFile = ".env"
	}
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load %s: %w", envFile, err)
	}
	if opts.ConfigFile != "" {
		v.SetConfigFile(opts.ConfigFile)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("read config %s: %w", opts.ConfigFile, err)
		}
	}
	return nil
}

// FromViper resolves and validates a Config from v. Command-line flags bound to v take part.
func FromViper(v *viper.Viper) (Config, error) {
	c := Config{
		API: API{
			BaseURL:     strings.TrimRight(strings.TrimSpace(v.GetString("api.base_url")), "/"),
			Timeout:     v.GetDuration("api.timeout"),
			Retries:     v.GetInt("api.retries"),
			PageSize:    v.GetInt("api.page_size"),
			MaxParallel: v.GetInt("api.max_parallel"),
		},
		Store: Store{
			Driver: strings.ToLower(strings.TrimSpace(v.GetString("store.driver"))),
			Path:   v.GetString("store.path"),
			DSN:    v.GetString("store.dsn"),
		},
		Sync:    Sync{Interval: v.GetDuration("sync.interval")},
		Log:     Log{Level: v.GetString("log.level"), File: v.GetString("log.file")},
		Session: Session{Dir: v.GetString("session.dir")},
	}
	if c.Session.Dir == "" {
		c.Session.Dir = auth.DefaultDir()
	}
	if c.Store.Path == "" {
		c.Store.Path = filepath.Join(c.Session.Dir, "neptus.db")
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate checks the rules every command relies on.
func (c Config) Validate() error {
	if c.API.BaseURL == "" {
		return fmt.Errorf("%w: api.base_url is required", ErrInvalid)
	}
	u, err := url.Parse(c.API.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: api.base_url %q is not an http(s) URL", ErrInvalid, c.API.BaseURL)
	}
	if c.API.Timeout <= 0 {
		return fmt.Errorf("%w: api.timeout must be positive", ErrInvalid)
	}
	if c.API.Retries < 0 {
		return fmt.Errorf("%w: api.retries must not be negative", ErrInvalid)
	}
	if c.API.PageSize <= 0 {
		return fmt.Errorf("%w: api.page_size must be positive", ErrInvalid)
	}
	if c.API.MaxParallel < 0 {
		return fmt.Errorf("%w: api.max_parallel must not be negative", ErrInvalid)
	}
	if c.Sync.Interval <= 0 {
		return fmt.Errorf("%w: sync.interval must be positive", ErrInvalid)
	}
	switch c.Store.Driver {
	case DriverSQLite:
	case DriverPostgres:
		if c.Store.DSN == "" {
			return fmt.Errorf("%w: store.dsn is required for the postgres driver", ErrInvalid)
		}
	default:
		return fmt.Errorf("%w: unknown store.driver %q", ErrInvalid, c.Store.Driver)
	}
	if _, err := zapcore.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("%w: log.level: %v", ErrInvalid, err)
	}
	return nil
}
