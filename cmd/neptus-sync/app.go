package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/and161185/neptus-sync/internal/auth"
	"github.com/and161185/neptus-sync/internal/config"
	"github.com/and161185/neptus-sync/internal/errs"
	"github.com/and161185/neptus-sync/internal/gateway"
	"github.com/and161185/neptus-sync/internal/logging"
	"github.com/and161185/neptus-sync/internal/repository"
	"github.com/and161185/neptus-sync/internal/repository/postgres"
	"github.com/and161185/neptus-sync/internal/repository/sqlite"
	"github.com/and161185/neptus-sync/internal/syncer"
)

// app owns everything a command may need and builds it on first use.
type app struct {
	v          *viper.Viper
	configFile string
	envFile    string
	out        io.Writer

	sourcesRead bool
	cfg         *config.Config
	log         *zap.Logger
	store       repository.Store
	manager     *syncer.Manager
	sess        *auth.Session
}

func newApp(out io.Writer) *app {
	return &app{v: config.New(), out: out}
}

func (a *app) sources() error {
	if a.sourcesRead {
		return nil
	}
	if err := config.ReadSources(a.v, config.Options{ConfigFile: a.configFile, EnvFile: a.envFile}); err != nil {
		return err
	}
	a.sourcesRead = true
	return nil
}

func (a *app) config() (config.Config, error) {
	if a.cfg != nil {
		return *a.cfg, nil
	}
	if err := a.sources(); err != nil {
		return config.Config{}, err
	}
	c, err := config.FromViper(a.v)
	if err != nil {
		return config.Config{}, err
	}
	a.cfg = &c
	return c, nil
}

func (a *app) logger() (*zap.Logger, error) {
	if a.log != nil {
		return a.log, nil
	}
	c, err := a.config()
	if err != nil {
		return nil, err
	}
	log, err := logging.New(logging.Options{Level: c.Log.Level, File: c.Log.File})
	if err != nil {
		return nil, err
	}
	a.log = log.With(zap.String("app", "neptus-sync"))
	return a.log, nil
}

// session returns the session store. It needs only session.dir, so login works without a full config.
func (a *app) session() (*auth.FileSession, error) {
	if err := a.sources(); err != nil {
		return nil, err
	}
	return auth.NewFileSession(a.v.GetString("session.dir")), nil
}

// credentials returns the saved session, or a zero session when there is none.
func (a *app) credentials() (auth.Session, error) {
	if a.sess != nil {
		return *a.sess, nil
	}
	fs, err := a.session()
	if err != nil {
		return auth.Session{}, err
	}
	s, err := fs.Load()
	if err != nil && !errors.Is(err, errs.ErrNoCredentials) {
		return auth.Session{}, err
	}
	a.sess = &s
	return s, nil
}

func (a *app) openStore(ctx context.Context) (repository.Store, error) {
	if a.store != nil {
		return a.store, nil
	}
	c, err := a.config()
	if err != nil {
		return nil, err
	}
	log, err := a.logger()
	if err != nil {
		return nil, err
	}

	var st repository.Store
	switch c.Store.Driver {
	case config.DriverPostgres:
		st, err = postgres.Open(ctx, c.Store.DSN)
	default:
		st, err = sqlite.Open(ctx, c.Store.Path)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", c.Store.Driver, err)
	}
	log.Debug("store opened", zap.String("driver", c.Store.Driver))
	a.store = st
	return st, nil
}

// syncManager wires store, gateway and the saved session into a Manager.
func (a *app) syncManager(ctx context.Context) (*syncer.Manager, error) {
	if a.manager != nil {
		return a.manager, nil
	}
	st, err := a.openStore(ctx)
	if err != nil {
		return nil, err
	}
	c, _ := a.config()
	log, _ := a.logger()
	sess, err := a.credentials()
	if err != nil {
		return nil, err
	}

	client := gateway.New(gateway.Options{
		BaseURL:     c.API.BaseURL,
		Timeout:     c.API.Timeout,
		RetryCount:  c.API.Retries,
		PageSize:    c.API.PageSize,
		MaxParallel: c.API.MaxParallel,
		Logger:      log.Named("gateway"),
	})
	m := syncer.NewManager(st, client,
		syncer.WithLogger(log.Named("sync")),
		syncer.WithMaxParallel(c.API.MaxParallel),
	)
	m.SetCredentials(sess.AccessToken, sess.PropertyID)
	a.manager = m
	return m, nil
}

// close releases the store and flushes the logger.
func (a *app) close() {
	if a.store != nil {
		if err := a.store.Close(); err != nil && a.log != nil {
			a.log.Warn("close store", zap.Error(err))
		}
	}
	if a.log != nil {
		_ = a.log.Sync()
	}
}

func (a *app) printJSON(v any) {
	enc := json.NewEncoder(a.out)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}
