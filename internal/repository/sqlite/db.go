// Package sqlite implements the local store on an embedded, CGO-free SQLite file through gorm.
package sqlite

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/and161185/neptus-sync/internal/errs"
	"github.com/and161185/neptus-sync/internal/migrate"
	"github.com/and161185/neptus-sync/internal/repository"
)

// DB is an open SQLite store. It satisfies repository.Store.
type DB struct {
	gorm   *gorm.DB
	now    func() time.Time
	closed atomic.Bool
}

var _ repository.Store = (*DB)(nil)

// Option customises Open.
type Option func(*DB)

// WithClock overrides the time source used for createdAt/updatedAt/syncedAt.
func WithClock(now func() time.Time) Option {
	return func(db *DB) { db.now = now }
}

// Open creates (if needed) and migrates the database file at path.
// The caller MUST call Close when done.
func Open(ctx context.Context, path string, opts ...Option) (*DB, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, errs.Storage("open", fmt.Errorf("create database directory: %w", err))
		}
	}

	g, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		NowFunc:        func() time.Time { return time.Now().UTC() },
		TranslateError: true,
	})
	if err != nil {
		return nil, errs.Storage("open", err)
	}

	sqlDB, err := g.DB()
	if err != nil {
		return nil, errs.Storage("open", err)
	}
	// A single connection serialises writers; sync fan-out and UI writes queue instead of failing with SQLITE_BUSY.
	sqlDB.SetMaxOpenConns(1)

	for _, pragma := range []string{"PRAGMA foreign_keys = ON", "PRAGMA busy_timeout = 5000", "PRAGMA journal_mode = WAL"} {
		if err := g.WithContext(ctx).Exec(pragma).Error; err != nil {
			_ = sqlDB.Close()
			return nil, errs.Storage("open", err)
		}
	}

	if err := migrate.Up(ctx, sqlDB, migrate.SQLite); err != nil {
		_ = sqlDB.Close()
		return nil, errs.Storage("migrate", err)
	}

	db := &DB{gorm: g, now: time.Now}
	for _, opt := range opts {
		opt(db)
	}
	return db, nil
}

// Close closes the underlying connection. It is safe to call more than once.
func (db *DB) Close() error {
	if db == nil || db.gorm == nil || !db.closed.CompareAndSwap(false, true) {
		return nil
	}
	sqlDB, err := db.gorm.DB()
	if err != nil {
		return errs.Storage("close", err)
	}
	return errs.Storage("close", sqlDB.Close())
}

// conn returns a context-bound handle or ErrStoreClosed.
func (db *DB) conn(ctx context.Context) (*gorm.DB, error) {
	if db == nil || db.gorm == nil || db.closed.Load() {
		return nil, errs.ErrStoreClosed
	}
	return db.gorm.WithContext(ctx), nil
}

func (db *DB) stamp() time.Time { return db.now().UTC() }

// Readings returns the reading repository.
func (db *DB) Readings() repository.ReadingRepository { return &ReadingRepo{db: db} }

// Tanks returns the tank repository.
func (db *DB) Tanks() repository.TankRepository { return &TankRepo{db: db} }

// Properties returns the property repository.
func (db *DB) Properties() repository.PropertyRepository { return &PropertyRepo{db: db} }

// Meta returns the flag repository.
func (db *DB) Meta() repository.MetaRepository { return &MetaRepo{db: db} }

// ClearByProperty deletes readings, tanks and the cached property in one transaction.
func (db *DB) ClearByProperty(ctx context.Context, propertyID string) error {
	g, err := db.conn(ctx)
	if err != nil {
		return err
	}
	err = g.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("property_id = ?", propertyID).Delete(&readingRow{}).Error; err != nil {
			return err
		}
		if err := tx.Where("property_id = ?", propertyID).Delete(&tankRow{}).Error; err != nil {
			return err
		}
		return tx.Where("id = ?", propertyID).Delete(&propertyRow{}).Error
	})
	return errs.Storage("clear property", err)
}

// ClearAll wipes readings, tanks and properties. Flags are kept.
func (db *DB) ClearAll(ctx context.Context) error {
	g, err := db.conn(ctx)
	if err != nil {
		return err
	}
	err = g.Transaction(func(tx *gorm.DB) error {
		for _, table := range []string{"readings", "tanks", "properties"} {
			if err := tx.Exec("DELETE FROM " + table).Error; err != nil {
				return err
			}
		}
		return nil
	})
	return errs.Storage("clear all", err)
}
