// Package postgres contains PostgreSQL implementations of repository interfaces.
package postgres

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/and161185/neptus-sync/internal/errs"
	"github.com/and161185/neptus-sync/internal/migrate"
	"github.com/and161185/neptus-sync/internal/repository"
)

// PgxPool is a minimal abstraction over a Postgres connection pool,
// used by repositories. It is implemented by *pgxpool.Pool and pgxmock.PgxPoolIface.
type PgxPool interface {
	// Exec executes a SQL command and returns the command tag.
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	// Query executes a SELECT and returns a rows iterator.
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	// QueryRow executes a query expected to return at most one row.
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	// BeginTx starts a transaction with the provided options.
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
	// Close shuts down the pool and frees resources.
	Close()
}

// DB wraps pgxpool.Pool to satisfy repository.Store and allow testing.
type DB struct {
	Pool PgxPool
	// Now is the time source for createdAt/updatedAt/syncedAt. Defaults to time.Now.
	Now func() time.Time

	closed atomic.Bool
}

var _ repository.Store = (*DB)(nil)

// New creates a new connection pool for the given DSN.
func New(ctx context.Context, dsn string) (*DB, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, errs.Storage("open", err)
	}
	return &DB{Pool: pool}, nil
}

// Open migrates the database at dsn and connects to it.
func Open(ctx context.Context, dsn string) (*DB, error) {
	if err := migrate.UpDSN(ctx, dsn); err != nil {
		return nil, errs.Storage("migrate", err)
	}
	return New(ctx, dsn)
}

// Close closes the underlying pool. It is safe to call more than once.
func (db *DB) Close() error {
	if db.closed.CompareAndSwap(false, true) {
		db.Pool.Close()
	}
	return nil
}

func (db *DB) pool() (PgxPool, error) {
	if db == nil || db.Pool == nil || db.closed.Load() {
		return nil, errs.ErrStoreClosed
	}
	return db.Pool, nil
}

func (db *DB) stamp() time.Time {
	if db.Now != nil {
		return db.Now().UTC()
	}
	return time.Now().UTC()
}

// inTx runs fn in a transaction, committing when fn succeeds.
func (db *DB) inTx(ctx context.Context, fn func(tx pgx.Tx) error) (err error) {
	p, err := db.pool()
	if err != nil {
		return err
	}
	tx, err := p.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
			return
		}
		if e := tx.Commit(ctx); e != nil {
			err = e
		}
	}()
	return fn(tx)
}

// Readings returns the reading repository.
func (db *DB) Readings() repository.ReadingRepository { return NewReadingRepo(db) }

// Tanks returns the tank repository.
func (db *DB) Tanks() repository.TankRepository { return NewTankRepo(db) }

// Properties returns the property repository.
func (db *DB) Properties() repository.PropertyRepository { return NewPropertyRepo(db) }

// Meta returns the flag repository.
func (db *DB) Meta() repository.MetaRepository { return NewMetaRepo(db) }

const (
	clearReadingsByProperty = `DELETE FROM readings WHERE property_id=$1`
	clearTanksByProperty    = `DELETE FROM tanks WHERE property_id=$1`
	deleteProperty          = `DELETE FROM properties WHERE id=$1`
	clearAll                = `TRUNCATE readings, tanks, properties`
)

// ClearByProperty deletes readings, tanks and the cached property in one transaction.
func (db *DB) ClearByProperty(ctx context.Context, propertyID string) error {
	err := db.inTx(ctx, func(tx pgx.Tx) error {
		for _, q := range []string{clearReadingsByProperty, clearTanksByProperty, deleteProperty} {
			if _, err := tx.Exec(ctx, q, propertyID); err != nil {
				return err
			}
		}
		return nil
	})
	return storage("clear property", err)
}

// ClearAll wipes readings, tanks and properties. Flags are kept.
func (db *DB) ClearAll(ctx context.Context) error {
	p, err := db.pool()
	if err != nil {
		return err
	}
	_, err = p.Exec(ctx, clearAll)
	return errs.Storage("clear all", err)
}

// storage wraps err unless it is the closed-store sentinel.
func storage(op string, err error) error {
	if err == errs.ErrStoreClosed {
		return err
	}
	return errs.Storage(op, err)
}
