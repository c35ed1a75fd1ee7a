package postgres

import (
	"context"
	"errors"
	"strconv"

	"github.com/jackc/pgx/v5"

	"github.com/and161185/neptus-sync/internal/errs"
	"github.com/and161185/neptus-sync/internal/repository"
)

// MetaRepo implements repository.MetaRepository using PostgreSQL.
type MetaRepo struct{ db *DB }

var _ repository.MetaRepository = (*MetaRepo)(nil)

// NewMetaRepo constructs a flag repository.
func NewMetaRepo(db *DB) *MetaRepo { return &MetaRepo{db: db} }

const (
	selectFlag = `SELECT value FROM meta WHERE key=$1`
	upsertFlag = `INSERT INTO meta (key, value) VALUES ($1,$2) ON CONFLICT (key) DO UPDATE SET value=EXCLUDED.value`
)

func (r *MetaRepo) Flag(ctx context.Context, key string) (bool, error) {
	p, err := r.db.pool()
	if err != nil {
		return false, err
	}
	var v string
	err = p.QueryRow(ctx, selectFlag, key).Scan(&v)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, errs.Storage("get flag", err)
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, errs.Storage("get flag", err)
	}
	return b, nil
}

func (r *MetaRepo) SetFlag(ctx context.Context, key string, v bool) error {
	p, err := r.db.pool()
	if err != nil {
		return err
	}
	_, err = p.Exec(ctx, upsertFlag, key, strconv.FormatBool(v))
	return errs.Storage("set flag", err)
}
