package sqlite

import (
	"context"
	"errors"
	"strconv"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/and161185/neptus-sync/internal/errs"
	"github.com/and161185/neptus-sync/internal/repository"
)

// MetaRepo is the SQLite implementation of repository.MetaRepository.
type MetaRepo struct {
	db *DB
}

var _ repository.MetaRepository = (*MetaRepo)(nil)

func (r *MetaRepo) Flag(ctx context.Context, key string) (bool, error) {
	g, err := r.db.conn(ctx)
	if err != nil {
		return false, err
	}
	var row metaRow
	err = g.Where("key = ?", key).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, errs.Storage("get flag", err)
	}
	v, err := strconv.ParseBool(row.Value)
	if err != nil {
		return false, errs.Storage("get flag", err)
	}
	return v, nil
}

func (r *MetaRepo) SetFlag(ctx context.Context, key string, v bool) error {
	g, err := r.db.conn(ctx)
	if err != nil {
		return err
	}
	row := metaRow{Key: key, Value: strconv.FormatBool(v)}
	return errs.Storage("set flag", g.Clauses(clause.OnConflict{UpdateAll: true}).Create(&row).Error)
}
