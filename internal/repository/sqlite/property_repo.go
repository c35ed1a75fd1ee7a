package sqlite

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/and161185/neptus-sync/internal/errs"
	"github.com/and161185/neptus-sync/internal/model"
	"github.com/and161185/neptus-sync/internal/repository"
)

// PropertyRepo is the SQLite implementation of repository.PropertyRepository.
type PropertyRepo struct {
	db *DB
}

var _ repository.PropertyRepository = (*PropertyRepo)(nil)

func (r *PropertyRepo) GetAll(ctx context.Context) ([]model.Property, error) {
	g, err := r.db.conn(ctx)
	if err != nil {
		return nil, err
	}
	var rows []propertyRow
	if err := g.Order("name ASC").Order("id ASC").Find(&rows).Error; err != nil {
		return nil, errs.Storage("list properties", err)
	}
	out := make([]model.Property, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.model())
	}
	return out, nil
}

func (r *PropertyRepo) GetByID(ctx context.Context, id string) (model.Property, bool, error) {
	g, err := r.db.conn(ctx)
	if err != nil {
		return model.Property{}, false, err
	}
	var row propertyRow
	err = g.Where("id = ?", id).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.Property{}, false, nil
	}
	if err != nil {
		return model.Property{}, false, errs.Storage("get property", err)
	}
	return row.model(), true, nil
}

func (r *PropertyRepo) Save(ctx context.Context, p model.Property) error {
	g, err := r.db.conn(ctx)
	if err != nil {
		return err
	}
	row := r.stamped(p)
	return errs.Storage("save property", g.Clauses(clause.OnConflict{UpdateAll: true}).Create(&row).Error)
}

func (r *PropertyRepo) BulkReplace(ctx context.Context, ps []model.Property) error {
	g, err := r.db.conn(ctx)
	if err != nil {
		return err
	}
	rows := make([]propertyRow, 0, len(ps))
	for _, p := range ps {
		rows = append(rows, r.stamped(p))
	}
	err = g.Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec("DELETE FROM properties").Error; err != nil {
			return err
		}
		if len(rows) == 0 {
			return nil
		}
		return tx.Clauses(clause.OnConflict{UpdateAll: true}).CreateInBatches(&rows, insertBatch).Error
	})
	return errs.Storage("replace properties", err)
}

func (r *PropertyRepo) stamped(p model.Property) propertyRow {
	now := r.db.stamp()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = now
	}
	return toPropertyRow(p)
}
