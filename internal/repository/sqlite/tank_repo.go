package sqlite

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/and161185/neptus-sync/internal/errs"
	"github.com/and161185/neptus-sync/internal/model"
	"github.com/and161185/neptus-sync/internal/repository"
)

// TankRepo is the SQLite implementation of repository.TankRepository.
type TankRepo struct {
	db *DB
}

var _ repository.TankRepository = (*TankRepo)(nil)

func (r *TankRepo) GetByProperty(ctx context.Context, propertyID string) ([]model.Tank, error) {
	g, err := r.db.conn(ctx)
	if err != nil {
		return nil, err
	}
	var rows []tankRow
	if err := g.Where("property_id = ?", propertyID).Order("name ASC").Order("id ASC").Find(&rows).Error; err != nil {
		return nil, errs.Storage("list tanks", err)
	}
	out := make([]model.Tank, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.model())
	}
	return out, nil
}

func (r *TankRepo) BulkReplace(ctx context.Context, propertyID string, ts []model.Tank) error {
	g, err := r.db.conn(ctx)
	if err != nil {
		return err
	}
	now := r.db.stamp()
	rows := make([]tankRow, 0, len(ts))
	for _, t := range ts {
		t.PropertyID = propertyID
		t.SyncStatus = model.StateSynced
		if t.CreatedAt.IsZero() {
			t.CreatedAt = now
		}
		if t.UpdatedAt.IsZero() {
			t.UpdatedAt = t.CreatedAt
		}
		rows = append(rows, toTankRow(t))
	}
	err = g.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("property_id = ?", propertyID).Delete(&tankRow{}).Error; err != nil {
			return err
		}
		if len(rows) == 0 {
			return nil
		}
		return tx.Clauses(clause.OnConflict{UpdateAll: true}).CreateInBatches(&rows, insertBatch).Error
	})
	return errs.Storage("replace tanks", err)
}

func (r *TankRepo) ClearByProperty(ctx context.Context, propertyID string) error {
	g, err := r.db.conn(ctx)
	if err != nil {
		return err
	}
	return errs.Storage("clear tanks", g.Where("property_id = ?", propertyID).Delete(&tankRow{}).Error)
}
