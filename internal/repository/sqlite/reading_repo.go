package sqlite

import (
	"context"
	"errors"

	"github.com/gofrs/uuid/v5"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/and161185/neptus-sync/internal/errs"
	"github.com/and161185/neptus-sync/internal/model"
	"github.com/and161185/neptus-sync/internal/repository"
)

const insertBatch = 200

// ReadingRepo is the SQLite implementation of repository.ReadingRepository.
type ReadingRepo struct {
	db *DB
}

var _ repository.ReadingRepository = (*ReadingRepo)(nil)

func (r *ReadingRepo) Add(ctx context.Context, in model.NewReading) (string, error) {
	g, err := r.db.conn(ctx)
	if err != nil {
		return "", err
	}
	id, err := uuid.NewV4()
	if err != nil {
		return "", errs.Storage("add reading", err)
	}
	now := r.db.stamp()
	row := toReadingRow(model.Reading{
		ID:          id.String(),
		PropertyID:  in.PropertyID,
		TankID:      in.TankID,
		Turbidity:   in.Turbidity,
		Temperature: in.Temperature,
		PH:          in.PH,
		Oxygen:      in.Oxygen,
		Ammonia:     in.Ammonia,
		ColorImage:  in.ColorImage,
		CreatedAt:   now,
		UpdatedAt:   now,
		SyncStatus:  model.StatePending,
	})
	if err := g.Create(&row).Error; err != nil {
		return "", errs.Storage("add reading", err)
	}
	return row.ID, nil
}

func (r *ReadingRepo) GetByID(ctx context.Context, id string) (model.Reading, bool, error) {
	g, err := r.db.conn(ctx)
	if err != nil {
		return model.Reading{}, false, err
	}
	var row readingRow
	err = g.Where("id = ?", id).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.Reading{}, false, nil
	}
	if err != nil {
		return model.Reading{}, false, errs.Storage("get reading", err)
	}
	return row.model(), true, nil
}

func (r *ReadingRepo) GetByProperty(ctx context.Context, propertyID string) ([]model.Reading, error) {
	return r.list(ctx, "list readings by property", "property_id = ?", propertyID)
}

func (r *ReadingRepo) GetByTank(ctx context.Context, tankID string) ([]model.Reading, error) {
	return r.list(ctx, "list readings by tank", "tank_id = ?", tankID)
}

func (r *ReadingRepo) GetPending(ctx context.Context) ([]model.Reading, error) {
	g, err := r.db.conn(ctx)
	if err != nil {
		return nil, err
	}
	var rows []readingRow
	if err := g.Where("sync_status = ?", string(model.StatePending)).
		Order("created_at ASC").Order("id ASC").
		Find(&rows).Error; err != nil {
		return nil, errs.Storage("list pending", err)
	}
	return toReadings(rows), nil
}

func (r *ReadingRepo) CountPending(ctx context.Context) (int, error) {
	g, err := r.db.conn(ctx)
	if err != nil {
		return 0, err
	}
	var n int64
	if err := g.Model(&readingRow{}).Where("sync_status = ?", string(model.StatePending)).Count(&n).Error; err != nil {
		return 0, errs.Storage("count pending", err)
	}
	return int(n), nil
}

func (r *ReadingRepo) MarkSynced(ctx context.Context, id string) error {
	g, err := r.db.conn(ctx)
	if err != nil {
		return err
	}
	err = g.Model(&readingRow{}).
		Where("id = ? AND sync_status IN ?", id, []string{string(model.StatePending), string(model.StateSynced)}).
		Updates(map[string]any{
			"sync_status":   string(model.StateSynced),
			"synced_at":     r.db.stamp(),
			"error_message": "",
		}).Error
	return errs.Storage("mark synced", err)
}

func (r *ReadingRepo) MarkError(ctx context.Context, id, message string) error {
	g, err := r.db.conn(ctx)
	if err != nil {
		return err
	}
	err = g.Model(&readingRow{}).
		Where("id = ? AND sync_status = ?", id, string(model.StatePending)).
		Updates(map[string]any{
			"sync_status":   string(model.StateError),
			"error_message": message,
		}).Error
	return errs.Storage("mark error", err)
}

func (r *ReadingRepo) BulkReplace(ctx context.Context, propertyID string, rs []model.Reading) error {
	g, err := r.db.conn(ctx)
	if err != nil {
		return err
	}
	rows := r.downloaded(propertyID, rs)
	err = g.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("property_id = ?", propertyID).Delete(&readingRow{}).Error; err != nil {
			return err
		}
		return upsertReadings(tx, rows)
	})
	return errs.Storage("replace readings", err)
}

func (r *ReadingRepo) ReplaceForTank(ctx context.Context, propertyID, tankID string, rs []model.Reading) error {
	g, err := r.db.conn(ctx)
	if err != nil {
		return err
	}
	rows := r.downloaded(propertyID, rs)
	for i := range rows {
		if rows[i].TankID == "" {
			rows[i].TankID = tankID
		}
	}
	err = g.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("tank_id = ? AND sync_status <> ?", tankID, string(model.StatePending)).
			Delete(&readingRow{}).Error; err != nil {
			return err
		}
		return upsertReadings(tx, rows)
	})
	return errs.Storage("replace tank readings", err)
}

func (r *ReadingRepo) PruneOrphans(ctx context.Context, propertyID string) (int, error) {
	g, err := r.db.conn(ctx)
	if err != nil {
		return 0, err
	}
	tanks := g.Model(&tankRow{}).Select("id").Where("property_id = ?", propertyID)
	res := g.Where("property_id = ? AND sync_status <> ? AND tank_id NOT IN (?)",
		propertyID, string(model.StatePending), tanks).
		Delete(&readingRow{})
	return int(res.RowsAffected), errs.Storage("prune readings", res.Error)
}

func (r *ReadingRepo) Import(ctx context.Context, rs []model.Reading) error {
	if len(rs) == 0 {
		return nil
	}
	g, err := r.db.conn(ctx)
	if err != nil {
		return err
	}
	rows := make([]readingRow, 0, len(rs))
	for _, m := range rs {
		rows = append(rows, toReadingRow(m))
	}
	err = g.Clauses(clause.OnConflict{DoNothing: true}).CreateInBatches(&rows, insertBatch).Error
	return errs.Storage("import readings", err)
}

func (r *ReadingRepo) ClearByProperty(ctx context.Context, propertyID string) error {
	g, err := r.db.conn(ctx)
	if err != nil {
		return err
	}
	return errs.Storage("clear readings", g.Where("property_id = ?", propertyID).Delete(&readingRow{}).Error)
}

func (r *ReadingRepo) list(ctx context.Context, op, where string, arg string) ([]model.Reading, error) {
	g, err := r.db.conn(ctx)
	if err != nil {
		return nil, err
	}
	var rows []readingRow
	if err := g.Where(where, arg).Order("created_at DESC").Order("id DESC").Find(&rows).Error; err != nil {
		return nil, errs.Storage(op, err)
	}
	return toReadings(rows), nil
}

// downloaded stamps server readings as synced members of propertyID.
func (r *ReadingRepo) downloaded(propertyID string, rs []model.Reading) []readingRow {
	now := r.db.stamp()
	rows := make([]readingRow, 0, len(rs))
	for _, m := range rs {
		m.PropertyID = propertyID
		m.SyncStatus = model.StateSynced
		m.ErrorMessage = ""
		if m.SyncedAt == nil {
			m.SyncedAt = &now
		}
		if m.CreatedAt.IsZero() {
			m.CreatedAt = now
		}
		if m.UpdatedAt.IsZero() {
			m.UpdatedAt = m.CreatedAt
		}
		rows = append(rows, toReadingRow(m))
	}
	return rows
}

func upsertReadings(tx *gorm.DB, rows []readingRow) error {
	if len(rows) == 0 {
		return nil
	}
	return tx.Clauses(clause.OnConflict{UpdateAll: true}).CreateInBatches(&rows, insertBatch).Error
}

func toReadings(rows []readingRow) []model.Reading {
	out := make([]model.Reading, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.model())
	}
	return out
}
