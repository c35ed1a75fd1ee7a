package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/and161185/neptus-sync/internal/errs"
	"github.com/and161185/neptus-sync/internal/model"
	"github.com/and161185/neptus-sync/internal/repository"
)

// TankRepo implements repository.TankRepository using PostgreSQL.
type TankRepo struct{ db *DB }

var _ repository.TankRepository = (*TankRepo)(nil)

// NewTankRepo constructs a tank repository.
func NewTankRepo(db *DB) *TankRepo { return &TankRepo{db: db} }

const (
	selectTanksProperty = `
SELECT id, user_id, property_id, name, area, fish_type, fish_weight, fish_count, active, created_at, updated_at, sync_status
FROM tanks
WHERE property_id=$1
ORDER BY name ASC, id ASC`
	upsertTank = `
INSERT INTO tanks (id, user_id, property_id, name, area, fish_type, fish_weight, fish_count, active, created_at, updated_at, sync_status)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,'synced')
ON CONFLICT (id) DO UPDATE SET user_id=EXCLUDED.user_id, property_id=EXCLUDED.property_id, name=EXCLUDED.name,
area=EXCLUDED.area, fish_type=EXCLUDED.fish_type, fish_weight=EXCLUDED.fish_weight, fish_count=EXCLUDED.fish_count,
active=EXCLUDED.active, created_at=EXCLUDED.created_at, updated_at=EXCLUDED.updated_at, sync_status='synced'`
)

func (r *TankRepo) GetByProperty(ctx context.Context, propertyID string) ([]model.Tank, error) {
	p, err := r.db.pool()
	if err != nil {
		return nil, err
	}
	rows, err := p.Query(ctx, selectTanksProperty, propertyID)
	if err != nil {
		return nil, errs.Storage("list tanks", err)
	}
	defer rows.Close()

	out := []model.Tank{}
	for rows.Next() {
		var (
			t      model.Tank
			status string
		)
		if err := rows.Scan(&t.ID, &t.UserID, &t.PropertyID, &t.Name, &t.Area, &t.FishType,
			&t.FishWeight, &t.FishCount, &t.Active, &t.CreatedAt, &t.UpdatedAt, &status); err != nil {
			return nil, errs.Storage("list tanks", err)
		}
		t.SyncStatus = model.SyncState(status)
		t.CreatedAt, t.UpdatedAt = t.CreatedAt.UTC(), t.UpdatedAt.UTC()
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, errs.Storage("list tanks", err)
	}
	return out, nil
}

// BulkReplace swaps the property's tanks for ts in one transaction.
func (r *TankRepo) BulkReplace(ctx context.Context, propertyID string, ts []model.Tank) error {
	now := r.db.stamp()
	err := r.db.inTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, clearTanksByProperty, propertyID); err != nil {
			return err
		}
		for _, t := range ts {
			if t.CreatedAt.IsZero() {
				t.CreatedAt = now
			}
			if t.UpdatedAt.IsZero() {
				t.UpdatedAt = t.CreatedAt
			}
			if _, err := tx.Exec(ctx, upsertTank, t.ID, t.UserID, propertyID, t.Name, t.Area, t.FishType,
				t.FishWeight, t.FishCount, t.Active, t.CreatedAt, t.UpdatedAt); err != nil {
				return err
			}
		}
		return nil
	})
	return storage("replace tanks", err)
}

func (r *TankRepo) ClearByProperty(ctx context.Context, propertyID string) error {
	p, err := r.db.pool()
	if err != nil {
		return err
	}
	_, err = p.Exec(ctx, clearTanksByProperty, propertyID)
	return errs.Storage("clear tanks", err)
}
