package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"

	"github.com/and161185/neptus-sync/internal/errs"
	"github.com/and161185/neptus-sync/internal/model"
	"github.com/and161185/neptus-sync/internal/repository"
)

// ReadingRepo implements repository.ReadingRepository using PostgreSQL.
type ReadingRepo struct{ db *DB }

var _ repository.ReadingRepository = (*ReadingRepo)(nil)

// NewReadingRepo constructs a reading repository.
func NewReadingRepo(db *DB) *ReadingRepo { return &ReadingRepo{db: db} }

const readingCols = `id, property_id, tank_id, turbidity, temperature, ph, oxygen, ammonia, color_image, created_at, updated_at, sync_status, synced_at, error_message`

const (
	insertReading = `INSERT INTO readings (` + readingCols + `) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)`
	upsertReading = insertReading + `
ON CONFLICT (id) DO UPDATE SET property_id=EXCLUDED.property_id, tank_id=EXCLUDED.tank_id, turbidity=EXCLUDED.turbidity,
temperature=EXCLUDED.temperature, ph=EXCLUDED.ph, oxygen=EXCLUDED.oxygen, ammonia=EXCLUDED.ammonia,
color_image=EXCLUDED.color_image, created_at=EXCLUDED.created_at, updated_at=EXCLUDED.updated_at,
sync_status=EXCLUDED.sync_status, synced_at=EXCLUDED.synced_at, error_message=EXCLUDED.error_message`
	importReading = insertReading + ` ON CONFLICT (id) DO NOTHING`

	selectReadingByID      = `SELECT ` + readingCols + ` FROM readings WHERE id=$1`
	selectReadingsProperty = `SELECT ` + readingCols + ` FROM readings WHERE property_id=$1 ORDER BY created_at DESC, id DESC`
	selectReadingsTank     = `SELECT ` + readingCols + ` FROM readings WHERE tank_id=$1 ORDER BY created_at DESC, id DESC`
	selectReadingsPending  = `SELECT ` + readingCols + ` FROM readings WHERE sync_status='pending' ORDER BY created_at ASC, id ASC`
	countReadingsPending   = `SELECT count(*) FROM readings WHERE sync_status='pending'`

	markReadingSynced = `UPDATE readings SET sync_status='synced', synced_at=$2, error_message='' WHERE id=$1 AND sync_status IN ('pending','synced')`
	markReadingError  = `UPDATE readings SET sync_status='error', error_message=$2 WHERE id=$1 AND sync_status='pending'`

	deleteReadingsTankNonPending = `DELETE FROM readings WHERE tank_id=$1 AND sync_status<>'pending'`
	deleteReadingsOrphaned       = `DELETE FROM readings WHERE property_id=$1 AND sync_status<>'pending'
AND tank_id NOT IN (SELECT id FROM tanks WHERE property_id=$1)`
)

func readingArgs(r model.Reading) []any {
	return []any{
		r.ID, r.PropertyID, r.TankID, r.Turbidity,
		r.Temperature, r.PH, r.Oxygen, r.Ammonia, r.ColorImage,
		r.CreatedAt, r.UpdatedAt, string(r.SyncStatus), r.SyncedAt, r.ErrorMessage,
	}
}

func scanReading(row pgx.Row) (model.Reading, error) {
	var (
		r      model.Reading
		status string
	)
	if err := row.Scan(
		&r.ID, &r.PropertyID, &r.TankID, &r.Turbidity,
		&r.Temperature, &r.PH, &r.Oxygen, &r.Ammonia, &r.ColorImage,
		&r.CreatedAt, &r.UpdatedAt, &status, &r.SyncedAt, &r.ErrorMessage,
	); err != nil {
		return model.Reading{}, err
	}
	r.SyncStatus = model.SyncState(status)
	r.CreatedAt = r.CreatedAt.UTC()
	r.UpdatedAt = r.UpdatedAt.UTC()
	if r.SyncedAt != nil {
		t := r.SyncedAt.UTC()
		r.SyncedAt = &t
	}
	return r, nil
}

// Add stores a new pending reading and returns its generated id.
func (r *ReadingRepo) Add(ctx context.Context, in model.NewReading) (string, error) {
	p, err := r.db.pool()
	if err != nil {
		return "", err
	}
	id, err := uuid.NewV4()
	if err != nil {
		return "", errs.Storage("add reading", err)
	}
	now := r.db.stamp()
	rd := model.Reading{
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
	}
	if _, err := p.Exec(ctx, insertReading, readingArgs(rd)...); err != nil {
		return "", errs.Storage("add reading", err)
	}
	return rd.ID, nil
}

// GetByID returns the reading with id, or false when absent.
func (r *ReadingRepo) GetByID(ctx context.Context, id string) (model.Reading, bool, error) {
	p, err := r.db.pool()
	if err != nil {
		return model.Reading{}, false, err
	}
	rd, err := scanReading(p.QueryRow(ctx, selectReadingByID, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Reading{}, false, nil
	}
	if err != nil {
		return model.Reading{}, false, errs.Storage("get reading", err)
	}
	return rd, true, nil
}

func (r *ReadingRepo) GetByProperty(ctx context.Context, propertyID string) ([]model.Reading, error) {
	return r.query(ctx, "list readings by property", selectReadingsProperty, propertyID)
}

func (r *ReadingRepo) GetByTank(ctx context.Context, tankID string) ([]model.Reading, error) {
	return r.query(ctx, "list readings by tank", selectReadingsTank, tankID)
}

func (r *ReadingRepo) GetPending(ctx context.Context) ([]model.Reading, error) {
	return r.query(ctx, "list pending", selectReadingsPending)
}

func (r *ReadingRepo) CountPending(ctx context.Context) (int, error) {
	p, err := r.db.pool()
	if err != nil {
		return 0, err
	}
	var n int64
	if err := p.QueryRow(ctx, countReadingsPending).Scan(&n); err != nil {
		return 0, errs.Storage("count pending", err)
	}
	return int(n), nil
}

func (r *ReadingRepo) MarkSynced(ctx context.Context, id string) error {
	p, err := r.db.pool()
	if err != nil {
		return err
	}
	_, err = p.Exec(ctx, markReadingSynced, id, r.db.stamp())
	return errs.Storage("mark synced", err)
}

func (r *ReadingRepo) MarkError(ctx context.Context, id, message string) error {
	p, err := r.db.pool()
	if err != nil {
		return err
	}
	_, err = p.Exec(ctx, markReadingError, id, message)
	return errs.Storage("mark error", err)
}

func (r *ReadingRepo) BulkReplace(ctx context.Context, propertyID string, rs []model.Reading) error {
	rows := downloaded(propertyID, "", rs, r.db.stamp())
	err := r.db.inTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, clearReadingsByProperty, propertyID); err != nil {
			return err
		}
		return execEach(ctx, tx, upsertReading, rows)
	})
	return storage("replace readings", err)
}

func (r *ReadingRepo) ReplaceForTank(ctx context.Context, propertyID, tankID string, rs []model.Reading) error {
	rows := downloaded(propertyID, tankID, rs, r.db.stamp())
	err := r.db.inTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, deleteReadingsTankNonPending, tankID); err != nil {
			return err
		}
		return execEach(ctx, tx, upsertReading, rows)
	})
	return storage("replace tank readings", err)
}

func (r *ReadingRepo) PruneOrphans(ctx context.Context, propertyID string) (int, error) {
	p, err := r.db.pool()
	if err != nil {
		return 0, err
	}
	tag, err := p.Exec(ctx, deleteReadingsOrphaned, propertyID)
	if err != nil {
		return 0, errs.Storage("prune readings", err)
	}
	return int(tag.RowsAffected()), nil
}

func (r *ReadingRepo) Import(ctx context.Context, rs []model.Reading) error {
	if len(rs) == 0 {
		return nil
	}
	err := r.db.inTx(ctx, func(tx pgx.Tx) error {
		return execEach(ctx, tx, importReading, rs)
	})
	return storage("import readings", err)
}

func (r *ReadingRepo) ClearByProperty(ctx context.Context, propertyID string) error {
	p, err := r.db.pool()
	if err != nil {
		return err
	}
	_, err = p.Exec(ctx, clearReadingsByProperty, propertyID)
	return errs.Storage("clear readings", err)
}

func (r *ReadingRepo) query(ctx context.Context, op, q string, args ...any) ([]model.Reading, error) {
	p, err := r.db.pool()
	if err != nil {
		return nil, err
	}
	rows, err := p.Query(ctx, q, args...)
	if err != nil {
		return nil, errs.Storage(op, err)
	}
	defer rows.Close()

	out := []model.Reading{}
	for rows.Next() {
		rd, err := scanReading(rows)
		if err != nil {
			return nil, errs.Storage(op, err)
		}
		out = append(out, rd)
	}
	if err := rows.Err(); err != nil {
		return nil, errs.Storage(op, err)
	}
	return out, nil
}

// downloaded stamps server readings as synced members of propertyID (and tankID when set).
func downloaded(propertyID, tankID string, rs []model.Reading, now time.Time) []model.Reading {
	out := make([]model.Reading, 0, len(rs))
	for _, m := range rs {
		m.PropertyID = propertyID
		if m.TankID == "" {
			m.TankID = tankID
		}
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
		out = append(out, m)
	}
	return out
}

func execEach(ctx context.Context, tx pgx.Tx, q string, rs []model.Reading) error {
	for _, rd := range rs {
		if _, err := tx.Exec(ctx, q, readingArgs(rd)...); err != nil {
			return err
		}
	}
	return nil
}
