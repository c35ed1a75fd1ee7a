package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/and161185/neptus-sync/internal/errs"
	"github.com/and161185/neptus-sync/internal/model"
	"github.com/and161185/neptus-sync/internal/repository"
)

// PropertyRepo implements repository.PropertyRepository using PostgreSQL.
type PropertyRepo struct{ db *DB }

var _ repository.PropertyRepository = (*PropertyRepo)(nil)

// NewPropertyRepo constructs a property repository.
func NewPropertyRepo(db *DB) *PropertyRepo { return &PropertyRepo{db: db} }

const (
	propertyCols       = `id, name, owner_id, owner_name, user_count, created_at, updated_at`
	selectProperties   = `SELECT ` + propertyCols + ` FROM properties ORDER BY name ASC, id ASC`
	selectPropertyByID = `SELECT ` + propertyCols + ` FROM properties WHERE id=$1`
	clearProperties    = `DELETE FROM properties`
	upsertProperty     = `
INSERT INTO properties (` + propertyCols + `) VALUES ($1,$2,$3,$4,$5,$6,$7)
ON CONFLICT (id) DO UPDATE SET name=EXCLUDED.name, owner_id=EXCLUDED.owner_id, owner_name=EXCLUDED.owner_name,
user_count=EXCLUDED.user_count, created_at=EXCLUDED.created_at, updated_at=EXCLUDED.updated_at`
)

func scanProperty(row pgx.Row) (model.Property, error) {
	var p model.Property
	if err := row.Scan(&p.ID, &p.Name, &p.OwnerID, &p.OwnerName, &p.UserCount, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return model.Property{}, err
	}
	p.CreatedAt, p.UpdatedAt = p.CreatedAt.UTC(), p.UpdatedAt.UTC()
	return p, nil
}

func (r *PropertyRepo) GetAll(ctx context.Context) ([]model.Property, error) {
	p, err := r.db.pool()
	if err != nil {
		return nil, err
	}
	rows, err := p.Query(ctx, selectProperties)
	if err != nil {
		return nil, errs.Storage("list properties", err)
	}
	defer rows.Close()

	out := []model.Property{}
	for rows.Next() {
		prop, err := scanProperty(rows)
		if err != nil {
			return nil, errs.Storage("list properties", err)
		}
		out = append(out, prop)
	}
	if err := rows.Err(); err != nil {
		return nil, errs.Storage("list properties", err)
	}
	return out, nil
}

func (r *PropertyRepo) GetByID(ctx context.Context, id string) (model.Property, bool, error) {
	p, err := r.db.pool()
	if err != nil {
		return model.Property{}, false, err
	}
	prop, err := scanProperty(p.QueryRow(ctx, selectPropertyByID, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Property{}, false, nil
	}
	if err != nil {
		return model.Property{}, false, errs.Storage("get property", err)
	}
	return prop, true, nil
}

func (r *PropertyRepo) Save(ctx context.Context, prop model.Property) error {
	p, err := r.db.pool()
	if err != nil {
		return err
	}
	_, err = p.Exec(ctx, upsertProperty, r.propertyArgs(prop)...)
	return errs.Storage("save property", err)
}

func (r *PropertyRepo) BulkReplace(ctx context.Context, ps []model.Property) error {
	err := r.db.inTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, clearProperties); err != nil {
			return err
		}
		for _, prop := range ps {
			if _, err := tx.Exec(ctx, upsertProperty, r.propertyArgs(prop)...); err != nil {
				return err
			}
		}
		return nil
	})
	return storage("replace properties", err)
}

func (r *PropertyRepo) propertyArgs(p model.Property) []any {
	now := r.db.stamp()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = now
	}
	return []any{p.ID, p.Name, p.OwnerID, p.OwnerName, p.UserCount, p.CreatedAt, p.UpdatedAt}
}
