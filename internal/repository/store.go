// Package repository defines local storage interfaces implemented by concrete backends.
package repository

import (
	"context"

	"github.com/and161185/neptus-sync/internal/model"
)

// Flag keys persisted in the meta table.
const (
	// FlagInitialSync records that an initial download has completed. Global, not per property.
	FlagInitialSync = "has_initial_sync"
	// FlagLegacyImport records that legacy reading files were imported.
	FlagLegacyImport = "legacy_import_completed"
)

// ReadingRepository stores sensor readings and their sync state.
type ReadingRepository interface {
	// Add assigns an id and timestamps, stores the reading as pending and returns the id.
	Add(ctx context.Context, in model.NewReading) (string, error)
	// GetByID returns the reading and true, or false when it does not exist.
	GetByID(ctx context.Context, id string) (model.Reading, bool, error)
	// GetByProperty returns the property's readings, most recent first.
	GetByProperty(ctx context.Context, propertyID string) ([]model.Reading, error)
	// GetByTank returns the tank's readings, most recent first.
	GetByTank(ctx context.Context, tankID string) ([]model.Reading, error)
	// GetPending returns all readings waiting for upload.
	GetPending(ctx context.Context) ([]model.Reading, error)
	// CountPending returns the number of readings waiting for upload.
	CountPending(ctx context.Context) (int, error)
	// MarkSynced moves a pending (or already synced) reading to synced and stamps syncedAt.
	// Unknown ids and error readings are left untouched without an error.
	MarkSynced(ctx context.Context, id string) error
	// MarkError moves a pending reading to error with message. Unknown ids are ignored.
	MarkError(ctx context.Context, id, message string) error
	// BulkReplace atomically deletes all readings of a property and inserts rs as synced.
	BulkReplace(ctx context.Context, propertyID string, rs []model.Reading) error
	// ReplaceForTank atomically deletes the tank's non-pending readings and inserts rs as synced.
	ReplaceForTank(ctx context.Context, propertyID, tankID string, rs []model.Reading) error
	// PruneOrphans deletes the property's non-pending readings whose tank is no longer
	// one of the property's tanks and returns how many were removed.
	PruneOrphans(ctx context.Context, propertyID string) (int, error)
	// Import inserts readings as given, skipping ids that already exist.
	Import(ctx context.Context, rs []model.Reading) error
	// ClearByProperty deletes all readings of a property.
	ClearByProperty(ctx context.Context, propertyID string) error
}

// TankRepository stores tanks downloaded from the server.
type TankRepository interface {
	// GetByProperty returns the property's tanks ordered by name.
	GetByProperty(ctx context.Context, propertyID string) ([]model.Tank, error)
	// BulkReplace atomically deletes all tanks of a property and inserts ts as synced.
	BulkReplace(ctx context.Context, propertyID string, ts []model.Tank) error
	// ClearByProperty deletes all tanks of a property.
	ClearByProperty(ctx context.Context, propertyID string) error
}

// PropertyRepository caches property identities.
type PropertyRepository interface {
	// GetAll returns all cached properties ordered by name.
	GetAll(ctx context.Context) ([]model.Property, error)
	// GetByID returns the property and true, or false when it is not cached.
	GetByID(ctx context.Context, id string) (model.Property, bool, error)
	// Save inserts or replaces a single property.
	Save(ctx context.Context, p model.Property) error
	// BulkReplace atomically replaces the whole cache with ps.
	BulkReplace(ctx context.Context, ps []model.Property) error
}

// MetaRepository persists small global flags.
type MetaRepository interface {
	// Flag returns the stored flag value, false when unset.
	Flag(ctx context.Context, key string) (bool, error)
	// SetFlag stores a flag value.
	SetFlag(ctx context.Context, key string, v bool) error
}

// Store is an open local store. It exclusively owns persisted entities.
type Store interface {
	Readings() ReadingRepository
	Tanks() TankRepository
	Properties() PropertyRepository
	Meta() MetaRepository

	// ClearByProperty deletes readings, tanks and the cached property itself in one transaction.
	ClearByProperty(ctx context.Context, propertyID string) error
	// ClearAll wipes readings, tanks and properties.
	ClearAll(ctx context.Context) error
	// Close releases the storage handle. Later calls fail with errs.ErrStoreClosed.
	Close() error
}
