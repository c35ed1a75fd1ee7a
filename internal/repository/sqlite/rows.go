package sqlite

import (
	"time"

	"github.com/and161185/neptus-sync/internal/model"
)

type readingRow struct {
	ID           string `gorm:"primaryKey"`
	PropertyID   string
	TankID       string
	Turbidity    float64
	Temperature  *float64
	PH           *float64 `gorm:"column:ph"`
	Oxygen       *float64
	Ammonia      *float64
	ColorImage   *string
	CreatedAt    time.Time `gorm:"autoCreateTime:false"`
	UpdatedAt    time.Time `gorm:"autoUpdateTime:false"`
	SyncStatus   string
	SyncedAt     *time.Time
	ErrorMessage string
}

func (readingRow) TableName() string { return "readings" }

type tankRow struct {
	ID         string `gorm:"primaryKey"`
	UserID     string
	PropertyID string
	Name       string
	Area       float64
	FishType   string
	FishWeight float64
	FishCount  int
	Active     bool
	CreatedAt  time.Time `gorm:"autoCreateTime:false"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime:false"`
	SyncStatus string
}

func (tankRow) TableName() string { return "tanks" }

type propertyRow struct {
	ID        string `gorm:"primaryKey"`
	Name      string
	OwnerID   string
	OwnerName string
	UserCount int
	CreatedAt time.Time `gorm:"autoCreateTime:false"`
	UpdatedAt time.Time `gorm:"autoUpdateTime:false"`
}

func (propertyRow) TableName() string { return "properties" }

type metaRow struct {
	Key   string `gorm:"primaryKey"`
	Value string
}

func (metaRow) TableName() string { return "meta" }

func toReadingRow(r model.Reading) readingRow {
	return readingRow{
		ID:           r.ID,
		PropertyID:   r.PropertyID,
		TankID:       r.TankID,
		Turbidity:    r.Turbidity,
		Temperature:  r.Temperature,
		PH:           r.PH,
		Oxygen:       r.Oxygen,
		Ammonia:      r.Ammonia,
		ColorImage:   r.ColorImage,
		CreatedAt:    r.CreatedAt.UTC(),
		UpdatedAt:    r.UpdatedAt.UTC(),
		SyncStatus:   string(r.SyncStatus),
		SyncedAt:     utcPtr(r.SyncedAt),
		ErrorMessage: r.ErrorMessage,
	}
}

func (r readingRow) model() model.Reading {
	return model.Reading{
		ID:           r.ID,
		PropertyID:   r.PropertyID,
		TankID:       r.TankID,
		Turbidity:    r.Turbidity,
		Temperature:  r.Temperature,
		PH:           r.PH,
		Oxygen:       r.Oxygen,
		Ammonia:      r.Ammonia,
		ColorImage:   r.ColorImage,
		CreatedAt:    r.CreatedAt.UTC(),
		UpdatedAt:    r.UpdatedAt.UTC(),
		SyncStatus:   model.SyncState(r.SyncStatus),
		SyncedAt:     utcPtr(r.SyncedAt),
		ErrorMessage: r.ErrorMessage,
	}
}

func toTankRow(t model.Tank) tankRow {
	return tankRow{
		ID:         t.ID,
		UserID:     t.UserID,
		PropertyID: t.PropertyID,
		Name:       t.Name,
		Area:       t.Area,
		FishType:   t.FishType,
		FishWeight: t.FishWeight,
		FishCount:  t.FishCount,
		Active:     t.Active,
		CreatedAt:  t.CreatedAt.UTC(),
		UpdatedAt:  t.UpdatedAt.UTC(),
		SyncStatus: string(t.SyncStatus),
	}
}

func (r tankRow) model() model.Tank {
	return model.Tank{
		ID:         r.ID,
		UserID:     r.UserID,
		PropertyID: r.PropertyID,
		Name:       r.Name,
		Area:       r.Area,
		FishType:   r.FishType,
		FishWeight: r.FishWeight,
		FishCount:  r.FishCount,
		Active:     r.Active,
		CreatedAt:  r.CreatedAt.UTC(),
		UpdatedAt:  r.UpdatedAt.UTC(),
		SyncStatus: model.SyncState(r.SyncStatus),
	}
}

func toPropertyRow(p model.Property) propertyRow {
	return propertyRow{
		ID:        p.ID,
		Name:      p.Name,
		OwnerID:   p.OwnerID,
		OwnerName: p.OwnerName,
		UserCount: p.UserCount,
		CreatedAt: p.CreatedAt.UTC(),
		UpdatedAt: p.UpdatedAt.UTC(),
	}
}

func (r propertyRow) model() model.Property {
	return model.Property{
		ID:        r.ID,
		Name:      r.Name,
		OwnerID:   r.OwnerID,
		OwnerName: r.OwnerName,
		UserCount: r.UserCount,
		CreatedAt: r.CreatedAt.UTC(),
		UpdatedAt: r.UpdatedAt.UTC(),
	}
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
