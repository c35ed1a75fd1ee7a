// Package model defines domain entities used by the store, gateway and sync manager.
package model

import (
	"slices"
	"time"
)

// SyncState is the record-level synchronization state of a locally stored entity.
type SyncState string

const (
	// StatePending marks a record created locally and not yet acknowledged by the server.
	StatePending SyncState = "pending"
	// StateSynced marks a record acknowledged by (or downloaded from) the server.
	StateSynced SyncState = "synced"
	// StateError marks a record the server rejected.
	StateError SyncState = "error"
)

// Valid reports whether s is one of the known states.
func (s SyncState) Valid() bool {
	switch s {
	case StatePending, StateSynced, StateError:
		return true
	}
	return false
}

// Reading is a single sensor observation for a tank.
type Reading struct {
	ID           string     `json:"id"`
	PropertyID   string     `json:"propertyId"`
	TankID       string     `json:"tankId"`
	Turbidity    float64    `json:"turbidity"`             // required
	Temperature  *float64   `json:"temperature,omitempty"` // optional
	PH           *float64   `json:"ph,omitempty"`
	Oxygen       *float64   `json:"oxygen,omitempty"`
	Ammonia      *float64   `json:"ammonia,omitempty"`
	ColorImage   *string    `json:"colorImage,omitempty"` // reference to a stored image
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`
	SyncStatus   SyncState  `json:"syncStatus"`
	SyncedAt     *time.Time `json:"syncedAt,omitempty"`     // set only when synced
	ErrorMessage string     `json:"errorMessage,omitempty"` // set only when error
}

// NewReading is a reading as recorded by a client, before the store assigns id and timestamps.
type NewReading struct {
	PropertyID  string
	TankID      string
	Turbidity   float64
	Temperature *float64
	PH          *float64
	Oxygen      *float64
	Ammonia     *float64
	ColorImage  *string
}

// Tank is a fish tank owned by a property. Tanks always originate from the server.
type Tank struct {
	ID         string    `json:"id"`
	UserID     string    `json:"userId"`
	PropertyID string    `json:"propertyId"`
	Name       string    `json:"name"`
	Area       float64   `json:"area"`
	FishType   string    `json:"fishType"`
	FishWeight float64   `json:"fishWeight"`
	FishCount  int       `json:"fishCount"`
	Active     bool      `json:"active"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
	SyncStatus SyncState `json:"syncStatus"`
}

// Property is the minimal identity of a property cached for offline reference.
type Property struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	OwnerID   string    `json:"ownerId"`
	OwnerName string    `json:"ownerName"`
	UserCount int       `json:"userCount"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Page is one page of a server-side collection.
type Page[T any] struct {
	Items       []T
	CurrentPage int
	TotalPages  int
	TotalCount  int
	PerPage     int
}

// BatchOutcome is the reconciled result of a batch upload. RejectedTanks is empty on full success.
type BatchOutcome struct {
	RejectedTanks []string
}

// Rejected reports whether tankID is in the rejection set.
func (o BatchOutcome) Rejected(tankID string) bool {
	return slices.Contains(o.RejectedTanks, tankID)
}
