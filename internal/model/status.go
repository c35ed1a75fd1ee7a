package model

import "time"

// SyncStatus is a transient snapshot of synchronization progress. It is never persisted.
type SyncStatus struct {
	IsSyncing    bool       `json:"isSyncing"`
	LastSync     *time.Time `json:"lastSync"`
	PendingCount int        `json:"pendingCount"`
	Error        string     `json:"error,omitempty"` // empty when there is no error
}

// UploadResult reports the outcome of one upload cycle.
//
// Success is true when the batch call completed without a fatal error; it stays
// true when the server rejected some tanks, so FailedCount must be checked on its own.
type UploadResult struct {
	SyncedCount  int  `json:"syncedCount"`
	FailedCount  int  `json:"failedCount"`
	TotalPending int  `json:"totalPending"`
	Success      bool `json:"success"`
}

// InitialSyncResult reports the outcome of a bulk download for one property.
type InitialSyncResult struct {
	Tanks       int      `json:"tanks"`
	Readings    int      `json:"readings"`
	Success     bool     `json:"success"`
	Error       string   `json:"error,omitempty"`
	FailedTanks []string `json:"failedTanks,omitempty"` // tanks whose readings could not be downloaded
}
