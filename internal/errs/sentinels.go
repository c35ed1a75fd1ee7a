// Package errs contains sentinel and typed errors used across layers for stable error mapping.
package errs

import "errors"

// Common sentinels across store/gateway/sync layers.
var (
	// ErrNotFound indicates the requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrNoCredentials indicates a download was requested before credentials were set.
	ErrNoCredentials = errors.New("credentials not set: call SetCredentials with a token and property id")

	// ErrStoreClosed indicates the local store was used before Open or after Close.
	ErrStoreClosed = errors.New("local store is not open")

	// ErrConflict indicates the server rejected part of a batch (HTTP 409).
	ErrConflict = errors.New("batch conflict")

	// ErrUnauthorized indicates the server refused the bearer token (HTTP 401/403).
	ErrUnauthorized = errors.New("unauthorized")

	// ErrInvalidReading indicates a reading failed validation before it was stored.
	ErrInvalidReading = errors.New("invalid reading")

	// ErrSyncInProgress indicates a sync cycle was rejected because another one is running.
	ErrSyncInProgress = errors.New("sync already in progress")
)
