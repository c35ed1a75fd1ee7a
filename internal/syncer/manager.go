// Package syncer drives offline-first synchronization: it uploads pending readings
// in one batch, downloads tanks and readings for a property, and broadcasts status.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/and161185/neptus-sync/internal/errs"
	"github.com/and161185/neptus-sync/internal/model"
	"github.com/and161185/neptus-sync/internal/repository"
)

// RejectedTankMessage is stored on readings whose tank the server rejected.
const RejectedTankMessage = "invalid or unknown tank"

// Remote is the server side of synchronization. *gateway.Client implements it.
type Remote interface {
	FetchTanks(ctx context.Context, token, propertyID string) ([]model.Tank, error)
	FetchReadings(ctx context.Context, token, tankID string) ([]model.Reading, error)
	FetchProperties(ctx context.Context, token string) ([]model.Property, error)
	PostBatch(ctx context.Context, token string, readings []model.Reading) (model.BatchOutcome, error)
}

// Option customises a Manager.
type Option func(*Manager)

// WithLogger sets the logger. nil keeps the no-op default.
func WithLogger(log *zap.Logger) Option {
	return func(m *Manager) {
		if log != nil {
			m.log = log
		}
	}
}

// WithClock overrides the time source used for LastSync.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithMaxParallel caps concurrent per-tank reading downloads; 0 means no cap.
func WithMaxParallel(n int) Option {
	return func(m *Manager) { m.maxParallel = n }
}

// Manager coordinates sync cycles. At most one cycle (upload or download) runs at a time.
type Manager struct {
	store       repository.Store
	remote      Remote
	log         *zap.Logger
	now         func() time.Time
	maxParallel int
	bus         *Broadcaster

	syncing atomic.Bool

	mu         sync.RWMutex
	token      string
	propertyID string
	lastSync   *time.Time
	lastErr    string
}

// NewManager wires a manager over an open store and a remote.
func NewManager(store repository.Store, remote Remote, opts ...Option) *Manager {
	m := &Manager{
		store:  store,
		remote: remote,
		log:    zap.NewNop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.bus = NewBroadcaster(m.log)
	return m
}

// SetCredentials stores the bearer token and current property for later cycles.
func (m *Manager) SetCredentials(token, propertyID string) {
	m.mu.Lock()
	m.token, m.propertyID = token, propertyID
	m.mu.Unlock()
}

func (m *Manager) credentials() (token, propertyID string) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.token, m.propertyID
}

// Subscribe registers fn for status snapshots and returns its unsubscribe function.
func (m *Manager) Subscribe(fn Listener) (unsubscribe func()) {
	return m.bus.Subscribe(fn)
}

// IsSyncing reports whether a cycle is in flight.
func (m *Manager) IsSyncing() bool { return m.syncing.Load() }

// GetStatus builds a fresh snapshot from the store's pending count and the in-memory state.
func (m *Manager) GetStatus(ctx context.Context) (model.SyncStatus, error) {
	n, err := m.store.Readings().CountPending(ctx)
	if err != nil {
		return model.SyncStatus{}, fmt.Errorf("status: %w", err)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return model.SyncStatus{
		IsSyncing:    m.syncing.Load(),
		LastSync:     copyTime(m.lastSync),
		PendingCount: n,
		Error:        m.lastErr,
	}, nil
}

// Sync uploads every pending reading in one batch and reconciles the response.
//
// A call made while another cycle runs returns a zero result and no error,
// without touching the network or the store.
func (m *Manager) Sync(ctx context.Context) (res model.UploadResult, err error) {
	if !m.syncing.CompareAndSwap(false, true) {
		m.log.Debug("sync skipped: cycle in progress")
		return model.UploadResult{}, nil
	}
	defer m.syncing.Store(false)
	defer func() { m.finish(ctx, err) }()
	m.publish(ctx, true)

	start := time.Now()
	pending, err := m.store.Readings().GetPending(ctx)
	if err != nil {
		return model.UploadResult{}, fmt.Errorf("sync: load pending: %w", err)
	}
	if len(pending) == 0 {
		return model.UploadResult{Success: true}, nil
	}

	token, _ := m.credentials()
	if token == "" {
		return model.UploadResult{TotalPending: len(pending)}, fmt.Errorf("sync: %w", errs.ErrNoCredentials)
	}

	outcome, err := m.remote.PostBatch(ctx, token, pending)
	if err != nil {
		return model.UploadResult{TotalPending: len(pending)}, fmt.Errorf("sync: upload: %w", err)
	}

	res = model.UploadResult{TotalPending: len(pending), Success: true}
	readings := m.store.Readings()
	for _, r := range pending {
		if outcome.Rejected(r.TankID) {
			if err = readings.MarkError(ctx, r.ID, RejectedTankMessage); err != nil {
				res.Success = false
				return res, fmt.Errorf("sync: mark error %s: %w", r.ID, err)
			}
			res.FailedCount++
			continue
		}
		if err = readings.MarkSynced(ctx, r.ID); err != nil {
			res.Success = false
			return res, fmt.Errorf("sync: mark synced %s: %w", r.ID, err)
		}
		res.SyncedCount++
	}

	m.log.Info("sync done",
		zap.Int("synced", res.SyncedCount),
		zap.Int("failed", res.FailedCount),
		zap.Strings("rejected_tanks", outcome.RejectedTanks),
		zap.Duration("dur", time.Since(start)),
	)
	return res, nil
}

// InitialSync replaces the current property's tanks and their readings with the
// server's copy. Reading downloads run in parallel; a tank whose readings fail
// to download is listed in FailedTanks and does not fail the cycle.
// Pending local readings survive the replacement; synced readings of tanks the
// server no longer lists are dropped.
func (m *Manager) InitialSync(ctx context.Context) (res model.InitialSyncResult, err error) {
	token, propertyID := m.credentials()
	if token == "" || propertyID == "" {
		return model.InitialSyncResult{Error: errs.ErrNoCredentials.Error()}, errs.ErrNoCredentials
	}
	if !m.syncing.CompareAndSwap(false, true) {
		m.log.Debug("initial sync skipped: cycle in progress")
		return model.InitialSyncResult{Error: errs.ErrSyncInProgress.Error()}, nil
	}
	defer m.syncing.Store(false)
	defer func() {
		if err != nil {
			res.Success = false
			res.Error = err.Error()
		}
		m.finish(ctx, err)
	}()
	m.publish(ctx, true)

	start := time.Now()
	log := m.log.With(zap.String("property", propertyID))

	tanks, err := m.remote.FetchTanks(ctx, token, propertyID)
	if err != nil {
		return res, fmt.Errorf("initial sync: fetch tanks: %w", err)
	}
	if err = m.store.Tanks().BulkReplace(ctx, propertyID, tanks); err != nil {
		return res, fmt.Errorf("initial sync: store tanks: %w", err)
	}
	res.Tanks = len(tanks)
	pruned, err := m.store.Readings().PruneOrphans(ctx, propertyID)
	if err != nil {
		return res, fmt.Errorf("initial sync: prune readings: %w", err)
	}
	if pruned > 0 {
		log.Debug("readings of removed tanks dropped", zap.Int("count", pruned))
	}

	local, err := m.store.Tanks().GetByProperty(ctx, propertyID)
	if err != nil {
		return res, fmt.Errorf("initial sync: load tanks: %w", err)
	}

	counts := make([]int, len(local))
	failed := make([]bool, len(local))
	var g errgroup.Group
	if m.maxParallel > 0 {
		g.SetLimit(m.maxParallel)
	}
	for i, tank := range local {
		g.Go(func() error {
			rs, ferr := m.remote.FetchReadings(ctx, token, tank.ID)
			if ferr != nil {
				log.Warn("tank readings download failed", zap.String("tank", tank.ID), zap.Error(ferr))
				failed[i] = true
				return nil
			}
			if serr := m.store.Readings().ReplaceForTank(ctx, propertyID, tank.ID, rs); serr != nil {
				return fmt.Errorf("initial sync: store readings of tank %s: %w", tank.ID, serr)
			}
			counts[i] = len(rs)
			return nil
		})
	}
	if err = g.Wait(); err != nil {
		return res, err
	}

	for i, tank := range local {
		res.Readings += counts[i]
		if failed[i] {
			res.FailedTanks = append(res.FailedTanks, tank.ID)
		}
	}

	if err = m.store.Meta().SetFlag(ctx, repository.FlagInitialSync, true); err != nil {
		return res, fmt.Errorf("initial sync: set flag: %w", err)
	}

	res.Success = true
	log.Info("initial sync done",
		zap.Int("tanks", res.Tanks),
		zap.Int("readings", res.Readings),
		zap.Strings("failed_tanks", res.FailedTanks),
		zap.Duration("dur", time.Since(start)),
	)
	return res, nil
}

// SyncProperties refreshes the local property cache from the server and
// returns the number of properties stored. It does not take the sync gate.
func (m *Manager) SyncProperties(ctx context.Context) (int, error) {
	token, _ := m.credentials()
	if token == "" {
		return 0, errs.ErrNoCredentials
	}
	ps, err := m.remote.FetchProperties(ctx, token)
	if err != nil {
		return 0, fmt.Errorf("sync properties: fetch: %w", err)
	}
	if err := m.store.Properties().BulkReplace(ctx, ps); err != nil {
		return 0, fmt.Errorf("sync properties: store: %w", err)
	}
	m.log.Info("properties synced", zap.Int("count", len(ps)))
	return len(ps), nil
}

// NeedsInitialSync reports whether propertyID still needs a bulk download.
// The completion flag is global; when tanks are already present the flag is
// set so later checks short-circuit.
func (m *Manager) NeedsInitialSync(ctx context.Context, propertyID string) (bool, error) {
	done, err := m.store.Meta().Flag(ctx, repository.FlagInitialSync)
	if err != nil {
		return false, err
	}
	if done {
		return false, nil
	}
	tanks, err := m.store.Tanks().GetByProperty(ctx, propertyID)
	if err != nil {
		return false, err
	}
	if len(tanks) == 0 {
		return true, nil
	}
	if err := m.store.Meta().SetFlag(ctx, repository.FlagInitialSync, true); err != nil {
		return false, err
	}
	return false, nil
}

// ClearAll wipes local readings, tanks and properties, and publishes the new status.
func (m *Manager) ClearAll(ctx context.Context) error {
	if m.syncing.Load() {
		return errs.ErrSyncInProgress
	}
	if err := m.store.ClearAll(ctx); err != nil {
		return fmt.Errorf("clear all: %w", err)
	}
	m.mu.Lock()
	m.lastSync, m.lastErr = nil, ""
	m.mu.Unlock()
	m.publish(ctx, false)
	return nil
}

// finish records the cycle outcome and publishes the terminal snapshot. It runs
// while the gate is still held, so no second cycle can interleave its notifications.
func (m *Manager) finish(ctx context.Context, err error) {
	m.mu.Lock()
	if err != nil {
		m.lastErr = err.Error()
	} else {
		t := m.now()
		m.lastSync, m.lastErr = &t, ""
	}
	m.mu.Unlock()
	if err != nil {
		m.log.Warn("sync cycle failed", zap.Error(err))
	}
	m.publish(ctx, false)
}

// publish broadcasts a snapshot with the given syncing flag. A store failure
// while counting does not suppress the notification.
func (m *Manager) publish(ctx context.Context, syncing bool) {
	n, cerr := m.store.Readings().CountPending(ctx)
	if cerr != nil && !errors.Is(cerr, context.Canceled) {
		m.log.Debug("pending count unavailable", zap.Error(cerr))
	}
	m.mu.RLock()
	s := model.SyncStatus{
		IsSyncing:    syncing,
		LastSync:     copyTime(m.lastSync),
		PendingCount: n,
		Error:        m.lastErr,
	}
	m.mu.RUnlock()
	if syncing {
		s.Error = ""
	}
	m.bus.Publish(s)
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}
