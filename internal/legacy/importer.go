// Package legacy imports readings saved by the pre-database client, one JSON array per property.
package legacy

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	"github.com/and161185/neptus-sync/internal/convert"
	"github.com/and161185/neptus-sync/internal/model"
	"github.com/and161185/neptus-sync/internal/repository"
)

// FilePrefix names legacy blobs: offlineReadings_<propertyId>, optionally with a .json suffix.
const FilePrefix = "offlineReadings_"

// Result summarizes an import run.
type Result struct {
	Imported int      `json:"imported"`          // readings handed to the store
	Dropped  int      `json:"dropped"`           // entries without a tank id
	Skipped  []string `json:"skipped,omitempty"` // property ids left alone because they already had readings
	Done     bool     `json:"done"`              // false when the completion flag was already set
}

// Importer moves legacy reading blobs from dir into the store as pending readings.
type Importer struct {
	store repository.Store
	dir   string
	log   *zap.Logger
	now   func() time.Time
}

func NewImporter(store repository.Store, dir string, log *zap.Logger) *Importer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Importer{store: store, dir: dir, log: log, now: time.Now}
}

// Import imports the blob of a single property.
func (im *Importer) Import(ctx context.Context, propertyID string) (Result, error) {
	return im.run(ctx, []string{propertyID})
}

// ImportAll imports every blob found in the directory.
func (im *Importer) ImportAll(ctx context.Context) (Result, error) {
	ids, err := im.Discover()
	if err != nil {
		return Result{}, err
	}
	return im.run(ctx, ids)
}

// Discover lists property ids that have a legacy blob, sorted.
func (im *Importer) Discover() ([]string, error) {
	entries, err := os.ReadDir(im.dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", im.dir, err)
	}
	seen := map[string]bool{}
	var ids []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, FilePrefix) {
			continue
		}
		id := strings.TrimSuffix(strings.TrimPrefix(name, FilePrefix), ".json")
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// run sets the global completion flag once every listed property went through without error.
func (im *Importer) run(ctx context.Context, propertyIDs []string) (Result, error) {
	done, err := im.store.Meta().Flag(ctx, repository.FlagLegacyImport)
	if err != nil {
		return Result{}, err
	}
	if done {
		im.log.Debug("legacy import already completed")
		return Result{}, nil
	}

	res := Result{Done: true}
	for _, pid := range propertyIDs {
		n, dropped, skipped, err := im.importProperty(ctx, pid)
		if err != nil {
			return res, fmt.Errorf("property %s: %w", pid, err)
		}
		res.Imported += n
		res.Dropped += dropped
		if skipped {
			res.Skipped = append(res.Skipped, pid)
		}
	}
	if err := im.store.Meta().SetFlag(ctx, repository.FlagLegacyImport, true); err != nil {
		return res, err
	}
	return res, nil
}

func (im *Importer) importProperty(ctx context.Context, propertyID string) (imported, dropped int, skipped bool, err error) {
	existing, err := im.store.Readings().GetByProperty(ctx, propertyID)
	if err != nil {
		return 0, 0, false, err
	}
	if len(existing) > 0 {
		im.log.Info("legacy import skipped, property already has readings",
			zap.String("property_id", propertyID), zap.Int("readings", len(existing)))
		return 0, 0, true, nil
	}

	raw, err := im.read(propertyID)
	if err != nil || raw == nil {
		return 0, 0, false, err
	}
	entries, err := decode(raw)
	if err != nil {
		return 0, 0, false, err
	}

	now := im.now().UTC()
	rs := make([]model.Reading, 0, len(entries))
	for _, e := range entries {
		r, ok, err := e.reading(propertyID, now)
		if err != nil {
			return 0, 0, false, err
		}
		if !ok {
			dropped++
			continue
		}
		rs = append(rs, r)
	}
	if dropped > 0 {
		im.log.Warn("legacy readings without tank dropped",
			zap.String("property_id", propertyID), zap.Int("dropped", dropped))
	}
	if err := im.store.Readings().Import(ctx, rs); err != nil {
		return 0, dropped, false, err
	}
	im.log.Info("legacy readings imported", zap.String("property_id", propertyID), zap.Int("count", len(rs)))
	return len(rs), dropped, false, nil
}

// read returns nil without error when the property has no blob.
func (im *Importer) read(propertyID string) ([]byte, error) {
	base := filepath.Join(im.dir, FilePrefix+propertyID)
	for _, p := range []string{base, base + ".json"} {
		b, err := os.ReadFile(p)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return b, nil
	}
	return nil, nil
}

func decode(raw []byte) ([]entry, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '[' {
		// not an array: nothing to migrate
		return nil, nil
	}
	var entries []entry
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("decode legacy readings: %w", err)
	}
	return entries, nil
}

// entry is one legacy reading. Older builds used English keys, newer ones the server's Portuguese keys.
type entry struct {
	ID              string   `json:"id"`
	TankID          string   `json:"tankId"`
	Turbidity       *float64 `json:"turbidity"`
	Turbidez        *float64 `json:"turbidez"`
	Temperature     *float64 `json:"temperature"`
	Temperatura     *float64 `json:"temperatura"`
	PH              *float64 `json:"ph"`
	DissolvedOxygen *float64 `json:"dissolvedOxygen"`
	Oxigenio        *float64 `json:"oxigenio"`
	Amonia          *float64 `json:"amonia"`
	ImagemCor       *string  `json:"imagem_cor"`
	CreatedAt       jsonTime `json:"createdAt"`
	UpdatedAt       jsonTime `json:"updatedAt"`
	Timestamp       jsonTime `json:"timestamp"`
}

func (e entry) reading(propertyID string, now time.Time) (model.Reading, bool, error) {
	if strings.TrimSpace(e.TankID) == "" {
		return model.Reading{}, false, nil
	}
	id := e.ID
	if id == "" {
		u, err := uuid.NewV4()
		if err != nil {
			return model.Reading{}, false, err
		}
		id = u.String()
	}
	var turbidity float64
	if v := first(e.Turbidity, e.Turbidez); v != nil {
		turbidity = *v
	}
	return model.Reading{
		ID:          id,
		PropertyID:  propertyID,
		TankID:      e.TankID,
		Turbidity:   turbidity,
		Temperature: first(e.Temperature, e.Temperatura),
		PH:          e.PH,
		Oxygen:      first(e.DissolvedOxygen, e.Oxigenio),
		Ammonia:     e.Amonia,
		ColorImage:  e.ImagemCor,
		CreatedAt:   firstTime(now, e.CreatedAt, e.Timestamp),
		UpdatedAt:   firstTime(now, e.UpdatedAt, e.Timestamp),
		SyncStatus:  model.StatePending,
	}, true, nil
}

func first(vs ...*float64) *float64 {
	for _, v := range vs {
		if v != nil {
			return v
		}
	}
	return nil
}

func firstTime(fallback time.Time, ts ...jsonTime) time.Time {
	for _, t := range ts {
		if !t.IsZero() {
			return t.UTC()
		}
	}
	return fallback
}

// jsonTime decodes either an ISO string or epoch milliseconds.
type jsonTime struct{ time.Time }

func (t *jsonTime) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] != '"' && !bytes.Equal(b, []byte("null")) {
		ms, err := strconv.ParseFloat(string(b), 64)
		if err != nil {
			return fmt.Errorf("legacy time %s: %w", b, err)
		}
		t.Time = time.UnixMilli(int64(ms)).UTC()
		return nil
	}
	var ts convert.Timestamp
	if err := ts.UnmarshalJSON(b); err != nil {
		return err
	}
	t.Time = ts.Time
	return nil
}
