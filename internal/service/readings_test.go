package service

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/and161185/neptus-sync/internal/errs"
	"github.com/and161185/neptus-sync/internal/model"
	"github.com/and161185/neptus-sync/internal/repository"
)

type fakeReadings struct {
	byID   map[string]model.Reading
	added  []model.NewReading
	addErr error
	getErr error
}

var _ repository.ReadingRepository = (*fakeReadings)(nil)

func (f *fakeReadings) Add(_ context.Context, in model.NewReading) (string, error) {
	if f.addErr != nil {
		return "", f.addErr
	}
	f.added = append(f.added, in)
	return "r1", nil
}
func (f *fakeReadings) GetByID(_ context.Context, id string) (model.Reading, bool, error) {
	if f.getErr != nil {
		return model.Reading{}, false, f.getErr
	}
	r, ok := f.byID[id]
	return r, ok, nil
}
func (f *fakeReadings) GetByProperty(_ context.Context, propertyID string) ([]model.Reading, error) {
	var out []model.Reading
	for _, r := range f.byID {
		if r.PropertyID == propertyID {
			out = append(out, r)
		}
	}
	return out, nil
}
func (f *fakeReadings) GetByTank(_ context.Context, tankID string) ([]model.Reading, error) {
	var out []model.Reading
	for _, r := range f.byID {
		if r.TankID == tankID {
			out = append(out, r)
		}
	}
	return out, nil
}
func (f *fakeReadings) GetPending(context.Context) ([]model.Reading, error)        { return nil, nil }
func (f *fakeReadings) CountPending(context.Context) (int, error)                  { return 0, nil }
func (f *fakeReadings) MarkSynced(context.Context, string) error                   { return nil }
func (f *fakeReadings) MarkError(context.Context, string, string) error            { return nil }
func (f *fakeReadings) BulkReplace(context.Context, string, []model.Reading) error { return nil }
func (f *fakeReadings) Import(context.Context, []model.Reading) error              { return nil }
func (f *fakeReadings) ClearByProperty(context.Context, string) error              { return nil }
func (f *fakeReadings) ReplaceForTank(context.Context, string, string, []model.Reading) error {
	return nil
}
func (f *fakeReadings) PruneOrphans(context.Context, string) (int, error) { return 0, nil }

func fp(v float64) *float64 { return &v }

func TestReadings_Record_Validation(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		in   model.NewReading
	}{
		{"no property", model.NewReading{TankID: "t1", Turbidity: 1}},
		{"blank tank", model.NewReading{PropertyID: "p1", TankID: "  ", Turbidity: 1}},
		{"negative turbidity", model.NewReading{PropertyID: "p1", TankID: "t1", Turbidity: -0.5}},
		{"nan turbidity", model.NewReading{PropertyID: "p1", TankID: "t1", Turbidity: math.NaN()}},
		{"ph above 14", model.NewReading{PropertyID: "p1", TankID: "t1", PH: fp(14.2)}},
		{"infinite temperature", model.NewReading{PropertyID: "p1", TankID: "t1", Temperature: fp(math.Inf(1))}},
		{"negative oxygen", model.NewReading{PropertyID: "p1", TankID: "t1", Oxygen: fp(-1)}},
		{"negative ammonia", model.NewReading{PropertyID: "p1", TankID: "t1", Ammonia: fp(-0.1)}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			repo := &fakeReadings{}
			s := NewReadingService(repo)
			_, err := s.Record(context.Background(), tc.in)
			if !errors.Is(err, errs.ErrInvalidReading) {
				t.Fatalf("want ErrInvalidReading, got %v", err)
			}
			if len(repo.added) != 0 {
				t.Fatalf("invalid reading must not reach the store")
			}
		})
	}
}

func TestReadings_Record_OK(t *testing.T) {
	t.Parallel()
	repo := &fakeReadings{}
	s := NewReadingService(repo)

	blank := " "
	id, err := s.Record(context.Background(), model.NewReading{
		PropertyID:  " p1 ",
		TankID:      "t1",
		Turbidity:   0,
		Temperature: fp(-2),
		PH:          fp(7),
		ColorImage:  &blank,
	})
	if err != nil || id != "r1" {
		t.Fatalf("Record: id=%q err=%v", id, err)
	}
	got := repo.added[0]
	if got.PropertyID != "p1" {
		t.Fatalf("ids must be trimmed, got %q", got.PropertyID)
	}
	if got.ColorImage != nil {
		t.Fatalf("blank image reference must be dropped")
	}
}

func TestReadings_Record_StoreError(t *testing.T) {
	t.Parallel()
	boom := errs.Storage("add reading", errors.New("disk full"))
	s := NewReadingService(&fakeReadings{addErr: boom})

	_, err := s.Record(context.Background(), model.NewReading{PropertyID: "p1", TankID: "t1", Turbidity: 3})
	if !errs.IsStorage(err) {
		t.Fatalf("want storage error, got %v", err)
	}
}

func TestReadings_Get(t *testing.T) {
	t.Parallel()
	repo := &fakeReadings{byID: map[string]model.Reading{
		"a": {ID: "a", PropertyID: "p1", TankID: "t1"},
	}}
	s := NewReadingService(repo)

	r, err := s.Get(context.Background(), "a")
	if err != nil || r.ID != "a" {
		t.Fatalf("Get: %+v %v", r, err)
	}
	if _, err := s.Get(context.Background(), "missing"); !errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
	if _, err := s.Get(context.Background(), ""); !errors.Is(err, errs.ErrInvalidReading) {
		t.Fatalf("want validation error, got %v", err)
	}

	repo.getErr = errors.New("io")
	if _, err := s.Get(context.Background(), "a"); err == nil || errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("store errors must pass through, got %v", err)
	}
}

func TestReadings_List(t *testing.T) {
	t.Parallel()
	repo := &fakeReadings{byID: map[string]model.Reading{
		"a": {ID: "a", PropertyID: "p1", TankID: "t1"},
		"b": {ID: "b", PropertyID: "p1", TankID: "t2"},
		"c": {ID: "c", PropertyID: "p2", TankID: "t3"},
	}}
	s := NewReadingService(repo)

	byTank, err := s.ListByTank(context.Background(), "t2")
	if err != nil || len(byTank) != 1 || byTank[0].ID != "b" {
		t.Fatalf("ListByTank: %+v %v", byTank, err)
	}
	byProp, err := s.ListByProperty(context.Background(), "p1")
	if err != nil || len(byProp) != 2 {
		t.Fatalf("ListByProperty: %+v %v", byProp, err)
	}
	if _, err := s.ListByTank(context.Background(), ""); !errors.Is(err, errs.ErrInvalidReading) {
		t.Fatalf("want validation error, got %v", err)
	}
	if _, err := s.ListByProperty(context.Background(), ""); !errors.Is(err, errs.ErrInvalidReading) {
		t.Fatalf("want validation error, got %v", err)
	}
}
