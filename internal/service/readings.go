// Package service contains application services used by the CLI and other front ends.
package service

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/and161185/neptus-sync/internal/errs"
	"github.com/and161185/neptus-sync/internal/model"
	"github.com/and161185/neptus-sync/internal/repository"
)

// ReadingService records sensor readings offline and reads them back.
type ReadingService interface {
	// Record validates in and stores it as a pending reading, returning its id.
	Record(ctx context.Context, in model.NewReading) (string, error)
	// Get returns a reading or errs.ErrNotFound.
	Get(ctx context.Context, id string) (model.Reading, error)
	// ListByTank returns a tank's readings, most recent first.
	ListByTank(ctx context.Context, tankID string) ([]model.Reading, error)
	// ListByProperty returns a property's readings, most recent first.
	ListByProperty(ctx context.Context, propertyID string) ([]model.Reading, error)
}

type ReadingServiceImpl struct {
	repo repository.ReadingRepository
}

// NewReadingService constructs ReadingService over a reading repository.
func NewReadingService(repo repository.ReadingRepository) *ReadingServiceImpl {
	return &ReadingServiceImpl{repo: repo}
}

// Record validates input and delegates to the repository.
// Validation rules:
// - property and tank ids are non-blank
// - turbidity is finite and >= 0
// - optional measures, when present, are finite
// - pH is within [0, 14]; oxygen and ammonia are >= 0
func (s *ReadingServiceImpl) Record(ctx context.Context, in model.NewReading) (string, error) {
	in.PropertyID = strings.TrimSpace(in.PropertyID)
	in.TankID = strings.TrimSpace(in.TankID)
	if in.PropertyID == "" {
		return "", fmt.Errorf("%w: empty property id", errs.ErrInvalidReading)
	}
	if in.TankID == "" {
		return "", fmt.Errorf("%w: empty tank id", errs.ErrInvalidReading)
	}
	if !finite(in.Turbidity) || in.Turbidity < 0 {
		return "", fmt.Errorf("%w: turbidity %v", errs.ErrInvalidReading, in.Turbidity)
	}
	if err := optional("temperature", in.Temperature, math.Inf(-1), math.Inf(1)); err != nil {
		return "", err
	}
	if err := optional("ph", in.PH, 0, 14); err != nil {
		return "", err
	}
	if err := optional("oxygen", in.Oxygen, 0, math.Inf(1)); err != nil {
		return "", err
	}
	if err := optional("ammonia", in.Ammonia, 0, math.Inf(1)); err != nil {
		return "", err
	}
	if in.ColorImage != nil && strings.TrimSpace(*in.ColorImage) == "" {
		in.ColorImage = nil
	}
	return s.repo.Add(ctx, in)
}

// Get fetches a single reading by id.
func (s *ReadingServiceImpl) Get(ctx context.Context, id string) (model.Reading, error) {
	if id == "" {
		return model.Reading{}, fmt.Errorf("%w: empty id", errs.ErrInvalidReading)
	}
	r, ok, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return model.Reading{}, err
	}
	if !ok {
		return model.Reading{}, errs.ErrNotFound
	}
	return r, nil
}

func (s *ReadingServiceImpl) ListByTank(ctx context.Context, tankID string) ([]model.Reading, error) {
	if tankID == "" {
		return nil, fmt.Errorf("%w: empty tank id", errs.ErrInvalidReading)
	}
	return s.repo.GetByTank(ctx, tankID)
}

func (s *ReadingServiceImpl) ListByProperty(ctx context.Context, propertyID string) ([]model.Reading, error) {
	if propertyID == "" {
		return nil, fmt.Errorf("%w: empty property id", errs.ErrInvalidReading)
	}
	return s.repo.GetByProperty(ctx, propertyID)
}

func finite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }

func optional(name string, v *float64, lo, hi float64) error {
	if v == nil {
		return nil
	}
	if !finite(*v) || *v < lo || *v > hi {
		return fmt.Errorf("%w: %s %v", errs.ErrInvalidReading, name, *v)
	}
	return nil
}
