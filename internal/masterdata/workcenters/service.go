package workcenters

import (
	"context"
	"fmt"
	"strings"

	"github.com/fabrica-mrp/fabrica/internal/masterdata/shared"
)

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (s *Service) List(ctx context.Context, filters shared.ListFilters) ([]WorkCenter, int, error) {
	filters.Normalize()
	return s.repo.List(ctx, filters)
}

func (s *Service) Get(ctx context.Context, id int64) (WorkCenter, error) {
	if id <= 0 {
		return WorkCenter{}, shared.ErrInvalidID
	}
	return s.repo.Get(ctx, id)
}

func (s *Service) Create(ctx context.Context, wc WorkCenter) (WorkCenter, error) {
	if err := s.validate(wc); err != nil {
		return WorkCenter{}, err
	}
	return s.repo.Create(ctx, wc)
}

func (s *Service) Update(ctx context.Context, id int64, wc WorkCenter) error {
	if id <= 0 {
		return shared.ErrInvalidID
	}
	if err := s.validate(wc); err != nil {
		return err
	}
	return s.repo.Update(ctx, id, wc)
}

func (s *Service) Delete(ctx context.Context, id int64) error {
	if id <= 0 {
		return shared.ErrInvalidID
	}
	return s.repo.Delete(ctx, id)
}

func (s *Service) validate(wc WorkCenter) error {
	if strings.TrimSpace(wc.Code) == "" {
		return fmt.Errorf("%w: code", shared.ErrRequiredField)
	}
	if strings.TrimSpace(wc.Name) == "" {
		return fmt.Errorf("%w: name", shared.ErrRequiredField)
	}
	if wc.HourlyRate < 0 {
		return fmt.Errorf("%w: hourly rate must be >= 0", shared.ErrValidation)
	}
	if wc.CapacityPerDayMins < 0 {
		return fmt.Errorf("%w: capacity must be >= 0", shared.ErrValidation)
	}
	return nil
}
