package bom

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

type Service struct {
	logger *slog.Logger
	repo   Repository
	policy DurationPolicy
}

func NewService(logger *slog.Logger, repo Repository, policy DurationPolicy) *Service {
	if policy == "" {
		policy = DurationPerBatch
	}
	return &Service{logger: logger, repo: repo, policy: policy}
}

// Policy reports the configured duration scaling policy.
func (s *Service) Policy() DurationPolicy {
	return s.policy
}

func (s *Service) List(ctx context.Context, productID int64) ([]BOM, error) {
	return s.repo.List(ctx, productID)
}

func (s *Service) Get(ctx context.Context, id int64) (*BOM, error) {
	if id <= 0 {
		return nil, ErrBOMNotFound
	}
	return s.repo.Get(ctx, id)
}

// ActiveForProduct returns the single active BOM for a product, or
// ErrBOMNotFound when no version is active.
func (s *Service) ActiveForProduct(ctx context.Context, productID int64) (*BOM, error) {
	return s.repo.GetActiveForProduct(ctx, productID)
}

func (s *Service) Create(ctx context.Context, b BOM) (*BOM, error) {
	if b.ProductID <= 0 {
		return nil, fmt.Errorf("%w: product_id is required", ErrValidation)
	}
	if strings.TrimSpace(b.Version) == "" {
		return nil, fmt.Errorf("%w: version is required", ErrValidation)
	}
	if len(b.Components) == 0 {
		return nil, ErrNoComponents
	}
	for _, c := range b.Components {
		if c.ProductID <= 0 {
			return nil, fmt.Errorf("%w: component product_id is required", ErrValidation)
		}
		if c.Quantity <= 0 {
			return nil, fmt.Errorf("%w: component quantity must be > 0", ErrValidation)
		}
		if c.Wastage < 0 {
			return nil, fmt.Errorf("%w: wastage cannot be negative", ErrValidation)
		}
	}
	for _, op := range b.Operations {
		if strings.TrimSpace(op.Name) == "" {
			return nil, fmt.Errorf("%w: operation name is required", ErrValidation)
		}
		if op.WorkCenterID <= 0 {
			return nil, fmt.Errorf("%w: operation work_center_id is required", ErrValidation)
		}
		if op.TimeMinutes < 0 {
			return nil, fmt.Errorf("%w: operation time cannot be negative", ErrValidation)
		}
	}
	return s.repo.Create(ctx, b)
}

func (s *Service) Activate(ctx context.Context, id int64) error {
	if id <= 0 {
		return ErrBOMNotFound
	}
	if err := s.repo.Activate(ctx, id); err != nil {
		return err
	}
	s.logger.Info("bom activated", slog.Int64("bom_id", id))
	return nil
}

// ResolveByID loads a BOM and expands it for the given quantity using the
// configured duration policy.
func (s *Service) ResolveByID(ctx context.Context, id int64, quantity float64) (Resolution, error) {
	b, err := s.Get(ctx, id)
	if err != nil {
		return Resolution{}, err
	}
	return Resolve(b, quantity, s.policy)
}
