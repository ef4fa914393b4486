package products

import (
	"context"
	"fmt"
	"strings"

	"github.com/fabrica-mrp/fabrica/internal/masterdata/shared"
)

// Service guards the product master. Products feed everything downstream
// (BOM components, order headers, the stock ledger), so codes are normalized
// and the typed pricing rules enforced here rather than in handlers.
type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (s *Service) List(ctx context.Context, filters shared.ListFilters) ([]Product, int, error) {
	filters.Normalize()
	return s.repo.List(ctx, filters)
}

func (s *Service) Get(ctx context.Context, id int64) (Product, error) {
	if id <= 0 {
		return Product{}, shared.ErrInvalidID
	}
	return s.repo.Get(ctx, id)
}

func (s *Service) Create(ctx context.Context, product Product) (Product, error) {
	product = normalize(product)
	if err := validate(product); err != nil {
		return Product{}, err
	}
	return s.repo.Create(ctx, product)
}

func (s *Service) Update(ctx context.Context, id int64, product Product) error {
	if id <= 0 {
		return shared.ErrInvalidID
	}
	product = normalize(product)
	if err := validate(product); err != nil {
		return err
	}
	return s.repo.Update(ctx, id, product)
}

// Delete fails with ErrInUse when the product is still referenced by a BOM,
// an order, or the movement ledger.
func (s *Service) Delete(ctx context.Context, id int64) error {
	if id <= 0 {
		return shared.ErrInvalidID
	}
	return s.repo.Delete(ctx, id)
}

// normalize keeps codes uppercase so RM-steel and RM-STEEL cannot coexist as
// two products.
func normalize(p Product) Product {
	p.Code = strings.ToUpper(strings.TrimSpace(p.Code))
	p.Name = strings.TrimSpace(p.Name)
	p.Unit = strings.TrimSpace(p.Unit)
	return p
}

func validate(p Product) error {
	if p.Code == "" {
		return fmt.Errorf("%w: code", shared.ErrRequiredField)
	}
	if p.Name == "" {
		return fmt.Errorf("%w: name", shared.ErrRequiredField)
	}
	if p.Unit == "" {
		return fmt.Errorf("%w: unit", shared.ErrRequiredField)
	}
	if !p.Type.Valid() {
		return fmt.Errorf("%w: unknown product type %q", shared.ErrValidation, p.Type)
	}
	if p.SalesPrice < 0 || p.PurchasePrice < 0 {
		return fmt.Errorf("%w: prices must be >= 0", shared.ErrValidation)
	}
	if p.ReorderPoint < 0 {
		return fmt.Errorf("%w: reorder point must be >= 0", shared.ErrValidation)
	}
	if p.Type == TypeFinishedGood && p.SalesPrice == 0 {
		return fmt.Errorf("%w: finished goods need a sales price", shared.ErrValidation)
	}
	return nil
}
