package reporting

import (
	"context"
	"log/slog"
)

const lowStockLimit = 20

// Service assembles the dashboard, caching the result under a versioned key
// until the TTL expires.
type Service struct {
	logger *slog.Logger
	repo   Repository
	cache  *Cache
}

func NewService(logger *slog.Logger, repo Repository, cache *Cache) *Service {
	return &Service{logger: logger, repo: repo, cache: cache}
}

func (s *Service) Dashboard(ctx context.Context) (Dashboard, error) {
	key, err := s.cache.BuildKey(ctx, "reporting", "dashboard")
	if err != nil {
		return Dashboard{}, err
	}
	var dash Dashboard
	err = s.cache.FetchJSON(ctx, key, &dash, func(ctx context.Context) (interface{}, error) {
		return s.buildDashboard(ctx)
	})
	return dash, err
}

func (s *Service) buildDashboard(ctx context.Context) (Dashboard, error) {
	var dash Dashboard
	var err error

	if dash.OrdersByStatus, err = s.repo.OrdersByStatus(ctx); err != nil {
		return Dashboard{}, err
	}
	if dash.WorkCenterLoad, err = s.repo.WorkCenterLoad(ctx); err != nil {
		return Dashboard{}, err
	}
	if dash.LowStockProducts, err = s.repo.LowStockProducts(ctx, lowStockLimit); err != nil {
		return Dashboard{}, err
	}
	if dash.TotalInventoryValue, err = s.repo.TotalInventoryValue(ctx); err != nil {
		return Dashboard{}, err
	}

	var total, done int
	for _, sc := range dash.OrdersByStatus {
		total += sc.Count
		if sc.Status == "DONE" {
			done += sc.Count
		}
	}
	if total > 0 {
		dash.CompletionRate = float64(done) / float64(total)
	}
	if dash.OrdersByStatus == nil {
		dash.OrdersByStatus = []StatusCount{}
	}
	if dash.WorkCenterLoad == nil {
		dash.WorkCenterLoad = []WorkCenterLoad{}
	}
	if dash.LowStockProducts == nil {
		dash.LowStockProducts = []LowStockProduct{}
	}
	return dash, nil
}

// Invalidate bumps the cache version so the next read rebuilds.
func (s *Service) Invalidate(ctx context.Context) error {
	return s.cache.Bump(ctx)
}
