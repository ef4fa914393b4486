package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/fabrica-mrp/fabrica/internal/bom"
	"github.com/fabrica-mrp/fabrica/internal/inventory"
	"github.com/fabrica-mrp/fabrica/internal/manufacturing"
	"github.com/fabrica-mrp/fabrica/internal/masterdata/products"
	"github.com/fabrica-mrp/fabrica/internal/masterdata/workcenters"
	"github.com/fabrica-mrp/fabrica/internal/observability"
	"github.com/fabrica-mrp/fabrica/internal/reporting"
	"github.com/fabrica-mrp/fabrica/jobs"
)

// RouterParams aggregates handlers for route mounting.
type RouterParams struct {
	Logger        *slog.Logger
	Config        *Config
	Metrics       *observability.Metrics
	Products      *products.Handler
	WorkCenters   *workcenters.Handler
	BOMs          *bom.Handler
	Inventory     *inventory.Handler
	Manufacturing *manufacturing.Handler
	Reporting     *reporting.Handler
	Jobs          *jobs.Handler
	HealthCheck   http.HandlerFunc
}

// NewRouter assembles the chi router with the middleware stack and all
// /api/v1 routes.
func NewRouter(p RouterParams) chi.Router {
	r := chi.NewRouter()
	for _, mw := range MiddlewareStack(MiddlewareConfig{Logger: p.Logger, Config: p.Config, Metrics: p.Metrics}) {
		r.Use(mw)
	}

	if p.HealthCheck != nil {
		r.Get("/healthz", p.HealthCheck)
	}
	if p.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", p.Metrics.Handler())
	}

	r.Route("/api/v1", func(r chi.Router) {
		if p.Products != nil {
			r.Route("/products", func(r chi.Router) {
				p.Products.MountRoutes(r)
				if p.Inventory != nil {
					r.Get("/{id}/stock", p.Inventory.ProductStock)
					r.Get("/{id}/movements", p.Inventory.ProductMovements)
				}
			})
		}
		if p.WorkCenters != nil {
			r.Route("/workcenters", p.WorkCenters.MountRoutes)
		}
		if p.BOMs != nil {
			r.Route("/boms", p.BOMs.MountRoutes)
		}
		if p.Inventory != nil {
			r.Route("/stock", p.Inventory.MountRoutes)
		}
		if p.Manufacturing != nil {
			r.Route("/manufacturing", p.Manufacturing.MountRoutes)
		}
		if p.Reporting != nil {
			r.Route("/reports", p.Reporting.MountRoutes)
		}
		if p.Jobs != nil {
			r.Route("/jobs", p.Jobs.MountRoutes)
		}
	})

	return r
}
