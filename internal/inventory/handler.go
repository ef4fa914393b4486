package inventory

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/fabrica-mrp/fabrica/internal/platform/httpx"
	"github.com/fabrica-mrp/fabrica/internal/shared"
)

type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

type postMovementRequest struct {
	ProductID    int64   `json:"product_id" validate:"required,gt=0"`
	MovementType string  `json:"movement_type" validate:"required,oneof=IN OUT"`
	Quantity     float64 `json:"quantity" validate:"required,gt=0"`
	UnitCost     float64 `json:"unit_cost" validate:"gte=0"`
	Reference    string  `json:"reference"`
	ReferenceID  string  `json:"reference_id"`
	Notes        string  `json:"notes"`
}

// MountRoutes registers /stock routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/movements", h.postMovement)
	r.Get("/movements", h.listMovements)
}

func (h *Handler) postMovement(w http.ResponseWriter, r *http.Request) {
	var req postMovementRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	movement, err := h.service.PostMovement(r.Context(), MovementInput{
		ProductID:    req.ProductID,
		MovementType: MovementType(req.MovementType),
		Quantity:     req.Quantity,
		UnitCost:     req.UnitCost,
		Reference:    req.Reference,
		ReferenceID:  req.ReferenceID,
		Notes:        req.Notes,
		ActorID:      shared.ActorFromContext(r.Context()),
	})
	if err != nil {
		h.logger.Error("post movement", slog.Any("error", err))
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, movement)
}

func (h *Handler) listMovements(w http.ResponseWriter, r *http.Request) {
	filter := parseHistoryFilter(r)
	items, err := h.service.History(r.Context(), filter)
	if err != nil {
		h.logger.Error("list movements", slog.Any("error", err))
		h.respondError(w, err)
		return
	}
	if items == nil {
		items = []StockMovement{}
	}
	httpx.JSON(w, http.StatusOK, map[string]interface{}{"items": items, "total": len(items)})
}

// ProductStock serves GET /products/{id}/stock.
func (h *Handler) ProductStock(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid product id")
		return
	}
	qty, err := h.service.CurrentStock(r.Context(), id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]interface{}{"product_id": id, "current_stock": qty})
}

// ProductMovements serves GET /products/{id}/movements.
func (h *Handler) ProductMovements(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid product id")
		return
	}
	filter := parseHistoryFilter(r)
	filter.ProductID = id
	items, err := h.service.History(r.Context(), filter)
	if err != nil {
		h.respondError(w, err)
		return
	}
	if items == nil {
		items = []StockMovement{}
	}
	httpx.JSON(w, http.StatusOK, map[string]interface{}{"items": items, "total": len(items)})
}

func parseHistoryFilter(r *http.Request) HistoryFilter {
	q := r.URL.Query()
	filter := HistoryFilter{Limit: 100}
	if pid, err := strconv.ParseInt(q.Get("product_id"), 10, 64); err == nil {
		filter.ProductID = pid
	}
	if limit, err := strconv.Atoi(q.Get("limit")); err == nil && limit > 0 {
		filter.Limit = limit
	}
	if from, err := time.Parse(time.RFC3339, q.Get("from")); err == nil {
		filter.From = from
	}
	if to, err := time.Parse(time.RFC3339, q.Get("to")); err == nil {
		filter.To = to
	}
	return filter
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrBalanceNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrInsufficientStock):
		httpx.Problem(w, http.StatusConflict, "Insufficient Stock", err.Error())
	case errors.Is(err, shared.ErrIdempotencyConflict):
		httpx.Problem(w, http.StatusConflict, "Duplicate Request", err.Error())
	case errors.Is(err, ErrInvalidQuantity), errors.Is(err, ErrInvalidUnitCost), errors.Is(err, ErrProductRequired):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	default:
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
