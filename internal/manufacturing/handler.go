package manufacturing

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/fabrica-mrp/fabrica/internal/bom"
	"github.com/fabrica-mrp/fabrica/internal/inventory"
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

type createOrderRequest struct {
	ProductID    int64   `json:"product_id" validate:"required,gt=0"`
	Quantity     float64 `json:"quantity" validate:"required,gt=0"`
	BOMID        *int64  `json:"bom_id"`
	ScheduleDate string  `json:"schedule_date" validate:"required"`
	AssigneeID   *int64  `json:"assignee_id"`
	Priority     string  `json:"priority" validate:"omitempty,oneof=LOW MEDIUM HIGH URGENT"`
	Notes        string  `json:"notes"`
}

type consumeRequest struct {
	Quantity float64 `json:"quantity" validate:"required,gt=0"`
}

// MountRoutes registers /manufacturing routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/orders", func(r chi.Router) {
		r.Get("/", h.listOrders)
		r.Post("/", h.createOrder)
		r.Get("/{id}", h.showOrder)
		r.Post("/{id}/confirm", h.orderAction(h.service.Confirm))
		r.Post("/{id}/start", h.orderAction(h.service.Start))
		r.Post("/{id}/complete", h.orderAction(h.service.Complete))
		r.Post("/{id}/close", h.orderAction(h.service.Close))
		r.Post("/{id}/cancel", h.orderAction(h.service.Cancel))
		r.Post("/{id}/components/{componentID}/consume", h.consume)
	})
	r.Route("/workorders", func(r chi.Router) {
		r.Post("/{id}/start", h.workOrderAction(h.service.StartWorkOrder))
		r.Post("/{id}/pause", h.workOrderAction(h.service.PauseWorkOrder))
		r.Post("/{id}/resume", h.workOrderAction(h.service.ResumeWorkOrder))
		r.Post("/{id}/complete", h.workOrderAction(h.service.CompleteWorkOrder))
		r.Post("/{id}/cancel", h.workOrderAction(h.service.CancelWorkOrder))
	})
}

func (h *Handler) listOrders(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := OrderFilter{
		Status:   OrderStatus(q.Get("status")),
		Priority: Priority(q.Get("priority")),
		Page:     1,
		Limit:    50,
	}
	if pid, err := strconv.ParseInt(q.Get("product_id"), 10, 64); err == nil {
		filter.ProductID = pid
	}
	if page, err := strconv.Atoi(q.Get("page")); err == nil && page > 0 {
		filter.Page = page
	}
	if limit, err := strconv.Atoi(q.Get("limit")); err == nil && limit > 0 {
		filter.Limit = limit
	}

	items, total, err := h.service.ListOrders(r.Context(), filter)
	if err != nil {
		h.logger.Error("list manufacturing orders", slog.Any("error", err))
		h.respondError(w, err)
		return
	}
	if items == nil {
		items = []ManufacturingOrder{}
	}
	httpx.JSON(w, http.StatusOK, map[string]interface{}{"items": items, "total": total})
}

func (h *Handler) showOrder(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid order id")
		return
	}
	order, err := h.service.GetOrder(r.Context(), id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, order)
}

func (h *Handler) createOrder(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	scheduleDate, err := parseDate(req.ScheduleDate)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "schedule_date must be RFC3339 or YYYY-MM-DD")
		return
	}

	order, err := h.service.CreateOrder(r.Context(), CreateOrderInput{
		ProductID:    req.ProductID,
		Quantity:     req.Quantity,
		BOMID:        req.BOMID,
		ScheduleDate: scheduleDate,
		AssigneeID:   req.AssigneeID,
		Priority:     Priority(req.Priority),
		Notes:        req.Notes,
		ActorID:      shared.ActorFromContext(r.Context()),
	})
	if err != nil {
		h.logger.Error("create manufacturing order", slog.Any("error", err))
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, order)
}

func (h *Handler) orderAction(action func(context.Context, int64, int64) (*ManufacturingOrder, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid order id")
			return
		}
		order, err := action(r.Context(), id, shared.ActorFromContext(r.Context()))
		if err != nil {
			h.logger.Error("order transition", slog.Any("error", err), slog.Int64("order_id", id))
			h.respondError(w, err)
			return
		}
		httpx.JSON(w, http.StatusOK, order)
	}
}

func (h *Handler) workOrderAction(action func(context.Context, int64, int64) (WorkOrder, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid work order id")
			return
		}
		wo, err := action(r.Context(), id, shared.ActorFromContext(r.Context()))
		if err != nil {
			h.logger.Error("work order transition", slog.Any("error", err), slog.Int64("work_order_id", id))
			h.respondError(w, err)
			return
		}
		httpx.JSON(w, http.StatusOK, wo)
	}
}

func (h *Handler) consume(w http.ResponseWriter, r *http.Request) {
	orderID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid order id")
		return
	}
	componentID, err := strconv.ParseInt(chi.URLParam(r, "componentID"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid component id")
		return
	}
	var req consumeRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	if err := h.service.RecordConsumption(r.Context(), orderID, componentID, req.Quantity, shared.ActorFromContext(r.Context())); err != nil {
		h.respondError(w, err)
		return
	}
	order, err := h.service.GetOrder(r.Context(), orderID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, order)
}

func parseDate(raw string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", raw)
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrOrderNotFound), errors.Is(err, ErrWorkOrderNotFound),
		errors.Is(err, ErrComponentNotFound), errors.Is(err, bom.ErrBOMNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrInvalidTransition):
		httpx.Problem(w, http.StatusConflict, "Invalid Transition", err.Error())
	case errors.Is(err, ErrPrerequisiteNotMet):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Prerequisite Not Met", err.Error())
	case errors.Is(err, inventory.ErrInsufficientStock):
		httpx.Problem(w, http.StatusConflict, "Insufficient Stock", err.Error())
	case errors.Is(err, ErrValidation), errors.Is(err, bom.ErrInvalidQuantity), errors.Is(err, bom.ErrNoComponents):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	default:
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
