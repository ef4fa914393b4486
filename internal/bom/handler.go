package bom

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/fabrica-mrp/fabrica/internal/platform/httpx"
)

type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

type componentRequest struct {
	ProductID int64   `json:"product_id" validate:"required,gt=0"`
	Quantity  float64 `json:"quantity" validate:"required,gt=0"`
	Unit      string  `json:"unit" validate:"required"`
	Wastage   float64 `json:"wastage" validate:"gte=0"`
}

type operationRequest struct {
	Sequence     int     `json:"sequence" validate:"gte=0"`
	Name         string  `json:"name" validate:"required"`
	WorkCenterID int64   `json:"work_center_id" validate:"required,gt=0"`
	TimeMinutes  float64 `json:"time_minutes" validate:"gte=0"`
}

type createBOMRequest struct {
	ProductID  int64              `json:"product_id" validate:"required,gt=0"`
	Version    string             `json:"version" validate:"required"`
	Components []componentRequest `json:"components" validate:"required,min=1,dive"`
	Operations []operationRequest `json:"operations" validate:"dive"`
}

type resolveRequest struct {
	Quantity float64 `json:"quantity" validate:"required,gt=0"`
}

func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Post("/", h.create)
	r.Get("/{id}", h.show)
	r.Post("/{id}/activate", h.activate)
	r.Post("/{id}/resolve", h.resolve)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	productID, _ := strconv.ParseInt(r.URL.Query().Get("product_id"), 10, 64)
	items, err := h.service.List(r.Context(), productID)
	if err != nil {
		h.logger.Error("list boms", slog.Any("error", err))
		h.respondError(w, err)
		return
	}
	if items == nil {
		items = []BOM{}
	}
	httpx.JSON(w, http.StatusOK, map[string]interface{}{"items": items, "total": len(items)})
}

func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid bom id")
		return
	}
	b, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, b)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req createBOMRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	b := BOM{ProductID: req.ProductID, Version: req.Version}
	for _, c := range req.Components {
		b.Components = append(b.Components, BOMComponent{
			ProductID: c.ProductID,
			Quantity:  c.Quantity,
			Unit:      c.Unit,
			Wastage:   c.Wastage,
		})
	}
	for _, op := range req.Operations {
		b.Operations = append(b.Operations, BOMOperation{
			Sequence:     op.Sequence,
			Name:         op.Name,
			WorkCenterID: op.WorkCenterID,
			TimeMinutes:  op.TimeMinutes,
		})
	}

	created, err := h.service.Create(r.Context(), b)
	if err != nil {
		h.logger.Error("create bom", slog.Any("error", err))
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, created)
}

func (h *Handler) activate(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid bom id")
		return
	}
	if err := h.service.Activate(r.Context(), id); err != nil {
		h.respondError(w, err)
		return
	}
	b, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, b)
}

// resolve is a dry run: it expands the BOM for a quantity without creating
// anything, so the SPA can preview material requirements.
func (h *Handler) resolve(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid bom id")
		return
	}
	var req resolveRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	res, err := h.service.ResolveByID(r.Context(), id, req.Quantity)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, res)
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrBOMNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrInvalidQuantity), errors.Is(err, ErrNoComponents), errors.Is(err, ErrValidation):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	default:
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
