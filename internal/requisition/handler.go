package requisition

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/procureflow/procureflow/internal/platform/httpx"
	"github.com/procureflow/procureflow/internal/shared"
)

// Handler wires HTTP endpoints for the requisition lifecycle.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers requisition routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.handleList)
	r.Post("/", h.handleCreate)
	r.Get("/{id}", h.handleGet)
	r.Post("/{id}/hod-approve", h.handleHODApprove)
	r.Post("/{id}/hod-decline", h.handleHODDecline)
	r.Post("/{id}/finance-approve", h.handleFinanceApprove)
	r.Post("/{id}/finance-decline", h.handleFinanceDecline)
	r.Post("/{id}/split", h.handleSplit)
}

type itemInput struct {
	Description string  `json:"description" validate:"required"`
	Quantity    float64 `json:"quantity" validate:"required,gt=0"`
	UnitPrice   float64 `json:"unit_price" validate:"gte=0"`
}

type createRequest struct {
	Items          []itemInput `json:"items" validate:"required,min=1,dive"`
	Currency       string      `json:"currency"`
	Urgency        string      `json:"urgency"`
	DueDate        *time.Time  `json:"due_date"`
	PaymentDueDate *time.Time  `json:"payment_due_date"`
	DocumentKey    string      `json:"document_key"`
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "Each item needs a description and a positive quantity")
		return
	}
	items := make([]Item, len(req.Items))
	for i, it := range req.Items {
		items[i] = Item{Description: it.Description, Quantity: it.Quantity, UnitPrice: it.UnitPrice}
	}
	actor := shared.ActorFromContext(r.Context())
	pr, err := h.service.Create(r.Context(), actor, CreateRequest{
		Items:          items,
		Currency:       req.Currency,
		Urgency:        req.Urgency,
		DueDate:        req.DueDate,
		PaymentDueDate: req.PaymentDueDate,
		DocumentKey:    req.DocumentKey,
	})
	if err != nil {
		h.respondError(w, "create requisition", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, pr)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid requisition id")
		return
	}
	actor := shared.ActorFromContext(r.Context())
	pr, err := h.service.Get(r.Context(), actor, id)
	if err != nil {
		h.respondError(w, "get requisition", err)
		return
	}
	httpx.JSON(w, http.StatusOK, pr)
}

type listResponse struct {
	Requisitions []Requisition `json:"requisitions"`
	Total        int           `json:"total"`
	Page         int           `json:"page"`
	PerPage      int           `json:"per_page"`
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filters := ListFilters{
		Status: q.Get("status"),
	}
	if v, err := strconv.ParseInt(q.Get("requester_id"), 10, 64); err == nil {
		filters.RequesterID = v
	}
	if v, err := strconv.ParseInt(q.Get("parent_id"), 10, 64); err == nil {
		filters.ParentID = v
	}
	if v, err := strconv.Atoi(q.Get("page")); err == nil {
		filters.Page = v
	}
	if v, err := strconv.Atoi(q.Get("per_page")); err == nil {
		filters.PerPage = v
	}
	actor := shared.ActorFromContext(r.Context())
	prs, total, err := h.service.List(r.Context(), actor, filters)
	if err != nil {
		h.respondError(w, "list requisitions", err)
		return
	}
	if prs == nil {
		prs = []Requisition{}
	}
	if filters.Page < 1 {
		filters.Page = 1
	}
	if filters.PerPage <= 0 || filters.PerPage > 100 {
		filters.PerPage = 20
	}
	httpx.JSON(w, http.StatusOK, listResponse{Requisitions: prs, Total: total, Page: filters.Page, PerPage: filters.PerPage})
}

type reviewRequest struct {
	Comment string `json:"comment" validate:"required"`
}

func (h *Handler) handleHODApprove(w http.ResponseWriter, r *http.Request) {
	h.handleReview(w, r, h.service.HODApprove)
}

func (h *Handler) handleHODDecline(w http.ResponseWriter, r *http.Request) {
	h.handleReview(w, r, h.service.HODDecline)
}

func (h *Handler) handleFinanceDecline(w http.ResponseWriter, r *http.Request) {
	h.handleReview(w, r, h.service.FinanceDecline)
}

func (h *Handler) handleReview(w http.ResponseWriter, r *http.Request, op func(context.Context, shared.Actor, int64, string) (Requisition, error)) {
	id, err := pathID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid requisition id")
		return
	}
	var req reviewRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	actor := shared.ActorFromContext(r.Context())
	pr, err := op(r.Context(), actor, id, req.Comment)
	if err != nil {
		h.respondError(w, "review requisition", err)
		return
	}
	httpx.JSON(w, http.StatusOK, pr)
}

type financeApproveRequest struct {
	CategoryID int64  `json:"category_id" validate:"required,gt=0"`
	Comment    string `json:"comment" validate:"required"`
}

func (h *Handler) handleFinanceApprove(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid requisition id")
		return
	}
	var req financeApproveRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	actor := shared.ActorFromContext(r.Context())
	pr, err := h.service.FinanceApprove(r.Context(), actor, id, req.CategoryID, req.Comment)
	if err != nil {
		h.respondError(w, "finance approve requisition", err)
		return
	}
	httpx.JSON(w, http.StatusOK, pr)
}

type splitGroupInput struct {
	ItemIDs []int64 `json:"item_ids"`
	Comment string  `json:"comment"`
}

type splitRequest struct {
	Groups []splitGroupInput `json:"groups" validate:"required,min=2"`
}

func (h *Handler) handleSplit(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid requisition id")
		return
	}
	var req splitRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "A split needs at least two groups")
		return
	}
	groups := make([]SplitGroup, len(req.Groups))
	for i, g := range req.Groups {
		groups[i] = SplitGroup{ItemIDs: g.ItemIDs, Comment: g.Comment}
	}
	actor := shared.ActorFromContext(r.Context())
	children, err := h.service.Split(r.Context(), actor, id, groups)
	if err != nil {
		h.respondError(w, "split requisition", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, children)
}

func (h *Handler) respondError(w http.ResponseWriter, op string, err error) {
	var safe *shared.SafeError
	switch {
	case errors.Is(err, shared.ErrForbidden):
		httpx.Problem(w, http.StatusForbidden, "Forbidden", shared.UserSafeMessage(err))
	case errors.Is(err, shared.ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", shared.UserSafeMessage(err))
	case errors.As(err, &safe):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Cannot Process", safe.Error())
	default:
		h.logger.Error(op, slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", shared.UserSafeMessage(err))
	}
}

func pathID(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
}
