package quotation

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

// Handler wires HTTP endpoints for the quotation cycle.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers quotation routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/requests", h.handleSendRequest)
	r.Get("/requests", h.handleSupplierRequests)
	r.Post("/requests/{id}/accept", h.handleAcceptRequest)
	r.Post("/requests/{id}/decline", h.handleDeclineRequest)
	r.Post("/requests/{id}/quote", h.handleSubmitQuote)
	r.Get("/quotes", h.handleSupplierQuotes)
	r.Post("/quotes/{id}/accept", h.handleAcceptQuote)
	r.Post("/quotes/{id}/reject", h.handleRejectQuote)
	r.Get("/requisitions/{id}/requests", h.handleRequestsForPR)
	r.Get("/requisitions/{id}/quotes", h.handleQuotesForPR)
}

type sendRequestBody struct {
	PRID       int64   `json:"pr_id" validate:"required,gt=0"`
	SupplierID int64   `json:"supplier_id" validate:"required,gt=0"`
	ItemIDs    []int64 `json:"item_ids"`
	Message    string  `json:"message"`
}

func (h *Handler) handleSendRequest(w http.ResponseWriter, r *http.Request) {
	var body sendRequestBody
	if err := httpx.DecodeJSON(r, &body); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validator.Struct(body); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "pr_id and supplier_id are required")
		return
	}
	actor := shared.ActorFromContext(r.Context())
	req, err := h.service.SendRequest(r.Context(), actor, SendRequestInput{
		PRID:       body.PRID,
		SupplierID: body.SupplierID,
		ItemIDs:    body.ItemIDs,
		Message:    body.Message,
	})
	if err != nil {
		h.respondError(w, "send quote request", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, req)
}

func (h *Handler) handleSupplierRequests(w http.ResponseWriter, r *http.Request) {
	actor := shared.ActorFromContext(r.Context())
	requests, err := h.service.RequestsForSupplier(r.Context(), actor)
	if err != nil {
		h.respondError(w, "list supplier requests", err)
		return
	}
	if requests == nil {
		requests = []QuoteRequest{}
	}
	httpx.JSON(w, http.StatusOK, requests)
}

func (h *Handler) handleAcceptRequest(w http.ResponseWriter, r *http.Request) {
	h.respondToRequest(w, r, h.service.AcceptRequest)
}

func (h *Handler) handleDeclineRequest(w http.ResponseWriter, r *http.Request) {
	h.respondToRequest(w, r, h.service.DeclineRequest)
}

func (h *Handler) respondToRequest(w http.ResponseWriter, r *http.Request, op func(context.Context, shared.Actor, int64) error) {
	id, err := pathID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid request id")
		return
	}
	actor := shared.ActorFromContext(r.Context())
	if err := op(r.Context(), actor, id); err != nil {
		h.respondError(w, "respond to quote request", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type submitQuoteBody struct {
	Amount           float64    `json:"amount" validate:"required,gt=0"`
	DeliveryEstimate string     `json:"delivery_estimate"`
	ValidUntil       *time.Time `json:"valid_until"`
	Notes            string     `json:"notes"`
	DocumentKey      string     `json:"document_key"`
}

func (h *Handler) handleSubmitQuote(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid request id")
		return
	}
	var body submitQuoteBody
	if err := httpx.DecodeJSON(r, &body); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validator.Struct(body); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "A positive amount is required")
		return
	}
	actor := shared.ActorFromContext(r.Context())
	quote, err := h.service.SubmitQuote(r.Context(), actor, SubmitQuoteInput{
		RequestID:        id,
		Amount:           body.Amount,
		DeliveryEstimate: body.DeliveryEstimate,
		ValidUntil:       body.ValidUntil,
		Notes:            body.Notes,
		DocumentKey:      body.DocumentKey,
	})
	if err != nil {
		h.respondError(w, "submit quote", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, quote)
}

func (h *Handler) handleSupplierQuotes(w http.ResponseWriter, r *http.Request) {
	actor := shared.ActorFromContext(r.Context())
	quotes, err := h.service.QuotesForSupplier(r.Context(), actor)
	if err != nil {
		h.respondError(w, "list supplier quotes", err)
		return
	}
	if quotes == nil {
		quotes = []Quote{}
	}
	httpx.JSON(w, http.StatusOK, quotes)
}

func (h *Handler) handleAcceptQuote(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid quote id")
		return
	}
	actor := shared.ActorFromContext(r.Context())
	quote, err := h.service.AcceptQuote(r.Context(), actor, id)
	if err != nil {
		h.respondError(w, "accept quote", err)
		return
	}
	httpx.JSON(w, http.StatusOK, quote)
}

func (h *Handler) handleRejectQuote(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid quote id")
		return
	}
	actor := shared.ActorFromContext(r.Context())
	if err := h.service.RejectQuote(r.Context(), actor, id); err != nil {
		h.respondError(w, "reject quote", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleRequestsForPR(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid requisition id")
		return
	}
	actor := shared.ActorFromContext(r.Context())
	requests, err := h.service.RequestsForPR(r.Context(), actor, id)
	if err != nil {
		h.respondError(w, "list requests for requisition", err)
		return
	}
	if requests == nil {
		requests = []QuoteRequest{}
	}
	httpx.JSON(w, http.StatusOK, requests)
}

func (h *Handler) handleQuotesForPR(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid requisition id")
		return
	}
	actor := shared.ActorFromContext(r.Context())
	quotes, err := h.service.QuotesForPR(r.Context(), actor, id)
	if err != nil {
		h.respondError(w, "list quotes for requisition", err)
		return
	}
	if quotes == nil {
		quotes = []Quote{}
	}
	httpx.JSON(w, http.StatusOK, quotes)
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
