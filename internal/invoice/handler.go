package invoice

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/procureflow/procureflow/internal/platform/httpx"
	"github.com/procureflow/procureflow/internal/shared"
)

// uploadMemoryLimit caps how much of a multipart body is buffered in memory;
// larger files spill to temp storage.
const uploadMemoryLimit = 4 << 20

// Handler wires HTTP endpoints for invoices.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers invoice routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/", h.handleUpload)
	r.Get("/", h.handleListForOrg)
	r.Get("/mine", h.handleListForSupplier)
	r.Get("/{id}", h.handleGet)
	r.Post("/{id}/awaiting-payment", h.handleMarkAwaitingPayment)
	r.Post("/{id}/paid", h.handleMarkPaid)
	r.Post("/bulk-paid", h.handleBulkMarkPaid)
}

func (h *Handler) handleUpload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(uploadMemoryLimit); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid multipart body")
		return
	}
	quoteID, err := strconv.ParseInt(r.FormValue("quote_id"), 10, 64)
	if err != nil || quoteID <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "quote_id is required")
		return
	}
	amount, _ := strconv.ParseFloat(r.FormValue("amount"), 64)
	file, header, err := r.FormFile("file")
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "An invoice file is required")
		return
	}
	defer file.Close()

	actor := shared.ActorFromContext(r.Context())
	inv, err := h.service.Upload(r.Context(), actor, UploadInput{
		QuoteID:       quoteID,
		InvoiceNumber: r.FormValue("invoice_number"),
		Amount:        amount,
		FileName:      header.Filename,
		ContentType:   header.Header.Get("Content-Type"),
		Size:          header.Size,
		File:          file,
	})
	if err != nil {
		h.respondError(w, "upload invoice", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, inv)
}

func (h *Handler) handleListForOrg(w http.ResponseWriter, r *http.Request) {
	actor := shared.ActorFromContext(r.Context())
	invoices, err := h.service.ListForOrg(r.Context(), actor)
	if err != nil {
		h.respondError(w, "list invoices", err)
		return
	}
	if invoices == nil {
		invoices = []Invoice{}
	}
	httpx.JSON(w, http.StatusOK, invoices)
}

func (h *Handler) handleListForSupplier(w http.ResponseWriter, r *http.Request) {
	actor := shared.ActorFromContext(r.Context())
	invoices, err := h.service.ListForSupplier(r.Context(), actor)
	if err != nil {
		h.respondError(w, "list supplier invoices", err)
		return
	}
	if invoices == nil {
		invoices = []Invoice{}
	}
	httpx.JSON(w, http.StatusOK, invoices)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid invoice id")
		return
	}
	actor := shared.ActorFromContext(r.Context())
	inv, err := h.service.Get(r.Context(), actor, id)
	if err != nil {
		h.respondError(w, "get invoice", err)
		return
	}
	httpx.JSON(w, http.StatusOK, inv)
}

func (h *Handler) handleMarkAwaitingPayment(w http.ResponseWriter, r *http.Request) {
	h.handleAdvance(w, r, h.service.MarkAwaitingPayment)
}

func (h *Handler) handleMarkPaid(w http.ResponseWriter, r *http.Request) {
	h.handleAdvance(w, r, h.service.MarkPaid)
}

func (h *Handler) handleAdvance(w http.ResponseWriter, r *http.Request, op func(ctx context.Context, actor shared.Actor, id int64) (Invoice, error)) {
	id, err := pathID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid invoice id")
		return
	}
	actor := shared.ActorFromContext(r.Context())
	inv, err := op(r.Context(), actor, id)
	if err != nil {
		h.respondError(w, "advance invoice status", err)
		return
	}
	httpx.JSON(w, http.StatusOK, inv)
}

type bulkPaidBody struct {
	IDs []int64 `json:"ids"`
}

func (h *Handler) handleBulkMarkPaid(w http.ResponseWriter, r *http.Request) {
	var body bulkPaidBody
	if err := httpx.DecodeJSON(r, &body); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	actor := shared.ActorFromContext(r.Context())
	updated, err := h.service.BulkMarkPaid(r.Context(), actor, body.IDs)
	if err != nil {
		h.respondError(w, "bulk mark paid", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]int64{"updated": updated})
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
