package messaging

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/procureflow/procureflow/internal/platform/httpx"
	"github.com/procureflow/procureflow/internal/shared"
)

// Handler wires HTTP endpoints for requisition threads.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers thread routes under a requisition id.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/requisitions/{id}/messages", h.handleList)
	r.Post("/requisitions/{id}/messages", h.handlePost)
}

type attachmentInput struct {
	DocumentKey string `json:"document_key" validate:"required"`
	FileName    string `json:"file_name" validate:"required"`
	ContentType string `json:"content_type"`
}

type postBody struct {
	Body        string            `json:"body"`
	Attachments []attachmentInput `json:"attachments" validate:"dive"`
}

func (h *Handler) handlePost(w http.ResponseWriter, r *http.Request) {
	prID, err := pathID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid requisition id")
		return
	}
	var body postBody
	if err := httpx.DecodeJSON(r, &body); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validator.Struct(body); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "attachments need a document key and file name")
		return
	}

	attachments := make([]Attachment, len(body.Attachments))
	for i, a := range body.Attachments {
		attachments[i] = Attachment{DocumentKey: a.DocumentKey, FileName: a.FileName, ContentType: a.ContentType}
	}
	actor := shared.ActorFromContext(r.Context())
	msg, err := h.service.Post(r.Context(), actor, PostInput{PRID: prID, Body: body.Body, Attachments: attachments})
	if err != nil {
		h.respondError(w, "post message", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, msg)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	prID, err := pathID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid requisition id")
		return
	}
	actor := shared.ActorFromContext(r.Context())
	messages, err := h.service.List(r.Context(), actor, prID)
	if err != nil {
		h.respondError(w, "list messages", err)
		return
	}
	if messages == nil {
		messages = []Message{}
	}
	httpx.JSON(w, http.StatusOK, messages)
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
