package masterdata

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/procureflow/procureflow/internal/platform/httpx"
	"github.com/procureflow/procureflow/internal/shared"
)

// Handler wires HTTP endpoints for master data management.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers master data routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/categories", func(r chi.Router) {
		r.Get("/", h.listCategories)
		r.Post("/", h.createCategory)
		r.Get("/{id}", h.getCategory)
		r.Put("/{id}", h.updateCategory)
		r.Delete("/{id}", h.deleteCategory)
	})
	r.Route("/suppliers", func(r chi.Router) {
		r.Get("/", h.listSuppliers)
		r.Post("/", h.createSupplier)
		r.Get("/{id}", h.getSupplier)
		r.Put("/{id}", h.updateSupplier)
		r.Post("/{id}/link-user", h.linkSupplierUser)
	})
}

func (h *Handler) listCategories(w http.ResponseWriter, r *http.Request) {
	actor := shared.ActorFromContext(r.Context())
	categories, err := h.service.ListCategories(r.Context(), actor)
	if err != nil {
		h.respondError(w, "list categories", err)
		return
	}
	if categories == nil {
		categories = []Category{}
	}
	httpx.JSON(w, http.StatusOK, categories)
}

func (h *Handler) getCategory(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid id")
		return
	}
	actor := shared.ActorFromContext(r.Context())
	category, err := h.service.GetCategory(r.Context(), actor, id)
	if err != nil {
		h.respondError(w, "get category", err)
		return
	}
	httpx.JSON(w, http.StatusOK, category)
}

func (h *Handler) createCategory(w http.ResponseWriter, r *http.Request) {
	var c Category
	if err := httpx.DecodeJSON(r, &c); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	actor := shared.ActorFromContext(r.Context())
	created, err := h.service.CreateCategory(r.Context(), actor, c)
	if err != nil {
		h.respondError(w, "create category", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, created)
}

func (h *Handler) updateCategory(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid id")
		return
	}
	var c Category
	if err := httpx.DecodeJSON(r, &c); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	c.ID = id
	actor := shared.ActorFromContext(r.Context())
	if err := h.service.UpdateCategory(r.Context(), actor, c); err != nil {
		h.respondError(w, "update category", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) deleteCategory(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid id")
		return
	}
	actor := shared.ActorFromContext(r.Context())
	if err := h.service.DeleteCategory(r.Context(), actor, id); err != nil {
		h.respondError(w, "delete category", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) listSuppliers(w http.ResponseWriter, r *http.Request) {
	actor := shared.ActorFromContext(r.Context())
	suppliers, err := h.service.ListSuppliers(r.Context(), actor)
	if err != nil {
		h.respondError(w, "list suppliers", err)
		return
	}
	if suppliers == nil {
		suppliers = []Supplier{}
	}
	httpx.JSON(w, http.StatusOK, suppliers)
}

func (h *Handler) getSupplier(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid id")
		return
	}
	actor := shared.ActorFromContext(r.Context())
	supplier, err := h.service.GetSupplier(r.Context(), actor, id)
	if err != nil {
		h.respondError(w, "get supplier", err)
		return
	}
	httpx.JSON(w, http.StatusOK, supplier)
}

func (h *Handler) createSupplier(w http.ResponseWriter, r *http.Request) {
	var s Supplier
	if err := httpx.DecodeJSON(r, &s); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	actor := shared.ActorFromContext(r.Context())
	created, err := h.service.CreateSupplier(r.Context(), actor, s)
	if err != nil {
		h.respondError(w, "create supplier", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, created)
}

func (h *Handler) updateSupplier(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid id")
		return
	}
	var s Supplier
	if err := httpx.DecodeJSON(r, &s); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	s.ID = id
	actor := shared.ActorFromContext(r.Context())
	if err := h.service.UpdateSupplier(r.Context(), actor, s); err != nil {
		h.respondError(w, "update supplier", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type linkUserRequest struct {
	UserID int64 `json:"user_id"`
}

func (h *Handler) linkSupplierUser(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid id")
		return
	}
	var req linkUserRequest
	if err := httpx.DecodeJSON(r, &req); err != nil || req.UserID <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "user_id is required")
		return
	}
	actor := shared.ActorFromContext(r.Context())
	if err := h.service.LinkSupplierUser(r.Context(), actor, id, req.UserID); err != nil {
		h.respondError(w, "link supplier user", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
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
