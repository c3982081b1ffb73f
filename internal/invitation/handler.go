package invitation

import (
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

// Handler wires HTTP endpoints for invitations.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers management routes (behind authentication).
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.handleList)
	r.Post("/", h.handleInvite)
	r.Post("/{id}/revoke", h.handleRevoke)
}

// MountPublicRoutes registers the acceptance route, reachable without a
// session since the invitee has no account yet.
func (h *Handler) MountPublicRoutes(r chi.Router) {
	r.Post("/accept", h.handleAccept)
}

type inviteRequest struct {
	Email string `json:"email" validate:"required,email"`
	Role  string `json:"role" validate:"required"`
}

type invitationView struct {
	ID        int64  `json:"id"`
	Email     string `json:"email"`
	Role      string `json:"role"`
	Status    string `json:"status"`
	ExpiresAt string `json:"expires_at"`
	CreatedAt string `json:"created_at"`
}

func toView(inv Invitation) invitationView {
	return invitationView{
		ID:        inv.ID,
		Email:     inv.Email,
		Role:      inv.Role,
		Status:    inv.Status,
		ExpiresAt: inv.ExpiresAt.Format(time.RFC3339),
		CreatedAt: inv.CreatedAt.Format(time.RFC3339),
	}
}

func (h *Handler) handleInvite(w http.ResponseWriter, r *http.Request) {
	var req inviteRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "A valid email and role are required")
		return
	}
	actor := shared.ActorFromContext(r.Context())
	inv, err := h.service.Invite(r.Context(), actor, req.Email, req.Role)
	if err != nil {
		h.respondError(w, "invite", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toView(inv))
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	actor := shared.ActorFromContext(r.Context())
	invites, err := h.service.List(r.Context(), actor)
	if err != nil {
		h.respondError(w, "list invitations", err)
		return
	}
	views := make([]invitationView, 0, len(invites))
	for _, inv := range invites {
		views = append(views, toView(inv))
	}
	httpx.JSON(w, http.StatusOK, views)
}

func (h *Handler) handleRevoke(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid invitation id")
		return
	}
	actor := shared.ActorFromContext(r.Context())
	if err := h.service.Revoke(r.Context(), actor, id); err != nil {
		h.respondError(w, "revoke invitation", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type acceptRequest struct {
	Token       string `json:"token" validate:"required"`
	Password    string `json:"password" validate:"required,min=8"`
	DisplayName string `json:"display_name" validate:"required"`
	Department  string `json:"department"`
}

func (h *Handler) handleAccept(w http.ResponseWriter, r *http.Request) {
	var req acceptRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "Token, display name and a password of at least 8 characters are required")
		return
	}
	userID, err := h.service.Accept(r.Context(), AcceptRequest{
		Token:       req.Token,
		Password:    req.Password,
		DisplayName: req.DisplayName,
		Department:  req.Department,
	})
	if err != nil {
		h.respondError(w, "accept invitation", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]int64{"user_id": userID})
}

func (h *Handler) respondError(w http.ResponseWriter, op string, err error) {
	var safe *shared.SafeError
	switch {
	case errors.Is(err, shared.ErrForbidden):
		httpx.Problem(w, http.StatusForbidden, "Forbidden", shared.UserSafeMessage(err))
	case errors.As(err, &safe):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Cannot Process", safe.Error())
	default:
		h.logger.Error(op, slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", shared.UserSafeMessage(err))
	}
}
