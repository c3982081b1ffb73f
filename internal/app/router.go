package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/procureflow/procureflow/internal/auth"
	"github.com/procureflow/procureflow/internal/invitation"
	"github.com/procureflow/procureflow/internal/invoice"
	"github.com/procureflow/procureflow/internal/masterdata"
	"github.com/procureflow/procureflow/internal/messaging"
	"github.com/procureflow/procureflow/internal/observability"
	"github.com/procureflow/procureflow/internal/quotation"
	"github.com/procureflow/procureflow/internal/rbac"
	"github.com/procureflow/procureflow/internal/requisition"
	"github.com/procureflow/procureflow/internal/shared"
	"github.com/procureflow/procureflow/internal/storage"
	"github.com/procureflow/procureflow/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger         *slog.Logger
	Config         *Config
	SessionManager *shared.SessionManager
	CSRFManager    *shared.CSRFManager
	RBACMiddleware rbac.Middleware

	AuthHandler        *auth.Handler
	InvitationHandler  *invitation.Handler
	MasterDataHandler  *masterdata.Handler
	RequisitionHandler *requisition.Handler
	QuotationHandler   *quotation.Handler
	InvoiceHandler     *invoice.Handler
	MessagingHandler   *messaging.Handler
	DocumentHandler    *storage.Handler
	JobHandler         *jobs.Handler
	Metrics            *observability.Metrics
}

// NewRouter constructs the chi.Router with the full application surface.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:         params.Logger,
		Config:         params.Config,
		SessionManager: params.SessionManager,
		CSRFManager:    params.CSRFManager,
		Metrics:        params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Route("/auth", params.AuthHandler.MountRoutes)

	// Invitation acceptance happens before the invitee has an account.
	if params.InvitationHandler != nil {
		r.Route("/invitations", func(r chi.Router) {
			params.InvitationHandler.MountPublicRoutes(r)
			r.Group(func(r chi.Router) {
				r.Use(params.RBACMiddleware.WithActor)
				r.Use(params.RBACMiddleware.Require(rbac.CapInvitationManage))
				params.InvitationHandler.MountRoutes(r)
			})
		})
	}

	// Signed URLs carry their own authorization.
	if params.DocumentHandler != nil {
		r.Route("/documents", params.DocumentHandler.MountRoutes)
	}

	r.Group(func(r chi.Router) {
		r.Use(params.RBACMiddleware.WithActor)

		if params.MasterDataHandler != nil {
			r.Route("/masterdata", params.MasterDataHandler.MountRoutes)
		}
		if params.RequisitionHandler != nil {
			r.Route("/requisitions", params.RequisitionHandler.MountRoutes)
		}
		if params.QuotationHandler != nil {
			r.Route("/quotation", params.QuotationHandler.MountRoutes)
		}
		if params.InvoiceHandler != nil {
			r.Route("/invoices", params.InvoiceHandler.MountRoutes)
		}
		if params.MessagingHandler != nil {
			params.MessagingHandler.MountRoutes(r)
		}
	})

	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	return r
}
