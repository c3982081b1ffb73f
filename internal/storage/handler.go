package storage

import (
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// Handler serves signed document URLs.
type Handler struct {
	logger *slog.Logger
	store  Store
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, store Store) *Handler {
	return &Handler{logger: logger, store: store}
}

// MountRoutes registers the signed document download route.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/*", h.serveDocument)
}

func (h *Handler) serveDocument(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "*")
	exp := r.URL.Query().Get("exp")
	sig := r.URL.Query().Get("sig")
	if err := h.store.VerifyURL(key, exp, sig); err != nil {
		http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
		return
	}
	reader, err := h.store.Open(r.Context(), key)
	if err != nil {
		if err == ErrNotFound {
			http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
			return
		}
		h.logger.Error("open document", slog.Any("error", err), slog.String("key", key))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	defer reader.Close()
	w.Header().Set("Content-Type", "application/octet-stream")
	if _, err := io.Copy(w, reader); err != nil {
		h.logger.Warn("stream document", slog.Any("error", err), slog.String("key", key))
	}
}
