package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	httpx "github.com/dropDatabas3/buzonero/internal/http"
	"github.com/dropDatabas3/buzonero/internal/observability/logger"
	"github.com/dropDatabas3/buzonero/internal/store"
)

// QuotaHandler expone el estado del cupo diario.
type QuotaHandler struct {
	Quota store.QuotaStore
	Limit int
}

func (h *QuotaHandler) Register(r chi.Router) {
	r.Get("/v1/quota", h.current)
}

func (h *QuotaHandler) current(w http.ResponseWriter, r *http.Request) {
	rec, err := h.Quota.Current(r.Context())
	if err != nil {
		logger.Named("http.quota").Error("leer quota", logger.Err(err))
		httpx.WriteError(w, http.StatusInternalServerError, "storage_error", "no se pudo leer la quota")
		return
	}
	remaining := h.Limit - rec.Count
	if remaining < 0 {
		remaining = 0
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"date":      rec.Date,
		"count":     rec.Count,
		"limit":     h.Limit,
		"remaining": remaining,
	})
}
