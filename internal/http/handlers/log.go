package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	httpx "github.com/dropDatabas3/buzonero/internal/http"
	"github.com/dropDatabas3/buzonero/internal/observability/logger"
	"github.com/dropDatabas3/buzonero/internal/store"
)

// LogHandler expone el sent log para auditoría.
type LogHandler struct {
	Log store.DeliveryLog
}

func (h *LogHandler) Register(r chi.Router) {
	r.Get("/v1/log", h.list)
}

func (h *LogHandler) list(w http.ResponseWriter, r *http.Request) {
	recs, err := h.Log.List(r.Context())
	if err != nil {
		logger.Named("http.log").Error("listar sent log", logger.Err(err))
		httpx.WriteError(w, http.StatusInternalServerError, "storage_error", "no se pudo leer el log de envíos")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"entries": recs,
		"total":   len(recs),
	})
}
