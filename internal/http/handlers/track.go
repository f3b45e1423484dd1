package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/dropDatabas3/buzonero/internal/dispatch"
	"github.com/dropDatabas3/buzonero/internal/observability/logger"
	"github.com/dropDatabas3/buzonero/internal/store"
	"github.com/dropDatabas3/buzonero/internal/tracking"
)

// TrackHandler sirve el pixel de apertura. Responde SIEMPRE el GIF,
// exista o no el id: un 404 acá delataría el tracking en el cliente
// de correo.
type TrackHandler struct {
	Tracker *tracking.Correlator
	Metrics dispatch.MetricsRecorder
}

func (h *TrackHandler) Register(r chi.Router) {
	r.Get("/track/{id}", h.pixel)
}

func (h *TrackHandler) pixel(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	log := logger.Named("http.track")

	rec, first, err := h.Tracker.Resolve(r.Context(), id, time.Now().UTC())
	switch {
	case errors.Is(err, store.ErrNotFound):
		// id desconocido o ya purgado; se sirve el pixel igual
	case err != nil:
		log.Error("resolver tracking id", logger.TrackingID(id), logger.Err(err))
	case first:
		if h.Metrics != nil {
			h.Metrics.EmailOpened()
		}
		log.Info("apertura registrada", logger.TrackingID(id), logger.To(rec.To))
	}

	w.Header().Set("Content-Type", "image/gif")
	w.Header().Set("Content-Length", strconv.Itoa(len(tracking.PixelGIF)))
	w.Header().Set("Cache-Control", "no-store, no-cache, must-revalidate")
	w.Header().Set("Pragma", "no-cache")
	_, _ = w.Write(tracking.PixelGIF)
}
