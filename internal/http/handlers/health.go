package handlers

import (
	"context"
	"net/http"
	"os"

	httpx "github.com/dropDatabas3/buzonero/internal/http"
	"github.com/dropDatabas3/buzonero/internal/observability/logger"
)

// NewHealthzHandler responde liveness plano.
func NewHealthzHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}
}

// NewReadyzHandler ejecuta los checks de dependencias (storage, redis…)
// y responde 503 ante el primero que falle.
func NewReadyzHandler(checks ...func(ctx context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if v := os.Getenv("SERVICE_VERSION"); v != "" {
			w.Header().Set("X-Service-Version", v)
		}
		for _, check := range checks {
			if check == nil {
				continue
			}
			if err := check(r.Context()); err != nil {
				logger.Named("http.readyz").Error("dependencia no disponible", logger.Err(err))
				httpx.WriteError(w, http.StatusServiceUnavailable, "dependency_unavailable", err.Error())
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	}
}
