package handlers

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/dropDatabas3/buzonero/internal/dispatch"
	httpx "github.com/dropDatabas3/buzonero/internal/http"
	"github.com/dropDatabas3/buzonero/internal/mailer"
	"github.com/dropDatabas3/buzonero/internal/observability/logger"
)

// maxSendForm limita el multipart de envío (cuerpo + adjuntos).
const maxSendForm = 32 << 20 // 32MB

// SendHandler expone el endpoint de envío masivo.
type SendHandler struct {
	Engine     *dispatch.Engine
	UploadsDir string
}

func (h *SendHandler) Register(r chi.Router) {
	r.Post("/v1/send", h.send)
}

// sendResult es el reporte más el detalle de error cuando el batch se
// cortó a mitad de camino (fallo de persistencia).
type sendResult struct {
	dispatch.Report
	Error            string `json:"error,omitempty"`
	ErrorDescription string `json:"error_description,omitempty"`
}

func (h *SendHandler) send(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxSendForm); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_form", "se espera multipart/form-data")
		return
	}

	body := r.FormValue("body")
	// preview_html gana sobre body: es el HTML ya renderizado por el cliente
	if pv := r.FormValue("preview_html"); strings.TrimSpace(pv) != "" {
		body = pv
	}

	req := dispatch.Request{
		Recipients: splitRecipients(r.FormValue("emails")),
		Subject:    r.FormValue("subject"),
		HTML:       body,
		FromName:   r.FormValue("from_name"),
	}
	if len(req.Recipients) == 0 {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_form", "emails es requerido")
		return
	}

	atts, err := h.saveAttachments(r)
	if err != nil {
		logger.Named("http.send").Error("no se pudo guardar adjunto", logger.Err(err))
		httpx.WriteError(w, http.StatusInternalServerError, "attachment_error", "no se pudo guardar un adjunto")
		return
	}
	req.Attachments = atts

	rep, err := h.Engine.Dispatch(r.Context(), req)
	switch {
	case errors.Is(err, dispatch.ErrInvalidInput):
		httpx.WriteError(w, http.StatusBadRequest, "invalid_form", "subject y body son requeridos")
	case err != nil:
		// reporte parcial: los envíos ya hechos no se descartan
		httpx.WriteJSON(w, http.StatusInternalServerError, sendResult{
			Report:           rep,
			Error:            "persistence_failure",
			ErrorDescription: err.Error(),
		})
	default:
		httpx.WriteJSON(w, http.StatusOK, sendResult{Report: rep})
	}
}

// splitRecipients acepta una dirección por línea; también tolera comas.
func splitRecipients(raw string) []string {
	fields := strings.FieldsFunc(raw, func(r rune) bool {
		return r == '\n' || r == '\r' || r == ','
	})
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if s := strings.TrimSpace(f); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// saveAttachments persiste los archivos subidos bajo UploadsDir con un
// nombre único y devuelve las referencias para el mailer.
func (h *SendHandler) saveAttachments(r *http.Request) ([]mailer.Attachment, error) {
	if r.MultipartForm == nil {
		return nil, nil
	}
	files := r.MultipartForm.File["attachments"]
	if len(files) == 0 {
		return nil, nil
	}
	if err := os.MkdirAll(h.UploadsDir, 0o755); err != nil {
		return nil, err
	}

	out := make([]mailer.Attachment, 0, len(files))
	for _, fh := range files {
		name := filepath.Base(fh.Filename)
		if name == "" || name == "." || name == string(filepath.Separator) {
			continue
		}
		dst := filepath.Join(h.UploadsDir, uuid.NewString()+"_"+name)
		if err := copyUpload(fh, dst); err != nil {
			return nil, fmt.Errorf("guardar %s: %w", name, err)
		}
		out = append(out, mailer.Attachment{Filename: name, Path: dst})
	}
	return out, nil
}

func copyUpload(fh *multipart.FileHeader, dst string) error {
	src, err := fh.Open()
	if err != nil {
		return err
	}
	defer src.Close()

	f, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, src); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
