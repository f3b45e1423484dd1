package handlers

import (
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"

	httpx "github.com/dropDatabas3/buzonero/internal/http"
	"github.com/dropDatabas3/buzonero/internal/notes"
	"github.com/dropDatabas3/buzonero/internal/observability/logger"
)

// NotesHandler maneja las notas/plantillas que consume la UI externa.
type NotesHandler struct {
	Store *notes.Store
}

func (h *NotesHandler) Register(r chi.Router) {
	r.Get("/v1/notes", h.list)
	r.Post("/v1/notes", h.create)
	r.Put("/v1/notes/{title}", h.update)
}

type noteIn struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

func (h *NotesHandler) list(w http.ResponseWriter, r *http.Request) {
	ns, err := h.Store.List(r.Context())
	if err != nil {
		logger.Named("http.notes").Error("listar notas", logger.Err(err))
		httpx.WriteError(w, http.StatusInternalServerError, "storage_error", "no se pudieron leer las notas")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"notes": ns, "total": len(ns)})
}

func (h *NotesHandler) create(w http.ResponseWriter, r *http.Request) {
	var in noteIn
	if !httpx.ReadJSON(w, r, &in) {
		return
	}
	if strings.TrimSpace(in.Title) == "" {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "title es requerido")
		return
	}
	if err := h.Store.Save(r.Context(), notes.Note{Title: in.Title, Body: in.Body}); err != nil {
		logger.Named("http.notes").Error("guardar nota", logger.Err(err))
		httpx.WriteError(w, http.StatusInternalServerError, "storage_error", "no se pudo guardar la nota")
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, in)
}

func (h *NotesHandler) update(w http.ResponseWriter, r *http.Request) {
	title := chi.URLParam(r, "title")
	if dec, err := url.PathUnescape(title); err == nil {
		title = dec
	}

	var in noteIn
	if !httpx.ReadJSON(w, r, &in) {
		return
	}
	if strings.TrimSpace(in.Title) == "" {
		in.Title = title
	}

	err := h.Store.Edit(r.Context(), title, notes.Note{Title: in.Title, Body: in.Body})
	switch {
	case errors.Is(err, notes.ErrNotFound):
		httpx.WriteError(w, http.StatusNotFound, "not_found", "no existe una nota con ese título")
	case err != nil:
		logger.Named("http.notes").Error("editar nota", logger.Err(err))
		httpx.WriteError(w, http.StatusInternalServerError, "storage_error", "no se pudo editar la nota")
	default:
		httpx.WriteJSON(w, http.StatusOK, in)
	}
}
