package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/starford/fennec/internal/apperr"
	"github.com/starford/fennec/internal/noteservice"
	"github.com/starford/fennec/internal/reconcile"
)

// Handler holds API route handlers.
type Handler struct {
	svc *noteservice.Service
}

// NewHandler creates a new Handler.
func NewHandler(svc *noteservice.Service) *Handler {
	return &Handler{svc: svc}
}

// ListCategories handles GET /api/categories.
//
//	@Summary		List categories sorted by name
//	@Tags			categories
//	@Produce		json
//	@Success		200	{object}	CategoryListResponse
//	@Router			/categories [get]
func (h *Handler) ListCategories(w http.ResponseWriter, r *http.Request) {
	cats, err := h.svc.ListCategories(r.Context())
	if err != nil {
		slog.Error("list categories failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	writeJSON(w, http.StatusOK, CategoryListResponse{Categories: cats})
}

// CategoryNotes handles GET /api/categories/{id}/notes.
//
//	@Summary		List note metadata for a category in display order
//	@Tags			categories
//	@Produce		json
//	@Param			id	path		string	true	"Category id"
//	@Success		200	{object}	NoteMetaListResponse
//	@Router			/categories/{id}/notes [get]
func (h *Handler) CategoryNotes(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	notes, err := h.svc.CategoryNotes(r.Context(), id)
	if err != nil {
		slog.Error("category notes failed", slog.String("category_id", id), slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	writeJSON(w, http.StatusOK, NoteMetaListResponse{Notes: notes})
}

// GetNote handles GET /api/notes/{id}.
//
//	@Summary		Get a full note by id
//	@Tags			notes
//	@Produce		json
//	@Param			id				path		string	true	"Note id"
//	@Param			If-None-Match	header		string	false	"ETag from a previous response"
//	@Success		200				{object}	NoteDetail
//	@Success		304				"Not modified"
//	@Failure		404				{object}	errResponse
//	@Router			/notes/{id} [get]
func (h *Handler) GetNote(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	note, err := h.svc.GetNote(r.Context(), id)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, errorBody("not found"))
		} else {
			slog.Error("get note failed", slog.String("id", id), slog.String("error", err.Error()))
			writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		}
		return
	}

	etag := `"` + note.ETag + `"`
	w.Header().Set("ETag", etag)
	if match := r.Header.Get("If-None-Match"); match != "" && strings.Trim(match, `"`) == note.ETag {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	writeJSON(w, http.StatusOK, note)
}

// NoteTags handles GET /api/notes/{id}/tags.
//
//	@Summary		List the tags linked to a note
//	@Tags			notes
//	@Produce		json
//	@Param			id	path		string	true	"Note id"
//	@Success		200	{object}	TagListResponse
//	@Router			/notes/{id}/tags [get]
func (h *Handler) NoteTags(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	tags, err := h.svc.NoteTags(r.Context(), id)
	if err != nil {
		slog.Error("note tags failed", slog.String("id", id), slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	writeJSON(w, http.StatusOK, TagListResponse{Tags: tags})
}

// ListTags handles GET /api/tags.
//
//	@Summary		List every tag with its usage count
//	@Tags			tags
//	@Produce		json
//	@Success		200	{object}	TagUsageListResponse
//	@Router			/tags [get]
func (h *Handler) ListTags(w http.ResponseWriter, r *http.Request) {
	tags, err := h.svc.ListTags(r.Context())
	if err != nil {
		slog.Error("list tags failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	writeJSON(w, http.StatusOK, TagUsageListResponse{Tags: tags})
}

// Search handles GET /api/search.
//
//	@Summary		Search notes by title, description or body
//	@Tags			search
//	@Produce		json
//	@Param			q		query		string	true	"Search query"
//	@Param			limit	query		int		false	"Max results"
//	@Success		200		{object}	SearchResponse
//	@Failure		400		{object}	errResponse
//	@Router			/search [get]
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("query parameter 'q' is required"))
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	results, err := h.svc.Search(r.Context(), q, limit)
	if err != nil {
		slog.Error("search failed", slog.String("query", q), slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	writeJSON(w, http.StatusOK, SearchResponse{Results: results})
}

// UpsertNotes handles POST /api/notes.
//
//	@Summary		Reconcile a batch of published notes
//	@Tags			ingest
//	@Accept			json
//	@Produce		json
//	@Param			body	body		UpsertRequest	true	"Records to upsert"
//	@Success		200		{object}	BatchReport
//	@Failure		400		{object}	errResponse
//	@Failure		413		{object}	errResponse
//	@Failure		401		{object}	errResponse
//	@Failure		500		{object}	BatchReport
//	@Security		BearerAuth
//	@Router			/notes [post]
func (h *Handler) UpsertNotes(w http.ResponseWriter, r *http.Request) {
	var records UpsertRequest
	if !readBatch(w, r, &records) {
		return
	}
	if err := reconcile.ValidateRecords(records); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}

	rep, err := h.svc.UpsertNotes(r.Context(), records)
	writeReport(w, "upsert", rep, err)
}

// DeleteNotes handles POST /api/notes/delete.
//
//	@Summary		Delete notes and garbage-collect emptied categories
//	@Tags			ingest
//	@Accept			json
//	@Produce		json
//	@Param			body	body		DeleteRequest	true	"Notes to delete"
//	@Success		200		{object}	BatchReport
//	@Failure		400		{object}	errResponse
//	@Failure		413		{object}	errResponse
//	@Failure		401		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/notes/delete [post]
func (h *Handler) DeleteNotes(w http.ResponseWriter, r *http.Request) {
	var reqs DeleteRequest
	if !readBatch(w, r, &reqs) {
		return
	}
	if err := reconcile.ValidateDeletions(reqs); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}

	rep, err := h.svc.DeleteNotes(r.Context(), reqs)
	writeReport(w, "delete", rep, err)
}

// writeReport maps a workflow result onto the response. Completed
// workflows answer 200 even when some items failed; the report says which.
func writeReport(w http.ResponseWriter, workflow string, rep *reconcile.Report, err error) {
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, rep)
	case errors.Is(err, apperr.ErrUnauthenticated):
		writeJSON(w, http.StatusUnauthorized, errorBody("unauthorized"))
	case errors.Is(err, apperr.ErrInvalidBatch):
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
	case rep != nil:
		slog.Error(workflow+" aborted", slog.String("state", string(rep.AbortedAt)), slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, rep)
	default:
		slog.Error(workflow+" failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
	}
}
