package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/starford/fennec/internal/auth"
	"github.com/starford/fennec/internal/noteservice"
)

// RouterConfig carries the boundary settings for NewRouter.
type RouterConfig struct {
	// Verifier gates the ingestion endpoints.
	Verifier auth.Verifier
	// Events, if non-nil, is mounted at GET /events.
	Events http.Handler
	// RequestTimeout bounds a single ingestion request. Zero disables it.
	RequestTimeout time.Duration
}

// NewRouter creates a chi router with all API routes mounted. Reads are
// public; batch ingestion requires a verified identity.
func NewRouter(svc *noteservice.Service, cfg RouterConfig) chi.Router {
	h := NewHandler(svc)

	r := chi.NewRouter()

	r.Get("/categories", h.ListCategories)
	r.Get("/categories/{id}/notes", h.CategoryNotes)
	r.Get("/notes/{id}", h.GetNote)
	r.Get("/notes/{id}/tags", h.NoteTags)
	r.Get("/tags", h.ListTags)
	r.Get("/search", h.Search)

	if cfg.Events != nil {
		r.Get("/events", cfg.Events.ServeHTTP)
	}

	r.Group(func(r chi.Router) {
		r.Use(IdentityMiddleware(cfg.Verifier))
		if cfg.RequestTimeout > 0 {
			r.Use(middleware.Timeout(cfg.RequestTimeout))
		}
		r.Post("/notes", h.UpsertNotes)
		r.Post("/notes/delete", h.DeleteNotes)
	})

	return r
}
