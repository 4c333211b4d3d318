// Package noteservice is the application layer over the catalog: read-side
// queries for the HTTP and MCP surfaces, and batch ingestion that runs the
// reconciliation engine and announces what changed.
package noteservice

import (
	"context"
	"fmt"

	"github.com/starford/fennec/internal/checksum"
	"github.com/starford/fennec/internal/models"
	"github.com/starford/fennec/internal/reconcile"
	"github.com/starford/fennec/internal/sse"
	"github.com/starford/fennec/internal/store"
)

// Reader is the read-side slice of the gateway.
type Reader interface {
	ListCategories(ctx context.Context) ([]models.Category, error)
	NotesByCategory(ctx context.Context, categoryID string) ([]models.NoteMeta, error)
	GetNote(ctx context.Context, id string) (*models.Note, error)
	NoteTags(ctx context.Context, noteID string) ([]models.Tag, error)
	ListTags(ctx context.Context) ([]models.TagUsage, error)
	SearchNotes(ctx context.Context, query string, limit int) ([]store.SearchResult, error)
}

// Reconciler applies batches.
type Reconciler interface {
	Upsert(ctx context.Context, records []models.Record) (*reconcile.Report, error)
	Delete(ctx context.Context, requests []models.DeletionRequest) (*reconcile.Report, error)
}

// Notifier receives catalog change events.
type Notifier interface {
	PublishCatalogEvent(kind string, data map[string]string)
}

// NoteDetail is a full note with its tags and entity tag.
type NoteDetail struct {
	models.Note
	Tags []models.Tag `json:"tags"`
	ETag string       `json:"etag"`
}

// Service coordinates the read side and batch ingestion.
type Service struct {
	db       Reader
	engine   Reconciler
	notifier Notifier
}

// NewService creates a service. notifier may be nil.
func NewService(db Reader, engine Reconciler, notifier Notifier) *Service {
	return &Service{db: db, engine: engine, notifier: notifier}
}

// ListCategories returns all categories sorted by name.
func (s *Service) ListCategories(ctx context.Context) ([]models.Category, error) {
	cats, err := s.db.ListCategories(ctx)
	if err != nil {
		return nil, fmt.Errorf("noteservice: list categories: %w", err)
	}
	return nonNilSlice(cats), nil
}

// CategoryNotes returns note metadata for a category in display order.
func (s *Service) CategoryNotes(ctx context.Context, categoryID string) ([]models.NoteMeta, error) {
	notes, err := s.db.NotesByCategory(ctx, categoryID)
	if err != nil {
		return nil, fmt.Errorf("noteservice: notes for category %s: %w", categoryID, err)
	}
	return nonNilSlice(notes), nil
}

// GetNote returns the full note. A missing note yields an error wrapping
// apperr.ErrNotFound.
func (s *Service) GetNote(ctx context.Context, id string) (*NoteDetail, error) {
	n, err := s.db.GetNote(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("noteservice: get note %s: %w", id, err)
	}
	tags, err := s.db.NoteTags(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("noteservice: tags for note %s: %w", id, err)
	}
	return &NoteDetail{Note: *n, Tags: nonNilSlice(tags), ETag: checksum.Detail(*n, tags)}, nil
}

// NoteTags returns the tags linked to a note.
func (s *Service) NoteTags(ctx context.Context, id string) ([]models.Tag, error) {
	tags, err := s.db.NoteTags(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("noteservice: tags for note %s: %w", id, err)
	}
	return nonNilSlice(tags), nil
}

// ListTags returns every tag with its usage count, including unused tags.
func (s *Service) ListTags(ctx context.Context) ([]models.TagUsage, error) {
	tags, err := s.db.ListTags(ctx)
	if err != nil {
		return nil, fmt.Errorf("noteservice: list tags: %w", err)
	}
	return nonNilSlice(tags), nil
}

// Search finds notes whose title, description or body match query.
func (s *Service) Search(ctx context.Context, query string, limit int) ([]store.SearchResult, error) {
	res, err := s.db.SearchNotes(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("noteservice: search: %w", err)
	}
	return nonNilSlice(res), nil
}

// UpsertNotes reconciles an upsert batch and publishes its changes.
func (s *Service) UpsertNotes(ctx context.Context, records []models.Record) (*reconcile.Report, error) {
	rep, err := s.engine.Upsert(ctx, records)
	s.announce(rep)
	return rep, err
}

// DeleteNotes reconciles a delete batch and publishes its changes.
func (s *Service) DeleteNotes(ctx context.Context, requests []models.DeletionRequest) (*reconcile.Report, error) {
	rep, err := s.engine.Delete(ctx, requests)
	s.announce(rep)
	return rep, err
}

func (s *Service) announce(rep *reconcile.Report) {
	if s.notifier == nil || rep == nil {
		return
	}
	for _, it := range rep.Items {
		kind, data := eventFor(it)
		if kind != "" {
			s.notifier.PublishCatalogEvent(kind, data)
		}
	}
	s.notifier.PublishCatalogEvent(sse.TypeBatchCompleted, map[string]string{
		"workflow": rep.Workflow,
		"status":   rep.Status,
		"actor":    rep.Actor,
	})
}

func eventFor(it reconcile.ItemResult) (string, map[string]string) {
	switch it.Kind {
	case reconcile.KindNote:
		data := map[string]string{"id": it.Key, "category": it.Category}
		switch it.Outcome {
		case reconcile.OutcomeCreated:
			return sse.TypeNoteCreated, data
		case reconcile.OutcomeUpdated:
			return sse.TypeNoteUpdated, data
		case reconcile.OutcomeDeleted:
			return sse.TypeNoteDeleted, data
		}
	case reconcile.KindCategory:
		data := map[string]string{"name": it.Key}
		switch it.Outcome {
		case reconcile.OutcomeCreated:
			return sse.TypeCategoryCreated, data
		case reconcile.OutcomeRemoved:
			return sse.TypeCategoryRemoved, data
		}
	case reconcile.KindTag:
		if it.Outcome == reconcile.OutcomeCreated {
			return sse.TypeTagCreated, map[string]string{"name": it.Key}
		}
	}
	return "", nil
}

func nonNilSlice[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
