package api

import (
	"github.com/starford/fennec/internal/models"
	"github.com/starford/fennec/internal/noteservice"
	"github.com/starford/fennec/internal/reconcile"
	"github.com/starford/fennec/internal/store"
)

// UpsertRequest is the body of POST /api/notes.
type UpsertRequest = []models.Record

// DeleteRequest is the body of POST /api/notes/delete.
type DeleteRequest = []models.DeletionRequest

// BatchReport is returned by both ingestion endpoints.
type BatchReport = reconcile.Report

// NoteDetail is the full note response type (aliased from the domain layer).
type NoteDetail = noteservice.NoteDetail

// CategoryListResponse wraps the category listing.
type CategoryListResponse struct {
	Categories []models.Category `json:"categories" validate:"required"`
}

// NoteMetaListResponse wraps the notes of one category.
type NoteMetaListResponse struct {
	Notes []models.NoteMeta `json:"notes" validate:"required"`
}

// TagListResponse wraps the tags of a note.
type TagListResponse struct {
	Tags []models.Tag `json:"tags" validate:"required"`
}

// TagUsageListResponse wraps the global tag listing.
type TagUsageListResponse struct {
	Tags []models.TagUsage `json:"tags" validate:"required"`
}

// SearchResponse wraps search results.
type SearchResponse struct {
	Results []store.SearchResult `json:"results" validate:"required"`
}
