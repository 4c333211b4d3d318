// Package reconcile diffs incoming note batches against the persisted
// catalog and applies the resulting create, update and delete actions.
//
// Every workflow runs as a sequential chain of gateway calls. Nothing is
// cached between calls; each batch re-reads the state it needs. There is no
// transaction spanning a batch: failures are contained per item, per
// category or per batch as described by the workflow transition tables, and
// every decision is recorded in a Report.
package reconcile

import (
	"context"

	"github.com/starford/fennec/internal/models"
)

// Gateway is the persistence surface the reconcilers need.
type Gateway interface {
	CategoryIDByName(ctx context.Context, name string) (string, bool, error)
	CreateCategory(ctx context.Context, name string) (string, error)
	CategoryHasNotes(ctx context.Context, name string) (bool, error)
	DeleteCategoryByName(ctx context.Context, name string) error

	NoteExists(ctx context.Context, id string) (bool, error)
	CreateNote(ctx context.Context, n models.Note) error
	UpdateNote(ctx context.Context, id string, u models.NoteUpdate) error
	DeleteNote(ctx context.Context, id string) error

	TagByName(ctx context.Context, name string) (*models.Tag, error)
	CreateTag(ctx context.Context, name string) (string, error)

	NoteTagIDs(ctx context.Context, noteID string) ([]string, error)
	RemoveNoteTag(ctx context.Context, noteID, tagID string) error
	UpsertNoteTag(ctx context.Context, noteID, tagID string) error
}
