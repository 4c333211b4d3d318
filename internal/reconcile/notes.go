package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/starford/fennec/internal/apperr"
	"github.com/starford/fennec/internal/models"
)

// NoteReconciler creates, updates and deletes notes and keeps their tag
// links in step through a TagReconciler.
type NoteReconciler struct {
	gw     Gateway
	tags   *TagReconciler
	logger *slog.Logger
}

// NewNoteReconciler returns a NoteReconciler backed by gw.
func NewNoteReconciler(gw Gateway, tags *TagReconciler, logger *slog.Logger) *NoteReconciler {
	return &NoteReconciler{gw: gw, tags: tags, logger: logger}
}

// Partition tests each record's id one at a time and splits the group into
// notes to create and notes to update.
func (n *NoteReconciler) Partition(ctx context.Context, g *Group) (toCreate, toUpdate []models.Record, err error) {
	for _, rec := range g.Records {
		exists, err := n.gw.NoteExists(ctx, rec.Frontmatter.ID)
		if err != nil {
			return nil, nil, fmt.Errorf("check note %q: %w", rec.Frontmatter.ID, err)
		}
		if exists {
			toUpdate = append(toUpdate, rec)
		} else {
			toCreate = append(toCreate, rec)
		}
	}
	return toCreate, toUpdate, nil
}

// CreateOne inserts rec under categoryID and syncs its tags. The returned
// results hold the note outcome followed by any tags created for it.
func (n *NoteReconciler) CreateOne(ctx context.Context, categoryID string, rec models.Record, stage State) ([]ItemResult, error) {
	fm := rec.Frontmatter
	note := models.Note{
		ID:          fm.ID,
		CategoryID:  categoryID,
		Title:       fm.Title,
		Description: fm.Description,
		SortOrder:   fm.Order,
		HTML:        rec.HTML,
	}
	if err := n.gw.CreateNote(ctx, note); err != nil {
		err = fmt.Errorf("insert note: %w", err)
		return []ItemResult{n.failed(rec, stage, err)}, err
	}
	return n.syncTags(ctx, rec, stage, OutcomeCreated)
}

// UpdateOne rewrites the mutable columns of an existing note and syncs its
// tags. The note's id and category are left untouched.
func (n *NoteReconciler) UpdateOne(ctx context.Context, rec models.Record, stage State) ([]ItemResult, error) {
	fm := rec.Frontmatter
	upd := models.NoteUpdate{
		Title:       fm.Title,
		Description: fm.Description,
		SortOrder:   fm.Order,
		HTML:        rec.HTML,
	}
	if err := n.gw.UpdateNote(ctx, fm.ID, upd); err != nil {
		err = fmt.Errorf("update note: %w", err)
		return []ItemResult{n.failed(rec, stage, err)}, err
	}
	return n.syncTags(ctx, rec, stage, OutcomeUpdated)
}

// Create runs CreateOne for every record, isolating failures per note.
func (n *NoteReconciler) Create(ctx context.Context, categoryID string, records []models.Record, stage State) []ItemResult {
	var results []ItemResult
	for _, rec := range records {
		res, err := n.CreateOne(ctx, categoryID, rec, stage)
		if err != nil {
			n.logger.Warn("reconcile: note create failed", slog.String("note_id", rec.Frontmatter.ID), slog.String("error", err.Error()))
		}
		results = append(results, res...)
	}
	return results
}

// Update runs UpdateOne for every record, isolating failures per note.
func (n *NoteReconciler) Update(ctx context.Context, records []models.Record, stage State) []ItemResult {
	var results []ItemResult
	for _, rec := range records {
		res, err := n.UpdateOne(ctx, rec, stage)
		if err != nil {
			n.logger.Warn("reconcile: note update failed", slog.String("note_id", rec.Frontmatter.ID), slog.String("error", err.Error()))
		}
		results = append(results, res...)
	}
	return results
}

// Delete removes each requested note and returns the per-note results along
// with every category label seen, whether or not its delete succeeded.
// Link rows go with the note.
func (n *NoteReconciler) Delete(ctx context.Context, requests []models.DeletionRequest) ([]ItemResult, []string) {
	results := make([]ItemResult, 0, len(requests))
	touched := make([]string, 0, len(requests))

	for _, req := range requests {
		touched = append(touched, req.Category)
		res := ItemResult{Kind: KindNote, Key: req.NoteID, Category: req.Category, Stage: StateDeleteNotes}

		err := n.gw.DeleteNote(ctx, req.NoteID)
		switch {
		case err == nil:
			res.Outcome = OutcomeDeleted
		case errors.Is(err, apperr.ErrNotFound):
			res.Outcome = OutcomeSkipped
		default:
			res.Outcome, res.Error = OutcomeFailed, err.Error()
			n.logger.Warn("reconcile: note delete failed", slog.String("note_id", req.NoteID), slog.String("error", err.Error()))
		}
		results = append(results, res)
	}
	return results, touched
}

func (n *NoteReconciler) syncTags(ctx context.Context, rec models.Record, stage State, outcome Outcome) ([]ItemResult, error) {
	sync, err := n.tags.Sync(ctx, rec)

	results := make([]ItemResult, 0, 1+len(sync.Created))
	note := ItemResult{
		Kind:         KindNote,
		Key:          rec.Frontmatter.ID,
		Category:     rec.Frontmatter.Category,
		Outcome:      outcome,
		Stage:        stage,
		TagsLinked:   len(sync.Linked),
		TagsUnlinked: len(sync.Unlinked),
	}
	// The row is written; only its links may be behind.
	if err != nil {
		err = fmt.Errorf("sync tags: %w", err)
		note.Error = err.Error()
	}
	results = append(results, note)
	for _, t := range sync.Created {
		results = append(results, ItemResult{Kind: KindTag, Key: t.Name, Outcome: OutcomeCreated, Stage: stage})
	}
	return results, err
}

func (n *NoteReconciler) failed(rec models.Record, stage State, err error) ItemResult {
	return ItemResult{
		Kind:     KindNote,
		Key:      rec.Frontmatter.ID,
		Category: rec.Frontmatter.Category,
		Outcome:  OutcomeFailed,
		Stage:    stage,
		Error:    err.Error(),
	}
}
