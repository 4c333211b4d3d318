package reconcile

import (
	"context"
	"fmt"
	"strings"

	"github.com/starford/fennec/internal/models"
)

// TagSync describes what a tag reconciliation changed for one note.
type TagSync struct {
	Created  []models.Tag
	Linked   []string
	Unlinked []string
}

// TagReconciler makes a note's persisted tag links equal its declared tags.
type TagReconciler struct {
	gw Gateway
}

// NewTagReconciler returns a TagReconciler backed by gw.
func NewTagReconciler(gw Gateway) *TagReconciler {
	return &TagReconciler{gw: gw}
}

// Sync resolves every declared tag name to an id (creating unseen tags),
// drops links to tags the note no longer declares and upserts a link for
// each declared tag. Blank names are ignored and repeated names collapse.
// Tags themselves are never deleted.
func (t *TagReconciler) Sync(ctx context.Context, rec models.Record) (TagSync, error) {
	var sync TagSync
	noteID := rec.Frontmatter.ID

	existing := make(map[string]string)
	toCreate := make(map[string]string)
	var declared []string

	for _, raw := range rec.Frontmatter.Tags {
		name := strings.TrimSpace(raw)
		if name == "" {
			continue
		}
		if _, ok := existing[name]; ok {
			continue
		}
		if _, ok := toCreate[name]; ok {
			continue
		}
		declared = append(declared, name)

		tag, err := t.gw.TagByName(ctx, name)
		if err != nil {
			return sync, fmt.Errorf("lookup tag %q: %w", name, err)
		}
		if tag != nil {
			existing[name] = tag.ID
		} else {
			toCreate[name] = ""
		}
	}

	for _, name := range declared {
		if _, ok := toCreate[name]; !ok {
			continue
		}
		id, err := t.gw.CreateTag(ctx, name)
		if err != nil {
			return sync, fmt.Errorf("create tag %q: %w", name, err)
		}
		toCreate[name] = id
		sync.Created = append(sync.Created, models.Tag{ID: id, Name: name})
	}

	valid := make(map[string]string, len(existing)+len(toCreate))
	validIDs := make(map[string]struct{}, len(valid))
	for _, m := range []map[string]string{existing, toCreate} {
		for name, id := range m {
			valid[name] = id
			validIDs[id] = struct{}{}
		}
	}

	linked, err := t.gw.NoteTagIDs(ctx, noteID)
	if err != nil {
		return sync, fmt.Errorf("load links: %w", err)
	}
	for _, tagID := range linked {
		if _, ok := validIDs[tagID]; ok {
			continue
		}
		if err := t.gw.RemoveNoteTag(ctx, noteID, tagID); err != nil {
			return sync, fmt.Errorf("unlink tag %s: %w", tagID, err)
		}
		sync.Unlinked = append(sync.Unlinked, tagID)
	}

	for _, name := range declared {
		if err := t.gw.UpsertNoteTag(ctx, noteID, valid[name]); err != nil {
			return sync, fmt.Errorf("link tag %q: %w", name, err)
		}
		sync.Linked = append(sync.Linked, valid[name])
	}

	return sync, nil
}
