package store

import (
	"context"
	"database/sql"
	"errors"

	"github.com/starford/fennec/internal/models"
)

// TagByName returns the named tag, or nil when it does not exist.
func (db *DB) TagByName(ctx context.Context, name string) (*models.Tag, error) {
	var t models.Tag
	err := db.conn.QueryRowContext(ctx, db.q(`SELECT id, name FROM tags WHERE name = ?`), name).Scan(&t.ID, &t.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, translate("tag by name", err)
	}
	return &t, nil
}

// TagByID returns the tag with the given id, or apperr.ErrNotFound.
func (db *DB) TagByID(ctx context.Context, id string) (*models.Tag, error) {
	var t models.Tag
	err := db.conn.QueryRowContext(ctx, db.q(`SELECT id, name FROM tags WHERE id = ?`), id).Scan(&t.ID, &t.Name)
	if err != nil {
		return nil, translate("tag by id", err)
	}
	return &t, nil
}

// CreateTag inserts a tag and returns its generated id.
func (db *DB) CreateTag(ctx context.Context, name string) (string, error) {
	id := db.newID()
	_, err := db.conn.ExecContext(ctx, db.q(`INSERT INTO tags (id, name) VALUES (?, ?)`), id, name)
	if err != nil {
		return "", translate("create tag", err)
	}
	return id, nil
}

// ListTags returns all tags with the number of notes linked to each,
// including tags that are no longer linked to anything.
func (db *DB) ListTags(ctx context.Context) ([]models.TagUsage, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT t.id, t.name, count(nt.note_id)
		FROM tags t
		LEFT JOIN note_tags nt ON nt.tag_id = t.id
		GROUP BY t.id, t.name
		ORDER BY t.name
	`)
	if err != nil {
		return nil, translate("list tags", err)
	}
	defer rows.Close()

	out := []models.TagUsage{}
	for rows.Next() {
		var u models.TagUsage
		if err := rows.Scan(&u.ID, &u.Name, &u.Notes); err != nil {
			return nil, translate("scan tag", err)
		}
		out = append(out, u)
	}
	return out, translate("list tags", rows.Err())
}

// NoteTagIDs returns the ids of the tags currently linked to a note.
func (db *DB) NoteTagIDs(ctx context.Context, noteID string) ([]string, error) {
	rows, err := db.conn.QueryContext(ctx, db.q(`SELECT tag_id FROM note_tags WHERE note_id = ?`), noteID)
	if err != nil {
		return nil, translate("note tag ids", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, translate("scan note tag", err)
		}
		out = append(out, id)
	}
	return out, translate("note tag ids", rows.Err())
}

// NoteTags returns the tags linked to a note, sorted by name.
func (db *DB) NoteTags(ctx context.Context, noteID string) ([]models.Tag, error) {
	rows, err := db.conn.QueryContext(ctx, db.q(`
		SELECT t.id, t.name
		FROM note_tags nt
		JOIN tags t ON t.id = nt.tag_id
		WHERE nt.note_id = ?
		ORDER BY t.name
	`), noteID)
	if err != nil {
		return nil, translate("note tags", err)
	}
	defer rows.Close()

	out := []models.Tag{}
	for rows.Next() {
		var t models.Tag
		if err := rows.Scan(&t.ID, &t.Name); err != nil {
			return nil, translate("scan tag", err)
		}
		out = append(out, t)
	}
	return out, translate("note tags", rows.Err())
}

// RemoveNoteTag deletes one note-tag link.
func (db *DB) RemoveNoteTag(ctx context.Context, noteID, tagID string) error {
	_, err := db.conn.ExecContext(ctx, db.q(`DELETE FROM note_tags WHERE note_id = ? AND tag_id = ?`), noteID, tagID)
	return translate("remove note tag", err)
}

// UpsertNoteTag links a note to a tag; an existing link is left as is.
func (db *DB) UpsertNoteTag(ctx context.Context, noteID, tagID string) error {
	_, err := db.conn.ExecContext(ctx, db.q(`
		INSERT INTO note_tags (note_id, tag_id) VALUES (?, ?)
		ON CONFLICT (note_id, tag_id) DO NOTHING
	`), noteID, tagID)
	return translate("upsert note tag", err)
}
