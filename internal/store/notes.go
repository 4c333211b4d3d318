package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/starford/fennec/internal/models"
)

// NoteExists reports whether a note with the given id is stored.
func (db *DB) NoteExists(ctx context.Context, id string) (bool, error) {
	var found string
	err := db.conn.QueryRowContext(ctx, db.q(`SELECT id FROM notes WHERE id = ?`), id).Scan(&found)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, translate("note exists", err)
	}
	return true, nil
}

// CreateNote inserts a full note row.
func (db *DB) CreateNote(ctx context.Context, n models.Note) error {
	now := time.Now().UTC()
	_, err := db.conn.ExecContext(ctx, db.q(`
		INSERT INTO notes (id, category_id, title, description, sort_order, html, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`), n.ID, n.CategoryID, n.Title, n.Description, n.SortOrder, n.HTML, now, now)
	return translate("create note", err)
}

// UpdateNote overwrites the mutable columns of a note. The id and category
// are left untouched.
func (db *DB) UpdateNote(ctx context.Context, id string, u models.NoteUpdate) error {
	res, err := db.conn.ExecContext(ctx, db.q(`
		UPDATE notes
		SET title = ?, description = ?, sort_order = ?, html = ?, updated_at = ?
		WHERE id = ?
	`), u.Title, u.Description, u.SortOrder, u.HTML, time.Now().UTC(), id)
	if err != nil {
		return translate("update note", err)
	}
	return expectOne("update note", res)
}

// DeleteNote removes a note and its tag links in one transaction, so no
// link rows survive even where the schema does not cascade.
func (db *DB) DeleteNote(ctx context.Context, id string) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return translate("begin tx", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	if _, err := tx.ExecContext(ctx, db.q(`DELETE FROM note_tags WHERE note_id = ?`), id); err != nil {
		return translate("delete note links", err)
	}
	res, err := tx.ExecContext(ctx, db.q(`DELETE FROM notes WHERE id = ?`), id)
	if err != nil {
		return translate("delete note", err)
	}
	if err := expectOne("delete note", res); err != nil {
		return err
	}
	return translate("commit", tx.Commit())
}

// GetNote returns the full note, or apperr.ErrNotFound.
func (db *DB) GetNote(ctx context.Context, id string) (*models.Note, error) {
	var n models.Note
	err := db.conn.QueryRowContext(ctx, db.q(`
		SELECT id, category_id, title, description, sort_order, html, created_at, updated_at
		FROM notes
		WHERE id = ?
	`), id).Scan(&n.ID, &n.CategoryID, &n.Title, &n.Description, &n.SortOrder, &n.HTML, &n.CreatedAt, &n.UpdatedAt)
	if err != nil {
		return nil, translate("get note", err)
	}
	return &n, nil
}

// NotesByCategory lists note metadata for a category ordered by sort order.
func (db *DB) NotesByCategory(ctx context.Context, categoryID string) ([]models.NoteMeta, error) {
	rows, err := db.conn.QueryContext(ctx, db.q(`
		SELECT id, title, sort_order
		FROM notes
		WHERE category_id = ?
		ORDER BY sort_order, title
	`), categoryID)
	if err != nil {
		return nil, translate("notes by category", err)
	}
	defer rows.Close()

	out := []models.NoteMeta{}
	for rows.Next() {
		var m models.NoteMeta
		if err := rows.Scan(&m.ID, &m.Title, &m.SortOrder); err != nil {
			return nil, translate("scan note", err)
		}
		out = append(out, m)
	}
	return out, translate("notes by category", rows.Err())
}

// SearchResult is one search hit.
type SearchResult struct {
	ID         string `json:"id"`
	CategoryID string `json:"category_id"`
	Title      string `json:"title"`
	Snippet    string `json:"snippet"`
}

// SearchNotes performs a LIKE-based search over title, description and body.
func (db *DB) SearchNotes(ctx context.Context, query string, limit int) ([]SearchResult, error) {
	if limit <= 0 {
		limit = 20
	}
	like := "%" + query + "%"
	rows, err := db.conn.QueryContext(ctx, db.q(`
		SELECT id, category_id, title, substr(description, 1, 200)
		FROM notes
		WHERE title LIKE ? OR description LIKE ? OR html LIKE ?
		ORDER BY title
		LIMIT ?
	`), like, like, like, limit)
	if err != nil {
		return nil, translate("search", err)
	}
	defer rows.Close()

	out := []SearchResult{}
	for rows.Next() {
		var r SearchResult
		if err := rows.Scan(&r.ID, &r.CategoryID, &r.Title, &r.Snippet); err != nil {
			return nil, translate("scan search result", err)
		}
		out = append(out, r)
	}
	return out, translate("search", rows.Err())
}
