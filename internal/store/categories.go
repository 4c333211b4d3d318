package store

import (
	"context"
	"database/sql"
	"errors"

	"github.com/starford/fennec/internal/models"
)

// CategoryIDByName returns the id of the named category. found is false when
// no such category exists.
func (db *DB) CategoryIDByName(ctx context.Context, name string) (string, bool, error) {
	var id string
	err := db.conn.QueryRowContext(ctx, db.q(`SELECT id FROM categories WHERE name = ?`), name).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, translate("category by name", err)
	}
	return id, true, nil
}

// CreateCategory inserts a category and returns its generated id.
func (db *DB) CreateCategory(ctx context.Context, name string) (string, error) {
	id := db.newID()
	_, err := db.conn.ExecContext(ctx, db.q(`INSERT INTO categories (id, name) VALUES (?, ?)`), id, name)
	if err != nil {
		return "", translate("create category", err)
	}
	return id, nil
}

// CategoryHasNotes reports whether at least one note belongs to the named category.
func (db *DB) CategoryHasNotes(ctx context.Context, name string) (bool, error) {
	var count int
	err := db.conn.QueryRowContext(ctx, db.q(`
		SELECT count(*)
		FROM notes n
		JOIN categories c ON c.id = n.category_id
		WHERE c.name = ?
	`), name).Scan(&count)
	if err != nil {
		return false, translate("category has notes", err)
	}
	return count > 0, nil
}

// DeleteCategoryByName removes the named category. Deleting a missing
// category is not an error.
func (db *DB) DeleteCategoryByName(ctx context.Context, name string) error {
	_, err := db.conn.ExecContext(ctx, db.q(`DELETE FROM categories WHERE name = ?`), name)
	return translate("delete category", err)
}

// ListCategories returns every category sorted by name.
func (db *DB) ListCategories(ctx context.Context) ([]models.Category, error) {
	rows, err := db.conn.QueryContext(ctx, `SELECT id, name, created_at FROM categories ORDER BY name`)
	if err != nil {
		return nil, translate("list categories", err)
	}
	defer rows.Close()

	out := []models.Category{}
	for rows.Next() {
		var c models.Category
		if err := rows.Scan(&c.ID, &c.Name, &c.CreatedAt); err != nil {
			return nil, translate("scan category", err)
		}
		out = append(out, c)
	}
	return out, translate("list categories", rows.Err())
}
