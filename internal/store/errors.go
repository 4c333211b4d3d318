package store

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mattn/go-sqlite3"

	"github.com/starford/fennec/internal/apperr"
)

// pgUniqueViolation is the SQLSTATE for unique_violation.
const pgUniqueViolation = "23505"

// translate maps driver errors onto apperr sentinels and adds the op prefix.
func translate(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("store: %s: %w", op, apperr.ErrNotFound)
	}
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		if sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey {
			return fmt.Errorf("store: %s: %w: %s", op, apperr.ErrConflict, sqliteErr.Error())
		}
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
		return fmt.Errorf("store: %s: %w: %s", op, apperr.ErrConflict, pgErr.Message)
	}
	return fmt.Errorf("store: %s: %w", op, err)
}

// expectOne turns a zero-row mutation into ErrNotFound.
func expectOne(op string, res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return translate(op, err)
	}
	if n == 0 {
		return fmt.Errorf("store: %s: %w", op, apperr.ErrNotFound)
	}
	return nil
}
