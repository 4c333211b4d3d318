// Package apperr holds sentinel errors shared across layers.
package apperr

import "errors"

var (
	ErrNotFound        = errors.New("not found")
	ErrConflict        = errors.New("conflict")
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrInvalidBatch    = errors.New("invalid batch")
)
