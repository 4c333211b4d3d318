// Package models defines the domain types for fennec.
package models

import (
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Category groups notes under a unique name.
type Category struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// Note is a persisted, rendered note. ID is supplied by the publisher and
// stays stable across republishes.
type Note struct {
	ID          string    `json:"id"`
	CategoryID  string    `json:"category_id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	SortOrder   int       `json:"sort_order"`
	HTML        string    `json:"html"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// NoteUpdate carries the mutable columns of a note.
type NoteUpdate struct {
	Title       string
	Description string
	SortOrder   int
	HTML        string
}

// NoteMeta is the lightweight listing shape for notes within a category.
type NoteMeta struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	SortOrder int    `json:"sort_order"`
}

// Tag is a globally unique label. Tags are never removed once created.
type Tag struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// TagUsage is a tag together with the number of notes linked to it.
type TagUsage struct {
	Tag
	Notes int `json:"notes"`
}

// NoteTag links one note to one tag.
type NoteTag struct {
	NoteID string `json:"note_id"`
	TagID  string `json:"tag_id"`
}

// Frontmatter is the metadata block of an incoming record.
type Frontmatter struct {
	ID          string   `json:"id" yaml:"id"`
	Title       string   `json:"title" yaml:"title"`
	Description string   `json:"description" yaml:"description"`
	Order       int      `json:"order" yaml:"order"`
	Category    string   `json:"category" yaml:"category"`
	Tags        []string `json:"tags" yaml:"tags"`
}

// Validate checks the fields the reconciliation engine keys on.
func (f Frontmatter) Validate() error {
	return validation.ValidateStruct(&f,
		validation.Field(&f.ID, validation.Required),
		validation.Field(&f.Category, validation.Required),
	)
}

// Record is one item of an upsert batch as produced by the publishing pipeline.
type Record struct {
	Frontmatter Frontmatter `json:"frontmatter"`
	HTML        string      `json:"html"`
}

// Validate validates the record's frontmatter.
func (r Record) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Frontmatter),
	)
}

// DeletionRequest asks for one note to be removed from a category.
type DeletionRequest struct {
	Category string `json:"category"`
	NoteID   string `json:"note_id"`
}

// Validate requires the note id; the category may be empty, in which case
// no orphan cleanup is attempted for it.
func (d DeletionRequest) Validate() error {
	return validation.ValidateStruct(&d,
		validation.Field(&d.NoteID, validation.Required),
	)
}

// SpoolEntry describes a pending batch file in the inbox spool.
type SpoolEntry struct {
	Name      string    `json:"name"`
	Size      int64     `json:"size"`
	Checksum  string    `json:"checksum"`
	UpdatedAt time.Time `json:"updated_at"`
}
