// Package checksum computes content digests for change detection.
package checksum

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strconv"

	"github.com/starford/fennec/internal/models"
)

// Sum returns the hex-encoded SHA-256 digest of data.
func Sum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// Fields digests parts in order. Each part is length-prefixed so that
// ("ab", "c") and ("a", "bc") differ.
func Fields(parts ...string) string {
	h := sha256.New()
	for _, p := range parts {
		h.Write([]byte(strconv.Itoa(len(p))))
		h.Write([]byte{':'})
		h.Write([]byte(p))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Note returns the entity tag for a note's published content.
func Note(n models.Note) string {
	return Fields(n.ID, n.CategoryID, n.Title, n.Description, strconv.Itoa(n.SortOrder), n.HTML)
}

// Detail returns the entity tag for a note as served with its tags. Tag
// order does not matter.
func Detail(n models.Note, tags []models.Tag) string {
	sorted := append([]models.Tag(nil), tags...)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Name != sorted[j].Name {
			return sorted[i].Name < sorted[j].Name
		}
		return sorted[i].ID < sorted[j].ID
	})
	parts := make([]string, 0, 1+2*len(sorted))
	parts = append(parts, Note(n))
	for _, t := range sorted {
		parts = append(parts, t.ID, t.Name)
	}
	return Fields(parts...)
}
