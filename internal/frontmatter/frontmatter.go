// Package frontmatter parses and validates the YAML header of authored
// Markdown notes before they are published.
package frontmatter

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"slices"
	"sort"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"gopkg.in/yaml.v3"

	"github.com/starford/fennec/internal/models"
)

const delim = "---"

// Fields lists the keys every note header must carry, and no others.
var Fields = []string{"id", "title", "description", "order", "tags", "category"}

// ErrMissing is returned when a document has no frontmatter block.
var ErrMissing = errors.New("missing frontmatter section")

// Document is a parsed Markdown note.
type Document struct {
	Raw         map[string]any
	Frontmatter models.Frontmatter
	Body        string
}

// Parse splits data into its frontmatter and body. Unlike rendering-time
// parsers it fails on a missing block or on malformed YAML.
func Parse(data []byte) (*Document, error) {
	block, body, ok := split(data)
	if !ok {
		return nil, ErrMissing
	}

	var raw map[string]any
	if err := yaml.Unmarshal(block, &raw); err != nil {
		return nil, fmt.Errorf("frontmatter: yaml: %w", err)
	}
	if raw == nil {
		raw = map[string]any{}
	}

	doc := &Document{Raw: raw, Body: body}
	// Type mismatches are reported by Validate, so a failed decode here
	// leaves a partially filled Frontmatter.
	_ = yaml.Unmarshal(block, &doc.Frontmatter)
	return doc, nil
}

// split returns the YAML between the leading --- delimiters and the body
// after the closing one.
func split(data []byte) ([]byte, string, bool) {
	trimmed := bytes.TrimLeft(data, "\n\r")
	if !bytes.HasPrefix(trimmed, []byte(delim)) {
		return nil, "", false
	}
	rest := trimmed[len(delim):]
	idx := bytes.Index(rest, []byte("\n"+delim))
	if idx < 0 {
		return nil, "", false
	}
	block := rest[:idx]
	after := rest[idx+1+len(delim):]
	return block, strings.TrimLeft(string(after), "\n\r"), true
}

// Validate checks a parsed header. allowedTags restricts tag values when
// non-empty. The returned error is a validation.Errors keyed by field.
func Validate(raw map[string]any, allowedTags []string) error {
	errs := validation.Errors{}

	for key := range raw {
		if !slices.Contains(Fields, key) {
			errs[key] = errors.New("unexpected key")
		}
	}
	for _, key := range Fields {
		if _, ok := raw[key]; !ok {
			errs[key] = errors.New("missing required key")
		}
	}

	for key, value := range raw {
		if _, done := errs[key]; done {
			continue
		}
		var err error
		switch key {
		case "id", "title", "description", "category":
			err = validation.Validate(value, validation.By(nonEmptyString))
		case "order":
			err = validation.Validate(value, validation.By(positiveInt))
		case "tags":
			err = validation.Validate(value, validation.By(tagList(allowedTags)))
		}
		if err != nil {
			errs[key] = err
		}
	}

	if len(errs) == 0 {
		return nil
	}
	return errs
}

func nonEmptyString(value any) error {
	s, ok := value.(string)
	if !ok || strings.TrimSpace(s) == "" {
		return errors.New("must be a non-empty string")
	}
	return nil
}

func positiveInt(value any) error {
	n, ok := value.(int)
	if !ok || n <= 0 {
		return errors.New("must be a positive integer")
	}
	return nil
}

func tagList(allowed []string) validation.RuleFunc {
	return func(value any) error {
		items, ok := value.([]any)
		if !ok || len(items) == 0 {
			return errors.New("must be a non-empty list of tags")
		}
		for _, item := range items {
			s, ok := item.(string)
			if !ok || strings.TrimSpace(s) == "" {
				return errors.New("tags must be non-empty strings")
			}
			if len(allowed) > 0 && !slices.Contains(allowed, s) {
				sorted := slices.Clone(allowed)
				sort.Strings(sorted)
				return fmt.Errorf("tag %q is not one of %s", s, strings.Join(sorted, ", "))
			}
		}
		return nil
	}
}

// FileResult is the validation outcome for one file.
type FileResult struct {
	Path   string
	Errors []string
}

// OK reports whether the file passed.
func (r FileResult) OK() bool { return len(r.Errors) == 0 }

// ValidateFile reads, parses and validates the note at path.
func ValidateFile(path string, allowedTags []string) FileResult {
	res := FileResult{Path: path}
	data, err := os.ReadFile(path)
	if err != nil {
		res.Errors = []string{err.Error()}
		return res
	}
	doc, err := Parse(data)
	if err != nil {
		res.Errors = []string{err.Error()}
		return res
	}
	if err := Validate(doc.Raw, allowedTags); err != nil {
		res.Errors = Messages(err)
	}
	return res
}

// Messages flattens a Validate error into "key: message" lines sorted by key.
func Messages(err error) []string {
	var verrs validation.Errors
	if !errors.As(err, &verrs) {
		return []string{err.Error()}
	}
	keys := make([]string, 0, len(verrs))
	for k := range verrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, fmt.Sprintf("%s: %v", k, verrs[k]))
	}
	return out
}
