package frontmatter

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const valid = `---
id: go-channels
title: Channels
description: Typed conduits
order: 2
category: go
tags:
  - Go
  - Concurrency
---
# Channels
Body text.
`

func TestParse(t *testing.T) {
	doc, err := Parse([]byte(valid))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	fm := doc.Frontmatter
	if fm.ID != "go-channels" || fm.Category != "go" || fm.Order != 2 {
		t.Errorf("frontmatter = %+v", fm)
	}
	if len(fm.Tags) != 2 || fm.Tags[1] != "Concurrency" {
		t.Errorf("tags = %v", fm.Tags)
	}
	if doc.Body != "# Channels\nBody text.\n" {
		t.Errorf("body = %q", doc.Body)
	}
}

func TestParse_Missing(t *testing.T) {
	for _, input := range []string{"# No header\n", "---\nid: x\nno closing\n"} {
		if _, err := Parse([]byte(input)); err != ErrMissing {
			t.Errorf("Parse(%q) err = %v, want ErrMissing", input, err)
		}
	}
}

func TestParse_InvalidYAML(t *testing.T) {
	_, err := Parse([]byte("---\n: invalid: yaml: {{{\n---\nBody\n"))
	if err == nil || err == ErrMissing {
		t.Fatalf("expected yaml error, got %v", err)
	}
}

func TestValidate_OK(t *testing.T) {
	doc, _ := Parse([]byte(valid))
	if err := Validate(doc.Raw, nil); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if err := Validate(doc.Raw, []string{"Go", "Concurrency", "Python"}); err != nil {
		t.Errorf("unexpected error with allow list: %v", err)
	}
}

func TestValidate_Errors(t *testing.T) {
	input := "---\nid: x\ntitle: \"\"\ndescription: d\norder: 0\ncategory: go\ntags: [Rust]\nauthor: me\n---\n"
	doc, err := Parse([]byte(input))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	msgs := Messages(Validate(doc.Raw, []string{"Go", "Python"}))

	want := []string{"author: unexpected key", "order: must be a positive integer", "tags: tag \"Rust\" is not one of Go, Python", "title: must be a non-empty string"}
	if strings.Join(msgs, "|") != strings.Join(want, "|") {
		t.Errorf("messages =\n%v\nwant\n%v", msgs, want)
	}
}

func TestValidate_MissingKeys(t *testing.T) {
	msgs := Messages(Validate(map[string]any{"id": "x"}, nil))
	if len(msgs) != 5 {
		t.Fatalf("messages = %v", msgs)
	}
	for _, m := range msgs {
		if !strings.HasSuffix(m, "missing required key") {
			t.Errorf("unexpected message %q", m)
		}
	}
}

func TestValidate_EmptyTags(t *testing.T) {
	raw := map[string]any{"id": "x", "title": "t", "description": "d", "order": 1, "category": "c", "tags": []any{}}
	msgs := Messages(Validate(raw, nil))
	if len(msgs) != 1 || !strings.HasPrefix(msgs[0], "tags:") {
		t.Errorf("messages = %v", msgs)
	}
}

func TestValidateFile(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "good.md")
	bad := filepath.Join(dir, "bad.md")
	_ = os.WriteFile(good, []byte(valid), 0o644)
	_ = os.WriteFile(bad, []byte("no header"), 0o644)

	if res := ValidateFile(good, nil); !res.OK() {
		t.Errorf("good.md: %v", res.Errors)
	}
	res := ValidateFile(bad, nil)
	if res.OK() || res.Errors[0] != ErrMissing.Error() {
		t.Errorf("bad.md: %v", res.Errors)
	}
	if res := ValidateFile(filepath.Join(dir, "nope.md"), nil); res.OK() {
		t.Error("missing file should fail")
	}
}
