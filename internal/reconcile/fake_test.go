package reconcile_test

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"sync"

	"github.com/starford/fennec/internal/apperr"
	"github.com/starford/fennec/internal/auth"
	"github.com/starford/fennec/internal/models"
)

// memGateway implements reconcile.Gateway in memory. Failures are injected
// per operation and argument, e.g. failOn["CreateNote:n1"]; "*" matches any
// argument.
type memGateway struct {
	mu         sync.Mutex
	seq        int
	categories map[string]string
	notes      map[string]models.Note
	tags       map[string]string
	links      map[string]map[string]struct{}
	failOn     map[string]error
	mutations  int
}

func newMemGateway() *memGateway {
	return &memGateway{
		categories: make(map[string]string),
		notes:      make(map[string]models.Note),
		tags:       make(map[string]string),
		links:      make(map[string]map[string]struct{}),
		failOn:     make(map[string]error),
	}
}

func (m *memGateway) fail(op, arg string) error {
	if err, ok := m.failOn[op+":"+arg]; ok {
		return err
	}
	return m.failOn[op+":*"]
}

func (m *memGateway) nextID(prefix string) string {
	m.seq++
	return fmt.Sprintf("%s-%d", prefix, m.seq)
}

func (m *memGateway) CategoryIDByName(_ context.Context, name string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("CategoryIDByName", name); err != nil {
		return "", false, err
	}
	id, ok := m.categories[name]
	return id, ok, nil
}

func (m *memGateway) CreateCategory(_ context.Context, name string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("CreateCategory", name); err != nil {
		return "", err
	}
	if _, ok := m.categories[name]; ok {
		return "", apperr.ErrConflict
	}
	id := m.nextID("cat")
	m.categories[name] = id
	m.mutations++
	return id, nil
}

func (m *memGateway) CategoryHasNotes(_ context.Context, name string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("CategoryHasNotes", name); err != nil {
		return false, err
	}
	id, ok := m.categories[name]
	if !ok {
		return false, nil
	}
	for _, n := range m.notes {
		if n.CategoryID == id {
			return true, nil
		}
	}
	return false, nil
}

func (m *memGateway) DeleteCategoryByName(_ context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("DeleteCategoryByName", name); err != nil {
		return err
	}
	if _, ok := m.categories[name]; !ok {
		return apperr.ErrNotFound
	}
	delete(m.categories, name)
	m.mutations++
	return nil
}

func (m *memGateway) NoteExists(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("NoteExists", id); err != nil {
		return false, err
	}
	_, ok := m.notes[id]
	return ok, nil
}

func (m *memGateway) CreateNote(_ context.Context, n models.Note) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("CreateNote", n.ID); err != nil {
		return err
	}
	if _, ok := m.notes[n.ID]; ok {
		return apperr.ErrConflict
	}
	m.notes[n.ID] = n
	m.mutations++
	return nil
}

func (m *memGateway) UpdateNote(_ context.Context, id string, u models.NoteUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("UpdateNote", id); err != nil {
		return err
	}
	n, ok := m.notes[id]
	if !ok {
		return apperr.ErrNotFound
	}
	n.Title, n.Description, n.SortOrder, n.HTML = u.Title, u.Description, u.SortOrder, u.HTML
	m.notes[id] = n
	m.mutations++
	return nil
}

func (m *memGateway) DeleteNote(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("DeleteNote", id); err != nil {
		return err
	}
	if _, ok := m.notes[id]; !ok {
		return apperr.ErrNotFound
	}
	delete(m.notes, id)
	delete(m.links, id)
	m.mutations++
	return nil
}

func (m *memGateway) TagByName(_ context.Context, name string) (*models.Tag, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("TagByName", name); err != nil {
		return nil, err
	}
	id, ok := m.tags[name]
	if !ok {
		return nil, nil
	}
	return &models.Tag{ID: id, Name: name}, nil
}

func (m *memGateway) CreateTag(_ context.Context, name string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("CreateTag", name); err != nil {
		return "", err
	}
	if _, ok := m.tags[name]; ok {
		return "", apperr.ErrConflict
	}
	id := m.nextID("tag")
	m.tags[name] = id
	m.mutations++
	return id, nil
}

func (m *memGateway) NoteTagIDs(_ context.Context, noteID string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("NoteTagIDs", noteID); err != nil {
		return nil, err
	}
	var ids []string
	for id := range m.links[noteID] {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (m *memGateway) RemoveNoteTag(_ context.Context, noteID, tagID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("RemoveNoteTag", tagID); err != nil {
		return err
	}
	delete(m.links[noteID], tagID)
	m.mutations++
	return nil
}

func (m *memGateway) UpsertNoteTag(_ context.Context, noteID, tagID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("UpsertNoteTag", tagID); err != nil {
		return err
	}
	if m.links[noteID] == nil {
		m.links[noteID] = make(map[string]struct{})
	}
	if _, ok := m.links[noteID][tagID]; !ok {
		m.links[noteID][tagID] = struct{}{}
		m.mutations++
	}
	return nil
}

// linkedTagNames returns the names of the tags linked to noteID, sorted.
func (m *memGateway) linkedTagNames(noteID string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	byID := make(map[string]string, len(m.tags))
	for name, id := range m.tags {
		byID[id] = name
	}
	names := []string{}
	for id := range m.links[noteID] {
		names = append(names, byID[id])
	}
	sort.Strings(names)
	return names
}

func (m *memGateway) categoryNames() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	names := []string{}
	for name := range m.categories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// snapshot renders the whole persisted state as a comparable string.
func (m *memGateway) snapshot() string {
	m.mu.Lock()
	var ids []string
	for id := range m.notes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	notes := make([]models.Note, 0, len(ids))
	for _, id := range ids {
		notes = append(notes, m.notes[id])
	}
	var tagNames []string
	for name := range m.tags {
		tagNames = append(tagNames, name)
	}
	sort.Strings(tagNames)
	m.mu.Unlock()

	out := fmt.Sprintf("categories=%v tags=%v\n", m.categoryNames(), tagNames)
	for _, n := range notes {
		out += fmt.Sprintf("%s cat=%s title=%q order=%d html=%q tags=%v\n",
			n.ID, n.CategoryID, n.Title, n.SortOrder, n.HTML, m.linkedTagNames(n.ID))
	}
	return out
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func actorCtx() context.Context {
	return auth.WithActor(context.Background(), "tester")
}

func record(id, category string, tags ...string) models.Record {
	return models.Record{
		Frontmatter: models.Frontmatter{
			ID:       id,
			Title:    "Title " + id,
			Category: category,
			Order:    1,
			Tags:     tags,
		},
		HTML: "<p>" + id + "</p>",
	}
}
