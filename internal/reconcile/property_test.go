package reconcile_test

import (
	"fmt"
	"sort"
	"strings"
	"testing"

	"pgregory.net/rapid"

	"github.com/starford/fennec/internal/models"
	"github.com/starford/fennec/internal/reconcile"
)

// =============================================================================
// Generators
// =============================================================================

func tagListGenerator() *rapid.Generator[[]string] {
	return rapid.SliceOfN(rapid.SampledFrom([]string{"go", "perf", "systems", " db ", "", "db"}), 0, 5)
}

// batchGenerator draws a batch with distinct ids. Each id is pinned to one
// category so that republishing never moves a note.
func batchGenerator() *rapid.Generator[[]models.Record] {
	return rapid.Custom(func(t *rapid.T) []models.Record {
		ids := rapid.SliceOfNDistinct(rapid.IntRange(0, 20), 0, 8, rapid.ID[int]).Draw(t, "ids")
		records := make([]models.Record, 0, len(ids))
		for _, id := range ids {
			rec := record(fmt.Sprintf("n%d", id), fmt.Sprintf("c%d", id%3), tagListGenerator().Draw(t, "tags")...)
			rec.Frontmatter.Title = rapid.StringMatching(`[A-Za-z ]{0,12}`).Draw(t, "title")
			rec.Frontmatter.Order = rapid.IntRange(1, 50).Draw(t, "order")
			records = append(records, rec)
		}
		return records
	})
}

func declaredTags(tags []string) []string {
	set := map[string]struct{}{}
	for _, tag := range tags {
		if name := strings.TrimSpace(tag); name != "" {
			set[name] = struct{}{}
		}
	}
	out := []string{}
	for name := range set {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// =============================================================================
// Properties
// =============================================================================

func testUpsert_Idempotent_Properties(t *rapid.T) {
	gw := newMemGateway()
	eng := newEngine(gw, reconcile.AbortBatch)
	batch := batchGenerator().Draw(t, "batch")

	if _, err := eng.Upsert(actorCtx(), batch); err != nil {
		t.Fatalf("first upsert: %v", err)
	}
	once := gw.snapshot()

	if _, err := eng.Upsert(actorCtx(), batch); err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	if twice := gw.snapshot(); twice != once {
		t.Fatalf("state changed on resubmit:\nonce:\n%s\ntwice:\n%s", once, twice)
	}
}

func TestUpsert_Idempotent_Properties(t *testing.T) {
	rapid.Check(t, testUpsert_Idempotent_Properties)
}

func testTagSet_Converges_Properties(t *rapid.T) {
	gw := newMemGateway()
	eng := newEngine(gw, reconcile.AbortBatch)
	first := batchGenerator().Draw(t, "first")

	if _, err := eng.Upsert(actorCtx(), first); err != nil {
		t.Fatalf("first upsert: %v", err)
	}

	second := make([]models.Record, len(first))
	for i, rec := range first {
		rec.Frontmatter.Tags = tagListGenerator().Draw(t, "retag")
		second[i] = rec
	}
	tagsBefore := len(gw.tags)
	if _, err := eng.Upsert(actorCtx(), second); err != nil {
		t.Fatalf("second upsert: %v", err)
	}

	for _, rec := range second {
		want := declaredTags(rec.Frontmatter.Tags)
		got := gw.linkedTagNames(rec.Frontmatter.ID)
		if fmt.Sprint(got) != fmt.Sprint(want) {
			t.Fatalf("note %s: linked %v, declared %v", rec.Frontmatter.ID, got, want)
		}
	}
	if len(gw.tags) < tagsBefore {
		t.Fatalf("tags were deleted: %d -> %d", tagsBefore, len(gw.tags))
	}
}

func TestTagSet_Converges_Properties(t *testing.T) {
	rapid.Check(t, testTagSet_Converges_Properties)
}

func testCategoryPartition_Properties(t *rapid.T) {
	gw := newMemGateway()
	for _, label := range rapid.SliceOfDistinct(rapid.SampledFrom([]string{"c0", "c1", "c2"}), rapid.ID[string]).Draw(t, "seeded") {
		gw.categories[label] = "seed-" + label
	}
	batch := batchGenerator().Draw(t, "batch")

	p, err := reconcile.NewCategoryReconciler(gw, testLogger()).Partition(actorCtx(), batch)
	if err != nil {
		t.Fatalf("partition: %v", err)
	}

	var order []string
	seen := map[string]bool{}
	for _, rec := range batch {
		if !seen[rec.Frontmatter.Category] {
			seen[rec.Frontmatter.Category] = true
			order = append(order, rec.Frontmatter.Category)
		}
	}

	total := 0
	for _, g := range p.New {
		if _, ok := gw.categories[g.Label]; ok {
			t.Fatalf("%s routed to new but existed", g.Label)
		}
		total += len(g.Records)
	}
	for _, g := range p.Existing {
		if gw.categories[g.Label] != g.CategoryID {
			t.Fatalf("%s routed to existing with id %q", g.Label, g.CategoryID)
		}
		total += len(g.Records)
	}
	if total != len(batch) {
		t.Fatalf("partition holds %d records, batch has %d", total, len(batch))
	}
	for _, label := range order {
		g := lookupGroup(p, label)
		if g == nil {
			t.Fatalf("label %s missing from partition", label)
		}
		for _, rec := range g.Records {
			if rec.Frontmatter.Category != label {
				t.Fatalf("record %s grouped under %s", rec.Frontmatter.ID, label)
			}
		}
	}
}

func TestCategoryPartition_Properties(t *testing.T) {
	rapid.Check(t, testCategoryPartition_Properties)
}

func testOrphanCleanup_Properties(t *rapid.T) {
	gw := newMemGateway()
	eng := newEngine(gw, reconcile.AbortBatch)
	batch := batchGenerator().Draw(t, "batch")
	if _, err := eng.Upsert(actorCtx(), batch); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	var requests []models.DeletionRequest
	for _, rec := range batch {
		if rapid.Bool().Draw(t, "delete") {
			requests = append(requests, models.DeletionRequest{Category: rec.Frontmatter.Category, NoteID: rec.Frontmatter.ID})
		}
	}
	if _, err := eng.Delete(actorCtx(), requests); err != nil {
		t.Fatalf("delete: %v", err)
	}

	remaining := map[string]bool{}
	for _, n := range gw.notes {
		remaining[n.CategoryID] = true
	}
	for _, req := range requests {
		id, ok := gw.categories[req.Category]
		if ok && !remaining[id] {
			t.Fatalf("empty category %s survived cleanup", req.Category)
		}
	}
	for id := range remaining {
		found := false
		for _, catID := range gw.categories {
			found = found || catID == id
		}
		if !found {
			t.Fatalf("category %s removed while it still holds notes", id)
		}
	}
}

func TestOrphanCleanup_Properties(t *testing.T) {
	rapid.Check(t, testOrphanCleanup_Properties)
}

func lookupGroup(p *reconcile.Partition, label string) *reconcile.Group {
	for _, side := range [][]*reconcile.Group{p.New, p.Existing} {
		for _, g := range side {
			if g.Label == label {
				return g
			}
		}
	}
	return nil
}
