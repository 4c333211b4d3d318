package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/starford/fennec/internal/models"
)

// Group is the set of batch records that share one category label.
type Group struct {
	Label      string
	CategoryID string
	Records    []models.Record
}

// Partition splits a batch by category. New holds labels that had no
// persisted category when the batch started, Existing the rest. Both keep
// the order in which labels were first seen in the batch.
type Partition struct {
	New      []*Group
	Existing []*Group
}

// CategoryReconciler routes records to categories, creates missing
// categories and garbage-collects empty ones.
type CategoryReconciler struct {
	gw     Gateway
	logger *slog.Logger
}

// NewCategoryReconciler returns a CategoryReconciler backed by gw.
func NewCategoryReconciler(gw Gateway, logger *slog.Logger) *CategoryReconciler {
	return &CategoryReconciler{gw: gw, logger: logger}
}

// Partition looks up each distinct label once, in batch order. Any lookup
// error fails the whole partition.
func (c *CategoryReconciler) Partition(ctx context.Context, records []models.Record) (*Partition, error) {
	p := &Partition{}
	seen := make(map[string]*Group)

	for _, rec := range records {
		label := rec.Frontmatter.Category
		if g, ok := seen[label]; ok {
			g.Records = append(g.Records, rec)
			continue
		}

		id, found, err := c.gw.CategoryIDByName(ctx, label)
		if err != nil {
			return nil, fmt.Errorf("lookup category %q: %w", label, err)
		}
		g := &Group{Label: label, CategoryID: id, Records: []models.Record{rec}}
		seen[label] = g
		if found {
			p.Existing = append(p.Existing, g)
		} else {
			p.New = append(p.New, g)
		}
	}
	return p, nil
}

// Create persists the group's category and stores the generated id on it.
func (c *CategoryReconciler) Create(ctx context.Context, g *Group) error {
	id, err := c.gw.CreateCategory(ctx, g.Label)
	if err != nil {
		return fmt.Errorf("create category %q: %w", g.Label, err)
	}
	g.CategoryID = id
	return nil
}

// CleanupOrphans deletes every category in labels that no longer holds a
// note. Blank and repeated labels are dropped first. A failure on one label
// is recorded and the rest are still attempted.
func (c *CategoryReconciler) CleanupOrphans(ctx context.Context, labels []string) []ItemResult {
	var results []ItemResult
	for _, label := range uniqueLabels(labels) {
		res := ItemResult{Kind: KindCategory, Key: label, Stage: StateCleanupOrphanedCategories}

		has, err := c.gw.CategoryHasNotes(ctx, label)
		switch {
		case err != nil:
			res.Outcome, res.Error = OutcomeFailed, fmt.Sprintf("count notes: %v", err)
		case has:
			res.Outcome = OutcomeKept
		default:
			if err := c.gw.DeleteCategoryByName(ctx, label); err != nil {
				res.Outcome, res.Error = OutcomeFailed, fmt.Sprintf("delete: %v", err)
			} else {
				res.Outcome = OutcomeRemoved
			}
		}

		if res.Error != "" {
			c.logger.Warn("reconcile: orphan cleanup failed", slog.String("category", label), slog.String("error", res.Error))
		} else if res.Outcome == OutcomeRemoved {
			c.logger.Info("reconcile: removed empty category", slog.String("category", label))
		}
		results = append(results, res)
	}
	return results
}

func uniqueLabels(labels []string) []string {
	seen := make(map[string]struct{}, len(labels))
	out := make([]string, 0, len(labels))
	for _, l := range labels {
		if strings.TrimSpace(l) == "" {
			continue
		}
		if _, ok := seen[l]; ok {
			continue
		}
		seen[l] = struct{}{}
		out = append(out, l)
	}
	return out
}
