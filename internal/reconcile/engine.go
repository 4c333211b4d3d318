package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/fennec/internal/apperr"
	"github.com/starford/fennec/internal/auth"
	"github.com/starford/fennec/internal/models"
)

// CategoryFailure selects how the upsert workflow reacts to a failure while
// creating a new category or a note inside one.
type CategoryFailure string

const (
	// AbortBatch stops the workflow at the first such failure.
	AbortBatch CategoryFailure = "abort"
	// SkipCategory records the failure, skips the affected category or note
	// and carries on with the rest of the batch.
	SkipCategory CategoryFailure = "skip"
)

// Policy tunes failure containment.
type Policy struct {
	CategoryFailure CategoryFailure
}

// Validate checks the policy values.
func (p Policy) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.CategoryFailure, validation.Required, validation.In(AbortBatch, SkipCategory)),
	)
}

// step is one edge of a workflow. A fatal step aborts the batch when it
// returns an error; any other step logs and moves on.
type step struct {
	next  State
	fatal bool
	run   func(e *Engine, ctx context.Context, r *run) error
}

var upsertSteps = map[State]step{
	StatePartitionCategories:         {next: StateCreateNewCategories, fatal: true, run: (*Engine).partitionCategories},
	StateCreateNewCategories:         {next: StateCreateNotesInNewCategories, fatal: true, run: (*Engine).createNewCategories},
	StateCreateNotesInNewCategories:  {next: StateReconcileExistingCategories, fatal: true, run: (*Engine).createNotesInNewCategories},
	StateReconcileExistingCategories: {next: StateDone, run: (*Engine).reconcileExistingCategories},
}

var deleteSteps = map[State]step{
	StateDeleteNotes:               {next: StateCleanupOrphanedCategories, run: (*Engine).deleteNotes},
	StateCleanupOrphanedCategories: {next: StateDone, run: (*Engine).cleanupOrphanedCategories},
}

// run carries the per-batch working set between steps.
type run struct {
	report    *Report
	records   []models.Record
	requests  []models.DeletionRequest
	partition *Partition
	touched   []string
}

// Engine runs the upsert and delete workflows against a Gateway.
type Engine struct {
	categories *CategoryReconciler
	notes      *NoteReconciler
	policy     Policy
	logger     *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithPolicy sets the failure containment policy.
func WithPolicy(p Policy) Option {
	return func(e *Engine) {
		e.policy = p
	}
}

// WithLogger sets the engine logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = l
	}
}

// New creates an Engine. The default policy aborts the batch on a failure
// in a new category.
func New(gw Gateway, opts ...Option) *Engine {
	e := &Engine{
		policy: Policy{CategoryFailure: AbortBatch},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.categories = NewCategoryReconciler(gw, e.logger)
	e.notes = NewNoteReconciler(gw, NewTagReconciler(gw), e.logger)
	return e
}

// Upsert reconciles a batch of records. The context must carry an actor.
// The returned report is non-nil whenever the workflow started; err is
// non-nil when it aborted at a fatal step.
func (e *Engine) Upsert(ctx context.Context, records []models.Record) (*Report, error) {
	actor := auth.ActorFrom(ctx)
	if actor == "" {
		return nil, fmt.Errorf("reconcile: upsert: %w", apperr.ErrUnauthenticated)
	}
	if err := ValidateRecords(records); err != nil {
		return nil, fmt.Errorf("reconcile: upsert: %w", err)
	}

	r := &run{report: newReport(WorkflowUpsert, actor), records: records}
	return e.start(ctx, upsertSteps, StatePartitionCategories, r, len(records))
}

// Delete removes the requested notes and then deletes any touched category
// left without notes. The context must carry an actor.
func (e *Engine) Delete(ctx context.Context, requests []models.DeletionRequest) (*Report, error) {
	actor := auth.ActorFrom(ctx)
	if actor == "" {
		return nil, fmt.Errorf("reconcile: delete: %w", apperr.ErrUnauthenticated)
	}
	if err := ValidateDeletions(requests); err != nil {
		return nil, fmt.Errorf("reconcile: delete: %w", err)
	}

	r := &run{report: newReport(WorkflowDelete, actor), requests: requests}
	return e.start(ctx, deleteSteps, StateDeleteNotes, r, len(requests))
}

func (e *Engine) start(ctx context.Context, steps map[State]step, first State, r *run, size int) (*Report, error) {
	began := time.Now()
	err := e.execute(ctx, steps, first, r)
	r.report.finish()

	e.logger.Info("reconcile: batch finished",
		slog.String("workflow", r.report.Workflow),
		slog.String("actor", r.report.Actor),
		slog.Int("size", size),
		slog.String("status", r.report.Status),
		slog.Int("items", len(r.report.Items)),
		slog.Duration("elapsed", time.Since(began)))
	return r.report, err
}

func (e *Engine) execute(ctx context.Context, steps map[State]step, first State, r *run) error {
	for state := first; state != StateDone; {
		s, ok := steps[state]
		if !ok {
			return fmt.Errorf("reconcile: no transition from %s", state)
		}
		r.report.State = state

		if err := s.run(e, ctx, r); err != nil {
			if s.fatal {
				r.report.abort(state, err)
				e.logger.Error("reconcile: batch aborted",
					slog.String("workflow", r.report.Workflow),
					slog.String("state", string(state)),
					slog.String("error", err.Error()))
				return fmt.Errorf("reconcile: %s aborted at %s: %w", r.report.Workflow, state, err)
			}
			e.logger.Warn("reconcile: step failed",
				slog.String("workflow", r.report.Workflow),
				slog.String("state", string(state)),
				slog.String("error", err.Error()))
		}
		state = s.next
	}
	r.report.State = StateDone
	return nil
}

func (e *Engine) partitionCategories(ctx context.Context, r *run) error {
	p, err := e.categories.Partition(ctx, r.records)
	if err != nil {
		return err
	}
	r.partition = p
	return nil
}

func (e *Engine) createNewCategories(ctx context.Context, r *run) error {
	kept := r.partition.New[:0]
	for _, g := range r.partition.New {
		if err := e.categories.Create(ctx, g); err != nil {
			r.report.add(ItemResult{Kind: KindCategory, Key: g.Label, Outcome: OutcomeFailed, Stage: StateCreateNewCategories, Error: err.Error()})
			if e.policy.CategoryFailure == AbortBatch {
				return err
			}
			e.logger.Warn("reconcile: skipping category",
				slog.String("category", g.Label),
				slog.Int("records", len(g.Records)),
				slog.String("error", err.Error()))
			r.report.add(skipped(g, StateCreateNewCategories, err)...)
			continue
		}
		r.report.add(ItemResult{Kind: KindCategory, Key: g.Label, Outcome: OutcomeCreated, Stage: StateCreateNewCategories})
		kept = append(kept, g)
	}
	r.partition.New = kept
	return nil
}

// Every record in a new category is a new note.
func (e *Engine) createNotesInNewCategories(ctx context.Context, r *run) error {
	for _, g := range r.partition.New {
		for _, rec := range g.Records {
			res, err := e.notes.CreateOne(ctx, g.CategoryID, rec, StateCreateNotesInNewCategories)
			r.report.add(res...)
			if err == nil {
				continue
			}
			if e.policy.CategoryFailure == AbortBatch {
				return fmt.Errorf("category %q: note %q: %w", g.Label, rec.Frontmatter.ID, err)
			}
			e.logger.Warn("reconcile: note create failed",
				slog.String("note_id", rec.Frontmatter.ID),
				slog.String("error", err.Error()))
		}
	}
	return nil
}

func (e *Engine) reconcileExistingCategories(ctx context.Context, r *run) error {
	for _, g := range r.partition.Existing {
		toCreate, toUpdate, err := e.notes.Partition(ctx, g)
		if err != nil {
			e.logger.Warn("reconcile: skipping category notes",
				slog.String("category", g.Label),
				slog.String("error", err.Error()))
			r.report.add(skipped(g, StateReconcileExistingCategories, err)...)
			continue
		}
		r.report.add(e.notes.Create(ctx, g.CategoryID, toCreate, StateReconcileExistingCategories)...)
		r.report.add(e.notes.Update(ctx, toUpdate, StateReconcileExistingCategories)...)
	}
	return nil
}

func (e *Engine) deleteNotes(ctx context.Context, r *run) error {
	results, touched := e.notes.Delete(ctx, r.requests)
	r.report.add(results...)
	r.touched = touched
	return nil
}

func (e *Engine) cleanupOrphanedCategories(ctx context.Context, r *run) error {
	r.report.add(e.categories.CleanupOrphans(ctx, r.touched)...)
	return nil
}

func skipped(g *Group, stage State, cause error) []ItemResult {
	out := make([]ItemResult, 0, len(g.Records))
	for _, rec := range g.Records {
		out = append(out, ItemResult{
			Kind:     KindNote,
			Key:      rec.Frontmatter.ID,
			Category: g.Label,
			Outcome:  OutcomeSkipped,
			Stage:    stage,
			Error:    cause.Error(),
		})
	}
	return out
}

// ValidateRecords checks every record and rejects batches that repeat a
// note id.
func ValidateRecords(records []models.Record) error {
	seen := make(map[string]int, len(records))
	for i, rec := range records {
		if err := rec.Validate(); err != nil {
			return fmt.Errorf("%w: record %d: %v", apperr.ErrInvalidBatch, i, err)
		}
		id := rec.Frontmatter.ID
		if j, ok := seen[id]; ok {
			return fmt.Errorf("%w: records %d and %d share id %q", apperr.ErrInvalidBatch, j, i, id)
		}
		seen[id] = i
	}
	return nil
}

// ValidateDeletions checks every deletion request.
func ValidateDeletions(requests []models.DeletionRequest) error {
	for i, req := range requests {
		if err := req.Validate(); err != nil {
			return fmt.Errorf("%w: request %d: %v", apperr.ErrInvalidBatch, i, err)
		}
	}
	return nil
}
