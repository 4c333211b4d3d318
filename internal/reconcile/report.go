package reconcile

// State names a step of a workflow.
type State string

// Workflow states.
const (
	StatePartitionCategories         State = "partition_categories"
	StateCreateNewCategories         State = "create_new_categories"
	StateCreateNotesInNewCategories  State = "create_notes_in_new_categories"
	StateReconcileExistingCategories State = "reconcile_existing_categories"
	StateDeleteNotes                 State = "delete_notes"
	StateCleanupOrphanedCategories   State = "cleanup_orphaned_categories"
	StateDone                        State = "done"
)

// Kind is the entity an ItemResult refers to.
type Kind string

// Item kinds.
const (
	KindCategory Kind = "category"
	KindNote     Kind = "note"
	KindTag      Kind = "tag"
)

// Outcome is what happened to a single item.
type Outcome string

// Item outcomes.
const (
	OutcomeCreated Outcome = "created"
	OutcomeUpdated Outcome = "updated"
	OutcomeDeleted Outcome = "deleted"
	OutcomeRemoved Outcome = "removed"
	OutcomeKept    Outcome = "kept"
	OutcomeSkipped Outcome = "skipped"
	OutcomeFailed  Outcome = "failed"
)

// Report statuses.
const (
	StatusOK      = "ok"
	StatusPartial = "partial"
	StatusAborted = "aborted"
)

// Workflow names.
const (
	WorkflowUpsert = "upsert"
	WorkflowDelete = "delete"
)

// ItemResult records the outcome for one category, note or tag.
type ItemResult struct {
	Kind     Kind    `json:"kind"`
	Key      string  `json:"key"`
	Category string  `json:"category,omitempty"`
	Outcome  Outcome `json:"outcome"`
	Stage    State   `json:"stage"`
	Error    string  `json:"error,omitempty"`

	// Tag link changes, set on note items.
	TagsLinked   int `json:"tags_linked,omitempty"`
	TagsUnlinked int `json:"tags_unlinked,omitempty"`
}

// Report is the structured result of one workflow run.
type Report struct {
	Workflow  string       `json:"workflow"`
	Actor     string       `json:"actor"`
	Status    string       `json:"status"`
	State     State        `json:"state"`
	Aborted   bool         `json:"aborted"`
	AbortedAt State        `json:"aborted_at,omitempty"`
	Error     string       `json:"error,omitempty"`
	Items     []ItemResult `json:"items"`
}

func newReport(workflow, actor string) *Report {
	return &Report{Workflow: workflow, Actor: actor, Items: []ItemResult{}}
}

func (r *Report) add(items ...ItemResult) {
	r.Items = append(r.Items, items...)
}

func (r *Report) abort(at State, err error) {
	r.Aborted = true
	r.AbortedAt = at
	r.Error = err.Error()
}

func (r *Report) finish() {
	switch {
	case r.Aborted:
		r.Status = StatusAborted
	case len(r.Failures()) > 0:
		r.Status = StatusPartial
	default:
		r.Status = StatusOK
	}
}

// Failures returns the items that carry an error.
func (r *Report) Failures() []ItemResult {
	var out []ItemResult
	for _, it := range r.Items {
		if it.Error != "" {
			out = append(out, it)
		}
	}
	return out
}

// Count returns how many items of kind ended with outcome.
func (r *Report) Count(kind Kind, outcome Outcome) int {
	n := 0
	for _, it := range r.Items {
		if it.Kind == kind && it.Outcome == outcome {
			n++
		}
	}
	return n
}
