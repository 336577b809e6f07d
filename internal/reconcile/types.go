// File: internal/reconcile/types.go
// Brief: Reconciliation actions, per-secret results, and run summaries.

package reconcile

import "fmt"

// Action is the outcome of reconciling one secret.
type Action string

const (
	// ActionCreated means the secret did not exist and was created.
	ActionCreated Action = "created"
	// ActionUpdated means the secret existed with a different payload.
	ActionUpdated Action = "updated"
	// ActionUnchanged means the observed payload already matched.
	ActionUnchanged Action = "unchanged"
	// ActionSubmitted means reference resources were handed to the external
	// backend; materialization happens asynchronously.
	ActionSubmitted Action = "submitted"
	// ActionFailed means this secret's reconciliation failed without
	// aborting the rest of the run.
	ActionFailed Action = "failed"
)

// Result is the reconciliation outcome for one secret.
type Result struct {
	Secret string
	Action Action
	Err    error
}

// Summary counts results by action.
type Summary struct {
	Created   int
	Updated   int
	Unchanged int
	Submitted int
	Failed    int
}

// Summarize tallies a result set.
func Summarize(results []Result) Summary {
	var s Summary
	for _, r := range results {
		switch r.Action {
		case ActionCreated:
			s.Created++
		case ActionUpdated:
			s.Updated++
		case ActionUnchanged:
			s.Unchanged++
		case ActionSubmitted:
			s.Submitted++
		case ActionFailed:
			s.Failed++
		}
	}
	return s
}

func (s Summary) String() string {
	return fmt.Sprintf("%d created, %d updated, %d unchanged, %d submitted, %d failed",
		s.Created, s.Updated, s.Unchanged, s.Submitted, s.Failed)
}
