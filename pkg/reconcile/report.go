package reconcile

// Report is the outcome of one reconciliation call, returned to the caller
// instead of raising — the engine's only error channel for recoverable
// per-user failures (spec.md §7).
type Report struct {
	Created      int
	Updated      int
	Unchanged    int
	Suspended    int
	Reactivated  int
	AddedToGroup int
	Errors       []string
}

func (r *Report) addError(msg string) {
	r.Errors = append(r.Errors, msg)
}
