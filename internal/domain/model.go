package domain

// PullRequestRef identifies a pull request on the hosting service.
// It is derived from a webhook payload and never persisted.
type PullRequestRef struct {
	Owner   string
	Repo    string
	Number  int
	BaseRef string
}

// CheckRunEvent is the slice of a check_run webhook payload the triage
// workflow needs: the run identity, its outcome, and the PRs it touches.
type CheckRunEvent struct {
	Owner      string
	Repo       string
	CheckRunID int64
	CheckName  string
	Status     string
	Conclusion string
	HeadSHA    string
	DetailsURL string
	PRNumbers  []int
}

// Failed reports whether the run completed with a failing conclusion.
func (e *CheckRunEvent) Failed() bool {
	return e.Conclusion == "failure"
}

// ReviewResult is what the PR review workflow returns to the dispatcher.
type ReviewResult struct {
	Status   string `json:"status"`
	Analysis string `json:"analysis,omitempty"`
	Summary  string `json:"summary,omitempty"`
}

// Review statuses reported to the webhook caller.
const (
	StatusRejected     = "rejected"
	StatusNoViolations = "no violations detected"
)
