package storage

import (
	"context"
	"strconv"
	"time"
)

// PRSummaryRecord holds one generated summary per pull request. The ID is a
// deterministic function of the PR number so reprocessing a PR overwrites
// the prior record (last-write-wins, no history).
type PRSummaryRecord struct {
	ID        string    `json:"id"` // "pr-<number>"
	PRNumber  int       `json:"pr_number"`
	Summary   string    `json:"summary"`
	Embedding []float64 `json:"embedding"`
	CreatedAt time.Time `json:"created_at"`
}

// RuleComment is one free-text review rule. The corpus is append-only;
// rules are immutable once created.
type RuleComment struct {
	ID        string    `json:"id"`
	Comment   string    `json:"comment"`
	CreatedAt time.Time `json:"created_at"`
}

// CheckResultRecord is one entry in the append-only check outcome log.
// Webhook redeliveries produce duplicate records with fresh ids; consumers
// treat the log as event history, not as deduplicated state.
type CheckResultRecord struct {
	ID         string    `json:"id"`
	CheckRunID int64     `json:"check_run_id"`
	CheckName  string    `json:"check_name"`
	Status     string    `json:"status"`
	Conclusion string    `json:"conclusion"`
	CommitSHA  string    `json:"commit_sha"`
	PRNumber   int       `json:"pr_number"`
	Timestamp  time.Time `json:"timestamp"`
	DetailsURL string    `json:"details_url"`
}

// SummaryID returns the deterministic record id for a PR number.
func SummaryID(prNumber int) string {
	return "pr-" + strconv.Itoa(prNumber)
}

// Store is the persistence façade over the three record kinds. Each call is
// independently consistent; there are no cross-collection transactions.
type Store interface {
	// UpsertSummary replaces any existing record with the same id.
	UpsertSummary(ctx context.Context, rec *PRSummaryRecord) error
	// ListSummaries returns all stored summaries, most recent first.
	ListSummaries(ctx context.Context) ([]*PRSummaryRecord, error)

	// CreateRuleComment appends a rule to the corpus.
	CreateRuleComment(ctx context.Context, rec *RuleComment) error
	// ListRuleComments returns the full rule corpus, oldest first.
	ListRuleComments(ctx context.Context) ([]*RuleComment, error)

	// CreateCheckResult appends one check outcome to the log.
	CreateCheckResult(ctx context.Context, rec *CheckResultRecord) error
	// HasSuccessfulCheck reports whether any recorded run for the commit
	// concluded with success. Zero matches is a normal outcome.
	HasSuccessfulCheck(ctx context.Context, commitSHA string) (bool, error)
	// ListCheckResultsByPR returns the outcome log for one PR, newest first.
	ListCheckResultsByPR(ctx context.Context, prNumber int) ([]*CheckResultRecord, error)

	// Ping reports whether the backing database is reachable.
	Ping(ctx context.Context) error
	Close() error
}
