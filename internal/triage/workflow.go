package triage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github-review-automation/internal/domain"
	"github-review-automation/internal/githubapi"
	"github-review-automation/internal/llm"
	"github-review-automation/internal/metrics"
	"github-review-automation/internal/storage"

	"golang.org/x/sync/errgroup"
)

// maxConcurrentTriage bounds parallel per-PR triage sub-runs within one
// check_run delivery. Sub-runs share no mutable state.
const maxConcurrentTriage = 4

// Workflow handles check_run webhook deliveries. Every delivery is recorded
// in the check outcome log; failing conclusions additionally trigger a
// per-PR failure triage that correlates the failing commit against the last
// known-good commit and posts an explanation as a change-request review.
type Workflow struct {
	github githubapi.Client
	models *llm.Service
	store  storage.Store
}

func NewWorkflow(github githubapi.Client, models *llm.Service, store storage.Store) *Workflow {
	return &Workflow{github: github, models: models, store: store}
}

// Handle processes one check_run event. Recording the outcome happens before
// and independently of any triage. Each associated PR is triaged in its own
// goroutine; one PR's failure never aborts another's triage. The joined
// per-PR errors are returned for observability.
func (w *Workflow) Handle(ctx context.Context, event *domain.CheckRunEvent) error {
	start := time.Now()
	defer func() {
		metrics.WorkflowDuration.WithLabelValues("check_triage").Observe(time.Since(start).Seconds())
	}()

	for _, prNumber := range event.PRNumbers {
		rec := &storage.CheckResultRecord{
			CheckRunID: event.CheckRunID,
			CheckName:  event.CheckName,
			Status:     event.Status,
			Conclusion: event.Conclusion,
			CommitSHA:  event.HeadSHA,
			PRNumber:   prNumber,
			Timestamp:  time.Now().UTC(),
			DetailsURL: event.DetailsURL,
		}
		if err := w.store.CreateCheckResult(ctx, rec); err != nil {
			return fmt.Errorf("record check result for pr %d: %w", prNumber, err)
		}
	}
	slog.Info("check outcome recorded",
		"check", event.CheckName, "conclusion", event.Conclusion, "prs", len(event.PRNumbers))

	if !event.Failed() {
		return nil
	}

	prErrs := make([]error, len(event.PRNumbers))
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentTriage)
	for i, prNumber := range event.PRNumbers {
		g.Go(func() error {
			if err := w.triagePR(gCtx, event, prNumber); err != nil {
				slog.Error("triage failed", "pr", prNumber, "error", err)
				metrics.TriageTotal.WithLabelValues("failed").Inc()
				prErrs[i] = fmt.Errorf("pr %d: %w", prNumber, err)
				return nil // other PRs continue
			}
			metrics.TriageTotal.WithLabelValues("success").Inc()
			return nil
		})
	}
	g.Wait()

	return errors.Join(prErrs...)
}

// triagePR runs failure triage for a single PR: pick a diff baseline, fetch
// the comparison diff and the CI logs, ask the model for an explanation, and
// post it as a change-request review.
func (w *Workflow) triagePR(ctx context.Context, event *domain.CheckRunEvent, prNumber int) error {
	baseline, err := w.findBaseline(ctx, event, prNumber)
	if err != nil {
		return err
	}

	diff, err := w.github.CompareDiff(ctx, event.Owner, event.Repo, baseline, event.HeadSHA)
	if err != nil {
		return fmt.Errorf("compare %s...%s: %w", baseline, event.HeadSHA, err)
	}

	detail, err := w.github.GetCheckRun(ctx, event.Owner, event.Repo, event.CheckRunID)
	if err != nil {
		return fmt.Errorf("fetch check run: %w", err)
	}
	logs := detail.Summary
	if detail.Text != "" {
		logs += "\n" + detail.Text
	}

	explanation, err := w.models.ExplainCheckFailure(ctx, diff, logs, event.CheckName)
	if err != nil {
		return fmt.Errorf("explain failure: %w", err)
	}

	body := composeReview(event, detail, baseline, explanation)
	if err := w.github.CreateReview(ctx, event.Owner, event.Repo, prNumber,
		githubapi.ReviewRequestChanges, body); err != nil {
		metrics.ReviewPostFailures.WithLabelValues("check_triage").Inc()
		return fmt.Errorf("post triage review: %w", err)
	}

	slog.Info("triage review posted", "pr", prNumber, "baseline", baseline, "failing", event.HeadSHA)
	return nil
}

// findBaseline picks the diff base for failure analysis: the commit closest
// to the failing one with a recorded successful check. The commit list is
// chronological oldest-first, so the scan walks it backwards and stops at
// the first hit. With no recorded success anywhere in the PR's history, the
// PR's base branch ref is the baseline.
func (w *Workflow) findBaseline(ctx context.Context, event *domain.CheckRunEvent, prNumber int) (string, error) {
	shas, err := w.github.ListCommits(ctx, event.Owner, event.Repo, prNumber)
	if err != nil {
		return "", fmt.Errorf("list commits: %w", err)
	}

	for i := len(shas) - 1; i >= 0; i-- {
		if shas[i] == event.HeadSHA {
			continue // the failing commit itself is never its own baseline
		}
		ok, err := w.store.HasSuccessfulCheck(ctx, shas[i])
		if err != nil {
			return "", fmt.Errorf("check history for %s: %w", shas[i], err)
		}
		if ok {
			return shas[i], nil
		}
	}

	// No known-good commit: diff against the branch the PR targets.
	info, err := w.github.GetPullRequest(ctx, event.Owner, event.Repo, prNumber)
	if err != nil {
		return "", fmt.Errorf("fetch pr for base ref: %w", err)
	}
	return info.BaseRef, nil
}

func composeReview(event *domain.CheckRunEvent, detail *githubapi.CheckRunDetail, baseline, explanation string) string {
	compareURL := fmt.Sprintf("https://github.com/%s/%s/compare/%s...%s",
		event.Owner, event.Repo, baseline, event.HeadSHA)
	return fmt.Sprintf(`### CI failure triage: %s

Failing commit: `+"`%s`"+`

%s

[View diff since last passing commit](%s) | [Check run details](%s)`,
		event.CheckName, shortSHA(event.HeadSHA), explanation, compareURL, detail.HTMLURL)
}

func shortSHA(sha string) string {
	if len(sha) > 7 {
		return sha[:7]
	}
	return sha
}
