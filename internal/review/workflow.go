package review

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github-review-automation/internal/domain"
	"github-review-automation/internal/githubapi"
	"github-review-automation/internal/llm"
	"github-review-automation/internal/metrics"
	"github-review-automation/internal/storage"
)

// Workflow runs the PR review pipeline for one qualifying webhook delivery:
// fetch diff, summarize, embed, persist, analyze against the rule corpus,
// and post a change request when the classifier fails the analysis.
//
// Any step's error aborts the remainder of the run; side effects already
// committed (a persisted summary, for instance) are not rolled back.
type Workflow struct {
	github     githubapi.Client
	models     *llm.Service
	store      storage.Store
	classifier Classifier
}

func NewWorkflow(github githubapi.Client, models *llm.Service, store storage.Store, classifier Classifier) *Workflow {
	return &Workflow{
		github:     github,
		models:     models,
		store:      store,
		classifier: classifier,
	}
}

// Run processes one pull request event.
func (w *Workflow) Run(ctx context.Context, ref domain.PullRequestRef) (*domain.ReviewResult, error) {
	start := time.Now()
	defer func() {
		metrics.WorkflowDuration.WithLabelValues("pr_review").Observe(time.Since(start).Seconds())
	}()

	slog.Info("reviewing pr", "owner", ref.Owner, "repo", ref.Repo, "number", ref.Number)

	diff, err := w.github.GetDiff(ctx, ref.Owner, ref.Repo, ref.Number)
	if err != nil {
		metrics.ReviewsTotal.WithLabelValues("failed").Inc()
		return nil, fmt.Errorf("fetch diff: %w", err)
	}

	summary, err := w.models.Summarize(ctx, diff)
	if err != nil {
		metrics.ReviewsTotal.WithLabelValues("failed").Inc()
		return nil, fmt.Errorf("summarize: %w", err)
	}

	embedding, err := w.models.Embed(ctx, summary)
	if err != nil {
		metrics.ReviewsTotal.WithLabelValues("failed").Inc()
		return nil, fmt.Errorf("embed summary: %w", err)
	}

	record := &storage.PRSummaryRecord{
		ID:        storage.SummaryID(ref.Number),
		PRNumber:  ref.Number,
		Summary:   summary,
		Embedding: embedding,
		CreatedAt: time.Now().UTC(),
	}
	if err := w.store.UpsertSummary(ctx, record); err != nil {
		metrics.ReviewsTotal.WithLabelValues("failed").Inc()
		return nil, fmt.Errorf("persist summary: %w", err)
	}
	slog.Debug("summary stored", "id", record.ID)

	rules, err := w.store.ListRuleComments(ctx)
	if err != nil {
		metrics.ReviewsTotal.WithLabelValues("failed").Inc()
		return nil, fmt.Errorf("load rule corpus: %w", err)
	}
	ruleTexts := make([]string, 0, len(rules))
	for _, r := range rules {
		ruleTexts = append(ruleTexts, r.Comment)
	}

	analysis, err := w.models.AnalyzeAgainstRules(ctx, diff, ruleTexts)
	if err != nil {
		metrics.ReviewsTotal.WithLabelValues("failed").Inc()
		return nil, fmt.Errorf("analyze diff: %w", err)
	}

	result := &domain.ReviewResult{Analysis: analysis, Summary: summary}

	if w.classifier.Classify(analysis) == Fail {
		if err := w.github.CreateReview(ctx, ref.Owner, ref.Repo, ref.Number,
			githubapi.ReviewRequestChanges, analysis); err != nil {
			metrics.ReviewsTotal.WithLabelValues("failed").Inc()
			metrics.ReviewPostFailures.WithLabelValues("pr_review").Inc()
			return nil, fmt.Errorf("post change request: %w", err)
		}
		result.Status = domain.StatusRejected
		metrics.ReviewsTotal.WithLabelValues("rejected").Inc()
		slog.Info("changes requested", "number", ref.Number)
		return result, nil
	}

	result.Status = domain.StatusNoViolations
	metrics.ReviewsTotal.WithLabelValues("clean").Inc()
	return result, nil
}
