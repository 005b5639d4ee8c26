package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// WebhookRequests counts incoming webhook deliveries, labeled by outcome.
	WebhookRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "review_webhook_requests_total",
		Help: "The total number of received webhook deliveries",
	}, []string{"status"}) // status: accepted, invalid_signature, ignored_event, error, dropped_concurrency

	// ReviewsTotal counts PR review workflow runs, labeled by result.
	ReviewsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "review_pr_reviews_total",
		Help: "The total number of PR review workflow runs",
	}, []string{"result"}) // result: rejected, clean, failed

	// TriageTotal counts per-PR check-failure triage runs.
	TriageTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "review_check_triage_total",
		Help: "The total number of per-PR check-failure triage runs",
	}, []string{"result"}) // result: success, failed

	// WorkflowDuration measures end-to-end workflow latency.
	WorkflowDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "review_workflow_duration_seconds",
		Help:    "Time taken to run a webhook-triggered workflow",
		Buckets: prometheus.DefBuckets,
	}, []string{"workflow"}) // workflow: pr_review, check_triage

	// ReviewPostFailures counts failed review posts to GitHub.
	ReviewPostFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "review_post_failures_total",
		Help: "Total number of failed review posts to GitHub",
	}, []string{"reason"})
)
