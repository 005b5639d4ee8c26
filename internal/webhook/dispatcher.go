package webhook

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github-review-automation/internal/config"
	"github-review-automation/internal/domain"
	"github-review-automation/internal/metrics"
	"github-review-automation/internal/types"
)

// ReviewRunner is the PR review workflow as the dispatcher sees it.
type ReviewRunner interface {
	Run(ctx context.Context, ref domain.PullRequestRef) (*domain.ReviewResult, error)
}

// TriageRunner is the check-failure triage workflow as the dispatcher sees it.
type TriageRunner interface {
	Handle(ctx context.Context, event *domain.CheckRunEvent) error
}

// Dispatcher is the single inbound webhook entry point. It verifies the
// delivery signature, demultiplexes on the event type header, and invokes
// the matching workflow synchronously so the workflow's outcome can be
// returned in the response body.
type Dispatcher struct {
	cfg    *config.Config
	review ReviewRunner
	triage TriageRunner
	sem    chan struct{} // bounds concurrent workflow runs
}

func NewDispatcher(cfg *config.Config, review ReviewRunner, triage TriageRunner) *Dispatcher {
	return &Dispatcher{
		cfg:    cfg,
		review: review,
		triage: triage,
		sem:    make(chan struct{}, cfg.Server.ConcurrencyLimit),
	}
}

func (d *Dispatcher) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, d.cfg.Server.MaxBodySize)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		slog.Warn("read body failed", "error", err)
		http.Error(w, "Error reading request body", http.StatusBadRequest)
		return
	}

	// The signature gate runs before anything else; a failed check means no
	// further work of any kind.
	signature := r.Header.Get("X-Hub-Signature-256")
	if !VerifySignature(body, signature, d.cfg.Server.WebhookSecret) {
		slog.Warn("webhook rejected", "error", types.ErrBadSignature)
		metrics.WebhookRequests.WithLabelValues("invalid_signature").Inc()
		writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "Bad signature"})
		return
	}

	select {
	case d.sem <- struct{}{}:
		defer func() { <-d.sem }()
	default:
		slog.Warn("concurrency limit, delivery rejected")
		metrics.WebhookRequests.WithLabelValues("dropped_concurrency").Inc()
		http.Error(w, "Server busy, please retry later", http.StatusTooManyRequests)
		return
	}

	eventType := r.Header.Get("X-GitHub-Event")
	switch eventType {
	case "pull_request":
		d.handlePullRequest(w, r, body)
	case "check_run":
		d.handleCheckRun(w, r, body)
	default:
		slog.Debug("ignoring event", "type", eventType)
		metrics.WebhookRequests.WithLabelValues("ignored_event").Inc()
		writeJSON(w, http.StatusOK, map[string]string{"status": "ignored"})
	}
}

func (d *Dispatcher) handlePullRequest(w http.ResponseWriter, r *http.Request, body []byte) {
	ref, action, err := ParsePullRequest(body)
	if err != nil {
		slog.Warn("pull_request parse failed", "error", err)
		metrics.WebhookRequests.WithLabelValues("error").Inc()
		writeJSON(w, http.StatusBadRequest, map[string]string{"detail": err.Error()})
		return
	}

	if action != ActionOpened && action != ActionSynchronize {
		slog.Info("ignoring pull_request action", "action", action, "number", ref.Number)
		metrics.WebhookRequests.WithLabelValues("ignored_event").Inc()
		writeJSON(w, http.StatusOK, map[string]string{"status": "ignored"})
		return
	}

	metrics.WebhookRequests.WithLabelValues("accepted").Inc()
	result, err := d.review.Run(r.Context(), ref)
	if err != nil {
		slog.Error("pr review workflow failed", "number", ref.Number,
			"upstream", types.IsUpstream(err), "error", err)
		metrics.WebhookRequests.WithLabelValues("error").Inc()
		writeJSON(w, http.StatusInternalServerError, map[string]string{"detail": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (d *Dispatcher) handleCheckRun(w http.ResponseWriter, r *http.Request, body []byte) {
	event, err := ParseCheckRun(body)
	if err != nil {
		slog.Warn("check_run parse failed", "error", err)
		metrics.WebhookRequests.WithLabelValues("error").Inc()
		writeJSON(w, http.StatusBadRequest, map[string]string{"detail": err.Error()})
		return
	}

	metrics.WebhookRequests.WithLabelValues("accepted").Inc()
	if err := d.triage.Handle(r.Context(), event); err != nil {
		slog.Error("check triage failed", "check", event.CheckName,
			"upstream", types.IsUpstream(err), "error", err)
		metrics.WebhookRequests.WithLabelValues("error").Inc()
		writeJSON(w, http.StatusInternalServerError, map[string]string{"detail": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("write response failed", "error", err)
	}
}
