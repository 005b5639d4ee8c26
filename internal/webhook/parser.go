package webhook

import (
	"fmt"

	"github-review-automation/internal/domain"

	"github.com/tidwall/gjson"
)

// Pull request actions that trigger the review workflow.
const (
	ActionOpened      = "opened"
	ActionSynchronize = "synchronize"
)

// ParsePullRequest extracts the PR reference and action from a pull_request
// event payload.
func ParsePullRequest(body []byte) (domain.PullRequestRef, string, error) {
	if !gjson.ValidBytes(body) {
		return domain.PullRequestRef{}, "", fmt.Errorf("invalid json payload")
	}

	pr := gjson.GetBytes(body, "pull_request")
	if !pr.Exists() {
		return domain.PullRequestRef{}, "", fmt.Errorf("payload has no pull_request")
	}

	ref := domain.PullRequestRef{
		Owner:   pr.Get("base.repo.owner.login").String(),
		Repo:    pr.Get("base.repo.name").String(),
		Number:  int(pr.Get("number").Int()),
		BaseRef: pr.Get("base.ref").String(),
	}
	if ref.Owner == "" || ref.Repo == "" || ref.Number == 0 {
		return domain.PullRequestRef{}, "", fmt.Errorf("payload missing pr identity fields")
	}

	return ref, gjson.GetBytes(body, "action").String(), nil
}

// ParseCheckRun extracts the check-run outcome and associated PR numbers
// from a check_run event payload.
func ParseCheckRun(body []byte) (*domain.CheckRunEvent, error) {
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("invalid json payload")
	}

	run := gjson.GetBytes(body, "check_run")
	if !run.Exists() {
		return nil, fmt.Errorf("payload has no check_run")
	}

	event := &domain.CheckRunEvent{
		Owner:      gjson.GetBytes(body, "repository.owner.login").String(),
		Repo:       gjson.GetBytes(body, "repository.name").String(),
		CheckRunID: run.Get("id").Int(),
		CheckName:  run.Get("name").String(),
		Status:     run.Get("status").String(),
		Conclusion: run.Get("conclusion").String(),
		HeadSHA:    run.Get("head_sha").String(),
		DetailsURL: run.Get("details_url").String(),
	}
	for _, pr := range run.Get("pull_requests.#.number").Array() {
		event.PRNumbers = append(event.PRNumbers, int(pr.Int()))
	}

	if event.Owner == "" || event.Repo == "" || event.CheckRunID == 0 {
		return nil, fmt.Errorf("payload missing check_run identity fields")
	}
	return event, nil
}
