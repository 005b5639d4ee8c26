package githubapi

import (
	"context"

	"github-review-automation/internal/types"

	"github.com/google/go-github/v84/github"
)

// PullRequestInfo is the PR metadata the workflows need.
type PullRequestInfo struct {
	BaseRef string
	HeadSHA string
	DiffURL string
}

// CheckRunDetail is the check-run output used as CI log context.
type CheckRunDetail struct {
	Name    string
	HTMLURL string
	Summary string
	Text    string
}

// Review event values accepted by the reviews endpoint.
const (
	ReviewApprove        = "APPROVE"
	ReviewRequestChanges = "REQUEST_CHANGES"
)

// Client is the typed façade over the GitHub REST operations the workflows
// use. Non-2xx responses surface as errors; callers do not retry.
type Client interface {
	GetPullRequest(ctx context.Context, owner, repo string, number int) (*PullRequestInfo, error)
	GetDiff(ctx context.Context, owner, repo string, number int) (string, error)
	GetCheckRun(ctx context.Context, owner, repo string, checkRunID int64) (*CheckRunDetail, error)
	// ListCommits returns the PR's commit SHAs in the API's chronological
	// order, oldest first.
	ListCommits(ctx context.Context, owner, repo string, number int) ([]string, error)
	// CompareDiff returns the unified diff between two refs (base...head).
	CompareDiff(ctx context.Context, owner, repo, base, head string) (string, error)
	CreateReview(ctx context.Context, owner, repo string, number int, event, body string) error
}

// Service implements Client with per-call installation-token authentication.
type Service struct {
	tokens *TokenProvider
}

func NewService(tokens *TokenProvider) *Service {
	return &Service{tokens: tokens}
}

func (s *Service) GetPullRequest(ctx context.Context, owner, repo string, number int) (*PullRequestInfo, error) {
	gh, err := s.tokens.InstallationClient(ctx, owner, repo)
	if err != nil {
		return nil, err
	}
	pr, _, err := gh.PullRequests.Get(ctx, owner, repo, number)
	if err != nil {
		return nil, types.NewUpstreamError("github", "get pull request", err)
	}
	return &PullRequestInfo{
		BaseRef: pr.GetBase().GetRef(),
		HeadSHA: pr.GetHead().GetSHA(),
		DiffURL: pr.GetDiffURL(),
	}, nil
}

func (s *Service) GetDiff(ctx context.Context, owner, repo string, number int) (string, error) {
	gh, err := s.tokens.InstallationClient(ctx, owner, repo)
	if err != nil {
		return "", err
	}
	diff, _, err := gh.PullRequests.GetRaw(ctx, owner, repo, number, github.RawOptions{Type: github.Diff})
	if err != nil {
		return "", types.NewUpstreamError("github", "get pull request diff", err)
	}
	return diff, nil
}

func (s *Service) GetCheckRun(ctx context.Context, owner, repo string, checkRunID int64) (*CheckRunDetail, error) {
	gh, err := s.tokens.InstallationClient(ctx, owner, repo)
	if err != nil {
		return nil, err
	}
	run, _, err := gh.Checks.GetCheckRun(ctx, owner, repo, checkRunID)
	if err != nil {
		return nil, types.NewUpstreamError("github", "get check run", err)
	}
	return &CheckRunDetail{
		Name:    run.GetName(),
		HTMLURL: run.GetHTMLURL(),
		Summary: run.GetOutput().GetSummary(),
		Text:    run.GetOutput().GetText(),
	}, nil
}

func (s *Service) ListCommits(ctx context.Context, owner, repo string, number int) ([]string, error) {
	gh, err := s.tokens.InstallationClient(ctx, owner, repo)
	if err != nil {
		return nil, err
	}

	var shas []string
	opts := &github.ListOptions{PerPage: 100}
	for {
		commits, resp, err := gh.PullRequests.ListCommits(ctx, owner, repo, number, opts)
		if err != nil {
			return nil, types.NewUpstreamError("github", "list pr commits", err)
		}
		for _, c := range commits {
			shas = append(shas, c.GetSHA())
		}
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	return shas, nil
}

func (s *Service) CompareDiff(ctx context.Context, owner, repo, base, head string) (string, error) {
	gh, err := s.tokens.InstallationClient(ctx, owner, repo)
	if err != nil {
		return "", err
	}
	diff, _, err := gh.Repositories.CompareCommitsRaw(ctx, owner, repo, base, head, github.RawOptions{Type: github.Diff})
	if err != nil {
		return "", types.NewUpstreamError("github", "compare commits", err)
	}
	return diff, nil
}

func (s *Service) CreateReview(ctx context.Context, owner, repo string, number int, event, body string) error {
	gh, err := s.tokens.InstallationClient(ctx, owner, repo)
	if err != nil {
		return err
	}
	review := &github.PullRequestReviewRequest{Event: github.Ptr(event)}
	if body != "" {
		review.Body = github.Ptr(body)
	}
	if _, _, err := gh.PullRequests.CreateReview(ctx, owner, repo, number, review); err != nil {
		return types.NewUpstreamError("github", "create review", err)
	}
	return nil
}
