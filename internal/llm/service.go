package llm

import (
	"context"
	"fmt"
	"strings"
)

const (
	summarizePrompt = "Summarize this Git diff concisely."

	analyzeNoRulesNote = "No specific review rules have been recorded; " +
		"apply general code review judgment only."

	explainFailurePrompt = `You are a CI failure analyst. Given a unified diff and the CI log output
for a failed check, respond with:
1. The identified issue.
2. How the diff correlates with the log output.
3. An actionable fix, with file and line references where possible.`
)

// Service exposes the review-domain operations on top of a Client. Prompts
// are assembled here; the Client stays a plain text/embedding transport.
type Service struct {
	client Client
}

func NewService(client Client) *Service {
	return &Service{client: client}
}

// Summarize produces a concise prose summary of a unified diff.
func (s *Service) Summarize(ctx context.Context, diff string) (string, error) {
	return s.client.Complete(ctx, summarizePrompt, diff)
}

// Embed returns the embedding vector for text.
func (s *Service) Embed(ctx context.Context, text string) ([]float64, error) {
	return s.client.Embed(ctx, text)
}

// AnalyzeAgainstRules checks a diff against the stored review-rule corpus.
// An empty corpus is valid; the prompt then asks for general judgment.
func (s *Service) AnalyzeAgainstRules(ctx context.Context, diff string, rules []string) (string, error) {
	var sb strings.Builder
	sb.WriteString("Review this Git diff against the team's review rules. ")
	sb.WriteString("For each rule that is violated, state \"Violation:\" followed by the rule and an explanation.\n\n")
	if len(rules) == 0 {
		sb.WriteString(analyzeNoRulesNote)
	} else {
		sb.WriteString("Review rules:\n")
		for _, rule := range rules {
			sb.WriteString("- ")
			sb.WriteString(rule)
			sb.WriteString("\n")
		}
	}
	return s.client.Complete(ctx, sb.String(), diff)
}

// ExplainCheckFailure asks for a structured explanation of a failing check,
// correlating the diff since the last good commit with the CI logs.
func (s *Service) ExplainCheckFailure(ctx context.Context, diff, logs, checkName string) (string, error) {
	input := fmt.Sprintf("Failed check: %s\n\n--- Diff since last passing commit ---\n%s\n\n--- CI logs ---\n%s",
		checkName, diff, logs)
	return s.client.Complete(ctx, explainFailurePrompt, input)
}
