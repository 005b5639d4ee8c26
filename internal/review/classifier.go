package review

import "strings"

// Verdict is the pass/fail decision derived from generated analysis text.
type Verdict int

const (
	Pass Verdict = iota
	Fail
)

// Classifier turns free-form analysis text into a review verdict. Keeping
// this pluggable lets the keyword heuristic be swapped for structured model
// output without touching workflow control flow.
type Classifier interface {
	Classify(analysis string) Verdict
}

// KeywordClassifier fails an analysis when it contains any of the configured
// substrings, case-insensitively. This is a crude stand-in for structured
// verdicts and is known to misclassify; see DESIGN.md.
type KeywordClassifier struct {
	keywords []string
}

// NewKeywordClassifier returns a classifier with the default trigger
// keywords used by the review workflow.
func NewKeywordClassifier() *KeywordClassifier {
	return &KeywordClassifier{keywords: []string{"violation", "too long"}}
}

func (c *KeywordClassifier) Classify(analysis string) Verdict {
	lowered := strings.ToLower(analysis)
	for _, kw := range c.keywords {
		if strings.Contains(lowered, kw) {
			return Fail
		}
	}
	return Pass
}
