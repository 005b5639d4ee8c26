//go:build e2e

package e2e

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/hex"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github-review-automation/internal/api"
	"github-review-automation/internal/config"
	"github-review-automation/internal/githubapi"
	"github-review-automation/internal/llm"
	"github-review-automation/internal/review"
	"github-review-automation/internal/storage"
	"github-review-automation/internal/triage"
	"github-review-automation/internal/webhook"
)

const (
	e2eSecret = "e2e-webhook-secret"
	e2eOwner  = "octocat"
	e2eRepo   = "hello"
)

// fakeGitHub simulates the subset of the GitHub REST API the service talks
// to. Paths are served under /api/v3/ because the client is pointed at the
// test server via its enterprise base URL.
type fakeGitHub struct {
	server *httptest.Server

	mu      sync.Mutex
	reviews []map[string]any
	diff    string
	commits []string
}

func newFakeGitHub(t *testing.T) *fakeGitHub {
	t.Helper()
	f := &fakeGitHub{
		diff:    "diff --git a/main.go b/main.go\n+func main() {}\n",
		commits: []string{"c1c1c1c1c1", "c2c2c2c2c2", "c3c3c3c3c3", "c4c4c4c4c4"},
	}

	mux := http.NewServeMux()
	prefix := fmt.Sprintf("/api/v3/repos/%s/%s", e2eOwner, e2eRepo)

	mux.HandleFunc("GET "+prefix+"/installation", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"id": 77}`)
	})
	mux.HandleFunc("POST /api/v3/app/installations/77/access_tokens", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		fmt.Fprintf(w, `{"token": "ghs_e2e", "expires_at": %q}`, time.Now().Add(time.Hour).Format(time.RFC3339))
	})
	mux.HandleFunc("GET "+prefix+"/pulls/42", func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.Header.Get("Accept"), "diff") {
			fmt.Fprint(w, f.diff)
			return
		}
		fmt.Fprint(w, `{"number": 42, "base": {"ref": "main"}, "head": {"sha": "c4c4c4c4c4"}}`)
	})
	mux.HandleFunc("GET "+prefix+"/pulls/42/commits", func(w http.ResponseWriter, r *http.Request) {
		var items []string
		for _, sha := range f.commits {
			items = append(items, fmt.Sprintf(`{"sha": %q}`, sha))
		}
		fmt.Fprint(w, "["+strings.Join(items, ",")+"]")
	})
	mux.HandleFunc("GET "+prefix+"/compare/{basehead}", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, "diff for %s\n", r.PathValue("basehead"))
	})
	mux.HandleFunc("GET "+prefix+"/check-runs/555", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{
			"id": 555,
			"name": "unit-tests",
			"html_url": "https://github.com/octocat/hello/runs/555",
			"output": {"summary": "1 test failed", "text": "--- FAIL: TestParse"}
		}`)
	})
	mux.HandleFunc("POST "+prefix+"/pulls/42/reviews", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		f.mu.Lock()
		f.reviews = append(f.reviews, body)
		f.mu.Unlock()
		fmt.Fprint(w, `{"id": 1}`)
	})

	f.server = httptest.NewServer(mux)
	t.Cleanup(f.server.Close)
	return f
}

func (f *fakeGitHub) postedReviews() []map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]map[string]any(nil), f.reviews...)
}

// fakeOpenAI simulates the chat completion and embedding endpoints. The
// chat response is routed on the system message so each workflow step gets
// a distinct, assertable answer.
type fakeOpenAI struct {
	server *httptest.Server

	mu       sync.Mutex
	analysis string
}

func newFakeOpenAI(t *testing.T) *fakeOpenAI {
	t.Helper()
	f := &fakeOpenAI{analysis: "No issues found."}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /chat/completions", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Messages []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		system := req.Messages[0].Content
		var content string
		switch {
		case strings.Contains(system, "review rules"):
			f.mu.Lock()
			content = f.analysis
			f.mu.Unlock()
		case strings.Contains(system, "CI failure analyst"):
			content = "The new Parse call lacks an error check, which matches the failing assertion."
		default:
			content = "Adds a main entry point."
		}

		resp := map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"role": "assistant", "content": content}},
			},
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	})
	mux.HandleFunc("POST /embeddings", func(w http.ResponseWriter, r *http.Request) {
		resp := map[string]any{
			"object": "list",
			"data": []map[string]any{
				{"object": "embedding", "index": 0, "embedding": []float64{0.1, 0.2, 0.3}},
			},
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	})

	f.server = httptest.NewServer(mux)
	t.Cleanup(f.server.Close)
	return f
}

func (f *fakeOpenAI) setAnalysis(text string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.analysis = text
}

type app struct {
	server *httptest.Server
	store  storage.Store
	github *fakeGitHub
	openai *fakeOpenAI
}

func newApp(t *testing.T) *app {
	t.Helper()

	gh := newFakeGitHub(t)
	oai := newFakeOpenAI(t)

	cfg := &config.Config{}
	cfg.Server.WebhookSecret = e2eSecret
	cfg.Server.ConcurrencyLimit = 4
	cfg.Server.MaxBodySize = config.DefaultMaxBodySize
	cfg.GitHub.AppID = "12345"
	cfg.GitHub.PrivateKeyPath = writeTestKey(t)
	cfg.GitHub.Owner = e2eOwner
	cfg.GitHub.Repo = e2eRepo
	cfg.GitHub.BaseURL = gh.server.URL
	cfg.GitHub.Timeout = 5 * time.Second
	cfg.LLM.Backend = "openai"
	cfg.LLM.Model = "gpt-4o"
	cfg.LLM.EmbeddingModel = "text-embedding-3-small"
	cfg.LLM.Endpoint = oai.server.URL
	cfg.LLM.APIKey = "sk-e2e"
	cfg.LLM.Timeout = 5 * time.Second

	tokens, err := githubapi.NewTokenProvider(cfg.GitHub.AppID, cfg.GitHub.PrivateKeyPath,
		cfg.GitHub.BaseURL, cfg.GitHub.Timeout)
	if err != nil {
		t.Fatalf("init token provider: %v", err)
	}
	github := githubapi.NewService(tokens)

	llmClient, err := llm.NewClient(cfg)
	if err != nil {
		t.Fatalf("init llm client: %v", err)
	}
	models := llm.NewService(llmClient)

	store, err := storage.NewSQLiteStore(filepath.Join(t.TempDir(), "e2e.db"))
	if err != nil {
		t.Fatalf("init store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	mux := http.NewServeMux()
	mux.Handle("/webhook", webhook.NewDispatcher(cfg,
		review.NewWorkflow(github, models, store, review.NewKeywordClassifier()),
		triage.NewWorkflow(github, models, store)))
	api.NewHandler(cfg, store, github).Register(mux)

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	return &app{server: server, store: store, github: gh, openai: oai}
}

func writeTestKey(t *testing.T) string {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	pemBytes := pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(key),
	})
	path := filepath.Join(t.TempDir(), "app.pem")
	if err := os.WriteFile(path, pemBytes, 0o600); err != nil {
		t.Fatalf("write key: %v", err)
	}
	return path
}

func sign(body []byte) string {
	mac := hmac.New(sha256.New, []byte(e2eSecret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func (a *app) deliver(t *testing.T, eventType, payload string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, a.server.URL+"/webhook", strings.NewReader(payload))
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	req.Header.Set("X-GitHub-Event", eventType)
	req.Header.Set("X-Hub-Signature-256", sign([]byte(payload)))
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("deliver webhook: %v", err)
	}
	return resp
}

const prOpenedPayload = `{
	"action": "opened",
	"pull_request": {
		"number": 42,
		"base": {
			"ref": "main",
			"repo": {"name": "hello", "owner": {"login": "octocat"}}
		}
	}
}`

const checkRunFailedPayload = `{
	"action": "completed",
	"repository": {"name": "hello", "owner": {"login": "octocat"}},
	"check_run": {
		"id": 555,
		"name": "unit-tests",
		"status": "completed",
		"conclusion": "failure",
		"head_sha": "c4c4c4c4c4",
		"details_url": "https://github.com/octocat/hello/runs/555",
		"pull_requests": [{"number": 42}]
	}
}`

func TestE2E_PullRequestReviewFlow(t *testing.T) {
	a := newApp(t)

	// With an empty rule corpus the analysis comes back clean: a summary is
	// stored but no review is posted.
	resp := a.deliver(t, "pull_request", prOpenedPayload)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var result struct {
		Status   string `json:"status"`
		Analysis string `json:"analysis"`
		Summary  string `json:"summary"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if result.Status != "no violations detected" {
		t.Errorf("expected clean verdict, got %q", result.Status)
	}
	if result.Summary != "Adds a main entry point." {
		t.Errorf("unexpected summary: %q", result.Summary)
	}
	if reviews := a.github.postedReviews(); len(reviews) != 0 {
		t.Errorf("no review should be posted for a clean PR, got %v", reviews)
	}

	summaries, err := a.store.ListSummaries(context.Background())
	if err != nil {
		t.Fatalf("list summaries: %v", err)
	}
	if len(summaries) != 1 || summaries[0].ID != "pr-42" {
		t.Fatalf("expected one summary with id pr-42, got %+v", summaries)
	}
	if len(summaries[0].Embedding) != 3 {
		t.Errorf("expected stored embedding, got %v", summaries[0].Embedding)
	}

	// Store a rule, make the analysis flag a violation, redeliver. Now the
	// verdict flips and a REQUEST_CHANGES review carries the analysis.
	ruleBody := `{"comment": "Functions must check errors"}`
	ruleResp, err := http.Post(a.server.URL+"/store-comment", "application/json", strings.NewReader(ruleBody))
	if err != nil {
		t.Fatalf("store comment: %v", err)
	}
	ruleResp.Body.Close()
	if ruleResp.StatusCode != http.StatusOK {
		t.Fatalf("store comment: expected 200, got %d", ruleResp.StatusCode)
	}

	a.openai.setAnalysis("Violation: Functions must check errors. The new Parse call ignores its error.")

	resp2 := a.deliver(t, "pull_request", prOpenedPayload)
	defer resp2.Body.Close()
	if err := json.NewDecoder(resp2.Body).Decode(&result); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if result.Status != "rejected" {
		t.Errorf("expected rejected verdict, got %q", result.Status)
	}

	reviews := a.github.postedReviews()
	if len(reviews) != 1 {
		t.Fatalf("expected one review, got %d", len(reviews))
	}
	if reviews[0]["event"] != "REQUEST_CHANGES" {
		t.Errorf("expected REQUEST_CHANGES, got %v", reviews[0]["event"])
	}
	if body, _ := reviews[0]["body"].(string); !strings.Contains(body, "Violation: Functions must check errors") {
		t.Errorf("review body must carry the full analysis, got %q", body)
	}

	// Reprocessing upserted rather than duplicated the summary.
	summaries, err = a.store.ListSummaries(context.Background())
	if err != nil {
		t.Fatalf("list summaries: %v", err)
	}
	if len(summaries) != 1 {
		t.Errorf("expected summary upsert, got %d records", len(summaries))
	}
}

func TestE2E_CheckFailureTriage(t *testing.T) {
	a := newApp(t)
	ctx := context.Background()

	// Record a prior green run on c2 so the baseline scan lands there
	// instead of falling back to the base branch.
	err := a.store.CreateCheckResult(ctx, &storage.CheckResultRecord{
		CheckRunID: 500,
		CheckName:  "unit-tests",
		Status:     "completed",
		Conclusion: "success",
		CommitSHA:  "c2c2c2c2c2",
		PRNumber:   42,
	})
	if err != nil {
		t.Fatalf("seed check result: %v", err)
	}

	resp := a.deliver(t, "check_run", checkRunFailedPayload)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	reviews := a.github.postedReviews()
	if len(reviews) != 1 {
		t.Fatalf("expected one triage review, got %d", len(reviews))
	}
	body, _ := reviews[0]["body"].(string)
	if reviews[0]["event"] != "REQUEST_CHANGES" {
		t.Errorf("expected REQUEST_CHANGES, got %v", reviews[0]["event"])
	}
	if !strings.Contains(body, "unit-tests") || !strings.Contains(body, "`c4c4c4c`") {
		t.Errorf("review must name the check and failing commit, got %q", body)
	}
	if !strings.Contains(body, "compare/c2c2c2c2c2...c4c4c4c4c4") {
		t.Errorf("review must link the comparison against the last green commit, got %q", body)
	}
	if !strings.Contains(body, "lacks an error check") {
		t.Errorf("review must carry the model explanation, got %q", body)
	}

	// The failing outcome itself was appended to the check log.
	results, err := a.store.ListCheckResultsByPR(ctx, 42)
	if err != nil {
		t.Fatalf("list check results: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected seeded success plus recorded failure, got %d", len(results))
	}
	if results[0].Conclusion != "failure" || results[0].CommitSHA != "c4c4c4c4c4" {
		t.Errorf("newest record should be the failure, got %+v", results[0])
	}
}
