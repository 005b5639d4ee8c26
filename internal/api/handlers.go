package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github-review-automation/internal/config"
	"github-review-automation/internal/githubapi"
	"github-review-automation/internal/storage"
)

// rejectReviewBody is posted verbatim with every manual rejection.
const rejectReviewBody = "Changes needed."

// Handler serves the dashboard REST surface: stored summaries, the review
// rule corpus, and manual approve/reject actions against the configured
// repository.
type Handler struct {
	cfg    *config.Config
	store  storage.Store
	github githubapi.Client
}

func NewHandler(cfg *config.Config, store storage.Store, github githubapi.Client) *Handler {
	return &Handler{cfg: cfg, store: store, github: github}
}

// Register wires the REST routes onto the mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /pr-summaries", h.listSummaries)
	mux.HandleFunc("POST /store-comment", h.storeComment)
	mux.HandleFunc("GET /review-comments", h.listComments)
	mux.HandleFunc("POST /pr/{id}/approve", h.approvePR)
	mux.HandleFunc("POST /pr/{id}/reject", h.rejectPR)
}

// summaryView is the dashboard projection of a stored summary record.
type summaryView struct {
	PRID    int    `json:"pr_id"`
	Summary string `json:"summary"`
}

func (h *Handler) listSummaries(w http.ResponseWriter, r *http.Request) {
	records, err := h.store.ListSummaries(r.Context())
	if err != nil {
		slog.Error("list summaries failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"detail": err.Error()})
		return
	}

	views := make([]summaryView, 0, len(records))
	for _, rec := range records {
		views = append(views, summaryView{PRID: rec.PRNumber, Summary: rec.Summary})
	}
	writeJSON(w, http.StatusOK, views)
}

func (h *Handler) storeComment(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Comment string `json:"comment"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"detail": "invalid request body"})
		return
	}
	if strings.TrimSpace(req.Comment) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"detail": "comment must not be empty"})
		return
	}

	rec := &storage.RuleComment{Comment: req.Comment}
	if err := h.store.CreateRuleComment(r.Context(), rec); err != nil {
		slog.Error("store comment failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"detail": err.Error()})
		return
	}
	slog.Info("review rule stored", "id", rec.ID)
	writeJSON(w, http.StatusOK, map[string]string{"status": "comment stored"})
}

func (h *Handler) listComments(w http.ResponseWriter, r *http.Request) {
	records, err := h.store.ListRuleComments(r.Context())
	if err != nil {
		slog.Error("list review comments failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"detail": err.Error()})
		return
	}

	comments := make([]string, 0, len(records))
	for _, rec := range records {
		comments = append(comments, rec.Comment)
	}
	writeJSON(w, http.StatusOK, comments)
}

func (h *Handler) approvePR(w http.ResponseWriter, r *http.Request) {
	number, ok := prNumber(w, r)
	if !ok {
		return
	}
	if err := h.github.CreateReview(r.Context(), h.cfg.GitHub.Owner, h.cfg.GitHub.Repo,
		number, githubapi.ReviewApprove, ""); err != nil {
		slog.Error("approve failed", "number", number, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"detail": err.Error()})
		return
	}
	slog.Info("pr approved", "number", number)
	writeJSON(w, http.StatusOK, map[string]string{"status": fmt.Sprintf("Approved PR #%d", number)})
}

func (h *Handler) rejectPR(w http.ResponseWriter, r *http.Request) {
	number, ok := prNumber(w, r)
	if !ok {
		return
	}
	if err := h.github.CreateReview(r.Context(), h.cfg.GitHub.Owner, h.cfg.GitHub.Repo,
		number, githubapi.ReviewRequestChanges, rejectReviewBody); err != nil {
		slog.Error("reject failed", "number", number, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"detail": err.Error()})
		return
	}
	slog.Info("pr rejected", "number", number)
	writeJSON(w, http.StatusOK, map[string]string{"status": fmt.Sprintf("Rejected PR #%d", number)})
}

func prNumber(w http.ResponseWriter, r *http.Request) (int, bool) {
	number, err := strconv.Atoi(r.PathValue("id"))
	if err != nil || number <= 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"detail": "invalid pr id"})
		return 0, false
	}
	return number, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("write response failed", "error", err)
	}
}
