package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // Pure Go driver, CGO-free, compatible with CGO_ENABLED=0
)

type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable wal: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

func migrate(db *sql.DB) error {
	schema := `
    CREATE TABLE IF NOT EXISTS pr_summaries (
        id         TEXT PRIMARY KEY,
        pr_number  INTEGER NOT NULL,
        summary    TEXT NOT NULL,
        embedding  TEXT NOT NULL,
        created_at DATETIME NOT NULL
    );
    CREATE TABLE IF NOT EXISTS rule_comments (
        id         TEXT PRIMARY KEY,
        comment    TEXT NOT NULL,
        created_at DATETIME NOT NULL
    );
    CREATE TABLE IF NOT EXISTS check_results (
        id           TEXT PRIMARY KEY,
        check_run_id INTEGER NOT NULL,
        check_name   TEXT NOT NULL,
        status       TEXT NOT NULL,
        conclusion   TEXT NOT NULL,
        commit_sha   TEXT NOT NULL,
        pr_number    INTEGER NOT NULL,
        timestamp    DATETIME NOT NULL,
        details_url  TEXT NOT NULL
    );
    CREATE INDEX IF NOT EXISTS idx_check_results_commit ON check_results(commit_sha, conclusion);
    CREATE INDEX IF NOT EXISTS idx_check_results_pr ON check_results(pr_number, timestamp);
    `
	_, err := db.Exec(schema)
	return err
}

func (s *SQLiteStore) UpsertSummary(ctx context.Context, rec *PRSummaryRecord) error {
	embedding, err := json.Marshal(rec.Embedding)
	if err != nil {
		return fmt.Errorf("marshal embedding: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
        INSERT INTO pr_summaries (id, pr_number, summary, embedding, created_at)
        VALUES (?, ?, ?, ?, ?)
        ON CONFLICT(id) DO UPDATE SET
            pr_number  = excluded.pr_number,
            summary    = excluded.summary,
            embedding  = excluded.embedding,
            created_at = excluded.created_at
    `, rec.ID, rec.PRNumber, rec.Summary, string(embedding), rec.CreatedAt)
	return err
}

func (s *SQLiteStore) ListSummaries(ctx context.Context) ([]*PRSummaryRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
        SELECT id, pr_number, summary, embedding, created_at
        FROM pr_summaries
        ORDER BY created_at DESC
    `)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*PRSummaryRecord
	for rows.Next() {
		var rec PRSummaryRecord
		var embedding string
		if err := rows.Scan(&rec.ID, &rec.PRNumber, &rec.Summary, &embedding, &rec.CreatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(embedding), &rec.Embedding); err != nil {
			return nil, fmt.Errorf("unmarshal embedding: %w", err)
		}
		records = append(records, &rec)
	}
	return records, rows.Err()
}

func (s *SQLiteStore) CreateRuleComment(ctx context.Context, rec *RuleComment) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
        INSERT INTO rule_comments (id, comment, created_at) VALUES (?, ?, ?)
    `, rec.ID, rec.Comment, rec.CreatedAt)
	return err
}

func (s *SQLiteStore) ListRuleComments(ctx context.Context) ([]*RuleComment, error) {
	rows, err := s.db.QueryContext(ctx, `
        SELECT id, comment, created_at FROM rule_comments ORDER BY created_at ASC
    `)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*RuleComment
	for rows.Next() {
		var rec RuleComment
		if err := rows.Scan(&rec.ID, &rec.Comment, &rec.CreatedAt); err != nil {
			return nil, err
		}
		records = append(records, &rec)
	}
	return records, rows.Err()
}

func (s *SQLiteStore) CreateCheckResult(ctx context.Context, rec *CheckResultRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
        INSERT INTO check_results
            (id, check_run_id, check_name, status, conclusion, commit_sha, pr_number, timestamp, details_url)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
    `, rec.ID, rec.CheckRunID, rec.CheckName, rec.Status, rec.Conclusion,
		rec.CommitSHA, rec.PRNumber, rec.Timestamp, rec.DetailsURL)
	return err
}

func (s *SQLiteStore) HasSuccessfulCheck(ctx context.Context, commitSHA string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, `
        SELECT 1 FROM check_results
        WHERE commit_sha = ? AND conclusion = 'success'
        LIMIT 1
    `, commitSHA).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *SQLiteStore) ListCheckResultsByPR(ctx context.Context, prNumber int) ([]*CheckResultRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
        SELECT id, check_run_id, check_name, status, conclusion, commit_sha, pr_number, timestamp, details_url
        FROM check_results
        WHERE pr_number = ?
        ORDER BY timestamp DESC
    `, prNumber)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*CheckResultRecord
	for rows.Next() {
		var rec CheckResultRecord
		if err := rows.Scan(&rec.ID, &rec.CheckRunID, &rec.CheckName, &rec.Status, &rec.Conclusion,
			&rec.CommitSHA, &rec.PRNumber, &rec.Timestamp, &rec.DetailsURL); err != nil {
			return nil, err
		}
		records = append(records, &rec)
	}
	return records, rows.Err()
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
