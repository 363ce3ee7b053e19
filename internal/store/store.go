package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"htcimaging/internal/config"
)

// Store manages submission and job-history persistence backed by SQLite.
type Store struct {
	db   *sql.DB
	path string
}

// Open initializes or connects to the database and applies migrations.
func Open(cfg *config.Config) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}
	return OpenPath(cfg.StorePath())
}

// OpenPath opens the database at an explicit path.
func OpenPath(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	s := &Store{db: db, path: dbPath}
	if err := s.applyMigrations(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Path returns the database file location.
func (s *Store) Path() string {
	return s.path
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Submission records one condor_submit invocation.
type Submission struct {
	RunID        string    `json:"run_id"`
	ClusterID    int64     `json:"cluster_id"`
	JobCount     int       `json:"job_count"`
	ManifestPath string    `json:"manifest_path"`
	SubmitFile   string    `json:"submit_file"`
	CreatedAt    time.Time `json:"created_at"`
}

// RecordSubmission stores a submission. CreatedAt defaults to now.
func (s *Store) RecordSubmission(ctx context.Context, sub Submission) error {
	if sub.RunID == "" {
		return errors.New("record submission: run id is required")
	}
	if sub.CreatedAt.IsZero() {
		sub.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO submissions (run_id, cluster_id, job_count, manifest_path, submit_file, created_at)
         VALUES (?, ?, ?, ?, ?, ?)`,
		sub.RunID,
		sub.ClusterID,
		sub.JobCount,
		sub.ManifestPath,
		sub.SubmitFile,
		sub.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("insert submission: %w", err)
	}
	return nil
}

// ListSubmissions returns all submissions, newest first.
func (s *Store) ListSubmissions(ctx context.Context) ([]Submission, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id, cluster_id, job_count, manifest_path, submit_file, created_at
         FROM submissions ORDER BY created_at DESC, cluster_id DESC`)
	if err != nil {
		return nil, fmt.Errorf("list submissions: %w", err)
	}
	defer rows.Close()

	var subs []Submission
	for rows.Next() {
		var (
			sub        Submission
			createdRaw string
		)
		if err := rows.Scan(&sub.RunID, &sub.ClusterID, &sub.JobCount, &sub.ManifestPath, &sub.SubmitFile, &createdRaw); err != nil {
			return nil, fmt.Errorf("scan submission: %w", err)
		}
		sub.CreatedAt = parseTimestamp(createdRaw)
		subs = append(subs, sub)
	}
	return subs, rows.Err()
}

// LatestSubmission returns the newest submission, or nil when none exist.
func (s *Store) LatestSubmission(ctx context.Context) (*Submission, error) {
	subs, err := s.ListSubmissions(ctx)
	if err != nil {
		return nil, err
	}
	if len(subs) == 0 {
		return nil, nil
	}
	return &subs[0], nil
}

func parseTimestamp(raw string) time.Time {
	ts, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}
	}
	return ts
}
