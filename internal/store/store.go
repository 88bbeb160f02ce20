// Package store persists finished pipeline runs to a MySQL database. Runs are
// append-only: a record is written once when its run reaches a terminal
// outcome and never updated.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"

	"github.com/codewandler/relay/internal/config"
	"github.com/codewandler/relay/internal/models"
)

// Store wraps the history database connection
type Store struct {
	db *sql.DB
}

// New opens a connection to the configured history database
func New(cfg config.HistoryConfig) (*Store, error) {
	port := cfg.Port
	if port == 0 {
		port = 3306
	}

	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true",
		cfg.Username, cfg.Password, cfg.Host, port, cfg.Database)

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping verifies database connectivity
func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("failed to reach history database: %w", err)
	}
	return nil
}

// Init creates the history tables if they do not exist
func (s *Store) Init(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS pipeline_runs (
			id CHAR(36) PRIMARY KEY,
			outcome VARCHAR(16) NOT NULL,
			manifest_revision VARCHAR(64) NOT NULL DEFAULT '',
			started_at DATETIME(3) NOT NULL,
			ended_at DATETIME(3) NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS stage_results (
			run_id CHAR(36) NOT NULL,
			position INT NOT NULL,
			stage VARCHAR(32) NOT NULL,
			status VARCHAR(16) NOT NULL,
			output MEDIUMTEXT NOT NULL,
			started_at DATETIME(3) NOT NULL,
			ended_at DATETIME(3) NOT NULL,
			PRIMARY KEY (run_id, position),
			FOREIGN KEY (run_id) REFERENCES pipeline_runs(id)
		)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create history tables: %w", err)
		}
	}
	return nil
}

// SaveRun records a finished run and its ordered stage results
func (s *Store) SaveRun(ctx context.Context, run *models.PipelineRun) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO pipeline_runs (id, outcome, manifest_revision, started_at, ended_at) VALUES (?, ?, ?, ?, ?)`,
		run.ID, string(run.Outcome), run.ManifestRevision, run.StartedAt, run.EndedAt)
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}

	for i, res := range run.Stages {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO stage_results (run_id, position, stage, status, output, started_at, ended_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
			run.ID, i, string(res.Stage), string(res.Status), res.Output, res.StartedAt, res.EndedAt)
		if err != nil {
			return fmt.Errorf("failed to insert stage result: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit run: %w", err)
	}
	return nil
}

// RunSummary is one row of the run history listing
type RunSummary struct {
	ID               string
	Outcome          models.Outcome
	ManifestRevision string
	StartedAt        time.Time
	EndedAt          time.Time
	FailedStage      string
}

// ListRuns returns the most recent runs, newest first
func (s *Store) ListRuns(ctx context.Context, limit int) ([]RunSummary, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT r.id, r.outcome, r.manifest_revision, r.started_at, r.ended_at,
			COALESCE((SELECT sr.stage FROM stage_results sr
				WHERE sr.run_id = r.id AND sr.status = 'failure'
				ORDER BY sr.position LIMIT 1), '')
		FROM pipeline_runs r
		ORDER BY r.started_at DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var summaries []RunSummary
	for rows.Next() {
		var s RunSummary
		var outcome string
		if err := rows.Scan(&s.ID, &outcome, &s.ManifestRevision, &s.StartedAt, &s.EndedAt, &s.FailedStage); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		s.Outcome = models.Outcome(outcome)
		summaries = append(summaries, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating runs: %w", err)
	}

	return summaries, nil
}

// GetRun loads one run with its full stage audit trail
func (s *Store) GetRun(ctx context.Context, id string) (*models.PipelineRun, error) {
	run := &models.PipelineRun{}
	var outcome string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, outcome, manifest_revision, started_at, ended_at FROM pipeline_runs WHERE id = ?`, id).
		Scan(&run.ID, &outcome, &run.ManifestRevision, &run.StartedAt, &run.EndedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to load run %s: %w", id, err)
	}
	run.Outcome = models.Outcome(outcome)

	rows, err := s.db.QueryContext(ctx,
		`SELECT stage, status, output, started_at, ended_at FROM stage_results WHERE run_id = ? ORDER BY position`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load stage results: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var res models.StageResult
		var stage, status string
		if err := rows.Scan(&stage, &status, &res.Output, &res.StartedAt, &res.EndedAt); err != nil {
			return nil, fmt.Errorf("failed to scan stage result: %w", err)
		}
		res.Stage = models.Stage(stage)
		res.Status = models.StageStatus(status)
		run.Stages = append(run.Stages, res)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating stage results: %w", err)
	}

	return run, nil
}
