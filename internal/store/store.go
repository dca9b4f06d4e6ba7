// Package store persists cross-validation results to sqlite so runs can be
// compared across backends and configurations over time.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"vaclassify/internal/crossval"
	"vaclassify/internal/logging"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id TEXT PRIMARY KEY,
	backend TEXT NOT NULL,
	k INTEGER NOT NULL,
	stratified INTEGER NOT NULL,
	seed INTEGER NOT NULL,
	n_samples INTEGER NOT NULL,
	csmf_accuracy_mean REAL NOT NULL,
	csmf_accuracy_std REAL NOT NULL,
	cod_accuracy_mean REAL NOT NULL,
	cod_accuracy_std REAL NOT NULL,
	created_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS fold_scores (
	run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
	fold INTEGER NOT NULL,
	csmf_accuracy REAL NOT NULL,
	cod_accuracy REAL NOT NULL,
	train_size INTEGER NOT NULL,
	test_size INTEGER NOT NULL,
	PRIMARY KEY (run_id, fold)
);

CREATE INDEX IF NOT EXISTS idx_runs_backend ON runs(backend, created_at);
`

// Store is a sqlite-backed experiment log.
type Store struct {
	db *sql.DB
}

// Open opens or creates the store at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: opening %s: %w", path, err)
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("store: %s: %w", pragma, err)
		}
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: creating schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// RunRecord is one stored cross-validation run.
type RunRecord struct {
	ID               string
	Backend          string
	K                int
	Stratified       bool
	Seed             int64
	NSamples         int
	CSMFAccuracyMean float64
	CSMFAccuracyStd  float64
	CODAccuracyMean  float64
	CODAccuracyStd   float64
	CreatedAt        time.Time
}

// SaveRun persists a result with its per-fold scores and returns the run ID.
func (s *Store) SaveRun(ctx context.Context, result *crossval.Result, opts crossval.Options, nSamples int) (string, error) {
	id := uuid.NewString()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("store: %w", err)
	}
	defer tx.Rollback()

	stratified := 0
	if opts.Stratified {
		stratified = 1
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs (id, backend, k, stratified, seed, n_samples,
			csmf_accuracy_mean, csmf_accuracy_std, cod_accuracy_mean, cod_accuracy_std, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, result.Backend, result.K, stratified, opts.Seed, nSamples,
		result.CSMFAccuracyMean, result.CSMFAccuracyStd,
		result.CODAccuracyMean, result.CODAccuracyStd,
		time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return "", fmt.Errorf("store: inserting run: %w", err)
	}

	for _, f := range result.Folds {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO fold_scores (run_id, fold, csmf_accuracy, cod_accuracy, train_size, test_size)
			VALUES (?, ?, ?, ?, ?, ?)`,
			id, f.Fold, f.CSMFAccuracy, f.CODAccuracy, f.TrainSize, f.TestSize)
		if err != nil {
			return "", fmt.Errorf("store: inserting fold %d: %w", f.Fold, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("store: %w", err)
	}
	logging.Get(logging.CategoryStore).Infof("saved run %s (%s, k=%d)", id, result.Backend, result.K)
	return id, nil
}

// ListRuns returns the most recent runs, newest first.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, backend, k, stratified, seed, n_samples,
			csmf_accuracy_mean, csmf_accuracy_std, cod_accuracy_mean, cod_accuracy_std, created_at
		FROM runs ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("store: %w", err)
	}
	defer rows.Close()

	var out []RunRecord
	for rows.Next() {
		var r RunRecord
		var stratified int
		var created string
		if err := rows.Scan(&r.ID, &r.Backend, &r.K, &stratified, &r.Seed, &r.NSamples,
			&r.CSMFAccuracyMean, &r.CSMFAccuracyStd, &r.CODAccuracyMean, &r.CODAccuracyStd, &created); err != nil {
			return nil, fmt.Errorf("store: %w", err)
		}
		r.Stratified = stratified != 0
		r.CreatedAt, _ = time.Parse(time.RFC3339, created)
		out = append(out, r)
	}
	return out, rows.Err()
}

// FoldScores returns the per-fold scores of one run in fold order.
func (s *Store) FoldScores(ctx context.Context, runID string) ([]crossval.FoldScore, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT fold, csmf_accuracy, cod_accuracy, train_size, test_size
		FROM fold_scores WHERE run_id = ? ORDER BY fold`, runID)
	if err != nil {
		return nil, fmt.Errorf("store: %w", err)
	}
	defer rows.Close()

	var out []crossval.FoldScore
	for rows.Next() {
		var f crossval.FoldScore
		if err := rows.Scan(&f.Fold, &f.CSMFAccuracy, &f.CODAccuracy, &f.TrainSize, &f.TestSize); err != nil {
			return nil, fmt.Errorf("store: %w", err)
		}
		out = append(out, f)
	}
	return out, rows.Err()
}
