package export

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS topic_runs (
    run_id         TEXT PRIMARY KEY,
    created_at     TEXT NOT NULL,
    folds          INTEGER NOT NULL,
    succeeded      INTEGER NOT NULL,
    mean_coherence REAL NOT NULL
);
CREATE TABLE IF NOT EXISTS topic_distributions (
    run_id      TEXT NOT NULL,
    document_id TEXT NOT NULL,
    topic_id    INTEGER NOT NULL,
    probability REAL NOT NULL,
    fold        INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS document_topics (
    run_id      TEXT NOT NULL,
    document_id TEXT NOT NULL,
    topic_id    INTEGER NOT NULL,
    probability REAL NOT NULL,
    dominant    INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_document_topics_doc ON document_topics (run_id, document_id);
`

// SQLiteSink stores run results in a local SQLite file with the same
// tables as PostgresSink. The schema is created on open.
type SQLiteSink struct {
	db     *sql.DB
	logger *slog.Logger
}

// OpenSQLite opens (or creates) the database at path. ":memory:" works for
// throwaway databases.
func OpenSQLite(ctx context.Context, path string) (*SQLiteSink, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating sqlite schema in %s: %w", path, err)
	}
	return &SQLiteSink{
		db:     db,
		logger: slog.Default().With("component", "sqlite-sink", "path", path),
	}, nil
}

func (s *SQLiteSink) Name() string { return "sqlite" }

func (s *SQLiteSink) DB() *sql.DB { return s.db }

func (s *SQLiteSink) Close() error { return s.db.Close() }

func (s *SQLiteSink) Write(ctx context.Context, r *Results) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("beginning transaction: %w", err)
	}
	n, err := s.write(ctx, tx, r)
	if err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return 0, fmt.Errorf("rolling back transaction after error %v: %w", rbErr, err)
		}
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing transaction: %w", err)
	}
	s.logger.Info("run stored", "run_id", r.RunID, "rows", n)
	return n, nil
}

func (s *SQLiteSink) write(ctx context.Context, tx *sql.Tx, r *Results) (int, error) {
	for _, table := range []string{"document_topics", "topic_distributions", "topic_runs"} {
		if _, err := tx.ExecContext(ctx, `DELETE FROM `+table+` WHERE run_id = ?`, r.RunID); err != nil {
			return 0, fmt.Errorf("clearing %s for run %s: %w", table, r.RunID, err)
		}
	}
	_, err := tx.ExecContext(ctx,
		`INSERT INTO topic_runs (run_id, created_at, folds, succeeded, mean_coherence) VALUES (?, ?, ?, ?, ?)`,
		r.RunID, r.CreatedAt.Format(time.RFC3339), len(r.Report.Folds), r.Report.Succeeded, r.Report.MeanCoherence,
	)
	if err != nil {
		return 0, fmt.Errorf("inserting run %s: %w", r.RunID, err)
	}

	dist, err := tx.PrepareContext(ctx, `INSERT INTO topic_distributions (run_id, document_id, topic_id, probability, fold) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, err
	}
	defer dist.Close()
	n := 0
	for _, d := range r.distributionRows() {
		if _, err := dist.ExecContext(ctx, r.RunID, d.DocumentID, d.TopicID, d.Probability, d.Fold); err != nil {
			return 0, fmt.Errorf("inserting distribution row: %w", err)
		}
		n++
	}

	docs, err := tx.PrepareContext(ctx, `INSERT INTO document_topics (run_id, document_id, topic_id, probability, dominant) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, err
	}
	defer docs.Close()
	for _, d := range r.documentRows() {
		if _, err := docs.ExecContext(ctx, r.RunID, d.DocumentID, d.TopicID, d.Probability, d.Dominant); err != nil {
			return 0, fmt.Errorf("inserting document row: %w", err)
		}
		n++
	}
	return n, nil
}
