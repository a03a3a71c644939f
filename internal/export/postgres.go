package export

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/Adithya-Monish-Kumar-K/topic-crossval/pkg/postgres"
	"github.com/lib/pq"
)

// PostgresSink bulk-loads run results with COPY.
//
// It requires:
//
//	CREATE TABLE topic_runs (
//	    run_id         TEXT PRIMARY KEY,
//	    created_at     TIMESTAMPTZ NOT NULL,
//	    folds          INT NOT NULL,
//	    succeeded      INT NOT NULL,
//	    mean_coherence DOUBLE PRECISION NOT NULL
//	);
//	CREATE TABLE topic_distributions (
//	    run_id      TEXT NOT NULL REFERENCES topic_runs (run_id) ON DELETE CASCADE,
//	    document_id TEXT NOT NULL,
//	    topic_id    INT NOT NULL,
//	    probability DOUBLE PRECISION NOT NULL,
//	    fold        INT NOT NULL
//	);
//	CREATE TABLE document_topics (
//	    run_id      TEXT NOT NULL REFERENCES topic_runs (run_id) ON DELETE CASCADE,
//	    document_id TEXT NOT NULL,
//	    topic_id    INT NOT NULL,
//	    probability DOUBLE PRECISION NOT NULL,
//	    dominant    BOOLEAN NOT NULL
//	);
type PostgresSink struct {
	db     *postgres.Client
	logger *slog.Logger
}

func NewPostgresSink(db *postgres.Client) *PostgresSink {
	return &PostgresSink{
		db:     db,
		logger: slog.Default().With("component", "postgres-sink"),
	}
}

func (s *PostgresSink) Name() string { return "postgres" }

// Write replaces any earlier rows of the same run inside one transaction.
func (s *PostgresSink) Write(ctx context.Context, r *Results) (int, error) {
	dist := r.distributionRows()
	docs := r.documentRows()
	err := s.db.InTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM topic_runs WHERE run_id = $1`, r.RunID); err != nil {
			return fmt.Errorf("clearing run %s: %w", r.RunID, err)
		}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO topic_runs (run_id, created_at, folds, succeeded, mean_coherence) VALUES ($1, $2, $3, $4, $5)`,
			r.RunID, r.CreatedAt, len(r.Report.Folds), r.Report.Succeeded, r.Report.MeanCoherence,
		)
		if err != nil {
			return fmt.Errorf("inserting run %s: %w", r.RunID, err)
		}

		err = copyRows(ctx, tx, pq.CopyIn("topic_distributions", "run_id", "document_id", "topic_id", "probability", "fold"), len(dist), func(i int) []any {
			d := dist[i]
			return []any{r.RunID, d.DocumentID, d.TopicID, d.Probability, d.Fold}
		})
		if err != nil {
			return fmt.Errorf("copying topic_distributions: %w", err)
		}
		err = copyRows(ctx, tx, pq.CopyIn("document_topics", "run_id", "document_id", "topic_id", "probability", "dominant"), len(docs), func(i int) []any {
			d := docs[i]
			return []any{r.RunID, d.DocumentID, d.TopicID, d.Probability, d.Dominant}
		})
		if err != nil {
			return fmt.Errorf("copying document_topics: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	s.logger.Info("run stored", "run_id", r.RunID, "distribution_rows", len(dist), "document_rows", len(docs))
	return len(dist) + len(docs), nil
}

func copyRows(ctx context.Context, tx *sql.Tx, query string, n int, row func(i int) []any) error {
	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for i := 0; i < n; i++ {
		if _, err := stmt.ExecContext(ctx, row(i)...); err != nil {
			return err
		}
	}
	if _, err := stmt.ExecContext(ctx); err != nil {
		return err
	}
	return nil
}
