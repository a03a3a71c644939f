package export

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	apperrors "github.com/Adithya-Monish-Kumar-K/topic-crossval/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/topic-crossval/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/topic-crossval/pkg/resilience"
)

// Sink is an external destination for run results. Write must be safe to
// call again after a failure; relational sinks replace the run's rows.
type Sink interface {
	Name() string
	Write(ctx context.Context, r *Results) (rows int, err error)
}

// Dispatcher writes results to every configured sink, retrying each one
// independently.
type Dispatcher struct {
	sinks   []Sink
	retry   resilience.RetryConfig
	metrics *metrics.Metrics
	logger  *slog.Logger
}

func NewDispatcher(retry resilience.RetryConfig, m *metrics.Metrics, sinks ...Sink) *Dispatcher {
	return &Dispatcher{
		sinks:   sinks,
		retry:   retry,
		metrics: m,
		logger:  slog.Default().With("component", "export-dispatcher"),
	}
}

// Dispatch writes to every sink even when an earlier one fails. The
// returned error wraps ErrSinkUnavailable and lists each failed sink.
func (d *Dispatcher) Dispatch(ctx context.Context, r *Results) error {
	var errs []error
	for _, s := range d.sinks {
		var rows int
		err := resilience.Retry(ctx, "export "+s.Name(), d.retry, func(ctx context.Context) error {
			var err error
			rows, err = s.Write(ctx, r)
			return err
		})
		if err != nil {
			d.logger.Error("sink failed", "sink", s.Name(), "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
			continue
		}
		d.metrics.AddExported(s.Name(), rows)
		d.logger.Info("sink written", "sink", s.Name(), "rows", rows)
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", apperrors.ErrSinkUnavailable, errors.Join(errs...))
	}
	return nil
}
