// Package crossval runs k-fold cross-validation of topic models: it splits
// the corpus once, trains (or sweeps) a model per fold, infers held-out
// documents and assembles one ordered record list for export.
package crossval

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/topic-crossval/internal/aggregate"
	"github.com/Adithya-Monish-Kumar-K/topic-crossval/internal/coherence"
	"github.com/Adithya-Monish-Kumar-K/topic-crossval/internal/corpus"
	"github.com/Adithya-Monish-Kumar-K/topic-crossval/internal/folds"
	"github.com/Adithya-Monish-Kumar-K/topic-crossval/internal/lda"
	"github.com/Adithya-Monish-Kumar-K/topic-crossval/internal/selector"
	"github.com/Adithya-Monish-Kumar-K/topic-crossval/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/topic-crossval/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/topic-crossval/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/topic-crossval/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/topic-crossval/pkg/resilience"
	"github.com/Adithya-Monish-Kumar-K/topic-crossval/pkg/tracing"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/stat"
)

// Options wires an Orchestrator. Trainer defaults to an lda.Trainer built
// from Run and Scorer to sliding-window coherence built from Coherence.
type Options struct {
	Run       config.RunConfig
	Coherence config.CoherenceConfig
	Trainer   selector.Trainer
	Scorer    selector.Scorer
	Metrics   *metrics.Metrics
}

type Orchestrator struct {
	run       config.RunConfig
	coherence config.CoherenceConfig
	trainer   selector.Trainer
	scorer    selector.Scorer
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

func New(opts Options) *Orchestrator {
	trainer := opts.Trainer
	if trainer == nil {
		trainer = lda.NewTrainer(lda.ConfigFromRun(opts.Run))
	}
	scorer := opts.Scorer
	if scorer == nil {
		scorer = selector.CoherenceScorer{TopN: opts.Coherence.TopN, Window: opts.Coherence.Window}
	}
	return &Orchestrator{
		run:       opts.Run,
		coherence: opts.Coherence,
		trainer:   trainer,
		scorer:    scorer,
		metrics:   opts.Metrics,
		logger:    slog.Default().With("component", "crossval"),
	}
}

// FoldResult is the outcome of one fold. Err is set when the fold produced
// no model; such folds are left out of the mean coherence and the records.
type FoldResult struct {
	Index         int
	TrainSize     int
	TestSize      int
	K             int
	Model         *lda.Model
	Coherence     coherence.Result
	Trials        []selector.Trial
	Documents     []string
	Distributions []lda.Distribution
	Duration      time.Duration
	Err           error
}

// Report is the result of a cross-validation run.
type Report struct {
	Folds         []FoldResult
	MeanCoherence float64
	Succeeded     int
	Records       []aggregate.Record
	Span          *tracing.Span
}

// Inputs groups the records by fold for aggregation.
func (r *Report) Inputs() []aggregate.Input {
	inputs := make([]aggregate.Input, 0, r.Succeeded)
	for _, f := range r.Folds {
		if f.Err != nil {
			continue
		}
		in := aggregate.Input{FoldIndex: f.Index, K: f.K}
		for _, rec := range r.Records {
			if rec.FoldIndex == f.Index {
				in.Rows = append(in.Rows, rec)
			}
		}
		inputs = append(inputs, in)
	}
	return inputs
}

// Run executes the cross-validation. Configuration problems are reported
// before any training starts. Individual fold failures are recorded on the
// fold; Run fails only when every fold fails or ctx is cancelled.
func (o *Orchestrator) Run(ctx context.Context, c *corpus.Corpus, vocab *corpus.Vocabulary) (*Report, error) {
	if err := o.validate(); err != nil {
		return nil, err
	}
	splits, err := folds.Split(c.IDs(), o.run.Folds, o.run.Shuffle, o.run.Seed)
	if err != nil {
		return nil, err
	}

	ctx, span := tracing.StartSpan(ctx, "crossval", logger.RunID(ctx))
	span.SetAttr("folds", len(splits))
	span.SetAttr("documents", c.Len())
	defer span.End()

	log := logger.FromContext(ctx).With("component", "crossval")
	log.Info("cross-validation started",
		"documents", c.Len(),
		"vocabulary", vocab.Len(),
		"folds", len(splits),
		"sweep", o.run.Sweeping(),
	)

	results := make([]FoldResult, len(splits))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.run.FoldWorkers)
	for i, f := range splits {
		i, f := i, f
		g.Go(func() error {
			results[i] = o.runFoldWithTimeout(gctx, c, vocab, f)
			if err := ctx.Err(); err != nil {
				return err
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, apperrors.FromContext(err, "cross-validation")
	}

	report := &Report{Folds: results, Span: span}
	scores := make([]float64, 0, len(results))
	var firstErr error
	for i := range results {
		f := &results[i]
		if f.Err != nil {
			if firstErr == nil {
				firstErr = f.Err
			}
			o.metrics.FoldFailed(failureReason(f.Err))
			log.Warn("fold failed", "fold", f.Index, "error", f.Err)
			continue
		}
		scores = append(scores, f.Coherence.Aggregate)
		report.Succeeded++
	}
	if report.Succeeded == 0 {
		return nil, fmt.Errorf("all %d folds failed: %w", len(results), firstErr)
	}
	report.MeanCoherence = stat.Mean(scores, nil)

	records, err := buildRecords(results)
	if err != nil {
		return nil, err
	}
	report.Records = records
	span.SetAttr("mean_coherence", report.MeanCoherence)

	log.Info("cross-validation finished",
		"succeeded", report.Succeeded,
		"failed", len(results)-report.Succeeded,
		"mean_coherence", report.MeanCoherence,
		"records", len(records),
	)
	return report, nil
}

func (o *Orchestrator) validate() error {
	if err := o.run.Validate(); err != nil {
		return err
	}
	if o.coherence.TopN < 2 {
		return apperrors.Newf(apperrors.ErrInvalidConfiguration, "coherence topN must be at least 2, got %d", o.coherence.TopN)
	}
	if o.coherence.Window < 2 {
		return apperrors.Newf(apperrors.ErrInvalidConfiguration, "coherence window must be at least 2, got %d", o.coherence.Window)
	}
	return nil
}

func (o *Orchestrator) runFoldWithTimeout(ctx context.Context, c *corpus.Corpus, vocab *corpus.Vocabulary, f folds.Fold) FoldResult {
	start := time.Now()
	var res FoldResult
	err := resilience.WithTimeout(ctx, o.run.FoldTimeout, fmt.Sprintf("fold %d", f.Index), func(ctx context.Context) error {
		var err error
		res, err = o.runFold(ctx, c, vocab, f)
		return err
	})
	if err != nil {
		return FoldResult{
			Index:     f.Index,
			TrainSize: len(f.Train),
			TestSize:  len(f.Test),
			Duration:  time.Since(start),
			Err:       apperrors.FromContext(err, fmt.Sprintf("fold %d", f.Index)),
		}
	}
	res.Duration = time.Since(start)
	return res
}

func (o *Orchestrator) runFold(ctx context.Context, c *corpus.Corpus, vocab *corpus.Vocabulary, f folds.Fold) (FoldResult, error) {
	ctx, span := tracing.StartChildSpan(ctx, "fold")
	span.SetAttr("fold", f.Index)
	defer span.End()

	res := FoldResult{Index: f.Index, TrainSize: len(f.Train), TestSize: len(f.Test)}
	train, err := c.Subset(f.Train)
	if err != nil {
		return res, err
	}
	test, err := c.Subset(f.Test)
	if err != nil {
		return res, err
	}

	if o.run.Sweeping() {
		sel, err := selector.New(o.trainer, o.scorer, o.metrics).Sweep(ctx, train, vocab, o.run.CandidateKs)
		if err != nil {
			return res, err
		}
		res.Model = sel.Model
		res.Trials = sel.Trials
	} else {
		start := time.Now()
		model, err := o.trainer.Train(ctx, train, vocab, o.run.FixedK)
		iterations := 0
		if model != nil {
			iterations = model.Iterations
		}
		o.metrics.ObserveTrial(o.run.FixedK, time.Since(start), iterations, err)
		if err != nil {
			return res, err
		}
		res.Model = model
	}
	res.K = res.Model.K
	span.SetAttr("k", res.K)

	res.Documents = make([]string, 0, test.Len())
	res.Distributions = make([]lda.Distribution, 0, test.Len())
	for _, doc := range test.Documents() {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		dist, err := res.Model.Infer(doc)
		if err != nil {
			return res, err
		}
		res.Documents = append(res.Documents, doc.ID)
		res.Distributions = append(res.Distributions, dist)
	}
	o.metrics.AddInferred(len(res.Documents))

	if err := ctx.Err(); err != nil {
		return res, err
	}
	score, err := o.scorer.Score(res.Model, test)
	if err != nil {
		return res, err
	}
	// A fold past its deadline has already been reported as failed.
	if err := ctx.Err(); err != nil {
		return res, err
	}
	res.Coherence = score
	span.SetAttr("coherence", score.Aggregate)
	o.metrics.ObserveFold(f.Index, res.K, score.Aggregate)

	o.logger.Info("fold finished",
		"fold", f.Index,
		"train", res.TrainSize,
		"test", res.TestSize,
		"k", res.K,
		"coherence", score.Aggregate,
	)
	return res, nil
}

// buildRecords lays out K rows per held-out document, in fold order then
// test order, and checks every document's rows before export.
func buildRecords(results []FoldResult) ([]aggregate.Record, error) {
	var records []aggregate.Record
	for _, f := range results {
		if f.Err != nil {
			continue
		}
		for i, id := range f.Documents {
			dist := f.Distributions[i]
			if err := lda.ValidateDistribution(dist, f.K); err != nil {
				return nil, apperrors.Reclassify(err, "fold %d document %q", f.Index, id)
			}
			for t, p := range dist {
				records = append(records, aggregate.Record{
					DocumentID:  id,
					TopicID:     t,
					Probability: p,
					FoldIndex:   f.Index,
				})
			}
		}
	}
	return records, nil
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, apperrors.ErrTimeout):
		return "timeout"
	case errors.Is(err, apperrors.ErrDegenerateTopic):
		return "degenerate"
	case errors.Is(err, apperrors.ErrNumericalInstability):
		return "numerical"
	case errors.Is(err, context.Canceled):
		return "cancelled"
	default:
		return "other"
	}
}
