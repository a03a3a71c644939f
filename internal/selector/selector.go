// Package selector picks the topic count for a training corpus by sweeping
// candidate K values and keeping the model with the highest coherence.
package selector

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/Adithya-Monish-Kumar-K/topic-crossval/internal/coherence"
	"github.com/Adithya-Monish-Kumar-K/topic-crossval/internal/corpus"
	"github.com/Adithya-Monish-Kumar-K/topic-crossval/internal/lda"
	apperrors "github.com/Adithya-Monish-Kumar-K/topic-crossval/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/topic-crossval/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/topic-crossval/pkg/tracing"
)

// Trainer fits a k-topic model.
type Trainer interface {
	Train(ctx context.Context, docs *corpus.Corpus, vocab *corpus.Vocabulary, k int) (*lda.Model, error)
}

// Scorer rates a model's topics against a reference corpus.
type Scorer interface {
	Score(model *lda.Model, reference *corpus.Corpus) (coherence.Result, error)
}

// CoherenceScorer is the Scorer backed by sliding-window NPMI coherence.
type CoherenceScorer struct {
	TopN   int
	Window int
}

func (c CoherenceScorer) Score(model *lda.Model, reference *corpus.Corpus) (coherence.Result, error) {
	return coherence.Score(model, c.TopN, reference, c.Window)
}

// Trial is the outcome of training and scoring one candidate K.
type Trial struct {
	K           int
	Coherence   float64
	TopicScores []float64
	Objective   float64
	Iterations  int
	Duration    time.Duration
	Err         error
}

// Selection is the winning model plus the full sweep table.
type Selection struct {
	K         int
	Model     *lda.Model
	Coherence coherence.Result
	Trials    []Trial
}

type Selector struct {
	trainer Trainer
	scorer  Scorer
	metrics *metrics.Metrics
	logger  *slog.Logger
}

func New(trainer Trainer, scorer Scorer, m *metrics.Metrics) *Selector {
	return &Selector{
		trainer: trainer,
		scorer:  scorer,
		metrics: m,
		logger:  slog.Default().With("component", "model-selector"),
	}
}

// NormalizeCandidates sorts ks ascending and drops duplicates.
func NormalizeCandidates(ks []int) ([]int, error) {
	if len(ks) == 0 {
		return nil, apperrors.New(apperrors.ErrInvalidConfiguration, "no candidate topic counts")
	}
	out := append([]int(nil), ks...)
	sort.Ints(out)
	n := 0
	for i, k := range out {
		if k < 2 {
			return nil, apperrors.Newf(apperrors.ErrInvalidConfiguration, "candidate topic count must be at least 2, got %d", k)
		}
		if i > 0 && k == out[n-1] {
			continue
		}
		out[n] = k
		n++
	}
	return out[:n], nil
}

// Sweep trains one model per candidate K in ascending order and scores it
// against the training corpus. A candidate only replaces the current best
// when its coherence is strictly higher, so ties keep the smaller K.
// A trial that fails numerically or yields a degenerate topic fails the
// whole sweep. Other failed trials are recorded and skipped; if every trial
// fails the first failure is returned.
func (s *Selector) Sweep(ctx context.Context, train *corpus.Corpus, vocab *corpus.Vocabulary, candidateKs []int) (*Selection, error) {
	ks, err := NormalizeCandidates(candidateKs)
	if err != nil {
		return nil, err
	}

	sel := &Selection{Trials: make([]Trial, 0, len(ks))}
	var firstErr error
	found := false
	for _, k := range ks {
		if err := ctx.Err(); err != nil {
			return nil, apperrors.FromContext(err, "model sweep")
		}
		trial, model, res := s.trial(ctx, train, vocab, k)
		sel.Trials = append(sel.Trials, trial)
		if trial.Err != nil {
			if isContextErr(trial.Err) || isNumericalErr(trial.Err) {
				return nil, trial.Err
			}
			if firstErr == nil {
				firstErr = trial.Err
			}
			continue
		}
		if !found || trial.Coherence > sel.Coherence.Aggregate {
			sel.K = k
			sel.Model = model
			sel.Coherence = res
			found = true
		}
	}
	if !found {
		return nil, fmt.Errorf("every candidate topic count failed: %w", firstErr)
	}

	s.logger.Info("topic count selected",
		"k", sel.K,
		"coherence", sel.Coherence.Aggregate,
		"candidates", len(ks),
	)
	return sel, nil
}

func (s *Selector) trial(ctx context.Context, train *corpus.Corpus, vocab *corpus.Vocabulary, k int) (Trial, *lda.Model, coherence.Result) {
	ctx, span := tracing.StartChildSpan(ctx, "trial")
	span.SetAttr("k", k)
	defer span.End()

	start := time.Now()
	trial := Trial{K: k}
	model, err := s.trainer.Train(ctx, train, vocab, k)
	if err == nil {
		trial.Iterations = model.Iterations
		if n := len(model.Objective); n > 0 {
			trial.Objective = model.Objective[n-1]
		}
	}
	var res coherence.Result
	if err == nil {
		res, err = s.scorer.Score(model, train)
	}
	trial.Duration = time.Since(start)
	s.metrics.ObserveTrial(k, trial.Duration, trial.Iterations, err)

	if err != nil {
		trial.Err = fmt.Errorf("k=%d: %w", k, err)
		span.SetAttr("error", err.Error())
		s.logger.Warn("trial failed", "k", k, "error", err)
		return trial, nil, res
	}
	trial.Coherence = res.Aggregate
	trial.TopicScores = res.Topics
	span.SetAttr("coherence", res.Aggregate)
	s.logger.Debug("trial scored",
		"k", k,
		"coherence", res.Aggregate,
		"iterations", trial.Iterations,
		"duration_ms", trial.Duration.Milliseconds(),
	)
	return trial, model, res
}

func isNumericalErr(err error) bool {
	return errors.Is(err, apperrors.ErrNumericalInstability) || errors.Is(err, apperrors.ErrDegenerateTopic)
}

func isContextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, apperrors.ErrTimeout) || errors.Is(err, context.DeadlineExceeded)
}
