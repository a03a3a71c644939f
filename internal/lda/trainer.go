package lda

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/Adithya-Monish-Kumar-K/topic-crossval/internal/corpus"
	"github.com/Adithya-Monish-Kumar-K/topic-crossval/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/topic-crossval/pkg/errors"
	"golang.org/x/exp/rand"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
)

// Config holds the trainer settings. Zero Alpha or Eta means 1/K.
type Config struct {
	MaxIterations   int
	Tolerance       float64
	GammaIterations int
	GammaThreshold  float64
	Alpha           float64
	AlphaMode       string
	Eta             float64
	Workers         int
	Seed            uint64
}

// ConfigFromRun copies the trainer settings out of a run configuration.
func ConfigFromRun(run config.RunConfig) Config {
	return Config{
		MaxIterations:   run.MaxIterations,
		Tolerance:       run.Tolerance,
		GammaIterations: run.GammaIterations,
		GammaThreshold:  run.GammaThreshold,
		Alpha:           run.Alpha,
		AlphaMode:       run.AlphaMode,
		Eta:             run.Eta,
		Workers:         run.Workers,
		Seed:            run.Seed,
	}
}

// Trainer fits LDA models with batch variational Bayes.
type Trainer struct {
	cfg    Config
	logger *slog.Logger
}

func NewTrainer(cfg Config) *Trainer {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.MaxIterations < 1 {
		cfg.MaxIterations = 1
	}
	if cfg.GammaIterations < 1 {
		cfg.GammaIterations = 1
	}
	if cfg.AlphaMode == "" {
		cfg.AlphaMode = config.AlphaSymmetric
	}
	return &Trainer{
		cfg:    cfg,
		logger: slog.Default().With("component", "lda-trainer"),
	}
}

func (t *Trainer) Config() Config {
	return t.cfg
}

// Train fits a k-topic model to docs. Word ids must index vocab. The
// result is identical for any worker count given the same seed.
func (t *Trainer) Train(ctx context.Context, docs *corpus.Corpus, vocab *corpus.Vocabulary, k int) (*Model, error) {
	if k < 2 {
		return nil, apperrors.Newf(apperrors.ErrInvalidConfiguration, "topic count must be at least 2, got %d", k)
	}
	v := vocab.Len()
	if v == 0 {
		return nil, apperrors.New(apperrors.ErrInvalidCorpus, "vocabulary is empty")
	}
	if docs.Len() == 0 {
		return nil, apperrors.New(apperrors.ErrInvalidCorpus, "training corpus has no documents")
	}
	tokens := 0
	for _, d := range docs.Documents() {
		for _, id := range d.WordIDs {
			if id < 0 || id >= v {
				return nil, apperrors.Newf(apperrors.ErrInvalidCorpus, "document %q has word id %d outside vocabulary of %d", d.ID, id, v)
			}
		}
		tokens += d.Len()
	}
	if tokens == 0 {
		return nil, apperrors.New(apperrors.ErrInvalidCorpus, "training corpus has no tokens")
	}

	start := time.Now()
	alpha := make([]float64, k)
	a := t.cfg.Alpha
	if a <= 0 {
		a = 1 / float64(k)
	}
	for i := range alpha {
		alpha[i] = a
	}
	eta := t.cfg.Eta
	if eta <= 0 {
		eta = 1 / float64(k)
	}

	lambda := initLambda(k, v, t.cfg.Seed)
	elogBeta := mat.NewDense(k, v, nil)
	expElogBeta := mat.NewDense(k, v, nil)
	dirichletExpectationRows(lambda, elogBeta)
	expElogBeta.Apply(expAt, elogBeta)

	documents := docs.Documents()
	results := make([]docResult, len(documents))
	bounds := make([]float64, len(documents))
	sstats := mat.NewDense(k, v, nil)

	var (
		objective []float64
		converged bool
		passes    int
	)
	for pass := 0; pass < t.cfg.MaxIterations; pass++ {
		if err := ctx.Err(); err != nil {
			return nil, apperrors.FromContext(err, "training")
		}

		step := variational{
			alpha:       alpha,
			expElogBeta: expElogBeta,
			maxIter:     t.cfg.GammaIterations,
			threshold:   t.cfg.GammaThreshold,
		}
		if err := t.parallel(ctx, len(documents), func(i int) {
			results[i] = step.infer(documents[i].WordIDs, documents[i].Counts)
		}); err != nil {
			return nil, err
		}

		sstats.Zero()
		for i, d := range documents {
			res := results[i]
			for topic, e := range res.expElogTheta {
				row := sstats.RawRowView(topic)
				for j, id := range d.WordIDs {
					row[id] += e * res.ratio[j]
				}
			}
		}

		lambda.Apply(func(i, j int, _ float64) float64 {
			return eta + sstats.At(i, j)*expElogBeta.At(i, j)
		}, lambda)

		if t.cfg.AlphaMode == config.AlphaAuto {
			gammas := make([][]float64, len(results))
			for i := range results {
				gammas[i] = results[i].gamma
			}
			if err := updateAlpha(alpha, gammas, math.Pow(float64(pass+1), -0.5)); err != nil {
				return nil, err
			}
		}

		dirichletExpectationRows(lambda, elogBeta)
		expElogBeta.Apply(expAt, elogBeta)

		if err := t.parallel(ctx, len(documents), func(i int) {
			bounds[i] = documentBound(documents[i].WordIDs, documents[i].Counts, results[i].gamma, alpha, elogBeta)
		}); err != nil {
			return nil, err
		}
		total := topicBound(lambda, elogBeta, eta)
		for _, b := range bounds {
			total += b
		}
		perToken := total / float64(tokens)
		if math.IsNaN(perToken) || math.IsInf(perToken, 0) {
			return nil, apperrors.Newf(apperrors.ErrNumericalInstability, "objective is %v after pass %d", perToken, pass+1)
		}
		if hasNonFinite(lambda.RawMatrix().Data) {
			return nil, apperrors.Newf(apperrors.ErrNumericalInstability, "topic-word parameters diverged after pass %d", pass+1)
		}
		objective = append(objective, perToken)
		passes = pass + 1

		t.logger.Debug("variational pass",
			"k", k,
			"pass", passes,
			"objective", perToken,
		)
		if pass > 0 && math.Abs(perToken-objective[pass-1]) < t.cfg.Tolerance {
			converged = true
			break
		}
	}

	model, err := newModel(lambda, alpha, eta, vocab, t.cfg.GammaIterations, t.cfg.GammaThreshold)
	if err != nil {
		return nil, apperrors.Reclassify(err, "finalizing %d-topic model", k)
	}
	model.Objective = objective
	model.Iterations = passes
	model.Converged = converged

	t.logger.Info("model trained",
		"k", k,
		"documents", len(documents),
		"passes", passes,
		"converged", converged,
		"objective", objective[len(objective)-1],
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return model, nil
}

// parallel runs fn for every index in [0, n) on at most Workers goroutines.
func (t *Trainer) parallel(ctx context.Context, n int, fn func(i int)) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(t.cfg.Workers)
	for i := 0; i < n; i++ {
		i := i
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			fn(i)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return apperrors.FromContext(err, "variational pass")
	}
	return nil
}

func initLambda(k, v int, seed uint64) *mat.Dense {
	dist := distuv.Gamma{
		Alpha: 100,
		Beta:  100,
		Src:   rand.NewSource(seed),
	}
	data := make([]float64, k*v)
	for i := range data {
		data[i] = dist.Rand()
	}
	return mat.NewDense(k, v, data)
}

// documentBound is one document's contribution to the evidence lower bound
// with the word assignments optimized out.
func documentBound(ids, counts []int, gamma, alpha []float64, elogBeta *mat.Dense) float64 {
	k := len(gamma)
	elogTheta := make([]float64, k)
	dirichletExpectation(gamma, elogTheta)

	score := 0.0
	tmp := make([]float64, k)
	for j, id := range ids {
		for t := 0; t < k; t++ {
			tmp[t] = elogTheta[t] + elogBeta.At(t, id)
		}
		score += float64(counts[j]) * floats.LogSumExp(tmp)
	}
	for t := 0; t < k; t++ {
		score += (alpha[t]-gamma[t])*elogTheta[t] + lgamma(gamma[t]) - lgamma(alpha[t])
	}
	score += lgamma(floats.Sum(alpha)) - lgamma(floats.Sum(gamma))
	return score
}

// topicBound is the topic-word part of the evidence lower bound.
func topicBound(lambda, elogBeta *mat.Dense, eta float64) float64 {
	k, v := lambda.Dims()
	score := 0.0
	lgEta := lgamma(eta)
	lgEtaSum := lgamma(eta * float64(v))
	for t := 0; t < k; t++ {
		row := lambda.RawRowView(t)
		elog := elogBeta.RawRowView(t)
		for w, l := range row {
			score += (eta-l)*elog[w] + lgamma(l) - lgEta
		}
		score += lgEtaSum - lgamma(floats.Sum(row))
	}
	return score
}

func hasNonFinite(xs []float64) bool {
	for _, x := range xs {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return true
		}
	}
	return false
}

func (c Config) String() string {
	return fmt.Sprintf("iter=%d tol=%g giter=%d gthr=%g alpha=%g/%s eta=%g seed=%d",
		c.MaxIterations, c.Tolerance, c.GammaIterations, c.GammaThreshold,
		c.Alpha, c.AlphaMode, c.Eta, c.Seed)
}
