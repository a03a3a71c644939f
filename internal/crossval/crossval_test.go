package crossval

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/topic-crossval/internal/aggregate"
	"github.com/Adithya-Monish-Kumar-K/topic-crossval/internal/coherence"
	"github.com/Adithya-Monish-Kumar-K/topic-crossval/internal/corpus"
	"github.com/Adithya-Monish-Kumar-K/topic-crossval/internal/lda"
	"github.com/Adithya-Monish-Kumar-K/topic-crossval/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/topic-crossval/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/topic-crossval/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"
)

// smallCorpus has 10 documents over a 20-word vocabulary split into two
// themes.
func smallCorpus(t *testing.T) (*corpus.Vocabulary, *corpus.Corpus) {
	t.Helper()
	records := make([]corpus.Record, 10)
	for i := range records {
		base := (i % 2) * 10
		tokens := make([]string, 0, 15)
		for j := 0; j < 15; j++ {
			tokens = append(tokens, fmt.Sprintf("w%02d", base+(i+j*3)%10))
		}
		records[i] = corpus.Record{ID: fmt.Sprintf("d%02d", i), Tokens: tokens}
	}
	vocab, c, err := corpus.BuildVocabulary(records, corpus.Options{})
	require.NoError(t, err)
	require.Equal(t, 20, vocab.Len())
	return vocab, c
}

func runConfig() config.RunConfig {
	return config.RunConfig{
		Folds:           5,
		Shuffle:         true,
		Seed:            42,
		CandidateKs:     []int{2, 3},
		MaxIterations:   10,
		Tolerance:       1e-4,
		GammaIterations: 50,
		GammaThreshold:  1e-3,
		AlphaMode:       config.AlphaSymmetric,
		Workers:         2,
		FoldWorkers:     2,
	}
}

func coherenceConfig() config.CoherenceConfig {
	return config.CoherenceConfig{TopN: 5, Window: 10}
}

func TestRunEndToEnd(t *testing.T) {
	vocab, c := smallCorpus(t)
	orch := New(Options{Run: runConfig(), Coherence: coherenceConfig()})

	report, err := orch.Run(context.Background(), c, vocab)
	require.NoError(t, err)
	require.Equal(t, 5, report.Succeeded)
	require.Len(t, report.Folds, 5)

	rowsPerDoc := make(map[string][]float64)
	kPerDoc := make(map[string]int)
	for _, rec := range report.Records {
		rowsPerDoc[rec.DocumentID] = append(rowsPerDoc[rec.DocumentID], rec.Probability)
		kPerDoc[rec.DocumentID] = report.Folds[rec.FoldIndex].K
	}
	require.Len(t, rowsPerDoc, 10)
	for id, probs := range rowsPerDoc {
		require.Len(t, probs, kPerDoc[id], id)
		require.InDelta(t, 1.0, floats.Sum(probs), 1e-6, id)
	}
	for _, f := range report.Folds {
		require.Contains(t, []int{2, 3}, f.K)
		require.Len(t, f.Trials, 2)
		require.Equal(t, 8, f.TrainSize)
		require.Equal(t, 2, f.TestSize)
	}

	again, err := New(Options{Run: runConfig(), Coherence: coherenceConfig()}).Run(context.Background(), c, vocab)
	require.NoError(t, err)
	for i := range report.Folds {
		require.Equal(t, report.Folds[i].Coherence.Aggregate, again.Folds[i].Coherence.Aggregate)
		require.Equal(t, report.Folds[i].K, again.Folds[i].K)
	}
	require.Equal(t, report.Records, again.Records)
	require.Equal(t, report.MeanCoherence, again.MeanCoherence)

	results, err := aggregate.Aggregate(report.Inputs())
	require.NoError(t, err)
	require.Len(t, results, 10)
	for _, r := range results {
		require.Equal(t, 1, r.Occurrences)
		require.InDelta(t, 1.0, floats.Sum(r.Distribution), 1e-6)
	}
}

func TestRunFixedK(t *testing.T) {
	vocab, c := smallCorpus(t)
	run := runConfig()
	run.CandidateKs = nil
	run.FixedK = 4
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	report, err := New(Options{Run: run, Coherence: coherenceConfig(), Metrics: m}).Run(context.Background(), c, vocab)
	require.NoError(t, err)
	require.Len(t, report.Records, 10*4)
	for _, f := range report.Folds {
		require.Equal(t, 4, f.K)
		require.Empty(t, f.Trials)
	}
	require.Equal(t, 5.0, testutil.ToFloat64(m.TrialsTotal.WithLabelValues("ok")))
	require.Equal(t, 10.0, testutil.ToFloat64(m.DocumentsInferred))
}

type countingTrainer struct {
	calls atomic.Int32
}

func (c *countingTrainer) Train(context.Context, *corpus.Corpus, *corpus.Vocabulary, int) (*lda.Model, error) {
	c.calls.Add(1)
	return nil, fmt.Errorf("unexpected call")
}

func TestRunValidatesBeforeTraining(t *testing.T) {
	vocab, c := smallCorpus(t)
	tests := []struct {
		name   string
		mutate func(*config.RunConfig, *config.CoherenceConfig)
	}{
		{"one fold", func(r *config.RunConfig, _ *config.CoherenceConfig) { r.Folds = 1 }},
		{"more folds than documents", func(r *config.RunConfig, _ *config.CoherenceConfig) { r.Folds = 11 }},
		{"candidate below two", func(r *config.RunConfig, _ *config.CoherenceConfig) { r.CandidateKs = []int{1, 3} }},
		{"topN below two", func(_ *config.RunConfig, c *config.CoherenceConfig) { c.TopN = 1 }},
		{"window below two", func(_ *config.RunConfig, c *config.CoherenceConfig) { c.Window = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			run, coh := runConfig(), coherenceConfig()
			tt.mutate(&run, &coh)
			trainer := &countingTrainer{}
			_, err := New(Options{Run: run, Coherence: coh, Trainer: trainer}).Run(context.Background(), c, vocab)
			require.ErrorIs(t, err, apperrors.ErrInvalidConfiguration)
			require.Zero(t, trainer.calls.Load())
		})
	}
}

// flakyTrainer fails the fold whose held-out set contains doc.
type flakyTrainer struct {
	inner *lda.Trainer
	doc   string
}

func (f flakyTrainer) Train(ctx context.Context, docs *corpus.Corpus, vocab *corpus.Vocabulary, k int) (*lda.Model, error) {
	if _, ok := docs.Get(f.doc); !ok {
		return nil, apperrors.New(apperrors.ErrNumericalInstability, "objective diverged")
	}
	return f.inner.Train(ctx, docs, vocab, k)
}

func TestRunIsolatesFailedFold(t *testing.T) {
	vocab, c := smallCorpus(t)
	run := runConfig()
	run.CandidateKs = nil
	run.FixedK = 2
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	trainer := flakyTrainer{inner: lda.NewTrainer(lda.ConfigFromRun(run)), doc: "d00"}

	report, err := New(Options{Run: run, Coherence: coherenceConfig(), Trainer: trainer, Metrics: m}).
		Run(context.Background(), c, vocab)
	require.NoError(t, err)
	require.Equal(t, 4, report.Succeeded)
	require.Len(t, report.Records, 8*2)

	var failed int
	scores := 0.0
	for _, f := range report.Folds {
		if f.Err != nil {
			failed++
			require.ErrorIs(t, f.Err, apperrors.ErrNumericalInstability)
			continue
		}
		scores += f.Coherence.Aggregate
	}
	require.Equal(t, 1, failed)
	require.InDelta(t, scores/4, report.MeanCoherence, 1e-12)
	require.Len(t, report.Inputs(), 4)
	for _, rec := range report.Records {
		require.NotEqual(t, "d00", rec.DocumentID)
	}
	require.Equal(t, 1.0, testutil.ToFloat64(m.FoldsFailedTotal.WithLabelValues("numerical")))
}

// sweepFailTrainer fails the k=failK trial with a numerical error on the
// fold whose training set lacks doc.
type sweepFailTrainer struct {
	inner *lda.Trainer
	doc   string
	failK int
}

func (f sweepFailTrainer) Train(ctx context.Context, docs *corpus.Corpus, vocab *corpus.Vocabulary, k int) (*lda.Model, error) {
	if _, ok := docs.Get(f.doc); !ok && k == f.failK {
		return nil, apperrors.New(apperrors.ErrNumericalInstability, "alpha became NaN")
	}
	return f.inner.Train(ctx, docs, vocab, k)
}

func TestRunFailsFoldOnNumericalSweepTrial(t *testing.T) {
	vocab, c := smallCorpus(t)
	run := runConfig()
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	trainer := sweepFailTrainer{inner: lda.NewTrainer(lda.ConfigFromRun(run)), doc: "d00", failK: 3}

	report, err := New(Options{Run: run, Coherence: coherenceConfig(), Trainer: trainer, Metrics: m}).
		Run(context.Background(), c, vocab)
	require.NoError(t, err)
	require.Equal(t, 4, report.Succeeded)

	var failed int
	scores := 0.0
	for _, f := range report.Folds {
		if f.Err != nil {
			failed++
			require.ErrorIs(t, f.Err, apperrors.ErrNumericalInstability)
			require.Nil(t, f.Model)
			continue
		}
		scores += f.Coherence.Aggregate
	}
	require.Equal(t, 1, failed)
	require.InDelta(t, scores/4, report.MeanCoherence, 1e-12)
	for _, rec := range report.Records {
		require.NotEqual(t, "d00", rec.DocumentID)
	}
	require.Equal(t, 1.0, testutil.ToFloat64(m.FoldsFailedTotal.WithLabelValues("numerical")))
}

type fixedTrainer struct {
	model *lda.Model
}

func (f fixedTrainer) Train(context.Context, *corpus.Corpus, *corpus.Vocabulary, int) (*lda.Model, error) {
	return f.model, nil
}

type slowScorer struct {
	delay time.Duration
	done  *atomic.Int32
}

func (s slowScorer) Score(*lda.Model, *corpus.Corpus) (coherence.Result, error) {
	defer s.done.Add(1)
	time.Sleep(s.delay)
	return coherence.Result{Aggregate: 0.5, Topics: []float64{0.5, 0.5}}, nil
}

func TestRunTimedOutFoldRecordsNoCoherence(t *testing.T) {
	vocab, c := smallCorpus(t)
	run := runConfig()
	run.CandidateKs = nil
	run.FixedK = 2
	run.FoldTimeout = 30 * time.Millisecond
	model, err := lda.NewTrainer(lda.ConfigFromRun(run)).Train(context.Background(), c, vocab, 2)
	require.NoError(t, err)

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	var scored atomic.Int32
	scorer := slowScorer{delay: 150 * time.Millisecond, done: &scored}

	_, err = New(Options{Run: run, Coherence: coherenceConfig(), Trainer: fixedTrainer{model: model}, Scorer: scorer, Metrics: m}).
		Run(context.Background(), c, vocab)
	require.ErrorIs(t, err, apperrors.ErrTimeout)

	require.Eventually(t, func() bool { return scored.Load() == int32(run.Folds) }, 2*time.Second, 10*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	require.Equal(t, 0, testutil.CollectAndCount(m.FoldCoherence))
	require.Equal(t, 5.0, testutil.ToFloat64(m.FoldsFailedTotal.WithLabelValues("timeout")))
}

type blockingTrainer struct{}

func (blockingTrainer) Train(ctx context.Context, _ *corpus.Corpus, _ *corpus.Vocabulary, _ int) (*lda.Model, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestRunFoldTimeout(t *testing.T) {
	vocab, c := smallCorpus(t)
	run := runConfig()
	run.FoldTimeout = 20 * time.Millisecond

	_, err := New(Options{Run: run, Coherence: coherenceConfig(), Trainer: blockingTrainer{}}).
		Run(context.Background(), c, vocab)
	require.ErrorIs(t, err, apperrors.ErrTimeout)
}

func TestRunCancelled(t *testing.T) {
	vocab, c := smallCorpus(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New(Options{Run: runConfig(), Coherence: coherenceConfig()}).Run(ctx, c, vocab)
	require.ErrorIs(t, err, context.Canceled)
}
