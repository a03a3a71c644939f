package modelcache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/topic-crossval/internal/corpus"
	"github.com/Adithya-Monish-Kumar-K/topic-crossval/internal/lda"
	"github.com/Adithya-Monish-Kumar-K/topic-crossval/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/topic-crossval/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/topic-crossval/pkg/resilience"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

type memStore struct {
	mu   sync.Mutex
	data map[string][]byte
	fail error
	gets atomic.Int32
}

func newMemStore() *memStore {
	return &memStore{data: make(map[string][]byte)}
}

func (s *memStore) Get(_ context.Context, key string) ([]byte, error) {
	s.gets.Add(1)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return nil, s.fail
	}
	v, ok := s.data[key]
	if !ok {
		return nil, goredis.Nil
	}
	return v, nil
}

func (s *memStore) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return s.fail
	}
	s.data[key] = value
	return nil
}

type countingTrainer struct {
	inner *lda.Trainer
	calls atomic.Int32
}

func (c *countingTrainer) Train(ctx context.Context, docs *corpus.Corpus, vocab *corpus.Vocabulary, k int) (*lda.Model, error) {
	c.calls.Add(1)
	return c.inner.Train(ctx, docs, vocab, k)
}

func fixture(t *testing.T) (*corpus.Vocabulary, *corpus.Corpus, *countingTrainer, string) {
	t.Helper()
	records := make([]corpus.Record, 8)
	for i := range records {
		base := (i % 2) * 6
		tokens := make([]string, 0, 12)
		for j := 0; j < 12; j++ {
			tokens = append(tokens, fmt.Sprintf("w%02d", base+(i+j)%6))
		}
		records[i] = corpus.Record{ID: fmt.Sprintf("d%d", i), Tokens: tokens}
	}
	vocab, c, err := corpus.BuildVocabulary(records, corpus.Options{})
	require.NoError(t, err)
	cfg := lda.Config{
		MaxIterations:   10,
		Tolerance:       1e-4,
		GammaIterations: 50,
		GammaThreshold:  1e-3,
		AlphaMode:       config.AlphaSymmetric,
		Workers:         1,
		Seed:            3,
	}
	return vocab, c, &countingTrainer{inner: lda.NewTrainer(cfg)}, cfg.String()
}

func TestSecondTrainingIsServedFromStore(t *testing.T) {
	vocab, c, inner, salt := fixture(t)
	m := metrics.New(prometheus.NewRegistry())
	store := newMemStore()
	cache, err := New(inner, salt, store, Options{TTL: time.Hour, Metrics: m})
	require.NoError(t, err)

	first, err := cache.Train(context.Background(), c, vocab, 2)
	require.NoError(t, err)
	second, err := cache.Train(context.Background(), c, vocab, 2)
	require.NoError(t, err)

	require.Equal(t, int32(1), inner.calls.Load())
	require.Len(t, store.data, 1)
	require.Equal(t, first.Alpha, second.Alpha)
	require.Equal(t, first.TopicWord.RawMatrix().Data, second.TopicWord.RawMatrix().Data)

	doc, _ := c.Get("d0")
	a, err := first.Infer(doc)
	require.NoError(t, err)
	b, err := second.Infer(doc)
	require.NoError(t, err)
	require.InDeltaSlice(t, []float64(a), []float64(b), 1e-12)

	hits, _ := cache.Stats()
	require.Equal(t, int64(1), hits)
	require.Equal(t, 1.0, testutil.ToFloat64(m.CacheHitsTotal))
}

func TestKeyDependsOnInputs(t *testing.T) {
	vocab, c, inner, salt := fixture(t)
	cache, err := New(inner, salt, newMemStore(), Options{})
	require.NoError(t, err)
	other, err := New(inner, salt+" changed", newMemStore(), Options{})
	require.NoError(t, err)

	sub, err := c.Subset([]string{"d0", "d1", "d2"})
	require.NoError(t, err)

	base := cache.Key(c, vocab, 2)
	require.Equal(t, base, cache.Key(c, vocab, 2))
	require.NotEqual(t, base, cache.Key(c, vocab, 3))
	require.NotEqual(t, base, cache.Key(sub, vocab, 2))
	require.NotEqual(t, base, other.Key(c, vocab, 2))
}

func TestKeyDependsOnWordCounts(t *testing.T) {
	_, _, inner, salt := fixture(t)
	cache, err := New(inner, salt, newMemStore(), Options{})
	require.NoError(t, err)

	build := func(a, b []string) (*corpus.Vocabulary, *corpus.Corpus) {
		vocab, c, err := corpus.BuildVocabulary([]corpus.Record{
			{ID: "a", Tokens: a},
			{ID: "b", Tokens: b},
		}, corpus.Options{})
		require.NoError(t, err)
		return vocab, c
	}
	vocab1, c1 := build([]string{"x", "y"}, []string{"y"})
	vocab2, c2 := build([]string{"x", "x", "x", "y"}, []string{"x", "y", "y", "y"})
	require.Equal(t, vocab1.Fingerprint(), vocab2.Fingerprint())
	require.Equal(t, c1.IDs(), c2.IDs())

	require.NotEqual(t, cache.Key(c1, vocab1, 2), cache.Key(c2, vocab2, 2))
}

func TestStoreFailureFallsBackAndOpensBreaker(t *testing.T) {
	vocab, c, inner, salt := fixture(t)
	store := newMemStore()
	store.fail = errors.New("connection refused")
	m := metrics.New(prometheus.NewRegistry())
	cache, err := New(inner, salt, store, Options{
		Breaker: resilience.CircuitBreakerConfig{FailureThreshold: 2, ResetTimeout: time.Hour},
		Metrics: m,
	})
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err := cache.Train(context.Background(), c, vocab, 2)
		require.NoError(t, err)
	}
	require.Equal(t, int32(3), inner.calls.Load())
	require.Equal(t, resilience.StateOpen, cache.breaker.GetState())
	require.Equal(t, float64(resilience.StateOpen), testutil.ToFloat64(m.CircuitBreakerState.WithLabelValues("model-cache")))

	gets := store.gets.Load()
	_, err = cache.Train(context.Background(), c, vocab, 2)
	require.NoError(t, err)
	require.Equal(t, gets, store.gets.Load(), "open breaker must skip the store")
}

func TestMissesDoNotTripBreaker(t *testing.T) {
	vocab, c, inner, salt := fixture(t)
	cache, err := New(inner, salt, newMemStore(), Options{
		Breaker: resilience.CircuitBreakerConfig{FailureThreshold: 1},
	})
	require.NoError(t, err)
	for k := 2; k <= 4; k++ {
		_, err := cache.Train(context.Background(), c, vocab, k)
		require.NoError(t, err)
	}
	require.Equal(t, resilience.StateClosed, cache.breaker.GetState())
	_, misses := cache.Stats()
	require.Equal(t, int64(6), misses)
}

func TestCorruptEntryIsRetrained(t *testing.T) {
	vocab, c, inner, salt := fixture(t)
	store := newMemStore()
	cache, err := New(inner, salt, store, Options{})
	require.NoError(t, err)
	store.data[cache.Key(c, vocab, 2)] = []byte("not zstd")

	model, err := cache.Train(context.Background(), c, vocab, 2)
	require.NoError(t, err)
	require.NotNil(t, model)
	require.Equal(t, int32(1), inner.calls.Load())
}

func TestConcurrentTrainingsShareOneRun(t *testing.T) {
	vocab, c, inner, salt := fixture(t)
	cache, err := New(inner, salt, newMemStore(), Options{})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := cache.Train(context.Background(), c, vocab, 2)
			require.NoError(t, err)
		}()
	}
	wg.Wait()
	require.LessOrEqual(t, inner.calls.Load(), int32(4))
	require.GreaterOrEqual(t, inner.calls.Load(), int32(1))
}
