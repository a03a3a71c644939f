// Package modelcache memoizes trained topic models in Redis. A cached entry
// is the zstd-compressed JSON snapshot of an lda.Model keyed by everything
// that determines the training result: the training document ids, the topic
// count, the trainer settings and the vocabulary fingerprint.
package modelcache

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/Adithya-Monish-Kumar-K/topic-crossval/internal/corpus"
	"github.com/Adithya-Monish-Kumar-K/topic-crossval/internal/lda"
	"github.com/Adithya-Monish-Kumar-K/topic-crossval/internal/selector"
	"github.com/Adithya-Monish-Kumar-K/topic-crossval/pkg/metrics"
	pkgredis "github.com/Adithya-Monish-Kumar-K/topic-crossval/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/topic-crossval/pkg/resilience"
	"github.com/klauspost/compress/zstd"
	"golang.org/x/sync/singleflight"
)

const keyPrefix = "model:"

// Store is the byte store behind the cache. *pkgredis.Client satisfies it;
// a missing key must produce an error for which pkgredis.IsNilError is true.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

type Options struct {
	TTL     time.Duration
	Breaker resilience.CircuitBreakerConfig
	Metrics *metrics.Metrics
}

// Trainer wraps another trainer and serves repeated trainings from the
// store. Store failures never fail a training; they fall through to the
// wrapped trainer and, after enough of them, open the circuit breaker so
// the store is skipped entirely.
type Trainer struct {
	inner   selector.Trainer
	salt    string
	store   Store
	ttl     time.Duration
	breaker *resilience.CircuitBreaker
	metrics *metrics.Metrics
	group   singleflight.Group
	enc     *zstd.Encoder
	dec     *zstd.Decoder
	logger  *slog.Logger
	hits    atomic.Int64
	misses  atomic.Int64
}

// New wraps inner. salt identifies the inner trainer's settings, typically
// lda.Config.String().
func New(inner selector.Trainer, salt string, store Store, opts Options) (*Trainer, error) {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("creating zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("creating zstd decoder: %w", err)
	}
	m := opts.Metrics
	breakerCfg := opts.Breaker
	breakerCfg.OnStateChange = func(name string, state resilience.State) {
		m.SetBreakerState(name, int(state))
	}
	return &Trainer{
		inner:   inner,
		salt:    salt,
		store:   store,
		ttl:     opts.TTL,
		breaker: resilience.NewCircuitBreaker("model-cache", breakerCfg),
		metrics: m,
		enc:     enc,
		dec:     dec,
		logger:  slog.Default().With("component", "model-cache"),
	}, nil
}

// Train returns the cached model for this exact training input, or trains
// one with the wrapped trainer and stores it. Concurrent calls for the same
// key train once.
func (t *Trainer) Train(ctx context.Context, docs *corpus.Corpus, vocab *corpus.Vocabulary, k int) (*lda.Model, error) {
	key := t.Key(docs, vocab, k)
	if m, ok := t.get(ctx, key, vocab); ok {
		return m, nil
	}
	val, err, _ := t.group.Do(key, func() (interface{}, error) {
		if m, ok := t.get(ctx, key, vocab); ok {
			return m, nil
		}
		m, err := t.inner.Train(ctx, docs, vocab, k)
		if err != nil {
			return nil, err
		}
		t.set(ctx, key, m)
		return m, nil
	})
	if err != nil {
		return nil, err
	}
	return val.(*lda.Model), nil
}

// Key derives the cache key for a training input. Every document's id and
// bag of words go into the hash.
func (t *Trainer) Key(docs *corpus.Corpus, vocab *corpus.Vocabulary, k int) string {
	h := sha256.New()
	var buf [8]byte
	putInt := func(n int) {
		binary.LittleEndian.PutUint64(buf[:], uint64(n))
		h.Write(buf[:])
	}
	for _, doc := range docs.Documents() {
		putInt(len(doc.ID))
		h.Write([]byte(doc.ID))
		putInt(len(doc.WordIDs))
		for i, id := range doc.WordIDs {
			putInt(id)
			putInt(doc.Counts[i])
		}
	}
	h.Write([]byte("|k=" + strconv.Itoa(k)))
	h.Write([]byte("|" + t.salt))
	h.Write([]byte("|" + vocab.Fingerprint()))
	return fmt.Sprintf("%s%x", keyPrefix, h.Sum(nil)[:16])
}

// Stats returns the hit and miss counts since creation.
func (t *Trainer) Stats() (hits, misses int64) {
	return t.hits.Load(), t.misses.Load()
}

func (t *Trainer) get(ctx context.Context, key string, vocab *corpus.Vocabulary) (*lda.Model, bool) {
	var data []byte
	err := t.breaker.ExecuteClassified(func() error {
		var err error
		data, err = t.store.Get(ctx, key)
		return err
	}, isStoreFailure)
	if err != nil {
		if !pkgredis.IsNilError(err) {
			t.logger.Warn("cache get failed", "key", key, "error", err)
		}
		t.miss()
		return nil, false
	}

	raw, err := t.dec.DecodeAll(data, nil)
	if err != nil {
		t.logger.Error("cache decompress failed", "key", key, "error", err)
		t.miss()
		return nil, false
	}
	var snap lda.Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		t.logger.Error("cache unmarshal failed", "key", key, "error", err)
		t.miss()
		return nil, false
	}
	m, err := lda.FromSnapshot(snap, vocab)
	if err != nil {
		t.logger.Error("cached snapshot rejected", "key", key, "error", err)
		t.miss()
		return nil, false
	}
	t.hits.Add(1)
	t.metrics.CacheHit()
	t.logger.Debug("cache hit", "key", key, "k", snap.K)
	return m, true
}

func (t *Trainer) set(ctx context.Context, key string, m *lda.Model) {
	raw, err := json.Marshal(m.Snapshot())
	if err != nil {
		t.logger.Error("cache marshal failed", "key", key, "error", err)
		return
	}
	data := t.enc.EncodeAll(raw, make([]byte, 0, len(raw)/4))
	err = t.breaker.Execute(func() error {
		return t.store.Set(ctx, key, data, t.ttl)
	})
	if err != nil {
		t.logger.Warn("cache set failed", "key", key, "error", err)
		return
	}
	t.logger.Debug("cache stored", "key", key, "bytes", len(data), "raw_bytes", len(raw))
}

func (t *Trainer) miss() {
	t.misses.Add(1)
	t.metrics.CacheMiss()
}

func isStoreFailure(err error) bool {
	return !pkgredis.IsNilError(err)
}
