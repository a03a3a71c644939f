// Package coherence scores topics by how consistently their top words
// co-occur in a reference corpus. The measure compares NPMI context vectors
// of the top words by cosine similarity over boolean sliding windows.
package coherence

import (
	"math"
	"sort"

	"github.com/Adithya-Monish-Kumar-K/topic-crossval/internal/corpus"
	"github.com/Adithya-Monish-Kumar-K/topic-crossval/internal/lda"
	apperrors "github.com/Adithya-Monish-Kumar-K/topic-crossval/pkg/errors"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

const epsilon = 1e-12

// Result is the coherence of a model: one score per topic and their mean.
type Result struct {
	Topics    []float64
	Aggregate float64
	TopWords  [][]int
}

// TopWords returns, for every topic, the ids of its topN most probable
// words. Ties go to the lower word id.
func TopWords(model *lda.Model, topN int) [][]int {
	k, v := model.TopicWord.Dims()
	if topN > v {
		topN = v
	}
	out := make([][]int, k)
	for t := 0; t < k; t++ {
		row := model.TopicWord.RawRowView(t)
		idx := make([]int, v)
		for i := range idx {
			idx[i] = i
		}
		sort.SliceStable(idx, func(a, b int) bool {
			return row[idx[a]] > row[idx[b]]
		})
		out[t] = append([]int(nil), idx[:topN]...)
	}
	return out
}

// Score computes the coherence of model's topics against reference.
func Score(model *lda.Model, topN int, reference *corpus.Corpus, window int) (Result, error) {
	if topN < 2 {
		return Result{}, apperrors.Newf(apperrors.ErrInvalidConfiguration, "coherence needs at least 2 top words, got %d", topN)
	}
	if window < 2 {
		return Result{}, apperrors.Newf(apperrors.ErrInvalidConfiguration, "coherence window must be at least 2, got %d", window)
	}
	topics := TopWords(model, topN)
	stats := NewWindowStats(reference, window, union(topics))
	return ScoreTopics(topics, stats)
}

// ScoreTopics scores each topic's top words against precomputed window
// statistics. It has no side effects.
func ScoreTopics(topics [][]int, stats *WindowStats) (Result, error) {
	if len(topics) == 0 {
		return Result{}, apperrors.New(apperrors.ErrDegenerateTopic, "no topics to score")
	}
	scores := make([]float64, len(topics))
	for t, words := range topics {
		if distinct(words) < 2 {
			return Result{}, apperrors.Newf(apperrors.ErrDegenerateTopic, "topic %d has fewer than 2 distinct top words", t)
		}
		s := topicScore(words, stats)
		if math.IsNaN(s) || math.IsInf(s, 0) {
			return Result{}, apperrors.Newf(apperrors.ErrNumericalInstability, "topic %d coherence is %v", t, s)
		}
		scores[t] = s
	}
	agg := stat.Mean(scores, nil)
	if math.IsNaN(agg) || math.IsInf(agg, 0) {
		return Result{}, apperrors.Newf(apperrors.ErrNumericalInstability, "aggregate coherence is %v", agg)
	}
	out := make([][]int, len(topics))
	for i, words := range topics {
		out[i] = append([]int(nil), words...)
	}
	return Result{Topics: scores, Aggregate: agg, TopWords: out}, nil
}

func topicScore(words []int, stats *WindowStats) float64 {
	n := len(words)
	vectors := make([][]float64, n)
	for i, a := range words {
		vec := make([]float64, n)
		for j, b := range words {
			vec[j] = NPMI(stats, a, b)
		}
		vectors[i] = vec
	}
	sum, pairs := 0.0, 0
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			sum += cosine(vectors[i], vectors[j])
			pairs++
		}
	}
	return sum / float64(pairs)
}

// NPMI is the normalized pointwise mutual information of two words. A word
// is fully associated with itself once observed; a word never observed
// has zero association with everything.
func NPMI(stats *WindowStats, a, b int) float64 {
	ca, cb := stats.Occurrences(a), stats.Occurrences(b)
	if ca == 0 || cb == 0 || stats.Windows == 0 {
		return 0
	}
	if a == b {
		return 1
	}
	w := float64(stats.Windows)
	pa, pb := float64(ca)/w, float64(cb)/w
	pab := float64(stats.CoOccurrences(a, b))/w + epsilon
	den := -math.Log(pab)
	if den <= 0 {
		return 1
	}
	return math.Log(pab/(pa*pb)) / den
}

func cosine(a, b []float64) float64 {
	na, nb := floats.Norm(a, 2), floats.Norm(b, 2)
	if na == 0 || nb == 0 {
		return 0
	}
	return floats.Dot(a, b) / (na * nb)
}

func distinct(words []int) int {
	seen := make(map[int]struct{}, len(words))
	for _, w := range words {
		seen[w] = struct{}{}
	}
	return len(seen)
}

func union(topics [][]int) []int {
	seen := make(map[int]struct{})
	var out []int
	for _, words := range topics {
		for _, w := range words {
			if _, ok := seen[w]; !ok {
				seen[w] = struct{}{}
				out = append(out, w)
			}
		}
	}
	return out
}
