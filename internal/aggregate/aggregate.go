// Package aggregate turns the per-fold (document, topic, probability)
// records into one stable topic distribution per document.
package aggregate

import (
	"math"

	apperrors "github.com/Adithya-Monish-Kumar-K/topic-crossval/pkg/errors"
	"gonum.org/v1/gonum/floats"
)

// Record is one (document, topic) probability produced by a fold.
type Record struct {
	DocumentID  string
	TopicID     int
	Probability float64
	FoldIndex   int
}

// Input is the record list of one fold together with its topic count.
// Rows may omit topics; omitted topics are treated as probability 0.
type Input struct {
	FoldIndex int
	K         int
	Rows      []Record
}

// Result is the aggregated distribution of one document.
type Result struct {
	DocumentID          string
	Distribution        []float64
	DominantTopic       int
	DominantProbability float64
	Occurrences         int
}

// Aggregate rebuilds a dense, normalized vector per (fold, document),
// averages the vectors of each document component-wise and picks the
// dominant topic. Vectors of different length are padded with zeros to the
// widest K. The output depends only on the input.
func Aggregate(inputs []Input) (map[string]Result, error) {
	sums := make(map[string][]float64)
	counts := make(map[string]int)

	for _, in := range inputs {
		vectors, order, err := denseVectors(in)
		if err != nil {
			return nil, err
		}
		for _, id := range order {
			vec := vectors[id]
			acc := sums[id]
			if len(acc) < len(vec) {
				acc = append(acc, make([]float64, len(vec)-len(acc))...)
			}
			floats.Add(acc[:len(vec)], vec)
			sums[id] = acc
			counts[id]++
		}
	}

	results := make(map[string]Result, len(sums))
	for id, acc := range sums {
		n := counts[id]
		dist := make([]float64, len(acc))
		floats.ScaleTo(dist, 1/float64(n), acc)
		top := floats.MaxIdx(dist)
		results[id] = Result{
			DocumentID:          id,
			Distribution:        dist,
			DominantTopic:       top,
			DominantProbability: dist[top],
			Occurrences:         n,
		}
	}
	return results, nil
}

func denseVectors(in Input) (map[string][]float64, []string, error) {
	if in.K < 1 {
		return nil, nil, apperrors.Newf(apperrors.ErrInvalidConfiguration, "fold %d has topic count %d", in.FoldIndex, in.K)
	}
	vectors := make(map[string][]float64)
	seen := make(map[string]map[int]struct{})
	var order []string
	for _, row := range in.Rows {
		if row.TopicID < 0 || row.TopicID >= in.K {
			return nil, nil, apperrors.Newf(apperrors.ErrNumericalInstability,
				"fold %d document %q: topic %d outside [0, %d)", in.FoldIndex, row.DocumentID, row.TopicID, in.K)
		}
		p := row.Probability
		if math.IsNaN(p) || math.IsInf(p, 0) || p < 0 {
			return nil, nil, apperrors.Newf(apperrors.ErrNumericalInstability,
				"fold %d document %q topic %d: invalid probability %v", in.FoldIndex, row.DocumentID, row.TopicID, p)
		}
		vec, ok := vectors[row.DocumentID]
		if !ok {
			vec = make([]float64, in.K)
			vectors[row.DocumentID] = vec
			seen[row.DocumentID] = make(map[int]struct{})
			order = append(order, row.DocumentID)
		}
		if _, dup := seen[row.DocumentID][row.TopicID]; dup {
			return nil, nil, apperrors.Newf(apperrors.ErrNumericalInstability,
				"fold %d document %q: topic %d listed twice", in.FoldIndex, row.DocumentID, row.TopicID)
		}
		seen[row.DocumentID][row.TopicID] = struct{}{}
		vec[row.TopicID] = p
	}
	for _, id := range order {
		vec := vectors[id]
		sum := floats.Sum(vec)
		if sum <= 0 {
			return nil, nil, apperrors.Newf(apperrors.ErrNumericalInstability,
				"fold %d document %q has zero probability mass", in.FoldIndex, id)
		}
		floats.Scale(1/sum, vec)
	}
	return vectors, order, nil
}

// Lookup returns the aggregated result for id.
func Lookup(results map[string]Result, id string) (Result, error) {
	r, ok := results[id]
	if !ok {
		return Result{}, apperrors.Newf(apperrors.ErrMissingDocument, "document %q has no topic distribution", id)
	}
	return r, nil
}

// DocumentOrder lists document ids in order of first appearance.
func DocumentOrder(inputs []Input) []string {
	seen := make(map[string]struct{})
	var ids []string
	for _, in := range inputs {
		for _, row := range in.Rows {
			if _, ok := seen[row.DocumentID]; ok {
				continue
			}
			seen[row.DocumentID] = struct{}{}
			ids = append(ids, row.DocumentID)
		}
	}
	return ids
}

// Width returns the widest distribution length among results.
func Width(results map[string]Result) int {
	w := 0
	for _, r := range results {
		if len(r.Distribution) > w {
			w = len(r.Distribution)
		}
	}
	return w
}
