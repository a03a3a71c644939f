package aggregate

import (
	"sort"

	apperrors "github.com/Adithya-Monish-Kumar-K/topic-crossval/pkg/errors"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// DominantCounts returns how many documents have each topic as their
// dominant topic, indexed by topic id.
func DominantCounts(results map[string]Result) []int {
	counts := make([]int, Width(results))
	for _, r := range results {
		counts[r.DominantTopic]++
	}
	return counts
}

// Similarity returns the cosine similarity between the aggregated
// distributions of ids, row and column order following ids.
func Similarity(results map[string]Result, ids []string) (*mat.Dense, error) {
	if len(ids) == 0 {
		return nil, apperrors.New(apperrors.ErrMissingDocument, "no documents to compare")
	}
	width := Width(results)
	x := mat.NewDense(len(ids), width, nil)
	for i, id := range ids {
		r, err := Lookup(results, id)
		if err != nil {
			return nil, err
		}
		row := x.RawRowView(i)
		copy(row, r.Distribution)
		if norm := floats.Norm(row, 2); norm > 0 {
			floats.Scale(1/norm, row)
		}
	}
	var sim mat.Dense
	sim.Mul(x, x.T())
	return &sim, nil
}

// PrevalenceRow is the mean probability of one topic within a group.
type PrevalenceRow struct {
	Group           string
	TopicID         int
	MeanProbability float64
	Documents       int
}

// Prevalence averages each topic's probability over the documents of every
// group. Documents without a group label are skipped. Rows are ordered by
// group, then topic.
func Prevalence(results map[string]Result, groups map[string]string) []PrevalenceRow {
	width := Width(results)
	byGroup := make(map[string][][]float64)
	for id, r := range results {
		g, ok := groups[id]
		if !ok || g == "" {
			continue
		}
		byGroup[g] = append(byGroup[g], r.Distribution)
	}

	names := make([]string, 0, len(byGroup))
	for g := range byGroup {
		names = append(names, g)
	}
	sort.Strings(names)

	rows := make([]PrevalenceRow, 0, len(names)*width)
	column := make([]float64, 0)
	for _, g := range names {
		dists := byGroup[g]
		for t := 0; t < width; t++ {
			column = column[:0]
			for _, d := range dists {
				p := 0.0
				if t < len(d) {
					p = d[t]
				}
				column = append(column, p)
			}
			rows = append(rows, PrevalenceRow{
				Group:           g,
				TopicID:         t,
				MeanProbability: stat.Mean(column, nil),
				Documents:       len(dists),
			})
		}
	}
	return rows
}
