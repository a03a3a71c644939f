package aggregate

import (
	"testing"

	apperrors "github.com/Adithya-Monish-Kumar-K/topic-crossval/pkg/errors"
	"github.com/stretchr/testify/require"
)

func sampleResults(t *testing.T) map[string]Result {
	t.Helper()
	results, err := Aggregate([]Input{{
		K: 2,
		Rows: append(append(
			rows(0, "a", 0.9, 0.1),
			rows(0, "b", 0.8, 0.2)...),
			rows(0, "c", 0.0, 1.0)...),
	}})
	require.NoError(t, err)
	return results
}

func TestDominantCounts(t *testing.T) {
	require.Equal(t, []int{2, 1}, DominantCounts(sampleResults(t)))
}

func TestSimilarity(t *testing.T) {
	results := sampleResults(t)
	sim, err := Similarity(results, []string{"a", "c", "b"})
	require.NoError(t, err)

	r, c := sim.Dims()
	require.Equal(t, 3, r)
	require.Equal(t, 3, c)
	for i := 0; i < 3; i++ {
		require.InDelta(t, 1.0, sim.At(i, i), 1e-12)
	}
	require.InDelta(t, sim.At(0, 2), sim.At(2, 0), 1e-12)
	require.Greater(t, sim.At(0, 2), sim.At(0, 1))

	_, err = Similarity(results, []string{"a", "missing"})
	require.ErrorIs(t, err, apperrors.ErrMissingDocument)
}

func TestPrevalence(t *testing.T) {
	prev := Prevalence(sampleResults(t), map[string]string{
		"a": "1990",
		"b": "1990",
		"c": "2000",
	})
	require.Len(t, prev, 4)
	require.Equal(t, "1990", prev[0].Group)
	require.Equal(t, 0, prev[0].TopicID)
	require.InDelta(t, 0.85, prev[0].MeanProbability, 1e-12)
	require.Equal(t, 2, prev[0].Documents)
	require.Equal(t, "2000", prev[3].Group)
	require.Equal(t, 1, prev[3].TopicID)
	require.InDelta(t, 1.0, prev[3].MeanProbability, 1e-12)
}
