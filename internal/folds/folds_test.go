package folds

import (
	"fmt"
	"sort"
	"testing"

	apperrors "github.com/Adithya-Monish-Kumar-K/topic-crossval/pkg/errors"
	"github.com/stretchr/testify/require"
)

func makeIDs(n int) []string {
	ids := make([]string, n)
	for i := range ids {
		ids[i] = fmt.Sprintf("doc-%02d", i)
	}
	return ids
}

func TestSplitPartitionsExactly(t *testing.T) {
	ids := makeIDs(10)
	for _, shuffle := range []bool{false, true} {
		folds, err := Split(ids, 5, shuffle, 7)
		require.NoError(t, err)
		require.Len(t, folds, 5)

		var union []string
		for i, f := range folds {
			require.Equal(t, i, f.Index)
			require.Len(t, f.Test, 2)
			require.Len(t, f.Train, 8)
			for _, id := range f.Test {
				require.NotContains(t, f.Train, id)
			}
			union = append(union, f.Test...)
		}
		sort.Strings(union)
		require.Equal(t, ids, union)
	}
}

func TestSplitUnevenSizes(t *testing.T) {
	folds, err := Split(makeIDs(11), 3, false, 0)
	require.NoError(t, err)
	require.Equal(t, []string{"doc-00", "doc-01", "doc-02", "doc-03"}, folds[0].Test)
	require.Len(t, folds[1].Test, 4)
	require.Len(t, folds[2].Test, 3)
	require.Equal(t, "doc-04", folds[0].Train[0])
}

func TestSplitDeterministicPerSeed(t *testing.T) {
	ids := makeIDs(20)
	a, err := Split(ids, 4, true, 99)
	require.NoError(t, err)
	b, err := Split(ids, 4, true, 99)
	require.NoError(t, err)
	require.Equal(t, a, b)

	c, err := Split(ids, 4, true, 100)
	require.NoError(t, err)
	require.NotEqual(t, a, c)
}

func TestSplitTrainKeepsCorpusOrder(t *testing.T) {
	folds, err := Split(makeIDs(9), 3, true, 1)
	require.NoError(t, err)
	for _, f := range folds {
		require.True(t, sort.StringsAreSorted(f.Train))
	}
}

func TestSplitInvalid(t *testing.T) {
	tests := []struct {
		name string
		ids  []string
		k    int
	}{
		{"k below two", makeIDs(5), 1},
		{"k above n", makeIDs(3), 4},
		{"duplicate ids", []string{"a", "b", "a"}, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Split(tt.ids, tt.k, false, 0)
			require.ErrorIs(t, err, apperrors.ErrInvalidConfiguration)
		})
	}
}
