// Package folds partitions document ids into k cross-validation folds.
package folds

import (
	apperrors "github.com/Adithya-Monish-Kumar-K/topic-crossval/pkg/errors"
	"golang.org/x/exp/rand"
)

// Fold is one train/test partition. Train keeps corpus order; Test keeps
// the order produced by the split.
type Fold struct {
	Index int
	Train []string
	Test  []string
}

// Split divides ids into k folds whose test sets are disjoint and together
// cover every id exactly once. The first len(ids)%k folds receive one extra
// test document. With shuffle the assignment follows a permutation drawn
// from seed, otherwise folds are contiguous blocks.
func Split(ids []string, k int, shuffle bool, seed uint64) ([]Fold, error) {
	n := len(ids)
	if k < 2 {
		return nil, apperrors.Newf(apperrors.ErrInvalidConfiguration, "fold count must be at least 2, got %d", k)
	}
	if k > n {
		return nil, apperrors.Newf(apperrors.ErrInvalidConfiguration, "fold count %d exceeds document count %d", k, n)
	}
	seen := make(map[string]struct{}, n)
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			return nil, apperrors.Newf(apperrors.ErrInvalidConfiguration, "duplicate document id %q", id)
		}
		seen[id] = struct{}{}
	}

	order := make([]int, n)
	if shuffle {
		order = rand.New(rand.NewSource(seed)).Perm(n)
	} else {
		for i := range order {
			order[i] = i
		}
	}

	folds := make([]Fold, k)
	start := 0
	for f := 0; f < k; f++ {
		size := n / k
		if f < n%k {
			size++
		}
		testIdx := order[start : start+size]
		start += size

		inTest := make(map[int]struct{}, size)
		test := make([]string, 0, size)
		for _, i := range testIdx {
			inTest[i] = struct{}{}
			test = append(test, ids[i])
		}
		train := make([]string, 0, n-size)
		for i, id := range ids {
			if _, ok := inTest[i]; !ok {
				train = append(train, id)
			}
		}
		folds[f] = Fold{Index: f, Train: train, Test: test}
	}
	return folds, nil
}
