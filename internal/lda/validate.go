package lda

import (
	"math"

	apperrors "github.com/Adithya-Monish-Kumar-K/topic-crossval/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// SumTolerance bounds how far a probability vector may sum from 1.
const SumTolerance = 1e-6

// ValidateDistribution checks that d has k finite, non-negative components
// summing to 1.
func ValidateDistribution(d []float64, k int) error {
	if len(d) != k {
		return apperrors.Newf(apperrors.ErrNumericalInstability, "distribution has %d components, want %d", len(d), k)
	}
	sum := 0.0
	for i, p := range d {
		if math.IsNaN(p) || math.IsInf(p, 0) {
			return apperrors.Newf(apperrors.ErrNumericalInstability, "component %d is %v", i, p)
		}
		if p < 0 {
			return apperrors.Newf(apperrors.ErrNumericalInstability, "component %d is negative (%g)", i, p)
		}
		sum += p
	}
	if math.Abs(sum-1) > SumTolerance {
		return apperrors.Newf(apperrors.ErrNumericalInstability, "distribution sums to %.9f", sum)
	}
	return nil
}

func validateTopicWord(m *mat.Dense) error {
	k, v := m.Dims()
	for i := 0; i < k; i++ {
		if err := ValidateDistribution(m.RawRowView(i), v); err != nil {
			return apperrors.Reclassify(err, "topic %d", i)
		}
	}
	return nil
}
