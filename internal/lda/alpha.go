package lda

import (
	"math"

	apperrors "github.com/Adithya-Monish-Kumar-K/topic-crossval/pkg/errors"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mathext"
)

const alphaFloor = 1e-8

// updateAlpha takes one damped Newton step on the Dirichlet likelihood of
// the document gammas (Minka's fixed point for an asymmetric prior) and
// writes the result into alpha in place.
func updateAlpha(alpha []float64, gammas [][]float64, rho float64) error {
	k := len(alpha)
	n := float64(len(gammas))
	if n == 0 {
		return nil
	}

	logphat := make([]float64, k)
	elog := make([]float64, k)
	for _, g := range gammas {
		dirichletExpectation(g, elog)
		floats.Add(logphat, elog)
	}
	floats.Scale(1/n, logphat)

	sum := floats.Sum(alpha)
	psiSum := mathext.Digamma(sum)
	gradf := make([]float64, k)
	q := make([]float64, k)
	for i, a := range alpha {
		gradf[i] = n * (psiSum - mathext.Digamma(a) + logphat[i])
		q[i] = -n * trigamma(a)
	}
	c := n * trigamma(sum)

	num, den := 0.0, 1/c
	for i := range alpha {
		num += gradf[i] / q[i]
		den += 1 / q[i]
	}
	b := num / den

	for i := range alpha {
		next := alpha[i] - rho*(gradf[i]-b)/q[i]
		if math.IsNaN(next) || math.IsInf(next, 0) {
			return apperrors.Newf(apperrors.ErrNumericalInstability, "alpha[%d] became %v", i, next)
		}
		alpha[i] = math.Max(next, alphaFloor)
	}
	return nil
}

// trigamma is the Hurwitz zeta function at s=2.
func trigamma(x float64) float64 {
	return mathext.Zeta(2, x)
}
