package lda

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/mathext"
)

const phiFloor = 1e-100

// variational runs the per-document fixed-point updates of gamma against a
// fixed exp(E[log beta]).
type variational struct {
	alpha       []float64
	expElogBeta *mat.Dense
	maxIter     int
	threshold   float64
}

type docResult struct {
	gamma []float64
	// expElogTheta and ratio (count / phinorm per unique word) are the two
	// factors of the document's sufficient statistics.
	expElogTheta []float64
	ratio        []float64
}

func (v variational) infer(ids, counts []int) docResult {
	k := len(v.alpha)
	n := len(ids)

	total := 0
	for _, c := range counts {
		total += c
	}
	gamma := make([]float64, k)
	start := float64(total) / float64(k)
	for i := range gamma {
		gamma[i] = v.alpha[i] + start
	}
	expElogTheta := make([]float64, k)
	expDirichletExpectation(gamma, expElogTheta)

	betad := make([]float64, k*n)
	for t := 0; t < k; t++ {
		row := v.expElogBeta.RawRowView(t)
		for j, id := range ids {
			betad[t*n+j] = row[id]
		}
	}

	phinorm := make([]float64, n)
	normalizers(expElogTheta, betad, phinorm)
	ratio := make([]float64, n)
	last := make([]float64, k)

	for it := 0; it < v.maxIter; it++ {
		copy(last, gamma)
		for j := range ratio {
			ratio[j] = float64(counts[j]) / phinorm[j]
		}
		for t := 0; t < k; t++ {
			gamma[t] = v.alpha[t] + expElogTheta[t]*floats.Dot(ratio, betad[t*n:(t+1)*n])
		}
		expDirichletExpectation(gamma, expElogTheta)
		normalizers(expElogTheta, betad, phinorm)
		if meanAbsDiff(gamma, last) < v.threshold {
			break
		}
	}
	for j := range ratio {
		ratio[j] = float64(counts[j]) / phinorm[j]
	}
	return docResult{gamma: gamma, expElogTheta: expElogTheta, ratio: ratio}
}

func normalizers(expElogTheta, betad, phinorm []float64) {
	n := len(phinorm)
	for j := range phinorm {
		phinorm[j] = phiFloor
	}
	for t, e := range expElogTheta {
		floats.AddScaled(phinorm, e, betad[t*n:(t+1)*n])
	}
}

// dirichletExpectation writes E[log x] for x ~ Dir(alpha) into dst.
func dirichletExpectation(alpha, dst []float64) {
	psiSum := mathext.Digamma(floats.Sum(alpha))
	for i, a := range alpha {
		dst[i] = mathext.Digamma(a) - psiSum
	}
}

func expDirichletExpectation(alpha, dst []float64) {
	dirichletExpectation(alpha, dst)
	for i := range dst {
		dst[i] = math.Exp(dst[i])
	}
}

// dirichletExpectationRows applies dirichletExpectation to every row of src.
func dirichletExpectationRows(src, dst *mat.Dense) {
	r, _ := src.Dims()
	for i := 0; i < r; i++ {
		dirichletExpectation(src.RawRowView(i), dst.RawRowView(i))
	}
}

func expAt(_, _ int, v float64) float64 {
	return math.Exp(v)
}

func meanAbsDiff(a, b []float64) float64 {
	if len(a) == 0 {
		return 0
	}
	return floats.Distance(a, b, 1) / float64(len(a))
}

func lgamma(x float64) float64 {
	v, _ := math.Lgamma(x)
	return v
}
