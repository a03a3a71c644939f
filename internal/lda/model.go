// Package lda trains Latent Dirichlet Allocation topic models with batch
// variational Bayes and infers topic distributions for unseen documents.
//
// A trained Model is immutable. Inference only reads the frozen
// expectation of the log topic-word matrix, so a single Model may serve
// concurrent Infer calls.
package lda

import (
	"github.com/Adithya-Monish-Kumar-K/topic-crossval/internal/corpus"
	apperrors "github.com/Adithya-Monish-Kumar-K/topic-crossval/pkg/errors"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Distribution is a document's probability over the K topics of a model.
type Distribution []float64

// Model is a trained topic model.
type Model struct {
	K int
	// TopicWord is K x |V|; every row sums to 1.
	TopicWord *mat.Dense
	Alpha     []float64
	Eta       float64
	Vocab     *corpus.Vocabulary

	// Objective holds the per-token evidence lower bound after each pass.
	Objective  []float64
	Iterations int
	Converged  bool

	lambda          *mat.Dense
	expElogBeta     *mat.Dense
	gammaIterations int
	gammaThreshold  float64
}

func newModel(lambda *mat.Dense, alpha []float64, eta float64, vocab *corpus.Vocabulary, gammaIterations int, gammaThreshold float64) (*Model, error) {
	k, v := lambda.Dims()
	topicWord := mat.NewDense(k, v, nil)
	for i := 0; i < k; i++ {
		row := topicWord.RawRowView(i)
		copy(row, lambda.RawRowView(i))
		sum := floats.Sum(row)
		if sum <= 0 {
			return nil, apperrors.Newf(apperrors.ErrNumericalInstability, "topic %d has zero mass", i)
		}
		floats.Scale(1/sum, row)
	}
	if err := validateTopicWord(topicWord); err != nil {
		return nil, err
	}
	elog := mat.NewDense(k, v, nil)
	dirichletExpectationRows(lambda, elog)
	expElog := mat.NewDense(k, v, nil)
	expElog.Apply(expAt, elog)

	return &Model{
		K:               k,
		TopicWord:       topicWord,
		Alpha:           append([]float64(nil), alpha...),
		Eta:             eta,
		Vocab:           vocab,
		lambda:          lambda,
		expElogBeta:     expElog,
		gammaIterations: gammaIterations,
		gammaThreshold:  gammaThreshold,
	}, nil
}

// NumWords returns the vocabulary size the model was trained against.
func (m *Model) NumWords() int {
	_, v := m.TopicWord.Dims()
	return v
}

// Topic returns a copy of topic k's word distribution.
func (m *Model) Topic(k int) []float64 {
	return append([]float64(nil), m.TopicWord.RawRowView(k)...)
}

// Infer returns the topic distribution of doc under the frozen model. Every
// one of the K components is present and strictly positive.
func (m *Model) Infer(doc *corpus.Document) (Distribution, error) {
	v := m.NumWords()
	for _, id := range doc.WordIDs {
		if id < 0 || id >= v {
			return nil, apperrors.Newf(apperrors.ErrInvalidCorpus, "document %q has word id %d outside the model vocabulary of %d", doc.ID, id, v)
		}
	}
	step := variational{
		alpha:       m.Alpha,
		expElogBeta: m.expElogBeta,
		maxIter:     m.gammaIterations,
		threshold:   m.gammaThreshold,
	}
	res := step.infer(doc.WordIDs, doc.Counts)

	dist := Distribution(res.gamma)
	sum := floats.Sum(dist)
	if sum <= 0 {
		return nil, apperrors.Newf(apperrors.ErrNumericalInstability, "document %q has zero topic mass", doc.ID)
	}
	floats.Scale(1/sum, dist)
	if err := ValidateDistribution(dist, m.K); err != nil {
		return nil, apperrors.Reclassify(err, "inferring document %q", doc.ID)
	}
	return dist, nil
}
