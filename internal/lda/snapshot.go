package lda

import (
	"github.com/Adithya-Monish-Kumar-K/topic-crossval/internal/corpus"
	apperrors "github.com/Adithya-Monish-Kumar-K/topic-crossval/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// Snapshot is the serializable state of a Model. Lambda is row-major
// K x Words.
type Snapshot struct {
	K               int       `json:"k"`
	Words           int       `json:"words"`
	Vocabulary      string    `json:"vocabulary"`
	Alpha           []float64 `json:"alpha"`
	Eta             float64   `json:"eta"`
	Lambda          []float64 `json:"lambda"`
	Objective       []float64 `json:"objective"`
	Iterations      int       `json:"iterations"`
	Converged       bool      `json:"converged"`
	GammaIterations int       `json:"gammaIterations"`
	GammaThreshold  float64   `json:"gammaThreshold"`
}

func (m *Model) Snapshot() Snapshot {
	k, v := m.lambda.Dims()
	data := make([]float64, 0, k*v)
	for i := 0; i < k; i++ {
		data = append(data, m.lambda.RawRowView(i)...)
	}
	return Snapshot{
		K:               k,
		Words:           v,
		Vocabulary:      m.Vocab.Fingerprint(),
		Alpha:           append([]float64(nil), m.Alpha...),
		Eta:             m.Eta,
		Lambda:          data,
		Objective:       append([]float64(nil), m.Objective...),
		Iterations:      m.Iterations,
		Converged:       m.Converged,
		GammaIterations: m.gammaIterations,
		GammaThreshold:  m.gammaThreshold,
	}
}

// FromSnapshot rebuilds a model. The vocabulary must be the one the model
// was trained against.
func FromSnapshot(s Snapshot, vocab *corpus.Vocabulary) (*Model, error) {
	if s.K < 2 || s.Words < 1 || len(s.Lambda) != s.K*s.Words || len(s.Alpha) != s.K {
		return nil, apperrors.Newf(apperrors.ErrNumericalInstability, "malformed model snapshot (k=%d, words=%d)", s.K, s.Words)
	}
	if vocab.Len() != s.Words || vocab.Fingerprint() != s.Vocabulary {
		return nil, apperrors.New(apperrors.ErrInvalidCorpus, "model snapshot was trained against a different vocabulary")
	}
	lambda := mat.NewDense(s.K, s.Words, append([]float64(nil), s.Lambda...))
	m, err := newModel(lambda, s.Alpha, s.Eta, vocab, s.GammaIterations, s.GammaThreshold)
	if err != nil {
		return nil, err
	}
	m.Objective = s.Objective
	m.Iterations = s.Iterations
	m.Converged = s.Converged
	return m, nil
}
