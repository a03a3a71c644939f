// Package export writes the outcome of a cross-validation run: the CSV
// tables consumed by downstream reporting and the optional PostgreSQL,
// SQLite and Kafka sinks.
package export

import (
	"time"

	"github.com/Adithya-Monish-Kumar-K/topic-crossval/internal/aggregate"
	"github.com/Adithya-Monish-Kumar-K/topic-crossval/internal/corpus"
	"github.com/Adithya-Monish-Kumar-K/topic-crossval/internal/crossval"
)

// Results is everything an export needs from one run.
type Results struct {
	RunID     string
	CreatedAt time.Time
	Report    *crossval.Report
	// Documents holds the aggregated distribution of every held-out
	// document; Order lists their ids in record order.
	Documents map[string]aggregate.Result
	Order     []string
	Groups    map[string]string
	Vocab     *corpus.Vocabulary
}

// NewResults aggregates the report's records and collects the group label
// of every document in c.
func NewResults(runID string, report *crossval.Report, c *corpus.Corpus, vocab *corpus.Vocabulary) (*Results, error) {
	inputs := report.Inputs()
	docs, err := aggregate.Aggregate(inputs)
	if err != nil {
		return nil, err
	}
	groups := make(map[string]string)
	for _, d := range c.Documents() {
		if d.Group != "" {
			groups[d.ID] = d.Group
		}
	}
	return &Results{
		RunID:     runID,
		CreatedAt: time.Now().UTC(),
		Report:    report,
		Documents: docs,
		Order:     aggregate.DocumentOrder(inputs),
		Groups:    groups,
		Vocab:     vocab,
	}, nil
}

// distributionRow is one fold-level (document, topic) probability.
type distributionRow struct {
	DocumentID  string
	TopicID     int
	Probability float64
	Fold        int
}

// documentRow is one aggregated (document, topic) probability.
type documentRow struct {
	DocumentID  string
	TopicID     int
	Probability float64
	Dominant    bool
}

func (r *Results) distributionRows() []distributionRow {
	rows := make([]distributionRow, 0, len(r.Report.Records))
	for _, rec := range r.Report.Records {
		rows = append(rows, distributionRow{
			DocumentID:  rec.DocumentID,
			TopicID:     rec.TopicID,
			Probability: rec.Probability,
			Fold:        rec.FoldIndex,
		})
	}
	return rows
}

func (r *Results) documentRows() []documentRow {
	rows := make([]documentRow, 0, len(r.Order)*aggregate.Width(r.Documents))
	for _, id := range r.Order {
		res := r.Documents[id]
		for t, p := range res.Distribution {
			rows = append(rows, documentRow{
				DocumentID:  id,
				TopicID:     t,
				Probability: p,
				Dominant:    t == res.DominantTopic,
			})
		}
	}
	return rows
}
