package export

import (
	"context"

	"github.com/Adithya-Monish-Kumar-K/topic-crossval/pkg/kafka"
)

// DocumentEvent is the Kafka payload for one aggregated document.
type DocumentEvent struct {
	RunID               string    `json:"run_id"`
	DocumentID          string    `json:"document_id"`
	Distribution        []float64 `json:"distribution"`
	DominantTopic       int       `json:"dominant_topic"`
	DominantProbability float64   `json:"dominant_probability"`
	Folds               int       `json:"folds"`
	Group               string    `json:"group,omitempty"`
}

// Publisher is the part of *kafka.Producer the sink uses.
type Publisher interface {
	PublishBatch(ctx context.Context, events []kafka.Event) error
}

// KafkaSink publishes one event per document keyed by document id.
type KafkaSink struct {
	publisher Publisher
}

func NewKafkaSink(p Publisher) *KafkaSink {
	return &KafkaSink{publisher: p}
}

func (s *KafkaSink) Name() string { return "kafka" }

func (s *KafkaSink) Write(ctx context.Context, r *Results) (int, error) {
	events := make([]kafka.Event, 0, len(r.Order))
	for _, id := range r.Order {
		res := r.Documents[id]
		events = append(events, kafka.Event{
			Key: id,
			Value: DocumentEvent{
				RunID:               r.RunID,
				DocumentID:          id,
				Distribution:        res.Distribution,
				DominantTopic:       res.DominantTopic,
				DominantProbability: res.DominantProbability,
				Folds:               res.Occurrences,
				Group:               r.Groups[id],
			},
		})
	}
	if err := s.publisher.PublishBatch(ctx, events); err != nil {
		return 0, err
	}
	return len(events), nil
}
