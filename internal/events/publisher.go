// Package events publishes sponsorship lifecycle outcomes to Kafka so
// downstream consumers (directory cache invalidation, notifications) can react
// without polling the ledger.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"
	"go.uber.org/zap"
)

const (
	// TopicSponsorshipOutcomes is the Kafka topic for reconciliation outcomes.
	TopicSponsorshipOutcomes = "sponsorship.outcomes"
)

// OutcomeEvent is one reconciliation result.
type OutcomeEvent struct {
	EventType      string    `json:"event_type"`
	Action         string    `json:"action"`
	Reason         string    `json:"reason,omitempty"`
	SponsorshipID  string    `json:"sponsorship_id,omitempty"`
	SubscriptionID string    `json:"subscription_id,omitempty"`
	BusinessID     string    `json:"business_id,omitempty"`
	AreaID         string    `json:"area_id,omitempty"`
	CategoryID     string    `json:"category_id,omitempty"`
	Slot           int       `json:"slot,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
}

// Publisher publishes outcome events. Publishing is best-effort from the
// caller's point of view: a broker outage must never fail webhook handling.
type Publisher interface {
	PublishOutcome(ctx context.Context, event *OutcomeEvent) error
	Close()
}

// KafkaPublisher implements Publisher using franz-go.
type KafkaPublisher struct {
	client *kgo.Client
	logger *zap.Logger
}

// NewKafkaPublisher connects a producer to the given brokers.
func NewKafkaPublisher(brokers []string, clientID string, logger *zap.Logger) (*KafkaPublisher, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("at least one broker is required")
	}
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.ClientID(clientID),
		kgo.ProducerBatchCompression(kgo.SnappyCompression()),
		kgo.ProduceRequestTimeout(10*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka client: %w", err)
	}
	return &KafkaPublisher{client: client, logger: logger}, nil
}

// PublishOutcome produces one outcome event, keyed by subscription ID so all
// events of a subscription land on the same partition in order.
func (p *KafkaPublisher) PublishOutcome(ctx context.Context, event *OutcomeEvent) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal outcome event: %w", err)
	}

	record := &kgo.Record{
		Topic: TopicSponsorshipOutcomes,
		Key:   []byte(event.SubscriptionID),
		Value: payload,
	}
	if err := p.client.ProduceSync(ctx, record).FirstErr(); err != nil {
		return fmt.Errorf("failed to produce outcome event: %w", err)
	}
	return nil
}

// Close flushes and closes the producer.
func (p *KafkaPublisher) Close() {
	p.client.Close()
}

// NoopPublisher discards events; used when Kafka is not configured.
type NoopPublisher struct{}

func (NoopPublisher) PublishOutcome(ctx context.Context, event *OutcomeEvent) error { return nil }
func (NoopPublisher) Close()                                                        {}
