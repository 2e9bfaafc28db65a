// Package events publishes analysis state-change notifications to Kafka.
//
// Implements registry.EventPublisher. Events are keyed by analysis ID so all
// transitions of one analysis land in one partition in order.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/metacord-io/metacord/internal/config"
	"github.com/metacord-io/metacord/internal/registry"
)

// Compile-time interface assertions.
var (
	_ registry.EventPublisher = (*KafkaPublisher)(nil)
	_ registry.EventPublisher = NoopPublisher{}
)

type (
	// Config holds Kafka publisher settings.
	Config struct {
		// Brokers is the Kafka broker list. Empty disables event publishing.
		Brokers []string

		// Topic carries the analysis state-change events.
		Topic string
	}

	// KafkaPublisher emits state-change events to a Kafka topic.
	KafkaPublisher struct {
		writer *kafka.Writer
	}

	// NoopPublisher discards events. Used when no brokers are configured.
	NoopPublisher struct{}

	// stateChangeMessage is the wire format of one event.
	stateChangeMessage struct {
		StudyID    string    `json:"studyId"`
		AnalysisID string    `json:"analysisId"`
		State      string    `json:"state"`
		OccurredAt time.Time `json:"occurredAt"`
	}
)

// LoadConfig loads Kafka publisher configuration from environment variables.
func LoadConfig() *Config {
	return &Config{
		Brokers: config.ParseCommaSeparatedList(config.GetEnvStr("KAFKA_BROKERS", "")),
		Topic:   config.GetEnvStr("KAFKA_STATE_CHANGE_TOPIC", "analysis-state-changes"),
	}
}

// Enabled reports whether brokers are configured.
func (c *Config) Enabled() bool {
	return len(c.Brokers) > 0
}

// NewKafkaPublisher creates a publisher for the configured brokers and topic.
func NewKafkaPublisher(cfg *Config) *KafkaPublisher {
	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(cfg.Brokers...),
			Topic:                  cfg.Topic,
			Balancer:               &kafka.LeastBytes{},
			AllowAutoTopicCreation: true,
			RequiredAcks:           kafka.RequireOne,
		},
	}
}

// PublishStateChange implements registry.EventPublisher.
func (p *KafkaPublisher) PublishStateChange(ctx context.Context, event registry.StateChangeEvent) error {
	value, err := json.Marshal(stateChangeMessage{
		StudyID:    event.StudyID,
		AnalysisID: event.AnalysisID,
		State:      event.State.String(),
		OccurredAt: event.OccurredAt,
	})
	if err != nil {
		return fmt.Errorf("marshal state-change event: %w", err)
	}

	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(event.AnalysisID),
		Value: value,
	})
	if err != nil {
		return fmt.Errorf("publish state-change event for %s: %w", event.AnalysisID, err)
	}

	return nil
}

// Close releases broker connections.
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// PublishStateChange implements registry.EventPublisher.
func (NoopPublisher) PublishStateChange(context.Context, registry.StateChangeEvent) error {
	return nil
}

// Close implements the same shutdown surface as KafkaPublisher.
func (NoopPublisher) Close() error {
	return nil
}
