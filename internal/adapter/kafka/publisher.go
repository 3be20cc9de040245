package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/couchcryptid/site-registry/internal/config"
	"github.com/couchcryptid/site-registry/internal/domain"
	kafkago "github.com/segmentio/kafka-go"
)

const (
	// flushInterval caps how long a single event waits for batch mates.
	flushInterval = 10 * time.Millisecond
	// publishTimeout bounds one Publish call independently of the caller.
	publishTimeout = 2 * time.Second
)

// Publisher produces site lifecycle events to a Kafka topic.
// It implements domain.EventPublisher.
type Publisher struct {
	writer  *kafkago.Writer
	logger  *slog.Logger
	timeout time.Duration
}

// NewPublisher creates a Kafka producer for the configured sites topic.
func NewPublisher(cfg *config.Config, logger *slog.Logger) *Publisher {
	w := &kafkago.Writer{
		Addr:                   kafkago.TCP(cfg.KafkaBrokers...),
		Topic:                  cfg.KafkaSitesTopic,
		Balancer:               &kafkago.Hash{},
		RequiredAcks:           kafkago.RequireAll,
		AllowAutoTopicCreation: true,
		BatchTimeout:           flushInterval,
		WriteTimeout:           publishTimeout,
	}
	return &Publisher{writer: w, logger: logger, timeout: publishTimeout}
}

// Publish writes one event keyed by site id so that all events for a site land
// on the same partition.
func (p *Publisher) Publish(ctx context.Context, event domain.SiteEvent) error {
	msg, err := serializeToMessage(event)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish %s event for site %s: %w", event.Action, event.Site.ID, err)
	}
	p.logger.Debug("site event published", "action", event.Action, "tenant", event.Tenant, "site_id", event.Site.ID)
	return nil
}

func (p *Publisher) Close() error {
	return p.writer.Close()
}

// serializeToMessage marshals a SiteEvent into a Kafka message.
func serializeToMessage(event domain.SiteEvent) (kafkago.Message, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize site event: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(event.Site.ID),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "action", Value: []byte(event.Action)},
			{Key: "tenant", Value: []byte(event.Tenant)},
			{Key: "occurred_at", Value: []byte(event.OccurredAt.Format(time.RFC3339))},
		},
	}, nil
}
