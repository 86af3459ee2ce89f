package kafka

import (
	"context"
	"fmt"

	"github.com/wms-platform/stock-ledger-service/internal/domain"
	"github.com/wms-platform/stock-ledger-service/pkg/cloudevents"
	"github.com/wms-platform/stock-ledger-service/pkg/logging"
	"github.com/wms-platform/stock-ledger-service/pkg/metrics"
)

// Deliverer applies a pushed event to a named projection
type Deliverer interface {
	Names() []string
	Deliver(ctx context.Context, name string, env *domain.Envelope) error
}

// ProjectionConsumer feeds relayed events to every projection. Ordering and
// duplicates are handled by the engine, which pulls anything it missed from
// the event log.
type ProjectionConsumer struct {
	topic     string
	deliverer Deliverer
	logger    *logging.Logger
	metrics   *metrics.Metrics
}

// NewProjectionConsumer creates a consumer for topic
func NewProjectionConsumer(topic string, deliverer Deliverer, logger *logging.Logger, m *metrics.Metrics) *ProjectionConsumer {
	return &ProjectionConsumer{
		topic:     topic,
		deliverer: deliverer,
		logger:    logger.WithComponent("projection-consumer"),
		metrics:   m,
	}
}

// Topic is the topic the consumer reads
func (c *ProjectionConsumer) Topic() string {
	return c.topic
}

// Handle is the kafka EventHandler for relayed events
func (c *ProjectionConsumer) Handle(ctx context.Context, event *cloudevents.WMSCloudEvent) error {
	env, err := FromCloudEvent(event)
	if err != nil {
		c.metrics.RecordKafkaConsume(c.topic, event.Type, false)
		// Redelivery cannot fix an unreadable message; the log still holds the event.
		c.logger.WithError(err).Warn("Dropping unreadable relayed event", "eventId", event.ID, "eventType", event.Type)
		return nil
	}

	for _, name := range c.deliverer.Names() {
		if err := c.deliverer.Deliver(ctx, name, env); err != nil {
			c.metrics.RecordKafkaConsume(c.topic, event.Type, false)
			return fmt.Errorf("projection %s: %w", name, err)
		}
	}

	c.metrics.RecordKafkaConsume(c.topic, event.Type, true)
	return nil
}

// FromCloudEvent recovers the stored envelope carried by a relayed event
func FromCloudEvent(event *cloudevents.WMSCloudEvent) (*domain.Envelope, error) {
	var env domain.Envelope
	if err := event.DecodeData(&env); err != nil {
		return nil, fmt.Errorf("failed to decode envelope: %w", err)
	}
	if env.EventID == "" {
		env.EventID = event.ID
	}
	if event.Sequence != 0 {
		env.Sequence = event.Sequence
	}
	if env.Sequence == 0 {
		return nil, fmt.Errorf("event %s carries no sequence", event.ID)
	}
	return &env, nil
}
