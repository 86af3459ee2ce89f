package kafka

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/wms-platform/stock-ledger-service/internal/domain"
	"github.com/wms-platform/stock-ledger-service/internal/projections"
	"github.com/wms-platform/stock-ledger-service/pkg/cloudevents"
	"github.com/wms-platform/stock-ledger-service/pkg/logging"
	"github.com/wms-platform/stock-ledger-service/pkg/metrics"
	"github.com/wms-platform/stock-ledger-service/pkg/resilience"
)

// RelayConsumer is the checkpoint name the relay keeps its position under
const RelayConsumer = "relay:kafka"

// EventPublisher publishes one CloudEvent to a topic
type EventPublisher interface {
	PublishEvent(ctx context.Context, topic string, event *cloudevents.WMSCloudEvent) error
}

// RelayConfig holds configuration for the event relay
type RelayConfig struct {
	Topic        string
	PollInterval time.Duration
	BatchSize    int
}

// DefaultRelayConfig returns default configuration
func DefaultRelayConfig(topic string) *RelayConfig {
	return &RelayConfig{
		Topic:        topic,
		PollInterval: time.Second,
		BatchSize:    100,
	}
}

// EventRelay publishes the event log to Kafka in sequence order. Its position
// is a checkpoint in the view store, so after a crash it republishes at most
// the event it was working on.
type EventRelay struct {
	events    domain.EventReader
	store     projections.ViewStore
	publisher EventPublisher
	breaker   *resilience.CircuitBreaker
	factory   *cloudevents.EventFactory
	logger    *logging.Logger
	metrics   *metrics.Metrics
	config    *RelayConfig

	mu        sync.Mutex
	running   bool
	stopCh    chan struct{}
	stoppedCh chan struct{}
}

// NewEventRelay creates a new relay
func NewEventRelay(
	events domain.EventReader,
	store projections.ViewStore,
	publisher EventPublisher,
	breaker *resilience.CircuitBreaker,
	logger *logging.Logger,
	m *metrics.Metrics,
	config *RelayConfig,
) *EventRelay {
	return &EventRelay{
		events:    events,
		store:     store,
		publisher: publisher,
		breaker:   breaker,
		factory:   cloudevents.NewEventFactory(cloudevents.SourceStockLedger),
		logger:    logger.WithComponent("event-relay"),
		metrics:   m,
		config:    config,
	}
}

// Start runs the relay loop in the background
func (r *EventRelay) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return fmt.Errorf("relay already running")
	}
	r.running = true
	r.stopCh = make(chan struct{})
	r.stoppedCh = make(chan struct{})

	r.logger.Info("Starting event relay", "topic", r.config.Topic, "interval", r.config.PollInterval.String())
	go r.run(ctx)
	return nil
}

// Stop stops the relay loop and waits for it to exit
func (r *EventRelay) Stop() error {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return fmt.Errorf("relay not running")
	}
	r.running = false
	r.mu.Unlock()

	close(r.stopCh)
	<-r.stoppedCh
	r.logger.Info("Event relay stopped")
	return nil
}

func (r *EventRelay) run(ctx context.Context) {
	defer close(r.stoppedCh)

	ticker := time.NewTicker(r.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if _, err := r.PublishPending(ctx); err != nil && ctx.Err() == nil {
				r.logger.WithError(err).Warn("Event relay pass stopped early")
			}
		case <-r.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

// PublishPending publishes every event after the relay checkpoint, one batch
// at a time. It stops at the first failure so events never overtake each other.
func (r *EventRelay) PublishPending(ctx context.Context) (int, error) {
	cp, err := r.store.Checkpoint(ctx, RelayConsumer)
	if err != nil {
		return 0, err
	}

	published := 0
	after := cp.Sequence
	for {
		batch, err := r.events.ReadAll(ctx, after, r.config.BatchSize)
		if err != nil {
			return published, fmt.Errorf("failed to read events: %w", err)
		}

		for _, env := range batch {
			if err := r.publish(ctx, env); err != nil {
				return published, err
			}

			next := projections.Checkpoint{Consumer: RelayConsumer, EventID: env.EventID, Sequence: env.Sequence, UpdatedAt: time.Now().UTC()}
			if _, err := r.store.Apply(ctx, next, func(projections.ViewTx) error { return nil }); err != nil {
				return published, fmt.Errorf("failed to advance relay checkpoint: %w", err)
			}
			after = env.Sequence
			published++
		}

		if len(batch) < r.config.BatchSize {
			return published, nil
		}
	}
}

func (r *EventRelay) publish(ctx context.Context, env *domain.Envelope) error {
	event, err := ToCloudEvent(ctx, r.factory, env)
	if err != nil {
		return err
	}

	start := time.Now()
	err = r.breaker.Execute(ctx, func(ctx context.Context) error {
		return r.publisher.PublishEvent(ctx, r.config.Topic, event)
	})
	duration := time.Since(start)

	r.metrics.RecordKafkaPublish(r.config.Topic, env.EventType, err == nil, duration)
	r.logger.KafkaPublish(ctx, r.config.Topic, env.EventType, err == nil, duration)
	if err != nil {
		return fmt.Errorf("failed to publish event %d: %w", env.Sequence, err)
	}
	return nil
}

// ToCloudEvent wraps a stored envelope. The event id is the envelope's id and
// the subject its stream, so redelivered copies are recognisable and the
// producer keys every stream onto one partition.
func ToCloudEvent(ctx context.Context, factory *cloudevents.EventFactory, env *domain.Envelope) (*cloudevents.WMSCloudEvent, error) {
	event, err := factory.CreateEvent(ctx, env.EventID, env.EventType, env.StreamID, env.OccurredAt, env)
	if err != nil {
		return nil, err
	}
	event.Sequence = env.Sequence
	if slot, ok := domain.SlotFromStreamID(env.StreamID); ok {
		event.WarehouseID = slot.Warehouse
	}
	return event, nil
}
