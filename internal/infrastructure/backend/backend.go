package backend

import (
	"context"
	"fmt"

	"github.com/wms-platform/stock-ledger-service/internal/config"
	"github.com/wms-platform/stock-ledger-service/internal/domain"
	"github.com/wms-platform/stock-ledger-service/internal/infrastructure/memory"
	mongoStore "github.com/wms-platform/stock-ledger-service/internal/infrastructure/mongodb"
	"github.com/wms-platform/stock-ledger-service/internal/projections"
	"github.com/wms-platform/stock-ledger-service/pkg/logging"
	"github.com/wms-platform/stock-ledger-service/pkg/metrics"
	"github.com/wms-platform/stock-ledger-service/pkg/mongodb"
)

// Stores is the event log and view store of the configured backend
type Stores struct {
	Events domain.EventStore
	Views  projections.ViewStore

	ready func(ctx context.Context) error
	close func(ctx context.Context) error
}

// Ready reports whether the backend is reachable
func (s *Stores) Ready(ctx context.Context) error {
	if s.ready == nil {
		return nil
	}
	return s.ready(ctx)
}

// Close releases the backend's connections
func (s *Stores) Close(ctx context.Context) error {
	if s.close == nil {
		return nil
	}
	return s.close(ctx)
}

// Open connects the backend named by cfg.StoreBackend
func Open(ctx context.Context, cfg *config.Config, logger *logging.Logger, m *metrics.Metrics) (*Stores, error) {
	switch cfg.StoreBackend {
	case config.BackendMemory:
		logger.Warn("Using in-memory stores; events are lost on restart")
		return &Stores{
			Events: memory.NewEventStore(),
			Views:  memory.NewViewStore(),
		}, nil

	case config.BackendMongoDB:
		client, err := mongodb.NewClient(ctx, cfg.MongoDBClientConfig())
		if err != nil {
			return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
		}

		events, err := mongoStore.NewEventStore(ctx, client.Database(), logger, m)
		if err != nil {
			_ = client.Close(ctx)
			return nil, err
		}
		views, err := mongoStore.NewViewStore(ctx, client.Database(), logger, m)
		if err != nil {
			_ = client.Close(ctx)
			return nil, err
		}

		logger.Info("Connected to MongoDB", "database", cfg.MongoDB.Database)
		return &Stores{
			Events: events,
			Views:  views,
			ready:  client.HealthCheck,
			close:  client.Close,
		}, nil

	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}
}
