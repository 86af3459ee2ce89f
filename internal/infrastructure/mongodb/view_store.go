package mongodb

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/wms-platform/stock-ledger-service/internal/projections"
	"github.com/wms-platform/stock-ledger-service/pkg/logging"
	"github.com/wms-platform/stock-ledger-service/pkg/metrics"
	mongoPkg "github.com/wms-platform/stock-ledger-service/pkg/mongodb"
)

const CheckpointsCollection = "projection_checkpoints"

// ViewStore keeps projection views in one collection per view type and the
// consumer checkpoints in projection_checkpoints. View writes and the
// checkpoint move commit in the same transaction.
type ViewStore struct {
	client      *mongo.Client
	db          *mongo.Database
	checkpoints *mongo.Collection
	logger      *logging.Logger
	metrics     *metrics.Metrics
}

// NewViewStore creates a ViewStore over db
func NewViewStore(ctx context.Context, db *mongo.Database, logger *logging.Logger, m *metrics.Metrics) (*ViewStore, error) {
	s := &ViewStore{
		client:      db.Client(),
		db:          db,
		checkpoints: db.Collection(CheckpointsCollection),
		logger:      logger.WithComponent("view-store"),
		metrics:     m,
	}
	if err := s.ensureIndexes(ctx); err != nil {
		return nil, fmt.Errorf("failed to create view indexes: %w", err)
	}
	return s, nil
}

func (s *ViewStore) ensureIndexes(ctx context.Context) error {
	if err := mongoPkg.EnsureIndexes(ctx, s.db.Collection(projections.AvailableStockCollection),
		mongo.IndexModel{Keys: bson.D{{Key: "warehouse", Value: 1}, {Key: "item", Value: 1}}},
	); err != nil {
		return err
	}
	if err := mongoPkg.EnsureIndexes(ctx, s.db.Collection(projections.HandlingUnitCollection),
		mongo.IndexModel{Keys: bson.D{{Key: "warehouse", Value: 1}, {Key: "currentLocation", Value: 1}}},
	); err != nil {
		return err
	}
	return mongoPkg.EnsureIndexes(ctx, s.db.Collection(projections.ActiveHardLockCollection),
		mongo.IndexModel{Keys: bson.D{{Key: "reservationId", Value: 1}}},
	)
}

func (s *ViewStore) readCheckpoint(ctx context.Context, consumer string) (projections.Checkpoint, error) {
	var cp projections.Checkpoint
	err := s.checkpoints.FindOne(ctx, mongoPkg.ByID(consumer)).Decode(&cp)
	if mongoPkg.IsNotFound(err) {
		return projections.Checkpoint{Consumer: consumer}, nil
	}
	if err != nil {
		return projections.Checkpoint{}, fmt.Errorf("failed to read checkpoint %s: %w", consumer, err)
	}
	cp.UpdatedAt = cp.UpdatedAt.UTC()
	return cp, nil
}

// Checkpoint implements projections.ViewStore
func (s *ViewStore) Checkpoint(ctx context.Context, consumer string) (projections.Checkpoint, error) {
	start := time.Now()
	cp, err := s.readCheckpoint(ctx, consumer)
	s.metrics.RecordMongoDBOperation(CheckpointsCollection, "find", err == nil, time.Since(start))
	return cp, err
}

// Apply implements projections.ViewStore
func (s *ViewStore) Apply(ctx context.Context, next projections.Checkpoint, fn func(tx projections.ViewTx) error) (bool, error) {
	start := time.Now()
	var applied bool

	err := mongoPkg.WithTransaction(ctx, s.client, func(sessCtx mongo.SessionContext) error {
		applied = false

		current, err := s.readCheckpoint(sessCtx, next.Consumer)
		if err != nil {
			return err
		}
		if current.Sequence >= next.Sequence {
			return nil
		}

		if err := fn(&viewTx{db: s.db, sessCtx: sessCtx}); err != nil {
			return err
		}

		next.UpdatedAt = mongoPkg.Now()
		_, err = s.checkpoints.ReplaceOne(sessCtx, mongoPkg.ByID(next.Consumer), next, options.Replace().SetUpsert(true))
		if err != nil {
			return fmt.Errorf("failed to save checkpoint %s: %w", next.Consumer, err)
		}
		applied = true
		return nil
	})

	s.metrics.RecordMongoDBOperation(CheckpointsCollection, "apply", err == nil, time.Since(start))
	if err != nil {
		return false, err
	}
	return applied, nil
}

// Reset implements projections.ViewStore
func (s *ViewStore) Reset(ctx context.Context, consumer string, collections []string) error {
	for _, name := range collections {
		if _, err := s.db.Collection(name).DeleteMany(ctx, bson.M{}); err != nil {
			return fmt.Errorf("failed to clear %s: %w", name, err)
		}
	}
	if _, err := s.checkpoints.DeleteOne(ctx, mongoPkg.ByID(consumer)); err != nil {
		return fmt.Errorf("failed to clear checkpoint %s: %w", consumer, err)
	}
	s.logger.Info("Projection reset", "consumer", consumer, "collections", collections)
	return nil
}

// Find implements projections.ViewStore
func (s *ViewStore) Find(ctx context.Context, collection, id string, out interface{}) (bool, error) {
	start := time.Now()
	err := s.db.Collection(collection).FindOne(ctx, mongoPkg.ByID(id)).Decode(out)
	s.metrics.RecordMongoDBOperation(collection, "find", err == nil || mongoPkg.IsNotFound(err), time.Since(start))
	if mongoPkg.IsNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read %s/%s: %w", collection, id, err)
	}
	return true, nil
}

// viewTx routes every operation through the transaction's session context.
type viewTx struct {
	db      *mongo.Database
	sessCtx mongo.SessionContext
}

func (t *viewTx) Find(_ context.Context, collection, id string, out interface{}) (bool, error) {
	err := t.db.Collection(collection).FindOne(t.sessCtx, mongoPkg.ByID(id)).Decode(out)
	if mongoPkg.IsNotFound(err) {
		return false, nil
	}
	return err == nil, err
}

func (t *viewTx) Upsert(_ context.Context, collection, id string, view interface{}) error {
	_, err := t.db.Collection(collection).ReplaceOne(t.sessCtx, mongoPkg.ByID(id), view, options.Replace().SetUpsert(true))
	return err
}

func (t *viewTx) Delete(_ context.Context, collection, id string) error {
	_, err := t.db.Collection(collection).DeleteOne(t.sessCtx, mongoPkg.ByID(id))
	return err
}
