package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wms-platform/stock-ledger-service/internal/domain"
	"github.com/wms-platform/stock-ledger-service/pkg/logging"
	"github.com/wms-platform/stock-ledger-service/pkg/metrics"
	mongoPkg "github.com/wms-platform/stock-ledger-service/pkg/mongodb"
	"github.com/wms-platform/stock-ledger-service/pkg/tracing"
)

const (
	StreamsCollection  = "event_streams"
	EventsCollection   = "events"
	CountersCollection = "counters"

	sequenceCounterID = "events"
	tracerName        = "stock-ledger-service/mongodb"
)

type streamDocument struct {
	ID       string `bson:"_id"`
	Revision int64  `bson:"revision"`
}

type eventDocument struct {
	ID         string    `bson:"_id"`
	StreamID   string    `bson:"streamId"`
	Revision   int64     `bson:"revision"`
	Sequence   int64     `bson:"sequence"`
	EventType  string    `bson:"eventType"`
	OccurredAt time.Time `bson:"occurredAt"`
	RecordedAt time.Time `bson:"recordedAt"`
	Payload    []byte    `bson:"payload"`
}

func (d *eventDocument) envelope() *domain.Envelope {
	return &domain.Envelope{
		EventID:    d.ID,
		StreamID:   d.StreamID,
		Revision:   uint64(d.Revision),
		Sequence:   uint64(d.Sequence),
		EventType:  d.EventType,
		OccurredAt: d.OccurredAt.UTC(),
		RecordedAt: d.RecordedAt.UTC(),
		Payload:    d.Payload,
	}
}

// EventStore is the MongoDB event log. Each append runs in one transaction
// that checks the stream revision, takes a block of global sequences from a
// counter document and inserts the events. Concurrent appends write the same
// counter, so their transactions conflict and commit one at a time in
// sequence order.
type EventStore struct {
	client   *mongo.Client
	streams  *mongo.Collection
	events   *mongo.Collection
	counters *mongo.Collection
	logger   *logging.Logger
	metrics  *metrics.Metrics
}

// NewEventStore creates the store and its indexes
func NewEventStore(ctx context.Context, db *mongo.Database, logger *logging.Logger, m *metrics.Metrics) (*EventStore, error) {
	s := &EventStore{
		client:   db.Client(),
		streams:  db.Collection(StreamsCollection),
		events:   db.Collection(EventsCollection),
		counters: db.Collection(CountersCollection),
		logger:   logger.WithComponent("event-store"),
		metrics:  m,
	}
	if err := s.ensureIndexes(ctx); err != nil {
		return nil, fmt.Errorf("failed to create event store indexes: %w", err)
	}
	return s, nil
}

func (s *EventStore) ensureIndexes(ctx context.Context) error {
	return mongoPkg.EnsureIndexes(ctx, s.events,
		mongo.IndexModel{
			Keys:    bson.D{{Key: "streamId", Value: 1}, {Key: "revision", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		mongo.IndexModel{
			Keys:    bson.D{{Key: "sequence", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
	)
}

func (s *EventStore) record(op string, start time.Time, err error) {
	s.metrics.RecordMongoDBOperation(EventsCollection, op, err == nil, time.Since(start))
}

func (s *EventStore) streamState(ctx context.Context, streamID string) (domain.StreamState, error) {
	var doc streamDocument
	err := s.streams.FindOne(ctx, mongoPkg.ByID(streamID)).Decode(&doc)
	if mongoPkg.IsNotFound(err) {
		return domain.StreamState{StreamID: streamID}, nil
	}
	if err != nil {
		return domain.StreamState{}, err
	}
	return domain.StreamState{StreamID: streamID, Revision: uint64(doc.Revision), Exists: true}, nil
}

// Append implements domain.EventStore
func (s *EventStore) Append(ctx context.Context, streamID string, expected domain.ExpectedRevision, events ...*domain.Envelope) (revision uint64, err error) {
	if len(events) == 0 {
		return 0, domain.NewValidationError("events", "at least one event is required")
	}

	ctx, span := tracing.StartSpan(ctx, tracerName, "eventstore.Append",
		attribute.String(tracing.AttrStreamID, streamID),
		attribute.Int("events.count", len(events)),
	)
	start := time.Now()
	defer func() {
		s.record("append", start, err)
		tracing.EndSpan(span, err)
	}()

	var docs []interface{}
	err = mongoPkg.WithTransaction(ctx, s.client, func(sessCtx mongo.SessionContext) error {
		docs = docs[:0]

		state, err := s.streamState(sessCtx, streamID)
		if err != nil {
			return fmt.Errorf("failed to read stream state: %w", err)
		}
		if !state.Satisfies(expected) {
			return &domain.ConcurrencyConflictError{StreamID: streamID, Expected: expected, Actual: state}
		}

		var counter struct {
			Value int64 `bson:"value"`
		}
		err = s.counters.FindOneAndUpdate(sessCtx,
			mongoPkg.ByID(sequenceCounterID),
			bson.M{"$inc": bson.M{"value": int64(len(events))}},
			options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
		).Decode(&counter)
		if err != nil {
			return fmt.Errorf("failed to reserve sequences: %w", err)
		}

		firstSeq := counter.Value - int64(len(events)) + 1
		firstRev := int64(expected.After(1))
		recordedAt := mongoPkg.Now()
		for i, env := range events {
			docs = append(docs, &eventDocument{
				ID:         env.EventID,
				StreamID:   streamID,
				Revision:   firstRev + int64(i),
				Sequence:   firstSeq + int64(i),
				EventType:  env.EventType,
				OccurredAt: env.OccurredAt.UTC(),
				RecordedAt: recordedAt,
				Payload:    env.Payload,
			})
		}
		if _, err := s.events.InsertMany(sessCtx, docs); err != nil {
			if mongoPkg.IsDuplicateKey(err) {
				return &domain.ConcurrencyConflictError{StreamID: streamID, Expected: expected, Actual: state}
			}
			return fmt.Errorf("failed to insert events: %w", err)
		}

		newRevision := int64(expected.After(len(events)))
		if !state.Exists {
			_, err = s.streams.InsertOne(sessCtx, &streamDocument{ID: streamID, Revision: newRevision})
			if mongoPkg.IsDuplicateKey(err) {
				return &domain.ConcurrencyConflictError{StreamID: streamID, Expected: expected, Actual: state}
			}
		} else {
			var res *mongo.UpdateResult
			res, err = s.streams.UpdateOne(sessCtx,
				bson.M{"_id": streamID, "revision": int64(state.Revision)},
				bson.M{"$set": bson.M{"revision": newRevision}},
			)
			if err == nil && res.MatchedCount == 0 {
				return &domain.ConcurrencyConflictError{StreamID: streamID, Expected: expected, Actual: state}
			}
		}
		if err != nil {
			return fmt.Errorf("failed to advance stream: %w", err)
		}
		return nil
	})

	streamType := domain.StreamType(streamID)
	if err != nil {
		var conflict *domain.ConcurrencyConflictError
		if errors.As(err, &conflict) {
			s.metrics.RecordAppendConflict(streamType)
			return 0, conflict
		}
		return 0, err
	}

	revision = expected.After(len(events))
	for i, env := range events {
		doc := docs[i].(*eventDocument)
		env.StreamID, env.Revision, env.Sequence, env.RecordedAt = streamID, uint64(doc.Revision), uint64(doc.Sequence), doc.RecordedAt
		s.metrics.RecordEventAppended(streamType, env.EventType)
	}
	s.logger.EventsAppended(ctx, streamID, len(events), revision, events[len(events)-1].Sequence)
	return revision, nil
}

// ReadStream implements domain.EventStore
func (s *EventStore) ReadStream(ctx context.Context, streamID string) (envs []*domain.Envelope, state domain.StreamState, err error) {
	start := time.Now()
	defer func() { s.record("read_stream", start, err) }()

	state, err = s.streamState(ctx, streamID)
	if err != nil {
		return nil, domain.StreamState{}, fmt.Errorf("failed to read stream state: %w", err)
	}
	if !state.Exists {
		return nil, state, nil
	}

	opts := options.Find().SetSort(bson.D{{Key: "revision", Value: 1}})
	envs, err = s.find(ctx, bson.M{"streamId": streamID, "revision": bson.M{"$lte": int64(state.Revision)}}, opts)
	return envs, state, err
}

// ReadAll implements domain.EventReader
func (s *EventStore) ReadAll(ctx context.Context, afterSequence uint64, limit int) (envs []*domain.Envelope, err error) {
	start := time.Now()
	defer func() { s.record("read_all", start, err) }()

	opts := options.Find().SetSort(bson.D{{Key: "sequence", Value: 1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	return s.find(ctx, bson.M{"sequence": bson.M{"$gt": int64(afterSequence)}}, opts)
}

// LastSequence implements domain.EventReader
func (s *EventStore) LastSequence(ctx context.Context) (uint64, error) {
	var doc eventDocument
	opts := options.FindOne().SetSort(bson.D{{Key: "sequence", Value: -1}}).SetProjection(bson.M{"sequence": 1})
	err := s.events.FindOne(ctx, bson.M{}, opts).Decode(&doc)
	if mongoPkg.IsNotFound(err) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read last sequence: %w", err)
	}
	return uint64(doc.Sequence), nil
}

func (s *EventStore) find(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]*domain.Envelope, error) {
	cursor, err := s.events.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []eventDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode events: %w", err)
	}

	envs := make([]*domain.Envelope, len(docs))
	for i := range docs {
		envs[i] = docs[i].envelope()
	}
	return envs, nil
}
