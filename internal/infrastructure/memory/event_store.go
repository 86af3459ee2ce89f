package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/wms-platform/stock-ledger-service/internal/domain"
)

// EventStore is an in-process event log. Appends are serialised by a single
// lock so sequences are assigned in commit order.
type EventStore struct {
	mu      sync.RWMutex
	streams map[string][]*domain.Envelope
	log     []*domain.Envelope
	now     func() time.Time
}

// NewEventStore creates an empty log
func NewEventStore() *EventStore {
	return &EventStore{
		streams: make(map[string][]*domain.Envelope),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (s *EventStore) stateLocked(streamID string) domain.StreamState {
	events := s.streams[streamID]
	if len(events) == 0 {
		return domain.StreamState{StreamID: streamID}
	}
	return domain.StreamState{StreamID: streamID, Revision: events[len(events)-1].Revision, Exists: true}
}

// Append implements domain.EventStore
func (s *EventStore) Append(ctx context.Context, streamID string, expected domain.ExpectedRevision, events ...*domain.Envelope) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if len(events) == 0 {
		return 0, domain.NewValidationError("events", "at least one event is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	state := s.stateLocked(streamID)
	if !state.Satisfies(expected) {
		return 0, &domain.ConcurrencyConflictError{StreamID: streamID, Expected: expected, Actual: state}
	}

	next := uint64(0)
	if state.Exists {
		next = state.Revision + 1
	}
	recordedAt := s.now()
	for _, env := range events {
		stored := env.Clone()
		stored.StreamID = streamID
		stored.Revision = next
		stored.Sequence = uint64(len(s.log)) + 1
		stored.RecordedAt = recordedAt

		s.streams[streamID] = append(s.streams[streamID], stored)
		s.log = append(s.log, stored)

		env.StreamID, env.Revision, env.Sequence, env.RecordedAt = streamID, stored.Revision, stored.Sequence, recordedAt
		next++
	}
	return next - 1, nil
}

// ReadStream implements domain.EventStore
func (s *EventStore) ReadStream(ctx context.Context, streamID string) ([]*domain.Envelope, domain.StreamState, error) {
	if err := ctx.Err(); err != nil {
		return nil, domain.StreamState{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	return cloneAll(s.streams[streamID]), s.stateLocked(streamID), nil
}

// ReadAll implements domain.EventReader
func (s *EventStore) ReadAll(ctx context.Context, afterSequence uint64, limit int) ([]*domain.Envelope, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	// Sequence n lives at index n-1.
	if afterSequence >= uint64(len(s.log)) {
		return nil, nil
	}
	rest := s.log[afterSequence:]
	if limit > 0 && len(rest) > limit {
		rest = rest[:limit]
	}
	return cloneAll(rest), nil
}

// LastSequence implements domain.EventReader
func (s *EventStore) LastSequence(ctx context.Context) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return uint64(len(s.log)), nil
}

// StreamIDs lists every stream with at least one event
func (s *EventStore) StreamIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.streams))
	for id := range s.streams {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Inject appends a raw envelope to the log without decoding it. Tests use it
// to plant events the typed API would refuse to produce.
func (s *EventStore) Inject(env *domain.Envelope) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := env.Clone()
	state := s.stateLocked(stored.StreamID)
	if state.Exists {
		stored.Revision = state.Revision + 1
	} else {
		stored.Revision = 0
	}
	stored.Sequence = uint64(len(s.log)) + 1
	stored.RecordedAt = s.now()
	s.streams[stored.StreamID] = append(s.streams[stored.StreamID], stored)
	s.log = append(s.log, stored)
	return stored.Sequence
}

func cloneAll(in []*domain.Envelope) []*domain.Envelope {
	if len(in) == 0 {
		return nil
	}
	out := make([]*domain.Envelope, len(in))
	for i, env := range in {
		out[i] = env.Clone()
	}
	return out
}
