package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/wms-platform/stock-ledger-service/internal/projections"
)

// ViewStore keeps view documents as JSON in memory. Apply holds the store
// lock for the whole transaction and commits a staged overlay only when fn
// succeeds.
type ViewStore struct {
	mu          sync.RWMutex
	collections map[string]map[string][]byte
	checkpoints map[string]projections.Checkpoint
}

// NewViewStore creates an empty store
func NewViewStore() *ViewStore {
	return &ViewStore{
		collections: make(map[string]map[string][]byte),
		checkpoints: make(map[string]projections.Checkpoint),
	}
}

// Checkpoint implements projections.ViewStore
func (s *ViewStore) Checkpoint(ctx context.Context, consumer string) (projections.Checkpoint, error) {
	if err := ctx.Err(); err != nil {
		return projections.Checkpoint{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	cp, ok := s.checkpoints[consumer]
	if !ok {
		return projections.Checkpoint{Consumer: consumer}, nil
	}
	return cp, nil
}

// Apply implements projections.ViewStore
func (s *ViewStore) Apply(ctx context.Context, next projections.Checkpoint, fn func(tx projections.ViewTx) error) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if cp, ok := s.checkpoints[next.Consumer]; ok && cp.Sequence >= next.Sequence {
		return false, nil
	}

	tx := &viewTx{store: s, staged: make(map[string]map[string][]byte)}
	if err := fn(tx); err != nil {
		return false, err
	}

	for collection, docs := range tx.staged {
		target := s.collection(collection)
		for id, data := range docs {
			if data == nil {
				delete(target, id)
				continue
			}
			target[id] = data
		}
	}
	s.checkpoints[next.Consumer] = next
	return true, nil
}

// Reset implements projections.ViewStore
func (s *ViewStore) Reset(ctx context.Context, consumer string, collections []string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, c := range collections {
		delete(s.collections, c)
	}
	delete(s.checkpoints, consumer)
	return nil
}

// Find implements projections.ViewStore
func (s *ViewStore) Find(ctx context.Context, collection, id string, out interface{}) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	data, ok := s.collections[collection][id]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(data, out)
}

// Count returns the number of documents in a collection
func (s *ViewStore) Count(collection string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.collections[collection])
}

// Dump serialises the given collections with sorted keys, so two stores
// holding the same views produce identical bytes.
func (s *ViewStore) Dump(collections ...string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]map[string]json.RawMessage, len(collections))
	for _, c := range collections {
		docs := make(map[string]json.RawMessage, len(s.collections[c]))
		for id, data := range s.collections[c] {
			docs[id] = data
		}
		out[c] = docs
	}
	return json.Marshal(out)
}

func (s *ViewStore) collection(name string) map[string][]byte {
	c, ok := s.collections[name]
	if !ok {
		c = make(map[string][]byte)
		s.collections[name] = c
	}
	return c
}

// viewTx stages writes over the committed documents; a nil entry is a delete.
type viewTx struct {
	store  *ViewStore
	staged map[string]map[string][]byte
}

func (t *viewTx) Find(_ context.Context, collection, id string, out interface{}) (bool, error) {
	data, ok := t.staged[collection][id]
	if !ok {
		data, ok = t.store.collections[collection][id]
	}
	if !ok || data == nil {
		return false, nil
	}
	return true, json.Unmarshal(data, out)
}

func (t *viewTx) Upsert(_ context.Context, collection, id string, view interface{}) error {
	data, err := json.Marshal(view)
	if err != nil {
		return fmt.Errorf("encode %s/%s: %w", collection, id, err)
	}
	t.stage(collection)[id] = data
	return nil
}

func (t *viewTx) Delete(_ context.Context, collection, id string) error {
	t.stage(collection)[id] = nil
	return nil
}

func (t *viewTx) stage(collection string) map[string][]byte {
	docs, ok := t.staged[collection]
	if !ok {
		docs = make(map[string][]byte)
		t.staged[collection] = docs
	}
	return docs
}
