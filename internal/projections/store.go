package projections

import (
	"context"
	"time"
)

// Checkpoint is the position of one consumer in the global log
type Checkpoint struct {
	Consumer  string    `json:"consumer" bson:"_id"`
	EventID   string    `json:"eventId" bson:"eventId"`
	Sequence  uint64    `json:"sequence" bson:"sequence"`
	UpdatedAt time.Time `json:"updatedAt" bson:"updatedAt"`
}

// ViewTx reads and writes view documents inside a ViewStore transaction
type ViewTx interface {
	// Find loads the document into out and reports whether it exists.
	Find(ctx context.Context, collection, id string, out interface{}) (bool, error)
	Upsert(ctx context.Context, collection, id string, view interface{}) error
	Delete(ctx context.Context, collection, id string) error
}

// ViewStore persists read models together with consumer checkpoints
type ViewStore interface {
	// Checkpoint returns the consumer's position; the zero Checkpoint when it has none.
	Checkpoint(ctx context.Context, consumer string) (Checkpoint, error)

	// Apply runs fn and moves the consumer's checkpoint to next in one
	// transaction. When the stored checkpoint is already at or beyond
	// next.Sequence it does nothing and reports false.
	Apply(ctx context.Context, next Checkpoint, fn func(tx ViewTx) error) (bool, error)

	// Reset removes every document in collections and the consumer's checkpoint.
	Reset(ctx context.Context, consumer string, collections []string) error

	// Find reads a single view outside any transaction.
	Find(ctx context.Context, collection, id string, out interface{}) (bool, error)
}
