package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wms-platform/stock-ledger-service/internal/domain"
)

func receipt(t *testing.T, id string, qty int64) *domain.Envelope {
	t.Helper()
	m := &domain.MovementEvent{
		MovementID:          id,
		Warehouse:           "WH1",
		Item:                "SKU-1",
		Quantity:            decimal.NewFromInt(qty),
		DestinationLocation: "A-01",
		MovementType:        domain.MovementReceipt,
		OperatorID:          "op-1",
		Timestamp:           time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	leg := m.Legs()[0]
	env, err := domain.NewEnvelope(leg.Slot().StreamID(), leg)
	require.NoError(t, err)
	return env
}

func TestEventStore_AppendAssignsRevisionsAndSequences(t *testing.T) {
	ctx := context.Background()
	store := NewEventStore()

	rev, err := store.Append(ctx, "stock-a", domain.NoStream, receipt(t, "m1", 1), receipt(t, "m2", 2))
	require.NoError(t, err)
	assert.Equal(t, uint64(1), rev)

	rev, err = store.Append(ctx, "stock-b", domain.NoStream, receipt(t, "m3", 3))
	require.NoError(t, err)
	assert.Equal(t, uint64(0), rev)

	rev, err = store.Append(ctx, "stock-a", domain.AtRevision(1), receipt(t, "m4", 4))
	require.NoError(t, err)
	assert.Equal(t, uint64(2), rev)

	events, state, err := store.ReadStream(ctx, "stock-a")
	require.NoError(t, err)
	assert.True(t, state.Exists)
	assert.Equal(t, uint64(2), state.Revision)
	require.Len(t, events, 3)
	for i, env := range events {
		assert.Equal(t, uint64(i), env.Revision)
	}
	assert.Equal(t, []uint64{1, 2, 4}, []uint64{events[0].Sequence, events[1].Sequence, events[2].Sequence})

	head, err := store.LastSequence(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(4), head)
}

func TestEventStore_StaleRevisionIsRejected(t *testing.T) {
	ctx := context.Background()
	store := NewEventStore()

	_, err := store.Append(ctx, "stock-a", domain.NoStream, receipt(t, "m1", 1))
	require.NoError(t, err)
	_, err = store.Append(ctx, "stock-a", domain.AtRevision(0), receipt(t, "m2", 1))
	require.NoError(t, err)

	// A writer that read the stream at revision 0 is now stale.
	_, err = store.Append(ctx, "stock-a", domain.AtRevision(0), receipt(t, "m3", 1))
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrConcurrencyConflict))

	var conflict *domain.ConcurrencyConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, uint64(1), conflict.Actual.Revision)

	_, err = store.Append(ctx, "stock-a", domain.NoStream, receipt(t, "m4", 1))
	assert.ErrorIs(t, err, domain.ErrConcurrencyConflict)

	_, err = store.Append(ctx, "stock-new", domain.AtRevision(0), receipt(t, "m5", 1))
	assert.ErrorIs(t, err, domain.ErrConcurrencyConflict)

	head, _ := store.LastSequence(ctx)
	assert.Equal(t, uint64(2), head, "rejected appends write nothing")
}

func TestEventStore_ConcurrentAppendsOnlyOneWins(t *testing.T) {
	ctx := context.Background()
	store := NewEventStore()
	_, err := store.Append(ctx, "stock-a", domain.NoStream, receipt(t, "seed", 1))
	require.NoError(t, err)

	const writers = 16
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
	)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := store.Append(ctx, "stock-a", domain.AtRevision(0), receipt(t, "m", 1)); err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, succeeded)
}

func TestEventStore_ReadAllPagesInSequenceOrder(t *testing.T) {
	ctx := context.Background()
	store := NewEventStore()
	for i := 0; i < 5; i++ {
		_, err := store.Append(ctx, "stock-"+string(rune('a'+i)), domain.NoStream, receipt(t, "m", 1))
		require.NoError(t, err)
	}

	page, err := store.ReadAll(ctx, 0, 2)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, uint64(1), page[0].Sequence)
	assert.Equal(t, uint64(2), page[1].Sequence)

	page, err = store.ReadAll(ctx, 3, 10)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, uint64(4), page[0].Sequence)

	page, err = store.ReadAll(ctx, 5, 10)
	require.NoError(t, err)
	assert.Empty(t, page)
}

func TestEventStore_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	store := NewEventStore()
	_, err := store.Append(ctx, "stock-a", domain.NoStream, receipt(t, "m1", 1))
	require.NoError(t, err)

	page, err := store.ReadAll(ctx, 0, 10)
	require.NoError(t, err)
	page[0].Payload[0] = 'x'
	page[0].EventType = "tampered"

	again, err := store.ReadAll(ctx, 0, 10)
	require.NoError(t, err)
	assert.Equal(t, domain.EventStockMoved, again[0].EventType)
	_, err = again[0].Decode()
	assert.NoError(t, err)
}

func TestEventStore_AppendRequiresEvents(t *testing.T) {
	_, err := NewEventStore().Append(context.Background(), "stock-a", domain.NoStream)
	assert.ErrorIs(t, err, domain.ErrValidation)
}
