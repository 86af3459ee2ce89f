package application

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wms-platform/stock-ledger-service/internal/domain"
)

func TestSlotLocker_RejectsUnorderedTokens(t *testing.T) {
	l := NewSlotLocker(nil)

	_, err := l.Lock(context.Background(), []string{"b", "a"})
	assert.ErrorIs(t, err, ErrUnorderedTokens)

	_, err = l.Lock(context.Background(), []string{"a", "a"})
	assert.ErrorIs(t, err, ErrUnorderedTokens)
}

func TestSlotLocker_ExcludesOverlappingHolders(t *testing.T) {
	l := NewSlotLocker(nil)
	ctx := context.Background()

	release, err := l.Lock(ctx, []string{"a", "b"})
	require.NoError(t, err)

	acquired := make(chan struct{})
	go func() {
		r, err := l.Lock(ctx, []string{"b", "c"})
		if err == nil {
			close(acquired)
			r()
		}
	}()

	select {
	case <-acquired:
		t.Fatal("overlapping lock acquired while held")
	case <-time.After(20 * time.Millisecond):
	}

	release()
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("waiter never acquired")
	}

	assert.Eventually(t, func() bool { return l.held() == 0 }, time.Second, time.Millisecond)
}

func TestSlotLocker_ContextCancelReleasesPartialHold(t *testing.T) {
	l := NewSlotLocker(nil)

	release, err := l.Lock(context.Background(), []string{"b"})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = l.Lock(ctx, []string{"a", "b"})
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	// "a" was taken and must have been given back.
	r, err := l.Lock(context.Background(), []string{"a"})
	require.NoError(t, err)
	r()

	release()
	release() // releasing twice is harmless
	assert.Equal(t, 0, l.held())
}

func TestSlotLocker_OpposingOrdersDoNotDeadlock(t *testing.T) {
	l := NewSlotLocker(nil)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	x := domain.NewSlot("WH1", "A", "SKU")
	y := domain.NewSlot("WH1", "B", "SKU")

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			r, err := l.Lock(ctx, domain.DeriveLockKeys([]domain.Slot{x, y}))
			if assert.NoError(t, err) {
				r()
			}
		}()
		go func() {
			defer wg.Done()
			r, err := l.Lock(ctx, domain.DeriveLockKeys([]domain.Slot{y, x}))
			if assert.NoError(t, err) {
				r()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 0, l.held())
}
