package application

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/wms-platform/stock-ledger-service/pkg/metrics"
)

// ErrUnorderedTokens is returned when lock tokens are not strictly ascending
var ErrUnorderedTokens = errors.New("lock tokens must be sorted and unique")

type tokenLock struct {
	ch   chan struct{}
	refs int
}

// SlotLocker serialises work on slots within this process. Tokens come from
// domain.DeriveLockKeys and are always taken in ascending order, so callers
// holding overlapping sets cannot deadlock.
type SlotLocker struct {
	mu      sync.Mutex
	locks   map[string]*tokenLock
	metrics *metrics.Metrics
}

// NewSlotLocker creates an empty locker
func NewSlotLocker(m *metrics.Metrics) *SlotLocker {
	return &SlotLocker{
		locks:   make(map[string]*tokenLock),
		metrics: m,
	}
}

// Lock acquires every token in order and returns a func releasing them in
// reverse order. If ctx ends while waiting, tokens already held are released.
func (l *SlotLocker) Lock(ctx context.Context, tokens []string) (func(), error) {
	for i := 1; i < len(tokens); i++ {
		if tokens[i-1] >= tokens[i] {
			return nil, fmt.Errorf("%w: %q before %q", ErrUnorderedTokens, tokens[i-1], tokens[i])
		}
	}

	start := time.Now()
	held := make([]string, 0, len(tokens))
	release := func() {
		for i := len(held) - 1; i >= 0; i-- {
			l.unlock(held[i])
		}
	}

	for _, token := range tokens {
		entry := l.ref(token)
		select {
		case entry.ch <- struct{}{}:
			held = append(held, token)
		case <-ctx.Done():
			l.unref(token)
			release()
			return nil, ctx.Err()
		}
	}

	if l.metrics != nil {
		l.metrics.RecordLockWait(time.Since(start))
	}

	var once sync.Once
	return func() { once.Do(release) }, nil
}

func (l *SlotLocker) ref(token string) *tokenLock {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry, ok := l.locks[token]
	if !ok {
		entry = &tokenLock{ch: make(chan struct{}, 1)}
		l.locks[token] = entry
	}
	entry.refs++
	return entry
}

func (l *SlotLocker) unref(token string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry := l.locks[token]
	entry.refs--
	if entry.refs == 0 {
		delete(l.locks, token)
	}
}

func (l *SlotLocker) unlock(token string) {
	l.mu.Lock()
	entry := l.locks[token]
	l.mu.Unlock()

	<-entry.ch
	l.unref(token)
}

// held reports how many tokens currently have holders or waiters
func (l *SlotLocker) held() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
