package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/erp/settlement/internal/domain/dunning"
)

// InMemoryAccountLocker serializes accounts within one process.
// WARNING: it does not coordinate across instances.
type InMemoryAccountLocker struct {
	mu    sync.Mutex
	slots map[uuid.UUID]*lockSlot
	wait  time.Duration
}

// lockSlot is a one-token semaphore; refs counts holders and waiters so the
// slot can be dropped once nobody needs it.
type lockSlot struct {
	sem  chan struct{}
	refs int
}

// NewInMemoryAccountLocker creates an in-process locker
func NewInMemoryAccountLocker(waitTimeout time.Duration) *InMemoryAccountLocker {
	if waitTimeout <= 0 {
		waitTimeout = 10 * time.Second
	}
	return &InMemoryAccountLocker{
		slots: make(map[uuid.UUID]*lockSlot),
		wait:  waitTimeout,
	}
}

// Lock blocks until the account is free, the wait timeout passes or ctx ends
func (l *InMemoryAccountLocker) Lock(ctx context.Context, accountID uuid.UUID) (func(), error) {
	slot := l.acquireSlot(accountID)

	waitCtx, cancel := context.WithTimeout(ctx, l.wait)
	defer cancel()

	select {
	case slot.sem <- struct{}{}:
		var once sync.Once
		return func() {
			once.Do(func() {
				<-slot.sem
				l.releaseSlot(accountID)
			})
		}, nil
	case <-waitCtx.Done():
		l.releaseSlot(accountID)
		return nil, fmt.Errorf("account %s is locked by another evaluation: %w", accountID, waitCtx.Err())
	}
}

func (l *InMemoryAccountLocker) acquireSlot(accountID uuid.UUID) *lockSlot {
	l.mu.Lock()
	defer l.mu.Unlock()
	slot, ok := l.slots[accountID]
	if !ok {
		slot = &lockSlot{sem: make(chan struct{}, 1)}
		l.slots[accountID] = slot
	}
	slot.refs++
	return slot
}

func (l *InMemoryAccountLocker) releaseSlot(accountID uuid.UUID) {
	l.mu.Lock()
	defer l.mu.Unlock()
	slot, ok := l.slots[accountID]
	if !ok {
		return
	}
	slot.refs--
	if slot.refs == 0 {
		delete(l.slots, accountID)
	}
}

// Size returns the number of accounts currently held or awaited
func (l *InMemoryAccountLocker) Size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.slots)
}

// Ensure InMemoryAccountLocker implements dunning.AccountLocker
var _ dunning.AccountLocker = (*InMemoryAccountLocker)(nil)
