package services

import (
	"context"
	"sync"
)

// accountLocks serializes rebuilds per account. Entries are dropped once no
// caller holds or waits for them.
type accountLocks struct {
	mu    sync.Mutex
	locks map[int64]*accountLock
}

type accountLock struct {
	sem  chan struct{}
	refs int
}

// lock blocks until the account is free or ctx ends. The returned func
// releases the lock.
func (l *accountLocks) lock(ctx context.Context, accountID int64) (func(), error) {
	l.mu.Lock()
	if l.locks == nil {
		l.locks = make(map[int64]*accountLock)
	}
	al, ok := l.locks[accountID]
	if !ok {
		al = &accountLock{sem: make(chan struct{}, 1)}
		l.locks[accountID] = al
	}
	al.refs++
	l.mu.Unlock()

	select {
	case al.sem <- struct{}{}:
	case <-ctx.Done():
		l.release(accountID, al)
		return nil, ctx.Err()
	}

	return func() {
		<-al.sem
		l.release(accountID, al)
	}, nil
}

func (l *accountLocks) release(accountID int64, al *accountLock) {
	l.mu.Lock()
	defer l.mu.Unlock()
	al.refs--
	if al.refs == 0 {
		delete(l.locks, accountID)
	}
}
