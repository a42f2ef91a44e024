package workflow

import (
	"context"
	"fmt"
	"sync"

	"github.com/mmdatafocus/stock_backend/utils"
)

// ProductLocker serializes stock work per product.
// Lock takes every product lock in sorted order, so two callers can never
// wait on each other in a cycle. Products not named are never blocked.
type ProductLocker interface {
	Lock(ctx context.Context, productIds []string) (release func(), err error)
}

// lockKeys acquires each key in order through lockOne and releases the
// already-held keys if one of them cannot be obtained.
func lockKeys(ctx context.Context, productIds []string, lockOne func(ctx context.Context, id string) (func(), error)) (func(), error) {
	ids := utils.SortedUniqueKeys(productIds)
	releases := make([]func(), 0, len(ids))
	releaseAll := func() {
		for i := len(releases) - 1; i >= 0; i-- {
			releases[i]()
		}
	}
	for _, id := range ids {
		release, err := lockOne(ctx, id)
		if err != nil {
			releaseAll()
			return nil, err
		}
		releases = append(releases, release)
	}
	var once sync.Once
	return func() { once.Do(releaseAll) }, nil
}

func lockTimeoutError(productId string, cause error) error {
	return fmt.Errorf("%w: product %s: %v", utils.ErrTimeout, productId, cause)
}

// LocalProductLocker is an in-process keyed mutex.
// It is only correct when a single instance serves the database.
type LocalProductLocker struct {
	mu    sync.Mutex
	locks map[string]*productLock
}

type productLock struct {
	sem  chan struct{}
	refs int
}

func NewLocalProductLocker() *LocalProductLocker {
	return &LocalProductLocker{locks: make(map[string]*productLock)}
}

func (l *LocalProductLocker) Lock(ctx context.Context, productIds []string) (func(), error) {
	return lockKeys(ctx, productIds, l.lockOne)
}

func (l *LocalProductLocker) lockOne(ctx context.Context, id string) (func(), error) {
	entry := l.acquireEntry(id)
	select {
	case entry.sem <- struct{}{}:
	case <-ctx.Done():
		l.releaseEntry(id)
		return nil, lockTimeoutError(id, ctx.Err())
	}
	return func() {
		<-entry.sem
		l.releaseEntry(id)
	}, nil
}

func (l *LocalProductLocker) acquireEntry(id string) *productLock {
	l.mu.Lock()
	defer l.mu.Unlock()
	entry, ok := l.locks[id]
	if !ok {
		entry = &productLock{sem: make(chan struct{}, 1)}
		l.locks[id] = entry
	}
	entry.refs++
	return entry
}

// entries are dropped once nobody holds or waits on them
func (l *LocalProductLocker) releaseEntry(id string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	entry := l.locks[id]
	entry.refs--
	if entry.refs == 0 {
		delete(l.locks, id)
	}
}
