package cache

import (
	"context"
	"sync"

	"github.com/saasbooks/backend/internal/infrastructure/logger"
	"go.uber.org/zap"
)

type invalidation struct {
	namespace string
	keys      []string // empty means the whole namespace
}

// InvalidationQueue accumulates cache invalidations during a write
// transaction. Nothing is sent to Redis until Flush, which the DAL
// calls only after the transaction commits; a rollback discards the
// queue. This keeps the cache from serving state that was never
// committed, at the cost of a brief staleness window between commit and
// flush.
type InvalidationQueue struct {
	mu      sync.Mutex
	pending []invalidation
}

// NewInvalidationQueue creates an empty queue.
func NewInvalidationQueue() *InvalidationQueue {
	return &InvalidationQueue{}
}

// Add queues key invalidations for a namespace.
func (q *InvalidationQueue) Add(ns string, keys ...string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.pending = append(q.pending, invalidation{namespace: ns, keys: keys})
}

// AddNamespace queues a whole-namespace invalidation.
func (q *InvalidationQueue) AddNamespace(ns string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.pending = append(q.pending, invalidation{namespace: ns})
}

// Len returns the number of queued invalidations.
func (q *InvalidationQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Flush sends queued invalidations in order. Failures are logged and
// the remaining entries still run: the data is already committed, so a
// failed invalidation only extends staleness until TTL expiry.
func (q *InvalidationQueue) Flush(ctx context.Context, store *Store) {
	q.mu.Lock()
	pending := q.pending
	q.pending = nil
	q.mu.Unlock()

	for _, inv := range pending {
		var err error
		if len(inv.keys) == 0 {
			err = store.InvalidateNamespace(ctx, inv.namespace)
		} else {
			err = store.Invalidate(ctx, inv.namespace, inv.keys...)
		}
		if err != nil {
			logger.L(ctx).Warn("post-commit cache invalidation failed",
				zap.String("namespace", inv.namespace), zap.Error(err))
		}
	}
}

// Discard drops queued invalidations after a rollback.
func (q *InvalidationQueue) Discard() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.pending = nil
}
