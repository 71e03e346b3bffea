package storage

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// PendingWrite is a deferred UpsertMany call.
type PendingWrite struct {
	Collection string
	Docs       []Document
	UniqueKeys []string
}

// QueueItem is a queued write with its retry bookkeeping.
type QueueItem struct {
	ID         uuid.UUID
	EnqueuedAt time.Time
	Attempts   int
	Write      PendingWrite
}

// DrainResult reports one drain pass.
type DrainResult struct {
	Attempted int
	Succeeded int
	Remaining int
}

// RetryQueue buffers failed remote writes for the whole process. A drain
// pass runs only when remote is available and the retry interval has
// elapsed since the previous pass; each item is tried once per pass.
type RetryQueue struct {
	interval time.Duration
	logger   *zap.Logger
	now      func() time.Time

	mu        sync.Mutex
	items     []QueueItem
	lastDrain time.Time
	draining  bool
	onDepth   func(int)
}

func NewRetryQueue(interval time.Duration, logger *zap.Logger) *RetryQueue {
	if interval <= 0 {
		interval = time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RetryQueue{interval: interval, logger: logger, now: time.Now}
}

// OnDepthChange registers a callback invoked with the queue length after
// every change.
func (q *RetryQueue) OnDepthChange(fn func(int)) {
	q.mu.Lock()
	q.onDepth = fn
	q.mu.Unlock()
}

// Enqueue appends a write and returns its id.
func (q *RetryQueue) Enqueue(w PendingWrite) uuid.UUID {
	item := QueueItem{ID: uuid.New(), EnqueuedAt: q.now().UTC(), Write: w}

	q.mu.Lock()
	q.items = append(q.items, item)
	depth, notify := len(q.items), q.onDepth
	q.mu.Unlock()

	if notify != nil {
		notify(depth)
	}
	return item.ID
}

func (q *RetryQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Items returns a snapshot in insertion order.
func (q *RetryQueue) Items() []QueueItem {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]QueueItem(nil), q.items...)
}

// DrainIfDue attempts every queued item once when a pass is due. ran is
// false when nothing was attempted.
func (q *RetryQueue) DrainIfDue(ctx context.Context, remote Remote) (res DrainResult, ran bool) {
	if remote == nil || !q.due() {
		return DrainResult{Remaining: q.Len()}, false
	}
	if !remote.Available(ctx) {
		return DrainResult{Remaining: q.Len()}, false
	}

	q.mu.Lock()
	if q.draining || len(q.items) == 0 || !q.dueLocked() {
		q.mu.Unlock()
		return DrainResult{Remaining: q.Len()}, false
	}
	q.draining = true
	q.lastDrain = q.now()
	batch := append([]QueueItem(nil), q.items...)
	q.mu.Unlock()

	done := make(map[uuid.UUID]bool, len(batch))
	for _, item := range batch {
		if ctx.Err() != nil {
			break
		}
		res.Attempted++
		err := remote.UpsertMany(ctx, item.Write.Collection, item.Write.Docs, item.Write.UniqueKeys)
		done[item.ID] = err == nil
		if err != nil {
			q.logger.Warn("queued write failed",
				zap.String("item", item.ID.String()),
				zap.String("collection", item.Write.Collection),
				zap.Int("attempts", item.Attempts+1),
				zap.Error(err),
			)
			continue
		}
		res.Succeeded++
	}

	q.mu.Lock()
	kept := q.items[:0]
	for _, item := range q.items {
		ok, tried := done[item.ID]
		if tried && ok {
			continue
		}
		if tried {
			item.Attempts++
		}
		kept = append(kept, item)
	}
	q.items = kept
	q.draining = false
	res.Remaining = len(q.items)
	notify := q.onDepth
	q.mu.Unlock()

	if notify != nil {
		notify(res.Remaining)
	}
	if res.Attempted > 0 {
		q.logger.Info("retry queue drained",
			zap.Int("attempted", res.Attempted),
			zap.Int("succeeded", res.Succeeded),
			zap.Int("remaining", res.Remaining),
		)
	}
	return res, true
}

// Run calls DrainIfDue every tick until ctx is done.
func (q *RetryQueue) Run(ctx context.Context, remote Remote, tick time.Duration) error {
	if tick <= 0 {
		tick = q.interval
	}
	ticker := time.NewTicker(tick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			q.DrainIfDue(ctx, remote)
		}
	}
}

func (q *RetryQueue) due() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items) > 0 && q.dueLocked()
}

func (q *RetryQueue) dueLocked() bool {
	return q.lastDrain.IsZero() || q.now().Sub(q.lastDrain) >= q.interval
}
