package storage

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"whaleScope/internal/model"
)

// EventStore persists whale events per chain in a local history file and the
// remote history collection. Failed remote writes go to the retry queue.
type EventStore struct {
	layout Layout
	remote Remote
	queue  *RetryQueue
	logger *zap.Logger
}

// NewEventStore builds a store. remote and queue may be nil.
func NewEventStore(layout Layout, remote Remote, queue *RetryQueue, logger *zap.Logger) *EventStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EventStore{layout: layout, remote: remote, queue: queue, logger: logger}
}

// AppendResult summarizes an AppendAndReconcile call.
type AppendResult struct {
	// Added holds the events that were not stored before and survived
	// retention. Older new events still reach remote but are not reported.
	Added   []model.WhaleEvent
	Total   int
	Evicted int
	// Queued is set when the remote write was deferred to the retry queue.
	Queued bool
}

// Load returns the union of local and remote events of chain, oldest first.
// limit bounds the result to the most recent events; 0 returns all.
func (s *EventStore) Load(ctx context.Context, chain string, limit int) ([]model.WhaleEvent, error) {
	path := s.layout.HistoryPath(chain)
	unlock := pathLocks.lock(path)
	defer unlock()

	merge, _ := s.load(ctx, chain, path, limit)
	events, _ := TrimRetention(merge.Events, limit)
	return events, nil
}

// AppendAndReconcile merges events into the reconciled history of chain,
// trims it to retention, rewrites the local file and upserts new events
// remotely. Re-appending known events changes nothing.
func (s *EventStore) AppendAndReconcile(ctx context.Context, chain string, events []model.WhaleEvent, retention int) (AppendResult, error) {
	path := s.layout.HistoryPath(chain)
	unlock := pathLocks.lock(path)
	defer unlock()

	merge, remoteRead := s.load(ctx, chain, path, retention)
	merged, added := MergeNew(merge.Events, events)
	kept, evicted := TrimRetention(merged, retention)
	res := AppendResult{Added: retained(added, kept), Total: len(kept), Evicted: evicted}

	if len(added) > 0 || merge.LocalStale || evicted > 0 {
		if err := writeJSON(path, kept); err != nil {
			return res, fmt.Errorf("write history %s: %w", chain, err)
		}
	}

	pending := added
	if remoteRead {
		pending = append(append([]model.WhaleEvent(nil), merge.RemoteMissing...), added...)
	}
	if len(pending) == 0 {
		return res, nil
	}
	docs, err := eventDocuments(pending)
	if err != nil {
		return res, err
	}
	write := PendingWrite{Collection: HistoryCollection(chain), Docs: docs, UniqueKeys: EventKeys}
	res.Queued = s.upsertOrQueue(ctx, chain, write)
	return res, nil
}

// retained returns the events of added that are present in kept.
func retained(added, kept []model.WhaleEvent) []model.WhaleEvent {
	if len(added) == 0 {
		return nil
	}
	keep := make(map[model.EventKey]struct{}, len(kept))
	for _, e := range kept {
		keep[e.Key()] = struct{}{}
	}
	var out []model.WhaleEvent
	for _, e := range added {
		if _, ok := keep[e.Key()]; ok {
			out = append(out, e)
		}
	}
	return out
}

// load reads both sides. remoteRead is false when remote could not be read.
func (s *EventStore) load(ctx context.Context, chain, path string, limit int) (EventMerge, bool) {
	var local []model.WhaleEvent
	if _, err := readJSON(path, &local); err != nil {
		s.logger.Warn("history file unreadable, ignoring", zap.String("chain", chain), zap.Error(err))
		local = nil
	}

	remote, ok := s.readRemote(ctx, chain, limit)
	if !ok {
		SortEvents(local)
		return EventMerge{Events: local}, false
	}
	return ReconcileEvents(local, remote), true
}

func (s *EventStore) readRemote(ctx context.Context, chain string, limit int) ([]model.WhaleEvent, bool) {
	if s.remote == nil || !s.remote.Available(ctx) {
		return nil, false
	}
	docs, err := s.remote.FindAll(ctx, HistoryCollection(chain), FindQuery{SortField: "time", Limit: limit})
	if err != nil {
		s.logger.Warn("remote history read failed", zap.String("chain", chain), zap.Error(err))
		return nil, false
	}
	events := make([]model.WhaleEvent, 0, len(docs))
	for _, doc := range docs {
		e, err := DecodeEvent(doc)
		if err != nil {
			s.logger.Warn("drop malformed remote event", zap.String("chain", chain), zap.Error(err))
			continue
		}
		events = append(events, e)
	}
	return events, true
}

// upsertOrQueue returns true when the write was queued instead of applied.
func (s *EventStore) upsertOrQueue(ctx context.Context, chain string, write PendingWrite) bool {
	if s.remote == nil {
		return false
	}
	if s.remote.Available(ctx) {
		err := s.remote.UpsertMany(ctx, write.Collection, write.Docs, write.UniqueKeys)
		if err == nil {
			return false
		}
		s.logger.Warn("remote history write failed", zap.String("chain", chain), zap.Int("docs", len(write.Docs)), zap.Error(err))
	}
	if s.queue == nil {
		s.logger.Error("remote history write dropped, no retry queue", zap.String("chain", chain), zap.Int("docs", len(write.Docs)))
		return false
	}
	id := s.queue.Enqueue(write)
	s.logger.Info("remote history write queued",
		zap.String("chain", chain),
		zap.String("item", id.String()),
		zap.Int("docs", len(write.Docs)),
	)
	return true
}
