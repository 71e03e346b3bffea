package storage

import (
	"sort"

	"whaleScope/internal/model"
)

// CheckpointValue is one side's view of a checkpoint. Set is false when that
// side holds no value.
type CheckpointValue struct {
	Block uint64
	Set   bool
}

// ReconcileCheckpoint takes the larger of two checkpoints, treating an unset
// side as lower than any value, and reports which side lags behind.
func ReconcileCheckpoint(local, remote CheckpointValue) (merged CheckpointValue, writeLocal, writeRemote bool) {
	switch {
	case !local.Set && !remote.Set:
		return CheckpointValue{}, false, false
	case !remote.Set:
		merged = local
	case !local.Set:
		merged = remote
	case remote.Block > local.Block:
		merged = remote
	default:
		merged = local
	}
	writeLocal = !local.Set || local.Block < merged.Block
	writeRemote = !remote.Set || remote.Block < merged.Block
	return merged, writeLocal, writeRemote
}

// EventMerge is the result of ReconcileEvents.
type EventMerge struct {
	// Events is the union ordered oldest first.
	Events []model.WhaleEvent
	// LocalStale is set when local lacks an event or holds an outdated copy.
	LocalStale bool
	// RemoteMissing lists local events absent from remote.
	RemoteMissing []model.WhaleEvent
}

// ReconcileEvents unions local and remote events keyed by (chain_id, hash).
// Remote copies win on conflict.
func ReconcileEvents(local, remote []model.WhaleEvent) EventMerge {
	byKey := make(map[model.EventKey]model.WhaleEvent, len(local)+len(remote))
	localByKey := make(map[model.EventKey]model.WhaleEvent, len(local))
	for _, e := range local {
		byKey[e.Key()] = e
		localByKey[e.Key()] = e
	}

	var out EventMerge
	remoteKeys := make(map[model.EventKey]struct{}, len(remote))
	for _, e := range remote {
		remoteKeys[e.Key()] = struct{}{}
		if prev, ok := localByKey[e.Key()]; !ok || !sameEvent(prev, e) {
			out.LocalStale = true
		}
		byKey[e.Key()] = e
	}
	for _, e := range local {
		if _, ok := remoteKeys[e.Key()]; !ok {
			out.RemoteMissing = append(out.RemoteMissing, e)
		}
	}

	out.Events = make([]model.WhaleEvent, 0, len(byKey))
	for _, e := range byKey {
		out.Events = append(out.Events, e)
	}
	SortEvents(out.Events)
	SortEvents(out.RemoteMissing)
	return out
}

// MergeNew adds events whose key is not already present. Existing events are
// never replaced, so re-appending a batch is a no-op.
func MergeNew(existing, incoming []model.WhaleEvent) (merged, added []model.WhaleEvent) {
	seen := make(map[model.EventKey]struct{}, len(existing)+len(incoming))
	merged = make([]model.WhaleEvent, 0, len(existing)+len(incoming))
	for _, e := range existing {
		if _, dup := seen[e.Key()]; dup {
			continue
		}
		seen[e.Key()] = struct{}{}
		merged = append(merged, e)
	}
	for _, e := range incoming {
		if _, dup := seen[e.Key()]; dup {
			continue
		}
		seen[e.Key()] = struct{}{}
		merged = append(merged, e)
		added = append(added, e)
	}
	SortEvents(merged)
	return merged, added
}

// TrimRetention keeps the limit most recent events of a sorted slice.
// A limit of zero or less keeps everything.
func TrimRetention(events []model.WhaleEvent, limit int) (kept []model.WhaleEvent, evicted int) {
	if limit <= 0 || len(events) <= limit {
		return events, 0
	}
	evicted = len(events) - limit
	return append([]model.WhaleEvent(nil), events[evicted:]...), evicted
}

// SortEvents orders events oldest first.
func SortEvents(events []model.WhaleEvent) {
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Before(events[j])
	})
}

func sameEvent(a, b model.WhaleEvent) bool {
	return a.Hash == b.Hash &&
		a.ChainID == b.ChainID &&
		a.Block == b.Block &&
		a.From == b.From &&
		a.To == b.To &&
		a.Value.Equal(b.Value) &&
		a.Unit == b.Unit &&
		a.Symbol == b.Symbol &&
		a.Time.Equal(b.Time) &&
		a.Type == b.Type &&
		a.FromLabel == b.FromLabel &&
		a.ToLabel == b.ToLabel
}
