// Package feed is the consumer read path: recent events, the "has new"
// indicator and the seen marker.
package feed

import (
	"context"
	"fmt"

	"whaleScope/internal/model"
	"whaleScope/internal/storage"
)

// EventLoader loads a chain's history oldest first.
type EventLoader interface {
	Load(ctx context.Context, chain string, limit int) ([]model.WhaleEvent, error)
}

// CheckpointReader reads a chain's checkpoint without reconciling it.
type CheckpointReader interface {
	Peek(ctx context.Context, chain string) (uint64, bool, error)
}

// SeenMarkers stores the seen marker per chain.
type SeenMarkers interface {
	Get(chain string) (storage.SeenMarker, bool)
	Set(chain string, m storage.SeenMarker) error
}

// RecentEvent is an event annotated for display.
type RecentEvent struct {
	model.WhaleEvent
	IsNew bool `json:"is_new"`
}

// Reader never writes scan state; MarkSeen only touches the seen marker.
type Reader struct {
	events      EventLoader
	checkpoints CheckpointReader
	seen        SeenMarkers
}

func NewReader(events EventLoader, checkpoints CheckpointReader, seen SeenMarkers) *Reader {
	return &Reader{events: events, checkpoints: checkpoints, seen: seen}
}

// LoadRecentEvents returns up to limit events newest first. Events newer than
// the last seen one are flagged; without a marker nothing is flagged.
func (r *Reader) LoadRecentEvents(ctx context.Context, chain string, limit int) ([]RecentEvent, error) {
	events, err := r.events.Load(ctx, chain, limit)
	if err != nil {
		return nil, fmt.Errorf("load events %s: %w", chain, err)
	}
	marker, hasMarker := r.seen.Get(chain)

	hashSeen := false
	if hasMarker && marker.Hash != "" {
		for _, e := range events {
			if e.Hash == marker.Hash {
				hashSeen = true
				break
			}
		}
	}

	out := make([]RecentEvent, 0, len(events))
	reachedSeen := false
	for i := len(events) - 1; i >= 0; i-- {
		e := events[i]
		isNew := false
		switch {
		case !hasMarker:
		case hashSeen:
			if e.Hash == marker.Hash {
				reachedSeen = true
			}
			isNew = !reachedSeen
		default:
			isNew = e.Block > marker.Block
		}
		out = append(out, RecentEvent{WhaleEvent: e, IsNew: isNew})
	}
	return out, nil
}

// HasNewSince reports whether the chain's checkpoint moved past lastSeen.
func (r *Reader) HasNewSince(ctx context.Context, chain string, lastSeen uint64) (bool, error) {
	cp, ok, err := r.checkpoints.Peek(ctx, chain)
	if err != nil && !ok {
		return false, fmt.Errorf("checkpoint %s: %w", chain, err)
	}
	return ok && cp > lastSeen, nil
}

// HasNew is HasNewSince against the stored seen marker.
func (r *Reader) HasNew(ctx context.Context, chain string) (bool, error) {
	marker, _ := r.seen.Get(chain)
	return r.HasNewSince(ctx, chain, marker.Block)
}

// MarkSeen records the current checkpoint and newest event hash as seen.
func (r *Reader) MarkSeen(ctx context.Context, chain string) (storage.SeenMarker, error) {
	cp, _, err := r.checkpoints.Peek(ctx, chain)
	if err != nil {
		return storage.SeenMarker{}, fmt.Errorf("checkpoint %s: %w", chain, err)
	}
	marker := storage.SeenMarker{Block: cp}

	events, err := r.events.Load(ctx, chain, 1)
	if err != nil {
		return storage.SeenMarker{}, fmt.Errorf("load events %s: %w", chain, err)
	}
	if n := len(events); n > 0 {
		marker.Hash = events[n-1].Hash
	}
	if err := r.seen.Set(chain, marker); err != nil {
		return storage.SeenMarker{}, err
	}
	return marker, nil
}
