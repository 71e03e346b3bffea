package storage

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"whaleScope/internal/model"
)

var baseTime = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func event(chain, hash string, minute int) model.WhaleEvent {
	return model.WhaleEvent{
		Hash:    hash,
		ChainID: chain,
		Block:   uint64(1000 + minute),
		From:    "from-" + hash,
		To:      "to-" + hash,
		Value:   decimal.NewFromInt(int64(100 + minute)),
		Unit:    model.UnitNative,
		Time:    baseTime.Add(time.Duration(minute) * time.Minute),
		Type:    model.TxNone,
	}
}

func hashes(events []model.WhaleEvent) []string {
	out := make([]string, 0, len(events))
	for _, e := range events {
		out = append(out, e.Hash)
	}
	return out
}

func TestReconcileCheckpoint(t *testing.T) {
	tests := []struct {
		name        string
		local       CheckpointValue
		remote      CheckpointValue
		want        CheckpointValue
		writeLocal  bool
		writeRemote bool
	}{
		{name: "both unset"},
		{name: "local only", local: CheckpointValue{100, true}, want: CheckpointValue{100, true}, writeRemote: true},
		{name: "remote only", remote: CheckpointValue{150, true}, want: CheckpointValue{150, true}, writeLocal: true},
		{name: "remote ahead", local: CheckpointValue{100, true}, remote: CheckpointValue{150, true}, want: CheckpointValue{150, true}, writeLocal: true},
		{name: "local ahead", local: CheckpointValue{150, true}, remote: CheckpointValue{100, true}, want: CheckpointValue{150, true}, writeRemote: true},
		{name: "equal", local: CheckpointValue{7, true}, remote: CheckpointValue{7, true}, want: CheckpointValue{7, true}},
		{name: "zero is a value", local: CheckpointValue{0, true}, want: CheckpointValue{0, true}, writeRemote: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, wl, wr := ReconcileCheckpoint(tt.local, tt.remote)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.writeLocal, wl)
			assert.Equal(t, tt.writeRemote, wr)
		})
	}
}

func TestReconcileEventsUnionRemoteWins(t *testing.T) {
	localA := event("eth", "a", 1)
	remoteA := localA
	remoteA.ToLabel = "Binance"

	merge := ReconcileEvents(
		[]model.WhaleEvent{event("eth", "c", 3), localA},
		[]model.WhaleEvent{remoteA, event("eth", "b", 2)},
	)

	assert.Equal(t, []string{"a", "b", "c"}, hashes(merge.Events))
	assert.Equal(t, "Binance", merge.Events[0].ToLabel)
	assert.True(t, merge.LocalStale)
	assert.Equal(t, []string{"c"}, hashes(merge.RemoteMissing))
}

func TestReconcileEventsInSync(t *testing.T) {
	events := []model.WhaleEvent{event("eth", "a", 1), event("eth", "b", 2)}
	merge := ReconcileEvents(events, events)

	assert.False(t, merge.LocalStale)
	assert.Empty(t, merge.RemoteMissing)
	assert.Len(t, merge.Events, 2)
}

func TestReconcileEventsKeepsChainsApart(t *testing.T) {
	merge := ReconcileEvents(
		[]model.WhaleEvent{event("eth", "x", 1)},
		[]model.WhaleEvent{event("bnb", "x", 1)},
	)
	assert.Len(t, merge.Events, 2)
}

func TestMergeNewIsIdempotent(t *testing.T) {
	batch := []model.WhaleEvent{event("eth", "a", 1), event("eth", "b", 2), event("eth", "a", 1)}

	once, added := MergeNew(nil, batch)
	assert.Equal(t, []string{"a", "b"}, hashes(added))

	twice, addedAgain := MergeNew(once, batch)
	assert.Empty(t, addedAgain)
	assert.Equal(t, once, twice)
}

func TestMergeNewKeepsExistingCopy(t *testing.T) {
	existing := event("eth", "a", 1)
	existing.FromLabel = "Kraken"
	incoming := event("eth", "a", 1)

	merged, added := MergeNew([]model.WhaleEvent{existing}, []model.WhaleEvent{incoming})
	assert.Empty(t, added)
	assert.Equal(t, "Kraken", merged[0].FromLabel)
}

func TestTrimRetentionKeepsMostRecent(t *testing.T) {
	const capN, extra = 5, 3
	var events []model.WhaleEvent
	for i := 0; i < capN+extra; i++ {
		events = append(events, event("eth", string(rune('a'+i)), i))
	}

	kept, evicted := TrimRetention(events, capN)
	assert.Equal(t, extra, evicted)
	assert.Equal(t, []string{"d", "e", "f", "g", "h"}, hashes(kept))

	all, none := TrimRetention(events, 0)
	assert.Zero(t, none)
	assert.Len(t, all, capN+extra)
}
