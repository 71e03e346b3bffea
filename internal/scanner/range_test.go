package scanner

import (
	"reflect"
	"testing"

	"whaleScope/internal/chain"
)

func TestComputeRange(t *testing.T) {
	tests := []struct {
		name       string
		checkpoint uint64
		hasCP      bool
		head       uint64
		window     uint64
		want       chain.Range
		ok         bool
	}{
		{name: "first run", head: 1000, window: 5, want: chain.Range{From: 996, To: 1000}, ok: true},
		{name: "first run near genesis", head: 3, window: 5, want: chain.Range{From: 0, To: 3}, ok: true},
		{name: "caught up", checkpoint: 1000, hasCP: true, head: 1000, window: 5},
		{name: "checkpoint ahead of head", checkpoint: 1005, hasCP: true, head: 1000, window: 5},
		{name: "within window", checkpoint: 997, hasCP: true, head: 1000, window: 5, want: chain.Range{From: 998, To: 1000}, ok: true},
		{name: "clipped to window", checkpoint: 900, hasCP: true, head: 1000, window: 5, want: chain.Range{From: 901, To: 905}, ok: true},
		{name: "zero window scans one", checkpoint: 10, hasCP: true, head: 20, window: 0, want: chain.Range{From: 11, To: 11}, ok: true},
		{name: "checkpoint at zero", checkpoint: 0, hasCP: true, head: 2, window: 5, want: chain.Range{From: 1, To: 2}, ok: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ComputeRange(tt.checkpoint, tt.hasCP, tt.head, tt.window)
			if ok != tt.ok {
				t.Fatalf("ok mismatch: %v != %v", ok, tt.ok)
			}
			if ok && !reflect.DeepEqual(got, tt.want) {
				t.Fatalf("range mismatch: %+v != %+v", got, tt.want)
			}
		})
	}
}
