package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// WhaleEvent is a classified large-value transfer persisted for a chain.
type WhaleEvent struct {
	Hash      string          `json:"hash"`
	ChainID   string          `json:"chain_id"`
	Block     uint64          `json:"block"`
	From      string          `json:"from"`
	To        string          `json:"to"`
	Value     decimal.Decimal `json:"value"`
	Unit      Unit            `json:"unit"`
	Symbol    string          `json:"symbol,omitempty"`
	Time      time.Time       `json:"time"`
	Type      TxType          `json:"type"`
	FromLabel string          `json:"from_label,omitempty"`
	ToLabel   string          `json:"to_label,omitempty"`
}

// EventKey identifies an event across chains.
type EventKey struct {
	ChainID string
	Hash    string
}

func (e WhaleEvent) Key() EventKey {
	return EventKey{ChainID: e.ChainID, Hash: e.Hash}
}

// Before orders events by time, then block, then hash.
func (e WhaleEvent) Before(other WhaleEvent) bool {
	if !e.Time.Equal(other.Time) {
		return e.Time.Before(other.Time)
	}
	if e.Block != other.Block {
		return e.Block < other.Block
	}
	return e.Hash < other.Hash
}
