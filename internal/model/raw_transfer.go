package model

import (
	"math/big"
	"time"

	"github.com/shopspring/decimal"
)

// RawTransfer is a chain transfer normalized by a fetcher, before classification.
// Value is in the chain's smallest unit; Decimals converts it to human units.
type RawTransfer struct {
	Hash      string
	Block     uint64
	From      string
	To        string
	Value     *big.Int
	Decimals  uint8
	Timestamp time.Time
}

// Amount returns Value scaled down by Decimals.
func (t RawTransfer) Amount() decimal.Decimal {
	if t.Value == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(t.Value, -int32(t.Decimals))
}
