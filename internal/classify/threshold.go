package classify

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
)

// Threshold yields the minimum transfer value, in human units, for a cycle.
type Threshold interface {
	Minimum(ctx context.Context) (decimal.Decimal, error)
}

// FixedThreshold is a minimum expressed directly in token or coin units.
type FixedThreshold struct {
	Min decimal.Decimal
}

func (f FixedThreshold) Minimum(context.Context) (decimal.Decimal, error) {
	return f.Min, nil
}

// PriceSource returns a USD spot price for an asset id.
type PriceSource interface {
	USD(ctx context.Context, assetID string) (decimal.Decimal, error)
}

// USDThreshold converts a USD target into units with a spot price snapshot.
type USDThreshold struct {
	MinUSD  decimal.Decimal
	AssetID string
	Prices  PriceSource
}

func (u USDThreshold) Minimum(ctx context.Context) (decimal.Decimal, error) {
	price, err := u.Prices.USD(ctx, u.AssetID)
	if err != nil {
		return decimal.Zero, fmt.Errorf("price %s: %w", u.AssetID, err)
	}
	if !price.IsPositive() {
		return decimal.Zero, fmt.Errorf("price %s: non-positive spot price %s", u.AssetID, price)
	}
	return u.MinUSD.Div(price), nil
}

// MeetsThreshold is inclusive: a value equal to the minimum passes.
func MeetsThreshold(value, minimum decimal.Decimal) bool {
	return value.GreaterThanOrEqual(minimum)
}
