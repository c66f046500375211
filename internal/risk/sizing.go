// Package risk turns capital into legal order sizes.
package risk

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"margin-trader/internal/market"
)

// ErrBelowMinOrderSize means the account cannot afford the smallest legal order.
var ErrBelowMinOrderSize = errors.New("order size below exchange minimum")

// NotionalSize is balance / price * leverage before any rounding.
func NotionalSize(balance, price, leverage decimal.Decimal) (decimal.Decimal, error) {
	if !price.IsPositive() {
		return decimal.Zero, fmt.Errorf("price must be positive, got %s", price)
	}
	return balance.Div(price).Mul(leverage), nil
}

// LegalizeSize truncates the notional size down to a multiple of the size
// step. It never rounds up. A result under the minimum order size returns
// ErrBelowMinOrderSize together with the truncated size.
func LegalizeSize(balance, price, leverage decimal.Decimal, c market.Constraints) (decimal.Decimal, error) {
	raw, err := NotionalSize(balance, price, leverage)
	if err != nil {
		return decimal.Zero, err
	}
	if !c.SizeStep.IsPositive() {
		return decimal.Zero, fmt.Errorf("size step must be positive, got %s", c.SizeStep)
	}
	size := raw.Div(c.SizeStep).Floor().Mul(c.SizeStep)
	if size.LessThan(c.MinOrderSize) || !size.IsPositive() {
		return size, fmt.Errorf("%w: size %s (raw %s) < min %s", ErrBelowMinOrderSize, size, raw.StringFixed(8), c.MinOrderSize)
	}
	return size, nil
}
