package market

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"margin-trader/internal/retry"
	"margin-trader/pkg/exchanges/gmo"
)

// ErrSymbolNotFound is returned when the instrument list lacks the traded symbol.
var ErrSymbolNotFound = errors.New("symbol not listed")

// Constraints are the size rules the exchange imposes on every order.
type Constraints struct {
	MinOrderSize decimal.Decimal
	SizeStep     decimal.Decimal
}

// SymbolSource lists the exchange's instruments.
type SymbolSource interface {
	Symbols(ctx context.Context) ([]gmo.SymbolRule, error)
}

// LoadConstraints fetches the size rules of symbol. Transport faults are
// retried; an exchange error status, a missing symbol or unusable rules are fatal.
func LoadConstraints(ctx context.Context, src SymbolSource, exec *retry.Executor, symbol string) (Constraints, error) {
	return retry.Do(ctx, exec, "load_constraints", func() (Constraints, error) {
		rules, err := src.Symbols(ctx)
		if err != nil {
			var apiErr *gmo.APIError
			if errors.As(err, &apiErr) {
				return Constraints{}, retry.Fatal(err)
			}
			return Constraints{}, err
		}
		for _, r := range rules {
			if r.Symbol != symbol {
				continue
			}
			return parseConstraints(r)
		}
		return Constraints{}, retry.Fatal(fmt.Errorf("%w: %s", ErrSymbolNotFound, symbol))
	})
}

func parseConstraints(r gmo.SymbolRule) (Constraints, error) {
	minSize, err := decimal.NewFromString(r.MinOrderSize.String())
	if err != nil {
		return Constraints{}, retry.Fatal(fmt.Errorf("%s minOrderSize %q: %w", r.Symbol, r.MinOrderSize, err))
	}
	step, err := decimal.NewFromString(r.SizeStep.String())
	if err != nil {
		return Constraints{}, retry.Fatal(fmt.Errorf("%s sizeStep %q: %w", r.Symbol, r.SizeStep, err))
	}
	if !step.IsPositive() || minSize.IsNegative() {
		return Constraints{}, retry.Fatal(fmt.Errorf("%s: invalid size rules min=%s step=%s", r.Symbol, minSize, step))
	}
	return Constraints{MinOrderSize: minSize, SizeStep: step}, nil
}
