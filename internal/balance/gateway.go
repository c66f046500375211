package balance

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"margin-trader/internal/retry"
	"margin-trader/pkg/exchanges/gmo"
)

// AssetSource lists the account holdings.
type AssetSource interface {
	Assets(ctx context.Context) ([]gmo.Asset, error)
}

// Gateway reads the fiat balance backing margin.
type Gateway struct {
	source   AssetSource
	exec     *retry.Executor
	currency string
	logger   zerolog.Logger
}

// NewGateway creates a balance gateway for the given fiat currency.
func NewGateway(source AssetSource, exec *retry.Executor, currency string, logger zerolog.Logger) *Gateway {
	return &Gateway{
		source:   source,
		exec:     exec,
		currency: currency,
		logger:   logger.With().Str("component", "balance").Logger(),
	}
}

// Balance returns the fiat amount, zero when the account holds none.
// Every failure is retried; only a missing key pair or ctx ends the wait.
func (g *Gateway) Balance(ctx context.Context) (decimal.Decimal, error) {
	amount, err := retry.Do(ctx, g.exec, "get_balance", func() (decimal.Decimal, error) {
		assets, err := g.source.Assets(ctx)
		switch {
		case err == nil:
		case errors.Is(err, gmo.ErrMissingCredentials):
			return decimal.Zero, retry.Fatal(err)
		case ctx.Err() != nil:
			return decimal.Zero, err
		default:
			return decimal.Zero, retry.Transient(err)
		}
		return g.fiatAmount(assets)
	})
	if err != nil {
		return decimal.Zero, err
	}
	g.logger.Debug().Str("currency", g.currency).Str("amount", amount.String()).Msg("balance read")
	return amount, nil
}

func (g *Gateway) fiatAmount(assets []gmo.Asset) (decimal.Decimal, error) {
	amount := decimal.Zero
	for _, a := range assets {
		if a.Symbol != g.currency {
			continue
		}
		v, err := decimal.NewFromString(a.Amount.String())
		if err != nil {
			return decimal.Zero, retry.Transient(fmt.Errorf("%s amount %q: %w", g.currency, a.Amount, err))
		}
		amount = v
	}
	return amount, nil
}
