package position

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"margin-trader/internal/retry"
	"margin-trader/pkg/exchanges/common"
	"margin-trader/pkg/exchanges/gmo"
)

// Position is the aggregated exposure on the traded symbol.
type Position struct {
	Side          common.Side
	Quantity      decimal.Decimal
	UnrealizedPnL decimal.Decimal
}

// Flat is the position held when nothing is open.
var Flat = Position{Side: common.SideNone}

// IsFlat reports whether no quantity is held.
func (p Position) IsFlat() bool {
	return p.Side == common.SideNone || p.Quantity.IsZero()
}

// SummarySource returns aggregated position lines.
type SummarySource interface {
	PositionSummary(ctx context.Context, symbol string) ([]gmo.PositionSummary, error)
}

// Gateway reads the open position of one symbol.
type Gateway struct {
	source SummarySource
	exec   *retry.Executor
	symbol string
	logger zerolog.Logger
}

// NewGateway creates a position gateway. Query failures are retried and
// reported at debug level only.
func NewGateway(source SummarySource, exec *retry.Executor, symbol string, logger zerolog.Logger) *Gateway {
	return &Gateway{
		source: source,
		exec:   exec.Quiet(),
		symbol: symbol,
		logger: logger.With().Str("component", "position").Str("symbol", symbol).Logger(),
	}
}

// Position returns the current position, or Flat when no line matches.
func (g *Gateway) Position(ctx context.Context) (Position, error) {
	return retry.Do(ctx, g.exec, "get_position", func() (Position, error) {
		lines, err := g.source.PositionSummary(ctx, g.symbol)
		switch {
		case err == nil:
		case errors.Is(err, gmo.ErrMissingCredentials):
			return Flat, retry.Fatal(err)
		case ctx.Err() != nil:
			return Flat, err
		default:
			return Flat, retry.Transient(err)
		}

		pos := Flat
		for _, line := range lines {
			if line.Symbol != g.symbol {
				continue
			}
			p, err := parseLine(line)
			if err != nil {
				return Flat, retry.Transient(err)
			}
			pos = p
		}
		return pos, nil
	})
}

func parseLine(line gmo.PositionSummary) (Position, error) {
	side, err := common.ParseSide(line.Side)
	if err != nil {
		return Flat, err
	}
	qty, err := decimal.NewFromString(line.SumPositionQuantity.String())
	if err != nil {
		return Flat, fmt.Errorf("position quantity %q: %w", line.SumPositionQuantity, err)
	}
	pnl := decimal.Zero
	if line.PositionLossGain != "" {
		if pnl, err = decimal.NewFromString(line.PositionLossGain.String()); err != nil {
			return Flat, fmt.Errorf("position loss/gain %q: %w", line.PositionLossGain, err)
		}
	}
	if qty.IsZero() {
		return Position{Side: common.SideNone, UnrealizedPnL: pnl}, nil
	}
	return Position{Side: side, Quantity: qty, UnrealizedPnL: pnl}, nil
}
