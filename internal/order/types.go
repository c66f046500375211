package order

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"margin-trader/internal/position"
	"margin-trader/internal/risk"
	"margin-trader/pkg/db"
	"margin-trader/pkg/exchanges/gmo"
)

// NoOrderID is returned in place of an order id when no order stands.
const NoOrderID int64 = -1

var (
	// ErrRejected wraps an exchange refusal of an order, amendment or cancel.
	ErrRejected = errors.New("rejected by exchange")
	// ErrNoPosition is returned when a close is requested while flat.
	ErrNoPosition = errors.New("no open position")
	// ErrBelowMinOrderSize means the balance cannot fund the smallest order.
	ErrBelowMinOrderSize = risk.ErrBelowMinOrderSize
)

// Exchange is the order surface of the private API.
type Exchange interface {
	PlaceOrder(ctx context.Context, req gmo.OrderRequest) (int64, error)
	CloseBulkOrder(ctx context.Context, req gmo.CloseBulkRequest) (int64, error)
	ChangeOrder(ctx context.Context, orderID int64, price string) error
	CancelOrder(ctx context.Context, orderID int64) error
}

// PositionReader returns the current position.
type PositionReader interface {
	Position(ctx context.Context) (position.Position, error)
}

// PriceReader returns the last traded price.
type PriceReader interface {
	Ticker(ctx context.Context) (decimal.Decimal, error)
}

// Journal stores lifecycle outcomes.
type Journal interface {
	Record(ctx context.Context, e db.Event) error
}

// Config holds the trading parameters of the manager.
type Config struct {
	Symbol            string
	Leverage          decimal.Decimal
	PricePrecision    int32
	ClosePollInterval time.Duration
}

// DefaultClosePollInterval is how often a market close is re-checked.
const DefaultClosePollInterval = 500 * time.Millisecond
