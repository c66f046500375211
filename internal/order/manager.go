package order

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"margin-trader/internal/market"
	"margin-trader/internal/monitor"
	"margin-trader/internal/position"
	"margin-trader/internal/retry"
	"margin-trader/internal/risk"
	"margin-trader/internal/state"
	"margin-trader/pkg/db"
	"margin-trader/pkg/exchanges/common"
	"margin-trader/pkg/exchanges/gmo"
)

// Deps are the collaborators of a Manager. Journal and Metrics may be nil.
type Deps struct {
	Exchange    Exchange
	Positions   PositionReader
	Prices      PriceReader
	Session     *state.Session
	Constraints market.Constraints
	Exec        *retry.Executor
	Journal     Journal
	Metrics     *monitor.Metrics
	Logger      zerolog.Logger
}

// Manager drives the lifecycle of the single leveraged position. It keeps
// no order state of its own; every decision starts from a fresh position read.
// A Manager is not safe for concurrent use.
type Manager struct {
	cfg         Config
	exchange    Exchange
	positions   PositionReader
	prices      PriceReader
	session     *state.Session
	constraints market.Constraints
	exec        *retry.Executor
	journal     Journal
	metrics     *monitor.Metrics
	logger      zerolog.Logger

	sleep func(ctx context.Context, d time.Duration) error
	newID func() string
}

// NewManager creates a lifecycle manager.
func NewManager(cfg Config, deps Deps) *Manager {
	if cfg.ClosePollInterval <= 0 {
		cfg.ClosePollInterval = DefaultClosePollInterval
	}
	return &Manager{
		cfg:         cfg,
		exchange:    deps.Exchange,
		positions:   deps.Positions,
		prices:      deps.Prices,
		session:     deps.Session,
		constraints: deps.Constraints,
		exec:        deps.Exec,
		journal:     deps.Journal,
		metrics:     deps.Metrics,
		logger:      deps.Logger.With().Str("component", "order").Str("symbol", cfg.Symbol).Logger(),
		sleep:       sleepCtx,
		newID:       uuid.NewString,
	}
}

// Session returns the session the manager mutates.
func (m *Manager) Session() *state.Session { return m.session }

// OpenStopOrder places a STOP entry order sized from the current balance.
// An unaffordable size is fatal and sends nothing. An exchange refusal
// returns NoOrderID with an error wrapping ErrRejected.
func (m *Manager) OpenStopOrder(ctx context.Context, price decimal.Decimal, side common.Side) (int64, error) {
	op := m.begin("open_stop")
	defer op.done()

	if !side.Tradable() {
		return NoOrderID, fmt.Errorf("open stop: side must be BUY or SELL, got %q", side)
	}

	size, err := risk.LegalizeSize(m.session.CurrentBalance, price, m.cfg.Leverage, m.constraints)
	if err != nil {
		if errors.Is(err, ErrBelowMinOrderSize) {
			op.logger.Error().
				Str("balance", m.session.CurrentBalance.String()).
				Str("price", price.String()).
				Str("size", size.String()).
				Str("min_order_size", m.constraints.MinOrderSize.String()).
				Msg("balance too small for minimum order")
			m.record(ctx, op, db.Event{Side: string(side), Price: price.String(), Size: size.String(), OrderID: NoOrderID, Outcome: db.OutcomeFailed, Detail: err.Error()})
			return NoOrderID, retry.Fatal(err)
		}
		return NoOrderID, err
	}

	req := gmo.OrderRequest{
		Symbol:        m.cfg.Symbol,
		Side:          side,
		ExecutionType: common.ExecutionStop,
		Price:         m.formatPrice(price),
		Size:          size.String(),
	}
	ev := db.Event{Side: string(side), Price: req.Price, Size: req.Size, OrderID: NoOrderID}

	id, err := retry.Do(ctx, m.exec, op.name, func() (int64, error) {
		id, err := m.exchange.PlaceOrder(ctx, req)
		return id, rejectOnAPIError(err)
	})
	if err != nil {
		return NoOrderID, m.failed(ctx, op, ev, err)
	}

	op.logger.Info().
		Int64("order_id", id).
		Str("side", string(side)).
		Str("price", req.Price).
		Str("size", req.Size).
		Msg("stop entry order placed")
	ev.OrderID, ev.Outcome = id, db.OutcomeAccepted
	m.record(ctx, op, ev)
	return id, nil
}

// CloseStopOrder places a protective STOP order closing the whole position.
// If the stop cannot be placed for any reason other than cancellation or a
// fatal condition, the position is closed at market right away and
// NoOrderID is returned with an error wrapping ErrRejected.
func (m *Manager) CloseStopOrder(ctx context.Context, price decimal.Decimal) (int64, error) {
	op := m.begin("close_stop")
	defer op.done()

	priceText := m.formatPrice(price)
	var req gmo.CloseBulkRequest
	flat := false

	id, err := retry.Do(ctx, m.exec, op.name, func() (int64, error) {
		pos, err := m.positions.Position(ctx)
		if err != nil {
			return NoOrderID, err
		}
		if pos.IsFlat() {
			flat = true
			return NoOrderID, nil
		}
		flat = false
		req = closeRequest(m.cfg.Symbol, pos, common.ExecutionStop, priceText)
		id, err := m.exchange.CloseBulkOrder(ctx, req)
		return id, rejectOnAPIError(err)
	})

	ev := db.Event{Side: string(req.Side), Price: priceText, Size: req.Size, OrderID: NoOrderID}
	switch {
	case err == nil && flat:
		op.logger.Info().Str("price", priceText).Msg("close stop requested with no open position")
		ev.Outcome, ev.Detail = db.OutcomeSkipped, ErrNoPosition.Error()
		m.record(ctx, op, ev)
		return NoOrderID, ErrNoPosition

	case err != nil && ctx.Err() == nil && !retry.IsFatal(err):
		if !errors.Is(err, ErrRejected) {
			err = fmt.Errorf("%w: %w", ErrRejected, err)
		}
		m.failed(ctx, op, ev, err)
		op.logger.Warn().Msg("protective stop not placed, closing position at market")
		if _, cerr := m.CloseMarketOrder(ctx); cerr != nil {
			return NoOrderID, errors.Join(err, cerr)
		}
		return NoOrderID, err

	case err != nil:
		return NoOrderID, m.failed(ctx, op, ev, err)
	}

	m.session.ProtectiveStopActive = true
	op.logger.Info().
		Int64("order_id", id).
		Str("side", string(req.Side)).
		Str("price", req.Price).
		Str("size", req.Size).
		Msg("protective stop placed")
	ev.OrderID, ev.Outcome = id, db.OutcomeAccepted
	m.record(ctx, op, ev)
	return id, nil
}

// CloseMarketOrder closes the whole position at market and blocks until the
// exchange reports it flat. It returns false without sending anything when
// there is no position. Every failed close request is retried until the
// context ends. Once flat it reports true even if the balance refresh fails.
func (m *Manager) CloseMarketOrder(ctx context.Context) (bool, error) {
	op := m.begin("close_market")
	defer op.done()

	var req gmo.CloseBulkRequest
	attempts := 0
	spurious := false

	id, err := retry.Do(ctx, m.exec, op.name, func() (int64, error) {
		attempts++
		pos, err := m.positions.Position(ctx)
		if err != nil {
			return NoOrderID, err
		}
		if pos.IsFlat() {
			spurious = attempts == 1
			return NoOrderID, nil
		}
		req = closeRequest(m.cfg.Symbol, pos, common.ExecutionMarket, "")
		id, err := m.exchange.CloseBulkOrder(ctx, req)
		if err != nil && ctx.Err() == nil {
			return id, retry.Transient(err)
		}
		return id, err
	})
	if err != nil {
		return false, m.failed(ctx, op, db.Event{Side: string(req.Side), Size: req.Size, OrderID: NoOrderID}, err)
	}
	if spurious {
		op.logger.Info().Msg("close market called with no open position")
		m.record(ctx, op, db.Event{OrderID: NoOrderID, Outcome: db.OutcomeSkipped, Detail: ErrNoPosition.Error()})
		return false, nil
	}

	if id != NoOrderID {
		op.logger.Info().
			Int64("order_id", id).
			Str("side", string(req.Side)).
			Str("size", req.Size).
			Msg("market close accepted, waiting for fill")
		if err := m.awaitFlat(ctx, op); err != nil {
			return false, err
		}
	}

	m.session.ProtectiveStopActive = false
	balance, berr := m.session.RefreshBalance(ctx)
	if berr != nil {
		op.logger.Warn().Err(berr).Msg("balance refresh after close failed")
	}
	ev := db.Event{
		Side:    string(req.Side),
		Size:    req.Size,
		OrderID: id,
		Outcome: db.OutcomeAccepted,
		Balance: balance.String(),
	}
	last, terr := m.prices.Ticker(ctx)
	if terr != nil {
		op.logger.Warn().Err(terr).Msg("last price unavailable after close")
	} else {
		ev.Price = last.String()
	}

	op.logger.Info().
		Str("last_price", ev.Price).
		Str("balance", balance.String()).
		Str("session_pnl", m.session.PnL().String()).
		Msg("position closed")
	m.record(ctx, op, ev)
	return true, berr
}

// awaitFlat polls the position until its quantity reads zero.
func (m *Manager) awaitFlat(ctx context.Context, op *operation) error {
	for polls := 1; ; polls++ {
		pos, err := m.positions.Position(ctx)
		if err != nil {
			return err
		}
		if pos.Quantity.IsZero() {
			op.logger.Debug().Int("polls", polls).Msg("position flat")
			return nil
		}
		if err := m.sleep(ctx, m.cfg.ClosePollInterval); err != nil {
			return err
		}
	}
}

// AmendStopOrder moves the trigger price of a pending stop. A refusal is an
// expected outcome: it is logged and the same id is returned without error.
func (m *Manager) AmendStopOrder(ctx context.Context, orderID int64, price decimal.Decimal) (int64, error) {
	op := m.begin("amend_stop")
	defer op.done()

	priceText := m.formatPrice(price)
	ev := db.Event{Price: priceText, OrderID: orderID}

	err := retry.Run(ctx, m.exec, op.name, func() error {
		return rejectOnAPIError(m.exchange.ChangeOrder(ctx, orderID, priceText))
	})
	switch {
	case errors.Is(err, ErrRejected):
		m.failed(ctx, op, ev, err)
		return orderID, nil
	case err != nil:
		return orderID, m.failed(ctx, op, ev, err)
	}

	op.logger.Info().Int64("order_id", orderID).Str("price", priceText).Msg("stop order amended")
	ev.Outcome = db.OutcomeAccepted
	m.record(ctx, op, ev)
	return orderID, nil
}

// CancelOrder cancels a pending order. It always returns NoOrderID; a
// refusal is logged and not reported as an error.
func (m *Manager) CancelOrder(ctx context.Context, orderID int64) (int64, error) {
	op := m.begin("cancel")
	defer op.done()

	ev := db.Event{OrderID: orderID}
	err := retry.Run(ctx, m.exec, op.name, func() error {
		return rejectOnAPIError(m.exchange.CancelOrder(ctx, orderID))
	})
	switch {
	case errors.Is(err, ErrRejected):
		m.failed(ctx, op, ev, err)
		return NoOrderID, nil
	case err != nil:
		return NoOrderID, m.failed(ctx, op, ev, err)
	}

	m.session.ProtectiveStopActive = false
	op.logger.Info().Int64("order_id", orderID).Msg("order cancelled")
	ev.Outcome = db.OutcomeAccepted
	m.record(ctx, op, ev)
	return NoOrderID, nil
}

// operation carries the correlation id and timing of one manager call.
type operation struct {
	name    string
	id      string
	started time.Time
	logger  zerolog.Logger
	metrics *monitor.Metrics
}

func (m *Manager) begin(name string) *operation {
	id := m.newID()
	return &operation{
		name:    name,
		id:      id,
		started: time.Now(),
		logger:  m.logger.With().Str("op", name).Str("op_id", id).Logger(),
		metrics: m.metrics,
	}
}

func (o *operation) done() {
	o.metrics.ObserveOrder(time.Since(o.started))
}

// failed logs and journals err, then returns it.
func (m *Manager) failed(ctx context.Context, op *operation, ev db.Event, err error) error {
	ev.Detail = err.Error()
	switch {
	case errors.Is(err, ErrRejected):
		m.metrics.IncrementRejections()
		ev.Outcome = db.OutcomeRejected
		op.logger.Warn().Err(err).Int64("order_id", ev.OrderID).Msg("refused by exchange")
	default:
		ev.Outcome = db.OutcomeFailed
		op.logger.Error().Err(err).Bool("fatal", retry.IsFatal(err)).Msg("operation failed")
	}
	m.record(ctx, op, ev)
	return err
}

func (m *Manager) record(ctx context.Context, op *operation, ev db.Event) {
	if m.journal == nil {
		return
	}
	ev.OpID = op.id
	ev.Op = op.name
	ev.Symbol = m.cfg.Symbol
	if err := m.journal.Record(context.WithoutCancel(ctx), ev); err != nil {
		op.logger.Warn().Err(err).Msg("journal write failed")
	}
}

func (m *Manager) formatPrice(p decimal.Decimal) string {
	return p.Truncate(m.cfg.PricePrecision).StringFixed(m.cfg.PricePrecision)
}

func closeRequest(symbol string, pos position.Position, exec common.ExecutionType, price string) gmo.CloseBulkRequest {
	return gmo.CloseBulkRequest{
		Symbol:        symbol,
		Side:          pos.Side.Opposite(),
		ExecutionType: exec,
		Price:         price,
		Size:          pos.Quantity.String(),
	}
}

// rejectOnAPIError turns an exchange status error into a non-retried rejection.
func rejectOnAPIError(err error) error {
	var apiErr *gmo.APIError
	if errors.As(err, &apiErr) {
		return retry.Permanent(fmt.Errorf("%w: %w", ErrRejected, err))
	}
	return err
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
