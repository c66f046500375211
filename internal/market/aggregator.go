package market

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"margin-trader/internal/retry"
	"margin-trader/pkg/exchanges/gmo"
)

// ErrHistoryExhausted is returned when paging back MaxPages days did not
// yield enough candles to fill the window.
var ErrHistoryExhausted = errors.New("not enough kline history")

// DefaultLookbackOffset keeps the window clear of candles the exchange may
// still be revising.
const DefaultLookbackOffset = 6 * time.Hour

// ExchangeLocation is the exchange's business-day time zone (JST).
var ExchangeLocation = time.FixedZone("JST", 9*60*60)

// KlineSource serves daily candle pages and the latest quote.
type KlineSource interface {
	Klines(ctx context.Context, symbol, interval, date string) ([]gmo.Kline, error)
	Ticker(ctx context.Context, symbol string) ([]gmo.Ticker, error)
}

// AggregatorConfig controls window construction.
type AggregatorConfig struct {
	Symbol         string
	Interval       string
	Length         int
	LookbackOffset time.Duration
	MaxPages       int
	Location       *time.Location
}

// Aggregator builds rolling candle windows from daily kline pages.
type Aggregator struct {
	cfg    AggregatorConfig
	src    KlineSource
	exec   *retry.Executor
	logger zerolog.Logger
	now    func() time.Time
}

// NewAggregator creates an aggregator. Zero config fields take defaults.
func NewAggregator(cfg AggregatorConfig, src KlineSource, exec *retry.Executor, logger zerolog.Logger) *Aggregator {
	if cfg.Interval == "" {
		cfg.Interval = "1min"
	}
	if cfg.LookbackOffset == 0 {
		cfg.LookbackOffset = DefaultLookbackOffset
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = 30
	}
	if cfg.Location == nil {
		cfg.Location = ExchangeLocation
	}
	return &Aggregator{
		cfg:    cfg,
		src:    src,
		exec:   exec,
		logger: logger.With().Str("component", "market").Str("symbol", cfg.Symbol).Logger(),
		now:    time.Now,
	}
}

// Window returns the Length most recent candles opened at or before
// now minus the lookback offset, oldest first.
func (a *Aggregator) Window(ctx context.Context) (Window, error) {
	if a.cfg.Length <= 0 {
		return nil, fmt.Errorf("window length must be positive, got %d", a.cfg.Length)
	}

	asOf := a.now().Add(-a.cfg.LookbackOffset)
	day := asOf.In(a.cfg.Location)

	byOpen := make(map[int64]Candle, a.cfg.Length)
	pages := 0
	for len(byOpen) < a.cfg.Length {
		if pages >= a.cfg.MaxPages {
			return nil, retry.Fatal(fmt.Errorf("%w: %d of %d candles after %d pages", ErrHistoryExhausted, len(byOpen), a.cfg.Length, pages))
		}
		date := day.AddDate(0, 0, -pages).Format("20060102")
		pages++

		klines, err := retry.Do(ctx, a.exec, "klines", func() ([]gmo.Kline, error) {
			return a.src.Klines(ctx, a.cfg.Symbol, a.cfg.Interval, date)
		})
		if err != nil {
			return nil, err
		}

		added := 0
		for _, k := range klines {
			c, ok := ParseCandle(k)
			if !ok || c.OpenTime.After(asOf) {
				continue
			}
			key := c.OpenTime.UnixMilli()
			if _, dup := byOpen[key]; !dup {
				added++
			}
			byOpen[key] = c
		}
		a.logger.Debug().
			Str("date", date).
			Int("page_size", len(klines)).
			Int("added", added).
			Int("total", len(byOpen)).
			Msg("kline page merged")
	}

	w := make(Window, 0, len(byOpen))
	for _, c := range byOpen {
		w = append(w, c)
	}
	sort.Slice(w, func(i, j int) bool { return w[i].OpenTime.Before(w[j].OpenTime) })
	return w[len(w)-a.cfg.Length:], nil
}

// Ticker returns the last traded price.
func (a *Aggregator) Ticker(ctx context.Context) (decimal.Decimal, error) {
	return retry.Do(ctx, a.exec, "ticker", func() (decimal.Decimal, error) {
		tickers, err := a.src.Ticker(ctx, a.cfg.Symbol)
		if err != nil {
			return decimal.Zero, err
		}
		if len(tickers) == 0 {
			return decimal.Zero, retry.Transient(fmt.Errorf("ticker %s: empty response", a.cfg.Symbol))
		}
		last, err := decimal.NewFromString(tickers[len(tickers)-1].Last.String())
		if err != nil {
			return decimal.Zero, retry.Transient(fmt.Errorf("ticker %s: parse last %q: %w", a.cfg.Symbol, tickers[len(tickers)-1].Last, err))
		}
		return last, nil
	})
}
