package market

import (
	"context"
	"errors"
	"strconv"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"margin-trader/internal/retry"
	"margin-trader/pkg/exchanges/gmo"
)

type fakeKlines struct {
	pages    map[string][]gmo.Kline
	requests []string
	fail     map[string]int
	tickers  []gmo.Ticker
}

func (f *fakeKlines) Klines(_ context.Context, symbol, interval, date string) ([]gmo.Kline, error) {
	f.requests = append(f.requests, date)
	if f.fail[date] > 0 {
		f.fail[date]--
		return nil, &gmo.RequestError{Method: "GET", Path: "/v1/klines", StatusCode: 503}
	}
	return f.pages[date], nil
}

func (f *fakeKlines) Ticker(context.Context, string) ([]gmo.Ticker, error) {
	return f.tickers, nil
}

// dayOfMinutes builds one JST calendar day of minute klines.
func dayOfMinutes(date string) []gmo.Kline {
	start, err := time.ParseInLocation("20060102", date, ExchangeLocation)
	if err != nil {
		panic(err)
	}
	out := make([]gmo.Kline, 0, 1440)
	for i := 0; i < 1440; i++ {
		ts := start.Add(time.Duration(i) * time.Minute)
		out = append(out, gmo.Kline{
			OpenTime: gmo.Number(strconv.FormatInt(ts.UnixMilli(), 10)),
			Open:     "5000000",
			High:     "5001000",
			Low:      "4999000",
			Close:    gmo.Number(strconv.Itoa(5000000 + i)),
			Volume:   "0.1",
		})
	}
	return out
}

func newTestAggregator(src KlineSource, length, maxPages int, now time.Time) *Aggregator {
	exec := retry.NewExecutor(time.Millisecond, zerolog.Nop(), nil)
	a := NewAggregator(AggregatorConfig{
		Symbol:   "BTC_JPY",
		Length:   length,
		MaxPages: maxPages,
	}, src, exec, zerolog.Nop())
	a.now = func() time.Time { return now }
	return a
}

func assertWindowShape(t *testing.T, w Window, length int, asOf time.Time) {
	t.Helper()
	require.Len(t, w, length)
	for i := 1; i < len(w); i++ {
		require.True(t, w[i-1].OpenTime.Before(w[i].OpenTime), "index %d not strictly increasing", i)
	}
	last, ok := w.Last()
	require.True(t, ok)
	assert.False(t, last.OpenTime.After(asOf))
}

func TestWindowSinglePage(t *testing.T) {
	now := time.Date(2024, 1, 2, 12, 0, 30, 0, ExchangeLocation)
	src := &fakeKlines{pages: map[string][]gmo.Kline{"20240102": dayOfMinutes("20240102")}}
	a := newTestAggregator(src, 61, 30, now)

	w, err := a.Window(context.Background())
	require.NoError(t, err)

	asOf := now.Add(-6 * time.Hour)
	assertWindowShape(t, w, 61, asOf)
	last, _ := w.Last()
	assert.True(t, last.OpenTime.Equal(time.Date(2024, 1, 2, 6, 0, 0, 0, ExchangeLocation)))
	assert.Equal(t, []string{"20240102"}, src.requests)
}

func TestWindowPagesBackAcrossGaps(t *testing.T) {
	now := time.Date(2024, 1, 2, 7, 0, 0, 0, ExchangeLocation)
	src := &fakeKlines{pages: map[string][]gmo.Kline{
		"20240102": dayOfMinutes("20240102"),
		"20240101": nil,
		"20231231": dayOfMinutes("20231231"),
	}}
	a := newTestAggregator(src, 200, 30, now)

	w, err := a.Window(context.Background())
	require.NoError(t, err)

	assertWindowShape(t, w, 200, now.Add(-6*time.Hour))
	assert.Equal(t, []string{"20240102", "20240101", "20231231"}, src.requests)
	assert.True(t, w[0].OpenTime.Before(time.Date(2024, 1, 1, 0, 0, 0, 0, ExchangeLocation)))
}

func TestWindowDeduplicatesOverlappingPages(t *testing.T) {
	now := time.Date(2024, 1, 2, 6, 30, 0, 0, ExchangeLocation)
	today := dayOfMinutes("20240102")
	src := &fakeKlines{pages: map[string][]gmo.Kline{
		"20240102": today[:10],
		"20240101": append(dayOfMinutes("20240101"), today[:10]...),
	}}
	a := newTestAggregator(src, 100, 30, now)

	w, err := a.Window(context.Background())
	require.NoError(t, err)
	assertWindowShape(t, w, 100, now.Add(-6*time.Hour))
}

func TestWindowRetriesFailedPage(t *testing.T) {
	now := time.Date(2024, 1, 2, 12, 0, 0, 0, ExchangeLocation)
	src := &fakeKlines{
		pages: map[string][]gmo.Kline{"20240102": dayOfMinutes("20240102")},
		fail:  map[string]int{"20240102": 2},
	}
	a := newTestAggregator(src, 61, 30, now)

	w, err := a.Window(context.Background())
	require.NoError(t, err)
	assert.Len(t, w, 61)
	assert.Equal(t, []string{"20240102", "20240102", "20240102"}, src.requests)
}

func TestWindowHistoryExhaustedIsFatal(t *testing.T) {
	now := time.Date(2024, 1, 2, 12, 0, 0, 0, ExchangeLocation)
	src := &fakeKlines{pages: map[string][]gmo.Kline{}}
	a := newTestAggregator(src, 61, 3, now)

	_, err := a.Window(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrHistoryExhausted))
	assert.True(t, retry.IsFatal(err))
	assert.Len(t, src.requests, 3)
}

func TestWindowLenientParsing(t *testing.T) {
	now := time.Date(2024, 1, 2, 12, 0, 0, 0, ExchangeLocation)
	page := dayOfMinutes("20240102")[:5]
	page[1].Close = "n/a"
	page[2].OpenTime = "garbage"
	src := &fakeKlines{pages: map[string][]gmo.Kline{"20240102": page, "20240101": dayOfMinutes("20240101")}}
	a := newTestAggregator(src, 10, 30, now)

	w, err := a.Window(context.Background())
	require.NoError(t, err)
	require.Len(t, w, 10)

	tail := w[len(w)-4:]
	assert.True(t, tail[0].Close.Valid)
	assert.False(t, tail[1].Close.Valid)
	assert.True(t, tail[1].Open.Valid)
	assert.Len(t, w.Closes(), 9)
}

func TestTickerReturnsLastQuote(t *testing.T) {
	src := &fakeKlines{tickers: []gmo.Ticker{{Symbol: "BTC_JPY", Last: "5012345"}}}
	a := newTestAggregator(src, 61, 30, time.Now())

	last, err := a.Ticker(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "5012345", last.String())
}
