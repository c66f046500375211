package market

import (
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"margin-trader/pkg/exchanges/gmo"
)

// Candle is one aggregated interval of trades. Numeric fields the exchange
// sent in an unparseable form are left invalid rather than failing the page.
type Candle struct {
	OpenTime time.Time
	Open     decimal.NullDecimal
	High     decimal.NullDecimal
	Low      decimal.NullDecimal
	Close    decimal.NullDecimal
	Volume   decimal.NullDecimal
}

// Window is a fixed-length run of candles in ascending open time.
type Window []Candle

// Last returns the most recent candle of the window.
func (w Window) Last() (Candle, bool) {
	if len(w) == 0 {
		return Candle{}, false
	}
	return w[len(w)-1], true
}

// Closes returns the close prices of the window, skipping missing values.
func (w Window) Closes() []decimal.Decimal {
	out := make([]decimal.Decimal, 0, len(w))
	for _, c := range w {
		if c.Close.Valid {
			out = append(out, c.Close.Decimal)
		}
	}
	return out
}

// ParseCandle converts a raw kline. ok is false when the open time is
// absent or unparseable, since such a candle cannot be placed in a window.
func ParseCandle(k gmo.Kline) (c Candle, ok bool) {
	ms, err := strconv.ParseInt(k.OpenTime.String(), 10, 64)
	if err != nil {
		return Candle{}, false
	}
	return Candle{
		OpenTime: time.UnixMilli(ms).UTC(),
		Open:     lenient(k.Open),
		High:     lenient(k.High),
		Low:      lenient(k.Low),
		Close:    lenient(k.Close),
		Volume:   lenient(k.Volume),
	}, true
}

func lenient(n gmo.Number) decimal.NullDecimal {
	d, err := decimal.NewFromString(n.String())
	if err != nil {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(d)
}
