package gmo

import (
	"context"
	"net/http"
	"net/url"
	"time"
)

// SymbolRule holds the trading rules published for one instrument.
type SymbolRule struct {
	Symbol       string `json:"symbol"`
	MinOrderSize Number `json:"minOrderSize"`
	MaxOrderSize Number `json:"maxOrderSize"`
	SizeStep     Number `json:"sizeStep"`
	TickSize     Number `json:"tickSize"`
	TakerFee     Number `json:"takerFee"`
	MakerFee     Number `json:"makerFee"`
}

// Symbols returns the trading rules of every listed instrument.
func (c *Client) Symbols(ctx context.Context) ([]SymbolRule, error) {
	const path = "/v1/symbols"
	data, err := c.doPublic(ctx, path, nil)
	if err != nil {
		return nil, err
	}
	var rules []SymbolRule
	if err := decodeData(http.MethodGet, path, data, &rules); err != nil {
		return nil, err
	}
	return rules, nil
}

// Kline is one candle as published; fields are left unparsed.
type Kline struct {
	OpenTime Number `json:"openTime"` // unix ms
	Open     Number `json:"open"`
	High     Number `json:"high"`
	Low      Number `json:"low"`
	Close    Number `json:"close"`
	Volume   Number `json:"volume"`
}

// Klines returns one page of candles. For minute-level intervals date is
// YYYYMMDD and the page covers one exchange business day.
func (c *Client) Klines(ctx context.Context, symbol, interval, date string) ([]Kline, error) {
	const path = "/v1/klines"
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("interval", interval)
	params.Set("date", date)
	data, err := c.doPublic(ctx, path, params)
	if err != nil {
		return nil, err
	}
	var klines []Kline
	if err := decodeData(http.MethodGet, path, data, &klines); err != nil {
		return nil, err
	}
	return klines, nil
}

// Ticker holds the latest quote for a symbol.
type Ticker struct {
	Symbol    string    `json:"symbol"`
	Ask       Number    `json:"ask"`
	Bid       Number    `json:"bid"`
	High      Number    `json:"high"`
	Low       Number    `json:"low"`
	Last      Number    `json:"last"`
	Volume    Number    `json:"volume"`
	Timestamp time.Time `json:"timestamp"`
}

// Ticker returns the latest quotes for symbol.
func (c *Client) Ticker(ctx context.Context, symbol string) ([]Ticker, error) {
	const path = "/v1/ticker"
	params := url.Values{}
	params.Set("symbol", symbol)
	data, err := c.doPublic(ctx, path, params)
	if err != nil {
		return nil, err
	}
	var tickers []Ticker
	if err := decodeData(http.MethodGet, path, data, &tickers); err != nil {
		return nil, err
	}
	return tickers, nil
}
