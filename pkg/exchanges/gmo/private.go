package gmo

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"margin-trader/pkg/exchanges/common"
)

// Asset is one holding of the account.
type Asset struct {
	Symbol         string `json:"symbol"`
	Amount         Number `json:"amount"`
	Available      Number `json:"available"`
	ConversionRate Number `json:"conversionRate"`
}

// Assets returns the account holdings.
func (c *Client) Assets(ctx context.Context) ([]Asset, error) {
	const path = "/v1/account/assets"
	data, err := c.doPrivate(ctx, http.MethodGet, path, nil, nil)
	if err != nil {
		return nil, err
	}
	var assets []Asset
	if err := decodeData(http.MethodGet, path, data, &assets); err != nil {
		return nil, err
	}
	return assets, nil
}

// PositionSummary aggregates the open margin positions of one symbol and side.
type PositionSummary struct {
	Symbol              string `json:"symbol"`
	Side                string `json:"side"`
	AveragePositionRate Number `json:"averagePositionRate"`
	PositionLossGain    Number `json:"positionLossGain"`
	SumOrderQuantity    Number `json:"sumOrderQuantity"`
	SumPositionQuantity Number `json:"sumPositionQuantity"`
}

// PositionSummary returns aggregated open positions, filtered by symbol when given.
func (c *Client) PositionSummary(ctx context.Context, symbol string) ([]PositionSummary, error) {
	const path = "/v1/positionSummary"
	var params url.Values
	if symbol != "" {
		params = url.Values{}
		params.Set("symbol", symbol)
	}
	data, err := c.doPrivate(ctx, http.MethodGet, path, params, nil)
	if err != nil {
		return nil, err
	}
	var out struct {
		List []PositionSummary `json:"list"`
	}
	if err := decodeData(http.MethodGet, path, data, &out); err != nil {
		return nil, err
	}
	return out.List, nil
}

// OrderRequest opens a new position.
type OrderRequest struct {
	Symbol        string               `json:"symbol"`
	Side          common.Side          `json:"side"`
	ExecutionType common.ExecutionType `json:"executionType"`
	Price         string               `json:"price,omitempty"`
	Size          string               `json:"size"`
}

// PlaceOrder submits a new order and returns its id.
func (c *Client) PlaceOrder(ctx context.Context, req OrderRequest) (int64, error) {
	const path = "/v1/order"
	data, err := c.doPrivate(ctx, http.MethodPost, path, nil, req)
	if err != nil {
		return 0, err
	}
	return parseOrderID(path, data)
}

// CloseBulkRequest closes every open position of a symbol on the opposite side.
type CloseBulkRequest struct {
	Symbol        string               `json:"symbol"`
	Side          common.Side          `json:"side"`
	ExecutionType common.ExecutionType `json:"executionType"`
	Price         string               `json:"price,omitempty"`
	Size          string               `json:"size"`
}

// CloseBulkOrder submits a bulk close order and returns its id.
func (c *Client) CloseBulkOrder(ctx context.Context, req CloseBulkRequest) (int64, error) {
	const path = "/v1/closeBulkOrder"
	data, err := c.doPrivate(ctx, http.MethodPost, path, nil, req)
	if err != nil {
		return 0, err
	}
	return parseOrderID(path, data)
}

type changeOrderRequest struct {
	OrderID int64  `json:"orderId"`
	Price   string `json:"price"`
}

// ChangeOrder moves the trigger price of a pending order.
func (c *Client) ChangeOrder(ctx context.Context, orderID int64, price string) error {
	_, err := c.doPrivate(ctx, http.MethodPost, "/v1/changeOrder", nil, changeOrderRequest{OrderID: orderID, Price: price})
	return err
}

type cancelOrderRequest struct {
	OrderID int64 `json:"orderId"`
}

// CancelOrder cancels a pending order.
func (c *Client) CancelOrder(ctx context.Context, orderID int64) error {
	_, err := c.doPrivate(ctx, http.MethodPost, "/v1/cancelOrder", nil, cancelOrderRequest{OrderID: orderID})
	return err
}

// parseOrderID accepts the order id either quoted or bare. The order was
// accepted at this point, so a malformed id is not a retryable fault.
func parseOrderID(path string, data json.RawMessage) (int64, error) {
	raw := strings.Trim(strings.TrimSpace(string(data)), `"`)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("gmo %s: parse order id %q: %w", path, raw, err)
	}
	return id, nil
}
