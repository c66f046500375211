package gmo

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"margin-trader/pkg/exchanges/common"
)

type capturedRequest struct {
	Method string
	Path   string
	Query  string
	Header http.Header
	Body   string
}

type fakeExchange struct {
	mu       sync.Mutex
	requests []capturedRequest
	handle   func(w http.ResponseWriter, r *http.Request, body string)
}

func newFakeExchange(t *testing.T, handle func(w http.ResponseWriter, r *http.Request, body string)) (*fakeExchange, *Client) {
	t.Helper()
	fx := &fakeExchange{handle: handle}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		fx.mu.Lock()
		fx.requests = append(fx.requests, capturedRequest{
			Method: r.Method,
			Path:   r.URL.Path,
			Query:  r.URL.RawQuery,
			Header: r.Header.Clone(),
			Body:   string(b),
		})
		fx.mu.Unlock()
		fx.handle(w, r, string(b))
	}))
	t.Cleanup(srv.Close)

	client := New(Config{
		Credentials: Credentials{APIKey: "test-key", APISecret: "test-secret"},
		PublicURL:   srv.URL + "/public",
		PrivateURL:  srv.URL + "/private",
	})
	return fx, client
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func TestPrivateRequestIsSigned(t *testing.T) {
	fx, client := newFakeExchange(t, func(w http.ResponseWriter, r *http.Request, body string) {
		writeJSON(w, map[string]any{"status": 0, "data": "637000"})
	})

	id, err := client.PlaceOrder(context.Background(), OrderRequest{
		Symbol:        "BTC_JPY",
		Side:          common.SideBuy,
		ExecutionType: common.ExecutionStop,
		Price:         "5000000",
		Size:          "0.0363",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(637000), id)

	require.Len(t, fx.requests, 1)
	req := fx.requests[0]
	assert.Equal(t, http.MethodPost, req.Method)
	assert.Equal(t, "/private/v1/order", req.Path)
	assert.JSONEq(t, `{"symbol":"BTC_JPY","side":"BUY","executionType":"STOP","price":"5000000","size":"0.0363"}`, req.Body)

	signer, err := NewSigner(Credentials{APIKey: "test-key", APISecret: "test-secret"})
	require.NoError(t, err)
	ts := req.Header.Get("API-TIMESTAMP")
	assert.Len(t, ts, 13)
	assert.Equal(t, "test-key", req.Header.Get("API-KEY"))
	assert.Equal(t, signer.Sign(ts, http.MethodPost, "/v1/order", req.Body), req.Header.Get("API-SIGN"))
}

func TestPrivateGETSignsPathWithoutQuery(t *testing.T) {
	fx, client := newFakeExchange(t, func(w http.ResponseWriter, r *http.Request, body string) {
		writeJSON(w, map[string]any{"status": 0, "data": map[string]any{"list": []map[string]any{{
			"symbol":              "BTC_JPY",
			"side":                "SELL",
			"sumPositionQuantity": "0.05",
			"positionLossGain":    "-1200",
		}}}})
	})

	list, err := client.PositionSummary(context.Background(), "BTC_JPY")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "SELL", list[0].Side)
	assert.Equal(t, Number("0.05"), list[0].SumPositionQuantity)

	req := fx.requests[0]
	assert.Equal(t, "symbol=BTC_JPY", req.Query)
	assert.Empty(t, req.Body)
	signer, _ := NewSigner(Credentials{APIKey: "test-key", APISecret: "test-secret"})
	ts := req.Header.Get("API-TIMESTAMP")
	assert.Equal(t, signer.Sign(ts, http.MethodGet, "/v1/positionSummary", ""), req.Header.Get("API-SIGN"))
}

func TestNonZeroStatusIsAPIError(t *testing.T) {
	_, client := newFakeExchange(t, func(w http.ResponseWriter, r *http.Request, body string) {
		writeJSON(w, map[string]any{
			"status":   1,
			"messages": []map[string]string{{"message_code": "ERR-201", "message_string": "Trading margin is insufficient"}},
		})
	})

	_, err := client.Assets(context.Background())
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, 1, apiErr.Status)
	assert.True(t, apiErr.HasCode("ERR-201"))
	assert.True(t, apiErr.Recoverable())
	assert.Contains(t, apiErr.Error(), "Trading margin is insufficient")
}

func TestHTTPErrorsClassification(t *testing.T) {
	tests := []struct {
		name        string
		code        int
		recoverable bool
	}{
		{"server error", http.StatusBadGateway, true},
		{"too many requests", http.StatusTooManyRequests, true},
		{"unauthorized", http.StatusUnauthorized, false},
		{"not found", http.StatusNotFound, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, client := newFakeExchange(t, func(w http.ResponseWriter, r *http.Request, body string) {
				http.Error(w, "boom", tt.code)
			})
			_, err := client.Symbols(context.Background())
			var reqErr *RequestError
			require.True(t, errors.As(err, &reqErr))
			assert.Equal(t, tt.code, reqErr.StatusCode)
			assert.Equal(t, tt.recoverable, reqErr.Recoverable())
		})
	}
}

func TestUndecodableBodyIsRecoverable(t *testing.T) {
	_, client := newFakeExchange(t, func(w http.ResponseWriter, r *http.Request, body string) {
		_, _ = w.Write([]byte("<html>maintenance</html>"))
	})
	_, err := client.Ticker(context.Background(), "BTC_JPY")
	var reqErr *RequestError
	require.True(t, errors.As(err, &reqErr))
	assert.True(t, reqErr.Recoverable())
}

func TestKlinesQueryAndLenientNumbers(t *testing.T) {
	fx, client := newFakeExchange(t, func(w http.ResponseWriter, r *http.Request, body string) {
		_, _ = w.Write([]byte(`{"status":0,"data":[{"openTime":"1697407200000","open":"4000000","high":4000100,"low":"3999000","close":null,"volume":"0.5"}]}`))
	})

	klines, err := client.Klines(context.Background(), "BTC_JPY", "1min", "20231016")
	require.NoError(t, err)
	require.Len(t, klines, 1)
	assert.Equal(t, Number("1697407200000"), klines[0].OpenTime)
	assert.Equal(t, Number("4000100"), klines[0].High)
	assert.Equal(t, Number(""), klines[0].Close)

	req := fx.requests[0]
	assert.Equal(t, "/public/v1/klines", req.Path)
	assert.Equal(t, "date=20231016&interval=1min&symbol=BTC_JPY", req.Query)
	assert.Empty(t, req.Header.Get("API-SIGN"))
}

func TestResponseTimeFeedsTimeSync(t *testing.T) {
	server := time.Now().Add(2 * time.Hour).UTC()
	_, client := newFakeExchange(t, func(w http.ResponseWriter, r *http.Request, body string) {
		writeJSON(w, map[string]any{"status": 0, "data": []any{}, "responsetime": server.Format(time.RFC3339Nano)})
	})

	_, err := client.Symbols(context.Background())
	require.NoError(t, err)
	offset := client.TimeSync().Offset()
	assert.InDelta(t, float64(2*time.Hour), float64(offset), float64(5*time.Second))
}

func TestPrivateCallWithoutCredentials(t *testing.T) {
	client := New(Config{PublicURL: "http://127.0.0.1:0", PrivateURL: "http://127.0.0.1:0"})
	_, err := client.Assets(context.Background())
	assert.ErrorIs(t, err, ErrMissingCredentials)
}

func TestMalformedOrderIDIsNotRecoverable(t *testing.T) {
	_, client := newFakeExchange(t, func(w http.ResponseWriter, r *http.Request, body string) {
		writeJSON(w, map[string]any{"status": 0, "data": "not-a-number"})
	})
	_, err := client.CloseBulkOrder(context.Background(), CloseBulkRequest{Symbol: "BTC_JPY", Side: common.SideBuy, ExecutionType: common.ExecutionMarket, Size: "0.05"})
	require.Error(t, err)
	var reqErr *RequestError
	assert.False(t, errors.As(err, &reqErr))
}

func TestChangeAndCancelBodies(t *testing.T) {
	fx, client := newFakeExchange(t, func(w http.ResponseWriter, r *http.Request, body string) {
		writeJSON(w, map[string]any{"status": 0})
	})

	require.NoError(t, client.ChangeOrder(context.Background(), 42, "5100000"))
	require.NoError(t, client.CancelOrder(context.Background(), 42))

	require.Len(t, fx.requests, 2)
	assert.Equal(t, "/private/v1/changeOrder", fx.requests[0].Path)
	assert.JSONEq(t, `{"orderId":42,"price":"5100000"}`, fx.requests[0].Body)
	assert.Equal(t, "/private/v1/cancelOrder", fx.requests[1].Path)
	assert.JSONEq(t, `{"orderId":42}`, fx.requests[1].Body)
}
