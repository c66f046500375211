package gmo

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"margin-trader/pkg/exchanges/common"
)

const (
	DefaultPublicURL  = "https://api.coin.z.com/public"
	DefaultPrivateURL = "https://api.coin.z.com/private"
)

// Config holds endpoint, credential and pacing settings for the REST client.
type Config struct {
	Credentials
	PublicURL  string
	PrivateURL string
	Timeout    time.Duration
	RateLimit  float64 // requests per second, 0 disables pacing
	RateBurst  int
}

// RequestObserver is notified after every HTTP round trip.
type RequestObserver interface {
	RecordRequest(path string, d time.Duration, err error)
}

// Client is a REST client for the public and private exchange APIs.
type Client struct {
	cfg         Config
	httpClient  *http.Client
	signer      *Signer
	timeSync    *common.TimeSync
	rateLimiter *common.RateLimiter
	observer    RequestObserver
}

// New builds a client. Private endpoints return ErrMissingCredentials when
// cfg carries no key pair, which keeps public-only tools usable.
func New(cfg Config) *Client {
	if cfg.PublicURL == "" {
		cfg.PublicURL = DefaultPublicURL
	}
	if cfg.PrivateURL == "" {
		cfg.PrivateURL = DefaultPrivateURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	c := &Client{
		cfg:         cfg,
		httpClient:  &http.Client{Timeout: cfg.Timeout},
		timeSync:    common.NewTimeSync(),
		rateLimiter: common.NewRateLimiter(cfg.RateLimit, cfg.RateBurst),
	}
	if signer, err := NewSigner(cfg.Credentials); err == nil {
		c.signer = signer
	}
	return c
}

// SetObserver installs a hook receiving the latency and outcome of each request.
func (c *Client) SetObserver(o RequestObserver) {
	c.observer = o
}

// TimeSync exposes the clock tracker fed by response timestamps.
func (c *Client) TimeSync() *common.TimeSync {
	return c.timeSync
}

type envelope struct {
	Status       int             `json:"status"`
	Data         json.RawMessage `json:"data"`
	Messages     []Message       `json:"messages"`
	ResponseTime string          `json:"responsetime"`
}

// doPublic performs an unauthenticated GET and returns the envelope data.
func (c *Client) doPublic(ctx context.Context, path string, params url.Values) (json.RawMessage, error) {
	endpoint := c.cfg.PublicURL + path
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	return c.do(ctx, req, path)
}

// doPrivate signs and performs an authenticated request. The signature covers
// the path without its query string and the exact body bytes sent.
func (c *Client) doPrivate(ctx context.Context, method, path string, params url.Values, payload any) (json.RawMessage, error) {
	if c.signer == nil {
		return nil, ErrMissingCredentials
	}

	var body []byte
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode %s body: %w", path, err)
		}
		body = b
	}

	endpoint := c.cfg.PrivateURL + path
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	ts := Timestamp(c.timeSync.Now())
	for k, v := range c.signer.Headers(ts, method, path, string(body)) {
		req.Header.Set(k, v)
	}
	return c.do(ctx, req, path)
}

func (c *Client) do(ctx context.Context, req *http.Request, path string) (data json.RawMessage, err error) {
	if err := c.rateLimiter.Wait(ctx); err != nil {
		return nil, err
	}

	sent := time.Now()
	defer func() {
		if c.observer != nil {
			c.observer.RecordRequest(path, time.Since(sent), err)
		}
	}()

	res, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &RequestError{Method: req.Method, Path: path, Err: err}
	}
	defer res.Body.Close()

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, &RequestError{Method: req.Method, Path: path, Err: err}
	}
	received := time.Now()

	if res.StatusCode >= 300 {
		return nil, &RequestError{Method: req.Method, Path: path, StatusCode: res.StatusCode, Body: string(body)}
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, &RequestError{Method: req.Method, Path: path, Body: string(body), Err: fmt.Errorf("decode response: %w", err)}
	}

	if env.ResponseTime != "" {
		if server, perr := time.Parse(time.RFC3339Nano, env.ResponseTime); perr == nil {
			c.timeSync.Observe(server, sent, received)
		}
	}

	if env.Status != 0 {
		return nil, &APIError{
			Method:   req.Method,
			Path:     path,
			Status:   env.Status,
			Messages: env.Messages,
			Body:     strings.TrimSpace(string(body)),
		}
	}
	return env.Data, nil
}

func decodeData(method, path string, data json.RawMessage, v any) error {
	if err := json.Unmarshal(data, v); err != nil {
		return &RequestError{Method: method, Path: path, Body: string(data), Err: fmt.Errorf("decode data: %w", err)}
	}
	return nil
}
