// Package binance is a minimal client for the Binance spot REST API and the
// book-ticker WebSocket stream.
package binance

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/alanyoungcy/spotbot/internal/crypto"
	"github.com/alanyoungcy/spotbot/internal/domain"
)

const (
	// DefaultBaseURL is the production REST root.
	DefaultBaseURL = "https://api.binance.com"
	// TestnetBaseURL is the spot testnet REST root.
	TestnetBaseURL = "https://testnet.binance.vision"
	// DefaultRecvWindow bounds how stale a signed request may be on arrival.
	DefaultRecvWindow = 15 * time.Second
)

// ClientConfig configures a Client.
type ClientConfig struct {
	BaseURL    string
	APIKey     string
	APISecret  string
	RecvWindow time.Duration
	Timeout    time.Duration
}

// Client is the REST client for the spot API. Public endpoints work without
// credentials; order placement requires APIKey and APISecret.
type Client struct {
	baseURL    string
	httpClient *http.Client
	auth       *crypto.HMACAuth
	recvWindow time.Duration
}

// NewClient creates a new REST client.
func NewClient(cfg ClientConfig) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.RecvWindow <= 0 {
		cfg.RecvWindow = DefaultRecvWindow
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	c := &Client{
		baseURL:    cfg.BaseURL,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		recvWindow: cfg.RecvWindow,
	}
	if cfg.APIKey != "" || cfg.APISecret != "" {
		c.auth = &crypto.HMACAuth{Key: cfg.APIKey, Secret: cfg.APISecret}
	}
	return c
}

// Ping checks connectivity to the REST API.
func (c *Client) Ping(ctx context.Context) error {
	if _, err := c.doRequest(ctx, http.MethodGet, "/api/v3/ping", nil, false); err != nil {
		return fmt.Errorf("binance: ping: %w", err)
	}
	return nil
}

// BookTicker returns the current best bid and ask for symbol.
func (c *Client) BookTicker(ctx context.Context, symbol string) (BookTicker, error) {
	params := url.Values{}
	params.Set("symbol", symbol)

	body, err := c.doRequest(ctx, http.MethodGet, "/api/v3/ticker/bookTicker", params, false)
	if err != nil {
		return BookTicker{}, fmt.Errorf("binance: book ticker %s: %w", symbol, err)
	}

	var bt BookTicker
	if err := json.Unmarshal(body, &bt); err != nil {
		return BookTicker{}, fmt.Errorf("binance: decode book ticker: %w", err)
	}
	return bt, nil
}

// Klines returns up to limit candles for symbol starting at start.
func (c *Client) Klines(ctx context.Context, symbol, interval string, start time.Time, limit int) ([]Kline, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("interval", interval)
	if !start.IsZero() {
		params.Set("startTime", strconv.FormatInt(start.UnixMilli(), 10))
	}
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}

	body, err := c.doRequest(ctx, http.MethodGet, "/api/v3/klines", params, false)
	if err != nil {
		return nil, fmt.Errorf("binance: klines %s: %w", symbol, err)
	}

	var klines []Kline
	if err := json.Unmarshal(body, &klines); err != nil {
		return nil, fmt.Errorf("binance: decode klines: %w", err)
	}
	return klines, nil
}

// NewOrder places a signed LIMIT order and returns the exchange's response.
// A response whose status is not FILLED is returned without error.
func (c *Client) NewOrder(ctx context.Context, req OrderRequest) (OrderResponse, error) {
	if c.auth == nil {
		return OrderResponse{}, fmt.Errorf("binance: new order: %w", domain.ErrUnauthorized)
	}
	tif := req.TimeInForce
	if tif == "" {
		tif = "FOK"
	}

	params := url.Values{}
	params.Set("symbol", req.Symbol)
	params.Set("side", string(req.Side))
	params.Set("type", "LIMIT")
	params.Set("timeInForce", tif)
	params.Set("quantity", req.Quantity.String())
	params.Set("price", req.Price.String())
	params.Set("newOrderRespType", "RESULT")
	if req.ClientOrderID != "" {
		params.Set("newClientOrderId", req.ClientOrderID)
	}

	body, err := c.doRequest(ctx, http.MethodPost, "/api/v3/order", params, true)
	if err != nil {
		return OrderResponse{}, fmt.Errorf("binance: new order %s %s: %w", req.Side, req.Symbol, err)
	}

	var resp OrderResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return OrderResponse{}, fmt.Errorf("binance: decode order: %w", err)
	}
	return resp, nil
}

// --------------------------------------------------------------------------
// Internal helpers
// --------------------------------------------------------------------------

func (c *Client) doRequest(ctx context.Context, method, path string, params url.Values, signed bool) ([]byte, error) {
	var query string
	if signed {
		query = c.auth.SignQuery(params, c.recvWindow)
	} else if len(params) > 0 {
		query = params.Encode()
	}

	target := c.baseURL + path
	if query != "" {
		target += "?" + query
	}

	req, err := http.NewRequestWithContext(ctx, method, target, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if c.auth != nil {
		req.Header.Set("X-MBX-APIKEY", c.auth.Key)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if err := checkHTTPStatus(resp.StatusCode, body); err != nil {
		return nil, err
	}
	return body, nil
}

// checkHTTPStatus maps non-2xx status codes to domain errors, keeping the
// API's own error code when the body carries one.
func checkHTTPStatus(statusCode int, body []byte) error {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}

	var apiErr *APIError
	var decoded APIError
	if json.Unmarshal(body, &decoded) == nil && decoded.Code != 0 {
		apiErr = &decoded
	}

	var sentinel error
	switch statusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		sentinel = domain.ErrUnauthorized
	case http.StatusTooManyRequests, http.StatusTeapot:
		sentinel = domain.ErrRateLimited
	}

	switch {
	case sentinel != nil && apiErr != nil:
		return errors.Join(sentinel, apiErr)
	case sentinel != nil:
		return fmt.Errorf("%w: %s", sentinel, string(body))
	case apiErr != nil:
		return apiErr
	default:
		return fmt.Errorf("HTTP %d: %s", statusCode, string(body))
	}
}
