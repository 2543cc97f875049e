// Package autoindex provides a Go client SDK for the autoindex analytics
// API.
package autoindex

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"autoindex/internal/api"
	"autoindex/internal/backtest"
	"autoindex/internal/domain"
	"autoindex/internal/engine"
	"autoindex/internal/risk"
	"autoindex/internal/store"
)

// Request and response types shared with the server.
type (
	SeriesRequest   = api.SeriesRequest
	WeightsRequest  = api.WeightsRequest
	BacktestRequest = api.BacktestRequest
	OptimizeRequest = api.OptimizeRequest
	WeightsResponse = api.WeightsResponse
	StrategySaved   = api.StrategySaved
)

// APIError is a non-2xx response from the server.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("autoindex: %d %s", e.StatusCode, e.Message)
}

// Unwrap maps the status code back onto the domain error it was derived
// from, so callers can test with errors.Is.
func (e *APIError) Unwrap() error {
	switch e.StatusCode {
	case http.StatusBadRequest:
		return domain.ErrInvalidInput
	case http.StatusUnprocessableEntity:
		return domain.ErrInsufficientData
	case http.StatusNotFound:
		return store.ErrNotFound
	}
	return nil
}

// Client is an autoindex API client.
type Client struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithRateLimit caps outgoing requests at rps per second.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *Client) {
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// NewClient creates a new autoindex API client.
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// ---------------------------------------------------------------------------
// Metrics
// ---------------------------------------------------------------------------

// Returns computes the simple period returns of values.
func (c *Client) Returns(ctx context.Context, values []float64) ([]float64, error) {
	var out api.ReturnsResponse
	err := c.do(ctx, http.MethodPost, "/api/v1/returns", api.SeriesRequest{Values: values}, &out)
	return out.Returns, err
}

// TotalReturn computes end/start - 1.
func (c *Client) TotalReturn(ctx context.Context, start, end float64) (float64, error) {
	var out api.ValueResponse
	err := c.do(ctx, http.MethodPost, "/api/v1/total-return", api.TotalReturnRequest{StartValue: start, EndValue: end}, &out)
	return out.Value, err
}

// Volatility estimates annualized volatility from period returns.
func (c *Client) Volatility(ctx context.Context, returns []float64) (risk.Estimate, error) {
	var out risk.Estimate
	err := c.do(ctx, http.MethodPost, "/api/v1/volatility", api.VolatilityRequest{Returns: returns}, &out)
	return out, err
}

// MaxDrawdown computes the drawdown statistics of values.
func (c *Client) MaxDrawdown(ctx context.Context, values []float64) (risk.Drawdown, error) {
	var out risk.Drawdown
	err := c.do(ctx, http.MethodPost, "/api/v1/max-drawdown", api.SeriesRequest{Values: values}, &out)
	return out, err
}

// PortfolioMetrics computes the headline metrics of a value sequence
// spanning periodDays calendar days.
func (c *Client) PortfolioMetrics(ctx context.Context, values []float64, periodDays float64) (engine.PortfolioMetrics, error) {
	var out engine.PortfolioMetrics
	err := c.do(ctx, http.MethodPost, "/api/v1/portfolio-metrics", api.SeriesRequest{Values: values, PeriodDays: periodDays}, &out)
	return out, err
}

// ---------------------------------------------------------------------------
// Weights and backtests
// ---------------------------------------------------------------------------

// ComputeWeights computes constrained target weights.
func (c *Client) ComputeWeights(ctx context.Context, req WeightsRequest) (*WeightsResponse, error) {
	out := new(WeightsResponse)
	if err := c.do(ctx, http.MethodPost, "/api/v1/weights", req, out); err != nil {
		return nil, err
	}
	return out, nil
}

// RunBacktest runs a backtest. A run that failed inside the engine is
// returned with status failed and no error.
func (c *Client) RunBacktest(ctx context.Context, req BacktestRequest) (*domain.BacktestResult, error) {
	out := new(domain.BacktestResult)
	if err := c.do(ctx, http.MethodPost, "/api/v1/backtest", req, out); err != nil {
		return nil, err
	}
	return out, nil
}

// Optimize runs a parameter sweep and returns the ranked results.
func (c *Client) Optimize(ctx context.Context, req OptimizeRequest) (*backtest.OptimizeResult, error) {
	out := new(backtest.OptimizeResult)
	if err := c.do(ctx, http.MethodPost, "/api/v1/optimize", req, out); err != nil {
		return nil, err
	}
	return out, nil
}

// ---------------------------------------------------------------------------
// Strategies
// ---------------------------------------------------------------------------

// ListStrategies returns every registered strategy.
func (c *Client) ListStrategies(ctx context.Context) ([]domain.StrategyConfig, error) {
	var out []domain.StrategyConfig
	err := c.do(ctx, http.MethodGet, "/api/v1/strategies", nil, &out)
	return out, err
}

// GetStrategy returns the named strategy.
func (c *Client) GetStrategy(ctx context.Context, name string) (domain.StrategyConfig, error) {
	var out domain.StrategyConfig
	err := c.do(ctx, http.MethodGet, "/api/v1/strategies/"+url.PathEscape(name), nil, &out)
	return out, err
}

// SaveStrategy registers cfg under its name and stores a new version.
func (c *Client) SaveStrategy(ctx context.Context, cfg domain.StrategyConfig) (StrategySaved, error) {
	var out StrategySaved
	err := c.do(ctx, http.MethodPut, "/api/v1/strategies/"+url.PathEscape(cfg.Name), cfg, &out)
	return out, err
}

// StrategyVersions lists the stored versions of name, newest first.
func (c *Client) StrategyVersions(ctx context.Context, name string) ([]store.StrategyVersion, error) {
	var out []store.StrategyVersion
	err := c.do(ctx, http.MethodGet, "/api/v1/strategies/"+url.PathEscape(name)+"/versions", nil, &out)
	return out, err
}

// ---------------------------------------------------------------------------
// Stored data
// ---------------------------------------------------------------------------

// Symbols lists the symbols with stored prices.
func (c *Client) Symbols(ctx context.Context) ([]string, error) {
	var out []string
	err := c.do(ctx, http.MethodGet, "/api/v1/symbols", nil, &out)
	return out, err
}

// ListRuns lists stored runs, optionally filtered by strategy. A limit of
// zero uses the server default.
func (c *Client) ListRuns(ctx context.Context, strategy string, limit int) ([]store.RunSummary, error) {
	q := url.Values{}
	if strategy != "" {
		q.Set("strategy", strategy)
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	path := "/api/v1/runs"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	var out []store.RunSummary
	err := c.do(ctx, http.MethodGet, path, nil, &out)
	return out, err
}

// GetRun returns the summary of a stored run.
func (c *Client) GetRun(ctx context.Context, id string) (store.RunSummary, error) {
	var out store.RunSummary
	err := c.do(ctx, http.MethodGet, "/api/v1/runs/"+url.PathEscape(id), nil, &out)
	return out, err
}

// RunReport returns the markdown report of a stored run.
func (c *Client) RunReport(ctx context.Context, id string) (string, error) {
	b, err := c.raw(ctx, "/api/v1/runs/"+url.PathEscape(id)+"/report", "text/markdown")
	return string(b), err
}

// RunChart returns the equity curve of a stored run as a PNG.
func (c *Client) RunChart(ctx context.Context, id string) ([]byte, error) {
	return c.raw(ctx, "/api/v1/runs/"+url.PathEscape(id)+"/chart.png", "image/png")
}

// ---------------------------------------------------------------------------
// Transport
// ---------------------------------------------------------------------------

func (c *Client) send(ctx context.Context, method, path string, in any, accept string) (*http.Response, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return nil, fmt.Errorf("encoding request: %w", err)
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", accept)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode/100 != 2 {
		defer resp.Body.Close()
		return nil, decodeError(resp)
	}
	return resp, nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	resp, err := c.send(ctx, method, path, in, "application/json")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding %s response: %w", path, err)
	}
	return nil
}

func (c *Client) raw(ctx context.Context, path, accept string) ([]byte, error) {
	resp, err := c.send(ctx, http.MethodGet, path, nil, accept)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	return io.ReadAll(resp.Body)
}

func decodeError(resp *http.Response) error {
	apiErr := &APIError{StatusCode: resp.StatusCode, Message: resp.Status}
	var body api.ErrorResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&body); err == nil && body.Error != "" {
		apiErr.Message = body.Error
	}
	return apiErr
}

// IsNotFound reports whether err is a 404 from the server.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}
