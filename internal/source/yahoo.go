// Package source adapts external market data providers to contracts.SourceAdapter.
package source

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/wonny/aegis-metrics/internal/contracts"
	"github.com/wonny/aegis-metrics/pkg/clock"
	"github.com/wonny/aegis-metrics/pkg/config"
	"github.com/wonny/aegis-metrics/pkg/httputil"
	"github.com/wonny/aegis-metrics/pkg/logger"
	"github.com/wonny/aegis-metrics/pkg/redis"
)

// DefaultBaseURL is the public chart API host
const DefaultBaseURL = "https://query1.finance.yahoo.com"

// YahooClient fetches daily prices and dividends from the v8 chart API
// ⭐ SSOT: Yahoo Finance 호출은 이 클라이언트에서만
type YahooClient struct {
	httpClient *httputil.Client
	cache      *redis.Cache
	cacheTTL   time.Duration
	clock      clock.Clock
	logger     *logger.Logger
	baseURL    string
}

// NewYahooClient creates a new Yahoo client. cache may be disabled or nil.
func NewYahooClient(httpClient *httputil.Client, cache *redis.Cache, cfg config.SourceConfig, clk clock.Clock, log *logger.Logger) *YahooClient {
	if log == nil {
		log = logger.Nop()
	}
	if clk == nil {
		clk = clock.New()
	}
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	ttl := cfg.CacheTTL
	if ttl <= 0 {
		ttl = redis.TTLDaily
	}
	return &YahooClient{
		httpClient: httpClient,
		cache:      cache,
		cacheTTL:   ttl,
		clock:      clk,
		logger:     log.WithField("module", "source.yahoo"),
		baseURL:    baseURL,
	}
}

// FetchPrices fetches the adjusted daily closes within [start, end]
func (c *YahooClient) FetchPrices(ctx context.Context, symbol string, start, end time.Time) (contracts.PriceSeries, error) {
	series := contracts.PriceSeries{Symbol: symbol}
	key := redis.PricesKey(symbol, start, end)

	if c.cacheGet(ctx, key, &series) {
		return series, nil
	}

	params := url.Values{}
	params.Set("period1", fmt.Sprintf("%d", start.Unix()))
	params.Set("period2", fmt.Sprintf("%d", end.Add(24*time.Hour).Unix()))
	params.Set("interval", "1d")
	params.Set("events", "div")

	result, err := c.fetchChart(ctx, symbol, params)
	if err != nil {
		return series, err
	}

	series.Points = result.points(start, end)
	if len(series.Points) == 0 {
		return series, contracts.NewNotFound(symbol, errors.New("no price rows in range"))
	}

	c.cacheSet(ctx, key, series)
	return series, nil
}

// FetchDividends fetches the full dividend history
func (c *YahooClient) FetchDividends(ctx context.Context, symbol string) (contracts.DividendSeries, error) {
	series := contracts.DividendSeries{Symbol: symbol}
	now := c.clock.Now()
	key := redis.DividendsKey(symbol, now)

	if c.cacheGet(ctx, key, &series) {
		return series, nil
	}

	params := url.Values{}
	params.Set("period1", "0")
	params.Set("period2", fmt.Sprintf("%d", now.Unix()))
	params.Set("interval", "1mo")
	params.Set("events", "div")

	result, err := c.fetchChart(ctx, symbol, params)
	if err != nil {
		return series, err
	}

	series.Events = result.dividends()
	c.cacheSet(ctx, key, series)
	return series, nil
}

// fetchChart performs the request and classifies every failure as a *contracts.FetchError
func (c *YahooClient) fetchChart(ctx context.Context, symbol string, params url.Values) (*chartResult, error) {
	fullURL := fmt.Sprintf("%s/v8/finance/chart/%s?%s", c.baseURL, url.PathEscape(symbol), params.Encode())

	body, err := c.httpClient.GetBody(ctx, fullURL)
	if err != nil {
		var se *httputil.StatusError
		if errors.As(err, &se) {
			return nil, classifyStatus(symbol, se, body)
		}
		return nil, contracts.NewTransient(symbol, err)
	}

	chart, err := decodeChart(body)
	if err != nil {
		return nil, contracts.NewTransient(symbol, fmt.Errorf("decode chart: %w", err))
	}
	if apiErr := chart.Chart.Error; apiErr != nil {
		return nil, classifyAPIError(symbol, apiErr)
	}
	if len(chart.Chart.Result) == 0 || len(chart.Chart.Result[0].Timestamp) == 0 &&
		len(chart.Chart.Result[0].Events.Dividends) == 0 {
		return nil, contracts.NewNotFound(symbol, errors.New("empty chart result"))
	}
	return &chart.Chart.Result[0], nil
}

// classifyStatus maps a non-2xx response to a fetch error kind
func classifyStatus(symbol string, se *httputil.StatusError, body []byte) error {
	switch {
	case se.StatusCode == http.StatusNotFound:
		return contracts.NewNotFound(symbol, se)
	case httputil.IsRetryableError(se.StatusCode):
		return contracts.NewTransient(symbol, se)
	}

	// 일부 4xx 응답은 본문에 "Not Found" 오류 코드를 담아 옴
	if chart, err := decodeChart(body); err == nil && chart.Chart.Error != nil {
		if isNotFoundCode(chart.Chart.Error.Code) {
			return contracts.NewNotFound(symbol, se)
		}
	}
	return contracts.NewRejected(symbol, se)
}

func classifyAPIError(symbol string, apiErr *chartError) error {
	err := fmt.Errorf("api error %s: %s", apiErr.Code, apiErr.Description)
	if isNotFoundCode(apiErr.Code) {
		return contracts.NewNotFound(symbol, err)
	}
	return contracts.NewRejected(symbol, err)
}

func isNotFoundCode(code string) bool {
	return strings.EqualFold(strings.TrimSpace(code), "Not Found")
}

func (c *YahooClient) cacheGet(ctx context.Context, key string, dest interface{}) bool {
	if !c.cache.Enabled() {
		return false
	}
	found, err := c.cache.Get(ctx, key, dest)
	if err != nil {
		c.logger.WithError(err).WithField("key", key).Warn("Cache read failed")
		return false
	}
	return found
}

func (c *YahooClient) cacheSet(ctx context.Context, key string, value interface{}) {
	if !c.cache.Enabled() {
		return
	}
	if err := c.cache.Set(ctx, key, value, c.cacheTTL); err != nil {
		c.logger.WithError(err).WithField("key", key).Warn("Cache write failed")
	}
}

var _ contracts.SourceAdapter = (*YahooClient)(nil)
