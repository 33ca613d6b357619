package data

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/defirisk/lendvar/internal/domain"
	"github.com/defirisk/lendvar/internal/metrics"
)

// DefaultAssetMapping maps protocol reserve symbols to CoinGecko coin IDs
// for the modeled asset universe.
var DefaultAssetMapping = map[string]string{
	"WETH":   "weth",
	"weETH":  "wrapped-eeth",
	"wstETH": "wrapped-steth",
	"rsETH":  "kelp-dao-restaked-eth",
	"ezETH":  "renzo-restaked-eth",
	"osETH":  "stakewise-v3-oseth",
	"ETHx":   "stader-ethx",
	"WBTC":   "wrapped-bitcoin",
	"cbBTC":  "coinbase-wrapped-btc",
	"LBTC":   "lombard-staked-btc",
	"USDC":   "usd-coin",
	"USDT":   "tether",
	"PYUSD":  "paypal-usd",
	"USDe":   "ethena-usde",
	"sUSDe":  "ethena-staked-usde",
	"crvUSD": "crvusd",
	"sDAI":   "savings-dai",
	"AAVE":   "aave",
}

// CoinGeckoConfig configures the historical price client.
type CoinGeckoConfig struct {
	BaseURL        string
	APIKey         string
	RequestsPerSec float64
	Timeout        time.Duration
}

// CoinGeckoClient fetches daily close-price history. Requests are rate
// limited (the free tier throttles aggressively) and wrapped in a circuit
// breaker so one flapping upstream does not burn the whole request budget.
type CoinGeckoClient struct {
	cfg     CoinGeckoConfig
	http    *http.Client
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker
	cache   *Cache
	log     zerolog.Logger
	met     *metrics.Registry
}

// NewCoinGeckoClient builds a price client. cache and met may be nil.
func NewCoinGeckoClient(cfg CoinGeckoConfig, cache *Cache, log zerolog.Logger, met *metrics.Registry) *CoinGeckoClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.coingecko.com/api/v3"
	}
	if cfg.RequestsPerSec == 0 {
		cfg.RequestsPerSec = 0.8
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 15 * time.Second
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "coingecko",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})

	return &CoinGeckoClient{
		cfg:     cfg,
		http:    &http.Client{Timeout: cfg.Timeout},
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSec), 1),
		breaker: breaker,
		cache:   cache,
		log:     log.With().Str("component", "coingecko").Logger(),
		met:     met,
	}
}

type marketChartResponse struct {
	Prices [][2]float64 `json:"prices"`
}

// MarketChart fetches up to days of daily closes for one CoinGecko coin ID.
// Sub-daily samples are collapsed to the last observation of each UTC day.
func (c *CoinGeckoClient) MarketChart(ctx context.Context, symbol, coinID string, days int) (*domain.AssetSeries, error) {
	cacheKey := fmt.Sprintf("marketchart:%s:%d", coinID, days)
	var cached domain.AssetSeries
	if c.cache.Get(ctx, cacheKey, &cached) {
		return &cached, nil
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	body, err := c.breaker.Execute(func() (interface{}, error) {
		return c.get(ctx, coinID, days)
	})
	if err != nil {
		c.observe("error")
		return nil, fmt.Errorf("market chart fetch for %s failed: %w", symbol, err)
	}
	c.observe("ok")

	var chart marketChartResponse
	if err := json.Unmarshal(body.([]byte), &chart); err != nil {
		return nil, fmt.Errorf("failed to parse market chart for %s: %w", symbol, err)
	}

	series := collapseDaily(symbol, chart.Prices)
	if err := series.Validate(); err != nil {
		return nil, fmt.Errorf("market chart for %s invalid: %w", symbol, err)
	}

	c.cache.Set(ctx, cacheKey, series)
	return series, nil
}

// FetchAll fetches series for every symbol in mapping, skipping (with a
// warning) assets whose fetch fails so one delisted coin does not abort the
// whole window refresh.
func (c *CoinGeckoClient) FetchAll(ctx context.Context, mapping map[string]string, days int) ([]*domain.AssetSeries, error) {
	symbols := make([]string, 0, len(mapping))
	for sym := range mapping {
		symbols = append(symbols, sym)
	}
	sort.Strings(symbols)

	var out []*domain.AssetSeries
	for _, sym := range symbols {
		series, err := c.MarketChart(ctx, sym, mapping[sym], days)
		if err != nil {
			if ctx.Err() != nil {
				return out, ctx.Err()
			}
			c.log.Warn().Err(err).Str("symbol", sym).Msg("skipping asset, fetch failed")
			continue
		}
		out = append(out, series)
		c.log.Info().Str("symbol", sym).Int("days", series.Len()).Msg("fetched price history")
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no asset series could be fetched")
	}
	return out, nil
}

func (c *CoinGeckoClient) get(ctx context.Context, coinID string, days int) ([]byte, error) {
	u := fmt.Sprintf("%s/coins/%s/market_chart", c.cfg.BaseURL, url.PathEscape(coinID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	q := req.URL.Query()
	q.Set("vs_currency", "usd")
	q.Set("days", fmt.Sprintf("%d", days))
	q.Set("interval", "daily")
	if c.cfg.APIKey != "" {
		q.Set("x_cg_demo_api_key", c.cfg.APIKey)
	}
	req.URL.RawQuery = q.Encode()

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("coingecko returned %d: %s", resp.StatusCode, body)
	}
	return io.ReadAll(resp.Body)
}

func (c *CoinGeckoClient) observe(result string) {
	if c.met != nil {
		c.met.FeedRequests.WithLabelValues("coingecko", result).Inc()
	}
}

// collapseDaily keeps the last price sample of each UTC day, in date order.
func collapseDaily(symbol string, samples [][2]float64) *domain.AssetSeries {
	byDay := make(map[int64]float64, len(samples))
	for _, s := range samples {
		ts := time.UnixMilli(int64(s[0])).UTC()
		y, m, d := ts.Date()
		day := time.Date(y, m, d, 0, 0, 0, 0, time.UTC).Unix()
		byDay[day] = s[1] // later samples overwrite earlier ones
	}
	days := make([]int64, 0, len(byDay))
	for d := range byDay {
		days = append(days, d)
	}
	sort.Slice(days, func(i, j int) bool { return days[i] < days[j] })

	series := &domain.AssetSeries{Symbol: symbol}
	for _, d := range days {
		series.Points = append(series.Points, domain.PricePoint{
			Date:  time.Unix(d, 0).UTC(),
			Close: byDay[d],
		})
	}
	return series
}
