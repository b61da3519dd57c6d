// Package marketdata fetches candle series and pool/trending metadata from
// the GeckoTerminal-shaped aggregator described in spec §4.1 and §6.
// Grounded on internal/analytics/historical_data_fetcher.go's HTTP-fetch
// pattern (shared *http.Client, GET, decode, convert), replacing its
// exchange-specific decoders with the aggregator's ohlcv_list shape and
// adding an x/time/rate limiter in place of the original's fixed sleep.
package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"dexsurveil/internal/model"
)

const (
	defaultBaseURL    = "https://api.geckoterminal.com/api/v2"
	defaultTimeout    = 10 * time.Second
	maxRetries        = 3
	retryBaseDelay    = 250 * time.Millisecond
)

// PoolMeta is the spot metadata FetchPoolMeta returns.
type PoolMeta struct {
	BasePriceUSD float64
	Symbol       string
	Volume24h    float64
}

// TrendingPool is one entry from the trending-pools feed.
type TrendingPool struct {
	PoolID       model.PoolID
	TokenAddress string
	Symbol       string
	PriceUSD     float64
	Volume24hUSD float64
}

// Client fetches OHLCV series and pool metadata, rate-limited per process.
type Client struct {
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *zap.Logger
	baseURL    string
}

// New builds a Client rate-limited to ratePerSecond requests/sec.
func New(logger *zap.Logger, ratePerSecond int) *Client {
	if ratePerSecond <= 0 {
		ratePerSecond = 30
	}
	return &Client{
		httpClient: &http.Client{Timeout: defaultTimeout},
		limiter:    rate.NewLimiter(rate.Limit(ratePerSecond), ratePerSecond),
		logger:     logger,
		baseURL:    defaultBaseURL,
	}
}

type ohlcvResponse struct {
	Data struct {
		Attributes struct {
			OHLCVList [][]json.Number `json:"ohlcv_list"`
		} `json:"attributes"`
	} `json:"data"`
}

// FetchOHLCV fetches up to limit candles for (pool, timeframe, aggregate),
// sorted ascending by timestamp.
func (c *Client) FetchOHLCV(ctx context.Context, poolID model.PoolID, tf model.Timeframe, aggregate, limit int) (model.CandleSeries, error) {
	network, address, ok := poolID.Split()
	if !ok {
		return model.CandleSeries{}, fmt.Errorf("marketdata: %w: pool id %q has no network separator", model.ErrMalformed, poolID)
	}
	if limit <= 0 || limit > 1000 {
		limit = 1000
	}

	url := fmt.Sprintf("%s/networks/%s/pools/%s/ohlcv/%s?aggregate=%d&limit=%d",
		c.baseURL, network, address, tf, aggregate, limit)

	body, err := c.get(ctx, url)
	if err != nil {
		return model.CandleSeries{}, err
	}

	var resp ohlcvResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return model.CandleSeries{}, fmt.Errorf("marketdata: %w: decoding ohlcv response: %v", model.ErrMalformed, err)
	}

	rows := resp.Data.Attributes.OHLCVList
	candles := make([]model.Candle, 0, len(rows))
	for _, row := range rows {
		if len(row) < 6 {
			continue
		}
		candle, err := rowToCandle(row)
		if err != nil {
			c.logger.Warn("marketdata: skipping malformed ohlcv row", zap.Error(err))
			continue
		}
		candles = append(candles, candle)
	}

	sort.Slice(candles, func(i, j int) bool { return candles[i].Timestamp < candles[j].Timestamp })

	return model.CandleSeries{
		Pool:      string(poolID),
		Timeframe: tf,
		Aggregate: aggregate,
		Candles:   candles,
	}, nil
}

func rowToCandle(row []json.Number) (model.Candle, error) {
	vals := make([]float64, len(row))
	for i, n := range row {
		f, err := n.Float64()
		if err != nil {
			return model.Candle{}, fmt.Errorf("field %d: %w", i, err)
		}
		vals[i] = f
	}
	return model.Candle{
		Timestamp: int64(vals[0]),
		Open:      vals[1],
		High:      vals[2],
		Low:       vals[3],
		Close:     vals[4],
		Volume:    vals[5],
	}, nil
}

type poolMetaResponse struct {
	Data struct {
		Attributes struct {
			BaseTokenPriceUSD json.Number `json:"base_token_price_usd"`
			Name              string      `json:"name"`
			VolumeUSD         struct {
				H24 json.Number `json:"h24"`
			} `json:"volume_usd"`
		} `json:"attributes"`
	} `json:"data"`
}

// FetchPoolMeta fetches spot price, symbol, and 24h volume for a pool.
func (c *Client) FetchPoolMeta(ctx context.Context, poolID model.PoolID) (PoolMeta, error) {
	network, address, ok := poolID.Split()
	if !ok {
		return PoolMeta{}, fmt.Errorf("marketdata: %w: pool id %q has no network separator", model.ErrMalformed, poolID)
	}

	url := fmt.Sprintf("%s/networks/%s/pools/%s", c.baseURL, network, address)
	body, err := c.get(ctx, url)
	if err != nil {
		return PoolMeta{}, err
	}

	var resp poolMetaResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return PoolMeta{}, fmt.Errorf("marketdata: %w: decoding pool meta: %v", model.ErrMalformed, err)
	}

	price, _ := resp.Data.Attributes.BaseTokenPriceUSD.Float64()
	volume, _ := resp.Data.Attributes.VolumeUSD.H24.Float64()

	return PoolMeta{
		BasePriceUSD: price,
		Symbol:       resp.Data.Attributes.Name,
		Volume24h:    volume,
	}, nil
}

type trendingResponse struct {
	Data []struct {
		ID         string `json:"id"`
		Attributes struct {
			Name              string      `json:"name"`
			BaseTokenPriceUSD json.Number `json:"base_token_price_usd"`
			VolumeUSD         struct {
				H24 json.Number `json:"h24"`
			} `json:"volume_usd"`
		} `json:"attributes"`
		Relationships struct {
			BaseToken struct {
				Data struct {
					ID string `json:"id"`
				} `json:"data"`
			} `json:"base_token"`
		} `json:"relationships"`
	} `json:"data"`
	Included []struct {
		ID         string `json:"id"`
		Attributes struct {
			Address string `json:"address"`
			Symbol  string `json:"symbol"`
		} `json:"attributes"`
	} `json:"included"`
}

// FetchTrendingPools fetches the trending-pools feed for a network.
func (c *Client) FetchTrendingPools(ctx context.Context, network string, limit int) ([]TrendingPool, error) {
	if limit <= 0 {
		limit = 50
	}
	url := fmt.Sprintf("%s/networks/%s/trending_pools?include=base_token,quote_token&limit=%d", c.baseURL, network, limit)
	body, err := c.get(ctx, url)
	if err != nil {
		return nil, err
	}

	var resp trendingResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("marketdata: %w: decoding trending pools: %v", model.ErrMalformed, err)
	}

	tokensByID := make(map[string]struct {
		Address string
		Symbol  string
	}, len(resp.Included))
	for _, inc := range resp.Included {
		tokensByID[inc.ID] = struct {
			Address string
			Symbol  string
		}{Address: inc.Attributes.Address, Symbol: inc.Attributes.Symbol}
	}

	out := make([]TrendingPool, 0, len(resp.Data))
	for _, d := range resp.Data {
		price, _ := d.Attributes.BaseTokenPriceUSD.Float64()
		volume, _ := d.Attributes.VolumeUSD.H24.Float64()

		baseTokenID := d.Relationships.BaseToken.Data.ID
		tokenAddress := baseTokenID
		symbol := d.Attributes.Name
		if tok, ok := tokensByID[baseTokenID]; ok {
			if tok.Address != "" {
				tokenAddress = tok.Address
			}
			if tok.Symbol != "" {
				symbol = tok.Symbol
			}
		} else {
			c.logger.Warn("marketdata: trending pool base_token missing from included",
				zap.String("pool_id", d.ID), zap.String("base_token_id", baseTokenID))
		}

		out = append(out, TrendingPool{
			PoolID:       model.PoolID(d.ID),
			TokenAddress: tokenAddress,
			Symbol:       symbol,
			PriceUSD:     price,
			Volume24hUSD: volume,
		})
	}
	return out, nil
}

// get performs a rate-limited, retrying GET bounded by defaultTimeout per
// attempt (callers may further bound ctx themselves).
func (c *Client) get(ctx context.Context, url string) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("marketdata: %w: rate limiter wait: %v", model.ErrTransient, err)
	}

	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(retryBaseDelay * time.Duration(1<<uint(attempt-1))):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		reqCtx, cancel := context.WithTimeout(ctx, defaultTimeout)
		body, status, err := c.doGet(reqCtx, url)
		cancel()
		if err == nil {
			return body, nil
		}

		lastErr = err
		if status == http.StatusNotFound {
			return nil, fmt.Errorf("marketdata: %w: %s", model.ErrNotFound, url)
		}
		if status == http.StatusTooManyRequests {
			return nil, fmt.Errorf("marketdata: %w: %s", model.ErrRateLimited, url)
		}
		if !isTransient(status, err) {
			return nil, err
		}
		c.logger.Debug("marketdata: retrying transient failure",
			zap.String("url", url), zap.Int("attempt", attempt+1), zap.Error(err))
	}
	return nil, fmt.Errorf("marketdata: %w: %s: %v", model.ErrTransient, url, lastErr)
}

func (c *Client) doGet(ctx context.Context, url string) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, 0, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, err
	}

	if resp.StatusCode >= 300 {
		return nil, resp.StatusCode, fmt.Errorf("marketdata: unexpected status %d for %s", resp.StatusCode, url)
	}
	return body, resp.StatusCode, nil
}

func isTransient(status int, err error) bool {
	if status >= 500 {
		return true
	}
	if status == 0 && err != nil {
		return true // network-level error, no response at all
	}
	return false
}
