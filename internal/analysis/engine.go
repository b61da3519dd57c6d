// Package analysis orchestrates IndicatorKit, ZoneDetector, Fibonacci,
// and Trendline into an AnalysisResult, per spec §4.8.
package analysis

import (
	"context"
	"fmt"
	"time"

	"dexsurveil/internal/cache"
	"dexsurveil/internal/fibonacci"
	"dexsurveil/internal/indicator"
	"dexsurveil/internal/model"
	"dexsurveil/internal/trendline"
	"dexsurveil/internal/zone"
)

const (
	maxCandles  = 500
	cacheBucket = 5 * time.Minute
)

var minLengthByTimeframe = map[model.Timeframe]int{
	model.TimeframeMinute: 30,
	model.TimeframeHour:   20,
	model.TimeframeDay:    7,
}

// MarketData fetches OHLCV series. Implemented by *marketdata.Client in
// production; faked in tests.
type MarketData interface {
	FetchOHLCV(ctx context.Context, poolID model.PoolID, tf model.Timeframe, aggregate, limit int) (model.CandleSeries, error)
}

// Engine is the AnalysisEngine: cache-then-compute orchestration.
type Engine struct {
	market MarketData
	cache  *cache.TTLCache
}

// New builds an Engine with a 5-minute AnalysisCache TTL.
func New(market MarketData) *Engine {
	return &Engine{market: market, cache: cache.New(cacheBucket)}
}

// NewWithCache builds an Engine with an injected cache (e.g. for tests
// with a controlled clock, or a Redis-backed cache).
func NewWithCache(market MarketData, c *cache.TTLCache) *Engine {
	return &Engine{market: market, cache: c}
}

func cacheKey(poolID model.PoolID, tf model.Timeframe, aggregate int, now time.Time) string {
	bucket := now.Truncate(cacheBucket).Unix()
	return fmt.Sprintf("%s|%s|%d|%d", poolID, tf, aggregate, bucket)
}

// PerformAnalysis returns the AnalysisResult for (poolID, tf, aggregate),
// or ok=false if the input is insufficient (too few candles). Errors are
// reserved for upstream failures; data insufficiency is not an error.
func (e *Engine) PerformAnalysis(ctx context.Context, poolID model.PoolID, tf model.Timeframe, aggregate int, symbol string, now time.Time) (model.AnalysisResult, bool, error) {
	key := cacheKey(poolID, tf, aggregate, now)
	if cached, ok := e.cache.Get(key); ok {
		return cached.(model.AnalysisResult), true, nil
	}

	series, err := e.market.FetchOHLCV(ctx, poolID, tf, aggregate, maxCandles)
	if err != nil {
		return model.AnalysisResult{}, false, err
	}

	minLen := minLengthByTimeframe[tf]
	if minLen == 0 {
		minLen = 20
	}
	if len(series.Candles) < minLen {
		return model.AnalysisResult{}, false, nil
	}

	result, err := e.build(series, poolID, tf, aggregate, symbol, now)
	if err != nil {
		return model.AnalysisResult{}, false, nil
	}

	e.cache.Set(key, result)
	return result, true, nil
}

func (e *Engine) build(series model.CandleSeries, poolID model.PoolID, tf model.Timeframe, aggregate int, symbol string, now time.Time) (model.AnalysisResult, error) {
	candles := series.Candles

	fib, err := fibonacci.Calculate(candles, tf, aggregate)
	if err != nil {
		fib = model.FibonacciLevels{}
	}
	var extensions *model.FibonacciLevels
	if fib.PriceRange > 0 {
		ext := fibonacci.Extensions(fib)
		extensions = &ext
	}

	zones := zone.Detect(series, fib)

	var tl *model.Trendline
	if line, ok := trendline.Detect(candles); ok {
		tl = &line
	}

	ma := model.MovingAverages{}
	if len(candles) >= 50 {
		ma.EMA50 = indicator.EMA(candles, 50)
		ma.HasEMA50 = true
	}
	if len(candles) >= 200 {
		ma.EMA200 = indicator.EMA(candles, 200)
		ma.HasEMA200 = true
	}

	currentPrice, _ := series.CurrentPrice()

	return model.AnalysisResult{
		Metadata: model.AnalysisMetadata{
			PoolID:    poolID,
			Symbol:    symbol,
			Timeframe: tf,
			Aggregate: aggregate,
			Timestamp: now,
		},
		Raw: model.AnalysisRaw{
			Series:       series,
			CurrentPrice: currentPrice,
		},
		Technical: model.Technical{
			Tier1:                zones.Tier1,
			Tier2:                zones.Tier2,
			Tier3:                zones.Tier3,
			Supply:               zones.Supply,
			Demand:               zones.Demand,
			Origin:               zones.Origin,
			Fibonacci:            fib,
			FibonacciExtensions:  extensions,
			Trendline:            tl,
			MA:                   ma,
		},
	}, nil
}
