// Package model holds the domain value types shared across the analysis
// and signal pipeline: candles, zones, Fibonacci levels, trendlines,
// analysis results, and the persisted watchlist/state/alert records.
package model

import (
	"errors"
	"fmt"
)

// Timeframe is the candle granularity family requested from MarketDataClient.
type Timeframe string

const (
	TimeframeMinute Timeframe = "minute"
	TimeframeHour   Timeframe = "hour"
	TimeframeDay    Timeframe = "day"
)

// Candle is one OHLCV bar. Immutable once ingested.
type Candle struct {
	Timestamp int64 // unix seconds
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
}

// Validate checks the wick-body invariant and non-negative volume.
func (c Candle) Validate() error {
	if c.Volume < 0 {
		return fmt.Errorf("candle at %d: negative volume %f", c.Timestamp, c.Volume)
	}
	lo, hi := c.Open, c.Close
	if lo > hi {
		lo, hi = hi, lo
	}
	if c.Low > lo || hi > c.High {
		return fmt.Errorf("candle at %d: wick-body invariant violated (low=%f open=%f close=%f high=%f)",
			c.Timestamp, c.Low, c.Open, c.Close, c.High)
	}
	return nil
}

// ErrNonMonotonic is returned by CandleSeries validation when timestamps
// do not strictly increase.
var ErrNonMonotonic = errors.New("candle series: timestamps not strictly increasing")

// CandleSeries is an ordered, strictly-increasing-timestamp run of candles
// for a given (timeframe, aggregate). EMA50/EMA200 are optional columns;
// AnalysisEngine leaves them empty and reports its EMAs in Technical.MA.
type CandleSeries struct {
	Pool      string
	Timeframe Timeframe
	Aggregate int
	Candles   []Candle
	EMA50     []float64 // optional; not filled by AnalysisEngine
	EMA200    []float64 // optional; not filled by AnalysisEngine
}

// Validate enforces strictly increasing timestamps and per-candle invariants.
func (s CandleSeries) Validate() error {
	for i, c := range s.Candles {
		if err := c.Validate(); err != nil {
			return err
		}
		if i > 0 && c.Timestamp <= s.Candles[i-1].Timestamp {
			return ErrNonMonotonic
		}
	}
	return nil
}

func (s CandleSeries) Len() int { return len(s.Candles) }

func (s CandleSeries) CurrentPrice() (float64, bool) {
	if len(s.Candles) == 0 {
		return 0, false
	}
	return s.Candles[len(s.Candles)-1].Close, true
}

// AgeSeconds is the span between the first and last candle timestamps.
func (s CandleSeries) AgeSeconds() int64 {
	if len(s.Candles) < 2 {
		return 0
	}
	return s.Candles[len(s.Candles)-1].Timestamp - s.Candles[0].Timestamp
}

// PoolID is "<network>_<address>", split at the first underscore.
type PoolID string

func (p PoolID) Split() (network, address string, ok bool) {
	s := string(p)
	for i := 0; i < len(s); i++ {
		if s[i] == '_' {
			return s[:i], s[i+1:], true
		}
	}
	return "", "", false
}
