// Package router picks a candle timeframe family for a pool by probing
// its 1-hour series, per spec §4.9.
package router

import (
	"context"

	"dexsurveil/internal/model"
)

// Probe fetches an hourly series; the router only needs its length and a
// daily-probe length to decide. Implemented by *marketdata.Client in
// production; faked in tests.
type Probe interface {
	FetchOHLCV(ctx context.Context, poolID model.PoolID, tf model.Timeframe, aggregate, limit int) (model.CandleSeries, error)
}

const probeLimit = 500

// PickTimeframe probes the hourly series (and, when long enough, the daily
// series) and returns the timeframe/aggregate to analyze on, plus the
// hourly probe candles (reused by the caller to avoid re-fetching). On any
// probe failure it returns (hour, 4) and ok=false.
func PickTimeframe(ctx context.Context, probe Probe, poolID model.PoolID) (tf model.Timeframe, aggregate int, candles []model.Candle, ok bool) {
	hourly, err := probe.FetchOHLCV(ctx, poolID, model.TimeframeHour, 1, probeLimit)
	if err != nil || len(hourly.Candles) == 0 {
		return model.TimeframeHour, 4, nil, false
	}

	n := len(hourly.Candles)
	if n >= probeLimit {
		daily, err := probe.FetchOHLCV(ctx, poolID, model.TimeframeDay, 1, probeLimit)
		if err != nil {
			return model.TimeframeHour, 4, nil, false
		}
		switch {
		case len(daily.Candles) >= 90:
			return model.TimeframeHour, 12, hourly.Candles, true
		case len(daily.Candles) >= 30:
			return model.TimeframeHour, 4, hourly.Candles, true
		default:
			return model.TimeframeHour, 1, hourly.Candles, true
		}
	}

	hoursSpan := float64(n)
	switch {
	case hoursSpan/24 < 1:
		return model.TimeframeMinute, 5, hourly.Candles, true
	case hoursSpan/24 < 3:
		return model.TimeframeMinute, 15, hourly.Candles, true
	default:
		return model.TimeframeHour, 1, hourly.Candles, true
	}
}
