// Package fibonacci computes retracement and extension levels over a
// lookback window, grounded on the ratio table the original scanner's
// analysis engine used (see original_source/backups/analysis_engine.py).
package fibonacci

import (
	"errors"

	"dexsurveil/internal/model"
)

// ErrFlatRange is returned when high <= low over the lookback window.
var ErrFlatRange = errors.New("fibonacci: high/low range is non-positive")

var fullRatios = []float64{0, 0.236, 0.382, 0.5, 0.618, 0.786, 1.0}
var reducedRatios = []float64{0, 0.382, 0.5, 0.618, 1.0}
var extensionRatios = []float64{1.272, 1.618, 2.0, 2.618}

// Calculate computes retracement levels over the last min(len(series), 400)
// candles. Sub-30-minute timeframes use the reduced ratio set.
func Calculate(candles []model.Candle, tf model.Timeframe, aggregate int) (model.FibonacciLevels, error) {
	window := candles
	if len(window) > 400 {
		window = window[len(window)-400:]
	}
	if len(window) == 0 {
		return model.FibonacciLevels{}, ErrFlatRange
	}

	high, low := window[0].High, window[0].Low
	for _, c := range window[1:] {
		if c.High > high {
			high = c.High
		}
		if c.Low < low {
			low = c.Low
		}
	}

	priceRange := high - low
	if priceRange <= 0 {
		return model.FibonacciLevels{}, ErrFlatRange
	}

	ratios := fullRatios
	if isSubThirtyMinute(tf, aggregate) {
		ratios = reducedRatios
	}

	levels := make(map[float64]float64, len(ratios))
	for _, r := range ratios {
		levels[r] = high - priceRange*r
	}

	return model.FibonacciLevels{
		HighPoint:  high,
		LowPoint:   low,
		PriceRange: priceRange,
		Levels:     levels,
	}, nil
}

// Extensions computes extension levels above HighPoint for ratios
// {1.272, 1.618, 2.0, 2.618}.
func Extensions(base model.FibonacciLevels) model.FibonacciLevels {
	levels := make(map[float64]float64, len(extensionRatios))
	for _, r := range extensionRatios {
		levels[r] = base.HighPoint + base.PriceRange*(r-1)
	}
	return model.FibonacciLevels{
		HighPoint:  base.HighPoint,
		LowPoint:   base.LowPoint,
		PriceRange: base.PriceRange,
		Levels:     levels,
	}
}

func isSubThirtyMinute(tf model.Timeframe, aggregate int) bool {
	return tf == model.TimeframeMinute && aggregate < 30
}
