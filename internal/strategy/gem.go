// Volume-spike and consolidation-breakout thresholds are grounded on
// internal/detectors/momentum.go's volume-ratio/breakout constants,
// carried over from tick-level trade bursts to 5-minute candle volume.
package strategy

import (
	"time"

	"dexsurveil/internal/indicator"
	"dexsurveil/internal/model"
)

const (
	gemVolumeSpikeMultiple   = 4.0
	gemPrefilterDropFraction = 1.25 // >20% drop in the last hour (12 five-minute candles)
	gemConsolidationWindow   = 12
	gemConsolidationRange    = 0.20
	gemConsolidationVolumeX  = 2.0
	gemMomentumLookback      = 6
	gemMomentumThreshold     = 0.20
)

// EvaluateGemStrategies runs the age-selected "gem hunter" momentum
// strategies over a 5-minute candle series. Returns the first strategy
// that fires, or ok=false. The pre-filter aborts all three strategies if
// price dropped more than 20% over the last 12 candles.
func EvaluateGemStrategies(tokenAddress string, poolID model.PoolID, symbol string, candles []model.Candle, now time.Time) (model.Signal, bool) {
	n := len(candles)
	if n < gemConsolidationWindow+1 {
		return model.Signal{}, false
	}

	current := candles[n-1]
	if n > gemConsolidationWindow {
		priorClose := candles[n-gemConsolidationWindow].Close
		if priorClose > 0 && priorClose/current.Close > gemPrefilterDropFraction {
			return model.Signal{}, false
		}
	}

	if sig, ok := volumeSpike(tokenAddress, poolID, symbol, candles, now); ok {
		return sig, true
	}
	if sig, ok := consolidationBreakout(tokenAddress, poolID, symbol, candles, now); ok {
		return sig, true
	}
	if sig, ok := momentum(tokenAddress, poolID, symbol, candles, now); ok {
		return sig, true
	}
	return model.Signal{}, false
}

func volumeSpike(tokenAddress string, poolID model.PoolID, symbol string, candles []model.Candle, now time.Time) (model.Signal, bool) {
	n := len(candles)
	if n < 10 {
		return model.Signal{}, false
	}
	current := candles[n-1]

	var sum float64
	for _, c := range candles[n-10 : n-1] {
		sum += c.Volume
	}
	mean := sum / 9
	if mean <= 0 || current.Volume <= gemVolumeSpikeMultiple*mean {
		return model.Signal{}, false
	}

	ema50 := indicator.EMA(candles, 50)
	if len(ema50) > 0 && current.Close < ema50[len(ema50)-1] {
		return model.Signal{}, false
	}

	return model.Signal{
		Kind:            model.SignalGemVolumeSpike,
		TokenAddress:    tokenAddress,
		PoolID:          poolID,
		Symbol:          symbol,
		CurrentPrice:    current.Close,
		ConfidenceScore: 8,
		Timestamp:       now,
	}, true
}

func consolidationBreakout(tokenAddress string, poolID model.PoolID, symbol string, candles []model.Candle, now time.Time) (model.Signal, bool) {
	n := len(candles)
	if n < gemConsolidationWindow+1 {
		return model.Signal{}, false
	}
	window := candles[n-1-gemConsolidationWindow : n-1]
	current := candles[n-1]

	high, low := window[0].High, window[0].Low
	var volSum float64
	for _, c := range window {
		if c.High > high {
			high = c.High
		}
		if c.Low < low {
			low = c.Low
		}
		volSum += c.Volume
	}
	if current.Close <= 0 || (high-low)/current.Close >= gemConsolidationRange {
		return model.Signal{}, false
	}
	if current.Close <= high {
		return model.Signal{}, false
	}
	meanVol := volSum / float64(len(window))
	if meanVol <= 0 || current.Volume < gemConsolidationVolumeX*meanVol {
		return model.Signal{}, false
	}

	return model.Signal{
		Kind:            model.SignalGemConsolidation,
		TokenAddress:    tokenAddress,
		PoolID:          poolID,
		Symbol:          symbol,
		CurrentPrice:    current.Close,
		ConfidenceScore: 8,
		Timestamp:       now,
	}, true
}

func momentum(tokenAddress string, poolID model.PoolID, symbol string, candles []model.Candle, now time.Time) (model.Signal, bool) {
	n := len(candles)
	if n < gemMomentumLookback+1 {
		return model.Signal{}, false
	}
	current := candles[n-1]
	past := candles[n-gemMomentumLookback]
	if past.Close <= 0 {
		return model.Signal{}, false
	}
	if current.Close/past.Close-1 < gemMomentumThreshold {
		return model.Signal{}, false
	}

	return model.Signal{
		Kind:            model.SignalGemMomentum,
		TokenAddress:    tokenAddress,
		PoolID:          poolID,
		Symbol:          symbol,
		CurrentPrice:    current.Close,
		ConfidenceScore: 8,
		Timestamp:       now,
	}, true
}
