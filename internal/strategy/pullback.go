package strategy

import (
	"time"

	"dexsurveil/internal/model"
)

const (
	pullbackLookbackStart = 30
	pullbackLookbackEnd   = 5
	pullbackRetraceBand   = 0.03
	pullbackConfidence    = 8
)

// EvaluatePullbackRetest detects that a recent resistance (the max high
// over [-30,-5]) was later exceeded, price has since retraced to within
// ±3% of that level, and current price is again above it.
func EvaluatePullbackRetest(tokenAddress string, poolID model.PoolID, symbol string, candles []model.Candle, now time.Time) (model.Signal, bool) {
	n := len(candles)
	if n < pullbackLookbackStart+1 {
		return model.Signal{}, false
	}

	window := candles[n-pullbackLookbackStart : n-pullbackLookbackEnd]
	resistance := window[0].High
	for _, c := range window {
		if c.High > resistance {
			resistance = c.High
		}
	}
	if resistance <= 0 {
		return model.Signal{}, false
	}

	exceeded := false
	for _, c := range candles[n-pullbackLookbackEnd:] {
		if c.High > resistance {
			exceeded = true
			break
		}
	}
	if !exceeded {
		return model.Signal{}, false
	}

	current := candles[n-1]
	retraced := false
	for _, c := range candles[n-pullbackLookbackEnd:] {
		if abs(c.Close-resistance)/resistance <= pullbackRetraceBand {
			retraced = true
			break
		}
	}
	if !retraced || current.Close <= resistance {
		return model.Signal{}, false
	}

	return model.Signal{
		Kind:            model.SignalPullbackRetest,
		TokenAddress:    tokenAddress,
		PoolID:          poolID,
		Symbol:          symbol,
		CurrentPrice:    current.Close,
		Level:           resistance,
		HasLevel:        true,
		ConfidenceScore: pullbackConfidence,
		FinalScore:      pullbackConfidence,
		Timestamp:       now,
	}, true
}
