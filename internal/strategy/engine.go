package strategy

import (
	"context"
	"time"

	"dexsurveil/internal/model"
)

// Evaluate composes the zone state machine, origin retest, and pullback
// retest into one call: the Scanner's full-analysis path (§4.14 step d,
// "else" branch). Gem strategies are evaluated separately via
// EvaluateGemStrategies against the candles of the routed timeframe, per
// the Scanner's age-based dispatch.
func (e *Engine) Evaluate(ctx context.Context, tokenAddress string, analysis model.AnalysisResult, now time.Time) (model.Signal, bool, error) {
	if sig, ok, err := e.EvaluateZones(ctx, tokenAddress, analysis, now); err != nil || ok {
		return sig, ok, err
	}
	if sig, ok := EvaluateOriginRetest(tokenAddress, analysis, now); ok {
		return sig, true, nil
	}
	if sig, ok := EvaluatePullbackRetest(tokenAddress, analysis.Metadata.PoolID, analysis.Metadata.Symbol, analysis.Raw.Series.Candles, now); ok {
		return sig, true, nil
	}
	return model.Signal{}, false, nil
}
