// Package strategy implements StrategyEngine: the per-zone finite-state
// machine, origin retest, gem-hunter momentum strategies, and the
// pullback/retest detector, per spec §4.12.
package strategy

import (
	"context"
	"time"

	"dexsurveil/internal/model"
	"dexsurveil/internal/state"
)

type tierThresholds struct {
	approach float64
	breakout float64
}

var thresholdsByTier = map[int]tierThresholds{
	1: {approach: 0.020, breakout: 0.005},
	2: {approach: 0.015, breakout: 0.010},
}

const resetBand = 0.05

// Engine evaluates AnalysisResults against persisted zone state to produce
// candidate Signals.
type Engine struct {
	zoneStates state.ZoneStateStore
}

// New builds an Engine over the given ZoneStateStore.
func New(zoneStates state.ZoneStateStore) *Engine {
	return &Engine{zoneStates: zoneStates}
}

// EvaluateZones walks tier-1 then tier-2 zones in order and returns the
// first state transition that emits a Signal. Zones after the first
// emission are not probed, matching the spec's "first transition wins"
// rule.
func (e *Engine) EvaluateZones(ctx context.Context, tokenAddress string, analysis model.AnalysisResult, now time.Time) (model.Signal, bool, error) {
	price := analysis.Raw.CurrentPrice
	zones := make([]model.Zone, 0, len(analysis.Technical.Tier1)+len(analysis.Technical.Tier2))
	zones = append(zones, analysis.Technical.Tier1...)
	zones = append(zones, analysis.Technical.Tier2...)

	for _, z := range zones {
		if z.LevelPrice == 0 || z.Tier == 0 {
			continue
		}
		th, ok := thresholdsByTier[z.Tier]
		if !ok {
			continue
		}

		distance := (price - z.LevelPrice) / z.LevelPrice
		zs, err := e.zoneStates.Get(ctx, tokenAddress, z.LevelPrice)
		if err != nil {
			return model.Signal{}, false, err
		}

		newState, kind, fires := classify(distance, th)
		if newState == zs.CurrentState {
			continue
		}

		if err := e.zoneStates.Set(ctx, tokenAddress, z.LevelPrice, newState, kind, price, now); err != nil {
			return model.Signal{}, false, err
		}
		if !fires {
			continue
		}

		return model.Signal{
			Kind:            kind,
			TokenAddress:    tokenAddress,
			PoolID:          analysis.Metadata.PoolID,
			Symbol:          analysis.Metadata.Symbol,
			CurrentPrice:    price,
			Level:           z.LevelPrice,
			HasLevel:        true,
			ZoneTier:        z.Tier,
			ZoneScore:       z.Score,
			FinalScore:      z.FinalScore,
			ConfidenceScore: z.FinalScore,
			Timestamp:       now,
			AnalysisResult:  &analysis,
		}, true, nil
	}

	return model.Signal{}, false, nil
}

// classify maps a zone's price distance to its next state and, if that
// transition fires a signal, the signal kind.
func classify(distance float64, th tierThresholds) (model.ZoneMachineState, model.SignalKind, bool) {
	switch {
	case distance > th.breakout && distance < resetBand:
		return model.StateBrokenUp, model.SignalResistanceBreakout, true
	case distance < -th.breakout && distance > -resetBand:
		return model.StateBrokenDown, model.SignalSupportBreakdown, true
	case abs(distance) < th.approach && distance > 0:
		return model.StateApproachingDown, model.SignalApproachingSupport, true
	case abs(distance) < th.approach && distance < 0:
		return model.StateApproachingUp, model.SignalApproachingResistance, true
	default:
		return model.StateIdle, "", false
	}
}

// EvaluateOriginRetest checks the independent origin-retest condition:
// zone_bottom <= price <= 1.1*zone_top.
func EvaluateOriginRetest(tokenAddress string, analysis model.AnalysisResult, now time.Time) (model.Signal, bool) {
	origin := analysis.Technical.Origin
	if origin == nil {
		return model.Signal{}, false
	}
	price := analysis.Raw.CurrentPrice
	if price < origin.ZoneBottom || price > 1.1*origin.ZoneTop {
		return model.Signal{}, false
	}
	return model.Signal{
		Kind:            model.SignalOriginRetest,
		TokenAddress:    tokenAddress,
		PoolID:          analysis.Metadata.PoolID,
		Symbol:          analysis.Metadata.Symbol,
		CurrentPrice:    price,
		ZoneTier:        1,
		FinalScore:      10,
		ConfidenceScore: 10,
		Timestamp:       now,
		AnalysisResult:  &analysis,
	}, true
}

func abs(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}
