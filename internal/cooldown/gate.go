// Package cooldown implements CooldownGate.ShouldSuppress per spec §4.13.
package cooldown

import (
	"context"
	"time"

	"dexsurveil/internal/model"
	"dexsurveil/internal/state"
)

const minConfidence = 7

type thresholds struct {
	priceChange float64
	minCooldown time.Duration
}

var (
	gemThresholds     = thresholds{priceChange: 0.10, minCooldown: 30 * time.Minute}
	supportThresholds = thresholds{priceChange: 0.08, minCooldown: time.Hour}
	defaultThresholds = thresholds{priceChange: 0.09, minCooldown: 2 * time.Hour}

	gemSameTypeCooldown = 30 * time.Minute
)

// Gate decides whether a candidate Signal is recent/unchanged enough to
// suppress, consulting an AlertHistoryStore.
type Gate struct {
	history state.AlertHistoryStore
}

// New builds a Gate over the given AlertHistoryStore.
func New(history state.AlertHistoryStore) *Gate {
	return &Gate{history: history}
}

// ShouldSuppress reports whether signal should be withheld given prior
// alert history and its own confidence.
func (g *Gate) ShouldSuppress(ctx context.Context, signal model.Signal) (bool, error) {
	if !g.passesConfidenceFilter(signal) {
		return true, nil
	}

	if signal.Kind.HasLevel() {
		return g.suppressByLevel(ctx, signal)
	}
	return g.suppressBySameType(ctx, signal)
}

func (g *Gate) passesConfidenceFilter(signal model.Signal) bool {
	return signal.ConfidenceScore >= minConfidence || signal.Kind.AlwaysConfident()
}

func (g *Gate) suppressByLevel(ctx context.Context, signal model.Signal) (bool, error) {
	prior, ok, err := g.history.MostRecentByLevel(ctx, signal.TokenAddress, signal.Level)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}

	th := thresholdsFor(signal.Kind)
	elapsed := signal.Timestamp.Sub(prior.Timestamp)
	priceChange := priceChangeFrom(prior.PriceAtAlert, signal.CurrentPrice)

	if elapsed < th.minCooldown && priceChange < th.priceChange {
		return true, nil
	}
	return false, nil
}

func (g *Gate) suppressBySameType(ctx context.Context, signal model.Signal) (bool, error) {
	prior, ok, err := g.history.MostRecentBySignalType(ctx, signal.TokenAddress, signal.Kind)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}
	return signal.Timestamp.Sub(prior.Timestamp) < gemSameTypeCooldown, nil
}

func thresholdsFor(kind model.SignalKind) thresholds {
	switch {
	case kind.IsGem():
		return gemThresholds
	case kind.IsSupportFamily():
		return supportThresholds
	default:
		return defaultThresholds
	}
}

func priceChangeFrom(prior, current float64) float64 {
	if prior == 0 {
		return 0
	}
	change := (current - prior) / prior
	if change < 0 {
		change = -change
	}
	return change
}
