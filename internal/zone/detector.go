// Package zone implements ZoneDetector: swing-point clustering, touch/
// reaction/volume scoring, origin-zone detection for new tokens, and
// confluence scoring against Fibonacci levels, per spec §4.5.
//
// Grounded on original_source/backups/zone_config.py's constants
// (ORIGIN_CONSOLIDATION_MIN, ORIGIN_RANGE_MAX, ORIGIN_PUMP_MIN, the
// scoring weights) and original_source's max-major-zones ceiling,
// applied here as a per-side candidate cap before the top-3 per-side cut.
package zone

import (
	"sort"

	"dexsurveil/internal/fibonacci"
	"dexsurveil/internal/indicator"
	"dexsurveil/internal/model"
)

const (
	originConsolidationMin = 20
	originRangeMax         = 0.5
	originPumpMin          = 0.5
	originMaxAgeSeconds    = 30 * 24 * 3600
	originMaxSeriesLen     = 500

	touchTolerance = 0.005
	minZoneScore   = 1.5
	dedupeTolerance = 0.03
	maxKeptPerSide  = 3

	weightTouches  = 0.30
	weightReaction = 0.25
	weightVolume   = 0.20
	weightSRFlip   = 0.15

	confluenceTolerance      = 0.035
	newTokenConfluenceWiden  = 0.10
	newTokenAgeSeconds       = 48 * 3600
	newTokenLeniencyMinScore = 1.0

	maxMajorZoneCandidates = 7 // original_source zone_config.MAX_MAJOR_ZONES
)

var confluenceRatios = []float64{0.236, 0.382, 0.5, 0.618, 0.786}
var confluenceWeights = map[float64]float64{
	0.236: 1.2,
	0.382: 2.0,
	0.5:   1.8,
	0.618: 2.5,
	0.786: 1.5,
}

// Result bundles every zone family ZoneDetector produces for one series.
type Result struct {
	Tier1  []model.Zone
	Tier2  []model.Zone
	Tier3  []model.Zone
	Supply []model.Zone
	Demand []model.Zone
	Origin *model.Zone
}

// Detect runs the full zone-detection pipeline for one candle series.
func Detect(series model.CandleSeries, fib model.FibonacciLevels) Result {
	candles := series.Candles
	n := len(candles)
	if n == 0 {
		return Result{}
	}

	ageSeconds := series.AgeSeconds()
	newToken := ageSeconds < newTokenAgeSeconds

	var origin *model.Zone
	if ageSeconds <= originMaxAgeSeconds && n <= originMaxSeriesLen {
		origin = detectOrigin(candles)
	}

	supply, demand := detectSwingZones(candles, series.Timeframe, series.Aggregate)

	applyConfluence(supply, fib, newToken)
	applyConfluence(demand, fib, newToken)

	tier1, tier2, tier3 := tierize(supply, demand)

	if origin != nil {
		*origin = model.Zone{
			Kind:                 model.ZoneOrigin,
			IsOrigin:             true,
			LevelPrice:           origin.ZoneTop,
			FinalScore:           10,
			Score:                10,
			Tier:                 1,
			ZoneBottom:           origin.ZoneBottom,
			ZoneTop:              origin.ZoneTop,
			PumpPercent:          origin.PumpPercent,
			ConsolidationCandles: origin.ConsolidationCandles,
		}
		tier1 = append([]model.Zone{*origin}, tier1...)
		if len(tier1) > 3 {
			tier1 = tier1[:3]
		}
	}

	return Result{
		Tier1:  tier1,
		Tier2:  tier2,
		Tier3:  tier3,
		Supply: supply,
		Demand: demand,
		Origin: origin,
	}
}

func detectOrigin(candles []model.Candle) *model.Zone {
	lowIdx := 0
	for i, c := range candles {
		if c.Low < candles[lowIdx].Low {
			lowIdx = i
		}
	}

	windowEnd := lowIdx + originConsolidationMin
	if windowEnd > len(candles) {
		return nil
	}
	// Extend the window while the next candle stays inside the consolidation
	// range, still leaving room for a post-window peak.
	for windowEnd < len(candles)-1 && windowEnd-lowIdx <= originConsolidationMin*3 {
		hi, lo := candles[windowEnd].High, candles[windowEnd].Low
		for _, c := range candles[lowIdx:windowEnd] {
			hi, lo = max(hi, c.High), min(lo, c.Low)
		}
		if lo <= 0 || (hi-lo)/lo > originRangeMax {
			break
		}
		windowEnd++
	}

	window := candles[lowIdx:windowEnd]
	rangeHigh, rangeLow := window[0].High, window[0].Low
	for _, c := range window {
		if c.High > rangeHigh {
			rangeHigh = c.High
		}
		if c.Low < rangeLow {
			rangeLow = c.Low
		}
	}
	if rangeLow <= 0 {
		return nil
	}
	if (rangeHigh-rangeLow)/rangeLow > originRangeMax {
		return nil
	}

	post := candles[windowEnd:]
	if len(post) == 0 {
		return nil
	}
	postPeak := post[0].High
	for _, c := range post {
		if c.High > postPeak {
			postPeak = c.High
		}
	}
	pumpPercent := postPeak/rangeHigh - 1
	if pumpPercent < originPumpMin {
		return nil
	}

	return &model.Zone{
		ZoneBottom:           rangeLow,
		ZoneTop:              rangeHigh,
		PumpPercent:          pumpPercent,
		ConsolidationCandles: len(window),
	}
}

func extremaOrder(tf model.Timeframe, aggregate, n int) int {
	if tf == model.TimeframeMinute {
		if aggregate <= 5 {
			return 2
		}
		if aggregate <= 15 {
			return 3
		}
	}
	if n < 100 {
		return 3
	}
	return 5
}

func detectSwingZones(candles []model.Candle, tf model.Timeframe, aggregate int) (supply, demand []model.Zone) {
	n := len(candles)
	if n == 0 {
		return nil, nil
	}

	order := extremaOrder(tf, aggregate, n)
	margin := n / 4
	if margin > 5 {
		margin = 5
	}

	highs := make([]float64, n)
	lows := make([]float64, n)
	volumes := make([]float64, n)
	var volSum float64
	for i, c := range candles {
		highs[i] = c.High
		lows[i] = c.Low
		volumes[i] = c.Volume
		volSum += c.Volume
	}
	avgVolume := volSum / float64(n)

	atr := indicator.ATR(candles, 14)

	peakIdx := indicator.LocalExtrema(highs, order, true)
	troughIdx := indicator.LocalExtrema(lows, order, false)

	minTouches := 2
	if n < 100 {
		minTouches = 1
	}

	buildZones := func(indices []int, kind model.ZoneKind, price func(int) float64) []model.Zone {
		var candidates []model.Zone
		for _, idx := range indices {
			if idx < margin || idx >= n-margin {
				continue
			}
			level := price(idx)
			if level <= 0 {
				continue
			}
			touches, meanReaction := scoreTouches(candles, atr, level)
			if touches < minTouches {
				continue
			}
			volRatio := volumes[idx] / avgVolume
			score := clampedWeight(float64(touches), 10, weightTouches) +
				clampedWeight(meanReaction, 10, weightReaction) +
				clampedWeight(volRatio, 10, weightVolume)
			if touches > 3 {
				score += 3 * weightSRFlip
			}
			if score < minZoneScore {
				continue
			}
			candidates = append(candidates, model.Zone{
				Kind:       kind,
				LevelPrice: level,
				Score:      score,
				Touches:    touches,
			})
		}
		return dedupeAndRank(candidates)
	}

	supply = buildZones(peakIdx, model.ZoneSupply, func(i int) float64 { return highs[i] })
	demand = buildZones(troughIdx, model.ZoneDemand, func(i int) float64 { return lows[i] })

	if len(supply) > maxMajorZoneCandidates {
		supply = supply[:maxMajorZoneCandidates]
	}
	if len(demand) > maxMajorZoneCandidates {
		demand = demand[:maxMajorZoneCandidates]
	}
	if len(supply) > maxKeptPerSide {
		supply = supply[:maxKeptPerSide]
	}
	if len(demand) > maxKeptPerSide {
		demand = demand[:maxKeptPerSide]
	}
	return supply, demand
}

func clampedWeight(v, ceiling, weight float64) float64 {
	if v > ceiling {
		v = ceiling
	}
	return v * weight
}

func scoreTouches(candles []model.Candle, atr []float64, level float64) (touches int, meanReaction float64) {
	var reactionSum float64
	for i, c := range candles {
		if level == 0 {
			continue
		}
		if abs(c.Close-level)/level < touchTolerance {
			touches++
			if i+5 < len(candles) && atr[i] > 0 {
				reactionSum += abs(candles[i+5].Close-level) / atr[i]
			}
		}
	}
	if touches > 0 {
		meanReaction = reactionSum / float64(touches)
	}
	return touches, meanReaction
}

func dedupeAndRank(zones []model.Zone) []model.Zone {
	sort.SliceStable(zones, func(i, j int) bool { return zones[i].Score > zones[j].Score })
	var kept []model.Zone
	for _, z := range zones {
		dup := false
		for _, k := range kept {
			if k.LevelPrice == 0 {
				continue
			}
			if abs(z.LevelPrice-k.LevelPrice)/k.LevelPrice < dedupeTolerance {
				dup = true
				break
			}
		}
		if !dup {
			kept = append(kept, z)
		}
	}
	return kept
}

func applyConfluence(zones []model.Zone, fib model.FibonacciLevels, newToken bool) {
	tolerance := confluenceTolerance
	if newToken {
		tolerance = newTokenConfluenceWiden
	}
	for i := range zones {
		z := &zones[i]
		var bonus float64
		var matched []float64
		for _, ratio := range confluenceRatios {
			fibPrice, ok := fib.Levels[ratio]
			if !ok || z.LevelPrice == 0 {
				continue
			}
			if abs(z.LevelPrice-fibPrice)/z.LevelPrice < tolerance {
				bonus += confluenceWeights[ratio]
				matched = append(matched, ratio)
			}
		}
		z.ConfluenceBonus = bonus
		z.MatchedFibs = matched
		z.FinalScore = z.Score + bonus
		z.Tier = tierFor(z.FinalScore)
		if newToken && len(matched) > 0 && z.Score >= newTokenLeniencyMinScore && z.Tier > 1 {
			z.Tier--
		}
	}
}

func tierFor(finalScore float64) int {
	if finalScore >= 7 {
		return 1
	}
	if finalScore >= 3 {
		return 2
	}
	return 3
}

func tierize(supply, demand []model.Zone) (tier1, tier2, tier3 []model.Zone) {
	all := append(append([]model.Zone{}, supply...), demand...)
	sort.SliceStable(all, func(i, j int) bool { return all[i].FinalScore > all[j].FinalScore })
	for _, z := range all {
		switch z.Tier {
		case 1:
			if len(tier1) < 3 {
				tier1 = append(tier1, z)
			}
		case 2:
			if len(tier2) < 3 {
				tier2 = append(tier2, z)
			}
		default:
			if len(tier3) < 2 {
				tier3 = append(tier3, z)
			}
		}
	}
	return tier1, tier2, tier3
}

// ConfluenceInput computes the Fibonacci levels that Detect takes for a
// candle series.
func ConfluenceInput(candles []model.Candle, tf model.Timeframe, aggregate int) (model.FibonacciLevels, error) {
	return fibonacci.Calculate(candles, tf, aggregate)
}

func abs(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}
