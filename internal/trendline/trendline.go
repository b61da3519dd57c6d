// Package trendline finds a recent-peak-anchored descending line with
// touch validation, per spec §4.7.
package trendline

import (
	"dexsurveil/internal/indicator"
	"dexsurveil/internal/model"
)

const (
	extremaOrder       = 4
	recentWindowFrac   = 0.4 // last 60% is "recent" => starts at 40% mark
	minPointGap        = 8
	maxSlope           = 0.0001 // reject slope > this (non-descending)
	breachTolerance    = 0.005
	touchTolerance     = 0.005
	minTouches         = 2
)

// Detect restricts analysis to the last min(150, len) candles and returns
// the highest-scoring descending trendline, or ok=false if none qualifies.
func Detect(candles []model.Candle) (model.Trendline, bool) {
	window := candles
	if len(window) > 150 {
		window = window[len(window)-150:]
	}
	n := len(window)
	if n < minPointGap+1 {
		return model.Trendline{}, false
	}

	highs := make([]float64, n)
	for i, c := range window {
		highs[i] = c.High
	}

	swingIdx := indicator.LocalExtrema(highs, extremaOrder, true)
	if len(swingIdx) == 0 {
		return model.Trendline{}, false
	}

	recentStart := int(float64(n) * (1 - 0.6))
	var recent []int
	for _, idx := range swingIdx {
		if idx >= recentStart {
			recent = append(recent, idx)
		}
	}
	if len(recent) == 0 {
		return model.Trendline{}, false
	}

	anchor := recent[0]
	for _, idx := range recent {
		if highs[idx] > highs[anchor] {
			anchor = idx
		}
	}

	var best model.Trendline
	found := false

	for _, p1 := range recent {
		for _, p2 := range recent {
			if p2 <= p1 || p2-p1 < minPointGap {
				continue
			}
			slope := (highs[p2] - highs[p1]) / float64(p2-p1)
			if slope > maxSlope {
				continue
			}
			intercept := highs[p1] - slope*float64(p1)

			if breaches(highs, p1, p2, slope, intercept) {
				continue
			}

			touches := countTouches(highs, slope, intercept)
			if touches < minTouches {
				continue
			}

			includesAnchor := p1 == anchor || p2 == anchor
			score := scoreLine(touches, includesAnchor, p1, p2, n)

			if !found || score > best.ConfidenceScore {
				best = model.Trendline{
					StartIdx:        p1,
					EndIdx:          p2,
					Slope:           slope,
					Intercept:       intercept,
					Touches:         touches,
					ConfidenceScore: score,
				}
				found = true
			}
		}
	}

	return best, found
}

func breaches(highs []float64, p1, p2 int, slope, intercept float64) bool {
	for i := p1; i <= p2; i++ {
		lineVal := slope*float64(i) + intercept
		if lineVal <= 0 {
			continue
		}
		if (highs[i]-lineVal)/lineVal > breachTolerance {
			return true
		}
	}
	return false
}

func countTouches(highs []float64, slope, intercept float64) int {
	count := 0
	for i, h := range highs {
		lineVal := slope*float64(i) + intercept
		if lineVal <= 0 {
			continue
		}
		if abs(h-lineVal)/lineVal < touchTolerance {
			count++
		}
	}
	return count
}

func scoreLine(touches int, includesAnchor bool, p1, p2, n int) float64 {
	score := 3 * float64(touches)
	if includesAnchor {
		score += 25
	}
	meanIdx := float64(p1+p2) / 2
	score += 10 * (meanIdx / float64(n))
	score += 0.1 * float64(p2-p1)
	return score
}

func abs(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}
