// Package indicator implements the pure, deterministic technical
// indicators IndicatorKit exposes: EMA, RSI, ATR, local extrema, and
// fractals. None of these touch I/O; every function is a straight
// transform over a slice of model.Candle or float64.
package indicator

import "dexsurveil/internal/model"

// EMA computes the exponential moving average with smoothing 2/(span+1),
// seeded by the first close. Returns one value per input candle.
func EMA(series []model.Candle, span int) []float64 {
	out := make([]float64, len(series))
	if len(series) == 0 || span <= 0 {
		return out
	}
	k := 2.0 / (float64(span) + 1.0)
	out[0] = series[0].Close
	for i := 1; i < len(series); i++ {
		out[i] = series[i].Close*k + out[i-1]*(1-k)
	}
	return out
}

// RSI computes the Wilder-style relative strength index over the given
// period via a rolling mean of gains and losses. Indices before the
// first full period are zero.
func RSI(series []model.Candle, period int) []float64 {
	out := make([]float64, len(series))
	if len(series) <= period || period <= 0 {
		return out
	}

	var gainSum, lossSum float64
	for i := 1; i <= period; i++ {
		delta := series[i].Close - series[i-1].Close
		if delta > 0 {
			gainSum += delta
		} else {
			lossSum += -delta
		}
	}
	avgGain := gainSum / float64(period)
	avgLoss := lossSum / float64(period)
	out[period] = rsiFromAvg(avgGain, avgLoss)

	for i := period + 1; i < len(series); i++ {
		delta := series[i].Close - series[i-1].Close
		gain, loss := 0.0, 0.0
		if delta > 0 {
			gain = delta
		} else {
			loss = -delta
		}
		avgGain = (avgGain*float64(period-1) + gain) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + loss) / float64(period)
		out[i] = rsiFromAvg(avgGain, avgLoss)
	}
	return out
}

func rsiFromAvg(avgGain, avgLoss float64) float64 {
	if avgLoss == 0 {
		if avgGain == 0 {
			return 50
		}
		return 100
	}
	rs := avgGain / avgLoss
	return 100 - (100 / (1 + rs))
}

// ATR computes the rolling-mean average true range over the given period.
// TrueRange[0] is defined as high-low (no previous close).
func ATR(series []model.Candle, period int) []float64 {
	out := make([]float64, len(series))
	if len(series) == 0 || period <= 0 {
		return out
	}

	tr := make([]float64, len(series))
	tr[0] = series[0].High - series[0].Low
	for i := 1; i < len(series); i++ {
		tr[i] = trueRange(series[i], series[i-1].Close)
	}

	for i := range series {
		start := i - period + 1
		if start < 0 {
			start = 0
		}
		var sum float64
		for j := start; j <= i; j++ {
			sum += tr[j]
		}
		out[i] = sum / float64(i-start+1)
	}
	return out
}

func trueRange(c model.Candle, prevClose float64) float64 {
	hl := c.High - c.Low
	hc := abs(c.High - prevClose)
	lc := abs(c.Low - prevClose)
	m := hl
	if hc > m {
		m = hc
	}
	if lc > m {
		m = lc
	}
	return m
}

func abs(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}

// LocalExtrema returns the indices where values[i] is strictly greater
// (high=true) or strictly less (high=false) than every value in the
// window [i-order, i+order].
func LocalExtrema(values []float64, order int, high bool) []int {
	var out []int
	if order <= 0 {
		return out
	}
	for i := range values {
		if i-order < 0 || i+order >= len(values) {
			continue
		}
		isExtremum := true
		for j := i - order; j <= i+order; j++ {
			if j == i {
				continue
			}
			if high && values[j] >= values[i] {
				isExtremum = false
				break
			}
			if !high && values[j] <= values[i] {
				isExtremum = false
				break
			}
		}
		if isExtremum {
			out = append(out, i)
		}
	}
	return out
}

// FractalHighs and FractalLows return 5-candle (period=5 default) fractal
// indices: the middle candle's high/low is a strict majority extremum
// over the surrounding period-1 candles.
func FractalHighs(high []float64, period int) []int {
	return fractals(high, period, true)
}

func FractalLows(low []float64, period int) []int {
	return fractals(low, period, false)
}

func fractals(values []float64, period int, wantHigh bool) []int {
	if period < 3 || period%2 == 0 {
		period = 5
	}
	half := period / 2
	var out []int
	for i := half; i < len(values)-half; i++ {
		count := 0
		total := 0
		for j := i - half; j <= i+half; j++ {
			if j == i {
				continue
			}
			total++
			if wantHigh && values[i] > values[j] {
				count++
			} else if !wantHigh && values[i] < values[j] {
				count++
			}
		}
		if count == total {
			out = append(out, i)
		}
	}
	return out
}
