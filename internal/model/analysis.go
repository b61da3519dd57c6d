package model

import "time"

// MovingAverages carries the optional EMA columns for the analyzed series.
type MovingAverages struct {
	EMA50     []float64
	HasEMA50  bool
	EMA200    []float64
	HasEMA200 bool
}

// Technical is the derived technical-analysis view for one (pool, timeframe).
type Technical struct {
	Tier1 []Zone // len <= 3
	Tier2 []Zone // len <= 3
	Tier3 []Zone // len <= 2
	Supply []Zone
	Demand []Zone

	Origin    *Zone // nil if absent

	Fibonacci           FibonacciLevels
	FibonacciExtensions *FibonacciLevels // nil if absent

	Trendline *Trendline // nil if absent

	MA MovingAverages
}

// AnalysisMetadata identifies which pool/timeframe/aggregate an AnalysisResult covers.
type AnalysisMetadata struct {
	PoolID    PoolID
	Symbol    string
	Timeframe Timeframe
	Aggregate int
	Timestamp time.Time
}

// AnalysisRaw carries the underlying series and latest price.
type AnalysisRaw struct {
	Series       CandleSeries
	CurrentPrice float64
}

// AnalysisResult is the full structured technical-analysis product of
// AnalysisEngine.PerformAnalysis.
type AnalysisResult struct {
	Metadata  AnalysisMetadata
	Raw       AnalysisRaw
	Technical Technical
}
