package analysis

import (
	"context"
	"errors"
	"testing"
	"time"

	"dexsurveil/internal/model"
)

type fakeMarket struct {
	series model.CandleSeries
	err    error
	calls  int
}

func (f *fakeMarket) FetchOHLCV(ctx context.Context, poolID model.PoolID, tf model.Timeframe, aggregate, limit int) (model.CandleSeries, error) {
	f.calls++
	return f.series, f.err
}

func hourlySeries(n int) []model.Candle {
	out := make([]model.Candle, n)
	price := 1.0
	for i := 0; i < n; i++ {
		out[i] = model.Candle{
			Timestamp: int64(i * 3600),
			Open:      price,
			Close:     price,
			High:      price + 0.01,
			Low:       price - 0.01,
			Volume:    10,
		}
		price += 0.001
	}
	return out
}

func TestPerformAnalysisInsufficientDataReturnsAbsent(t *testing.T) {
	market := &fakeMarket{series: model.CandleSeries{Candles: hourlySeries(5)}}
	e := New(market)

	_, ok, err := e.PerformAnalysis(context.Background(), "solana_abc", model.TimeframeHour, 1, "FOO", time.Unix(0, 0))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatalf("expected absent result for too-short series")
	}
}

func TestPerformAnalysisBuildsResultAndCaches(t *testing.T) {
	market := &fakeMarket{series: model.CandleSeries{Candles: hourlySeries(60)}}
	e := New(market)
	now := time.Unix(0, 0)

	result, ok, err := e.PerformAnalysis(context.Background(), "solana_abc", model.TimeframeHour, 1, "FOO", now)
	if err != nil || !ok {
		t.Fatalf("expected a result, got ok=%v err=%v", ok, err)
	}
	if result.Metadata.Symbol != "FOO" {
		t.Fatalf("unexpected metadata: %+v", result.Metadata)
	}

	if _, _, err := e.PerformAnalysis(context.Background(), "solana_abc", model.TimeframeHour, 1, "FOO", now.Add(time.Minute)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if market.calls != 1 {
		t.Fatalf("expected cache hit on second call, got %d fetch calls", market.calls)
	}
}

func TestPerformAnalysisPropagatesUpstreamError(t *testing.T) {
	market := &fakeMarket{err: errors.New("boom")}
	e := New(market)

	_, ok, err := e.PerformAnalysis(context.Background(), "solana_abc", model.TimeframeHour, 1, "FOO", time.Unix(0, 0))
	if err == nil {
		t.Fatalf("expected upstream error to propagate")
	}
	if ok {
		t.Fatalf("expected ok=false on error")
	}
}
