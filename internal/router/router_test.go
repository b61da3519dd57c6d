package router

import (
	"context"
	"errors"
	"testing"

	"dexsurveil/internal/model"
)

type fakeProbe struct {
	hourlyLen int
	dailyLen  int
	failErr   error
}

func (f *fakeProbe) FetchOHLCV(ctx context.Context, poolID model.PoolID, tf model.Timeframe, aggregate, limit int) (model.CandleSeries, error) {
	if f.failErr != nil {
		return model.CandleSeries{}, f.failErr
	}
	n := f.hourlyLen
	if tf == model.TimeframeDay {
		n = f.dailyLen
	}
	candles := make([]model.Candle, n)
	for i := range candles {
		candles[i] = model.Candle{Timestamp: int64(i), Open: 1, Close: 1, High: 1, Low: 1}
	}
	return model.CandleSeries{Timeframe: tf, Candles: candles}, nil
}

func TestPickTimeframeNoDataFails(t *testing.T) {
	probe := &fakeProbe{hourlyLen: 0}
	tf, ag, candles, ok := PickTimeframe(context.Background(), probe, "solana_abc")
	if ok || tf != model.TimeframeHour || ag != 4 || candles != nil {
		t.Fatalf("expected failure fallback, got tf=%v ag=%d ok=%v", tf, ag, ok)
	}
}

func TestPickTimeframeShortSeriesPicksFineMinuteGranularity(t *testing.T) {
	probe := &fakeProbe{hourlyLen: 10}
	tf, ag, _, ok := PickTimeframe(context.Background(), probe, "solana_abc")
	if !ok || tf != model.TimeframeMinute || ag != 5 {
		t.Fatalf("expected (minute,5), got tf=%v ag=%d ok=%v", tf, ag, ok)
	}
}

func TestPickTimeframeLongSeriesWithDeepHistoryPicksHour12(t *testing.T) {
	probe := &fakeProbe{hourlyLen: 500, dailyLen: 120}
	tf, ag, _, ok := PickTimeframe(context.Background(), probe, "solana_abc")
	if !ok || tf != model.TimeframeHour || ag != 12 {
		t.Fatalf("expected (hour,12), got tf=%v ag=%d ok=%v", tf, ag, ok)
	}
}

func TestPickTimeframeProbeErrorFallsBack(t *testing.T) {
	probe := &fakeProbe{failErr: errors.New("boom")}
	tf, ag, _, ok := PickTimeframe(context.Background(), probe, "solana_abc")
	if ok || tf != model.TimeframeHour || ag != 4 {
		t.Fatalf("expected fallback, got tf=%v ag=%d ok=%v", tf, ag, ok)
	}
}
