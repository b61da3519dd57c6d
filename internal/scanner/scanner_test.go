package scanner

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"dexsurveil/internal/analysis"
	"dexsurveil/internal/chatsink"
	"dexsurveil/internal/config"
	"dexsurveil/internal/cooldown"
	"dexsurveil/internal/marketdata"
	"dexsurveil/internal/model"
	"dexsurveil/internal/state"
	"dexsurveil/internal/strategy"
)

func flatHourly(n int) []model.Candle {
	out := make([]model.Candle, n)
	for i := 0; i < n; i++ {
		out[i] = model.Candle{Timestamp: int64(i * 3600), Open: 1, Close: 1, High: 1.001, Low: 0.999, Volume: 10}
	}
	return out
}

func momentumMinutes(n int) []model.Candle {
	out := make([]model.Candle, n)
	for i := 0; i < n; i++ {
		out[i] = model.Candle{Timestamp: int64(i * 300), Open: 1, Close: 1, High: 1.001, Low: 0.999, Volume: 10}
	}
	out[n-1].Close = 1.25
	out[n-1].High = 1.26
	return out
}

func droppedHourly(n int) []model.Candle {
	out := flatHourly(n)
	for i := 0; i < n-3; i++ {
		out[i].Open, out[i].Close, out[i].High, out[i].Low = 10, 10, 10.01, 9.99
	}
	return out
}

type fakeMarket struct {
	poolMeta   marketdata.PoolMeta
	athDropped bool
}

func (f *fakeMarket) FetchOHLCV(ctx context.Context, poolID model.PoolID, tf model.Timeframe, aggregate, limit int) (model.CandleSeries, error) {
	switch tf {
	case model.TimeframeMinute:
		return model.CandleSeries{Pool: string(poolID), Timeframe: tf, Aggregate: aggregate, Candles: momentumMinutes(40)}, nil
	default:
		if f.athDropped {
			return model.CandleSeries{Pool: string(poolID), Timeframe: tf, Aggregate: aggregate, Candles: droppedHourly(20)}, nil
		}
		return model.CandleSeries{Pool: string(poolID), Timeframe: tf, Aggregate: aggregate, Candles: flatHourly(20)}, nil
	}
}

func (f *fakeMarket) FetchPoolMeta(ctx context.Context, poolID model.PoolID) (marketdata.PoolMeta, error) {
	return f.poolMeta, nil
}

func (f *fakeMarket) FetchTrendingPools(ctx context.Context, network string, limit int) ([]marketdata.TrendingPool, error) {
	return nil, nil
}

type capturingSink struct {
	captions []string
}

func (s *capturingSink) SendText(ctx context.Context, chatID, text, replyTo string) (string, error) {
	s.captions = append(s.captions, text)
	return "msg-1", nil
}

func (s *capturingSink) SendPhoto(ctx context.Context, chatID string, photo []byte, caption, replyTo string) (string, error) {
	return "", chatsink.ErrDisabled
}

func buildScanner(market *fakeMarket, sink *capturingSink, watchlist state.WatchlistStore) *Scanner {
	logger := zap.NewNop()
	cfg := config.Default()

	analysisEngine := analysis.New(market)
	strategyEngine := strategy.New(state.NewMemoryZoneStateStore())
	alerts := state.NewMemoryAlertHistoryStore()
	gate := cooldown.New(alerts)

	return New(cfg, logger, market, nil, analysisEngine, strategyEngine, gate, watchlist, alerts, sink)
}

func TestTickSkipsRuggedTokenBeforeAnalysis(t *testing.T) {
	market := &fakeMarket{poolMeta: marketdata.PoolMeta{Volume24h: 1}, athDropped: true} // deep ATH drop + far below the volume floor
	sink := &capturingSink{}
	watchlist := state.NewMemoryWatchlistStore()
	_ = watchlist.Upsert(context.Background(), model.TokenRecord{Address: "tok1", Symbol: "FOO", PoolID: "solana_tok1"})

	s := buildScanner(market, sink, watchlist)
	if err := s.Tick(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	rec, ok, _ := watchlist.Get(context.Background(), "tok1")
	if !ok {
		t.Fatalf("expected watchlist record to exist")
	}
	if rec.Status == model.TokenActive {
		t.Fatalf("expected token to be flagged unhealthy on low volume, got status=%v score=%v", rec.Status, rec.HealthScore)
	}
	if len(sink.captions) != 0 {
		t.Fatalf("expected no signal published for a skipped token")
	}
}

func TestTickEmitsGemSignalForHealthyNewToken(t *testing.T) {
	market := &fakeMarket{poolMeta: marketdata.PoolMeta{Volume24h: 500_000}}
	sink := &capturingSink{}
	watchlist := state.NewMemoryWatchlistStore()
	_ = watchlist.Upsert(context.Background(), model.TokenRecord{Address: "tok1", Symbol: "FOO", PoolID: "solana_tok1"})

	s := buildScanner(market, sink, watchlist)
	if err := s.Tick(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(sink.captions) != 1 {
		t.Fatalf("expected exactly one published signal, got %d", len(sink.captions))
	}

	rec, ok, _ := watchlist.Get(context.Background(), "tok1")
	if !ok || rec.Status != model.TokenActive {
		t.Fatalf("expected token to remain active, got %+v ok=%v", rec, ok)
	}
	if rec.LastMessageID != "msg-1" {
		t.Fatalf("expected last message id to be persisted, got %q", rec.LastMessageID)
	}
}

func TestRunStopsOnContextCancellation(t *testing.T) {
	market := &fakeMarket{poolMeta: marketdata.PoolMeta{Volume24h: 500_000}}
	sink := &capturingSink{}
	watchlist := state.NewMemoryWatchlistStore()

	s := buildScanner(market, sink, watchlist)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	err := s.Run(ctx)
	if err == nil {
		t.Fatalf("expected Run to return the context's cancellation error")
	}
	if s.Status().Running {
		t.Fatalf("expected Running to be false after Run returns")
	}
}
