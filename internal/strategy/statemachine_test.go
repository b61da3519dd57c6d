package strategy

import (
	"context"
	"testing"
	"time"

	"dexsurveil/internal/model"
	"dexsurveil/internal/state"
)

func analysisWithZone(price, levelPrice, score float64, tier int) model.AnalysisResult {
	return model.AnalysisResult{
		Metadata: model.AnalysisMetadata{PoolID: "solana_abc", Symbol: "FOO"},
		Raw:      model.AnalysisRaw{CurrentPrice: price},
		Technical: model.Technical{
			Tier1: zonesForTier(1, levelPrice, score, tier),
			Tier2: zonesForTier(2, levelPrice, score, tier),
		},
	}
}

func zonesForTier(wantTier int, levelPrice, score float64, tier int) []model.Zone {
	if wantTier != tier {
		return nil
	}
	return []model.Zone{{Kind: model.ZoneSupply, LevelPrice: levelPrice, Score: score, FinalScore: score, Tier: tier}}
}

func TestEvaluateZonesEmitsBreakoutOnFirstCrossing(t *testing.T) {
	stateStore := state.NewMemoryZoneStateStore()
	e := New(stateStore)

	analysis := analysisWithZone(1.030, 1.000, 4.5, 1)
	sig, ok, err := e.EvaluateZones(context.Background(), "tok", analysis, time.Unix(1000, 0))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Fatalf("expected a breakout signal")
	}
	if sig.Kind != model.SignalResistanceBreakout || sig.Level != 1.000 {
		t.Fatalf("unexpected signal: %+v", sig)
	}

	zs, _ := stateStore.Get(context.Background(), "tok", 1.000)
	if zs.CurrentState != model.StateBrokenUp {
		t.Fatalf("expected BROKEN_UP state, got %v", zs.CurrentState)
	}
}

func TestEvaluateZonesIdempotentOnRepeatedCall(t *testing.T) {
	stateStore := state.NewMemoryZoneStateStore()
	e := New(stateStore)
	analysis := analysisWithZone(1.030, 1.000, 4.5, 1)
	now := time.Unix(1000, 0)

	_, ok1, _ := e.EvaluateZones(context.Background(), "tok", analysis, now)
	_, ok2, _ := e.EvaluateZones(context.Background(), "tok", analysis, now.Add(time.Second))
	if !ok1 {
		t.Fatalf("expected first call to emit a signal")
	}
	if ok2 {
		t.Fatalf("expected second call on the same snapshot to emit no signal")
	}
}

func TestEvaluateOriginRetestWithinBand(t *testing.T) {
	analysis := model.AnalysisResult{
		Raw: model.AnalysisRaw{CurrentPrice: 0.0105},
		Technical: model.Technical{
			Origin: &model.Zone{ZoneBottom: 0.009, ZoneTop: 0.012, IsOrigin: true},
		},
	}
	sig, ok := EvaluateOriginRetest("tok", analysis, time.Unix(1000, 0))
	if !ok || sig.Kind != model.SignalOriginRetest || sig.FinalScore != 10 {
		t.Fatalf("expected origin retest signal, got ok=%v sig=%+v", ok, sig)
	}
}

func TestEvaluateOriginRetestOutOfBand(t *testing.T) {
	analysis := model.AnalysisResult{
		Raw: model.AnalysisRaw{CurrentPrice: 0.02},
		Technical: model.Technical{
			Origin: &model.Zone{ZoneBottom: 0.009, ZoneTop: 0.012},
		},
	}
	_, ok := EvaluateOriginRetest("tok", analysis, time.Unix(1000, 0))
	if ok {
		t.Fatalf("expected no origin retest far outside the band")
	}
}
