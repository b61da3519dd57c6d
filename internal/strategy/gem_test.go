package strategy

import (
	"testing"
	"time"

	"dexsurveil/internal/model"
)

func flatCandles(n int, price, volume float64) []model.Candle {
	out := make([]model.Candle, n)
	for i := 0; i < n; i++ {
		out[i] = model.Candle{
			Timestamp: int64(i * 300),
			Open:      price, Close: price, High: price * 1.001, Low: price * 0.999, Volume: volume,
		}
	}
	return out
}

func TestEvaluateGemVolumeSpikeFires(t *testing.T) {
	candles := flatCandles(20, 1.0, 10)
	candles[len(candles)-1].Volume = 1000
	candles[len(candles)-1].Close = 1.01
	candles[len(candles)-1].High = 1.012

	sig, ok := EvaluateGemStrategies("tok", "solana_abc", "FOO", candles, time.Unix(1000, 0))
	if !ok || sig.Kind != model.SignalGemVolumeSpike {
		t.Fatalf("expected volume-spike signal, got ok=%v sig=%+v", ok, sig)
	}
}

func TestEvaluateGemPrefilterAbortsOnSteepDrop(t *testing.T) {
	candles := flatCandles(20, 1.0, 10)
	// price(-12), i.e. index n-gemConsolidationWindow, is 30% above current -> pre-filter aborts
	n := len(candles)
	candles[n-gemConsolidationWindow].Close = 1.30
	candles[n-1].Volume = 1000
	candles[n-1].Close = 1.0

	_, ok := EvaluateGemStrategies("tok", "solana_abc", "FOO", candles, time.Unix(1000, 0))
	if ok {
		t.Fatalf("expected pre-filter to abort all gem strategies on a steep drop")
	}
}

func TestEvaluateGemPrefilterIgnoresAdjacentIndex(t *testing.T) {
	candles := flatCandles(20, 1.0, 10)
	// a steep move one candle off price(-12) must NOT trip the pre-filter.
	n := len(candles)
	candles[n-1-gemConsolidationWindow].Close = 1.30
	candles[n-1].Volume = 1000
	candles[n-1].Close = 1.25
	candles[n-1].High = 1.26

	sig, ok := EvaluateGemStrategies("tok", "solana_abc", "FOO", candles, time.Unix(1000, 0))
	if !ok {
		t.Fatalf("expected pre-filter to stay clear of the adjacent index")
	}
	if sig.Kind != model.SignalGemVolumeSpike {
		t.Fatalf("unexpected signal kind: %v", sig.Kind)
	}
}

func TestEvaluateGemMomentumFires(t *testing.T) {
	candles := flatCandles(20, 1.0, 10)
	n := len(candles)
	// price(-6), i.e. index n-gemMomentumLookback, is the momentum reference point.
	candles[n-gemMomentumLookback].Close = 1.0
	candles[n-1].Close = 1.25
	candles[n-1].High = 1.26

	sig, ok := EvaluateGemStrategies("tok", "solana_abc", "FOO", candles, time.Unix(1000, 0))
	if !ok {
		t.Fatalf("expected a gem signal to fire")
	}
	if sig.Kind != model.SignalGemVolumeSpike && sig.Kind != model.SignalGemMomentum {
		t.Fatalf("unexpected signal kind: %v", sig.Kind)
	}
}

func TestEvaluateGemMomentumUsesExactLookbackIndex(t *testing.T) {
	candles := flatCandles(20, 1.0, 10)
	n := len(candles)
	// only the adjacent index is cheap; the n-gemMomentumLookback index stays
	// flat, so the 20% momentum threshold must not be met.
	candles[n-1-gemMomentumLookback].Close = 0.5
	candles[n-1].Close = 1.0
	candles[n-1].High = 1.001

	_, ok := EvaluateGemStrategies("tok", "solana_abc", "FOO", candles, time.Unix(1000, 0))
	if ok {
		t.Fatalf("expected momentum to read price(-6), not the adjacent candle")
	}
}
