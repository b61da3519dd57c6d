package cooldown

import (
	"context"
	"testing"
	"time"

	"dexsurveil/internal/model"
	"dexsurveil/internal/state"
)

func TestShouldSuppressRecentUnchangedLevel(t *testing.T) {
	history := state.NewMemoryAlertHistoryStore()
	ctx := context.Background()
	base := time.Unix(1000, 0)

	history.Append(ctx, model.AlertRecord{
		TokenAddress: "tok", SignalType: model.SignalResistanceBreakout,
		LevelPrice: 1.000, PriceAtAlert: 1.030, Timestamp: base,
	})

	gate := New(history)
	signal := model.Signal{
		Kind: model.SignalResistanceBreakout, TokenAddress: "tok",
		Level: 1.000, CurrentPrice: 1.031, Timestamp: base.Add(10 * time.Minute),
		ConfidenceScore: 9,
	}

	suppress, err := gate.ShouldSuppress(ctx, signal)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !suppress {
		t.Fatalf("expected suppression for a near-immediate, near-identical repeat")
	}
}

func TestShouldSuppressReleasedAfterCooldownElapses(t *testing.T) {
	history := state.NewMemoryAlertHistoryStore()
	ctx := context.Background()
	base := time.Unix(1000, 0)

	history.Append(ctx, model.AlertRecord{
		TokenAddress: "tok", SignalType: model.SignalResistanceBreakout,
		LevelPrice: 1.000, PriceAtAlert: 1.000, Timestamp: base,
	})

	gate := New(history)
	signal := model.Signal{
		Kind: model.SignalResistanceBreakout, TokenAddress: "tok",
		Level: 1.000, CurrentPrice: 1.085, Timestamp: base.Add(3 * time.Hour),
		ConfidenceScore: 9,
	}

	suppress, err := gate.ShouldSuppress(ctx, signal)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if suppress {
		t.Fatalf("expected cooldown released once 3h have passed the 2h window")
	}
}

func TestShouldSuppressLowConfidenceUnknownKind(t *testing.T) {
	history := state.NewMemoryAlertHistoryStore()
	gate := New(history)

	signal := model.Signal{
		Kind: model.SignalApproachingSupport, TokenAddress: "tok",
		Level: 1.0, CurrentPrice: 1.0, Timestamp: time.Unix(1000, 0),
		ConfidenceScore: 2,
	}

	suppress, err := gate.ShouldSuppress(context.Background(), signal)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !suppress {
		t.Fatalf("expected low-confidence non-always-confident signal to be suppressed")
	}
}

func TestShouldSuppressGemSameTypeWithinHalfHour(t *testing.T) {
	history := state.NewMemoryAlertHistoryStore()
	ctx := context.Background()
	base := time.Unix(1000, 0)
	history.Append(ctx, model.AlertRecord{
		TokenAddress: "tok", SignalType: model.SignalGemVolumeSpike, Timestamp: base,
	})

	gate := New(history)
	signal := model.Signal{
		Kind: model.SignalGemVolumeSpike, TokenAddress: "tok",
		Timestamp: base.Add(10 * time.Minute), ConfidenceScore: 9,
	}

	suppress, err := gate.ShouldSuppress(ctx, signal)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !suppress {
		t.Fatalf("expected gem signal repeated within 0.5h to be suppressed")
	}
}
