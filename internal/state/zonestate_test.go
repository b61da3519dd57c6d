package state

import (
	"context"
	"testing"
	"time"

	"dexsurveil/internal/model"
)

func TestZoneStateStoreDefaultsToIdle(t *testing.T) {
	s := NewMemoryZoneStateStore()
	zs, err := s.Get(context.Background(), "tok", 1.0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if zs.CurrentState != model.StateIdle {
		t.Fatalf("expected IDLE default, got %v", zs.CurrentState)
	}
}

func TestZoneStateStoreCollapsesWithinTolerance(t *testing.T) {
	s := NewMemoryZoneStateStore()
	now := time.Unix(1000, 0)
	if err := s.Set(context.Background(), "tok", 1.000, model.StateTesting, model.SignalResistanceBreakout, 1.001, now); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// 1.0005 is within 0.1% of 1.000, should collapse into the same entry.
	if err := s.Set(context.Background(), "tok", 1.0005, model.StateBrokenUp, model.SignalResistanceBreakout, 1.002, now.Add(time.Minute)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	zs, _ := s.Get(context.Background(), "tok", 1.0)
	if zs.CurrentState != model.StateBrokenUp {
		t.Fatalf("expected collapsed entry updated to BROKEN_UP, got %v", zs.CurrentState)
	}
}

func TestAlertHistoryMostRecentByLevel(t *testing.T) {
	s := NewMemoryAlertHistoryStore()
	ctx := context.Background()
	base := time.Unix(1000, 0)

	s.Append(ctx, model.AlertRecord{TokenAddress: "tok", SignalType: model.SignalResistanceBreakout, LevelPrice: 1.0, PriceAtAlert: 1.01, Timestamp: base})
	s.Append(ctx, model.AlertRecord{TokenAddress: "tok", SignalType: model.SignalResistanceBreakout, LevelPrice: 1.0, PriceAtAlert: 1.02, Timestamp: base.Add(time.Hour)})

	rec, ok, err := s.MostRecentByLevel(ctx, "tok", 1.003)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Fatalf("expected a match within tolerance")
	}
	if !rec.Timestamp.Equal(base.Add(time.Hour)) {
		t.Fatalf("expected most recent record returned, got %v", rec.Timestamp)
	}
}

func TestAlertHistoryMostRecentBySignalType(t *testing.T) {
	s := NewMemoryAlertHistoryStore()
	ctx := context.Background()
	s.Append(ctx, model.AlertRecord{TokenAddress: "tok", SignalType: model.SignalGemVolumeSpike, Timestamp: time.Unix(1000, 0)})

	rec, ok, err := s.MostRecentBySignalType(ctx, "tok", model.SignalGemVolumeSpike)
	if err != nil || !ok {
		t.Fatalf("expected a match, got ok=%v err=%v", ok, err)
	}
	if rec.SignalType != model.SignalGemVolumeSpike {
		t.Fatalf("unexpected record: %+v", rec)
	}
}
