package state

import (
	"context"
	"testing"
	"time"

	"dexsurveil/internal/model"
)

func TestMemoryWatchlistStoreUpsertThenGet(t *testing.T) {
	s := NewMemoryWatchlistStore()
	ctx := context.Background()

	rec := model.TokenRecord{Address: "abc", Symbol: "FOO", Status: model.TokenActive, FirstSeen: time.Unix(1000, 0)}
	if err := s.Upsert(ctx, rec); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, ok, err := s.Get(ctx, "abc")
	if err != nil || !ok {
		t.Fatalf("expected to find record, ok=%v err=%v", ok, err)
	}
	if got.Symbol != "FOO" {
		t.Fatalf("unexpected record: %+v", got)
	}
}

func TestMemoryWatchlistStoreGetMissing(t *testing.T) {
	s := NewMemoryWatchlistStore()
	_, ok, err := s.Get(context.Background(), "missing")
	if err != nil || ok {
		t.Fatalf("expected a miss, ok=%v err=%v", ok, err)
	}
}

func TestMemoryWatchlistStoreAllIsSortedByAddress(t *testing.T) {
	s := NewMemoryWatchlistStore()
	ctx := context.Background()
	_ = s.Upsert(ctx, model.TokenRecord{Address: "zzz"})
	_ = s.Upsert(ctx, model.TokenRecord{Address: "aaa"})

	all, err := s.All(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(all) != 2 || all[0].Address != "aaa" || all[1].Address != "zzz" {
		t.Fatalf("expected sorted records, got %+v", all)
	}
}
