package holder

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"
)

func TestDisabledClientReturnsNoDataWithoutError(t *testing.T) {
	c := New(zap.NewNop(), "")
	if c.Enabled() {
		t.Fatalf("expected disabled client")
	}
	stats, ok, err := c.GetHolderStats(context.Background(), "solana", "abc")
	if err != nil || ok || stats.HolderCount != 0 {
		t.Fatalf("expected no data, got stats=%+v ok=%v err=%v", stats, ok, err)
	}
}

func TestGetHolderStatsDecodesCount(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"holder_count":4200}`))
	}))
	defer srv.Close()

	c := New(zap.NewNop(), "test-key")
	c.baseURL = srv.URL

	stats, ok, err := c.GetHolderStats(context.Background(), "solana", "abc")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok || stats.HolderCount != 4200 {
		t.Fatalf("expected holder_count=4200, got %+v ok=%v", stats, ok)
	}
}

func TestGetHolderStats404IsNotAnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := New(zap.NewNop(), "test-key")
	c.baseURL = srv.URL

	_, ok, err := c.GetHolderStats(context.Background(), "solana", "abc")
	if err != nil {
		t.Fatalf("expected no error on 404, got %v", err)
	}
	if ok {
		t.Fatalf("expected ok=false on 404")
	}
}
