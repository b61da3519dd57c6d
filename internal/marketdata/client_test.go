package marketdata

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"

	"dexsurveil/internal/model"
)

func testClient(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	c := New(zap.NewNop(), 1000)
	c.baseURL = srv.URL
	return c, srv
}

func TestFetchOHLCVSortsAscendingAndCoercesFloats(t *testing.T) {
	body := `{"data":{"attributes":{"ohlcv_list":[[200,2,2.5,1.5,2,10],[100,1,1.5,0.5,1,5]]}}}`
	c, srv := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(body))
	})
	defer srv.Close()

	series, err := c.FetchOHLCV(context.Background(), "solana_abc", model.TimeframeHour, 1, 100)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(series.Candles) != 2 {
		t.Fatalf("expected 2 candles, got %d", len(series.Candles))
	}
	if series.Candles[0].Timestamp != 100 || series.Candles[1].Timestamp != 200 {
		t.Fatalf("expected ascending order, got %+v", series.Candles)
	}
}

func TestFetchOHLCVRejectsPoolIDWithoutSeparator(t *testing.T) {
	c, srv := testClient(t, func(w http.ResponseWriter, r *http.Request) {})
	defer srv.Close()

	_, err := c.FetchOHLCV(context.Background(), "noSeparatorHere", model.TimeframeHour, 1, 100)
	if !errors.Is(err, model.ErrMalformed) {
		t.Fatalf("expected ErrMalformed, got %v", err)
	}
}

func TestFetchOHLCVNotFound(t *testing.T) {
	c, srv := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	defer srv.Close()

	_, err := c.FetchOHLCV(context.Background(), "solana_abc", model.TimeframeHour, 1, 100)
	if !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestFetchOHLCVRateLimited(t *testing.T) {
	c, srv := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	})
	defer srv.Close()

	_, err := c.FetchOHLCV(context.Background(), "solana_abc", model.TimeframeHour, 1, 100)
	if !errors.Is(err, model.ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
}

func TestFetchTrendingPoolsResolvesBaseTokenFromIncluded(t *testing.T) {
	body := `{
		"data": [{
			"id": "solana_pool1",
			"attributes": {"name": "FOO/SOL", "base_token_price_usd": "0.5", "volume_usd": {"h24": "1000"}},
			"relationships": {"base_token": {"data": {"id": "solana_token1"}}}
		}],
		"included": [{
			"id": "solana_token1",
			"attributes": {"address": "TokenAddr111", "symbol": "FOO"}
		}]
	}`
	c, srv := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(body))
	})
	defer srv.Close()

	pools, err := c.FetchTrendingPools(context.Background(), "solana", 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(pools) != 1 {
		t.Fatalf("expected 1 pool, got %d", len(pools))
	}
	if pools[0].TokenAddress != "TokenAddr111" {
		t.Fatalf("expected resolved token address, got %q", pools[0].TokenAddress)
	}
	if pools[0].Symbol != "FOO" {
		t.Fatalf("expected base token symbol, got %q", pools[0].Symbol)
	}
}

func TestFetchTrendingPoolsFallsBackWhenIncludedMissing(t *testing.T) {
	body := `{
		"data": [{
			"id": "solana_pool1",
			"attributes": {"name": "FOO/SOL", "base_token_price_usd": "0.5", "volume_usd": {"h24": "1000"}},
			"relationships": {"base_token": {"data": {"id": "solana_token1"}}}
		}],
		"included": []
	}`
	c, srv := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(body))
	})
	defer srv.Close()

	pools, err := c.FetchTrendingPools(context.Background(), "solana", 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if pools[0].TokenAddress != "solana_token1" {
		t.Fatalf("expected relationship id fallback, got %q", pools[0].TokenAddress)
	}
	if pools[0].Symbol != "FOO/SOL" {
		t.Fatalf("expected pool-name fallback symbol, got %q", pools[0].Symbol)
	}
}

func TestFetchPoolMetaDecodesAttributes(t *testing.T) {
	body := `{"data":{"attributes":{"base_token_price_usd":"1.23","name":"FOO/SOL","volume_usd":{"h24":"45000"}}}}`
	c, srv := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(body))
	})
	defer srv.Close()

	meta, err := c.FetchPoolMeta(context.Background(), "solana_abc")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if meta.BasePriceUSD != 1.23 || meta.Volume24h != 45000 {
		t.Fatalf("unexpected meta: %+v", meta)
	}
}
