package estimate_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"index-pump/internal/estimate"
)

func TestCost(t *testing.T) {
	if got := estimate.Cost(1_000_000, 0.02); got != 0.02 {
		t.Errorf("1M tokens at 0.02/M should cost 0.02, got %v", got)
	}
	if got := estimate.Cost(0, 0.13); got != 0 {
		t.Errorf("zero tokens should cost nothing, got %v", got)
	}
	if got := estimate.Cost(500_000, 0.10); got != 0.05 {
		t.Errorf("expected 0.05, got %v", got)
	}
}

func TestLoadPricingFetchAndCache(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"custom-model": 0.42}`))
	}))
	defer srv.Close()

	cachePath := filepath.Join(t.TempDir(), "prices.json")
	table := estimate.LoadPricing(context.Background(), srv.URL, cachePath)
	if table.PricePerMillion("custom-model") != 0.42 {
		t.Errorf("fetched price missing: %v", table)
	}

	// Cache was written; a dead URL now falls back to it.
	if _, err := os.Stat(cachePath); err != nil {
		t.Fatalf("cache not written: %v", err)
	}
	table = estimate.LoadPricing(context.Background(), "http://127.0.0.1:1/nope", cachePath)
	if table.PricePerMillion("custom-model") != 0.42 {
		t.Errorf("cache fallback failed: %v", table)
	}
}

func TestLoadPricingDefaults(t *testing.T) {
	// No URL, no cache: built-in defaults still answer.
	table := estimate.LoadPricing(context.Background(), "", filepath.Join(t.TempDir(), "missing.json"))
	if table.PricePerMillion("text-embedding-3-small") <= 0 {
		t.Error("default pricing should cover the small embedding model")
	}
	if table.PricePerMillion("completely-unknown") <= 0 {
		t.Error("unknown models should resolve to a fallback price")
	}
}
