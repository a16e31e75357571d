package estimate

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"index-pump/internal/logger"
)

// PriceTable maps embedding model name to USD per million tokens.
type PriceTable map[string]float64

// defaultPrices backstops the fetch and the cache so estimation always
// produces a number.
var defaultPrices = PriceTable{
	"text-embedding-3-small": 0.02,
	"text-embedding-3-large": 0.13,
	"text-embedding-ada-002": 0.10,
}

// PricePerMillion resolves a model's price, defaulting to the small-model
// price when the model is unknown.
func (t PriceTable) PricePerMillion(model string) float64 {
	if p, ok := t[model]; ok {
		return p
	}
	return defaultPrices["text-embedding-3-small"]
}

// Cost projects token count into dollars.
func Cost(tokens int64, pricePerMillion float64) float64 {
	return float64(tokens) / 1e6 * pricePerMillion
}

// LoadPricing fetches the price table from url with a short timeout, caching
// it to cachePath on success. On fetch failure it falls back to the cache,
// then to built-in defaults. Cache writes are best-effort and never fail the
// lookup.
func LoadPricing(ctx context.Context, url, cachePath string) PriceTable {
	if url != "" {
		if table, err := fetchPricing(ctx, url); err == nil {
			writeCache(cachePath, table)
			return table
		} else {
			logger.Debugf("pricing fetch failed: %v", err)
		}
	}
	if cachePath != "" {
		if table, err := readCache(cachePath); err == nil {
			logger.Debugf("using cached pricing from %s", cachePath)
			return table
		}
	}
	return defaultPrices
}

func fetchPricing(ctx context.Context, url string) (PriceTable, error) {
	client := retryablehttp.NewClient()
	client.RetryMax = 2
	client.HTTPClient.Timeout = 5 * time.Second
	client.Logger = nil

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("pricing endpoint returned %d", resp.StatusCode)
	}

	var table PriceTable
	if err := json.NewDecoder(resp.Body).Decode(&table); err != nil {
		return nil, fmt.Errorf("failed to decode price table: %w", err)
	}
	if len(table) == 0 {
		return nil, fmt.Errorf("price table is empty")
	}
	return table, nil
}

func writeCache(path string, table PriceTable) {
	if path == "" {
		return
	}
	data, err := json.Marshal(table)
	if err == nil {
		err = os.WriteFile(path, data, 0o644)
	}
	if err != nil {
		logger.Debugf("pricing cache write failed: %v", err)
	}
}

func readCache(path string) (PriceTable, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var table PriceTable
	if err := json.Unmarshal(data, &table); err != nil {
		return nil, err
	}
	if len(table) == 0 {
		return nil, fmt.Errorf("cached price table is empty")
	}
	return table, nil
}
