// Package market implements the market directory: a periodically
// refreshed mapping from condition ID to Market, built by polling the
// venue's catalog HTTP API and filtering down to active 15-minute
// up/down markets.
package market

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// maxNewFetchesPerRefresh bounds the number of new markets' order
// books fetched per directory refresh pass, to avoid a thundering
// herd against the catalog/book endpoints; the remainder are simply
// deferred to the next refresh.
const maxNewFetchesPerRefresh = 5

// Market is an immutable-once-discovered binary market.
type Market struct {
	ConditionID string
	YesTokenID  string
	NoTokenID   string
	OpenPrice   decimal.Decimal
	OpenTime    time.Time
	CloseTime   time.Time
}

// Active reports whether now falls within [OpenTime, CloseTime].
func (m Market) Active(now time.Time) bool {
	return !now.Before(m.OpenTime) && !now.After(m.CloseTime)
}

// rawMarket mirrors the catalog API's market payload.
type rawMarket struct {
	ConditionID   string `json:"conditionId"`
	ClobTokenIDs  string `json:"clobTokenIds"`
	OutcomePrices string `json:"outcomePrices"`
	StartDate     string `json:"startDate"`
	EndDate       string `json:"endDate"`
	Active        bool   `json:"active"`
	Closed        bool   `json:"closed"`
}

// CatalogClient fetches the raw market list from the venue's catalog
// endpoint. A concrete implementation issues HTTP GET requests; tests
// may substitute a stub.
type CatalogClient interface {
	FetchMarkets(ctx context.Context, slug string) ([]rawMarketPayload, error)
}

// rawMarketPayload is exported so package-external test helpers and
// the HTTP client implementation can construct catalog responses.
type rawMarketPayload = rawMarket

// HTTPCatalogClient is the production CatalogClient, issuing requests
// against a Gamma-style catalog API.
type HTTPCatalogClient struct {
	BaseURL string
	HTTP    *http.Client
}

// NewHTTPCatalogClient constructs a client with sane defaults.
func NewHTTPCatalogClient(baseURL string) *HTTPCatalogClient {
	return &HTTPCatalogClient{BaseURL: baseURL, HTTP: &http.Client{Timeout: 10 * time.Second}}
}

// FetchMarkets issues GET {base}/markets?slug=... and decodes the
// response into raw market payloads.
func (c *HTTPCatalogClient) FetchMarkets(ctx context.Context, slug string) ([]rawMarketPayload, error) {
	url := fmt.Sprintf("%s/markets?slug=%s", c.BaseURL, slug)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch markets: %w", err)
	}
	defer resp.Body.Close()

	var raws []rawMarket
	if err := json.NewDecoder(resp.Body).Decode(&raws); err != nil {
		return nil, fmt.Errorf("decode markets: %w", err)
	}
	return raws, nil
}

// Directory holds the current-window market set, exclusively owned by
// its refresh loop; readers take a snapshot each pass.
type Directory struct {
	mu      sync.RWMutex
	markets map[string]Market

	client   CatalogClient
	slug     string
	interval time.Duration

	// onNewTokens, if set, is invoked with the YES/NO token pair of
	// every newly discovered market so the depth feed can subscribe.
	onNewTokens func(conditionID string, yesTokenID, noTokenID string)
}

// NewDirectory constructs a Directory polling client for slug at the
// given refresh interval.
func NewDirectory(client CatalogClient, slug string, interval time.Duration, onNewTokens func(string, string, string)) *Directory {
	return &Directory{
		markets:     make(map[string]Market),
		client:      client,
		slug:        slug,
		interval:    interval,
		onNewTokens: onNewTokens,
	}
}

// Run polls at the configured interval until ctx is cancelled.
func (d *Directory) Run(ctx context.Context) {
	d.refresh(ctx)
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.refresh(ctx)
		}
	}
}

func (d *Directory) refresh(ctx context.Context) error {
	raws, err := d.client.FetchMarkets(ctx, d.slug)
	if err != nil {
		// A single failed catalog fetch is logged by the caller and
		// retried next tick; it never tears down running subscriptions.
		return fmt.Errorf("directory refresh: %w", err)
	}

	now := time.Now().UTC()
	d.mu.Lock()
	defer d.mu.Unlock()

	// Drop expired entries silently.
	for id, m := range d.markets {
		if now.After(m.CloseTime) {
			delete(d.markets, id)
		}
	}

	var newOnes []Market
	for _, raw := range raws {
		if !raw.Active || raw.Closed {
			continue
		}
		if _, known := d.markets[raw.ConditionID]; known {
			continue
		}
		m, ok := parseMarket(raw)
		if !ok {
			continue
		}
		if !m.Active(now) {
			continue
		}
		newOnes = append(newOnes, m)
	}

	sort.Slice(newOnes, func(i, j int) bool { return newOnes[i].OpenTime.Before(newOnes[j].OpenTime) })
	if len(newOnes) > maxNewFetchesPerRefresh {
		newOnes = newOnes[:maxNewFetchesPerRefresh]
	}

	for _, m := range newOnes {
		d.markets[m.ConditionID] = m
		if d.onNewTokens != nil {
			d.onNewTokens(m.ConditionID, m.YesTokenID, m.NoTokenID)
		}
	}
	return nil
}

// Snapshot returns a copy of all current-window markets.
func (d *Directory) Snapshot() []Market {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]Market, 0, len(d.markets))
	for _, m := range d.markets {
		out = append(out, m)
	}
	return out
}

func parseMarket(raw rawMarket) (Market, bool) {
	var tokenIDs []string
	if err := json.Unmarshal([]byte(raw.ClobTokenIDs), &tokenIDs); err != nil || len(tokenIDs) < 2 {
		return Market{}, false
	}
	var outcomePrices []string
	_ = json.Unmarshal([]byte(raw.OutcomePrices), &outcomePrices)

	openTime, err := time.Parse(time.RFC3339, raw.StartDate)
	if err != nil {
		return Market{}, false
	}
	closeTime, err := time.Parse(time.RFC3339, raw.EndDate)
	if err != nil {
		return Market{}, false
	}
	if !openTime.Before(closeTime) {
		return Market{}, false
	}

	openPrice := decimal.Zero
	if len(outcomePrices) > 0 {
		if p, err := decimal.NewFromString(outcomePrices[0]); err == nil {
			openPrice = p
		}
	}

	return Market{
		ConditionID: raw.ConditionID,
		YesTokenID:  tokenIDs[0],
		NoTokenID:   tokenIDs[1],
		OpenPrice:   openPrice,
		OpenTime:    openTime,
		CloseTime:   closeTime,
	}, true
}
