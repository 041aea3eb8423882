// Package rates fetches USD-based exchange rates from a public API on an
// hourly cadence. Conversion never blocks on the network: the provider
// always answers from the last good table, starting from a static fallback.
package rates

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/julioberne/mercadosocial/internal/domain/currency"
	"github.com/julioberne/mercadosocial/internal/domain/model"
	"github.com/julioberne/mercadosocial/internal/domain/repository"
)

// DefaultURL is the public USD-base endpoint.
const DefaultURL = "https://open.er-api.com/v6/latest/USD"

// apiResponse is the subset of the open.er-api.com payload we read.
type apiResponse struct {
	Result string             `json:"result"`
	Rates  map[string]float64 `json:"rates"`
}

// Provider polls the rate API and caches the latest table. A fetch failure
// keeps the previous table; the fallback only ever gets replaced, never
// degraded back to.
type Provider struct {
	log      *slog.Logger
	url      string
	interval time.Duration
	client   *http.Client

	mu        sync.RWMutex
	table     currency.RateTable
	fetchedAt time.Time
}

func NewProvider(log *slog.Logger, url string, interval time.Duration) *Provider {
	if url == "" {
		url = DefaultURL
	}
	if interval <= 0 {
		interval = time.Hour
	}
	return &Provider{
		log:      log,
		url:      url,
		interval: interval,
		client:   &http.Client{Timeout: 10 * time.Second},
		table:    currency.Fallback(),
	}
}

var _ repository.RateSource = (*Provider)(nil)

// Rates returns a copy of the current table.
func (p *Provider) Rates() currency.RateTable {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.table.Clone()
}

// FetchedAt reports when the table was last refreshed from the API; zero
// while still on the fallback.
func (p *Provider) FetchedAt() time.Time {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.fetchedAt
}

// Start refreshes once immediately, then on the configured interval until
// ctx is canceled. Run in its own goroutine.
func (p *Provider) Start(ctx context.Context) {
	if err := p.Refresh(ctx); err != nil {
		p.log.Warn("initial rate fetch failed, using fallback rates", "error", err)
	}

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := p.Refresh(ctx); err != nil {
				p.log.Warn("rate refresh failed, keeping previous rates", "error", err)
			}
		}
	}
}

// Refresh fetches the table once. The previous table survives any failure.
func (p *Provider) Refresh(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		return fmt.Errorf("building rate request: %w", err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("fetching rates: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("rate API returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading rate response: %w", err)
	}

	var payload apiResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return fmt.Errorf("decoding rate response: %w", err)
	}
	if payload.Result != "success" {
		return fmt.Errorf("rate API result %q", payload.Result)
	}

	table := make(currency.RateTable, len(model.Currencies()))
	for _, code := range model.Currencies() {
		rate, ok := payload.Rates[string(code)]
		if !ok || rate <= 0 {
			return fmt.Errorf("rate API missing %s", code)
		}
		table[code] = rate
	}

	p.mu.Lock()
	p.table = table
	p.fetchedAt = time.Now()
	p.mu.Unlock()

	p.log.Info("exchange rates refreshed", "usd", table[model.USD], "cop", table[model.COP], "mxn", table[model.MXN])
	return nil
}
