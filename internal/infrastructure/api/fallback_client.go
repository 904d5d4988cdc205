package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"time"

	"github.com/offlinefx/offlinefx/internal/domain/entity"
	"github.com/offlinefx/offlinefx/internal/infrastructure/logger"
)

const latestPath = "/latest"

// FallbackClient talks to the public fallback rate service. It needs no
// authentication and serves a single day's rates per base currency.
type FallbackClient struct {
	baseURL    string
	httpClient *http.Client
	logger     logger.Logger
}

// NewFallbackClient creates a client for the fallback rate service.
func NewFallbackClient(baseURL string, httpClient *http.Client, log logger.Logger) *FallbackClient {
	if httpClient == nil {
		httpClient = &http.Client{
			Timeout: 10 * time.Second,
		}
	}
	if log == nil {
		log = logger.GetDefaultLogger()
	}

	return &FallbackClient{
		baseURL:    baseURL,
		httpClient: httpClient,
		logger:     log,
	}
}

// fallbackResponse represents the response structure of the fallback service.
type fallbackResponse struct {
	Date  string             `json:"date"`
	Rates map[string]float64 `json:"rates"`
}

// FetchRates retrieves the full rate set for a base currency.
func (c *FallbackClient) FetchRates(ctx context.Context, base string) (entity.RateSet, error) {
	reqURL := fmt.Sprintf("%s%s?from=%s", c.baseURL, latestPath, url.QueryEscape(base))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return entity.RateSet{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Add("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return entity.RateSet{}, fmt.Errorf("failed to execute request: %w", err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			c.logger.Warn("Error closing response body", map[string]interface{}{
				"error": closeErr.Error(),
			})
		}
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return entity.RateSet{}, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return entity.RateSet{}, fmt.Errorf("fallback service returned status %d: %s",
			resp.StatusCode, string(body))
	}

	var fbResp fallbackResponse
	if err := json.Unmarshal(body, &fbResp); err != nil {
		return entity.RateSet{}, fmt.Errorf("failed to decode fallback response: %w", err)
	}

	if len(fbResp.Rates) == 0 {
		return entity.RateSet{}, fmt.Errorf("fallback service returned no rates for %s", base)
	}

	date, err := time.Parse(dateLayout, fbResp.Date)
	if err != nil {
		return entity.RateSet{}, fmt.Errorf("failed to parse rate date %q: %w", fbResp.Date, err)
	}

	// Map iteration order is random; sort targets so the set is stable.
	targets := make([]string, 0, len(fbResp.Rates))
	for target := range fbResp.Rates {
		targets = append(targets, target)
	}
	sort.Strings(targets)

	rates := make([]entity.ExchangeRate, 0, len(targets))
	for _, target := range targets {
		value := fbResp.Rates[target]
		if value <= 0 {
			return entity.RateSet{}, fmt.Errorf("invalid exchange rate value for %s/%s: %f",
				base, target, value)
		}
		rates = append(rates, entity.ExchangeRate{
			Base:   base,
			Target: target,
			Rate:   value,
			Date:   date,
		})
	}

	return entity.NewRateSet(base, rates), nil
}
