// Package api internal/infrastructure/api/primary_client.go
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/offlinefx/offlinefx/internal/domain/entity"
	"github.com/offlinefx/offlinefx/internal/infrastructure/logger"
)

const (
	ratesPath    = "/rates"
	dateLayout   = "2006-01-02"
	apiKeyHeader = "X-API-Key"
)

// PrimaryClient talks to the authenticated primary rate service.
type PrimaryClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     logger.Logger
}

// NewPrimaryClient creates a client for the primary rate service. When
// httpClient is nil a default with a 10 second timeout is used.
func NewPrimaryClient(baseURL, apiKey string, httpClient *http.Client, log logger.Logger) *PrimaryClient {
	if httpClient == nil {
		httpClient = &http.Client{
			Timeout: 10 * time.Second,
		}
	}
	if log == nil {
		log = logger.GetDefaultLogger()
	}

	return &PrimaryClient{
		baseURL:    baseURL,
		apiKey:     apiKey,
		httpClient: httpClient,
		logger:     log,
	}
}

// primaryResponse represents the response structure of the primary service.
type primaryResponse struct {
	Data []primaryRecord `json:"data"`
}

type primaryRecord struct {
	BaseCurrency   string  `json:"base_currency"`
	TargetCurrency string  `json:"target_currency"`
	Rate           float64 `json:"rate"`
	Date           string  `json:"date"`
	SourceDate     string  `json:"source_date"`
}

// FetchRates retrieves the full rate set for a base currency.
func (c *PrimaryClient) FetchRates(ctx context.Context, base string) (entity.RateSet, error) {
	reqURL := fmt.Sprintf("%s%s?from=%s", c.baseURL, ratesPath, url.QueryEscape(base))

	body, err := c.get(ctx, reqURL)
	if err != nil {
		return entity.RateSet{}, err
	}

	var resp primaryResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return entity.RateSet{}, fmt.Errorf("failed to decode primary response: %w", err)
	}

	if len(resp.Data) == 0 {
		return entity.RateSet{}, fmt.Errorf("primary service returned no rates for %s", base)
	}

	rates := make([]entity.ExchangeRate, 0, len(resp.Data))
	for _, rec := range resp.Data {
		rate, err := rec.toEntity(base)
		if err != nil {
			return entity.RateSet{}, err
		}
		rates = append(rates, rate)
	}

	return entity.NewRateSet(base, rates), nil
}

// FetchRate retrieves a single base/target record using the service's
// two-parameter form.
func (c *PrimaryClient) FetchRate(ctx context.Context, base, target string) (entity.ExchangeRate, error) {
	reqURL := fmt.Sprintf("%s%s?from=%s&to=%s", c.baseURL, ratesPath,
		url.QueryEscape(base), url.QueryEscape(target))

	body, err := c.get(ctx, reqURL)
	if err != nil {
		return entity.ExchangeRate{}, err
	}

	var rec primaryRecord
	if err := json.Unmarshal(body, &rec); err != nil {
		return entity.ExchangeRate{}, fmt.Errorf("failed to decode primary response: %w", err)
	}

	return rec.toEntity(base)
}

func (c *PrimaryClient) get(ctx context.Context, reqURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Add("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Add(apiKeyHeader, c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
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
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("primary service returned status %d: %s", resp.StatusCode, string(body))
	}

	return body, nil
}

func (r primaryRecord) toEntity(base string) (entity.ExchangeRate, error) {
	if r.Rate <= 0 {
		return entity.ExchangeRate{}, fmt.Errorf("invalid exchange rate value for %s/%s: %f",
			base, r.TargetCurrency, r.Rate)
	}

	date, err := time.Parse(dateLayout, r.Date)
	if err != nil {
		return entity.ExchangeRate{}, fmt.Errorf("failed to parse rate date %q: %w", r.Date, err)
	}

	rate := entity.ExchangeRate{
		Base:   base,
		Target: r.TargetCurrency,
		Rate:   r.Rate,
		Date:   date,
	}

	if r.SourceDate != "" {
		sourceDate, err := time.Parse(dateLayout, r.SourceDate)
		if err != nil {
			return entity.ExchangeRate{}, fmt.Errorf("failed to parse source date %q: %w", r.SourceDate, err)
		}
		rate.SourceDate = sourceDate
	}

	return rate, nil
}
