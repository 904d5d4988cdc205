package handler

import (
	"github.com/offlinefx/offlinefx/internal/domain/entity"
)

const (
	dateLayout      = "2006-01-02"
	timestampLayout = "2006-01-02T15:04:05Z07:00"
)

// RateSetResponse is the payload for GET /api/rates/{base}.
type RateSetResponse struct {
	Base  string                `json:"base"`
	Rates []entity.ExchangeRate `json:"rates"`
	Count int                   `json:"count"`
}

// ConversionResponse is the payload for GET /api/convert. Result is absent
// when the rate is unknown; status distinguishes the pending state.
type ConversionResponse struct {
	From   string   `json:"from"`
	To     string   `json:"to"`
	Amount float64  `json:"amount"`
	Result *float64 `json:"result,omitempty"`
	Status string   `json:"status"`
}

// MetadataResponse is the payload for GET /api/metadata.
type MetadataResponse struct {
	Source           string   `json:"source"`
	Online           bool     `json:"online"`
	Stale            bool     `json:"stale"`
	OfferRefresh     bool     `json:"offer_refresh"`
	EverFetched      bool     `json:"ever_fetched"`
	LastFetch        string   `json:"last_fetch,omitempty"`
	RateDate         string   `json:"rate_date,omitempty"`
	HoursSinceUpdate *float64 `json:"hours_since_update,omitempty"`
}

// LatestUpdateResponse is the payload for GET /api/rates/{base}/updated.
type LatestUpdateResponse struct {
	Base    string `json:"base"`
	Updated string `json:"updated"`
}

// ErrorResponse represents a standardized error response
type ErrorResponse struct {
	Error       string `json:"error"`
	Status      int    `json:"status"`
	Description string `json:"description,omitempty"`
	RequestID   string `json:"request_id,omitempty"`
}
