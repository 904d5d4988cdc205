package service

import (
	"context"

	"github.com/offlinefx/offlinefx/internal/domain/entity"
)

// RateProvider defines the interface for an external source of exchange
// rates. Both the primary and the fallback service clients implement it.
type RateProvider interface {
	// FetchRates retrieves the full rate set for a base currency.
	FetchRates(ctx context.Context, base string) (entity.RateSet, error)
}
