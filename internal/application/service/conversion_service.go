// Package service internal/application/service/conversion_service.go
package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/offlinefx/offlinefx/internal/domain/repository"
	"github.com/offlinefx/offlinefx/internal/infrastructure/logger"
	"github.com/offlinefx/offlinefx/internal/metrics"
)

// ErrUnknownRate signals that no rate is currently stored for a conversion.
// Callers are expected to trigger FetchRates for the base and retry; it is a
// pending state, not a failure.
var ErrUnknownRate = errors.New("unknown exchange rate")

// ConversionService computes converted amounts from the rate store. It is a
// pure function of store state plus input and performs no I/O of its own.
type ConversionService struct {
	store   repository.RateStore
	logger  logger.Logger
	metrics *metrics.Metrics
}

// NewConversionService creates a new conversion service.
func NewConversionService(store repository.RateStore, log logger.Logger, m *metrics.Metrics) *ConversionService {
	if log == nil {
		log = logger.GetDefaultLogger()
	}

	return &ConversionService{
		store:   store,
		logger:  log,
		metrics: m,
	}
}

// Convert converts an amount from one currency to another using the stored
// rates. Same-currency conversions return the amount unchanged without
// consulting the store. The result keeps full precision; rounding is a
// presentation concern.
func (s *ConversionService) Convert(ctx context.Context, amount float64, from, to string) (float64, error) {
	if from == to {
		s.metrics.ObserveConversion("identity")
		return amount, nil
	}

	set, ok := s.store.Get(ctx, from)
	if !ok {
		s.metrics.ObserveConversion("unknown_rate")
		return 0, fmt.Errorf("%w: no rates stored for base %s", ErrUnknownRate, from)
	}

	rate, ok := set.Lookup(to)
	if !ok {
		s.metrics.ObserveConversion("unknown_rate")
		return 0, fmt.Errorf("%w: %s to %s", ErrUnknownRate, from, to)
	}

	s.metrics.ObserveConversion("ok")
	s.logger.Debug("Conversion computed", map[string]interface{}{
		"from":   from,
		"to":     to,
		"amount": amount,
		"rate":   rate.Rate,
	})

	return amount * rate.Rate, nil
}
