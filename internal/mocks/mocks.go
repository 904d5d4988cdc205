// internal/mocks/mocks.go
package mocks

import (
	"context"
	"time"

	"github.com/offlinefx/offlinefx/internal/domain/entity"
	"github.com/stretchr/testify/mock"
)

// MockRateStore mocks the RateStore interface
type MockRateStore struct {
	mock.Mock
}

func (m *MockRateStore) Get(ctx context.Context, base string) (entity.RateSet, bool) {
	args := m.Called(ctx, base)
	return args.Get(0).(entity.RateSet), args.Bool(1)
}

func (m *MockRateStore) Put(ctx context.Context, base string, set entity.RateSet, meta entity.FetchMetadata) error {
	args := m.Called(ctx, base, set, meta)
	return args.Error(0)
}

func (m *MockRateStore) Metadata() entity.FetchMetadata {
	args := m.Called()
	return args.Get(0).(entity.FetchMetadata)
}

func (m *MockRateStore) LatestRateDate(ctx context.Context, base string) (time.Time, bool) {
	args := m.Called(ctx, base)
	return args.Get(0).(time.Time), args.Bool(1)
}

// MockRateProvider mocks the RateProvider interface
type MockRateProvider struct {
	mock.Mock
}

func (m *MockRateProvider) FetchRates(ctx context.Context, base string) (entity.RateSet, error) {
	args := m.Called(ctx, base)
	return args.Get(0).(entity.RateSet), args.Error(1)
}
