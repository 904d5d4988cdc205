package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFallbackClientFetchRates(t *testing.T) {
	t.Run("Successful response", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/latest", r.URL.Path)
			assert.Equal(t, "USD", r.URL.Query().Get("from"))
			_, _ = w.Write([]byte(`{"date":"2026-08-25","rates":{"GBP":0.73,"EUR":0.85,"JPY":147.2}}`))
		}))
		defer server.Close()

		client := NewFallbackClient(server.URL, server.Client(), testLogger())
		set, err := client.FetchRates(context.Background(), "USD")

		assert.NoError(t, err)
		assert.Len(t, set.Rates, 3)

		// Targets are sorted so the set is stable across fetches.
		assert.Equal(t, "EUR", set.Rates[0].Target)
		assert.Equal(t, "GBP", set.Rates[1].Target)
		assert.Equal(t, "JPY", set.Rates[2].Target)

		eur, ok := set.Lookup("EUR")
		assert.True(t, ok)
		assert.Equal(t, 0.85, eur.Rate)
		assert.Equal(t, time.Date(2026, 8, 25, 0, 0, 0, 0, time.UTC), eur.Date)
	})

	t.Run("Empty rates map is an error", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"date":"2026-08-25","rates":{}}`))
		}))
		defer server.Close()

		client := NewFallbackClient(server.URL, server.Client(), testLogger())
		_, err := client.FetchRates(context.Background(), "USD")

		assert.Error(t, err)
		assert.Contains(t, err.Error(), "no rates")
	})

	t.Run("Bad date is an error", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"date":"yesterday","rates":{"EUR":0.85}}`))
		}))
		defer server.Close()

		client := NewFallbackClient(server.URL, server.Client(), testLogger())
		_, err := client.FetchRates(context.Background(), "USD")

		assert.Error(t, err)
	})

	t.Run("Non-2xx status is an error", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "rate limited", http.StatusTooManyRequests)
		}))
		defer server.Close()

		client := NewFallbackClient(server.URL, server.Client(), testLogger())
		_, err := client.FetchRates(context.Background(), "USD")

		assert.Error(t, err)
	})
}
