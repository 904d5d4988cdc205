// Package handler internal/infrastructure/handler/rate_handler.go
package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"
	"github.com/offlinefx/offlinefx/internal/application/service"
	"github.com/offlinefx/offlinefx/internal/infrastructure/logger"
	"github.com/offlinefx/offlinefx/internal/infrastructure/middleware"
)

// RateHandler handles HTTP requests for rates, conversions and freshness
// metadata.
type RateHandler struct {
	rates      *service.RateService
	conversion *service.ConversionService
	logger     logger.Logger
}

// NewRateHandler creates a new rate handler.
func NewRateHandler(rates *service.RateService, conversion *service.ConversionService, log logger.Logger) *RateHandler {
	if log == nil {
		log = logger.GetDefaultLogger()
	}

	return &RateHandler{
		rates:      rates,
		conversion: conversion,
		logger:     log,
	}
}

// RegisterRoutes registers the handler's routes with the router.
func (h *RateHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/api/rates/{base}", h.GetRates).Methods(http.MethodGet)
	router.HandleFunc("/api/rates/{base}/updated", h.GetLatestUpdate).Methods(http.MethodGet)
	router.HandleFunc("/api/convert", h.Convert).Methods(http.MethodGet)
	router.HandleFunc("/api/metadata", h.GetMetadata).Methods(http.MethodGet)
}

// GetRates returns the rate set for a base currency. It serves stored data
// when fresh and fetches otherwise; refresh=1 forces a fetch. The response
// never carries an error status: an empty set means "rate unknown".
func (h *RateHandler) GetRates(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())

	base := strings.ToUpper(mux.Vars(r)["base"])
	if len(base) != 3 {
		sendErrorResponse(w, h.logger, "Invalid currency code",
			"Currency code should be 3 characters (e.g., EUR, GBP, CAD)", http.StatusBadRequest, requestID)
		return
	}

	force := r.URL.Query().Get("refresh") == "1"
	set := h.rates.Rates(r.Context(), base, force)

	sendJSON(w, h.logger, http.StatusOK, RateSetResponse{
		Base:  set.Base,
		Rates: set.Rates,
		Count: len(set.Rates),
	}, requestID)
}

// Convert converts an amount between two currencies. An unknown rate first
// triggers a fetch for the base and retries once; if the rate is still
// unknown the response is a pending state, not an error.
func (h *RateHandler) Convert(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())
	query := r.URL.Query()

	from := strings.ToUpper(query.Get("from"))
	to := strings.ToUpper(query.Get("to"))
	if len(from) != 3 || len(to) != 3 {
		sendErrorResponse(w, h.logger, "Invalid currency code",
			"Both 'from' and 'to' must be 3-character currency codes", http.StatusBadRequest, requestID)
		return
	}

	amount, err := strconv.ParseFloat(query.Get("amount"), 64)
	if err != nil || amount < 0 {
		sendErrorResponse(w, h.logger, "Invalid amount",
			"The 'amount' query parameter must be a non-negative number", http.StatusBadRequest, requestID)
		return
	}

	result, err := h.conversion.Convert(r.Context(), amount, from, to)
	if errors.Is(err, service.ErrUnknownRate) {
		h.logger.Info("Rate unknown, fetching before retry", map[string]interface{}{
			"request_id": requestID,
			"from":       from,
			"to":         to,
		})
		h.rates.FetchRates(r.Context(), from)
		result, err = h.conversion.Convert(r.Context(), amount, from, to)
	}

	if errors.Is(err, service.ErrUnknownRate) {
		sendJSON(w, h.logger, http.StatusOK, ConversionResponse{
			From:   from,
			To:     to,
			Amount: amount,
			Status: "unknown_rate",
		}, requestID)
		return
	}

	if err != nil {
		h.logger.Error("Unexpected conversion error", map[string]interface{}{
			"request_id": requestID,
			"from":       from,
			"to":         to,
			"error":      err.Error(),
		})
		sendErrorResponse(w, h.logger, "Internal server error",
			"An unexpected error occurred. Please try again later.", http.StatusInternalServerError, requestID)
		return
	}

	sendJSON(w, h.logger, http.StatusOK, ConversionResponse{
		From:   from,
		To:     to,
		Amount: amount,
		Result: &result,
		Status: "ok",
	}, requestID)
}

// GetMetadata returns the last fetch metadata together with the freshness
// signals: the calendar-day staleness verdict and the manual-refresh nudge.
func (h *RateHandler) GetMetadata(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())
	view := h.rates.Metadata()

	resp := MetadataResponse{
		Source:       string(view.Metadata.Source),
		Online:       view.Metadata.Online,
		Stale:        view.Stale,
		OfferRefresh: view.OfferRefresh,
		EverFetched:  view.EverFetched,
	}
	if view.EverFetched {
		resp.LastFetch = view.Metadata.LastFetch.UTC().Format(timestampLayout)
		resp.RateDate = view.Metadata.RateDate.Format(dateLayout)
		resp.HoursSinceUpdate = &view.HoursSinceUpdate
	}

	sendJSON(w, h.logger, http.StatusOK, resp, requestID)
}

// GetLatestUpdate returns the max rate date among cached entries for a base.
func (h *RateHandler) GetLatestUpdate(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())

	base := strings.ToUpper(mux.Vars(r)["base"])
	if len(base) != 3 {
		sendErrorResponse(w, h.logger, "Invalid currency code",
			"Currency code should be 3 characters (e.g., EUR, GBP, CAD)", http.StatusBadRequest, requestID)
		return
	}

	updated, ok := h.rates.LatestUpdateDate(r.Context(), base)
	if !ok {
		sendErrorResponse(w, h.logger, "No cached rates",
			"No rates have been cached for this base currency", http.StatusNotFound, requestID)
		return
	}

	sendJSON(w, h.logger, http.StatusOK, LatestUpdateResponse{
		Base:    base,
		Updated: updated.Format(dateLayout),
	}, requestID)
}

func sendJSON(w http.ResponseWriter, log logger.Logger, status int, payload interface{}, requestID string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Error("Failed to encode response", map[string]interface{}{
			"request_id": requestID,
			"error":      err.Error(),
		})
	}
}

func sendErrorResponse(w http.ResponseWriter, log logger.Logger, message, description string, status int, requestID string) {
	log.Warn(message, map[string]interface{}{
		"request_id":  requestID,
		"status":      status,
		"description": description,
	})

	sendJSON(w, log, status, ErrorResponse{
		Error:       message,
		Status:      status,
		Description: description,
		RequestID:   requestID,
	}, requestID)
}
