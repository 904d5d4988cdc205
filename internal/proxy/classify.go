package proxy

import (
	"net/http"
	"strings"
)

// RequestClass determines which caching strategy applies to a request.
type RequestClass int

const (
	// ClassRateService covers requests to the known rate-service hosts:
	// network-first, cached in the API partition, synthetic offline 503
	// when neither network nor cache can answer.
	ClassRateService RequestClass = iota
	// ClassDocument covers navigation requests: network-first, cached in
	// the static partition, fixed fallback document as the last resort.
	ClassDocument
	// ClassAsset covers everything else: cache-first, network on miss
	// without storing.
	ClassAsset
)

// String returns the class name used in logs and metrics labels.
func (c RequestClass) String() string {
	switch c {
	case ClassRateService:
		return "rate_service"
	case ClassDocument:
		return "document"
	default:
		return "asset"
	}
}

// Classify decides the request class. It is a pure function of the request
// and the configured rate-service host set, evaluated in order: rate hosts
// first, then navigations, then everything else.
func Classify(req *http.Request, rateHosts map[string]struct{}) RequestClass {
	if _, ok := rateHosts[req.URL.Hostname()]; ok {
		return ClassRateService
	}

	if req.Method == http.MethodGet && strings.Contains(req.Header.Get("Accept"), "text/html") {
		return ClassDocument
	}

	return ClassAsset
}
