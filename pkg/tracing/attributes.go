package tracing

import "go.opentelemetry.io/otel/attribute"

// Attribute keys for Overpass client operations
const (
	// Query attributes
	AttrQueryFormat  = "overpass.query.format"
	AttrQueryTimeout = "overpass.query.timeout_s"
	AttrQueryLength  = "overpass.query.length"

	// Cache attributes
	AttrCacheHit = "overpass.cache.hit"
	AttrCacheKey = "overpass.cache.key"

	// Rate limiting attributes
	AttrRateLimitWaitMs = "overpass.ratelimit.wait_ms"

	// HTTP transport attributes
	AttrHTTPMethod     = "http.method"
	AttrHTTPStatusCode = "http.status_code"
	AttrHTTPURL        = "http.url"

	// Result attributes
	AttrElementCount = "overpass.result.element_count"

	// Error attributes
	AttrErrorType    = "error.type"
	AttrErrorMessage = "error.message"
)

// Status values
const (
	StatusSuccess = "success"
	StatusError   = "error"
	StatusTimeout = "timeout"
)

// CacheAttributes returns attributes for cache operations
func CacheAttributes(hit bool, key string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Bool(AttrCacheHit, hit),
		attribute.String(AttrCacheKey, key),
	}
}

// ErrorAttributes returns attributes for errors
func ErrorAttributes(err error) []attribute.KeyValue {
	if err == nil {
		return nil
	}
	return []attribute.KeyValue{
		attribute.String(AttrErrorType, "error"),
		attribute.String(AttrErrorMessage, err.Error()),
	}
}
