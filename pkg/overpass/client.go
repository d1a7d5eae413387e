package overpass

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/NERVsystems/overpass/pkg/geo"
	"github.com/NERVsystems/overpass/pkg/monitoring"
	"github.com/NERVsystems/overpass/pkg/tracing"
)

const (
	// DefaultUserAgent is the default User-Agent string
	DefaultUserAgent = "overpass-go/0.1.0"

	// DefaultMaxConns is the number of concurrent connections allowed to
	// one endpoint.
	DefaultMaxConns = 4
)

// Known public Overpass API instances. Any syntactically valid URL is
// accepted as an endpoint; these are the commonly used ones.
const (
	EndpointMain   = "https://overpass-api.de/api/interpreter"
	EndpointKumi   = "https://overpass.kumi.systems/api/interpreter"
	EndpointMailRu = "https://maps.mail.ru/osm/tools/overpass/api/interpreter"
)

// KnownEndpoints lists the built-in public Overpass instances.
var KnownEndpoints = []string{EndpointMain, EndpointKumi, EndpointMailRu}

// Client is an Overpass API client. It checks the response cache, issues
// rate-limited HTTP requests and populates the cache with parsed
// responses. Safe for concurrent use; concurrent Execute calls for the
// same formatted query share a single HTTP round trip.
type Client struct {
	endpoint   *url.URL
	httpClient *http.Client
	limiter    *rate.Limiter
	cache      *ResponseCache
	logger     *slog.Logger
	userAgent  string
	group      singleflight.Group

	mu       sync.Mutex
	inflight map[uint64]context.CancelFunc
	nextID   uint64

	hooksMu sync.RWMutex
	hooks   *Hooks

	stateMu  sync.RWMutex
	loading  int
	lastResp *Response
	lastErr  error
}

// Option configures a Client.
type Option func(*clientConfig)

type clientConfig struct {
	endpoint   string
	userAgent  string
	rps        float64
	burst      int
	maxConns   int
	cache      *ResponseCache
	logger     *slog.Logger
	httpClient *http.Client
}

// WithEndpoint sets the Overpass instance base URL.
func WithEndpoint(endpoint string) Option {
	return func(c *clientConfig) { c.endpoint = endpoint }
}

// WithUserAgent sets the User-Agent string sent with every request.
func WithUserAgent(ua string) Option {
	return func(c *clientConfig) { c.userAgent = ua }
}

// WithRateLimit sets the request rate limit toward the endpoint.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *clientConfig) { c.rps = rps; c.burst = burst }
}

// WithMaxConns sets the number of concurrent connections to the endpoint.
func WithMaxConns(n int) Option {
	return func(c *clientConfig) { c.maxConns = n }
}

// WithCache sets the response cache. Passing a shared cache lets several
// clients serve each other's hits.
func WithCache(cache *ResponseCache) Option {
	return func(c *clientConfig) { c.cache = cache }
}

// WithLogger sets the logger for the client.
func WithLogger(logger *slog.Logger) Option {
	return func(c *clientConfig) { c.logger = logger }
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *clientConfig) { c.httpClient = hc }
}

// NewClient creates an Overpass client. It fails with a QUERY_ERROR if
// the endpoint is not a valid URL.
func NewClient(opts ...Option) (*Client, error) {
	cfg := clientConfig{
		endpoint:  EndpointMain,
		userAgent: DefaultUserAgent,
		rps:       1.0,
		burst:     1,
		maxConns:  DefaultMaxConns,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	u, err := url.Parse(cfg.endpoint)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, WrapError(ErrQueryError,
			fmt.Sprintf("invalid endpoint URL %q", cfg.endpoint), err)
	}

	httpClient := cfg.httpClient
	if httpClient == nil {
		httpClient = &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        cfg.maxConns,
				MaxIdleConnsPerHost: cfg.maxConns,
				MaxConnsPerHost:     cfg.maxConns,
				IdleConnTimeout:     90 * time.Second,
			},
		}
	}

	cache := cfg.cache
	if cache == nil {
		cache = NewResponseCache(DefaultCacheSize, DefaultCacheTTL)
	}

	logger := cfg.logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		endpoint:   u,
		httpClient: httpClient,
		limiter:    rate.NewLimiter(rate.Limit(cfg.rps), cfg.burst),
		cache:      cache,
		logger:     logger.With("component", "overpass"),
		userAgent:  cfg.userAgent,
		inflight:   make(map[uint64]context.CancelFunc),
	}, nil
}

// Endpoint returns the configured endpoint URL.
func (c *Client) Endpoint() string { return c.endpoint.String() }

// Cache returns the client's response cache.
func (c *Client) Cache() *ResponseCache { return c.cache }

// Execute runs a query: cache hit returns immediately with no network
// call; on a miss the query is sent, decoded, cached and returned. An
// empty element list is a valid result, not an error.
func (c *Client) Execute(ctx context.Context, query Query) (*Response, error) {
	key := query.FormattedText()

	ctx, span := tracing.StartSpan(ctx, "overpass.execute",
		trace.WithAttributes(
			attribute.Int(tracing.AttrQueryLength, len(key)),
		),
	)
	defer span.End()

	c.notifyRequest(query)

	if resp, ok := c.cache.Get(key); ok {
		tracing.AddEvent(ctx, "cache_hit",
			trace.WithAttributes(tracing.CacheAttributes(true, key)...))
		c.logger.Debug("cache hit", "query_length", len(key))
		c.notifyResponse(query, resp, nil, 0)
		return resp, nil
	}

	start := time.Now()
	ch := c.group.DoChan(key, func() (any, error) {
		// The flight is detached from the caller: one caller giving up
		// must not fail concurrent waiters sharing this round trip. The
		// flight is still bounded by the query's client timeout and
		// remains cancellable through CancelAll.
		return c.fetch(context.WithoutCancel(ctx), query)
	})

	var v any
	var err error
	select {
	case <-ctx.Done():
		err = c.mapContextError(ctx.Err(), "request abandoned")
	case res := <-ch:
		v, err = res.Val, res.Err
	}
	duration := time.Since(start)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		monitoring.RecordError("client", string(CodeOf(err)))
		c.notifyResponse(query, nil, err, duration)
		return nil, err
	}

	resp := v.(*Response)
	span.SetAttributes(attribute.Int(tracing.AttrElementCount, len(resp.Elements)))
	span.SetStatus(codes.Ok, "")
	c.notifyResponse(query, resp, nil, duration)
	return resp, nil
}

// fetch performs the network round trip for a cache miss. Exactly one
// fetch runs per formatted query at a time; concurrent callers share its
// result.
func (c *Client) fetch(ctx context.Context, query Query) (*Response, error) {
	key := query.FormattedText()
	endpoint := c.endpoint.Host

	ctx, cancel := context.WithTimeout(ctx, query.ClientTimeout())
	id := c.register(cancel)
	defer c.unregister(id)

	// Rate limit before touching the network
	waitStart := time.Now()
	if err := c.limiter.Wait(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, WrapError(ErrNetworkError, "request cancelled", err)
		}
		// Wait also fails fast when no token can arrive before the
		// deadline, without the context itself having expired; every
		// non-cancellation failure here is deadline-driven.
		return nil, WrapError(ErrTimeout, "rate limit wait exceeded deadline", err)
	}
	if wait := time.Since(waitStart); wait > 100*time.Millisecond {
		monitoring.RecordRateLimitWait(endpoint, wait)
		tracing.SetAttributes(ctx,
			attribute.Int64(tracing.AttrRateLimitWaitMs, wait.Milliseconds()))
	}

	reqURL := *c.endpoint
	q := reqURL.Query()
	q.Set("data", key)
	reqURL.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL.String(), nil)
	if err != nil {
		return nil, WrapError(ErrQueryError, "failed to build request", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)

	c.logger.Debug("executing query", "endpoint", endpoint, "query_length", len(key))

	monitoring.InFlightRequests.Inc()
	start := time.Now()
	resp, err := c.httpClient.Do(req)
	duration := time.Since(start)
	monitoring.InFlightRequests.Dec()

	if err != nil {
		monitoring.RecordRequest(endpoint, duration, false)
		return nil, c.mapContextError(err, "request failed")
	}
	defer resp.Body.Close()

	tracing.SetAttributes(ctx,
		attribute.Int(tracing.AttrHTTPStatusCode, resp.StatusCode))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		monitoring.RecordRequest(endpoint, duration, false)
		c.logger.Warn("server returned error status",
			"status", resp.StatusCode, "endpoint", endpoint)
		return nil, NewError(ErrNetworkError,
			fmt.Sprintf("server returned status %d", resp.StatusCode))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		monitoring.RecordRequest(endpoint, duration, false)
		return nil, c.mapContextError(err, "failed to read response body")
	}
	if len(body) == 0 {
		monitoring.RecordRequest(endpoint, duration, false)
		return nil, NewError(ErrNoData, "server returned an empty body")
	}

	var parsed Response
	if err := json.Unmarshal(body, &parsed); err != nil {
		monitoring.RecordRequest(endpoint, duration, false)
		c.logger.Error("failed to decode response",
			"error", err, "body_length", len(body))
		return nil, WrapError(ErrInvalidResponse, "failed to decode response body", err)
	}

	monitoring.RecordRequest(endpoint, duration, true)
	c.logger.Debug("query succeeded",
		"elements", len(parsed.Elements), "duration", duration)

	c.cache.Put(key, &parsed)
	return &parsed, nil
}

// mapContextError folds transport errors into the package error kinds:
// deadline expiry is always a TIMEOUT, everything else a NETWORK_ERROR.
func (c *Client) mapContextError(err error, message string) *Error {
	if errors.Is(err, context.DeadlineExceeded) {
		return WrapError(ErrTimeout, "client deadline exceeded", err)
	}
	if errors.Is(err, context.Canceled) {
		return WrapError(ErrNetworkError, "request cancelled", err)
	}
	return WrapError(ErrNetworkError, message, err)
}

// CancelAll cancels all outstanding requests. Cancellation is
// cooperative: in-flight network I/O may run to completion but its
// result is discarded and no further delivery is expected.
func (c *Client) CancelAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for id, cancel := range c.inflight {
		cancel()
		delete(c.inflight, id)
	}
}

func (c *Client) register(cancel context.CancelFunc) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextID++
	id := c.nextID
	c.inflight[id] = cancel
	return id
}

func (c *Client) unregister(id uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cancel, ok := c.inflight[id]; ok {
		cancel()
		delete(c.inflight, id)
	}
}

// Convenience finders. Each builds the matching preset query and calls
// Execute.

// FindToilets finds toilet amenities within the box.
func (c *Client) FindToilets(ctx context.Context, bbox geo.BoundingBox) (*Response, error) {
	q, err := ToiletsQuery(bbox)
	return c.executePreset(ctx, q, err)
}

// FindRestaurants finds restaurants within the box.
func (c *Client) FindRestaurants(ctx context.Context, bbox geo.BoundingBox) (*Response, error) {
	q, err := RestaurantsQuery(bbox)
	return c.executePreset(ctx, q, err)
}

// FindCafes finds cafes within the box.
func (c *Client) FindCafes(ctx context.Context, bbox geo.BoundingBox) (*Response, error) {
	q, err := CafesQuery(bbox)
	return c.executePreset(ctx, q, err)
}

// FindHotels finds hotels within the box.
func (c *Client) FindHotels(ctx context.Context, bbox geo.BoundingBox) (*Response, error) {
	q, err := HotelsQuery(bbox)
	return c.executePreset(ctx, q, err)
}

// FindShops finds shops within the box. An empty shopType matches any
// shop.
func (c *Client) FindShops(ctx context.Context, bbox geo.BoundingBox, shopType string) (*Response, error) {
	q, err := ShopsQuery(bbox, shopType)
	return c.executePreset(ctx, q, err)
}

// FindParks finds parks within the box.
func (c *Client) FindParks(ctx context.Context, bbox geo.BoundingBox) (*Response, error) {
	q, err := ParksQuery(bbox)
	return c.executePreset(ctx, q, err)
}

func (c *Client) executePreset(ctx context.Context, query Query, err error) (*Response, error) {
	if err != nil {
		return nil, err
	}
	return c.Execute(ctx, query)
}
