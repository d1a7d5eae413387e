package overpass

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/NERVsystems/overpass/pkg/geo"
)

const sampleResponse = `{
	"version": 0.6,
	"generator": "Overpass API 0.7.62",
	"elements": [
		{
			"type": "node",
			"id": 1,
			"lat": 0.5,
			"lon": 0.5,
			"tags": {"amenity": "toilets", "name": "Fountain Plaza"}
		},
		{
			"type": "node",
			"id": 2,
			"lat": 0.25,
			"lon": 0.75
		},
		{
			"type": "way",
			"id": 3,
			"nodes": [1, 2],
			"tags": {"leisure": "park"}
		}
	]
}`

func newTestClient(t *testing.T, endpoint string, opts ...Option) *Client {
	t.Helper()
	base := []Option{
		WithEndpoint(endpoint),
		WithRateLimit(1000, 1000),
		WithLogger(slog.New(slog.DiscardHandler)),
	}
	c, err := NewClient(append(base, opts...)...)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return c
}

func testQuery(t *testing.T) Query {
	t.Helper()
	bbox, err := geo.NewBoundingBox(0, 0, 1, 1)
	if err != nil {
		t.Fatal(err)
	}
	q, err := ToiletsQuery(bbox)
	if err != nil {
		t.Fatal(err)
	}
	return q
}

func TestExecuteRequestShape(t *testing.T) {
	query := testQuery(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Errorf("method = %s, want GET", r.Method)
		}
		if got := r.URL.Query().Get("data"); got != query.FormattedText() {
			t.Errorf("data parameter = %q, want %q", got, query.FormattedText())
		}
		if got := r.Header.Get("Accept"); got != "application/json" {
			t.Errorf("Accept = %q", got)
		}
		if got := r.Header.Get("User-Agent"); got != "test-agent/1.0" {
			t.Errorf("User-Agent = %q", got)
		}
		w.Write([]byte(sampleResponse))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, WithUserAgent("test-agent/1.0"))

	resp, err := c.Execute(context.Background(), query)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if len(resp.Elements) != 3 {
		t.Errorf("len(Elements) = %d, want 3", len(resp.Elements))
	}
	if resp.Version != "0.6" {
		t.Errorf("Version = %q, want 0.6", resp.Version)
	}
}

func TestExecuteCachesResponse(t *testing.T) {
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Write([]byte(sampleResponse))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	query := testQuery(t)

	first, err := c.Execute(context.Background(), query)
	if err != nil {
		t.Fatalf("first Execute: %v", err)
	}
	second, err := c.Execute(context.Background(), query)
	if err != nil {
		t.Fatalf("second Execute: %v", err)
	}

	if got := hits.Load(); got != 1 {
		t.Errorf("server hits = %d, want 1 (second call must come from cache)", got)
	}
	if first != second {
		t.Error("cache hit returned a different response instance")
	}
}

func TestExecuteServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "too busy", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)

	_, err := c.Execute(context.Background(), testQuery(t))
	if !IsCode(err, ErrNetworkError) {
		t.Errorf("error = %v, want NETWORK_ERROR", err)
	}
}

func TestExecuteInvalidResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html>definitely not json</html>"))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)

	_, err := c.Execute(context.Background(), testQuery(t))
	if !IsCode(err, ErrInvalidResponse) {
		t.Errorf("error = %v, want INVALID_RESPONSE", err)
	}
}

func TestExecuteEmptyBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)

	_, err := c.Execute(context.Background(), testQuery(t))
	if !IsCode(err, ErrNoData) {
		t.Errorf("error = %v, want NO_DATA", err)
	}
}

func TestExecuteEmptyElementsIsNotError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"elements": []}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)

	resp, err := c.Execute(context.Background(), testQuery(t))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if len(resp.Elements) != 0 {
		t.Errorf("len(Elements) = %d, want 0", len(resp.Elements))
	}
}

func TestExecuteTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(300 * time.Millisecond)
		w.Write([]byte(sampleResponse))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := c.Execute(ctx, testQuery(t))
	if !IsCode(err, ErrTimeout) {
		t.Errorf("error = %v, want TIMEOUT", err)
	}
}

func TestCancelAll(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-block
		w.Write([]byte(sampleResponse))
	}))
	defer srv.Close()
	defer close(block)

	c := newTestClient(t, srv.URL)

	errCh := make(chan error, 1)
	go func() {
		_, err := c.Execute(context.Background(), testQuery(t))
		errCh <- err
	}()

	// Wait for the request to be in flight before cancelling.
	deadline := time.After(2 * time.Second)
	for {
		c.mu.Lock()
		inflight := len(c.inflight)
		c.mu.Unlock()
		if inflight > 0 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("request never became in-flight")
		case <-time.After(5 * time.Millisecond):
		}
	}

	c.CancelAll()

	select {
	case err := <-errCh:
		if !IsCode(err, ErrNetworkError) {
			t.Errorf("error = %v, want NETWORK_ERROR after cancellation", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Execute did not return after CancelAll")
	}
}

func TestConcurrentIdenticalQueriesShareOneRequest(t *testing.T) {
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		time.Sleep(100 * time.Millisecond)
		w.Write([]byte(sampleResponse))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	query := testQuery(t)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := c.Execute(context.Background(), query); err != nil {
				t.Errorf("Execute: %v", err)
			}
		}()
	}
	wg.Wait()

	if got := hits.Load(); got != 1 {
		t.Errorf("server hits = %d, want 1 for identical concurrent queries", got)
	}
}

func TestFindToiletsContainment(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(sampleResponse))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)

	bbox, err := geo.NewBoundingBox(0, 0, 1, 1)
	if err != nil {
		t.Fatal(err)
	}

	resp, err := c.FindToilets(context.Background(), bbox)
	if err != nil {
		t.Fatalf("FindToilets: %v", err)
	}

	// Every element with a coordinate lies within the box; elements
	// lacking one (ways, relations) are exempt.
	for _, e := range resp.Elements {
		loc, ok := e.Location()
		if !ok {
			continue
		}
		if !bbox.Contains(loc) {
			t.Errorf("element %d at %v outside %v", e.ID, loc, bbox)
		}
	}
}

func TestFindersQueryShape(t *testing.T) {
	captured := make(chan string, 2)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured <- r.URL.Query().Get("data")
		w.Write([]byte(sampleResponse))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)

	bbox, err := geo.NewBoundingBox(0, 0, 1, 1)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := c.FindShops(context.Background(), bbox, ""); err != nil {
		t.Fatalf("FindShops(any): %v", err)
	}
	if got := <-captured; !strings.Contains(got, `["shop"](0,0,1,1)`) {
		t.Errorf("untyped shop query = %s", got)
	}

	if _, err := c.FindShops(context.Background(), bbox, "bakery"); err != nil {
		t.Fatalf("FindShops(bakery): %v", err)
	}
	if got := <-captured; !strings.Contains(got, `["shop"="bakery"](0,0,1,1)`) {
		t.Errorf("typed shop query = %s", got)
	}
}

func TestCallerCancellationDoesNotFailOtherWaiters(t *testing.T) {
	var hits atomic.Int64
	entered := make(chan struct{})
	block := make(chan struct{})
	unblock := sync.OnceFunc(func() { close(block) })

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		close(entered)
		<-block
		w.Write([]byte(sampleResponse))
	}))
	defer srv.Close()
	defer unblock()

	c := newTestClient(t, srv.URL)
	query := testQuery(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	firstErr := make(chan error, 1)
	go func() {
		_, err := c.Execute(ctx, query)
		firstErr <- err
	}()

	select {
	case <-entered:
	case <-time.After(2 * time.Second):
		t.Fatal("request never reached the server")
	}

	type result struct {
		resp *Response
		err  error
	}
	secondRes := make(chan result, 1)
	go func() {
		resp, err := c.Execute(context.Background(), query)
		secondRes <- result{resp, err}
	}()

	// Give the second caller time to join the in-flight request, then
	// abandon the first one.
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-firstErr:
		if !IsCode(err, ErrNetworkError) {
			t.Errorf("abandoning caller error = %v, want NETWORK_ERROR", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("cancelled caller did not return")
	}

	unblock()

	select {
	case res := <-secondRes:
		if res.err != nil {
			t.Fatalf("surviving waiter failed: %v", res.err)
		}
		if len(res.resp.Elements) != 3 {
			t.Errorf("surviving waiter got %d elements, want 3", len(res.resp.Elements))
		}
	case <-time.After(2 * time.Second):
		t.Fatal("surviving waiter did not return")
	}

	if got := hits.Load(); got != 1 {
		t.Errorf("server hits = %d, want 1", got)
	}
}

func TestRateLimitDeadlineMapsToTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(sampleResponse))
	}))
	defer srv.Close()

	// One token, then the next arrives hours later: the limiter reports
	// upfront that the wait cannot finish before the client deadline.
	c := newTestClient(t, srv.URL, WithRateLimit(0.001, 1))

	bbox, err := geo.NewBoundingBox(0, 0, 1, 1)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := c.FindToilets(context.Background(), bbox); err != nil {
		t.Fatalf("first request: %v", err)
	}

	_, err = c.FindCafes(context.Background(), bbox)
	if !IsCode(err, ErrTimeout) {
		t.Errorf("rate-limited request error = %v, want TIMEOUT", err)
	}
}

func TestNewClientInvalidEndpoint(t *testing.T) {
	for _, endpoint := range []string{"://missing-scheme", "not a url at all", ""} {
		_, err := NewClient(WithEndpoint(endpoint))
		if !IsCode(err, ErrQueryError) {
			t.Errorf("endpoint %q: error = %v, want QUERY_ERROR", endpoint, err)
		}
	}
}

func TestHooksAndObservableState(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(sampleResponse))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)

	var requests, responses atomic.Int64
	c.SetHooks(&Hooks{
		OnRequest: func(Query) { requests.Add(1) },
		OnResponse: func(_ Query, resp *Response, err error, _ time.Duration) {
			if err == nil && resp != nil {
				responses.Add(1)
			}
		},
	})

	resp, err := c.Execute(context.Background(), testQuery(t))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}

	if requests.Load() != 1 || responses.Load() != 1 {
		t.Errorf("hooks: requests=%d responses=%d, want 1/1", requests.Load(), responses.Load())
	}
	if c.Loading() {
		t.Error("Loading() = true after completion")
	}
	if c.LastResponse() != resp {
		t.Error("LastResponse() does not match the returned response")
	}
	if c.LastError() != nil {
		t.Errorf("LastError() = %v, want nil", c.LastError())
	}

	// Cache hits also notify observers.
	if _, err := c.Execute(context.Background(), testQuery(t)); err != nil {
		t.Fatalf("second Execute: %v", err)
	}
	if requests.Load() != 2 || responses.Load() != 2 {
		t.Errorf("hooks after cache hit: requests=%d responses=%d, want 2/2", requests.Load(), responses.Load())
	}
}

func TestSharedCacheAcrossClients(t *testing.T) {
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Write([]byte(sampleResponse))
	}))
	defer srv.Close()

	shared := NewResponseCache(DefaultCacheSize, DefaultCacheTTL)
	a := newTestClient(t, srv.URL, WithCache(shared))
	b := newTestClient(t, srv.URL, WithCache(shared))

	query := testQuery(t)
	if _, err := a.Execute(context.Background(), query); err != nil {
		t.Fatal(err)
	}
	if _, err := b.Execute(context.Background(), query); err != nil {
		t.Fatal(err)
	}

	if got := hits.Load(); got != 1 {
		t.Errorf("server hits = %d, want 1 with a shared cache", got)
	}
}
