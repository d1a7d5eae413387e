package overpass

import (
	"time"
)

// Hooks defines observer callbacks for the request lifecycle. All
// callbacks are optional and must be safe for concurrent invocation;
// they are called synchronously from Execute.
type Hooks struct {
	// OnRequest is called when a query starts executing, before the
	// cache lookup.
	OnRequest func(query Query)

	// OnResponse is called when a query finishes, from cache or network.
	// Exactly one of resp and err is non-nil; duration is zero for cache
	// hits.
	OnResponse func(query Query, resp *Response, err error, duration time.Duration)
}

// SetHooks sets the observer callbacks for this client.
func (c *Client) SetHooks(hooks *Hooks) {
	c.hooksMu.Lock()
	defer c.hooksMu.Unlock()
	c.hooks = hooks
}

func (c *Client) getHooks() *Hooks {
	c.hooksMu.RLock()
	defer c.hooksMu.RUnlock()
	return c.hooks
}

func (c *Client) notifyRequest(query Query) {
	c.stateMu.Lock()
	c.loading++
	c.stateMu.Unlock()

	if h := c.getHooks(); h != nil && h.OnRequest != nil {
		h.OnRequest(query)
	}
}

func (c *Client) notifyResponse(query Query, resp *Response, err error, duration time.Duration) {
	c.stateMu.Lock()
	c.loading--
	if err != nil {
		c.lastErr = err
	} else {
		c.lastResp = resp
		c.lastErr = nil
	}
	c.stateMu.Unlock()

	if h := c.getHooks(); h != nil && h.OnResponse != nil {
		h.OnResponse(query, resp, err, duration)
	}
}

// Loading reports whether any Execute call is currently in progress.
func (c *Client) Loading() bool {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()
	return c.loading > 0
}

// LastResponse returns the most recent successful response, if any.
func (c *Client) LastResponse() *Response {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()
	return c.lastResp
}

// LastError returns the error of the most recent failed request, or nil
// if the latest request succeeded.
func (c *Client) LastError() error {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()
	return c.lastErr
}
