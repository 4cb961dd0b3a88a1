// Package client talks to a registry node over its HTTP API and signs
// triggers on behalf of a wallet.
package client

import (
	"fmt"
	"net/http"
	"net/url"
	"time"

	"TokenRegistry/internal/host"
	"TokenRegistry/internal/registry"
)

const (
	// defaultTimeout bounds every HTTP call.
	defaultTimeout = 30 * time.Second
)

// Client connects to a registry node via HTTP.
type Client struct {
	baseURL string       // baseURL is the node's API root (e.g. "http://127.0.0.1:8080")
	http    *http.Client // http performs the requests
}

// NewClient creates a client for the node at nodeAddr and checks that it
// answers. nodeAddr is either host:port or a full URL.
func NewClient(nodeAddr string) (*Client, error) {
	base := nodeAddr
	if u, err := url.Parse(nodeAddr); err != nil || u.Scheme == "" || u.Host == "" {
		base = "http://" + nodeAddr
	}

	c := &Client{
		baseURL: base,
		http:    &http.Client{Timeout: defaultTimeout},
	}

	var health map[string]string
	if err := c.httpGet(c.baseURL+"/health", &health); err != nil {
		return nil, fmt.Errorf("check health:\n%w", err)
	}

	return c, nil
}

// Submit sends a signed trigger and returns its response. A bounced
// trigger is not an error; check Response.Bounced.
func (c *Client) Submit(t *Signed) (*registry.Response, error) {
	var resp registry.Response

	if err := c.postBytes(c.baseURL+"/trigger", t.Data, &resp); err != nil {
		return nil, fmt.Errorf("submit %s:\n%w", t.Unit, err)
	}

	return &resp, nil
}

// Response fetches the stored response of a unit.
func (c *Client) Response(unit string) (*registry.Response, error) {
	var resp registry.Response

	if err := c.httpGet(c.baseURL+"/response/"+url.PathEscape(unit), &resp); err != nil {
		return nil, err
	}

	return &resp, nil
}

// Symbol returns the binding and contest of a symbol.
func (c *Client) Symbol(symbol string) (*host.Lookup, error) {
	var l host.Lookup

	if err := c.httpGet(c.baseURL+"/symbol/"+url.PathEscape(symbol), &l); err != nil {
		return nil, err
	}

	return &l, nil
}

// Asset returns the binding and contest of an asset.
func (c *Client) Asset(asset string) (*host.Lookup, error) {
	var l host.Lookup

	if err := c.httpGet(c.baseURL+"/asset/"+url.PathEscape(asset), &l); err != nil {
		return nil, err
	}

	return &l, nil
}

// Vars returns the registry variables whose name starts with prefix.
// Numeric values are json.Number.
func (c *Client) Vars(prefix string) (map[string]any, error) {
	vars := make(map[string]any)

	if err := c.httpGet(c.baseURL+"/vars?prefix="+url.QueryEscape(prefix), &vars); err != nil {
		return nil, err
	}

	return vars, nil
}

// Status returns the node's trigger counters.
func (c *Client) Status() (*host.Stats, error) {
	var s host.Stats

	if err := c.httpGet(c.baseURL+"/status", &s); err != nil {
		return nil, err
	}

	return &s, nil
}

// Snapshot downloads a compressed snapshot of the registry state.
func (c *Client) Snapshot() ([]byte, error) {
	return c.httpGetRaw(c.baseURL + "/snapshot")
}
