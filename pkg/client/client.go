// Package client provides a Go client for the ntunames read API.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/pendergraft/ntunames/internal/auction/domain"
	"github.com/pendergraft/ntunames/internal/auction/transport"
)

// Client is an ntunames API client
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client
func WithHTTPClient(c *http.Client) Option {
	return func(client *Client) {
		client.httpClient = c
	}
}

// WithAPIKey sets the key sent to the bid journal routes
func WithAPIKey(key string) Option {
	return func(client *Client) {
		client.apiKey = key
	}
}

// New creates a new client for the server at baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

type (
	DomainListResponse = transport.DomainListResponse
	ReverseResponse    = transport.ReverseResponse
	BidListResponse    = transport.BidListResponse
	BidItem            = transport.BidItem
)

// Readiness is the /readyz payload.
type Readiness struct {
	Status          string `json:"status"`
	ChainID         int64  `json:"chainId,omitempty"`
	ExpectedChainID int64  `json:"expectedChainId,omitempty"`
	WrongNetwork    bool   `json:"wrongNetwork,omitempty"`
}

// BidQuery filters a journal listing. Zero fields are not sent.
type BidQuery struct {
	Domain  string
	Account string
	Status  string
	Limit   int
	Cursor  string
}

// APIError represents an API error
type APIError struct {
	StatusCode int    `json:"-"`
	Code       string `json:"code"`
	Message    string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// IsNotFound reports whether err is an API 404.
func IsNotFound(err error) bool {
	apiErr, ok := err.(*APIError)
	return ok && apiErr.StatusCode == http.StatusNotFound
}

// Ready checks the server and its node.
func (c *Client) Ready(ctx context.Context) (*Readiness, error) {
	var resp Readiness
	if err := c.get(ctx, "/readyz", &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ListDomains lists every registered domain.
func (c *Client) ListDomains(ctx context.Context) (*DomainListResponse, error) {
	var resp DomainListResponse
	if err := c.get(ctx, "/api/v1/domains", &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Status resolves a domain. With a non-empty account the response includes
// the account's membership, actions and balance.
func (c *Client) Status(ctx context.Context, name, account string) (*domain.Status, error) {
	path := "/api/v1/domains/" + url.PathEscape(name)
	if account != "" {
		path += "?account=" + url.QueryEscape(account)
	}

	var resp domain.Status
	if err := c.get(ctx, path, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Resolve looks up a domain's owner.
func (c *Client) Resolve(ctx context.Context, name string) (*domain.OwnerLookup, error) {
	var resp domain.OwnerLookup
	if err := c.get(ctx, "/api/v1/resolve/"+url.PathEscape(name), &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Reverse returns the primary name of address, or "" if it has none.
func (c *Client) Reverse(ctx context.Context, address string) (*ReverseResponse, error) {
	var resp ReverseResponse
	if err := c.get(ctx, "/api/v1/reverse/"+url.PathEscape(address), &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Bids lists journaled bids.
func (c *Client) Bids(ctx context.Context, q BidQuery) (*BidListResponse, error) {
	params := url.Values{}
	if q.Domain != "" {
		params.Set("domain", q.Domain)
	}
	if q.Account != "" {
		params.Set("account", q.Account)
	}
	if q.Status != "" {
		params.Set("status", q.Status)
	}
	if q.Limit > 0 {
		params.Set("limit", strconv.Itoa(q.Limit))
	}
	if q.Cursor != "" {
		params.Set("cursor", q.Cursor)
	}

	path := "/api/v1/bids"
	if len(params) > 0 {
		path += "?" + params.Encode()
	}

	var resp BidListResponse
	if err := c.get(ctx, path, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) get(ctx context.Context, path string, result any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}

	return c.do(req, result)
}

func (c *Client) do(req *http.Request, result any) error {
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return c.parseError(resp)
	}

	if result != nil {
		return json.NewDecoder(resp.Body).Decode(result)
	}

	return nil
}

func (c *Client) parseError(resp *http.Response) error {
	var errResp struct {
		Error APIError `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&errResp); err != nil || errResp.Error.Code == "" {
		return &APIError{
			StatusCode: resp.StatusCode,
			Code:       "HTTP_" + strconv.Itoa(resp.StatusCode),
			Message:    resp.Status,
		}
	}
	errResp.Error.StatusCode = resp.StatusCode
	return &errResp.Error
}
