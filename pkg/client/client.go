// Package client provides a Go client for the crowdfund-deploy history API.
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
)

// Client is a history API client
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

// WithAPIKey sends key with every API request
func WithAPIKey(key string) Option {
	return func(client *Client) {
		client.apiKey = key
	}
}

// New creates a new client for the server at baseURL
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

// Deployment is a recorded deployment run
type Deployment struct {
	ID                 string `json:"id,omitempty"`
	ChainID            int64  `json:"chainId"`
	Network            string `json:"network"`
	Address            string `json:"address"`
	ContractName       string `json:"contractName"`
	DeployerAddress    string `json:"deployerAddress,omitempty"`
	TxHash             string `json:"txHash"`
	BlockNumber        int64  `json:"blockNumber,omitempty"`
	ConstructorArgs    string `json:"constructorArgs,omitempty"`
	Status             string `json:"status"`
	FailedStep         string `json:"failedStep,omitempty"`
	Error              string `json:"error,omitempty"`
	VerificationStatus string `json:"verificationStatus,omitempty"`
	VerificationGUID   string `json:"verificationGuid,omitempty"`
	VerifiedAt         string `json:"verifiedAt,omitempty"`
	CreatedAt          string `json:"createdAt"`
	Tiers              []Tier `json:"tiers,omitempty"`
}

// Tier is a tier seeded by a deployment run
type Tier struct {
	Position    int    `json:"position"`
	Name        string `json:"name"`
	AmountWei   string `json:"amountWei"`
	TxHash      string `json:"txHash"`
	BlockNumber int64  `json:"blockNumber"`
}

// ListOptions filters ListDeployments
type ListOptions struct {
	ChainID string
	Status  string
	Limit   int
}

// ListDeploymentsResponse is the response for listing deployments
type ListDeploymentsResponse struct {
	Data       []Deployment `json:"data"`
	Pagination Pagination   `json:"pagination"`
}

// Pagination contains pagination info
type Pagination struct {
	Limit   int  `json:"limit"`
	HasMore bool `json:"hasMore"`
}

// APIError represents an API error response
type APIError struct {
	StatusCode int    `json:"-"`
	Code       string `json:"code"`
	Message    string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Health checks that the server is up
func (c *Client) Health(ctx context.Context) error {
	return c.get(ctx, "/health", nil)
}

// ListDeployments lists deployments, newest first
func (c *Client) ListDeployments(ctx context.Context, opts ListOptions) (*ListDeploymentsResponse, error) {
	q := url.Values{}
	if opts.ChainID != "" {
		q.Set("chain_id", opts.ChainID)
	}
	if opts.Status != "" {
		q.Set("status", opts.Status)
	}
	if opts.Limit > 0 {
		q.Set("limit", strconv.Itoa(opts.Limit))
	}

	path := "/api/v1/deployments"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var resp ListDeploymentsResponse
	if err := c.get(ctx, path, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetDeployment gets a deployment and its tiers by chain ID and address
func (c *Client) GetDeployment(ctx context.Context, chainID, address string) (*Deployment, error) {
	var resp Deployment
	path := fmt.Sprintf("/api/v1/deployments/%s/%s", url.PathEscape(chainID), url.PathEscape(address))
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
		return parseError(resp)
	}

	if result != nil {
		return json.NewDecoder(resp.Body).Decode(result)
	}
	return nil
}

func parseError(resp *http.Response) error {
	var errResp struct {
		Error APIError `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&errResp); err != nil || errResp.Error.Code == "" {
		return &APIError{StatusCode: resp.StatusCode, Code: "HTTP_ERROR", Message: resp.Status}
	}
	errResp.Error.StatusCode = resp.StatusCode
	return &errResp.Error
}
