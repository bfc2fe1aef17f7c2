// Package etherscan submits source verification to Etherscan-compatible
// explorers (v2 multichain API).
package etherscan

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/time/rate"
)

// Common errors
var (
	ErrVerificationFailed = errors.New("verification failed")
	ErrStillPending       = errors.New("verification still pending")
)

// Status is the final state of a verification
type Status string

// Verification statuses
const (
	StatusVerified        Status = "verified"
	StatusAlreadyVerified Status = "already_verified"
)

// Request describes the contract to verify
type Request struct {
	ChainID         int64
	Address         common.Address
	ContractName    string // fully qualified: "contracts/CrowdFunding.sol:CrowdFunding"
	CompilerVersion string // "v0.8.19+commit.7dd6d404"
	StandardJSON    []byte
	ConstructorArgs []byte // ABI-encoded, without selector
}

// Result describes a finished verification
type Result struct {
	Status  Status
	GUID    string
	Message string
	URL     string
	Polls   int
}

// apiResponse is the envelope every Etherscan endpoint returns
type apiResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Result  string `json:"result"`
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithRateLimit caps outgoing requests per second. Zero or less disables it.
func WithRateLimit(perSecond float64) Option {
	return func(c *Client) {
		if perSecond <= 0 {
			c.limiter = nil
			return
		}
		c.limiter = rate.NewLimiter(rate.Limit(perSecond), 1)
	}
}

// WithPolling sets the status poll interval and how many polls to make
func WithPolling(interval time.Duration, maxAttempts int) Option {
	return func(c *Client) {
		if interval > 0 {
			c.pollInterval = interval
		}
		if maxAttempts > 0 {
			c.maxAttempts = maxAttempts
		}
	}
}

// WithBrowserURL sets the explorer UI used for result links
func WithBrowserURL(u string) Option {
	return func(c *Client) {
		c.browserURL = strings.TrimRight(u, "/")
	}
}

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// Client talks to the explorer API
type Client struct {
	apiURL       string
	apiKey       string
	browserURL   string
	httpClient   *http.Client
	limiter      *rate.Limiter
	pollInterval time.Duration
	maxAttempts  int
	logger       *slog.Logger
}

// New creates a client for apiURL authenticated with apiKey
func New(apiURL, apiKey string, opts ...Option) *Client {
	c := &Client{
		apiURL: apiURL,
		apiKey: apiKey,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
		limiter:      rate.NewLimiter(rate.Limit(5), 1),
		pollInterval: 3 * time.Second,
		maxAttempts:  20,
		logger:       slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Verify submits req and polls until the explorer reaches a verdict.
// A contract the explorer already knows is reported as StatusAlreadyVerified,
// not as an error.
func (c *Client) Verify(ctx context.Context, req Request) (*Result, error) {
	res := &Result{URL: c.addressURL(req.Address)}

	guid, already, err := c.submitWithRetry(ctx, req)
	if err != nil {
		return nil, err
	}
	if already {
		res.Status = StatusAlreadyVerified
		res.Message = "Contract source code already verified"
		return res, nil
	}
	res.GUID = guid
	c.logger.Info("verification submitted", "address", req.Address.Hex(), "guid", guid)

	for res.Polls < c.maxAttempts {
		if err := c.sleep(ctx); err != nil {
			return nil, err
		}
		res.Polls++

		status, msg, err := c.CheckStatus(ctx, req.ChainID, guid)
		if err != nil {
			return nil, err
		}
		if status == "" {
			c.logger.Debug("verification pending", "guid", guid, "poll", res.Polls)
			continue
		}
		res.Status = status
		res.Message = msg
		return res, nil
	}
	return nil, fmt.Errorf("%w after %d polls (guid %s)", ErrStillPending, res.Polls, guid)
}

// submitWithRetry resubmits while the explorer has not indexed the
// contract code yet.
func (c *Client) submitWithRetry(ctx context.Context, req Request) (string, bool, error) {
	for attempt := 1; ; attempt++ {
		guid, already, err := c.Submit(ctx, req)
		if err == nil || !isNotIndexed(err) || attempt >= c.maxAttempts {
			return guid, already, err
		}
		c.logger.Info("explorer has not indexed the contract yet, retrying", "attempt", attempt)
		if err := c.sleep(ctx); err != nil {
			return "", false, err
		}
	}
}

// Submit sends verifysourcecode. It returns the GUID to poll, or
// already=true when the contract is verified.
func (c *Client) Submit(ctx context.Context, req Request) (guid string, already bool, err error) {
	form := url.Values{}
	form.Set("apikey", c.apiKey)
	form.Set("chainid", strconv.FormatInt(req.ChainID, 10))
	form.Set("module", "contract")
	form.Set("action", "verifysourcecode")
	form.Set("contractaddress", req.Address.Hex())
	form.Set("codeformat", "solidity-standard-json-input")
	form.Set("sourceCode", string(req.StandardJSON))
	form.Set("contractname", req.ContractName)
	form.Set("compilerversion", req.CompilerVersion)
	// The API spells it this way
	form.Set("constructorArguements", hex.EncodeToString(req.ConstructorArgs))

	endpoint, err := c.endpoint(url.Values{"chainid": {strconv.FormatInt(req.ChainID, 10)}})
	if err != nil {
		return "", false, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", false, err
	}
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.do(httpReq)
	if err != nil {
		return "", false, fmt.Errorf("submitting verification: %w", err)
	}

	if resp.Status == "1" {
		return resp.Result, false, nil
	}
	if isAlreadyVerified(resp.Result) || isAlreadyVerified(resp.Message) {
		return "", true, nil
	}
	return "", false, fmt.Errorf("%w: %s", ErrVerificationFailed, resp.Result)
}

// endpoint adds params to the API URL, keeping any query it already carries
func (c *Client) endpoint(params url.Values) (string, error) {
	u, err := url.Parse(c.apiURL)
	if err != nil {
		return "", fmt.Errorf("invalid explorer API URL %q: %w", c.apiURL, err)
	}
	q := u.Query()
	for k, v := range params {
		q[k] = v
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// CheckStatus polls checkverifystatus once. An empty status means the
// request is still queued.
func (c *Client) CheckStatus(ctx context.Context, chainID int64, guid string) (Status, string, error) {
	q := url.Values{}
	q.Set("apikey", c.apiKey)
	q.Set("chainid", strconv.FormatInt(chainID, 10))
	q.Set("module", "contract")
	q.Set("action", "checkverifystatus")
	q.Set("guid", guid)

	endpoint, err := c.endpoint(q)
	if err != nil {
		return "", "", err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", "", err
	}

	resp, err := c.do(httpReq)
	if err != nil {
		return "", "", fmt.Errorf("checking verification status: %w", err)
	}

	switch {
	case strings.Contains(strings.ToLower(resp.Result), "pending"):
		return "", resp.Result, nil
	case isAlreadyVerified(resp.Result):
		return StatusAlreadyVerified, resp.Result, nil
	case resp.Status == "1" || strings.HasPrefix(resp.Result, "Pass"):
		return StatusVerified, resp.Result, nil
	default:
		return "", "", fmt.Errorf("%w: %s", ErrVerificationFailed, resp.Result)
	}
}

func (c *Client) do(req *http.Request) (*apiResponse, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(req.Context()); err != nil {
			return nil, err
		}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var out apiResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}
	return &out, nil
}

func (c *Client) sleep(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(c.pollInterval):
		return nil
	}
}

func (c *Client) addressURL(addr common.Address) string {
	if c.browserURL == "" {
		return ""
	}
	return c.browserURL + "/address/" + addr.Hex() + "#code"
}

func isAlreadyVerified(s string) bool {
	return strings.Contains(strings.ToLower(s), "already verified")
}

func isNotIndexed(err error) bool {
	return errors.Is(err, ErrVerificationFailed) &&
		strings.Contains(err.Error(), "Unable to locate ContractCode")
}
