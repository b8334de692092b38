// Package client provides a Go client for the OG wallet verification API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Client is an OG wallet verification API client
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

// New creates a new client
func New(baseURL, apiKey string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Request is a pending verification request
type Request struct {
	Code          string    `json:"code"`
	ClaimantID    string    `json:"claimantId"`
	ClaimantLabel string    `json:"claimantLabel"`
	Address       string    `json:"address"`
	OriginContext string    `json:"originContext,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
	ExpiresAt     time.Time `json:"expiresAt,omitempty"`
}

// InitiateRequest starts a verification
type InitiateRequest struct {
	ClaimantID    string `json:"claimantId"`
	ClaimantLabel string `json:"claimantLabel,omitempty"`
	Address       string `json:"address"`
	OriginContext string `json:"originContext,omitempty"`
}

// Initiation tells the claimant how to complete verification
type Initiation struct {
	Method           string    `json:"method"`
	Request          *Request  `json:"request,omitempty"`
	Amount           string    `json:"amount,omitempty"`
	Symbol           string    `json:"symbol,omitempty"`
	ReceivingAddress string    `json:"receivingAddress,omitempty"`
	ExpiresAt        time.Time `json:"expiresAt,omitempty"`
	Granted          bool      `json:"granted,omitempty"`
	Instructions     string    `json:"instructions"`
}

// Owner identifies who holds a claim
type Owner struct {
	ClaimantID    string    `json:"claimantId"`
	ClaimantLabel string    `json:"claimantLabel"`
	VerifiedAt    time.Time `json:"verifiedAt"`
}

// Status describes where an address stands
type Status struct {
	Address          string        `json:"address"`
	State            string        `json:"state"`
	Owner            *Owner        `json:"owner,omitempty"`
	Request          *Request      `json:"request,omitempty"`
	ExpiresAt        *time.Time    `json:"expiresAt,omitempty"`
	Remaining        time.Duration `json:"remaining,omitempty"`
	Amount           string        `json:"amount,omitempty"`
	Symbol           string        `json:"symbol,omitempty"`
	ReceivingAddress string        `json:"receivingAddress,omitempty"`
}

// TransferReport describes what the engine did with one transfer
type TransferReport struct {
	TransferID  string `json:"transferId"`
	From        string `json:"from"`
	Amount      string `json:"amount"`
	BlockHeight uint64 `json:"blockHeight"`
	Outcome     string `json:"outcome"`
	Code        string `json:"code,omitempty"`
	Address     string `json:"address,omitempty"`
	ClaimantID  string `json:"claimantId,omitempty"`
	RefundTx    string `json:"refundTx,omitempty"`
	RefundError string `json:"refundError,omitempty"`
	Error       string `json:"error,omitempty"`
}

// CycleReport summarizes a reconciliation cycle
type CycleReport struct {
	Skipped      bool             `json:"skipped"`
	Head         uint64           `json:"head,omitempty"`
	FailedBlocks int              `json:"failedBlocks,omitempty"`
	Transfers    []TransferReport `json:"transfers"`
	Duration     time.Duration    `json:"duration"`
	TimedOut     bool             `json:"timedOut,omitempty"`
}

// Mode reports whether payment scanning is running
type Mode struct {
	Scanning         bool   `json:"scanning"`
	Reason           string `json:"reason,omitempty"`
	ReceivingAddress string `json:"receivingAddress,omitempty"`
	Strategy         string `json:"strategy"`
	Pending          int    `json:"pending"`
	Eligible         int    `json:"eligible"`
	Claimed          int    `json:"claimed"`
}

// Claim is an address bound to a claimant
type Claim struct {
	Address       string    `json:"address"`
	ClaimantID    string    `json:"claimantId"`
	ClaimantLabel string    `json:"claimantLabel"`
	VerifiedAt    time.Time `json:"verifiedAt"`
}

// AuditEvent is one audit log entry
type AuditEvent struct {
	ID        string            `json:"id"`
	Kind      string            `json:"kind"`
	Details   map[string]string `json:"details"`
	CreatedAt time.Time         `json:"createdAt"`
}

// ReplaceResult summarizes a bulk wallet list replacement
type ReplaceResult struct {
	Accepted int      `json:"accepted"`
	Rejected []string `json:"rejected,omitempty"`
}

type listResponse[T any] struct {
	Data  []T `json:"data"`
	Count int `json:"count"`
}

// APIError represents an API error response
type APIError struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Initiate starts verifying an address for a claimant
func (c *Client) Initiate(ctx context.Context, req InitiateRequest) (*Initiation, error) {
	var resp Initiation
	if err := c.send(ctx, http.MethodPost, "/api/v1/verifications/", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Status reports the state of an address
func (c *Client) Status(ctx context.Context, address string) (*Status, error) {
	var resp Status
	if err := c.get(ctx, "/api/v1/verifications/status?address="+url.QueryEscape(address), &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Cancel cancels a request on behalf of its claimant. An empty claimantID
// uses the admin route, which cancels any request.
func (c *Client) Cancel(ctx context.Context, code, claimantID string) error {
	if claimantID == "" {
		return c.send(ctx, http.MethodDelete, "/api/v1/admin/verifications/"+url.PathEscape(code), nil, nil)
	}
	path := fmt.Sprintf("/api/v1/verifications/%s?claimantId=%s", url.PathEscape(code), url.QueryEscape(claimantID))
	return c.send(ctx, http.MethodDelete, path, nil, nil)
}

// ListPending lists live requests
func (c *Client) ListPending(ctx context.Context) ([]Request, error) {
	var resp listResponse[Request]
	if err := c.get(ctx, "/api/v1/admin/verifications", &resp); err != nil {
		return nil, err
	}
	return resp.Data, nil
}

// LookupClaimant returns the owner of a claimed address
func (c *Client) LookupClaimant(ctx context.Context, address string) (*Owner, error) {
	var resp struct {
		Owner *Owner `json:"owner"`
	}
	if err := c.get(ctx, "/api/v1/admin/claims/"+url.PathEscape(address), &resp); err != nil {
		return nil, err
	}
	return resp.Owner, nil
}

// ListClaims lists claims, optionally only those of one claimant
func (c *Client) ListClaims(ctx context.Context, claimantID string) ([]Claim, error) {
	path := "/api/v1/admin/claims"
	if claimantID != "" {
		path += "?claimant=" + url.QueryEscape(claimantID)
	}
	var resp listResponse[Claim]
	if err := c.get(ctx, path, &resp); err != nil {
		return nil, err
	}
	return resp.Data, nil
}

// VerifyTransfer runs one transfer through the matcher
func (c *Client) VerifyTransfer(ctx context.Context, hash string) (*TransferReport, error) {
	return c.transfer(ctx, hash, "verify")
}

// ForceTransfer accepts a transfer for its sender's request regardless of
// amount
func (c *Client) ForceTransfer(ctx context.Context, hash string) (*TransferReport, error) {
	return c.transfer(ctx, hash, "force")
}

func (c *Client) transfer(ctx context.Context, hash, action string) (*TransferReport, error) {
	var resp TransferReport
	path := fmt.Sprintf("/api/v1/admin/transfers/%s/%s", url.PathEscape(hash), action)
	if err := c.send(ctx, http.MethodPost, path, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Reconcile runs a scan cycle now
func (c *Client) Reconcile(ctx context.Context) (*CycleReport, error) {
	var resp CycleReport
	if err := c.send(ctx, http.MethodPost, "/api/v1/admin/reconcile", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Mode reports the engine mode
func (c *Client) Mode(ctx context.Context) (*Mode, error) {
	var resp Mode
	if err := c.get(ctx, "/api/v1/admin/mode", &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ListWallets returns the eligible list
func (c *Client) ListWallets(ctx context.Context) ([]string, error) {
	var resp listResponse[string]
	if err := c.get(ctx, "/api/v1/admin/wallets/", &resp); err != nil {
		return nil, err
	}
	return resp.Data, nil
}

// AddWallet adds an address to the eligible list. It reports false when the
// address was already present.
func (c *Client) AddWallet(ctx context.Context, address string) (bool, error) {
	var resp struct {
		Added bool `json:"added"`
	}
	if err := c.send(ctx, http.MethodPost, "/api/v1/admin/wallets/", map[string]string{"address": address}, &resp); err != nil {
		return false, err
	}
	return resp.Added, nil
}

// RemoveWallet removes an address from the eligible list
func (c *Client) RemoveWallet(ctx context.Context, address string) error {
	return c.send(ctx, http.MethodDelete, "/api/v1/admin/wallets/"+url.PathEscape(address), nil, nil)
}

// ReplaceWallets replaces the eligible list with a newline-separated list
func (c *Client) ReplaceWallets(ctx context.Context, list io.Reader) (*ReplaceResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.baseURL+"/api/v1/admin/wallets/", list)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "text/plain")

	var resp ReplaceResult
	if err := c.do(req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ListAudit returns the most recent audit events
func (c *Client) ListAudit(ctx context.Context, limit int) ([]AuditEvent, error) {
	path := "/api/v1/admin/audit"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	var resp listResponse[AuditEvent]
	if err := c.get(ctx, path, &resp); err != nil {
		return nil, err
	}
	return resp.Data, nil
}

func (c *Client) get(ctx context.Context, path string, result any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}

	return c.do(req, result)
}

func (c *Client) send(ctx context.Context, method, path string, body, result any) error {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, &buf)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return c.do(req, result)
}

func (c *Client) do(req *http.Request, result any) error {
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return c.parseError(resp)
	}

	if result != nil && resp.StatusCode != http.StatusNoContent {
		return json.NewDecoder(resp.Body).Decode(result)
	}

	return nil
}

func (c *Client) setHeaders(req *http.Request) {
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}
	req.Header.Set("Accept", "application/json")
}

func (c *Client) parseError(resp *http.Response) error {
	var errResp struct {
		Error APIError `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&errResp); err != nil || errResp.Error.Code == "" {
		return &APIError{Status: resp.StatusCode, Code: "HTTP_" + strconv.Itoa(resp.StatusCode), Message: resp.Status}
	}
	errResp.Error.Status = resp.StatusCode
	return &errResp.Error
}
