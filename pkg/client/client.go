package client

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jmerrifield20/agriledger/internal/archive"
	"github.com/jmerrifield20/agriledger/internal/certification/model"
	"github.com/jmerrifield20/agriledger/internal/certification/service"
	"github.com/jmerrifield20/agriledger/internal/trustledger"
	"github.com/jmerrifield20/agriledger/internal/webhooks"
)

// Wire types shared with the server.
type (
	Record          = model.Record
	RecordInput     = model.RecordInput
	Metrics         = model.Metrics
	FieldError      = model.FieldError
	IntegrityReport = service.IntegrityReport
	Entry           = trustledger.Entry
	ArchiveResult   = archive.Result
	Subscription    = webhooks.WebhookSubscription
)

// Errors returned by the server are matched with errors.Is against these.
var (
	ErrValidation    = model.ErrValidation
	ErrNotFound      = model.ErrNotFound
	ErrForbidden     = model.ErrForbidden
	ErrTerminalState = model.ErrTerminalState
	ErrUnauthorized  = errors.New("unauthorized")
)

const maxResponseBytes = 4 << 20

// APIError is a non-2xx response from the ledger.
type APIError struct {
	StatusCode int
	Message    string
	Fields     []FieldError
}

func (e *APIError) Error() string {
	if len(e.Fields) > 0 {
		parts := make([]string, len(e.Fields))
		for i, f := range e.Fields {
			parts[i] = f.Field + ": " + f.Msg
		}
		return fmt.Sprintf("ledger returned %d: %s", e.StatusCode, strings.Join(parts, "; "))
	}
	return fmt.Sprintf("ledger returned %d: %s", e.StatusCode, e.Message)
}

// Unwrap maps the HTTP status onto the ledger's error kinds.
func (e *APIError) Unwrap() error {
	switch e.StatusCode {
	case http.StatusBadRequest:
		return ErrValidation
	case http.StatusUnauthorized:
		return ErrUnauthorized
	case http.StatusForbidden:
		return ErrForbidden
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusConflict:
		return ErrTerminalState
	}
	return nil
}

// Client talks to one ledger server.
type Client struct {
	base       string
	httpClient *http.Client

	bearerToken string
	devSubject  string
	devRole     string
}

// Option is a functional option for configuring a Client.
type Option func(*Client) error

// WithHTTPClient sets a custom http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) error {
		if hc == nil {
			return errors.New("http client must not be nil")
		}
		c.httpClient = hc
		return nil
	}
}

// WithBearerToken attaches a role token minted by POST /tokens to every
// request.
func WithBearerToken(token string) Option {
	return func(c *Client) error {
		c.bearerToken = token
		return nil
	}
}

// WithDevIdentity sends the development identity headers. The server only
// honours them when dev headers are enabled.
func WithDevIdentity(subject, role string) Option {
	return func(c *Client) error {
		if _, err := model.ParseRole(role); err != nil {
			return err
		}
		c.devSubject = subject
		c.devRole = role
		return nil
	}
}

// WithInsecureSkipVerify disables TLS certificate verification.
// Only use this against a development server.
func WithInsecureSkipVerify() Option {
	return func(c *Client) error {
		c.httpClient = &http.Client{
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{InsecureSkipVerify: true}, //nolint:gosec
			},
			Timeout: 10 * time.Second,
		}
		return nil
	}
}

// New creates a Client for the server at base, e.g. "http://localhost:8080".
func New(base string, opts ...Option) (*Client, error) {
	if _, err := url.ParseRequestURI(base); err != nil {
		return nil, fmt.Errorf("parse base URL: %w", err)
	}
	c := &Client{
		base:       strings.TrimRight(base, "/"),
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
	for _, o := range opts {
		if err := o(c); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// MustNew is like New but panics on error.
func MustNew(base string, opts ...Option) *Client {
	c, err := New(base, opts...)
	if err != nil {
		panic(err)
	}
	return c
}

// CreateRecord registers a new certification record.
func (c *Client) CreateRecord(ctx context.Context, in RecordInput) (*Record, error) {
	var resp struct {
		Record Record `json:"record"`
	}
	if err := c.call(ctx, http.MethodPost, "/api/v1/records", in, &resp); err != nil {
		return nil, err
	}
	return &resp.Record, nil
}

// GetRecord fetches a record by id.
func (c *Client) GetRecord(ctx context.Context, id uuid.UUID) (*Record, error) {
	var rec Record
	if err := c.call(ctx, http.MethodGet, "/api/v1/records/"+id.String(), nil, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// ListRecords lists records, optionally narrowed by category and status.
// Empty arguments match everything.
func (c *Client) ListRecords(ctx context.Context, category, status string) ([]Record, error) {
	q := url.Values{}
	if category != "" {
		q.Set("category", category)
	}
	if status != "" {
		q.Set("status", status)
	}
	path := "/api/v1/records"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	var resp struct {
		Records []Record `json:"records"`
	}
	if err := c.call(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Records, nil
}

// VerifyRecord records one verification by the caller.
func (c *Client) VerifyRecord(ctx context.Context, id uuid.UUID) (*Record, error) {
	var rec Record
	if err := c.call(ctx, http.MethodPost, "/api/v1/records/"+id.String()+"/verify", nil, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// DisputeRecord moves a record to Disputed.
func (c *Client) DisputeRecord(ctx context.Context, id uuid.UUID, reason string) (*Record, error) {
	var rec Record
	body := map[string]string{"reason": reason}
	if err := c.call(ctx, http.MethodPost, "/api/v1/records/"+id.String()+"/dispute", body, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// History returns the event log entries for one record in append order.
func (c *Client) History(ctx context.Context, id uuid.UUID) ([]Entry, error) {
	var resp struct {
		Entries []Entry `json:"entries"`
	}
	if err := c.call(ctx, http.MethodGet, "/api/v1/records/"+id.String()+"/history", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Entries, nil
}

// CheckIntegrity asks the server to recompute a record's integrity hash.
func (c *Client) CheckIntegrity(ctx context.Context, id uuid.UUID) (*IntegrityReport, error) {
	var report IntegrityReport
	if err := c.call(ctx, http.MethodGet, "/api/v1/records/"+id.String()+"/integrity", nil, &report); err != nil {
		return nil, err
	}
	return &report, nil
}

// Summary returns the ledger-wide metrics roll-up.
func (c *Client) Summary(ctx context.Context) (*Metrics, error) {
	var m Metrics
	if err := c.call(ctx, http.MethodGet, "/api/v1/metrics/summary", nil, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// LedgerStatus is the event log overview plus its verification result.
type LedgerStatus struct {
	Entries int    `json:"entries"`
	Root    string `json:"root"`
	Valid   bool   `json:"valid"`
	Error   string `json:"error,omitempty"`
}

// LedgerStatus reports the event log length, head hash, and chain validity.
func (c *Client) LedgerStatus(ctx context.Context) (*LedgerStatus, error) {
	var st LedgerStatus
	if err := c.call(ctx, http.MethodGet, "/api/v1/ledger", nil, &st); err != nil {
		return nil, err
	}
	if err := c.call(ctx, http.MethodGet, "/api/v1/ledger/verify", nil, &st); err != nil {
		return nil, err
	}
	return &st, nil
}

// IssueToken mints a role token. Requires an admin caller.
func (c *Client) IssueToken(ctx context.Context, subject, role string, ttl time.Duration) (string, error) {
	body := map[string]string{"subject": subject, "role": role}
	if ttl > 0 {
		body["ttl"] = ttl.String()
	}
	var resp struct {
		Token string `json:"token"`
	}
	if err := c.call(ctx, http.MethodPost, "/api/v1/tokens", body, &resp); err != nil {
		return "", err
	}
	return resp.Token, nil
}

// Archive forces an event log archive run. Requires an admin caller.
func (c *Client) Archive(ctx context.Context) (*ArchiveResult, error) {
	var res ArchiveResult
	if err := c.call(ctx, http.MethodPost, "/api/v1/admin/archive", nil, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Subscribe registers a webhook and returns it with its signing secret,
// which the server shows only once.
func (c *Client) Subscribe(ctx context.Context, callbackURL string, events []string) (*Subscription, string, error) {
	var resp struct {
		Subscription Subscription `json:"subscription"`
		Secret       string       `json:"secret"`
	}
	body := webhooks.CreateSubscriptionRequest{URL: callbackURL, Events: events}
	if err := c.call(ctx, http.MethodPost, "/api/v1/webhooks", body, &resp); err != nil {
		return nil, "", err
	}
	return &resp.Subscription, resp.Secret, nil
}

// Subscriptions lists the caller's webhooks.
func (c *Client) Subscriptions(ctx context.Context) ([]Subscription, error) {
	var resp struct {
		Subscriptions []Subscription `json:"subscriptions"`
	}
	if err := c.call(ctx, http.MethodGet, "/api/v1/webhooks", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Subscriptions, nil
}

// Unsubscribe deletes one of the caller's webhooks.
func (c *Client) Unsubscribe(ctx context.Context, id uuid.UUID) error {
	return c.call(ctx, http.MethodDelete, "/api/v1/webhooks/"+id.String(), nil, nil)
}

// call encodes reqBody, executes the request, and decodes a 2xx body into
// respBody. Either may be nil.
func (c *Client) call(ctx context.Context, method, path string, reqBody, respBody any) error {
	var body io.Reader
	if reqBody != nil {
		b, err := json.Marshal(reqBody)
		if err != nil {
			return fmt.Errorf("marshal request body: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if reqBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	raw, err := c.do(req)
	if err != nil {
		return err
	}
	if respBody != nil && len(raw) > 0 {
		if err := json.Unmarshal(raw, respBody); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

// do executes an HTTP request with the configured credentials.
func (c *Client) do(req *http.Request) ([]byte, error) {
	switch {
	case c.bearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.bearerToken)
	case c.devSubject != "":
		req.Header.Set("X-Ledger-Subject", c.devSubject)
		req.Header.Set("X-Ledger-Role", c.devRole)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		var payload struct {
			Error  string       `json:"error"`
			Fields []FieldError `json:"fields"`
		}
		if json.Unmarshal(body, &payload) == nil && payload.Error != "" {
			apiErr.Message = payload.Error
			apiErr.Fields = payload.Fields
		} else {
			apiErr.Message = strings.TrimSpace(string(body))
		}
		return nil, apiErr
	}
	return body, nil
}
