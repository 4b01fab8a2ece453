// Package gateway provides the outbound client for the withdrawal approval
// authority. Every call is a single attempt under a bounded timeout; retry
// policy belongs to the caller, since blindly retrying a submission risks a
// double spend at the authority.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	svcerrors "github.com/novadex/wallet-layer/internal/errors"
)

const (
	// DefaultSubmitTimeout bounds a withdrawal submission.
	DefaultSubmitTimeout = 10 * time.Second
	// DefaultStatusTimeout bounds a status poll.
	DefaultStatusTimeout = 5 * time.Second

	maxResponseBytes = 1 << 20
)

// SubmitRequest is the payload forwarded to the authority.
type SubmitRequest struct {
	Token       string  `json:"token"`
	Amount      float64 `json:"amount"`
	Address     string  `json:"address"`
	UserAddress string  `json:"userAddress"`
}

// AuthorityResponse carries the authority's reply. Raw preserves the full
// body; RequestID, Status and Message are extracted when present, since the
// authority's response shape is not under our control.
type AuthorityResponse struct {
	RequestID string          `json:"requestId,omitempty"`
	Status    string          `json:"status,omitempty"`
	Message   string          `json:"message,omitempty"`
	Raw       json.RawMessage `json:"raw,omitempty"`
}

// Config configures the client.
type Config struct {
	BaseURL       string
	SubmitTimeout time.Duration
	StatusTimeout time.Duration
}

// Client talks to the approval authority over HTTP.
type Client struct {
	httpClient    *http.Client
	baseURL       string
	submitTimeout time.Duration
	statusTimeout time.Duration
}

// NewClient creates a client for the authority at cfg.BaseURL.
func NewClient(cfg Config) *Client {
	submitTimeout := cfg.SubmitTimeout
	if submitTimeout == 0 {
		submitTimeout = DefaultSubmitTimeout
	}
	statusTimeout := cfg.StatusTimeout
	if statusTimeout == 0 {
		statusTimeout = DefaultStatusTimeout
	}

	return &Client{
		httpClient:    &http.Client{},
		baseURL:       strings.TrimRight(cfg.BaseURL, "/"),
		submitTimeout: submitTimeout,
		statusTimeout: statusTimeout,
	}
}

// Submit forwards a withdrawal request to the authority.
func (c *Client) Submit(ctx context.Context, req SubmitRequest) (*AuthorityResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal submit payload: %w", err)
	}
	return c.call(ctx, http.MethodPost, "/withdrawal-request", bytes.NewReader(body), c.submitTimeout)
}

// QueryStatus asks the authority for the current status of a request.
func (c *Client) QueryStatus(ctx context.Context, requestID string) (*AuthorityResponse, error) {
	return c.call(ctx, http.MethodGet, "/withdrawal-status/"+requestID, nil, c.statusTimeout)
}

func (c *Client) call(ctx context.Context, method, path string, body io.Reader, timeout time.Duration) (*AuthorityResponse, error) {
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(callCtx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("build authority request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, classifyTransportError(err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, svcerrors.GatewayUnreachable(err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, svcerrors.GatewayRejected(resp.StatusCode, detailPayload(raw))
	}

	return parseResponse(raw), nil
}

func classifyTransportError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return svcerrors.GatewayTimeout(err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return svcerrors.GatewayTimeout(err)
	}
	return svcerrors.GatewayUnreachable(err)
}

// detailPayload keeps the authority's error body intact when it is JSON and
// falls back to a trimmed string otherwise.
func detailPayload(raw []byte) interface{} {
	if json.Valid(raw) {
		return json.RawMessage(raw)
	}
	return strings.TrimSpace(string(raw))
}

func parseResponse(raw []byte) *AuthorityResponse {
	out := &AuthorityResponse{Raw: raw}
	if !gjson.ValidBytes(raw) {
		return out
	}
	out.RequestID = gjson.GetBytes(raw, "requestId").String()
	out.Status = gjson.GetBytes(raw, "status").String()
	out.Message = gjson.GetBytes(raw, "message").String()
	return out
}
