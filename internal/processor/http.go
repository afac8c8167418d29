package processor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/anavi/settlement/internal/config"
	"github.com/anavi/settlement/internal/domain"
)

// HTTPClient talks to the processor's REST gateway with bounded retries.
// 5xx responses and transport errors are retried with exponential backoff;
// 4xx responses are permanent and surface immediately. When the retry budget
// is exhausted the caller sees domain.ErrProcessorUnavailable.
type HTTPClient struct {
	baseURL    string
	apiKey     string
	maxRetries int
	retryBase  time.Duration
	http       *http.Client
	log        *slog.Logger
}

// NewHTTPClient builds a client from processor config.
func NewHTTPClient(cfg config.ProcessorConfig, log *slog.Logger) *HTTPClient {
	return &HTTPClient{
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
		maxRetries: cfg.MaxRetries,
		retryBase:  cfg.RetryBase,
		http:       &http.Client{Timeout: cfg.Timeout},
		log:        log,
	}
}

var _ Client = (*HTTPClient)(nil)

type custodyRequest struct {
	CustodyRef     string          `json:"custodyRef,omitempty"`
	DealID         string          `json:"dealId,omitempty"`
	Amount         decimal.Decimal `json:"amount,omitempty"`
	IdempotencyKey string          `json:"idempotencyKey,omitempty"`
}

type custodyResponse struct {
	CustodyRef string `json:"custodyRef,omitempty"`
	Reference  string `json:"reference,omitempty"`
	Status     string `json:"status,omitempty"`
	Error      string `json:"error,omitempty"`
}

// CreateCustodyAccount provisions a custody account for a deal.
func (c *HTTPClient) CreateCustodyAccount(ctx context.Context, dealID uuid.UUID) (string, error) {
	resp, err := c.post(ctx, "/v1/custody/accounts", custodyRequest{DealID: dealID.String()}, "")
	if err != nil {
		return "", err
	}
	if resp.CustodyRef == "" {
		return "", fmt.Errorf("processor: account response missing custodyRef")
	}
	return resp.CustodyRef, nil
}

// HoldFunds takes custody of amount under the given idempotency key.
func (c *HTTPClient) HoldFunds(ctx context.Context, custodyRef string, amount decimal.Decimal, key string) (Confirmation, error) {
	resp, err := c.post(ctx, "/v1/custody/hold", custodyRequest{CustodyRef: custodyRef, Amount: amount}, key)
	if err != nil {
		return Confirmation{}, err
	}
	return Confirmation{Reference: resp.Reference, Status: resp.Status}, nil
}

// ReleaseFunds releases amount from custody under the given idempotency key.
func (c *HTTPClient) ReleaseFunds(ctx context.Context, custodyRef string, amount decimal.Decimal, key string) (Confirmation, error) {
	resp, err := c.post(ctx, "/v1/custody/release", custodyRequest{CustodyRef: custodyRef, Amount: amount}, key)
	if err != nil {
		return Confirmation{}, err
	}
	return Confirmation{Reference: resp.Reference, Status: resp.Status}, nil
}

// ReverseFunds returns amount to the depositor under the given idempotency key.
func (c *HTTPClient) ReverseFunds(ctx context.Context, custodyRef string, amount decimal.Decimal, key string) (Confirmation, error) {
	resp, err := c.post(ctx, "/v1/custody/reverse", custodyRequest{CustodyRef: custodyRef, Amount: amount}, key)
	if err != nil {
		return Confirmation{}, err
	}
	return Confirmation{Reference: resp.Reference, Status: resp.Status}, nil
}

// post executes one logical call with retries. The idempotency key travels
// both in the body and the Idempotency-Key header so either side can dedupe.
func (c *HTTPClient) post(ctx context.Context, path string, req custodyRequest, key string) (*custodyResponse, error) {
	req.IdempotencyKey = key
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("processor: marshal request: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt < c.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := c.retryBase * time.Duration(1<<(attempt-1))
			c.log.Warn("processor call retrying",
				"path", path, "attempt", attempt+1, "backoff", backoff, "err", lastErr)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		resp, permanent, err := c.doOnce(ctx, path, body, key)
		if err == nil {
			return resp, nil
		}
		if permanent {
			return nil, err
		}
		lastErr = err
	}
	return nil, fmt.Errorf("%w: %s after %d attempts: %v",
		domain.ErrProcessorUnavailable, path, c.maxRetries, lastErr)
}

func (c *HTTPClient) doOnce(ctx context.Context, path string, body []byte, key string) (resp *custodyResponse, permanent bool, err error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, true, fmt.Errorf("processor: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	if key != "" {
		httpReq.Header.Set("Idempotency-Key", key)
	}

	httpResp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, false, fmt.Errorf("processor: %s: %w", path, err)
	}
	defer httpResp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(httpResp.Body, 1<<20))
	if err != nil {
		return nil, false, fmt.Errorf("processor: read response: %w", err)
	}

	switch {
	case httpResp.StatusCode >= 200 && httpResp.StatusCode < 300:
		var out custodyResponse
		if err := json.Unmarshal(data, &out); err != nil {
			return nil, true, fmt.Errorf("processor: decode response: %w", err)
		}
		return &out, false, nil
	case httpResp.StatusCode >= 400 && httpResp.StatusCode < 500:
		// Client errors do not heal with retries.
		return nil, true, fmt.Errorf("processor: %s rejected (%d): %s", path, httpResp.StatusCode, truncate(data, 200))
	default:
		return nil, false, fmt.Errorf("processor: %s failed (%d)", path, httpResp.StatusCode)
	}
}

func truncate(b []byte, n int) string {
	if len(b) > n {
		return string(b[:n]) + "..."
	}
	return string(b)
}
