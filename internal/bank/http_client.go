package bank

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/FigureTechnologies/digital-currency-consortium-sub000/internal/circuitbreaker"
)

// HTTPClient implements Client against the bank middleware's REST API.
type HTTPClient struct {
	baseURL string
	http    *http.Client
	breaker *circuitbreaker.Breaker
}

// NewHTTPClient creates a bank client for the middleware at baseURL.
func NewHTTPClient(baseURL string) *HTTPClient {
	return &HTTPClient{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 30 * time.Second},
		breaker: circuitbreaker.New("bank-middleware", 5, 30*time.Second),
	}
}

// NotifyMintComplete reports a settled mint.
func (c *HTTPClient) NotifyMintComplete(ctx context.Context, requestID uuid.UUID) error {
	return c.post(ctx, "/api/v1/mints/complete", map[string]string{"id": requestID.String()})
}

// NotifyBurnComplete reports a settled burn.
func (c *HTTPClient) NotifyBurnComplete(ctx context.Context, requestID uuid.UUID) error {
	return c.post(ctx, "/api/v1/burns/complete", map[string]string{"id": requestID.String()})
}

// NotifyFiatDeposit reports an observed inbound transfer.
func (c *HTTPClient) NotifyFiatDeposit(ctx context.Context, dep DepositNotification) error {
	return c.post(ctx, "/api/v1/deposits", dep)
}

func (c *HTTPClient) post(ctx context.Context, path string, body interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	return c.breaker.Do(func() error {
		resp, err := c.http.Do(req)
		if err != nil {
			return fmt.Errorf("bank request failed: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return fmt.Errorf("bank returned %d for %s", resp.StatusCode, path)
		}
		return nil
	})
}
