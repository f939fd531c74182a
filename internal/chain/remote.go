package chain

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/shopspring/decimal"

	"github.com/FigureTechnologies/digital-currency-consortium-sub000/internal/circuitbreaker"
)

// RemoteClient implements Client and BlockSource against the signing
// and query sidecar's REST API. The sidecar owns key material and
// transaction assembly; this process only ever sees message intents and
// observed results.
type RemoteClient struct {
	baseURL string
	http    *http.Client
	breaker *circuitbreaker.Breaker
	// pollInterval paces the new-block subscription, which is emulated
	// by polling the sidecar's height endpoint.
	pollInterval time.Duration
}

// NewRemoteClient creates a client for the sidecar at baseURL.
func NewRemoteClient(baseURL string) *RemoteClient {
	return &RemoteClient{
		baseURL:      baseURL,
		http:         &http.Client{Timeout: 30 * time.Second},
		breaker:      circuitbreaker.New("chain-sidecar", 5, 30*time.Second),
		pollInterval: time.Second,
	}
}

type broadcastRequest struct {
	Msgs          []Msg `json:"msgs"`
	TimeoutHeight int64 `json:"timeoutHeight"`
}

// Broadcast submits the messages as one signed transaction.
func (c *RemoteClient) Broadcast(ctx context.Context, msgs []Msg, timeoutHeight int64) (*BroadcastResult, error) {
	var res BroadcastResult
	err := c.post(ctx, "/v1/txs", broadcastRequest{Msgs: msgs, TimeoutHeight: timeoutHeight}, &res)
	if err != nil {
		return nil, err
	}
	return &res, nil
}

// GetTransaction looks up a transaction by hash.
func (c *RemoteClient) GetTransaction(ctx context.Context, txHash string) (*TxResult, error) {
	var res TxResult
	err := c.get(ctx, "/v1/txs/"+url.PathEscape(txHash), &res)
	if err != nil {
		if isNotFound(err) {
			return nil, ErrTxNotFound
		}
		return nil, err
	}
	return &res, nil
}

// GetAttribute returns the named attribute on an address, or nil when
// absent.
func (c *RemoteClient) GetAttribute(ctx context.Context, address, name string) (*Attribute, error) {
	var res Attribute
	err := c.get(ctx, fmt.Sprintf("/v1/attributes/%s/%s", url.PathEscape(address), url.PathEscape(name)), &res)
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return &res, nil
}

// GetCoinBalance returns an address's balance of the denom.
func (c *RemoteClient) GetCoinBalance(ctx context.Context, address, denom string) (decimal.Decimal, error) {
	var res struct {
		Amount decimal.Decimal `json:"amount"`
	}
	err := c.get(ctx, fmt.Sprintf("/v1/balances/%s/%s", url.PathEscape(address), url.PathEscape(denom)), &res)
	if err != nil {
		return decimal.Zero, err
	}
	return res.Amount, nil
}

// GetCurrentBlockHeight returns the chain's latest committed height.
func (c *RemoteClient) GetCurrentBlockHeight(ctx context.Context) (int64, error) {
	var res struct {
		Height int64 `json:"height"`
	}
	if err := c.get(ctx, "/v1/blocks/latest", &res); err != nil {
		return 0, err
	}
	return res.Height, nil
}

// FetchBlock returns the block at a height.
func (c *RemoteClient) FetchBlock(ctx context.Context, height int64) (*Block, error) {
	var res Block
	if err := c.get(ctx, fmt.Sprintf("/v1/blocks/%d", height), &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// FetchBlockEvents returns the events emitted at a height.
func (c *RemoteClient) FetchBlockEvents(ctx context.Context, height int64) ([]Event, error) {
	var res []Event
	if err := c.get(ctx, fmt.Sprintf("/v1/blocks/%d/events", height), &res); err != nil {
		return nil, err
	}
	return res, nil
}

// FetchBlocksWithTransactions returns the heights in the range whose
// blocks contain at least one transaction, in ascending order.
func (c *RemoteClient) FetchBlocksWithTransactions(ctx context.Context, minHeight, maxHeight int64) ([]int64, error) {
	var res []int64
	path := fmt.Sprintf("/v1/blocks?min=%d&max=%d&withTxs=true", minHeight, maxHeight)
	if err := c.get(ctx, path, &res); err != nil {
		return nil, err
	}
	return res, nil
}

// Subscribe emulates a push subscription by polling the latest height
// and emitting one NewBlock per height advance. The channel closes when
// the context is cancelled or the sidecar becomes unreachable, which
// signals the stream to reconnect.
func (c *RemoteClient) Subscribe(ctx context.Context) (<-chan NewBlock, error) {
	last, err := c.GetCurrentBlockHeight(ctx)
	if err != nil {
		return nil, err
	}

	ch := make(chan NewBlock)
	go func() {
		defer close(ch)
		ticker := time.NewTicker(c.pollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
			height, err := c.GetCurrentBlockHeight(ctx)
			if err != nil {
				return
			}
			for last < height {
				last++
				select {
				case ch <- NewBlock{Height: last, Time: time.Now().UTC()}:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return ch, nil
}

type httpError struct {
	status int
	body   string
}

func (e *httpError) Error() string {
	return fmt.Sprintf("sidecar returned %d: %s", e.status, e.body)
}

func isNotFound(err error) bool {
	he, ok := err.(*httpError)
	return ok && he.status == http.StatusNotFound
}

func (c *RemoteClient) get(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *RemoteClient) post(ctx context.Context, path string, body, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *RemoteClient) do(req *http.Request, out interface{}) error {
	var notFound error
	err := c.breaker.Do(func() error {
		resp, err := c.http.Do(req)
		if err != nil {
			return fmt.Errorf("sidecar request failed: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode == http.StatusNotFound {
			// A missing resource is an answer, not an outage, so it
			// does not count against the breaker.
			var buf bytes.Buffer
			_, _ = buf.ReadFrom(resp.Body)
			notFound = &httpError{status: resp.StatusCode, body: buf.String()}
			return nil
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			var buf bytes.Buffer
			_, _ = buf.ReadFrom(resp.Body)
			return &httpError{status: resp.StatusCode, body: buf.String()}
		}
		if out == nil {
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode sidecar response: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	return notFound
}
