package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"crypto_monitor/internal/domain"
)

const snapshotDepth = 20

// SnapshotClient fetches full order-book snapshots over REST. The
// worker uses it to reseed a symbol's book after a sequence desync.
type SnapshotClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewSnapshotClient creates a snapshot client for the given REST base
// URL (e.g. "https://api.binance.com").
func NewSnapshotClient(baseURL string) *SnapshotClient {
	return &SnapshotClient{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// FetchBook retrieves a full depth snapshot for one symbol with retry
// logic (3 attempts, exponential backoff).
func (c *SnapshotClient) FetchBook(ctx context.Context, symbol string) (*domain.OrderBookUpdate, error) {
	var lastErr error
	for i := 0; i < 3; i++ {
		if i > 0 {
			// Exponential backoff: 1s, 2s
			delay := time.Duration(1<<uint(i-1)) * time.Second
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
		}

		book, err := c.doFetch(ctx, symbol)
		if err == nil {
			return book, nil
		}
		lastErr = err
	}
	return nil, domain.NewNetworkError("snapshot", lastErr)
}

func (c *SnapshotClient) doFetch(ctx context.Context, symbol string) (*domain.OrderBookUpdate, error) {
	endpoint := fmt.Sprintf("%s/api/v3/depth?symbol=%s&limit=%d",
		c.baseURL, url.QueryEscape(symbol), snapshotDepth)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	var msg depthMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		return nil, err
	}
	now := time.Now()
	bids, err := decodeLevels(msg.Bids)
	if err != nil {
		return nil, err
	}
	asks, err := decodeLevels(msg.Asks)
	if err != nil {
		return nil, err
	}
	return &domain.OrderBookUpdate{
		Symbol:     symbol,
		Sequence:   msg.LastUpdateID,
		Bids:       bids,
		Asks:       asks,
		EventTime:  now,
		ReceivedAt: now,
	}, nil
}
