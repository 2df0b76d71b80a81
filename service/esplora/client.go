package esplora

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/chainvest/chainvest/service/metrics"
)

// Client is an HTTP client for the Esplora REST API (the Blockstream
// transaction-indexing service). It is stateless: every call hits the remote
// service, and no result is cached.
type Client struct {
	baseURL    string
	httpClient *http.Client
	maxRetries int
	logger     *slog.Logger
	metrics    *metrics.Metrics
}

// ClientConfig holds the configuration for the Esplora client.
type ClientConfig struct {
	// BaseURL is the base URL of the Esplora API,
	// e.g. https://blockstream.info/testnet/api.
	BaseURL string

	// RequestTimeout bounds every individual HTTP request.
	RequestTimeout time.Duration

	// MaxRetries is the number of additional attempts for failed requests.
	MaxRetries int
}

// NewClient creates a new Esplora client.
// If m is nil, no metrics will be recorded.
func NewClient(cfg ClientConfig, m *metrics.Metrics, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL: cfg.BaseURL,
		httpClient: &http.Client{
			Timeout: cfg.RequestTimeout,
		},
		maxRetries: cfg.MaxRetries,
		logger:     logger,
		metrics:    m,
	}
}

// ListAddressTransactions fetches all known transactions touching the
// address. The remote service does not guarantee an ordering. Callers treat
// an error as "no new information this cycle", never as fatal.
func (c *Client) ListAddressTransactions(ctx context.Context, address string) ([]*TxInfo, error) {
	start := time.Now()
	body, err := c.doGet(ctx, "/address/"+address+"/txs")
	c.record("address_txs", start, err)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions for %s: %w", address, err)
	}

	var txs []*TxInfo
	if err := json.Unmarshal(body, &txs); err != nil {
		return nil, fmt.Errorf("failed to decode transaction list: %w", err)
	}

	c.logger.DebugContext(ctx, "fetched address transactions",
		"address", address,
		"count", len(txs),
	)

	return txs, nil
}

// GetTxStatus fetches the confirmation status of one transaction.
// Callers treat an error as "not confirmed" so a flaky remote service can
// only ever delay a credit, never cause one.
func (c *Client) GetTxStatus(ctx context.Context, txid string) (*TxStatus, error) {
	start := time.Now()
	body, err := c.doGet(ctx, "/tx/"+txid+"/status")
	c.record("tx_status", start, err)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch status for %s: %w", txid, err)
	}

	var status TxStatus
	if err := json.Unmarshal(body, &status); err != nil {
		return nil, fmt.Errorf("failed to decode tx status: %w", err)
	}

	return &status, nil
}

// GetTipHeight returns the current chain tip height, used to compute the
// confirmation depth of a transaction.
func (c *Client) GetTipHeight(ctx context.Context) (int64, error) {
	start := time.Now()
	body, err := c.doGet(ctx, "/blocks/tip/height")
	c.record("tip_height", start, err)
	if err != nil {
		return 0, fmt.Errorf("failed to fetch tip height: %w", err)
	}

	height, err := strconv.ParseInt(string(body), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse tip height %q: %w", string(body), err)
	}

	return height, nil
}

// record emits the per-call metric when a collector is configured.
func (c *Client) record(method string, start time.Time, err error) {
	if c.metrics == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	c.metrics.RecordEsploraCall(method, status, time.Since(start).Seconds())
}

// doGet performs a GET request with bounded retries and returns the body.
func (c *Client) doGet(ctx context.Context, path string) ([]byte, error) {
	url := c.baseURL + path

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = err
			if attempt < c.maxRetries {
				c.logger.DebugContext(ctx, "esplora request failed, retrying",
					"url", url,
					"attempt", attempt+1,
					"error", err,
				)
				time.Sleep(time.Duration(attempt+1) * 100 * time.Millisecond)
			}
			continue
		}

		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("failed to read response: %w", err)
			continue
		}

		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("esplora API returned status %d: %s", resp.StatusCode, string(body))
		}

		return body, nil
	}

	return nil, fmt.Errorf("request failed after %d attempts: %w", c.maxRetries+1, lastErr)
}
