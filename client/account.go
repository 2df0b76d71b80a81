package client

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	natspkg "github.com/chainvest/chainvest/service/nats"
)

// Deposit is a credited deposit as reported by the server.
type Deposit struct {
	TxID       string    `json:"txid"`
	AmountSats int64     `json:"amountSats"`
	AmountBTC  string    `json:"amountBTC"`
	CreditedAt time.Time `json:"creditedAt"`
}

// Account is the server's account snapshot: the credited balance and
// the deposits behind it.
type Account struct {
	BalanceBTC  string    `json:"balanceBTC"`
	BalanceSats int64     `json:"balanceSats"`
	Deposits    []Deposit `json:"deposits"`
}

// Client is the HTTP client for the chainvest deposit service.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a new deposit service client.
func NewClient(baseURL string, httpClient *http.Client, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: httpClient,
		logger:     logger,
	}
}

// GetAccount retrieves the current account snapshot.
func (c *Client) GetAccount(ctx context.Context) (*Account, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+"/api/account", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.parseErrorResponse(resp)
	}

	var account Account
	if err := json.NewDecoder(resp.Body).Decode(&account); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	c.logger.Debug("account retrieved",
		"balance_sats", account.BalanceSats,
		"deposit_count", len(account.Deposits))
	return &account, nil
}

// Health checks the server's health endpoint.
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("server unhealthy: status %d", resp.StatusCode)
	}
	return nil
}

// StreamDeposits connects to the server's SSE endpoint and invokes
// onEvent for every deposit event until the context is cancelled, the
// stream ends, or onEvent returns an error.
func (c *Client) StreamDeposits(ctx context.Context, onEvent func(natspkg.DepositEvent) error) error {
	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+"/api/stream/deposits", nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")

	// Streaming connections must not inherit the default client timeout.
	streamClient := &http.Client{
		Transport: c.httpClient.Transport,
		Timeout:   0,
	}
	resp, err := streamClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to connect to SSE endpoint: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return c.parseErrorResponse(resp)
	}

	scanner := bufio.NewScanner(resp.Body)
	var currentEvent, currentData string

	for scanner.Scan() {
		line := scanner.Text()

		// Empty line terminates an event.
		if line == "" {
			if err := c.dispatchEvent(currentEvent, currentData, onEvent); err != nil {
				return err
			}
			currentEvent = ""
			currentData = ""
			continue
		}

		if strings.HasPrefix(line, "event:") {
			currentEvent = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		} else if strings.HasPrefix(line, "data:") {
			currentData = strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		}
	}

	if err := scanner.Err(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("error reading SSE stream: %w", err)
	}
	return nil
}

func (c *Client) dispatchEvent(eventType, data string, onEvent func(natspkg.DepositEvent) error) error {
	switch eventType {
	case "deposit":
		var event natspkg.DepositEvent
		if err := json.Unmarshal([]byte(data), &event); err != nil {
			return fmt.Errorf("failed to decode deposit event: %w", err)
		}
		return onEvent(event)

	case "connected":
		c.logger.Debug("SSE stream connected", "data", data)
		return nil

	case "error":
		var errInfo struct {
			Error string `json:"error"`
		}
		if err := json.Unmarshal([]byte(data), &errInfo); err != nil {
			return fmt.Errorf("server error: %s", data)
		}
		return fmt.Errorf("server error: %s", errInfo.Error)

	default:
		// Unknown event types (including keepalives) are ignored.
		return nil
	}
}

// errAwaitMatched stops the stream once a match is found.
var errAwaitMatched = fmt.Errorf("await matched")

// Await blocks until a deposit event matching the given predicate
// arrives on the stream, the context expires, or the stream fails.
func (c *Client) Await(ctx context.Context, match func(natspkg.DepositEvent) bool) (*natspkg.DepositEvent, error) {
	var found *natspkg.DepositEvent
	err := c.StreamDeposits(ctx, func(event natspkg.DepositEvent) error {
		if match(event) {
			found = &event
			return errAwaitMatched
		}
		return nil
	})
	if found != nil {
		return found, nil
	}
	if err == nil {
		err = fmt.Errorf("stream ended before a matching deposit arrived")
	}
	return nil, err
}

// parseErrorResponse attempts to parse an error response from the server.
func (c *Client) parseErrorResponse(resp *http.Response) error {
	var errResp struct {
		Error string `json:"error"`
	}

	body, _ := io.ReadAll(resp.Body)
	if err := json.Unmarshal(body, &errResp); err != nil || errResp.Error == "" {
		return fmt.Errorf("request failed with status %d: %s", resp.StatusCode, string(body))
	}

	return fmt.Errorf("request failed: %s", errResp.Error)
}
