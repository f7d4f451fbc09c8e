package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// Watch represents a watched address on the server.
type Watch struct {
	Address      string    `json:"address"`
	Cursor       *string   `json:"cursor,omitempty"`
	Active       bool      `json:"active"`
	RegisteredAt time.Time `json:"registered_at"`
}

// WatchStats describes the server's watch capacity.
type WatchStats struct {
	CurrentCount int  `json:"current_count"`
	MaxWallets   int  `json:"max_wallets"`
	CanAddMore   bool `json:"can_add_more"`
}

// ActivityEvent is a persisted activity event as returned by the server.
type ActivityEvent struct {
	ActivityID         string     `json:"activity_id"`
	OwnerAddress       string     `json:"owner_address"`
	Outcome            string     `json:"outcome"`
	DeliveryClass      string     `json:"delivery_class"`
	DeliveryConfidence float64    `json:"delivery_confidence"`
	CostEstimate       int64      `json:"cost_estimate"`
	DetailCount        int        `json:"detail_count"`
	ObservedAt         *time.Time `json:"observed_at,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
}

// Client is the HTTP client for the watch service.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a new watch service client.
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

// AddWatch tells the server to start monitoring an address.
func (c *Client) AddWatch(ctx context.Context, address string) (*Watch, error) {
	body, err := json.Marshal(map[string]string{"address": address})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/api/v1/watches", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		return nil, c.parseErrorResponse(resp)
	}

	var watch Watch
	if err := json.NewDecoder(resp.Body).Decode(&watch); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	c.logger.Debug("watch added", "address", address)
	return &watch, nil
}

// RemoveWatch tells the server to stop monitoring an address.
func (c *Client) RemoveWatch(ctx context.Context, address string) error {
	u := fmt.Sprintf("%s/api/v1/watches/%s", c.baseURL, url.PathEscape(address))
	req, err := http.NewRequestWithContext(ctx, "DELETE", u, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent {
		return c.parseErrorResponse(resp)
	}

	c.logger.Debug("watch removed", "address", address)
	return nil
}

// ListWatches retrieves all watched addresses and the capacity stats.
func (c *Client) ListWatches(ctx context.Context) ([]*Watch, *WatchStats, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+"/api/v1/watches", nil)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, nil, c.parseErrorResponse(resp)
	}

	var response struct {
		Watches []*Watch   `json:"watches"`
		Stats   WatchStats `json:"stats"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, nil, fmt.Errorf("failed to decode response: %w", err)
	}

	return response.Watches, &response.Stats, nil
}

// GetStats retrieves the server's watch capacity.
func (c *Client) GetStats(ctx context.Context) (*WatchStats, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+"/api/v1/watches/stats", nil)
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

	var stats WatchStats
	if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return &stats, nil
}

// ListEventsParams narrows an event listing.
type ListEventsParams struct {
	Address string // empty means all addresses
	Limit   int    // 0 uses the server default
	Offset  int
}

// ListEvents retrieves persisted activity events, newest first.
func (c *Client) ListEvents(ctx context.Context, params ListEventsParams) ([]*ActivityEvent, int64, error) {
	u, err := url.Parse(c.baseURL + "/api/v1/events")
	if err != nil {
		return nil, 0, fmt.Errorf("invalid base URL: %w", err)
	}
	q := u.Query()
	if params.Address != "" {
		q.Set("address", params.Address)
	}
	if params.Limit > 0 {
		q.Set("limit", strconv.Itoa(params.Limit))
	}
	if params.Offset > 0 {
		q.Set("offset", strconv.Itoa(params.Offset))
	}
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, "GET", u.String(), nil)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, 0, c.parseErrorResponse(resp)
	}

	var response struct {
		Events []*ActivityEvent `json:"events"`
		Total  int64            `json:"total"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, 0, fmt.Errorf("failed to decode response: %w", err)
	}

	return response.Events, response.Total, nil
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
