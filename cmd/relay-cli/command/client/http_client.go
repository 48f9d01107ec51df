package client

// http_client.go = HTTP access to the relay's status API

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"livetiming/internal/microservices/http-api/dto"
)

type HTTPClient struct {
	baseURL    string
	httpClient *http.Client
}

// constructor for HTTP client
func NewHTTPClient(apiURL string) *HTTPClient {
	return &HTTPClient{
		baseURL: strings.TrimRight(apiURL, "/"),
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

func (c *HTTPClient) get(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close() // Ensure the response body is closed

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("GET %s failed with status: %s", path, resp.Status)
	}
	return body, nil
}

// GetStatus fetches /api/status
func (c *HTTPClient) GetStatus(ctx context.Context) (*dto.StatusResponse, error) {
	body, err := c.get(ctx, "/api/status")
	if err != nil {
		return nil, err
	}
	var status dto.StatusResponse
	if err := json.Unmarshal(body, &status); err != nil {
		return nil, fmt.Errorf("decode status: %w", err)
	}
	return &status, nil
}

// GetState fetches the raw document from /api/state
func (c *HTTPClient) GetState(ctx context.Context) (json.RawMessage, error) {
	body, err := c.get(ctx, "/api/state")
	if err != nil {
		return nil, err
	}
	if !json.Valid(body) {
		return nil, fmt.Errorf("decode state: invalid JSON")
	}
	return json.RawMessage(body), nil
}

// Health checks /healthz
func (c *HTTPClient) Health(ctx context.Context) error {
	_, err := c.get(ctx, "/healthz")
	return err
}
