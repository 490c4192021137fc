package syncer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"tasksync/internal/models"
)

// Client talks to the remote synchronization service. Batch submissions and
// connectivity probes carry separate timeouts: a probe has to answer fast, a
// batch is allowed to take a while.
type Client struct {
	baseURL      string
	batchClient  *http.Client
	healthClient *http.Client
}

func NewClient(baseURL string, batchTimeout, healthTimeout time.Duration) *Client {
	if batchTimeout <= 0 {
		batchTimeout = 10 * time.Second
	}
	if healthTimeout <= 0 {
		healthTimeout = 4 * time.Second
	}
	return &Client{
		baseURL:      strings.TrimRight(baseURL, "/"),
		batchClient:  &http.Client{Timeout: batchTimeout},
		healthClient: &http.Client{Timeout: healthTimeout},
	}
}

// SubmitBatch POSTs a batch payload and decodes the per-item verdicts. Any
// transport problem or non-2xx status is returned as an error; the caller
// treats the whole batch as failed.
func (c *Client) SubmitBatch(ctx context.Context, req models.BatchSyncRequest) (*models.BatchSyncResponse, error) {
	var resp models.BatchSyncResponse
	if err := c.doRequest(ctx, c.batchClient, http.MethodPost, "/batch", req, &resp); err != nil {
		return nil, fmt.Errorf("batch request failed: %w", err)
	}
	return &resp, nil
}

// CheckConnectivity probes the remote health endpoint. Connectivity
// uncertainty is modeled as false, never as an error.
func (c *Client) CheckConnectivity(ctx context.Context) bool {
	err := c.doRequest(ctx, c.healthClient, http.MethodGet, "/health", nil, nil)
	return err == nil
}

func (c *Client) doRequest(ctx context.Context, httpClient *http.Client, method, path string, body, result interface{}) error {
	url := c.baseURL + path

	var bodyReader io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("request failed with status %d: %s", resp.StatusCode, string(respBody))
	}

	if result != nil {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}

	return nil
}
