// Package batch posts transaction batches to the orchestrator's bulk endpoint.
package batch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/okian/gmscan/internal/domain/model"
)

// Path is the bulk endpoint relative to the orchestrator URL.
const Path = "/api/scan/batch"

const defaultTimeout = 30 * time.Second

// ErrStatus is returned for non-2xx responses.
var ErrStatus = errors.New("batch: unexpected status")

// Client implements the bulk protocol's HTTP half.
type Client struct {
	endpoint string
	deviceID string
	http     *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithDeviceID adds the device header to every request.
func WithDeviceID(id string) Option {
	return func(c *Client) { c.deviceID = id }
}

// New creates a client for the orchestrator at baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		endpoint: strings.TrimRight(baseURL, "/") + Path,
		http:     &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// PostBatch sends req and decodes the processing summary.
func (c *Client) PostBatch(ctx context.Context, req model.BatchRequest) (model.BatchResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return model.BatchResponse{}, fmt.Errorf("batch: encode: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return model.BatchResponse{}, fmt.Errorf("batch: request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.deviceID != "" {
		httpReq.Header.Set("X-Device-ID", c.deviceID)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return model.BatchResponse{}, fmt.Errorf("batch: post %s: %w", req.BatchID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return model.BatchResponse{}, fmt.Errorf("%w %d: %s", ErrStatus, resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var out model.BatchResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return model.BatchResponse{}, fmt.Errorf("batch: decode response: %w", err)
	}
	return out, nil
}
