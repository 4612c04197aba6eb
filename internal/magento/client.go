// Package magento implements the product media sink against the Magento 2
// REST API. Only the narrow media-upload surface the ingestion pipeline
// needs is wrapped; the bearer token and base URL are opaque configuration
// supplied by the caller.
package magento

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/technoetl/bulkmedia/internal/ingest"
)

// DefaultTimeout bounds a single media upload request.
const DefaultTimeout = 30 * time.Second

// Client talks to one Magento instance.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewClient creates a Client for the given REST base URL (scheme and host,
// without the /rest suffix) and admin bearer token.
func NewClient(baseURL, token string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// entryEnvelope is the request body of the media gallery endpoint.
type entryEnvelope struct {
	Entry ingest.MediaEntry `json:"entry"`
}

// UploadProductMedia persists one media entry to the product identified by
// sku and returns the server-assigned entry ID. Implements ingest.MediaSink.
func (c *Client) UploadProductMedia(ctx context.Context, sku string, entry ingest.MediaEntry) (string, error) {
	body, err := json.Marshal(entryEnvelope{Entry: entry})
	if err != nil {
		return "", fmt.Errorf("encode media entry: %w", err)
	}

	endpoint := fmt.Sprintf("%s/rest/V1/products/%s/media", c.baseURL, url.PathEscape(sku))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("upload media for %s: %w", sku, err)
	}
	defer resp.Body.Close()

	// Responses are small: an entry ID on success, a message envelope on
	// failure. Cap the read anyway.
	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("read response for %s: %w", sku, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("upload media for %s: %s", sku, apiError(resp.StatusCode, respBody))
	}

	// Magento returns the new gallery entry ID as a bare JSON number.
	var id json.Number
	if err := json.Unmarshal(respBody, &id); err != nil {
		// Some deployments wrap responses; fall back to the raw body.
		return strings.TrimSpace(string(respBody)), nil
	}
	return id.String(), nil
}

// apiError extracts Magento's message envelope when present.
func apiError(status int, body []byte) string {
	var envelope struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Message != "" {
		return fmt.Sprintf("%s (HTTP %d)", envelope.Message, status)
	}
	return fmt.Sprintf("HTTP %d", status)
}
