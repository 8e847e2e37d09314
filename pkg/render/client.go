package render

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// InternalKeyHeader authenticates this service to the rendering backend.
const InternalKeyHeader = "X-Internal-API-Key"

// maxDocumentSize bounds how much of a rendering response is read, 25 MiB.
const maxDocumentSize = 25 << 20

// UpstreamUnavailableError indicates the rendering backend was unreachable
// or returned a server error. Callers must not consume quota or credits for
// work that never happened.
type UpstreamUnavailableError struct {
	Service string
	Err     error
}

func (e *UpstreamUnavailableError) Error() string {
	return fmt.Sprintf("%s unavailable: %v", e.Service, e.Err)
}

func (e *UpstreamUnavailableError) Unwrap() error {
	return e.Err
}

// IsUpstreamUnavailable checks if an error is an UpstreamUnavailableError
func IsUpstreamUnavailable(err error) bool {
	_, ok := err.(*UpstreamUnavailableError)
	return ok
}

// Request describes one document to generate.
type Request struct {
	Tool        string          `json:"tool"`
	TemplateRef string          `json:"template_ref,omitempty"`
	Data        json.RawMessage `json:"data"`
}

// Client generates documents through the rendering backend.
type Client interface {
	Render(ctx context.Context, req Request) ([]byte, error)
}

// HTTPClient is a Client over the rendering backend's internal HTTP API.
type HTTPClient struct {
	baseURL     string
	internalKey string
	httpClient  *http.Client
}

// NewHTTPClient creates a rendering client. The timeout must be finite; a
// hung backend must fail the request, not hold it open.
func NewHTTPClient(baseURL, internalKey string, timeout time.Duration) *HTTPClient {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPClient{
		baseURL:     baseURL,
		internalKey: internalKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Ping checks that the rendering backend is reachable. Used by the
// readiness probe.
func (c *HTTPClient) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/healthz", nil)
	if err != nil {
		return fmt.Errorf("failed to create ping request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &UpstreamUnavailableError{Service: "rendering backend", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return &UpstreamUnavailableError{
			Service: "rendering backend",
			Err:     fmt.Errorf("status %d", resp.StatusCode),
		}
	}
	return nil
}

// Render posts the generation request and returns the document bytes
func (c *HTTPClient) Render(ctx context.Context, renderReq Request) ([]byte, error) {
	payload, err := json.Marshal(renderReq)
	if err != nil {
		return nil, fmt.Errorf("failed to encode render request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/public/free-tools/generate", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create render request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(InternalKeyHeader, c.internalKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &UpstreamUnavailableError{Service: "rendering backend", Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		doc, err := io.ReadAll(io.LimitReader(resp.Body, maxDocumentSize))
		if err != nil {
			return nil, fmt.Errorf("failed to read rendered document: %w", err)
		}
		if len(doc) == 0 {
			return nil, &UpstreamUnavailableError{
				Service: "rendering backend",
				Err:     fmt.Errorf("empty document returned"),
			}
		}
		return doc, nil
	case resp.StatusCode >= 500:
		return nil, &UpstreamUnavailableError{
			Service: "rendering backend",
			Err:     fmt.Errorf("status %d", resp.StatusCode),
		}
	default:
		return nil, fmt.Errorf("rendering backend rejected request with status %d", resp.StatusCode)
	}
}
