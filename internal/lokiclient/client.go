package lokiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ausimian/loki-logger-handler/internal/buffer"
)

const (
	// ErrCodeHTTPError classifies a non-2xx response from Loki.
	ErrCodeHTTPError = "LOKI_HTTP_ERROR"
	// ErrCodeRequestFailed classifies a transport-level failure: DNS,
	// connect, read, or context-deadline errors.
	ErrCodeRequestFailed = "LOKI_REQUEST_FAILED"
)

// HTTPError is returned when Loki answers with a non-2xx status (spec
// §4.4/§7). Status and Body are preserved for the caller to log or
// inspect.
type HTTPError struct {
	Status int
	Body   string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("loki push returned status %d: %s", e.Status, e.Body)
}

// Code returns ErrCodeHTTPError, so callers can branch on the Delivery
// error kind (spec §7) without a type switch.
func (e *HTTPError) Code() string { return ErrCodeHTTPError }

// RequestFailed wraps a transport/DNS/connect/read failure (spec §4.4).
type RequestFailed struct {
	Cause error
}

func (e *RequestFailed) Error() string {
	return fmt.Sprintf("loki push request failed: %v", e.Cause)
}

func (e *RequestFailed) Unwrap() error { return e.Cause }

// Code returns ErrCodeRequestFailed.
func (e *RequestFailed) Code() string { return ErrCodeRequestFailed }

// Client pushes batches of buffered entries to a Loki push API endpoint.
// Carried over from the teacher's Writer: a single *http.Client with a
// configurable Timeout, optional multi-tenant header support.
type Client struct {
	HTTPClient *http.Client
	TenantID   string
}

// New returns a Client whose requests are bounded by timeout (spec §5:
// "a per-request HTTP timeout; recommended default: batch_interval_ms x
// 2, floor 5s").
func New(timeout time.Duration) *Client {
	return &Client{HTTPClient: &http.Client{Timeout: timeout}}
}

// Push builds the push body for entries and POSTs it to
// <baseURL>/loki/api/v1/push. An empty entries slice returns success
// without contacting the network (spec §4.4). 2xx (including 204) is
// success; any other status yields *HTTPError; transport failures yield
// *RequestFailed.
func (c *Client) Push(ctx context.Context, baseURL string, entries []buffer.Item) error {
	if len(entries) == 0 {
		return nil
	}

	body := BuildPushBody(entries)
	payload, err := json.Marshal(body)
	if err != nil {
		return &RequestFailed{Cause: fmt.Errorf("encode push body: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/loki/api/v1/push", bytes.NewReader(payload))
	if err != nil {
		return &RequestFailed{Cause: err}
	}
	req.Header.Set("Content-Type", "application/json")
	if c.TenantID != "" {
		req.Header.Set("X-Scope-OrgID", c.TenantID)
	}

	client := c.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}

	resp, err := client.Do(req)
	if err != nil {
		return &RequestFailed{Cause: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		io.Copy(io.Discard, resp.Body)
		return nil
	}

	respBody, _ := io.ReadAll(resp.Body)
	return &HTTPError{Status: resp.StatusCode, Body: string(respBody)}
}
