package sse

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/fwojciec/tensorchat"
)

// Interface compliance checks.
var (
	_ tensorchat.Transport = (*Client)(nil)
	_ io.Closer            = (*Client)(nil)
)

// Client implements [tensorchat.Transport] for the tensorchat streaming
// API.
type Client struct {
	endpoint   string
	credential string
	httpClient *http.Client
}

// Option configures a [Client].
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// New creates a [Client] for cfg. The credential is required.
func New(cfg tensorchat.Config, opts ...Option) (*Client, error) {
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("sse: %w", err)
	}
	if strings.TrimSpace(cfg.Credential) == "" {
		return nil, fmt.Errorf("sse: credential is required: %w", tensorchat.ErrValidation)
	}
	c := &Client{
		endpoint:   strings.TrimRight(cfg.Endpoint, "/"),
		credential: cfg.Credential,
		httpClient: http.DefaultClient,
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// Open posts req and returns a [tensorchat.FrameStream] over the response
// body. Connection failures and retryable statuses yield a
// *tensorchat.TransportError; any other rejection is a
// *tensorchat.SessionError.
func (c *Client) Open(ctx context.Context, req tensorchat.StreamRequest) (tensorchat.FrameStream, error) {
	body, err := json.Marshal(buildRequest(req))
	if err != nil {
		return nil, fmt.Errorf("sse: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+streamPath, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("sse: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")
	httpReq.Header.Set("Authorization", "Bearer "+c.credential)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, &tensorchat.TransportError{Op: "open", Err: err}
	}

	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, parseHTTPError(resp)
	}

	return newStream(resp.Body), nil
}

// Close releases idle connections held by the HTTP client.
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

func buildRequest(req tensorchat.StreamRequest) apiRequest {
	tensors := make([]apiTensor, len(req.Tensors))
	for i, t := range req.Tensors {
		tensors[i] = apiTensor{Messages: t.Messages, Concise: t.Concise, Search: t.Search}
	}
	return apiRequest{Context: req.Context, Model: req.Model, Tensors: tensors}
}

// parseHTTPError maps a non-200 response to a typed error.
func parseHTTPError(resp *http.Response) error {
	msg := http.StatusText(resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	if err == nil && len(body) > 0 {
		var apiErr apiErrorResponse
		if json.Unmarshal(body, &apiErr) == nil && apiErr.Error.Message != "" {
			msg = apiErr.Error.Message
			if apiErr.Error.Type != "" {
				msg = apiErr.Error.Type + ": " + msg
			}
		} else {
			msg = strings.TrimSpace(string(body))
		}
	}

	if retryableStatus(resp.StatusCode) {
		return &tensorchat.TransportError{Op: "open", StatusCode: resp.StatusCode, Err: errors.New(msg)}
	}
	return &tensorchat.SessionError{Message: fmt.Sprintf("HTTP %d: %s", resp.StatusCode, msg)}
}

func retryableStatus(code int) bool {
	return code == http.StatusRequestTimeout ||
		code == http.StatusTooManyRequests ||
		code >= http.StatusInternalServerError
}
