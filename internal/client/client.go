// Package client is the HTTP client for the workflow backend: workflow CRUD
// and build, chat session creation, the streamed message endpoint and the
// knowledge-base document API.
//
// The transport is plain net/http: the streamed endpoint needs an unconsumed
// response body to scan server-sent frames from, which rules out wrappers
// that buffer the response.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/avi3tal/flowcanvas/internal/faults"
)

const defaultTimeout = 30 * time.Second

// maxErrorBodySize caps how much of an error response body is read back into
// a RequestError message.
const maxErrorBodySize int64 = 64 * 1024

// Client talks to one backend instance.
type Client struct {
	baseURL string
	httpc   *http.Client
	logger  *zap.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client. The streamed message
// endpoint holds a response open for the whole generation, so the client's
// timeout must cover that or be zero.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		cl.httpc = c
	}
}

// WithLogger sets the client logger.
func WithLogger(l *zap.Logger) Option {
	return func(cl *Client) {
		cl.logger = l
	}
}

// New creates a client for the backend at baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpc:   &http.Client{Timeout: defaultTimeout},
		logger:  zap.NewNop(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// doJSON issues a JSON request and decodes a JSON response into out (which
// may be nil). Non-2xx responses become a RequestError carrying the backend's
// detail message.
func (c *Client) doJSON(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return errors.Wrap(err, "marshal request body")
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return errors.Wrap(err, "create request")
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return errors.Wrapf(err, "%s %s", method, path)
	}
	defer c.closeBody(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return c.requestError(resp)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Wrapf(err, "decode %s %s response", method, path)
	}
	return nil
}

// requestError drains an error response into the taxonomy's RequestError,
// preferring the backend's {"detail": ...} message when present.
func (c *Client) requestError(resp *http.Response) error {
	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))
	if err != nil {
		return &faults.RequestError{StatusCode: resp.StatusCode, Message: "failed to read error body"}
	}
	msg := strings.TrimSpace(string(raw))
	var detail struct {
		Detail  string `json:"detail"`
		Message string `json:"message"`
	}
	if json.Unmarshal(raw, &detail) == nil {
		if detail.Detail != "" {
			msg = detail.Detail
		} else if detail.Message != "" {
			msg = detail.Message
		}
	}
	return &faults.RequestError{StatusCode: resp.StatusCode, Message: msg}
}

func (c *Client) closeBody(body io.ReadCloser) {
	if err := body.Close(); err != nil {
		c.logger.Warn("failed to close response body", zap.Error(err))
	}
}

// successEnvelope is the backend's {success, message} response.
type successEnvelope struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

func (e successEnvelope) errOr(status int) error {
	if e.Success {
		return nil
	}
	return &faults.RequestError{StatusCode: status, Message: fmt.Sprintf("operation reported failure: %s", e.Message)}
}
