package client

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/avi3tal/flowcanvas/internal/faults"
)

// The streamed message endpoint emits server-sent frames, one per line:
//
//	data: {"token": "..."}
//	data: [DONE]
//
// A token frame contributes exactly its token; the [DONE] sentinel ends the
// sequence; anything else on a data line is logged and skipped without
// terminating the stream.
const (
	framePrefix   = "data:"
	frameSentinel = "[DONE]"
)

// The default bufio.Scanner limit is 64 KiB; generous completions can exceed
// that in a single frame.
const maxFrameSize = 1024 * 1024

// ErrStreamTruncated reports a stream that ended without the terminal
// sentinel, which means the connection was dropped mid-generation.
var ErrStreamTruncated = errors.New("stream ended without terminal frame")

// TokenStream is a lazy, finite, non-restartable sequence of token strings.
// Recv returns io.EOF after the terminal sentinel; any other error is final.
// Close releases the underlying connection and is safe to call on every exit
// path, including after an error.
type TokenStream struct {
	body    io.ReadCloser
	scanner *bufio.Scanner
	cancel  context.CancelFunc
	logger  *zap.Logger

	mu     sync.Mutex
	closed bool
	done   bool
}

func newTokenStream(body io.ReadCloser, cancel context.CancelFunc, logger *zap.Logger) *TokenStream {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), maxFrameSize)
	return &TokenStream{
		body:    body,
		scanner: scanner,
		cancel:  cancel,
		logger:  logger,
	}
}

// Recv returns the next token. It skips frames that fail to parse, returns
// io.EOF once the sentinel arrives and wraps transport failures in a
// StreamError.
func (s *TokenStream) Recv() (string, error) {
	s.mu.Lock()
	if s.closed || s.done {
		s.mu.Unlock()
		return "", io.EOF
	}
	s.mu.Unlock()

	for s.scanner.Scan() {
		line := strings.TrimSpace(s.scanner.Text())
		if line == "" || !strings.HasPrefix(line, framePrefix) {
			continue
		}
		payload := strings.TrimSpace(strings.TrimPrefix(line, framePrefix))
		if payload == frameSentinel {
			s.finish()
			return "", io.EOF
		}

		var frame struct {
			Token *string `json:"token"`
		}
		if err := json.Unmarshal([]byte(payload), &frame); err != nil || frame.Token == nil {
			// Recoverable: a malformed frame never ends the sequence.
			s.logger.Warn("skipping unparseable stream frame", zap.String("payload", payload))
			continue
		}
		return *frame.Token, nil
	}

	if err := s.scanner.Err(); err != nil {
		s.finish()
		return "", &faults.StreamError{Cause: err}
	}
	// Clean EOF without the sentinel: the connection was cut mid-stream.
	s.finish()
	return "", &faults.StreamError{Cause: ErrStreamTruncated}
}

func (s *TokenStream) finish() {
	s.mu.Lock()
	s.done = true
	s.mu.Unlock()
	_ = s.Close()
}

// Close releases the stream. Idempotent.
func (s *TokenStream) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	if s.cancel != nil {
		s.cancel()
	}
	return s.body.Close()
}

// StreamMessage sends one user message into a chat session and opens the
// token stream of the assistant's reply. The stream stays bound to ctx:
// cancelling it tears the connection down.
func (c *Client) StreamMessage(ctx context.Context, workflowID, chatID, content string) (*TokenStream, error) {
	ctx, cancel := context.WithCancel(ctx)

	payload, err := json.Marshal(map[string]string{"content": content})
	if err != nil {
		cancel()
		return nil, errors.Wrap(err, "marshal message")
	}

	path := c.baseURL + "/api/workflows/" + workflowID + "/chat/" + chatID + "/message"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, path, strings.NewReader(string(payload)))
	if err != nil {
		cancel()
		return nil, errors.Wrap(err, "create message request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")

	// The request-scoped timeout of the shared client would cut a long
	// generation short; streams rely on ctx for cancellation instead.
	streamClient := &http.Client{Transport: c.httpc.Transport}
	resp, err := streamClient.Do(req)
	if err != nil {
		cancel()
		return nil, errors.Wrap(err, "send message")
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		reqErr := c.requestError(resp)
		c.closeBody(resp.Body)
		cancel()
		return nil, reqErr
	}

	return newTokenStream(resp.Body, cancel, c.logger), nil
}
