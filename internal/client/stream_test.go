package client

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/avi3tal/flowcanvas/internal/faults"
)

// streamHandler serves scripted SSE lines on the message endpoint.
func streamHandler(lines []string) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		for _, line := range lines {
			fmt.Fprintf(w, "%s\n\n", line)
		}
	}
}

func collect(t *testing.T, s *TokenStream) ([]string, error) {
	t.Helper()
	var tokens []string
	for {
		tok, err := s.Recv()
		if err == io.EOF {
			return tokens, nil
		}
		if err != nil {
			return tokens, err
		}
		tokens = append(tokens, tok)
	}
}

func openStream(t *testing.T, lines []string) *TokenStream {
	t.Helper()
	srv := httptest.NewServer(streamHandler(lines))
	t.Cleanup(srv.Close)

	c := New(srv.URL)
	s, err := c.StreamMessage(context.Background(), "wf", "chat", "hello")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStreamDecodesTokensInOrder(t *testing.T) {
	s := openStream(t, []string{
		`data: {"token": "Hi"}`,
		`data: {"token": " there"}`,
		`data: [DONE]`,
	})

	tokens, err := collect(t, s)
	require.NoError(t, err)
	require.Equal(t, []string{"Hi", " there"}, tokens)

	// Terminated: further reads stay EOF with no side effects.
	_, err = s.Recv()
	require.Equal(t, io.EOF, err)
}

func TestUnparseableFrameIsSkippedNotFatal(t *testing.T) {
	s := openStream(t, []string{
		`data: {"token": "Hi"}`,
		`data: {'error': 'mid-workflow failure'}`,
		`data: {"token": " there"}`,
		`data: [DONE]`,
	})

	tokens, err := collect(t, s)
	require.NoError(t, err)
	require.Equal(t, []string{"Hi", " there"}, tokens, "both valid tokens applied, in order")
}

func TestFrameWithoutTokenFieldIsSkipped(t *testing.T) {
	s := openStream(t, []string{
		`data: {"usage": 12}`,
		`data: {"token": "ok"}`,
		`data: [DONE]`,
	})

	tokens, err := collect(t, s)
	require.NoError(t, err)
	require.Equal(t, []string{"ok"}, tokens)
}

func TestTruncatedStreamIsAStreamError(t *testing.T) {
	s := openStream(t, []string{
		`data: {"token": "partial"}`,
		// Connection ends without the terminal sentinel.
	})

	tokens, err := collect(t, s)
	require.Equal(t, []string{"partial"}, tokens)
	require.Error(t, err)
	require.True(t, faults.IsStream(err))
}

func TestContextCancellationTearsDownStream(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"token\": \"x\"}\n\n")
		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}
		<-release
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	c := New(srv.URL)
	s, err := c.StreamMessage(ctx, "wf", "chat", "hello")
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	tok, err := s.Recv()
	require.NoError(t, err)
	require.Equal(t, "x", tok)

	cancel()
	_, err = s.Recv()
	require.Error(t, err, "cancelled context must end the stream")
	require.NotEqual(t, io.EOF, err)
}

func TestNonSuccessStatusIsRequestErrorNotStream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"detail": "Chat not found"}`, http.StatusNotFound)
	}))
	defer srv.Close()

	c := New(srv.URL)
	_, err := c.StreamMessage(context.Background(), "wf", "chat", "hello")
	require.Error(t, err)
	require.True(t, faults.IsRequest(err))
	var reqErr *faults.RequestError
	require.ErrorAs(t, err, &reqErr)
	require.Equal(t, http.StatusNotFound, reqErr.StatusCode)
	require.Contains(t, reqErr.Message, "Chat not found")
}

func TestCloseIsIdempotent(t *testing.T) {
	s := openStream(t, []string{`data: [DONE]`})
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	_, err := s.Recv()
	require.Equal(t, io.EOF, err)
}
