// Package chat drives a retrieval-augmented, token-streamed conversation with
// a built workflow. A session is created fresh every time the chat dialog
// opens and discarded when it closes; at most one token stream is active per
// session.
package chat

import (
	"context"
	"io"
	"sync"

	"github.com/pkg/errors"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/schema"
	"go.uber.org/zap"

	"github.com/avi3tal/flowcanvas/internal/store"
	"github.com/avi3tal/flowcanvas/internal/types"
)

// State is the chat dialog's position in its lifecycle.
type State string

const (
	StateClosed         State = "closed"
	StateSessionPending State = "sessionPending"
	StateSessionReady   State = "sessionReady"
	StateSending        State = "sending"
)

// The retrieval step is bounded to a fixed number of hits per turn.
const searchTopK = 5

// errorNotice replaces an assistant message whose stream failed mid-flight.
const errorNotice = "Sorry, something went wrong while generating the response. Please try again."

var (
	// ErrNotReady is returned by Send when no session is open.
	ErrNotReady = errors.New("chat session is not ready")
	// ErrStreamActive is returned by Send while a previous turn is still
	// streaming.
	ErrStreamActive = errors.New("a token stream is already active for this session")
	// ErrAlreadyOpen is returned by Open on a session that was not closed.
	ErrAlreadyOpen = errors.New("chat session is already open")
)

// TokenStream is the consumed half of the streamed message endpoint. Recv
// returns io.EOF at the end of the sequence.
type TokenStream interface {
	Recv() (string, error)
	Close() error
}

// API is the slice of the backend client the session consumes.
type API interface {
	CreateChat(ctx context.Context, workflowID string) (types.ChatSession, error)
	StreamMessage(ctx context.Context, workflowID, chatID, content string) (TokenStream, error)
	Search(ctx context.Context, query, collection string, topK int) ([]schema.Document, error)
}

// Session is one open chat dialog.
type Session struct {
	api    API
	store  *store.Store
	logger *zap.Logger

	mu       sync.Mutex
	state    State
	session  types.ChatSession
	messages []*types.Message
	stream   TokenStream
	onChange func()
}

// Option configures a Session.
type Option func(*Session)

// WithLogger sets the session logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Session) {
		s.logger = l
	}
}

// WithOnChange registers a callback invoked after every message change,
// including each appended token, so the UI can reveal the reply as it grows.
func WithOnChange(fn func()) Option {
	return func(s *Session) {
		s.onChange = fn
	}
}

// NewSession creates a closed session.
func NewSession(api API, st *store.Store, opts ...Option) *Session {
	s := &Session{
		api:    api,
		store:  st,
		logger: zap.NewNop(),
		state:  StateClosed,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// State returns the current dialog state. The input surface must stay
// disabled while it is StateSending.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Messages returns a copy of the conversation so far.
func (s *Session) Messages() []types.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]types.Message, 0, len(s.messages))
	for _, m := range s.messages {
		out = append(out, *m)
	}
	return out
}

// Open requests a brand-new backend session for the workflow. Sessions are
// never reused across dialog opens.
func (s *Session) Open(ctx context.Context, workflowID string) error {
	s.mu.Lock()
	if s.state != StateClosed {
		s.mu.Unlock()
		return ErrAlreadyOpen
	}
	s.state = StateSessionPending
	s.mu.Unlock()

	session, err := s.api.CreateChat(ctx, workflowID)
	if err != nil {
		s.mu.Lock()
		s.state = StateClosed
		s.mu.Unlock()
		return errors.Wrap(err, "create chat session")
	}

	s.mu.Lock()
	s.session = session
	s.messages = nil
	s.state = StateSessionReady
	s.mu.Unlock()
	return nil
}

// Close discards all in-memory messages and the session reference, and
// releases any active stream. The next Open starts from scratch.
func (s *Session) Close() {
	s.mu.Lock()
	stream := s.stream
	s.stream = nil
	s.session = types.ChatSession{}
	s.messages = nil
	s.state = StateClosed
	s.mu.Unlock()

	if stream != nil {
		if err := stream.Close(); err != nil {
			s.logger.Warn("failed to close token stream", zap.Error(err))
		}
	}
}

// Send runs one user turn: similarity search against the graph's active
// collection, prompt augmentation, then token-streamed consumption into a
// single growing assistant message. It blocks until the stream ends; run it
// on its own goroutine and gate the input surface on State.
func (s *Session) Send(ctx context.Context, text string) error {
	s.mu.Lock()
	switch s.state {
	case StateSending:
		s.mu.Unlock()
		return ErrStreamActive
	case StateSessionReady:
	default:
		s.mu.Unlock()
		return ErrNotReady
	}
	s.state = StateSending
	session := s.session
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		if s.state == StateSending {
			s.state = StateSessionReady
		}
		s.stream = nil
		s.mu.Unlock()
	}()

	collection, customPrompt := s.graphSettings()

	// The retrieval step gates the whole turn: on failure nothing is sent
	// and no message is appended.
	results, err := s.api.Search(ctx, text, collection, searchTopK)
	if err != nil {
		return errors.Wrap(err, "knowledge-base search")
	}
	prompt := BuildPrompt(text, results, customPrompt)

	user := types.NewMessage(llms.ChatMessageTypeHuman, text)
	assistant := types.NewMessage(llms.ChatMessageTypeAI, "")
	s.mu.Lock()
	s.messages = append(s.messages, user, assistant)
	s.mu.Unlock()
	s.notify()

	stream, err := s.api.StreamMessage(ctx, session.WorkflowID, session.ID, prompt)
	if err != nil {
		s.replaceContent(assistant, errorNotice)
		return errors.Wrap(err, "open token stream")
	}
	s.mu.Lock()
	s.stream = stream
	s.mu.Unlock()
	defer func() {
		_ = stream.Close()
	}()

	for {
		token, err := stream.Recv()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			s.replaceContent(assistant, errorNotice)
			return errors.Wrap(err, "receive token")
		}
		s.mu.Lock()
		assistant.Content += token
		s.mu.Unlock()
		s.notify()
	}
}

// graphSettings reads the active collection (first knowledgeBase node) and
// custom prompt (first llmEngine node) from the canonical graph.
func (s *Session) graphSettings() (collection, customPrompt string) {
	collection = "default"
	snap := s.store.Snapshot()
	foundKB := false
	for _, n := range snap.Nodes {
		switch n.Kind {
		case types.KindKnowledgeBase:
			if !foundKB {
				foundKB = true
				if v, ok := n.Config["collection"].(string); ok && v != "" {
					collection = v
				}
			}
		case types.KindLLMEngine:
			if customPrompt == "" {
				if v, ok := n.Config["customPrompt"].(string); ok {
					customPrompt = v
				}
			}
		}
	}
	return collection, customPrompt
}

func (s *Session) replaceContent(m *types.Message, content string) {
	s.mu.Lock()
	m.Content = content
	s.mu.Unlock()
	s.notify()
}

func (s *Session) notify() {
	if s.onChange != nil {
		s.onChange()
	}
}
