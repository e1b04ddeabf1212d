package app

import (
	"context"

	"github.com/tmc/langchaingo/schema"

	"github.com/avi3tal/flowcanvas/internal/chat"
	"github.com/avi3tal/flowcanvas/internal/client"
	"github.com/avi3tal/flowcanvas/internal/types"
)

// chatAPI adapts the concrete HTTP client to the chat package's API, which
// deals in the TokenStream interface rather than the concrete stream type.
type chatAPI struct {
	c *client.Client
}

// ChatAPI wraps a backend client for use with chat.NewSession.
func ChatAPI(c *client.Client) chat.API {
	return chatAPI{c: c}
}

func (a chatAPI) CreateChat(ctx context.Context, workflowID string) (types.ChatSession, error) {
	return a.c.CreateChat(ctx, workflowID)
}

func (a chatAPI) StreamMessage(ctx context.Context, workflowID, chatID, content string) (chat.TokenStream, error) {
	return a.c.StreamMessage(ctx, workflowID, chatID, content)
}

func (a chatAPI) Search(ctx context.Context, query, collection string, topK int) ([]schema.Document, error) {
	return a.c.Search(ctx, query, collection, topK)
}
