package client

import (
	"context"
	"net/http"

	"github.com/avi3tal/flowcanvas/internal/types"
)

// workflowPayload is the create/update request body.
type workflowPayload struct {
	Name  string       `json:"name"`
	Nodes []types.Node `json:"nodes"`
	Edges []types.Edge `json:"edges"`
}

// CreateWorkflow saves a new workflow. The backend assigns identity and
// timestamps.
func (c *Client) CreateWorkflow(ctx context.Context, name string, nodes []types.Node, edges []types.Edge) (types.Workflow, error) {
	var wf types.Workflow
	err := c.doJSON(ctx, http.MethodPost, "/api/workflows/", workflowPayload{Name: name, Nodes: nodes, Edges: edges}, &wf)
	return wf, err
}

// UpdateWorkflow replaces an existing workflow's name, nodes and edges.
func (c *Client) UpdateWorkflow(ctx context.Context, id, name string, nodes []types.Node, edges []types.Edge) (types.Workflow, error) {
	var wf types.Workflow
	err := c.doJSON(ctx, http.MethodPut, "/api/workflows/"+id, workflowPayload{Name: name, Nodes: nodes, Edges: edges}, &wf)
	return wf, err
}

// GetWorkflow fetches one workflow by id.
func (c *Client) GetWorkflow(ctx context.Context, id string) (types.Workflow, error) {
	var wf types.Workflow
	err := c.doJSON(ctx, http.MethodGet, "/api/workflows/"+id, nil, &wf)
	return wf, err
}

// ListWorkflows fetches every saved workflow, most recently updated first.
func (c *Client) ListWorkflows(ctx context.Context) ([]types.Workflow, error) {
	var wfs []types.Workflow
	err := c.doJSON(ctx, http.MethodGet, "/api/workflows/", nil, &wfs)
	return wfs, err
}

// DeleteWorkflow deletes a workflow and its chats.
func (c *Client) DeleteWorkflow(ctx context.Context, id string) error {
	var env successEnvelope
	if err := c.doJSON(ctx, http.MethodDelete, "/api/workflows/"+id, nil, &env); err != nil {
		return err
	}
	return env.errOr(http.StatusOK)
}

// BuildWorkflow asks the backend to validate and build a saved workflow.
func (c *Client) BuildWorkflow(ctx context.Context, id string) error {
	var env successEnvelope
	if err := c.doJSON(ctx, http.MethodPost, "/api/workflows/"+id+"/build", nil, &env); err != nil {
		return err
	}
	return env.errOr(http.StatusOK)
}

// CreateChat opens a brand-new chat session bound to a workflow.
func (c *Client) CreateChat(ctx context.Context, workflowID string) (types.ChatSession, error) {
	var session types.ChatSession
	err := c.doJSON(ctx, http.MethodPost, "/api/workflows/"+workflowID+"/chat", nil, &session)
	return session, err
}
