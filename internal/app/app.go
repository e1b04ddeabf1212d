// Package app is the editor facade: it round-trips the canonical graph to
// the backend (save, load, build, delete) and enforces client-side
// preconditions so doomed requests are never issued.
package app

import (
	"context"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/avi3tal/flowcanvas/internal/configedit"
	"github.com/avi3tal/flowcanvas/internal/faults"
	"github.com/avi3tal/flowcanvas/internal/store"
	"github.com/avi3tal/flowcanvas/internal/types"
)

// ErrNotSaved blocks actions that need a backend workflow id before the
// graph was ever saved.
var ErrNotSaved = errors.New("workflow has not been saved yet")

// Backend is the slice of the backend client the facade consumes.
type Backend interface {
	CreateWorkflow(ctx context.Context, name string, nodes []types.Node, edges []types.Edge) (types.Workflow, error)
	UpdateWorkflow(ctx context.Context, id, name string, nodes []types.Node, edges []types.Edge) (types.Workflow, error)
	GetWorkflow(ctx context.Context, id string) (types.Workflow, error)
	DeleteWorkflow(ctx context.Context, id string) error
	BuildWorkflow(ctx context.Context, id string) error
}

var defaultLabels = map[types.NodeKind]string{
	types.KindUserQuery:     "User Query",
	types.KindKnowledgeBase: "Knowledge Base",
	types.KindLLMEngine:     "LLM Engine",
	types.KindOutput:        "Output",
}

// App ties the graph store to the backend.
type App struct {
	store    *store.Store
	backend  Backend
	registry *configedit.Registry
	logger   *zap.Logger
}

// Option configures an App.
type Option func(*App)

// WithLogger sets the facade logger.
func WithLogger(l *zap.Logger) Option {
	return func(a *App) {
		a.logger = l
	}
}

// New creates the facade.
func New(st *store.Store, backend Backend, registry *configedit.Registry, opts ...Option) *App {
	a := &App{
		store:    st,
		backend:  backend,
		registry: registry,
		logger:   zap.NewNop(),
	}
	for _, o := range opts {
		o(a)
	}
	return a
}

// NewNodeAt creates a node of the given kind at a canvas position, seeded
// with the kind's default config, and adds it to the store.
func (a *App) NewNodeAt(kind types.NodeKind, pos types.Position) (types.Node, error) {
	if !kind.Valid() {
		return types.Node{}, faults.NewValidation("unknown node kind %q", kind)
	}
	n := types.Node{
		ID:       uuid.New().String(),
		Kind:     kind,
		Position: pos,
		Label:    defaultLabels[kind],
		Config:   a.registry.Defaults(kind),
	}
	a.store.AddNode(n)
	return n, nil
}

// Save persists the current graph. The first save creates the workflow and
// records the backend-assigned id; later saves update in place.
func (a *App) Save(ctx context.Context, name string) (types.Workflow, error) {
	snap := a.store.Snapshot()

	var (
		wf  types.Workflow
		err error
	)
	if snap.WorkflowID == "" {
		wf, err = a.backend.CreateWorkflow(ctx, name, snap.Nodes, snap.Edges)
	} else {
		wf, err = a.backend.UpdateWorkflow(ctx, snap.WorkflowID, name, snap.Nodes, snap.Edges)
	}
	if err != nil {
		return types.Workflow{}, errors.Wrap(err, "save workflow")
	}

	a.store.SetActiveWorkflowID(wf.ID)
	return wf, nil
}

// Load fetches a saved workflow and replaces the canonical graph with it.
func (a *App) Load(ctx context.Context, id string) error {
	wf, err := a.backend.GetWorkflow(ctx, id)
	if err != nil {
		return errors.Wrapf(err, "load workflow %s", id)
	}
	a.store.SetGraph(wf.Nodes, wf.Edges)
	a.store.SetActiveWorkflowID(wf.ID)
	return nil
}

// Delete removes the saved workflow and clears the canvas.
func (a *App) Delete(ctx context.Context) error {
	id := a.store.ActiveWorkflowID()
	if id == "" {
		return ErrNotSaved
	}
	if err := a.backend.DeleteWorkflow(ctx, id); err != nil {
		return errors.Wrapf(err, "delete workflow %s", id)
	}
	a.store.Clear()
	return nil
}

// Build validates the graph client-side, then asks the backend to build the
// saved workflow. Precondition violations block the request with a
// descriptive message instead of issuing a doomed call.
func (a *App) Build(ctx context.Context) error {
	id := a.store.ActiveWorkflowID()
	if id == "" {
		return ErrNotSaved
	}
	if err := a.validateGraph(); err != nil {
		return err
	}
	if err := a.backend.BuildWorkflow(ctx, id); err != nil {
		return errors.Wrapf(err, "build workflow %s", id)
	}
	return nil
}

// validateGraph mirrors the backend's workflow validation so obvious failures
// never leave the client.
func (a *App) validateGraph() error {
	snap := a.store.Snapshot()
	if len(snap.Nodes) == 0 {
		return faults.NewValidation("workflow must have at least one node")
	}

	kinds := make(map[types.NodeKind]bool, len(snap.Nodes))
	ids := make(map[string]bool, len(snap.Nodes))
	for _, n := range snap.Nodes {
		kinds[n.Kind] = true
		ids[n.ID] = true
	}
	if !kinds[types.KindUserQuery] {
		return faults.NewValidation("workflow must contain a User Query node")
	}
	if !kinds[types.KindOutput] {
		return faults.NewValidation("workflow must contain an Output node")
	}
	if len(snap.Nodes) > 1 && len(snap.Edges) == 0 {
		return faults.NewValidation("workflow with multiple nodes must have connecting edges")
	}
	for _, e := range snap.Edges {
		if !ids[e.Source] || !ids[e.Target] {
			return faults.NewValidation("edge %s references a non-existent node", e.ID)
		}
	}
	return nil
}
