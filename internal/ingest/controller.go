// Package ingest manages the upload → register → ingest → delete lifecycle
// of knowledge-base documents attached to a knowledgeBase node's config.
//
// Operations on different documents are independent tasks; a per-node lock
// serializes only the read-modify-write of the node's document list so
// concurrent uploads cannot lose each other's entries.
package ingest

import (
	"context"
	"io"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/avi3tal/flowcanvas/internal/faults"
	"github.com/avi3tal/flowcanvas/internal/store"
	"github.com/avi3tal/flowcanvas/internal/types"
)

// DocState is a document's position in its lifecycle state machine.
type DocState string

const (
	StateIdle      DocState = "idle"
	StateUploading DocState = "uploading"
	StateUploaded  DocState = "uploaded"
	StateIngesting DocState = "ingesting"
	StateIngested  DocState = "ingested"
	StateDeleting  DocState = "deleting"
)

// API is the slice of the backend client the controller consumes.
type API interface {
	UploadDocument(ctx context.Context, file io.Reader, filename, collection string) (types.Document, error)
	IngestDocument(ctx context.Context, documentID string) error
	DeleteDocument(ctx context.Context, documentID string) error
}

// Controller drives document lifecycles for knowledgeBase nodes.
type Controller struct {
	store  *store.Store
	api    API
	logger *zap.Logger

	mu        sync.Mutex
	states    map[string]DocState
	nodeLocks map[string]*sync.Mutex
}

// Option configures a Controller.
type Option func(*Controller)

// WithLogger sets the controller logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Controller) {
		c.logger = l
	}
}

// NewController creates a controller bound to a store and a backend client.
func NewController(st *store.Store, api API, opts ...Option) *Controller {
	c := &Controller{
		store:     st,
		api:       api,
		logger:    zap.NewNop(),
		states:    make(map[string]DocState),
		nodeLocks: make(map[string]*sync.Mutex),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// State returns the lifecycle state of a document, or StateIdle for unknown
// ids.
func (c *Controller) State(documentID string) DocState {
	c.mu.Lock()
	defer c.mu.Unlock()
	if s, ok := c.states[documentID]; ok {
		return s
	}
	return StateIdle
}

// Documents returns the document list of a node's config.
func (c *Controller) Documents(nodeID string) []types.Document {
	n, ok := c.store.Node(nodeID)
	if !ok {
		return nil
	}
	return types.DocumentsFromConfig(n.Config)
}

// Upload validates, uploads and registers a document on a knowledgeBase node,
// then immediately requests ingestion. A non-PDF file is rejected before any
// network call. If ingestion fails the document stays in the list uningested
// and the error is returned for the panel to surface; there is no automatic
// retry.
func (c *Controller) Upload(ctx context.Context, nodeID string, file io.Reader, filename, collection string) (types.Document, error) {
	if !strings.HasSuffix(strings.ToLower(filename), ".pdf") {
		return types.Document{}, faults.NewValidation("only PDF files are allowed, got %q", filename)
	}
	node, ok := c.store.Node(nodeID)
	if !ok {
		return types.Document{}, faults.NewValidation("node %s does not exist", nodeID)
	}
	if node.Kind != types.KindKnowledgeBase {
		return types.Document{}, faults.NewValidation("node %s is not a knowledge-base node", nodeID)
	}
	if collection == "" {
		collection = "default"
	}

	doc, err := c.api.UploadDocument(ctx, file, filename, collection)
	if err != nil {
		return types.Document{}, errors.Wrapf(err, "upload %s", filename)
	}
	c.setState(doc.ID, StateUploaded)
	c.mutateDocuments(nodeID, func(docs []types.Document) []types.Document {
		return append(docs, doc)
	})

	c.setState(doc.ID, StateIngesting)
	if err := c.api.IngestDocument(ctx, doc.ID); err != nil {
		// The uploaded document stays in the list, still uningested; the
		// user may delete it or retry from a fresh page load.
		c.setState(doc.ID, StateUploaded)
		c.logger.Warn("document ingestion failed",
			zap.String("document_id", doc.ID),
			zap.Error(err))
		return doc, errors.Wrapf(err, "ingest %s", doc.ID)
	}

	doc.IsIngested = true
	c.setState(doc.ID, StateIngested)
	c.mutateDocuments(nodeID, func(docs []types.Document) []types.Document {
		for i := range docs {
			if docs[i].ID == doc.ID {
				docs[i].IsIngested = true
			}
		}
		return docs
	})
	return doc, nil
}

// Remove deletes a document remotely, then — only on success — removes it
// from the node's local list. A failed remote delete leaves local state
// unchanged.
func (c *Controller) Remove(ctx context.Context, nodeID, documentID string) error {
	prev := c.State(documentID)
	c.setState(documentID, StateDeleting)

	if err := c.api.DeleteDocument(ctx, documentID); err != nil {
		c.setState(documentID, prev)
		return errors.Wrapf(err, "delete %s", documentID)
	}

	c.mutateDocuments(nodeID, func(docs []types.Document) []types.Document {
		kept := docs[:0]
		for _, d := range docs {
			if d.ID != documentID {
				kept = append(kept, d)
			}
		}
		return kept
	})
	c.clearState(documentID)
	return nil
}

// mutateDocuments runs a read-modify-write of one node's document list under
// that node's lock. The store write itself is atomic; the lock only protects
// the read-modify-write from concurrent document tasks on the same node.
func (c *Controller) mutateDocuments(nodeID string, fn func([]types.Document) []types.Document) {
	lock := c.nodeLock(nodeID)
	lock.Lock()
	defer lock.Unlock()

	n, ok := c.store.Node(nodeID)
	if !ok {
		return
	}
	docs := fn(types.DocumentsFromConfig(n.Config))
	c.store.UpdateNode(nodeID, store.NodePatch{
		Config: map[string]any{types.ConfigKeyDocuments: docs},
	})
}

func (c *Controller) nodeLock(nodeID string) *sync.Mutex {
	c.mu.Lock()
	defer c.mu.Unlock()
	if l, ok := c.nodeLocks[nodeID]; ok {
		return l
	}
	l := &sync.Mutex{}
	c.nodeLocks[nodeID] = l
	return l
}

func (c *Controller) setState(documentID string, s DocState) {
	c.mu.Lock()
	c.states[documentID] = s
	c.mu.Unlock()
}

func (c *Controller) clearState(documentID string) {
	c.mu.Lock()
	delete(c.states, documentID)
	c.mu.Unlock()
}
