// Package surface reconciles the canonical graph store with an external,
// independently stateful editing surface. Synchronization runs over two
// one-directional channels: canonical changes are derived onto the surface,
// and discrete user gestures from the surface are applied to the store. An
// origin guard keeps one channel from feeding the other within the same
// update, so a store-triggered derivation can never loop back into the store
// as a phantom gesture.
package surface

import (
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/avi3tal/flowcanvas/internal/store"
	"github.com/avi3tal/flowcanvas/internal/types"
)

// NodeElement is one node payload derived for the surface. PositionMoved is
// true only when the canonical position changed since the previous
// derivation; the surface must leave its own position state (for example an
// in-progress drag) untouched when it is false.
type NodeElement struct {
	Node          types.Node
	PositionMoved bool
}

// Surface is the external editing surface the bridge drives. ApplyElements
// receives the full derived element set after every canonical change.
type Surface interface {
	ApplyElements(nodes []NodeElement, edges []types.Edge)
}

// Bridge wires a Store to a Surface.
type Bridge struct {
	store   *store.Store
	surface Surface
	logger  *zap.Logger

	mu        sync.Mutex
	deriving  bool
	positions map[string]types.Position

	unsubscribe func()
}

// Option configures a Bridge.
type Option func(*Bridge)

// WithLogger sets the bridge logger.
func WithLogger(l *zap.Logger) Option {
	return func(b *Bridge) {
		b.logger = l
	}
}

// NewBridge creates a bridge and immediately derives the current store state
// onto the surface. Call Close to detach.
func NewBridge(st *store.Store, surf Surface, opts ...Option) *Bridge {
	b := &Bridge{
		store:     st,
		surface:   surf,
		logger:    zap.NewNop(),
		positions: make(map[string]types.Position),
	}
	for _, o := range opts {
		o(b)
	}
	b.unsubscribe = st.Subscribe(b.applyCanonical)
	b.applyCanonical(st.Snapshot())
	return b
}

// Close detaches the bridge from the store.
func (b *Bridge) Close() {
	if b.unsubscribe != nil {
		b.unsubscribe()
		b.unsubscribe = nil
	}
}

// applyCanonical is the canonical-to-surface channel: it re-derives the
// surface element set wholesale from a store snapshot.
func (b *Bridge) applyCanonical(snap store.Snapshot) {
	b.mu.Lock()
	b.deriving = true
	next := make(map[string]types.Position, len(snap.Nodes))
	elements := make([]NodeElement, 0, len(snap.Nodes))
	for _, n := range snap.Nodes {
		prev, seen := b.positions[n.ID]
		elements = append(elements, NodeElement{
			Node:          n,
			PositionMoved: !seen || prev != n.Position,
		})
		next[n.ID] = n.Position
	}
	b.positions = next
	b.mu.Unlock()

	b.surface.ApplyElements(elements, snap.Edges)

	b.mu.Lock()
	b.deriving = false
	b.mu.Unlock()
}

// guard reports whether a gesture arrived re-entrantly from a canonical
// derivation, in which case it must be dropped.
func (b *Bridge) guard(gesture string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.deriving {
		b.logger.Debug("dropping re-entrant surface gesture", zap.String("gesture", gesture))
		return true
	}
	return false
}

// NodeMoved handles a completed drag gesture. Pushed per discrete event, not
// per animation frame.
func (b *Bridge) NodeMoved(id string, pos types.Position) {
	if b.guard("move") {
		return
	}
	b.mu.Lock()
	b.positions[id] = pos
	b.mu.Unlock()
	b.store.UpdateNode(id, store.NodePatch{Position: &pos})
}

// Connected handles an interactive connection gesture between two nodes.
func (b *Bridge) Connected(sourceID, targetID string) {
	if b.guard("connect") {
		return
	}
	b.store.AddEdge(types.Edge{
		ID:     uuid.New().String(),
		Source: sourceID,
		Target: targetID,
		Kind:   types.DefaultEdgeKind,
	})
}

// NodeRemoved handles a node deletion gesture.
func (b *Bridge) NodeRemoved(id string) {
	if b.guard("remove-node") {
		return
	}
	b.store.RemoveNode(id)
}

// EdgeRemoved handles an edge deletion gesture.
func (b *Bridge) EdgeRemoved(id string) {
	if b.guard("remove-edge") {
		return
	}
	b.store.RemoveEdge(id)
}

// NodeSelected handles a selection gesture. An empty id clears the selection.
func (b *Bridge) NodeSelected(id string) {
	if b.guard("select") {
		return
	}
	b.store.SelectNode(id)
}
