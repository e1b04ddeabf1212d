// Package store owns the canonical graph state: nodes, edges, the current
// selection and the active workflow id. It is the single source of truth the
// editing surface, the config panel and the chat client all read from.
//
// Every mutation is atomic under the store lock and emits one immutable,
// deep-copied snapshot to subscribers, so no observer can see a node removed
// while an incident edge is still present.
package store

import (
	"sync"

	"go.uber.org/zap"

	"github.com/avi3tal/flowcanvas/internal/types"
)

// Snapshot is an immutable view of the store emitted on every mutation.
// Slices and config maps are deep copies; holding or mutating a snapshot can
// never affect canonical state.
type Snapshot struct {
	Nodes      []types.Node
	Edges      []types.Edge
	SelectedID string
	WorkflowID string
}

// Node returns the snapshot node with the given id.
func (s Snapshot) Node(id string) (types.Node, bool) {
	for _, n := range s.Nodes {
		if n.ID == id {
			return n, true
		}
	}
	return types.Node{}, false
}

// NodePatch is a partial node update. Nil fields are left untouched. Config
// is merged shallowly into the node's existing config: keys present in the
// patch are set, every other key is preserved.
type NodePatch struct {
	Label    *string
	Kind     *types.NodeKind
	Position *types.Position
	Config   map[string]any
}

// EdgePatch is a partial edge update. Nil fields are left untouched.
type EdgePatch struct {
	Source *string
	Target *string
	Kind   *string
}

// Store is the canonical graph state owner. Construct one per editing
// session; there is no package-level instance.
type Store struct {
	mu         sync.Mutex
	nodes      []types.Node
	edges      []types.Edge
	selectedID string
	workflowID string

	subs    map[int]func(Snapshot)
	nextSub int

	logger *zap.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the store logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Store) {
		s.logger = l
	}
}

// New creates an empty store.
func New(opts ...Option) *Store {
	s := &Store{
		subs:   make(map[int]func(Snapshot)),
		logger: zap.NewNop(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Subscribe registers fn to receive a snapshot after every mutation. The
// returned function cancels the subscription.
func (s *Store) Subscribe(fn func(Snapshot)) func() {
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}

// Snapshot returns the current state as an immutable copy.
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Node returns a copy of the node with the given id.
func (s *Store) Node(id string) (types.Node, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.nodes {
		if s.nodes[i].ID == id {
			return s.nodes[i].Clone(), true
		}
	}
	return types.Node{}, false
}

// ActiveWorkflowID returns the id assigned by the backend on save, or "".
func (s *Store) ActiveWorkflowID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.workflowID
}

// SetGraph replaces the node and edge sets wholesale. Used when loading a
// saved workflow. Edges referencing unknown nodes are dropped rather than
// persisted.
func (s *Store) SetGraph(nodes []types.Node, edges []types.Edge) {
	s.mu.Lock()
	s.nodes = make([]types.Node, 0, len(nodes))
	ids := make(map[string]struct{}, len(nodes))
	for _, n := range nodes {
		if _, dup := ids[n.ID]; dup {
			s.logger.Warn("dropping node with duplicate id", zap.String("node_id", n.ID))
			continue
		}
		ids[n.ID] = struct{}{}
		s.nodes = append(s.nodes, n.Clone())
	}
	s.edges = make([]types.Edge, 0, len(edges))
	for _, e := range edges {
		if !s.endpointsExistLocked(e.Source, e.Target) {
			s.logger.Warn("dropping dangling edge",
				zap.String("edge_id", e.ID),
				zap.String("source", e.Source),
				zap.String("target", e.Target))
			continue
		}
		s.edges = append(s.edges, e)
	}
	s.emitLocked()
}

// AddNode appends a node. A node whose id already exists is ignored.
func (s *Store) AddNode(n types.Node) {
	s.mu.Lock()
	if s.nodeIndexLocked(n.ID) >= 0 {
		s.logger.Warn("ignoring node with duplicate id", zap.String("node_id", n.ID))
		s.mu.Unlock()
		return
	}
	s.nodes = append(s.nodes, n.Clone())
	s.emitLocked()
}

// UpdateNode applies a partial patch to the node with the given id. Unknown
// ids are a no-op. Top-level fields merge shallowly; Config merges shallowly
// one level deep, preserving keys absent from the patch.
func (s *Store) UpdateNode(id string, patch NodePatch) {
	s.mu.Lock()
	i := s.nodeIndexLocked(id)
	if i < 0 {
		s.mu.Unlock()
		return
	}
	n := &s.nodes[i]
	if patch.Label != nil {
		n.Label = *patch.Label
	}
	if patch.Kind != nil {
		n.Kind = *patch.Kind
	}
	if patch.Position != nil {
		n.Position = *patch.Position
	}
	if patch.Config != nil {
		merged := types.CloneConfig(n.Config)
		for k, v := range types.CloneConfig(patch.Config) {
			merged[k] = v
		}
		n.Config = merged
	}
	s.emitLocked()
}

// RemoveNode removes the node and every edge incident to it in one atomic
// transition. Unknown ids are a no-op.
func (s *Store) RemoveNode(id string) {
	s.mu.Lock()
	i := s.nodeIndexLocked(id)
	if i < 0 {
		s.mu.Unlock()
		return
	}
	s.nodes = append(s.nodes[:i], s.nodes[i+1:]...)

	kept := s.edges[:0]
	for _, e := range s.edges {
		if e.Source == id || e.Target == id {
			continue
		}
		kept = append(kept, e)
	}
	s.edges = kept

	if s.selectedID == id {
		s.selectedID = ""
	}
	s.emitLocked()
}

// AddEdge appends an edge. Edges referencing unknown node ids are never
// persisted; such a call is dropped with a warning.
func (s *Store) AddEdge(e types.Edge) {
	s.mu.Lock()
	if s.edgeIndexLocked(e.ID) >= 0 {
		s.logger.Warn("ignoring edge with duplicate id", zap.String("edge_id", e.ID))
		s.mu.Unlock()
		return
	}
	if !s.endpointsExistLocked(e.Source, e.Target) {
		s.logger.Warn("rejecting dangling edge",
			zap.String("edge_id", e.ID),
			zap.String("source", e.Source),
			zap.String("target", e.Target))
		s.mu.Unlock()
		return
	}
	s.edges = append(s.edges, e)
	s.emitLocked()
}

// UpdateEdge applies a partial patch to the edge with the given id. Unknown
// ids are a no-op. A patch that would dangle an endpoint is dropped.
func (s *Store) UpdateEdge(id string, patch EdgePatch) {
	s.mu.Lock()
	i := s.edgeIndexLocked(id)
	if i < 0 {
		s.mu.Unlock()
		return
	}
	e := s.edges[i]
	if patch.Source != nil {
		e.Source = *patch.Source
	}
	if patch.Target != nil {
		e.Target = *patch.Target
	}
	if patch.Kind != nil {
		e.Kind = *patch.Kind
	}
	if !s.endpointsExistLocked(e.Source, e.Target) {
		s.logger.Warn("rejecting edge patch with dangling endpoint", zap.String("edge_id", id))
		s.mu.Unlock()
		return
	}
	s.edges[i] = e
	s.emitLocked()
}

// RemoveEdge removes the edge with the given id. Unknown ids are a no-op.
func (s *Store) RemoveEdge(id string) {
	s.mu.Lock()
	i := s.edgeIndexLocked(id)
	if i < 0 {
		s.mu.Unlock()
		return
	}
	s.edges = append(s.edges[:i], s.edges[i+1:]...)
	s.emitLocked()
}

// SelectNode sets the selected node id. An empty id clears the selection; an
// unknown id is treated as clearing it.
func (s *Store) SelectNode(id string) {
	s.mu.Lock()
	if id != "" && s.nodeIndexLocked(id) < 0 {
		id = ""
	}
	s.selectedID = id
	s.emitLocked()
}

// SetActiveWorkflowID records the backend-assigned workflow identity. An
// empty id marks the graph as unsaved.
func (s *Store) SetActiveWorkflowID(id string) {
	s.mu.Lock()
	s.workflowID = id
	s.emitLocked()
}

// Clear resets the store to its initial empty state.
func (s *Store) Clear() {
	s.mu.Lock()
	s.nodes = nil
	s.edges = nil
	s.selectedID = ""
	s.workflowID = ""
	s.emitLocked()
}

func (s *Store) nodeIndexLocked(id string) int {
	for i := range s.nodes {
		if s.nodes[i].ID == id {
			return i
		}
	}
	return -1
}

func (s *Store) edgeIndexLocked(id string) int {
	for i := range s.edges {
		if s.edges[i].ID == id {
			return i
		}
	}
	return -1
}

func (s *Store) endpointsExistLocked(source, target string) bool {
	return s.nodeIndexLocked(source) >= 0 && s.nodeIndexLocked(target) >= 0
}

func (s *Store) snapshotLocked() Snapshot {
	snap := Snapshot{
		Nodes:      make([]types.Node, 0, len(s.nodes)),
		Edges:      make([]types.Edge, len(s.edges)),
		SelectedID: s.selectedID,
		WorkflowID: s.workflowID,
	}
	for _, n := range s.nodes {
		snap.Nodes = append(snap.Nodes, n.Clone())
	}
	copy(snap.Edges, s.edges)
	return snap
}

// emitLocked builds the snapshot under the lock, then releases it before
// invoking subscribers so a callback may issue further mutations.
func (s *Store) emitLocked() {
	snap := s.snapshotLocked()
	subs := make([]func(Snapshot), 0, len(s.subs))
	for _, fn := range s.subs {
		subs = append(subs, fn)
	}
	s.mu.Unlock()

	for _, fn := range subs {
		fn(snap)
	}
}
