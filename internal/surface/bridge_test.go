package surface

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/avi3tal/flowcanvas/internal/store"
	"github.com/avi3tal/flowcanvas/internal/types"
)

// recordingSurface captures every derivation pushed by the bridge. Its
// reentrant hook simulates a surface that fires gestures while a canonical
// derivation is being applied.
type recordingSurface struct {
	applied   [][]NodeElement
	edges     [][]types.Edge
	reentrant func()
}

func (r *recordingSurface) ApplyElements(nodes []NodeElement, edges []types.Edge) {
	r.applied = append(r.applied, nodes)
	r.edges = append(r.edges, edges)
	if r.reentrant != nil {
		r.reentrant()
	}
}

func (r *recordingSurface) last() []NodeElement {
	return r.applied[len(r.applied)-1]
}

func newTestGraph(t *testing.T) *store.Store {
	t.Helper()
	s := store.New()
	s.AddNode(types.Node{ID: "a", Kind: types.KindUserQuery, Position: types.Position{X: 0, Y: 0}})
	s.AddNode(types.Node{ID: "b", Kind: types.KindOutput, Position: types.Position{X: 100, Y: 0}})
	return s
}

func TestCanonicalChangesDeriveOntoSurface(t *testing.T) {
	s := newTestGraph(t)
	surf := &recordingSurface{}
	b := NewBridge(s, surf)
	defer b.Close()

	require.NotEmpty(t, surf.applied, "bridge derives current state on attach")

	s.AddNode(types.Node{ID: "c", Kind: types.KindLLMEngine})
	require.Len(t, surf.last(), 3)
}

func TestGesturesFlowIntoStore(t *testing.T) {
	s := newTestGraph(t)
	surf := &recordingSurface{}
	b := NewBridge(s, surf)
	defer b.Close()

	b.NodeMoved("a", types.Position{X: 42, Y: 7})
	n, ok := s.Node("a")
	require.True(t, ok)
	require.Equal(t, types.Position{X: 42, Y: 7}, n.Position)

	b.Connected("a", "b")
	snap := s.Snapshot()
	require.Len(t, snap.Edges, 1)
	require.Equal(t, "a", snap.Edges[0].Source)
	require.Equal(t, "b", snap.Edges[0].Target)
	require.Equal(t, types.DefaultEdgeKind, snap.Edges[0].Kind)

	b.EdgeRemoved(snap.Edges[0].ID)
	require.Empty(t, s.Snapshot().Edges)

	b.NodeRemoved("b")
	_, ok = s.Node("b")
	require.False(t, ok)
}

func TestDerivationDoesNotClobberUnchangedPositions(t *testing.T) {
	s := newTestGraph(t)
	surf := &recordingSurface{}
	b := NewBridge(s, surf)
	defer b.Close()

	// A non-positional change: the surface must keep its own drag state.
	label := "renamed"
	s.UpdateNode("a", store.NodePatch{Label: &label})

	for _, el := range surf.last() {
		require.False(t, el.PositionMoved, "position did not change canonically")
	}

	// A positional change flags exactly the moved node.
	pos := types.Position{X: 5, Y: 5}
	s.UpdateNode("a", store.NodePatch{Position: &pos})
	for _, el := range surf.last() {
		if el.Node.ID == "a" {
			require.True(t, el.PositionMoved)
		} else {
			require.False(t, el.PositionMoved)
		}
	}
}

func TestOwnGestureDoesNotEchoAsMove(t *testing.T) {
	s := newTestGraph(t)
	surf := &recordingSurface{}
	b := NewBridge(s, surf)
	defer b.Close()

	// The derivation triggered by the gesture must not flag the position as
	// moved: the surface already holds it.
	b.NodeMoved("a", types.Position{X: 9, Y: 9})
	for _, el := range surf.last() {
		require.False(t, el.PositionMoved)
	}
}

func TestReentrantGestureIsDropped(t *testing.T) {
	s := newTestGraph(t)
	surf := &recordingSurface{}
	var b *Bridge

	moves := 0
	surf.reentrant = func() {
		// A gesture fired synchronously inside a canonical derivation must
		// be rejected, or every derivation would trigger another mutation
		// and the bridge would oscillate forever.
		if b != nil {
			moves++
			b.NodeMoved("a", types.Position{X: float64(moves), Y: 0})
		}
	}
	b = NewBridge(s, surf)
	defer b.Close()

	s.AddNode(types.Node{ID: "c", Kind: types.KindOutput})

	n, _ := s.Node("a")
	require.Equal(t, types.Position{X: 0, Y: 0}, n.Position, "re-entrant moves must not reach the store")
}
