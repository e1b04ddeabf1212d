package store

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/avi3tal/flowcanvas/internal/types"
)

func queryNode(id string) types.Node {
	return types.Node{
		ID:     id,
		Kind:   types.KindUserQuery,
		Label:  "User Query",
		Config: map[string]any{"queryText": ""},
	}
}

func TestAddAndRemoveNodeKeepsEdgesConsistent(t *testing.T) {
	s := New()
	s.AddNode(queryNode("a"))
	s.AddNode(queryNode("b"))
	s.AddNode(queryNode("c"))
	s.AddEdge(types.Edge{ID: "e1", Source: "a", Target: "b", Kind: types.DefaultEdgeKind})
	s.AddEdge(types.Edge{ID: "e2", Source: "b", Target: "c", Kind: types.DefaultEdgeKind})

	s.RemoveNode("b")

	snap := s.Snapshot()
	require.Len(t, snap.Nodes, 2)
	require.Empty(t, snap.Edges, "every edge incident to b must go with it")

	// No sequence of mutations may leave an edge referencing a missing node.
	ids := map[string]bool{}
	for _, n := range snap.Nodes {
		ids[n.ID] = true
	}
	for _, e := range snap.Edges {
		require.True(t, ids[e.Source])
		require.True(t, ids[e.Target])
	}
}

func TestRemoveNodeIsAtomicForObservers(t *testing.T) {
	s := New()
	s.AddNode(queryNode("a"))
	s.AddNode(queryNode("b"))
	s.AddEdge(types.Edge{ID: "e1", Source: "a", Target: "b"})

	var seen []Snapshot
	cancel := s.Subscribe(func(snap Snapshot) {
		seen = append(seen, snap)
	})
	defer cancel()

	s.RemoveNode("a")

	require.Len(t, seen, 1, "one mutation, one snapshot")
	snap := seen[0]
	require.Len(t, snap.Nodes, 1)
	require.Empty(t, snap.Edges, "observer must never see the node gone but the edge present")
}

func TestAddEdgeRejectsDanglingEndpoints(t *testing.T) {
	s := New()
	s.AddNode(queryNode("a"))

	s.AddEdge(types.Edge{ID: "e1", Source: "a", Target: "ghost"})
	require.Empty(t, s.Snapshot().Edges)

	s.AddEdge(types.Edge{ID: "e1", Source: "ghost", Target: "a"})
	require.Empty(t, s.Snapshot().Edges)
}

func TestUpdateNodeShallowMergesConfig(t *testing.T) {
	s := New()
	s.AddNode(types.Node{
		ID:   "n1",
		Kind: types.KindLLMEngine,
		Config: map[string]any{
			"provider":    "openai",
			"model":       "gpt-3.5-turbo",
			"temperature": 0.7,
		},
	})

	s.UpdateNode("n1", NodePatch{Config: map[string]any{"temperature": 0.2}})

	n, ok := s.Node("n1")
	require.True(t, ok)
	require.Equal(t, 0.2, n.Config["temperature"])
	require.Equal(t, "openai", n.Config["provider"], "keys absent from the patch are preserved")
	require.Equal(t, "gpt-3.5-turbo", n.Config["model"])
}

func TestUpdateNodePreservesUnpatchedTopLevelFields(t *testing.T) {
	s := New()
	s.AddNode(types.Node{ID: "n1", Kind: types.KindOutput, Label: "Output", Position: types.Position{X: 1, Y: 2}})

	pos := types.Position{X: 10, Y: 20}
	s.UpdateNode("n1", NodePatch{Position: &pos})

	n, _ := s.Node("n1")
	require.Equal(t, "Output", n.Label)
	require.Equal(t, types.KindOutput, n.Kind)
	require.Equal(t, pos, n.Position)
}

func TestUnknownIDsAreNoOps(t *testing.T) {
	s := New()
	s.AddNode(queryNode("a"))
	before := s.Snapshot()

	label := "x"
	s.UpdateNode("ghost", NodePatch{Label: &label})
	s.RemoveNode("ghost")
	s.UpdateEdge("ghost", EdgePatch{Kind: &label})
	s.RemoveEdge("ghost")

	after := s.Snapshot()
	require.Equal(t, before.Nodes, after.Nodes)
	require.Equal(t, before.Edges, after.Edges)
}

func TestSnapshotIsImmutable(t *testing.T) {
	s := New()
	s.AddNode(types.Node{ID: "n1", Kind: types.KindKnowledgeBase, Config: map[string]any{"collection": "default"}})

	snap := s.Snapshot()
	snap.Nodes[0].Config["collection"] = "tampered"
	snap.Nodes[0].Label = "tampered"

	n, _ := s.Node("n1")
	require.Equal(t, "default", n.Config["collection"])
	require.Empty(t, n.Label)
}

func TestSetGraphDropsDanglingEdges(t *testing.T) {
	s := New()
	s.SetGraph(
		[]types.Node{queryNode("a"), queryNode("b")},
		[]types.Edge{
			{ID: "ok", Source: "a", Target: "b"},
			{ID: "bad", Source: "a", Target: "missing"},
		},
	)

	snap := s.Snapshot()
	require.Len(t, snap.Edges, 1)
	require.Equal(t, "ok", snap.Edges[0].ID)
}

func TestSelectionClearsWhenNodeRemoved(t *testing.T) {
	s := New()
	s.AddNode(queryNode("a"))
	s.SelectNode("a")
	require.Equal(t, "a", s.Snapshot().SelectedID)

	s.RemoveNode("a")
	require.Empty(t, s.Snapshot().SelectedID)
}

func TestClearResetsEverything(t *testing.T) {
	s := New()
	s.AddNode(queryNode("a"))
	s.SelectNode("a")
	s.SetActiveWorkflowID("wf-1")

	s.Clear()

	snap := s.Snapshot()
	require.Empty(t, snap.Nodes)
	require.Empty(t, snap.Edges)
	require.Empty(t, snap.SelectedID)
	require.Empty(t, snap.WorkflowID)
}

func TestSubscribeCancelStopsDelivery(t *testing.T) {
	s := New()
	calls := 0
	cancel := s.Subscribe(func(Snapshot) { calls++ })

	s.AddNode(queryNode("a"))
	require.Equal(t, 1, calls)

	cancel()
	s.AddNode(queryNode("b"))
	require.Equal(t, 1, calls)
}
