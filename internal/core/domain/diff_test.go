package domain_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.trai.ch/nest/internal/core/domain"
)

func nodeIDs(nodes []*domain.Node) []domain.DepID {
	ids := make([]domain.DepID, len(nodes))
	for i, n := range nodes {
		ids[i] = n.ID
	}
	return ids
}

func edgeKeys(g *domain.Graph) []domain.EdgeKey {
	var keys []domain.EdgeKey
	for e := range g.Edges() {
		keys = append(keys, e.Key())
	}
	return keys
}

func graphIDs(g *domain.Graph) []domain.DepID {
	var ids []domain.DepID
	for n := range g.Nodes() {
		ids = append(ids, n.ID)
	}
	return ids
}

func TestComputeDiff_VersionChange(t *testing.T) {
	actual := domain.NewGraph("/p")
	root := actual.AddImporter(rootNode())
	foo1 := actual.AddNode(regNode("foo", "1.0.0"))
	require.NoError(t, actual.AddEdge(edge(root, foo1, domain.DepProd, "^1.0.0")))

	ideal := domain.NewGraph("/p")
	idealRoot := ideal.AddImporter(rootNode())
	foo2 := ideal.AddNode(regNode("foo", "2.0.0"))
	require.NoError(t, ideal.AddEdge(edge(idealRoot, foo2, domain.DepProd, "^2.0.0")))

	d := domain.ComputeDiff(actual, ideal)

	assert.Equal(t, []domain.DepID{foo2.ID}, nodeIDs(d.Nodes.Add))
	assert.Equal(t, []domain.DepID{foo1.ID}, nodeIDs(d.Nodes.Delete))
	require.Len(t, d.Edges.Add, 1)
	require.Len(t, d.Edges.Delete, 1)
	assert.Equal(t, foo2.ID, d.Edges.Add[0].To)
	assert.Equal(t, foo1.ID, d.Edges.Delete[0].To)

	// The existing node is never mutated in place.
	assert.Equal(t, "1.0.0", foo1.Version)
	assert.True(t, d.HasChanges())
}

func TestComputeDiff_Identical(t *testing.T) {
	build := func() *domain.Graph {
		g := domain.NewGraph("/p")
		root := g.AddImporter(rootNode())
		a := g.AddNode(regNode("a", "1.0.0"))
		require.NoError(t, g.AddEdge(edge(root, a, domain.DepProd, "^1")))
		require.NoError(t, g.AddEdge(&domain.Edge{From: root.ID, Name: "gone", Type: domain.DepOptional}))
		return g
	}
	d := domain.ComputeDiff(build(), build())
	assert.False(t, d.HasChanges())
}

func TestComputeDiff_RelocatedIsDeleteThenAdd(t *testing.T) {
	id := domain.NewWorkspaceID("packages/a")

	actual := domain.NewGraph("/p")
	root := actual.AddImporter(rootNode())
	old := domain.NewNode(id, "a", "1.0.0", nil)
	old.Location = "packages/a"
	actual.AddNode(old)
	require.NoError(t, actual.AddEdge(edge(root, old, domain.DepProd, "workspace:*")))

	ideal := domain.NewGraph("/p")
	idealRoot := ideal.AddImporter(rootNode())
	moved := domain.NewNode(id, "a", "1.0.0", nil)
	moved.Location = "libs/a"
	ideal.AddNode(moved)
	require.NoError(t, ideal.AddEdge(edge(idealRoot, moved, domain.DepProd, "workspace:*")))

	d := domain.ComputeDiff(actual, ideal)
	assert.Equal(t, []domain.DepID{id}, nodeIDs(d.Nodes.Add))
	assert.Equal(t, []domain.DepID{id}, nodeIDs(d.Nodes.Delete))
	assert.Len(t, d.Edges.Add, 1)
	assert.Len(t, d.Edges.Delete, 1)

	applied, err := d.Apply(actual)
	require.NoError(t, err)
	n, ok := applied.Node(id)
	require.True(t, ok)
	assert.Equal(t, "libs/a", n.Location)
}

func TestDiff_ApplyYieldsIdeal(t *testing.T) {
	actual := domain.NewGraph("/p")
	aRoot := actual.AddImporter(rootNode())
	a := actual.AddNode(regNode("a", "1.0.0"))
	b := actual.AddNode(regNode("b", "1.0.0"))
	old := actual.AddNode(regNode("old", "1.0.0"))
	require.NoError(t, actual.AddEdge(edge(aRoot, a, domain.DepProd, "^1")))
	require.NoError(t, actual.AddEdge(edge(a, b, domain.DepProd, "^1")))
	require.NoError(t, actual.AddEdge(edge(aRoot, old, domain.DepDev, "^1")))
	require.NoError(t, actual.AddEdge(&domain.Edge{From: aRoot.ID, Name: "broken", Type: domain.DepProd}))

	ideal := domain.NewGraph("/p")
	iRoot := ideal.AddImporter(rootNode())
	ia := ideal.AddNode(regNode("a", "1.0.0"))
	ib := ideal.AddNode(regNode("b", "1.1.0"))
	ic := ideal.AddNode(regNode("c", "1.0.0"))
	require.NoError(t, ideal.AddEdge(edge(iRoot, ia, domain.DepProd, "^1")))
	require.NoError(t, ideal.AddEdge(edge(ia, ib, domain.DepProd, "^1")))
	require.NoError(t, ideal.AddEdge(edge(ib, ic, domain.DepProd, "^1")))
	require.NoError(t, ideal.AddEdge(edge(ic, ib, domain.DepPeer, "^1")))
	require.NoError(t, ideal.AddEdge(&domain.Edge{From: iRoot.ID, Name: "unresolvable", Type: domain.DepProd}))

	d := domain.ComputeDiff(actual, ideal)
	applied, err := d.Apply(actual)
	require.NoError(t, err)

	assert.ElementsMatch(t, graphIDs(ideal), graphIDs(applied))
	assert.ElementsMatch(t, edgeKeys(ideal), edgeKeys(applied))
	require.NoError(t, applied.Validate())

	// The actual graph itself is left untouched.
	assert.Equal(t, 4, actual.NodeCount())
}
