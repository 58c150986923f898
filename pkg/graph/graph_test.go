package graph_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ravi-parthasarathy/graphopt/pkg/graph"
)

// buildChain returns x -> relu -> r -> id -> y, resolved.
func buildChain(t *testing.T) *graph.Graph {
	t.Helper()
	g := graph.New("chain")
	_, err := g.AddInput("x", graph.Float32, []int64{1, 4})
	require.NoError(t, err)
	_, err = g.AddNode(graph.NodeSpec{Name: "relu", OpType: "Relu", Inputs: []string{"x"}, Outputs: []string{"r"}})
	require.NoError(t, err)
	_, err = g.AddNode(graph.NodeSpec{Name: "id", OpType: "Identity", Inputs: []string{"r"}, Outputs: []string{"y"}})
	require.NoError(t, err)
	require.NoError(t, g.SetOutputs("y"))
	require.NoError(t, g.Resolve())
	return g
}

func TestGraph_ProducerAndConsumers(t *testing.T) {
	g := buildChain(t)

	require.Nil(t, g.Producer("x"))
	require.Equal(t, "relu", g.Producer("r").Name)
	require.Equal(t, "id", g.Producer("y").Name)

	consumers := g.Consumers("r")
	require.Len(t, consumers, 1)
	require.Equal(t, "id", consumers[0].Name)
	require.Empty(t, g.Consumers("y"))
	require.True(t, g.IsGraphOutput("y"))
	require.True(t, g.IsGraphInput("x"))
}

func TestGraph_InferenceFillsTypes(t *testing.T) {
	g := buildChain(t)
	for _, name := range []string{"r", "y"} {
		e := g.Edge(name)
		require.NotNil(t, e, name)
		require.Equal(t, graph.Float32, e.DataType, name)
		require.Equal(t, []int64{1, 4}, e.Shape, name)
	}
}

func TestGraph_AddNodeErrors(t *testing.T) {
	g := buildChain(t)

	_, err := g.AddNode(graph.NodeSpec{Name: "relu", OpType: "Relu", Inputs: []string{"x"}, Outputs: []string{"r2"}})
	require.ErrorContains(t, err, "already in use")

	_, err = g.AddNode(graph.NodeSpec{Name: "n", OpType: "Relu", Inputs: []string{"missing"}, Outputs: []string{"r2"}})
	require.ErrorContains(t, err, "unknown input edge")

	_, err = g.AddNode(graph.NodeSpec{Name: "n", Inputs: []string{"x"}, Outputs: []string{"r2"}})
	require.ErrorContains(t, err, "op type")

	_, err = g.AddNode(graph.NodeSpec{Name: "n", OpType: "Relu", Inputs: []string{"r"}, Outputs: []string{"x"}})
	require.ErrorContains(t, err, "graph input")
}

func TestGraph_AttributesAreCopied(t *testing.T) {
	g := graph.New("attrs")
	_, err := g.AddInput("x", graph.Float32, nil)
	require.NoError(t, err)
	attrs := graph.Attributes{"axis": graph.IntAttr(1)}
	n, err := g.AddNode(graph.NodeSpec{Name: "n", OpType: "Relu", Inputs: []string{"x"}, Outputs: []string{"y"}, Attrs: attrs})
	require.NoError(t, err)

	attrs["axis"] = graph.IntAttr(7)
	got, ok := n.Attrs.Int("axis")
	require.True(t, ok)
	require.Equal(t, int64(1), got)
}

func TestGraph_GenerationTracksMutations(t *testing.T) {
	g := buildChain(t)
	gen := g.Generation()
	require.False(t, g.Dirty())

	_, err := g.CloneEdge("r", "")
	require.NoError(t, err)
	require.Greater(t, g.Generation(), gen)
	require.True(t, g.Dirty())
}

func TestGraph_RemoveNodeCollectsOrphanEdges(t *testing.T) {
	g := buildChain(t)
	id := g.NodeByName("id")
	relu := g.NodeByName("relu")

	n, err := g.ReplaceInput(id.Index, "r", "x")
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.NoError(t, g.RemoveNode(relu.Index))
	require.NoError(t, g.Resolve())

	require.Nil(t, g.Edge("r"))
	require.Nil(t, g.NodeByName("relu"))
	require.Nil(t, g.Node(relu.Index))
	require.Equal(t, 1, g.NumNodes())
	consumers := g.Consumers("x")
	require.Len(t, consumers, 1)
	require.Equal(t, "id", consumers[0].Name)
}

func TestGraph_NodeIndicesAreASnapshot(t *testing.T) {
	g := buildChain(t)
	before := g.NodeIndices()
	_, err := g.AddNode(graph.NodeSpec{Name: "extra", OpType: "Relu", Inputs: []string{"x"}, Outputs: []string{"z"}})
	require.NoError(t, err)
	require.Len(t, before, 2)
	require.Len(t, g.NodeIndices(), 3)
}

func TestGraph_ReplaceOutputKeepsPosition(t *testing.T) {
	g := buildChain(t)
	require.NoError(t, g.SetOutputs("r", "y"))
	_, err := g.AddNode(graph.NodeSpec{Name: "copy", OpType: "Identity", Inputs: []string{"r"}, Outputs: []string{"r2"}})
	require.NoError(t, err)
	require.NoError(t, g.ReplaceOutput("r", "r2"))
	require.NoError(t, g.Resolve())

	var names []string
	for _, e := range g.Outputs() {
		names = append(names, e.Name)
	}
	require.Equal(t, []string{"r2", "y"}, names)
	require.ErrorContains(t, g.ReplaceOutput("nope", "r2"), "not a graph output")
}

func TestGraph_UniqueName(t *testing.T) {
	g := buildChain(t)
	require.Equal(t, "fresh", g.UniqueName("fresh"))
	require.Equal(t, "relu_1", g.UniqueName("relu"))
	require.Equal(t, "r_1", g.UniqueName("r"))
	_, err := g.AddEdge("r_1", "", nil)
	require.NoError(t, err)
	require.Equal(t, "r_2", g.UniqueName("r"))
}

func TestGraph_SetInputBounds(t *testing.T) {
	g := buildChain(t)
	id := g.NodeByName("id")
	require.ErrorContains(t, g.SetInput(id.Index, 3, "x"), "has no input 3")
	require.ErrorContains(t, g.SetInput(id.Index, 0, "nope"), "unknown edge")
	require.NoError(t, g.SetInput(id.Index, 0, "x"))
	require.Equal(t, []string{"x"}, id.Inputs())
}

func TestGraph_OutputsMustBeDistinct(t *testing.T) {
	g := buildChain(t)
	require.ErrorContains(t, g.SetOutputs("y", "y"), `"y" listed twice`)

	require.NoError(t, g.SetOutputs("r", "y"))
	require.ErrorContains(t, g.ReplaceOutput("r", "y"), `"y" is already a graph output`)
	require.NoError(t, g.ReplaceOutput("y", "y"))
}
