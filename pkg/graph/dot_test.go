package graph_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ravi-parthasarathy/graphopt/pkg/graph"
)

const modelDOT = `digraph model {
	inputs="x,w"
	outputs="y"
	x   [kind=tensor, dtype=float32, shape="2,3"]
	w   [kind=tensor, dtype=float32, shape="3,4"]
	mm  [op=MatMul, inputs="x,w", outputs="h", a_trans="int:0"]
	act [op=Relu, domain="com.xilinx", inputs="h", outputs="y", a_mode="string:fast"]
	mm -> act
}`

func TestParseDOT_Model(t *testing.T) {
	g, err := graph.ParseDOT(modelDOT)
	require.NoError(t, err)

	require.Equal(t, "model", g.Name)
	require.Equal(t, 2, g.NumNodes())
	require.Len(t, g.Inputs(), 2)
	require.Len(t, g.Outputs(), 1)

	act := g.NodeByName("act")
	require.NotNil(t, act)
	require.Equal(t, "Relu", act.OpType)
	require.Equal(t, "com.xilinx", act.Domain)
	mode, ok := act.Attrs.String("mode")
	require.True(t, ok)
	require.Equal(t, "fast", mode)

	h := g.Edge("h")
	require.Equal(t, graph.Float32, h.DataType)
	require.Equal(t, []int64{2, 4}, h.Shape)
	require.Equal(t, "mm", g.Producer("h").Name)
}

func TestFormatDOT_RoundTrip(t *testing.T) {
	g, err := graph.ParseDOT(modelDOT)
	require.NoError(t, err)
	first := graph.FormatDOT(g)

	again, err := graph.ParseDOT(first)
	require.NoError(t, err)
	require.Equal(t, first, graph.FormatDOT(again))
}

func TestFormatDOT_RoundTripKeepsOmittedInputs(t *testing.T) {
	g := graph.New("optional")
	_, err := g.AddInput("x", graph.Float32, nil)
	require.NoError(t, err)
	for _, spec := range []graph.NodeSpec{
		{Name: "lone", OpType: "Custom", Inputs: []string{""}, Outputs: []string{"a"}},
		{Name: "pair", OpType: "Custom", Inputs: []string{"", ""}, Outputs: []string{"b"}},
		{Name: "tail", OpType: "Custom", Inputs: []string{"x", ""}, Outputs: []string{"c"}},
		{Name: "none", OpType: "Custom", Outputs: []string{"d"}},
	} {
		_, err := g.AddNode(spec)
		require.NoError(t, err)
	}
	require.NoError(t, g.SetOutputs("a", "b", "c", "d"))
	require.NoError(t, g.Resolve())

	first := graph.FormatDOT(g)
	back, err := graph.ParseDOT(first)
	require.NoError(t, err)
	for _, n := range g.Nodes() {
		require.Equal(t, n.NumInputs(), back.NodeByName(n.Name).NumInputs(), n.Name)
		require.Equal(t, n.Inputs(), back.NodeByName(n.Name).Inputs(), n.Name)
	}
	require.Equal(t, first, graph.FormatDOT(back))
}

func TestFormatDOT_KeepsAnchorPoints(t *testing.T) {
	g, err := graph.ParseDOT(modelDOT)
	require.NoError(t, err)
	_, err = g.AddNode(graph.NodeSpec{
		Name:    "act_dup",
		OpType:  "Relu",
		Inputs:  []string{"h"},
		Outputs: []string{"y2"},
		Anchor:  &graph.AnchorPoint{Tag: graph.TagDuplicate, Edge: "h", Note: "second consumer"},
	})
	require.NoError(t, err)
	require.NoError(t, g.SetOutputs("y", "y2"))
	require.NoError(t, g.Resolve())

	back, err := graph.ParseDOT(graph.FormatDOT(g))
	require.NoError(t, err)
	a, ok := back.NodeByName("act_dup").Anchor()
	require.True(t, ok)
	require.Equal(t, graph.AnchorPoint{Tag: graph.TagDuplicate, Edge: "h", Note: "second consumer"}, a)
	require.Equal(t, []int64{2, 4}, back.Edge("y2").Shape)
}

func TestParseDOT_Errors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{"syntax", `digraph {`, "dot parse error"},
		{"untyped node", `digraph g { a [color=red] }`, "neither an op nor a tensor declaration"},
		{"num_inputs too small", `digraph g { inputs="x" outputs="y" n [op=Relu, inputs="x,x", outputs="y", num_inputs=1] }`, "num_inputs"},
		{"duplicate output", `digraph g { inputs="x" outputs="y,y" n [op=Relu, inputs="x", outputs="y"] }`, "listed twice"},
		{"bad attr", `digraph g { inputs="x" n [op=Relu, inputs="x", outputs="y", a_k="int:abc"] }`, `node "n"`},
		{"dangling", `digraph g { outputs="y" n [op=Relu, inputs="ghost", outputs="y"] }`, "unknown input edge"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := graph.ParseDOT(tt.src)
			require.ErrorContains(t, err, tt.want)
		})
	}
}

func TestParseDOT_OptionalInputsKeepPosition(t *testing.T) {
	src := `digraph g {
		inputs="x,s"
		outputs="y"
		q [op=QuantizeLinear, inputs="x,s,", outputs="y"]
	}`
	g, err := graph.ParseDOT(src)
	require.NoError(t, err)
	q := g.NodeByName("q")
	require.Equal(t, []string{"x", "s", ""}, q.Inputs())
	require.Equal(t, graph.Uint8, g.Edge("y").DataType)
}
