package graph_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ravi-parthasarathy/graphopt/pkg/graph"
)

func TestParseAttr(t *testing.T) {
	tests := []struct {
		in   string
		want graph.Attr
	}{
		{"string:hello", graph.StringAttr("hello")},
		{"string:", graph.StringAttr("")},
		{"int:-3", graph.IntAttr(-3)},
		{"float:0.5", graph.FloatAttr(0.5)},
		{"ints:1,3,224,224", graph.IntsAttr(1, 3, 224, 224)},
		{"tensor:AQID", graph.TensorAttr([]byte{1, 2, 3})},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := graph.ParseAttr(tt.in)
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
			require.Equal(t, tt.in, got.String())
		})
	}
}

func TestParseAttr_Errors(t *testing.T) {
	for _, in := range []string{"noprefix", "int:x", "ints:1,,2", "tensor:***", "complex:1"} {
		_, err := graph.ParseAttr(in)
		require.Error(t, err, in)
	}
}

func TestAttributes_CloneIsDeep(t *testing.T) {
	orig := graph.Attributes{
		"shape": graph.IntsAttr(1, 2),
		"blob":  graph.TensorAttr([]byte{9}),
	}
	c := orig.Clone()
	c["shape"].Ints[0] = 42
	c["blob"].Tensor[0] = 0

	shape, _ := orig.Ints("shape")
	blob, _ := orig.Tensor("blob")
	require.Equal(t, []int64{1, 2}, shape)
	require.Equal(t, []byte{9}, blob)
}

func TestAttributes_TypedAccessors(t *testing.T) {
	a := graph.Attributes{}
	a.Set("n", graph.IntAttr(4))
	_, ok := a.String("n")
	require.False(t, ok)
	n, ok := a.Int("n")
	require.True(t, ok)
	require.Equal(t, int64(4), n)
	_, ok = a.Float("missing")
	require.False(t, ok)
}
