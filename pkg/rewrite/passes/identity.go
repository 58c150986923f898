package passes

import (
	"context"

	"github.com/ravi-parthasarathy/graphopt/pkg/graph"
	"github.com/ravi-parthasarathy/graphopt/pkg/rewrite"
)

// GraphOutputIdentity separates graph outputs from internal consumers. When a
// node in Domain produces a graph output that other nodes also read, an
// Identity is inserted and its output becomes the graph output; the internal
// consumers keep reading the original value.
type GraphOutputIdentity struct {
	Domain string
}

func (p *GraphOutputIdentity) Name() string { return "graph_output_identity" }

func (p *GraphOutputIdentity) Process(_ context.Context, g *graph.Graph) (bool, error) {
	b := rewrite.NewPatternBuilder()
	root := b.Wildcard()
	rule, err := rewrite.NewRule(p.Name(), root, func(g *graph.Graph, bnd *rewrite.Binder) (bool, error) {
		m, err := bnd.Get(root)
		if err != nil {
			return false, err
		}
		if m.Node == nil || m.Edge == nil || m.Node.Domain != p.Domain {
			return false, nil
		}
		out := m.Edge
		if !g.IsGraphOutput(out.Name) || len(g.Consumers(out.Name)) == 0 {
			return false, nil
		}

		id, err := rewrite.NewNodeBuilder(g).
			SetOpType("", "Identity").
			SetInputNodeArgs(out.Name).
			SetAnchorPoint2(out, graph.TagIdentityInsertion).
			Build()
		if err != nil {
			return true, err
		}
		if err := g.ReplaceOutput(out.Name, id.Outputs()[0]); err != nil {
			return true, err
		}
		return true, rewrite.Resolve(g)
	})
	if err != nil {
		return false, err
	}
	return rule.Apply(g)
}
