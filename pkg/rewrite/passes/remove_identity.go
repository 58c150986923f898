package passes

import (
	"context"

	"github.com/ravi-parthasarathy/graphopt/pkg/graph"
	"github.com/ravi-parthasarathy/graphopt/pkg/rewrite"
)

// RemoveIdentity bypasses Identity nodes. Identities producing a graph output
// are kept so the output name stays stable.
type RemoveIdentity struct{}

func (p *RemoveIdentity) Name() string { return "remove_identity" }

func (p *RemoveIdentity) Process(_ context.Context, g *graph.Graph) (bool, error) {
	b := rewrite.NewPatternBuilder()
	x := b.Wildcard()
	root := b.Node("Identity", x)
	rule, err := rewrite.NewRule(p.Name(), root, func(g *graph.Graph, bnd *rewrite.Binder) (bool, error) {
		id, err := bnd.Get(root)
		if err != nil {
			return false, err
		}
		in, err := bnd.Get(x)
		if err != nil {
			return false, err
		}
		if id.Edge == nil || in.Edge == nil || g.IsGraphOutput(id.Edge.Name) {
			return false, nil
		}
		if err := bypass(g, id.Edge.Name, in.Edge.Name, g.Consumers(id.Edge.Name)); err != nil {
			return true, err
		}
		if err := g.RemoveNode(id.Node.Index); err != nil {
			return true, err
		}
		return true, rewrite.Resolve(g)
	})
	if err != nil {
		return false, err
	}
	return rule.Apply(g)
}

// bypass points every consumer of old at repl.
func bypass(g *graph.Graph, old, repl string, consumers []*graph.Node) error {
	for _, c := range consumers {
		if _, err := g.ReplaceInput(c.Index, old, repl); err != nil {
			return err
		}
	}
	return nil
}
