package passes

import (
	"context"

	"github.com/ravi-parthasarathy/graphopt/pkg/graph"
	"github.com/ravi-parthasarathy/graphopt/pkg/rewrite"
)

// FoldQDQ removes a QuantizeLinear immediately undone by a DequantizeLinear
// with the same scale and zero point: DequantizeLinear(QuantizeLinear(x, s, z), s, z)
// is replaced by x. The quantizer is removed too when nothing else reads it.
type FoldQDQ struct{}

func (p *FoldQDQ) Name() string { return "fold_qdq" }

func (p *FoldQDQ) Process(_ context.Context, g *graph.Graph) (bool, error) {
	b := rewrite.NewPatternBuilder()
	x, s, z := b.Wildcard(), b.Wildcard(), b.Wildcard()

	q3 := b.Node("QuantizeLinear", x, s, z)
	dq3 := b.Node("DequantizeLinear", q3, s, z)
	q2 := b.Node("QuantizeLinear", x, s)
	dq2 := b.Node("DequantizeLinear", q2, s)

	changed := false
	for _, pair := range [][2]*rewrite.Pattern{{dq3, q3}, {dq2, q2}} {
		dq, q := pair[0], pair[1]
		rule, err := rewrite.NewRule(p.Name(), dq, func(g *graph.Graph, bnd *rewrite.Binder) (bool, error) {
			return foldPair(g, bnd, dq, q, x)
		})
		if err != nil {
			return changed, err
		}
		did, err := rule.Apply(g)
		changed = changed || did
		if err != nil {
			return changed, err
		}
	}
	return changed, nil
}

func foldPair(g *graph.Graph, bnd *rewrite.Binder, dqPat, qPat, xPat *rewrite.Pattern) (bool, error) {
	dq, err := bnd.Get(dqPat)
	if err != nil {
		return false, err
	}
	q, err := bnd.Get(qPat)
	if err != nil {
		return false, err
	}
	x, err := bnd.Get(xPat)
	if err != nil {
		return false, err
	}
	if dq.Edge == nil || x.Edge == nil || g.IsGraphOutput(dq.Edge.Name) {
		return false, nil
	}
	qDead := len(g.Consumers(q.Edge.Name)) == 1 && !g.IsGraphOutput(q.Edge.Name)

	if err := bypass(g, dq.Edge.Name, x.Edge.Name, g.Consumers(dq.Edge.Name)); err != nil {
		return true, err
	}
	if err := g.RemoveNode(dq.Node.Index); err != nil {
		return true, err
	}
	if qDead {
		if err := g.RemoveNode(q.Node.Index); err != nil {
			return true, err
		}
	}
	return true, rewrite.Resolve(g)
}
