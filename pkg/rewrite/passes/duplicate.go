package passes

import (
	"context"
	"fmt"
	"sort"

	"github.com/ravi-parthasarathy/graphopt/pkg/graph"
	"github.com/ravi-parthasarathy/graphopt/pkg/rewrite"
)

// DuplicateFanOut gives every consumer of a listed op its own copy of the
// producer. Accelerator partitioners need quantize/dequantize nodes with a
// single consumer so each can be fused into the consuming subgraph.
//
// Only single-output producers are duplicated. A copy of a multi-output node
// would carry every output while serving one of them.
type DuplicateFanOut struct {
	// Ops maps op types to the input arities to match.
	Ops map[string][]int
}

func (p *DuplicateFanOut) Name() string { return "duplicate_fan_out" }

func (p *DuplicateFanOut) Process(_ context.Context, g *graph.Graph) (bool, error) {
	ops := make([]string, 0, len(p.Ops))
	for op := range p.Ops {
		ops = append(ops, op)
	}
	sort.Strings(ops)

	changed := false
	for _, op := range ops {
		for _, arity := range p.Ops[op] {
			b := rewrite.NewPatternBuilder()
			args := make([]*rewrite.Pattern, arity)
			for i := range args {
				args[i] = b.Wildcard()
			}
			root := b.Node(op, args...)
			rule, err := rewrite.NewRule(fmt.Sprintf("%s/%s/%d", p.Name(), op, arity), root,
				func(g *graph.Graph, bnd *rewrite.Binder) (bool, error) {
					return duplicateProducer(g, bnd, root)
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
	}
	return changed, nil
}

// duplicateProducer leaves the first consumer on the original producer and
// clones the producer for each further consumer.
func duplicateProducer(g *graph.Graph, bnd *rewrite.Binder, root *rewrite.Pattern) (bool, error) {
	m, err := bnd.Get(root)
	if err != nil {
		return false, err
	}
	producer, out := m.Node, m.Edge
	if out == nil || len(producer.Outputs()) != 1 {
		return false, nil
	}
	consumers := g.Consumers(out.Name)
	if len(consumers) < 2 {
		return false, nil
	}

	for _, c := range consumers[1:] {
		dup, err := rewrite.NewNodeBuilder(g).
			CloneInputs(producer).
			CloneOpType(producer).
			CloneDataType(producer).
			CloneAttrs(producer).
			SetAnchorPoint2(out, graph.TagDuplicate).
			SetDebugNote("copy for consumer " + c.Name).
			Build()
		if err != nil {
			return true, fmt.Errorf("duplicate %q for %q: %w", producer.Name, c.Name, err)
		}
		if _, err := g.ReplaceInput(c.Index, out.Name, dup.Outputs()[0]); err != nil {
			return true, err
		}
	}
	return true, rewrite.Resolve(g)
}
