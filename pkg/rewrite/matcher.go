package rewrite

import (
	"fmt"

	"github.com/ravi-parthasarathy/graphopt/pkg/graph"
)

// Match tries to match p rooted at node, treating edge (one of node's outputs,
// or nil) as the matched value. It returns a fresh Binder on success.
//
// Inputs are matched strictly by position with no backtracking. A structural
// mismatch or an inconsistent shared binding returns ok == false and no error;
// errors are reserved for graph states the matcher must not see.
func Match(g *graph.Graph, p *Pattern, node *graph.Node, edge *graph.Edge) (b *Binder, ok bool, err error) {
	if g.Dirty() {
		return nil, false, fmt.Errorf("%w: graph %q", ErrUnresolved, g.Name)
	}
	m := &matcher{g: g, b: newBinder(g, p.builder)}
	ok, err = m.matchAt(p, node, edge)
	if err != nil || !ok {
		return nil, false, err
	}
	return m.b, true, nil
}

type matcher struct {
	g *graph.Graph
	b *Binder
}

// matchValue matches p against the value named edgeName by looking up its
// producer.
func (m *matcher) matchValue(p *Pattern, edgeName string) (bool, error) {
	if edgeName == "" {
		if p.kind != kindWildcard {
			return false, nil
		}
		return m.b.bind(p.id, Binding{}), nil
	}
	e := m.g.Edge(edgeName)
	if e == nil {
		return false, fmt.Errorf("%w: edge %q is referenced but does not exist", ErrInvariant, edgeName)
	}
	return m.matchAt(p, m.g.Producer(edgeName), e)
}

func (m *matcher) matchAt(p *Pattern, node *graph.Node, edge *graph.Edge) (bool, error) {
	switch p.kind {
	case kindWildcard:
		return m.b.bind(p.id, Binding{Node: node, Edge: edge}), nil
	case kindGraphInput:
		if node != nil {
			return false, nil
		}
		return m.b.bind(p.id, Binding{Edge: edge}), nil
	case kindTyped:
		if node == nil || node.OpType != p.opType || node.NumInputs() != len(p.inputs) {
			return false, nil
		}
		if !m.b.bind(p.id, Binding{Node: node, Edge: edge}) {
			return false, nil
		}
		for i, child := range p.inputs {
			ok, err := m.matchValue(child, node.Input(i))
			if err != nil || !ok {
				return false, err
			}
		}
		return true, nil
	}
	return false, fmt.Errorf("unknown pattern kind %d", p.kind)
}
