package rewrite

import (
	"fmt"
	"sort"

	"github.com/ravi-parthasarathy/graphopt/pkg/graph"
)

// Binding is what a pattern node bound to: the producing node and the value it
// produced. Node is nil for graph inputs; both are nil for an omitted optional
// input.
type Binding struct {
	Node *graph.Node
	Edge *graph.Edge
}

func (m Binding) same(o Binding) bool {
	if (m.Node == nil) != (o.Node == nil) || (m.Edge == nil) != (o.Edge == nil) {
		return false
	}
	if m.Node != nil && m.Node.Index != o.Node.Index {
		return false
	}
	return m.Edge == nil || m.Edge.Name == o.Edge.Name
}

// Binder maps pattern identifiers to matches for one successful match attempt.
// It is valid only until the graph is next mutated.
type Binder struct {
	g       *graph.Graph
	gen     uint64
	builder uint64
	binds   map[int]Binding
}

func newBinder(g *graph.Graph, builder uint64) *Binder {
	return &Binder{g: g, gen: g.Generation(), builder: builder, binds: make(map[int]Binding)}
}

// bind records id → m. It fails if id is already bound to something else.
func (b *Binder) bind(id int, m Binding) bool {
	if old, ok := b.binds[id]; ok {
		return old.same(m)
	}
	b.binds[id] = m
	return true
}

// Get returns the match for p.
func (b *Binder) Get(p *Pattern) (Binding, error) {
	if p.builder != b.builder {
		return Binding{}, fmt.Errorf("%w: lookup of %s", ErrMixedBuilders, p)
	}
	return b.Lookup(p.id)
}

// Lookup returns the match for a pattern identifier.
func (b *Binder) Lookup(id int) (Binding, error) {
	if b.g.Generation() != b.gen {
		return Binding{}, fmt.Errorf("%w: pattern node %d", ErrStaleBinder, id)
	}
	m, ok := b.binds[id]
	if !ok {
		return Binding{}, fmt.Errorf("%w: pattern node %d", ErrUnbound, id)
	}
	return m, nil
}

// Len returns the number of distinct bound identifiers.
func (b *Binder) Len() int { return len(b.binds) }

// IDs returns the bound identifiers in ascending order.
func (b *Binder) IDs() []int {
	ids := make([]int, 0, len(b.binds))
	for id := range b.binds {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}
