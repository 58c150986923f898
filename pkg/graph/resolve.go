package graph

import (
	"fmt"
	"strings"

	"go.uber.org/multierr"
)

// ResolveError describes one inconsistency found by Resolve.
type ResolveError struct {
	Node    string
	Edge    string
	Message string
}

func (e *ResolveError) Error() string {
	var where []string
	if e.Node != "" {
		where = append(where, fmt.Sprintf("node %q", e.Node))
	}
	if e.Edge != "" {
		where = append(where, fmt.Sprintf("edge %q", e.Edge))
	}
	if len(where) == 0 {
		return e.Message
	}
	return strings.Join(where, " ") + ": " + e.Message
}

// Resolve rebuilds producer/consumer indices, validates the graph and reruns
// dtype/shape inference. Every problem found is reported, combined with
// multierr; use multierr.Errors to list them. On failure the graph stays dirty.
// Resolve on a clean graph is a no-op.
func (g *Graph) Resolve() error {
	if !g.dirty {
		return nil
	}
	err := g.reindex()
	if err != nil {
		return err
	}
	order, err := g.TopologicalOrder()
	if err != nil {
		return err
	}
	if err := g.inferAll(order); err != nil {
		return err
	}
	g.collectOrphanEdges()
	g.dirty = false
	return nil
}

func (g *Graph) reindex() error {
	for _, e := range g.edges {
		e.producer = NoNode
		e.consumers = e.consumers[:0]
	}

	var err error
	for _, n := range g.nodes {
		if n == nil {
			continue
		}
		for _, in := range n.inputs {
			if in == "" {
				continue
			}
			e, ok := g.edges[in]
			if !ok {
				err = multierr.Append(err, &ResolveError{Node: n.Name, Edge: in, Message: "input edge does not exist"})
				continue
			}
			if k := len(e.consumers); k == 0 || e.consumers[k-1] != n.Index {
				e.consumers = append(e.consumers, n.Index)
			}
		}
		for _, out := range n.outputs {
			e, ok := g.edges[out]
			if !ok {
				err = multierr.Append(err, &ResolveError{Node: n.Name, Edge: out, Message: "output edge does not exist"})
				continue
			}
			if g.IsGraphInput(out) {
				err = multierr.Append(err, &ResolveError{Node: n.Name, Edge: out, Message: "graph input must not have a producer"})
				continue
			}
			if e.producer != NoNode {
				err = multierr.Append(err, &ResolveError{
					Node:    n.Name,
					Edge:    out,
					Message: fmt.Sprintf("edge already produced by node %q", g.nodes[e.producer].Name),
				})
				continue
			}
			e.producer = n.Index
		}
	}

	for _, name := range g.outputs {
		e, ok := g.edges[name]
		if !ok {
			err = multierr.Append(err, &ResolveError{Edge: name, Message: "graph output does not exist"})
			continue
		}
		if e.producer == NoNode && !g.IsGraphInput(name) {
			err = multierr.Append(err, &ResolveError{Edge: name, Message: "graph output has no producer"})
		}
	}
	for _, name := range g.EdgeNames() {
		e := g.edges[name]
		if e.producer == NoNode && len(e.consumers) > 0 && !g.IsGraphInput(name) {
			err = multierr.Append(err, &ResolveError{
				Node:    g.nodes[e.consumers[0]].Name,
				Edge:    name,
				Message: "dangling edge: consumed but never produced",
			})
		}
	}
	return err
}

// TopologicalOrder returns live nodes producers-first. Ties are broken by node
// index so the order is deterministic. It relies on resolved indices.
func (g *Graph) TopologicalOrder() ([]*Node, error) {
	indegree := make(map[NodeIndex]int, len(g.byName))
	children := make(map[NodeIndex][]NodeIndex, len(g.byName))
	for _, n := range g.nodes {
		if n == nil {
			continue
		}
		deps := map[NodeIndex]bool{}
		for _, in := range n.inputs {
			e, ok := g.edges[in]
			if !ok || e.producer == NoNode || deps[e.producer] {
				continue
			}
			deps[e.producer] = true
			children[e.producer] = append(children[e.producer], n.Index)
		}
		indegree[n.Index] = len(deps)
	}

	var queue []NodeIndex
	for _, n := range g.nodes {
		if n != nil && indegree[n.Index] == 0 {
			queue = append(queue, n.Index)
		}
	}
	order := make([]*Node, 0, len(g.byName))
	for len(queue) > 0 {
		idx := queue[0]
		queue = queue[1:]
		order = append(order, g.nodes[idx])
		for _, c := range children[idx] {
			indegree[c]--
			if indegree[c] == 0 {
				queue = append(queue, c)
			}
		}
	}

	if len(order) != len(g.byName) {
		var stuck []string
		for _, n := range g.nodes {
			if n != nil && indegree[n.Index] > 0 {
				stuck = append(stuck, n.Name)
			}
		}
		return nil, &ResolveError{Message: fmt.Sprintf("cycle detected among nodes %v", stuck)}
	}
	return order, nil
}

// inferAll reruns inference for nodes created by rewrites and for nodes whose
// outputs have no known data type yet. Inference only fills in what is
// unknown: a data type or shape already set on an output, whether declared or
// copied by a rewrite, is kept.
func (g *Graph) inferAll(order []*Node) error {
	var err error
	for _, n := range order {
		if n.anchor == nil && !g.hasUnknownOutput(n) {
			continue
		}
		fn := g.infer.Lookup(n.OpType)
		if fn == nil {
			continue
		}
		ins := make([]*Edge, len(n.inputs))
		for i, in := range n.inputs {
			ins[i] = g.edges[in]
		}
		outs := make([]*Edge, len(n.outputs))
		known := make([]Edge, len(n.outputs))
		for i, out := range n.outputs {
			outs[i] = g.edges[out]
			known[i] = Edge{DataType: outs[i].DataType, Shape: outs[i].Shape}
		}
		if e := fn(n, ins, outs); e != nil {
			err = multierr.Append(err, &ResolveError{Node: n.Name, Message: "inference: " + e.Error()})
		}
		for i, out := range outs {
			if known[i].DataType != "" {
				out.DataType = known[i].DataType
			}
			if known[i].Shape != nil {
				out.Shape = known[i].Shape
			}
		}
	}
	return err
}

func (g *Graph) hasUnknownOutput(n *Node) bool {
	for _, out := range n.outputs {
		if g.edges[out].DataType == "" {
			return true
		}
	}
	return false
}

// collectOrphanEdges drops edges nothing produces, consumes or exposes, such as
// the outputs of removed nodes.
func (g *Graph) collectOrphanEdges() {
	for name, e := range g.edges {
		if e.producer == NoNode && len(e.consumers) == 0 && !g.IsGraphInput(name) && !g.IsGraphOutput(name) {
			delete(g.edges, name)
		}
	}
}
