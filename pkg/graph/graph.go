// Package graph is the dataflow graph model the rewrite engine operates on.
//
// A Graph owns every Node and Edge. Nodes live in an arena addressed by
// NodeIndex; a removed node leaves a nil slot and its index is never reused.
// Edges are named tensor values with at most one producer and any number of
// consumers. Producer/consumer indices are derived data rebuilt by Resolve
// after every topology change.
package graph

import (
	"fmt"
	"slices"
	"sort"
	"strconv"
)

// DataType is the element type of a tensor value ("float32", "int8", ...).
// The empty string means unknown.
type DataType string

const (
	Float32 DataType = "float32"
	Float16 DataType = "float16"
	Int8    DataType = "int8"
	Uint8   DataType = "uint8"
	Int16   DataType = "int16"
	Uint16  DataType = "uint16"
	Int32   DataType = "int32"
	Int64   DataType = "int64"
	Bool    DataType = "bool"
)

// NodeIndex addresses a node in the graph arena.
type NodeIndex int

// NoNode marks an edge without a producer (a graph input).
const NoNode NodeIndex = -1

// Node is a single operation. Name and Index must not be modified by callers;
// inputs and outputs change only through Graph mutators.
type Node struct {
	Index  NodeIndex
	Name   string
	OpType string
	Domain string
	Attrs  Attributes

	inputs  []string
	outputs []string
	anchor  *AnchorPoint
}

// Inputs returns a copy of the node's ordered input edge names. An empty name
// is an omitted optional input.
func (n *Node) Inputs() []string { return slices.Clone(n.inputs) }

// Input returns the i-th input edge name.
func (n *Node) Input(i int) string { return n.inputs[i] }

// NumInputs returns the input arity.
func (n *Node) NumInputs() int { return len(n.inputs) }

// Outputs returns a copy of the node's ordered output edge names.
func (n *Node) Outputs() []string { return slices.Clone(n.outputs) }

// Anchor returns the node's provenance, if it was created by a rewrite.
func (n *Node) Anchor() (AnchorPoint, bool) {
	if n.anchor == nil {
		return AnchorPoint{}, false
	}
	return *n.anchor, true
}

// Edge is a named tensor value.
type Edge struct {
	Name     string
	DataType DataType
	Shape    []int64 // nil when unknown

	producer  NodeIndex
	consumers []NodeIndex
}

// ProducerIndex returns the index of the producing node, or NoNode.
func (e *Edge) ProducerIndex() NodeIndex { return e.producer }

// ConsumerIndices returns the indices of the consuming nodes, in node order.
func (e *Edge) ConsumerIndices() []NodeIndex { return slices.Clone(e.consumers) }

// NodeSpec describes a node to add with Graph.AddNode.
type NodeSpec struct {
	Name    string
	OpType  string
	Domain  string
	Inputs  []string
	Outputs []string
	Attrs   Attributes
	Anchor  *AnchorPoint
}

// Graph is a mutable dataflow graph. It is not safe for concurrent use.
type Graph struct {
	Name string

	nodes   []*Node
	byName  map[string]NodeIndex
	edges   map[string]*Edge
	inputs  []string
	outputs []string

	infer *InferenceRegistry
	gen   uint64
	dirty bool
}

// Option configures a Graph at construction.
type Option func(*Graph)

// WithInference sets the registry used by Resolve for dtype/shape inference.
func WithInference(r *InferenceRegistry) Option {
	return func(g *Graph) { g.infer = r }
}

// New creates an empty graph. Without WithInference, DefaultInference is used.
func New(name string, opts ...Option) *Graph {
	g := &Graph{
		Name:   name,
		byName: make(map[string]NodeIndex),
		edges:  make(map[string]*Edge),
	}
	for _, o := range opts {
		o(g)
	}
	if g.infer == nil {
		g.infer = DefaultInference()
	}
	return g
}

// Generation increments on every mutation. Binders use it to detect staleness.
func (g *Graph) Generation() uint64 { return g.gen }

// Dirty reports whether the graph was mutated since the last successful Resolve.
func (g *Graph) Dirty() bool { return g.dirty }

func (g *Graph) touch() {
	g.gen++
	g.dirty = true
}

// AddInput declares a graph input edge.
func (g *Graph) AddInput(name string, dt DataType, shape []int64) (*Edge, error) {
	e, err := g.AddEdge(name, dt, shape)
	if err != nil {
		return nil, err
	}
	g.inputs = append(g.inputs, name)
	return e, nil
}

// AddEdge declares an edge without producer or consumers.
func (g *Graph) AddEdge(name string, dt DataType, shape []int64) (*Edge, error) {
	if name == "" {
		return nil, fmt.Errorf("edge name must not be empty")
	}
	if _, ok := g.edges[name]; ok {
		return nil, fmt.Errorf("edge %q already exists", name)
	}
	e := &Edge{Name: name, DataType: dt, Shape: slices.Clone(shape), producer: NoNode}
	g.edges[name] = e
	g.touch()
	return e, nil
}

// CloneEdge creates newName with the data type and shape of src. An empty
// newName derives a unique one from src.
func (g *Graph) CloneEdge(src, newName string) (*Edge, error) {
	s, ok := g.edges[src]
	if !ok {
		return nil, fmt.Errorf("clone edge: unknown edge %q", src)
	}
	if newName == "" {
		newName = g.UniqueName(src)
	}
	return g.AddEdge(newName, s.DataType, s.Shape)
}

// AddNode inserts a node. Input edges must already exist; missing output edges
// are created with unknown type. The attribute map is copied.
func (g *Graph) AddNode(spec NodeSpec) (*Node, error) {
	if spec.Name == "" {
		return nil, fmt.Errorf("add node: name must not be empty")
	}
	if spec.OpType == "" {
		return nil, fmt.Errorf("add node %q: op type must not be empty", spec.Name)
	}
	if _, ok := g.byName[spec.Name]; ok {
		return nil, fmt.Errorf("add node %q: name already in use", spec.Name)
	}
	for _, in := range spec.Inputs {
		if in == "" {
			continue
		}
		if _, ok := g.edges[in]; !ok {
			return nil, fmt.Errorf("add node %q: unknown input edge %q", spec.Name, in)
		}
	}
	for _, out := range spec.Outputs {
		if out == "" {
			return nil, fmt.Errorf("add node %q: output edge name must not be empty", spec.Name)
		}
		if g.IsGraphInput(out) {
			return nil, fmt.Errorf("add node %q: output %q is a graph input", spec.Name, out)
		}
	}
	for _, out := range spec.Outputs {
		if _, ok := g.edges[out]; !ok {
			g.edges[out] = &Edge{Name: out, producer: NoNode}
		}
	}

	n := &Node{
		Index:   NodeIndex(len(g.nodes)),
		Name:    spec.Name,
		OpType:  spec.OpType,
		Domain:  spec.Domain,
		Attrs:   spec.Attrs.Clone(),
		inputs:  slices.Clone(spec.Inputs),
		outputs: slices.Clone(spec.Outputs),
	}
	if spec.Anchor != nil {
		a := *spec.Anchor
		n.anchor = &a
	}
	g.nodes = append(g.nodes, n)
	g.byName[n.Name] = n.Index
	g.touch()
	return n, nil
}

// RemoveNode deletes a node. Its output edges stay in the graph until Resolve
// finds them unreferenced.
func (g *Graph) RemoveNode(idx NodeIndex) error {
	n := g.Node(idx)
	if n == nil {
		return fmt.Errorf("remove node: no node at index %d", idx)
	}
	delete(g.byName, n.Name)
	g.nodes[idx] = nil
	g.touch()
	return nil
}

// SetInput rewires input position pos of node idx to edge.
func (g *Graph) SetInput(idx NodeIndex, pos int, edge string) error {
	n := g.Node(idx)
	if n == nil {
		return fmt.Errorf("set input: no node at index %d", idx)
	}
	if pos < 0 || pos >= len(n.inputs) {
		return fmt.Errorf("set input: node %q has no input %d", n.Name, pos)
	}
	if edge != "" {
		if _, ok := g.edges[edge]; !ok {
			return fmt.Errorf("set input: node %q: unknown edge %q", n.Name, edge)
		}
	}
	n.inputs[pos] = edge
	g.touch()
	return nil
}

// ReplaceInput rewires every input of node idx reading old to read repl instead.
// It returns the number of positions changed.
func (g *Graph) ReplaceInput(idx NodeIndex, old, repl string) (int, error) {
	n := g.Node(idx)
	if n == nil {
		return 0, fmt.Errorf("replace input: no node at index %d", idx)
	}
	if _, ok := g.edges[repl]; !ok {
		return 0, fmt.Errorf("replace input: node %q: unknown edge %q", n.Name, repl)
	}
	count := 0
	for i, in := range n.inputs {
		if in == old {
			n.inputs[i] = repl
			count++
		}
	}
	if count > 0 {
		g.touch()
	}
	return count, nil
}

// SetOutputs replaces the graph output list. Names must be distinct.
func (g *Graph) SetOutputs(names ...string) error {
	seen := make(map[string]bool, len(names))
	for _, name := range names {
		if _, ok := g.edges[name]; !ok {
			return fmt.Errorf("set outputs: unknown edge %q", name)
		}
		if seen[name] {
			return fmt.Errorf("set outputs: %q listed twice", name)
		}
		seen[name] = true
	}
	g.outputs = slices.Clone(names)
	g.touch()
	return nil
}

// ReplaceOutput swaps graph output old for repl, keeping its position.
func (g *Graph) ReplaceOutput(old, repl string) error {
	if _, ok := g.edges[repl]; !ok {
		return fmt.Errorf("replace output: unknown edge %q", repl)
	}
	i := slices.Index(g.outputs, old)
	if i < 0 {
		return fmt.Errorf("replace output: %q is not a graph output", old)
	}
	if repl != old && g.IsGraphOutput(repl) {
		return fmt.Errorf("replace output: %q is already a graph output", repl)
	}
	g.outputs[i] = repl
	g.touch()
	return nil
}

// Node returns the live node at idx, or nil.
func (g *Graph) Node(idx NodeIndex) *Node {
	if idx < 0 || int(idx) >= len(g.nodes) {
		return nil
	}
	return g.nodes[idx]
}

// NodeByName returns the live node called name, or nil.
func (g *Graph) NodeByName(name string) *Node {
	idx, ok := g.byName[name]
	if !ok {
		return nil
	}
	return g.nodes[idx]
}

// NodeIndices returns the indices of all live nodes in insertion order. The
// slice is a snapshot; later insertions do not appear in it.
func (g *Graph) NodeIndices() []NodeIndex {
	out := make([]NodeIndex, 0, len(g.byName))
	for _, n := range g.nodes {
		if n != nil {
			out = append(out, n.Index)
		}
	}
	return out
}

// Nodes returns all live nodes in insertion order.
func (g *Graph) Nodes() []*Node {
	out := make([]*Node, 0, len(g.byName))
	for _, n := range g.nodes {
		if n != nil {
			out = append(out, n)
		}
	}
	return out
}

// NumNodes returns the number of live nodes.
func (g *Graph) NumNodes() int { return len(g.byName) }

// Edge returns the edge called name, or nil.
func (g *Graph) Edge(name string) *Edge { return g.edges[name] }

// EdgeNames returns all edge names, sorted.
func (g *Graph) EdgeNames() []string {
	names := make([]string, 0, len(g.edges))
	for name := range g.edges {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Inputs returns the graph input edges in declaration order.
func (g *Graph) Inputs() []*Edge { return g.lookupEdges(g.inputs) }

// Outputs returns the graph output edges in declaration order.
func (g *Graph) Outputs() []*Edge { return g.lookupEdges(g.outputs) }

func (g *Graph) lookupEdges(names []string) []*Edge {
	out := make([]*Edge, 0, len(names))
	for _, name := range names {
		if e, ok := g.edges[name]; ok {
			out = append(out, e)
		}
	}
	return out
}

// IsGraphInput reports whether name is a graph input.
func (g *Graph) IsGraphInput(name string) bool { return slices.Contains(g.inputs, name) }

// IsGraphOutput reports whether name is a graph output.
func (g *Graph) IsGraphOutput(name string) bool { return slices.Contains(g.outputs, name) }

// Producer returns the node producing edge name, or nil for graph inputs and
// unknown edges. The answer reflects the last Resolve.
func (g *Graph) Producer(name string) *Node {
	e, ok := g.edges[name]
	if !ok {
		return nil
	}
	return g.Node(e.producer)
}

// Consumers returns the distinct nodes reading edge name, in node order. The
// answer reflects the last Resolve.
func (g *Graph) Consumers(name string) []*Node {
	e, ok := g.edges[name]
	if !ok {
		return nil
	}
	out := make([]*Node, 0, len(e.consumers))
	for _, idx := range e.consumers {
		if n := g.Node(idx); n != nil {
			out = append(out, n)
		}
	}
	return out
}

// UniqueName returns base if no node or edge uses it, otherwise base_1, base_2, ...
func (g *Graph) UniqueName(base string) string {
	if !g.nameTaken(base) {
		return base
	}
	for i := 1; ; i++ {
		cand := base + "_" + strconv.Itoa(i)
		if !g.nameTaken(cand) {
			return cand
		}
	}
}

func (g *Graph) nameTaken(name string) bool {
	if _, ok := g.byName[name]; ok {
		return true
	}
	_, ok := g.edges[name]
	return ok
}
