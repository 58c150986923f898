package graph

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	gographviz "github.com/awalterschulze/gographviz"
)

// Attribute prefix for typed node attributes in DOT, e.g. a_axis="int:1".
const dotAttrPrefix = "a_"

// ParseDOT parses a graph described in DOT and resolves it.
//
//	digraph model {
//	    inputs="x"; outputs="y"
//	    x  [kind=tensor, dtype=float32, shape="1,3"]
//	    n0 [op=Relu, inputs="x", outputs="y"]
//	}
//
// Nodes with an op attribute are operations; nodes with kind=tensor declare the
// type of an edge. An optional num_inputs attribute pads the input list with
// omitted inputs. DOT edges are informational and ignored.
func ParseDOT(src string, opts ...Option) (*Graph, error) {
	graphAst, err := gographviz.ParseString(src)
	if err != nil {
		return nil, fmt.Errorf("dot parse error: %w", err)
	}
	collector := newDOTCollector()
	if err := gographviz.Analyse(graphAst, collector); err != nil {
		return nil, fmt.Errorf("dot analyse error: %w", err)
	}

	g := New(collector.name, opts...)

	tensors := map[string]map[string]string{}
	var ops []string
	for _, id := range collector.order {
		attrs := collector.nodes[id]
		switch {
		case attrs["kind"] == "tensor":
			name := attrs["name"]
			if name == "" {
				name = id
			}
			tensors[name] = attrs
		case attrs["op"] != "":
			ops = append(ops, id)
		case len(attrs) == 0:
			// Only mentioned as a DOT edge endpoint.
		default:
			return nil, fmt.Errorf("dot node %q: neither an op nor a tensor declaration", id)
		}
	}

	for _, name := range splitList(collector.graphAttrs["inputs"]) {
		dt, shape, err := tensorMeta(tensors[name])
		if err != nil {
			return nil, fmt.Errorf("tensor %q: %w", name, err)
		}
		if _, err := g.AddInput(name, dt, shape); err != nil {
			return nil, err
		}
	}
	// Edges must exist before any node can reference them.
	declare := func(name string) error {
		if name == "" || g.Edge(name) != nil {
			return nil
		}
		dt, shape, err := tensorMeta(tensors[name])
		if err != nil {
			return fmt.Errorf("tensor %q: %w", name, err)
		}
		_, err = g.AddEdge(name, dt, shape)
		return err
	}
	for _, id := range ops {
		attrs := collector.nodes[id]
		for _, name := range splitList(attrs["outputs"]) {
			if err := declare(name); err != nil {
				return nil, err
			}
		}
	}
	for name := range tensors {
		if err := declare(name); err != nil {
			return nil, err
		}
	}

	for _, id := range ops {
		spec, err := nodeSpecFromDOT(id, collector.nodes[id])
		if err != nil {
			return nil, err
		}
		if _, err := g.AddNode(spec); err != nil {
			return nil, err
		}
	}
	if err := g.SetOutputs(splitList(collector.graphAttrs["outputs"])...); err != nil {
		return nil, err
	}
	if err := g.Resolve(); err != nil {
		return nil, fmt.Errorf("graph %q: %w", g.Name, err)
	}
	return g, nil
}

func nodeSpecFromDOT(id string, attrs map[string]string) (NodeSpec, error) {
	spec := NodeSpec{
		Name:    id,
		OpType:  attrs["op"],
		Domain:  attrs["domain"],
		Inputs:  splitInputs(attrs["inputs"]),
		Outputs: splitList(attrs["outputs"]),
		Attrs:   Attributes{},
	}
	if v, ok := attrs["num_inputs"]; ok {
		count, err := strconv.Atoi(v)
		if err != nil || count < len(spec.Inputs) {
			return NodeSpec{}, fmt.Errorf("node %q: num_inputs %q does not cover inputs %q", id, v, attrs["inputs"])
		}
		for len(spec.Inputs) < count {
			spec.Inputs = append(spec.Inputs, "")
		}
	}
	keys := make([]string, 0, len(attrs))
	for k := range attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if !strings.HasPrefix(k, dotAttrPrefix) {
			continue
		}
		a, err := ParseAttr(attrs[k])
		if err != nil {
			return NodeSpec{}, fmt.Errorf("node %q: %w", id, err)
		}
		spec.Attrs[strings.TrimPrefix(k, dotAttrPrefix)] = a
	}
	if tag := attrs["anchor_tag"]; tag != "" {
		spec.Anchor = &AnchorPoint{
			Tag:  AnchorTag(tag),
			Node: attrs["anchor_node"],
			Edge: attrs["anchor_edge"],
			Note: attrs["anchor_note"],
		}
	}
	return spec, nil
}

func tensorMeta(attrs map[string]string) (DataType, []int64, error) {
	if attrs == nil {
		return "", nil, nil
	}
	var shape []int64
	if s, ok := attrs["shape"]; ok {
		var err error
		if shape, err = parseInts(s); err != nil {
			return "", nil, fmt.Errorf("shape %q: %w", s, err)
		}
	}
	return DataType(attrs["dtype"]), shape, nil
}

// FormatDOT renders g as DOT that ParseDOT reads back. Nodes appear in index
// order and attributes sorted, so the output of an unchanged graph is stable.
func FormatDOT(g *Graph) string {
	var sb strings.Builder
	name := g.Name
	if name == "" {
		name = "graph"
	}
	fmt.Fprintf(&sb, "digraph %s {\n", dotQuote(name))
	fmt.Fprintf(&sb, "    inputs=%s\n", dotQuote(strings.Join(g.inputs, ",")))
	fmt.Fprintf(&sb, "    outputs=%s\n", dotQuote(strings.Join(g.outputs, ",")))

	for _, en := range g.EdgeNames() {
		e := g.edges[en]
		if e.DataType == "" && e.Shape == nil {
			continue
		}
		parts := []string{"kind=tensor", "name=" + dotQuote(en)}
		if e.DataType != "" {
			parts = append(parts, "dtype="+dotQuote(string(e.DataType)))
		}
		if e.Shape != nil {
			parts = append(parts, "shape="+dotQuote(formatInts(e.Shape)))
		}
		fmt.Fprintf(&sb, "    %s [%s]\n", dotQuote("tensor:"+en), strings.Join(parts, " "))
	}

	for _, n := range g.Nodes() {
		parts := []string{"op=" + dotQuote(n.OpType)}
		if n.Domain != "" {
			parts = append(parts, "domain="+dotQuote(n.Domain))
		}
		inputs := strings.Join(n.inputs, ",")
		parts = append(parts,
			"inputs="+dotQuote(inputs),
			"outputs="+dotQuote(strings.Join(n.outputs, ",")),
		)
		// A lone omitted input joins to "", which reads back as no inputs.
		if len(splitInputs(inputs)) != len(n.inputs) {
			parts = append(parts, "num_inputs="+strconv.Itoa(len(n.inputs)))
		}
		keys := make([]string, 0, len(n.Attrs))
		for k := range n.Attrs {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			parts = append(parts, dotQuote(dotAttrPrefix+k)+"="+dotQuote(n.Attrs[k].String()))
		}
		if a, ok := n.Anchor(); ok {
			parts = append(parts, "anchor_tag="+dotQuote(string(a.Tag)))
			if a.Node != "" {
				parts = append(parts, "anchor_node="+dotQuote(a.Node))
			}
			if a.Edge != "" {
				parts = append(parts, "anchor_edge="+dotQuote(a.Edge))
			}
			if a.Note != "" {
				parts = append(parts, "anchor_note="+dotQuote(a.Note))
			}
		}
		fmt.Fprintf(&sb, "    %s [%s]\n", dotQuote(n.Name), strings.Join(parts, " "))
	}

	for _, n := range g.Nodes() {
		for _, out := range n.outputs {
			for _, c := range g.Consumers(out) {
				fmt.Fprintf(&sb, "    %s -> %s [label=%s]\n", dotQuote(n.Name), dotQuote(c.Name), dotQuote(out))
			}
		}
	}
	sb.WriteString("}\n")
	return sb.String()
}

// ─── permissive DOT collector ─────────────────────────────────────────────────

// dotCollector implements gographviz.Interface without attribute validation.
type dotCollector struct {
	name       string
	nodes      map[string]map[string]string // id → attrs
	order      []string                     // node ids in first-seen order
	graphAttrs map[string]string
}

func newDOTCollector() *dotCollector {
	return &dotCollector{
		nodes:      make(map[string]map[string]string),
		graphAttrs: make(map[string]string),
	}
}

func (c *dotCollector) SetStrict(_ bool) error { return nil }
func (c *dotCollector) SetDir(_ bool) error    { return nil }
func (c *dotCollector) SetName(n string) error { c.name = unquote(n); return nil }
func (c *dotCollector) String() string         { return c.name }

func (c *dotCollector) AddNode(_ string, name string, attrs map[string]string) error {
	id := unquote(name)
	if _, ok := c.nodes[id]; !ok {
		c.nodes[id] = make(map[string]string, len(attrs))
		c.order = append(c.order, id)
	}
	for k, v := range attrs {
		c.nodes[id][unquote(k)] = unquote(v)
	}
	return nil
}

// AddEdge ignores DOT edges: topology comes from the inputs/outputs attributes.
func (c *dotCollector) AddEdge(_, _ string, _ bool, _ map[string]string) error { return nil }

func (c *dotCollector) AddPortEdge(src, _, dst, _ string, directed bool, attrs map[string]string) error {
	return c.AddEdge(src, dst, directed, attrs)
}

func (c *dotCollector) AddAttr(_ string, field, value string) error {
	c.graphAttrs[unquote(field)] = unquote(value)
	return nil
}

func (c *dotCollector) AddSubGraph(_, _ string, _ map[string]string) error { return nil }

// ─── helpers ─────────────────────────────────────────────────────────────────

// unquote strips surrounding double-quotes from a DOT ID and undoes escaping.
func unquote(s string) string {
	s = strings.TrimSpace(s)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		if u, err := strconv.Unquote(s); err == nil {
			return u
		}
		return s[1 : len(s)-1]
	}
	return s
}

var dotKeywords = map[string]bool{
	"node": true, "edge": true, "graph": true, "digraph": true, "subgraph": true, "strict": true,
}

// dotQuote returns the value as a DOT-safe ID, quoting unless it is a plain
// identifier.
func dotQuote(s string) string {
	if !isPlainID(s) || dotKeywords[strings.ToLower(s)] {
		escaped := strings.ReplaceAll(s, `\`, `\\`)
		escaped = strings.ReplaceAll(escaped, `"`, `\"`)
		return `"` + escaped + `"`
	}
	return s
}

func isPlainID(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r == '_', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9' && i > 0:
		default:
			return false
		}
	}
	return true
}

// splitList splits a comma separated name list, dropping blanks.
func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// splitInputs keeps blank entries so omitted optional inputs hold their position.
func splitInputs(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	for i, p := range parts {
		parts[i] = strings.TrimSpace(p)
	}
	return parts
}
