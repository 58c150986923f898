package rewrite

import (
	"fmt"
	"strconv"

	"github.com/ravi-parthasarathy/graphopt/pkg/graph"
)

// NodeBuilder assembles a new node, optionally copying fields from existing
// nodes. Clone* calls record a source and copy from it when Build runs; Set*
// calls override what was cloned. Errors are reported by Build.
type NodeBuilder struct {
	g *graph.Graph

	name      string
	opType    string
	domain    string
	opSet     bool
	inputs    []string
	inputsSet bool
	overrides map[int]string
	outputs   []string
	attrs     graph.Attributes
	anchor    *graph.AnchorPoint
	note      string

	inputsFrom *graph.Node
	opFrom     *graph.Node
	dtypeFrom  *graph.Node
	attrsFrom  *graph.Node

	err error
}

// NewNodeBuilder returns a builder adding nodes to g.
func NewNodeBuilder(g *graph.Graph) *NodeBuilder {
	return &NodeBuilder{g: g, overrides: map[int]string{}, attrs: graph.Attributes{}}
}

// CloneInputs copies src's input edges.
func (b *NodeBuilder) CloneInputs(src *graph.Node) *NodeBuilder {
	b.inputsFrom = src
	return b
}

// CloneOpType copies src's op type and domain.
func (b *NodeBuilder) CloneOpType(src *graph.Node) *NodeBuilder {
	b.opFrom = src
	return b
}

// CloneDataType gives the new outputs the data type and shape of src's
// outputs, position by position.
func (b *NodeBuilder) CloneDataType(src *graph.Node) *NodeBuilder {
	b.dtypeFrom = src
	return b
}

// CloneAttrs deep-copies src's attributes.
func (b *NodeBuilder) CloneAttrs(src *graph.Node) *NodeBuilder {
	b.attrsFrom = src
	return b
}

// SetOpType sets the op type and domain.
func (b *NodeBuilder) SetOpType(domain, opType string) *NodeBuilder {
	b.domain, b.opType, b.opSet = domain, opType, true
	return b
}

// SetName sets the node name. By default a unique name is derived from the
// anchor point.
func (b *NodeBuilder) SetName(name string) *NodeBuilder {
	b.name = name
	return b
}

// SetInputNodeArgs sets the complete input list.
func (b *NodeBuilder) SetInputNodeArgs(names ...string) *NodeBuilder {
	b.inputs = append([]string(nil), names...)
	b.inputsSet = true
	return b
}

// SetInput overrides a single input position.
func (b *NodeBuilder) SetInput(pos int, name string) *NodeBuilder {
	if pos < 0 {
		b.err = fmt.Errorf("node builder: negative input position %d", pos)
		return b
	}
	b.overrides[pos] = name
	return b
}

// SetOutputs names the output edges. Edges that do not exist are created.
func (b *NodeBuilder) SetOutputs(names ...string) *NodeBuilder {
	b.outputs = append([]string(nil), names...)
	return b
}

// SetAttr sets one attribute, overriding a cloned one.
func (b *NodeBuilder) SetAttr(name string, a graph.Attr) *NodeBuilder {
	b.attrs.Set(name, a)
	return b
}

// SetAnchorPoint1 records that the node is derived wholesale from src.
func (b *NodeBuilder) SetAnchorPoint1(src *graph.Node) *NodeBuilder {
	if src == nil {
		b.err = fmt.Errorf("node builder: anchor node is nil")
		return b
	}
	b.anchor = &graph.AnchorPoint{Tag: graph.TagClone, Node: src.Name}
	return b
}

// SetAnchorPoint2 records that the node is derived from edge under the
// transformation tag.
func (b *NodeBuilder) SetAnchorPoint2(edge *graph.Edge, tag graph.AnchorTag) *NodeBuilder {
	if edge == nil {
		b.err = fmt.Errorf("node builder: anchor edge for tag %q is nil", tag)
		return b
	}
	b.anchor = &graph.AnchorPoint{Tag: tag, Edge: edge.Name}
	return b
}

// SetDebugNote attaches a free-form note to the anchor point.
func (b *NodeBuilder) SetDebugNote(note string) *NodeBuilder {
	b.note = note
	return b
}

// Build adds the node to the graph. The graph must be resolved afterwards.
func (b *NodeBuilder) Build() (*graph.Node, error) {
	if b.err != nil {
		return nil, b.err
	}
	if b.anchor == nil {
		return nil, fmt.Errorf("node builder: %w", ErrNoAnchor)
	}
	anchor := *b.anchor
	anchor.Note = b.note

	opType, domain := b.opType, b.domain
	if !b.opSet && b.opFrom != nil {
		opType, domain = b.opFrom.OpType, b.opFrom.Domain
	}
	if opType == "" {
		return nil, fmt.Errorf("node builder: op type not set")
	}

	inputs := b.inputs
	if !b.inputsSet && b.inputsFrom != nil {
		inputs = b.inputsFrom.Inputs()
	}
	inputs = append([]string(nil), inputs...)
	for pos, name := range b.overrides {
		if pos >= len(inputs) {
			return nil, fmt.Errorf("node builder: input position %d out of range (%d inputs)", pos, len(inputs))
		}
		inputs[pos] = name
	}

	attrs := graph.Attributes{}
	if b.attrsFrom != nil {
		attrs = b.attrsFrom.Attrs.Clone()
	}
	for k, v := range b.attrs {
		attrs.Set(k, v)
	}

	origin := anchor.Node
	if anchor.Edge != "" {
		origin = anchor.Edge
	}
	name := b.name
	if name == "" {
		name = b.g.UniqueName(origin + "_" + string(anchor.Tag))
	}

	outputs := b.outputs
	if len(outputs) == 0 {
		count := 1
		if b.dtypeFrom != nil && len(b.dtypeFrom.Outputs()) > 1 {
			count = len(b.dtypeFrom.Outputs())
		}
		for i := 0; i < count; i++ {
			base := name + "_out"
			if i > 0 {
				base += strconv.Itoa(i)
			}
			outputs = append(outputs, b.g.UniqueName(base))
		}
	}
	if err := b.declareOutputs(outputs); err != nil {
		return nil, err
	}

	return b.g.AddNode(graph.NodeSpec{
		Name:    name,
		OpType:  opType,
		Domain:  domain,
		Inputs:  inputs,
		Outputs: outputs,
		Attrs:   attrs,
		Anchor:  &anchor,
	})
}

// declareOutputs creates missing output edges, typed after dtypeFrom when set.
func (b *NodeBuilder) declareOutputs(outputs []string) error {
	var srcOuts []string
	if b.dtypeFrom != nil {
		srcOuts = b.dtypeFrom.Outputs()
	}
	for i, out := range outputs {
		e := b.g.Edge(out)
		if e == nil {
			var err error
			if i < len(srcOuts) {
				e, err = b.g.CloneEdge(srcOuts[i], out)
			} else {
				e, err = b.g.AddEdge(out, "", nil)
			}
			if err != nil {
				return fmt.Errorf("node builder: %w", err)
			}
			continue
		}
		if i < len(srcOuts) {
			src := b.g.Edge(srcOuts[i])
			e.DataType, e.Shape = src.DataType, append([]int64(nil), src.Shape...)
		}
	}
	return nil
}
