package graph

import "fmt"

// AnchorTag names the transformation that produced a node.
type AnchorTag string

const (
	// TagClone marks a node derived wholesale from another node.
	TagClone AnchorTag = "clone"
	// TagDuplicate marks a per-consumer copy of a producer.
	TagDuplicate AnchorTag = "duplicate"
	// TagIdentityInsertion marks an Identity inserted in front of a graph output.
	TagIdentityInsertion AnchorTag = "identity_insertion"
	// TagRewire marks a node created while bypassing or folding other nodes.
	TagRewire AnchorTag = "rewire"
)

// AnchorPoint records where a rewritten node came from. Exactly one of Node
// and Edge is normally set: Node for nodes derived from a whole node, Edge for
// nodes derived from a value under the transformation Tag.
type AnchorPoint struct {
	Tag  AnchorTag
	Node string
	Edge string
	Note string
}

func (a AnchorPoint) String() string {
	origin := "node " + a.Node
	if a.Edge != "" {
		origin = "edge " + a.Edge
	}
	if a.Note != "" {
		return fmt.Sprintf("%s(%s): %s", a.Tag, origin, a.Note)
	}
	return fmt.Sprintf("%s(%s)", a.Tag, origin)
}
