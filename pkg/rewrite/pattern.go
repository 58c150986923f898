// Package rewrite matches structural patterns against a graph.Graph and
// applies rewrite actions to the matches.
//
// A pass builds Patterns with a PatternBuilder, pairs a root pattern with an
// Action in a Rule, and calls Rule.Apply. Apply tries every node of a graph
// snapshot as a match root and hands each successful Binder to the action.
// Actions create nodes through NodeBuilder, rewire edges through the graph's
// mutators and call Resolve before returning.
package rewrite

import (
	"fmt"
	"strings"
	"sync/atomic"
)

type patternKind int

const (
	kindWildcard patternKind = iota
	kindGraphInput
	kindTyped
)

// Pattern is an immutable node of a pattern tree. Reusing one Pattern value in
// several input positions forms a shared sub-pattern: all positions must bind
// the same graph value for a match to succeed.
type Pattern struct {
	id      int
	builder uint64
	kind    patternKind
	opType  string
	inputs  []*Pattern
}

// ID returns the identifier used to look the pattern up in a Binder.
func (p *Pattern) ID() int { return p.id }

// OpType returns the op type of a typed pattern, or "" for wildcards.
func (p *Pattern) OpType() string { return p.opType }

// Inputs returns the child patterns of a typed pattern.
func (p *Pattern) Inputs() []*Pattern { return append([]*Pattern(nil), p.inputs...) }

func (p *Pattern) String() string {
	var sb strings.Builder
	p.format(&sb)
	return sb.String()
}

func (p *Pattern) format(sb *strings.Builder) {
	switch p.kind {
	case kindWildcard:
		fmt.Fprintf(sb, "_#%d", p.id)
	case kindGraphInput:
		fmt.Fprintf(sb, "input#%d", p.id)
	case kindTyped:
		fmt.Fprintf(sb, "%s#%d(", p.opType, p.id)
		for i, in := range p.inputs {
			if i > 0 {
				sb.WriteString(", ")
			}
			if in == nil {
				sb.WriteString("<nil>")
				continue
			}
			in.format(sb)
		}
		sb.WriteString(")")
	}
}

// validate checks that every node is non-nil and comes from p's builder.
func (p *Pattern) validate() error {
	seen := map[*Pattern]bool{}
	var walk func(*Pattern) error
	walk = func(q *Pattern) error {
		if q == nil {
			return fmt.Errorf("nil pattern input")
		}
		if seen[q] {
			return nil
		}
		seen[q] = true
		if q.builder != p.builder {
			return fmt.Errorf("%w: %s", ErrMixedBuilders, q)
		}
		for _, in := range q.inputs {
			if err := walk(in); err != nil {
				return err
			}
		}
		return nil
	}
	return walk(p)
}

var builderSerial atomic.Uint64

// PatternBuilder creates patterns with identifiers unique to the builder.
// A builder is not safe for concurrent use.
type PatternBuilder struct {
	serial uint64
	next   int
}

// NewPatternBuilder returns a builder whose patterns can be combined only with
// each other.
func NewPatternBuilder() *PatternBuilder {
	return &PatternBuilder{serial: builderSerial.Add(1)}
}

func (b *PatternBuilder) newPattern(kind patternKind, opType string, inputs []*Pattern) *Pattern {
	p := &Pattern{
		id:      b.next,
		builder: b.serial,
		kind:    kind,
		opType:  opType,
		inputs:  append([]*Pattern(nil), inputs...),
	}
	b.next++
	return p
}

// Wildcard matches any value, including graph inputs and omitted optional
// inputs, and binds it.
func (b *PatternBuilder) Wildcard() *Pattern {
	return b.newPattern(kindWildcard, "", nil)
}

// GraphInput matches only a value with no producer.
func (b *PatternBuilder) GraphInput() *Pattern {
	return b.newPattern(kindGraphInput, "", nil)
}

// Node matches a node of opType whose inputs match inputs position by
// position. Arity is not checked here; a node with a different number of
// inputs simply does not match.
func (b *PatternBuilder) Node(opType string, inputs ...*Pattern) *Pattern {
	return b.newPattern(kindTyped, opType, inputs)
}
