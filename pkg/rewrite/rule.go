package rewrite

import (
	"fmt"
	"log/slog"

	"github.com/ravi-parthasarathy/graphopt/pkg/graph"
)

// Action rewrites one match. It reports whether it mutated the graph. An
// action that changes topology must call Resolve before returning. Read
// everything needed from the Binder before the first mutation: the Binder is
// stale afterwards.
type Action func(g *graph.Graph, b *Binder) (bool, error)

// Rule pairs a root pattern with the action applied to each of its matches.
// A Rule holds no state between applications beyond what the action captures.
type Rule struct {
	name    string
	pattern *Pattern
	action  Action
}

// NewRule validates pattern and returns a rule named name.
func NewRule(name string, pattern *Pattern, action Action) (*Rule, error) {
	if pattern == nil {
		return nil, fmt.Errorf("rule %q: pattern must not be nil", name)
	}
	if action == nil {
		return nil, fmt.Errorf("rule %q: action must not be nil", name)
	}
	if err := pattern.validate(); err != nil {
		return nil, fmt.Errorf("rule %q: %w", name, err)
	}
	return &Rule{name: name, pattern: pattern, action: action}, nil
}

// Name returns the rule name.
func (r *Rule) Name() string { return r.name }

// Pattern returns the root pattern.
func (r *Rule) Pattern() *Pattern { return r.pattern }

// Apply runs the rule once over g. Every node present when Apply starts is
// tried as a match root, once per output edge (a node without outputs is tried
// once with a nil edge). Nodes added by actions are not visited; nodes removed
// by actions are skipped. Apply returns true if any action reported a
// mutation. It does not repeat until nothing changes: callers that want a
// fixpoint call Apply again.
//
// A failing action aborts Apply. Mutations made before the failure stay.
func (r *Rule) Apply(g *graph.Graph) (bool, error) {
	if err := Resolve(g); err != nil {
		return false, fmt.Errorf("rule %q: %w", r.name, err)
	}

	changed := false
	matches := 0
	for _, idx := range g.NodeIndices() {
		node := g.Node(idx)
		if node == nil {
			continue
		}
		outs := node.Outputs()
		if len(outs) == 0 {
			outs = []string{""}
		}
		for _, out := range outs {
			if g.Node(idx) == nil {
				break
			}
			var edge *graph.Edge
			if out != "" {
				if edge = g.Edge(out); edge == nil {
					continue
				}
			}
			b, ok, err := Match(g, r.pattern, node, edge)
			if err != nil {
				return changed, fmt.Errorf("rule %q: node %q: %w", r.name, node.Name, err)
			}
			if !ok {
				continue
			}
			matches++
			slog.Debug("pattern matched", "rule", r.name, "node", node.Name, "edge", out)

			did, err := r.action(g, b)
			changed = changed || did
			if err != nil {
				return changed, fmt.Errorf("rule %q: action on node %q: %w", r.name, node.Name, err)
			}
			if g.Dirty() {
				return changed, fmt.Errorf("rule %q: action on node %q: %w", r.name, node.Name, ErrUnresolved)
			}
		}
	}
	slog.Debug("rule applied", "rule", r.name, "graph", g.Name, "matches", matches, "changed", changed)
	return changed, nil
}
