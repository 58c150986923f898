// Package passes holds the built-in rewrite passes and the registry the
// optimizer resolves pass names from.
package passes

import (
	"fmt"
	"sort"

	"github.com/ravi-parthasarathy/graphopt/pkg/config"
	"github.com/ravi-parthasarathy/graphopt/pkg/rewrite"
)

// Registry maps pass names to Pass implementations.
// It implements the rewrite.PassRegistry interface.
type Registry struct {
	passes map[string]rewrite.Pass
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{passes: make(map[string]rewrite.Pass)}
}

// Register adds p under p.Name(), replacing any pass with the same name.
func (r *Registry) Register(p rewrite.Pass) {
	r.passes[p.Name()] = p
}

// Get returns the pass called name, or an error if not registered.
func (r *Registry) Get(name string) (rewrite.Pass, error) {
	p, ok := r.passes[name]
	if !ok {
		return nil, fmt.Errorf("no pass registered with name %q", name)
	}
	return p, nil
}

// Names returns the registered pass names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.passes))
	for name := range r.passes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Builtin returns a registry holding every built-in pass configured from opts.
func Builtin(opts config.PassOptions) *Registry {
	reg := NewRegistry()
	reg.Register(&DuplicateFanOut{Ops: opts.DuplicateFanOut.Ops})
	reg.Register(&GraphOutputIdentity{Domain: opts.GraphOutputIdentity.Domain})
	reg.Register(&RemoveIdentity{})
	reg.Register(&FoldQDQ{})
	return reg
}
