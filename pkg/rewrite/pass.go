package rewrite

import (
	"context"

	"github.com/ravi-parthasarathy/graphopt/pkg/graph"
)

// Pass is one optimization step over a graph.
// Implementations live in the passes sub-package; the interface is defined
// here so that Optimizer can use it without an import cycle.
type Pass interface {
	// Name identifies the pass in configuration and reports.
	Name() string
	// Process rewrites g and reports whether anything changed. It must leave
	// g resolved.
	Process(ctx context.Context, g *graph.Graph) (bool, error)
}

// PassRegistry looks up passes by name.
type PassRegistry interface {
	Get(name string) (Pass, error)
}
