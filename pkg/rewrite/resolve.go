package rewrite

import (
	"fmt"
	"log/slog"

	"github.com/ravi-parthasarathy/graphopt/pkg/graph"
)

// Resolve brings g's derived state up to date after a topology change:
// producer/consumer indices, validation and dtype/shape inference. It is a
// no-op when nothing changed since the last call. A failure is wrapped in
// ErrResolution and lists the offending nodes and edges.
func Resolve(g *graph.Graph) error {
	if !g.Dirty() {
		return nil
	}
	if err := g.Resolve(); err != nil {
		return fmt.Errorf("%w: graph %q: %w", ErrResolution, g.Name, err)
	}
	slog.Debug("graph resolved", "graph", g.Name, "nodes", g.NumNodes(), "generation", g.Generation())
	return nil
}
