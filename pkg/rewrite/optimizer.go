package rewrite

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ravi-parthasarathy/graphopt/pkg/graph"
)

// DefaultMaxRounds bounds fixpoint iteration when no limit is configured.
const DefaultMaxRounds = 10

// OptimizerOptions control how an Optimizer sequences its passes.
type OptimizerOptions struct {
	// FixedPoint repeats the whole pass list until a round changes nothing.
	FixedPoint bool
	// MaxRounds caps the number of rounds when FixedPoint is set.
	MaxRounds int
}

// Optimizer runs an ordered list of passes over graphs. It holds no per-graph
// state, so one Optimizer may serve several goroutines, each with its own graph.
type Optimizer struct {
	passes []Pass
	opts   OptimizerOptions
}

// NewOptimizer resolves the named passes from reg.
func NewOptimizer(reg PassRegistry, names []string, opts OptimizerOptions) (*Optimizer, error) {
	if reg == nil {
		return nil, fmt.Errorf("pass registry must not be nil")
	}
	if len(names) == 0 {
		return nil, fmt.Errorf("at least one pass is required")
	}
	if opts.MaxRounds <= 0 {
		opts.MaxRounds = DefaultMaxRounds
	}
	passes := make([]Pass, 0, len(names))
	for _, name := range names {
		p, err := reg.Get(name)
		if err != nil {
			return nil, err
		}
		passes = append(passes, p)
	}
	return &Optimizer{passes: passes, opts: opts}, nil
}

// Run applies the passes to g. Without FixedPoint the pass list runs once.
// Cancellation is checked between passes; a pass in progress is never
// interrupted. The returned report covers the passes that ran, even on error.
func (o *Optimizer) Run(ctx context.Context, g *graph.Graph) (*Report, error) {
	report := &Report{Graph: g.Name, NodesBefore: g.NumNodes()}
	if err := Resolve(g); err != nil {
		return report, err
	}

	rounds := 1
	if o.opts.FixedPoint {
		rounds = o.opts.MaxRounds
	}
	for round := 1; round <= rounds; round++ {
		report.Rounds = round
		roundChanged := false
		for _, p := range o.passes {
			select {
			case <-ctx.Done():
				return report, fmt.Errorf("graph %q cancelled before pass %q: %w", g.Name, p.Name(), ctx.Err())
			default:
			}

			start := time.Now()
			changed, err := p.Process(ctx, g)
			report.Passes = append(report.Passes, PassRun{
				Name:     p.Name(),
				Round:    round,
				Changed:  changed,
				Duration: time.Since(start),
			})
			if err != nil {
				return report, fmt.Errorf("graph %q: pass %q: %w", g.Name, p.Name(), err)
			}
			if err := Resolve(g); err != nil {
				return report, fmt.Errorf("graph %q: pass %q: %w", g.Name, p.Name(), err)
			}
			slog.Info("pass complete", "graph", g.Name, "pass", p.Name(), "round", round, "changed", changed)
			roundChanged = roundChanged || changed
		}
		if !roundChanged {
			report.Converged = true
			break
		}
	}
	if o.opts.FixedPoint && !report.Converged {
		slog.Warn("fixpoint not reached", "graph", g.Name, "rounds", report.Rounds)
	}
	report.NodesAfter = g.NumNodes()
	return report, nil
}
