package rewrite

import "errors"

var (
	// ErrStaleBinder is returned when a Binder is read after the graph it was
	// matched against has been mutated.
	ErrStaleBinder = errors.New("binder is stale: graph mutated since match")

	// ErrUnbound is returned when a pattern node has no binding.
	ErrUnbound = errors.New("pattern node is not bound")

	// ErrUnresolved is returned when a graph is matched against, or an action
	// returns, while topology changes are still pending a Resolve.
	ErrUnresolved = errors.New("graph mutated without resolve")

	// ErrResolution wraps every failure of the resolution step.
	ErrResolution = errors.New("graph resolution failed")

	// ErrMixedBuilders is returned when one pattern or binder lookup combines
	// pattern nodes created by different builders.
	ErrMixedBuilders = errors.New("pattern nodes come from different builders")

	// ErrNoAnchor is returned by NodeBuilder.Build when no anchor point was set.
	ErrNoAnchor = errors.New("anchor point not set")

	// ErrInvariant marks a graph state the engine must never observe, such as a
	// node input naming an edge that does not exist.
	ErrInvariant = errors.New("graph invariant violated")
)
