package graph

import (
	"fmt"
	"slices"
	"sort"
)

// InferFunc fills in the data type and shape of a node's output edges from its
// input edges. ins[i] is nil for an omitted optional input.
type InferFunc func(n *Node, ins, outs []*Edge) error

// InferenceRegistry maps op types to inference functions. Each Graph holds its
// own registry so passes can extend it without touching shared state.
type InferenceRegistry struct {
	funcs map[string]InferFunc
}

// NewInferenceRegistry creates an empty registry.
func NewInferenceRegistry() *InferenceRegistry {
	return &InferenceRegistry{funcs: make(map[string]InferFunc)}
}

// DefaultInference returns a registry with the built-in op rules.
func DefaultInference() *InferenceRegistry {
	r := NewInferenceRegistry()
	r.Register("Identity", inferPassThrough)
	r.Register("Relu", inferPassThrough)
	r.Register("Add", inferElementwise)
	r.Register("Mul", inferElementwise)
	r.Register("DequantizeLinear", inferDequantize)
	r.Register("QuantizeLinear", inferQuantize)
	r.Register("MatMul", inferMatMul)
	return r
}

// Register associates fn with opType, replacing any previous rule.
func (r *InferenceRegistry) Register(opType string, fn InferFunc) {
	r.funcs[opType] = fn
}

// Lookup returns the rule for opType, or nil.
func (r *InferenceRegistry) Lookup(opType string) InferFunc {
	return r.funcs[opType]
}

// OpTypes returns the registered op types, sorted.
func (r *InferenceRegistry) OpTypes() []string {
	out := make([]string, 0, len(r.funcs))
	for op := range r.funcs {
		out = append(out, op)
	}
	sort.Strings(out)
	return out
}

func requireIO(n *Node, ins, outs []*Edge, minIn int) error {
	if len(ins) < minIn || ins[0] == nil {
		return fmt.Errorf("%s needs at least %d input(s), has %d", n.OpType, minIn, len(ins))
	}
	if len(outs) == 0 {
		return fmt.Errorf("%s has no outputs", n.OpType)
	}
	return nil
}

func inferPassThrough(n *Node, ins, outs []*Edge) error {
	if err := requireIO(n, ins, outs, 1); err != nil {
		return err
	}
	outs[0].DataType = ins[0].DataType
	outs[0].Shape = slices.Clone(ins[0].Shape)
	return nil
}

func inferElementwise(n *Node, ins, outs []*Edge) error {
	if err := requireIO(n, ins, outs, 2); err != nil {
		return err
	}
	a, b := ins[0], ins[1]
	if b == nil {
		return fmt.Errorf("%s: second input is missing", n.OpType)
	}
	if a.DataType != "" && b.DataType != "" && a.DataType != b.DataType {
		return fmt.Errorf("%s: mismatched input types %s and %s", n.OpType, a.DataType, b.DataType)
	}
	outs[0].DataType = a.DataType
	if outs[0].DataType == "" {
		outs[0].DataType = b.DataType
	}
	shape, err := broadcast(a.Shape, b.Shape)
	if err != nil {
		return fmt.Errorf("%s: %w", n.OpType, err)
	}
	outs[0].Shape = shape
	return nil
}

// inferDequantize takes the output type from the scale and defaults to
// float32 when the scale type is unknown.
func inferDequantize(n *Node, ins, outs []*Edge) error {
	if err := requireIO(n, ins, outs, 1); err != nil {
		return err
	}
	dt := Float32
	if len(ins) > 1 && ins[1] != nil && ins[1].DataType != "" {
		dt = ins[1].DataType
	}
	outs[0].DataType = dt
	outs[0].Shape = slices.Clone(ins[0].Shape)
	return nil
}

// inferQuantize takes the output type from the zero point when present and
// defaults to uint8 otherwise.
func inferQuantize(n *Node, ins, outs []*Edge) error {
	if err := requireIO(n, ins, outs, 1); err != nil {
		return err
	}
	dt := Uint8
	if len(ins) > 2 && ins[2] != nil && ins[2].DataType != "" {
		dt = ins[2].DataType
	}
	outs[0].DataType = dt
	outs[0].Shape = slices.Clone(ins[0].Shape)
	return nil
}

func inferMatMul(n *Node, ins, outs []*Edge) error {
	if err := requireIO(n, ins, outs, 2); err != nil {
		return err
	}
	a, b := ins[0], ins[1]
	if b == nil {
		return fmt.Errorf("MatMul: second input is missing")
	}
	outs[0].DataType = a.DataType
	if len(a.Shape) < 2 || len(b.Shape) < 2 {
		outs[0].Shape = nil
		return nil
	}
	k1, k2 := a.Shape[len(a.Shape)-1], b.Shape[len(b.Shape)-2]
	if k1 > 0 && k2 > 0 && k1 != k2 {
		return fmt.Errorf("MatMul: inner dimensions %d and %d differ", k1, k2)
	}
	batch, err := broadcast(a.Shape[:len(a.Shape)-2], b.Shape[:len(b.Shape)-2])
	if err != nil {
		return fmt.Errorf("MatMul: %w", err)
	}
	outs[0].Shape = append(batch, a.Shape[len(a.Shape)-2], b.Shape[len(b.Shape)-1])
	return nil
}

// broadcast applies numpy broadcasting. An unknown (nil) shape on either side
// yields an unknown result; dimensions <= 0 are symbolic and left as is.
func broadcast(a, b []int64) ([]int64, error) {
	if a == nil || b == nil {
		return nil, nil
	}
	n := max(len(a), len(b))
	out := make([]int64, n)
	for i := 0; i < n; i++ {
		da, db := dimAt(a, n, i), dimAt(b, n, i)
		switch {
		case da == db, db == 1:
			out[i] = da
		case da == 1:
			out[i] = db
		case da <= 0:
			out[i] = db
		case db <= 0:
			out[i] = da
		default:
			return nil, fmt.Errorf("cannot broadcast %v with %v", a, b)
		}
	}
	return out, nil
}

func dimAt(s []int64, rank, i int) int64 {
	off := rank - len(s)
	if i < off {
		return 1
	}
	return s[i-off]
}
