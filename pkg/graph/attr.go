package graph

import (
	"encoding/base64"
	"fmt"
	"slices"
	"strconv"
	"strings"
)

// AttrKind identifies the value type stored in an Attr.
type AttrKind string

const (
	AttrString AttrKind = "string"
	AttrInt    AttrKind = "int"
	AttrFloat  AttrKind = "float"
	AttrTensor AttrKind = "tensor" // raw tensor bytes
	AttrInts   AttrKind = "ints"   // shape lists, axes, perms
)

// Attr is a single typed node attribute. Only the field matching Kind is meaningful.
type Attr struct {
	Kind   AttrKind
	S      string
	I      int64
	F      float64
	Tensor []byte
	Ints   []int64
}

// StringAttr, IntAttr, FloatAttr, TensorAttr and IntsAttr build attributes of the
// matching kind.
func StringAttr(s string) Attr { return Attr{Kind: AttrString, S: s} }
func IntAttr(i int64) Attr     { return Attr{Kind: AttrInt, I: i} }
func FloatAttr(f float64) Attr { return Attr{Kind: AttrFloat, F: f} }
func TensorAttr(b []byte) Attr { return Attr{Kind: AttrTensor, Tensor: slices.Clone(b)} }
func IntsAttr(v ...int64) Attr { return Attr{Kind: AttrInts, Ints: slices.Clone(v)} }

// Clone returns a deep copy of the attribute.
func (a Attr) Clone() Attr {
	a.Tensor = slices.Clone(a.Tensor)
	a.Ints = slices.Clone(a.Ints)
	return a
}

// String renders the attribute in the "<kind>:<value>" form used by the DOT format.
func (a Attr) String() string {
	switch a.Kind {
	case AttrString:
		return "string:" + a.S
	case AttrInt:
		return "int:" + strconv.FormatInt(a.I, 10)
	case AttrFloat:
		return "float:" + strconv.FormatFloat(a.F, 'g', -1, 64)
	case AttrTensor:
		return "tensor:" + base64.StdEncoding.EncodeToString(a.Tensor)
	case AttrInts:
		return "ints:" + formatInts(a.Ints)
	}
	return string(a.Kind) + ":"
}

// ParseAttr parses the "<kind>:<value>" form produced by Attr.String.
func ParseAttr(s string) (Attr, error) {
	kind, val, ok := strings.Cut(s, ":")
	if !ok {
		return Attr{}, fmt.Errorf("attribute %q: missing kind prefix", s)
	}
	switch AttrKind(kind) {
	case AttrString:
		return StringAttr(val), nil
	case AttrInt:
		i, err := strconv.ParseInt(val, 10, 64)
		if err != nil {
			return Attr{}, fmt.Errorf("attribute %q: %w", s, err)
		}
		return IntAttr(i), nil
	case AttrFloat:
		f, err := strconv.ParseFloat(val, 64)
		if err != nil {
			return Attr{}, fmt.Errorf("attribute %q: %w", s, err)
		}
		return FloatAttr(f), nil
	case AttrTensor:
		b, err := base64.StdEncoding.DecodeString(val)
		if err != nil {
			return Attr{}, fmt.Errorf("attribute %q: %w", s, err)
		}
		return Attr{Kind: AttrTensor, Tensor: b}, nil
	case AttrInts:
		ints, err := parseInts(val)
		if err != nil {
			return Attr{}, fmt.Errorf("attribute %q: %w", s, err)
		}
		return Attr{Kind: AttrInts, Ints: ints}, nil
	}
	return Attr{}, fmt.Errorf("attribute %q: unknown kind %q", s, kind)
}

// Attributes maps attribute names to typed values.
type Attributes map[string]Attr

// Clone deep-copies the attribute map. A nil map clones to an empty one.
func (a Attributes) Clone() Attributes {
	out := make(Attributes, len(a))
	for k, v := range a {
		out[k] = v.Clone()
	}
	return out
}

// Set stores v under name.
func (a Attributes) Set(name string, v Attr) { a[name] = v.Clone() }

// String returns the string attribute name, or false if absent or of another kind.
func (a Attributes) String(name string) (string, bool) {
	v, ok := a[name]
	if !ok || v.Kind != AttrString {
		return "", false
	}
	return v.S, true
}

// Int returns the int attribute name, or false if absent or of another kind.
func (a Attributes) Int(name string) (int64, bool) {
	v, ok := a[name]
	if !ok || v.Kind != AttrInt {
		return 0, false
	}
	return v.I, true
}

// Float returns the float attribute name, or false if absent or of another kind.
func (a Attributes) Float(name string) (float64, bool) {
	v, ok := a[name]
	if !ok || v.Kind != AttrFloat {
		return 0, false
	}
	return v.F, true
}

// Tensor returns a copy of the tensor attribute name.
func (a Attributes) Tensor(name string) ([]byte, bool) {
	v, ok := a[name]
	if !ok || v.Kind != AttrTensor {
		return nil, false
	}
	return slices.Clone(v.Tensor), true
}

// Ints returns a copy of the ints attribute name.
func (a Attributes) Ints(name string) ([]int64, bool) {
	v, ok := a[name]
	if !ok || v.Kind != AttrInts {
		return nil, false
	}
	return slices.Clone(v.Ints), true
}

func formatInts(v []int64) string {
	parts := make([]string, len(v))
	for i, x := range v {
		parts[i] = strconv.FormatInt(x, 10)
	}
	return strings.Join(parts, ",")
}

func parseInts(s string) ([]int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return []int64{}, nil
	}
	parts := strings.Split(s, ",")
	out := make([]int64, len(parts))
	for i, p := range parts {
		x, err := strconv.ParseInt(strings.TrimSpace(p), 10, 64)
		if err != nil {
			return nil, err
		}
		out[i] = x
	}
	return out, nil
}
