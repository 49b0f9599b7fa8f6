package optimization

import (
	"encoding/json"
	"fmt"
	"math"
)

// VariableKind discriminates the accepted shapes of a domain variable.
type VariableKind int

const (
	// BoundsPair is the bare [lower, upper] form. It is never integer.
	BoundsPair VariableKind = iota + 1
	// BoundsObject is the {bounds: [lower, upper], isInteger?: bool} form.
	BoundsObject
)

// String returns a readable name for the kind.
func (k VariableKind) String() string {
	switch k {
	case BoundsPair:
		return "bounds_pair"
	case BoundsObject:
		return "bounds_object"
	default:
		return fmt.Sprintf("VariableKind(%d)", int(k))
	}
}

// VariableSpec is the caller's description of one dimension of the search
// space. Use Bounds or IntegerBounds to build one, or decode it from JSON.
type VariableSpec struct {
	Kind      VariableKind
	Bounds    []float64
	IsInteger bool
}

// Bounds returns a continuous variable spanning [lower, upper].
func Bounds(lower, upper float64) VariableSpec {
	return VariableSpec{Kind: BoundsPair, Bounds: []float64{lower, upper}}
}

// IntegerBounds returns an integer variable spanning [lower, upper].
func IntegerBounds(lower, upper float64) VariableSpec {
	return VariableSpec{Kind: BoundsObject, Bounds: []float64{lower, upper}, IsInteger: true}
}

// UnmarshalJSON accepts either [lower, upper] or
// {"bounds": [lower, upper], "isInteger": bool}.
func (v *VariableSpec) UnmarshalJSON(data []byte) error {
	var raw interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return WrapKindErrorf(KindInvalidDomain, err, "malformed domain variable").
			WithComponent("domain")
	}
	spec, err := parseVariable(raw)
	if err != nil {
		return err.WithOperation("UnmarshalJSON")
	}
	*v = spec
	return nil
}

// MarshalJSON writes the pair form for BoundsPair and the object form otherwise.
func (v VariableSpec) MarshalJSON() ([]byte, error) {
	if v.Kind == BoundsPair {
		return json.Marshal(v.Bounds)
	}
	return json.Marshal(struct {
		Bounds    []float64 `json:"bounds"`
		IsInteger bool      `json:"isInteger,omitempty"`
	}{v.Bounds, v.IsInteger})
}

// Domain is the canonical box-and-integrality representation of a search
// space: three aligned arrays of length N.
type Domain struct {
	Lower     []float64
	Upper     []float64
	IsInteger []bool
}

// Dims returns the number of dimensions.
func (d *Domain) Dims() int {
	return len(d.Lower)
}

// Contains reports whether x has the right dimensionality, lies inside the
// box (boundary inclusive) and is integral on every integer dimension.
func (d *Domain) Contains(x []float64) bool {
	if len(x) != d.Dims() {
		return false
	}
	for i, v := range x {
		if math.IsNaN(v) || v < d.Lower[i] || v > d.Upper[i] {
			return false
		}
		if d.IsInteger[i] && v != math.Trunc(v) {
			return false
		}
	}
	return true
}

// Round returns a copy of x with every integer dimension rounded half away
// from zero and clamped to the box.
func (d *Domain) Round(x []float64) []float64 {
	out := make([]float64, len(x))
	copy(out, x)
	for i := range out {
		if i < len(d.IsInteger) && d.IsInteger[i] {
			out[i] = math.Max(d.Lower[i], math.Min(math.Round(out[i]), d.Upper[i]))
		}
	}
	return out
}

// NormalizeDomain validates specs and converts them into a Domain.
func NormalizeDomain(specs []VariableSpec) (*Domain, error) {
	const op = "NormalizeDomain"

	if len(specs) == 0 {
		return nil, NewKindErrorf(KindInvalidDomain, "domain must contain at least one variable").
			WithComponent("domain").WithOperation(op)
	}

	d := &Domain{
		Lower:     make([]float64, len(specs)),
		Upper:     make([]float64, len(specs)),
		IsInteger: make([]bool, len(specs)),
	}

	for i, spec := range specs {
		if err := validateVariable(spec); err != nil {
			return nil, err.WithOperation(op).wrapDimension(i)
		}
		d.Lower[i] = spec.Bounds[0]
		d.Upper[i] = spec.Bounds[1]
		d.IsInteger[i] = spec.IsInteger
	}

	return d, nil
}

// ParseDomain converts a decoded JSON value (as produced by encoding/json into
// interface{}) into variable specs, then normalizes them.
func ParseDomain(raw interface{}) ([]VariableSpec, *Domain, error) {
	const op = "ParseDomain"

	items, ok := raw.([]interface{})
	if !ok {
		return nil, nil, NewKindErrorf(KindInvalidDomain, "domain must be an array, got %s", typeName(raw)).
			WithComponent("domain").WithOperation(op)
	}

	specs := make([]VariableSpec, len(items))
	for i, item := range items {
		spec, err := parseVariable(item)
		if err != nil {
			return nil, nil, err.WithOperation(op).wrapDimension(i)
		}
		specs[i] = spec
	}

	d, err := NormalizeDomain(specs)
	if err != nil {
		return nil, nil, err
	}
	return specs, d, nil
}

func validateVariable(spec VariableSpec) *Error {
	switch spec.Kind {
	case BoundsPair:
		if spec.IsInteger {
			return domainErrorf("a bounds pair cannot be flagged integer; use the object form")
		}
	case BoundsObject:
	default:
		return domainErrorf("unknown variable kind %s", spec.Kind)
	}

	if len(spec.Bounds) != 2 {
		return domainErrorf("expected 2 bounds, got %d", len(spec.Bounds))
	}

	lower, upper := spec.Bounds[0], spec.Bounds[1]
	if !isFinite(lower) || !isFinite(upper) {
		return domainErrorf("bounds must be finite, got [%v, %v]", lower, upper)
	}
	if lower >= upper {
		return domainErrorf("lower bound %v must be less than upper bound %v", lower, upper)
	}
	if spec.IsInteger && (lower != math.Trunc(lower) || upper != math.Trunc(upper)) {
		return domainErrorf("integer variable has non-integral bounds [%v, %v]", lower, upper)
	}
	return nil
}

func parseVariable(raw interface{}) (VariableSpec, *Error) {
	switch v := raw.(type) {
	case []interface{}:
		bounds, err := parseBounds(v)
		if err != nil {
			return VariableSpec{}, err
		}
		return VariableSpec{Kind: BoundsPair, Bounds: bounds}, nil

	case map[string]interface{}:
		rawBounds, ok := v["bounds"].([]interface{})
		if !ok {
			return VariableSpec{}, domainErrorf("bounds must be an array, got %s", typeName(v["bounds"]))
		}
		bounds, err := parseBounds(rawBounds)
		if err != nil {
			return VariableSpec{}, err
		}
		spec := VariableSpec{Kind: BoundsObject, Bounds: bounds}
		if rawInt, present := v["isInteger"]; present && rawInt != nil {
			isInt, ok := rawInt.(bool)
			if !ok {
				return VariableSpec{}, domainErrorf("isInteger must be a boolean, got %s", typeName(rawInt))
			}
			spec.IsInteger = isInt
		}
		return spec, nil

	default:
		return VariableSpec{}, domainErrorf("expected [lower, upper] or {bounds, isInteger}, got %s", typeName(raw))
	}
}

func parseBounds(items []interface{}) ([]float64, *Error) {
	if len(items) != 2 {
		return nil, domainErrorf("expected 2 bounds, got %d", len(items))
	}
	bounds := make([]float64, 2)
	for i, item := range items {
		f, ok := toFloat(item)
		if !ok {
			return nil, domainErrorf("bound %d must be a number, got %s", i, typeName(item))
		}
		bounds[i] = f
	}
	return bounds, nil
}

func domainErrorf(format string, args ...interface{}) *Error {
	return NewKindErrorf(KindInvalidDomain, format, args...).WithComponent("domain")
}

func (e *Error) wrapDimension(i int) *Error {
	e.Message = fmt.Sprintf("dimension %d: %s", i, e.Message)
	return e
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

func typeName(v interface{}) string {
	if v == nil {
		return "null"
	}
	return fmt.Sprintf("%T", v)
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
