package optimization

import (
	"errors"
	"math"
	"testing"
)

// sphere is a simple quadratic objective function for testing
func sphere(x []float64) (float64, error) {
	sum := 0.0
	for _, v := range x {
		sum += v * v
	}
	return sum, nil
}

// scriptedSearch proposes a fixed sequence of points and records what it is
// told. It converges once the script runs out when convergeAtEnd is set.
type scriptedSearch struct {
	points        [][]float64
	convergeAtEnd bool

	initErr    error
	proposeErr error
	reportErr  error

	initialized bool
	next        int
	reported    [][]float64
	values      []float64
}

func (s *scriptedSearch) Initialize(lower, upper []float64, isInteger []bool, epsilon float64) error {
	s.initialized = true
	return s.initErr
}

func (s *scriptedSearch) ProposeNext() ([]float64, error) {
	if s.proposeErr != nil {
		return nil, s.proposeErr
	}
	if s.next >= len(s.points) {
		return nil, errors.New("script exhausted")
	}
	p := s.points[s.next]
	s.next++
	return append([]float64(nil), p...), nil
}

func (s *scriptedSearch) ReportResult(x []float64, y float64) error {
	s.reported = append(s.reported, append([]float64(nil), x...))
	s.values = append(s.values, y)
	return s.reportErr
}

func (s *scriptedSearch) HasConverged() bool {
	return s.convergeAtEnd && s.next >= len(s.points)
}

// repeat returns n copies of p.
func repeat(p []float64, n int) [][]float64 {
	out := make([][]float64, n)
	for i := range out {
		out[i] = p
	}
	return out
}

// assertFloat64SlicesEqual checks if two float64 slices are approximately equal
func assertFloat64SlicesEqual(t *testing.T, got, want []float64, tol float64) {
	t.Helper()

	if len(got) != len(want) {
		t.Fatalf("length mismatch: got %d, want %d", len(got), len(want))
	}

	for i := range got {
		if math.Abs(got[i]-want[i]) > tol {
			t.Fatalf("at index %d: got %v, want %v (tolerance %v)", i, got[i], want[i], tol)
		}
	}
}

func mustDomain(t *testing.T, specs ...VariableSpec) *Domain {
	t.Helper()
	d, err := NormalizeDomain(specs)
	if err != nil {
		t.Fatalf("NormalizeDomain: %v", err)
	}
	return d
}

func mustSettings(t *testing.T, opts *Options) Settings {
	t.Helper()
	s, err := ResolveOptions(opts)
	if err != nil {
		t.Fatalf("ResolveOptions: %v", err)
	}
	return s
}
